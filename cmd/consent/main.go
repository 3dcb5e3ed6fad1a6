package main

import (
	"fmt"
	"log"
	"os"

	"github.com/aussiebroadwan/aisconsent/internal/consent/app"
	"github.com/spf13/pflag"
)

func main() {
	cfg := app.LoadConfig()

	flags := pflag.NewFlagSet("consent", pflag.ContinueOnError)
	flags.StringVar(&cfg.ProfileFile, "profile", cfg.ProfileFile, "ASPSP profile YAML (env CONSENT_PROFILE_FILE)")
	flags.StringVar(&cfg.BankFixtureFile, "fixtures", cfg.BankFixtureFile, "bank fixture YAML (env CONSENT_BANK_FIXTURE_FILE)")
	flags.IntVar(&cfg.Port, "port", cfg.Port, "HTTP port (env PORT)")
	version := flags.Bool("version", false, "print the version and exit")

	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		log.Fatalf("invalid flags: %v", err)
	}
	if *version {
		fmt.Println(app.BuildVersion)
		return
	}

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}

	if err := application.Run(); err != nil {
		log.Fatalf("application error: %v", err)
	}
}
