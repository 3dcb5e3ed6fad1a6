// Package sca is the sandbox PSU directory behind the EMBEDDED and
// DECOUPLED approaches: PSU passwords, TOTP-based TANs and the signatories
// of corporate PSUs.
package sca

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aussiebroadwan/aisconsent/internal/consent/domain"
	"github.com/aussiebroadwan/aisconsent/pkg/cryptox"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownPsu         = errors.New("sca: unknown psu")
	ErrCredentialsInvalid = errors.New("sca: credentials invalid")
	ErrTANInvalid         = errors.New("sca: tan invalid")
	ErrUnknownCorporate   = errors.New("sca: unknown corporate")
)

// MethodTOTP is the only SCA method the directory offers.
var MethodTOTP = domain.ScaMethod{ID: "totp", Type: "CHIP_OTP", Name: "Authenticator app"}

var totpOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

type directoryFile struct {
	Psus       []psuFile       `yaml:"psus"`
	Corporates []corporateFile `yaml:"corporates"`
}

type psuFile struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Password     string `yaml:"password"`
	PasswordHash string `yaml:"passwordHash"`
	TOTPSecret   string `yaml:"totpSecret"`
}

type corporateFile struct {
	ID          string   `yaml:"id"`
	Signatories []string `yaml:"signatories"`
}

type psu struct {
	name         string
	passwordHash string
	totpSecret   string
}

// Directory authenticates PSUs. It is read-only once parsed.
type Directory struct {
	psus       map[string]psu
	corporates map[string][]string
}

// LoadDirectory reads the psus and corporates sections of a fixture file.
func LoadDirectory(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sca: read directory: %w", err)
	}
	return ParseDirectory(data)
}

// ParseDirectory builds a directory from YAML. Plain passwords are hashed
// with Argon2id on load and never kept.
func ParseDirectory(data []byte) (*Directory, error) {
	var f directoryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("sca: parse directory: %w", err)
	}

	d := &Directory{psus: map[string]psu{}, corporates: map[string][]string{}}
	for _, p := range f.Psus {
		if p.ID == "" {
			return nil, errors.New("sca: psu without id")
		}
		hash := p.PasswordHash
		if hash == "" && p.Password != "" {
			var err error
			if hash, err = cryptox.HashSecret(p.Password); err != nil {
				return nil, fmt.Errorf("sca: hash password of %q: %w", p.ID, err)
			}
		}
		d.psus[p.ID] = psu{name: p.Name, passwordHash: hash, totpSecret: strings.ToUpper(p.TOTPSecret)}
	}
	for _, c := range f.Corporates {
		for _, id := range c.Signatories {
			if _, ok := d.psus[id]; !ok {
				return nil, fmt.Errorf("sca: corporate %q: unknown signatory %q", c.ID, id)
			}
		}
		d.corporates[c.ID] = c.Signatories
	}
	return d, nil
}

func (d *Directory) lookup(p domain.PsuIdData) (psu, error) {
	entry, ok := d.psus[p.PsuID]
	if !ok {
		return psu{}, ErrUnknownPsu
	}
	return entry, nil
}

// Authenticate checks the PSU's password.
func (d *Directory) Authenticate(ctx context.Context, p domain.PsuIdData, password string) error {
	entry, err := d.lookup(p)
	if err != nil {
		return err
	}
	if entry.passwordHash == "" || cryptox.VerifySecret(password, entry.passwordHash) != nil {
		return ErrCredentialsInvalid
	}
	return nil
}

// Methods lists the SCA methods of the PSU.
func (d *Directory) Methods(ctx context.Context, p domain.PsuIdData) ([]domain.ScaMethod, error) {
	entry, err := d.lookup(p)
	if err != nil {
		return nil, err
	}
	if entry.totpSecret == "" {
		return nil, nil
	}
	return []domain.ScaMethod{MethodTOTP}, nil
}

// VerifyTAN validates a TOTP code at the given time.
func (d *Directory) VerifyTAN(ctx context.Context, p domain.PsuIdData, methodID, tan string, at time.Time) error {
	entry, err := d.lookup(p)
	if err != nil {
		return err
	}
	if methodID != MethodTOTP.ID || entry.totpSecret == "" {
		return ErrTANInvalid
	}
	ok, err := totp.ValidateCustom(strings.TrimSpace(tan), entry.totpSecret, at.UTC(), totpOpts)
	if err != nil || !ok {
		return ErrTANInvalid
	}
	return nil
}

// Signatories returns the PSUs that must each authorise on behalf of a
// corporate.
func (d *Directory) Signatories(ctx context.Context, corporateID string) ([]domain.PsuIdData, error) {
	ids, ok := d.corporates[corporateID]
	if !ok {
		return nil, ErrUnknownCorporate
	}
	out := make([]domain.PsuIdData, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.PsuIdData{PsuID: id, PsuCorporateID: corporateID})
	}
	return out, nil
}
