package consent_test

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/aussiebroadwan/aisconsent/pkg/aissdk"
	"github.com/aussiebroadwan/aisconsent/pkg/cryptox"
	"github.com/aussiebroadwan/aisconsent/pkg/jwtx"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

/*
 * Container setup and token helpers for the consent service end-to-end
 * tests. The image is built once from cmd/consent/Dockerfile and ships the
 * demo bank fixture; every test gets a fresh container and fresh keys.
 */

const (
	testImageName = "aisconsent-test:latest"
	tokenIssuer   = "tpp-registry"

	ibanAcc1 = "DE89370400440532013000"
	ibanAcc2 = "DE75512108001245126199"
	panCard1 = "4111111111111111"
)

// TestMain builds the Docker image once before all tests and removes it
// afterwards.
func TestMain(m *testing.M) {
	fmt.Fprintf(os.Stdout, "Building Consent Service Docker image...")

	if err := buildDockerImage(); err != nil {
		fmt.Fprintf(os.Stderr, "\nFailed to build Docker image: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, " done\n")

	exitCode := m.Run()

	fmt.Fprintf(os.Stdout, "Cleaning up Consent Service Docker image...")
	cleanupDockerImage()
	fmt.Fprintf(os.Stdout, " done\n")

	os.Exit(exitCode)
}

func buildDockerImage() error {
	ctx := context.Background()
	cmd := exec.CommandContext(ctx, "docker", "build",
		"-t", testImageName,
		"-f", "../../../cmd/consent/Dockerfile",
		"../../../")
	cmd.Dir = "."
	cmd.Stdout = os.Stdout
	cmd.Stderr = nil

	return cmd.Run()
}

func cleanupDockerImage() {
	ctx := context.Background()
	cmd := exec.CommandContext(ctx, "docker", "rmi", "-f", testImageName)
	_ = cmd.Run() // the image may already be gone
}

// env is a running consent service plus signers for the parties allowed
// to call it.
type env struct {
	baseURL string
	signers map[string]*jwtx.Signer
}

// setupConsentContainer starts the service with relaxed rate limits unless
// defaultLimits is set. Keys for tpp-1, tpp-2 and aspsp are generated and
// copied into the container.
func setupConsentContainer(t *testing.T, defaultLimits bool, extraEnv map[string]string) *env {
	t.Helper()
	ctx := context.Background()

	e := &env{signers: map[string]*jwtx.Signer{}}
	var files []testcontainers.ContainerFile
	for _, kid := range []string{"tpp-1", "tpp-2", "aspsp"} {
		priv, pub, err := cryptox.GenerateEd25519KeyPair()
		require.NoError(t, err)
		s, err := jwtx.NewSigner(kid, priv)
		require.NoError(t, err)
		e.signers[kid] = s
		files = append(files, testcontainers.ContainerFile{
			Reader:            bytes.NewReader(pub),
			ContainerFilePath: "/keys/" + kid + ".pem",
			FileMode:          0o644,
		})
	}

	environment := map[string]string{
		"CONSENT_TOKEN_ISSUER": tokenIssuer,
		"ENV":                  "test",
		"LOG_LEVEL":            "info",
		"LOG_FORMAT":           "json",
	}
	if !defaultLimits {
		// Tests make many rapid calls that would trip the production limits.
		for _, tier := range []string{"STRICT", "MODERATE", "LENIENT"} {
			environment["RATELIMIT_"+tier+"_REQUESTS"] = "1000"
			environment["RATELIMIT_"+tier+"_BURST"] = "1000"
		}
	}
	for k, v := range extraEnv {
		environment[k] = v
	}

	req := testcontainers.ContainerRequest{
		Image:        testImageName,
		ExposedPorts: []string{"8080/tcp"},
		Env:          environment,
		Files:        files,
		WaitingFor: wait.ForHTTP("/readyz").
			WithPort("8080/tcp").
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	mappedPort, err := container.MappedPort(ctx, "8080")
	require.NoError(t, err)
	host, err := container.Host(ctx)
	require.NoError(t, err)

	e.baseURL = fmt.Sprintf("http://%s:%s", host, mappedPort.Port())
	return e
}

// client returns an SDK client whose token is signed by kid's key.
func (e *env) client(t *testing.T, kid string, scopes ...string) *aissdk.Client {
	t.Helper()
	claims := jwtx.NewTppClaims(kid, kid, scopes, []string{"PSP_AI"},
		jwtx.DefaultTokenTTL, tokenIssuer, nil, time.Now())
	token, err := e.signers[kid].Sign(claims)
	require.NoError(t, err)
	return aissdk.NewClient(e.baseURL, token)
}

func (e *env) tpp(t *testing.T) *aissdk.Client {
	return e.client(t, "tpp-1", "ais")
}

func (e *env) aspsp(t *testing.T) *aissdk.Client {
	return e.client(t, "aspsp", "aspsp:read", "aspsp:write")
}

func validUntil() string {
	return time.Now().AddDate(0, 2, 0).Format(time.DateOnly)
}

// createValidConsent creates a dedicated consent for psu-1 and finalises
// it through the REDIRECT flow.
func (e *env) createValidConsent(t *testing.T, access aissdk.AccountAccess, freq int) string {
	t.Helper()
	ctx := t.Context()
	tpp := e.tpp(t)

	created, err := tpp.CreateConsent(ctx, aissdk.CreateConsentRequest{
		Access:             access,
		RecurringIndicator: true,
		ValidUntil:         validUntil(),
		FrequencyPerDay:    freq,
	}, aissdk.ConsentOptions{PsuID: "psu-1", RedirectURI: "https://tpp.example/cb"})
	require.NoError(t, err)

	started, err := tpp.StartAuthorisation(ctx, created.ConsentID, aissdk.StartAuthorisationRequest{}, aissdk.ConsentOptions{PsuID: "psu-1"})
	require.NoError(t, err)

	_, err = e.aspsp(t).UpdatePsuScaStatus(ctx, created.ConsentID, started.AuthorisationID, "finalised")
	require.NoError(t, err)
	return created.ConsentID
}

func requireTppError(t *testing.T, err error, status int, code string) {
	t.Helper()
	require.Error(t, err)
	var perr *aissdk.TppError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, status, perr.StatusCode, perr.Error())
	require.Equal(t, code, perr.Code)
}
