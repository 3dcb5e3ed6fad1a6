package app

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/aussiebroadwan/aisconsent/internal/consent/service"
	"github.com/aussiebroadwan/aisconsent/pkg/cryptox"
	"github.com/aussiebroadwan/aisconsent/pkg/jwtx"
)

// LoadTppKeys loads every <kid>.pem in dir into a key set. The file name
// without extension is the kid expected in token headers. TPPs and the
// ASPSP frontend are told apart by token scopes, not by key.
func LoadTppKeys(dir string, logger *slog.Logger) (*jwtx.KeySet, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: read tpp keys dir: %v", service.ErrConfiguration, err)
	}

	keys := jwtx.NewKeySet()
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".pem" {
			continue
		}
		kid := strings.TrimSuffix(e.Name(), ".pem")
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("%w: read key %s: %v", service.ErrConfiguration, kid, err)
		}
		if err := keys.AddPublicKeyPEM(kid, data); err != nil {
			return nil, fmt.Errorf("%w: key %s: %v", service.ErrConfiguration, kid, err)
		}
	}

	if !keys.IsReady() {
		logger.Warn("no tpp keys loaded, every bearer token will be rejected", "dir", dir)
	} else {
		logger.Info("tpp keys loaded", "dir", dir, "kids", keys.KIDs())
	}
	return keys, nil
}

// InitRedirectCipher builds the cipher for consent ids in SCA redirect
// links. Without a key file a random key is generated and links issued
// before a restart stop resolving.
func InitRedirectCipher(path string, logger *slog.Logger) (*cryptox.IDCipher, error) {
	var material []byte
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: read redirect key: %v", service.ErrConfiguration, err)
		}
		material = data
	} else {
		logger.Warn("using an ephemeral redirect key, outstanding SCA links are invalid after restart")
	}

	ids, err := cryptox.NewIDCipher(material)
	if err != nil {
		return nil, fmt.Errorf("%w: redirect key: %v", service.ErrConfiguration, err)
	}
	return ids, nil
}
