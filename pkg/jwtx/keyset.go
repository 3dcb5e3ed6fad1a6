package jwtx

import (
	"crypto/ed25519"
	"errors"
	"slices"
	"sync"

	"github.com/aussiebroadwan/aisconsent/pkg/cryptox"
)

var ErrNoKey = errors.New("jwtx: key not found")

// KeySet holds the Ed25519 verification keys of every onboarded TPP,
// indexed by kid. It is safe for concurrent use so keys can be added
// while requests are being verified.
type KeySet struct {
	mu  sync.RWMutex
	pub map[string]ed25519.PublicKey
}

// NewKeySet returns an empty KeySet.
func NewKeySet() *KeySet {
	return &KeySet{pub: make(map[string]ed25519.PublicKey)}
}

// AddPublicKey registers pub under kid, replacing any previous key.
func (k *KeySet) AddPublicKey(kid string, pub ed25519.PublicKey) error {
	if kid == "" {
		return errors.New("jwtx: empty kid")
	}
	if len(pub) != ed25519.PublicKeySize {
		return errors.New("jwtx: invalid Ed25519 public key size")
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.pub[kid] = pub
	return nil
}

// AddPublicKeyPEM parses a PKIX PEM block and registers it under kid.
func (k *KeySet) AddPublicKeyPEM(kid string, pemBytes []byte) error {
	pub, err := cryptox.ParseEd25519PublicKey(pemBytes)
	if err != nil {
		return err
	}
	return k.AddPublicKey(kid, pub)
}

// AddSigner registers the public half of a Signer.
func (k *KeySet) AddSigner(s *Signer) error {
	return k.AddPublicKey(s.KID(), s.Public())
}

// Get returns the public key for the given kid.
func (k *KeySet) Get(kid string) (ed25519.PublicKey, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if pk, ok := k.pub[kid]; ok {
		return pk, nil
	}
	return nil, ErrNoKey
}

// KIDs returns the registered key ids in sorted order.
func (k *KeySet) KIDs() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]string, 0, len(k.pub))
	for kid := range k.pub {
		out = append(out, kid)
	}
	slices.Sort(out)
	return out
}

// IsReady returns true if the KeySet has at least one key loaded.
func (k *KeySet) IsReady() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.pub) > 0
}
