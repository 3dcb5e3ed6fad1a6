package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// ErrInvalidCiphertext is returned when an encrypted identifier cannot be
// decoded or authenticated.
var ErrInvalidCiphertext = errors.New("cryptox: invalid encrypted identifier")

// IDCipher encrypts identifiers that are placed into PSU-facing redirect
// links, so the raw consent id never appears in a browser URL.
//
// Output format is base64url([12-byte nonce][ciphertext][16-byte tag]).
type IDCipher struct {
	aead cipher.AEAD
}

// NewIDCipher derives an AES-256-GCM key from keyMaterial. Empty key
// material yields an ephemeral random key, which only suits development
// since links stop decrypting after a restart.
func NewIDCipher(keyMaterial []byte) (*IDCipher, error) {
	if len(keyMaterial) == 0 {
		keyMaterial = make([]byte, 32)
		if _, err := rand.Read(keyMaterial); err != nil {
			return nil, fmt.Errorf("cryptox: generate ephemeral key: %w", err)
		}
	}

	key := sha256.Sum256(keyMaterial)
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("cryptox: create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cryptox: create GCM: %w", err)
	}

	return &IDCipher{aead: aead}, nil
}

// Encrypt seals id with a random nonce.
func (c *IDCipher) Encrypt(id string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("cryptox: generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(id), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (c *IDCipher) Decrypt(token string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", ErrInvalidCiphertext
	}

	nonceSize := c.aead.NonceSize()
	if len(raw) < nonceSize {
		return "", ErrInvalidCiphertext
	}

	plain, err := c.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", ErrInvalidCiphertext
	}

	return string(plain), nil
}
