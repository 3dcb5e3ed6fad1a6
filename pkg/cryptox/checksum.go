package cryptox

import (
	"encoding/hex"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
)

// checksumEncMode encodes with Core Deterministic Encoding (RFC 8949 §4.2)
// so the same logical value always hashes to the same digest.
var checksumEncMode cbor.EncMode

// checksumKey domain-separates consent checksums from any other BLAKE3 use.
var checksumKey = [32]byte{
	'a', 'i', 's', 'c', 'o', 'n', 's', 'e', 'n', 't', '.', 'c', 'h', 'e', 'c', 'k',
	's', 'u', 'm', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

func init() {
	var err error
	checksumEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("cryptox: CBOR encoder initialization failed: " + err.Error())
	}
}

// Checksum returns the hex BLAKE3 keyed digest of the deterministic CBOR
// encoding of v. Struct field order and map iteration order do not affect
// the result.
func Checksum(v any) (string, error) {
	data, err := checksumEncMode.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("cryptox: encode checksum input: %w", err)
	}

	hasher, err := blake3.NewKeyed(checksumKey[:])
	if err != nil {
		return "", fmt.Errorf("cryptox: init blake3: %w", err)
	}
	_, _ = hasher.Write(data)

	return hex.EncodeToString(hasher.Sum(nil)), nil
}
