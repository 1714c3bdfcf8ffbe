package adaptive

import (
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// argon2id parameters. Checkpoint encryption derives a key once per run,
// so the cost parameters favor resistance over startup latency.
const (
	kdfTime    = 3
	kdfMemory  = 64 * 1024 // KiB
	kdfThreads = 4
	kdfKeyLen  = 32
)

// kdfSalt is a fixed application salt. The passphrase protects data at
// rest against offline reads of the checkpoint directory; per-file salts
// would prevent deriving the key before the file is open.
var kdfSalt = []byte("openmc-checkpoint-v1")

// DeriveKey derives a 32-byte AEAD key from an operator passphrase using
// argon2id.
func DeriveKey(passphrase string) ([]byte, error) {
	if passphrase == "" {
		return nil, errors.New("adaptive: empty passphrase")
	}
	return argon2.IDKey([]byte(passphrase), kdfSalt, kdfTime, kdfMemory, kdfThreads, kdfKeyLen), nil
}

// ParseKey decodes a hex-encoded raw key and validates its size.
func ParseKey(hexKey string) ([]byte, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("adaptive: decode key: %w", err)
	}
	switch len(key) {
	case 16, 24, 32:
		return key, nil
	default:
		return nil, fmt.Errorf("adaptive: key must be 16, 24, or 32 bytes, got %d", len(key))
	}
}
