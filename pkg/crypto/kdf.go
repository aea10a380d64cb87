package crypto

import (
	"fmt"

	"golang.org/x/crypto/argon2"
)

const minKDFSaltLength = 16

// Argon2Parameters holds the cost factors for Argon2id key derivation.
type Argon2Parameters struct {
	Time      uint32 // iterations
	Memory    uint32 // kibibytes
	Threads   uint8
	KeyLength uint32 // derived key size in bytes
}

// DefaultArgon2Params returns the cost factors used for sealing keys:
// 2 passes over 64 MiB with 4 lanes, producing a 32-byte key.
func DefaultArgon2Params() Argon2Parameters {
	return Argon2Parameters{
		Time:      2,
		Memory:    64 * 1024,
		Threads:   4,
		KeyLength: 32,
	}
}

// Validate rejects cost factors Argon2id cannot run with, plus key
// lengths AES cannot consume.
func (p Argon2Parameters) Validate() error {
	switch {
	case p.Time == 0:
		return fmt.Errorf("argon2: time cost must be greater than zero")
	case p.Threads == 0:
		return fmt.Errorf("argon2: parallelism must be greater than zero")
	case p.Memory < 8*uint32(p.Threads):
		return fmt.Errorf("argon2: memory cost must be at least 8 * threads")
	case p.KeyLength == 0:
		return fmt.Errorf("argon2: key length must be greater than zero")
	}

	switch p.KeyLength {
	case 16, 24, 32:
		return nil
	default:
		return fmt.Errorf("argon2: key length must be 16, 24, or 32 bytes (got %d)", p.KeyLength)
	}
}

// DeriveKeyArgon2id stretches a secret into a fixed-length key.
// Derivation is deterministic for a given secret, salt, and parameter
// set.
func DeriveKeyArgon2id(secret, salt []byte, params Argon2Parameters) ([]byte, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("argon2: secret is required")
	}
	if len(salt) < minKDFSaltLength {
		return nil, fmt.Errorf("argon2: salt must be at least %d bytes (got %d)", minKDFSaltLength, len(salt))
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return argon2.IDKey(secret, salt, params.Time, params.Memory, params.Threads, params.KeyLength), nil
}
