package crypto

import (
	"crypto/sha256"
	"errors"
	"fmt"
)

const sealerSaltLength = 16

// Sealer encrypts credential material, such as API secrets, with an AES
// key derived from the configured master secret via Argon2id. Sealed
// values can be recovered, unlike password hashes, which is required to
// verify API secrets presented on requests.
type Sealer struct {
	key []byte
}

type sealerConfig struct {
	params Argon2Parameters
	salt   []byte
}

// SealerOption configures key derivation for a Sealer.
type SealerOption func(*sealerConfig)

// WithSealerSalt overrides the salt used for Argon2 key derivation.
func WithSealerSalt(salt []byte) SealerOption {
	cp := make([]byte, len(salt))
	copy(cp, salt)
	return func(cfg *sealerConfig) {
		cfg.salt = cp
	}
}

// WithSealerParams overrides the Argon2 parameters used during derivation.
func WithSealerParams(params Argon2Parameters) SealerOption {
	return func(cfg *sealerConfig) {
		cfg.params = params
	}
}

// NewSealer derives the sealing key from the master secret. The salt
// defaults to a digest of the secret itself so a fixed configuration
// always derives the same key across restarts.
func NewSealer(masterSecret []byte, opts ...SealerOption) (*Sealer, error) {
	if len(masterSecret) == 0 {
		return nil, errors.New("sealer: master secret is required")
	}

	cfg := sealerConfig{params: DefaultArgon2Params()}
	for _, opt := range opts {
		opt(&cfg)
	}

	if len(cfg.salt) == 0 {
		sum := sha256.Sum256(masterSecret)
		cfg.salt = sum[:sealerSaltLength]
	} else if len(cfg.salt) < sealerSaltLength {
		return nil, fmt.Errorf("sealer: salt must be at least %d bytes (got %d)", sealerSaltLength, len(cfg.salt))
	}

	key, err := DeriveKeyArgon2id(masterSecret, cfg.salt, cfg.params)
	if err != nil {
		return nil, fmt.Errorf("sealer: derive key: %w", err)
	}

	return &Sealer{key: key}, nil
}

// Seal encrypts the plaintext and returns a base64 payload.
func (s *Sealer) Seal(plaintext string) (string, error) {
	if s == nil || len(s.key) == 0 {
		return "", errors.New("sealer: key is not initialised")
	}
	return Encrypt([]byte(plaintext), s.key)
}

// Open decrypts a payload produced by Seal.
func (s *Sealer) Open(sealed string) (string, error) {
	if s == nil || len(s.key) == 0 {
		return "", errors.New("sealer: key is not initialised")
	}
	plain, err := Decrypt(sealed, s.key)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
