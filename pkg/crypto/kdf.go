package crypto

import (
	"fmt"

	"golang.org/x/crypto/argon2"
)

// KeyParams are the Argon2id cost factors used to stretch operator supplied
// secrets into AES keys.
type KeyParams struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	Length  uint32
}

// DefaultKeyParams is sized for a one-off derivation at startup.
func DefaultKeyParams() KeyParams {
	return KeyParams{Time: 1, Memory: 32 * 1024, Threads: 2, Length: 32}
}

func (p KeyParams) validate() error {
	switch {
	case p.Time == 0:
		return fmt.Errorf("kdf: time cost must be greater than zero")
	case p.Threads == 0:
		return fmt.Errorf("kdf: parallelism must be greater than zero")
	case p.Memory < 8*uint32(p.Threads):
		return fmt.Errorf("kdf: memory cost must be at least 8 * threads")
	}
	switch p.Length {
	case 16, 24, 32:
		return nil
	default:
		return fmt.Errorf("kdf: key length must be 16, 24, or 32 bytes (got %d)", p.Length)
	}
}

// DeriveKey stretches secret with Argon2id. salt must be at least 16 bytes.
func DeriveKey(secret, salt []byte, params KeyParams) ([]byte, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("kdf: secret is required")
	}
	if len(salt) < 16 {
		return nil, fmt.Errorf("kdf: salt must be at least 16 bytes (got %d)", len(salt))
	}
	if err := params.validate(); err != nil {
		return nil, err
	}
	return argon2.IDKey(secret, salt, params.Time, params.Memory, params.Threads, params.Length), nil
}
