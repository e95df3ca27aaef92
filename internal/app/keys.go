package app

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
)

// KeyEncoding names how a configured secret was decoded.
type KeyEncoding string

const (
	KeyHex    KeyEncoding = "hex"
	KeyBase64 KeyEncoding = "base64"
	// KeyRaw means the secret is used as the literal bytes of the string.
	KeyRaw KeyEncoding = "raw"
)

// ErrEmptyKey is returned for blank secrets.
var ErrEmptyKey = errors.New("key value is empty")

// Generated secrets are hex, so hex wins when a value is valid in both
// alphabets: a base64 key spelled only with hex digits is read as hex and
// yields different bytes. The session_state_key audit check reports the
// encoding the session secret was read with, so a misread key shows up at
// startup.
var keyDecoders = []struct {
	encoding KeyEncoding
	decode   func(string) ([]byte, error)
}{
	{KeyHex, hex.DecodeString},
	{KeyBase64, base64.StdEncoding.DecodeString},
	{KeyBase64, base64.RawStdEncoding.DecodeString},
}

// ParseKey decodes a secret and reports the encoding that matched.
func ParseKey(value string) ([]byte, KeyEncoding, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil, "", ErrEmptyKey
	}
	for _, d := range keyDecoders {
		if decoded, err := d.decode(v); err == nil && len(decoded) > 0 {
			return decoded, d.encoding, nil
		}
	}
	return []byte(v), KeyRaw, nil
}

// DecodeKey is ParseKey without the encoding.
func DecodeKey(value string) ([]byte, error) {
	key, _, err := ParseKey(value)
	return key, err
}

// AESKey returns the decoded secret when it is already a valid AES key
// (16, 24 or 32 bytes). Other secrets need a key derivation step.
func AESKey(value string) ([]byte, bool) {
	key, encoding, err := ParseKey(value)
	if err != nil || encoding == KeyRaw {
		return nil, false
	}
	switch len(key) {
	case 16, 24, 32:
		return key, true
	}
	return nil, false
}
