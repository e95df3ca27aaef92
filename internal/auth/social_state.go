package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/saudema/saudema/pkg/crypto"
)

var (
	ErrStateExpired = errors.New("social state: expired")
	ErrStateInvalid = errors.New("social state: invalid")
)

var (
	// stateSalt binds keys derived for the state codec to this use.
	stateSalt = []byte("saudema.oauth.state")
	// stateAAD authenticates the purpose, so ciphertext sealed elsewhere
	// with the same key is rejected.
	stateAAD = []byte("saudema.oauth.state/v1")
)

// StatePayload travels through the provider inside the OAuth state parameter.
type StatePayload struct {
	Provider string    `json:"p"`
	Nonce    string    `json:"n,omitempty"`
	PKCE     string    `json:"k,omitempty"`
	IssuedAt time.Time `json:"iat"`
}

// StateCodec seals StatePayload values with AES-GCM and enforces a lifetime.
type StateCodec struct {
	sealer *crypto.Sealer
	ttl    time.Duration
	now    func() time.Time
}

// NewStateCodec takes a raw 16, 24 or 32 byte key.
func NewStateCodec(key []byte, ttl time.Duration, now func() time.Time) (*StateCodec, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("social state: key must be 16, 24, or 32 bytes, got %d", len(key))
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if now == nil {
		now = time.Now
	}
	sealer, err := crypto.NewSealer(key)
	if err != nil {
		return nil, fmt.Errorf("social state: %w", err)
	}
	return &StateCodec{sealer: sealer, ttl: ttl, now: now}, nil
}

// NewStateCodecFromSecret derives the AES key from an arbitrary secret.
func NewStateCodecFromSecret(secret string, ttl time.Duration, now func() time.Time) (*StateCodec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("social state: secret is required")
	}
	key, err := crypto.DeriveKey([]byte(secret), stateSalt, crypto.DefaultKeyParams())
	if err != nil {
		return nil, fmt.Errorf("social state: derive key: %w", err)
	}
	return NewStateCodec(key, ttl, now)
}

func (c *StateCodec) Encode(payload StatePayload) (string, error) {
	payload.Provider = strings.ToLower(strings.TrimSpace(payload.Provider))
	if payload.Provider == "" {
		return "", errors.New("social state: provider is required")
	}
	payload.IssuedAt = c.now().UTC()

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("social state: marshal payload: %w", err)
	}
	sealed, err := c.sealer.Seal(raw, stateAAD)
	if err != nil {
		return "", fmt.Errorf("social state: encrypt payload: %w", err)
	}
	return sealed, nil
}

func (c *StateCodec) Decode(token string) (StatePayload, error) {
	var payload StatePayload
	if strings.TrimSpace(token) == "" {
		return payload, ErrStateInvalid
	}

	raw, err := c.sealer.Open(token, stateAAD)
	if err != nil {
		return payload, ErrStateInvalid
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return payload, ErrStateInvalid
	}
	if payload.Provider == "" || payload.IssuedAt.IsZero() {
		return payload, ErrStateInvalid
	}
	if c.now().UTC().After(payload.IssuedAt.Add(c.ttl)) {
		return payload, ErrStateExpired
	}
	return payload, nil
}

// PKCEPair is an S256 verifier/challenge pair.
type PKCEPair struct {
	Verifier  string
	Challenge string
}

func GeneratePKCE() (PKCEPair, error) {
	verifier, err := crypto.GenerateToken(48)
	if err != nil {
		return PKCEPair{}, fmt.Errorf("pkce: generate verifier: %w", err)
	}
	sum := sha256.Sum256([]byte(verifier))
	return PKCEPair{
		Verifier:  verifier,
		Challenge: base64.RawURLEncoding.EncodeToString(sum[:]),
	}, nil
}
