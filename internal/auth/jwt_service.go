package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultAccessTokenTTL is the validity of tokens issued on register and login.
const DefaultAccessTokenTTL = 24 * time.Hour

var (
	ErrTokenEmpty  = errors.New("jwt: token string is empty")
	ErrTokenIssuer = errors.New("jwt: invalid issuer")
	ErrTokenUser   = errors.New("jwt: missing user id claim")
)

// JWTConfig bundles the configuration required to build a JWTService.
// PreviousSecrets still verify tokens but never sign, so the secret can be
// rotated without logging everybody out.
type JWTConfig struct {
	Secret          string
	PreviousSecrets []string
	Issuer          string
	AccessTokenTTL  time.Duration
	Clock           func() time.Time
}

// Claims carries the user id under "id", the field the web client reads.
type Claims struct {
	UserID string `json:"id"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// JWTService issues and validates HS256 bearer tokens.
type JWTService struct {
	signingKID string
	keys       map[string][]byte
	issuer     string
	ttl        time.Duration
	now        func() time.Time
}

func NewJWTService(cfg JWTConfig) (*JWTService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt: secret must be provided")
	}

	svc := &JWTService{
		signingKID: keyID(cfg.Secret),
		keys:       map[string][]byte{keyID(cfg.Secret): []byte(cfg.Secret)},
		issuer:     cfg.Issuer,
		ttl:        cfg.AccessTokenTTL,
		now:        cfg.Clock,
	}
	for _, secret := range cfg.PreviousSecrets {
		if secret = strings.TrimSpace(secret); secret != "" {
			svc.keys[keyID(secret)] = []byte(secret)
		}
	}
	if svc.ttl <= 0 {
		svc.ttl = DefaultAccessTokenTTL
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	return svc, nil
}

// keyID names a secret in the token header without revealing it.
func keyID(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:4])
}

// TTL reports how long issued tokens stay valid.
func (s *JWTService) TTL() time.Duration { return s.ttl }

// GenerateAccessToken signs a token for userID with the current secret.
func (s *JWTService) GenerateAccessToken(userID, role string) (string, error) {
	if userID == "" {
		return "", errors.New("jwt: user id is required")
	}

	issuedAt := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.ttl)),
		},
	})
	token.Header["kid"] = s.signingKID

	signed, err := token.SignedString(s.keys[s.signingKID])
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}
	return signed, nil
}

// ValidateAccessToken parses tokenString and returns its claims. Tokens
// without a kid header are checked against the current secret.
func (s *JWTService) ValidateAccessToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrTokenEmpty
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)

	var claims Claims
	if _, err := parser.ParseWithClaims(tokenString, &claims, s.lookupKey); err != nil {
		return nil, fmt.Errorf("jwt: parse token: %w", err)
	}

	switch {
	case s.issuer != "" && claims.Issuer != s.issuer:
		return nil, ErrTokenIssuer
	case claims.UserID == "":
		return nil, ErrTokenUser
	}
	return &claims, nil
}

func (s *JWTService) lookupKey(token *jwt.Token) (interface{}, error) {
	kid, _ := token.Header["kid"].(string)
	if kid == "" {
		kid = s.signingKID
	}
	key, ok := s.keys[kid]
	if !ok {
		return nil, jwt.ErrTokenSignatureInvalid
	}
	return key, nil
}
