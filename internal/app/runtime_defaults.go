package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/saudema/saudema/pkg/crypto"
)

const (
	jwtSecretBytes     = 48
	sessionSecretBytes = 32
)

// ephemeralSecret is a secret that may be generated at startup when the
// operator left it empty.
type ephemeralSecret struct {
	key      string
	target   *string
	generate func() (string, error)
}

// ApplyRuntimeDefaults fills the signing secrets and the client URL when the
// configuration omits them. The returned map names the generated keys so they
// can be logged without their values. Generated secrets die with the process:
// a restart invalidates every issued token and pending social login.
func ApplyRuntimeDefaults(cfg *Config) (map[string]bool, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	secrets := []ephemeralSecret{
		{"auth.jwt.secret", &cfg.Auth.JWT.Secret, func() (string, error) {
			return crypto.GenerateToken(jwtSecretBytes)
		}},
		// hex so AESKey accepts it as a 256-bit state key
		{"auth.session.secret", &cfg.Auth.Session.Secret, func() (string, error) {
			return crypto.GenerateHexToken(sessionSecretBytes)
		}},
	}

	generated := make(map[string]bool)
	for _, secret := range secrets {
		if strings.TrimSpace(*secret.target) != "" {
			continue
		}
		value, err := secret.generate()
		if err != nil {
			return nil, fmt.Errorf("generate %s: %w", secret.key, err)
		}
		*secret.target = value
		generated[secret.key] = true
	}

	if strings.TrimSpace(cfg.Server.ClientURL) == "" && len(cfg.Server.CORS.AllowedOrigins) > 0 {
		cfg.Server.ClientURL = strings.TrimRight(cfg.Server.CORS.AllowedOrigins[0], "/")
	}
	return generated, nil
}
