package app

import (
	"strings"
	"time"

	"github.com/saudema/saudema/internal/cache"
	"github.com/saudema/saudema/internal/municipios"
	"github.com/saudema/saudema/internal/places"
)

// RedisClientConfig converts the application cache configuration into the cache package representation.
func (c CacheConfig) RedisClientConfig() cache.RedisConfig {
	return cache.RedisConfig{
		Address:  strings.TrimSpace(c.Redis.Address),
		Username: strings.TrimSpace(c.Redis.Username),
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		TLS:      c.Redis.TLS,
		Timeout:  c.Redis.Timeout,
	}
}

// IBGEConfig converts the municipality source settings.
func (c MunicipiosConfig) IBGEConfig() municipios.IBGEConfig {
	url := strings.TrimSpace(c.SourceURL)
	if url == "" {
		url = municipios.DefaultIBGEURL
	}
	return municipios.IBGEConfig{URL: url, Timeout: c.Timeout}
}

// CacheTTL returns the municipality list TTL.
func (c MunicipiosConfig) CacheTTL() time.Duration {
	if c.TTL <= 0 {
		return municipios.DefaultTTL
	}
	return c.TTL
}

// Configured reports whether a Places API key is present.
func (c PlacesConfig) Configured() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

// ClientConfig converts the Places settings for the HTTP client.
func (c PlacesConfig) ClientConfig() places.ClientConfig {
	return places.ClientConfig{
		APIKey:            strings.TrimSpace(c.APIKey),
		Endpoint:          strings.TrimSpace(c.Endpoint),
		LanguageCode:      c.LanguageCode,
		Timeout:           c.Timeout,
		RequestsPerSecond: c.RequestsPerSecond,
		Burst:             c.Burst,
	}
}

// ServiceConfig converts the Places settings for the search fan-out.
func (c PlacesConfig) ServiceConfig() places.ServiceConfig {
	return places.ServiceConfig{
		StateName:      c.StateName,
		MaxConcurrency: c.MaxConcurrency,
	}
}
