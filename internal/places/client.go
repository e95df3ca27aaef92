// Package places searches Google Places for health units per municipality and
// keeps the results so later searches can fall back to them.
package places

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/saudema/saudema/internal/models"
	"github.com/saudema/saudema/pkg/metrics"
)

const (
	// DefaultEndpoint is the Places API (New) text search endpoint.
	DefaultEndpoint = "https://places.googleapis.com/v1/places:searchText"
	// FieldMask selects the fields returned for every place.
	FieldMask = "places.displayName,places.formattedAddress,places.nationalPhoneNumber,places.id"
)

var (
	// ErrNotConfigured is returned when no API key was provided.
	ErrNotConfigured = errors.New("places: api key not configured")
	// ErrUpstream wraps non-2xx answers and transport failures.
	ErrUpstream = errors.New("places: upstream request failed")
)

// Place is a single health unit as served to API clients.
type Place struct {
	ID                  string                  `json:"id"`
	DisplayName         models.PlaceDisplayName `json:"displayName"`
	FormattedAddress    string                  `json:"formattedAddress,omitempty"`
	NationalPhoneNumber string                  `json:"nationalPhoneNumber,omitempty"`
}

// Searcher runs one text search.
type Searcher interface {
	SearchText(ctx context.Context, query string) ([]Place, error)
}

// ClientConfig configures Client.
type ClientConfig struct {
	APIKey            string
	Endpoint          string
	LanguageCode      string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	HTTPClient        *http.Client
}

// Client calls places:searchText. Requests are throttled by a token bucket
// shared by every caller of the same Client.
type Client struct {
	apiKey   string
	endpoint string
	language string
	http     *http.Client
	limiter  *rate.Limiter
}

type searchRequest struct {
	TextQuery    string `json:"textQuery"`
	LanguageCode string `json:"languageCode,omitempty"`
}

type searchResponse struct {
	Places []Place `json:"places"`
}

// NewClient returns ErrNotConfigured when cfg.APIKey is blank.
func NewClient(cfg ClientConfig) (*Client, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, ErrNotConfigured
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	language := strings.TrimSpace(cfg.LanguageCode)
	if language == "" {
		language = "pt-BR"
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		apiKey:   key,
		endpoint: endpoint,
		language: language,
		http:     httpClient,
		limiter:  rate.NewLimiter(limit, burst),
	}, nil
}

// SearchText implements Searcher.
func (c *Client) SearchText(ctx context.Context, query string) ([]Place, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	start := time.Now()
	status := "error"
	defer func() {
		metrics.UpstreamLatency.WithLabelValues("google_places", status).Observe(time.Since(start).Seconds())
	}()

	body, err := json.Marshal(searchRequest{TextQuery: query, LanguageCode: c.language})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrUpstream, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", FieldMask)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	defer resp.Body.Close()
	status = strconv.Itoa(resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", ErrUpstream, err)
	}
	return payload.Places, nil
}
