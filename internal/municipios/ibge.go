package municipios

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/saudema/saudema/pkg/metrics"
)

// DefaultIBGEURL lists the municipalities of UF 21 (Maranhão).
const DefaultIBGEURL = "https://servicodados.ibge.gov.br/api/v1/localidades/estados/21/municipios"

// IBGEConfig configures IBGEClient.
type IBGEConfig struct {
	URL     string
	Timeout time.Duration
	// HTTPClient overrides the default client; mostly for tests.
	HTTPClient *http.Client
}

// IBGEClient fetches municipality names from the IBGE localidades API.
type IBGEClient struct {
	url  string
	http *http.Client
}

type ibgeMunicipio struct {
	ID   int    `json:"id"`
	Nome string `json:"nome"`
}

// NewIBGEClient builds a Fetcher against cfg.URL (DefaultIBGEURL when empty).
func NewIBGEClient(cfg IBGEConfig) *IBGEClient {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		url = DefaultIBGEURL
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &IBGEClient{url: url, http: client}
}

// Fetch implements Fetcher. Every failure wraps ErrUpstreamUnavailable.
func (c *IBGEClient) Fetch(ctx context.Context) (names []string, err error) {
	start := time.Now()
	status := "error"
	defer func() {
		metrics.UpstreamLatency.WithLabelValues("ibge", status).Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrUpstreamUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()
	status = strconv.Itoa(resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("%w: ibge responded %s", ErrUpstreamUnavailable, resp.Status)
	}

	var payload []ibgeMunicipio
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode ibge payload: %w", ErrUpstreamUnavailable, err)
	}

	names = make([]string, 0, len(payload))
	for _, m := range payload {
		if name := strings.TrimSpace(m.Nome); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}
