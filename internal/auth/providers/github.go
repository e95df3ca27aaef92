package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/saudema/saudema/pkg/metrics"
)

// GitHubAPIURL is the REST API root used for profile lookups.
const GitHubAPIURL = "https://api.github.com"

// GitHubConfig configures the GitHub provider. Endpoint and APIURL default
// to github.com.
type GitHubConfig struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Scopes       []string
	Endpoint     oauth2.Endpoint
	APIURL       string
	HTTPClient   *http.Client
	Timeout      time.Duration
}

type githubProvider struct {
	oauthConfig *oauth2.Config
	apiURL      string
	httpClient  *http.Client
	timeout     time.Duration
}

type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func NewGitHubProvider(cfg GitHubConfig) (Provider, error) {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, errors.New("github provider: client id is required")
	}
	if strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, errors.New("github provider: client secret is required")
	}
	if strings.TrimSpace(cfg.CallbackURL) == "" {
		return nil, errors.New("github provider: callback url is required")
	}

	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" || endpoint.TokenURL == "" {
		endpoint = github.Endpoint
	}
	apiURL := strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	if apiURL == "" {
		apiURL = GitHubAPIURL
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"user:email"}
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &githubProvider{
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  cfg.CallbackURL,
			Scopes:       scopes,
		},
		apiURL:     apiURL,
		httpClient: httpClient,
		timeout:    timeout,
	}, nil
}

func (p *githubProvider) Metadata() Metadata {
	return Metadata{Type: "github", DisplayName: "GitHub", LoginPath: "/api/auth/github", Order: 20}
}

func (p *githubProvider) AuthCodeURL(req BeginRequest) (string, error) {
	if strings.TrimSpace(req.State) == "" {
		return "", errors.New("github provider: state is required")
	}
	return p.oauthConfig.AuthCodeURL(req.State), nil
}

func (p *githubProvider) Exchange(ctx context.Context, req CallbackRequest) (*Identity, error) {
	if req.Code == "" {
		return nil, errors.New("github provider: authorization code missing")
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	token, err := p.oauthConfig.Exchange(ctx, req.Code)
	if err != nil {
		return nil, fmt.Errorf("github provider: exchange failed: %w", err)
	}
	client := p.oauthConfig.Client(ctx, token)

	var user githubUser
	if err := p.getJSON(ctx, client, "/user", &user); err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, errors.New("github provider: profile without id")
	}

	email, verified := strings.TrimSpace(user.Email), false
	var emails []githubEmail
	if err := p.getJSON(ctx, client, "/user/emails", &emails); err == nil {
		if primary, ok := primaryEmail(emails); ok {
			email, verified = primary.Email, primary.Verified
		}
	}

	return &Identity{
		Provider:      "github",
		Subject:       strconv.FormatInt(user.ID, 10),
		Email:         strings.ToLower(email),
		EmailVerified: verified,
		Login:         user.Login,
		DisplayName:   strings.TrimSpace(user.Name),
		AvatarURL:     user.AvatarURL,
	}, nil
}

func (p *githubProvider) getJSON(ctx context.Context, client *http.Client, path string, out any) error {
	start := time.Now()
	status := "error"
	defer func() {
		metrics.UpstreamLatency.WithLabelValues("github", status).Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiURL+path, nil)
	if err != nil {
		return fmt.Errorf("github provider: build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("github provider: GET %s: %w", path, err)
	}
	defer resp.Body.Close()
	status = strconv.Itoa(resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("github provider: GET %s: %s", path, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("github provider: decode %s: %w", path, err)
	}
	return nil
}

// primaryEmail prefers the primary verified address, then any verified one.
func primaryEmail(emails []githubEmail) (githubEmail, bool) {
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e, true
		}
	}
	for _, e := range emails {
		if e.Verified {
			return e, true
		}
	}
	return githubEmail{}, false
}
