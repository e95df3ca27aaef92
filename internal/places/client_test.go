package places

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(ClientConfig{APIKey: "  "})
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestClientSearchText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "chave-teste", r.Header.Get("X-Goog-Api-Key"))
		require.Equal(t, FieldMask, r.Header.Get("X-Goog-FieldMask"))
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "Hospital em Caxias, Maranhão", body.TextQuery)
		require.Equal(t, "pt-BR", body.LanguageCode)

		_, _ = w.Write([]byte(`{"places":[{
			"id":"ChIJ123",
			"displayName":{"text":"Hospital Geral","languageCode":"pt-BR"},
			"formattedAddress":"Rua Principal, Caxias - MA",
			"nationalPhoneNumber":"(99) 3521-0000"
		}]}`))
	}))
	defer srv.Close()

	client, err := NewClient(ClientConfig{APIKey: "chave-teste", Endpoint: srv.URL})
	require.NoError(t, err)

	got, err := client.SearchText(context.Background(), "Hospital em Caxias, Maranhão")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "ChIJ123", got[0].ID)
	require.Equal(t, "Hospital Geral", got[0].DisplayName.Text)
	require.Equal(t, "(99) 3521-0000", got[0].NationalPhoneNumber)
}

func TestClientSearchTextEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client, err := NewClient(ClientConfig{APIKey: "k", Endpoint: srv.URL})
	require.NoError(t, err)

	got, err := client.SearchText(context.Background(), "UBS em Codó, Maranhão")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestClientSearchTextNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"status":"PERMISSION_DENIED"}}`, http.StatusForbidden)
	}))
	defer srv.Close()

	client, err := NewClient(ClientConfig{APIKey: "k", Endpoint: srv.URL})
	require.NoError(t, err)

	_, err = client.SearchText(context.Background(), "UBS em Codó, Maranhão")
	require.ErrorIs(t, err, ErrUpstream)
	require.Contains(t, err.Error(), "403")
}

func TestClientLimiterHonoursContext(t *testing.T) {
	client, err := NewClient(ClientConfig{APIKey: "k", Endpoint: "http://127.0.0.1:1", RequestsPerSecond: 0.001, Burst: 1})
	require.NoError(t, err)

	// consume the single token
	require.True(t, client.limiter.Allow())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = client.SearchText(ctx, "x")
	require.ErrorIs(t, err, ErrUpstream)
}
