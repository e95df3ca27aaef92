package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubProvider struct{ meta Metadata }

func (s stubProvider) Metadata() Metadata { return s.meta }
func (s stubProvider) AuthCodeURL(BeginRequest) (string, error) { return "https://example.com", nil }
func (s stubProvider) Exchange(context.Context, CallbackRequest) (*Identity, error) {
	return &Identity{Provider: s.meta.Type}, nil
}

func TestRegistryKeepsDisplayOrder(t *testing.T) {
	reg := NewRegistry()
	for _, meta := range []Metadata{
		{Type: "GitHub", DisplayName: "GitHub", Order: 20},
		{Type: "gov-br", DisplayName: " gov.br "},
		{Type: "google", DisplayName: "Google", Order: 10},
		{Type: "facebook", DisplayName: "Facebook", Order: 20},
	} {
		require.NoError(t, reg.Register(stubProvider{meta}))
	}

	var types []string
	for _, meta := range reg.Metadata() {
		types = append(types, meta.Type)
	}
	require.Equal(t, []string{"google", "facebook", "github", "gov-br"}, types)
	require.Equal(t, "gov.br", reg.Metadata()[3].DisplayName)
	require.Equal(t, defaultProviderOrder, reg.Metadata()[3].Order)
}

func TestRegistryGetIsCaseInsensitive(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(stubProvider{Metadata{Type: "GitHub", DisplayName: "GitHub"}}))

	p, ok := reg.Get(" GITHUB ")
	require.True(t, ok)
	require.Equal(t, "GitHub", p.Metadata().DisplayName)

	_, ok = reg.Get("ldap")
	require.False(t, ok)
}

func TestRegistryRejectsDuplicateAndInvalid(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(stubProvider{Metadata{Type: "google"}}))
	require.ErrorIs(t, reg.Register(stubProvider{Metadata{Type: "Google"}}), ErrProviderExists)
	require.ErrorIs(t, reg.Register(stubProvider{}), errMissingType)
	require.ErrorIs(t, reg.Register(nil), errNilProvider)
	require.Len(t, reg.Metadata(), 1)
}
