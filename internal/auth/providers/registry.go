package providers

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

const defaultProviderOrder = 100

var (
	// ErrProviderExists is returned when a provider type is registered twice.
	ErrProviderExists = errors.New("provider registry: provider already registered")
	errNilProvider    = errors.New("provider registry: provider is nil")
	errMissingType    = errors.New("provider registry: metadata type is required")
)

type registration struct {
	meta     Metadata
	provider Provider
}

// Registry holds the enabled redirect providers. Registrations are kept in
// display order: Order ascending, then DisplayName.
type Registry struct {
	mu      sync.RWMutex
	entries []registration
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds p under its metadata type.
func (r *Registry) Register(p Provider) error {
	if p == nil {
		return errNilProvider
	}
	entry := registration{meta: normaliseMetadata(p.Metadata()), provider: p}
	if entry.meta.Type == "" {
		return errMissingType
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.indexOf(entry.meta.Type) >= 0 {
		return fmt.Errorf("%w: %s", ErrProviderExists, entry.meta.Type)
	}
	at, _ := slices.BinarySearchFunc(r.entries, entry, compareRegistrations)
	r.entries = slices.Insert(r.entries, at, entry)
	return nil
}

// Get looks a provider up by type, case-insensitively.
func (r *Registry) Get(providerType string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := r.indexOf(strings.ToLower(strings.TrimSpace(providerType)))
	if i < 0 {
		return nil, false
	}
	return r.entries[i].provider, true
}

// Metadata lists registered providers in display order.
func (r *Registry) Metadata() []Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := make([]Metadata, len(r.entries))
	for i, entry := range r.entries {
		items[i] = entry.meta
	}
	return items
}

func (r *Registry) indexOf(providerType string) int {
	return slices.IndexFunc(r.entries, func(e registration) bool { return e.meta.Type == providerType })
}

func compareRegistrations(a, b registration) int {
	return cmp.Or(
		cmp.Compare(a.meta.Order, b.meta.Order),
		cmp.Compare(a.meta.DisplayName, b.meta.DisplayName),
	)
}

func normaliseMetadata(meta Metadata) Metadata {
	meta.Type = strings.ToLower(strings.TrimSpace(meta.Type))
	meta.DisplayName = strings.TrimSpace(meta.DisplayName)
	if meta.Order == 0 {
		meta.Order = defaultProviderOrder
	}
	return meta
}
