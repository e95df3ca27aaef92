package places

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saudema/saudema/internal/models"
	"github.com/saudema/saudema/pkg/metrics"
)

// AllMunicipios asks Search to cover every municipality of the state.
const AllMunicipios = "todos"

var (
	ErrCategoryRequired      = errors.New("places: category is required")
	ErrMunicipiosUnavailable = errors.New("places: municipio list unavailable")
)

// MunicipioLister supplies the municipalities searched when none is given.
type MunicipioLister interface {
	List(ctx context.Context) ([]string, error)
}

// ServiceConfig tunes Service.
type ServiceConfig struct {
	StateName      string
	MaxConcurrency int
}

// Results maps a municipality to the health units found there.
// Municipalities with nothing to show are left out.
type Results map[string][]Place

// Service fans a category search out over municipalities.
type Service struct {
	searcher   Searcher
	store      *Store
	municipios MunicipioLister
	state      string
	limit      int
	now        func() time.Time
	log        *zap.Logger
}

// NewService wires a Service. searcher may be nil, in which case Search
// reports ErrNotConfigured.
func NewService(searcher Searcher, store *Store, municipios MunicipioLister, cfg ServiceConfig, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	state := strings.TrimSpace(cfg.StateName)
	if state == "" {
		state = "Maranhão"
	}
	limit := cfg.MaxConcurrency
	if limit <= 0 {
		limit = 8
	}
	return &Service{
		searcher:   searcher,
		store:      store,
		municipios: municipios,
		state:      state,
		limit:      limit,
		now:        time.Now,
		log:        log,
	}
}

// Query builds the text query sent for one municipality.
func (s *Service) Query(category, municipio string) string {
	return fmt.Sprintf("%s em %s, %s", category, municipio, s.state)
}

// Search looks up category in municipio, or in every municipality when
// municipio is blank or "todos". A failing upstream search falls back to the
// places stored by earlier searches.
func (s *Service) Search(ctx context.Context, category, municipio string) (Results, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		return nil, ErrCategoryRequired
	}
	if s.searcher == nil {
		return nil, ErrNotConfigured
	}

	municipio = strings.TrimSpace(municipio)
	targets := []string{municipio}
	if municipio == "" || municipio == AllMunicipios {
		names, err := s.municipios.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMunicipiosUnavailable, err)
		}
		targets = names
	}

	var (
		mu        sync.Mutex
		results   = make(Results, len(targets))
		total     int
		fallbacks int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.limit)
	for _, muni := range targets {
		g.Go(func() error {
			found, fromStore := s.searchOne(gctx, category, muni)
			if len(found) == 0 {
				return nil
			}
			mu.Lock()
			results[muni] = found
			total += len(found)
			if fromStore {
				fallbacks++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	s.record(ctx, &models.SearchEvent{
		Category:           category,
		Municipio:          municipioLabel(municipio),
		MunicipiosSearched: len(targets),
		ResultCount:        total,
		FallbackCount:      fallbacks,
		RequestedAt:        s.now().UTC(),
	})

	return results, nil
}

// searchOne never fails: upstream errors degrade to stored places and store
// errors to an empty answer.
func (s *Service) searchOne(ctx context.Context, category, municipio string) ([]Place, bool) {
	log := s.log.With(zap.String("municipio", municipio), zap.String("category", category))

	found, err := s.searcher.SearchText(ctx, s.Query(category, municipio))
	if err != nil {
		log.Warn("places search failed, trying stored places", zap.Error(err))
		stored, ferr := s.findStored(ctx, municipio, category)
		if ferr != nil {
			metrics.PlacesSearches.WithLabelValues("error").Inc()
			log.Error("stored places lookup failed", zap.Error(ferr))
			return nil, false
		}
		if len(stored) == 0 {
			metrics.PlacesSearches.WithLabelValues("error").Inc()
			return nil, false
		}
		metrics.PlacesSearches.WithLabelValues("fallback").Inc()
		log.Info("serving stored places", zap.Int("count", len(stored)))
		return stored, true
	}

	metrics.PlacesSearches.WithLabelValues("ok").Inc()
	if s.store != nil {
		for _, p := range found {
			if p.ID == "" {
				continue
			}
			if err := s.store.Upsert(ctx, municipio, category, p); err != nil {
				log.Error("failed to store place", zap.String("place_id", p.ID), zap.Error(err))
			}
		}
	}
	return found, false
}

func (s *Service) findStored(ctx context.Context, municipio, category string) ([]Place, error) {
	if s.store == nil {
		return nil, nil
	}
	// the search context may already be cancelled; the lookup still runs
	return s.store.Find(context.WithoutCancel(ctx), municipio, category)
}

func (s *Service) record(ctx context.Context, event *models.SearchEvent) {
	if s.store == nil {
		return
	}
	if err := s.store.RecordSearch(context.WithoutCancel(ctx), event); err != nil {
		s.log.Warn("failed to record search event", zap.Error(err))
	}
}

func municipioLabel(municipio string) string {
	if municipio == "" {
		return AllMunicipios
	}
	return municipio
}
