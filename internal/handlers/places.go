package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/saudema/saudema/internal/municipios"
	"github.com/saudema/saudema/internal/places"
	appErrors "github.com/saudema/saudema/pkg/errors"
	"github.com/saudema/saudema/pkg/logger"
	"github.com/saudema/saudema/pkg/response"
)

const (
	msgMunicipiosFailed     = "Erro ao buscar a lista de municípios."
	msgCategoryRequired     = "A categoria é obrigatória."
	msgPlacesNotConfigured  = "Chave de API não configurada no servidor."
	msgMunicipiosForSearch  = "Falha ao obter a lista de municípios para a busca."
	msgHealthUnitsFailed    = "Erro ao buscar unidades de saúde."
	defaultStatsWindowHours = 24 * 30
)

// MunicipioSource is the read-through municipality list.
type MunicipioSource interface {
	ListWithStatus(ctx context.Context) ([]string, municipios.Status, error)
	Status() municipios.Status
}

// HealthUnitSearcher runs the health unit search fan-out.
type HealthUnitSearcher interface {
	Search(ctx context.Context, category, municipio string) (places.Results, error)
}

// SearchStatsSource aggregates recorded searches.
type SearchStatsSource interface {
	SearchStats(ctx context.Context, since time.Time) ([]places.CategoryStat, error)
}

// PlacesHandler serves the municipality list and the health unit search.
type PlacesHandler struct {
	municipios MunicipioSource
	search     HealthUnitSearcher
	stats      SearchStatsSource
	snapshots  municipios.SnapshotReader
	now        func() time.Time
}

// NewPlacesHandler wires the places endpoints. stats and snapshots may be nil.
func NewPlacesHandler(source MunicipioSource, search HealthUnitSearcher, stats SearchStatsSource, snapshots municipios.SnapshotReader) *PlacesHandler {
	return &PlacesHandler{municipios: source, search: search, stats: stats, snapshots: snapshots, now: time.Now}
}

type municipiosStatus struct {
	municipios.Status
	Snapshot *snapshotSummary `json:"snapshot,omitempty"`
}

type snapshotSummary struct {
	ItemCount   int       `json:"item_count"`
	Source      string    `json:"source"`
	LastUpdated time.Time `json:"last_updated"`
}

// GET /api/municipios
func (h *PlacesHandler) Municipios(c *gin.Context) {
	list, status, err := h.municipios.ListWithStatus(requestContext(c))
	if err != nil {
		logger.WithModule("municipios").Error("municipio list unavailable", zap.Error(err))
		response.Error(c, appErrors.ErrInternalServer.WithMessage(msgMunicipiosFailed).WithInternal(err))
		return
	}
	response.List(c, list, response.Meta{Count: len(list), Cache: string(status.State)})
}

// GET /api/municipios/status
//
// A snapshot that cannot be read is left out; the cache state is still served.
func (h *PlacesHandler) MunicipiosStatus(c *gin.Context) {
	out := municipiosStatus{Status: h.municipios.Status()}
	if h.snapshots != nil {
		row, err := h.snapshots.LoadSnapshot(requestContext(c))
		switch {
		case err != nil:
			logger.WithModule("municipios").Warn("failed to read municipio snapshot", zap.Error(err))
		case row != nil:
			out.Snapshot = &snapshotSummary{ItemCount: row.ItemCount, Source: row.Source, LastUpdated: row.LastUpdated}
		}
	}
	response.Success(c, http.StatusOK, out)
}

// GET /api/health-units
func (h *PlacesHandler) HealthUnits(c *gin.Context) {
	category := strings.TrimSpace(c.Query("category"))
	municipio := strings.TrimSpace(c.Query("municipio"))

	results, err := h.search.Search(requestContext(c), category, municipio)
	switch {
	case err == nil:
		response.List(c, results, response.Meta{Count: len(results)})
	case errors.Is(err, places.ErrCategoryRequired):
		response.Error(c, appErrors.NewBadRequest(msgCategoryRequired))
	case errors.Is(err, places.ErrNotConfigured):
		response.Error(c, appErrors.ErrInternalServer.WithMessage(msgPlacesNotConfigured).WithInternal(err))
	case errors.Is(err, places.ErrMunicipiosUnavailable):
		response.Error(c, appErrors.ErrInternalServer.WithMessage(msgMunicipiosForSearch).WithInternal(err))
	default:
		logger.WithModule("places").Error("health unit search failed", zap.Error(err))
		response.Error(c, appErrors.ErrInternalServer.WithMessage(msgHealthUnitsFailed).WithInternal(err))
	}
}

// GET /api/health-units/stats?hours=
func (h *PlacesHandler) SearchStats(c *gin.Context) {
	hours := defaultStatsWindowHours
	if raw := strings.TrimSpace(c.Query("hours")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			response.Error(c, appErrors.NewBadRequest("Parâmetro 'hours' inválido."))
			return
		}
		hours = parsed
	}

	since := h.now().UTC().Add(-time.Duration(hours) * time.Hour)
	stats, err := h.stats.SearchStats(requestContext(c), since)
	if err != nil {
		response.Error(c, appErrors.FromError(err))
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"since": since,
		"stats": stats,
	})
}
