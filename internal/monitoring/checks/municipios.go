package checks

import (
	"context"
	"fmt"
	"time"

	"github.com/saudema/saudema/internal/monitoring"
	"github.com/saudema/saudema/internal/municipios"
)

// MunicipioStatuser is satisfied by municipios.Cache.
type MunicipioStatuser interface {
	Status() municipios.Status
}

// Municipios reports the municipality cache state without triggering a
// fetch. An empty cache is degraded: the next request will go upstream and
// fail only if IBGE is also down.
func Municipios(cache MunicipioStatuser) monitoring.Check {
	return monitoring.NewCheck("municipios", func(context.Context) monitoring.ProbeResult {
		start := time.Now()
		if cache == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "cache not configured", Duration: time.Since(start)}
		}

		st := cache.Status()
		result := monitoring.ProbeResult{Duration: time.Since(start)}
		switch st.State {
		case municipios.StateFresh:
			result.Status = monitoring.StatusUp
			result.Details = fmt.Sprintf("%d municipios", st.ItemCount)
		case municipios.StateStale:
			result.Status = monitoring.StatusDegraded
			result.Details = fmt.Sprintf("serving stale list fetched at %s", st.FetchedAt.UTC().Format(time.RFC3339))
		default:
			result.Status = monitoring.StatusDegraded
			result.Details = "not loaded yet"
		}
		return result
	})
}
