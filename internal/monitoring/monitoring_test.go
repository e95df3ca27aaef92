package monitoring_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/saudema/saudema/internal/database/testutil"
	"github.com/saudema/saudema/internal/monitoring"
	"github.com/saudema/saudema/internal/monitoring/checks"
	"github.com/saudema/saudema/internal/municipios"
)

func TestHealthManagerEvaluate(t *testing.T) {
	t.Parallel()

	manager := monitoring.NewHealthManager()
	manager.RegisterLiveness(monitoring.NewCheck("process", func(ctx context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: monitoring.StatusUp}
	}))
	manager.RegisterReadiness(monitoring.NewCheck("database", func(ctx context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: monitoring.StatusUp}
	}))
	manager.RegisterReadiness(monitoring.NewCheck("redis", func(ctx context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "connection refused"}
	}))

	live := manager.EvaluateLiveness(context.Background())
	require.True(t, live.Success)
	require.Equal(t, http.StatusOK, live.HTTPStatus())

	report := manager.EvaluateReadiness(context.Background())
	require.False(t, report.Success)
	require.Equal(t, monitoring.StatusDown, report.Status)
	require.Equal(t, http.StatusServiceUnavailable, report.HTTPStatus())
	require.Len(t, report.Checks, 2)
	require.Equal(t, "database", report.Checks[0].Component)
	require.Equal(t, "redis", report.Checks[1].Component)

	all := manager.Evaluate(context.Background())
	require.Len(t, all.Checks, 3)
	require.Equal(t, "process", all.Checks[0].Component)
}

func TestHealthManagerRecoversPanics(t *testing.T) {
	t.Parallel()

	manager := monitoring.NewHealthManager()
	manager.RegisterReadiness(monitoring.NewCheck("flaky", func(ctx context.Context) monitoring.ProbeResult {
		panic("boom")
	}))

	report := manager.EvaluateReadiness(context.Background())
	require.Equal(t, monitoring.StatusDown, report.Status)
	require.Equal(t, "boom", report.Checks[0].Details)
	require.Equal(t, "flaky", report.Checks[0].Component)
}

func TestHealthManagerProbeTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	defer close(release)

	manager := monitoring.NewHealthManager(monitoring.WithProbeTimeout(20 * time.Millisecond))
	manager.RegisterReadiness(monitoring.NewCheck("ibge", func(ctx context.Context) monitoring.ProbeResult {
		<-release
		return monitoring.ProbeResult{Status: monitoring.StatusUp}
	}))

	report := manager.EvaluateReadiness(context.Background())
	require.Equal(t, monitoring.StatusDegraded, report.Status)
	require.Equal(t, "ibge", report.Checks[0].Component)
	require.Contains(t, report.Checks[0].Details, "timed out")
	require.False(t, report.CheckedAt.IsZero())
}

func TestHealthManagerReplacesProbeByName(t *testing.T) {
	t.Parallel()

	manager := monitoring.NewHealthManager()
	manager.RegisterReadiness(monitoring.NewCheck("database", func(context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: monitoring.StatusDown}
	}))
	manager.RegisterReadiness(monitoring.NewCheck("database", func(context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: monitoring.StatusUp}
	}))
	manager.RegisterReadiness(monitoring.Check{})

	report := manager.EvaluateReadiness(context.Background())
	require.Len(t, report.Checks, 1)
	require.True(t, report.Success)
}

func TestWorst(t *testing.T) {
	t.Parallel()

	require.Equal(t, monitoring.StatusDegraded, monitoring.Worst(monitoring.StatusUp, monitoring.StatusDegraded))
	require.Equal(t, monitoring.StatusDown, monitoring.Worst(monitoring.StatusDown, monitoring.StatusDegraded))
	require.Equal(t, monitoring.ProbeStatus("unknown"), monitoring.Worst(monitoring.StatusUp, "unknown"))
}

func TestResultFromError(t *testing.T) {
	t.Parallel()

	require.Equal(t, monitoring.StatusUp, monitoring.ResultFromError("db", nil, time.Second).Status)
	require.Equal(t, monitoring.StatusDegraded, monitoring.ResultFromError("db", context.DeadlineExceeded, 0).Status)
	require.Equal(t, monitoring.StatusDown, monitoring.ResultFromError("db", errors.New("refused"), 0).Status)
}

func TestMaintenanceCheck(t *testing.T) {
	t.Parallel()

	tracker := monitoring.NewJobTracker()
	check := checks.Maintenance(tracker, 0)
	require.Equal(t, monitoring.StatusUp, check.Run(context.Background()).Status)

	tracker.Record("session_cleanup", nil, time.Second)
	tracker.Record("cache_cleanup", errors.New("timeout"), time.Second)

	result := check.Run(context.Background())
	require.Equal(t, monitoring.StatusDegraded, result.Status)
	require.Contains(t, result.Details, "cache_cleanup failed 1x: timeout")

	jobs := tracker.Jobs()
	require.Len(t, jobs, 2)
	require.Equal(t, "cache_cleanup", jobs[0].Job)
	require.EqualValues(t, 1, jobs[0].ConsecutiveFailures)

	tracker.Record("cache_cleanup", nil, time.Second)
	require.Equal(t, monitoring.StatusUp, check.Run(context.Background()).Status)
}

func TestDatabaseCheck(t *testing.T) {
	t.Parallel()

	db := testutil.MustOpenTestDB(t)
	require.Equal(t, monitoring.StatusUp, checks.Database(db, 0).Run(context.Background()).Status)
	require.Equal(t, monitoring.StatusDown, checks.Database(nil, 0).Run(context.Background()).Status)

	result := checks.Database(db, 0, "places", "cache_entries").Run(context.Background())
	require.Equal(t, monitoring.StatusDegraded, result.Status)
	require.Contains(t, result.Details, "places")

	migrated := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	require.Equal(t, monitoring.StatusUp, checks.Database(migrated, 0, "places", "cache_entries").Run(context.Background()).Status)
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestRedisCheck(t *testing.T) {
	t.Parallel()

	require.Equal(t, monitoring.StatusUp, checks.Redis(nil, false, 0).Run(context.Background()).Status)
	require.Equal(t, monitoring.StatusUp, checks.Redis(pinger{}, true, 0).Run(context.Background()).Status)
	require.Equal(t, monitoring.StatusDegraded, checks.Redis(pinger{err: errors.New("refused")}, true, 0).Run(context.Background()).Status)
	require.Equal(t, monitoring.StatusDegraded, checks.Redis(nil, true, 0).Run(context.Background()).Status)
}

func TestMunicipiosCheck(t *testing.T) {
	t.Parallel()

	calls := 0
	cache := municipios.NewCache(municipios.FetcherFunc(func(context.Context) ([]string, error) {
		calls++
		return []string{"São Luís", "Imperatriz"}, nil
	}))

	check := checks.Municipios(cache)
	result := check.Run(context.Background())
	require.Equal(t, monitoring.StatusDegraded, result.Status)
	require.Zero(t, calls)

	_, err := cache.List(context.Background())
	require.NoError(t, err)

	result = check.Run(context.Background())
	require.Equal(t, monitoring.StatusUp, result.Status)
	require.Equal(t, "2 municipios", result.Details)
}
