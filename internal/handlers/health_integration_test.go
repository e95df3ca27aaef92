package handlers_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/saudema/saudema/internal/handlers/testutil"
	"github.com/saudema/saudema/internal/monitoring"
)

func TestRootHandler(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodGet, "/", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"message":"API saudema está no ar!","docs":"/api-docs"}`, w.Body.String())
}

func TestHealthHandler_ReflectsMunicipioCache(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodGet, "/health/ready", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var report monitoring.HealthReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	require.Equal(t, monitoring.StatusDegraded, report.Status)

	env.Request(http.MethodGet, "/api/municipios", nil, "")

	w = env.Request(http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	require.Equal(t, monitoring.StatusUp, report.Status)
	require.True(t, report.Success)

	w = env.Request(http.MethodGet, "/health/live", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestNotFoundHandler(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodGet, "/api/nada", nil, "")
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "Endpoint não encontrado.", testutil.ErrorMessage(t, w))
}
