package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestCORSMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(CORS([]string{"http://localhost:5500", " https://SaudeMA.example/ ", ""}))
	r.GET("/api/municipios", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	cases := []struct {
		name        string
		method      string
		origin      string
		wantCode    int
		wantAllowed string
	}{
		{name: "preflight", method: http.MethodOptions, origin: "http://localhost:5500", wantCode: http.StatusNoContent, wantAllowed: "http://localhost:5500"},
		{name: "configured with slash and case", method: http.MethodGet, origin: "https://saudema.example", wantCode: http.StatusOK, wantAllowed: "https://saudema.example"},
		{name: "no origin", method: http.MethodGet, wantCode: http.StatusOK},
		{name: "unknown origin", method: http.MethodGet, origin: "https://evil.example", wantCode: http.StatusForbidden},
		{name: "unknown origin preflight", method: http.MethodOptions, origin: "https://evil.example", wantCode: http.StatusForbidden},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, "/api/municipios", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			require.Equal(t, tc.wantCode, w.Code)
			require.Equal(t, tc.wantAllowed, w.Header().Get("Access-Control-Allow-Origin"))
			if tc.wantCode == http.StatusForbidden {
				require.Equal(t, "Não permitido pelo CORS", decodeError(t, w).Message)
			}
			if tc.wantAllowed != "" {
				require.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
				require.Contains(t, w.Header().Values("Vary"), "Origin")
			}
		})
	}
}

func TestCORSPreflightAdvertisesMethodsAndHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(CORS([]string{"http://localhost:5500"}))
	r.POST("/api/auth/login", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	req.Header.Set("Origin", "http://localhost:5500")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	require.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
	require.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")
	require.Equal(t, "600", w.Header().Get("Access-Control-Max-Age"))
}
