package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestSecurityHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name      string
		hsts      bool
		forwarded string
		wantHSTS  bool
	}{
		{name: "hsts disabled", hsts: false, forwarded: "https"},
		{name: "plain http", hsts: true},
		{name: "behind tls proxy", hsts: true, forwarded: "https", wantHSTS: true},
		{name: "proxy chain", hsts: true, forwarded: "HTTPS, http", wantHSTS: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.Use(SecurityHeaders(tc.hsts))
			r.GET("/api/municipios", func(c *gin.Context) {
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/api/municipios", nil)
			if tc.forwarded != "" {
				req.Header.Set("X-Forwarded-Proto", tc.forwarded)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			require.Equal(t, http.StatusOK, w.Code)
			h := w.Header()
			require.Equal(t, "DENY", h.Get("X-Frame-Options"))
			require.Equal(t, "nosniff", h.Get("X-Content-Type-Options"))
			require.Equal(t, DefaultContentSecurityPolicy, h.Get("Content-Security-Policy"))
			require.Equal(t, "no-referrer", h.Get("Referrer-Policy"))
			if tc.wantHSTS {
				require.Equal(t, hstsValue, h.Get("Strict-Transport-Security"))
			} else {
				require.Empty(t, h.Get("Strict-Transport-Security"))
			}
		})
	}
}

func TestSecurityHeadersSurviveErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SecurityHeaders(false))
	r.NoRoute(NotFoundHandler)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}
