package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func corsRouter(origins ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(CORS(origins))
	router.GET("/api/v1/collections/available", func(c *gin.Context) { c.Status(http.StatusOK) })
	return router
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name        string
		origins     []string
		method      string
		origin      string
		wantStatus  int
		wantAllowed string
		wantCreds   string
	}{
		{"wildcard", []string{"*"}, http.MethodGet, "https://any.example", http.StatusOK, "*", ""},
		{"listed origin", []string{"https://app.ecocycle.example/"}, http.MethodGet, "https://app.ecocycle.example", http.StatusOK, "https://app.ecocycle.example", "true"},
		{"preflight", []string{"https://app.ecocycle.example"}, http.MethodOptions, "https://app.ecocycle.example", http.StatusNoContent, "https://app.ecocycle.example", "true"},
		{"unlisted origin", []string{"https://app.ecocycle.example"}, http.MethodGet, "https://evil.example", http.StatusForbidden, "", ""},
		{"no origin header", []string{"https://app.ecocycle.example"}, http.MethodGet, "", http.StatusOK, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/v1/collections/available", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.method == http.MethodOptions {
				req.Header.Set("Access-Control-Request-Method", http.MethodGet)
				req.Header.Set("Access-Control-Request-Headers", "Idempotency-Key")
			}
			w := httptest.NewRecorder()
			corsRouter(tt.origins...).ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantAllowed, w.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantCreds, w.Header().Get("Access-Control-Allow-Credentials"))
			if tt.method == http.MethodOptions {
				assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Idempotency-Key")
			}
		})
	}
}
