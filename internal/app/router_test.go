package app

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xixu.io/notifier/internal/api/handlers"
	"xixu.io/notifier/internal/api/middleware"
	"xixu.io/notifier/internal/config"
)

func TestBuildCORSConfig_DefaultsToAllowlistWhenOriginsEmpty(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{
			AllowedOrigins:        nil,
			AllowCredentials:      true,
			UnsafeAllowAllOrigins: false,
		},
	}

	got := buildCORSConfig(cfg)
	if got.AllowAllOrigins {
		t.Fatalf("AllowAllOrigins = %v, want false", got.AllowAllOrigins)
	}
	if !got.AllowCredentials {
		t.Fatalf("AllowCredentials = %v, want true", got.AllowCredentials)
	}
	if len(got.AllowOrigins) != 2 {
		t.Fatalf("len(AllowOrigins) = %d, want 2", len(got.AllowOrigins))
	}
}

func TestBuildCORSConfig_StripsWildcardUnlessUnsafeFlagEnabled(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{
			AllowedOrigins:        []string{"*", "https://example.com"},
			AllowCredentials:      true,
			UnsafeAllowAllOrigins: false,
		},
	}

	got := buildCORSConfig(cfg)
	if got.AllowAllOrigins {
		t.Fatalf("AllowAllOrigins = %v, want false", got.AllowAllOrigins)
	}
	if len(got.AllowOrigins) != 1 || got.AllowOrigins[0] != "https://example.com" {
		t.Fatalf("AllowOrigins = %#v, want []string{\"https://example.com\"}", got.AllowOrigins)
	}
}

func TestBuildCORSConfig_UnsafeAllowAllDisablesCredentials(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{
			AllowedOrigins:        []string{"*"},
			AllowCredentials:      true,
			UnsafeAllowAllOrigins: true,
		},
	}

	got := buildCORSConfig(cfg)
	if !got.AllowAllOrigins {
		t.Fatalf("AllowAllOrigins = %v, want true", got.AllowAllOrigins)
	}
	if got.AllowCredentials {
		t.Fatalf("AllowCredentials = %v, want false", got.AllowCredentials)
	}
	if len(got.AllowOrigins) != 0 {
		t.Fatalf("AllowOrigins = %#v, want empty", got.AllowOrigins)
	}
}

func TestRouter_AuthAndPermissions(t *testing.T) {
	jwtCfg := middleware.JWTConfig{
		SigningKey: []byte("router-test-key-123456789012345678"),
		Issuer:     "notifier",
		ExpiresIn:  time.Hour,
	}
	cfg := &config.Config{}
	server := handlers.NewServer(handlers.ServerDeps{})
	router := newRouter(cfg, server, jwtCfg)

	token := func(perms ...string) string {
		tok, _, err := middleware.GenerateToken(jwtCfg, "u-1", "ops", nil, perms)
		require.NoError(t, err)
		return "Bearer " + tok
	}

	tests := []struct {
		name       string
		method     string
		path       string
		auth       string
		wantStatus int
	}{
		{"liveness is public", http.MethodGet, "/api/v1/health/live", "", http.StatusOK},
		{"jobs need a token", http.MethodGet, "/api/v1/jobs", "", http.StatusUnauthorized},
		{"jobs need job:read", http.MethodGet, "/api/v1/jobs", token(middleware.PermissionNotificationSend), http.StatusForbidden},
		{"run needs job:run", http.MethodPost, "/api/v1/jobs/weekly-report/run", token(middleware.PermissionJobRead), http.StatusForbidden},
		{"log level needs admin", http.MethodGet, "/api/v1/log/level", token(middleware.PermissionJobRun), http.StatusForbidden},
		{"admin reads log level", http.MethodGet, "/api/v1/log/level", token(middleware.PermissionAdmin), http.StatusOK},
		{"scheduler disabled", http.MethodGet, "/api/v1/jobs", token(middleware.PermissionJobRead), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(""))
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
		})
	}
}
