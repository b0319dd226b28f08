package server

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/fnoscreen/internal/common"
)

func TestRecoveryMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := common.NewLoggerWithOutput("error", &buf)
	handler := applyMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}), logger, "")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stocks/SBIN", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal_error", decodeError(t, rec).Code)
	out := buf.String()
	assert.Contains(t, out, "boom")
	assert.Contains(t, out, "/api/stocks/{symbol}")
	assert.Contains(t, out, rec.Header().Get(requestIDHeader))
}

func TestCorsMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		origin string
		want   string
		vary   string
	}{
		{"any origin", "", "*", ""},
		{"dashboard origin", "https://dash.example", "https://dash.example", "Origin"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := corsMiddleware(tt.origin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}))

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/screens", nil))

			assert.Equal(t, http.StatusNoContent, rec.Code)
			assert.Equal(t, tt.want, rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.vary, rec.Header().Get("Vary"))
			assert.Equal(t, requestIDHeader, rec.Header().Get("Access-Control-Expose-Headers"))
			assert.False(t, called)
		})
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := requestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	}))

	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"keeps caller id", "run-2025.03_ab", true},
		{"assigns when absent", "", false},
		{"replaces unsafe id", "bad id\nforged=1", false},
		{"replaces oversized id", strings.Repeat("a", maxRequestIDLen+1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
			if tt.incoming != "" {
				req.Header.Set(requestIDHeader, tt.incoming)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			got := rec.Header().Get(requestIDHeader)
			assert.Equal(t, got, seen)
			if tt.keep {
				assert.Equal(t, tt.incoming, got)
				return
			}
			_, err := uuid.Parse(got)
			assert.NoError(t, err)
		})
	}
}

func TestRouteLabel(t *testing.T) {
	tests := map[string]string{
		"/api/stocks":                      "/api/stocks",
		"/api/stocks/SBIN":                 "/api/stocks/{symbol}",
		"/api/stocks/SBIN/sparkline.png":   "/api/stocks/{symbol}/sparkline.png",
		"/api/screens/new-high":            "/api/screens/{id}",
		"/api/screens/new-high/definition": "/api/screens/{id}/definition",
		"/api/pipeline/collect/TCS":        "/api/pipeline/collect/{symbol}",
		"/api/pipeline/collect":            "/api/pipeline/collect",
	}
	for path, want := range tests {
		assert.Equal(t, want, routeLabel(path), path)
	}
}

func TestAccessLogMiddleware_Levels(t *testing.T) {
	tests := []struct {
		name   string
		status int
		level  string
	}{
		{"success is debug", http.StatusOK, `"level":"debug"`},
		{"rejected is warn", http.StatusNotFound, `"level":"warn"`},
		{"failure is error", http.StatusInternalServerError, `"level":"error"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := common.NewLoggerWithOutput("debug", &buf)
			handler := requestIDMiddleware(accessLogMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})))

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/screens/nope", nil))

			require.Equal(t, tt.status, rec.Code)
			out := buf.String()
			assert.Contains(t, out, tt.level)
			assert.Contains(t, out, `"route":"/api/screens/{id}"`)
			assert.Contains(t, out, rec.Header().Get(requestIDHeader))
		})
	}
}
