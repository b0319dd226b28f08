package server

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bobmcallan/fnoscreen/internal/common"
)

const (
	requestIDHeader = "X-Request-ID"
	maxRequestIDLen = 64

	// requests slower than this are logged at info even when they succeed
	slowRequest = 2 * time.Second
)

type requestIDKey struct{}

// RequestID returns the id assigned to the request by requestIDMiddleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// statusRecorder captures the status code and body size for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.status == 0 {
		sr.status = code
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.size += n
	return n, err
}

// validRequestID accepts caller ids that are short and log-safe.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_', c == '.':
		default:
			return false
		}
	}
	return true
}

// requestIDMiddleware keeps a caller's X-Request-ID or assigns a uuid, echoes it on the
// response and stores it in the request context.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if !validRequestID(id) {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// recoveryMiddleware turns a handler panic into a 500 internal_error response.
func recoveryMiddleware(logger *common.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error().
						Str("request_id", RequestID(r.Context())).
						Str("route", routeLabel(r.URL.Path)).
						Str("panic", fmt.Sprint(rec)).
						Str("stack", string(debug.Stack())).
						Msg("Handler panicked")
					WriteErrorWithCode(w, http.StatusInternalServerError, "Internal server error", "internal_error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// corsMiddleware allows read access from the configured dashboard origin.
// An empty origin means any.
func corsMiddleware(origin string) func(http.Handler) http.Handler {
	if origin == "" {
		origin = "*"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			if origin != "*" {
				h.Add("Vary", "Origin")
			}
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, "+requestIDHeader)
			h.Set("Access-Control-Expose-Headers", requestIDHeader)

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// routeLabel collapses path parameters so log lines group by endpoint.
func routeLabel(path string) string {
	for _, prefix := range []string{"/api/stocks/", "/api/screens/", "/api/pipeline/collect/"} {
		rest, ok := strings.CutPrefix(path, prefix)
		if !ok || rest == "" {
			continue
		}
		label := prefix + "{symbol}"
		if prefix == "/api/screens/" {
			label = prefix + "{id}"
		}
		if _, tail, found := strings.Cut(rest, "/"); found {
			label += "/" + tail
		}
		return label
	}
	return path
}

// accessLogMiddleware writes one line per API call: errors at error, rejected
// requests at warn, slow requests at info, everything else at debug.
func accessLogMiddleware(logger *common.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w}

			next.ServeHTTP(sr, r)

			if sr.status == 0 {
				sr.status = http.StatusOK
			}
			elapsed := time.Since(start)

			var event *zerolog.Event
			switch {
			case sr.status >= 500:
				event = logger.Error()
			case sr.status >= 400:
				event = logger.Warn()
			case elapsed >= slowRequest:
				event = logger.Info().Bool("slow", true)
			default:
				event = logger.Debug()
			}

			event.
				Str("request_id", RequestID(r.Context())).
				Str("method", r.Method).
				Str("route", routeLabel(r.URL.Path)).
				Str("path", r.URL.Path).
				Str("query", r.URL.RawQuery).
				Int("status", sr.status).
				Int("bytes", sr.size).
				Dur("elapsed", elapsed).
				Msg("API request")
		})
	}
}

// applyMiddleware wraps the mux; the request id is assigned first so every
// later layer can log it.
func applyMiddleware(handler http.Handler, logger *common.Logger, corsOrigin string) http.Handler {
	handler = accessLogMiddleware(logger)(handler)
	handler = corsMiddleware(corsOrigin)(handler)
	handler = recoveryMiddleware(logger)(handler)
	return requestIDMiddleware(handler)
}
