package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/bobmcallan/fnoscreen/internal/common"
	"github.com/bobmcallan/fnoscreen/internal/services/pipeline"
)

// ErrorResponse is the standard error format for REST API responses.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, statusCode int, message string) {
	WriteJSON(w, statusCode, ErrorResponse{Error: message})
}

// WriteErrorWithCode writes a JSON error response with an error code.
func WriteErrorWithCode(w http.ResponseWriter, statusCode int, message, code string) {
	WriteJSON(w, statusCode, ErrorResponse{Error: message, Code: code})
}

// WriteServiceError maps a service error onto its HTTP status.
// Query errors carry their own message; anything else is a 500.
func WriteServiceError(w http.ResponseWriter, err error) {
	var qe *common.ScreenQueryError
	switch {
	case errors.Is(err, common.ErrScreenNotFound):
		WriteErrorWithCode(w, http.StatusNotFound, queryMessage(err, qe), "screen_not_found")
	case errors.Is(err, common.ErrStockNotFound):
		WriteErrorWithCode(w, http.StatusNotFound, queryMessage(err, qe), "stock_not_found")
	case errors.Is(err, common.ErrInvalidParameter):
		WriteErrorWithCode(w, http.StatusBadRequest, queryMessage(err, qe), "invalid_parameter")
	case errors.Is(err, pipeline.ErrRunInProgress):
		WriteErrorWithCode(w, http.StatusConflict, err.Error(), "run_in_progress")
	default:
		WriteError(w, http.StatusInternalServerError, "Internal error: "+err.Error())
	}
}

func queryMessage(err error, qe *common.ScreenQueryError) string {
	if errors.As(err, &qe) {
		return qe.Message
	}
	return err.Error()
}

// RequireMethod validates the HTTP method and returns true if it matches.
// If it doesn't match, it writes a 405 response and returns false.
func RequireMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	return false
}

// QueryInt parses an integer query parameter. A missing value returns fallback;
// a malformed one writes a 400 and returns false.
func QueryInt(w http.ResponseWriter, r *http.Request, name string, fallback int) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, name+" must be an integer", "invalid_parameter")
		return 0, false
	}
	return n, true
}

// PathParam extracts a path parameter from the URL path.
// For a pattern like /api/stocks/{symbol}/sparkline.png, calling PathParam(r, "/api/stocks/", "/sparkline.png")
// extracts the {symbol} part.
func PathParam(r *http.Request, prefix, suffix string) string {
	path := r.URL.Path
	if !strings.HasPrefix(path, prefix) {
		return ""
	}
	rest := path[len(prefix):]
	if suffix != "" {
		idx := strings.Index(rest, suffix)
		if idx < 0 {
			return rest
		}
		return rest[:idx]
	}
	// No suffix: return up to the next /
	if idx := strings.Index(rest, "/"); idx >= 0 {
		return rest[:idx]
	}
	return rest
}
