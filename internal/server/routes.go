package server

import (
	"net/http"
	"strings"

	"github.com/bobmcallan/fnoscreen/internal/common"
)

// registerRoutes sets up all REST API routes on the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// System
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.HandleFunc("/api/stats", s.handleStats)

	// Stocks
	mux.HandleFunc("/api/stocks/", s.routeStocks)
	mux.HandleFunc("/api/stocks", s.handleStockList)

	// Screens
	mux.HandleFunc("/api/screens/", s.routeScreens)
	mux.HandleFunc("/api/screens", s.handleScreenList)

	// Pipeline
	mux.HandleFunc("/api/pipeline/collect/", s.handleCollectOne)
	mux.HandleFunc("/api/pipeline/collect", s.handleCollectAll)
	mux.HandleFunc("/api/pipeline/status", s.handlePipelineStatus)
}

// routeStocks dispatches /api/stocks/{symbol} and /api/stocks/{symbol}/sparkline.png.
func (s *Server) routeStocks(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/stocks/")
	if path == "" {
		s.handleStockList(w, r)
		return
	}

	if strings.HasSuffix(path, "/sparkline.png") {
		s.handleStockSparkline(w, r, strings.TrimSuffix(path, "/sparkline.png"))
		return
	}

	if strings.Contains(path, "/") {
		WriteError(w, http.StatusNotFound, "Not found")
		return
	}
	s.handleStockGet(w, r, path)
}

// routeScreens dispatches /api/screens/{id} and /api/screens/{id}/definition.
func (s *Server) routeScreens(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/screens/")
	if path == "" {
		s.handleScreenList(w, r)
		return
	}

	if strings.HasSuffix(path, "/definition") {
		s.handleScreenDefinition(w, r, strings.TrimSuffix(path, "/definition"))
		return
	}

	if strings.Contains(path, "/") {
		WriteError(w, http.StatusNotFound, "Not found")
		return
	}
	s.handleScreenRun(w, r, path)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, common.VersionInfo())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	stats, err := s.app.MarketService.Stats(r.Context())
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}
