package server

import (
	"net/http"
	"strings"

	"github.com/bobmcallan/fnoscreen/internal/models"
)

// --- Stock handlers ---

func (s *Server) handleStockList(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	page, ok := QueryInt(w, r, "page", 0)
	if !ok {
		return
	}
	limit, ok := QueryInt(w, r, "limit", 0)
	if !ok {
		return
	}

	q := r.URL.Query()
	result, err := s.app.MarketService.ListStocks(r.Context(), models.StockListQuery{
		Page:   page,
		Limit:  limit,
		Search: q.Get("search"),
		Sort:   q.Get("sort"),
		Order:  q.Get("order"),
	})
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

func (s *Server) handleStockGet(w http.ResponseWriter, r *http.Request, symbol string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	days, ok := QueryInt(w, r, "days", 0)
	if !ok {
		return
	}

	detail, err := s.app.MarketService.GetStock(r.Context(), symbol, days)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, detail)
}

func (s *Server) handleStockSparkline(w http.ResponseWriter, r *http.Request, symbol string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	if symbol == "" {
		WriteError(w, http.StatusBadRequest, "symbol is required in path")
		return
	}

	png, err := s.app.MarketService.RenderSparkline(r.Context(), symbol)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// --- Screen handlers ---

func (s *Server) handleScreenList(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"screens": s.app.ScreenService.ListScreens(),
	})
}

func (s *Server) handleScreenDefinition(w http.ResponseWriter, r *http.Request, id string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	def, err := s.app.ScreenService.GetScreen(id)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, def)
}

func (s *Server) handleScreenRun(w http.ResponseWriter, r *http.Request, id string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	q := r.URL.Query()
	result, err := s.app.ScreenService.RunScreen(r.Context(), id, models.ScreenQuery{
		Sort:  q.Get("sort"),
		Order: q.Get("order"),
	})
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// --- Pipeline handlers ---

// handleCollectAll starts a full run in the background and returns 202.
func (s *Server) handleCollectAll(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if !s.app.Runner.Trigger("http") {
		WriteErrorWithCode(w, http.StatusConflict, "A pipeline run is already in progress", "run_in_progress")
		return
	}
	s.logger.Info().Str("request_id", RequestID(r.Context())).Msg("Full collection triggered over HTTP")

	WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":  "started",
		"message": "Full collection started; poll /api/pipeline/status for the report",
	})
}

// handleCollectOne collects a single symbol synchronously and returns its report.
func (s *Server) handleCollectOne(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	symbol := strings.TrimSpace(PathParam(r, "/api/pipeline/collect/", ""))
	if symbol == "" {
		WriteError(w, http.StatusBadRequest, "symbol is required in path")
		return
	}

	report, err := s.app.PipelineService.CollectOne(r.Context(), symbol)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, report)
}

func (s *Server) handlePipelineStatus(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"running":     s.app.Runner.Running(),
		"last_report": s.app.Runner.LastReport(),
	})
}
