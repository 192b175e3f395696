package server

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/market-intel/internal/model"
	"github.com/sells-group/market-intel/internal/session"
)

// AnalysisRequest is the body of POST /api/analysis.
type AnalysisRequest struct {
	Symbol string `json:"symbol" validate:"required,max=32"`
	Query  string `json:"query" validate:"max=2000"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleConnectivity(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.CheckConnectivity(r.Context()))
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.State(r.Context()))
}

func (s *Server) handleTickers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, model.DefaultTickers)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req AnalysisRequest
	if details := decodeAndValidate(w, r, &req, func() {
		req.Symbol = strings.TrimSpace(req.Symbol)
		req.Query = strings.TrimSpace(req.Query)
	}); details != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request", Details: details})
		return
	}

	rec, err := s.ctrl.RequestAnalysis(r.Context(), req.Symbol, req.Query)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, rec)
	case errors.Is(err, session.ErrThrottled), errors.Is(err, session.ErrBusy):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, session.ErrEmptySymbol):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		f := session.NewFailure(err)
		f.Symbol = req.Symbol
		writeJSON(w, http.StatusBadGateway, errorBody{Error: f.Message, Failure: f})
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	symbol, limit, ok := s.historyParams(w, r)
	if !ok {
		return
	}
	entries, err := s.history.GetRecentHistory(r.Context(), symbol, limit)
	if err != nil {
		s.log.Warn("history query failed", zap.String("symbol", symbol), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "history unavailable")
		return
	}
	if entries == nil {
		entries = []model.SnapshotEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleNarratives(w http.ResponseWriter, r *http.Request) {
	symbol, limit, ok := s.historyParams(w, r)
	if !ok {
		return
	}
	entries, err := s.history.GetNarrativeHistory(r.Context(), symbol, limit)
	if err != nil {
		s.log.Warn("narrative query failed", zap.String("symbol", symbol), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "history unavailable")
		return
	}
	if entries == nil {
		entries = []model.NarrativeEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// historyParams extracts the symbol path parameter and limit query. Symbols
// such as BTC/USD arrive path-escaped.
func (s *Server) historyParams(w http.ResponseWriter, r *http.Request) (string, int, bool) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history unavailable")
		return "", 0, false
	}
	symbol, err := url.PathUnescape(chi.URLParam(r, "symbol"))
	if err != nil || strings.TrimSpace(symbol) == "" {
		writeError(w, http.StatusBadRequest, "invalid symbol")
		return "", 0, false
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return "", 0, false
		}
	}
	return strings.TrimSpace(symbol), limit, true
}
