package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/arbiter-hq/arbiter/internal/apperrors"
	"github.com/arbiter-hq/arbiter/internal/debate"
	"github.com/arbiter-hq/arbiter/internal/sse"
	"github.com/arbiter-hq/arbiter/internal/usage"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// createDebateRequest is the POST /debates body.
type createDebateRequest struct {
	Question         string   `json:"question"`
	Provider         string   `json:"provider"`
	Model            string   `json:"model"`
	MaxRounds        int      `json:"max_rounds"`
	Temperature      float64  `json:"temperature"`
	Personalities    []string `json:"personalities"`
	IncludeSynthesis bool     `json:"include_synthesis"`
}

func (s *Server) handleCreateDebate(w http.ResponseWriter, r *http.Request) {
	var req createDebateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid request body: "+err.Error())
		return
	}

	settings, err := debate.NewSettings(req.MaxRounds, req.Temperature, req.Personalities, req.IncludeSynthesis)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	draft := debate.Draft{
		Owner:    userFromContext(r),
		Question: req.Question,
		Provider: req.Provider,
		Model:    req.Model,
		Settings: settings,
	}

	d, err := s.debates.Create(r.Context(), draft)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) handleListDebates(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", 20)

	var status *debate.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		v := debate.Status(raw)
		status = &v
	}

	list, err := s.debates.List(r.Context(), userFromContext(r), page, pageSize, status)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetDebate(w http.ResponseWriter, r *http.Request) {
	id, err := parseDebateID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	d, err := s.debates.Get(r.Context(), userFromContext(r), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleCancelDebate(w http.ResponseWriter, r *http.Request) {
	id, err := parseDebateID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	d, err := s.debates.Cancel(r.Context(), userFromContext(r), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleDeleteDebate(w http.ResponseWriter, r *http.Request) {
	id, err := parseDebateID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	if err := s.debates.Delete(r.Context(), userFromContext(r), id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStreamDebate(w http.ResponseWriter, r *http.Request) {
	id, err := parseDebateID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	events, err := s.debates.StartStream(r.Context(), userFromContext(r), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if err := sse.Write(r.Context(), w, events); err != nil {
		// Headers and possibly events have already been flushed to the
		// client; there is nothing left to do. The write error is not
		// logged — the handler simply returns.
		return
	}
}

func (s *Server) handleUsageSummary(w http.ResponseWriter, r *http.Request) {
	from, to := usage.CurrentCalendarMonthUTC()
	summary, err := s.usage.Summary(r.Context(), userFromContext(r), from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleListPersonalities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.personalities.List(false))
}

func (s *Server) handleListDebatePersonalities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.personalities.List(true))
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func parseDebateID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "error": message})
}

// writeDomainError maps the apperrors taxonomy to HTTP status codes per
// spec.md §7's mapping note (422/402/404/502/etc. via an errors.As-style
// switch on Code()).
func writeDomainError(w http.ResponseWriter, err error) {
	coder, ok := err.(apperrors.Coder)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	switch coder.Code() {
	case "validation_error":
		writeError(w, http.StatusUnprocessableEntity, coder.Code(), coder.Error())
	case "not_found":
		writeError(w, http.StatusNotFound, coder.Code(), coder.Error())
	case "insufficient_credits":
		writeError(w, http.StatusPaymentRequired, coder.Code(), coder.Error())
	case "config_error":
		writeError(w, http.StatusInternalServerError, coder.Code(), coder.Error())
	case "provider_error":
		writeError(w, http.StatusBadGateway, coder.Code(), coder.Error())
	case "cancelled":
		writeError(w, http.StatusConflict, coder.Code(), coder.Error())
	default:
		writeError(w, http.StatusInternalServerError, coder.Code(), coder.Error())
	}
}
