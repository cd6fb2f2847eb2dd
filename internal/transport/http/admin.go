package http

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"live-quiz-service/internal/domain"
)

type startResponse struct {
	SessionID string `json:"sessionId"`
}

type advanceResponse struct {
	Position int `json:"position"`
}

// resultsEnvelope wraps host payloads under "results", the key the host panel reads.
type resultsEnvelope struct {
	Results any `json:"results"`
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request) {
	id, err := h.service.CreateSession(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "quizId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, startResponse{SessionID: id})
}

func (h *Handler) advanceSession(w http.ResponseWriter, r *http.Request) {
	h.advance(w, r, chi.URLParam(r, "sessionId"))
}

func (h *Handler) advanceQuiz(w http.ResponseWriter, r *http.Request) {
	id, err := h.service.ActiveSession(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "quizId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.advance(w, r, id)
}

// advance honours ?from=N, the position the host last saw.
func (h *Handler) advance(w http.ResponseWriter, r *http.Request, sessionID string) {
	ctx := r.Context()
	caller := callerFrom(ctx)

	var (
		position int
		err      error
	)
	if raw := r.URL.Query().Get("from"); raw != "" {
		from, convErr := strconv.Atoi(raw)
		if convErr != nil {
			h.writeError(w, r, fmt.Errorf("%w: from must be an integer", domain.ErrValidation))
			return
		}
		position, err = h.service.AdvanceSessionFrom(ctx, caller, sessionID, from)
	} else {
		position, err = h.service.AdvanceSession(ctx, caller, sessionID)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, advanceResponse{Position: position})
}

func (h *Handler) endSession(w http.ResponseWriter, r *http.Request) {
	h.end(w, r, chi.URLParam(r, "sessionId"))
}

func (h *Handler) endQuiz(w http.ResponseWriter, r *http.Request) {
	id, err := h.service.ActiveSession(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "quizId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.end(w, r, id)
}

func (h *Handler) end(w http.ResponseWriter, r *http.Request, sessionID string) {
	if _, err := h.service.EndSession(r.Context(), callerFrom(r.Context()), sessionID); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (h *Handler) sessionStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.SessionStatus(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "sessionId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resultsEnvelope{Results: status})
}

func (h *Handler) sessionResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.service.SessionResults(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "sessionId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resultsEnvelope{Results: results.PerPlayer})
}

func (h *Handler) sessionSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.SessionSummary(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "sessionId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
