package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type joinRequest struct {
	Name string `json:"name"`
}

type joinResponse struct {
	PlayerID string `json:"playerId"`
}

type questionResponse struct {
	Question any `json:"question"`
}

type answerIDs struct {
	AnswerIDs []int `json:"answerIds"`
}

type submitRequest struct {
	AnswerIDs []int `json:"answerIds"`
	Position  *int  `json:"position,omitempty"`
}

func (h *Handler) join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	playerID, err := h.service.JoinSession(r.Context(), chi.URLParam(r, "sessionId"), req.Name)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, joinResponse{PlayerID: playerID})
}

func (h *Handler) playerStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.PlayerStatus(r.Context(), chi.URLParam(r, "playerId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) currentQuestion(w http.ResponseWriter, r *http.Request) {
	q, err := h.service.CurrentQuestion(r.Context(), chi.URLParam(r, "playerId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, questionResponse{Question: q})
}

func (h *Handler) revealedAnswers(w http.ResponseWriter, r *http.Request) {
	ids, err := h.service.RevealedAnswers(r.Context(), chi.URLParam(r, "playerId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answerIDs{AnswerIDs: ids})
}

func (h *Handler) submitAnswer(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.AnswerIDs == nil {
		req.AnswerIDs = []int{}
	}

	playerID := chi.URLParam(r, "playerId")
	var err error
	if req.Position != nil {
		err = h.service.SubmitAnswerAt(r.Context(), playerID, *req.Position, req.AnswerIDs)
	} else {
		err = h.service.SubmitAnswer(r.Context(), playerID, req.AnswerIDs)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (h *Handler) playerResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.service.PlayerResults(r.Context(), chi.URLParam(r, "playerId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}
