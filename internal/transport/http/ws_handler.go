package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"live-quiz-service/internal/domain"
)

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type advancePayload struct {
	From *int `json:"from,omitempty"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// statusStream pushes the host panel's status over a websocket: once on
// connect, after every session event and on a fixed tick so the countdown
// keeps moving. The host may also send "advance" and "end" commands.
func (h *Handler) statusStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := callerFrom(ctx)
	sessionID := chi.URLParam(r, "sessionId")

	events, cancel, err := h.service.Subscribe(ctx, caller, sessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	pumpDone := make(chan struct{})

	push := func(msg outboundMessage) bool {
		select {
		case send <- msg:
			return true
		case <-writerDone:
			return false
		}
	}
	pushStatus := func() bool {
		status, err := h.service.SessionStatus(ctx, caller, sessionID)
		if err != nil {
			return push(outboundMessage{Type: "error", Payload: errorPayload{Message: err.Error()}})
		}
		return push(outboundMessage{Type: "status", Payload: status})
	}

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("ws write error", zap.String("session_id", sessionID), zap.Error(err))
				// Unblock the reader loop.
				_ = conn.Close()
				return
			}
		}
	}()

	go func() {
		defer close(pumpDone)
		ticker := time.NewTicker(h.statusInterval)
		defer ticker.Stop()
		for {
			select {
			case evt, ok := <-events:
				if !ok {
					return
				}
				if evt.Type == domain.EventEnded {
					h.pushResults(ctx, caller, sessionID, push)
				}
				if !pushStatus() {
					return
				}
			case <-ticker.C:
				if !pushStatus() {
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	pushStatus()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "advance":
			var payload advancePayload
			if len(inbound.Payload) > 0 {
				if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
					push(outboundMessage{Type: "error", Payload: errorPayload{Message: "invalid advance payload"}})
					continue
				}
			}
			var position int
			if payload.From != nil {
				position, err = h.service.AdvanceSessionFrom(ctx, caller, sessionID, *payload.From)
			} else {
				position, err = h.service.AdvanceSession(ctx, caller, sessionID)
			}
			if err != nil {
				push(outboundMessage{Type: "error", Payload: errorPayload{Message: err.Error()}})
				continue
			}
			push(outboundMessage{Type: "advanced", Payload: advanceResponse{Position: position}})
		case "end":
			if _, err := h.service.EndSession(ctx, caller, sessionID); err != nil {
				push(outboundMessage{Type: "error", Payload: errorPayload{Message: err.Error()}})
			}
		default:
			push(outboundMessage{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
		}
	}

	close(closeSignals)
	<-pumpDone
	close(send)
	<-writerDone
}

func (h *Handler) pushResults(ctx context.Context, caller domain.Caller, sessionID string, push func(outboundMessage) bool) {
	results, err := h.service.SessionResults(ctx, caller, sessionID)
	if err != nil {
		h.logger.Warn("load results for stream", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	push(outboundMessage{Type: "results", Payload: resultsEnvelope{Results: results.PerPlayer}})
}
