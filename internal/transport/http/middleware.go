package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"live-quiz-service/internal/auth"
	"live-quiz-service/internal/domain"
)

type ctxKey int

const callerKey ctxKey = iota

// requestLogger logs every request once it completes.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info("request",
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

// hostAuth resolves the host identity from a Bearer token. Browsers cannot set
// headers on websocket upgrades, so a token query parameter is accepted too.
func hostAuth(tokens *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.URL.Query().Get("token")
			if header := r.Header.Get("Authorization"); header != "" {
				parts := strings.SplitN(header, " ", 2)
				if len(parts) != 2 || parts[0] != "Bearer" {
					writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid authorization header"})
					return
				}
				raw = parts[1]
			}
			if raw == "" {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing authorization header"})
				return
			}
			claims, err := tokens.Validate(raw)
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid or expired token"})
				return
			}
			ctx := context.WithValue(r.Context(), callerKey, claims.Caller())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func callerFrom(ctx context.Context) domain.Caller {
	caller, _ := ctx.Value(callerKey).(domain.Caller)
	return caller
}
