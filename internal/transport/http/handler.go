package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/auth"
	"live-quiz-service/internal/metrics"
)

const defaultStatusInterval = time.Second

// Handler exposes the session use cases over HTTP: host routes under /admin,
// player routes under /play.
type Handler struct {
	service        *app.SessionService
	tokens         *auth.JWTService
	metrics        *metrics.Metrics
	logger         *zap.Logger
	upgrader       websocket.Upgrader
	statusInterval time.Duration
}

// Option customizes a Handler.
type Option func(*Handler)

// WithMetrics enables request instrumentation and the /metrics endpoint.
func WithMetrics(m *metrics.Metrics) Option { return func(h *Handler) { h.metrics = m } }

func WithLogger(logger *zap.Logger) Option { return func(h *Handler) { h.logger = logger } }

// WithStatusInterval sets how often the websocket stream pushes status between events.
func WithStatusInterval(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.statusInterval = d
		}
	}
}

func NewHandler(service *app.SessionService, tokens *auth.JWTService, opts ...Option) *Handler {
	h := &Handler{
		service: service,
		tokens:  tokens,
		logger:  zap.NewNop(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		statusInterval: defaultStatusInterval,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	return h
}

// Routes builds the chi router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(h.logger))
	if h.metrics != nil {
		r.Use(h.metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(hostAuth(h.tokens))
		r.Post("/quiz/{quizId}/start", h.startSession)
		r.Post("/quiz/{quizId}/advance", h.advanceQuiz)
		r.Post("/quiz/{quizId}/end", h.endQuiz)
		r.Route("/session/{sessionId}", func(r chi.Router) {
			r.Post("/advance", h.advanceSession)
			r.Post("/end", h.endSession)
			r.Get("/status", h.sessionStatus)
			r.Get("/results", h.sessionResults)
			r.Get("/results/summary", h.sessionSummary)
			r.Get("/ws", h.statusStream)
		})
	})

	r.Route("/play", func(r chi.Router) {
		r.Post("/join/{sessionId}", h.join)
		r.Route("/{playerId}", func(r chi.Router) {
			r.Get("/status", h.playerStatus)
			r.Get("/question", h.currentQuestion)
			r.Get("/answer", h.revealedAnswers)
			r.Put("/answer", h.submitAnswer)
			r.Get("/results", h.playerResults)
		})
	})
	return r
}
