package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"onenight-backend/internal/handlers"
	"onenight-backend/internal/middleware"
	"onenight-backend/internal/websocket"
)

type Handlers struct {
	Workspace *handlers.WorkspaceHandler
	Session   *handlers.SessionHandler
	Config    *handlers.ConfigHandler
	Material  *handlers.MaterialHandler
	Chat      *handlers.ChatHandler
	Map       *handlers.MapHandler
	History   *handlers.HistoryHandler
}

// New builds the HTTP handler. The caller owns workspaceLimiter and closes it
// on shutdown.
func New(
	jwtAuth *middleware.JWTAuth,
	workspaceLimiter *middleware.RateLimiter,
	h Handlers,
	wsHub *websocket.Hub,
	gatherer prometheus.Gatherer,
	frontendURL string,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(frontendURL))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Workspaces (public) ────
		r.With(workspaceLimiter.Middleware).Post("/workspaces", h.Workspace.Create)

		// ──── Session ────
		r.Route("/session", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/", h.Session.Get)
			r.Post("/start", h.Session.Start)
			r.Post("/stop", h.Session.Stop)
			r.Post("/pause", h.Session.TogglePause)
		})

		// ──── Config ────
		r.Route("/config", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Put("/", h.Config.Update)
			r.Put("/avatar", h.Config.UpdateAvatar)
		})

		// ──── Materials ────
		r.Route("/materials", func(r chi.Router) {
			r.Get("/supported-formats", h.Material.SupportedFormats) // Public

			r.Group(func(r chi.Router) {
				r.Use(jwtAuth.Middleware)
				r.Post("/upload", h.Material.Upload)
				r.Post("/text", h.Material.AddText)
				r.Post("/data-url", h.Material.AddDataURL)
				r.Delete("/{id}", h.Material.Delete)
			})
		})

		// ──── Chat ────
		r.Route("/chat", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Post("/messages", h.Chat.SendMessage)
			r.Post("/quiz", h.Chat.RequestQuiz)
			r.Post("/quiz/{id}/answer", h.Chat.AnswerQuiz)
		})

		// ──── Knowledge Map ────
		r.Route("/map", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Put("/current", h.Map.SetCurrent)
			r.Post("/nodes/{id}/complete", h.Map.Complete)
		})

		// ──── History ────
		r.With(jwtAuth.Middleware).Get("/history", h.History.List)

		// ──── WebSocket ────
		r.Get("/ws", wsHub.HandleWebSocket)
	})

	return r
}
