package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"lalaquiz-backend/internal/handlers"
	"lalaquiz-backend/internal/middleware"
)

type Handlers struct {
	Auth    *handlers.AuthHandler
	Quiz    *handlers.QuizHandler
	Session *handlers.SessionHandler
	Share   *handlers.ShareHandler
	Stats   *handlers.StatsHandler

	// WebSocket is optional; nil leaves /ws unrouted.
	WebSocket http.HandlerFunc
}

func New(jwtAuth *middleware.JWTAuth, h Handlers, frontendURL string) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{frontendURL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Guest tokens: 10 req/min per IP
	authLimiter := middleware.NewRateLimiter(10, time.Minute)
	// Generation calls a paid provider: 20 req/min per user
	generateLimiter := middleware.NewRateLimiter(20, time.Minute)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Auth (public) ────
		r.With(authLimiter.Middleware).Post("/auth/guest", h.Auth.Guest)

		r.Group(func(r chi.Router) {
			r.Use(jwtAuth.Middleware)

			// ──── Generation ────
			r.With(generateLimiter.Middleware).Post("/quizzes/generate", h.Quiz.Generate)
			r.Get("/jobs/{id}", h.Quiz.GetJob)

			// ──── Sessions ────
			r.Route("/sessions", func(r chi.Router) {
				r.Get("/", h.Session.List)
				r.Get("/{id}", h.Session.Get)
				r.Put("/{id}", h.Session.Rename)
				r.Delete("/{id}", h.Session.Delete)
				r.Post("/{id}/share", h.Session.Share)
				r.Post("/{id}/score", h.Session.Score)
				r.Post("/{id}/retake-missed", h.Session.RetakeMissed)
				r.Get("/{id}/export", h.Session.Export)
			})

			// ──── Sharing ────
			r.Get("/shared", h.Share.LoadShared)
			r.Post("/share/encode", h.Share.Encode)

			// ──── Stats ────
			r.Get("/stats", h.Stats.Get)
			r.Post("/stats/xp", h.Stats.AwardXP)
		})

		// ──── WebSocket (token in query) ────
		if h.WebSocket != nil {
			r.Get("/ws", h.WebSocket)
		}
	})

	return r
}
