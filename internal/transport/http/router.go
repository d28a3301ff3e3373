package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"mindquake-service/internal/app"
)

// Server exposes the quiz and profile use cases over REST and a websocket.
type Server struct {
	quiz     *app.QuizService
	profiles *app.ProfileService
	ws       *WSHandler
	router   *chi.Mux
}

func NewServer(quiz *app.QuizService, profiles *app.ProfileService) *Server {
	s := &Server{
		quiz:     quiz,
		profiles: profiles,
		ws:       NewWSHandler(quiz),
	}
	s.setupRouter()
	return s
}

// Router returns the configured router.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	// Long-lived, so kept out of the request timeout below.
	r.Get("/ws", s.ws.ServeWS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.handleStartSession)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Delete("/", s.handleAbortSession)
				r.Post("/answers", s.handleAnswer)
			})
		})

		r.Route("/users/{id}", func(r chi.Router) {
			r.Get("/profile", s.handleProfile)
			r.Get("/achievements", s.handleAchievements)
		})

		r.Get("/leaderboard", s.handleLeaderboard)
	})

	s.router = r
}

// loggingMiddleware logs HTTP requests using slog.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
