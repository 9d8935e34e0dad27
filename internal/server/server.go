// Package server exposes the QA engine over a JSON REST API.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/docuchat/docuchat/internal/engine"
)

// Server is the HTTP front end.
type Server struct {
	router    *chi.Mux
	engine    *engine.Engine
	maxUpload int64
	topK      int
	logger    *slog.Logger
}

// Options configures a Server.
type Options func(*Server)

// WithMaxUpload caps the accepted upload size in bytes.
func WithMaxUpload(limit int64) Options {
	return func(s *Server) { s.maxUpload = limit }
}

// WithTopK sets the retrieval depth used when a request leaves it unset.
func WithTopK(k int) Options {
	return func(s *Server) { s.topK = k }
}

// WithLogger sets the access and error logger.
func WithLogger(logger *slog.Logger) Options {
	return func(s *Server) { s.logger = logger }
}

// New builds the router and wires every endpoint.
func New(eng *engine.Engine, opts ...Options) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		engine:    eng,
		maxUpload: 50 << 20,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := s.router
	r.Use(middleware.RequestID)
	r.Use(s.accessLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Post("/upload", s.handleUpload)
	r.Post("/chat", s.handleChat)
	r.Post("/clear", s.handleClear)

	r.Get("/documents", s.handleListDocuments)
	r.Delete("/documents/{id}", s.handleDeleteDocument)

	r.Get("/chat/sessions", s.handleListSessions)
	r.Post("/chat/session/new", s.handleNewSession)
	r.Get("/chat/session/{id}", s.handleGetSession)
	r.Put("/chat/session/{id}/rename", s.handleRenameSession)
	r.Delete("/chat/session/{id}", s.handleDeleteSession)

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Mount attaches the API under a parent router.
func (s *Server) Mount(parent chi.Router) {
	parent.Mount("/", s.router)
}

func (s *Server) accessLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("access",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
