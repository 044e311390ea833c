package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/nbakr/marko/internal/audit"
	"github.com/nbakr/marko/internal/config"
	"github.com/nbakr/marko/internal/learning"
	"github.com/nbakr/marko/internal/pipeline"
)

// Server hosts the conversation pipeline and the learning admin API.
type Server struct {
	cfg        *config.Config
	router     chi.Router
	httpServer *http.Server
}

// Deps are the stores and coordinator the server exposes over HTTP.
type Deps struct {
	Coordinator   *pipeline.Coordinator
	PipelineStore *pipeline.Store
	LearningStore *learning.Store
	AuditStore    *audit.Store
}

// New creates a server with all routes mounted.
func New(cfg *config.Config, deps Deps) *Server {
	s := &Server{cfg: cfg}
	s.router = s.buildRouter(deps)
	return s
}

func (s *Server) buildRouter(deps Deps) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	pipeline.RegisterRoutes(r, deps.Coordinator, deps.PipelineStore)
	learning.RegisterRoutes(r, deps.LearningStore, deps.AuditStore)
	audit.RegisterRoutes(r, deps.AuditStore)

	r.Get("/api/conversations/{id}/ws", pipeline.ChatHandler(deps.Coordinator))

	return r
}

// Router returns the chi router for tests and embedding.
func (s *Server) Router() chi.Router { return s.router }

// Start begins listening on the configured port.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("marko server listening on %s", addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
