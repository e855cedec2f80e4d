package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/dgallion1/imgnamer/internal/config"
	"github.com/dgallion1/imgnamer/internal/pipeline"
)

// Server is the HTTP API server for imgnamer.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	engine       *pipeline.Engine
	validate     *validator.Validate
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(orch *pipeline.Orchestrator, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		orchestrator: orch,
		engine:       orch.Engine(),
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		log:          log,
		cfg:          cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Post("/api/documents/preview", s.handlePreview)
		r.Post("/api/documents/preview/jobs", s.handleSubmitPreview)
		r.Get("/api/documents/preview/jobs/{jobID}", s.handlePreviewStatus)
		r.Delete("/api/documents/preview/jobs/{jobID}", s.handleCancelPreview)
		r.Post("/api/documents/apply", s.handleApply)
		r.Post("/api/documents/restore", s.handleRestore)
		r.Post("/api/documents/normalize-html", s.handleNormalizeHTML)

		r.Post("/api/candidates", s.handleCandidates)
		r.Post("/api/text/process", s.handleProcessText)

		r.Get("/api/presets", s.handleListPresets)
		r.Get("/api/presets/{name}", s.handleGetPreset)
		r.Put("/api/presets/{name}", s.handlePutPreset)
		r.Delete("/api/presets/{name}", s.handleDeletePreset)

		r.Get("/api/stats/llm", s.handleLLMStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"queue_depth": s.orchestrator.QueueDepth(),
	})
}
