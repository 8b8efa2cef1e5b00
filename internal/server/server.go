// Package server provides the HTTP prediction API for joboffer.
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/joboffer/internal/config"
	"github.com/hyperjump/joboffer/internal/extract"
	"github.com/hyperjump/joboffer/internal/models"
	"github.com/hyperjump/joboffer/internal/pipeline"
	"github.com/hyperjump/joboffer/internal/storage"
	"go.uber.org/zap"
)

// Classifier is the trained pipeline surface served over HTTP.
// *pipeline.Pipeline implements it.
type Classifier interface {
	ClassifyDetail(ctx context.Context, doc string) (pipeline.Classification, error)
	Predict(ctx context.Context, ds models.Dataset) ([]int, error)
	Evaluation() models.EvaluationResult
	Phase() pipeline.Phase
	ModelDir() string
}

// Server is the HTTP server for the joboffer API.
type Server struct {
	storage   storage.Storage
	config    *config.Config
	extractor *extract.Extractor
	logger    *zap.Logger
	server    *http.Server

	mu         sync.RWMutex
	classifier Classifier
	swappedAt  time.Time
}

// NewServer creates a server with the given dependencies. classifier may be
// nil until the first model is trained; requests then get 503.
func NewServer(
	classifier Classifier,
	storage storage.Storage,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		classifier: classifier,
		storage:    storage,
		config:     cfg,
		extractor:  extract.NewExtractor(),
		logger:     logger,
		swappedAt:  time.Now(),
	}
}

// SwapClassifier installs c and returns the previous classifier. It waits for
// in-flight requests on the previous classifier, so the caller may close it.
func (s *Server) SwapClassifier(c Classifier) Classifier {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.classifier
	s.classifier = c
	s.swappedAt = time.Now()
	if c != nil {
		s.logger.Info("classifier swapped", zap.String("model_dir", c.ModelDir()))
	}
	return old
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))
	r.Use(s.requestLogger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/classify", s.handleClassify)
		r.Post("/predict", s.handlePredict)
		r.Get("/evaluation", s.handleEvaluation)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
		r.Get("/status", s.handleStatus)
	})
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := s.config.Server.Addr()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
