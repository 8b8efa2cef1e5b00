package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/joboffer/internal/dataset"
	"github.com/hyperjump/joboffer/internal/extract"
	"github.com/hyperjump/joboffer/internal/models"
	"github.com/hyperjump/joboffer/internal/pipeline"
	"github.com/hyperjump/joboffer/internal/storage"
	"go.uber.org/zap"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 100
	maxDocuments     = 1000
)

type classifyRequest struct {
	Document string `json:"document"`
	// Format is an optional document format such as "html"; the document is
	// converted to plain text before classification.
	Format string `json:"format,omitempty"`
}

type predictRequest struct {
	Documents []string `json:"documents"`
}

type predictResponse struct {
	ClassIDs []int    `json:"class_ids"`
	Labels   []string `json:"labels"`
}

// withClassifier runs fn under the read lock, or responds 503 when no model is loaded.
func (s *Server) withClassifier(w http.ResponseWriter, fn func(Classifier)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.classifier == nil {
		s.respondError(w, http.StatusServiceUnavailable, "model not ready")
		return
	}
	fn(s.classifier)
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	doc := req.Document
	if req.Format != "" {
		text, err := s.extractor.ExtractBytes([]byte(doc), extract.FormatExtension(req.Format))
		if err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		doc = text
	}
	if dataset.Preprocess(doc) == "" {
		s.respondError(w, http.StatusBadRequest, "document is required")
		return
	}
	s.withClassifier(w, func(c Classifier) {
		result, err := c.ClassifyDetail(r.Context(), doc)
		if err != nil {
			s.respondPipelineError(w, "classify", err)
			return
		}
		s.logger.Debug("classify request", zap.String("label", result.Label), zap.Float64("probability", result.Probability))
		s.respondJSON(w, http.StatusOK, result)
	})
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Documents) == 0 {
		s.respondError(w, http.StatusBadRequest, "documents are required")
		return
	}
	if len(req.Documents) > maxDocuments {
		s.respondError(w, http.StatusRequestEntityTooLarge, "too many documents")
		return
	}
	ds := make(models.Dataset, len(req.Documents))
	for i, doc := range req.Documents {
		ds[i] = models.Record{ID: i, Payload: dataset.Preprocess(doc), Sentiment: models.Negative}
	}
	s.withClassifier(w, func(c Classifier) {
		ids, err := c.Predict(r.Context(), ds)
		if err != nil {
			s.respondPipelineError(w, "predict", err)
			return
		}
		resp := predictResponse{ClassIDs: ids, Labels: make([]string, len(ids))}
		for i, id := range ids {
			resp.Labels[i] = models.LabelName(id)
		}
		s.respondJSON(w, http.StatusOK, resp)
	})
}

func (s *Server) handleEvaluation(w http.ResponseWriter, r *http.Request) {
	s.withClassifier(w, func(c Classifier) {
		eval := c.Evaluation()
		if eval == nil {
			s.respondError(w, http.StatusNotFound, "model not evaluated")
			return
		}
		s.respondJSON(w, http.StatusOK, eval)
	})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		s.respondError(w, http.StatusBadRequest, "invalid offset")
		return
	}
	limit, err := queryInt(r, "limit", defaultRunsLimit)
	if err != nil || limit <= 0 {
		s.respondError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	limit = min(limit, maxRunsLimit)
	runs, err := s.storage.ListRuns(r.Context(), offset, limit)
	if err != nil {
		s.logger.Error("list runs failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []*models.Run{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"runs": runs, "offset": offset, "limit": limit})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := s.storage.GetRun(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.logger.Error("get run failed", zap.String("id", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, run)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runCount, err := s.storage.CountRuns(ctx)
	if err != nil {
		s.logger.Error("status: count runs failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]interface{}{
		"runs": runCount,
	}

	s.mu.RLock()
	paths := []string{}
	if s.classifier != nil {
		resp["phase"] = s.classifier.Phase().String()
		resp["model_dir"] = s.classifier.ModelDir()
		resp["model_loaded_at"] = s.swappedAt
		paths = append(paths, s.classifier.ModelDir())
	} else {
		resp["phase"] = "none"
	}
	s.mu.RUnlock()

	if s.config != nil {
		resp["config"] = map[string]interface{}{
			"source":        s.config.Data.Source,
			"module_spec":   s.config.Embedding.ModuleSpec,
			"hidden_units":  s.config.Model.HiddenUnits,
			"optimizer":     s.config.Model.Optimizer,
			"train_steps":   s.config.Model.TrainSteps,
			"database_path": s.config.Storage.DatabasePath,
			"watch":         s.config.Server.Watch,
		}
		paths = append(paths, s.config.Storage.DatabasePath)
	}
	if diskBytes, err := storage.DiskUsageBytes(paths...); err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// respondPipelineError maps pipeline errors to HTTP status codes.
func (s *Server) respondPipelineError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, pipeline.ErrState) {
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.logger.Error(op+" failed", zap.Error(err))
	s.respondError(w, http.StatusInternalServerError, err.Error())
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
