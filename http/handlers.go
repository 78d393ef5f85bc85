package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/devp3102/IDS568-MLOps/db"
	"github.com/devp3102/IDS568-MLOps/iris"
	"github.com/devp3102/IDS568-MLOps/ml"
	"github.com/devp3102/IDS568-MLOps/monitoring"
)

const (
	serviceName    = "iris-classification"
	serviceVersion = "1.0.0"
)

// Handler owns the route set. The model is an immutable handle fixed at
// construction; when the artifact failed to load it stays nil and the
// service runs degraded, answering 503 on inference routes until restart.
type Handler struct {
	model     ml.Classifier
	modelPath string
	store     *db.Store
	metrics   *monitoring.MetricsCollector
	hub       *monitoring.WebSocketHub
	watcher   *monitoring.ArtifactWatcher
	cache     *predictionCache
	validate  *validator.Validate
	logger    *zap.Logger
	startTime time.Time
}

// HandlerConfig carries the dependencies for NewHandler. Store, Hub and
// Watcher may be nil; the matching features degrade quietly.
type HandlerConfig struct {
	Model     ml.Classifier
	ModelPath string
	Store     *db.Store
	Metrics   *monitoring.MetricsCollector
	Hub       *monitoring.WebSocketHub
	Watcher   *monitoring.ArtifactWatcher
	CacheSize int
	Logger    *zap.Logger
}

// NewHandler wires the handler set.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = monitoring.NewMetricsCollector()
	}

	h := &Handler{
		model:     cfg.Model,
		modelPath: cfg.ModelPath,
		store:     cfg.Store,
		metrics:   cfg.Metrics,
		hub:       cfg.Hub,
		watcher:   cfg.Watcher,
		cache:     newPredictionCache(cfg.CacheSize),
		validate:  newRequestValidator(),
		logger:    cfg.Logger,
		startTime: time.Now(),
	}

	h.metrics.SetHelp("http_requests_total", "Requests served, by route and status.")
	h.metrics.SetHelp("predictions_total", "Successful predictions, by species.")
	h.metrics.SetHelp("prediction_errors_total", "Rejected or failed predictions, by reason.")
	h.metrics.SetHelp("prediction_cache_total", "Prediction cache lookups, by result.")
	h.metrics.SetHelp("model_loaded", "1 when the model artifact is loaded.")
	if h.model != nil {
		h.metrics.SetGauge("model_loaded", 1, nil)
	} else {
		h.metrics.SetGauge("model_loaded", 0, nil)
	}

	return h
}

// Register attaches all routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.handleRoot)
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("POST /predict", h.handlePredict)
	mux.HandleFunc("GET /model", h.handleModelInfo)
	mux.HandleFunc("GET /predictions", h.handleRecentPredictions)
	mux.HandleFunc("GET /trainings", h.handleTrainingHistory)
	mux.HandleFunc("GET /metrics", h.handleMetrics)
	mux.HandleFunc("GET /stats", h.handleStats)
	mux.HandleFunc("GET /ws/predictions", h.handleWebSocket)
}

func (h *Handler) modelLoaded() bool {
	return h.model != nil
}

func (h *Handler) handleRoot(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "healthy",
		"service":      serviceName,
		"version":      serviceVersion,
		"model_loaded": h.modelLoaded(),
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if !h.modelLoaded() {
		status = "degraded"
	}

	stale := false
	if h.watcher != nil {
		stale = h.watcher.Stale()
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":         status,
		"model_loaded":   h.modelLoaded(),
		"model_path":     h.modelPath,
		"model_stale":    stale,
		"uptime_seconds": time.Since(h.startTime).Seconds(),
	})
}

func (h *Handler) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	if !h.modelLoaded() {
		errorJSON(w, http.StatusServiceUnavailable, "model not loaded")
		return
	}

	info := h.model.Info()
	labels := make([]map[string]interface{}, len(info.Classes))
	for i, class := range info.Classes {
		labels[i] = map[string]interface{}{
			"class":        i,
			"species":      class,
			"display_name": iris.DisplayName(i),
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"model":  info,
		"labels": labels,
		"path":   h.modelPath,
	})
}

func (h *Handler) handleRecentPredictions(w http.ResponseWriter, r *http.Request) {
	// No store configured: history is simply empty.
	if h.store == nil {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"count":       0,
			"predictions": []db.PredictionRecord{},
		})
		return
	}

	records, err := h.store.RecentPredictions(queryLimit(r, 50))
	if err != nil {
		h.logger.Error("failed to query predictions", zap.Error(err))
		errorJSON(w, http.StatusInternalServerError, "failed to query prediction history")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":       len(records),
		"predictions": records,
	})
}

func (h *Handler) handleTrainingHistory(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"count":     0,
			"trainings": []db.TrainingRecord{},
		})
		return
	}

	records, err := h.store.TrainingHistory(queryLimit(r, 50))
	if err != nil {
		h.logger.Error("failed to query training history", zap.Error(err))
		errorJSON(w, http.StatusInternalServerError, "failed to query training history")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":     len(records),
		"trainings": records,
	})
}

func (h *Handler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "json" || strings.Contains(r.Header.Get("Accept"), "application/json") {
		out, err := h.metrics.ExportJSON()
		if err != nil {
			errorJSON(w, http.StatusInternalServerError, "failed to export metrics")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(out))
		return
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.Write([]byte(h.metrics.ExportPrometheus()))
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"service":      serviceName,
		"version":      serviceVersion,
		"model_loaded": h.modelLoaded(),
		"system":       h.metrics.GetSystemStats(),
		"cache": map[string]interface{}{
			"enabled": h.cache != nil,
			"size":    h.cache.size(),
			"hits":    h.metrics.CounterValue("prediction_cache_total", map[string]string{"result": "hit"}),
			"misses":  h.metrics.CounterValue("prediction_cache_total", map[string]string{"result": "miss"}),
		},
		"predict_latency": h.metrics.LatencySummary("predict_latency"),
	}
	if h.hub != nil {
		stats["websocket"] = h.hub.Stats()
	}

	respondJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		errorJSON(w, http.StatusServiceUnavailable, "websocket feed not available")
		return
	}
	h.hub.HandleWebSocket(w, r)
}

// queryLimit parses ?limit=N, falling back to def.
func queryLimit(r *http.Request, def int) int {
	limit := def
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	return limit
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorJSON(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
