package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/devp3102/IDS568-MLOps/db"
	"github.com/devp3102/IDS568-MLOps/iris"
	"github.com/devp3102/IDS568-MLOps/ml"
	"github.com/devp3102/IDS568-MLOps/monitoring"
)

// predictRequest accepts both body shapes: a bare features array or the
// four named measurements. A non-null features array wins when both are
// present.
type predictRequest struct {
	Features    []float64 `json:"features"`
	SepalLength *float64  `json:"sepal_length" validate:"required,gte=0,lte=10"`
	SepalWidth  *float64  `json:"sepal_width" validate:"required,gte=0,lte=10"`
	PetalLength *float64  `json:"petal_length" validate:"required,gte=0,lte=10"`
	PetalWidth  *float64  `json:"petal_width" validate:"required,gte=0,lte=10"`
}

type predictResponse struct {
	Prediction    int                `json:"prediction"`
	Species       string             `json:"species"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"probabilities"`
}

func (h *Handler) handlePredict(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req predictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.rejectPredict(w, http.StatusBadRequest, decodeMessage(err), "malformed")
		return
	}

	// Bad input is the caller's fault and never reaches the model.
	features, err := h.featureVector(&req)
	if err != nil {
		h.rejectPredict(w, http.StatusUnprocessableEntity, err.Error(), "validation")
		return
	}

	if !h.modelLoaded() {
		h.rejectPredict(w, http.StatusServiceUnavailable, "model not loaded", "model_unavailable")
		return
	}

	result, cached := h.cache.get(features)
	if cached {
		h.metrics.IncrCounter("prediction_cache_total", 1, map[string]string{"result": "hit"})
	} else {
		h.metrics.IncrCounter("prediction_cache_total", 1, map[string]string{"result": "miss"})
		result, err = h.model.Predict(features)
		if err != nil {
			h.logger.Error("inference failed", zap.Error(err), zap.Float64s("features", features))
			h.rejectPredict(w, http.StatusInternalServerError, "prediction failed: "+err.Error(), "inference")
			return
		}
		h.cache.add(features, result)
	}

	info := h.model.Info()
	probs := make(map[string]float64, len(info.Classes))
	for i, class := range info.Classes {
		probs[class] = result.Probabilities[i]
	}

	latency := time.Since(start)
	h.metrics.IncrCounter("predictions_total", 1, map[string]string{"species": result.Species})
	h.metrics.ObserveLatency("predict_latency", latency)

	h.recordPrediction(GetRequestID(r.Context()), features, result, latency)

	respondJSON(w, http.StatusOK, predictResponse{
		Prediction:    result.Class,
		Species:       result.Species,
		Confidence:    result.Confidence,
		Probabilities: probs,
	})
}

// featureVector extracts and validates the measurement vector from either
// request shape.
func (h *Handler) featureVector(req *predictRequest) ([]float64, error) {
	if req.Features != nil {
		if len(req.Features) != iris.NumFeatures {
			return nil, fmt.Errorf("features must contain exactly %d values, got %d", iris.NumFeatures, len(req.Features))
		}
		for i, v := range req.Features {
			if v < 0 || v > 10 {
				return nil, fmt.Errorf("features[%d] must be between 0 and 10, got %g", i, v)
			}
		}
		return append([]float64(nil), req.Features...), nil
	}

	if err := h.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fieldMessage(fe))
			}
			return nil, errors.New(strings.Join(msgs, "; "))
		}
		return nil, err
	}
	return []float64{*req.SepalLength, *req.SepalWidth, *req.PetalLength, *req.PetalWidth}, nil
}

// recordPrediction is observability only; failures never affect the response.
func (h *Handler) recordPrediction(requestID string, features []float64, p ml.Prediction, latency time.Duration) {
	latencyMS := float64(latency.Microseconds()) / 1000.0

	if h.store != nil {
		rec := &db.PredictionRecord{
			RequestID:   requestID,
			SepalLength: features[0],
			SepalWidth:  features[1],
			PetalLength: features[2],
			PetalWidth:  features[3],
			Class:       p.Class,
			Species:     p.Species,
			Confidence:  p.Confidence,
			LatencyMS:   latencyMS,
		}
		if err := h.store.SavePrediction(rec); err != nil {
			h.metrics.IncrCounter("store_failures_total", 1, nil)
			h.logger.Warn("failed to record prediction", zap.Error(err))
		}
	}

	if h.hub != nil {
		h.hub.SendPrediction(monitoring.PredictionEvent{
			RequestID:  requestID,
			Features:   features,
			Prediction: p.Class,
			Species:    p.Species,
			Confidence: p.Confidence,
			LatencyMS:  latencyMS,
		})
	}
}

// rejectPredict answers a failed predict request. Client-input rejections
// are counted but deliberately not logged as server faults.
func (h *Handler) rejectPredict(w http.ResponseWriter, status int, msg, reason string) {
	h.metrics.IncrCounter("prediction_errors_total", 1, map[string]string{"reason": reason})
	errorJSON(w, status, msg)
}

func decodeMessage(err error) string {
	if errors.Is(err, io.EOF) {
		return "request body is required"
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		if typeErr.Field != "" {
			return fmt.Sprintf("%s must be a number", typeErr.Field)
		}
		return "body must be a JSON object"
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return "request body too large"
	}
	return "malformed JSON"
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

// newRequestValidator reports violations by json field name.
func newRequestValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
