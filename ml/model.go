package ml

import (
	"errors"
	"fmt"
	"time"
)

// Classifier is the read-only handle the serving layer works against. A
// classifier is fully built before it is handed out and never mutated
// afterwards, so concurrent Predict calls need no locking.
type Classifier interface {
	Predict(features []float64) (Prediction, error)
	Info() ModelInfo
}

// Prediction is the full outcome of a single classification.
type Prediction struct {
	Class         int
	Species       string
	Confidence    float64
	Probabilities []float64
}

// ModelInfo describes a loaded model for status endpoints.
type ModelInfo struct {
	ModelType     string    `json:"model_type"`
	SchemaVersion int       `json:"schema_version"`
	Classes       []string  `json:"classes"`
	FeatureNames  []string  `json:"feature_names"`
	NumTrees      int       `json:"num_trees"`
	MaxDepth      int       `json:"max_depth"`
	Seed          int64     `json:"seed"`
	Accuracy      float64   `json:"accuracy"`
	DataPoints    int       `json:"data_points"`
	TrainedAt     time.Time `json:"trained_at"`
}

// Model pairs a trained forest with the artifact metadata it was loaded
// with, most importantly the class label table.
type Model struct {
	forest *RandomForest
	info   ModelInfo
}

// NumFeatures reports the input width the model expects.
func (m *Model) NumFeatures() int {
	return len(m.info.FeatureNames)
}

// Info returns the model metadata.
func (m *Model) Info() ModelInfo {
	return m.info
}

// Predict classifies one feature vector.
func (m *Model) Predict(features []float64) (Prediction, error) {
	if len(features) != m.NumFeatures() {
		return Prediction{}, fmt.Errorf("expected %d features, got %d", m.NumFeatures(), len(features))
	}
	probs, err := m.forest.PredictProba(features)
	if err != nil {
		return Prediction{}, err
	}
	best := 0
	for i, p := range probs {
		if p > probs[best] {
			best = i
		}
	}
	return Prediction{
		Class:         best,
		Species:       m.info.Classes[best],
		Confidence:    probs[best],
		Probabilities: probs,
	}, nil
}

// NewModel wraps a freshly trained forest for immediate use, bypassing disk.
// The trainer uses it to sanity check artifacts before and after saving.
func NewModel(forest *RandomForest, info ModelInfo) (*Model, error) {
	if forest == nil {
		return nil, errors.New("forest is nil")
	}
	if forest.NumClasses() != len(info.Classes) {
		return nil, errors.New("class table does not match forest output width")
	}
	if len(info.FeatureNames) == 0 {
		return nil, errors.New("feature names are empty")
	}
	return &Model{forest: forest, info: info}, nil
}
