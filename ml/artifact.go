package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// ArtifactSchemaVersion is bumped whenever the persisted layout changes in a
// way old readers cannot handle.
const ArtifactSchemaVersion = 1

// ModelTypeRandomForest identifies the only model type currently persisted.
const ModelTypeRandomForest = "random_forest"

// Artifact is the persisted form of a trained model. The class label table
// travels inside the artifact so the serving side never has to guess the
// index-to-name mapping.
type Artifact struct {
	SchemaVersion int          `json:"schema_version"`
	ModelType     string       `json:"model_type"`
	Classes       []string     `json:"classes"`
	FeatureNames  []string     `json:"feature_names"`
	NumTrees      int          `json:"num_trees"`
	MaxDepth      int          `json:"max_depth"`
	Seed          int64        `json:"seed"`
	TestRatio     float64      `json:"test_ratio"`
	Accuracy      float64      `json:"accuracy"`
	DataPoints    int          `json:"data_points"`
	TrainedAt     time.Time    `json:"trained_at"`
	Trees         [][]TreeNode `json:"trees"`
}

// Save writes the artifact as JSON.
func (a *Artifact) Save(path string) error {
	if err := a.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o600)
}

// ReadArtifact loads and validates an artifact from disk.
func ReadArtifact(path string) (*Artifact, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var artifact Artifact
	if err := json.Unmarshal(payload, &artifact); err != nil {
		return nil, fmt.Errorf("failed to decode artifact: %v", err)
	}
	if err := artifact.Validate(); err != nil {
		return nil, err
	}
	return &artifact, nil
}

// Validate checks the artifact is complete and internally consistent.
func (a *Artifact) Validate() error {
	if a.SchemaVersion != ArtifactSchemaVersion {
		return fmt.Errorf("unsupported artifact schema version %d", a.SchemaVersion)
	}
	if a.ModelType == "" {
		return errors.New("artifact model type is empty")
	}
	if len(a.Classes) < 2 {
		return errors.New("artifact class table needs at least two classes")
	}
	seen := make(map[string]bool, len(a.Classes))
	for _, class := range a.Classes {
		if class == "" {
			return errors.New("artifact class table contains an empty label")
		}
		if seen[class] {
			return fmt.Errorf("artifact class table contains duplicate label %q", class)
		}
		seen[class] = true
	}
	if len(a.FeatureNames) == 0 {
		return errors.New("artifact feature names are empty")
	}
	for _, name := range a.FeatureNames {
		if name == "" {
			return errors.New("artifact feature names contain an empty entry")
		}
	}
	if a.NumTrees <= 0 {
		return errors.New("artifact tree count must be positive")
	}
	if len(a.Trees) != a.NumTrees {
		return fmt.Errorf("artifact declares %d trees but contains %d", a.NumTrees, len(a.Trees))
	}
	if a.Accuracy < 0 || a.Accuracy > 1 {
		return fmt.Errorf("artifact accuracy %v out of range", a.Accuracy)
	}
	for i, nodes := range a.Trees {
		if err := validateNodes(nodes, len(a.Classes)); err != nil {
			return fmt.Errorf("tree %d: %v", i, err)
		}
	}
	return nil
}
