package ml

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/devp3102/IDS568-MLOps/iris"
)

func buildTestArtifact(t *testing.T, numTrees int) (*Artifact, *RandomForest) {
	t.Helper()
	features, labels, err := iris.Load()
	if err != nil {
		t.Fatalf("failed to load dataset: %v", err)
	}
	forest, err := TrainForest(features, labels, ForestOptions{
		NumTrees:   numTrees,
		MaxDepth:   10,
		NumClasses: len(iris.SpeciesNames),
		Seed:       42,
	})
	if err != nil {
		t.Fatalf("failed to train forest: %v", err)
	}
	artifact, err := BuildArtifact(forest, ModelInfo{
		Classes:      iris.SpeciesNames,
		FeatureNames: iris.FeatureNames,
		MaxDepth:     10,
		Seed:         42,
		Accuracy:     0.95,
		DataPoints:   len(features),
		TrainedAt:    time.Now().UTC(),
	}, 0.3)
	if err != nil {
		t.Fatalf("failed to build artifact: %v", err)
	}
	return artifact, forest
}

func TestArtifactSaveLoadRoundTrip(t *testing.T) {
	artifact, forest := buildTestArtifact(t, 10)

	path := filepath.Join(t.TempDir(), "model.json")
	if err := artifact.Save(path); err != nil {
		t.Fatalf("failed to save artifact: %v", err)
	}

	model, err := LoadModel(path)
	if err != nil {
		t.Fatalf("failed to load model: %v", err)
	}

	info := model.Info()
	if info.ModelType != ModelTypeRandomForest {
		t.Errorf("expected model type %q, got %q", ModelTypeRandomForest, info.ModelType)
	}
	if info.NumTrees != 10 {
		t.Errorf("expected 10 trees, got %d", info.NumTrees)
	}
	if len(info.Classes) != 3 {
		t.Fatalf("expected 3 classes, got %d", len(info.Classes))
	}

	vectors := [][]float64{
		{5.1, 3.5, 1.4, 0.2},
		{6.4, 3.2, 4.5, 1.5},
		{7.2, 3.0, 5.8, 1.6},
		{6.0, 2.7, 5.1, 1.6},
	}
	for _, vector := range vectors {
		wantLabel, wantConfidence, err := forest.Predict(vector)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got, err := model.Predict(vector)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Class != wantLabel || got.Confidence != wantConfidence {
			t.Fatalf("loaded model diverged from trained forest on %v", vector)
		}
		if got.Species != iris.SpeciesNames[got.Class] {
			t.Fatalf("expected species %q, got %q", iris.SpeciesNames[got.Class], got.Species)
		}
		if len(got.Probabilities) != 3 {
			t.Fatalf("expected 3 probabilities, got %d", len(got.Probabilities))
		}
	}
}

func TestArtifactValidate(t *testing.T) {
	base, _ := buildTestArtifact(t, 3)

	tests := []struct {
		name   string
		mutate func(a *Artifact)
	}{
		{
			name:   "wrong schema version",
			mutate: func(a *Artifact) { a.SchemaVersion = 99 },
		},
		{
			name:   "empty model type",
			mutate: func(a *Artifact) { a.ModelType = "" },
		},
		{
			name:   "missing classes",
			mutate: func(a *Artifact) { a.Classes = []string{"setosa"} },
		},
		{
			name:   "empty class label",
			mutate: func(a *Artifact) { a.Classes = []string{"setosa", "", "virginica"} },
		},
		{
			name:   "duplicate class label",
			mutate: func(a *Artifact) { a.Classes = []string{"setosa", "setosa", "virginica"} },
		},
		{
			name:   "empty feature names",
			mutate: func(a *Artifact) { a.FeatureNames = nil },
		},
		{
			name:   "tree count mismatch",
			mutate: func(a *Artifact) { a.NumTrees = 7 },
		},
		{
			name:   "accuracy out of range",
			mutate: func(a *Artifact) { a.Accuracy = 1.5 },
		},
		{
			name:   "corrupt tree",
			mutate: func(a *Artifact) { a.Trees[0] = []TreeNode{{FeatureIdx: 0, LeftChild: 5, RightChild: 6}} },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clone := *base
			clone.Classes = append([]string(nil), base.Classes...)
			clone.FeatureNames = append([]string(nil), base.FeatureNames...)
			clone.Trees = append([][]TreeNode(nil), base.Trees...)
			tt.mutate(&clone)
			if err := clone.Validate(); err == nil {
				t.Fatal("expected validation error, got nil")
			}
		})
	}
}

func TestReadArtifactErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := ReadArtifact(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}

	garbled := filepath.Join(dir, "garbled.json")
	if err := os.WriteFile(garbled, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	if _, err := ReadArtifact(garbled); err == nil {
		t.Fatal("expected error for garbled file")
	}
}

func TestModelFromArtifactUnsupportedType(t *testing.T) {
	artifact, _ := buildTestArtifact(t, 3)
	artifact.ModelType = "linear_svm"
	if _, err := ModelFromArtifact(artifact); err == nil {
		t.Fatal("expected error for unsupported model type")
	}
}

func TestModelPredictWrongWidth(t *testing.T) {
	artifact, _ := buildTestArtifact(t, 3)
	model, err := ModelFromArtifact(artifact)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := model.Predict([]float64{1.0, 2.0}); err == nil {
		t.Fatal("expected error for wrong feature width")
	}
}

func TestBuildArtifactValidation(t *testing.T) {
	if _, err := BuildArtifact(nil, ModelInfo{}, 0.3); err == nil {
		t.Fatal("expected error for nil forest")
	}

	_, forest := buildTestArtifact(t, 3)
	if _, err := BuildArtifact(forest, ModelInfo{Classes: []string{"a", "b"}}, 0.3); err == nil {
		t.Fatal("expected error for class table mismatch")
	}
}
