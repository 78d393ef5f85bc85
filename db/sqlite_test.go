package db

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestOpenCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "test.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	store.Close()
}

func TestSaveAndQueryPredictions(t *testing.T) {
	store := openTestStore(t)

	records := []PredictionRecord{
		{RequestID: "req-1", SepalLength: 5.1, SepalWidth: 3.5, PetalLength: 1.4, PetalWidth: 0.2, Class: 0, Species: "setosa", Confidence: 0.98, LatencyMS: 1.2},
		{RequestID: "req-2", SepalLength: 6.4, SepalWidth: 3.2, PetalLength: 4.5, PetalWidth: 1.5, Class: 1, Species: "versicolor", Confidence: 0.91, LatencyMS: 0.8},
		{RequestID: "req-3", SepalLength: 7.2, SepalWidth: 3.0, PetalLength: 5.8, PetalWidth: 1.6, Class: 2, Species: "virginica", Confidence: 0.88, LatencyMS: 0.9},
	}
	for i := range records {
		if err := store.SavePrediction(&records[i]); err != nil {
			t.Fatalf("failed to save prediction: %v", err)
		}
		if records[i].ID == 0 {
			t.Fatal("expected assigned row id")
		}
		if records[i].CreatedAt.IsZero() {
			t.Fatal("expected created_at to be filled")
		}
	}

	got, err := store.RecentPredictions(10)
	if err != nil {
		t.Fatalf("failed to query predictions: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 predictions, got %d", len(got))
	}
	// Newest first.
	if got[0].RequestID != "req-3" || got[2].RequestID != "req-1" {
		t.Fatalf("expected newest-first ordering, got %q .. %q", got[0].RequestID, got[2].RequestID)
	}
	if got[0].Species != "virginica" || got[0].Class != 2 {
		t.Errorf("row lost its class/species: %+v", got[0])
	}
	if got[0].Confidence != 0.88 {
		t.Errorf("expected confidence 0.88, got %v", got[0].Confidence)
	}
}

func TestRecentPredictionsLimit(t *testing.T) {
	store := openTestStore(t)

	for i := 0; i < 5; i++ {
		rec := PredictionRecord{Species: "setosa", Confidence: 0.9}
		if err := store.SavePrediction(&rec); err != nil {
			t.Fatalf("failed to save prediction: %v", err)
		}
	}

	got, err := store.RecentPredictions(2)
	if err != nil {
		t.Fatalf("failed to query predictions: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 predictions, got %d", len(got))
	}

	// Out-of-range limits fall back to the default window.
	got, err = store.RecentPredictions(-1)
	if err != nil {
		t.Fatalf("failed to query predictions: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("expected all 5 predictions, got %d", len(got))
	}
}

func TestSaveAndQueryTrainingRuns(t *testing.T) {
	store := openTestStore(t)

	first := TrainingRecord{
		ModelName:  "random_forest",
		Accuracy:   0.93,
		Precision:  0.94,
		Recall:     0.93,
		Seed:       42,
		NumTrees:   100,
		TrainedAt:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		DataPoints: 150,
	}
	second := TrainingRecord{
		ModelName:  "random_forest",
		Accuracy:   0.95,
		Seed:       42,
		NumTrees:   100,
		DataPoints: 150,
	}
	if err := store.SaveTrainingRun(&first); err != nil {
		t.Fatalf("failed to save training run: %v", err)
	}
	if err := store.SaveTrainingRun(&second); err != nil {
		t.Fatalf("failed to save training run: %v", err)
	}
	if second.TrainedAt.IsZero() {
		t.Fatal("expected trained_at to be filled")
	}

	got, err := store.TrainingHistory(10)
	if err != nil {
		t.Fatalf("failed to query training history: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 training runs, got %d", len(got))
	}
	if got[0].Accuracy != 0.95 {
		t.Errorf("expected newest run first, got accuracy %v", got[0].Accuracy)
	}
	if got[1].ModelName != "random_forest" || got[1].NumTrees != 100 {
		t.Errorf("row lost its metadata: %+v", got[1])
	}
}

func TestClosedStoreErrors(t *testing.T) {
	var store *Store
	if err := store.SavePrediction(&PredictionRecord{}); err == nil {
		t.Fatal("expected error on nil store")
	}
	if _, err := store.RecentPredictions(10); err == nil {
		t.Fatal("expected error on nil store")
	}
	if err := store.Close(); err != nil {
		t.Fatalf("closing a nil store should be a no-op, got %v", err)
	}
}
