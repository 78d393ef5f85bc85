package iris

import (
	"fmt"
	"testing"
)

func TestLoad(t *testing.T) {
	features, labels, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(features) != 150 {
		t.Fatalf("expected 150 samples, got %d", len(features))
	}
	if len(labels) != len(features) {
		t.Fatalf("expected %d labels, got %d", len(features), len(labels))
	}

	counts := make(map[int]int)
	for _, label := range labels {
		counts[label]++
	}
	for class := range SpeciesNames {
		if counts[class] != 50 {
			t.Errorf("expected 50 samples for class %d, got %d", class, counts[class])
		}
	}

	for i, vector := range features {
		if len(vector) != NumFeatures {
			t.Fatalf("sample %d: expected %d features, got %d", i, NumFeatures, len(vector))
		}
	}

	first := features[0]
	want := []float64{5.1, 3.5, 1.4, 0.2}
	for j := range want {
		if first[j] != want[j] {
			t.Errorf("first sample feature %d: expected %v, got %v", j, want[j], first[j])
		}
	}
	if labels[0] != 0 {
		t.Errorf("expected first sample to be class 0, got %d", labels[0])
	}
}

func TestSpeciesIndex(t *testing.T) {
	tests := []struct {
		name  string
		want  int
		found bool
	}{
		{"setosa", 0, true},
		{"versicolor", 1, true},
		{"virginica", 2, true},
		{"tulip", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		got, ok := SpeciesIndex(tt.name)
		if ok != tt.found {
			t.Errorf("SpeciesIndex(%q) found = %v, want %v", tt.name, ok, tt.found)
			continue
		}
		if ok && got != tt.want {
			t.Errorf("SpeciesIndex(%q) = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestDisplayName(t *testing.T) {
	if got := DisplayName(0); got != "Setosa" {
		t.Errorf("DisplayName(0) = %q, want %q", got, "Setosa")
	}
	if got := DisplayName(2); got != "Virginica" {
		t.Errorf("DisplayName(2) = %q, want %q", got, "Virginica")
	}
	if got := DisplayName(-1); got != "Unknown" {
		t.Errorf("DisplayName(-1) = %q, want %q", got, "Unknown")
	}
	if got := DisplayName(3); got != "Unknown" {
		t.Errorf("DisplayName(3) = %q, want %q", got, "Unknown")
	}
}

func TestSplitDeterministic(t *testing.T) {
	features, labels, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	trainX1, trainY1, testX1, testY1 := Split(features, labels, 0.3, 42)
	trainX2, trainY2, testX2, testY2 := Split(features, labels, 0.3, 42)

	if len(trainX1) != 105 || len(testX1) != 45 {
		t.Fatalf("expected 105/45 split, got %d/%d", len(trainX1), len(testX1))
	}
	if len(trainY1) != len(trainX1) || len(testY1) != len(testX1) {
		t.Fatalf("label counts do not match feature counts")
	}

	for i := range trainX1 {
		if key(trainX1[i]) != key(trainX2[i]) || trainY1[i] != trainY2[i] {
			t.Fatalf("train sample %d differs between runs with same seed", i)
		}
	}
	for i := range testX1 {
		if key(testX1[i]) != key(testX2[i]) || testY1[i] != testY2[i] {
			t.Fatalf("test sample %d differs between runs with same seed", i)
		}
	}
}

func TestSplitKeepsLabelPairing(t *testing.T) {
	features, labels, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	labelFor := make(map[string]int, len(features))
	for i, vector := range features {
		labelFor[key(vector)] = labels[i]
	}

	trainX, trainY, testX, testY := Split(features, labels, 0.3, 7)
	for i, vector := range trainX {
		if labelFor[key(vector)] != trainY[i] {
			t.Fatalf("train sample %d lost its label during split", i)
		}
	}
	for i, vector := range testX {
		if labelFor[key(vector)] != testY[i] {
			t.Fatalf("test sample %d lost its label during split", i)
		}
	}
}

func TestSplitInvalidRatio(t *testing.T) {
	features, labels, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	trainX, _, testX, _ := Split(features, labels, 1.5, 1)
	if len(trainX)+len(testX) != len(features) {
		t.Fatalf("split dropped samples: %d + %d != %d", len(trainX), len(testX), len(features))
	}
	if len(testX) == 0 {
		t.Fatal("expected fallback ratio to produce a test set")
	}
}

func key(vector []float64) string {
	return fmt.Sprintf("%v", vector)
}
