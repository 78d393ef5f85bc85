// Package iris bundles the classic iris measurements and the label table
// shared by the trainer and the prediction service.
package iris

import (
	_ "embed"
	"encoding/csv"
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed iris.csv
var rawCSV string

// NumFeatures is the width of every feature vector.
const NumFeatures = 4

// FeatureNames lists the measurement columns in dataset order.
var FeatureNames = []string{"sepal_length", "sepal_width", "petal_length", "petal_width"}

// SpeciesNames maps class index to species label. Order is fixed and matches
// the label table persisted inside model artifacts.
var SpeciesNames = []string{"setosa", "versicolor", "virginica"}

var titleCaser = cases.Title(language.English)

// SpeciesIndex resolves a species label to its class index.
func SpeciesIndex(name string) (int, bool) {
	for i, s := range SpeciesNames {
		if s == name {
			return i, true
		}
	}
	return 0, false
}

// DisplayName returns the human-facing form of a class index, e.g. "Setosa".
// Unknown indices fall back to "Unknown".
func DisplayName(class int) string {
	if class < 0 || class >= len(SpeciesNames) {
		return "Unknown"
	}
	return titleCaser.String(SpeciesNames[class])
}

// Load parses the embedded dataset into feature vectors and class labels.
func Load() ([][]float64, []int, error) {
	reader := csv.NewReader(strings.NewReader(rawCSV))
	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse dataset: %v", err)
	}
	if len(records) < 2 {
		return nil, nil, fmt.Errorf("dataset is empty")
	}

	// First record is the header row.
	rows := records[1:]
	features := make([][]float64, 0, len(rows))
	labels := make([]int, 0, len(rows))
	for i, record := range rows {
		if len(record) != NumFeatures+1 {
			return nil, nil, fmt.Errorf("row %d: expected %d columns, got %d", i+2, NumFeatures+1, len(record))
		}
		vector := make([]float64, NumFeatures)
		for j := 0; j < NumFeatures; j++ {
			value, err := strconv.ParseFloat(record[j], 64)
			if err != nil {
				return nil, nil, fmt.Errorf("row %d: invalid %s: %v", i+2, FeatureNames[j], err)
			}
			vector[j] = value
		}
		label, ok := SpeciesIndex(record[NumFeatures])
		if !ok {
			return nil, nil, fmt.Errorf("row %d: unknown species %q", i+2, record[NumFeatures])
		}
		features = append(features, vector)
		labels = append(labels, label)
	}
	return features, labels, nil
}

// Split shuffles the dataset with the given seed and carves off the trailing
// testRatio fraction as the held-out set. The same seed always produces the
// same partition.
func Split(features [][]float64, labels []int, testRatio float64, seed int64) (trainX [][]float64, trainY []int, testX [][]float64, testY []int) {
	if testRatio <= 0 || testRatio >= 1 {
		testRatio = 0.2
	}

	rnd := rand.New(rand.NewSource(seed))
	order := rnd.Perm(len(features))

	split := int(float64(len(features)) * (1 - testRatio))
	for i, idx := range order {
		if i < split {
			trainX = append(trainX, features[idx])
			trainY = append(trainY, labels[idx])
		} else {
			testX = append(testX, features[idx])
			testY = append(testY, labels[idx])
		}
	}
	return trainX, trainY, testX, testY
}
