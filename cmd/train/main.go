package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/devp3102/IDS568-MLOps/db"
	"github.com/devp3102/IDS568-MLOps/iris"
	"github.com/devp3102/IDS568-MLOps/ml"
)

// Training settings are fixed so every run reproduces the same artifact
// from the same dataset.
const (
	numTrees  = 100
	maxDepth  = 10
	seed      = 42
	testRatio = 0.3
	modelName = "random_forest"
)

func main() {
	modelPath := flag.String("model_path", "models/model.json", "artifact output path")
	dbPath := flag.String("db", "data/iris.db", "training log database, empty to skip")
	flag.Parse()

	features, labels, err := iris.Load()
	if err != nil {
		log.Fatalf("failed to load dataset: %v", err)
	}

	trainX, trainY, testX, testY := iris.Split(features, labels, testRatio, seed)
	fmt.Printf("dataset: %d samples, %d train / %d test\n", len(features), len(trainX), len(testX))

	forest, err := ml.TrainForest(trainX, trainY, ml.ForestOptions{
		NumTrees:   numTrees,
		MaxDepth:   maxDepth,
		NumClasses: len(iris.SpeciesNames),
		Seed:       seed,
	})
	if err != nil {
		log.Fatalf("failed to train forest: %v", err)
	}

	report := evaluate(forest, testX, testY)
	printReport(report, len(testX))

	info := ml.ModelInfo{
		ModelType:     ml.ModelTypeRandomForest,
		SchemaVersion: ml.ArtifactSchemaVersion,
		Classes:       iris.SpeciesNames,
		FeatureNames:  iris.FeatureNames,
		NumTrees:      forest.NumTrees(),
		MaxDepth:      maxDepth,
		Seed:          seed,
		Accuracy:      report.accuracy,
		DataPoints:    len(features),
		TrainedAt:     time.Now().UTC(),
	}
	artifact, err := ml.BuildArtifact(forest, info, testRatio)
	if err != nil {
		log.Fatalf("failed to build artifact: %v", err)
	}

	if dir := filepath.Dir(*modelPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("failed to create model dir: %v", err)
		}
	}
	if err := artifact.Save(*modelPath); err != nil {
		log.Fatalf("failed to save model: %v", err)
	}
	fmt.Printf("model saved to %s\n", *modelPath)

	verify(*modelPath)

	if *dbPath != "" {
		logTrainingRun(*dbPath, report, info)
	}
}

type evaluation struct {
	accuracy  float64
	precision []float64
	recall    []float64
	support   []int
}

func evaluate(forest *ml.RandomForest, testX [][]float64, testY []int) evaluation {
	numClasses := len(iris.SpeciesNames)
	predicted := make([]int, numClasses)
	actual := make([]int, numClasses)
	correct := make([]int, numClasses)
	right := 0

	for i, vector := range testX {
		label, _, err := forest.Predict(vector)
		if err != nil {
			log.Fatalf("failed to evaluate: %v", err)
		}
		predicted[label]++
		actual[testY[i]]++
		if label == testY[i] {
			correct[label]++
			right++
		}
	}

	report := evaluation{
		precision: make([]float64, numClasses),
		recall:    make([]float64, numClasses),
		support:   actual,
	}
	if len(testX) > 0 {
		report.accuracy = float64(right) / float64(len(testX))
	}
	for c := 0; c < numClasses; c++ {
		if predicted[c] > 0 {
			report.precision[c] = float64(correct[c]) / float64(predicted[c])
		}
		if actual[c] > 0 {
			report.recall[c] = float64(correct[c]) / float64(actual[c])
		}
	}
	return report
}

func printReport(report evaluation, samples int) {
	fmt.Printf("\n%14s %9s %9s %9s %9s\n", "", "precision", "recall", "f1-score", "support")
	for c := range report.precision {
		f1 := 0.0
		if report.precision[c]+report.recall[c] > 0 {
			f1 = 2 * report.precision[c] * report.recall[c] / (report.precision[c] + report.recall[c])
		}
		fmt.Printf("%14s %9.2f %9.2f %9.2f %9d\n",
			iris.DisplayName(c), report.precision[c], report.recall[c], f1, report.support[c])
	}
	fmt.Printf("\n%14s %29.2f %9d\n\n", "accuracy", report.accuracy, samples)
}

// verify reloads the saved artifact and runs one known specimen through it.
func verify(path string) {
	model, err := ml.LoadModel(path)
	if err != nil {
		log.Fatalf("saved artifact failed to load: %v", err)
	}

	specimen := []float64{5.1, 3.5, 1.4, 0.2}
	p, err := model.Predict(specimen)
	if err != nil {
		log.Fatalf("saved artifact failed to predict: %v", err)
	}
	fmt.Printf("verification: %v -> %s (confidence %.3f)\n", specimen, p.Species, p.Confidence)
}

func logTrainingRun(path string, report evaluation, info ml.ModelInfo) {
	store, err := db.Open(path)
	if err != nil {
		log.Printf("training log skipped: %v", err)
		return
	}
	defer store.Close()

	rec := &db.TrainingRecord{
		ModelName:  modelName,
		Accuracy:   report.accuracy,
		Precision:  mean(report.precision),
		Recall:     mean(report.recall),
		Seed:       seed,
		NumTrees:   info.NumTrees,
		TrainedAt:  info.TrainedAt,
		DataPoints: info.DataPoints,
	}
	if err := store.SaveTrainingRun(rec); err != nil {
		log.Printf("training log skipped: %v", err)
		return
	}
	fmt.Printf("training run recorded in %s\n", path)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
