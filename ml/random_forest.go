package ml

import (
	"errors"
	"math"
	"math/rand"
)

// RandomForest is an ensemble of Gini-split decision trees trained on
// bootstrap samples with per-split feature subsampling.
type RandomForest struct {
	trees      []*DecisionTree
	numClasses int
}

// ForestOptions controls ensemble training.
type ForestOptions struct {
	NumTrees   int
	MaxDepth   int
	NumClasses int
	Seed       int64
}

// TrainForest grows a forest from the given samples. Training is sequential
// and fully determined by the seed: the same data and options always produce
// the same ensemble.
func TrainForest(features [][]float64, labels []int, opts ForestOptions) (*RandomForest, error) {
	if len(features) == 0 || len(labels) == 0 {
		return nil, errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return nil, errors.New("features and labels size mismatch")
	}
	if opts.NumClasses <= 0 {
		return nil, errors.New("num classes must be positive")
	}
	if opts.NumTrees <= 0 {
		opts.NumTrees = 100
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 10
	}

	featureCount := len(features[0])
	subset := int(math.Sqrt(float64(featureCount)))
	if subset < 1 {
		subset = 1
	}

	rnd := rand.New(rand.NewSource(opts.Seed))
	trees := make([]*DecisionTree, 0, opts.NumTrees)
	for t := 0; t < opts.NumTrees; t++ {
		sampleX, sampleY := bootstrapSample(features, labels, rnd)
		tree := &DecisionTree{}
		err := tree.Train(sampleX, sampleY, TreeOptions{
			NumClasses:    opts.NumClasses,
			MaxDepth:      opts.MaxDepth,
			FeatureSubset: subset,
			Rand:          rnd,
		})
		if err != nil {
			return nil, err
		}
		trees = append(trees, tree)
	}
	return &RandomForest{trees: trees, numClasses: opts.NumClasses}, nil
}

// Predict returns the class with the highest averaged probability and that
// probability as the confidence.
func (rf *RandomForest) Predict(features []float64) (int, float64, error) {
	probs, err := rf.PredictProba(features)
	if err != nil {
		return 0, 0, err
	}
	best := 0
	for i, p := range probs {
		if p > probs[best] {
			best = i
		}
	}
	return best, probs[best], nil
}

// PredictProba averages the leaf distributions of all trees. The result sums
// to one up to floating point error.
func (rf *RandomForest) PredictProba(features []float64) ([]float64, error) {
	if len(rf.trees) == 0 {
		return nil, errors.New("model not trained")
	}
	sum := make([]float64, rf.numClasses)
	for _, tree := range rf.trees {
		probs, err := tree.PredictProba(features)
		if err != nil {
			return nil, err
		}
		for i, p := range probs {
			sum[i] += p
		}
	}
	for i := range sum {
		sum[i] /= float64(len(rf.trees))
	}
	return sum, nil
}

// NumTrees reports the ensemble size.
func (rf *RandomForest) NumTrees() int {
	return len(rf.trees)
}

// NumClasses reports the width of the probability distribution.
func (rf *RandomForest) NumClasses() int {
	return rf.numClasses
}

// Trees exposes the ensemble for serialization.
func (rf *RandomForest) Trees() []*DecisionTree {
	return rf.trees
}

// bootstrapSample draws len(features) samples with replacement.
func bootstrapSample(features [][]float64, labels []int, rnd *rand.Rand) ([][]float64, []int) {
	n := len(features)
	sampleX := make([][]float64, n)
	sampleY := make([]int, n)
	for i := 0; i < n; i++ {
		j := rnd.Intn(n)
		sampleX[i] = features[j]
		sampleY[i] = labels[j]
	}
	return sampleX, sampleY
}
