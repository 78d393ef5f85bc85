package ml

import (
	"errors"
	"math"
	"math/rand"
	"sort"
)

// TreeNode is one node of a flattened decision tree. Children are indices
// into the tree's node slice; leaves carry the class counts of the training
// samples that reached them.
type TreeNode struct {
	FeatureIdx  int     `json:"feature_idx"`
	Threshold   float64 `json:"threshold"`
	LeftChild   int     `json:"left_child"`
	RightChild  int     `json:"right_child"`
	ClassCounts []int   `json:"class_counts,omitempty"`
	IsLeaf      bool    `json:"is_leaf"`
}

// DecisionTree is a CART-style classifier split on Gini impurity.
type DecisionTree struct {
	nodes      []TreeNode
	numClasses int
}

// TreeOptions controls how a tree is grown.
type TreeOptions struct {
	NumClasses    int
	MaxDepth      int
	FeatureSubset int        // features sampled per split; 0 considers all
	Rand          *rand.Rand // required when FeatureSubset > 0
}

// Train grows the tree from scratch, replacing any previous state.
func (dt *DecisionTree) Train(features [][]float64, labels []int, opts TreeOptions) error {
	if len(features) == 0 || len(labels) == 0 {
		return errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return errors.New("features and labels size mismatch")
	}
	if opts.NumClasses <= 0 {
		return errors.New("num classes must be positive")
	}
	for _, label := range labels {
		if label < 0 || label >= opts.NumClasses {
			return errors.New("label out of range")
		}
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 10
	}
	if opts.FeatureSubset > 0 && opts.Rand == nil {
		return errors.New("feature subsampling requires a rand source")
	}

	dt.numClasses = opts.NumClasses
	dt.nodes = buildNode(features, labels, 0, opts)
	return nil
}

// Predict walks the tree and returns the majority class of the reached leaf
// together with its fraction of the leaf samples.
func (dt *DecisionTree) Predict(features []float64) (int, float64, error) {
	counts, err := dt.leafCounts(features)
	if err != nil {
		return 0, 0, err
	}
	label, total := argmaxCount(counts)
	confidence := float64(counts[label]) / float64(total)
	return label, confidence, nil
}

// PredictProba returns the class distribution of the reached leaf,
// normalized to sum to one.
func (dt *DecisionTree) PredictProba(features []float64) ([]float64, error) {
	counts, err := dt.leafCounts(features)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, count := range counts {
		total += count
	}
	probs := make([]float64, len(counts))
	for i, count := range counts {
		probs[i] = float64(count) / float64(total)
	}
	return probs, nil
}

// Nodes exposes the flattened tree for serialization.
func (dt *DecisionTree) Nodes() []TreeNode {
	return dt.nodes
}

// TreeFromNodes reconstructs a tree from its serialized form. The node slice
// is validated before use.
func TreeFromNodes(nodes []TreeNode, numClasses int) (*DecisionTree, error) {
	if err := validateNodes(nodes, numClasses); err != nil {
		return nil, err
	}
	return &DecisionTree{nodes: nodes, numClasses: numClasses}, nil
}

func (dt *DecisionTree) leafCounts(features []float64) ([]int, error) {
	if len(dt.nodes) == 0 {
		return nil, errors.New("model not trained")
	}
	idx := 0
	for {
		node := dt.nodes[idx]
		if node.IsLeaf {
			return node.ClassCounts, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return nil, errors.New("feature index out of range")
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(dt.nodes) {
			return nil, errors.New("invalid tree state")
		}
	}
}

func validateNodes(nodes []TreeNode, numClasses int) error {
	if len(nodes) == 0 {
		return errors.New("tree has no nodes")
	}
	if numClasses <= 0 {
		return errors.New("num classes must be positive")
	}
	for i, node := range nodes {
		if node.IsLeaf {
			if len(node.ClassCounts) != numClasses {
				return errors.New("leaf class counts do not match class table")
			}
			total := 0
			for _, count := range node.ClassCounts {
				if count < 0 {
					return errors.New("negative class count")
				}
				total += count
			}
			if total == 0 {
				return errors.New("empty leaf")
			}
			continue
		}
		if node.LeftChild <= i || node.LeftChild >= len(nodes) {
			return errors.New("left child index out of range")
		}
		if node.RightChild <= i || node.RightChild >= len(nodes) {
			return errors.New("right child index out of range")
		}
		if node.FeatureIdx < 0 {
			return errors.New("negative feature index")
		}
	}
	return nil
}

func buildNode(features [][]float64, labels []int, depth int, opts TreeOptions) []TreeNode {
	counts := classCounts(labels, opts.NumClasses)
	if depth >= opts.MaxDepth || isPure(labels) {
		return []TreeNode{leafNode(counts)}
	}

	bestFeature, threshold, ok := findBestSplit(features, labels, opts)
	if !ok {
		return []TreeNode{leafNode(counts)}
	}

	leftFeatures, leftLabels, rightFeatures, rightLabels := splitData(features, labels, bestFeature, threshold)
	if len(leftLabels) == 0 || len(rightLabels) == 0 {
		return []TreeNode{leafNode(counts)}
	}

	leftNodes := buildNode(leftFeatures, leftLabels, depth+1, opts)
	rightNodes := buildNode(rightFeatures, rightLabels, depth+1, opts)

	root := TreeNode{
		FeatureIdx: bestFeature,
		Threshold:  threshold,
		LeftChild:  1,
		RightChild: 1 + len(leftNodes),
	}

	nodes := make([]TreeNode, 0, 1+len(leftNodes)+len(rightNodes))
	nodes = append(nodes, root)
	nodes = append(nodes, leftNodes...)
	nodes = append(nodes, rightNodes...)
	return nodes
}

func leafNode(counts []int) TreeNode {
	return TreeNode{
		FeatureIdx:  -1,
		LeftChild:   -1,
		RightChild:  -1,
		ClassCounts: counts,
		IsLeaf:      true,
	}
}

// findBestSplit scans candidate features and the midpoints between their
// sorted distinct values, keeping the split with the lowest weighted Gini
// impurity.
func findBestSplit(features [][]float64, labels []int, opts TreeOptions) (int, float64, bool) {
	featureCount := len(features[0])
	candidates := make([]int, featureCount)
	for i := range candidates {
		candidates[i] = i
	}
	if opts.FeatureSubset > 0 && opts.FeatureSubset < featureCount {
		perm := opts.Rand.Perm(featureCount)
		candidates = perm[:opts.FeatureSubset]
	}

	bestFeature := -1
	bestThreshold := 0.0
	bestImpurity := math.MaxFloat64

	for _, featureIdx := range candidates {
		values := make([]float64, len(features))
		for i := range features {
			values[i] = features[i][featureIdx]
		}
		for _, threshold := range splitCandidates(values) {
			leftLabels, rightLabels := splitLabels(features, labels, featureIdx, threshold)
			if len(leftLabels) == 0 || len(rightLabels) == 0 {
				continue
			}
			impurity := weightedGini(leftLabels, rightLabels, opts.NumClasses)
			if impurity < bestImpurity {
				bestImpurity = impurity
				bestFeature = featureIdx
				bestThreshold = threshold
			}
		}
	}
	if bestFeature == -1 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

// splitCandidates returns the midpoints between consecutive distinct values.
func splitCandidates(values []float64) []float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	unique := sorted[:0]
	for i, value := range sorted {
		if i == 0 || value != unique[len(unique)-1] {
			unique = append(unique, value)
		}
	}
	if len(unique) < 2 {
		return nil
	}
	thresholds := make([]float64, 0, len(unique)-1)
	for i := 1; i < len(unique); i++ {
		thresholds = append(thresholds, (unique[i-1]+unique[i])/2)
	}
	return thresholds
}

func splitData(features [][]float64, labels []int, featureIdx int, threshold float64) ([][]float64, []int, [][]float64, []int) {
	leftFeatures := make([][]float64, 0)
	leftLabels := make([]int, 0)
	rightFeatures := make([][]float64, 0)
	rightLabels := make([]int, 0)
	for i, feature := range features {
		if feature[featureIdx] <= threshold {
			leftFeatures = append(leftFeatures, feature)
			leftLabels = append(leftLabels, labels[i])
		} else {
			rightFeatures = append(rightFeatures, feature)
			rightLabels = append(rightLabels, labels[i])
		}
	}
	return leftFeatures, leftLabels, rightFeatures, rightLabels
}

func splitLabels(features [][]float64, labels []int, featureIdx int, threshold float64) ([]int, []int) {
	leftLabels := make([]int, 0)
	rightLabels := make([]int, 0)
	for i, feature := range features {
		if feature[featureIdx] <= threshold {
			leftLabels = append(leftLabels, labels[i])
		} else {
			rightLabels = append(rightLabels, labels[i])
		}
	}
	return leftLabels, rightLabels
}

func weightedGini(leftLabels, rightLabels []int, numClasses int) float64 {
	leftWeight := float64(len(leftLabels))
	rightWeight := float64(len(rightLabels))
	total := leftWeight + rightWeight
	return (leftWeight/total)*gini(leftLabels, numClasses) + (rightWeight/total)*gini(rightLabels, numClasses)
}

func gini(labels []int, numClasses int) float64 {
	if len(labels) == 0 {
		return 0
	}
	counts := classCounts(labels, numClasses)
	impurity := 1.0
	for _, count := range counts {
		prob := float64(count) / float64(len(labels))
		impurity -= prob * prob
	}
	return impurity
}

func classCounts(labels []int, numClasses int) []int {
	counts := make([]int, numClasses)
	for _, label := range labels {
		counts[label]++
	}
	return counts
}

// argmaxCount returns the index of the largest count, lowest index winning
// ties, and the total of all counts.
func argmaxCount(counts []int) (int, int) {
	best := 0
	total := 0
	for i, count := range counts {
		total += count
		if count > counts[best] {
			best = i
		}
	}
	return best, total
}

func isPure(labels []int) bool {
	if len(labels) == 0 {
		return true
	}
	first := labels[0]
	for _, label := range labels[1:] {
		if label != first {
			return false
		}
	}
	return true
}
