package ml

import (
	"fmt"
)

// LoadModel reads a persisted artifact and reconstructs a serving handle.
// The artifact is self-describing; the model type is dispatched from its
// contents rather than from configuration.
func LoadModel(path string) (*Model, error) {
	artifact, err := ReadArtifact(path)
	if err != nil {
		return nil, err
	}
	return ModelFromArtifact(artifact)
}

// ModelFromArtifact turns a validated artifact into an immutable model.
func ModelFromArtifact(a *Artifact) (*Model, error) {
	switch a.ModelType {
	case ModelTypeRandomForest:
	default:
		return nil, fmt.Errorf("unsupported model type %q", a.ModelType)
	}

	trees := make([]*DecisionTree, 0, len(a.Trees))
	for i, nodes := range a.Trees {
		tree, err := TreeFromNodes(nodes, len(a.Classes))
		if err != nil {
			return nil, fmt.Errorf("tree %d: %v", i, err)
		}
		trees = append(trees, tree)
	}
	forest := &RandomForest{trees: trees, numClasses: len(a.Classes)}

	return NewModel(forest, ModelInfo{
		ModelType:     a.ModelType,
		SchemaVersion: a.SchemaVersion,
		Classes:       a.Classes,
		FeatureNames:  a.FeatureNames,
		NumTrees:      a.NumTrees,
		MaxDepth:      a.MaxDepth,
		Seed:          a.Seed,
		Accuracy:      a.Accuracy,
		DataPoints:    a.DataPoints,
		TrainedAt:     a.TrainedAt,
	})
}

// BuildArtifact captures a trained forest and its training metadata into a
// persistable artifact.
func BuildArtifact(forest *RandomForest, info ModelInfo, testRatio float64) (*Artifact, error) {
	if forest == nil || forest.NumTrees() == 0 {
		return nil, fmt.Errorf("forest is empty")
	}
	if forest.NumClasses() != len(info.Classes) {
		return nil, fmt.Errorf("class table does not match forest output width")
	}

	trees := make([][]TreeNode, 0, forest.NumTrees())
	for _, tree := range forest.Trees() {
		trees = append(trees, tree.Nodes())
	}

	artifact := &Artifact{
		SchemaVersion: ArtifactSchemaVersion,
		ModelType:     ModelTypeRandomForest,
		Classes:       info.Classes,
		FeatureNames:  info.FeatureNames,
		NumTrees:      forest.NumTrees(),
		MaxDepth:      info.MaxDepth,
		Seed:          info.Seed,
		TestRatio:     testRatio,
		Accuracy:      info.Accuracy,
		DataPoints:    info.DataPoints,
		TrainedAt:     info.TrainedAt,
		Trees:         trees,
	}
	if err := artifact.Validate(); err != nil {
		return nil, err
	}
	return artifact, nil
}
