package http

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/devp3102/IDS568-MLOps/iris"
	"github.com/devp3102/IDS568-MLOps/ml"
)

// featureKey is a comparable copy of a validated feature vector.
type featureKey [iris.NumFeatures]float64

// predictionCache memoizes results for repeated vectors. Inference is
// deterministic for a fixed artifact and the model never changes within a
// process, so entries never need invalidation.
type predictionCache struct {
	entries *lru.Cache[featureKey, ml.Prediction]
}

// newPredictionCache returns nil when size <= 0; a nil cache always misses.
func newPredictionCache(size int) *predictionCache {
	if size <= 0 {
		return nil
	}
	entries, err := lru.New[featureKey, ml.Prediction](size)
	if err != nil {
		return nil
	}
	return &predictionCache{entries: entries}
}

func (c *predictionCache) get(features []float64) (ml.Prediction, bool) {
	if c == nil {
		return ml.Prediction{}, false
	}
	return c.entries.Get(toKey(features))
}

func (c *predictionCache) add(features []float64, p ml.Prediction) {
	if c == nil {
		return
	}
	c.entries.Add(toKey(features), p)
}

func (c *predictionCache) size() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}

func toKey(features []float64) featureKey {
	var key featureKey
	copy(key[:], features)
	return key
}
