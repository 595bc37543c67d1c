package routing

import (
	"math/rand/v2"

	"mercator-hq/eventgate/pkg/gateway"
)

// Selector picks one deployment from a non-empty candidate list.
//
// Implementations must be safe for concurrent use and must not retain or
// modify the candidate slice, which is shared through the cache.
type Selector interface {
	Select(candidates []gateway.Deployment) gateway.Deployment
}

// RandomSelector picks uniformly at random with no memory across calls.
type RandomSelector struct{}

// Select implements Selector.
func (RandomSelector) Select(candidates []gateway.Deployment) gateway.Deployment {
	if len(candidates) == 1 {
		return candidates[0]
	}
	return candidates[rand.IntN(len(candidates))]
}

// randomTTL returns a duration chosen uniformly in [lo, hi].
func randomTTL(lo, hi int64) int64 {
	if hi <= lo {
		return lo
	}
	return lo + rand.Int64N(hi-lo+1)
}
