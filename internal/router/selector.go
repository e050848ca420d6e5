package router

import (
	"math/rand"
)

// Selector picks one response among the candidates of a matched phrase
type Selector interface {
	Select(candidates []string) (string, bool)
}

// UniformSelector picks every candidate with equal probability
type UniformSelector struct {
	intN func(n int) int
}

// NewUniformSelector returns a selector backed by the global random source,
// which is safe for concurrent use.
func NewUniformSelector() *UniformSelector {
	return &UniformSelector{intN: rand.Intn}
}

func (s *UniformSelector) Select(candidates []string) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}
	return candidates[s.intN(len(candidates))], true
}
