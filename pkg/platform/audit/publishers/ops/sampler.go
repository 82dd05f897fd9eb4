package ops

import (
	"math/rand/v2"
	"sync"
)

// Sampler keeps a fraction of routine events per action. High-volume actions
// such as tokens_transferred can be thinned without touching the rest.
type Sampler struct {
	mu       sync.RWMutex
	fallback float64
	byAction map[string]float64
	draw     func() float64
}

// NewSampler keeps events with probability rate unless an action overrides it.
func NewSampler(rate float64) *Sampler {
	return &Sampler{
		fallback: clamp(rate),
		byAction: make(map[string]float64),
		draw:     rand.Float64, //nolint:gosec // sampling does not need crypto rand
	}
}

// Keep reports whether an event with action should be stored.
func (s *Sampler) Keep(action string) bool {
	s.mu.RLock()
	rate, ok := s.byAction[action]
	if !ok {
		rate = s.fallback
	}
	s.mu.RUnlock()
	if rate >= 1 {
		return true
	}
	return s.draw() < rate
}

// SetRate overrides the keep rate for one action.
func (s *Sampler) SetRate(action string, rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byAction[action] = clamp(rate)
}

func clamp(rate float64) float64 {
	switch {
	case rate < 0:
		return 0
	case rate > 1:
		return 1
	}
	return rate
}
