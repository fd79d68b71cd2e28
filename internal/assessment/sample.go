package assessment

import (
	"math/rand/v2"
	"sync"
)

// Sampler draws practice questions. Safe for concurrent use.
type Sampler struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSampler creates a sampler over rng. A nil rng uses a randomly seeded
// source.
func NewSampler(rng *rand.Rand) *Sampler {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Sampler{rng: rng}
}

// Sample picks between lo and hi distinct questions (capped by the bank size)
// in random order.
func (s *Sampler) Sample(bank []Question, lo, hi int) []Question {
	if len(bank) == 0 {
		return nil
	}
	if hi < lo {
		hi = lo
	}

	s.mu.Lock()
	n := lo + s.rng.IntN(hi-lo+1)
	perm := s.rng.Perm(len(bank))
	s.mu.Unlock()

	n = min(max(n, 1), len(bank))
	out := make([]Question, 0, n)
	for _, i := range perm[:n] {
		out = append(out, bank[i])
	}
	return out
}
