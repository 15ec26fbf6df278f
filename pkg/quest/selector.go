package quest

import "math/rand/v2"

// Selector picks the event a pool presents. IntN returns a value in [0, n).
type Selector interface {
	IntN(n int) int
}

type globalSelector struct{}

func (globalSelector) IntN(n int) int { return rand.IntN(n) }

// NewSeededSelector returns a deterministic selector for reproducible play-throughs.
func NewSeededSelector(seed uint64) Selector {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// SequenceSelector replays a fixed list of picks, wrapping around when exhausted.
// Each pick is reduced modulo the pool size.
type SequenceSelector struct {
	Picks []int
	next  int
}

// IntN implements Selector.
func (s *SequenceSelector) IntN(n int) int {
	if len(s.Picks) == 0 || n <= 0 {
		return 0
	}
	v := s.Picks[s.next%len(s.Picks)]
	s.next++
	if v < 0 {
		v = -v
	}
	return v % n
}
