package session

import "sync/atomic"

// Sequencer hands out per-cycle tokens. Only the most recently issued token
// is current; Invalidate retires it without starting a new cycle.
type Sequencer struct {
	current atomic.Uint64
}

func (s *Sequencer) Next() uint64 {
	return s.current.Add(1)
}

func (s *Sequencer) Current() uint64 {
	return s.current.Load()
}

func (s *Sequencer) IsCurrent(token uint64) bool {
	return token != 0 && s.current.Load() == token
}

func (s *Sequencer) Invalidate() {
	s.current.Add(1)
}
