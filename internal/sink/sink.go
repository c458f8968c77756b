package sink

import (
	"iter"
	"sync"
	"sync/atomic"

	"PriceWatch/internal/model"
)

// Sink is an append-only, ordered log of samples.
//
// One writer appends; any number of readers take snapshots without locking.
// Elements below a published length are never rewritten, so a reader holding an
// older slice header keeps seeing a consistent prefix while the writer grows the log.
type Sink struct {
	mu      sync.Mutex // serializes writers only
	samples atomic.Pointer[[]model.Sample]
}

// New creates an empty Sink.
func New() *Sink {
	s := &Sink{}
	empty := make([]model.Sample, 0, 64)
	s.samples.Store(&empty)
	return s
}

// Append adds a sample at the end of the log.
func (s *Sink) Append(sample model.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := *s.samples.Load()
	next := append(cur, sample)
	s.samples.Store(&next)
}

// All returns the samples present at call time, in insertion order.
// The returned sequence may be iterated any number of times.
func (s *Sink) All() iter.Seq[model.Sample] {
	snap := *s.samples.Load()
	return func(yield func(model.Sample) bool) {
		for _, sample := range snap {
			if !yield(sample) {
				return
			}
		}
	}
}

// Len returns the number of samples appended so far.
func (s *Sink) Len() int {
	return len(*s.samples.Load())
}

// Last returns the most recent sample, if any.
func (s *Sink) Last() (model.Sample, bool) {
	snap := *s.samples.Load()
	if len(snap) == 0 {
		return model.Sample{}, false
	}
	return snap[len(snap)-1], true
}
