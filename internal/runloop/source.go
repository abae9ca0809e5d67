package runloop

import (
	"context"
	"sync"
	"sync/atomic"
)

// Source is a signalable input to a Loop. Signal may be called from any
// goroutine; perform always runs on the loop goroutine.
type Source struct {
	name    string
	perform func(ctx context.Context, v any)

	loop  atomic.Pointer[Loop]
	modes map[Mode]struct{} // loop goroutine only

	mu        sync.Mutex
	pending   []any
	scheduled bool

	signalled atomic.Uint64
	performed atomic.Uint64
	dropped   atomic.Uint64
}

// NewSource creates an unbound source.
func NewSource(name string, perform func(ctx context.Context, v any)) *Source {
	return &Source{
		name:    name,
		perform: perform,
		modes:   make(map[Mode]struct{}),
	}
}

// Name returns the source name.
func (s *Source) Name() string {
	return s.name
}

// Signal queues v for delivery. It reports false if the source is not bound
// to any loop, in which case v is dropped. When the pending queue is full the
// oldest value is dropped.
func (s *Source) Signal(v any) bool {
	l := s.loop.Load()
	if l == nil {
		s.dropped.Add(1)
		return false
	}
	s.signalled.Add(1)

	s.mu.Lock()
	if len(s.pending) >= l.pendingLimit {
		copy(s.pending, s.pending[1:])
		s.pending = s.pending[:len(s.pending)-1]
		s.dropped.Add(1)
	}
	s.pending = append(s.pending, v)
	first := !s.scheduled
	s.scheduled = true
	s.mu.Unlock()

	if first {
		l.schedule(s)
	}
	return true
}

// Pending returns the number of queued signals.
func (s *Source) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// SourceStats counts signals by outcome.
type SourceStats struct {
	Signalled uint64
	Performed uint64
	Dropped   uint64
}

// Stats returns the source counters.
func (s *Source) Stats() SourceStats {
	return SourceStats{
		Signalled: s.signalled.Load(),
		Performed: s.performed.Load(),
		Dropped:   s.dropped.Load(),
	}
}

func (s *Source) run(ctx context.Context, l *Loop) {
	s.mu.Lock()
	values := s.pending
	s.pending = nil
	s.scheduled = false
	s.mu.Unlock()

	for _, v := range values {
		s.performed.Add(1)
		l.call(map[string]any{"loop": l.name, "source": s.name}, func() { s.perform(ctx, v) })
	}
}

func (s *Source) discard() {
	s.mu.Lock()
	n := len(s.pending)
	s.pending = nil
	s.scheduled = false
	s.mu.Unlock()
	s.dropped.Add(uint64(n))
}
