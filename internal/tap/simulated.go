package tap

import (
	"fmt"
	"sync"

	"swipetap/internal/touch"
)

// Simulated is an in-memory Backend for tests and headless runs. Events are
// delivered synchronously on the goroutine that injects them.
type Simulated struct {
	mu    sync.Mutex
	deny  error
	regs  []*simRegistration
	total int
}

type simRegistration struct {
	owner     *Simulated
	mask      uint64
	placement Placement
	deliver   func(RawEvent)
	enabled   bool
	removed   bool
}

// NewSimulated creates a simulated backend.
func NewSimulated() *Simulated {
	return &Simulated{}
}

// Name implements Backend.
func (s *Simulated) Name() string {
	return "simulated"
}

// Deny makes subsequent Register calls fail with err, emulating a missing
// permission. A nil err allows registration again.
func (s *Simulated) Deny(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deny = err
}

// Register implements Backend.
func (s *Simulated) Register(mask uint64, placement Placement, deliver func(RawEvent)) (Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deny != nil {
		return nil, s.deny
	}
	reg := &simRegistration{
		owner:     s,
		mask:      mask,
		placement: placement,
		deliver:   deliver,
		enabled:   true,
	}
	s.regs = append(s.regs, reg)
	s.total++
	return reg, nil
}

// Decode implements Backend. Payloads must be touch.Sample values.
func (s *Simulated) Decode(ev RawEvent) (touch.Sample, error) {
	switch p := ev.Payload.(type) {
	case touch.Sample:
		return p.Clone(), nil
	case *touch.Sample:
		if p != nil {
			return p.Clone(), nil
		}
	}
	return touch.Sample{}, fmt.Errorf("%w: payload %T", ErrDecode, ev.Payload)
}

// Inject delivers ev to every live, enabled registration whose mask includes
// its kind. Auto-disable notifications switch the registrations off before
// they are delivered, the way the system does. It returns the number of
// registrations that received the event.
func (s *Simulated) Inject(ev RawEvent) int {
	var targets []func(RawEvent)

	s.mu.Lock()
	for _, reg := range s.regs {
		if reg.removed {
			continue
		}
		if ev.Kind.IsAutoDisable() {
			reg.enabled = false
			targets = append(targets, reg.deliver)
			continue
		}
		if !reg.enabled || ev.Kind >= maxMaskKind || reg.mask&(uint64(1)<<ev.Kind) == 0 {
			continue
		}
		targets = append(targets, reg.deliver)
	}
	s.mu.Unlock()

	// Deliver outside the lock; callbacks may call back into the backend.
	for _, deliver := range targets {
		deliver(ev)
	}
	return len(targets)
}

// InjectSample delivers sample as a touches event.
func (s *Simulated) InjectSample(sample touch.Sample) int {
	return s.Inject(RawEvent{Kind: KindTouches, Payload: sample})
}

// AutoDisable emulates the system switching the taps off for kind.
func (s *Simulated) AutoDisable(kind EventKind) int {
	return s.Inject(RawEvent{Kind: kind})
}

// Live returns the number of registrations not yet unregistered.
func (s *Simulated) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, reg := range s.regs {
		if !reg.removed {
			n++
		}
	}
	return n
}

// Total returns the number of registrations ever created.
func (s *Simulated) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Enabled reports the system-side enabled state of the most recent live
// registration.
func (s *Simulated) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.regs) - 1; i >= 0; i-- {
		if !s.regs[i].removed {
			return s.regs[i].enabled
		}
	}
	return false
}

// LastPlacement returns the placement and mask of the most recent registration.
func (s *Simulated) LastPlacement() (Placement, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.regs) == 0 {
		return Placement{}, 0
	}
	reg := s.regs[len(s.regs)-1]
	return reg.placement, reg.mask
}

func (r *simRegistration) SetEnabled(enabled bool) error {
	r.owner.mu.Lock()
	defer r.owner.mu.Unlock()
	if r.removed {
		return ErrDestroyed
	}
	r.enabled = enabled
	return nil
}

func (r *simRegistration) Unregister() error {
	r.owner.mu.Lock()
	defer r.owner.mu.Unlock()
	r.removed = true
	return nil
}
