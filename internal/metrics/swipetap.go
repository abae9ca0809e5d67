package metrics

import "swipetap/internal/touch"

// Drop reasons used as the "reason" label.
const (
	ReasonDisabled    = "disabled"
	ReasonDecode      = "decode"
	ReasonFingerCount = "finger_count"
	ReasonNoWindow    = "no_window"
	ReasonNoElement   = "no_element"
	ReasonUnbound     = "unbound"
	ReasonOverflow    = "overflow"
)

// TapMetrics holds the event tap series.
type TapMetrics struct {
	Events    *Counter
	Reenabled *Counter
	registry  *Registry
}

// NewTapMetrics registers the event tap series. A nil registry yields
// no-op metrics.
func NewTapMetrics(r *Registry) *TapMetrics {
	return &TapMetrics{
		Events:    r.Counter("tap_events_total", "Raw events received from the event tap", nil),
		Reenabled: r.Counter("tap_reenabled_total", "Times the tap was re-asserted after an automatic disable", nil),
		registry:  r,
	}
}

// Dropped returns the drop counter for reason.
func (m *TapMetrics) Dropped(reason string) *Counter {
	if m == nil {
		return nil
	}
	return m.registry.Counter("tap_dropped_total", "Raw events dropped by the event tap", Labels{"reason": reason})
}

// RouterMetrics holds the touch router series.
type RouterMetrics struct {
	Dispatch *Histogram
	registry *Registry
}

// NewRouterMetrics registers the touch router series.
func NewRouterMetrics(r *Registry) *RouterMetrics {
	return &RouterMetrics{
		Dispatch: r.Histogram("router_dispatch_seconds", "Time spent routing one touch sample", nil, nil),
		registry: r,
	}
}

// Forwarded returns the counter of phase messages forwarded for phase.
func (m *RouterMetrics) Forwarded(phase touch.Phase) *Counter {
	if m == nil {
		return nil
	}
	return m.registry.Counter("router_forwarded_total", "Phase messages forwarded to recognizers", Labels{"phase": phase.String()})
}

// Dropped returns the drop counter for reason.
func (m *RouterMetrics) Dropped(reason string) *Counter {
	if m == nil {
		return nil
	}
	return m.registry.Counter("router_dropped_total", "Touch samples dropped by the router", Labels{"reason": reason})
}

// CapabilityEnabled returns the gauge tracking whether indirect touch routing is active.
func CapabilityEnabled(r *Registry) *Gauge {
	return r.Gauge("capability_enabled", "Whether indirect touch routing is active", nil)
}
