package tap

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"swipetap/internal/touch"
)

// Linux input event constants (linux/input-event-codes.h).
const (
	evSyn = 0x00
	evAbs = 0x03

	synReport  = 0
	synDropped = 3

	absMTSlot       = 0x2f
	absMTPositionX  = 0x35
	absMTPositionY  = 0x36
	absMTTrackingID = 0x39

	inputPropPointer = 0x00
	inputPropDirect  = 0x01
)

// defaultSlots is used when a device does not report its slot count.
const defaultSlots = 10

// inputEvent is the portable part of struct input_event.
type inputEvent struct {
	Type  uint16
	Code  uint16
	Value int32
}

// absAxis is the reported range of an absolute axis.
type absAxis struct {
	Min int32
	Max int32
}

// normalize maps v into [0,1] over the axis range.
func (a absAxis) normalize(v int32) float64 {
	span := float64(a.Max) - float64(a.Min)
	if span <= 0 {
		return 0
	}
	n := (float64(v) - float64(a.Min)) / span
	if n < 0 {
		return 0
	}
	if n > 1 {
		return 1
	}
	return n
}

type mtSlot struct {
	tracking int32 // -1 when the slot is empty
	x, y     int32
	changed  bool

	// state as of the last emitted frame
	active   bool
	identity int64
	lastX    int32
	lastY    int32
}

// mtDecoder turns a type B multitouch event stream into touch frames.
// A frame is produced on every SYN_REPORT that has at least one contact.
type mtDecoder struct {
	device   int64
	x, y     absAxis
	slots    []mtSlot
	current  int
	dropping bool
}

func newMTDecoder(device int64, x, y absAxis, slots int) *mtDecoder {
	if slots <= 0 {
		slots = defaultSlots
	}
	d := &mtDecoder{device: device, x: x, y: y, slots: make([]mtSlot, slots)}
	for i := range d.slots {
		d.slots[i].tracking = -1
	}
	return d
}

// Feed consumes one event. It returns the contacts of a completed frame.
func (d *mtDecoder) Feed(ev inputEvent) ([]touch.Touch, bool) {
	switch ev.Type {
	case evSyn:
		switch ev.Code {
		case synReport:
			if d.dropping {
				d.dropping = false
				return nil, false
			}
			return d.frame()
		case synDropped:
			d.dropping = true
			return d.cancelAll()
		}
	case evAbs:
		if d.dropping {
			return nil, false
		}
		d.abs(ev.Code, ev.Value)
	}
	return nil, false
}

func (d *mtDecoder) abs(code uint16, value int32) {
	if code == absMTSlot {
		d.current = int(value)
		return
	}
	if d.current < 0 || d.current >= len(d.slots) {
		return
	}
	s := &d.slots[d.current]
	switch code {
	case absMTTrackingID:
		s.tracking = value
	case absMTPositionX:
		s.x = value
		s.changed = true
	case absMTPositionY:
		s.y = value
		s.changed = true
	}
}

func (d *mtDecoder) frame() ([]touch.Touch, bool) {
	var out []touch.Touch
	for i := range d.slots {
		s := &d.slots[i]
		now := s.tracking >= 0
		id := d.identity(s.tracking)

		// A slot handed to a new contact within one frame ends the old one.
		if now && s.active && id != s.identity {
			out = append(out, d.contact(s.identity, touch.PhaseEnded, s.lastX, s.lastY))
			s.active = false
		}

		switch {
		case now && !s.active:
			out = append(out, d.contact(id, touch.PhaseBegan, s.x, s.y))
		case !now && s.active:
			out = append(out, d.contact(s.identity, touch.PhaseEnded, s.lastX, s.lastY))
		case now && s.changed && (s.x != s.lastX || s.y != s.lastY):
			out = append(out, d.contact(id, touch.PhaseMoved, s.x, s.y))
		case now:
			out = append(out, d.contact(id, touch.PhaseStationary, s.x, s.y))
		}

		s.active = now
		s.changed = false
		if now {
			s.identity = id
			s.lastX, s.lastY = s.x, s.y
		}
	}
	return out, len(out) > 0
}

// cancelAll reports every live contact as cancelled and forgets the slots.
func (d *mtDecoder) cancelAll() ([]touch.Touch, bool) {
	var out []touch.Touch
	for i := range d.slots {
		s := &d.slots[i]
		if s.active {
			out = append(out, d.contact(s.identity, touch.PhaseCancelled, s.lastX, s.lastY))
		}
		d.slots[i] = mtSlot{tracking: -1}
	}
	return out, len(out) > 0
}

func (d *mtDecoder) identity(tracking int32) int64 {
	return d.device<<32 | int64(uint32(tracking))
}

// contact builds a touch; y is flipped so the origin is the bottom-left.
func (d *mtDecoder) contact(id int64, phase touch.Phase, x, y int32) touch.Touch {
	return touch.Touch{
		Identity: id,
		Phase:    phase,
		Position: touch.Point{X: d.x.normalize(x), Y: 1 - d.y.normalize(y)},
	}
}

// parseTouchpads reads /proc/bus/input/devices and returns the event nodes of
// indirect multitouch pointers: devices with MT slots and positions that are
// pointers but not direct (touchscreen) input.
func parseTouchpads(r io.Reader) []string {
	var (
		devices []string
		handler string
		abs     string
		prop    string
	)
	flush := func() {
		if handler != "" &&
			hasBit(abs, absMTSlot) && hasBit(abs, absMTPositionX) &&
			hasBit(prop, inputPropPointer) && !hasBit(prop, inputPropDirect) {
			devices = append(devices, "/dev/input/"+handler)
		}
		handler, abs, prop = "", "", ""
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "H: Handlers="):
			for _, part := range strings.Fields(strings.TrimPrefix(line, "H: Handlers=")) {
				if strings.HasPrefix(part, "event") {
					handler = part
				}
			}
		case strings.HasPrefix(line, "B: ABS="):
			abs = strings.TrimPrefix(line, "B: ABS=")
		case strings.HasPrefix(line, "B: PROP="):
			prop = strings.TrimPrefix(line, "B: PROP=")
		}
	}
	flush()
	return devices
}

// hasBit tests a kernel bitmap as printed in /proc: space separated hex
// words of host long size, most significant word first.
func hasBit(bitmap string, bit int) bool {
	words := strings.Fields(bitmap)
	idx := bit / strconv.IntSize
	if idx >= len(words) {
		return false
	}
	w, err := strconv.ParseUint(words[len(words)-1-idx], 16, 64)
	if err != nil {
		return false
	}
	return w&(uint64(1)<<(bit%strconv.IntSize)) != 0
}
