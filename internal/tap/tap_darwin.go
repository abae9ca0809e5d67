//go:build darwin && cgo

package tap

/*
#cgo CFLAGS: -x objective-c -fobjc-arc
#cgo LDFLAGS: -framework ApplicationServices -framework Cocoa

#include <ApplicationServices/ApplicationServices.h>
#include <Cocoa/Cocoa.h>
#include <stdint.h>

#define SWIPETAP_MAX_TOUCHES 16

typedef struct {
	int64_t identity;
	int32_t phase;
	int32_t resting;
	double x;
	double y;
} swipetapTouch;

typedef struct {
	int64_t windowNumber;
	double locationX;
	double locationY;
	int32_t count;
	swipetapTouch touches[SWIPETAP_MAX_TOUCHES];
} swipetapSample;

extern void swipetapDeliver(uintptr_t handle, uint32_t type, CGEventRef event);

static CGEventRef swipetapCallback(CGEventTapProxy proxy, CGEventType type, CGEventRef event, void *info) {
	(void)proxy;
	swipetapDeliver((uintptr_t)info, (uint32_t)type, event);
	return event;
}

// Creates the tap and attaches it to the calling thread's run loop.
// Returns 0 on success, -1 if the tap was refused, -2 if no source could be made.
static int swipetapStart(uintptr_t handle, CGEventMask mask, int location, int position, int listenOnly,
                         CFMachPortRef *portOut, CFRunLoopSourceRef *sourceOut, CFRunLoopRef *loopOut) {
	CGEventTapLocation loc = kCGAnnotatedSessionEventTap;
	if (location == 0) {
		loc = kCGHIDEventTap;
	} else if (location == 1) {
		loc = kCGSessionEventTap;
	}
	CGEventTapPlacement place = position == 0 ? kCGHeadInsertEventTap : kCGTailAppendEventTap;
	CGEventTapOptions opts = listenOnly ? kCGEventTapOptionListenOnly : kCGEventTapOptionDefault;

	CFMachPortRef port = CGEventTapCreate(loc, place, opts, mask, swipetapCallback, (void *)handle);
	if (port == NULL) {
		return -1;
	}
	CFRunLoopSourceRef source = CFMachPortCreateRunLoopSource(kCFAllocatorDefault, port, 0);
	if (source == NULL) {
		CFMachPortInvalidate(port);
		CFRelease(port);
		return -2;
	}
	CFRunLoopRef loop = CFRunLoopGetCurrent();
	CFRunLoopAddSource(loop, source, kCFRunLoopCommonModes);
	CGEventTapEnable(port, true);

	*portOut = port;
	*sourceOut = source;
	*loopOut = loop;
	return 0;
}

static void swipetapRunFor(double seconds) {
	CFRunLoopRunInMode(kCFRunLoopDefaultMode, seconds, false);
}

static void swipetapWake(CFRunLoopRef loop) {
	CFRunLoopStop(loop);
}

static void swipetapEnable(CFMachPortRef port, int enabled) {
	CGEventTapEnable(port, enabled ? true : false);
}

static void swipetapStop(CFMachPortRef port, CFRunLoopSourceRef source, CFRunLoopRef loop) {
	CGEventTapEnable(port, false);
	CFRunLoopRemoveSource(loop, source, kCFRunLoopCommonModes);
	CFRelease(source);
	CFMachPortInvalidate(port);
	CFRelease(port);
}

static int swipetapDecode(CGEventRef cg, swipetapSample *out) {
	@autoreleasepool {
		NSEvent *event = [NSEvent eventWithCGEvent:cg];
		if (event == nil) {
			return 0;
		}
		NSSet<NSTouch *> *touches = [event touchesMatchingPhase:NSTouchPhaseAny inView:nil];
		if (touches == nil) {
			return 0;
		}
		out->windowNumber = (int64_t)event.windowNumber;
		NSPoint location = event.locationInWindow;
		out->locationX = location.x;
		out->locationY = location.y;

		int32_t n = 0;
		for (NSTouch *t in touches) {
			if (n >= SWIPETAP_MAX_TOUCHES) {
				break;
			}
			NSPoint p = t.normalizedPosition;
			out->touches[n].identity = (int64_t)[t.identity hash];
			out->touches[n].phase = (int32_t)t.phase;
			out->touches[n].resting = t.isResting ? 1 : 0;
			out->touches[n].x = p.x;
			out->touches[n].y = p.y;
			n++;
		}
		out->count = n;
		return 1;
	}
}

static int swipetapTrusted(void) {
	return AXIsProcessTrusted() ? 1 : 0;
}
*/
import "C"

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/cgo"
	"sync"
	"sync/atomic"
	"time"

	"swipetap/internal/touch"
)

// runSlice bounds how long the tap thread sleeps before checking for stop.
const runSlice = 0.25

type darwinBackend struct {
	logger *slog.Logger
}

func newPlatformBackend(opts PlatformOptions) Backend {
	return &darwinBackend{logger: opts.Logger}
}

func (b *darwinBackend) Name() string {
	return "quartz"
}

// Register creates a CGEventTap serviced by a dedicated OS thread with its
// own CFRunLoop. The registration is reached from C only through a
// cgo.Handle, which is deleted after the tap is gone.
func (b *darwinBackend) Register(mask uint64, placement Placement, deliver func(RawEvent)) (Registration, error) {
	reg := &darwinRegistration{
		deliver: deliver,
		logger:  b.logger,
		ready:   make(chan error, 1),
		done:    make(chan struct{}),
	}
	reg.handle = cgo.NewHandle(reg)

	go reg.run(mask, placement)

	if err := <-reg.ready; err != nil {
		<-reg.done
		reg.handle.Delete()
		return nil, err
	}
	return reg, nil
}

func (b *darwinBackend) Decode(ev RawEvent) (touch.Sample, error) {
	sample, ok := ev.Payload.(touch.Sample)
	if !ok {
		return touch.Sample{}, fmt.Errorf("%w: no touches in %s event", ErrDecode, ev.Kind)
	}
	return sample, nil
}

type darwinRegistration struct {
	handle  cgo.Handle
	deliver func(RawEvent)
	logger  *slog.Logger

	ready    chan error
	done     chan struct{}
	stopping atomic.Bool
	stopOnce sync.Once

	mu     sync.Mutex
	live   bool
	port   C.CFMachPortRef
	source C.CFRunLoopSourceRef
	loop   C.CFRunLoopRef
}

func (r *darwinRegistration) run(mask uint64, placement Placement) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(r.done)

	listenOnly := C.int(0)
	if placement.ListenOnly {
		listenOnly = 1
	}

	var (
		port   C.CFMachPortRef
		source C.CFRunLoopSourceRef
		loop   C.CFRunLoopRef
	)
	switch C.swipetapStart(C.uintptr_t(r.handle), C.CGEventMask(mask),
		C.int(placement.Location), C.int(placement.Position), listenOnly,
		&port, &source, &loop) {
	case 0:
	case -1:
		if C.swipetapTrusted() == 0 {
			r.ready <- ErrPermissionDenied
		} else {
			r.ready <- errors.New("CGEventTapCreate refused the tap")
		}
		return
	default:
		r.ready <- errors.New("failed to create run loop source")
		return
	}

	r.mu.Lock()
	r.port, r.source, r.loop = port, source, loop
	r.live = true
	r.mu.Unlock()
	r.ready <- nil

	for !r.stopping.Load() {
		C.swipetapRunFor(runSlice)
	}

	r.mu.Lock()
	r.live = false
	r.mu.Unlock()
	C.swipetapStop(port, source, loop)
}

func (r *darwinRegistration) SetEnabled(enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.live {
		return ErrDestroyed
	}
	flag := C.int(0)
	if enabled {
		flag = 1
	}
	C.swipetapEnable(r.port, flag)
	return nil
}

// Unregister stops the tap thread and waits for it. It must not be called
// from the tap callback.
func (r *darwinRegistration) Unregister() error {
	r.stopOnce.Do(func() {
		r.stopping.Store(true)
		r.mu.Lock()
		if r.live {
			C.swipetapWake(r.loop)
		}
		r.mu.Unlock()
		<-r.done
		r.handle.Delete()
	})
	return nil
}

//export swipetapDeliver
func swipetapDeliver(handle C.uintptr_t, kind C.uint32_t, event C.CGEventRef) {
	reg, ok := cgo.Handle(uintptr(handle)).Value().(*darwinRegistration)
	if !ok || reg.stopping.Load() {
		return
	}

	raw := RawEvent{Kind: EventKind(kind)}
	if !raw.Kind.IsAutoDisable() {
		var cs C.swipetapSample
		if C.swipetapDecode(event, &cs) == 1 {
			raw.Payload = convertSample(&cs, time.Now())
		}
	}
	reg.deliver(raw)
}

func convertSample(cs *C.swipetapSample, now time.Time) touch.Sample {
	n := int(cs.count)
	if n > len(cs.touches) {
		n = len(cs.touches)
	}
	s := touch.Sample{
		WindowID:  int64(cs.windowNumber),
		Location:  touch.Point{X: float64(cs.locationX), Y: float64(cs.locationY)},
		Timestamp: now,
		Touches:   make([]touch.Touch, 0, n),
	}
	for i := 0; i < n; i++ {
		t := cs.touches[i]
		s.Touches = append(s.Touches, touch.Touch{
			Identity: int64(t.identity),
			Phase:    touch.Phase(t.phase),
			Position: touch.Point{X: float64(t.x), Y: float64(t.y)},
			Resting:  t.resting != 0,
		})
	}
	return s
}

func platformEnvironment() Environment {
	env := Environment{
		Provider:   "quartz_event_tap",
		Available:  true,
		Permission: "granted",
		Message:    "CGEventTap available",
	}
	if C.swipetapTrusted() == 0 {
		env.Available = false
		env.Provider = "stub"
		env.Permission = "denied"
		env.Message = "accessibility permission missing"
		env.Guidance = "System Settings > Privacy & Security > Accessibility: add this application"
	}
	return env
}
