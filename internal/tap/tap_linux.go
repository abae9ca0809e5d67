//go:build linux

package tap

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"swipetap/internal/touch"
)

const (
	procInputDevices = "/proc/bus/input/devices"

	// pollTimeout bounds how long a reader waits before checking for stop.
	pollTimeout = 250 * time.Millisecond

	// struct input_absinfo: value, minimum, maximum, fuzz, flat, resolution.
	sizeofAbsInfo = 24
)

// eventSize is sizeof(struct input_event) on this architecture.
var eventSize = int(unsafe.Sizeof(unix.Timeval{})) + 8

type absInfo struct {
	Value      int32
	Minimum    int32
	Maximum    int32
	Fuzz       int32
	Flat       int32
	Resolution int32
}

// eviocgabs is EVIOCGABS(abs) = _IOR('E', 0x40 + abs, struct input_absinfo).
func eviocgabs(abs uint) uint {
	return 2<<30 | sizeofAbsInfo<<16 | 'E'<<8 | (0x40 + abs)
}

func readAbsInfo(fd int, abs uint) (absInfo, error) {
	var info absInfo
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(eviocgabs(abs)), uintptr(unsafe.Pointer(&info)))
	if errno != 0 {
		return absInfo{}, errno
	}
	return info, nil
}

// evdevBackend reads multitouch touchpads from /dev/input. Only the touches
// kind is produced; the kernel never disables a reader, so no auto-disable
// notifications are delivered.
type evdevBackend struct {
	logger  *slog.Logger
	devices []string
	locate  Locator
}

func newPlatformBackend(opts PlatformOptions) Backend {
	return &evdevBackend{logger: opts.Logger, devices: opts.Devices, locate: opts.Locate}
}

func (b *evdevBackend) Name() string {
	return "evdev"
}

// findTouchpads lists indirect multitouch devices known to the kernel.
func findTouchpads() ([]string, error) {
	f, err := os.Open(procInputDevices)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseTouchpads(f), nil
}

type evdevDevice struct {
	path    string
	fd      int
	decoder *mtDecoder
}

func openDevice(path string, index int) (*evdevDevice, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	x, err := readAbsInfo(fd, absMTPositionX)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%s: read x axis: %w", path, err)
	}
	y, err := readAbsInfo(fd, absMTPositionY)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%s: read y axis: %w", path, err)
	}
	slots := defaultSlots
	if s, err := readAbsInfo(fd, absMTSlot); err == nil && s.Maximum >= 0 {
		slots = int(s.Maximum) + 1
	}
	return &evdevDevice{
		path: path,
		fd:   fd,
		decoder: newMTDecoder(int64(index),
			absAxis{Min: x.Minimum, Max: x.Maximum},
			absAxis{Min: y.Minimum, Max: y.Maximum},
			slots),
	}, nil
}

func (b *evdevBackend) Register(mask uint64, placement Placement, deliver func(RawEvent)) (Registration, error) {
	if mask&(uint64(1)<<KindTouches) == 0 {
		return nil, fmt.Errorf("%w: evdev only produces %s events", ErrNotAvailable, KindTouches)
	}

	paths := b.devices
	if len(paths) == 0 {
		found, err := findTouchpads()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNotAvailable, err)
		}
		paths = found
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no multitouch touchpad found", ErrNotAvailable)
	}

	var (
		devices []*evdevDevice
		denied  bool
	)
	for i, path := range paths {
		dev, err := openDevice(path, i)
		if err != nil {
			if errors.Is(err, unix.EACCES) || errors.Is(err, unix.EPERM) {
				denied = true
			}
			b.logger.Debug("skipping input device", "path", path, "error", err)
			continue
		}
		devices = append(devices, dev)
	}
	if len(devices) == 0 {
		if denied {
			return nil, ErrPermissionDenied
		}
		return nil, fmt.Errorf("%w: no readable touchpad", ErrNotAvailable)
	}

	reg := &evdevRegistration{
		deliver: deliver,
		locate:  b.locate,
		logger:  b.logger,
	}
	reg.enabled.Store(true)
	for _, dev := range devices {
		reg.wg.Add(1)
		go reg.pump(dev)
		b.logger.Info("reading touchpad", "path", dev.path, "listen_only", placement.ListenOnly)
	}
	return reg, nil
}

func (b *evdevBackend) Decode(ev RawEvent) (touch.Sample, error) {
	sample, ok := ev.Payload.(touch.Sample)
	if !ok {
		return touch.Sample{}, fmt.Errorf("%w: payload %T", ErrDecode, ev.Payload)
	}
	return sample, nil
}

type evdevRegistration struct {
	deliver func(RawEvent)
	locate  Locator
	logger  *slog.Logger

	enabled  atomic.Bool
	stopping atomic.Bool
	stopOnce sync.Once
	wg       sync.WaitGroup

	// deliverMu keeps deliveries from several devices sequential.
	deliverMu sync.Mutex
}

func (r *evdevRegistration) SetEnabled(enabled bool) error {
	if r.stopping.Load() {
		return ErrDestroyed
	}
	r.enabled.Store(enabled)
	return nil
}

func (r *evdevRegistration) Unregister() error {
	r.stopOnce.Do(func() {
		r.stopping.Store(true)
		r.wg.Wait()
	})
	return nil
}

func (r *evdevRegistration) pump(dev *evdevDevice) {
	defer r.wg.Done()
	defer unix.Close(dev.fd)

	buf := make([]byte, eventSize*64)
	fds := []unix.PollFd{{Fd: int32(dev.fd), Events: unix.POLLIN}}

	for !r.stopping.Load() {
		n, err := unix.Poll(fds, int(pollTimeout/time.Millisecond))
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			r.logger.Warn("touchpad poll failed", "path", dev.path, "error", err)
			return
		}
		if n == 0 {
			continue
		}
		if fds[0].Revents&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0 {
			r.logger.Warn("touchpad went away", "path", dev.path)
			return
		}

		m, err := unix.Read(dev.fd, buf)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				continue
			}
			r.logger.Warn("touchpad read failed", "path", dev.path, "error", err)
			return
		}

		// The decoder keeps tracking contacts while disabled so that
		// phases stay coherent when delivery resumes.
		for off := 0; off+eventSize <= m; off += eventSize {
			touches, ok := dev.decoder.Feed(parseInputEvent(buf[off : off+eventSize]))
			if ok && r.enabled.Load() && !r.stopping.Load() {
				r.emit(touches)
			}
		}
	}
}

func (r *evdevRegistration) emit(touches []touch.Touch) {
	sample := touch.Sample{Touches: touches, Timestamp: time.Now()}
	if r.locate != nil {
		if id, loc, ok := r.locate(); ok {
			sample.WindowID = id
			sample.Location = loc
		}
	}

	r.deliverMu.Lock()
	defer r.deliverMu.Unlock()
	r.deliver(RawEvent{Kind: KindTouches, Payload: sample})
}

// parseInputEvent decodes the type, code and value that follow the timeval.
func parseInputEvent(b []byte) inputEvent {
	off := eventSize - 8
	return inputEvent{
		Type:  binary.NativeEndian.Uint16(b[off : off+2]),
		Code:  binary.NativeEndian.Uint16(b[off+2 : off+4]),
		Value: int32(binary.NativeEndian.Uint32(b[off+4 : off+8])),
	}
}

func platformEnvironment() Environment {
	devices, err := findTouchpads()
	if err != nil || len(devices) == 0 {
		return Environment{
			Provider:   "stub",
			Available:  false,
			Permission: "not_applicable",
			Message:    "no multitouch touchpad found",
		}
	}
	for _, dev := range devices {
		f, err := os.OpenFile(dev, os.O_RDONLY, 0)
		if err == nil {
			f.Close()
			return Environment{
				Provider:   "evdev",
				Available:  true,
				Permission: "granted",
				Message:    fmt.Sprintf("found touchpad: %s", dev),
			}
		}
	}
	return Environment{
		Provider:   "evdev",
		Available:  false,
		Permission: "denied",
		Message:    "cannot read touchpad devices",
		Guidance:   "add the user to the 'input' group or run as root",
	}
}
