package tap

import "errors"

// ErrTapCreation is returned when the system refuses or fails to create a tap.
// It is fatal to indirect touch support but never to the process.
var ErrTapCreation = errors.New("event tap creation failed")

// ErrPermissionDenied is returned by backends when the process lacks the
// permission needed to observe input (Accessibility on macOS, the input
// group on Linux).
var ErrPermissionDenied = errors.New("insufficient permissions for event tap")

// ErrNotAvailable is returned by backends on platforms without tap support.
var ErrNotAvailable = errors.New("event tap not available on this platform")

// ErrEmptyKindSet is returned when a tap is requested for no event kinds.
var ErrEmptyKindSet = errors.New("event kind set is empty")

// ErrDecode is returned by a backend that cannot turn a raw event into a
// touch sample.
var ErrDecode = errors.New("raw event could not be decoded")

// ErrDestroyed is returned by operations on a destroyed handle.
var ErrDestroyed = errors.New("event tap handle destroyed")
