// Package ipc implements the control socket of a running swipetap process.
//
// Messages are framed by a fixed 16-byte header followed by a JSON payload.
// Clients issue requests (status, enable, pause, reload) and may subscribe
// to a stream of gesture and capability events.
package ipc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Protocol version for compatibility checking
const (
	ProtocolVersion = 1
	ProtocolMagic   = 0x53575450 // "SWTP"
)

// MaxPayload bounds the payload of a single message.
const MaxPayload = 1 << 20

// MessageType identifies the type of IPC message
type MessageType uint16

const (
	// Control messages (0x00xx)
	MsgPing         MessageType = 0x0001
	MsgPong         MessageType = 0x0002
	MsgHandshake    MessageType = 0x0003
	MsgHandshakeAck MessageType = 0x0004
	MsgError        MessageType = 0x0005

	// Status messages (0x01xx)
	MsgStatusRequest  MessageType = 0x0100
	MsgStatusResponse MessageType = 0x0101

	// Capability (0x02xx)
	MsgEnable         MessageType = 0x0200
	MsgDisable        MessageType = 0x0201
	MsgSetPaused      MessageType = 0x0202
	MsgCapabilityResp MessageType = 0x0203

	// Configuration (0x04xx)
	MsgGetConfig        MessageType = 0x0400
	MsgGetConfigResp    MessageType = 0x0401
	MsgReloadConfig     MessageType = 0x0404
	MsgReloadConfigResp MessageType = 0x0405

	// Event streaming (0x05xx)
	MsgSubscribe       MessageType = 0x0500
	MsgSubscribeResp   MessageType = 0x0501
	MsgUnsubscribe     MessageType = 0x0502
	MsgUnsubscribeResp MessageType = 0x0503
	MsgEvent           MessageType = 0x0504
)

func (t MessageType) String() string {
	switch t {
	case MsgPing:
		return "ping"
	case MsgPong:
		return "pong"
	case MsgHandshake:
		return "handshake"
	case MsgHandshakeAck:
		return "handshake_ack"
	case MsgError:
		return "error"
	case MsgStatusRequest:
		return "status"
	case MsgStatusResponse:
		return "status_response"
	case MsgEnable:
		return "enable"
	case MsgDisable:
		return "disable"
	case MsgSetPaused:
		return "set_paused"
	case MsgCapabilityResp:
		return "capability_response"
	case MsgGetConfig:
		return "get_config"
	case MsgGetConfigResp:
		return "get_config_response"
	case MsgReloadConfig:
		return "reload_config"
	case MsgReloadConfigResp:
		return "reload_config_response"
	case MsgSubscribe:
		return "subscribe"
	case MsgSubscribeResp:
		return "subscribe_response"
	case MsgUnsubscribe:
		return "unsubscribe"
	case MsgUnsubscribeResp:
		return "unsubscribe_response"
	case MsgEvent:
		return "event"
	default:
		return fmt.Sprintf("0x%04x", uint16(t))
	}
}

// EventType identifies the type of streamed event
type EventType uint16

const (
	EventGesture       EventType = 0x0001
	EventCapability    EventType = 0x0002
	EventSession       EventType = 0x0003
	EventConfigChanged EventType = 0x0004
	EventShutdown      EventType = 0x0005
)

// AllEvents lists every event type a subscriber may request.
var AllEvents = []EventType{EventGesture, EventCapability, EventSession, EventConfigChanged, EventShutdown}

func (t EventType) String() string {
	switch t {
	case EventGesture:
		return "gesture"
	case EventCapability:
		return "capability"
	case EventSession:
		return "session"
	case EventConfigChanged:
		return "config_changed"
	case EventShutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("0x%04x", uint16(t))
	}
}

// Header is the fixed-size message header (16 bytes)
type Header struct {
	Magic     uint32      // Protocol magic number
	Version   uint8       // Protocol version
	Flags     uint8       // Message flags
	Type      MessageType // Message type
	RequestID uint32      // Request ID for correlation
	Length    uint32      // Payload length (not including header)
}

// HeaderSize is the size of the header in bytes
const HeaderSize = 16

// FlagJSON marks a JSON payload. It is the only encoding.
const FlagJSON uint8 = 0x04

// Message wraps a header and payload
type Message struct {
	Header  Header
	Payload []byte
}

// NewMessage creates a new message with the given type and payload
func NewMessage(msgType MessageType, requestID uint32, payload []byte) *Message {
	return &Message{
		Header: Header{
			Magic:     ProtocolMagic,
			Version:   ProtocolVersion,
			Flags:     FlagJSON,
			Type:      msgType,
			RequestID: requestID,
			Length:    uint32(len(payload)),
		},
		Payload: payload,
	}
}

// Write writes the header to a writer
func (h *Header) Write(w io.Writer) error {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	buf[4] = h.Version
	buf[5] = h.Flags
	binary.BigEndian.PutUint16(buf[6:8], uint16(h.Type))
	binary.BigEndian.PutUint32(buf[8:12], h.RequestID)
	binary.BigEndian.PutUint32(buf[12:16], h.Length)
	_, err := w.Write(buf)
	return err
}

// ReadHeader reads a header from a reader
func ReadHeader(r io.Reader) (*Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	h := &Header{
		Magic:     binary.BigEndian.Uint32(buf[0:4]),
		Version:   buf[4],
		Flags:     buf[5],
		Type:      MessageType(binary.BigEndian.Uint16(buf[6:8])),
		RequestID: binary.BigEndian.Uint32(buf[8:12]),
		Length:    binary.BigEndian.Uint32(buf[12:16]),
	}

	if h.Magic != ProtocolMagic {
		return nil, fmt.Errorf("invalid magic number: %x", h.Magic)
	}
	if h.Version > ProtocolVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", h.Version)
	}
	return h, nil
}

// Write writes the message as a single buffer so concurrent writers
// serialized by a mutex never interleave partial frames.
func (m *Message) Write(w io.Writer) error {
	m.Header.Length = uint32(len(m.Payload))
	buf := make([]byte, 0, HeaderSize+len(m.Payload))
	buf = binary.BigEndian.AppendUint32(buf, m.Header.Magic)
	buf = append(buf, m.Header.Version, m.Header.Flags)
	buf = binary.BigEndian.AppendUint16(buf, uint16(m.Header.Type))
	buf = binary.BigEndian.AppendUint32(buf, m.Header.RequestID)
	buf = binary.BigEndian.AppendUint32(buf, m.Header.Length)
	buf = append(buf, m.Payload...)
	_, err := w.Write(buf)
	return err
}

// ReadMessage reads a complete message from a reader
func ReadMessage(r io.Reader) (*Message, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}

	m := &Message{Header: *h}
	if h.Length > 0 {
		if h.Length > MaxPayload {
			return nil, fmt.Errorf("payload too large: %d bytes", h.Length)
		}
		m.Payload = make([]byte, h.Length)
		if _, err := io.ReadFull(r, m.Payload); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Request/Response payloads

// HandshakeRequest is sent by the client to initiate connection
type HandshakeRequest struct {
	ClientVersion   string `json:"client_version"`
	ClientName      string `json:"client_name"`
	ProtocolVersion uint8  `json:"protocol_version"`
}

// HandshakeResponse is sent by the server to acknowledge connection
type HandshakeResponse struct {
	ServerVersion   string `json:"server_version"`
	ProtocolVersion uint8  `json:"protocol_version"`
	SessionID       string `json:"session_id"`
}

// ErrorResponse is sent when an operation fails
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

// Error codes
const (
	ErrUnknown          = 1
	ErrInvalidRequest   = 2
	ErrPermissionDenied = 4
	ErrInternalError    = 5
	ErrUnavailable      = 6
)

// RouterStats mirrors the dispatcher counters.
type RouterStats struct {
	Received  uint64 `json:"received"`
	Dropped   uint64 `json:"dropped"`
	Forwarded uint64 `json:"forwarded"`
	Pending   int    `json:"pending"`
}

// GestureStatus is a snapshot of the swipe recognizer.
type GestureStatus struct {
	State    string  `json:"state"`
	ValueX   float64 `json:"value_x"`
	ValueY   float64 `json:"value_y"`
	Velocity float64 `json:"velocity"`
	InsetX   float64 `json:"inset_x"`
	InsetY   float64 `json:"inset_y"`
}

// StatusResponse describes the running process.
type StatusResponse struct {
	Version   string        `json:"version"`
	Backend   string        `json:"backend"`
	StartedAt time.Time     `json:"started_at"`
	Uptime    time.Duration `json:"uptime"`
	Enabled   bool          `json:"enabled"`
	Paused    bool          `json:"paused"`
	Router    RouterStats   `json:"router"`
	Gesture   GestureStatus `json:"gesture"`
}

// SetPausedRequest pauses or resumes delivery.
type SetPausedRequest struct {
	Paused bool `json:"paused"`
}

// CapabilityResponse reports the capability after a change.
type CapabilityResponse struct {
	Enabled bool `json:"enabled"`
	Paused  bool `json:"paused"`
}

// ConfigResponse carries the effective configuration as JSON.
type ConfigResponse struct {
	Path   string          `json:"path,omitempty"`
	Config json.RawMessage `json:"config"`
}

// ReloadResponse acknowledges a configuration reload.
type ReloadResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// SubscribeRequest requests event subscription
type SubscribeRequest struct {
	Events []EventType `json:"events"` // Empty means all events
}

// SubscribeResponse acknowledges subscription
type SubscribeResponse struct {
	Success        bool   `json:"success"`
	SubscriptionID string `json:"subscription_id"`
}

// Event is a streamed event
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// GestureEvent is emitted on every recognizer transition.
type GestureEvent struct {
	GestureStatus
	DeltaX float64 `json:"delta_x"`
	DeltaY float64 `json:"delta_y"`
}

// CapabilityEvent is emitted when delivery is enabled, disabled, paused or
// resumed.
type CapabilityEvent struct {
	Enabled bool   `json:"enabled"`
	Paused  bool   `json:"paused"`
	Reason  string `json:"reason,omitempty"`
}

// SessionEvent is emitted when the user session changes activity.
type SessionEvent struct {
	Active bool `json:"active"`
}

// ConfigChangedEvent lists the keys that changed in a reload.
type ConfigChangedEvent struct {
	Keys []string `json:"keys"`
}

// NewEvent builds an event with data encoded as JSON.
func NewEvent(t EventType, data any) (*Event, error) {
	ev := &Event{Type: t, Timestamp: time.Now()}
	if data != nil {
		raw, err := Encode(data)
		if err != nil {
			return nil, err
		}
		ev.Data = raw
	}
	return ev, nil
}

// DecodeData decodes the event payload into v.
func (e *Event) DecodeData(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("event %s has no data", e.Type)
	}
	return Decode(e.Data, v)
}

// Encode encodes a payload to JSON bytes
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decode decodes JSON bytes to a payload
func Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// NewErrorMessage creates an error message
func NewErrorMessage(requestID uint32, code int, message string) *Message {
	payload, _ := Encode(&ErrorResponse{
		Code:    code,
		Message: message,
	})
	return NewMessage(MsgError, requestID, payload)
}

// NewResponse creates a response message
func NewResponse(msgType MessageType, requestID uint32, v any) (*Message, error) {
	payload, err := Encode(v)
	if err != nil {
		return nil, err
	}
	return NewMessage(msgType, requestID, payload), nil
}
