package ipc

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeController struct {
	mu        sync.Mutex
	enabled   bool
	paused    bool
	enableErr error
	reloadErr error
	reloads   int
}

func (f *fakeController) Status(context.Context) (StatusResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return StatusResponse{
		Backend: "simulated",
		Enabled: f.enabled,
		Paused:  f.paused,
		Router:  RouterStats{Received: 3, Forwarded: 2, Dropped: 1},
		Gesture: GestureStatus{State: "changed", ValueX: 0.25, Velocity: 0.016},
	}, nil
}

func (f *fakeController) SetEnabled(enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if enabled && f.enableErr != nil {
		return f.enableErr
	}
	f.enabled = enabled
	return nil
}

func (f *fakeController) SetPaused(paused bool) {
	f.mu.Lock()
	f.paused = paused
	f.mu.Unlock()
}

func (f *fakeController) Capability() CapabilityResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	return CapabilityResponse{Enabled: f.enabled, Paused: f.paused}
}

func (f *fakeController) Config() (string, []byte, error) {
	return "/etc/swipetap.toml", []byte(`{"version":2}`), nil
}

func (f *fakeController) Reload() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reloads++
	return f.reloadErr
}

func socketPath(t *testing.T) string {
	t.Helper()
	// Short directory: unix socket paths are limited to ~104 bytes.
	dir, err := os.MkdirTemp("", "swtp")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "c.sock")
}

func startServer(t *testing.T, ctrl Controller) *Server {
	t.Helper()
	cfg := DefaultServerConfig(socketPath(t))
	cfg.Version = "1.2.3"
	srv := NewServer(cfg, NewControlHandler(ctrl, cfg.Version, nil))
	require.NoError(t, srv.Start())
	t.Cleanup(func() { srv.Stop() })
	return srv
}

func connect(t *testing.T, srv *Server) *IPCClient {
	t.Helper()
	c := NewClient(DefaultClientConfig(srv.SocketPath()))
	require.NoError(t, c.Connect())
	t.Cleanup(func() { c.Close() })
	return c
}

func TestMessageFraming(t *testing.T) {
	var buf bytes.Buffer
	msg := NewMessage(MsgStatusRequest, 42, []byte(`{"a":1}`))
	require.NoError(t, msg.Write(&buf))
	assert.Equal(t, HeaderSize+7, buf.Len())
	assert.Equal(t, uint32(ProtocolMagic), binary.BigEndian.Uint32(buf.Bytes()[0:4]))

	got, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, MsgStatusRequest, got.Header.Type)
	assert.Equal(t, uint32(42), got.Header.RequestID)
	assert.Equal(t, `{"a":1}`, string(got.Payload))
}

func TestReadMessageRejectsBadHeaders(t *testing.T) {
	var buf bytes.Buffer
	bad := NewMessage(MsgPing, 1, nil)
	bad.Header.Magic = 0x57495043
	require.NoError(t, bad.Write(&buf))
	_, err := ReadMessage(&buf)
	assert.ErrorContains(t, err, "invalid magic")

	buf.Reset()
	h := Header{Magic: ProtocolMagic, Version: ProtocolVersion, Type: MsgPing, Length: MaxPayload + 1}
	require.NoError(t, h.Write(&buf))
	_, err = ReadMessage(&buf)
	assert.ErrorContains(t, err, "payload too large")

	buf.Reset()
	h = Header{Magic: ProtocolMagic, Version: ProtocolVersion + 1, Type: MsgPing}
	require.NoError(t, h.Write(&buf))
	_, err = ReadMessage(&buf)
	assert.ErrorContains(t, err, "unsupported protocol version")
}

func TestEventData(t *testing.T) {
	ev, err := NewEvent(EventSession, &SessionEvent{Active: true})
	require.NoError(t, err)

	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	var decoded Event
	require.NoError(t, json.Unmarshal(raw, &decoded))

	var data SessionEvent
	require.NoError(t, decoded.DecodeData(&data))
	assert.True(t, data.Active)

	empty, err := NewEvent(EventShutdown, nil)
	require.NoError(t, err)
	assert.Error(t, empty.DecodeData(&data))
}

func TestTypeNames(t *testing.T) {
	assert.Equal(t, "status", MsgStatusRequest.String())
	assert.Equal(t, "0x0999", MessageType(0x999).String())
	assert.Equal(t, "gesture", EventGesture.String())
}

func TestHandshakeAndPing(t *testing.T) {
	srv := startServer(t, &fakeController{})
	c := connect(t, srv)

	assert.True(t, c.IsConnected())
	assert.Equal(t, "1.2.3", c.ServerVersion())
	assert.NotEmpty(t, c.SessionID())

	rtt, err := c.Ping()
	require.NoError(t, err)
	assert.Greater(t, rtt, time.Duration(0))
	assert.Equal(t, 1, srv.ClientCount())
}

func TestStatus(t *testing.T) {
	srv := startServer(t, &fakeController{enabled: true})
	c := connect(t, srv)

	st, err := c.Status()
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", st.Version)
	assert.Equal(t, "simulated", st.Backend)
	assert.True(t, st.Enabled)
	assert.Equal(t, uint64(2), st.Router.Forwarded)
	assert.Equal(t, "changed", st.Gesture.State)
	assert.False(t, st.StartedAt.IsZero())
}

func TestCapabilityRequests(t *testing.T) {
	ctrl := &fakeController{}
	srv := startServer(t, ctrl)
	c := connect(t, srv)

	resp, err := c.Enable()
	require.NoError(t, err)
	assert.True(t, resp.Enabled)

	resp, err = c.SetPaused(true)
	require.NoError(t, err)
	assert.True(t, resp.Paused)

	resp, err = c.Disable()
	require.NoError(t, err)
	assert.False(t, resp.Enabled)
}

func TestEnableUnavailable(t *testing.T) {
	ctrl := &fakeController{enableErr: errors.Join(ErrCapabilityUnavailable, errors.New("no devices"))}
	srv := startServer(t, ctrl)
	c := connect(t, srv)

	_, err := c.Enable()
	var errResp *ErrorResponse
	require.ErrorAs(t, err, &errResp)
	assert.Equal(t, ErrUnavailable, errResp.Code)
	assert.Contains(t, errResp.Message, "no devices")
}

func TestConfigAndReload(t *testing.T) {
	ctrl := &fakeController{}
	srv := startServer(t, ctrl)
	c := connect(t, srv)

	cfg, err := c.GetConfig()
	require.NoError(t, err)
	assert.Equal(t, "/etc/swipetap.toml", cfg.Path)
	assert.JSONEq(t, `{"version":2}`, string(cfg.Config))

	require.NoError(t, c.ReloadConfig())

	ctrl.mu.Lock()
	ctrl.reloadErr = errors.New("parse error")
	ctrl.mu.Unlock()
	assert.ErrorContains(t, c.ReloadConfig(), "parse error")
	assert.Equal(t, 2, ctrl.reloads)
}

func TestUnknownMessage(t *testing.T) {
	srv := startServer(t, &fakeController{})
	c := connect(t, srv)

	resp, err := c.request(MessageType(0x0999), nil)
	require.NoError(t, err)
	err = decodeResponse(resp, MsgStatusResponse, nil)
	var errResp *ErrorResponse
	require.ErrorAs(t, err, &errResp)
	assert.Equal(t, ErrInvalidRequest, errResp.Code)
}

func nextEvent(t *testing.T, c *IPCClient) *Event {
	t.Helper()
	select {
	case ev, ok := <-c.Events():
		require.True(t, ok, "event stream closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
		return nil
	}
}

func TestSubscribeFiltersEvents(t *testing.T) {
	srv := startServer(t, &fakeController{})
	c := connect(t, srv)
	require.NoError(t, c.Subscribe(EventGesture))
	assert.Equal(t, 1, srv.SubscriberCount())

	srv.Publish(EventSession, &SessionEvent{Active: false})
	srv.Publish(EventGesture, &GestureEvent{GestureStatus: GestureStatus{State: "began"}, DeltaX: 0.1})
	srv.Publish(EventGesture, &GestureEvent{GestureStatus: GestureStatus{State: "changed"}, DeltaX: 0.2})

	for _, want := range []string{"began", "changed"} {
		ev := nextEvent(t, c)
		require.Equal(t, EventGesture, ev.Type)
		var g GestureEvent
		require.NoError(t, ev.DecodeData(&g))
		assert.Equal(t, want, g.State)
	}

	require.NoError(t, c.Unsubscribe())
	srv.Publish(EventGesture, &GestureEvent{})
	_, err := c.Ping()
	require.NoError(t, err)
	select {
	case ev := <-c.Events():
		t.Fatalf("unexpected event after unsubscribe: %v", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStopSendsShutdown(t *testing.T) {
	srv := startServer(t, &fakeController{})
	c := connect(t, srv)
	require.NoError(t, c.Subscribe())

	require.NoError(t, srv.Stop())
	assert.Equal(t, EventShutdown, nextEvent(t, c).Type)

	select {
	case _, ok := <-c.Events():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("event stream not closed")
	}
	assert.False(t, c.IsConnected())
	assert.ErrorIs(t, c.Connect(), ErrConnectionLost)

	_, err := os.Stat(srv.SocketPath())
	assert.True(t, os.IsNotExist(err))
}

func TestPublishAfterStop(t *testing.T) {
	srv := startServer(t, &fakeController{})
	require.NoError(t, srv.Stop())
	assert.NotPanics(t, func() { srv.Publish(EventGesture, &GestureEvent{}) })

	var nilServer *Server
	assert.NotPanics(t, func() { nilServer.Publish(EventGesture, nil) })
}

func TestStartRefusesLiveSocket(t *testing.T) {
	srv := startServer(t, &fakeController{})
	other := NewServer(DefaultServerConfig(srv.SocketPath()), nil)
	assert.ErrorIs(t, other.Start(), ErrAlreadyRunning)
}

func TestConnectNotRunning(t *testing.T) {
	c := NewClient(DefaultClientConfig(socketPath(t)))
	assert.ErrorIs(t, c.Connect(), ErrNotRunning)
}

func TestCleanupSocket(t *testing.T) {
	path := socketPath(t)
	require.NoError(t, CleanupSocket(path))

	require.NoError(t, os.WriteFile(path, []byte("x"), 0600))
	assert.ErrorContains(t, CleanupSocket(path), "not a socket")
}
