package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// Common errors
var (
	ErrNotConnected   = errors.New("not connected to swipetap")
	ErrConnectionLost = errors.New("connection to swipetap lost")
	ErrTimeout        = errors.New("request timeout")
	ErrNotRunning     = errors.New("swipetap is not running")
)

// IPCClient talks to a running swipetap over its control socket.
type IPCClient struct {
	mu         sync.RWMutex
	conn       net.Conn
	socketPath string
	sessionID  string
	version    string

	connected atomic.Bool
	dialed    bool

	pending   map[uint32]chan *Message
	pendingMu sync.Mutex
	nextReqID atomic.Uint32
	writeMu   sync.Mutex

	eventChan chan *Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	config ClientConfig
}

// ClientConfig configures the IPC client
type ClientConfig struct {
	SocketPath     string
	ClientName     string
	ClientVersion  string
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
}

// DefaultClientConfig returns defaults for a socket at path.
func DefaultClientConfig(path string) ClientConfig {
	return ClientConfig{
		SocketPath:     path,
		ClientName:     "swipetap-ctl",
		ClientVersion:  "dev",
		ConnectTimeout: 5 * time.Second,
		RequestTimeout: 10 * time.Second,
	}
}

// NewClient creates a new IPC client
func NewClient(cfg ClientConfig) *IPCClient {
	ctx, cancel := context.WithCancel(context.Background())
	return &IPCClient{
		socketPath: cfg.SocketPath,
		pending:    make(map[uint32]chan *Message),
		eventChan:  make(chan *Event, 256),
		ctx:        ctx,
		cancel:     cancel,
		config:     cfg,
	}
}

// Connect dials the socket and performs the handshake. A client connects
// at most once; create a new one after the connection is lost.
func (c *IPCClient) Connect() error {
	c.mu.Lock()
	if c.connected.Load() {
		c.mu.Unlock()
		return nil
	}
	if c.dialed {
		c.mu.Unlock()
		return ErrConnectionLost
	}

	dialer := net.Dialer{Timeout: c.config.ConnectTimeout}
	conn, err := dialer.Dial("unix", c.socketPath)
	if err != nil {
		c.mu.Unlock()
		if errors.Is(err, os.ErrNotExist) || isConnRefused(err) {
			return ErrNotRunning
		}
		return fmt.Errorf("connect: %w", err)
	}

	c.conn = conn
	c.dialed = true
	c.connected.Store(true)
	c.mu.Unlock()

	c.wg.Add(1)
	go c.readLoop(conn)

	if err := c.handshake(); err != nil {
		c.close()
		return fmt.Errorf("handshake: %w", err)
	}
	return nil
}

func isConnRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}

// Close closes the connection. The Events channel is closed once the
// reader has exited.
func (c *IPCClient) Close() error {
	c.cancel()
	c.close()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
	return nil
}

func (c *IPCClient) close() {
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connected.Store(false)
	c.mu.Unlock()

	c.pendingMu.Lock()
	for _, ch := range c.pending {
		close(ch)
	}
	c.pending = make(map[uint32]chan *Message)
	c.pendingMu.Unlock()
}

// IsConnected returns whether the client is connected
func (c *IPCClient) IsConnected() bool {
	return c.connected.Load()
}

// SessionID returns the session ID assigned by the server
func (c *IPCClient) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// ServerVersion returns the version reported in the handshake.
func (c *IPCClient) ServerVersion() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Events returns streamed events. It is closed when the connection ends.
func (c *IPCClient) Events() <-chan *Event {
	return c.eventChan
}

func (c *IPCClient) handshake() error {
	resp, err := c.request(MsgHandshake, &HandshakeRequest{
		ClientVersion:   c.config.ClientVersion,
		ClientName:      c.config.ClientName,
		ProtocolVersion: ProtocolVersion,
	})
	if err != nil {
		return err
	}

	var ack HandshakeResponse
	if err := decodeResponse(resp, MsgHandshakeAck, &ack); err != nil {
		return err
	}

	c.mu.Lock()
	c.sessionID = ack.SessionID
	c.version = ack.ServerVersion
	c.mu.Unlock()
	return nil
}

// decodeResponse checks the response type and decodes its payload into v.
// Error responses are returned as *ErrorResponse.
func decodeResponse(resp *Message, want MessageType, v any) error {
	if resp.Header.Type == MsgError {
		var errResp ErrorResponse
		if err := Decode(resp.Payload, &errResp); err != nil {
			return fmt.Errorf("decode error response: %w", err)
		}
		return &errResp
	}
	if resp.Header.Type != want {
		return fmt.Errorf("unexpected response type: %s", resp.Header.Type)
	}
	if v == nil || len(resp.Payload) == 0 {
		return nil
	}
	return Decode(resp.Payload, v)
}

func (c *IPCClient) request(msgType MessageType, payload any) (*Message, error) {
	return c.requestWithTimeout(msgType, payload, c.config.RequestTimeout)
}

func (c *IPCClient) requestWithTimeout(msgType MessageType, payload any, timeout time.Duration) (*Message, error) {
	if !c.connected.Load() {
		return nil, ErrNotConnected
	}

	var data []byte
	if payload != nil {
		var err error
		if data, err = Encode(payload); err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
	}

	reqID := c.nextReqID.Add(1)
	respChan := make(chan *Message, 1)
	c.pendingMu.Lock()
	c.pending[reqID] = respChan
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, reqID)
		c.pendingMu.Unlock()
	}()

	if err := c.write(NewMessage(msgType, reqID, data)); err != nil {
		c.close()
		return nil, fmt.Errorf("write message: %w", err)
	}

	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	select {
	case resp, ok := <-respChan:
		if !ok {
			return nil, ErrConnectionLost
		}
		return resp, nil
	case <-time.After(timeout):
		return nil, ErrTimeout
	case <-c.ctx.Done():
		return nil, c.ctx.Err()
	}
}

func (c *IPCClient) write(msg *Message) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return msg.Write(conn)
}

func (c *IPCClient) readLoop(conn net.Conn) {
	defer c.wg.Done()
	defer close(c.eventChan)
	defer c.close()

	for {
		msg, err := ReadMessage(conn)
		if err != nil {
			return
		}
		c.handleMessage(msg)
	}
}

func (c *IPCClient) handleMessage(msg *Message) {
	switch msg.Header.Type {
	case MsgPing:
		c.write(NewMessage(MsgPong, msg.Header.RequestID, nil))

	case MsgEvent:
		var event Event
		if err := Decode(msg.Payload, &event); err != nil {
			return
		}
		select {
		case c.eventChan <- &event:
		default:
			// Channel full, drop event
		}

	default:
		c.pendingMu.Lock()
		if ch, ok := c.pending[msg.Header.RequestID]; ok {
			select {
			case ch <- msg:
			default:
			}
		}
		c.pendingMu.Unlock()
	}
}

// High-level API methods

// Ping checks if swipetap is responsive
func (c *IPCClient) Ping() (time.Duration, error) {
	start := time.Now()
	resp, err := c.requestWithTimeout(MsgPing, nil, 5*time.Second)
	if err != nil {
		return 0, err
	}
	if err := decodeResponse(resp, MsgPong, nil); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

// Status requests the process status
func (c *IPCClient) Status() (*StatusResponse, error) {
	resp, err := c.request(MsgStatusRequest, nil)
	if err != nil {
		return nil, err
	}
	var status StatusResponse
	if err := decodeResponse(resp, MsgStatusResponse, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Enable turns indirect touch delivery on.
func (c *IPCClient) Enable() (*CapabilityResponse, error) {
	return c.capability(MsgEnable, nil)
}

// Disable turns indirect touch delivery off.
func (c *IPCClient) Disable() (*CapabilityResponse, error) {
	return c.capability(MsgDisable, nil)
}

// SetPaused pauses or resumes delivery without releasing the tap.
func (c *IPCClient) SetPaused(paused bool) (*CapabilityResponse, error) {
	return c.capability(MsgSetPaused, &SetPausedRequest{Paused: paused})
}

func (c *IPCClient) capability(msgType MessageType, payload any) (*CapabilityResponse, error) {
	resp, err := c.request(msgType, payload)
	if err != nil {
		return nil, err
	}
	var result CapabilityResponse
	if err := decodeResponse(resp, MsgCapabilityResp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetConfig returns the effective configuration.
func (c *IPCClient) GetConfig() (*ConfigResponse, error) {
	resp, err := c.request(MsgGetConfig, nil)
	if err != nil {
		return nil, err
	}
	var result ConfigResponse
	if err := decodeResponse(resp, MsgGetConfigResp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ReloadConfig asks swipetap to re-read its config file.
func (c *IPCClient) ReloadConfig() error {
	resp, err := c.request(MsgReloadConfig, nil)
	if err != nil {
		return err
	}
	var result ReloadResponse
	if err := decodeResponse(resp, MsgReloadConfigResp, &result); err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("reload failed: %s", result.Error)
	}
	return nil
}

// Subscribe subscribes to events. No types means all events.
func (c *IPCClient) Subscribe(events ...EventType) error {
	resp, err := c.request(MsgSubscribe, &SubscribeRequest{Events: events})
	if err != nil {
		return err
	}
	var result SubscribeResponse
	if err := decodeResponse(resp, MsgSubscribeResp, &result); err != nil {
		return err
	}
	if !result.Success {
		return errors.New("subscription failed")
	}
	return nil
}

// Unsubscribe stops the event stream.
func (c *IPCClient) Unsubscribe() error {
	resp, err := c.request(MsgUnsubscribe, nil)
	if err != nil {
		return err
	}
	return decodeResponse(resp, MsgUnsubscribeResp, nil)
}
