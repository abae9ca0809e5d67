package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Controller is the part of a running process the control socket drives.
type Controller interface {
	// Status fills the capability, router and gesture fields.
	Status(ctx context.Context) (StatusResponse, error)
	SetEnabled(enabled bool) error
	SetPaused(paused bool)
	Capability() CapabilityResponse
	// Config returns the config file path and the effective config as JSON.
	Config() (string, []byte, error)
	Reload() error
}

// ErrCapabilityUnavailable marks controller errors that should be reported
// as ErrUnavailable instead of an internal error.
var ErrCapabilityUnavailable = errors.New("capability unavailable")

// ControlHandler implements Handler on top of a Controller.
type ControlHandler struct {
	ctrl      Controller
	version   string
	startedAt time.Time
	logger    *slog.Logger
}

// NewControlHandler creates a handler for ctrl.
func NewControlHandler(ctrl Controller, version string, logger *slog.Logger) *ControlHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ControlHandler{
		ctrl:      ctrl,
		version:   version,
		startedAt: time.Now(),
		logger:    logger,
	}
}

// HandleMessage processes an IPC message
func (h *ControlHandler) HandleMessage(ctx context.Context, client *Client, msg *Message) (*Message, error) {
	h.logger.Debug("control request", "client", client.ID, "type", msg.Header.Type)

	switch msg.Header.Type {
	case MsgStatusRequest:
		return h.handleStatus(ctx, msg)

	case MsgEnable:
		return h.handleSetEnabled(msg, true)

	case MsgDisable:
		return h.handleSetEnabled(msg, false)

	case MsgSetPaused:
		var req SetPausedRequest
		if err := Decode(msg.Payload, &req); err != nil {
			return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "invalid request"), nil
		}
		h.ctrl.SetPaused(req.Paused)
		return NewResponse(MsgCapabilityResp, msg.Header.RequestID, h.ctrl.Capability())

	case MsgGetConfig:
		path, raw, err := h.ctrl.Config()
		if err != nil {
			return nil, err
		}
		return NewResponse(MsgGetConfigResp, msg.Header.RequestID, &ConfigResponse{Path: path, Config: raw})

	case MsgReloadConfig:
		resp := &ReloadResponse{Success: true}
		if err := h.ctrl.Reload(); err != nil {
			resp.Success = false
			resp.Error = err.Error()
		}
		return NewResponse(MsgReloadConfigResp, msg.Header.RequestID, resp)

	default:
		return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest,
			fmt.Sprintf("unknown message type: %s", msg.Header.Type)), nil
	}
}

func (h *ControlHandler) handleStatus(ctx context.Context, msg *Message) (*Message, error) {
	status, err := h.ctrl.Status(ctx)
	if err != nil {
		return nil, err
	}
	status.Version = h.version
	status.StartedAt = h.startedAt
	status.Uptime = time.Since(h.startedAt)
	return NewResponse(MsgStatusResponse, msg.Header.RequestID, &status)
}

func (h *ControlHandler) handleSetEnabled(msg *Message, enabled bool) (*Message, error) {
	if err := h.ctrl.SetEnabled(enabled); err != nil {
		if errors.Is(err, ErrCapabilityUnavailable) {
			return NewErrorMessage(msg.Header.RequestID, ErrUnavailable, err.Error()), nil
		}
		return nil, err
	}
	return NewResponse(MsgCapabilityResp, msg.Header.RequestID, h.ctrl.Capability())
}
