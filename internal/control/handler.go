// Package control binds the player core to an MQTT-delivered remote
// control surface: JSON commands in, JSON acks out. It never touches
// player.Core fields directly, only the CommandCallbacks seam a caller
// wires against.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/orioncore/playerengine/internal/config"
)

// Command is a control plane request delivered as MQTT payload JSON.
type Command struct {
	Command string                 `json:"command"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// Response is the JSON ack published back to the status topic.
type Response struct {
	CommandAck string                 `json:"command_ack"`
	Status     string                 `json:"status"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Timestamp  string                 `json:"timestamp"`
}

// CommandCallbacks is the seam between the MQTT wire format and the
// player.Core methods it drives, one field per verb.
type CommandCallbacks struct {
	OnGetStatus func() map[string]interface{}
	OnSetSource func(url string) error
	OnPlay      func() error
	OnPause     func() error
	OnStop      func() error
	OnSeek      func(posMs int64) error
	OnSetSpeed  func(speed float64) error
}

// Handler subscribes to the configured control topic and dispatches each
// decoded Command to the matching callback.
type Handler struct {
	cfg      *config.Config
	client   mqtt.Client
	commands chan Command

	callbacks CommandCallbacks
}

// NewHandler builds a Handler bound to callbacks. It does not subscribe
// until Start is called.
func NewHandler(cfg *config.Config, client mqtt.Client, callbacks CommandCallbacks) *Handler {
	return &Handler{
		cfg:       cfg,
		client:    client,
		commands:  make(chan Command, 10),
		callbacks: callbacks,
	}
}

// Start subscribes to the control topic and spawns the command processor.
func (h *Handler) Start(ctx context.Context) error {
	topic := h.cfg.MQTT.Topics.Control
	qos := h.cfg.MQTT.QoS["control"]

	slog.Info("subscribing to control plane", "topic", topic, "qos", qos)

	token := h.client.Subscribe(topic, qos, h.messageHandler)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("control plane subscription timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("control plane subscription failed: %w", err)
	}

	slog.Info("control plane handler started")
	go h.processCommands(ctx)
	return nil
}

// Stop unsubscribes and drains the command queue.
func (h *Handler) Stop() error {
	topic := h.cfg.MQTT.Topics.Control
	if h.client != nil && h.client.IsConnected() {
		token := h.client.Unsubscribe(topic)
		token.Wait()
	}
	close(h.commands)
	slog.Info("control plane handler stopped")
	return nil
}

func (h *Handler) messageHandler(_ mqtt.Client, msg mqtt.Message) {
	var cmd Command
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		slog.Error("failed to parse control command", "error", err)
		h.sendResponse(Response{CommandAck: "unknown", Status: "error", Error: "invalid JSON"})
		return
	}

	slog.Info("control command received", "command", cmd.Command)

	select {
	case h.commands <- cmd:
	default:
		slog.Warn("command queue full, dropping command", "command", cmd.Command)
	}
}

func (h *Handler) processCommands(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-h.commands:
			if !ok {
				return
			}
			h.handleCommand(cmd)
		}
	}
}

func (h *Handler) handleCommand(cmd Command) {
	resp := Response{CommandAck: cmd.Command}

	switch cmd.Command {
	case "get_status":
		if h.callbacks.OnGetStatus == nil {
			resp.Status, resp.Error = "error", "get_status not implemented"
			break
		}
		resp.Status = "success"
		resp.Data = h.callbacks.OnGetStatus()

	case "set_source":
		url, ok := cmd.Params["url"].(string)
		if !ok {
			resp.Status, resp.Error = "error", "missing or invalid 'url' parameter (expected string)"
			break
		}
		if h.callbacks.OnSetSource == nil {
			resp.Status, resp.Error = "error", "set_source not implemented"
		} else if err := h.callbacks.OnSetSource(url); err != nil {
			resp.Status, resp.Error = "error", err.Error()
		} else {
			resp.Status = "success"
		}

	case "play":
		if h.callbacks.OnPlay == nil {
			resp.Status, resp.Error = "error", "play not implemented"
		} else if err := h.callbacks.OnPlay(); err != nil {
			resp.Status, resp.Error = "error", err.Error()
		} else {
			resp.Status = "success"
		}

	case "pause":
		if h.callbacks.OnPause == nil {
			resp.Status, resp.Error = "error", "pause not implemented"
		} else if err := h.callbacks.OnPause(); err != nil {
			resp.Status, resp.Error = "error", err.Error()
		} else {
			resp.Status = "success"
		}

	case "stop":
		if h.callbacks.OnStop == nil {
			resp.Status, resp.Error = "error", "stop not implemented"
		} else if err := h.callbacks.OnStop(); err != nil {
			resp.Status, resp.Error = "error", err.Error()
		} else {
			resp.Status = "success"
		}

	case "seek":
		posMs, ok := cmd.Params["position_ms"].(float64)
		if !ok {
			resp.Status, resp.Error = "error", "missing or invalid 'position_ms' parameter (expected number)"
			break
		}
		if h.callbacks.OnSeek == nil {
			resp.Status, resp.Error = "error", "seek not implemented"
		} else if err := h.callbacks.OnSeek(int64(posMs)); err != nil {
			resp.Status, resp.Error = "error", err.Error()
		} else {
			resp.Status = "success"
			resp.Data = map[string]interface{}{"position_ms": int64(posMs)}
		}

	case "set_speed":
		speed, ok := cmd.Params["speed"].(float64)
		if !ok {
			resp.Status, resp.Error = "error", "missing or invalid 'speed' parameter (expected number)"
			break
		}
		if h.callbacks.OnSetSpeed == nil {
			resp.Status, resp.Error = "error", "set_speed not implemented"
		} else if err := h.callbacks.OnSetSpeed(speed); err != nil {
			resp.Status, resp.Error = "error", err.Error()
		} else {
			resp.Status = "success"
			resp.Data = map[string]interface{}{"speed": speed}
		}

	default:
		resp.Status, resp.Error = "error", fmt.Sprintf("unknown command: %s", cmd.Command)
	}

	h.sendResponse(resp)
}

// sendResponse publishes resp to the status topic.
func (h *Handler) sendResponse(resp Response) {
	resp.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)

	payload, err := json.Marshal(resp)
	if err != nil {
		slog.Error("failed to marshal response", "error", err)
		return
	}

	topic := h.cfg.MQTT.Topics.Status
	qos := h.cfg.MQTT.QoS["status"]

	token := h.client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		slog.Error("response publish timeout")
		return
	}
	if err := token.Error(); err != nil {
		slog.Error("failed to publish response", "error", err)
		return
	}

	slog.Debug("response sent", "command_ack", resp.CommandAck, "status", resp.Status)
}
