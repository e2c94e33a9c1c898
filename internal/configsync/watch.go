package configsync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/micro-ha/att-presence/addon/internal/model"
)

// OptionsUpdatedEvent is fired on the Home Assistant event bus when the user edits
// the integration options. Its data may carry the changed fields.
const OptionsUpdatedEvent = "att_router_tracker_options_updated"

const (
	maxBackoff  = 20 * time.Second
	readTimeout = 120 * time.Second
)

type Watcher struct {
	baseURL string
	token   string
	dialer  *websocket.Dialer
	logger  *slog.Logger
}

func NewWatcher(baseURL, token string, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		baseURL: strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
		token:   token,
		dialer:  websocket.DefaultDialer,
		logger:  logger,
	}
}

// Run keeps a subscription open, reconnecting with exponential backoff, and calls
// onUpdate with the (possibly empty) patch carried by each options event.
func (w *Watcher) Run(ctx context.Context, onUpdate func(model.OptionsPatch)) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		err := w.runSession(ctx, onUpdate)
		if err != nil && ctx.Err() == nil {
			w.logger.Warn("options event watcher disconnected", "err", err, "retry_in", backoff.String())
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}

func (w *Watcher) runSession(ctx context.Context, onUpdate func(model.OptionsPatch)) error {
	wsURL, err := toWebsocketURL(w.baseURL + "/api/websocket")
	if err != nil {
		return err
	}
	conn, _, err := w.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Unblock ReadMessage on shutdown.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	_, msg, err := conn.ReadMessage()
	if err != nil {
		return err
	}
	if messageType(msg) != "auth_required" {
		return fmt.Errorf("unexpected handshake message %q", messageType(msg))
	}
	if err := conn.WriteJSON(map[string]any{"type": "auth", "access_token": w.token}); err != nil {
		return err
	}
	_, msg, err = conn.ReadMessage()
	if err != nil {
		return err
	}
	if kind := messageType(msg); kind != "auth_ok" {
		return fmt.Errorf("websocket auth rejected: %s", kind)
	}

	subscribe := map[string]any{"id": 1, "type": "subscribe_events", "event_type": OptionsUpdatedEvent}
	if err := conn.WriteJSON(subscribe); err != nil {
		return err
	}

	for {
		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return err
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if patch, ok := decodeOptionsEvent(msg); ok {
			onUpdate(patch)
		}
	}
}

func messageType(body []byte) string {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	return envelope.Type
}

func decodeOptionsEvent(body []byte) (model.OptionsPatch, bool) {
	var envelope struct {
		Type  string `json:"type"`
		Event struct {
			EventType string             `json:"event_type"`
			Data      model.OptionsPatch `json:"data"`
		} `json:"event"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return model.OptionsPatch{}, false
	}
	if envelope.Type != "event" || envelope.Event.EventType != OptionsUpdatedEvent {
		return model.OptionsPatch{}, false
	}
	return envelope.Event.Data, true
}

func toWebsocketURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	return u.String(), nil
}
