package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/micro-ha/att-presence/addon/internal/model"
	"github.com/micro-ha/att-presence/addon/internal/service"
	"github.com/micro-ha/att-presence/addon/internal/snapshot"
)

// Poller triggers asynchronous presence refresh.
type Poller interface {
	TriggerRefresh()
}

// ConfigProvider exposes current add-on router config status.
type ConfigProvider interface {
	Get() (model.RouterConfig, bool)
}

// OptionsUpdater persists options changed through the API.
type OptionsUpdater interface {
	Apply(ctx context.Context, patch model.OptionsPatch) (bool, error)
	Reset(ctx context.Context) (bool, error)
}

// Devices is the read side of the poll service.
type Devices interface {
	State() snapshot.State
	ListDevices(filter service.ListFilter) []service.DeviceView
	GetDevice(mac string) (service.DeviceView, error)
	Summary() service.Summary
	OptionChoices() []service.OptionChoice
	Reclassify(ctx context.Context) error
}

// API groups HTTP handlers and dependencies.
type API struct {
	devices Devices
	poller  Poller
	config  ConfigProvider
	options OptionsUpdater
	logger  *slog.Logger
}

// New creates HTTP handlers with explicit dependencies.
func New(devices Devices, poller Poller, config ConfigProvider, options OptionsUpdater, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		devices: devices,
		poller:  poller,
		config:  config,
		options: options,
		logger:  logger,
	}
}

// Logger returns request logger used by HTTP middleware.
func (a *API) Logger() *slog.Logger {
	return a.logger
}

// snapshotState returns the committed state, or writes 409/503 when there is
// nothing to serve yet.
func (a *API) snapshotState(w http.ResponseWriter) (snapshot.State, bool) {
	state := a.devices.State()
	if state.Available {
		return state, true
	}
	if _, configured := a.config.Get(); !configured {
		writeError(w, http.StatusConflict, "integration_not_configured", "Integration not configured")
		return state, false
	}
	writeError(w, http.StatusServiceUnavailable, "snapshot_unavailable", "No successful poll yet")
	return state, false
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
