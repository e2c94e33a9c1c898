package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/micro-ha/att-presence/addon/internal/configsync"
	"github.com/micro-ha/att-presence/addon/internal/model"
	"github.com/micro-ha/att-presence/addon/internal/service"
)

type optionsResponse struct {
	Host              string                 `json:"host"`
	SessionConfigured bool                   `json:"session_configured"`
	AlwaysHome        []string               `json:"always_home_devices"`
	PresenceDetection bool                   `json:"presence_detection"`
	PollIntervalSec   int                    `json:"poll_interval_sec"`
	UpdatedAt         *time.Time             `json:"updated_at,omitempty"`
	Choices           []service.OptionChoice `json:"choices"`
}

// GetOptions returns the effective options and the devices offered for the
// always-home list. The session id itself is never echoed.
func (a *API) GetOptions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.optionsView())
}

// PatchOptions applies a partial options update, then reclassifies the current
// snapshot and asks for an immediate poll.
func (a *API) PatchOptions(w http.ResponseWriter, r *http.Request) {
	var patch model.OptionsPatch
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "Invalid JSON payload")
		return
	}
	if patch.Empty() {
		writeError(w, http.StatusBadRequest, "empty_patch", "No option fields supplied")
		return
	}
	if err := validatePatch(patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_options", err.Error())
		return
	}

	changed, err := a.options.Apply(r.Context(), patch)
	a.finishOptionsUpdate(w, r, changed, err)
}

// ResetOptions drops runtime overrides and falls back to the add-on options.
func (a *API) ResetOptions(w http.ResponseWriter, r *http.Request) {
	changed, err := a.options.Reset(r.Context())
	a.finishOptionsUpdate(w, r, changed, err)
}

func (a *API) finishOptionsUpdate(w http.ResponseWriter, r *http.Request, changed bool, err error) {
	if errors.Is(err, configsync.ErrOverridesUnavailable) {
		writeError(w, http.StatusServiceUnavailable, "options_store_unavailable", err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "options_update_failed", err.Error())
		return
	}
	if changed {
		if err := a.devices.Reclassify(r.Context()); err != nil {
			a.logger.Warn("reclassify after options update failed", "err", err)
		}
		if _, configured := a.config.Get(); configured {
			a.poller.TriggerRefresh()
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"changed": changed, "options": a.optionsView()})
}

func (a *API) optionsView() optionsResponse {
	cfg, _ := a.config.Get()
	resp := optionsResponse{
		Host:              cfg.Host,
		SessionConfigured: strings.TrimSpace(cfg.SessionID) != "",
		AlwaysHome:        cfg.AlwaysHome,
		PresenceDetection: cfg.PresenceDetection,
		PollIntervalSec:   cfg.PollIntervalSec,
		Choices:           a.devices.OptionChoices(),
	}
	if resp.AlwaysHome == nil {
		resp.AlwaysHome = []string{}
	}
	if !cfg.UpdatedAt.IsZero() {
		updated := cfg.UpdatedAt
		resp.UpdatedAt = &updated
	}
	return resp
}

func validatePatch(patch model.OptionsPatch) error {
	if patch.SessionID != nil && strings.TrimSpace(*patch.SessionID) == "" {
		return errors.New("session_id must not be empty")
	}
	if patch.PollIntervalSec != nil && *patch.PollIntervalSec <= 0 {
		return errors.New("poll_interval_sec must be positive")
	}
	if patch.AlwaysHome != nil {
		for _, mac := range *patch.AlwaysHome {
			if _, err := net.ParseMAC(model.NormalizeMAC(mac)); err != nil {
				return fmt.Errorf("invalid MAC address %q", mac)
			}
		}
	}
	return nil
}
