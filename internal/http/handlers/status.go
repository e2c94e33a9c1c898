package handlers

import (
	"net/http"
	"time"

	"github.com/micro-ha/att-presence/addon/internal/model"
)

type statusResponse struct {
	Configured    bool                `json:"configured"`
	Available     bool                `json:"available"`
	Stale         bool                `json:"stale"`
	Failure       *model.Failure      `json:"failure,omitempty"`
	LastAttemptAt *time.Time          `json:"last_attempt_at,omitempty"`
	LastSuccessAt *time.Time          `json:"last_success_at,omitempty"`
	FetchedAt     *time.Time          `json:"fetched_at,omitempty"`
	Polls         int64               `json:"polls"`
	Failures      int64               `json:"failures"`
	Devices       int                 `json:"devices"`
	Online        int                 `json:"online"`
	Presence      model.PresenceState `json:"presence,omitempty"`
	PollInterval  string              `json:"poll_interval"`
}

// Health reports liveness, router config status and the last failure kind.
func (a *API) Health(w http.ResponseWriter, _ *http.Request) {
	_, configured := a.config.Get()
	state := a.devices.State()
	payload := map[string]any{"status": "ok", "configured": configured}
	if state.Failure != nil {
		payload["status"] = "degraded"
		payload["failure"] = state.Failure.Kind
	}
	writeJSON(w, http.StatusOK, payload)
}

// Status returns poll bookkeeping without the device list.
func (a *API) Status(w http.ResponseWriter, _ *http.Request) {
	cfg, configured := a.config.Get()
	state := a.devices.State()
	resp := statusResponse{
		Configured:    configured,
		Available:     state.Available,
		Stale:         state.Stale,
		Failure:       state.Failure,
		LastAttemptAt: state.LastAttemptAt,
		LastSuccessAt: state.LastSuccessAt,
		Polls:         state.Polls,
		Failures:      state.Failures,
		Devices:       len(state.Snapshot.Devices),
		Online:        state.Snapshot.OnlineCount(),
		PollInterval:  cfg.PollInterval().String(),
	}
	if state.Available {
		fetched := state.Snapshot.FetchedAt
		resp.FetchedAt = &fetched
		resp.Presence = state.Presence.State
	}
	writeJSON(w, http.StatusOK, resp)
}

// Presence returns the home/away aggregate with its name lists.
func (a *API) Presence(w http.ResponseWriter, _ *http.Request) {
	state, ok := a.snapshotState(w)
	if !ok {
		return
	}
	cfg, _ := a.config.Get()
	writeJSON(w, http.StatusOK, map[string]any{
		"presence":           state.Presence,
		"presence_detection": cfg.PresenceDetection,
		"stale":              state.Stale,
	})
}

// Refresh triggers immediate poll cycle asynchronously.
func (a *API) Refresh(w http.ResponseWriter, _ *http.Request) {
	if _, configured := a.config.Get(); !configured {
		writeError(w, http.StatusConflict, "integration_not_configured", "Integration not configured")
		return
	}
	a.poller.TriggerRefresh()
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}
