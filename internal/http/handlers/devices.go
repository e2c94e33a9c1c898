package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/micro-ha/att-presence/addon/internal/service"
)

// ListDevices returns every known device, online first.
func (a *API) ListDevices(w http.ResponseWriter, r *http.Request) {
	state, ok := a.snapshotState(w)
	if !ok {
		return
	}
	filter := service.ListFilter{Query: r.URL.Query().Get("query")}
	for name, target := range map[string]**bool{"online": &filter.Online, "tracked": &filter.Tracked} {
		raw := strings.TrimSpace(r.URL.Query().Get(name))
		if raw == "" {
			continue
		}
		value, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_"+name+"_filter", name+" must be true or false")
			return
		}
		*target = &value
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items":      a.devices.ListDevices(filter),
		"stale":      state.Stale,
		"fetched_at": state.Snapshot.FetchedAt,
	})
}

// GetDevice returns one device by MAC.
func (a *API) GetDevice(w http.ResponseWriter, _ *http.Request, mac string) {
	if _, ok := a.snapshotState(w); !ok {
		return
	}
	device, err := a.devices.GetDevice(mac)
	if errors.Is(err, service.ErrDeviceNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "Device not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "get_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, device)
}

// Summary returns the total-devices view with online and offline counts.
func (a *API) Summary(w http.ResponseWriter, _ *http.Request) {
	state, ok := a.snapshotState(w)
	if !ok {
		return
	}
	summary := a.devices.Summary()
	writeJSON(w, http.StatusOK, map[string]any{
		"total":   summary.Total,
		"online":  summary.Online,
		"offline": summary.Offline,
		"devices": summary.Devices,
		"stale":   state.Stale,
	})
}
