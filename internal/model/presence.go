package model

import "time"

type PresenceState string

const (
	PresenceHome PresenceState = "home"
	PresenceAway PresenceState = "away"
)

// PresenceResult is derived from a Snapshot and the always-home set on every poll.
type PresenceResult struct {
	State                  PresenceState `json:"state"`
	TrackedOnline          int           `json:"tracked_online"`
	TrackedOffline         int           `json:"tracked_offline"`
	AlwaysHomeOnline       int           `json:"always_home_online"`
	TotalKnown             int           `json:"total_known"`
	TrackedOnlineNames     []string      `json:"tracked_devices_online"`
	TrackedOfflineNames    []string      `json:"tracked_devices_offline"`
	AlwaysHomeOnlineNames  []string      `json:"always_home_devices_online"`
	AlwaysHomeOfflineNames []string      `json:"always_home_devices_offline"`
	ComputedAt             time.Time     `json:"computed_at"`
}

func (p PresenceResult) Detected() bool {
	return p.State == PresenceHome
}
