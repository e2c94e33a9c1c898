package model

import (
	"net/url"
	"strings"
	"time"
)

const (
	DefaultRouterHost   = "192.168.1.254"
	DefaultPollInterval = 30 * time.Second
	minPollInterval     = 5 * time.Second

	deviceListPath = "/cgi-bin/devices.ha"
	homePath       = "/cgi-bin/home.ha"
)

// RouterConfig is the Configuration read at the start of every poll.
type RouterConfig struct {
	UpdatedAt         time.Time `json:"updated_at"`
	Host              string    `json:"host"`
	SessionID         string    `json:"-"`
	AlwaysHome        []string  `json:"always_home_devices"`
	PresenceDetection bool      `json:"presence_detection"`
	PollIntervalSec   int       `json:"poll_interval_sec"`
}

func (c RouterConfig) Configured() bool {
	return strings.TrimSpace(c.Host) != "" && strings.TrimSpace(c.SessionID) != ""
}

func (c RouterConfig) PollInterval() time.Duration {
	if c.PollIntervalSec <= 0 {
		return DefaultPollInterval
	}
	interval := time.Duration(c.PollIntervalSec) * time.Second
	if interval < minPollInterval {
		return minPollInterval
	}
	return interval
}

func (c RouterConfig) AlwaysHomeSet() MACSet {
	return NewMACSet(c.AlwaysHome...)
}

// Equal compares the fields that influence polling and classification.
func (c RouterConfig) Equal(other RouterConfig) bool {
	if c.Host != other.Host || c.SessionID != other.SessionID ||
		c.PresenceDetection != other.PresenceDetection || c.PollIntervalSec != other.PollIntervalSec {
		return false
	}
	a, b := c.AlwaysHomeSet(), other.AlwaysHomeSet()
	if len(a) != len(b) {
		return false
	}
	for mac := range a {
		if _, ok := b[mac]; !ok {
			return false
		}
	}
	return true
}

// BaseURL returns scheme://host without a trailing slash.
func (c RouterConfig) BaseURL() string {
	raw := strings.TrimSpace(c.Host)
	if raw == "" {
		raw = DefaultRouterHost
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	parsed, err := url.Parse(raw)
	if err != nil || strings.TrimSpace(parsed.Host) == "" {
		host := strings.TrimSpace(c.Host)
		host = strings.TrimPrefix(strings.TrimPrefix(host, "http://"), "https://")
		host = strings.Trim(host, "/")
		return "http://" + host
	}
	scheme := parsed.Scheme
	if scheme == "" {
		scheme = "http"
	}
	return scheme + "://" + parsed.Host
}

func (c RouterConfig) DeviceListURL() string {
	return c.BaseURL() + deviceListPath
}

func (c RouterConfig) HomeURL() string {
	return c.BaseURL() + homePath
}

// OptionsPatch is an out-of-band options update. Nil fields are left as they are.
type OptionsPatch struct {
	SessionID         *string   `json:"session_id,omitempty"`
	AlwaysHome        *[]string `json:"always_home_devices,omitempty"`
	PresenceDetection *bool     `json:"presence_detection,omitempty"`
	PollIntervalSec   *int      `json:"poll_interval_sec,omitempty"`
}

func (p OptionsPatch) Empty() bool {
	return p.SessionID == nil && p.AlwaysHome == nil && p.PresenceDetection == nil && p.PollIntervalSec == nil
}

// Apply overlays the patch on cfg. Always-home MACs are stored normalized.
func (p OptionsPatch) Apply(cfg RouterConfig) RouterConfig {
	if p.SessionID != nil {
		cfg.SessionID = strings.TrimSpace(*p.SessionID)
	}
	if p.AlwaysHome != nil {
		cfg.AlwaysHome = NormalizeMACs(*p.AlwaysHome)
	}
	if p.PresenceDetection != nil {
		cfg.PresenceDetection = *p.PresenceDetection
	}
	if p.PollIntervalSec != nil {
		cfg.PollIntervalSec = *p.PollIntervalSec
	}
	return cfg
}

// Merge returns p with every field set in other taking precedence.
func (p OptionsPatch) Merge(other OptionsPatch) OptionsPatch {
	if other.SessionID != nil {
		p.SessionID = other.SessionID
	}
	if other.AlwaysHome != nil {
		p.AlwaysHome = other.AlwaysHome
	}
	if other.PresenceDetection != nil {
		p.PresenceDetection = other.PresenceDetection
	}
	if other.PollIntervalSec != nil {
		p.PollIntervalSec = other.PollIntervalSec
	}
	return p
}

// OverrideTimes records when each persisted override field was last written.
type OverrideTimes struct {
	SessionID         time.Time
	AlwaysHome        time.Time
	PresenceDetection time.Time
	PollIntervalSec   time.Time
}

// Stamp returns t with every field set in patch marked as written at at.
func (t OverrideTimes) Stamp(patch OptionsPatch, at time.Time) OverrideTimes {
	if patch.SessionID != nil {
		t.SessionID = at
	}
	if patch.AlwaysHome != nil {
		t.AlwaysHome = at
	}
	if patch.PresenceDetection != nil {
		t.PresenceDetection = at
	}
	if patch.PollIntervalSec != nil {
		t.PollIntervalSec = at
	}
	return t
}

// NotOlderThan keeps the fields of p written at or after cutoff, so an options
// file edited after an override wins for every field it carries. It also returns
// the newest write time among the kept fields.
func (p OptionsPatch) NotOlderThan(times OverrideTimes, cutoff time.Time) (OptionsPatch, time.Time) {
	var (
		kept   OptionsPatch
		newest time.Time
	)
	keep := func(at time.Time) bool {
		if at.Before(cutoff) {
			return false
		}
		if at.After(newest) {
			newest = at
		}
		return true
	}
	if p.SessionID != nil && keep(times.SessionID) {
		kept.SessionID = p.SessionID
	}
	if p.AlwaysHome != nil && keep(times.AlwaysHome) {
		kept.AlwaysHome = p.AlwaysHome
	}
	if p.PresenceDetection != nil && keep(times.PresenceDetection) {
		kept.PresenceDetection = p.PresenceDetection
	}
	if p.PollIntervalSec != nil && keep(times.PollIntervalSec) {
		kept.PollIntervalSec = p.PollIntervalSec
	}
	return kept, newest
}
