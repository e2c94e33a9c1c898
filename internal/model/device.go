package model

import (
	"sort"
	"strings"
	"time"
)

type ConnectionType string

const (
	ConnectionWiFi     ConnectionType = "wifi"
	ConnectionEthernet ConnectionType = "ethernet"
	ConnectionUnknown  ConnectionType = "unknown"
)

const (
	StatusOn  = "on"
	StatusOff = "off"
)

// DeviceRecord is the reconciled view of one MAC address.
type DeviceRecord struct {
	MAC             string         `json:"mac"`
	Name            string         `json:"name"`
	GeneratedName   bool           `json:"generated_name"`
	IP              string         `json:"ip,omitempty"`
	ConnectionType  ConnectionType `json:"connection_type"`
	SignalBars      *int           `json:"signal_bars,omitempty"`
	ConnectionSpeed string         `json:"connection_speed,omitempty"`
	Band            string         `json:"band,omitempty"`
	NetworkName     string         `json:"network_name,omitempty"`
	Interface       string         `json:"interface,omitempty"`
	Allocation      string         `json:"allocation,omitempty"`
	LastActivity    string         `json:"last_activity,omitempty"`
	Status          string         `json:"status,omitempty"`
	FirstSeenAt     time.Time      `json:"first_seen_at"`
	LastSeenAt      *time.Time     `json:"last_seen_at,omitempty"`
	Online          bool           `json:"online"`
}

// Clone returns a copy that shares no pointers with r.
func (r DeviceRecord) Clone() DeviceRecord {
	if r.SignalBars != nil {
		bars := *r.SignalBars
		r.SignalBars = &bars
	}
	if r.LastSeenAt != nil {
		seen := *r.LastSeenAt
		r.LastSeenAt = &seen
	}
	return r
}

// Icon mirrors the Home Assistant icon chosen for a device tracker.
func (r DeviceRecord) Icon() string {
	switch r.ConnectionType {
	case ConnectionEthernet:
		return "mdi:ethernet"
	case ConnectionWiFi:
		bars := 0
		if r.SignalBars != nil {
			bars = *r.SignalBars
		}
		switch {
		case bars >= 4:
			return "mdi:wifi-strength-4"
		case bars == 3:
			return "mdi:wifi-strength-3"
		case bars == 2:
			return "mdi:wifi-strength-2"
		case bars == 1:
			return "mdi:wifi-strength-1"
		default:
			return "mdi:wifi"
		}
	}
	return "mdi:devices"
}

// Snapshot is the complete device mapping produced by one successful poll.
type Snapshot struct {
	Devices   map[string]DeviceRecord `json:"-"`
	FetchedAt time.Time               `json:"fetched_at"`
	OK        bool                    `json:"ok"`
}

// MACs returns snapshot keys in ascending order.
func (s Snapshot) MACs() []string {
	macs := make([]string, 0, len(s.Devices))
	for mac := range s.Devices {
		macs = append(macs, mac)
	}
	sort.Strings(macs)
	return macs
}

// Sorted returns device records ordered by MAC.
func (s Snapshot) Sorted() []DeviceRecord {
	out := make([]DeviceRecord, 0, len(s.Devices))
	for _, mac := range s.MACs() {
		out = append(out, s.Devices[mac].Clone())
	}
	return out
}

func (s Snapshot) Clone() Snapshot {
	out := Snapshot{FetchedAt: s.FetchedAt, OK: s.OK, Devices: make(map[string]DeviceRecord, len(s.Devices))}
	for mac, rec := range s.Devices {
		out.Devices[mac] = rec.Clone()
	}
	return out
}

func (s Snapshot) Get(mac string) (DeviceRecord, bool) {
	rec, ok := s.Devices[NormalizeMAC(mac)]
	if !ok {
		return DeviceRecord{}, false
	}
	return rec.Clone(), true
}

func (s Snapshot) OnlineCount() int {
	count := 0
	for _, rec := range s.Devices {
		if rec.Online {
			count++
		}
	}
	return count
}

// MACSet is a normalized set of MAC addresses.
type MACSet map[string]struct{}

func NewMACSet(macs ...string) MACSet {
	set := make(MACSet, len(macs))
	for _, mac := range macs {
		if normalized := NormalizeMAC(mac); normalized != "" {
			set[normalized] = struct{}{}
		}
	}
	return set
}

func (s MACSet) Has(mac string) bool {
	_, ok := s[NormalizeMAC(mac)]
	return ok
}

// NormalizeMAC upper-cases a MAC and converts it to colon-separated form.
// Bare 12-digit hex strings are split into octets.
func NormalizeMAC(mac string) string {
	mac = strings.TrimSpace(strings.ToUpper(mac))
	mac = strings.NewReplacer("-", ":", ".", "").Replace(mac)
	if len(mac) == 12 && !strings.Contains(mac, ":") {
		parts := make([]string, 0, 6)
		for i := 0; i < 12; i += 2 {
			parts = append(parts, mac[i:i+2])
		}
		return strings.Join(parts, ":")
	}
	return mac
}

// NormalizeMACs normalizes and de-duplicates macs, keeping first-seen order.
func NormalizeMACs(macs []string) []string {
	out := make([]string, 0, len(macs))
	seen := make(map[string]struct{}, len(macs))
	for _, mac := range macs {
		normalized := NormalizeMAC(mac)
		if normalized == "" {
			continue
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out
}
