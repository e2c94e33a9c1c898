package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/micro-ha/att-presence/addon/internal/model"
	"github.com/micro-ha/att-presence/addon/internal/snapshot"
)

var ErrDeviceNotFound = errors.New("device not found")

// DeviceView is the API read model for one device.
type DeviceView struct {
	model.DeviceRecord
	AlwaysHome bool   `json:"always_home"`
	Tracked    bool   `json:"tracked"`
	Icon       string `json:"icon"`
}

type ListFilter struct {
	Online  *bool
	Tracked *bool
	Query   string
}

// Summary is the total-devices view: every known device, online first, then by name.
type Summary struct {
	Total   int          `json:"total"`
	Online  int          `json:"online"`
	Offline int          `json:"offline"`
	Devices []DeviceView `json:"devices"`
}

// OptionChoice is one selectable device for the always-home option.
type OptionChoice struct {
	MAC        string `json:"mac"`
	Label      string `json:"label"`
	AlwaysHome bool   `json:"always_home"`
}

func (s *Service) State() snapshot.State {
	return s.store.Current()
}

func (s *Service) ListDevices(filter ListFilter) []DeviceView {
	views := s.views()
	query := strings.ToLower(strings.TrimSpace(filter.Query))
	filtered := lo.Filter(views, func(item DeviceView, _ int) bool {
		if filter.Online != nil && item.Online != *filter.Online {
			return false
		}
		if filter.Tracked != nil && item.Tracked != *filter.Tracked {
			return false
		}
		return query == "" || matchesQuery(item, query)
	})
	sortOnlineFirst(filtered)
	return filtered
}

func (s *Service) GetDevice(mac string) (DeviceView, error) {
	normalized := model.NormalizeMAC(mac)
	item, ok := lo.Find(s.views(), func(item DeviceView) bool { return item.MAC == normalized })
	if !ok {
		return DeviceView{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, normalized)
	}
	return item, nil
}

func (s *Service) Summary() Summary {
	views := s.views()
	sortOnlineFirst(views)
	online := lo.CountBy(views, func(item DeviceView) bool { return item.Online })
	return Summary{Total: len(views), Online: online, Offline: len(views) - online, Devices: views}
}

// OptionChoices lists known devices as "Name (IP)" labels keyed by MAC, the way
// the always-home picker presents them.
func (s *Service) OptionChoices() []OptionChoice {
	views := s.views()
	sort.SliceStable(views, func(i, j int) bool {
		return strings.ToLower(views[i].Name) < strings.ToLower(views[j].Name)
	})
	return lo.Map(views, func(item DeviceView, _ int) OptionChoice {
		label := item.Name
		if item.IP != "" {
			label = fmt.Sprintf("%s (%s)", item.Name, item.IP)
		}
		return OptionChoice{MAC: item.MAC, Label: label, AlwaysHome: item.AlwaysHome}
	})
}

func (s *Service) views() []DeviceView {
	state := s.store.Current()
	cfg, _ := s.config.Get()
	alwaysHome := cfg.AlwaysHomeSet()
	return lo.Map(state.Snapshot.Sorted(), func(rec model.DeviceRecord, _ int) DeviceView {
		pinned := alwaysHome.Has(rec.MAC)
		return DeviceView{DeviceRecord: rec, AlwaysHome: pinned, Tracked: !pinned, Icon: rec.Icon()}
	})
}

func sortOnlineFirst(items []DeviceView) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Online != items[j].Online {
			return items[i].Online
		}
		return strings.ToLower(items[i].Name) < strings.ToLower(items[j].Name)
	})
}

func matchesQuery(item DeviceView, query string) bool {
	for _, field := range []string{item.Name, item.MAC, item.IP, item.NetworkName} {
		if strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}
	return false
}
