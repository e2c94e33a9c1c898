package presence

import (
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/micro-ha/att-presence/addon/internal/model"
)

// Classify derives the home/away aggregate. The result is home iff at least one
// online device is outside alwaysHome; there is no debouncing at this layer.
func Classify(snap model.Snapshot, alwaysHome model.MACSet) model.PresenceResult {
	records := snap.Sorted()
	tracked, pinned := lo.FilterReject(records, func(rec model.DeviceRecord, _ int) bool {
		return !alwaysHome.Has(rec.MAC)
	})
	trackedOnline, trackedOffline := lo.FilterReject(tracked, isOnline)
	pinnedOnline, pinnedOffline := lo.FilterReject(pinned, isOnline)

	result := model.PresenceResult{
		State:                  model.PresenceAway,
		TrackedOnline:          len(trackedOnline),
		TrackedOffline:         len(trackedOffline),
		AlwaysHomeOnline:       len(pinnedOnline),
		TotalKnown:             len(records),
		TrackedOnlineNames:     names(trackedOnline),
		TrackedOfflineNames:    names(trackedOffline),
		AlwaysHomeOnlineNames:  names(pinnedOnline),
		AlwaysHomeOfflineNames: names(pinnedOffline),
		ComputedAt:             snap.FetchedAt,
	}
	if result.TrackedOnline > 0 {
		result.State = model.PresenceHome
	}
	return result
}

// Tracked returns the devices that get their own presence entity, ordered by MAC.
func Tracked(snap model.Snapshot, alwaysHome model.MACSet) []model.DeviceRecord {
	return lo.Filter(snap.Sorted(), func(rec model.DeviceRecord, _ int) bool {
		return !alwaysHome.Has(rec.MAC)
	})
}

func isOnline(rec model.DeviceRecord, _ int) bool {
	return rec.Online
}

func names(records []model.DeviceRecord) []string {
	out := lo.Map(records, func(rec model.DeviceRecord, _ int) string { return rec.Name })
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i]) < strings.ToLower(out[j])
	})
	return out
}
