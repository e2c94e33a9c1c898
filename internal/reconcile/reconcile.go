package reconcile

import (
	"time"

	"github.com/micro-ha/att-presence/addon/internal/model"
)

// Merge folds one parsed device list into the previous snapshot.
//
// Devices listed as online are upserted and stamped with now. Devices missing from
// the page stay in the result with Online=false and every other field untouched.
// The router keeps rows for recently departed clients and marks them "off" in its
// Status column, so such a row (Online=false from the parser) counts as missing: it
// never refreshes LastSeenAt or attributes. An unseen MAC listed as off is still
// recorded, offline with no LastSeenAt, so its name survives. prev is never modified.
func Merge(prev model.Snapshot, parsed []model.DeviceRecord, now time.Time) model.Snapshot {
	next := model.Snapshot{
		Devices:   make(map[string]model.DeviceRecord, len(prev.Devices)+len(parsed)),
		FetchedAt: now,
		OK:        true,
	}
	for mac, rec := range prev.Devices {
		rec = rec.Clone()
		rec.Online = false
		next.Devices[mac] = rec
	}

	for _, observed := range parsed {
		mac := model.NormalizeMAC(observed.MAC)
		if mac == "" {
			continue
		}
		observed = observed.Clone()
		observed.MAC = mac

		existing, known := next.Devices[mac]
		if !observed.Online {
			if !known {
				observed.FirstSeenAt = now
				observed.LastSeenAt = nil
				next.Devices[mac] = observed
			}
			continue
		}

		var rec model.DeviceRecord
		if known {
			rec = update(existing, observed)
		} else {
			rec = observed
			rec.FirstSeenAt = now
		}
		seen := now
		rec.LastSeenAt = &seen
		rec.Online = true
		next.Devices[mac] = rec
	}
	return next
}

// update overlays observed attributes on the stored record. Empty optional values keep
// the stored value and a generated placeholder never replaces a real name.
func update(stored, observed model.DeviceRecord) model.DeviceRecord {
	rec := stored
	if observed.Name != "" && (!observed.GeneratedName || stored.GeneratedName || stored.Name == "") {
		rec.Name = observed.Name
		rec.GeneratedName = observed.GeneratedName
	}
	rec.IP = pick(observed.IP, stored.IP)
	rec.ConnectionSpeed = pick(observed.ConnectionSpeed, stored.ConnectionSpeed)
	rec.Allocation = pick(observed.Allocation, stored.Allocation)
	rec.LastActivity = pick(observed.LastActivity, stored.LastActivity)
	rec.Status = pick(observed.Status, stored.Status)

	switch observed.ConnectionType {
	case model.ConnectionEthernet:
		rec.ConnectionType = model.ConnectionEthernet
		rec.Interface = pick(observed.Interface, stored.Interface)
		rec.SignalBars = nil
		rec.Band = ""
		rec.NetworkName = ""
	case model.ConnectionWiFi:
		if stored.ConnectionType != model.ConnectionWiFi {
			rec.Interface = ""
		}
		rec.ConnectionType = model.ConnectionWiFi
		if observed.SignalBars != nil {
			rec.SignalBars = observed.SignalBars
		}
		rec.Band = pick(observed.Band, stored.Band)
		rec.NetworkName = pick(observed.NetworkName, stored.NetworkName)
	default:
		if rec.ConnectionType == "" {
			rec.ConnectionType = model.ConnectionUnknown
		}
	}
	if rec.FirstSeenAt.IsZero() {
		rec.FirstSeenAt = observed.FirstSeenAt
	}
	return rec
}

func pick(observed, stored string) string {
	if observed != "" {
		return observed
	}
	return stored
}
