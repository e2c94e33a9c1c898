package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/micro-ha/att-presence/addon/internal/model"
)

var (
	t0 = time.Date(2024, 10, 14, 9, 0, 0, 0, time.UTC)
	t1 = t0.Add(30 * time.Second)
	t2 = t1.Add(30 * time.Second)
)

func bars(n int) *int { return &n }

func online(mac, name string) model.DeviceRecord {
	return model.DeviceRecord{MAC: mac, Name: name, ConnectionType: model.ConnectionUnknown, Online: true}
}

func TestMergeIntoEmptySnapshot(t *testing.T) {
	snap := Merge(model.Snapshot{}, []model.DeviceRecord{online("AA:BB", "Phone")}, t0)

	require.Len(t, snap.Devices, 1)
	rec := snap.Devices["AA:BB"]
	assert.True(t, rec.Online)
	require.NotNil(t, rec.LastSeenAt)
	assert.Equal(t, t0, *rec.LastSeenAt)
	assert.Equal(t, t0, rec.FirstSeenAt)
	assert.Equal(t, t0, snap.FetchedAt)
	assert.True(t, snap.OK)
}

func TestMergeMarksAbsentDevicesOffline(t *testing.T) {
	prev := Merge(model.Snapshot{}, []model.DeviceRecord{
		{MAC: "AA:BB", Name: "Laptop", IP: "192.168.1.10", ConnectionType: model.ConnectionWiFi, SignalBars: bars(4), Online: true},
		online("CC:DD", "TV"),
	}, t0)

	next := Merge(prev, []model.DeviceRecord{online("CC:DD", "TV")}, t1)

	require.Len(t, next.Devices, 2)
	gone := next.Devices["AA:BB"]
	assert.False(t, gone.Online)
	want := prev.Devices["AA:BB"]
	want.Online = false
	assert.Equal(t, want, gone, "only the online flag may change for an absent device")

	still := next.Devices["CC:DD"]
	assert.True(t, still.Online)
	assert.Equal(t, t1, *still.LastSeenAt)
	assert.Equal(t, t0, still.FirstSeenAt)
}

func TestMergeDoesNotMutatePrevious(t *testing.T) {
	prev := Merge(model.Snapshot{}, []model.DeviceRecord{online("AA:BB", "Phone")}, t0)
	before := prev.Clone()

	_ = Merge(prev, nil, t1)
	_ = Merge(prev, []model.DeviceRecord{online("AA:BB", "Renamed")}, t1)

	assert.Equal(t, before, prev)
}

func TestMergeKeySetIsMonotonic(t *testing.T) {
	snap := model.Snapshot{}
	polls := [][]model.DeviceRecord{
		{online("01", "a"), online("02", "b")},
		{online("03", "c")},
		{},
		{online("02", "b"), online("04", "d")},
	}
	seen := map[string]bool{}
	now := t0
	for _, parsed := range polls {
		prevKeys := snap.MACs()
		snap = Merge(snap, parsed, now)
		for _, mac := range prevKeys {
			assert.Contains(t, snap.Devices, mac)
		}
		for _, rec := range parsed {
			seen[rec.MAC] = true
			assert.True(t, snap.Devices[rec.MAC].Online)
			assert.Equal(t, now, *snap.Devices[rec.MAC].LastSeenAt)
		}
		now = now.Add(time.Minute)
	}
	assert.Len(t, snap.Devices, len(seen))
	assert.Equal(t, 2, snap.OnlineCount())
}

func TestMergeIsIdempotent(t *testing.T) {
	prev := Merge(model.Snapshot{}, []model.DeviceRecord{
		online("AA:BB", "Phone"),
		{MAC: "EE:FF", Name: "Printer", ConnectionType: model.ConnectionEthernet, Interface: "LAN-1", Online: true},
	}, t0)
	parsed := []model.DeviceRecord{
		{MAC: "AA:BB", Name: "Phone", ConnectionType: model.ConnectionWiFi, SignalBars: bars(2), Band: "5 GHz", Online: true},
		{MAC: "11:22", Name: "Guest", Status: model.StatusOff},
	}

	once := Merge(prev, parsed, t1)
	twice := Merge(once, parsed, t1)
	assert.Equal(t, once, twice)
}

func TestMergeConnectionTypeLastWriteWins(t *testing.T) {
	prev := Merge(model.Snapshot{}, []model.DeviceRecord{
		{MAC: "AA:BB", Name: "Laptop", ConnectionType: model.ConnectionWiFi, SignalBars: bars(3), Band: "5 GHz", NetworkName: "home", Online: true},
	}, t0)

	wired := Merge(prev, []model.DeviceRecord{
		{MAC: "AA:BB", Name: "Laptop", ConnectionType: model.ConnectionEthernet, Interface: "Ethernet LAN-3", Online: true},
	}, t1)
	rec := wired.Devices["AA:BB"]
	assert.Equal(t, model.ConnectionEthernet, rec.ConnectionType)
	assert.Equal(t, "Ethernet LAN-3", rec.Interface)
	assert.Nil(t, rec.SignalBars)
	assert.Empty(t, rec.Band)
	assert.Empty(t, rec.NetworkName)

	wireless := Merge(wired, []model.DeviceRecord{
		{MAC: "AA:BB", Name: "Laptop", ConnectionType: model.ConnectionWiFi, SignalBars: bars(1), Online: true},
	}, t2)
	rec = wireless.Devices["AA:BB"]
	assert.Equal(t, model.ConnectionWiFi, rec.ConnectionType)
	assert.Empty(t, rec.Interface)
	assert.Equal(t, 1, *rec.SignalBars)
}

func TestMergeKeepsAttributesMissingFromPage(t *testing.T) {
	prev := Merge(model.Snapshot{}, []model.DeviceRecord{
		{MAC: "AA:BB", Name: "Phone", IP: "192.168.1.20", ConnectionSpeed: "433 Mbps", Online: true},
	}, t0)

	next := Merge(prev, []model.DeviceRecord{
		{MAC: "AA:BB", Name: "Device-AABB", GeneratedName: true, Online: true},
	}, t1)
	rec := next.Devices["AA:BB"]
	assert.Equal(t, "Phone", rec.Name)
	assert.False(t, rec.GeneratedName)
	assert.Equal(t, "192.168.1.20", rec.IP)
	assert.Equal(t, "433 Mbps", rec.ConnectionSpeed)
}

func TestMergeRealNameReplacesPlaceholder(t *testing.T) {
	prev := Merge(model.Snapshot{}, []model.DeviceRecord{
		{MAC: "AA:BB", Name: "Device-AABB", GeneratedName: true, Online: true},
	}, t0)
	next := Merge(prev, []model.DeviceRecord{online("AA:BB", "Kitchen Speaker")}, t1)
	assert.Equal(t, "Kitchen Speaker", next.Devices["AA:BB"].Name)
	assert.False(t, next.Devices["AA:BB"].GeneratedName)
}

func TestMergeOffRecords(t *testing.T) {
	prev := Merge(model.Snapshot{}, []model.DeviceRecord{online("AA:BB", "Phone")}, t0)

	next := Merge(prev, []model.DeviceRecord{
		{MAC: "AA:BB", Name: "Phone", IP: "10.0.0.9", Status: model.StatusOff},
		{MAC: "CC:DD", Name: "Tablet", Status: model.StatusOff},
	}, t1)

	known := next.Devices["AA:BB"]
	assert.False(t, known.Online)
	assert.Equal(t, t0, *known.LastSeenAt, "an off listing must not refresh last seen")
	assert.Empty(t, known.IP)

	fresh := next.Devices["CC:DD"]
	assert.False(t, fresh.Online)
	assert.Nil(t, fresh.LastSeenAt)
	assert.Equal(t, "Tablet", fresh.Name)
	assert.Equal(t, t1, fresh.FirstSeenAt)
}

func TestMergeNormalizesMACKeys(t *testing.T) {
	snap := Merge(model.Snapshot{}, []model.DeviceRecord{online("aa-bb-cc-dd-ee-ff", "Phone")}, t0)
	_, ok := snap.Devices["AA:BB:CC:DD:EE:FF"]
	assert.True(t, ok)

	next := Merge(snap, []model.DeviceRecord{online("AA:BB:CC:DD:EE:FF", "Phone")}, t1)
	assert.Len(t, next.Devices, 1)
}
