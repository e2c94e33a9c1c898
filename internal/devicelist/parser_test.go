package devicelist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/micro-ha/att-presence/addon/internal/gateway"
	"github.com/micro-ha/att-presence/addon/internal/model"
)

const fixturePage = `<!DOCTYPE html>
<html><head><title>Device List</title></head><body>
<div class="content">
<table class="table100">
<tr><th scope="row">MAC Address</th><td class="col2">a4:83:e7:11:22:33</td></tr>
<tr><th scope="row">IPv4 Address / Name</th><td class="col2">192.168.1.70 / Pixel-8</td></tr>
<tr><th scope="row">Last Activity</th><td class="col2">Mon Oct 14 09:12:44 2024</td></tr>
<tr><th scope="row">Status</th><td class="col2">on</td></tr>
<tr><th scope="row">Allocation</th><td class="col2">dhcp</td></tr>
<tr><th scope="row">Connection Type</th><td class="col2">Wi-Fi<br>
  <img src="/images/signal3.png" alt="3 bars"> 5 GHz<br>Type: Home<br>Name: ATTnet</td></tr>
<tr><th scope="row">Connection Speed</th><td class="col2">866 Mbps</td></tr>
<tr><td colspan="2"><hr class="reshr"></td></tr>
<tr><th scope="row">MAC Address</th><td class="col2">00-11-32-AA-BB-CC</td></tr>
<tr><th scope="row">IPv4 Address / Name</th><td class="col2">192.168.1.80 / nas</td></tr>
<tr><th scope="row">Status</th><td class="col2">on</td></tr>
<tr><th scope="row">Connection Type</th><td class="col2">Ethernet LAN-2</td></tr>
<tr><td colspan="2"><hr class="reshr"></td></tr>
<tr><th scope="row">IPv4 Address / Name</th><td class="col2">192.168.1.90 / orphan</td></tr>
<tr><td colspan="2"><hr class="reshr"></td></tr>
<tr><th scope="row">MAC Address</th><td class="col2">de:ad:be:ef:ee:ff</td></tr>
<tr><th scope="row">IPv4 Address / Name</th><td class="col2">192.168.1.91 / unknown</td></tr>
<tr><th scope="row">Status</th><td class="col2">off</td></tr>
<tr><th scope="row">Connection Type</th><td class="col2">Fiber?</td></tr>
</table>
</div></body></html>`

type fakeVendors map[string]string

func (f fakeVendors) Lookup(mac string) string {
	if v, ok := f[mac]; ok {
		return v
	}
	return "Unknown"
}

func parseFixture(t *testing.T, body string, vendors VendorLookup) []model.DeviceRecord {
	t.Helper()
	records, err := New(vendors).Parse(gateway.RawPage{Body: []byte(body)})
	require.NoError(t, err)
	return records
}

func TestParseExtractsDeviceBlocks(t *testing.T) {
	records := parseFixture(t, fixturePage, nil)
	require.Len(t, records, 3, "block without MAC must be dropped")

	phone := records[0]
	assert.Equal(t, "A4:83:E7:11:22:33", phone.MAC)
	assert.Equal(t, "Pixel-8", phone.Name)
	assert.Equal(t, "192.168.1.70", phone.IP)
	assert.Equal(t, model.ConnectionWiFi, phone.ConnectionType)
	require.NotNil(t, phone.SignalBars)
	assert.Equal(t, 3, *phone.SignalBars)
	assert.Equal(t, "5 GHz", phone.Band)
	assert.Equal(t, "ATTnet", phone.NetworkName)
	assert.Equal(t, "866 Mbps", phone.ConnectionSpeed)
	assert.Equal(t, "dhcp", phone.Allocation)
	assert.Equal(t, "Mon Oct 14 09:12:44 2024", phone.LastActivity)
	assert.True(t, phone.Online)
	assert.Equal(t, "mdi:wifi-strength-3", phone.Icon())

	nas := records[1]
	assert.Equal(t, "00:11:32:AA:BB:CC", nas.MAC)
	assert.Equal(t, model.ConnectionEthernet, nas.ConnectionType)
	assert.Equal(t, "Ethernet LAN-2", nas.Interface)
	assert.Nil(t, nas.SignalBars)
	assert.Equal(t, "mdi:ethernet", nas.Icon())

	off := records[2]
	assert.Equal(t, "DE:AD:BE:EF:EE:FF", off.MAC)
	assert.False(t, off.Online)
	assert.Equal(t, model.ConnectionUnknown, off.ConnectionType)
	assert.True(t, off.GeneratedName)
	assert.Equal(t, "Device-EEFF", off.Name)
}

func TestParsePlaceholderUsesVendor(t *testing.T) {
	page := `<table>
<tr><th scope="row">MAC Address</th><td class="col2">00:11:32:01:02:03</td></tr>
<tr><th scope="row">IPv4 Address / Name</th><td class="col2">192.168.1.5</td></tr>
</table>`
	records := parseFixture(t, page, fakeVendors{"00:11:32:01:02:03": "Synology"})
	require.Len(t, records, 1)
	assert.Equal(t, "Synology-0203", records[0].Name)
	assert.True(t, records[0].GeneratedName)
	assert.Equal(t, "192.168.1.5", records[0].IP)
}

func TestParseMissingFieldsUseDefaults(t *testing.T) {
	page := `<table><tr><th scope="row">MAC Address</th><td>aa:bb:cc:dd:ee:ff</td></tr></table>`
	records := parseFixture(t, page, nil)
	require.Len(t, records, 1)
	rec := records[0]
	assert.Empty(t, rec.IP)
	assert.Equal(t, model.ConnectionUnknown, rec.ConnectionType)
	assert.Equal(t, "Device-EEFF", rec.Name)
	assert.True(t, rec.Online)
}

func TestParseDropsBlocksWithInvalidMAC(t *testing.T) {
	page := `<table>
<tr><th scope="row">MAC Address</th><td>N/A</td></tr>
<tr><th scope="row">IPv4 Address / Name</th><td>192.168.1.50 / ghost</td></tr>
<tr><td><hr class="reshr"></td></tr>
<tr><th scope="row">MAC Address</th><td>aa:bb:cc</td></tr>
<tr><td><hr class="reshr"></td></tr>
<tr><th scope="row">MAC Address</th><td>aabb.ccdd.eeff</td></tr>
<tr><th scope="row">Name</th><td>printer</td></tr>
</table>`
	records := parseFixture(t, page, nil)
	require.Len(t, records, 1)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", records[0].MAC)
	assert.Equal(t, "printer", records[0].Name)
}

func TestParseDuplicateMACLastBlockWins(t *testing.T) {
	page := `<table>
<tr><th scope="row">MAC Address</th><td>aa:bb:cc:dd:ee:ff</td></tr>
<tr><th scope="row">Name</th><td>first</td></tr>
<tr><td><hr class="reshr"></td></tr>
<tr><th scope="row">MAC Address</th><td>AA:BB:CC:DD:EE:FF</td></tr>
<tr><th scope="row">Name</th><td>second</td></tr>
</table>`
	records := parseFixture(t, page, nil)
	require.Len(t, records, 1)
	assert.Equal(t, "second", records[0].Name)
}

func TestParseMACRowWithoutSeparatorStartsNewBlock(t *testing.T) {
	page := `<table>
<tr><th scope="row">MAC Address</th><td>aa:bb:cc:dd:ee:01</td></tr>
<tr><th scope="row">MAC Address</th><td>aa:bb:cc:dd:ee:02</td></tr>
</table>`
	records := parseFixture(t, page, nil)
	require.Len(t, records, 2)
	assert.Equal(t, "AA:BB:CC:DD:EE:01", records[0].MAC)
	assert.Equal(t, "AA:BB:CC:DD:EE:02", records[1].MAC)
}

func TestParseEmptyTableIsValid(t *testing.T) {
	records := parseFixture(t, `<html><body><table class="table100"></table></body></html>`, nil)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestParseWithoutTableIsParseError(t *testing.T) {
	_, err := New(nil).Parse(gateway.RawPage{Body: []byte(`<html><body><p>Device List</p></body></html>`)})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrParse)
	assert.Equal(t, model.FailureParse, model.KindOf(err))
}

func TestParseWiFiWithoutImage(t *testing.T) {
	page := `<table>
<tr><th scope="row">MAC Address</th><td>aa:bb:cc:dd:ee:ff</td></tr>
<tr><th scope="row">Connection Type</th><td>Wi-Fi 2.4GHz</td></tr>
</table>`
	records := parseFixture(t, page, nil)
	require.Len(t, records, 1)
	assert.Equal(t, model.ConnectionWiFi, records[0].ConnectionType)
	assert.Nil(t, records[0].SignalBars)
	assert.Equal(t, "2.4GHz", records[0].Band)
	assert.Equal(t, "mdi:wifi", records[0].Icon())
}
