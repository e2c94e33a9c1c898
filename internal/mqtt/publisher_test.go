package mqtt

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/micro-ha/att-presence/addon/internal/model"
	"github.com/micro-ha/att-presence/addon/internal/presence"
	"github.com/micro-ha/att-presence/addon/internal/snapshot"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type message struct {
	topic    string
	retained bool
	payload  string
}

type fakeClient struct {
	mu       sync.Mutex
	messages []message
	err      error
}

func (c *fakeClient) Publish(topic string, _ byte, retained bool, payload interface{}) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, message{topic: topic, retained: retained, payload: payload.(string)})
	return doneToken{err: c.err}
}

func (c *fakeClient) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
}

func (c *fakeClient) last(topic string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].topic == topic {
			return c.messages[i].payload, true
		}
	}
	return "", false
}

type staticConfig struct{ cfg model.RouterConfig }

func (s staticConfig) Get() (model.RouterConfig, bool) { return s.cfg, true }

func bars(n int) *int { return &n }

func testState(t *testing.T, alwaysHome ...string) snapshot.State {
	t.Helper()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	snap := model.Snapshot{
		FetchedAt: now,
		OK:        true,
		Devices: map[string]model.DeviceRecord{
			"AA:BB:CC:DD:EE:01": {MAC: "AA:BB:CC:DD:EE:01", Name: "Phone", Online: true, ConnectionType: model.ConnectionWiFi, SignalBars: bars(3), Band: "5 GHz", LastSeenAt: &now},
			"AA:BB:CC:DD:EE:02": {MAC: "AA:BB:CC:DD:EE:02", Name: "Printer", Online: true, ConnectionType: model.ConnectionEthernet, Interface: "LAN1"},
			"AA:BB:CC:DD:EE:03": {MAC: "AA:BB:CC:DD:EE:03", Name: "Laptop", Online: false, ConnectionType: model.ConnectionWiFi},
		},
	}
	return snapshot.State{
		Snapshot:  snap,
		Presence:  presence.Classify(snap, model.NewMACSet(alwaysHome...)),
		Available: true,
	}
}

func newTestPublisher(client *fakeClient, cfg model.RouterConfig) *Publisher {
	return NewPublisher(client, staticConfig{cfg: cfg}, "", "", nil)
}

func TestPublisherDiscoversTrackersAndSensors(t *testing.T) {
	client := &fakeClient{}
	cfg := model.RouterConfig{PresenceDetection: true, AlwaysHome: []string{"AA:BB:CC:DD:EE:02"}}
	pub := newTestPublisher(client, cfg)

	pub.Notify(testState(t, cfg.AlwaysHome...))

	phone := trackerEntity(DefaultNodeID, "AA:BB:CC:DD:EE:01", "Phone", "")
	assert.Equal(t, "homeassistant/device_tracker/att_router_aa_bb_cc_dd_ee_01/config", pub.topics.config(phone))

	raw, ok := client.last(pub.topics.config(phone))
	require.True(t, ok)
	var reg registerMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &reg))
	assert.Equal(t, "Phone", reg.Name)
	assert.Equal(t, "mdi:wifi-strength-3", reg.Icon)
	assert.Equal(t, stateHome, reg.PayloadHome)
	assert.Equal(t, pub.AvailabilityTopic(), reg.AvailabilityTopic)

	state, _ := client.last(pub.topics.state(phone))
	assert.Equal(t, stateHome, state)

	laptop := trackerEntity(DefaultNodeID, "AA:BB:CC:DD:EE:03", "Laptop", "")
	state, _ = client.last(pub.topics.state(laptop))
	assert.Equal(t, stateNotHome, state)

	printer := trackerEntity(DefaultNodeID, "AA:BB:CC:DD:EE:02", "Printer", "")
	_, ok = client.last(pub.topics.config(printer))
	assert.False(t, ok, "always-home devices get no tracker")

	online, total, presenceSensor := sensorEntities(DefaultNodeID)
	state, _ = client.last(pub.topics.state(online))
	assert.Equal(t, "1", state)
	state, _ = client.last(pub.topics.state(total))
	assert.Equal(t, "3", state)
	state, _ = client.last(pub.topics.state(presenceSensor))
	assert.Equal(t, "home", state)

	attrs, _ := client.last(pub.topics.attrs(total))
	var totals struct {
		Online  int `json:"online_count"`
		Offline int `json:"offline_count"`
		Devices []struct {
			Name string `json:"name"`
		} `json:"devices"`
	}
	require.NoError(t, json.Unmarshal([]byte(attrs), &totals))
	assert.Equal(t, 2, totals.Online)
	assert.Equal(t, 1, totals.Offline)
	require.Len(t, totals.Devices, 3)
	assert.Equal(t, []string{"Phone", "Printer", "Laptop"}, []string{totals.Devices[0].Name, totals.Devices[1].Name, totals.Devices[2].Name})

	avail, _ := client.last(pub.AvailabilityTopic())
	assert.Equal(t, payloadOnline, avail)
}

func TestPublisherSkipsUnchangedPayloads(t *testing.T) {
	client := &fakeClient{}
	pub := newTestPublisher(client, model.RouterConfig{PresenceDetection: true})
	state := testState(t)

	pub.Notify(state)
	require.NotEmpty(t, client.messages)
	client.reset()

	pub.Notify(state)
	assert.Empty(t, client.messages)

	pub.Resync()
	assert.NotEmpty(t, client.messages, "resync republishes everything")
}

func TestPublisherMarksStaleStateUnavailable(t *testing.T) {
	client := &fakeClient{}
	pub := newTestPublisher(client, model.RouterConfig{PresenceDetection: true})
	state := testState(t)
	pub.Notify(state)

	state.Stale = true
	state.Failure = &model.Failure{Kind: model.FailureAuthExpired}
	client.reset()
	pub.Notify(state)

	require.Len(t, client.messages, 1)
	assert.Equal(t, pub.AvailabilityTopic(), client.messages[0].topic)
	assert.Equal(t, payloadOffline, client.messages[0].payload)
	assert.True(t, client.messages[0].retained)
}

func TestPublisherBeforeFirstSnapshot(t *testing.T) {
	client := &fakeClient{}
	pub := newTestPublisher(client, model.RouterConfig{})
	pub.Notify(snapshot.State{Stale: true})

	require.Len(t, client.messages, 1)
	assert.Equal(t, payloadOffline, client.messages[0].payload)
}

func TestPublisherRemovesPresenceSensorWhenDisabled(t *testing.T) {
	client := &fakeClient{}
	pub := newTestPublisher(client, model.RouterConfig{PresenceDetection: false})
	pub.Notify(testState(t))

	_, _, presenceSensor := sensorEntities(DefaultNodeID)
	cfg, ok := client.last(pub.topics.config(presenceSensor))
	require.True(t, ok)
	assert.Empty(t, cfg)
	_, ok = client.last(pub.topics.state(presenceSensor))
	assert.False(t, ok)
}

func TestPublisherRemovesTrackerWhenPinned(t *testing.T) {
	client := &fakeClient{}
	cfg := &mutableConfig{cfg: model.RouterConfig{PresenceDetection: true}}
	pub := NewPublisher(client, cfg, "", "", nil)
	pub.Notify(testState(t))

	cfg.cfg.AlwaysHome = []string{"AA:BB:CC:DD:EE:01"}
	pub.Notify(testState(t, "AA:BB:CC:DD:EE:01"))

	phone := trackerEntity(DefaultNodeID, "AA:BB:CC:DD:EE:01", "Phone", "")
	raw, ok := client.last(pub.topics.config(phone))
	require.True(t, ok)
	assert.Empty(t, raw)
}

func TestPublisherRetriesAfterFailedPublish(t *testing.T) {
	client := &fakeClient{err: errors.New("broker gone")}
	pub := newTestPublisher(client, model.RouterConfig{PresenceDetection: true})
	state := testState(t)
	pub.Notify(state)

	client.err = nil
	client.reset()
	pub.Notify(state)
	assert.NotEmpty(t, client.messages, "failed payloads are not remembered as sent")
}

type mutableConfig struct{ cfg model.RouterConfig }

func (m *mutableConfig) Get() (model.RouterConfig, bool) { return m.cfg, true }
