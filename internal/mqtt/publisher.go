package mqtt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/samber/lo"

	"github.com/micro-ha/att-presence/addon/internal/model"
	"github.com/micro-ha/att-presence/addon/internal/presence"
	"github.com/micro-ha/att-presence/addon/internal/snapshot"
)

const (
	DefaultPrefix = "homeassistant"
	DefaultNodeID = "att_router"

	publishTimeout = 5 * time.Second
)

type ConfigProvider interface {
	Get() (model.RouterConfig, bool)
}

// Publisher mirrors committed snapshot state into Home Assistant over MQTT
// discovery. Unchanged payloads are not re-sent.
type Publisher struct {
	config ConfigProvider
	topics topics
	logger *slog.Logger

	mu       sync.Mutex
	client   Client
	conn     paho.Client
	sent     sync.Map
	trackers map[string]entity
	last     *snapshot.State
}

// NewPublisher builds a publisher. client may be nil until Connect is called.
func NewPublisher(client Client, cfg ConfigProvider, prefix, nodeID string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(prefix) == "" {
		prefix = DefaultPrefix
	}
	if strings.TrimSpace(nodeID) == "" {
		nodeID = DefaultNodeID
	}
	return &Publisher{
		client:   client,
		config:   cfg,
		topics:   topics{prefix: strings.TrimSuffix(prefix, "/"), nodeID: nodeID},
		logger:   logger,
		trackers: map[string]entity{},
	}
}

func (p *Publisher) AvailabilityTopic() string {
	return p.topics.availability()
}

// Notify implements snapshot.Sink.
func (p *Publisher) Notify(state snapshot.State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	last := state.Clone()
	p.last = &last
	p.publishState(state)
}

// Resync forgets what was sent and republishes the last state. It runs after
// every broker (re)connect, since retained discovery may have been cleared.
func (p *Publisher) Resync() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent.Range(func(key, _ any) bool {
		p.sent.Delete(key)
		return true
	})
	if p.last == nil {
		return
	}
	p.publishState(*p.last)
}

func (p *Publisher) publishState(state snapshot.State) {
	if p.client == nil {
		return
	}
	if !state.Available {
		p.publish(p.topics.availability(), true, payloadOffline)
		return
	}

	cfg, _ := p.config.Get()
	alwaysHome := cfg.AlwaysHomeSet()
	p.publishTrackers(state.Snapshot, alwaysHome)
	p.publishSensors(state, cfg)

	availability := payloadOnline
	if state.Stale {
		availability = payloadOffline
	}
	p.publish(p.topics.availability(), true, availability)
}

func (p *Publisher) publishTrackers(snap model.Snapshot, alwaysHome model.MACSet) {
	tracked := presence.Tracked(snap, alwaysHome)
	current := make(map[string]entity, len(tracked))
	for _, rec := range tracked {
		e := trackerEntity(p.topics.nodeID, rec.MAC, rec.Name, rec.Icon())
		current[rec.MAC] = e
		p.publishJSON(p.topics.config(e), true, p.topics.registerMsg(e))
		p.publishJSON(p.topics.attrs(e), true, trackerAttributes(rec))
		state := stateNotHome
		if rec.Online {
			state = stateHome
		}
		p.publish(p.topics.state(e), true, state)
	}

	// Devices moved to the always-home list lose their tracker entity.
	for mac, e := range p.trackers {
		if _, ok := current[mac]; ok {
			continue
		}
		p.publish(p.topics.config(e), true, "")
	}
	p.trackers = current
}

func (p *Publisher) publishSensors(state snapshot.State, cfg model.RouterConfig) {
	online, total, presenceSensor := sensorEntities(p.topics.nodeID)
	result := state.Presence

	p.publishJSON(p.topics.config(online), true, p.topics.registerMsg(online))
	p.publish(p.topics.state(online), true, fmt.Sprint(result.TrackedOnline))
	p.publishJSON(p.topics.attrs(online), true, map[string]any{
		"devices": result.TrackedOnlineNames,
	})

	p.publishJSON(p.topics.config(total), true, p.topics.registerMsg(total))
	p.publish(p.topics.state(total), true, fmt.Sprint(len(state.Snapshot.Devices)))
	p.publishJSON(p.topics.attrs(total), true, totalAttributes(state.Snapshot))

	if !cfg.PresenceDetection {
		p.publish(p.topics.config(presenceSensor), true, "")
		return
	}
	p.publishJSON(p.topics.config(presenceSensor), true, p.topics.registerMsg(presenceSensor))
	p.publish(p.topics.state(presenceSensor), true, string(result.State))
	p.publishJSON(p.topics.attrs(presenceSensor), true, map[string]any{
		"tracked_devices_online":      result.TrackedOnlineNames,
		"tracked_devices_offline":     result.TrackedOfflineNames,
		"always_home_devices_online":  result.AlwaysHomeOnlineNames,
		"always_home_devices_offline": result.AlwaysHomeOfflineNames,
	})
}

func trackerAttributes(rec model.DeviceRecord) map[string]any {
	attrs := map[string]any{
		"mac":             rec.MAC,
		"ip":              rec.IP,
		"connection_type": rec.ConnectionType,
		"status":          rec.Status,
		"last_activity":   rec.LastActivity,
		"allocation":      rec.Allocation,
	}
	switch rec.ConnectionType {
	case model.ConnectionWiFi:
		attrs["band"] = rec.Band
		attrs["network_name"] = rec.NetworkName
		if rec.SignalBars != nil {
			attrs["signal_bars"] = *rec.SignalBars
		}
	case model.ConnectionEthernet:
		attrs["interface"] = rec.Interface
	}
	if rec.ConnectionSpeed != "" {
		attrs["connection_speed"] = rec.ConnectionSpeed
	}
	if rec.LastSeenAt != nil {
		attrs["last_seen"] = rec.LastSeenAt.UTC().Format(time.RFC3339)
	}
	return attrs
}

func totalAttributes(snap model.Snapshot) map[string]any {
	records := snap.Sorted()
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Online != records[j].Online {
			return records[i].Online
		}
		return strings.ToLower(records[i].Name) < strings.ToLower(records[j].Name)
	})
	online := lo.CountBy(records, func(rec model.DeviceRecord) bool { return rec.Online })
	return map[string]any{
		"online_count":  online,
		"offline_count": len(records) - online,
		"devices": lo.Map(records, func(rec model.DeviceRecord, _ int) map[string]any {
			return map[string]any{
				"name":            rec.Name,
				"mac":             rec.MAC,
				"ip":              rec.IP,
				"online":          rec.Online,
				"connection_type": rec.ConnectionType,
			}
		}),
	}
}

func (p *Publisher) publishJSON(topic string, retained bool, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		p.logger.Error("failed to encode mqtt payload", "topic", topic, "err", err)
		return
	}
	p.publish(topic, retained, string(payload))
}

func (p *Publisher) publish(topic string, retained bool, payload string) {
	if !p.shouldUpdate(topic, payload) {
		return
	}
	token := p.client.Publish(topic, 1, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		p.sent.Delete(topic)
		p.logger.Warn("mqtt publish timed out", "topic", topic)
		return
	}
	if err := token.Error(); err != nil {
		p.sent.Delete(topic)
		p.logger.Error("mqtt publish failed", "topic", topic, "err", err)
	}
}

func (p *Publisher) shouldUpdate(topic, payload string) bool {
	old, exists := p.sent.Load(topic)
	if exists && old.(string) == payload {
		return false
	}
	p.sent.Store(topic, payload)
	return true
}
