package mqtt

import (
	"fmt"
	"strings"

	"github.com/gosimple/slug"
)

const (
	payloadOnline  = "online"
	payloadOffline = "offline"
	stateHome      = "home"
	stateNotHome   = "not_home"

	manufacturer = "AT&T"
	deviceModel  = "Router"
)

type registerDevice struct {
	Name         string   `json:"name"`
	Identifiers  []string `json:"identifiers"`
	Model        string   `json:"model"`
	Manufacturer string   `json:"manufacturer"`
}

// registerMessage is a Home Assistant MQTT discovery config payload.
type registerMessage struct {
	Tilda               string         `json:"~"`
	Name                string         `json:"name"`
	ID                  string         `json:"unique_id"`
	ObjectID            string         `json:"object_id"`
	StateTopic          string         `json:"state_topic"`
	AttributesTopic     string         `json:"json_attributes_topic"`
	AvailabilityTopic   string         `json:"availability_topic"`
	Icon                string         `json:"icon,omitempty"`
	UnitOfMeasurement   string         `json:"unit_of_measurement,omitempty"`
	StateClass          string         `json:"state_class,omitempty"`
	SourceType          string         `json:"source_type,omitempty"`
	PayloadHome         string         `json:"payload_home,omitempty"`
	PayloadNotHome      string         `json:"payload_not_home,omitempty"`
	PayloadAvailable    string         `json:"payload_available"`
	PayloadNotAvailable string         `json:"payload_not_available"`
	Device              registerDevice `json:"device"`
}

type entity struct {
	component string
	objectID  string
	name      string
	icon      string
	unit      string
}

type topics struct {
	prefix string
	nodeID string
}

func (t topics) availability() string {
	return fmt.Sprintf("%s/%s/availability", t.prefix, t.nodeID)
}

func (t topics) base(e entity) string {
	return fmt.Sprintf("%s/%s/%s", t.prefix, e.component, e.objectID)
}

func (t topics) config(e entity) string { return t.base(e) + "/config" }
func (t topics) state(e entity) string { return t.base(e) + "/state" }
func (t topics) attrs(e entity) string { return t.base(e) + "/attributes" }

func (t topics) registerMsg(e entity) registerMessage {
	msg := registerMessage{
		Tilda:               t.base(e),
		Name:                e.name,
		ID:                  e.objectID,
		ObjectID:            e.objectID,
		StateTopic:          "~/state",
		AttributesTopic:     "~/attributes",
		AvailabilityTopic:   t.availability(),
		Icon:                e.icon,
		UnitOfMeasurement:   e.unit,
		PayloadAvailable:    payloadOnline,
		PayloadNotAvailable: payloadOffline,
		Device: registerDevice{
			Name:         "AT&T Router",
			Identifiers:  []string{t.nodeID},
			Model:        deviceModel,
			Manufacturer: manufacturer,
		},
	}
	if e.unit != "" {
		msg.StateClass = "measurement"
	}
	if e.component == "device_tracker" {
		msg.SourceType = "router"
		msg.PayloadHome = stateHome
		msg.PayloadNotHome = stateNotHome
	}
	return msg
}

// objectID turns an arbitrary label into a Home Assistant object id.
func objectID(nodeID, label string) string {
	return nodeID + "_" + strings.ReplaceAll(slug.Make(label), "-", "_")
}

func trackerEntity(nodeID, mac, name, icon string) entity {
	return entity{
		component: "device_tracker",
		objectID:  objectID(nodeID, mac),
		name:      name,
		icon:      icon,
	}
}

func sensorEntities(nodeID string) (online, total, presence entity) {
	online = entity{component: "sensor", objectID: nodeID + "_online_devices", name: "AT&T Router Online Devices", icon: "mdi:lan-connect", unit: "devices"}
	total = entity{component: "sensor", objectID: nodeID + "_total_devices", name: "AT&T Router Total Devices", icon: "mdi:devices", unit: "devices"}
	presence = entity{component: "sensor", objectID: nodeID + "_presence", name: "AT&T Router Presence", icon: "mdi:home-account"}
	return online, total, presence
}
