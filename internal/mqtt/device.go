package mqtt

import "github.com/nugget/hdsentinel-bridge/internal/sentinel"

// DeviceInfo holds the Home Assistant device registry fields shared
// across all discovery payloads of one disk. Every sensor entity of a
// disk references the same device block so HA groups them under a
// single device page.
type DeviceInfo struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	SWVersion    string   `json:"sw_version"`
}

// SensorConfig is the JSON payload for an HA MQTT sensor discovery
// message. It is published retained to the discovery topic the first
// time an entity is seen.
type SensorConfig struct {
	Name                string     `json:"name"`
	ObjectID            string     `json:"object_id,omitempty"`
	HasEntityName       bool       `json:"has_entity_name,omitempty"`
	UniqueID            string     `json:"unique_id"`
	StateTopic          string     `json:"state_topic"`
	AvailabilityTopic   string     `json:"availability_topic"`
	JsonAttributesTopic string     `json:"json_attributes_topic,omitempty"`
	Device              DeviceInfo `json:"device"`
	ExpireAfter         int        `json:"expire_after,omitempty"`
	Icon                string     `json:"icon,omitempty"`
	UnitOfMeasurement   string     `json:"unit_of_measurement,omitempty"`
	DeviceClass         string     `json:"device_class,omitempty"`
	StateClass          string     `json:"state_class,omitempty"`
	EntityCategory      string     `json:"entity_category,omitempty"`
}

// NewDeviceInfo builds the HA device block for one disk. The serial
// number is the primary device identifier — it is stable across
// reboots and device path changes, so HA entity history survives a
// disk moving to a different port.
func NewDeviceInfo(rec *sentinel.DiskRecord) DeviceInfo {
	return DeviceInfo{
		Identifiers:  []string{"hdsentinel_" + rec.Serial},
		Name:         rec.Alias,
		Manufacturer: "hdsentinel",
		Model:        rec.Model(),
		SWVersion:    rec.Firmware(),
	}
}
