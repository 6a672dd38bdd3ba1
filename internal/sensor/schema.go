package sensor

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Definition is one static schema entry: which raw field to read, how
// to extract a typed value from it, and the Home Assistant display
// metadata for the discovery payload. Definitions are loaded once at
// startup and never mutated.
type Definition struct {
	// Key is the raw field key (lower-cased XML element name).
	Key string `yaml:"key"`

	// Name is the display name shown in Home Assistant. Defaults to
	// the key with underscores spaced out.
	Name string `yaml:"name"`

	// Transform selects the extraction rule. Defaults to "text".
	Transform Transform `yaml:"transform"`

	// UnitKeyword is the split keyword for the before_unit transform
	// (e.g. "days").
	UnitKeyword string `yaml:"unit_keyword"`

	// Home Assistant entity metadata, copied into discovery payloads.
	Unit           string `yaml:"unit_of_measurement"`
	DeviceClass    string `yaml:"device_class"`
	StateClass     string `yaml:"state_class"`
	Icon           string `yaml:"icon"`
	EntityCategory string `yaml:"entity_category"`
}

// Schema is the ordered set of sensor definitions. Order determines
// discovery publish order, keeping broker traffic deterministic.
type Schema struct {
	Sensors []Definition `yaml:"sensors"`
}

// LoadSchema reads a schema YAML file, or returns the built-in default
// schema when path is empty. Environment variables in the file are
// expanded before parsing, matching how the rest of the configuration
// behaves.
func LoadSchema(path string) (*Schema, error) {
	if path == "" {
		return DefaultSchema(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sensor schema: %w", err)
	}

	var s Schema
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &s); err != nil {
		return nil, fmt.Errorf("parse sensor schema %s: %w", path, err)
	}

	if err := s.normalize(); err != nil {
		return nil, fmt.Errorf("sensor schema %s: %w", path, err)
	}
	return &s, nil
}

// normalize applies per-entry defaults and validates transform names.
func (s *Schema) normalize() error {
	seen := make(map[string]bool, len(s.Sensors))
	for i := range s.Sensors {
		d := &s.Sensors[i]
		if d.Key == "" {
			return fmt.Errorf("sensor %d: key is required", i)
		}
		if seen[d.Key] {
			return fmt.Errorf("duplicate sensor key %q", d.Key)
		}
		seen[d.Key] = true

		if d.Transform == "" {
			d.Transform = TransformText
		}
		if !d.Transform.Valid() {
			return fmt.Errorf("sensor %q: unknown transform %q", d.Key, d.Transform)
		}
		if d.Name == "" {
			d.Name = displayName(d.Key)
		}
	}
	return nil
}

// displayName turns "power_on_time" into "Power on time".
func displayName(key string) string {
	words := strings.Split(key, "_")
	for i, w := range words {
		if i == 0 && w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// DefaultSchema covers the HDSentinel summary fields the bridge maps
// out of the box. A custom schema file replaces it entirely.
func DefaultSchema() *Schema {
	return &Schema{Sensors: []Definition{
		{
			Key:         "temperature",
			Name:        "Temperature",
			Transform:   TransformFirstInt,
			Unit:        "°C",
			DeviceClass: "temperature",
			StateClass:  "measurement",
		},
		{
			Key:        "hard_disk_health",
			Name:       "Health",
			Transform:  TransformFirstInt,
			Unit:       "%",
			StateClass: "measurement",
			Icon:       "mdi:harddisk",
		},
		{
			Key:        "performance",
			Name:       "Performance",
			Transform:  TransformFirstInt,
			Unit:       "%",
			StateClass: "measurement",
			Icon:       "mdi:speedometer",
		},
		{
			Key:       "power_on_time",
			Name:      "Power on time",
			Transform: TransformFirstInt,
			Unit:      "days",
			Icon:      "mdi:clock-outline",
		},
		{
			Key:         "estimated_lifetime",
			Name:        "Estimated lifetime",
			Transform:   TransformBeforeUnit,
			UnitKeyword: "days",
			Unit:        "days",
			Icon:        "mdi:calendar-clock",
		},
		{
			Key:        "total_written",
			Name:       "Lifetime writes",
			Transform:  TransformDataVolume,
			Unit:       "TB",
			StateClass: "total_increasing",
			Icon:       "mdi:database",
		},
		{
			Key:            "hard_disk_device",
			Name:           "Device",
			Transform:      TransformText,
			EntityCategory: "diagnostic",
			Icon:           "mdi:harddisk",
		},
		{
			Key:            "hard_disk_model_id",
			Name:           "Model",
			Transform:      TransformText,
			EntityCategory: "diagnostic",
		},
		{
			Key:            "firmware_revision",
			Name:           "Firmware",
			Transform:      TransformText,
			EntityCategory: "diagnostic",
		},
		{
			Key:            "interface",
			Name:           "Interface",
			Transform:      TransformText,
			EntityCategory: "diagnostic",
		},
	}}
}
