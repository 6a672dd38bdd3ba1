// Package config handles hdsentinel-bridge configuration loading.
//
// All runtime settings come from environment variables so the bridge
// can be configured entirely from a compose file or systemd unit. The
// only fatal validation error is a missing MQTT_HOST — every other
// setting has a usable default.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Defaults applied when the corresponding environment variable is unset.
const (
	DefaultMQTTPort    = 1883
	DefaultBaseTopic   = "hdsentinel"
	DefaultDiscovery   = "homeassistant"
	DefaultInterval    = 600 * time.Second
	DefaultToolPath    = "/usr/sbin/hdsentinel"
	DefaultToolTimeout = 120 * time.Second
	DefaultDataDir     = "/var/lib/hdsentinel-bridge"
	DefaultOutputPath  = "/var/lib/hdsentinel-bridge/hdsentinel_output.xml"
)

// Config holds all bridge settings resolved from the environment.
type Config struct {
	// MQTT broker connection.
	MQTTHost     string
	MQTTPort     int
	MQTTUser     string
	MQTTPassword string
	MQTTUseTLS   bool

	// BaseTopic is the prefix for state, attributes and availability
	// topics (default "hdsentinel"). DiscoveryPrefix is the Home
	// Assistant discovery prefix (default "homeassistant").
	BaseTopic       string
	DiscoveryPrefix string

	// RetainState controls whether per-sensor state messages are
	// published retained. Discovery and availability messages are
	// always retained regardless.
	RetainState bool

	// XMLPath, when non-empty, switches the source adapter to
	// read-only mode: the file at this path is parsed directly and
	// the HDSentinel binary is never executed.
	XMLPath string

	// ToolPath is the HDSentinel binary invoked in generate mode.
	// OutputPath is where it is told to write its XML report.
	ToolPath    string
	OutputPath  string
	ToolTimeout time.Duration

	// Interval between poll cycles.
	Interval time.Duration

	// SchemaPath is an optional sensor schema YAML file. Empty means
	// the built-in schema.
	SchemaPath string

	// DataDir holds the instance ID file and the last-value database.
	DataDir string

	// Debug enables debug-level logging (DEBUG=1).
	Debug bool
}

// FromEnv builds a Config from the process environment. It returns an
// error only for settings that make startup impossible: a missing
// MQTT_HOST or values that fail to parse as numbers.
func FromEnv() (*Config, error) {
	cfg := &Config{
		MQTTHost:        os.Getenv("MQTT_HOST"),
		MQTTPort:        DefaultMQTTPort,
		MQTTUser:        os.Getenv("MQTT_USER"),
		MQTTPassword:    os.Getenv("MQTT_PASSWORD"),
		MQTTUseTLS:      os.Getenv("MQTT_USE_TLS") == "1",
		BaseTopic:       DefaultBaseTopic,
		DiscoveryPrefix: DefaultDiscovery,
		RetainState:     os.Getenv("MQTT_RETAIN_STATE") == "1",
		XMLPath:         os.Getenv("HDSENTINEL_XML_PATH"),
		ToolPath:        DefaultToolPath,
		OutputPath:      DefaultOutputPath,
		ToolTimeout:     DefaultToolTimeout,
		Interval:        DefaultInterval,
		SchemaPath:      os.Getenv("SENSOR_SCHEMA_PATH"),
		DataDir:         DefaultDataDir,
		Debug:           os.Getenv("DEBUG") == "1",
	}

	if cfg.MQTTHost == "" {
		return nil, fmt.Errorf("MQTT_HOST environment variable is not set")
	}

	if v := os.Getenv("MQTT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("MQTT_PORT: %w", err)
		}
		cfg.MQTTPort = port
	}

	if v := os.Getenv("MQTT_TOPIC"); v != "" {
		cfg.BaseTopic = v
	}
	if v := os.Getenv("MQTT_DISCOVERY_PREFIX"); v != "" {
		cfg.DiscoveryPrefix = v
	}

	if v := os.Getenv("HDSENTINEL_INTERVAL"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("HDSENTINEL_INTERVAL: %w", err)
		}
		if secs <= 0 {
			return nil, fmt.Errorf("HDSENTINEL_INTERVAL must be positive, got %d", secs)
		}
		cfg.Interval = time.Duration(secs) * time.Second
	}

	if v := os.Getenv("HDSENTINEL_PATH"); v != "" {
		cfg.ToolPath = v
	}
	if v := os.Getenv("HDSENTINEL_OUTPUT_PATH"); v != "" {
		cfg.OutputPath = v
	}
	if v := os.Getenv("HDSENTINEL_TIMEOUT"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("HDSENTINEL_TIMEOUT: %w", err)
		}
		cfg.ToolTimeout = time.Duration(secs) * time.Second
	}

	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	return cfg, nil
}

// BrokerURL renders the broker connection settings as a URL for the
// MQTT client. TLS selects the mqtts scheme.
func (c *Config) BrokerURL() string {
	scheme := "mqtt"
	if c.MQTTUseTLS {
		scheme = "mqtts"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.MQTTHost, c.MQTTPort)
}

// ExternalSource reports whether the bridge runs in read-only mode,
// parsing a pre-generated XML file instead of executing HDSentinel.
func (c *Config) ExternalSource() bool {
	return c.XMLPath != ""
}
