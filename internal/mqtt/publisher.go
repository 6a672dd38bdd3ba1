package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/nugget/hdsentinel-bridge/internal/config"
	"github.com/nugget/hdsentinel-bridge/internal/sensor"
	"github.com/nugget/hdsentinel-bridge/internal/sentinel"
)

// ErrBrokerUnavailable indicates the broker connection is not usable
// for the current cycle. The poller logs it and retries next interval;
// autopaho keeps reconnecting in the background.
var ErrBrokerUnavailable = errors.New("mqtt broker unavailable")

// connectWait bounds how long a poll cycle waits for the broker
// connection before giving up and skipping the cycle.
const connectWait = 10 * time.Second

// publishClient is the slice of autopaho.ConnectionManager the
// publisher uses. Tests substitute a fake.
type publishClient interface {
	Publish(ctx context.Context, p *paho.Publish) (*paho.PublishResponse, error)
	AwaitConnection(ctx context.Context) error
	Disconnect(ctx context.Context) error
}

// Publisher owns the broker connection and the per-entity discovery
// state. Discovery state lives here — not in package globals — so its
// lifecycle is tied to the publisher: created empty at startup, marked
// per entity only after a successful discovery publish, reset by
// process restart.
type Publisher struct {
	cfg        *config.Config
	instanceID string
	logger     *slog.Logger

	client     publishClient
	discovered map[string]bool
}

// New creates a Publisher but does not connect. Call [Publisher.Start]
// to begin the connection lifecycle.
func New(cfg *config.Config, instanceID string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		cfg:        cfg,
		instanceID: instanceID,
		logger:     logger,
		discovered: make(map[string]bool),
	}
}

// Start connects to the MQTT broker. It returns an error only for
// configuration problems (unparsable broker URL); an unreachable
// broker is logged and retried in the background, and the first
// successful poll cycle after it comes up publishes normally.
func (p *Publisher) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(p.cfg.BrokerURL())
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: p.cfg.MQTTUser,
		ConnectPassword: []byte(p.cfg.MQTTPassword),
		WillMessage: &paho.WillMessage{
			Topic:   p.availabilityTopic(),
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			p.logger.Info("mqtt connected to broker", "broker", p.cfg.BrokerURL())
		},
		OnConnectError: func(err error) {
			p.logger.Warn("mqtt broker unavailable", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: p.clientID(),
		},
	}

	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	p.client = cm

	// Wait briefly for the initial connection so the first cycle can
	// publish. A timeout is not fatal — autopaho keeps retrying.
	connCtx, cancel := context.WithTimeout(ctx, connectWait)
	defer cancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		p.logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}

	return nil
}

// Stop publishes a retained "offline" availability message and closes
// the connection. The context bounds how long to wait.
func (p *Publisher) Stop(ctx context.Context) error {
	if p.client == nil {
		return nil
	}
	p.publishAvailability(ctx, "offline")
	return p.client.Disconnect(ctx)
}

// AwaitConnection blocks until the broker connection is established or
// ctx expires. Used by connwatch health probes.
func (p *Publisher) AwaitConnection(ctx context.Context) error {
	if p.client == nil {
		return ErrBrokerUnavailable
	}
	return p.client.AwaitConnection(ctx)
}

// Discovered reports whether the entity's discovery config has been
// published this process lifetime.
func (p *Publisher) Discovered(alias, key string) bool {
	return p.discovered[alias+"."+key]
}

// PublishCycle pushes one poll cycle's readings to the broker:
// discovery configs for entities not yet announced, then state
// messages, per-disk attribute payloads, and the availability birth
// message. Returns ErrBrokerUnavailable when the connection is down so
// the poller can skip the cycle; per-message failures are logged and
// the affected entity retries next cycle.
func (p *Publisher) PublishCycle(ctx context.Context, records []sentinel.DiskRecord, readings []sensor.Reading) error {
	if p.client == nil {
		return ErrBrokerUnavailable
	}

	connCtx, cancel := context.WithTimeout(ctx, connectWait)
	defer cancel()
	if err := p.client.AwaitConnection(connCtx); err != nil {
		return fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}

	byAlias := make(map[string][]sensor.Reading)
	for _, r := range readings {
		byAlias[r.DiskAlias] = append(byAlias[r.DiskAlias], r)
	}

	var published, failed int
	for i := range records {
		rec := &records[i]
		device := NewDeviceInfo(rec)

		for _, r := range byAlias[rec.Alias] {
			if err := p.ensureDiscovered(ctx, device, rec, r); err != nil {
				p.logger.Warn("mqtt discovery publish failed",
					"disk", rec.Alias, "sensor", r.Definition.Key, "error", err)
				failed++
				// No state message before a successful discovery.
				continue
			}

			if err := p.publishState(ctx, r); err != nil {
				p.logger.Warn("mqtt state publish failed",
					"disk", rec.Alias, "sensor", r.Definition.Key, "error", err)
				failed++
				continue
			}
			published++
		}

		if err := p.publishAttributes(ctx, rec); err != nil {
			p.logger.Warn("mqtt attributes publish failed",
				"disk", rec.Alias, "error", err)
			failed++
		}
	}

	p.publishAvailability(ctx, "online")

	p.logger.Debug("mqtt cycle published",
		"disks", len(records), "states", published, "failures", failed)

	if published == 0 && failed > 0 {
		return fmt.Errorf("%w: all %d publishes failed", ErrBrokerUnavailable, failed)
	}
	return nil
}

// ensureDiscovered publishes the retained discovery config for an
// entity if this process has not done so yet. The discovered flag is
// set only after the broker accepts the publish, so a partial failure
// never commits.
func (p *Publisher) ensureDiscovered(ctx context.Context, device DeviceInfo, rec *sentinel.DiskRecord, r sensor.Reading) error {
	entity := rec.Alias + "." + r.Definition.Key
	if p.discovered[entity] {
		return nil
	}

	cfg := p.sensorConfig(device, rec, r.Definition)
	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal discovery payload: %w", err)
	}

	topic := p.discoveryTopic(rec.Alias, r.Definition.Key)
	if _, err := p.client.Publish(ctx, &paho.Publish{
		Topic:   topic,
		Payload: payload,
		QoS:     1,
		Retain:  true,
	}); err != nil {
		return err
	}

	p.discovered[entity] = true
	p.logger.Debug("mqtt discovery published", "topic", topic)
	return nil
}

func (p *Publisher) publishState(ctx context.Context, r sensor.Reading) error {
	_, err := p.client.Publish(ctx, &paho.Publish{
		Topic:   p.stateTopic(r.DiskAlias, r.Definition.Key),
		Payload: []byte(r.State()),
		QoS:     0,
		Retain:  p.cfg.RetainState,
	})
	return err
}

// publishAttributes pushes the disk's full raw field set as a retained
// JSON document, mirroring what HDSentinel reported without any
// sensor-level typing.
func (p *Publisher) publishAttributes(ctx context.Context, rec *sentinel.DiskRecord) error {
	attrs := make(map[string]string, len(rec.Fields))
	for _, f := range rec.Fields {
		attrs[f.Key] = f.Value
	}
	payload, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("marshal attributes: %w", err)
	}

	_, err = p.client.Publish(ctx, &paho.Publish{
		Topic:   p.attributesTopic(rec.Alias),
		Payload: payload,
		QoS:     0,
		Retain:  true,
	})
	return err
}

func (p *Publisher) publishAvailability(ctx context.Context, status string) {
	if _, err := p.client.Publish(ctx, &paho.Publish{
		Topic:   p.availabilityTopic(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		p.logger.Warn("mqtt availability publish failed",
			"status", status, "error", err)
	}
}

// sensorConfig builds the HA discovery payload for one entity.
func (p *Publisher) sensorConfig(device DeviceInfo, rec *sentinel.DiskRecord, def sensor.Definition) SensorConfig {
	return SensorConfig{
		Name:                def.Name,
		ObjectID:            rec.Alias + "_" + def.Key,
		HasEntityName:       true,
		UniqueID:            "hdsentinel_" + rec.Serial + "_" + def.Key,
		StateTopic:          p.stateTopic(rec.Alias, def.Key),
		AvailabilityTopic:   p.availabilityTopic(),
		JsonAttributesTopic: p.attributesTopic(rec.Alias),
		Device:              device,
		ExpireAfter:         expireAfter(p.cfg.Interval),
		Icon:                def.Icon,
		UnitOfMeasurement:   def.Unit,
		DeviceClass:         def.DeviceClass,
		StateClass:          def.StateClass,
		EntityCategory:      def.EntityCategory,
	}
}

// expireAfter marks a sensor unavailable after 1.5 missed intervals.
func expireAfter(interval time.Duration) int {
	return int(math.Ceil(1.5 * interval.Seconds()))
}

// --- Topic helpers ---

func (p *Publisher) availabilityTopic() string {
	return p.cfg.BaseTopic + "/availability"
}

func (p *Publisher) stateTopic(alias, key string) string {
	return p.cfg.BaseTopic + "/" + alias + "/" + key + "/state"
}

func (p *Publisher) attributesTopic(alias string) string {
	return p.cfg.BaseTopic + "/" + alias + "/attributes"
}

func (p *Publisher) discoveryTopic(alias, key string) string {
	return p.cfg.DiscoveryPrefix + "/sensor/hdsentinel_" + alias + "/" + key + "/config"
}

// clientID derives a stable broker client ID from the persisted
// instance ID.
func (p *Publisher) clientID() string {
	id := p.instanceID
	if len(id) > 8 {
		id = id[:8]
	}
	return "hdsentinel-bridge-" + id
}
