// Package mqtt publishes Home Assistant MQTT discovery messages and
// per-sensor disk state updates. Each physical disk appears as a
// native HA device grouping its sensor entities, with availability
// tracking for the bridge as a whole.
//
// The publisher uses Eclipse Paho v2's [autopaho] package for
// connection management with automatic reconnection. Discovery config
// payloads are retained and published exactly once per entity per
// process lifetime, always before the entity's first state message; a
// failed discovery publish leaves the entity undiscovered so the next
// cycle retries it. A will message ensures the availability topic
// transitions to "offline" on unexpected disconnects.
package mqtt
