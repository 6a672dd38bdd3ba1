// Package sensor turns raw disk telemetry fields into typed readings.
//
// A schema of sensor definitions — loaded from YAML or the built-in
// default — names each field of interest, its Home Assistant display
// metadata, and which extraction transform to apply. Transforms are a
// small closed set of named functions rather than templating logic, so
// the mapping stays testable in isolation: a raw "38 C" becomes the
// integer 38, "500 GB" becomes 0.5 TB, and free text is passed through
// truncated. Extraction never fails; unparsable numeric values map to
// zero, and fields absent from a record are omitted entirely.
package sensor
