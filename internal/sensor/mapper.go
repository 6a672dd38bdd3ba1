package sensor

import (
	"strconv"

	"github.com/nugget/hdsentinel-bridge/internal/sentinel"
)

// Reading is one typed sensor value for one disk. Value holds an int,
// float64, or string depending on the definition's transform.
type Reading struct {
	DiskSerial string
	DiskAlias  string
	Definition Definition
	Value      any
}

// State renders the value as an MQTT state payload. Floats drop
// trailing zeros ("0.5", not "0.50").
func (r Reading) State() string {
	switch v := r.Value.(type) {
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case string:
		return v
	default:
		return ""
	}
}

// Apply runs the definition's transform against a raw field value.
// It never fails: unparsable numeric input maps to 0 and text is
// truncated, per the extraction rules in the transform set.
func (d Definition) Apply(raw string) any {
	switch d.Transform {
	case TransformFirstInt:
		return FirstInt(raw)
	case TransformBeforeUnit:
		return BeforeUnit(raw, d.UnitKeyword)
	case TransformDataVolume:
		return DataVolume(raw)
	default:
		return Text(raw)
	}
}

// Map applies the schema to each disk record, producing one reading
// per (disk, definition) pair whose key is present in the record.
// Absent fields are omitted rather than zero-filled so downstream
// consumers can retain previous values. Map is pure and never fails.
func Map(records []sentinel.DiskRecord, schema *Schema) []Reading {
	var readings []Reading
	for _, rec := range records {
		for _, def := range schema.Sensors {
			raw, ok := rec.Field(def.Key)
			if !ok {
				continue
			}
			readings = append(readings, Reading{
				DiskSerial: rec.Serial,
				DiskAlias:  rec.Alias,
				Definition: def,
				Value:      def.Apply(raw),
			})
		}
	}
	return readings
}
