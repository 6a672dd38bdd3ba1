package sensor

import (
	"testing"

	"github.com/nugget/hdsentinel-bridge/internal/sentinel"
)

func testRecord() sentinel.DiskRecord {
	return sentinel.DiskRecord{
		Serial: "S4EWNF0M123456",
		Alias:  "samsung_ssd_970_evo_plus_1_tb_s4ewnf0m123456",
		Fields: []sentinel.RawField{
			{Key: "temperature", Value: "38 C"},
			{Key: "hard_disk_health", Value: "100 %"},
			{Key: "estimated_lifetime", Value: "More than 1000 days"},
			{Key: "total_written", Value: "500 GB"},
			{Key: "hard_disk_model_id", Value: "Samsung SSD 970 EVO Plus 1TB"},
		},
	}
}

func testSchema() *Schema {
	return &Schema{Sensors: []Definition{
		{Key: "temperature", Name: "Temperature", Transform: TransformFirstInt},
		{Key: "hard_disk_health", Name: "Health", Transform: TransformFirstInt},
		{Key: "estimated_lifetime", Name: "Estimated lifetime", Transform: TransformBeforeUnit, UnitKeyword: "days"},
		{Key: "total_written", Name: "Lifetime writes", Transform: TransformDataVolume},
		{Key: "hard_disk_model_id", Name: "Model", Transform: TransformText},
		{Key: "power_on_time", Name: "Power on time", Transform: TransformFirstInt},
	}}
}

func TestMap_TypedValues(t *testing.T) {
	readings := Map([]sentinel.DiskRecord{testRecord()}, testSchema())

	// power_on_time is absent from the record and must be omitted.
	if len(readings) != 5 {
		t.Fatalf("got %d readings, want 5", len(readings))
	}

	byKey := make(map[string]Reading)
	for _, r := range readings {
		byKey[r.Definition.Key] = r
		if r.DiskSerial != "S4EWNF0M123456" {
			t.Errorf("%s: DiskSerial = %q", r.Definition.Key, r.DiskSerial)
		}
	}

	if v := byKey["temperature"].Value; v != 38 {
		t.Errorf("temperature = %v (%T), want 38", v, v)
	}
	if v := byKey["hard_disk_health"].Value; v != 100 {
		t.Errorf("health = %v, want 100", v)
	}
	if v := byKey["estimated_lifetime"].Value; v != 1000 {
		t.Errorf("estimated_lifetime = %v, want 1000", v)
	}
	if v := byKey["total_written"].Value; v != 0.5 {
		t.Errorf("total_written = %v, want 0.5", v)
	}
	if v := byKey["hard_disk_model_id"].Value; v != "Samsung SSD 970 EVO Plus 1TB" {
		t.Errorf("model = %v", v)
	}

	if _, ok := byKey["power_on_time"]; ok {
		t.Error("absent field produced a reading; want omission")
	}
}

func TestMap_MultipleDisks(t *testing.T) {
	a := testRecord()
	b := testRecord()
	b.Serial = "OTHER123"
	b.Alias = "other_disk_other123"

	readings := Map([]sentinel.DiskRecord{a, b}, testSchema())
	if len(readings) != 10 {
		t.Fatalf("got %d readings, want 10", len(readings))
	}
}

func TestMap_EmptyInputs(t *testing.T) {
	if got := Map(nil, testSchema()); len(got) != 0 {
		t.Errorf("Map(nil) = %d readings", len(got))
	}
	if got := Map([]sentinel.DiskRecord{testRecord()}, &Schema{}); len(got) != 0 {
		t.Errorf("Map with empty schema = %d readings", len(got))
	}
}

func TestReading_State(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"int", 38, "38"},
		{"float trims zeros", 0.5, "0.5"},
		{"float whole", 750.0, "750"},
		{"string", "ok", "ok"},
		{"zero int", 0, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Reading{Value: tt.value}
			if got := r.State(); got != tt.want {
				t.Errorf("State() = %q, want %q", got, tt.want)
			}
		})
	}
}
