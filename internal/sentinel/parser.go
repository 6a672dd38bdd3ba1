package sentinel

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// summaryElement is the per-disk element name in the HDSentinel report.
const summaryElement = "Hard_Disk_Summary"

// Field keys (lower-cased element names) with special meaning for
// device identity. Everything else is carried through untyped.
const (
	KeySerial   = "hard_disk_serial_number"
	KeyModel    = "hard_disk_model_id"
	KeyFirmware = "firmware_revision"
	KeyDevice   = "hard_disk_device"
)

// RawField is one child element of a disk summary: the lower-cased
// element name and its trimmed text content.
type RawField struct {
	Key   string
	Value string
}

// DiskRecord is the parsed telemetry of one physical disk for one poll
// cycle. Fields preserve document order. Records are built by Parse
// and never mutated afterwards.
type DiskRecord struct {
	Serial string
	Alias  string
	Fields []RawField
}

// Field returns the value for a key and whether it was present.
func (r *DiskRecord) Field(key string) (string, bool) {
	for _, f := range r.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// Model returns the disk model ID, or "Unknown" if absent.
func (r *DiskRecord) Model() string {
	if v, ok := r.Field(KeyModel); ok && v != "" {
		return v
	}
	return "Unknown"
}

// Firmware returns the firmware revision, or "Unknown" if absent.
func (r *DiskRecord) Firmware() string {
	if v, ok := r.Field(KeyFirmware); ok && v != "" {
		return v
	}
	return "Unknown"
}

// Parse extracts one DiskRecord per Hard_Disk_Summary element. Child
// elements become RawFields keyed by their lower-cased element name;
// unknown elements are preserved rather than rejected so schema
// additions upstream do not break parsing. Disks without a serial
// number are skipped with a warning. Returns ErrMalformedXML if the
// document cannot be tokenized.
func Parse(data []byte, logger *slog.Logger) ([]DiskRecord, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dec := xml.NewDecoder(bytes.NewReader(data))
	var records []DiskRecord

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedXML, err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != summaryElement {
			continue
		}

		rec, err := parseSummary(dec)
		if err != nil {
			return nil, err
		}

		if rec.Serial == "" {
			logger.Warn("disk without serial number, skipping")
			continue
		}

		model, _ := rec.Field(KeyModel)
		rec.Alias = BuildAlias(model, rec.Serial)
		records = append(records, rec)
	}

	logger.Debug("parsed hdsentinel report", "disks", len(records))
	return records, nil
}

// parseSummary consumes tokens until the summary's end element,
// collecting each child element's text content.
func parseSummary(dec *xml.Decoder) (DiskRecord, error) {
	var rec DiskRecord
	depth := 0
	var key string
	var text strings.Builder

	for {
		tok, err := dec.Token()
		if err != nil {
			return rec, fmt.Errorf("%w: %v", ErrMalformedXML, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 1 {
				key = strings.ToLower(t.Name.Local)
				text.Reset()
			}
		case xml.CharData:
			if depth == 1 {
				text.Write(t)
			}
		case xml.EndElement:
			if depth == 0 {
				// End of the summary element itself.
				return rec, nil
			}
			if depth == 1 {
				rec.Fields = append(rec.Fields, RawField{
					Key:   key,
					Value: cleanValue(text.String()),
				})
				if key == KeySerial {
					rec.Serial = cleanValue(text.String())
				}
			}
			depth--
		}
	}
}

// cleanValue trims whitespace and strips embedded CR/LF. HDSentinel
// reports generated on Windows carry CRLF line endings inside values.
func cleanValue(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	return strings.TrimSpace(s)
}
