package sensor

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Transform names a value-extraction rule. The set is closed; schema
// validation rejects unknown names at startup.
type Transform string

const (
	// TransformFirstInt takes the first integer run in the string:
	// "38 C" → 38, "100%" → 100. No digits → 0.
	TransformFirstInt Transform = "first_int"

	// TransformBeforeUnit takes the last numeric token before a unit
	// keyword: "More than 1000 days" with keyword "days" → 1000.
	TransformBeforeUnit Transform = "before_unit"

	// TransformDataVolume normalizes a data amount to TB: "500 GB" →
	// 0.5, "2.25 TB" → 2.25, rounded to two decimals.
	TransformDataVolume Transform = "data_volume"

	// TransformText passes the value through, truncated to
	// MaxTextLength characters.
	TransformText Transform = "text"
)

// MaxTextLength caps free-text sensor values; Home Assistant rejects
// state payloads longer than 255 characters.
const MaxTextLength = 255

// gbPerTB converts gigabytes to terabytes.
const gbPerTB = 0.001

var (
	intRE   = regexp.MustCompile(`\d+`)
	floatRE = regexp.MustCompile(`\d+(?:\.\d+)?`)
)

// Valid reports whether t names a known transform.
func (t Transform) Valid() bool {
	switch t {
	case TransformFirstInt, TransformBeforeUnit, TransformDataVolume, TransformText:
		return true
	}
	return false
}

// FirstInt extracts the first integer run from s, or 0 if none.
func FirstInt(s string) int {
	m := intRE.FindString(s)
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return n
}

// BeforeUnit extracts the last integer token before the first
// occurrence of the unit keyword. Falls back to FirstInt when the
// keyword is absent, and 0 when no digits exist at all. The keyword
// match is case-insensitive; all slicing happens on the lowered copy,
// since lowering can change a rune's byte length and an index into the
// copy is not valid in the original.
func BeforeUnit(s, keyword string) int {
	if keyword == "" {
		return FirstInt(s)
	}
	low := strings.ToLower(s)
	idx := strings.Index(low, strings.ToLower(keyword))
	if idx < 0 {
		return FirstInt(s)
	}

	tokens := strings.Fields(low[:idx])
	for i := len(tokens) - 1; i >= 0; i-- {
		if n, err := strconv.Atoi(tokens[i]); err == nil {
			return n
		}
	}
	return FirstInt(low[:idx])
}

// DataVolume normalizes a data amount to terabytes, rounded to two
// decimal places. Values carrying a "GB" marker are converted; "TB"
// values and bare numbers pass through. Unparsable input maps to 0.
func DataVolume(s string) float64 {
	m := floatRE.FindString(s)
	if m == "" {
		return 0
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0
	}

	if strings.Contains(strings.ToUpper(s), "GB") {
		v *= gbPerTB
	}
	return round2(v)
}

// Text passes the value through truncated to MaxTextLength bytes,
// backing off to the previous rune boundary so the payload is never
// invalid UTF-8.
func Text(s string) string {
	if len(s) <= MaxTextLength {
		return s
	}
	cut := MaxTextLength
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
