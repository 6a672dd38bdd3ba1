package sentinel

import (
	"regexp"
	"strings"
)

var (
	upperRunRE = regexp.MustCompile(`([A-Z]+)`)
	titleRE    = regexp.MustCompile(`([A-Z][a-z]+)`)
	unsafeRE   = regexp.MustCompile(`[^a-zA-Z0-9]+`)
)

// ToSnakeCase converts a model string to snake_case, splitting on
// capital runs and dashes: "WDC WD10EZEX-00WN4A0" becomes
// "wdc_wd10_ezex_00_wn4_a0".
func ToSnakeCase(name string) string {
	s := strings.ReplaceAll(name, "-", " ")
	s = upperRunRE.ReplaceAllString(s, " $1")
	s = titleRE.ReplaceAllString(s, " $1")
	return strings.ToLower(strings.Join(strings.Fields(s), "_"))
}

// ToSafeID collapses every non-alphanumeric run to a single underscore
// and lower-cases the result. Used for serial numbers, which may carry
// dashes or other separators.
func ToSafeID(value string) string {
	return strings.ToLower(strings.Trim(unsafeRE.ReplaceAllString(value, "_"), "_"))
}

// BuildAlias derives the stable per-disk alias used in MQTT topics and
// unique IDs. Combining model and serial keeps aliases unique when the
// same model appears more than once in a machine.
func BuildAlias(model, serial string) string {
	if model == "" {
		model = "unknown"
	}
	suffix := "unknown"
	if serial != "" {
		suffix = ToSafeID(serial)
	}
	return ToSnakeCase(model) + "_" + suffix
}
