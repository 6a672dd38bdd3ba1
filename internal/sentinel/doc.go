// Package sentinel obtains and parses Hard Disk Sentinel telemetry.
//
// The source adapter has two modes, selected once at startup: generate
// mode executes the HDSentinel binary and reads the XML report it
// writes, while external mode parses a pre-generated file directly
// (for setups where the report is produced on the host and bind-mounted
// into the container).
//
// The parser walks the report's Hard_Disk_Summary elements and keeps
// every child element as a raw key/value field, so fields added by
// newer HDSentinel releases flow through without code changes. Typing
// and unit handling happen later, in the sensor package.
package sentinel
