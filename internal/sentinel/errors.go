package sentinel

import "errors"

// Sentinel errors for cycle-scoped failure classification. The poller
// matches these with [errors.Is] to decide log wording; none of them
// are fatal — a failed cycle is skipped and retried next interval.
var (
	// ErrSourceUnavailable wraps failures to obtain the XML report in
	// either mode.
	ErrSourceUnavailable = errors.New("telemetry source unavailable")

	// ErrToolFailed indicates the HDSentinel binary exited nonzero or
	// timed out (generate mode only).
	ErrToolFailed = errors.New("hdsentinel execution failed")

	// ErrNotRegularFile indicates the configured XML path exists but
	// is not a regular file. Docker creates a directory when a bind
	// mount source is missing, so this case gets its own error.
	ErrNotRegularFile = errors.New("xml path is not a regular file")

	// ErrMalformedXML indicates the report could not be parsed.
	ErrMalformedXML = errors.New("malformed hdsentinel xml")
)
