package sentinel

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"
)

// Source obtains the raw HDSentinel XML report. The mode is fixed at
// construction: if externalPath is non-empty the file at that path is
// read directly and the tool is never executed; otherwise the tool is
// run with flags instructing it to write the report to outputPath.
type Source struct {
	toolPath     string
	outputPath   string
	externalPath string
	timeout      time.Duration
	logger       *slog.Logger
}

// NewSource creates a source adapter. externalPath selects external
// mode when non-empty. If logger is nil, slog.Default() is used.
func NewSource(toolPath, outputPath, externalPath string, timeout time.Duration, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		toolPath:     toolPath,
		outputPath:   outputPath,
		externalPath: externalPath,
		timeout:      timeout,
		logger:       logger,
	}
}

// External reports whether the source reads a pre-generated file
// instead of executing HDSentinel.
func (s *Source) External() bool {
	return s.externalPath != ""
}

// Fetch returns the raw XML report. In generate mode it runs the tool
// (bounded by the configured timeout) and then reads the report it
// wrote; in external mode it reads the configured file directly.
func (s *Source) Fetch(ctx context.Context) ([]byte, error) {
	if s.External() {
		return s.readReport(s.externalPath)
	}

	if err := s.generate(ctx); err != nil {
		return nil, err
	}
	return s.readReport(s.outputPath)
}

// generate executes the HDSentinel binary. Any nonzero exit, spawn
// failure, or timeout is reported as ErrToolFailed.
func (s *Source) generate(ctx context.Context) error {
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, s.toolPath, "-solid", "-xml", "-r", s.outputPath)
	s.logger.Debug("running hdsentinel", "tool", s.toolPath, "output", s.outputPath)

	out, err := cmd.CombinedOutput()
	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%w: timed out after %s", ErrToolFailed, s.timeout)
		}
		return fmt.Errorf("%w: %v (output: %s)", ErrToolFailed, err, firstLine(out))
	}
	return nil
}

// readReport reads the XML file, rejecting directories explicitly. A
// directory at the XML path usually means Docker created one for a
// bind mount whose host-side source was missing.
func (s *Source) readReport(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotRegularFile, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	s.logger.Debug("read hdsentinel report", "path", path, "bytes", len(data))
	return data, nil
}

// firstLine truncates subprocess output for log-friendly error text.
func firstLine(out []byte) string {
	for i, b := range out {
		if b == '\n' || b == '\r' {
			return string(out[:i])
		}
	}
	return string(out)
}
