package sentinel

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSource_ExternalMode_ReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.xml")
	if err := os.WriteFile(path, []byte("<Hard_Disk_Sentinel/>"), 0644); err != nil {
		t.Fatal(err)
	}

	s := NewSource("/nonexistent/hdsentinel", "", path, time.Second, discardLogger())
	if !s.External() {
		t.Fatal("External() = false, want true")
	}

	data, err := s.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if string(data) != "<Hard_Disk_Sentinel/>" {
		t.Errorf("Fetch() = %q", data)
	}
}

// Docker creates a directory when a bind mount source is missing on
// the host; the adapter must report that distinctly, before parsing.
func TestSource_ExternalMode_DirectoryPath(t *testing.T) {
	dir := t.TempDir()

	s := NewSource("", "", dir, time.Second, discardLogger())
	_, err := s.Fetch(context.Background())
	if !errors.Is(err, ErrNotRegularFile) {
		t.Errorf("error = %v, want ErrNotRegularFile", err)
	}
}

func TestSource_ExternalMode_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.xml")

	s := NewSource("", "", path, time.Second, discardLogger())
	_, err := s.Fetch(context.Background())
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("error = %v, want ErrSourceUnavailable", err)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("error = %v, want fs.ErrNotExist in chain", err)
	}
}

// writeTool creates an executable shell script standing in for the
// HDSentinel binary. The real invocation is `hdsentinel -solid -xml -r
// <out>`, so "$4" is the report path.
func writeTool(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-hdsentinel")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSource_GenerateMode_RunsTool(t *testing.T) {
	tool := writeTool(t, `printf '<Hard_Disk_Sentinel/>' > "$4"`)
	out := filepath.Join(t.TempDir(), "report.xml")

	s := NewSource(tool, out, "", 5*time.Second, discardLogger())
	if s.External() {
		t.Fatal("External() = true, want false")
	}

	data, err := s.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if string(data) != "<Hard_Disk_Sentinel/>" {
		t.Errorf("Fetch() = %q", data)
	}
}

func TestSource_GenerateMode_NonzeroExit(t *testing.T) {
	tool := writeTool(t, "exit 3")
	out := filepath.Join(t.TempDir(), "report.xml")

	s := NewSource(tool, out, "", 5*time.Second, discardLogger())
	_, err := s.Fetch(context.Background())
	if !errors.Is(err, ErrToolFailed) {
		t.Errorf("error = %v, want ErrToolFailed", err)
	}
}

func TestSource_GenerateMode_Timeout(t *testing.T) {
	tool := writeTool(t, "sleep 5")
	out := filepath.Join(t.TempDir(), "report.xml")

	s := NewSource(tool, out, "", 100*time.Millisecond, discardLogger())
	_, err := s.Fetch(context.Background())
	if !errors.Is(err, ErrToolFailed) {
		t.Errorf("error = %v, want ErrToolFailed", err)
	}
}

func TestSource_GenerateMode_ToolMissing(t *testing.T) {
	out := filepath.Join(t.TempDir(), "report.xml")

	s := NewSource("/nonexistent/hdsentinel", out, "", time.Second, discardLogger())
	_, err := s.Fetch(context.Background())
	if !errors.Is(err, ErrToolFailed) {
		t.Errorf("error = %v, want ErrToolFailed", err)
	}
}
