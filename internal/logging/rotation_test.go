package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func TestRotatorRequiresFilename(t *testing.T) {
	t.Parallel()

	if _, err := NewRotator(nil); err == nil {
		t.Error("NewRotator(nil) did not fail")
	}
	if _, err := NewRotator(&RotationConfig{}); err == nil {
		t.Error("NewRotator without filename did not fail")
	}
}

func TestRotatorWritesAndRotates(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, "overlay.log")

	r, err := NewRotator(&RotationConfig{Filename: file, MaxBackups: 2})
	if err != nil {
		t.Fatalf("NewRotator() error = %v", err)
	}

	if _, err := r.Write([]byte("first line\n")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := r.Rotate(); err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	if _, err := r.Write([]byte("second line\n")); err != nil {
		t.Fatalf("Write() after rotate error = %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if got := readFile(t, file); !strings.Contains(got, "second line") {
		t.Errorf("current file = %q, want the post-rotation line", got)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	var backups int
	for _, e := range entries {
		if e.Name() != "overlay.log" && strings.HasPrefix(e.Name(), "overlay-") {
			backups++
		}
	}
	if backups != 1 {
		t.Errorf("backup count = %d, want 1", backups)
	}
}

func TestRotatorSizeTrigger(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, "tiny.log")

	r, err := NewRotator(&RotationConfig{Filename: file, MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("NewRotator() error = %v", err)
	}
	defer func() { _ = r.Close() }()

	// Two half-megabyte writes cross the configured 1 MB limit.
	chunk := strings.Repeat("x", 512*1024)
	if _, err := r.Write([]byte(chunk)); err != nil {
		t.Fatalf("first Write() error = %v", err)
	}
	if _, err := r.Write([]byte(chunk)); err != nil {
		t.Fatalf("second Write() error = %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) < 2 {
		t.Errorf("entries = %d, want the live file plus one rotated backup", len(entries))
	}
}
