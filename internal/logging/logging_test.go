package logging

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{Level: "chatty"}); err == nil {
		t.Error("New() accepted an invalid level")
	}
	if _, err := New(Config{Level: "info", Format: "xml"}); err == nil {
		t.Error("New() accepted an invalid format")
	}
}

func TestNewDefaultsToStderrText(t *testing.T) {
	t.Parallel()

	logger, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = logger.Close() }()

	if logger.GetLevel() != logrus.InfoLevel {
		t.Errorf("level = %v, want info", logger.GetLevel())
	}
}

func TestComponentFieldAppearsInOutput(t *testing.T) {
	t.Parallel()

	logger, err := New(Config{Level: "debug", Format: "json"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	var buf bytes.Buffer
	logger.SetOutput(&buf)

	logger.Component("materializer").WithField("path", "finance").Info("materialized")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["component"] != "materializer" {
		t.Errorf("component = %v, want materializer", entry["component"])
	}
	if entry["path"] != "finance" {
		t.Errorf("path = %v, want finance", entry["path"])
	}
}

func TestNewWithFileWritesThroughRotator(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "blueprintfs.log")
	logger, err := New(Config{Level: "info", Format: "text", File: file})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.Info("mounted")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data := readFile(t, file)
	if !strings.Contains(data, "mounted") {
		t.Errorf("log file %q does not contain the message", data)
	}
}
