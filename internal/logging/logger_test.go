package logging_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cognivoice/internal/logging"
)

func TestConsoleFormatIncludesComponentAndAttrs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	logger, err := logging.New(logging.Options{Level: "info", Format: "console", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.With(logging.String(logging.FieldComponent, "progress-bus")).Info("subscriber added",
		logging.String(logging.FieldJobID, "job-1"),
		logging.Int("listeners", 2),
	)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	line := string(data)
	if !strings.Contains(line, "INFO progress-bus: subscriber added") {
		t.Fatalf("unexpected line: %q", line)
	}
	if !strings.Contains(line, "job_id=job-1") || !strings.Contains(line, "listeners=2") {
		t.Fatalf("attrs missing from line: %q", line)
	}
}

func TestConsoleLevelFiltering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	logger, err := logging.New(logging.Options{Level: "warn", Format: "console", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Info("suppressed")
	logger.Warn("kept")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if strings.Contains(string(data), "suppressed") {
		t.Fatalf("info record leaked past warn level: %q", data)
	}
	if !strings.Contains(string(data), "kept") {
		t.Fatalf("warn record missing: %q", data)
	}
}

func TestJSONFormatRenamesCoreKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	logger, err := logging.New(logging.Options{Level: "info", Format: "json", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Info("job accepted", logging.String(logging.FieldJobID, "job-1"))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(data, &record); err != nil {
		t.Fatalf("decode json record: %v", err)
	}
	if record["msg"] != "job accepted" {
		t.Fatalf("msg = %v", record["msg"])
	}
	if record["level"] != "info" {
		t.Fatalf("level = %v", record["level"])
	}
	if _, ok := record["ts"]; !ok {
		t.Fatalf("ts missing: %v", record)
	}
	if record["job_id"] != "job-1" {
		t.Fatalf("job_id = %v", record["job_id"])
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "yaml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}
