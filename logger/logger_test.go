package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestWithComponent(t *testing.T) {
	log := Logger()
	entry := log.WithComponent("test")
	if v, ok := entry.Entry.Data["component"]; !ok || v != "test" {
		t.Fatalf("component field missing: %v", entry.Entry.Data)
	}
}

func TestConfigureInvalidLevel(t *testing.T) {
	// Ensure environment variables do not override the provided level
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("invalid", "json", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}

func TestConfigureInvalidFormat(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("info", "xml", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid format")
	}
}

func TestConfigureLeavesLoggerUntouchedOnError(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	log.SetLevel(logrus.WarnLevel)
	if err := log.Configure("debug", "xml", "stdout", 0); err == nil {
		t.Fatal("expected error for invalid format")
	}
	if log.GetLevel() != logrus.WarnLevel {
		t.Fatalf("level changed to %v", log.GetLevel())
	}
}

func TestConfigureFileOutput(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	path := filepath.Join(t.TempDir(), "cryptolens.log")
	log := Logger()
	if err := log.Configure("debug", "text", path, 0); err != nil {
		t.Fatalf("configure: %v", err)
	}
	log.WithComponent("pipeline").Debug("written to file")

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(b), "written to file") || !strings.Contains(string(b), "component=pipeline") {
		t.Fatalf("unexpected log file contents %q", b)
	}
}

func TestCallerPointsAtCallSite(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	ResetCounts()
	var buf bytes.Buffer
	log := Logger()
	log.SetOutput(&buf)

	log.WithComponent("reconciler").WithFields(Fields{"coin": "pepe"}).Warn("mismatch")
	LogDataFlowEntry(log.WithComponent("pipeline"), "bybit", "reconciler", 3, "instrument")
	log.LogMetric("pipeline", "coins_exported", 3, "gauge", nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %q", len(lines), buf.String())
	}
	for _, line := range lines {
		var got map[string]interface{}
		if err := json.Unmarshal([]byte(line), &got); err != nil {
			t.Fatalf("not json: %v (%q)", err, line)
		}
		file, _ := got["file"].(string)
		if !strings.HasPrefix(file, "logger_test.go:") {
			t.Errorf("caller = %q, want a logger_test.go frame (%q)", file, got["message"])
		}
	}
}

func TestWarnAndErrorAreCountedPerComponent(t *testing.T) {
	ResetCounts()
	log := Logger()
	log.SetOutput(&bytes.Buffer{})

	log.WithComponent("reconciler").Warn("platform mismatch")
	log.WithComponent("reconciler").Warn("primary platform mismatch")
	log.WithComponent("coingecko_reader").Error("fetch failed")

	warns, errs := ComponentCounts("reconciler")
	if warns != 2 || errs != 0 {
		t.Fatalf("reconciler counts = %d/%d, want 2/0", warns, errs)
	}
	warns, errs = ComponentCounts("coingecko_reader")
	if warns != 0 || errs != 1 {
		t.Fatalf("coingecko_reader counts = %d/%d, want 0/1", warns, errs)
	}
}

func TestLogRunReportIncludesTotals(t *testing.T) {
	ResetCounts()
	var buf bytes.Buffer
	log := Logger()
	log.SetOutput(&buf)

	log.WithComponent("reconciler").Warn("mismatch")
	buf.Reset()

	LogRunReport(context.Background(), log, Fields{"coins_exported": 3})

	line := strings.TrimSpace(buf.String())
	var got map[string]interface{}
	if err := json.Unmarshal([]byte(line), &got); err != nil {
		t.Fatalf("report is not json: %v (%q)", err, line)
	}
	if got["message"] != "run report" {
		t.Fatalf("unexpected message: %v", got["message"])
	}
	if got["warnings"] != float64(1) {
		t.Fatalf("warnings = %v, want 1", got["warnings"])
	}
	if got["coins_exported"] != float64(3) {
		t.Fatalf("coins_exported = %v, want 3", got["coins_exported"])
	}
}
