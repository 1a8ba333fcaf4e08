package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"image-shrink-go/internal/config"

	"github.com/sirupsen/logrus"
)

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "shrink.log")
	log, err := New(Options{Level: "debug", JSON: true, File: path, Rotate: Rotation{MaxSizeMB: 1}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if log.GetLevel() != logrus.DebugLevel {
		t.Errorf("level = %v, want debug", log.GetLevel())
	}

	WithFileOperation(log, "a.jpg", "compress").Info("done")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, data)
	}
	if entry["message"] != "done" || entry["file"] != "a.jpg" || entry["operation"] != "compress" {
		t.Errorf("entry = %v", entry)
	}
}

func TestNewTextToConsole(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Options{Level: "info", Console: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	WithOperation(log, "startup").Debug("hidden")
	WithOperation(log, "startup").Info("ready")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug entry written at info level: %s", out)
	}
	if !strings.Contains(out, "msg=ready") || !strings.Contains(out, "operation=startup") {
		t.Errorf("console output = %q", out)
	}
}

func TestNewRejectsBadLevel(t *testing.T) {
	if _, err := New(Options{Level: "loud"}); err == nil {
		t.Fatal("New() should reject an unknown level")
	}
}

func TestFromConfig(t *testing.T) {
	c := config.DefaultConfig().Logging
	c.FilePath = "shrink.log"

	opts := FromConfig(c, false, false)
	if opts.Level != "info" || opts.JSON || opts.Console != os.Stderr || opts.File != "shrink.log" {
		t.Errorf("FromConfig() = %+v", opts)
	}
	if opts.Rotate.MaxSizeMB != 10 || opts.Rotate.MaxBackups != 3 || opts.Rotate.MaxAgeDays != 30 || !opts.Rotate.Compress {
		t.Errorf("Rotate = %+v", opts.Rotate)
	}

	if opts := FromConfig(c, true, false); opts.Level != "debug" {
		t.Errorf("verbose level = %s, want debug", opts.Level)
	}
	if opts := FromConfig(c, true, true); opts.Level != "error" || opts.Console != nil {
		t.Errorf("quiet options = %+v", opts)
	}

	c.Format = "json"
	if opts := FromConfig(c, false, false); !opts.JSON {
		t.Error("json format not mapped")
	}
}
