package logging_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dmmsync/internal/config"
	"dmmsync/internal/logging"
	"dmmsync/internal/services"
)

func readLog(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	return string(content)
}

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("hello from config")

	content := readLog(t, filepath.Join(cfg.Paths.LogDir, logging.LogFileName))
	if !strings.Contains(content, "hello from config") {
		t.Fatalf("expected message in log file, got %q", content)
	}
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")

	logger, err := logging.New(logging.Options{
		Format:           "console",
		Level:            "info",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message without caller", logging.String(logging.FieldComponent, "extract"))

	content := readLog(t, logPath)
	if strings.Contains(content, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
	if !strings.Contains(content, "extract: message without caller") {
		t.Fatalf("expected component prefix, got %q", content)
	}
	if strings.Contains(content, "\x1b[") {
		t.Fatalf("expected no colour codes in file output, got %q", content)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-debug.log")

	logger, err := logging.New(logging.Options{
		Format:           "console",
		Level:            "debug",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message with caller")

	if content := readLog(t, logPath); !strings.Contains(content, ".go:") {
		t.Fatalf("expected caller information in debug logs, got %q", content)
	}
}

func TestJSONLoggerShape(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}, ErrorOutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("json message", logging.String("k", "v"))

	var payload map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(readLog(t, logPath))), &payload); err != nil {
		t.Fatalf("decode json log: %v", err)
	}
	if payload["msg"] != "json message" || payload["level"] != "info" || payload["k"] != "v" {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if _, ok := payload["ts"]; !ok {
		t.Fatalf("expected ts key in %#v", payload)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestStageOverridesApplyPerStage(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "stages.log")
	logger, err := logging.New(logging.Options{
		Format:           "console",
		Level:            "info",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
		StageOverrides:   map[string]string{"match": "debug", "parse": "error"},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.NewStageLogger(logger, "match").Debug("match debug visible")
	logging.NewStageLogger(logger, "parse").Warn("parse warn hidden")
	logging.NewStageLogger(logger, "store").Debug("store debug hidden")
	logger.Info("root info visible")

	content := readLog(t, logPath)
	for _, want := range []string{"match debug visible", "root info visible"} {
		if !strings.Contains(content, want) {
			t.Fatalf("expected %q in %q", want, content)
		}
	}
	for _, unwanted := range []string{"parse warn hidden", "store debug hidden"} {
		if strings.Contains(content, unwanted) {
			t.Fatalf("did not expect %q in %q", unwanted, content)
		}
	}
}

func TestWithContextAddsFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "ctx.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}, ErrorOutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := context.Background()
	ctx = services.WithRunID(ctx, "run-xyz")
	ctx = services.WithStage(ctx, "store")
	ctx = services.WithPage(ctx, "page-1.html")

	logging.WithContext(ctx, logging.NewComponentLogger(logger, "pipeline")).Info("contextual log", logging.Int("batch_size", 3))

	content := readLog(t, logPath)
	for _, want := range []string{"[run-xyz] pipeline/store: contextual log batch_size=3 page=page-1.html"} {
		if !strings.Contains(content, want) {
			t.Fatalf("expected %q in %q", want, content)
		}
	}
	for _, unwanted := range []string{"run_id=", "stage=", "component="} {
		if strings.Contains(content, unwanted) {
			t.Fatalf("prefix field %q repeated as key=value in %q", unwanted, content)
		}
	}
}

func TestConsoleLineLayout(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "layout.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}, ErrorOutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithRunID(context.Background(), "0f1e2d3c-4b5a-6978-8796-a5b4c3d2e1f0")
	local := time.Date(2024, 3, 9, 23, 30, 0, 0, time.FixedZone("UTC-5", -5*3600))
	logging.WithContext(ctx, logger).Warn("page skipped",
		slog.Time("modified", local),
		logging.String("reason", "not a hashlist"),
		logging.Duration("elapsed", 1500*time.Millisecond),
	)

	line := strings.TrimSpace(readLog(t, logPath))
	prefix := strings.SplitN(line, " ", 2)
	if _, err := time.Parse(time.RFC3339, prefix[0]); err != nil || !strings.HasSuffix(prefix[0], "Z") {
		t.Fatalf("line must open with a UTC RFC3339 timestamp, got %q", line)
	}
	for _, want := range []string{
		" WARN  [0f1e2d3c] page skipped",
		"modified=2024-03-10T04:30:00Z",
		`reason="not a hashlist"`,
		"elapsed=1.5s",
	} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
}

func TestJSONTimestampsAreUTC(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json-ts.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}, ErrorOutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("json ts")

	var payload map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(readLog(t, logPath))), &payload); err != nil {
		t.Fatalf("decode json log: %v", err)
	}
	ts, _ := payload["ts"].(string)
	if _, err := time.Parse(time.RFC3339, ts); err != nil || !strings.HasSuffix(ts, "Z") {
		t.Fatalf("ts = %q, want UTC RFC3339", ts)
	}
}

func TestErrorAttrCarriesKind(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "err.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}, ErrorOutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	failure := services.Wrap(services.ErrStorage, "store", "upsert", "", errors.New("disk full"))
	logging.WarnWithContext(logger, "batch dropped", "store_failed", logging.Error(failure))

	content := readLog(t, logPath)
	for _, want := range []string{"error_kind=storage", "event_type=store_failed", "impact="} {
		if !strings.Contains(content, want) {
			t.Fatalf("expected %q in %q", want, content)
		}
	}
}
