package logging_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"allsky/internal/config"
	"allsky/internal/logging"
)

func TestNewDaemonTeesJSONFile(t *testing.T) {
	cfg := config.Default()
	runLog := filepath.Join(t.TempDir(), "logs", "allsky-run.log")

	logger, err := logging.NewDaemon(&cfg, runLog, "", false)
	if err != nil {
		t.Fatalf("NewDaemon returned error: %v", err)
	}
	logger.Info("daemon started", logging.String("pid", "42"))
	logger.Debug("below configured level")

	data, err := os.ReadFile(runLog)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &record); err != nil {
		t.Fatalf("log file should hold JSON lines: %v (%q)", err, data)
	}
	if record["msg"] != "daemon started" {
		t.Fatalf("unexpected msg: %v", record["msg"])
	}
	if record["level"] != "info" {
		t.Fatalf("unexpected level: %v", record["level"])
	}
}

func TestNewDaemonLevelOverride(t *testing.T) {
	cfg := config.Default()
	runLog := filepath.Join(t.TempDir(), "allsky-run.log")

	logger, err := logging.NewDaemon(&cfg, runLog, "error", false)
	if err != nil {
		t.Fatalf("NewDaemon returned error: %v", err)
	}
	logger.Warn("suppressed")
	logger.Error("kept")

	data, err := os.ReadFile(runLog)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(data), "suppressed") || !strings.Contains(string(data), "kept") {
		t.Fatalf("unexpected run log contents: %q", data)
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

	logger.Info("message without caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(content), ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-debug.log")
	logger, err := logging.New(logging.Options{
		Format:      "console",
		Level:       "debug",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message with caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), ".go:") {
		t.Fatalf("expected caller information in debug logs, got %q", content)
	}
}

func TestConsoleHeaderCarriesComponentAndSubject(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	component := logging.NewComponentLogger(logger, "supervisor")
	component.Info("Starting worker", logging.Worker("Image002"), logging.TaskID(7), logging.Generation(2))
	component.Info("Starting worker", logging.Worker("Image002"), logging.TaskID(7), logging.Generation(2))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	text := string(content)
	if !strings.Contains(text, "[supervisor] Image002 · Task #7 - Starting worker") {
		t.Fatalf("unexpected header: %q", text)
	}
	if strings.Count(text, "Gen: 2") != 1 {
		t.Fatalf("expected repeated info field to print once, got %q", text)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewInvalidLevelDefaultsToInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "level.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "invalid", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Debug("hidden")
	logger.Info("visible")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(content), "hidden") || !strings.Contains(string(content), "visible") {
		t.Fatalf("expected info level filtering, got %q", content)
	}
}

func TestWarnWithContextFillsMissingKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logging.WarnWithContext(logger, "Upload retry", "upload_retry",
		logging.String(logging.FieldImpact, "frame uploaded late"),
	)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record[logging.FieldEventType] != "upload_retry" {
		t.Fatalf("event_type = %v", record[logging.FieldEventType])
	}
	if record[logging.FieldErrorHint] != "check logs for details" {
		t.Fatalf("error_hint = %v", record[logging.FieldErrorHint])
	}
	if record[logging.FieldImpact] != "frame uploaded late" {
		t.Fatalf("caller impact overwritten: %v", record[logging.FieldImpact])
	}
}

func TestJSONRunLogWritesDurationsInSeconds(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "run.json")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("Exposure finished", logging.Role("capture"), logging.Duration("exposure", 1500*time.Millisecond))

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &record); err != nil {
		t.Fatalf("decode record: %v (%q)", err, data)
	}
	if record["exposure"] != 1.5 {
		t.Fatalf("exposure = %v, want 1.5", record["exposure"])
	}
	if record[logging.FieldRole] != "capture" {
		t.Fatalf("role = %v", record[logging.FieldRole])
	}
	ts, ok := record["time"].(string)
	if !ok {
		t.Fatalf("time = %v", record["time"])
	}
	if _, err := time.Parse(time.RFC3339Nano, ts); err != nil || !strings.HasSuffix(ts, "Z") {
		t.Fatalf("time %q is not UTC RFC3339: %v", ts, err)
	}
}

func TestConsoleHeaderFallsBackToRole(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-role.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.NewComponentLogger(logger, "supervisor").Error("Upload worker exception: boom",
		logging.Role("upload"), logging.Generation(3))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	text := string(content)
	if !strings.Contains(text, "[supervisor] upload - Upload worker exception: boom") {
		t.Fatalf("unexpected header: %q", text)
	}
	if !strings.Contains(text, "Gen: 3") || strings.Contains(text, "Role:") {
		t.Fatalf("unexpected fields: %q", text)
	}
}

func TestTeeHandlerDuplicatesRecords(t *testing.T) {
	var infoBuf, debugBuf bytes.Buffer
	h := logging.TeeHandler(
		nil,
		slog.NewJSONHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewJSONHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	)
	logger := slog.New(h).With("role", "capture")
	logger.Debug("debug only")
	logger.Info("both")

	if strings.Contains(infoBuf.String(), "debug only") {
		t.Fatalf("info handler received debug record: %q", infoBuf.String())
	}
	if !strings.Contains(infoBuf.String(), "both") || !strings.Contains(debugBuf.String(), "both") {
		t.Fatal("expected both handlers to receive info record")
	}
	if !strings.Contains(debugBuf.String(), `"role":"capture"`) {
		t.Fatalf("expected WithAttrs to reach every handler: %q", debugBuf.String())
	}
	if _, ok := logging.TeeHandler(nil, nil).(logging.NoopHandler); !ok {
		t.Fatal("expected noop handler when no handlers are live")
	}
}

func TestCleanupOldLogsKeepsActiveFile(t *testing.T) {
	dir := t.TempDir()
	oldLog := filepath.Join(dir, "allsky-old.log")
	active := filepath.Join(dir, logging.LogFileName)
	for _, path := range []string{oldLog, active} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
		past := time.Now().AddDate(0, 0, -10)
		if err := os.Chtimes(path, past, past); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	logging.CleanupOldLogs(logging.NewNop(), 3, logging.RetentionTarget{Dir: dir, Pattern: "*.log", Exclude: []string{active}})

	if _, err := os.Stat(oldLog); !os.IsNotExist(err) {
		t.Fatalf("expected old log removed, stat err=%v", err)
	}
	if _, err := os.Stat(active); err != nil {
		t.Fatalf("expected active log kept: %v", err)
	}
}
