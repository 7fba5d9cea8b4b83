package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func readLog(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	return string(data)
}

func TestLevelString(t *testing.T) {
	tests := []struct {
		level    Level
		wantTag  string
		wantName string
	}{
		{LevelDebug, "L1", "DEBUG"},
		{LevelInfo, "L2", "INFO"},
		{LevelWarn, "L3", "WARN"},
		{LevelError, "L4", "ERROR"},
		{Level(0), "L0", "UNKNOWN"},
		{Level(42), "L42", "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.wantName, func(t *testing.T) {
			if got := tt.level.String(); got != tt.wantTag {
				t.Errorf("Level(%d).String() = %q, want %q", tt.level, got, tt.wantTag)
			}
			if got := tt.level.Name(); got != tt.wantName {
				t.Errorf("Level(%d).Name() = %q, want %q", tt.level, got, tt.wantName)
			}
		})
	}
}

func TestNewStdoutDoesNotPanic(t *testing.T) {
	logger := NewStdout(false)
	logger.SetScript("info")
	logger.SetRun("checkout-v2")
	logger.Info("no file attached")
	logger.Debug("suppressed")
	if err := logger.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestNewWithFile_WritesContext(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "lanes.log")

	logger, err := New(logPath, false)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer logger.Close()

	logger.SetScript("merge")
	logger.Info("lane %s merged", "api")
	logger.SetRun("checkout-v2")
	logger.Info("second entry")

	content := readLog(t, logPath)
	for _, want := range []string{"[L2]", "lane api merged", "[merge]", "merge:checkout-v2"} {
		if !strings.Contains(content, want) {
			t.Errorf("log should contain %q, got: %s", want, content)
		}
	}
}

func TestDebugOnlyInDebugMode(t *testing.T) {
	dir := t.TempDir()

	quietPath := filepath.Join(dir, "quiet.log")
	quiet, err := New(quietPath, false)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	quiet.Debug("debug line")
	quiet.Close()

	if content := readLog(t, quietPath); strings.Contains(content, "debug line") {
		t.Errorf("debug should be suppressed, got: %s", content)
	}

	loudPath := filepath.Join(dir, "loud.log")
	loud, err := New(loudPath, true)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	loud.Debug("debug line")
	loud.Close()

	content := readLog(t, loudPath)
	if !strings.Contains(content, "[L1]") || !strings.Contains(content, "debug line") {
		t.Errorf("debug should be written in debug mode, got: %s", content)
	}
}

func TestWarnErrorLevels(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "lanes.log")
	logger, err := New(logPath, false)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Warn("w")
	logger.Error("e")
	logger.Close()

	content := readLog(t, logPath)
	for _, tag := range []string{"[L3]", "[L4]"} {
		if !strings.Contains(content, tag) {
			t.Errorf("log should contain %s, got: %s", tag, content)
		}
	}
}

func TestTimerStopWithResult(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "lanes.log")
	logger, err := New(logPath, false)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer logger.Close()

	timer := logger.StartTimer("inspect lanes")
	time.Sleep(5 * time.Millisecond)
	if elapsed := timer.Stop(); elapsed < 5*time.Millisecond {
		t.Errorf("elapsed = %v, want >= 5ms", elapsed)
	}
	logger.StartTimer("merge api").StopWithResult(false, "conflict")

	content := readLog(t, logPath)
	for _, want := range []string{"inspect lanes started", "inspect lanes completed", "merge api failed", "conflict"} {
		if !strings.Contains(content, want) {
			t.Errorf("log should contain %q, got: %s", want, content)
		}
	}
}

func TestGlobalLogger(t *testing.T) {
	original := Global()
	defer SetGlobal(original)

	logPath := filepath.Join(t.TempDir(), "global.log")
	logger, err := New(logPath, false)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer logger.Close()

	SetGlobal(logger)
	if Global() != logger {
		t.Fatal("Global() should return the logger passed to SetGlobal")
	}

	Info("global info message")
	Warn("global warn message")

	content := readLog(t, logPath)
	if !strings.Contains(content, "global info message") || !strings.Contains(content, "global warn message") {
		t.Errorf("global helpers should write to the global logger, got: %s", content)
	}
}

func TestNewWithInvalidPath(t *testing.T) {
	if _, err := New("/nonexistent/path/to/lanes.log", false); err == nil {
		t.Error("New() should return error for invalid path")
	}
}
