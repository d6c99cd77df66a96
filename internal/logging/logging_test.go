package logging

import "testing"

func TestNew_ValidLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		if logger := New(level, "json"); logger == nil {
			t.Errorf("Expected logger for level %q", level)
		}
	}
}

func TestNew_UnknownLevelFallsBack(t *testing.T) {
	logger := New("shouting", "json")
	if logger == nil {
		t.Fatal("Expected logger despite unknown level")
	}
	if logger.Core().Enabled(-1) { // -1 is debug
		t.Error("Fallback level should be info, debug must be disabled")
	}
}

func TestNew_ConsoleFormat(t *testing.T) {
	if logger := New("info", "console"); logger == nil {
		t.Fatal("Expected console logger")
	}
}
