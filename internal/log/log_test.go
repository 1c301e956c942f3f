package log

import (
	"context"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"loud", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestInit_ChangesLevelAfterFirstUse(t *testing.T) {
	l := L()
	Init("error")
	if l.Enabled(context.Background(), slog.LevelWarn) {
		t.Error("warn still enabled after Init(error)")
	}
	Init("debug")
	if !L().Enabled(context.Background(), slog.LevelDebug) || Level() != slog.LevelDebug {
		t.Error("debug not enabled after Init(debug)")
	}
	if L() != l {
		t.Error("Init replaced the logger")
	}
	Init("info")
}

func TestComponent(t *testing.T) {
	if Component(nil, "x") == nil {
		t.Fatal("nil base should fall back to the global logger")
	}
}
