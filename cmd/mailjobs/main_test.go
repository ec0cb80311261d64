package main

import (
	"context"
	"log/slog"
	"testing"

	"github.com/nhle/mailjobs/internal/model"
)

func TestNewLogger_Level(t *testing.T) {
	t.Parallel()

	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		logger := newLogger(model.LogConfig{Level: tt.level, Format: "text"})
		if !logger.Enabled(context.Background(), tt.want) {
			t.Errorf("level %q: %v not enabled", tt.level, tt.want)
		}
		if tt.want > slog.LevelDebug && logger.Enabled(context.Background(), tt.want-4) {
			t.Errorf("level %q: %v unexpectedly enabled", tt.level, tt.want-4)
		}
	}
}

func TestSplitRecipients(t *testing.T) {
	t.Parallel()

	got := splitRecipients(model.RecipientTypeCc, " a@example.com, ,b@example.com ")
	if len(got) != 2 {
		t.Fatalf("got %d recipients, want 2", len(got))
	}
	if got[0].Email != "a@example.com" || got[1].Email != "b@example.com" {
		t.Errorf("got %q and %q", got[0].Email, got[1].Email)
	}
	for _, r := range got {
		if r.Type != model.RecipientTypeCc {
			t.Errorf("type = %q, want %q", r.Type, model.RecipientTypeCc)
		}
	}

	if got := splitRecipients(model.RecipientTypeTo, ""); got != nil {
		t.Errorf("empty list gave %v, want nil", got)
	}
}

func TestDirOf(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"/var/lib/mailjobs/db.sqlite": "/var/lib/mailjobs",
		"db.sqlite":                   ".",
		"data/db.sqlite":              "data",
	}
	for in, want := range tests {
		if got := dirOf(in); got != want {
			t.Errorf("dirOf(%q) = %q, want %q", in, got, want)
		}
	}
}
