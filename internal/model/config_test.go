package model

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Outbound.Provider != OutboundSMTP {
		t.Errorf("provider = %q, want %q", cfg.Outbound.Provider, OutboundSMTP)
	}
	if cfg.Jobs.TickSec != 300 {
		t.Errorf("tick_sec = %d, want 300", cfg.Jobs.TickSec)
	}
	if cfg.Jobs.MaintenanceWindowStart != -1 {
		t.Errorf("maintenance_window_start = %d, want -1", cfg.Jobs.MaintenanceWindowStart)
	}
	if cfg.Classifier.MinMessages != 30 {
		t.Errorf("min_messages = %d, want 30", cfg.Classifier.MinMessages)
	}
	if cfg.Keyring.Service != "mailjobs" {
		t.Errorf("keyring.service = %q, want %q", cfg.Keyring.Service, "mailjobs")
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("MAILJOBS_OUTBOUND_PROVIDER", "mbox")
	t.Setenv("MAILJOBS_HOSTNAME", "mail.example.org")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Outbound.Provider != OutboundMbox {
		t.Errorf("provider = %q, want %q", cfg.Outbound.Provider, OutboundMbox)
	}
	if cfg.Hostname != "mail.example.org" {
		t.Errorf("hostname = %q, want %q", cfg.Hostname, "mail.example.org")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     AppConfig
		wantErr string
	}{
		{
			name:    "unknown provider",
			cfg:     AppConfig{Outbound: OutboundConfig{Provider: "pigeon"}},
			wantErr: "unknown outbound provider",
		},
		{
			name:    "ses without region",
			cfg:     AppConfig{Outbound: OutboundConfig{Provider: OutboundSES}},
			wantErr: "region is required",
		},
		{
			name: "window out of range",
			cfg: AppConfig{
				Outbound: OutboundConfig{Provider: OutboundSMTP},
				Jobs:     JobsConfig{MaintenanceWindowStart: 24},
			},
			wantErr: "must be below 24",
		},
		{
			name: "ses with region",
			cfg: AppConfig{Outbound: OutboundConfig{
				Provider: OutboundSES,
				SES:      SESConfig{Region: "eu-west-1"},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("got error %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_ClampsJobSettings(t *testing.T) {
	t.Parallel()

	cfg := AppConfig{Outbound: OutboundConfig{Provider: OutboundMbox}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Jobs.TickSec != 300 {
		t.Errorf("tick_sec = %d, want 300", cfg.Jobs.TickSec)
	}
	if cfg.Jobs.MaxConcurrent != 1 {
		t.Errorf("max_concurrent = %d, want 1", cfg.Jobs.MaxConcurrent)
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	want := &AppConfig{
		Database:   DatabaseConfig{Path: "/var/lib/mailjobs/db.sqlite"},
		Log:        LogConfig{Level: "debug", Format: "text"},
		Jobs:       JobsConfig{TickSec: 60, MaxConcurrent: 2, MaintenanceWindowStart: 2},
		Classifier: ClassifierConfig{MinMessages: 10, MaxMessages: 100, LookbackDays: 30},
		Outbound:   OutboundConfig{Provider: OutboundMbox, MboxPath: "/tmp/out.mbox"},
		Keyring:    KeyringConfig{Service: "mailjobs-test", FileDir: "/tmp/keys"},
		Hostname:   "mx.example.net",
	}
	if err := SaveConfig(path, want); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	got, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if *got != *want {
		t.Errorf("got %+v, want %+v", *got, *want)
	}
}

func TestLoadConfig_KeyringPasswordFromEnv(t *testing.T) {
	t.Setenv("MAILJOBS_KEYRING_PASSWORD", "s3cret")

	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Keyring.FilePassword != "s3cret" {
		t.Errorf("file password = %q, want %q", cfg.Keyring.FilePassword, "s3cret")
	}

	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading saved config: %v", err)
	}
	if strings.Contains(string(raw), "s3cret") {
		t.Error("saved config contains the keyring password")
	}
}
