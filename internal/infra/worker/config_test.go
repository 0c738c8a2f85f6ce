package worker

import (
	"log/slog"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.SweepSchedule != "*/2 * * * *" {
		t.Errorf("unexpected sweep schedule: %q", cfg.SweepSchedule)
	}
	if cfg.Timezone != "UTC" {
		t.Errorf("unexpected timezone: %q", cfg.Timezone)
	}
	if cfg.QueueDepth != 128 {
		t.Errorf("unexpected queue depth: %d", cfg.QueueDepth)
	}
	if cfg.QueueWorkers != 4 {
		t.Errorf("unexpected queue workers: %d", cfg.QueueWorkers)
	}
	if cfg.SubmitTimeout != 15*time.Second {
		t.Errorf("unexpected submit timeout: %v", cfg.SubmitTimeout)
	}
	if cfg.SuccessRetention != 90*24*time.Hour {
		t.Errorf("unexpected success retention: %v", cfg.SuccessRetention)
	}
	if cfg.FailedRetention != 30*24*time.Hour {
		t.Errorf("unexpected failed retention: %v", cfg.FailedRetention)
	}
	if cfg.AlertThresholdPct != 25 {
		t.Errorf("unexpected alert threshold: %d", cfg.AlertThresholdPct)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config must validate: %v", err)
	}
}

func TestWorkerConfig_AlertThreshold(t *testing.T) {
	cfg := WorkerConfig{AlertThresholdPct: 25}
	if got := cfg.AlertThreshold(); got != 0.25 {
		t.Errorf("AlertThreshold() = %f, want 0.25", got)
	}
}

func TestWorkerConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *WorkerConfig)
		wantErr bool
	}{
		{
			name:    "defaults are valid",
			mutate:  func(*WorkerConfig) {},
			wantErr: false,
		},
		{
			name:    "invalid sweep cron",
			mutate:  func(cfg *WorkerConfig) { cfg.SweepSchedule = "not a cron" },
			wantErr: true,
		},
		{
			name:    "invalid timezone",
			mutate:  func(cfg *WorkerConfig) { cfg.Timezone = "Mars/Olympus" },
			wantErr: true,
		},
		{
			name:    "queue depth zero",
			mutate:  func(cfg *WorkerConfig) { cfg.QueueDepth = 0 },
			wantErr: true,
		},
		{
			name:    "submit timeout too long",
			mutate:  func(cfg *WorkerConfig) { cfg.SubmitTimeout = time.Hour },
			wantErr: true,
		},
		{
			name:    "privileged health port",
			mutate:  func(cfg *WorkerConfig) { cfg.HealthPort = 80 },
			wantErr: true,
		},
		{
			name:    "alert threshold out of range",
			mutate:  func(cfg *WorkerConfig) { cfg.AlertThresholdPct = 100 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("DELIVERY_SWEEP_CRON", "*/1 * * * *")
	t.Setenv("DELIVERY_QUEUE_WORKERS", "8")
	t.Setenv("DELIVERY_SUBMIT_TIMEOUT", "30s")

	cfg, err := LoadConfigFromEnv(slog.Default(), testMetrics)
	if err != nil {
		t.Fatalf("LoadConfigFromEnv returned error: %v", err)
	}

	if cfg.SweepSchedule != "*/1 * * * *" {
		t.Errorf("sweep schedule not loaded: %q", cfg.SweepSchedule)
	}
	if cfg.QueueWorkers != 8 {
		t.Errorf("queue workers not loaded: %d", cfg.QueueWorkers)
	}
	if cfg.SubmitTimeout != 30*time.Second {
		t.Errorf("submit timeout not loaded: %v", cfg.SubmitTimeout)
	}
}

func TestLoadConfigFromEnv_FailOpen(t *testing.T) {
	t.Setenv("DELIVERY_SWEEP_CRON", "definitely not cron")
	t.Setenv("DELIVERY_QUEUE_DEPTH", "-5")
	t.Setenv("DELIVERY_SUBMIT_TIMEOUT", "10h")

	cfg, err := LoadConfigFromEnv(slog.Default(), testMetrics)
	if err != nil {
		t.Fatalf("fail-open loader must not return an error, got %v", err)
	}

	defaults := DefaultConfig()
	if cfg.SweepSchedule != defaults.SweepSchedule {
		t.Errorf("invalid cron should fall back to default, got %q", cfg.SweepSchedule)
	}
	if cfg.QueueDepth != defaults.QueueDepth {
		t.Errorf("invalid depth should fall back to default, got %d", cfg.QueueDepth)
	}
	if cfg.SubmitTimeout != defaults.SubmitTimeout {
		t.Errorf("out-of-range timeout should fall back to default, got %v", cfg.SubmitTimeout)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("fail-open result must validate: %v", err)
	}
}
