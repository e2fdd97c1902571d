package config

import (
	"os"
	"testing"
	"time"
)

func TestConfigLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"CASEFLAG_SNAPSHOT_BACKEND",
		"CASEFLAG_SINK_DRIVER",
		"CASEFLAG_LOOKBACK_DAYS",
		"CASEFLAG_WORKERS",
	} {
		_ = os.Unsetenv(key)
	}

	cfg, err := New()
	if err != nil {
		t.Fatalf("config load: %v", err)
	}
	if cfg.SnapshotBackend != "csv" || cfg.SinkDriver != "csv" {
		t.Fatalf("unexpected default backends: %+v", cfg)
	}
	if cfg.LookbackDays != 7 {
		t.Fatalf("unexpected default lookback: %d", cfg.LookbackDays)
	}
	if cfg.Workers != 4 {
		t.Fatalf("unexpected default workers: %d", cfg.Workers)
	}
}

func TestConfigLoad_LookbackEnvOverride(t *testing.T) {
	_ = os.Setenv("CASEFLAG_LOOKBACK_DAYS", "14")
	defer func() { _ = os.Unsetenv("CASEFLAG_LOOKBACK_DAYS") }()

	cfg, err := New()
	if err != nil {
		t.Fatalf("config load: %v", err)
	}
	if cfg.LookbackDays != 14 {
		t.Fatalf("lookback env override failed, got %d", cfg.LookbackDays)
	}
}

func TestConfigLoad_PostgresSinkRequiresDSN(t *testing.T) {
	_ = os.Setenv("CASEFLAG_SINK_DRIVER", "postgres")
	defer func() { _ = os.Unsetenv("CASEFLAG_SINK_DRIVER") }()
	_ = os.Unsetenv("CASEFLAG_POSTGRES_DSN")

	if _, err := New(); err == nil {
		t.Fatal("expected error for postgres sink without DSN")
	}
}

func TestRunDate_Default(t *testing.T) {
	cfg := NewForTesting()
	now := time.Date(2023, 10, 5, 15, 4, 5, 0, time.UTC)

	got, err := cfg.RunDate(now)
	if err != nil {
		t.Fatalf("run date: %v", err)
	}
	want := time.Date(2023, 10, 5, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("run date = %v, want %v", got, want)
	}
}

func TestRunDate_Override(t *testing.T) {
	cfg := NewForTesting()
	cfg.RunForSpecificDate = "01/09/2023"
	now := time.Date(2023, 10, 5, 0, 0, 0, 0, time.UTC)

	got, err := cfg.RunDate(now)
	if err != nil {
		t.Fatalf("run date: %v", err)
	}
	want := time.Date(2023, 9, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("run date = %v, want %v", got, want)
	}
}

func TestRunDate_FutureClampsToToday(t *testing.T) {
	cfg := NewForTesting()
	cfg.RunForSpecificDate = "31/12/2099"
	now := time.Date(2023, 10, 5, 12, 0, 0, 0, time.UTC)

	got, err := cfg.RunDate(now)
	if err != nil {
		t.Fatalf("run date: %v", err)
	}
	want := time.Date(2023, 10, 5, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("run date = %v, want %v", got, want)
	}
}

func TestRunDate_Malformed(t *testing.T) {
	cfg := NewForTesting()
	cfg.RunForSpecificDate = "2023-09-01"

	if _, err := cfg.RunDate(time.Now()); err == nil {
		t.Fatal("expected error for malformed run date")
	}
}
