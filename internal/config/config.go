package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Environment represents different deployment environments.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// runDateLayout is the dd/mm/yyyy format the RUN_FOR_SPECIFIC_DATE override
// has always used operationally.
const runDateLayout = "02/01/2006"

// Config holds the configuration for the criteria pipeline.
// Environment variables are parsed from the CASEFLAG_ prefix.
type Config struct {
	Environment Environment `envconfig:"ENVIRONMENT" default:"development"`

	// Reporting API (event store)
	MetabaseURL            string `envconfig:"METABASE_URL" default:""`
	ServiceAccount         string `envconfig:"METABASE_SERVICE_ACCOUNT" default:""`
	ServiceAccountPassword string `envconfig:"METABASE_SERVICE_ACCOUNT_PASSWORD" default:""`

	// SecretKey is the Fernet key used to decrypt the service-account
	// credentials above.
	SecretKey string `envconfig:"SECRET_KEY" default:""`

	// RunForSpecificDate overrides the run date (dd/mm/yyyy). Empty means
	// today. Future dates clamp to today.
	RunForSpecificDate string `envconfig:"RUN_FOR_SPECIFIC_DATE" default:""`

	// DataDir roots the local layout: raw snapshots under
	// datasources/<date>/, criteria views under output/<date>/, and the
	// run ledger database.
	DataDir string `envconfig:"DATA_DIR" default:"./data"`

	// SnapshotBackend selects the snapshot store adapter.
	SnapshotBackend string `envconfig:"SNAPSHOT_BACKEND" default:"csv"`

	// SinkDriver selects an additional criteria sink. The CSV views are
	// always written under DataDir; "postgres" mirrors them into the
	// reporting database as well.
	SinkDriver  string `envconfig:"SINK_DRIVER" default:"csv"`
	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`

	// LookbackDays is the width W of the snapshot window expanded from each
	// qualifying treatment call.
	LookbackDays int `envconfig:"LOOKBACK_DAYS" default:"7"`

	// Workers bounds the per-client worker pool in the assembler.
	Workers int `envconfig:"WORKERS" default:"4"`
}

// ResolveDefaults validates enumerated fields and numeric bounds.
func (c *Config) ResolveDefaults() error {
	switch c.SnapshotBackend {
	case "csv":
	default:
		return fmt.Errorf("unsupported CASEFLAG_SNAPSHOT_BACKEND: %s", c.SnapshotBackend)
	}

	switch c.SinkDriver {
	case "csv":
	case "postgres":
		if c.PostgresDSN == "" {
			return fmt.Errorf("CASEFLAG_POSTGRES_DSN required when sink driver is postgres")
		}
	default:
		return fmt.Errorf("unsupported CASEFLAG_SINK_DRIVER: %s", c.SinkDriver)
	}

	if c.LookbackDays < 1 {
		return fmt.Errorf("CASEFLAG_LOOKBACK_DAYS must be >= 1, got %d", c.LookbackDays)
	}
	if c.Workers < 1 {
		return fmt.Errorf("CASEFLAG_WORKERS must be >= 1, got %d", c.Workers)
	}
	return nil
}

// RunDate resolves the date the pipeline runs for. A configured override is
// parsed as dd/mm/yyyy; dates in the future clamp to today's date.
func (c *Config) RunDate(now time.Time) (time.Time, error) {
	today := truncateToDate(now)

	if c.RunForSpecificDate == "" {
		return today, nil
	}

	selected, err := time.Parse(runDateLayout, c.RunForSpecificDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid CASEFLAG_RUN_FOR_SPECIFIC_DATE %q: %w", c.RunForSpecificDate, err)
	}
	if selected.After(today) {
		return today, nil
	}
	return selected, nil
}

func truncateToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// New creates a new Config by parsing environment variables.
// Example: CASEFLAG_METABASE_URL, CASEFLAG_RUN_FOR_SPECIFIC_DATE.
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("CASEFLAG", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Info().
		Str("environment", string(cfg.Environment)).
		Str("data_dir", cfg.DataDir).
		Str("snapshot_backend", cfg.SnapshotBackend).
		Str("sink_driver", cfg.SinkDriver).
		Int("lookback_days", cfg.LookbackDays).
		Int("workers", cfg.Workers).
		Str("run_for_specific_date", cfg.RunForSpecificDate).
		Msg("Configuration loaded")

	return &cfg, nil
}

// NewForTesting creates a config specifically for testing.
func NewForTesting() *Config {
	return &Config{
		Environment:     EnvTesting,
		MetabaseURL:     "http://localhost:3000",
		DataDir:         "./testdata",
		SnapshotBackend: "csv",
		SinkDriver:      "csv",
		LookbackDays:    7,
		Workers:         1,
	}
}

// IsTesting returns true if the environment is set to testing.
func (c *Config) IsTesting() bool { return c.Environment == EnvTesting }

// IsProduction returns true if the environment is set to production.
func (c *Config) IsProduction() bool { return c.Environment == EnvProduction }
