// Package pipeline wires the extraction, derivation and persistence stages
// of one batch run.
package pipeline

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/caseflag/caseflag/internal/config"
	"github.com/caseflag/caseflag/internal/criteria"
	"github.com/caseflag/caseflag/internal/extract"
	"github.com/caseflag/caseflag/internal/localstate"
	"github.com/caseflag/caseflag/internal/logger"
	"github.com/caseflag/caseflag/internal/metabase"
	"github.com/caseflag/caseflag/internal/sink"
	"github.com/caseflag/caseflag/internal/snapshot"
)

// Run executes a full batch: pull every raw table from the reporting API,
// materialize the derived tables, assemble the criteria rows and persist the
// three output views. The ledger records the run outcome either way.
// forDate and dataDir, when non-empty, override the configured run date
// (dd/mm/yyyy) and data directory.
func Run(forDate, dataDir string) error {
	log := logger.New("caseflag")

	cfg, err := loadConfig(forDate, dataDir, log)
	if err != nil {
		return err
	}

	ctx, stop := newRunContext()
	defer stop()

	return run(ctx, cfg, log, true)
}

// Extract downloads the raw tables for the run date without deriving
// criteria. Useful for re-pulling a partition before an offline derive.
func Extract(forDate, dataDir string) error {
	log := logger.New("caseflag")

	cfg, err := loadConfig(forDate, dataDir, log)
	if err != nil {
		return err
	}

	ctx, stop := newRunContext()
	defer stop()

	runDate, err := cfg.RunDate(time.Now())
	if err != nil {
		return err
	}
	store := snapshot.NewCSVStore(cfg.DataDir)

	ledger, err := localstate.Open(cfg.DataDir)
	if err != nil {
		return err
	}
	defer ledger.Close()

	runID := uuid.NewString()
	if err := ledger.BeginRun(runID, runDate, time.Now()); err != nil {
		return err
	}
	if err := extractRaw(ctx, cfg, store, ledger, runID, runDate, log); err != nil {
		_ = ledger.FinishRun(runID, localstate.RunStatusFailed, time.Now())
		return err
	}
	return ledger.FinishRun(runID, localstate.RunStatusFinished, time.Now())
}

// Derive assembles criteria from an already extracted partition, without
// touching the reporting API.
func Derive(forDate, dataDir string) error {
	log := logger.New("caseflag")

	cfg, err := loadConfig(forDate, dataDir, log)
	if err != nil {
		return err
	}

	ctx, stop := newRunContext()
	defer stop()

	return run(ctx, cfg, log, false)
}

// loadConfig parses the environment and applies the command-line overrides
// on top of it.
func loadConfig(forDate, dataDir string, log zerolog.Logger) (*config.Config, error) {
	cfg, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return nil, err
	}
	if forDate != "" {
		cfg.RunForSpecificDate = forDate
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger, withExtract bool) error {
	runDate, err := cfg.RunDate(time.Now())
	if err != nil {
		return err
	}
	log.Info().
		Str("run_date", runDate.Format("2006-01-02")).
		Bool("extract", withExtract).
		Msg("Batch run starting")

	store := snapshot.NewCSVStore(cfg.DataDir)

	ledger, err := localstate.Open(cfg.DataDir)
	if err != nil {
		return err
	}
	defer ledger.Close()

	runID := uuid.NewString()
	if err := ledger.BeginRun(runID, runDate, time.Now()); err != nil {
		return err
	}

	if err := runStages(ctx, cfg, store, ledger, runID, runDate, log, withExtract); err != nil {
		_ = ledger.FinishRun(runID, localstate.RunStatusFailed, time.Now())
		log.Error().Stack().Err(err).Str("run_id", runID).Msg("Batch run failed")
		return err
	}

	if err := ledger.FinishRun(runID, localstate.RunStatusFinished, time.Now()); err != nil {
		return err
	}
	log.Info().Str("run_id", runID).Msg("Batch run finished")
	return nil
}

func runStages(ctx context.Context, cfg *config.Config, store snapshot.Store, ledger *localstate.Ledger, runID string, runDate time.Time, log zerolog.Logger, withExtract bool) error {
	if withExtract {
		if err := extractRaw(ctx, cfg, store, ledger, runID, runDate, log); err != nil {
			return err
		}
	}

	if err := materializeCompletions(store, ledger, runID, runDate); err != nil {
		return err
	}

	tables, err := loadTables(store, runDate)
	if err != nil {
		return err
	}

	assembler := criteria.NewAssembler(cfg.LookbackDays, cfg.Workers, log)
	res, err := assembler.Assemble(ctx, tables)
	if err != nil {
		return err
	}
	for _, clientErr := range res.Errors {
		log.Warn().Err(clientErr).Msg("client excluded from run")
	}
	log.Info().
		Int("rows", len(res.All)).
		Int("valid_rows", len(res.Valid)).
		Int("excluded_clients", len(res.Errors)).
		Msg("criteria assembled")

	return persist(ctx, cfg, runDate, res)
}

// extractRaw pulls every raw table and records the row counts in the ledger.
func extractRaw(ctx context.Context, cfg *config.Config, store snapshot.Store, ledger *localstate.Ledger, runID string, runDate time.Time, log zerolog.Logger) error {
	source, err := metabase.New(cfg, log)
	if err != nil {
		return err
	}
	counts, err := extract.New(source, store, log).Run(ctx, runDate)
	if err != nil {
		return err
	}
	for entity, rows := range counts {
		if err := ledger.RecordDataset(runID, entity, rows); err != nil {
			return err
		}
	}
	return nil
}

// materializeCompletions expands planned-event recurrences for the run date
// and persists the derived table beside the raw ones.
func materializeCompletions(store snapshot.Store, ledger *localstate.Ledger, runID string, runDate time.Time) error {
	events, err := store.PlannedEvents(runDate)
	if err != nil {
		return fmt.Errorf("load planned events: %w", err)
	}
	reflections, err := store.EventReflections(runDate)
	if err != nil {
		return fmt.Errorf("load event reflections: %w", err)
	}
	clients, err := store.Clients(runDate)
	if err != nil {
		return fmt.Errorf("load clients: %w", err)
	}

	completions, err := extract.MaterializeCompletions(events, reflections, clients, runDate)
	if err != nil {
		return err
	}
	if err := store.WriteCompletions(runDate, completions); err != nil {
		return fmt.Errorf("persist event completions: %w", err)
	}
	return ledger.RecordDataset(runID, snapshot.EntityEventCompletions, len(completions))
}

func loadTables(store snapshot.Store, runDate time.Time) (criteria.Tables, error) {
	var tables criteria.Tables
	var err error

	if tables.Clients, err = store.Clients(runDate); err != nil {
		return tables, fmt.Errorf("load clients: %w", err)
	}
	if tables.Communications, err = store.Communications(runDate); err != nil {
		return tables, fmt.Errorf("load communications: %w", err)
	}
	if tables.TherapySessions, err = store.TherapySessions(runDate); err != nil {
		return tables, fmt.Errorf("load therapy sessions: %w", err)
	}
	if tables.CustomTrackers, err = store.CustomTrackers(runDate); err != nil {
		return tables, fmt.Errorf("load custom trackers: %w", err)
	}
	if tables.DiaryEntries, err = store.DiaryEntries(runDate); err != nil {
		return tables, fmt.Errorf("load diary entries: %w", err)
	}
	if tables.ThoughtRecords, err = store.ThoughtRecords(runDate); err != nil {
		return tables, fmt.Errorf("load thought records: %w", err)
	}
	if tables.Notifications, err = store.Notifications(runDate); err != nil {
		return tables, fmt.Errorf("load notifications: %w", err)
	}
	if tables.EventCompletions, err = store.EventCompletions(runDate); err != nil {
		return tables, fmt.Errorf("load event completions: %w", err)
	}
	if tables.SMQs, err = store.SMQs(runDate); err != nil {
		return tables, fmt.Errorf("load smqs: %w", err)
	}
	return tables, nil
}

// persist writes the three output views through every configured sink.
func persist(ctx context.Context, cfg *config.Config, runDate time.Time, res criteria.Result) error {
	sinks := []sink.Sink{sink.NewCSVSink(filepath.Join(cfg.DataDir, "output"))}

	if cfg.SinkDriver == "postgres" {
		pg, err := sink.OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer pg.Close()
		sinks = append(sinks, pg)
	}

	for _, s := range sinks {
		if err := s.WriteAll(ctx, runDate, res.All); err != nil {
			return err
		}
		if err := s.WriteValid(ctx, runDate, res.Valid); err != nil {
			return err
		}
		if err := s.WriteValidWithPhase(ctx, runDate, res.Valid); err != nil {
			return err
		}
	}
	return nil
}

// newRunContext returns a cancellable context that is cancelled on
// SIGINT/SIGTERM.
func newRunContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
