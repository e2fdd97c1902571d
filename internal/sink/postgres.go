package sink

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/caseflag/caseflag/internal/model"
)

// PostgresSink mirrors the criteria views into a shared reporting database.
// Every view lands in one table keyed by (run_date, view, case_id); the
// phase column is stored for every view and projected out by readers that
// do not want it.
type PostgresSink struct {
	db *sql.DB
}

const criteriaSchema = `
CREATE TABLE IF NOT EXISTS criteria_rows (
    run_date                     DATE NOT NULL,
    view                         TEXT NOT NULL,
    case_id                      TEXT NOT NULL,
    client_id                    TEXT NOT NULL,
    treatment_phase              INTEGER NOT NULL,
    days_since_last_contact_call INTEGER NOT NULL,
    days_since_last_contact_chat INTEGER NOT NULL,
    days_since_last_registration INTEGER NOT NULL,
    tracker_registrations_7d     INTEGER NOT NULL,
    negative_reg_change          INTEGER NOT NULL,
    positive_reg_change          INTEGER NOT NULL,
    planned_event_schedule       INTEGER NOT NULL,
    planned_event_completion     INTEGER NOT NULL,
    thought_record_reminder      INTEGER NOT NULL,
    thought_record_completion    INTEGER NOT NULL,
    smq_trend                    INTEGER NOT NULL,
    smq_low_score                INTEGER NOT NULL,
    diary_entry_reminder         INTEGER NOT NULL,
    diary_entry_completion       INTEGER NOT NULL
)`

const insertRow = `
INSERT INTO criteria_rows (
    run_date, view, case_id, client_id, treatment_phase,
    days_since_last_contact_call, days_since_last_contact_chat, days_since_last_registration,
    tracker_registrations_7d, negative_reg_change, positive_reg_change,
    planned_event_schedule, planned_event_completion,
    thought_record_reminder, thought_record_completion,
    smq_trend, smq_low_score,
    diary_entry_reminder, diary_entry_completion
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

// OpenPostgres connects with the pgx stdlib driver and ensures the schema.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresSink, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &PostgresSink{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresWithDB wraps an existing connection. Used by tests.
func NewPostgresWithDB(ctx context.Context, db *sql.DB) (*PostgresSink, error) {
	s := &PostgresSink{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresSink) ensureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, criteriaSchema); err != nil {
		return fmt.Errorf("ensure criteria schema: %w", err)
	}
	return nil
}

func (s *PostgresSink) Close() error { return s.db.Close() }

var _ Sink = (*PostgresSink)(nil)

func (s *PostgresSink) WriteAll(ctx context.Context, date time.Time, rows []model.CriteriaRow) error {
	return s.write(ctx, date, ViewAll, rows)
}

func (s *PostgresSink) WriteValid(ctx context.Context, date time.Time, rows []model.CriteriaRow) error {
	return s.write(ctx, date, ViewValid, rows)
}

func (s *PostgresSink) WriteValidWithPhase(ctx context.Context, date time.Time, rows []model.CriteriaRow) error {
	return s.write(ctx, date, ViewValidWithPhase, rows)
}

// write replaces the (run_date, view) partition in one transaction, so a
// re-run of the same date stays idempotent.
func (s *PostgresSink) write(ctx context.Context, date time.Time, view string, rows []model.CriteriaRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s write: %w", view, err)
	}
	defer tx.Rollback()

	runDate := date.Format("2006-01-02")
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM criteria_rows WHERE run_date = $1 AND view = $2`, runDate, view); err != nil {
		return fmt.Errorf("clear %s partition: %w", view, err)
	}

	for _, r := range rows {
		if _, err := tx.ExecContext(ctx, insertRow,
			runDate, view, r.CaseID, r.ClientID, r.TreatmentPhase,
			r.DaysSinceLastContactCall, r.DaysSinceLastContactChat, r.DaysSinceLastRegistration,
			r.TrackerRegistrations7d, r.NegativeRegChange, r.PositiveRegChange,
			r.PlannedEventSchedule, r.PlannedEventCompletion,
			r.ThoughtRecordReminder, r.ThoughtRecordCompletion,
			r.SMQTrend, r.SMQLowScore,
			r.DiaryEntryReminder, r.DiaryEntryCompletion,
		); err != nil {
			return fmt.Errorf("insert %s row %s: %w", view, r.CaseID, err)
		}
	}
	return tx.Commit()
}
