// Package localstate keeps a small sqlite ledger of pipeline runs under the
// data directory: which run dates were processed, dataset row counts, and
// how each run ended.
package localstate

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const dbFilename = "caseflag.db"

// Run statuses recorded in the ledger.
const (
	RunStatusStarted  = "STARTED"
	RunStatusFinished = "FINISHED"
	RunStatusFailed   = "FAILED"
)

// Ledger records run history in a local sqlite database.
type Ledger struct {
	db *sql.DB
}

// Open opens (or creates) the run ledger under dataDir and ensures its
// schema exists.
func Open(dataDir string) (*Ledger, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}

	path := filepath.Join(dataDir, dbFilename)
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Ledger{db: db}, nil
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS Runs (
            RunId TEXT PRIMARY KEY,
            RunDate TEXT NOT NULL,
            StartedAt TIMESTAMP NOT NULL,
            FinishedAt TIMESTAMP,
            Status TEXT NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS RunDatasets (
            RunId TEXT NOT NULL,
            Entity TEXT NOT NULL,
            Rows INTEGER NOT NULL,
            PRIMARY KEY(RunId, Entity),
            FOREIGN KEY(RunId) REFERENCES Runs(RunId)
        );`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (l *Ledger) Close() error { return l.db.Close() }

// BeginRun records a new run in STARTED state.
func (l *Ledger) BeginRun(runID string, runDate time.Time, startedAt time.Time) error {
	_, err := l.db.Exec(
		`INSERT INTO Runs (RunId, RunDate, StartedAt, Status) VALUES (?, ?, ?, ?)`,
		runID, runDate.Format("2006-01-02"), startedAt.UTC(), RunStatusStarted,
	)
	return err
}

// RecordDataset notes how many rows one entity snapshot carried.
func (l *Ledger) RecordDataset(runID, entity string, rows int) error {
	_, err := l.db.Exec(
		`INSERT INTO RunDatasets (RunId, Entity, Rows) VALUES (?, ?, ?)
         ON CONFLICT(RunId, Entity) DO UPDATE SET Rows = excluded.Rows`,
		runID, entity, rows,
	)
	return err
}

// FinishRun marks a run finished or failed.
func (l *Ledger) FinishRun(runID, status string, finishedAt time.Time) error {
	res, err := l.db.Exec(
		`UPDATE Runs SET Status = ?, FinishedAt = ? WHERE RunId = ?`,
		status, finishedAt.UTC(), runID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("unknown run %s", runID)
	}
	return nil
}

// RunStatus returns the recorded status for a run.
func (l *Ledger) RunStatus(runID string) (string, error) {
	var status string
	err := l.db.QueryRow(`SELECT Status FROM Runs WHERE RunId = ?`, runID).Scan(&status)
	if err != nil {
		return "", err
	}
	return status, nil
}

// DatasetRows returns the recorded row counts for a run, keyed by entity.
func (l *Ledger) DatasetRows(runID string) (map[string]int, error) {
	rows, err := l.db.Query(`SELECT Entity, Rows FROM RunDatasets WHERE RunId = ?`, runID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := map[string]int{}
	for rows.Next() {
		var entity string
		var n int
		if err := rows.Scan(&entity, &n); err != nil {
			return nil, err
		}
		out[entity] = n
	}
	return out, rows.Err()
}
