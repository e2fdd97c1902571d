package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caseflag/caseflag/internal/model"
)

// CSVSink writes each view as a CSV file under
// <outDir>/<yyyy-mm-dd>/<view>.csv. Files are written whole per run; a
// partition is never appended to.
type CSVSink struct {
	outDir string
}

func NewCSVSink(outDir string) *CSVSink {
	return &CSVSink{outDir: outDir}
}

var _ Sink = (*CSVSink)(nil)

func (s *CSVSink) WriteAll(_ context.Context, date time.Time, rows []model.CriteriaRow) error {
	return s.write(date, ViewAll, rows, false)
}

func (s *CSVSink) WriteValid(_ context.Context, date time.Time, rows []model.CriteriaRow) error {
	return s.write(date, ViewValid, rows, false)
}

func (s *CSVSink) WriteValidWithPhase(_ context.Context, date time.Time, rows []model.CriteriaRow) error {
	return s.write(date, ViewValidWithPhase, rows, true)
}

func (s *CSVSink) write(date time.Time, view string, rows []model.CriteriaRow, withPhase bool) error {
	dir := filepath.Join(s.outDir, date.Format("2006-01-02"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output partition: %w", err)
	}

	path := filepath.Join(dir, view+".csv")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", view, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(columns(withPhase)); err != nil {
		return fmt.Errorf("write %s header: %w", view, err)
	}
	for _, r := range rows {
		if err := w.Write(record(r, withPhase)); err != nil {
			return fmt.Errorf("write %s row: %w", view, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", view, err)
	}
	return f.Close()
}
