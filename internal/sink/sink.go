// Package sink writes the assembled criteria rows to durable storage in the
// three output views: all rows, valid-only rows, and valid rows with the
// treatment phase column.
package sink

import (
	"context"
	"strconv"
	"time"

	"github.com/caseflag/caseflag/internal/model"
)

// View names identify the three output tables of a run.
const (
	ViewAll            = "criteria_all"
	ViewValid          = "criteria_valid"
	ViewValidWithPhase = "criteria_valid_with_phase"
)

// Sink persists one run's criteria views, partitioned by run date.
type Sink interface {
	WriteAll(ctx context.Context, date time.Time, rows []model.CriteriaRow) error
	WriteValid(ctx context.Context, date time.Time, rows []model.CriteriaRow) error
	WriteValidWithPhase(ctx context.Context, date time.Time, rows []model.CriteriaRow) error
}

// baseColumns are the criteria columns shared by every view. The phase view
// inserts treatment_phase after client_id.
var baseColumns = []string{
	"case_id",
	"client_id",
	"days_since_last_contact_call",
	"days_since_last_contact_chat",
	"days_since_last_registration",
	"tracker_registrations_7d",
	"negative_reg_change",
	"positive_reg_change",
	"planned_event_schedule",
	"planned_event_completion",
	"thought_record_reminder",
	"thought_record_completion",
	"smq_trend",
	"smq_low_score",
	"diary_entry_reminder",
	"diary_entry_completion",
}

func columns(withPhase bool) []string {
	if !withPhase {
		return baseColumns
	}
	cols := make([]string, 0, len(baseColumns)+1)
	cols = append(cols, baseColumns[:2]...)
	cols = append(cols, "treatment_phase")
	cols = append(cols, baseColumns[2:]...)
	return cols
}

// optionalInt renders a nullable criterion, nil as an empty cell.
func optionalInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

// record flattens one row into the column order of its view. Integral
// criteria are emitted without decimal points.
func record(r model.CriteriaRow, withPhase bool) []string {
	out := make([]string, 0, len(baseColumns)+1)
	out = append(out, r.CaseID, r.ClientID)
	if withPhase {
		out = append(out, strconv.Itoa(r.TreatmentPhase))
	}
	out = append(out,
		optionalInt(r.DaysSinceLastContactCall),
		optionalInt(r.DaysSinceLastContactChat),
		optionalInt(r.DaysSinceLastRegistration),
		strconv.Itoa(r.TrackerRegistrations7d),
		strconv.Itoa(r.NegativeRegChange),
		strconv.Itoa(r.PositiveRegChange),
		strconv.Itoa(r.PlannedEventSchedule),
		strconv.Itoa(r.PlannedEventCompletion),
		strconv.Itoa(r.ThoughtRecordReminder),
		strconv.Itoa(r.ThoughtRecordCompletion),
		strconv.Itoa(r.SMQTrend),
		strconv.Itoa(r.SMQLowScore),
		strconv.Itoa(r.DiaryEntryReminder),
		strconv.Itoa(r.DiaryEntryCompletion),
	)
	return out
}
