package criteria

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/caseflag/caseflag/internal/model"
	"github.com/caseflag/caseflag/internal/timeline"
)

// criterionWindowDays is the aggregation window used by the windowed
// calculators. It is fixed by the criteria definitions, independent of the
// configurable snapshot lookback.
const criterionWindowDays = 7

// validContactDays and validRegistrationDays bound the recency thresholds
// of the valid-treatment filter. validActiveWeeks is the minimum number of
// snapshot rows with tracker activity.
const (
	validContactDays      = 30
	validRegistrationDays = 30
	validActiveWeeks      = 2
)

// Tables bundles the event tables the assembler consumes. Every slice is
// full history across clients; the assembler partitions by client itself.
type Tables struct {
	Clients          []model.Client
	Communications   []model.Communication
	TherapySessions  []model.TherapySession
	CustomTrackers   []model.CustomTracker
	DiaryEntries     []model.DiaryEntry
	ThoughtRecords   []model.ThoughtRecord
	Notifications    []model.Notification
	EventCompletions []model.PlannedEventCompletion
	SMQs             []model.SMQ
}

// Result carries the assembled rows. All holds every complete, deduplicated
// row; Valid holds the subset belonging to clients that pass the
// valid-treatment filter. Errors collects per-client failures; a failed
// client contributes no rows but does not abort the batch.
type Result struct {
	All    []model.CriteriaRow
	Valid  []model.CriteriaRow
	Errors []error
}

// Assembler walks every client's treatment timeline and derives one
// criteria row per snapshot instant.
type Assembler struct {
	lookbackDays int
	workers      int
	log          zerolog.Logger
}

func NewAssembler(lookbackDays, workers int, log zerolog.Logger) *Assembler {
	if workers < 1 {
		workers = 1
	}
	return &Assembler{lookbackDays: lookbackDays, workers: workers, log: log}
}

// clientTables is one client's partition of the event tables.
type clientTables struct {
	comms       []model.Communication
	sessions    []model.TherapySession
	trackers    []model.CustomTracker
	diaries     []model.DiaryEntry
	records     []model.ThoughtRecord
	notifs      []model.Notification
	completions []model.PlannedEventCompletion
	smqs        []model.SMQ
}

func partition(t Tables) map[string]*clientTables {
	byClient := make(map[string]*clientTables, len(t.Clients))
	get := func(id string) *clientTables {
		ct, ok := byClient[id]
		if !ok {
			ct = &clientTables{}
			byClient[id] = ct
		}
		return ct
	}
	for _, r := range t.Communications {
		ct := get(r.ClientID)
		ct.comms = append(ct.comms, r)
	}
	for _, r := range t.TherapySessions {
		ct := get(r.ClientID)
		ct.sessions = append(ct.sessions, r)
	}
	for _, r := range t.CustomTrackers {
		ct := get(r.ClientID)
		ct.trackers = append(ct.trackers, r)
	}
	for _, r := range t.DiaryEntries {
		ct := get(r.ClientID)
		ct.diaries = append(ct.diaries, r)
	}
	for _, r := range t.ThoughtRecords {
		ct := get(r.ClientID)
		ct.records = append(ct.records, r)
	}
	for _, r := range t.Notifications {
		ct := get(r.ClientID)
		ct.notifs = append(ct.notifs, r)
	}
	for _, r := range t.EventCompletions {
		ct := get(r.ClientID)
		ct.completions = append(ct.completions, r)
	}
	for _, r := range t.SMQs {
		ct := get(r.ClientID)
		ct.smqs = append(ct.smqs, r)
	}
	return byClient
}

// Assemble derives the criteria rows for every client in the tables.
// Clients are processed concurrently; each client only ever reads its own
// partition, so no synchronization beyond result collection is needed.
func (a *Assembler) Assemble(ctx context.Context, tables Tables) (Result, error) {
	byClient := partition(tables)

	var (
		mu   sync.Mutex
		rows []model.CriteriaRow
		errs []error
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for _, client := range tables.Clients {
		client := client
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			ct := byClient[client.ClientID]
			if ct == nil {
				ct = &clientTables{}
			}
			clientRows, err := a.assembleClient(client, ct)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				a.log.Warn().Err(err).Str("clientId", client.ClientID).Msg("skipping client")
				errs = append(errs, err)
				return nil
			}
			rows = append(rows, clientRows...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	rows = dropIncomplete(rows)
	rows = dedupe(rows)
	sortRows(rows)

	res := Result{All: rows, Errors: errs}
	res.Valid = filterValid(rows)
	return res, nil
}

func (a *Assembler) assembleClient(client model.Client, ct *clientTables) ([]model.CriteriaRow, error) {
	snapshots, err := timeline.BuildSnapshots(client, ct.comms, a.lookbackDays)
	if err != nil {
		return nil, err
	}
	rows := make([]model.CriteriaRow, 0, len(snapshots))
	for _, snap := range snapshots {
		rows = append(rows, buildRow(snap, ct))
	}
	return rows, nil
}

// buildRow computes every criterion for one snapshot instant. Each
// calculator receives only the window of rows it is defined over.
func buildRow(snap model.TreatmentSnapshot, ct *clientTables) model.CriteriaRow {
	ts := snap.Timestamp
	weekAgo := ts.AddDate(0, 0, -criterionWindowDays)
	twoWeeksAgo := weekAgo.AddDate(0, 0, -criterionWindowDays)

	recentTrackers := trackersIn(ct.trackers, weekAgo, ts)
	priorTrackers := trackersIn(ct.trackers, twoWeeksAgo, weekAgo)

	row := model.CriteriaRow{
		CaseID:         CaseID(snap.Client.ClientID, snap.Client.TherapistID, ts),
		ClientID:       snap.Client.ClientID,
		TreatmentPhase: snap.Phase,
	}

	row.DaysSinceLastContactCall = DaysSinceLastCall(commsUpTo(ct.comms, ts), sessionsUpTo(ct.sessions, ts), ts)
	row.DaysSinceLastContactChat = DaysSinceLastChat(commsUpTo(ct.comms, ts), ts)
	row.DaysSinceLastRegistration = DaysSinceLastRegistration(
		diariesUpTo(ct.diaries, ts), recordsUpTo(ct.records, ts), smqsUpTo(ct.smqs, ts), trackersUpTo(ct.trackers, ts), ts)

	row.TrackerRegistrations7d = TrackerRegistrations(recentTrackers)
	row.NegativeRegChange = NegativeRegChange(recentTrackers, priorTrackers)
	row.PositiveRegChange = PositiveRegChange(recentTrackers, priorTrackers)

	row.PlannedEventSchedule, row.PlannedEventCompletion = PlannedEvents(completionsIn(ct.completions, weekAgo, ts))

	row.ThoughtRecordReminder, row.ThoughtRecordCompletion = ThoughtRecords(
		recordsIn(ct.records, weekAgo, ts), notificationsIn(ct.notifs, model.NotificationGSchemeLog, weekAgo, ts))
	row.DiaryEntryReminder, row.DiaryEntryCompletion = DiaryEntries(
		diariesIn(ct.diaries, weekAgo, ts), notificationsIn(ct.notifs, model.NotificationDiaryEntryLog, weekAgo, ts))

	row.SMQTrend, row.SMQLowScore = SMQTrend(ct.smqs, ts)

	return row
}

// inWindow reports whether t lies in the half-open window (from, to].
func inWindow(t, from, to time.Time) bool {
	return t.After(from) && !t.After(to)
}

func trackersUpTo(rows []model.CustomTracker, ts time.Time) []model.CustomTracker {
	out := rows[:0:0]
	for _, r := range rows {
		if !r.StartTime.After(ts) {
			out = append(out, r)
		}
	}
	return out
}

func trackersIn(rows []model.CustomTracker, from, to time.Time) []model.CustomTracker {
	out := rows[:0:0]
	for _, r := range rows {
		if inWindow(r.StartTime, from, to) {
			out = append(out, r)
		}
	}
	return out
}

func commsUpTo(rows []model.Communication, ts time.Time) []model.Communication {
	out := rows[:0:0]
	for _, r := range rows {
		if !r.StartTime.After(ts) {
			out = append(out, r)
		}
	}
	return out
}

func sessionsUpTo(rows []model.TherapySession, ts time.Time) []model.TherapySession {
	out := rows[:0:0]
	for _, r := range rows {
		if !r.StartTime.After(ts) {
			out = append(out, r)
		}
	}
	return out
}

func diariesUpTo(rows []model.DiaryEntry, ts time.Time) []model.DiaryEntry {
	out := rows[:0:0]
	for _, r := range rows {
		if !r.StartTime.After(ts) {
			out = append(out, r)
		}
	}
	return out
}

func diariesIn(rows []model.DiaryEntry, from, to time.Time) []model.DiaryEntry {
	out := rows[:0:0]
	for _, r := range rows {
		if inWindow(r.StartTime, from, to) {
			out = append(out, r)
		}
	}
	return out
}

func recordsUpTo(rows []model.ThoughtRecord, ts time.Time) []model.ThoughtRecord {
	out := rows[:0:0]
	for _, r := range rows {
		if !r.StartTime.After(ts) {
			out = append(out, r)
		}
	}
	return out
}

func recordsIn(rows []model.ThoughtRecord, from, to time.Time) []model.ThoughtRecord {
	out := rows[:0:0]
	for _, r := range rows {
		if inWindow(r.StartTime, from, to) {
			out = append(out, r)
		}
	}
	return out
}

func smqsUpTo(rows []model.SMQ, ts time.Time) []model.SMQ {
	out := rows[:0:0]
	for _, r := range rows {
		if !r.StartTime.After(ts) {
			out = append(out, r)
		}
	}
	return out
}

func notificationsIn(rows []model.Notification, typ string, from, to time.Time) []model.Notification {
	out := rows[:0:0]
	for _, r := range rows {
		if r.Type == typ && inWindow(r.StartTime, from, to) {
			out = append(out, r)
		}
	}
	return out
}

func completionsIn(rows []model.PlannedEventCompletion, from, to time.Time) []model.PlannedEventCompletion {
	out := rows[:0:0]
	for _, r := range rows {
		if inWindow(r.StartTime, from, to) {
			out = append(out, r)
		}
	}
	return out
}

func dropIncomplete(rows []model.CriteriaRow) []model.CriteriaRow {
	out := rows[:0:0]
	for _, r := range rows {
		if r.Complete() {
			out = append(out, r)
		}
	}
	return out
}

func rowKey(r model.CriteriaRow) string {
	return fmt.Sprintf("%s|%d|%d|%d|%d|%d|%d|%d|%d|%d|%d|%d|%d|%d|%d|%d",
		r.CaseID, r.TreatmentPhase,
		*r.DaysSinceLastContactCall, *r.DaysSinceLastContactChat, *r.DaysSinceLastRegistration,
		r.TrackerRegistrations7d, r.NegativeRegChange, r.PositiveRegChange,
		r.PlannedEventSchedule, r.PlannedEventCompletion,
		r.ThoughtRecordReminder, r.ThoughtRecordCompletion,
		r.SMQTrend, r.SMQLowScore,
		r.DiaryEntryReminder, r.DiaryEntryCompletion)
}

// dedupe drops exact duplicate rows. Overlapping lookback windows of
// adjacent calls can land two snapshots on the same day; after threshold
// bucketing those rows are often identical. Rows must already be complete.
func dedupe(rows []model.CriteriaRow) []model.CriteriaRow {
	seen := make(map[string]struct{}, len(rows))
	out := rows[:0:0]
	for _, r := range rows {
		k := rowKey(r)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}

func sortRows(rows []model.CriteriaRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].ClientID != rows[j].ClientID {
			return rows[i].ClientID < rows[j].ClientID
		}
		if rows[i].TreatmentPhase != rows[j].TreatmentPhase {
			return rows[i].TreatmentPhase < rows[j].TreatmentPhase
		}
		return rowKey(rows[i]) < rowKey(rows[j])
	})
}

// filterValid keeps the rows of clients whose engagement meets the minimum
// treatment thresholds: recent contact by call or chat, recent
// registrations, and tracker activity in at least two snapshot weeks.
func filterValid(rows []model.CriteriaRow) []model.CriteriaRow {
	type stats struct {
		maxCall, maxChat, maxReg int
		activeWeeks              int
	}
	byClient := make(map[string]*stats)
	for _, r := range rows {
		s, ok := byClient[r.ClientID]
		if !ok {
			s = &stats{}
			byClient[r.ClientID] = s
		}
		if *r.DaysSinceLastContactCall > s.maxCall {
			s.maxCall = *r.DaysSinceLastContactCall
		}
		if *r.DaysSinceLastContactChat > s.maxChat {
			s.maxChat = *r.DaysSinceLastContactChat
		}
		if *r.DaysSinceLastRegistration > s.maxReg {
			s.maxReg = *r.DaysSinceLastRegistration
		}
		if r.TrackerRegistrations7d > 0 {
			s.activeWeeks++
		}
	}

	out := rows[:0:0]
	for _, r := range rows {
		s := byClient[r.ClientID]
		contact := s.maxCall <= validContactDays || s.maxChat <= validContactDays
		if contact && s.maxReg <= validRegistrationDays && s.activeWeeks >= validActiveWeeks {
			out = append(out, r)
		}
	}
	return out
}
