package criteria

import (
	"time"

	"github.com/caseflag/caseflag/internal/model"
)

// Categorical values emitted by the calculators. Each criterion has its own
// small scale; the names below follow the clinical shorthand used in the
// output schema.
const (
	RegChangeDecrease      = 0
	RegChangeStable        = 1
	RegChangeSmallIncrease = 2
	RegChangeBigIncrease   = 3

	SchedulePlanned   = 1
	ScheduleUnplanned = 3

	CompletionNone         = 0
	CompletionIncomplete   = 1
	CompletionSomeComplete = 2
	CompletionComplete     = 3

	ReminderReminded   = 1
	ReminderUnreminded = 3

	RecordIncomplete = 1
	RecordComplete   = 3

	SMQTrendLargeDecrease = 1
	SMQTrendStable        = 2
	SMQTrendLargeIncrease = 3

	SMQScoreNone = 0
	SMQScoreLow  = 3
)

// smqLowThreshold flags a low score when any sub-score drops below it.
// smqTrendThreshold is the per-sub-score delta that counts as a large move.
const (
	smqLowThreshold   = 4.5
	smqTrendThreshold = 1.5
)

// daysBetween returns the whole number of days from earlier to ts.
func daysBetween(earlier, ts time.Time) int {
	return int(ts.Sub(earlier).Hours() / 24)
}

// DaysSinceLastCall returns the days elapsed since the client's most recent
// call or therapy session, whichever is later. Both inputs must already be
// filtered to timestamps at or before ts. Returns nil when the client has
// neither calls nor sessions.
func DaysSinceLastCall(comms []model.Communication, sessions []model.TherapySession, ts time.Time) *int {
	var last time.Time
	for _, c := range comms {
		if c.CallMade && c.StartTime.After(last) {
			last = c.StartTime
		}
	}
	for _, s := range sessions {
		if s.StartTime.After(last) {
			last = s.StartTime
		}
	}
	if last.IsZero() {
		return nil
	}
	d := daysBetween(last, ts)
	return &d
}

// DaysSinceLastChat returns the days elapsed since the client's most recent
// chat message, or nil when no chat was ever sent.
func DaysSinceLastChat(comms []model.Communication, ts time.Time) *int {
	var last time.Time
	for _, c := range comms {
		if c.ChatMsgSent && c.StartTime.After(last) {
			last = c.StartTime
		}
	}
	if last.IsZero() {
		return nil
	}
	d := daysBetween(last, ts)
	return &d
}

// DaysSinceLastRegistration returns the days elapsed since the client's most
// recent self-registration of any kind: diary entry, thought record,
// questionnaire response or custom tracker. Returns nil when the client has
// never registered anything.
func DaysSinceLastRegistration(diaries []model.DiaryEntry, records []model.ThoughtRecord, smqs []model.SMQ, trackers []model.CustomTracker, ts time.Time) *int {
	var last time.Time
	for _, e := range diaries {
		if e.StartTime.After(last) {
			last = e.StartTime
		}
	}
	for _, r := range records {
		if r.StartTime.After(last) {
			last = r.StartTime
		}
	}
	for _, s := range smqs {
		if s.StartTime.After(last) {
			last = s.StartTime
		}
	}
	for _, t := range trackers {
		if t.StartTime.After(last) {
			last = t.StartTime
		}
	}
	if last.IsZero() {
		return nil
	}
	d := daysBetween(last, ts)
	return &d
}

// TrackerRegistrations counts tracker rows in the window.
func TrackerRegistrations(trackers []model.CustomTracker) int {
	return len(trackers)
}

// negativeCount counts registrations indicating worsening behaviour: any
// worry row, plus avoidance and safety-behaviour rows whose boolean payload
// is true.
func negativeCount(trackers []model.CustomTracker) int {
	n := 0
	for _, t := range trackers {
		switch t.Name {
		case model.TrackerWorry:
			n++
		case model.TrackerAvoidance, model.TrackerSafetyBehaviour:
			if t.Value.Boolean != nil && *t.Value.Boolean {
				n++
			}
		}
	}
	return n
}

// positiveCount counts registrations indicating improving behaviour:
// avoidance and safety-behaviour rows whose boolean payload is false.
func positiveCount(trackers []model.CustomTracker) int {
	n := 0
	for _, t := range trackers {
		switch t.Name {
		case model.TrackerAvoidance, model.TrackerSafetyBehaviour:
			if t.Value.Boolean != nil && !*t.Value.Boolean {
				n++
			}
		}
	}
	return n
}

// changeRate is the percentage change from prior to recent, damped by one to
// stay defined when the prior window is empty.
func changeRate(recent, prior int) float64 {
	return float64(recent-prior) / float64(prior+1) * 100
}

// NegativeRegChange buckets the week-over-week rate of change in negative
// registrations. recent holds the tracker rows of the last 7 days, prior the
// rows of the 7 days before that.
func NegativeRegChange(recent, prior []model.CustomTracker) int {
	rate := changeRate(negativeCount(recent), negativeCount(prior))
	switch {
	case rate > 100:
		return RegChangeBigIncrease
	case rate > 20:
		return RegChangeSmallIncrease
	case rate > -20:
		return RegChangeStable
	default:
		return RegChangeDecrease
	}
}

// PositiveRegChange buckets the week-over-week rate of change in positive
// registrations, on a coarser three-value scale.
func PositiveRegChange(recent, prior []model.CustomTracker) int {
	rate := changeRate(positiveCount(recent), positiveCount(prior))
	switch {
	case rate > 20:
		return RegChangeSmallIncrease
	case rate > -20:
		return RegChangeStable
	default:
		return RegChangeDecrease
	}
}

// PlannedEvents derives the schedule and completion criteria from the
// client's planned-event occurrences in the window.
func PlannedEvents(completions []model.PlannedEventCompletion) (schedule, completion int) {
	if len(completions) == 0 {
		return ScheduleUnplanned, CompletionNone
	}
	incomplete := 0
	for _, c := range completions {
		if c.Status == model.StatusIncompleted || c.Status == model.StatusCanceled {
			incomplete++
		}
	}
	switch incomplete {
	case len(completions):
		return SchedulePlanned, CompletionIncomplete
	case 0:
		return SchedulePlanned, CompletionComplete
	default:
		return SchedulePlanned, CompletionSomeComplete
	}
}

// ThoughtRecords derives the reminder and completion criteria for
// thought-record exercises. records and notifications hold the window's
// thought records and gscheme_log reminders respectively.
func ThoughtRecords(records []model.ThoughtRecord, notifications []model.Notification) (reminder, completion int) {
	reminder = ReminderUnreminded
	if len(notifications) > 0 {
		reminder = ReminderReminded
	}
	completion = RecordIncomplete
	if len(records) > 0 {
		completion = RecordComplete
	}
	return reminder, completion
}

// DiaryEntries derives the reminder and completion criteria for diary
// exercises, mirroring ThoughtRecords for diary_entry_log reminders.
func DiaryEntries(entries []model.DiaryEntry, notifications []model.Notification) (reminder, completion int) {
	reminder = ReminderUnreminded
	if len(notifications) > 0 {
		reminder = ReminderReminded
	}
	completion = RecordIncomplete
	if len(entries) > 0 {
		completion = RecordComplete
	}
	return reminder, completion
}

// SMQTrend derives the questionnaire trend and low-score criteria from the
// client's two most recent responses at or before ts. With fewer than two
// responses the trend is reported stable and no low score is flagged. The
// low-score check looks only at the latest response and is independent of
// the trend computation.
func SMQTrend(smqs []model.SMQ, ts time.Time) (trend, lowScore int) {
	var last, previous *model.SMQ
	for i := range smqs {
		s := &smqs[i]
		if s.StartTime.After(ts) {
			continue
		}
		switch {
		case last == nil || s.StartTime.After(last.StartTime):
			previous = last
			last = s
		case previous == nil || s.StartTime.After(previous.StartTime):
			previous = s
		}
	}
	if last == nil || previous == nil {
		return SMQTrendStable, SMQScoreNone
	}

	lowScore = SMQScoreNone
	for _, sub := range last.SubScores() {
		if sub < smqLowThreshold {
			lowScore = SMQScoreLow
			break
		}
	}

	trend = SMQTrendStable
	lastSubs, prevSubs := last.SubScores(), previous.SubScores()
	for i := range lastSubs {
		if lastSubs[i]-prevSubs[i] > smqTrendThreshold {
			return SMQTrendLargeIncrease, lowScore
		}
	}
	for i := range lastSubs {
		if lastSubs[i]-prevSubs[i] < -smqTrendThreshold {
			return SMQTrendLargeDecrease, lowScore
		}
	}
	return trend, lowScore
}
