package model

import "time"

// Treatment phases derived from the client's call count.
const (
	PhaseStart = 0
	PhaseMid   = 1
	PhaseEnd   = 2
)

// Custom tracker names relevant to criteria derivation. Registrations with
// any other name are ignored.
const (
	TrackerWorry           = "measure_worry"
	TrackerSafetyBehaviour = "measure_safety_behaviour"
	TrackerAvoidance       = "measure_avoidance"
)

// Notification types that pair with reminder-completion criteria.
const (
	NotificationGSchemeLog    = "gscheme_log"
	NotificationDiaryEntryLog = "diary_entry_log"
)

// Planned-event reflection statuses.
const (
	StatusCompleted   = "COMPLETED"
	StatusIncompleted = "INCOMPLETED"
	StatusCanceled    = "CANCELED"
)

// Client is one treated client. StartTime is the date of the first treatment
// contact and must equal the timestamp of the client's first recorded call.
type Client struct {
	ClientID          string
	TherapistID       string
	StartTime         time.Time
	EndTime           *time.Time
	NoOfRegistrations int
}

// Communication is one call or chat interaction between client and therapist.
type Communication struct {
	ClientID    string
	StartTime   time.Time
	CallMade    bool
	ChatMsgSent bool
}

// TherapySession is one scheduled therapy session.
type TherapySession struct {
	ClientID  string
	StartTime time.Time
}

// TrackerValue is the decoded payload of a custom tracker registration.
// Boolean trackers carry Boolean; the worry tracker carries Duration, though
// any worry row counts as a negative registration regardless of its payload.
type TrackerValue struct {
	Boolean  *bool    `json:"boolean,omitempty"`
	Duration *float64 `json:"duration,omitempty"`
}

// CustomTracker is one self-reported tracker registration.
type CustomTracker struct {
	ClientID  string
	StartTime time.Time
	Name      string
	Value     TrackerValue
}

// DiaryEntry is one diary registration.
type DiaryEntry struct {
	ClientID  string
	StartTime time.Time
}

// ThoughtRecord is one thought-record (g-schema) registration.
type ThoughtRecord struct {
	ClientID  string
	StartTime time.Time
}

// Notification is one reminder sent to a client.
type Notification struct {
	ClientID  string
	Type      string
	StartTime time.Time
}

// RecurringExpression is the decoded recurrence payload of a planned event.
type RecurringExpression struct {
	RRule string `json:"rrule"`
}

// PlannedEvent is a recurring activity the client planned with their
// therapist. TerminatedTime is set when the event was stopped early.
type PlannedEvent struct {
	ID                  string
	ClientID            string
	RecurringExpression RecurringExpression
	StartTime           time.Time
	EndTime             *time.Time
	TerminatedTime      *time.Time
}

// PlannedEventReflection is the client's report on one occurrence of a
// planned event.
type PlannedEventReflection struct {
	PlannedEventID string
	ClientID       string
	StartTime      time.Time
	Status         string
}

// PlannedEventCompletion is one materialized occurrence of a recurring
// planned event, paired with its reflection status. StartTime is truncated
// to midnight. Status is INCOMPLETED when no reflection matched.
type PlannedEventCompletion struct {
	ClientID       string
	PlannedEventID string
	StartTime      time.Time
	Status         string
}

// SMQ is one Session Measurement Questionnaire response.
type SMQ struct {
	ClientID      string
	StartTime     time.Time
	Applicability float64
	Connection    float64
	Content       float64
	Progress      float64
	WayOfWorking  float64
	Score         float64
}

// SubScores returns the five SMQ sub-scores in a fixed order.
func (s SMQ) SubScores() [5]float64 {
	return [5]float64{s.Applicability, s.Connection, s.Content, s.Progress, s.WayOfWorking}
}

// TreatmentSnapshot is one reference instant at which all criteria are
// evaluated for a client.
type TreatmentSnapshot struct {
	Client    Client
	Phase     int
	Timestamp time.Time
}

// CriteriaRow is one assembled output row per (case, client, snapshot).
// Recency criteria are nil when the client has no qualifying events at all.
type CriteriaRow struct {
	CaseID                    string
	ClientID                  string
	TreatmentPhase            int
	DaysSinceLastContactCall  *int
	DaysSinceLastContactChat  *int
	DaysSinceLastRegistration *int
	TrackerRegistrations7d    int
	NegativeRegChange         int
	PositiveRegChange         int
	PlannedEventSchedule      int
	PlannedEventCompletion    int
	ThoughtRecordReminder     int
	ThoughtRecordCompletion   int
	SMQTrend                  int
	SMQLowScore               int
	DiaryEntryReminder        int
	DiaryEntryCompletion      int
}

// Complete reports whether every nullable criterion has a value. Rows that
// are not complete are dropped before the valid-treatment filter runs.
func (r CriteriaRow) Complete() bool {
	return r.DaysSinceLastContactCall != nil &&
		r.DaysSinceLastContactChat != nil &&
		r.DaysSinceLastRegistration != nil
}
