// Package snapshot persists the raw event tables pulled from the reporting
// API as date-partitioned local snapshots, and reads them back as typed rows.
package snapshot

import (
	"time"

	"github.com/caseflag/caseflag/internal/model"
)

// Entity names double as snapshot file basenames. The clients table keeps
// its historical "users" name on disk.
const (
	EntityClients          = "users"
	EntityCommunications   = "communications"
	EntityCustomTrackers   = "custom_trackers"
	EntityDiaryEntries     = "diary_entries"
	EntityNotifications    = "notifications"
	EntityPlannedEvents    = "planned_events"
	EntityEventReflections = "planned_event_reflections"
	EntityEventCompletions = "planned_event_completions"
	EntityTherapySessions  = "therapy_sessions"
	EntityThoughtRecords   = "thought_records"
	EntitySMQs             = "smqs"
)

// RawEntities lists every table downloaded from the reporting API, in
// download order. Event completions are derived locally and excluded.
var RawEntities = []string{
	EntityClients,
	EntityCommunications,
	EntityCustomTrackers,
	EntityDiaryEntries,
	EntityNotifications,
	EntityPlannedEvents,
	EntityEventReflections,
	EntityTherapySessions,
	EntityThoughtRecords,
	EntitySMQs,
}

// Store exposes the snapshot operations the extractor and assembler need.
// Tables are keyed by entity name and run date; snapshots for one run date
// never touch another date's partition.
type Store interface {
	// WriteRaw stores an entity table exactly as downloaded.
	WriteRaw(entity string, date time.Time, data []byte) error

	// WriteCompletions stores the locally materialized event-completion table.
	WriteCompletions(date time.Time, rows []model.PlannedEventCompletion) error

	Clients(date time.Time) ([]model.Client, error)
	Communications(date time.Time) ([]model.Communication, error)
	CustomTrackers(date time.Time) ([]model.CustomTracker, error)
	DiaryEntries(date time.Time) ([]model.DiaryEntry, error)
	Notifications(date time.Time) ([]model.Notification, error)
	PlannedEvents(date time.Time) ([]model.PlannedEvent, error)
	EventReflections(date time.Time) ([]model.PlannedEventReflection, error)
	EventCompletions(date time.Time) ([]model.PlannedEventCompletion, error)
	TherapySessions(date time.Time) ([]model.TherapySession, error)
	ThoughtRecords(date time.Time) ([]model.ThoughtRecord, error)
	SMQs(date time.Time) ([]model.SMQ, error)
}
