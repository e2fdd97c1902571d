package snapshot

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/caseflag/caseflag/internal/model"
)

const dateLayout = "2006-01-02"

// CSVStore stores snapshots as headered CSV files under
// <root>/datasources/<run-date>/<entity>.csv.
type CSVStore struct {
	root string
}

// NewCSVStore returns a CSV-file snapshot store rooted at dataDir.
func NewCSVStore(dataDir string) *CSVStore {
	return &CSVStore{root: filepath.Join(dataDir, "datasources")}
}

func (s *CSVStore) path(entity string, date time.Time) string {
	return filepath.Join(s.root, date.Format(dateLayout), entity+".csv")
}

// WriteRaw stores an entity table exactly as downloaded.
func (s *CSVStore) WriteRaw(entity string, date time.Time, data []byte) error {
	path := s.path(entity, date)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (s *CSVStore) open(entity string, date time.Time) (io.ReadCloser, error) {
	f, err := os.Open(s.path(entity, date))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("snapshot %s for %s: %w", entity, date.Format(dateLayout), model.ErrNotFound)
		}
		return nil, err
	}
	return f, nil
}

func readTable[T any](s *CSVStore, entity string, date time.Time, decode func(io.Reader) ([]T, error)) ([]T, error) {
	f, err := s.open(entity, date)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	rows, err := decode(f)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s for %s: %w", entity, date.Format(dateLayout), err)
	}
	return rows, nil
}

func (s *CSVStore) Clients(date time.Time) ([]model.Client, error) {
	return readTable(s, EntityClients, date, decodeClients)
}

func (s *CSVStore) Communications(date time.Time) ([]model.Communication, error) {
	return readTable(s, EntityCommunications, date, decodeCommunications)
}

func (s *CSVStore) CustomTrackers(date time.Time) ([]model.CustomTracker, error) {
	return readTable(s, EntityCustomTrackers, date, decodeCustomTrackers)
}

func (s *CSVStore) DiaryEntries(date time.Time) ([]model.DiaryEntry, error) {
	return readTable(s, EntityDiaryEntries, date, decodeDiaryEntries)
}

func (s *CSVStore) Notifications(date time.Time) ([]model.Notification, error) {
	return readTable(s, EntityNotifications, date, decodeNotifications)
}

func (s *CSVStore) PlannedEvents(date time.Time) ([]model.PlannedEvent, error) {
	return readTable(s, EntityPlannedEvents, date, decodePlannedEvents)
}

func (s *CSVStore) EventReflections(date time.Time) ([]model.PlannedEventReflection, error) {
	return readTable(s, EntityEventReflections, date, decodeReflections)
}

func (s *CSVStore) EventCompletions(date time.Time) ([]model.PlannedEventCompletion, error) {
	return readTable(s, EntityEventCompletions, date, decodeCompletions)
}

func (s *CSVStore) TherapySessions(date time.Time) ([]model.TherapySession, error) {
	return readTable(s, EntityTherapySessions, date, decodeTherapySessions)
}

func (s *CSVStore) ThoughtRecords(date time.Time) ([]model.ThoughtRecord, error) {
	return readTable(s, EntityThoughtRecords, date, decodeThoughtRecords)
}

func (s *CSVStore) SMQs(date time.Time) ([]model.SMQ, error) {
	return readTable(s, EntitySMQs, date, decodeSMQs)
}

// WriteCompletions stores the locally materialized event-completion table.
func (s *CSVStore) WriteCompletions(date time.Time, rows []model.PlannedEventCompletion) error {
	var buf bytes.Buffer
	if err := encodeCompletions(&buf, rows); err != nil {
		return err
	}
	return s.WriteRaw(EntityEventCompletions, date, buf.Bytes())
}

// WriteClients stores a typed client table. Used by tests and backfills;
// the extractor writes the downloaded CSV bytes directly.
func (s *CSVStore) WriteClients(date time.Time, rows []model.Client) error {
	var buf bytes.Buffer
	if err := encodeClients(&buf, rows); err != nil {
		return err
	}
	return s.WriteRaw(EntityClients, date, buf.Bytes())
}

// WriteCommunications stores a typed communication table.
func (s *CSVStore) WriteCommunications(date time.Time, rows []model.Communication) error {
	var buf bytes.Buffer
	if err := encodeCommunications(&buf, rows); err != nil {
		return err
	}
	return s.WriteRaw(EntityCommunications, date, buf.Bytes())
}

var _ Store = (*CSVStore)(nil)
