package snapshot

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/caseflag/caseflag/internal/model"
)

// Timestamp layouts accepted on read, most specific first. Writes always use
// RFC3339.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func parseOptionalTime(s string) (*time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, err := parseTime(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1":
		return true, nil
	case "false", "0", "":
		return false, nil
	}
	return false, fmt.Errorf("unrecognized boolean %q", s)
}

func formatTime(t time.Time) string { return t.Format(time.RFC3339) }

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

// readRecords reads a headered CSV and returns its data rows, validating
// against the expected header.
func readRecords(r io.Reader, header []string) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(header)

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("missing header row")
	}
	for i, col := range header {
		if rows[0][i] != col {
			return nil, fmt.Errorf("unexpected header %v, want %v", rows[0], header)
		}
	}
	return rows[1:], nil
}

func writeRecords(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

var (
	clientHeader        = []string{"client_id", "therapist_id", "start_time", "end_time", "no_of_registrations"}
	communicationHeader = []string{"client_id", "start_time", "call_made", "chat_msg_sent"}
	trackerHeader       = []string{"client_id", "start_time", "name", "value"}
	timestampOnlyHeader = []string{"client_id", "start_time"}
	notificationHeader  = []string{"client_id", "type", "start_time"}
	eventHeader         = []string{"id", "client_id", "recurring_expression", "start_time", "end_time", "terminated_time"}
	reflectionHeader    = []string{"planned_event_id", "client_id", "start_time", "status"}
	completionHeader    = []string{"client_id", "planned_event_id", "start_time", "status"}
	smqHeader           = []string{"client_id", "start_time", "applicability", "connection", "content", "progress", "way_of_working", "score"}
)

func decodeClients(r io.Reader) ([]model.Client, error) {
	rows, err := readRecords(r, clientHeader)
	if err != nil {
		return nil, err
	}
	out := make([]model.Client, 0, len(rows))
	for _, row := range rows {
		start, err := parseTime(row[2])
		if err != nil {
			return nil, fmt.Errorf("client %s: %w", row[0], err)
		}
		end, err := parseOptionalTime(row[3])
		if err != nil {
			return nil, fmt.Errorf("client %s: %w", row[0], err)
		}
		regs, err := strconv.Atoi(row[4])
		if err != nil {
			return nil, fmt.Errorf("client %s: no_of_registrations: %w", row[0], err)
		}
		out = append(out, model.Client{
			ClientID:          row[0],
			TherapistID:       row[1],
			StartTime:         start,
			EndTime:           end,
			NoOfRegistrations: regs,
		})
	}
	return out, nil
}

func encodeClients(w io.Writer, clients []model.Client) error {
	rows := make([][]string, 0, len(clients))
	for _, c := range clients {
		rows = append(rows, []string{
			c.ClientID, c.TherapistID,
			formatTime(c.StartTime), formatOptionalTime(c.EndTime),
			strconv.Itoa(c.NoOfRegistrations),
		})
	}
	return writeRecords(w, clientHeader, rows)
}

func decodeCommunications(r io.Reader) ([]model.Communication, error) {
	rows, err := readRecords(r, communicationHeader)
	if err != nil {
		return nil, err
	}
	out := make([]model.Communication, 0, len(rows))
	for _, row := range rows {
		start, err := parseTime(row[1])
		if err != nil {
			return nil, fmt.Errorf("communication for %s: %w", row[0], err)
		}
		call, err := parseBool(row[2])
		if err != nil {
			return nil, fmt.Errorf("communication for %s: call_made: %w", row[0], err)
		}
		chat, err := parseBool(row[3])
		if err != nil {
			return nil, fmt.Errorf("communication for %s: chat_msg_sent: %w", row[0], err)
		}
		out = append(out, model.Communication{ClientID: row[0], StartTime: start, CallMade: call, ChatMsgSent: chat})
	}
	return out, nil
}

func encodeCommunications(w io.Writer, comms []model.Communication) error {
	rows := make([][]string, 0, len(comms))
	for _, c := range comms {
		rows = append(rows, []string{
			c.ClientID, formatTime(c.StartTime),
			strconv.FormatBool(c.CallMade), strconv.FormatBool(c.ChatMsgSent),
		})
	}
	return writeRecords(w, communicationHeader, rows)
}

func decodeCustomTrackers(r io.Reader) ([]model.CustomTracker, error) {
	rows, err := readRecords(r, trackerHeader)
	if err != nil {
		return nil, err
	}
	out := make([]model.CustomTracker, 0, len(rows))
	for _, row := range rows {
		start, err := parseTime(row[1])
		if err != nil {
			return nil, fmt.Errorf("tracker for %s: %w", row[0], err)
		}
		value, err := DecodeTrackerValue(row[3])
		if err != nil {
			return nil, fmt.Errorf("tracker for %s: %w", row[0], err)
		}
		out = append(out, model.CustomTracker{ClientID: row[0], StartTime: start, Name: row[2], Value: value})
	}
	return out, nil
}

func decodeTimestampRows(r io.Reader) ([]model.DiaryEntry, error) {
	rows, err := readRecords(r, timestampOnlyHeader)
	if err != nil {
		return nil, err
	}
	out := make([]model.DiaryEntry, 0, len(rows))
	for _, row := range rows {
		start, err := parseTime(row[1])
		if err != nil {
			return nil, fmt.Errorf("entry for %s: %w", row[0], err)
		}
		out = append(out, model.DiaryEntry{ClientID: row[0], StartTime: start})
	}
	return out, nil
}

func decodeDiaryEntries(r io.Reader) ([]model.DiaryEntry, error) {
	return decodeTimestampRows(r)
}

func decodeThoughtRecords(r io.Reader) ([]model.ThoughtRecord, error) {
	entries, err := decodeTimestampRows(r)
	if err != nil {
		return nil, err
	}
	out := make([]model.ThoughtRecord, 0, len(entries))
	for _, e := range entries {
		out = append(out, model.ThoughtRecord{ClientID: e.ClientID, StartTime: e.StartTime})
	}
	return out, nil
}

func decodeTherapySessions(r io.Reader) ([]model.TherapySession, error) {
	entries, err := decodeTimestampRows(r)
	if err != nil {
		return nil, err
	}
	out := make([]model.TherapySession, 0, len(entries))
	for _, e := range entries {
		out = append(out, model.TherapySession{ClientID: e.ClientID, StartTime: e.StartTime})
	}
	return out, nil
}

func decodeNotifications(r io.Reader) ([]model.Notification, error) {
	rows, err := readRecords(r, notificationHeader)
	if err != nil {
		return nil, err
	}
	out := make([]model.Notification, 0, len(rows))
	for _, row := range rows {
		start, err := parseTime(row[2])
		if err != nil {
			return nil, fmt.Errorf("notification for %s: %w", row[0], err)
		}
		out = append(out, model.Notification{ClientID: row[0], Type: row[1], StartTime: start})
	}
	return out, nil
}

func decodePlannedEvents(r io.Reader) ([]model.PlannedEvent, error) {
	rows, err := readRecords(r, eventHeader)
	if err != nil {
		return nil, err
	}
	out := make([]model.PlannedEvent, 0, len(rows))
	for _, row := range rows {
		expr, err := DecodeRecurringExpression(row[2])
		if err != nil {
			return nil, fmt.Errorf("planned event %s: %w", row[0], err)
		}
		start, err := parseTime(row[3])
		if err != nil {
			return nil, fmt.Errorf("planned event %s: %w", row[0], err)
		}
		end, err := parseOptionalTime(row[4])
		if err != nil {
			return nil, fmt.Errorf("planned event %s: %w", row[0], err)
		}
		terminated, err := parseOptionalTime(row[5])
		if err != nil {
			return nil, fmt.Errorf("planned event %s: %w", row[0], err)
		}
		out = append(out, model.PlannedEvent{
			ID:                  row[0],
			ClientID:            row[1],
			RecurringExpression: expr,
			StartTime:           start,
			EndTime:             end,
			TerminatedTime:      terminated,
		})
	}
	return out, nil
}

func decodeReflections(r io.Reader) ([]model.PlannedEventReflection, error) {
	rows, err := readRecords(r, reflectionHeader)
	if err != nil {
		return nil, err
	}
	out := make([]model.PlannedEventReflection, 0, len(rows))
	for _, row := range rows {
		start, err := parseTime(row[2])
		if err != nil {
			return nil, fmt.Errorf("reflection for event %s: %w", row[0], err)
		}
		out = append(out, model.PlannedEventReflection{
			PlannedEventID: row[0],
			ClientID:       row[1],
			StartTime:      start,
			Status:         row[3],
		})
	}
	return out, nil
}

func decodeCompletions(r io.Reader) ([]model.PlannedEventCompletion, error) {
	rows, err := readRecords(r, completionHeader)
	if err != nil {
		return nil, err
	}
	out := make([]model.PlannedEventCompletion, 0, len(rows))
	for _, row := range rows {
		start, err := parseTime(row[2])
		if err != nil {
			return nil, fmt.Errorf("completion for event %s: %w", row[1], err)
		}
		out = append(out, model.PlannedEventCompletion{
			ClientID:       row[0],
			PlannedEventID: row[1],
			StartTime:      start,
			Status:         row[3],
		})
	}
	return out, nil
}

func encodeCompletions(w io.Writer, completions []model.PlannedEventCompletion) error {
	rows := make([][]string, 0, len(completions))
	for _, c := range completions {
		rows = append(rows, []string{c.ClientID, c.PlannedEventID, formatTime(c.StartTime), c.Status})
	}
	return writeRecords(w, completionHeader, rows)
}

func decodeSMQs(r io.Reader) ([]model.SMQ, error) {
	rows, err := readRecords(r, smqHeader)
	if err != nil {
		return nil, err
	}
	out := make([]model.SMQ, 0, len(rows))
	for _, row := range rows {
		start, err := parseTime(row[1])
		if err != nil {
			return nil, fmt.Errorf("smq for %s: %w", row[0], err)
		}
		scores := make([]float64, 6)
		for i, col := range row[2:] {
			f, err := strconv.ParseFloat(strings.TrimSpace(col), 64)
			if err != nil {
				return nil, fmt.Errorf("smq for %s: %s: %w", row[0], smqHeader[2+i], err)
			}
			scores[i] = f
		}
		out = append(out, model.SMQ{
			ClientID:      row[0],
			StartTime:     start,
			Applicability: scores[0],
			Connection:    scores[1],
			Content:       scores[2],
			Progress:      scores[3],
			WayOfWorking:  scores[4],
			Score:         scores[5],
		})
	}
	return out, nil
}
