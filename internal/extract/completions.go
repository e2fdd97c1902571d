package extract

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/caseflag/caseflag/internal/model"
)

// MaterializeCompletions expands every planned event's recurrence rule into
// one occurrence row per scheduled instance, and pairs each occurrence with
// the client's reflection from the same calendar day. Occurrences without a
// reflection are recorded as INCOMPLETED.
//
// Occurrences are generated within [event start, end + 1 day], where end is
// the first set of: terminated_time, the event's end_time, the client's
// end_time, or today. Each occurrence timestamp is truncated to midnight.
func MaterializeCompletions(events []model.PlannedEvent, reflections []model.PlannedEventReflection, clients []model.Client, today time.Time) ([]model.PlannedEventCompletion, error) {
	clientEnd := make(map[string]*time.Time, len(clients))
	for _, c := range clients {
		clientEnd[c.ClientID] = c.EndTime
	}

	// Latest reflection per (event, calendar day) wins.
	type reflKey struct {
		eventID string
		day     string
	}
	latest := make(map[reflKey]model.PlannedEventReflection, len(reflections))
	for _, r := range reflections {
		k := reflKey{eventID: r.PlannedEventID, day: r.StartTime.Format("2006-01-02")}
		if prev, ok := latest[k]; !ok || r.StartTime.After(prev.StartTime) {
			latest[k] = r
		}
	}

	var completions []model.PlannedEventCompletion
	for _, ev := range events {
		end := calculatedEnd(ev, clientEnd[ev.ClientID], today)
		occurrences, err := expand(ev, end)
		if err != nil {
			return nil, err
		}
		for _, occ := range occurrences {
			day := truncateToDay(occ)
			status := model.StatusIncompleted
			if r, ok := latest[reflKey{eventID: ev.ID, day: day.Format("2006-01-02")}]; ok {
				status = r.Status
			}
			completions = append(completions, model.PlannedEventCompletion{
				ClientID:       ev.ClientID,
				PlannedEventID: ev.ID,
				StartTime:      day,
				Status:         status,
			})
		}
	}

	sort.SliceStable(completions, func(i, j int) bool {
		if completions[i].ClientID != completions[j].ClientID {
			return completions[i].ClientID < completions[j].ClientID
		}
		if !completions[i].StartTime.Equal(completions[j].StartTime) {
			return completions[i].StartTime.Before(completions[j].StartTime)
		}
		return completions[i].PlannedEventID < completions[j].PlannedEventID
	})
	return completions, nil
}

// calculatedEnd picks the effective end of an event's active interval and
// extends it by one day so same-day occurrences are included.
func calculatedEnd(ev model.PlannedEvent, clientEnd *time.Time, today time.Time) time.Time {
	switch {
	case ev.TerminatedTime != nil:
		return ev.TerminatedTime.AddDate(0, 0, 1)
	case ev.EndTime != nil:
		return ev.EndTime.AddDate(0, 0, 1)
	case clientEnd != nil:
		return clientEnd.AddDate(0, 0, 1)
	default:
		return today.AddDate(0, 0, 1)
	}
}

// dtstartLayouts are the timestamp formats a DTSTART line may carry.
var dtstartLayouts = []string{"20060102T150405Z", "20060102T150405", "20060102"}

// expand evaluates the event's recurrence rule between the event's start and
// end. The source exports rules both as bare option strings ("FREQ=WEEKLY")
// and as full RFC5545 blocks with a DTSTART line; an embedded DTSTART
// anchors the recurrence, the event's own start time otherwise.
func expand(ev model.PlannedEvent, end time.Time) ([]time.Time, error) {
	raw := ev.RecurringExpression.RRule
	fail := func(err error) ([]time.Time, error) {
		return nil, &model.DecodeError{Field: "recurring_expression.rrule", Raw: raw, Err: err}
	}

	dtstart := ev.StartTime
	var ruleStr string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
		case strings.HasPrefix(line, "DTSTART"):
			t, err := parseDtstart(line)
			if err != nil {
				return fail(err)
			}
			dtstart = t
		default:
			ruleStr = strings.TrimPrefix(line, "RRULE:")
		}
	}

	// The source often leaves a trailing semicolon ("FREQ=DAILY;").
	ruleStr = strings.Trim(ruleStr, ";")
	if ruleStr == "" {
		return fail(errors.New("missing RRULE"))
	}
	opts, err := rrule.StrToROption(ruleStr)
	if err != nil {
		return fail(err)
	}
	opts.Dtstart = dtstart
	rule, err := rrule.NewRRule(*opts)
	if err != nil {
		return fail(err)
	}
	return rule.Between(ev.StartTime, end, true), nil
}

// parseDtstart reads a DTSTART line, ignoring any parameters before the
// value separator.
func parseDtstart(line string) (time.Time, error) {
	_, value, ok := strings.Cut(line, ":")
	if !ok {
		return time.Time{}, fmt.Errorf("malformed DTSTART line %q", line)
	}
	value = strings.TrimSpace(value)
	for _, layout := range dtstartLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized DTSTART value %q", value)
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
