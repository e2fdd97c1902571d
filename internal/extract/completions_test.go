package extract

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseflag/caseflag/internal/model"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func weeklyEvent(id, clientID string, start time.Time) model.PlannedEvent {
	return model.PlannedEvent{
		ID:        id,
		ClientID:  clientID,
		StartTime: start,
		RecurringExpression: model.RecurringExpression{
			RRule: "FREQ=WEEKLY",
		},
	}
}

func TestMaterializeCompletions_TerminatedEvent(t *testing.T) {
	terminated := day("2023-09-15")
	ev := weeklyEvent("pe-1", "cid-1", day("2023-09-01"))
	ev.TerminatedTime = &terminated

	reflections := []model.PlannedEventReflection{
		{PlannedEventID: "pe-1", ClientID: "cid-1", StartTime: day("2023-09-08").Add(18 * time.Hour), Status: model.StatusCompleted},
	}

	completions, err := MaterializeCompletions([]model.PlannedEvent{ev}, reflections, nil, day("2023-12-01"))
	require.NoError(t, err)

	require.Len(t, completions, 3)
	assert.Equal(t, day("2023-09-01"), completions[0].StartTime)
	assert.Equal(t, model.StatusIncompleted, completions[0].Status)
	assert.Equal(t, day("2023-09-08"), completions[1].StartTime)
	assert.Equal(t, model.StatusCompleted, completions[1].Status)
	assert.Equal(t, day("2023-09-15"), completions[2].StartTime)
	assert.Equal(t, model.StatusIncompleted, completions[2].Status)
}

func TestMaterializeCompletions_TruncatesToMidnight(t *testing.T) {
	end := day("2023-09-10")
	ev := weeklyEvent("pe-1", "cid-1", day("2023-09-01").Add(10*time.Hour+30*time.Minute))
	ev.EndTime = &end

	completions, err := MaterializeCompletions([]model.PlannedEvent{ev}, nil, nil, day("2023-12-01"))
	require.NoError(t, err)

	require.Len(t, completions, 2)
	assert.Equal(t, day("2023-09-01"), completions[0].StartTime)
	assert.Equal(t, day("2023-09-08"), completions[1].StartTime)
}

func TestMaterializeCompletions_ClientEndFallback(t *testing.T) {
	clientEnd := day("2023-09-20")
	client := model.Client{ClientID: "cid-1", EndTime: &clientEnd}
	ev := weeklyEvent("pe-1", "cid-1", day("2023-09-01"))

	completions, err := MaterializeCompletions([]model.PlannedEvent{ev}, nil, []model.Client{client}, day("2023-12-01"))
	require.NoError(t, err)

	// Occurrences on the 1st, 8th and 15th; the 22nd falls past the
	// client's treatment end.
	require.Len(t, completions, 3)
}

func TestMaterializeCompletions_TodayFallbackForOpenEvents(t *testing.T) {
	ev := weeklyEvent("pe-1", "cid-1", day("2023-09-01"))

	completions, err := MaterializeCompletions([]model.PlannedEvent{ev}, nil, nil, day("2023-09-18"))
	require.NoError(t, err)

	require.Len(t, completions, 3)
	assert.Equal(t, day("2023-09-15"), completions[2].StartTime)
}

func TestMaterializeCompletions_LatestReflectionOfDayWins(t *testing.T) {
	terminated := day("2023-09-01")
	ev := weeklyEvent("pe-1", "cid-1", day("2023-09-01"))
	ev.TerminatedTime = &terminated

	reflections := []model.PlannedEventReflection{
		{PlannedEventID: "pe-1", ClientID: "cid-1", StartTime: day("2023-09-01").Add(9 * time.Hour), Status: model.StatusCanceled},
		{PlannedEventID: "pe-1", ClientID: "cid-1", StartTime: day("2023-09-01").Add(20 * time.Hour), Status: model.StatusCompleted},
	}

	completions, err := MaterializeCompletions([]model.PlannedEvent{ev}, reflections, nil, day("2023-12-01"))
	require.NoError(t, err)

	require.Len(t, completions, 1)
	assert.Equal(t, model.StatusCompleted, completions[0].Status)
}

func TestMaterializeCompletions_FullRFCRuleWithDTSTART(t *testing.T) {
	terminated := day("2023-03-30")
	ev := weeklyEvent("pe-1", "cid-1", day("2023-03-28"))
	ev.TerminatedTime = &terminated
	ev.RecurringExpression.RRule = "DTSTART:20230328T120000\nRRULE:FREQ=DAILY;"

	completions, err := MaterializeCompletions([]model.PlannedEvent{ev}, nil, nil, day("2023-12-01"))
	require.NoError(t, err)

	require.Len(t, completions, 3)
	assert.Equal(t, day("2023-03-28"), completions[0].StartTime)
	assert.Equal(t, day("2023-03-29"), completions[1].StartTime)
	assert.Equal(t, day("2023-03-30"), completions[2].StartTime)
}

func TestMaterializeCompletions_EmbeddedDTSTARTAnchorsRecurrence(t *testing.T) {
	terminated := day("2023-09-20")
	ev := weeklyEvent("pe-1", "cid-1", day("2023-09-01"))
	ev.TerminatedTime = &terminated
	ev.RecurringExpression.RRule = "DTSTART:20230903T000000\nRRULE:FREQ=WEEKLY"

	completions, err := MaterializeCompletions([]model.PlannedEvent{ev}, nil, nil, day("2023-12-01"))
	require.NoError(t, err)

	// The recurrence runs from the embedded DTSTART, not the event start.
	require.Len(t, completions, 3)
	assert.Equal(t, day("2023-09-03"), completions[0].StartTime)
	assert.Equal(t, day("2023-09-10"), completions[1].StartTime)
	assert.Equal(t, day("2023-09-17"), completions[2].StartTime)
}

func TestMaterializeCompletions_TrailingSemicolonAccepted(t *testing.T) {
	terminated := day("2023-09-02")
	ev := weeklyEvent("pe-1", "cid-1", day("2023-09-01"))
	ev.TerminatedTime = &terminated
	ev.RecurringExpression.RRule = "FREQ=DAILY;"

	completions, err := MaterializeCompletions([]model.PlannedEvent{ev}, nil, nil, day("2023-12-01"))
	require.NoError(t, err)
	assert.Len(t, completions, 3)
}

func TestMaterializeCompletions_MalformedRuleFails(t *testing.T) {
	ev := weeklyEvent("pe-1", "cid-1", day("2023-09-01"))
	ev.RecurringExpression.RRule = "FREQ=SOMETIMES"

	_, err := MaterializeCompletions([]model.PlannedEvent{ev}, nil, nil, day("2023-12-01"))
	require.Error(t, err)

	var decodeErr *model.DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.Equal(t, "recurring_expression.rrule", decodeErr.Field)
}

func TestMaterializeCompletions_RulePrefixAccepted(t *testing.T) {
	terminated := day("2023-09-01")
	ev := weeklyEvent("pe-1", "cid-1", day("2023-09-01"))
	ev.TerminatedTime = &terminated
	ev.RecurringExpression.RRule = "RRULE:FREQ=DAILY"

	completions, err := MaterializeCompletions([]model.PlannedEvent{ev}, nil, nil, day("2023-12-01"))
	require.NoError(t, err)
	assert.Len(t, completions, 2)
}
