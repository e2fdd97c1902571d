package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseflag/caseflag/internal/model"
)

func TestDecodeTrackerValue_PythonBooleanLiterals(t *testing.T) {
	v, err := DecodeTrackerValue("{'boolean': True}")
	require.NoError(t, err)
	require.NotNil(t, v.Boolean)
	assert.True(t, *v.Boolean)

	v, err = DecodeTrackerValue("{'boolean': False}")
	require.NoError(t, err)
	require.NotNil(t, v.Boolean)
	assert.False(t, *v.Boolean)
}

func TestDecodeTrackerValue_WorryDuration(t *testing.T) {
	v, err := DecodeTrackerValue("{'duration': 900}")
	require.NoError(t, err)
	require.NotNil(t, v.Duration)
	assert.Equal(t, 900.0, *v.Duration)
	assert.Nil(t, v.Boolean)
}

func TestDecodeTrackerValue_EmptyStructure(t *testing.T) {
	v, err := DecodeTrackerValue("{}")
	require.NoError(t, err)
	assert.Nil(t, v.Boolean)
	assert.Nil(t, v.Duration)
}

func TestDecodeTrackerValue_MalformedFails(t *testing.T) {
	for _, raw := range []string{"", "boolean", "{'boolean':", "1e"} {
		_, err := DecodeTrackerValue(raw)
		require.Error(t, err, "raw=%q", raw)

		var decodeErr *model.DecodeError
		require.ErrorAs(t, err, &decodeErr)
		assert.Equal(t, "value", decodeErr.Field)
	}
}

func TestDecodeRecurringExpression(t *testing.T) {
	expr, err := DecodeRecurringExpression(`{'rrule': 'DTSTART:20230328T120000\nRRULE:FREQ=DAILY;'}`)
	require.NoError(t, err)
	assert.Equal(t, "DTSTART:20230328T120000\nRRULE:FREQ=DAILY;", expr.RRule)
}

func TestDecodeRecurringExpression_MalformedFails(t *testing.T) {
	_, err := DecodeRecurringExpression("{'rrule'}")
	require.Error(t, err)

	var decodeErr *model.DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, "recurring_expression", decodeErr.Field)
}
