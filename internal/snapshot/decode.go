package snapshot

import (
	"encoding/json"
	"strings"

	"github.com/caseflag/caseflag/internal/model"
)

// The reporting API exports structure columns as Python dict literals
// ({'boolean': True}). canonicalize rewrites those literals into JSON before
// strict parsing. Anything else must fail decoding: substituting a default
// here would silently corrupt the registration counts downstream.
var literalReplacer = strings.NewReplacer(
	"'", `"`,
	"True", "true",
	"False", "false",
	"None", "null",
)

func canonicalize(raw string) string {
	return literalReplacer.Replace(strings.TrimSpace(raw))
}

// DecodeTrackerValue parses a custom tracker's value structure.
func DecodeTrackerValue(raw string) (model.TrackerValue, error) {
	var v model.TrackerValue
	if err := json.Unmarshal([]byte(canonicalize(raw)), &v); err != nil {
		return model.TrackerValue{}, &model.DecodeError{Field: "value", Raw: raw, Err: err}
	}
	return v, nil
}

// DecodeRecurringExpression parses a planned event's recurrence structure.
func DecodeRecurringExpression(raw string) (model.RecurringExpression, error) {
	var v model.RecurringExpression
	if err := json.Unmarshal([]byte(canonicalize(raw)), &v); err != nil {
		return model.RecurringExpression{}, &model.DecodeError{Field: "recurring_expression", Raw: raw, Err: err}
	}
	return v, nil
}
