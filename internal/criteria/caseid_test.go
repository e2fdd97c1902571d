package criteria

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCaseID_GoldenValue(t *testing.T) {
	ts := time.Date(2023, 10, 5, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "7508d3cd9f37e75bd24a8f6982b7fd5e", CaseID("CID-1", "TID-1", ts))
}

func TestCaseID_IgnoresTimeOfDay(t *testing.T) {
	morning := time.Date(2023, 10, 5, 8, 30, 0, 0, time.UTC)
	evening := time.Date(2023, 10, 5, 21, 0, 0, 0, time.UTC)
	assert.Equal(t, CaseID("CID-1", "TID-1", morning), CaseID("CID-1", "TID-1", evening))
}

func TestCaseID_DistinctInputs(t *testing.T) {
	ts := time.Date(2023, 10, 5, 0, 0, 0, 0, time.UTC)
	a := CaseID("CID-1", "TID-1", ts)
	assert.NotEqual(t, a, CaseID("CID-2", "TID-1", ts))
	assert.NotEqual(t, a, CaseID("CID-1", "TID-2", ts))
	assert.NotEqual(t, a, CaseID("CID-1", "TID-1", ts.AddDate(0, 0, 1)))
}
