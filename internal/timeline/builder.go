// Package timeline reconstructs a client's treatment timeline from their
// call history and expands it into the snapshot instants criteria are
// evaluated at.
package timeline

import (
	"sort"
	"time"

	"github.com/caseflag/caseflag/internal/model"
)

// Clients normally complete the online treatment in 13 calls. The first two
// calls are intake/observation sessions and never produce snapshots; calls
// beyond the thirteenth fall outside the program.
const (
	firstTreatmentSession = 2
	lastTreatmentSession  = 13
)

// Phase boundaries, in 0-based call index.
const (
	startPhaseLastSession = 3
	midPhaseLastSession   = 8
)

// BuildSnapshots turns a client's communications into treatment snapshots:
// one (phase, timestamp) instant per qualifying call, each expanded into
// lookbackDays daily instants ending at the call itself.
//
// The earliest call must match the client's declared treatment start date;
// a mismatch is a data-integrity failure fatal to this client only.
func BuildSnapshots(client model.Client, comms []model.Communication, lookbackDays int) ([]model.TreatmentSnapshot, error) {
	calls := make([]time.Time, 0, len(comms))
	for _, c := range comms {
		if c.ClientID == client.ClientID && c.CallMade {
			calls = append(calls, c.StartTime)
		}
	}
	sort.Slice(calls, func(i, j int) bool { return calls[i].Before(calls[j]) })

	if len(calls) == 0 {
		return nil, &model.DataIntegrityError{
			ClientID: client.ClientID,
			Detail:   "no calls recorded",
		}
	}
	if !calls[0].Equal(client.StartTime) {
		return nil, &model.DataIntegrityError{
			ClientID: client.ClientID,
			Detail:   "first call does not match treatment start date",
		}
	}

	var snapshots []model.TreatmentSnapshot
	for idx, callTime := range calls {
		if idx < firstTreatmentSession || idx > lastTreatmentSession {
			continue
		}
		phase := phaseForSession(idx)
		for day := 0; day < lookbackDays; day++ {
			snapshots = append(snapshots, model.TreatmentSnapshot{
				Client:    client,
				Phase:     phase,
				Timestamp: callTime.AddDate(0, 0, -day),
			})
		}
	}
	return snapshots, nil
}

func phaseForSession(idx int) int {
	switch {
	case idx <= startPhaseLastSession:
		return model.PhaseStart
	case idx <= midPhaseLastSession:
		return model.PhaseMid
	default:
		return model.PhaseEnd
	}
}
