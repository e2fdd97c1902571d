package metabase

import (
	"fmt"

	"github.com/caseflag/caseflag/internal/snapshot"
)

// Registry maps snapshot entities to the saved report (card) ids that expose
// them. One parametrized client serves every dataset; adding a dataset is a
// registry entry, not a new client type.
type Registry map[string]int

// DefaultRegistry lists the production card ids for every raw entity.
var DefaultRegistry = Registry{
	snapshot.EntityClients:          2254,
	snapshot.EntityCommunications:   2243,
	snapshot.EntityCustomTrackers:   2248,
	snapshot.EntityDiaryEntries:     2244,
	snapshot.EntityNotifications:    2250,
	snapshot.EntityPlannedEvents:    2255,
	snapshot.EntityEventReflections: 2256,
	snapshot.EntityTherapySessions:  2258,
	snapshot.EntityThoughtRecords:   2245,
	snapshot.EntitySMQs:             2251,
}

// CardID resolves the card id serving an entity.
func (r Registry) CardID(entity string) (int, error) {
	id, ok := r[entity]
	if !ok {
		return 0, fmt.Errorf("no card registered for entity %q", entity)
	}
	return id, nil
}
