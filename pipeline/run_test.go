package pipeline

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseflag/caseflag/internal/config"
	"github.com/caseflag/caseflag/internal/localstate"
	"github.com/caseflag/caseflag/internal/sink"
	"github.com/caseflag/caseflag/internal/snapshot"
)

// seedPartition writes a minimal but coherent raw partition: one client with
// daily calls and chats, two tracker registrations and otherwise empty
// tables.
func seedPartition(t *testing.T, store *snapshot.CSVStore, date time.Time) {
	t.Helper()

	write := func(entity, data string) {
		require.NoError(t, store.WriteRaw(entity, date, []byte(data)))
	}

	write(snapshot.EntityClients,
		"client_id,therapist_id,start_time,end_time,no_of_registrations\n"+
			"cid-1,tid-1,2023-09-01,2023-10-30,2\n")
	write(snapshot.EntityCommunications,
		"client_id,start_time,call_made,chat_msg_sent\n"+
			"cid-1,2023-09-01,true,true\n"+
			"cid-1,2023-09-02,true,true\n"+
			"cid-1,2023-09-03,true,true\n"+
			"cid-1,2023-09-04,true,true\n"+
			"cid-1,2023-09-05,true,true\n")
	write(snapshot.EntityCustomTrackers,
		"client_id,start_time,name,value\n"+
			"cid-1,2023-09-01,measure_worry,\"{'duration': 30}\"\n"+
			"cid-1,2023-09-03,measure_worry,\"{'duration': 15}\"\n")
	write(snapshot.EntityDiaryEntries, "client_id,start_time\n")
	write(snapshot.EntityNotifications, "client_id,type,start_time\n")
	write(snapshot.EntityPlannedEvents, "id,client_id,recurring_expression,start_time,end_time,terminated_time\n")
	write(snapshot.EntityEventReflections, "planned_event_id,client_id,start_time,status\n")
	write(snapshot.EntityTherapySessions, "client_id,start_time\n")
	write(snapshot.EntityThoughtRecords, "client_id,start_time\n")
	write(snapshot.EntitySMQs, "client_id,start_time,applicability,connection,content,progress,way_of_working,score\n")
}

func TestRunStages_DeriveFromSeededPartition(t *testing.T) {
	dataDir := t.TempDir()
	date := time.Date(2023, 9, 10, 0, 0, 0, 0, time.UTC)

	store := snapshot.NewCSVStore(dataDir)
	seedPartition(t, store, date)

	cfg := config.NewForTesting()
	cfg.DataDir = dataDir
	cfg.LookbackDays = 1

	ledger, err := localstate.Open(dataDir)
	require.NoError(t, err)
	defer ledger.Close()

	runID := uuid.NewString()
	require.NoError(t, ledger.BeginRun(runID, date, time.Now()))
	require.NoError(t, runStages(context.Background(), cfg, store, ledger, runID, date, zerolog.Nop(), false))

	// The derived completions table was materialized, even when empty.
	completions, err := store.EventCompletions(date)
	require.NoError(t, err)
	assert.Empty(t, completions)

	rows, err := ledger.DatasetRows(runID)
	require.NoError(t, err)
	assert.Equal(t, 0, rows[snapshot.EntityEventCompletions])

	// All three views land in the dated output partition.
	outDir := filepath.Join(dataDir, "output", "2023-09-10")
	for _, view := range []string{sink.ViewAll, sink.ViewValid, sink.ViewValidWithPhase} {
		f, err := os.Open(filepath.Join(outDir, view+".csv"))
		require.NoError(t, err, view)
		records, err := csv.NewReader(f).ReadAll()
		f.Close()
		require.NoError(t, err)

		// Call indices 2, 3 and 4 qualify with a one-day lookback.
		assert.Len(t, records, 4, view)
	}
}

func TestLoadConfig_CommandLineOverrides(t *testing.T) {
	t.Setenv("CASEFLAG_DATA_DIR", "/var/lib/caseflag")

	cfg, err := loadConfig("01/09/2023", "/srv/caseflag-data", zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "01/09/2023", cfg.RunForSpecificDate)
	assert.Equal(t, "/srv/caseflag-data", cfg.DataDir)

	// Empty overrides leave the environment-derived values alone.
	cfg, err = loadConfig("", "", zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/caseflag", cfg.DataDir)
}

func TestRunStages_MissingPartitionFails(t *testing.T) {
	dataDir := t.TempDir()
	date := time.Date(2023, 9, 10, 0, 0, 0, 0, time.UTC)

	cfg := config.NewForTesting()
	cfg.DataDir = dataDir

	ledger, err := localstate.Open(dataDir)
	require.NoError(t, err)
	defer ledger.Close()

	runID := uuid.NewString()
	require.NoError(t, ledger.BeginRun(runID, date, time.Now()))

	err = runStages(context.Background(), cfg, snapshot.NewCSVStore(dataDir), ledger, runID, date, zerolog.Nop(), false)
	require.Error(t, err)
}
