package extract

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseflag/caseflag/internal/snapshot"
)

type fakeSource struct {
	data map[string][]byte
	errs map[string]error
}

func (f *fakeSource) DownloadEntity(_ context.Context, entity string) ([]byte, error) {
	if err := f.errs[entity]; err != nil {
		return nil, err
	}
	if d, ok := f.data[entity]; ok {
		return d, nil
	}
	return []byte("client_id,start_time\n"), nil
}

func TestExtractorRun_PersistsAllEntities(t *testing.T) {
	store := snapshot.NewCSVStore(t.TempDir())
	source := &fakeSource{data: map[string][]byte{
		snapshot.EntityCommunications: []byte("client_id,start_time,call_made,chat_msg_sent\ncid-1,2023-09-01,true,false\ncid-1,2023-09-02,true,true\n"),
		snapshot.EntityDiaryEntries:   []byte("client_id,start_time\ncid-1,2023-09-01\n"),
	}}

	date := time.Date(2023, 9, 10, 0, 0, 0, 0, time.UTC)
	counts, err := New(source, store, zerolog.Nop()).Run(context.Background(), date)
	require.NoError(t, err)

	require.Len(t, counts, len(snapshot.RawEntities))
	assert.Equal(t, 2, counts[snapshot.EntityCommunications])
	assert.Equal(t, 1, counts[snapshot.EntityDiaryEntries])
	assert.Equal(t, 0, counts[snapshot.EntitySMQs])

	comms, err := store.Communications(date)
	require.NoError(t, err)
	assert.Len(t, comms, 2)
}

func TestExtractorRun_DownloadFailureAborts(t *testing.T) {
	store := snapshot.NewCSVStore(t.TempDir())
	source := &fakeSource{errs: map[string]error{
		snapshot.EntityNotifications: errors.New("card query timed out"),
	}}

	_, err := New(source, store, zerolog.Nop()).Run(context.Background(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), snapshot.EntityNotifications)
}
