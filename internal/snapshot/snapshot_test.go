package snapshot

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runnerr0/browsedash/internal/history"
	"github.com/runnerr0/browsedash/internal/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(t.TempDir(), logger.Discard())
	s.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	return s
}

func sampleVisits() []history.NormalizedVisit {
	return []history.NormalizedVisit{
		{Domain: "a.com", Date: "2026-02-20", Visits: 3, Title: "A"},
		{Domain: "b.com", Date: "2026-02-21", Visits: 1, Title: "b.com"},
	}
}

func TestLoad_Missing(t *testing.T) {
	s := newTestStore(t)
	snap, err := s.Load()
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestSaveLoad(t *testing.T) {
	s := newTestStore(t)
	lastSync := time.Date(2026, 2, 21, 8, 0, 0, 0, time.UTC)

	err := s.Save(&Snapshot{
		Source:   OriginExtension,
		Visits:   sampleVisits(),
		LastSync: Millis(lastSync),
		ExtID:    "abcdef",
	})
	require.NoError(t, err)

	snap, err := s.Load()
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, Version, snap.Version)
	assert.Equal(t, int64(1_700_000_000_000), snap.SavedAt)
	assert.Equal(t, OriginExtension, snap.Source)
	assert.Equal(t, sampleVisits(), snap.Visits)
	assert.True(t, lastSync.Equal(Time(snap.LastSync)))
	assert.Equal(t, "abcdef", snap.ExtID)
	assert.NotEmpty(t, snap.DeviceID)
	assert.Nil(t, snap.LastServerSync)
}

func TestSave_NilVisitsWritesEmptyList(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save(&Snapshot{Source: OriginFile}))

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"visits":[]`)
}

func TestLoad_UnknownVersionDiscarded(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.WriteFile(s.Path(), []byte(`{"version":2,"visits":[]}`), 0o600))

	snap, err := s.Load()
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestLoad_CorruptDiscarded(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.WriteFile(s.Path(), []byte(`{not json`), 0o600))

	snap, err := s.Load()
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestClear(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save(&Snapshot{Source: OriginFile, Visits: sampleVisits()}))

	require.NoError(t, s.Clear())
	snap, err := s.Load()
	require.NoError(t, err)
	assert.Nil(t, snap)

	// Clearing twice is fine.
	require.NoError(t, s.Clear())
}

func TestDeviceID_StableAcrossSaves(t *testing.T) {
	s := newTestStore(t)

	id, err := s.DeviceID()
	require.NoError(t, err)
	require.NoError(t, s.Save(&Snapshot{Source: OriginFile}))

	snap, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, id, snap.DeviceID)

	// A second store over the same directory reads the persisted ID.
	other := New(filepath.Dir(s.Path()), logger.Discard())
	again, err := other.DeviceID()
	require.NoError(t, err)
	assert.Equal(t, id, again)
}

func TestRecordSync(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save(&Snapshot{Source: OriginExtension, Visits: sampleVisits()}))

	syncedAt := time.Date(2026, 2, 21, 9, 30, 0, 0, time.UTC)
	require.NoError(t, s.RecordSync(syncedAt, nil))

	snap, err := s.Load()
	require.NoError(t, err)
	assert.True(t, syncedAt.Equal(Time(snap.LastServerSync)))
	assert.Empty(t, snap.LastServerError)

	require.NoError(t, s.RecordSync(syncedAt.Add(time.Hour), errors.New("server returned 500")))
	snap, err = s.Load()
	require.NoError(t, err)
	assert.True(t, syncedAt.Equal(Time(snap.LastServerSync)), "failure keeps last good sync")
	assert.Equal(t, "server returned 500", snap.LastServerError)

	// The next collection keeps the sync state.
	require.NoError(t, s.Save(&Snapshot{Source: OriginExtension, Visits: sampleVisits()}))
	snap, err = s.Load()
	require.NoError(t, err)
	assert.True(t, syncedAt.Equal(Time(snap.LastServerSync)))
	assert.Equal(t, "server returned 500", snap.LastServerError)
}

func TestRecordSync_NoSnapshot(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.RecordSync(time.Now(), nil))

	snap, err := s.Load()
	require.NoError(t, err)
	assert.Nil(t, snap)
}
