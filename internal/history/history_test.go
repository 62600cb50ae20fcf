package history

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/mikana/dashboard/internal/models"
	"github.com/mikana/dashboard/internal/store"
)

func setupStorage(t *testing.T) *store.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	st := store.New(db)
	require.NoError(t, st.Migrate())
	return st
}

func session(i int) models.PredictionSession {
	return models.PredictionSession{
		Timestamp:     time.Date(2024, 3, 1, 10, i, 0, 0, time.UTC),
		Establishment: fmt.Sprintf("E%d", i),
		LinenType:     "Draps",
		Predictions:   []models.SessionPoint{{Date: "2024-03-01", Value: float64(i)}},
	}
}

func TestAppendCapsAtTen(t *testing.T) {
	st := setupStorage(t)
	h, err := Open(st.ClientStorage("c1"))
	require.NoError(t, err)

	for i := 1; i <= 11; i++ {
		require.NoError(t, h.Append(session(i)))
	}

	list := h.List()
	require.Len(t, list, Capacity)
	assert.Equal(t, "E11", list[0].Establishment, "newest first")
	assert.Equal(t, "E2", list[len(list)-1].Establishment, "first session evicted")
}

func TestReloadRoundTrip(t *testing.T) {
	st := setupStorage(t)
	h, err := Open(st.ClientStorage("c1"))
	require.NoError(t, err)
	for i := 1; i <= 3; i++ {
		require.NoError(t, h.Append(session(i)))
	}

	reloaded, err := Open(st.ClientStorage("c1"))
	require.NoError(t, err)
	assert.Equal(t, h.List(), reloaded.List())

	other, err := Open(st.ClientStorage("c2"))
	require.NoError(t, err)
	assert.Empty(t, other.List())
}

func TestClear(t *testing.T) {
	st := setupStorage(t)
	h, err := Open(st.ClientStorage("c1"))
	require.NoError(t, err)
	require.NoError(t, h.Append(session(1)))

	require.NoError(t, h.Clear())
	assert.Empty(t, h.List())

	rec, err := st.GetState("c1", Key)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestOpenIgnoresUnreadablePayloads(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		version int
	}{
		{"corrupt json", `[{"timestamp":`, SchemaVersion},
		{"wrong shape", `{"not":"a list"}`, SchemaVersion},
		{"future schema", `[]`, SchemaVersion + 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := setupStorage(t)
			require.NoError(t, st.PutState("c1", Key, []byte(tt.payload), tt.version))

			h, err := Open(st.ClientStorage("c1"))
			require.NoError(t, err)
			assert.Empty(t, h.List())
		})
	}
}

func TestListReturnsCopy(t *testing.T) {
	st := setupStorage(t)
	h, err := Open(st.ClientStorage("c1"))
	require.NoError(t, err)
	require.NoError(t, h.Append(session(1)))

	list := h.List()
	list[0].Predictions[0].Value = 999
	assert.Equal(t, 1.0, h.List()[0].Predictions[0].Value)
}

type failingStorage struct {
	Storage
	failSave bool
}

func (f *failingStorage) Save(key string, data []byte, version int) error {
	if f.failSave {
		return errors.New("disk full")
	}
	return f.Storage.Save(key, data, version)
}

func TestFailedWriteLeavesMemoryUnchanged(t *testing.T) {
	st := setupStorage(t)
	fs := &failingStorage{Storage: st.ClientStorage("c1")}
	h, err := Open(fs)
	require.NoError(t, err)
	require.NoError(t, h.Append(session(1)))

	fs.failSave = true
	require.Error(t, h.Append(session(2)))
	require.Len(t, h.List(), 1)
	assert.Equal(t, "E1", h.List()[0].Establishment)

	reloaded, err := Open(st.ClientStorage("c1"))
	require.NoError(t, err)
	assert.Equal(t, h.List(), reloaded.List())
}
