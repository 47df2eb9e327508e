package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_SaveAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	g := &Generation{
		ApplicationID: "app-42",
		Template:      "resources/template.docx",
		OutputPath:    "generated/app-42.docx",
		SizeBytes:     18231,
		Requested:     30,
		Resolved:      28,
		Missing:       []string{"備註", "週次 18"},
		Rounds:        2,
		Batches:       4,
		Status:        StatusPartial,
	}
	require.NoError(t, store.SaveGeneration(ctx, g))
	require.NotEmpty(t, g.ID)
	require.False(t, g.CreatedAt.IsZero())

	loaded, err := store.GetGeneration(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, g.ApplicationID, loaded.ApplicationID)
	assert.Equal(t, g.OutputPath, loaded.OutputPath)
	assert.Equal(t, int64(18231), loaded.SizeBytes)
	assert.Equal(t, 28, loaded.Resolved)
	assert.Equal(t, []string{"備註", "週次 18"}, loaded.Missing)
	assert.Equal(t, StatusPartial, loaded.Status)
	assert.WithinDuration(t, g.CreatedAt, loaded.CreatedAt, time.Second)
}

func TestSQLiteStore_GetMissing(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetGeneration(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_ListNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)
	for i, status := range []string{StatusComplete, StatusFailed, StatusComplete} {
		require.NoError(t, store.SaveGeneration(ctx, &Generation{
			Template:  "t.docx",
			Status:    status,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	all, err := store.ListGenerations(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, base.Add(2*time.Hour).Equal(all[0].CreatedAt))
	assert.Equal(t, StatusFailed, all[1].Status)
	assert.Nil(t, all[2].Missing)

	limited, err := store.ListGenerations(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLiteStore_CorruptMissingColumn(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	g := &Generation{Template: "t.docx", Missing: []string{"備註"}, Status: StatusPartial}
	require.NoError(t, store.SaveGeneration(ctx, g))
	_, err := store.db.ExecContext(ctx, `UPDATE generations SET missing = 'not json' WHERE id = ?`, g.ID)
	require.NoError(t, err)

	_, err = store.GetGeneration(ctx, g.ID)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)

	_, err = store.ListGenerations(ctx, 10)
	assert.Error(t, err)
}
