package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseLedger(t *testing.T, l JobLedger) {
	t.Helper()
	ctx := context.Background()

	_, err := l.Get(ctx, "missing")
	require.Error(t, err)
	assert.True(t, IsCategory(err, ErrCategoryNotFound))

	t1 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, l.Save(ctx, JobRecord{ID: "b", DisplayName: "Backup B", CreatedAt: t1, Owned: true}))
	require.NoError(t, l.Save(ctx, JobRecord{ID: "a", DisplayName: "Backup A", CreatedAt: t0}))

	rec, err := l.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "Backup B", rec.DisplayName)
	assert.True(t, rec.Owned)

	recs, err := l.List(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "a", recs[0].ID)
	assert.Equal(t, "b", recs[1].ID)

	exists, err := l.Exists(ctx, "a")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, l.Delete(ctx, "a"))
	require.NoError(t, l.Delete(ctx, "a"))
	exists, err = l.Exists(ctx, "a")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemoryJobLedger(t *testing.T) {
	exerciseLedger(t, NewMemoryJobLedger())
}

func TestFileJobLedger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "jobs.json")

	l, err := NewFileJobLedger(path)
	require.NoError(t, err)
	exerciseLedger(t, l)

	// Reload from disk.
	reloaded, err := NewFileJobLedger(path)
	require.NoError(t, err)
	rec, err := reloaded.Get(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, "Backup B", rec.DisplayName)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestFileJobLedgerRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewFileJobLedger(path)
	require.Error(t, err)
	assert.True(t, IsCategory(err, ErrCategoryConfig))
}

func TestFileJobLedgerRejectsNewerVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version": 99, "jobs": {}}`), 0o600))

	_, err := NewFileJobLedger(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newer than supported")
}
