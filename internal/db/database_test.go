package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamup/renew-agent/internal/batch"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	d, err := New(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestRecordAndList(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	run := d.ForRun("run-1")
	require.NoError(t, run.Record(ctx, batch.Result{Stem: "a", Status: batch.StatusRenewed, Attempts: 3, Reloads: 2, Snapshot: "/s/a.png"}))
	require.NoError(t, run.Record(ctx, batch.Result{Stem: "b", Status: batch.StatusDeferred, AvailableAt: "22 October"}))

	records, err := d.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "b", records[0].AccountStem, "newest first")
	assert.Equal(t, "22 October", records[0].AvailableAt)
	assert.Empty(t, records[0].Snapshot)

	assert.Equal(t, "a", records[1].AccountStem)
	assert.Equal(t, "run-1", records[1].RunID)
	assert.Equal(t, "renewed", records[1].Status)
	assert.Equal(t, 3, records[1].Attempts)
	assert.Equal(t, 2, records[1].Reloads)
	assert.Equal(t, "/s/a.png", records[1].Snapshot)
	assert.NotEmpty(t, records[1].ID)
}

func TestListLimit(t *testing.T) {
	d := openTestDB(t).ForRun("r")
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, d.Record(ctx, batch.Result{Stem: "x", Status: batch.StatusSkipped}))
	}

	records, err := d.List(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestCountByStatus(t *testing.T) {
	d := openTestDB(t).ForRun("r")
	ctx := context.Background()
	require.NoError(t, d.Record(ctx, batch.Result{Stem: "a", Status: batch.StatusError, Reason: "boom"}))
	require.NoError(t, d.Record(ctx, batch.Result{Stem: "b", Status: batch.StatusRenewed}))

	n, err := d.CountByStatus(ctx, "error")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = d.CountByStatus(ctx, "all")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestNewSchemaIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	d, err := New(path)
	require.NoError(t, err)
	require.NoError(t, d.Close())

	d, err = New(path)
	require.NoError(t, err)
	assert.NoError(t, d.Close())
}
