package journal

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEntry(runID, stage string, at time.Time) Entry {
	return Entry{
		RunID:         runID,
		Stage:         stage,
		AppID:         43680506,
		TxIDs:         []string{"TXA"},
		Confirmations: []Confirmation{{TxID: "TXA", Round: 1001}},
		ReturnValue:   json.RawMessage(`500000`),
		At:            at,
	}
}

func TestNewRunIDIsUUID(t *testing.T) {
	id := NewRunID()
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.NotEqual(t, id, NewRunID())
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	got, err := store.List(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, got)

	now := time.Now()
	require.NoError(t, store.Append(ctx, sampleEntry("run-a", "withdraw", now.Add(time.Second))))
	require.NoError(t, store.Append(ctx, sampleEntry("run-a", "configure", now)))
	require.NoError(t, store.Append(ctx, sampleEntry("run-b", "close", now)))

	got, err = store.List(ctx, "run-a")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "configure", got[0].Stage)
	assert.Equal(t, "withdraw", got[1].Stage)
	assert.True(t, got[0].OK())
}

func TestFileStorePersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "journal.json")

	store, err := NewFileStore(path)
	require.NoError(t, err)

	ctx := context.Background()
	entry := sampleEntry("run-a", "withdraw", time.Unix(1700000000, 0).UTC())
	entry.Error = "call failed"
	require.NoError(t, store.Append(ctx, entry))

	_, err = os.Stat(path)
	require.NoError(t, err, "expected file on disk")

	store2, err := NewFileStore(path)
	require.NoError(t, err)

	got, err := store2.List(ctx, "run-a")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(1001), got[0].Confirmations[0].Round)
	assert.JSONEq(t, `500000`, string(got[0].ReturnValue))
	assert.False(t, got[0].OK())
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewFileStore(path)
	require.Error(t, err)
}
