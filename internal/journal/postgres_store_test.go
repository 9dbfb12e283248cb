package journal

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStoreLifecycle(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store, err := NewPostgresStore(ctx, dsn)
	require.NoError(t, err)
	defer store.Close()

	runID := NewRunID()
	entry := sampleEntry(runID, "withdraw-simulate", time.Now().UTC())
	require.NoError(t, store.Append(ctx, entry))

	got, err := store.List(ctx, runID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, entry.Stage, got[0].Stage)
	assert.Equal(t, entry.TxIDs, got[0].TxIDs)
	assert.Equal(t, entry.Confirmations, got[0].Confirmations)
}

func TestNewPostgresStoreRejectsEmptyDSN(t *testing.T) {
	_, err := NewPostgresStore(context.Background(), "")
	require.Error(t, err)
}
