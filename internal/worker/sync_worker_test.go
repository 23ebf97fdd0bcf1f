package worker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundledger/internal/amqp"
	"fundledger/internal/core"
	"fundledger/internal/sheets/memory"
	"fundledger/internal/storage"
)

func setupWorker(t *testing.T, batchSize int) (*SyncWorker, *storage.SQLiteStore, *memory.Store, *core.User) {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	owner, err := store.Repository().CreateUser(context.Background(), 1, "Owner", core.RoleOwner)
	require.NoError(t, err)

	sink := memory.New()
	return NewSyncWorker(store, sink, batchSize), store, sink, owner
}

func addOperation(t *testing.T, store *storage.SQLiteStore, owner *core.User, amount int64) *core.Operation {
	t.Helper()
	op, err := store.Repository().AddOperation(context.Background(), storage.AddOperationParams{
		Type:      core.OpReserveIn,
		Amount:    amount,
		CreatorID: owner.ID,
	})
	require.NoError(t, err)
	return op
}

func TestHandleOperationPosted_ExactlyOnce(t *testing.T) {
	w, store, sink, owner := setupWorker(t, 10)
	ctx := context.Background()
	op := addOperation(t, store, owner, 42)

	msg := amqp.NewOperationPostedMessage(op.ID, string(op.Type), op.Amount)
	require.NoError(t, w.HandleOperationPosted(ctx, msg))
	require.NoError(t, w.HandleOperationPosted(ctx, msg))

	mirrored := sink.Operations()
	require.Len(t, mirrored, 1)
	assert.Equal(t, op.ID, mirrored[0].ID)
	assert.Equal(t, int64(42), mirrored[0].Amount)
	require.NotNil(t, mirrored[0].CreatedBy)
	assert.Equal(t, "Owner", mirrored[0].CreatedBy.Name)

	synced, err := store.Repository().IsSynced(ctx, op.ID)
	require.NoError(t, err)
	assert.True(t, synced)

	// The sweep finds nothing left to do.
	n, err := w.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, sink.Operations(), 1)
}

func TestHandleOperationPosted_UnknownOperation(t *testing.T) {
	w, _, sink, _ := setupWorker(t, 10)

	err := w.HandleOperationPosted(context.Background(), amqp.NewOperationPostedMessage(999, "income", 1))
	require.NoError(t, err)
	assert.Empty(t, sink.Operations())
}

func TestHandleOperationPosted_SinkFailure(t *testing.T) {
	w, store, sink, owner := setupWorker(t, 10)
	ctx := context.Background()
	op := addOperation(t, store, owner, 5)

	sink.FailWith(errors.New("quota exceeded"))
	err := w.HandleOperationPosted(ctx, amqp.NewOperationPostedMessage(op.ID, string(op.Type), op.Amount))
	require.Error(t, err)

	synced, err := store.Repository().IsSynced(ctx, op.ID)
	require.NoError(t, err)
	assert.False(t, synced)

	sink.FailWith(nil)
	n, err := w.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, sink.Operations(), 1)
}

func TestProcessPending_Batches(t *testing.T) {
	w, store, sink, owner := setupWorker(t, 2)
	ctx := context.Background()
	for i := range 5 {
		addOperation(t, store, owner, int64(i+1))
	}

	n, err := w.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, w.StartupSyncCheck(ctx))
	assert.Len(t, sink.Operations(), 5)

	ids, err := store.Repository().UnsyncedOperationIDs(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRun_StopsOnCancel(t *testing.T) {
	w, store, sink, owner := setupWorker(t, 10)
	addOperation(t, store, owner, 7)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, 10*time.Millisecond) }()

	require.Eventually(t, func() bool { return len(sink.Operations()) == 1 }, time.Second, 5*time.Millisecond)
	addOperation(t, store, owner, 8)
	require.Eventually(t, func() bool { return len(sink.Operations()) == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
