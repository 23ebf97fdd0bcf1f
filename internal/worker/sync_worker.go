package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"fundledger/internal/amqp"
	"fundledger/internal/core"
	"fundledger/internal/sheets"
	"fundledger/internal/storage"
)

// Store runs units of work. *storage.SQLiteStore satisfies it.
type Store interface {
	InTx(ctx context.Context, fn func(*storage.Repository) error) error
}

// SyncWorker mirrors posted operations from SQLite to a spreadsheet sink.
// An operation is appended at most once per worker: the operation_sync
// table records what has been written.
type SyncWorker struct {
	store     Store
	sink      sheets.OperationWriter
	batchSize int

	// serializes event handling against the sweep
	mu sync.Mutex
}

func NewSyncWorker(store Store, sink sheets.OperationWriter, batchSize int) *SyncWorker {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &SyncWorker{
		store:     store,
		sink:      sink,
		batchSize: batchSize,
	}
}

// HandleOperationPosted processes a single OperationPosted message from AMQP.
func (w *SyncWorker) HandleOperationPosted(ctx context.Context, msg *amqp.OperationPostedMessage) error {
	slog.InfoContext(ctx, "Processing operation posted message",
		"id", msg.OperationID,
		"op_type", msg.Type)

	if _, err := w.syncOperation(ctx, msg.OperationID); err != nil {
		return fmt.Errorf("sync operation %d: %w", msg.OperationID, err)
	}
	return nil
}

// ProcessPending mirrors up to one batch of operations that were never
// recorded as synced. This is the backup path for lost AMQP messages.
func (w *SyncWorker) ProcessPending(ctx context.Context) (int, error) {
	var pending []int64
	err := w.store.InTx(ctx, func(repo *storage.Repository) error {
		var err error
		pending, err = repo.UnsyncedOperationIDs(ctx, w.batchSize)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("get pending operations: %w", err)
	}

	if len(pending) == 0 {
		return 0, nil
	}

	slog.InfoContext(ctx, "Processing pending operations", "count", len(pending))

	synced := 0
	var errs []error
	for _, id := range pending {
		if ctx.Err() != nil {
			return synced, ctx.Err()
		}
		ok, err := w.syncOperation(ctx, id)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to sync operation", "id", id, "error", err)
			errs = append(errs, err)
			continue
		}
		if ok {
			synced++
		}
	}

	return synced, errors.Join(errs...)
}

// StartupSyncCheck drains the backlog left by worker downtime. It stops at
// the first batch that makes no progress.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	total := 0
	for {
		n, err := w.ProcessPending(ctx)
		total += n
		if err != nil {
			slog.WarnContext(ctx, "Startup sync stopped with errors", "synced", total, "error", err)
			return err
		}
		if n == 0 {
			break
		}
	}

	if total == 0 {
		slog.InfoContext(ctx, "No pending operations found on startup")
	} else {
		slog.InfoContext(ctx, "Startup sync completed", "synced", total)
	}
	return nil
}

// Run sweeps for unsynced operations every interval until ctx is done.
func (w *SyncWorker) Run(ctx context.Context, interval time.Duration) error {
	if err := w.StartupSyncCheck(ctx); err != nil && ctx.Err() == nil {
		slog.ErrorContext(ctx, "Startup sync check failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := w.ProcessPending(ctx); err != nil && ctx.Err() == nil {
				slog.ErrorContext(ctx, "Periodic sync failed", "error", err)
			}
		}
	}
}

// syncOperation appends the operation to the sink unless it is already
// recorded. It reports whether a row was written. Unknown ids are skipped.
func (w *SyncWorker) syncOperation(ctx context.Context, id int64) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var (
		op     *core.Operation
		synced bool
	)
	err := w.store.InTx(ctx, func(repo *storage.Repository) error {
		var err error
		if synced, err = repo.IsSynced(ctx, id); err != nil || synced {
			return err
		}
		op, err = repo.GetOperation(ctx, id)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("load operation: %w", err)
	}
	if synced {
		slog.DebugContext(ctx, "Operation already synced", "id", id)
		return false, nil
	}
	if op == nil {
		slog.WarnContext(ctx, "Operation not found, skipping", "id", id)
		return false, nil
	}

	// Outside the transaction: the write lock is not held across the sink call.
	ref, err := w.sink.AppendOperation(ctx, *op)
	if err != nil {
		return false, fmt.Errorf("append to sheets: %w", err)
	}

	err = w.store.InTx(ctx, func(repo *storage.Repository) error {
		return repo.MarkSynced(ctx, id, ref)
	})
	if err != nil {
		slog.ErrorContext(ctx, "Failed to mark as synced", "id", id, "sheet_ref", ref, "error", err)
		return true, fmt.Errorf("mark synced: %w", err)
	}

	slog.InfoContext(ctx, "Successfully synced operation",
		"id", id,
		"sheet_ref", ref,
		"op_type", op.Type,
		"amount", op.Amount)

	return true, nil
}
