package storage

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// stepClock returns base, base+step, base+2*step... on successive calls.
type stepClock struct {
	mu   sync.Mutex
	next time.Time
	step time.Duration
}

func newStepClock(base time.Time, step time.Duration) *stepClock {
	return &stepClock{next: base, step: step}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.next
	c.next = c.next.Add(c.step)
	return t
}

// Set makes the next call return t.
func (c *stepClock) Set(t time.Time) {
	c.mu.Lock()
	c.next = t
	c.mu.Unlock()
}

func createTestStore(t *testing.T, opts ...Option) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}
