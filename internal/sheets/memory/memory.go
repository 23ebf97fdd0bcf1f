package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"fundledger/internal/core"
	"fundledger/internal/sheets"
)

var _ sheets.OperationWriter = (*Store)(nil)

// Store is an in-process mirror sink, used when no spreadsheet is
// configured and in tests.
type Store struct {
	mu    sync.Mutex
	items []core.Operation
	fail  error
}

func New() *Store {
	return &Store{}
}

// AppendOperation stores the operation and returns a synthetic row reference.
func (s *Store) AppendOperation(_ context.Context, op core.Operation) (string, error) {
	if op.ID <= 0 {
		return "", errors.New("operation has no id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return "", s.fail
	}
	s.items = append(s.items, op)
	return fmt.Sprintf("mem:%d", len(s.items)), nil
}

// Operations returns a copy of everything appended so far.
func (s *Store) Operations() []core.Operation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Operation(nil), s.items...)
}

// FailWith makes subsequent appends return err; nil restores normal behavior.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	s.fail = err
	s.mu.Unlock()
}
