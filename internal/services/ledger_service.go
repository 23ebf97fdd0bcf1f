package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"fundledger/internal/auth"
	"fundledger/internal/core"
	"fundledger/internal/export"
	"fundledger/internal/log"
	"fundledger/internal/policy"
	"fundledger/internal/storage"
)

// Publisher announces committed operations to the mirror worker.
// *amqp.Client satisfies it.
type Publisher interface {
	PublishOperationPosted(ctx context.Context, id int64, opType string, amount int64) error
}

// Store runs units of work. *storage.SQLiteStore satisfies it.
type Store interface {
	InTx(ctx context.Context, fn func(*storage.Repository) error) error
}

type Options struct {
	// EnforceBalance refuses postings that would drive available or
	// reserve below zero.
	EnforceBalance bool
	// Location interprets report periods. Defaults to UTC.
	Location *time.Location
	// Now defaults to time.Now.
	Now func() time.Time
}

// LedgerService orchestrates ledger operations: policy checks, one
// transaction per call, audit records and event publishing.
type LedgerService struct {
	store     Store
	publisher Publisher
	resolver  *auth.Resolver
	audit     *log.Audit
	opts      Options
}

// NewLedgerService wires a service. publisher, resolver and audit may be nil.
func NewLedgerService(store Store, publisher Publisher, resolver *auth.Resolver, audit *log.Audit, opts Options) *LedgerService {
	if audit == nil {
		audit = log.NewAudit(nil)
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &LedgerService{
		store:     store,
		publisher: publisher,
		resolver:  resolver,
		audit:     audit,
		opts:      opts,
	}
}

// PostRequest describes an operation to post. The category may be given by
// id or by name; the id wins when both are set.
type PostRequest struct {
	Type         core.OperationType
	Amount       int64
	CategoryID   *int64
	CategoryName string
	Comment      string
}

// Report is a snapshot of the fund plus a selection of operations.
type Report struct {
	Start      *time.Time
	End        *time.Time
	Balance    core.Balance
	Totals     core.Totals // over Operations only
	Operations []core.Operation
}

func (s *LedgerService) authorize(ctx context.Context, actor *core.User, level policy.Level, action string) error {
	if policy.Allows(actor, level) {
		return nil
	}
	var externalID int64
	if actor != nil {
		externalID = actor.ExternalID
	}
	s.audit.Denied(ctx, externalID, action)
	return fmt.Errorf("%s: %w", action, core.ErrForbidden)
}

func actorFields(actor *core.User) log.LogFields {
	return log.NewFields().WithActor(actor.ID, actor.ExternalID, string(actor.Role))
}

// Balance returns the current fund balance.
func (s *LedgerService) Balance(ctx context.Context, actor *core.User) (core.Balance, error) {
	if err := s.authorize(ctx, actor, policy.Authenticated, "balance"); err != nil {
		return core.Balance{}, err
	}
	var bal core.Balance
	err := s.store.InTx(ctx, func(repo *storage.Repository) error {
		var err error
		bal, err = repo.Balance(ctx)
		return err
	})
	return bal, err
}

// PostOperation validates and appends an operation. The range and balance
// checks and the insert share one immediate transaction.
func (s *LedgerService) PostOperation(ctx context.Context, actor *core.User, req PostRequest) (*core.Operation, error) {
	if err := s.authorize(ctx, actor, policy.Poster, "post operation"); err != nil {
		return nil, err
	}
	if !req.Type.IsValid() {
		return nil, s.rejected(ctx, actor, req, core.ErrInvalidOperationType)
	}

	var op *core.Operation
	err := s.store.InTx(ctx, func(repo *storage.Repository) error {
		categoryID, err := resolveCategory(ctx, repo, req)
		if err != nil {
			return err
		}

		candidate := core.Operation{Type: req.Type, Amount: req.Amount, CategoryID: categoryID}
		if err := candidate.Validate(); err != nil {
			return err
		}

		if categoryID != nil {
			cat, err := repo.GetCategory(ctx, *categoryID)
			if err != nil {
				return err
			}
			if cat == nil || !cat.IsActive {
				return core.ErrCategoryNotFound
			}
			if kind, _ := req.Type.CategoryKind(); cat.Kind != kind {
				return core.ErrCategoryKindMismatch
			}
		}

		totals, err := repo.Totals(ctx)
		if err != nil {
			return err
		}
		if err := totals.Fits(req.Type, req.Amount); err != nil {
			return err
		}
		if s.opts.EnforceBalance {
			if err := totals.Balance().Allows(req.Type, req.Amount); err != nil {
				return err
			}
		}

		op, err = repo.AddOperation(ctx, storage.AddOperationParams{
			Type:       req.Type,
			Amount:     req.Amount,
			CreatorID:  actor.ID,
			CategoryID: categoryID,
			Comment:    req.Comment,
		})
		return err
	})
	if err != nil {
		return nil, s.rejected(ctx, actor, req, err)
	}

	s.audit.Record(ctx, log.EventOperationPosted,
		actorFields(actor).WithLedgerOperation(op.ID, string(op.Type), op.Amount))

	if err := s.publishPosted(ctx, op); err != nil {
		slog.ErrorContext(ctx, "Failed to publish operation posted message",
			"id", op.ID, "error", err)
		// The operation is committed; the sweep will mirror it.
	}

	return op, nil
}

func resolveCategory(ctx context.Context, repo *storage.Repository, req PostRequest) (*int64, error) {
	name := strings.TrimSpace(req.CategoryName)
	if req.CategoryID != nil || name == "" {
		return req.CategoryID, nil
	}
	kind, ok := req.Type.CategoryKind()
	if !ok {
		return nil, core.ErrCategoryNotAllowed
	}
	cat, err := repo.GetCategoryByName(ctx, kind, name)
	if err != nil {
		return nil, err
	}
	if cat == nil {
		return nil, fmt.Errorf("%w: %q", core.ErrCategoryNotFound, name)
	}
	return &cat.ID, nil
}

// rejected audits a refused posting and wraps err.
func (s *LedgerService) rejected(ctx context.Context, actor *core.User, req PostRequest, err error) error {
	s.audit.Record(ctx, log.EventOperationRejected,
		actorFields(actor).
			WithLedgerOperation(0, string(req.Type), req.Amount).
			With(log.FieldReason, err.Error()))
	return fmt.Errorf("post operation: %w", err)
}

func (s *LedgerService) publishPosted(ctx context.Context, op *core.Operation) error {
	if s.publisher == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping operation posted message")
		return nil
	}
	return s.publisher.PublishOperationPosted(ctx, op.ID, string(op.Type), op.Amount)
}

// History lists operations visible to actor, newest first. Non-owners only
// ever see their own operations, whatever the filter says.
func (s *LedgerService) History(ctx context.Context, actor *core.User, f core.OperationFilter) ([]core.Operation, error) {
	if err := s.authorize(ctx, actor, policy.Authenticated, "history"); err != nil {
		return nil, err
	}
	if scope := policy.HistoryScope(actor); scope != nil {
		f.CreatorID = scope
	}
	if f.Limit <= 0 {
		f.Limit = storage.DefaultHistoryLimit
	}

	var ops []core.Operation
	err := s.store.InTx(ctx, func(repo *storage.Repository) error {
		var err error
		ops, err = repo.ListOperationsFiltered(ctx, f)
		return err
	})
	return ops, err
}

// PeriodReport is the owner report over the last days days in the
// configured location, optionally narrowed to some operation types.
func (s *LedgerService) PeriodReport(ctx context.Context, actor *core.User, days int, types ...core.OperationType) (*Report, error) {
	if err := s.authorize(ctx, actor, policy.Owner, "period report"); err != nil {
		return nil, err
	}
	if days < 0 {
		return nil, fmt.Errorf("period report: negative days %d", days)
	}

	start, end := core.PeriodFromDays(s.opts.Now(), days, s.opts.Location)
	report := &Report{Start: &start, End: &end}
	err := s.store.InTx(ctx, func(repo *storage.Repository) error {
		var err error
		if report.Balance, err = repo.Balance(ctx); err != nil {
			return err
		}
		report.Operations, err = repo.ListOperationsFiltered(ctx, core.OperationFilter{
			Types: types,
			Start: &start,
			End:   &end,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	report.Totals = core.SumOperations(report.Operations)
	return report, nil
}

// QuickReport is the balance plus the actor's latest limit operations (the
// whole fund's for the owner).
func (s *LedgerService) QuickReport(ctx context.Context, actor *core.User, limit int) (*Report, error) {
	if err := s.authorize(ctx, actor, policy.Authenticated, "quick report"); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = storage.DefaultHistoryLimit
	}

	report := &Report{}
	err := s.store.InTx(ctx, func(repo *storage.Repository) error {
		var err error
		if report.Balance, err = repo.Balance(ctx); err != nil {
			return err
		}
		report.Operations, err = repo.ListOperationsFiltered(ctx, core.OperationFilter{
			Limit:     limit,
			CreatorID: policy.HistoryScope(actor),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	report.Totals = core.SumOperations(report.Operations)
	return report, nil
}

// ExportCSV writes every operation matching f to w. No default limit
// applies.
func (s *LedgerService) ExportCSV(ctx context.Context, actor *core.User, w io.Writer, f core.OperationFilter) (int, error) {
	if err := s.authorize(ctx, actor, policy.Owner, "export csv"); err != nil {
		return 0, err
	}
	var ops []core.Operation
	err := s.store.InTx(ctx, func(repo *storage.Repository) error {
		var err error
		ops, err = repo.ListOperationsFiltered(ctx, f)
		return err
	})
	if err != nil {
		return 0, err
	}
	if err := export.WriteCSV(w, ops, s.opts.Location); err != nil {
		return 0, fmt.Errorf("export csv: %w", err)
	}
	return len(ops), nil
}

// Users

// InviteUser adds a user, or reactivates a deactivated one under the same
// row id with the new name and role. An already active user is
// core.ErrUserExists.
func (s *LedgerService) InviteUser(ctx context.Context, actor *core.User, externalID int64, name string, role core.Role) (*core.User, error) {
	if err := s.authorize(ctx, actor, policy.Owner, "invite user"); err != nil {
		return nil, err
	}

	var (
		user        *core.User
		reactivated bool
	)
	err := s.store.InTx(ctx, func(repo *storage.Repository) error {
		existing, err := repo.FindUserByExternalID(ctx, externalID)
		if err != nil {
			return err
		}
		switch {
		case existing == nil:
			user, err = repo.CreateUser(ctx, externalID, name, role)
			return err
		case existing.IsActive:
			return core.ErrUserExists
		default:
			reactivated = true
			user, err = repo.ReactivateUser(ctx, externalID, name, role)
			if err == nil && user == nil {
				err = core.ErrUserNotFound
			}
			return err
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invite user: %w", err)
	}

	s.forget(externalID)

	event := log.EventUserCreated
	if reactivated {
		event = log.EventUserReactivated
	}
	s.audit.Record(ctx, event, actorFields(actor).
		With(log.FieldUserID, user.ID).
		With("target_external_id", user.ExternalID).
		With("target_role", string(user.Role)))

	return user, nil
}

// RemoveUser deactivates the user with externalID. It reports false when no
// active user matched.
func (s *LedgerService) RemoveUser(ctx context.Context, actor *core.User, externalID int64) (bool, error) {
	if err := s.authorize(ctx, actor, policy.Owner, "remove user"); err != nil {
		return false, err
	}
	var ok bool
	err := s.store.InTx(ctx, func(repo *storage.Repository) error {
		var err error
		ok, err = repo.DeactivateUser(ctx, externalID)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("remove user: %w", err)
	}

	s.forget(externalID)
	if ok {
		s.audit.Record(ctx, log.EventUserDeactivated, actorFields(actor).
			With("target_external_id", externalID))
	}
	return ok, nil
}

func (s *LedgerService) ListUsers(ctx context.Context, actor *core.User, activeOnly bool) ([]core.User, error) {
	if err := s.authorize(ctx, actor, policy.Owner, "list users"); err != nil {
		return nil, err
	}
	var users []core.User
	err := s.store.InTx(ctx, func(repo *storage.Repository) error {
		var err error
		users, err = repo.ListUsers(ctx, activeOnly)
		return err
	})
	return users, err
}

func (s *LedgerService) forget(externalID int64) {
	if s.resolver != nil {
		s.resolver.Forget(externalID)
	}
}

// Categories

// ListCategories returns the active categories of kind. Any active user may
// read them.
func (s *LedgerService) ListCategories(ctx context.Context, actor *core.User, kind core.CategoryKind) ([]core.Category, error) {
	if err := s.authorize(ctx, actor, policy.Authenticated, "list categories"); err != nil {
		return nil, err
	}
	var cats []core.Category
	err := s.store.InTx(ctx, func(repo *storage.Repository) error {
		var err error
		cats, err = repo.ListCategories(ctx, kind)
		return err
	})
	return cats, err
}

// AddCategory creates a category, returning the existing active one when
// the name is already taken within kind.
func (s *LedgerService) AddCategory(ctx context.Context, actor *core.User, kind core.CategoryKind, name string) (*core.Category, error) {
	if err := s.authorize(ctx, actor, policy.Owner, "add category"); err != nil {
		return nil, err
	}
	var cat *core.Category
	err := s.store.InTx(ctx, func(repo *storage.Repository) error {
		var err error
		cat, err = repo.CreateCategory(ctx, kind, name)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("add category: %w", err)
	}
	s.audit.Record(ctx, log.EventCategoryCreated, actorFields(actor).
		With(log.FieldCategoryID, cat.ID).
		With(log.FieldCategory, cat.Name))
	return cat, nil
}

func (s *LedgerService) RenameCategory(ctx context.Context, actor *core.User, id int64, newName string) (core.Result, error) {
	if err := s.authorize(ctx, actor, policy.Owner, "rename category"); err != nil {
		return core.Result{}, err
	}
	var res core.Result
	err := s.store.InTx(ctx, func(repo *storage.Repository) error {
		var err error
		res, err = repo.RenameCategory(ctx, id, newName)
		return err
	})
	if err != nil {
		return core.Result{}, fmt.Errorf("rename category: %w", err)
	}
	if res.OK {
		s.audit.Record(ctx, log.EventCategoryRenamed, actorFields(actor).
			With(log.FieldCategoryID, id).
			With(log.FieldCategory, newName))
	}
	return res, nil
}

func (s *LedgerService) DeactivateCategory(ctx context.Context, actor *core.User, id int64) (core.Result, error) {
	if err := s.authorize(ctx, actor, policy.Owner, "deactivate category"); err != nil {
		return core.Result{}, err
	}
	var res core.Result
	err := s.store.InTx(ctx, func(repo *storage.Repository) error {
		var err error
		res, err = repo.DeactivateCategory(ctx, id)
		return err
	})
	if err != nil {
		return core.Result{}, fmt.Errorf("deactivate category: %w", err)
	}
	if res.OK {
		s.audit.Record(ctx, log.EventCategoryDeactivated, actorFields(actor).
			With(log.FieldCategoryID, id))
	}
	return res, nil
}

// Close closes the store and the publisher when they are closable.
func (s *LedgerService) Close() error {
	var errs []error

	if c, ok := s.store.(io.Closer); ok && c != nil {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if c, ok := s.publisher.(io.Closer); ok && c != nil {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close ledger service: %w", errors.Join(errs...))
	}

	return nil
}
