package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"fundledger/internal/core"
)

// DefaultHistoryLimit caps per-user history when the caller passes no limit.
const DefaultHistoryLimit = 50

// Repository is the ledger's domain view over Queries. A Repository obtained
// from SQLiteStore.InTx runs every call in that transaction.
type Repository struct {
	q   *Queries
	now func() time.Time
}

func NewRepository(q *Queries, now func() time.Time) *Repository {
	if now == nil {
		now = time.Now
	}
	return &Repository{q: q, now: now}
}

// Users

// GetUserByExternalID returns the active user bound to externalID, or nil.
func (r *Repository) GetUserByExternalID(ctx context.Context, externalID int64) (*core.User, error) {
	row, err := r.q.GetActiveUserByExternalID(ctx, externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by external id: %w", err)
	}
	return toUser(row)
}

// FindUserByExternalID ignores the active flag.
func (r *Repository) FindUserByExternalID(ctx context.Context, externalID int64) (*core.User, error) {
	row, err := r.q.GetUserByExternalID(ctx, externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user by external id: %w", err)
	}
	return toUser(row)
}

func (r *Repository) GetUser(ctx context.Context, id int64) (*core.User, error) {
	row, err := r.q.GetUser(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return toUser(row)
}

func (r *Repository) CountUsers(ctx context.Context) (int, error) {
	n, err := r.q.CountUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return int(n), nil
}

// ListUsers orders by creation time, oldest first.
func (r *Repository) ListUsers(ctx context.Context, activeOnly bool) ([]core.User, error) {
	rows, err := r.q.ListUsers(ctx, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	users := make([]core.User, 0, len(rows))
	for _, row := range rows {
		u, err := toUser(row)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, nil
}

// CreateUser inserts a new active user. An external id already present in
// any row, active or not, yields core.ErrUserExists.
func (r *Repository) CreateUser(ctx context.Context, externalID int64, name string, role core.Role) (*core.User, error) {
	u := core.User{ExternalID: externalID, Name: strings.TrimSpace(name), Role: role}
	if err := u.Validate(); err != nil {
		return nil, err
	}

	row, err := r.q.CreateUser(ctx, CreateUserParams{
		ExternalID: externalID,
		Name:       u.Name,
		Role:       string(role),
		CreatedAt:  formatTimestamp(r.now()),
	})
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("create user %d: %w", externalID, core.ErrUserExists)
	}
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	slog.InfoContext(ctx, "User created",
		"id", row.ID,
		"external_id", row.ExternalID,
		"role", row.Role)

	return toUser(row)
}

// DeactivateUser soft-deletes the user. It reports false when no active user
// has that external id, so a second call returns false.
func (r *Repository) DeactivateUser(ctx context.Context, externalID int64) (bool, error) {
	n, err := r.q.DeactivateUser(ctx, externalID)
	if err != nil {
		return false, fmt.Errorf("deactivate user: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	slog.InfoContext(ctx, "User deactivated", "external_id", externalID)
	return true, nil
}

// ReactivateUser restores a deactivated row with a new name and role. It
// returns nil when there is no inactive user with that external id.
func (r *Repository) ReactivateUser(ctx context.Context, externalID int64, name string, role core.Role) (*core.User, error) {
	u := core.User{ExternalID: externalID, Name: strings.TrimSpace(name), Role: role}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	row, err := r.q.ReactivateUser(ctx, ReactivateUserParams{
		ExternalID: externalID,
		Name:       u.Name,
		Role:       string(role),
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reactivate user: %w", err)
	}
	slog.InfoContext(ctx, "User reactivated", "id", row.ID, "external_id", externalID, "role", row.Role)
	return toUser(row)
}

// Categories

// ListCategories returns active categories of kind ordered by name.
func (r *Repository) ListCategories(ctx context.Context, kind core.CategoryKind) ([]core.Category, error) {
	if !kind.IsValid() {
		return nil, core.ErrInvalidCategoryKind
	}
	rows, err := r.q.ListActiveCategories(ctx, string(kind))
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	cats := make([]core.Category, 0, len(rows))
	for _, row := range rows {
		cats = append(cats, toCategory(row))
	}
	return cats, nil
}

// GetCategoryByName is an exact, case-sensitive match among active rows.
func (r *Repository) GetCategoryByName(ctx context.Context, kind core.CategoryKind, name string) (*core.Category, error) {
	row, err := r.q.GetActiveCategoryByName(ctx, string(kind), name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get category by name: %w", err)
	}
	c := toCategory(row)
	return &c, nil
}

// GetCategory returns the category whatever its active flag.
func (r *Repository) GetCategory(ctx context.Context, id int64) (*core.Category, error) {
	row, err := r.q.GetCategory(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	c := toCategory(row)
	return &c, nil
}

// CreateCategory returns the existing active category with the same kind and
// trimmed name, or inserts a new one.
func (r *Repository) CreateCategory(ctx context.Context, kind core.CategoryKind, name string) (*core.Category, error) {
	if !kind.IsValid() {
		return nil, core.ErrInvalidCategoryKind
	}
	name, err := core.NormalizeCategoryName(name)
	if err != nil {
		return nil, err
	}

	existing, err := r.GetCategoryByName(ctx, kind, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	row, err := r.q.CreateCategory(ctx, string(kind), name)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("create category %q: %w", name, core.ErrCategoryExists)
	}
	if err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}

	slog.InfoContext(ctx, "Category created", "id", row.ID, "kind", row.Kind, "name", row.Name)

	c := toCategory(row)
	return &c, nil
}

// EnsureDefaultCategories creates every listed name that has no active
// category of the same kind with exactly that (trimmed) name. Blank entries
// are skipped.
func (r *Repository) EnsureDefaultCategories(ctx context.Context, incomeNames, expenseNames []string) error {
	seed := []struct {
		kind  core.CategoryKind
		names []string
	}{
		{core.KindIncome, incomeNames},
		{core.KindExpense, expenseNames},
	}
	for _, s := range seed {
		for _, name := range s.names {
			if strings.TrimSpace(name) == "" {
				continue
			}
			if _, err := r.CreateCategory(ctx, s.kind, name); err != nil {
				return fmt.Errorf("ensure %s category %q: %w", s.kind, name, err)
			}
		}
	}
	return nil
}

// RenameCategory reports rule violations as a failed Result; only store
// faults are returned as errors.
func (r *Repository) RenameCategory(ctx context.Context, id int64, newName string) (core.Result, error) {
	cat, err := r.GetCategory(ctx, id)
	if err != nil {
		return core.Result{}, err
	}
	if cat == nil || !cat.IsActive {
		return core.Failed("Category not found"), nil
	}

	name, err := core.NormalizeCategoryName(newName)
	if err != nil {
		return core.Failed(fmt.Sprintf("Name must be %d-%d characters", core.MinCategoryName, core.MaxCategoryName)), nil
	}

	clash, err := r.GetCategoryByName(ctx, cat.Kind, name)
	if err != nil {
		return core.Result{}, err
	}
	if clash != nil && clash.ID != cat.ID {
		return core.Failed(fmt.Sprintf("A %s category named %q already exists", cat.Kind, name)), nil
	}

	err = r.q.RenameCategory(ctx, id, name)
	if isUniqueViolation(err) {
		return core.Failed(fmt.Sprintf("A %s category named %q already exists", cat.Kind, name)), nil
	}
	if err != nil {
		return core.Result{}, fmt.Errorf("rename category: %w", err)
	}

	slog.InfoContext(ctx, "Category renamed", "id", id, "from", cat.Name, "to", name)
	return core.Succeeded(fmt.Sprintf("Category renamed to %q", name)), nil
}

// DeactivateCategory refuses categories referenced by any operation.
func (r *Repository) DeactivateCategory(ctx context.Context, id int64) (core.Result, error) {
	cat, err := r.GetCategory(ctx, id)
	if err != nil {
		return core.Result{}, err
	}
	if cat == nil || !cat.IsActive {
		return core.Failed("Category not found"), nil
	}

	used, err := r.q.CountOperationsByCategory(ctx, id)
	if err != nil {
		return core.Result{}, fmt.Errorf("count category usage: %w", err)
	}
	if used > 0 {
		return core.Failed(fmt.Sprintf("Category %q is used by %d operation(s) and cannot be deactivated", cat.Name, used)), nil
	}

	if err := r.q.DeactivateCategory(ctx, id); err != nil {
		return core.Result{}, fmt.Errorf("deactivate category: %w", err)
	}

	slog.InfoContext(ctx, "Category deactivated", "id", id, "name", cat.Name)
	return core.Succeeded(fmt.Sprintf("Category %q deactivated", cat.Name)), nil
}

// Operations

type AddOperationParams struct {
	Type       core.OperationType
	Amount     int64
	CreatorID  int64
	CategoryID *int64
	Comment    string
}

// AddOperation appends an operation as given. Amount sign, category kind and
// balance are the caller's concern.
func (r *Repository) AddOperation(ctx context.Context, arg AddOperationParams) (*core.Operation, error) {
	params := CreateOperationParams{
		OpType:      string(arg.Type),
		Amount:      arg.Amount,
		CreatedByID: arg.CreatorID,
		CreatedAt:   formatTimestamp(r.now()),
	}
	if c := strings.TrimSpace(arg.Comment); c != "" {
		params.Comment = sql.NullString{String: c, Valid: true}
	}
	if arg.CategoryID != nil {
		params.CategoryID = sql.NullInt64{Int64: *arg.CategoryID, Valid: true}
	}

	row, err := r.q.CreateOperation(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("add operation: %w", err)
	}

	slog.InfoContext(ctx, "Operation added",
		"id", row.ID,
		"op_type", row.OpType,
		"amount", row.Amount,
		"created_by_id", row.CreatedByID)

	return toOperation(row)
}

// GetOperation returns the operation with category and creator resolved.
func (r *Repository) GetOperation(ctx context.Context, id int64) (*core.Operation, error) {
	row, err := r.q.GetOperation(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get operation: %w", err)
	}
	return toResolvedOperation(row)
}

// ListOperationsFiltered returns matching operations newest first, with
// category and creator resolved.
func (r *Repository) ListOperationsFiltered(ctx context.Context, f core.OperationFilter) ([]core.Operation, error) {
	params := ListOperationsParams{Limit: f.Limit}
	for _, t := range f.Types {
		if !t.IsValid() {
			return nil, fmt.Errorf("%w: %q", core.ErrInvalidOperationType, string(t))
		}
		params.OpTypes = append(params.OpTypes, string(t))
	}
	if f.Start != nil {
		params.Start = formatTimestamp(*f.Start)
	}
	if f.End != nil {
		params.End = formatTimestamp(*f.End)
	}
	if f.CreatorID != nil {
		params.CreatedByID = sql.NullInt64{Int64: *f.CreatorID, Valid: true}
	}

	rows, err := r.q.ListOperations(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("list operations: %w", err)
	}

	slog.DebugContext(ctx, "Operations listed", "count", len(rows), "limit", f.Limit)

	ops := make([]core.Operation, 0, len(rows))
	for _, row := range rows {
		op, err := toResolvedOperation(row)
		if err != nil {
			return nil, err
		}
		ops = append(ops, *op)
	}
	return ops, nil
}

// ListLastOperations returns the newest limit operations of the given types,
// all types when none are given.
func (r *Repository) ListLastOperations(ctx context.Context, limit int, types ...core.OperationType) ([]core.Operation, error) {
	return r.ListOperationsFiltered(ctx, core.OperationFilter{Types: types, Limit: limit})
}

// ListOperationsForUser returns the history of the user with externalID,
// active or not. It returns nil for an unknown external id.
func (r *Repository) ListOperationsForUser(ctx context.Context, externalID int64, limit int) ([]core.Operation, error) {
	u, err := r.FindUserByExternalID(ctx, externalID)
	if err != nil || u == nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return r.ListOperationsFiltered(ctx, core.OperationFilter{CreatorID: &u.ID, Limit: limit})
}

// SumByType is the full-history total for one type, 0 when there are none.
func (r *Repository) SumByType(ctx context.Context, typ core.OperationType) (int64, error) {
	if !typ.IsValid() {
		return 0, core.ErrInvalidOperationType
	}
	total, err := r.q.SumByType(ctx, string(typ))
	if err != nil {
		return 0, fmt.Errorf("sum %s: %w", typ, err)
	}
	return total, nil
}

// Totals sums every operation type over the full history in one query.
func (r *Repository) Totals(ctx context.Context) (core.Totals, error) {
	var t core.Totals
	sums, err := r.q.SumAllByType(ctx)
	if err != nil {
		return t, fmt.Errorf("sum operations: %w", err)
	}
	for _, s := range sums {
		typ, err := core.ParseOperationType(s.OpType)
		if err != nil {
			return t, err
		}
		t.Add(typ, s.Total)
	}
	return t, nil
}

// Balance is never windowed.
func (r *Repository) Balance(ctx context.Context) (core.Balance, error) {
	t, err := r.Totals(ctx)
	if err != nil {
		return core.Balance{}, err
	}
	return t.Balance(), nil
}

// Mirror bookkeeping

// UnsyncedOperationIDs lists operations never recorded as mirrored, oldest
// first.
func (r *Repository) UnsyncedOperationIDs(ctx context.Context, limit int) ([]int64, error) {
	ids, err := r.q.ListUnsyncedOperationIDs(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list unsynced operations: %w", err)
	}
	return ids, nil
}

// MarkSynced is a no-op for an operation already recorded.
func (r *Repository) MarkSynced(ctx context.Context, operationID int64, sheetRef string) error {
	if err := r.q.MarkOperationSynced(ctx, operationID, sheetRef, formatTimestamp(r.now())); err != nil {
		return fmt.Errorf("mark operation synced: %w", err)
	}
	slog.InfoContext(ctx, "Operation marked as synced", "id", operationID, "ref", sheetRef)
	return nil
}

func (r *Repository) IsSynced(ctx context.Context, operationID int64) (bool, error) {
	ok, err := r.q.IsOperationSynced(ctx, operationID)
	if err != nil {
		return false, fmt.Errorf("check operation sync: %w", err)
	}
	return ok, nil
}

func toUser(row User) (*core.User, error) {
	created, err := parseTimestamp(row.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &core.User{
		ID:         row.ID,
		ExternalID: row.ExternalID,
		Name:       row.Name,
		Role:       core.Role(row.Role),
		IsActive:   row.IsActive,
		CreatedAt:  created,
	}, nil
}

func toCategory(row Category) core.Category {
	return core.Category{
		ID:       row.ID,
		Kind:     core.CategoryKind(row.Kind),
		Name:     row.Name,
		IsActive: row.IsActive,
	}
}

func toOperation(row Operation) (*core.Operation, error) {
	created, err := parseTimestamp(row.CreatedAt)
	if err != nil {
		return nil, err
	}
	op := &core.Operation{
		ID:          row.ID,
		Type:        core.OperationType(row.OpType),
		Amount:      row.Amount,
		Comment:     row.Comment.String,
		CreatedByID: row.CreatedByID,
		CreatedAt:   created,
	}
	if row.CategoryID.Valid {
		id := row.CategoryID.Int64
		op.CategoryID = &id
	}
	return op, nil
}

func toResolvedOperation(row OperationRow) (*core.Operation, error) {
	op, err := toOperation(row.Operation)
	if err != nil {
		return nil, err
	}
	if op.CategoryID != nil && row.CategoryName.Valid {
		op.Category = &core.Category{
			ID:       *op.CategoryID,
			Kind:     core.CategoryKind(row.CategoryKind.String),
			Name:     row.CategoryName.String,
			IsActive: row.CategoryIsActive.Bool,
		}
	}
	creator, err := toUser(row.Creator)
	if err != nil {
		return nil, err
	}
	op.CreatedBy = creator
	return op, nil
}
