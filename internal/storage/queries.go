package storage

import (
	"context"
	"database/sql"
	"strings"
)

const userColumns = `id, external_id, name, role, is_active, created_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.ExternalID, &u.Name, &u.Role, &u.IsActive, &u.CreatedAt)
	return u, err
}

const getActiveUserByExternalID = `SELECT ` + userColumns + ` FROM users
WHERE external_id = ? AND is_active = 1`

func (q *Queries) GetActiveUserByExternalID(ctx context.Context, externalID int64) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getActiveUserByExternalID, externalID))
}

const getUserByExternalID = `SELECT ` + userColumns + ` FROM users WHERE external_id = ?`

func (q *Queries) GetUserByExternalID(ctx context.Context, externalID int64) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserByExternalID, externalID))
}

const getUser = `SELECT ` + userColumns + ` FROM users WHERE id = ?`

func (q *Queries) GetUser(ctx context.Context, id int64) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUser, id))
}

const countUsers = `SELECT COUNT(*) FROM users`

func (q *Queries) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countUsers).Scan(&n)
	return n, err
}

const listUsers = `SELECT ` + userColumns + ` FROM users
WHERE (? = 0 OR is_active = 1)
ORDER BY created_at ASC, id ASC`

func (q *Queries) ListUsers(ctx context.Context, activeOnly bool) ([]User, error) {
	rows, err := q.db.QueryContext(ctx, listUsers, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, u)
	}
	return items, rows.Err()
}

type CreateUserParams struct {
	ExternalID int64
	Name       string
	Role       string
	CreatedAt  string
}

const createUser = `INSERT INTO users (external_id, name, role, is_active, created_at)
VALUES (?, ?, ?, 1, ?)
RETURNING ` + userColumns

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, createUser, arg.ExternalID, arg.Name, arg.Role, arg.CreatedAt))
}

const deactivateUser = `UPDATE users SET is_active = 0 WHERE external_id = ? AND is_active = 1`

func (q *Queries) DeactivateUser(ctx context.Context, externalID int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, deactivateUser, externalID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type ReactivateUserParams struct {
	ExternalID int64
	Name       string
	Role       string
}

const reactivateUser = `UPDATE users SET is_active = 1, name = ?, role = ?
WHERE external_id = ? AND is_active = 0
RETURNING ` + userColumns

func (q *Queries) ReactivateUser(ctx context.Context, arg ReactivateUserParams) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, reactivateUser, arg.Name, arg.Role, arg.ExternalID))
}

const categoryColumns = `id, kind, name, is_active`

func scanCategory(row interface{ Scan(...any) error }) (Category, error) {
	var c Category
	err := row.Scan(&c.ID, &c.Kind, &c.Name, &c.IsActive)
	return c, err
}

const listActiveCategories = `SELECT ` + categoryColumns + ` FROM categories
WHERE kind = ? AND is_active = 1
ORDER BY name ASC`

func (q *Queries) ListActiveCategories(ctx context.Context, kind string) ([]Category, error) {
	rows, err := q.db.QueryContext(ctx, listActiveCategories, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

const getActiveCategoryByName = `SELECT ` + categoryColumns + ` FROM categories
WHERE kind = ? AND name = ? AND is_active = 1`

func (q *Queries) GetActiveCategoryByName(ctx context.Context, kind, name string) (Category, error) {
	return scanCategory(q.db.QueryRowContext(ctx, getActiveCategoryByName, kind, name))
}

const getCategory = `SELECT ` + categoryColumns + ` FROM categories WHERE id = ?`

func (q *Queries) GetCategory(ctx context.Context, id int64) (Category, error) {
	return scanCategory(q.db.QueryRowContext(ctx, getCategory, id))
}

const createCategory = `INSERT INTO categories (kind, name, is_active)
VALUES (?, ?, 1)
RETURNING ` + categoryColumns

func (q *Queries) CreateCategory(ctx context.Context, kind, name string) (Category, error) {
	return scanCategory(q.db.QueryRowContext(ctx, createCategory, kind, name))
}

const renameCategory = `UPDATE categories SET name = ? WHERE id = ? AND is_active = 1`

func (q *Queries) RenameCategory(ctx context.Context, id int64, name string) error {
	_, err := q.db.ExecContext(ctx, renameCategory, name, id)
	return err
}

const deactivateCategory = `UPDATE categories SET is_active = 0 WHERE id = ? AND is_active = 1`

func (q *Queries) DeactivateCategory(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, deactivateCategory, id)
	return err
}

const countOperationsByCategory = `SELECT COUNT(*) FROM operations WHERE category_id = ?`

func (q *Queries) CountOperationsByCategory(ctx context.Context, categoryID int64) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countOperationsByCategory, categoryID).Scan(&n)
	return n, err
}

type CreateOperationParams struct {
	OpType      string
	Amount      int64
	Comment     sql.NullString
	CategoryID  sql.NullInt64
	CreatedByID int64
	CreatedAt   string
}

const createOperation = `INSERT INTO operations (op_type, amount, comment, category_id, created_by_id, created_at)
VALUES (?, ?, ?, ?, ?, ?)
RETURNING id, op_type, amount, comment, category_id, created_by_id, created_at`

func (q *Queries) CreateOperation(ctx context.Context, arg CreateOperationParams) (Operation, error) {
	var o Operation
	err := q.db.QueryRowContext(ctx, createOperation,
		arg.OpType, arg.Amount, arg.Comment, arg.CategoryID, arg.CreatedByID, arg.CreatedAt,
	).Scan(&o.ID, &o.OpType, &o.Amount, &o.Comment, &o.CategoryID, &o.CreatedByID, &o.CreatedAt)
	return o, err
}

const operationRowSelect = `SELECT
    o.id, o.op_type, o.amount, o.comment, o.category_id, o.created_by_id, o.created_at,
    c.kind, c.name, c.is_active,
    u.id, u.external_id, u.name, u.role, u.is_active, u.created_at
FROM operations o
LEFT JOIN categories c ON c.id = o.category_id
JOIN users u ON u.id = o.created_by_id`

func scanOperationRow(row interface{ Scan(...any) error }) (OperationRow, error) {
	var r OperationRow
	err := row.Scan(
		&r.ID, &r.OpType, &r.Amount, &r.Comment, &r.CategoryID, &r.CreatedByID, &r.CreatedAt,
		&r.CategoryKind, &r.CategoryName, &r.CategoryIsActive,
		&r.Creator.ID, &r.Creator.ExternalID, &r.Creator.Name, &r.Creator.Role, &r.Creator.IsActive, &r.Creator.CreatedAt,
	)
	return r, err
}

func (q *Queries) GetOperation(ctx context.Context, id int64) (OperationRow, error) {
	return scanOperationRow(q.db.QueryRowContext(ctx, operationRowSelect+` WHERE o.id = ?`, id))
}

// ListOperationsParams mirrors core.OperationFilter in column terms. Empty
// fields are not applied.
type ListOperationsParams struct {
	OpTypes     []string
	Start       string
	End         string
	CreatedByID sql.NullInt64
	Limit       int
}

func (q *Queries) ListOperations(ctx context.Context, arg ListOperationsParams) ([]OperationRow, error) {
	var (
		conds []string
		args  []any
	)
	if len(arg.OpTypes) > 0 {
		conds = append(conds, "o.op_type IN (?"+strings.Repeat(", ?", len(arg.OpTypes)-1)+")")
		for _, t := range arg.OpTypes {
			args = append(args, t)
		}
	}
	if arg.Start != "" {
		conds = append(conds, "o.created_at >= ?")
		args = append(args, arg.Start)
	}
	if arg.End != "" {
		conds = append(conds, "o.created_at <= ?")
		args = append(args, arg.End)
	}
	if arg.CreatedByID.Valid {
		conds = append(conds, "o.created_by_id = ?")
		args = append(args, arg.CreatedByID.Int64)
	}

	query := operationRowSelect
	if len(conds) > 0 {
		query += "\nWHERE " + strings.Join(conds, " AND ")
	}
	query += "\nORDER BY o.created_at DESC, o.id DESC"
	if arg.Limit > 0 {
		query += "\nLIMIT ?"
		args = append(args, arg.Limit)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []OperationRow
	for rows.Next() {
		r, err := scanOperationRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

const sumByType = `SELECT COALESCE(SUM(amount), 0) FROM operations WHERE op_type = ?`

func (q *Queries) SumByType(ctx context.Context, opType string) (int64, error) {
	var total int64
	err := q.db.QueryRowContext(ctx, sumByType, opType).Scan(&total)
	return total, err
}

const sumAllByType = `SELECT op_type, COALESCE(SUM(amount), 0) FROM operations GROUP BY op_type`

func (q *Queries) SumAllByType(ctx context.Context) ([]TypeSum, error) {
	rows, err := q.db.QueryContext(ctx, sumAllByType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []TypeSum
	for rows.Next() {
		var s TypeSum
		if err := rows.Scan(&s.OpType, &s.Total); err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

const listUnsyncedOperationIDs = `SELECT o.id FROM operations o
LEFT JOIN operation_sync s ON s.operation_id = o.id
WHERE s.operation_id IS NULL
ORDER BY o.id ASC
LIMIT ?`

func (q *Queries) ListUnsyncedOperationIDs(ctx context.Context, limit int64) ([]int64, error) {
	rows, err := q.db.QueryContext(ctx, listUnsyncedOperationIDs, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const markOperationSynced = `INSERT INTO operation_sync (operation_id, sheet_ref, synced_at)
VALUES (?, ?, ?)
ON CONFLICT (operation_id) DO NOTHING`

func (q *Queries) MarkOperationSynced(ctx context.Context, operationID int64, sheetRef, syncedAt string) error {
	_, err := q.db.ExecContext(ctx, markOperationSynced, operationID, sheetRef, syncedAt)
	return err
}

const isOperationSynced = `SELECT EXISTS (SELECT 1 FROM operation_sync WHERE operation_id = ?)`

func (q *Queries) IsOperationSynced(ctx context.Context, operationID int64) (bool, error) {
	var ok bool
	err := q.db.QueryRowContext(ctx, isOperationSynced, operationID).Scan(&ok)
	return ok, err
}
