package storage

import "database/sql"

type User struct {
	ID         int64
	ExternalID int64
	Name       string
	Role       string
	IsActive   bool
	CreatedAt  string
}

type Category struct {
	ID       int64
	Kind     string
	Name     string
	IsActive bool
}

type Operation struct {
	ID          int64
	OpType      string
	Amount      int64
	Comment     sql.NullString
	CategoryID  sql.NullInt64
	CreatedByID int64
	CreatedAt   string
}

// OperationRow is an operation joined with its category and creator.
type OperationRow struct {
	Operation
	CategoryKind     sql.NullString
	CategoryName     sql.NullString
	CategoryIsActive sql.NullBool
	Creator          User
}

type TypeSum struct {
	OpType string
	Total  int64
}
