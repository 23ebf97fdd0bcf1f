package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	RoleOwner  Role = "owner"
	RoleWorker Role = "worker"
	RoleViewer Role = "viewer"
)

const (
	KindIncome  CategoryKind = "income"
	KindExpense CategoryKind = "expense"
)

const (
	OpIncome     OperationType = "income"
	OpExpense    OperationType = "expense"
	OpReserveIn  OperationType = "reserve_in"  // money moved into the reserve
	OpReserveOut OperationType = "reserve_out" // money moved out of the reserve
)

const (
	MinCategoryName = 2
	MaxCategoryName = 64
	MaxUserName     = 128
)

type (
	Role          string
	CategoryKind  string
	OperationType string

	User struct {
		ID         int64
		ExternalID int64 // chat identity, unique across active and inactive rows
		Name       string
		Role       Role
		IsActive   bool
		CreatedAt  time.Time
	}

	Category struct {
		ID       int64
		Kind     CategoryKind
		Name     string
		IsActive bool
	}

	// Operation is an append-only ledger entry. Category and CreatedBy are
	// resolved on read paths that need them for display.
	Operation struct {
		ID          int64
		Type        OperationType
		Amount      int64
		Comment     string
		CategoryID  *int64
		CreatedByID int64
		CreatedAt   time.Time

		Category  *Category
		CreatedBy *User
	}

	// Result carries the outcome of a business rule check that is reported
	// as data rather than as an error.
	Result struct {
		OK      bool
		Message string
	}
)

var (
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidRole          = errors.New("invalid role")
	ErrInvalidCategoryKind  = errors.New("invalid category kind")
	ErrInvalidOperationType = errors.New("invalid operation type")
	ErrInvalidName          = errors.New("invalid name")
	ErrInvalidExternalID    = errors.New("invalid external id")
	ErrUserExists           = errors.New("user already exists")
	ErrCategoryExists       = errors.New("category already exists")
	ErrUserNotFound         = errors.New("user not found")
	ErrCategoryNotFound     = errors.New("category not found")
	ErrCategoryInUse        = errors.New("category is in use")
	ErrCategoryRequired     = errors.New("category required")
	ErrCategoryNotAllowed   = errors.New("category not allowed for reserve movements")
	ErrCategoryKindMismatch = errors.New("category kind does not match operation type")
	ErrInsufficientFunds    = errors.New("insufficient available funds")
	ErrInsufficientReserve  = errors.New("insufficient reserve")
	ErrTotalOutOfRange      = errors.New("ledger total out of range")
	ErrForbidden            = errors.New("forbidden")
)

func Succeeded(msg string) Result { return Result{OK: true, Message: msg} }

func Failed(msg string) Result { return Result{OK: false, Message: msg} }

func (r Role) IsValid() bool {
	switch r {
	case RoleOwner, RoleWorker, RoleViewer:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }

// ParseRole maps an external representation onto the closed role set.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
	return r, nil
}

func (k CategoryKind) IsValid() bool {
	switch k {
	case KindIncome, KindExpense:
		return true
	}
	return false
}

func (k CategoryKind) String() string { return string(k) }

func ParseCategoryKind(s string) (CategoryKind, error) {
	k := CategoryKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidCategoryKind, s)
	}
	return k, nil
}

func (t OperationType) IsValid() bool {
	switch t {
	case OpIncome, OpExpense, OpReserveIn, OpReserveOut:
		return true
	}
	return false
}

func (t OperationType) String() string { return string(t) }

func ParseOperationType(s string) (OperationType, error) {
	t := OperationType(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidOperationType, s)
	}
	return t, nil
}

// AllOperationTypes lists every operation type in declaration order.
func AllOperationTypes() []OperationType {
	return []OperationType{OpIncome, OpExpense, OpReserveIn, OpReserveOut}
}

// CategoryKind reports which category kind an operation of this type must
// reference. Reserve movements carry no category.
func (t OperationType) CategoryKind() (CategoryKind, bool) {
	switch t {
	case OpIncome:
		return KindIncome, true
	case OpExpense:
		return KindExpense, true
	case OpReserveIn, OpReserveOut:
		return "", false
	default:
		panic(fmt.Sprintf("core: unhandled operation type %q", string(t)))
	}
}

// NormalizeCategoryName trims the name and checks its length in characters.
func NormalizeCategoryName(name string) (string, error) {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	if n < MinCategoryName || n > MaxCategoryName {
		return "", fmt.Errorf("%w: category name must be %d-%d characters", ErrInvalidName, MinCategoryName, MaxCategoryName)
	}
	return name, nil
}

// NormalizeUserName trims the display name; the original bot required at
// least two characters.
func NormalizeUserName(name string) (string, error) {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	if n < 2 || n > MaxUserName {
		return "", fmt.Errorf("%w: user name must be 2-%d characters", ErrInvalidName, MaxUserName)
	}
	return name, nil
}

func (u User) Validate() error {
	if u.ExternalID <= 0 {
		return ErrInvalidExternalID
	}
	if _, err := NormalizeUserName(u.Name); err != nil {
		return err
	}
	if !u.Role.IsValid() {
		return ErrInvalidRole
	}
	return nil
}

// Validate checks the shape of an operation about to be posted. It does not
// look at balances; see Balance.Allows.
func (o Operation) Validate() error {
	if !o.Type.IsValid() {
		return ErrInvalidOperationType
	}
	if o.Amount <= 0 || o.Amount > MaxAmount {
		return ErrInvalidAmount
	}
	if _, needs := o.Type.CategoryKind(); needs {
		if o.CategoryID == nil {
			return ErrCategoryRequired
		}
	} else if o.CategoryID != nil {
		return ErrCategoryNotAllowed
	}
	return nil
}
