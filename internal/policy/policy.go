// Package policy decides what a resolved user may do. It never responds to
// the user; callers pick the visible consequence of a denial.
package policy

import "fundledger/internal/core"

// Level is a capability level required by an action.
type Level int

const (
	// Authenticated requires an active user row.
	Authenticated Level = iota
	// Poster requires a role allowed to post operations (owner, worker).
	Poster
	// Owner requires the owner role.
	Owner
)

func (l Level) String() string {
	switch l {
	case Authenticated:
		return "authenticated"
	case Poster:
		return "poster"
	case Owner:
		return "owner"
	default:
		return "unknown"
	}
}

// Allows reports whether u satisfies level. A nil or inactive user satisfies
// nothing.
func Allows(u *core.User, level Level) bool {
	if u == nil || !u.IsActive {
		return false
	}
	switch level {
	case Authenticated:
		return true
	case Poster:
		return canPost(u.Role)
	case Owner:
		return u.Role == core.RoleOwner
	default:
		return false
	}
}

func canPost(r core.Role) bool {
	switch r {
	case core.RoleOwner, core.RoleWorker:
		return true
	case core.RoleViewer:
		return false
	}
	return false
}

// NoCreator matches no operation when used as a creator restriction.
const NoCreator int64 = 0

// HistoryScope returns the creator restriction applied to a user's history
// queries: nil for the owner (everyone's operations), the user's own id for
// workers and viewers. Anyone else, including a nil or inactive user, is
// restricted to NoCreator.
func HistoryScope(u *core.User) *int64 {
	id := NoCreator
	if u != nil && u.IsActive {
		switch u.Role {
		case core.RoleOwner:
			return nil
		case core.RoleWorker, core.RoleViewer:
			id = u.ID
		}
	}
	return &id
}
