package core

import (
	"slices"
	"time"
)

// OperationFilter selects operations for reports. Zero values mean
// "unbounded": nil Types is every type, nil Start/End is open on that side,
// Limit <= 0 is no limit, nil CreatorID is every creator.
type OperationFilter struct {
	Types     []OperationType
	Start     *time.Time
	End       *time.Time
	Limit     int
	CreatorID *int64
}

// Matches applies the filter predicates to a single operation. Bounds are
// inclusive.
func (f OperationFilter) Matches(op Operation) bool {
	if len(f.Types) > 0 && !slices.Contains(f.Types, op.Type) {
		return false
	}
	if f.Start != nil && op.CreatedAt.Before(*f.Start) {
		return false
	}
	if f.End != nil && op.CreatedAt.After(*f.End) {
		return false
	}
	if f.CreatorID != nil && op.CreatedByID != *f.CreatorID {
		return false
	}
	return true
}

// FilterOperations is the in-memory report path: matching operations,
// newest first, truncated to Limit.
func FilterOperations(ops []Operation, f OperationFilter) []Operation {
	out := make([]Operation, 0, len(ops))
	for _, op := range ops {
		if f.Matches(op) {
			out = append(out, op)
		}
	}
	slices.SortStableFunc(out, func(a, b Operation) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// PeriodFromDays returns the report window used by the owner's period
// picker: from midnight `days` ago through the end of today in loc.
func PeriodFromDays(now time.Time, days int, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	now = now.In(loc)
	startDay := now.AddDate(0, 0, -days)
	start := time.Date(startDay.Year(), startDay.Month(), startDay.Day(), 0, 0, 0, 0, loc)
	end := time.Date(now.Year(), now.Month(), now.Day(), 23, 59, 59, 999999999, loc)
	return start, end
}
