// Package core holds the ledger's domain model: users, categories,
// append-only operations and the balance arithmetic over them.
//
// Amounts are whole currency units stored as int64; there is no fractional
// component anywhere in the ledger.
package core

import (
	"math"
	"strconv"
	"strings"
)

const (
	// MaxAmount caps a single operation.
	MaxAmount int64 = 1_000_000_000_000

	// MaxTotal caps the full-history sum of any one operation type. With
	// every per-type sum at or below it, the balance arithmetic and SQLite's
	// SUM stay within int64.
	MaxTotal int64 = math.MaxInt64 / 4
)

// ParseAmount converts user input into a positive whole amount.
//
// Spaces are ignored (so "12 500" is accepted) and a single leading '+' is
// allowed. Anything else that is not a plain run of digits is rejected, as
// are zero and values above MaxAmount.
//
// Examples:
//
//	ParseAmount("5000")    -> 5000, nil
//	ParseAmount(" 12 500") -> 12500, nil
//	ParseAmount("+300")    -> 300, nil
//	ParseAmount("12.5")    -> 0, ErrInvalidAmount
func ParseAmount(s string) (int64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	s = strings.TrimPrefix(s, "+")
	if s == "" {
		return 0, ErrInvalidAmount
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, ErrInvalidAmount
		}
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 || v > MaxAmount {
		return 0, ErrInvalidAmount
	}
	return v, nil
}
