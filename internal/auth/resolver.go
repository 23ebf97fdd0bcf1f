// Package auth binds an external chat identity to an active ledger user.
package auth

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"fundledger/internal/cache"
	"fundledger/internal/core"
)

// UserLookup finds the active user for an external id, nil when there is
// none. *storage.Repository satisfies it.
type UserLookup interface {
	GetUserByExternalID(ctx context.Context, externalID int64) (*core.User, error)
}

// Resolver caches positive lookups only, so a newly invited user is seen on
// the next message. Concurrent lookups for one id share a single query.
//
// A lookup that was in flight when Forget ran for its id never populates
// the cache.
type Resolver struct {
	lookup UserLookup
	users  *cache.LRUCache[int64, core.User]
	group  singleflight.Group

	mu   sync.Mutex
	gens map[int64]uint64
}

func NewResolver(lookup UserLookup, size int, ttl time.Duration) *Resolver {
	return &Resolver{
		lookup: lookup,
		users:  cache.NewLRUCache[int64, core.User](size, ttl),
		gens:   make(map[int64]uint64),
	}
}

// Resolve returns the active user or nil.
func (r *Resolver) Resolve(ctx context.Context, externalID int64) (*core.User, error) {
	if u, ok := r.users.Get(externalID); ok {
		return &u, nil
	}

	v, err, _ := r.group.Do(strconv.FormatInt(externalID, 10), func() (interface{}, error) {
		gen := r.generation(externalID)
		u, err := r.lookup.GetUserByExternalID(ctx, externalID)
		if err != nil {
			return nil, err
		}
		if u != nil && u.IsActive {
			r.store(externalID, gen, *u)
		}
		return u, nil
	})
	if err != nil {
		return nil, fmt.Errorf("resolve user %d: %w", externalID, err)
	}

	u, _ := v.(*core.User)
	if u == nil || !u.IsActive {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

// Forget drops any cached entry, e.g. after deactivation or a role change.
func (r *Resolver) Forget(externalID int64) {
	r.mu.Lock()
	r.gens[externalID]++
	r.users.Delete(externalID)
	r.mu.Unlock()
	r.group.Forget(strconv.FormatInt(externalID, 10))
}

func (r *Resolver) generation(externalID int64) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gens[externalID]
}

// store caches u unless Forget ran since gen was read.
func (r *Resolver) store(externalID int64, gen uint64, u core.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gens[externalID] == gen {
		r.users.Set(externalID, u)
	}
}
