// Package cache provides small in-process caches with bounded lifetime
// entries.
package cache

// Cache is a keyed store with bounded lifetime entries.
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V)
	Delete(key K)
	Size() int
}
