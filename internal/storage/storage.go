// Package storage provides the durable blob store the scheduler persists its
// snapshot into. The engine only ever reads and writes one opaque value, so
// the surface is a minimal get/set keyed store.
package storage

import "errors"

// ErrNotFound is returned by Get when no value has been stored for the key.
var ErrNotFound = errors.New("storage: key not found")

// KV is a durable key-value store holding opaque blobs. Implementations must
// make Set atomic: a crash mid-write leaves the previous value intact, never
// a truncated one.
type KV interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
}
