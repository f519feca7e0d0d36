// Package backend defines the narrow interface nmdb uses to front a
// pluggable durable store, trimmed to exactly the operations spec.md §1
// names: "the concrete backend stores... are invoked through a narrow
// open/get/set/del close interface."
package backend

import "errors"

// ErrNotFound is returned by Get when the key does not exist in the
// backend. Every implementation must return exactly this sentinel so the
// database worker (internal/worker) can distinguish a miss from a genuine
// backend failure without inspecting implementation-specific errors.
var ErrNotFound = errors.New("backend: key not found")

// Store is the uniform contract every concrete backend satisfies. Dispatch
// between backend kinds is static, chosen once at startup from the CLI's
// -b flag (internal/settings), per spec.md §9's note that "monomorphization
// is preferable over dynamic dispatch" — callers hold a single Store value
// for the process lifetime rather than switching on a type tag per call.
type Store interface {
	// Get returns the stored value for key, or ErrNotFound.
	Get(key []byte) ([]byte, error)
	// Set stores value under key, creating or overwriting it.
	Set(key, value []byte) error
	// Del removes key. It is not an error for key to be absent.
	Del(key []byte) error
	// Close releases any resources (connections, file handles) held by the
	// backend.
	Close() error
}

// Iterable is implemented by backends that can support the optional
// FIRSTKEY/NEXTKEY cursor opcodes (spec.md §9: "Treat as optional... if
// implemented, contract is at-least-once visit of each key not
// concurrently deleted, no ordering guarantee"). Backends that don't
// implement it cause the database worker to reply ERR/UNKREQ to
// FIRSTKEY/NEXTKEY.
type Iterable interface {
	// FirstKey returns an arbitrary starting key and ok=true, or ok=false
	// if the store is empty.
	FirstKey() (key []byte, ok bool)
	// NextKey returns a key distinct from prev, or ok=false if iteration
	// is exhausted. Ordering is unspecified.
	NextKey(prev []byte) (key []byte, ok bool)
}
