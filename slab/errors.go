package slab

import "github.com/pkg/errors"

// Sentinel errors returned by the allocator and item operations. Callers
// above this package (the engine, the codecs) map these onto the wire
// status lines of spec section 7 (CLIENT_ERROR / SERVER_ERROR / etc.).
var (
	// ErrOversized is returned when a key+value footprint exceeds every
	// configured slab class (no class's S_c is big enough).
	ErrOversized = errors.New("slab: item too large for any class")

	// ErrNoMem is returned when a class's free queue, partial slab and
	// eviction all fail to produce a slot.
	ErrNoMem = errors.New("slab: out of memory")

	// ErrNotFound names an absent or expired key. No Storage method
	// returns it: Get and Delete report a miss as false.
	ErrNotFound = errors.New("slab: item not found")

	// ErrCASMismatch names a caller's CAS token not matching the item's
	// current stamp. No Storage method returns it; the engine compares
	// CAS tokens itself.
	ErrCASMismatch = errors.New("slab: cas mismatch")

	// ErrWrongClass is the invariant violation of item_update being asked
	// to store a value that no longer fits the item's current class.
	ErrWrongClass = errors.New("slab: value no longer fits item's class")

	// ErrMaxBytesExceeded is returned by slab carving when honoring the
	// request would push total slab memory past slab_maxbytes.
	ErrMaxBytesExceeded = errors.New("slab: slab_maxbytes exceeded")
)
