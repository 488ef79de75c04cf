package protocol

import "github.com/skipor/twemcached/recycle"

// Request is the typed carrier a parser fills in and the engine consumes.
// It is reused across many parses via Pool (see pool.go); Reset clears it
// back to the Created state for its next borrower.
type Request struct {
	RState ParseState
	PState BodyState

	Verb Verb

	// Keys holds every key argument; len==1 for single-key verbs, up to
	// MaxBatch for get/mget. Slices alias the connection's read buffer
	// and are only valid until the request is processed or Reset.
	Keys [][]byte

	// Flags, ExpireAt and Bytes are set commands' three numeric header
	// fields; ExpireAt is still in client-supplied units (relative or
	// absolute) until clock.Normalize is applied by the caller.
	Flags    uint32
	ExpireAt int64
	Bytes    int

	// CAS is the client-supplied compare token for the `cas` verb.
	CAS uint64

	// Delta is incr/decr's operand.
	Delta uint64

	NoReply bool

	// Value holds the storage commands' raw value bytes once PState
	// reaches Val and the body has been fully read. It is populated via
	// a recycle.Data so the bytes outlive the connection buffer being
	// reused for the next request (spec.md §9 "Aliasing & item
	// recycling").
	Value *recycle.Data
}

// Reset clears r back to Created, releasing its Value back to its pool if
// one was populated. Called after the engine finishes processing r, or
// when a connection closes with a partially parsed request in flight
// (spec.md §5, "Cancellation").
func (r *Request) Reset() {
	if r.Value != nil {
		r.Value.Recycle()
	}
	*r = Request{Keys: r.Keys[:0]}
}
