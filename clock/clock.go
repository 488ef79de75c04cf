// Package clock is the coarse, syscall-free time source the storage engine
// reads from. A single process-wide counter of whole seconds since process
// start is advanced by whoever owns the event loop (Update, once a tick);
// everything else only ever calls Now.
package clock

import (
	"sync/atomic"
	"time"
)

// absoluteThreshold follows the memcached convention: exptime values below
// it are relative offsets from process start, values at or above it are
// interpreted as Unix epoch seconds.
const absoluteThreshold = 60 * 60 * 24 * 30 // 30 days, in seconds.

var (
	start       = time.Now()
	currentSecs int64
)

func init() {
	atomic.StoreInt64(&currentSecs, 0)
}

// Now returns seconds elapsed since process start, the storage engine's
// native time unit. It never makes a syscall.
func Now() int64 {
	return atomic.LoadInt64(&currentSecs)
}

// Update advances the clock to the current wall time. Called once per event
// loop tick by the owner of the loop; never called concurrently with itself.
func Update() {
	atomic.StoreInt64(&currentSecs, int64(time.Since(start).Seconds()))
}

// Start returns the wall-clock instant Now()==0 corresponds to.
func Start() time.Time {
	return start
}

// Absolute reports whether t should be interpreted as a Unix epoch
// timestamp rather than an offset relative to process start.
func Absolute(t int64) bool {
	return t >= absoluteThreshold
}

// Normalize converts an expire_at value received from a client — which may
// be relative (small) or absolute (a Unix timestamp) per Absolute — into
// the engine's native relative-seconds-since-start unit. A zero input
// (no expiry) passes through unchanged.
func Normalize(expireAt int64) int64 {
	if expireAt == 0 {
		return 0
	}
	if Absolute(expireAt) {
		return expireAt - start.Unix()
	}
	return Now() + expireAt
}
