//go:build debug

package tag

// Debug is true in builds compiled with `-tags debug`. Code gated behind it
// does extra invariant checking that is too expensive for production.
const Debug = true
