//go:build !debug

package slab

// checkInvariants is a no-op outside -tags debug builds: the expensive
// walk over every chain and slab is too costly for production.
func (s *Storage) checkInvariants() {}
