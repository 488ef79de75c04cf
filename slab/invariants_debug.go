//go:build debug

// Gomega should not be a dependency in non-debug builds.

package slab

import (
	"errors"
	"log"

	"github.com/facebookgo/stackerr"
	. "github.com/onsi/gomega"
)

var _ = func() (_ struct{}) {
	RegisterFailHandler(gomegaFailHandler)
	return
}()

func gomegaFailHandler(message string, callerSkip ...int) {
	skip := callerSkip[0] + 1
	log.Fatal("FATAL: slab invariants are broken: ", stackerr.WrapSkip(errors.New(message), skip))
}

// checkInvariants asserts spec.md §3.2's invariants 1, 2 and 5. It exists
// only in builds with -tags debug, and nothing in the package calls it;
// a caller invokes it explicitly after a mutating sequence.
func (s *Storage) checkInvariants() {
	for id, c := range s.classes {
		if c == nil {
			continue
		}
		ExpectWithOffset(1, int(c.id)).To(Equal(id))
		for _, blk := range c.slabs {
			for i := 0; i < blk.used; i++ {
				it := blk.items[i]
				if it == nil {
					continue
				}
				Expect(it.isLinked && it.inFreeQ).To(BeFalse(), "item both linked and in free queue")
			}
		}
	}
	for _, it := range s.index.buckets {
		for cur := it; cur != nil; cur = cur.nextInChain {
			Expect(cur.klen).To(BeNumerically(">", 0))
			Expect(cur.isLinked).To(BeTrue())
			fitID := s.opt.Profile.classFor(itemFootprint(int(cur.klen), int(cur.vlen), s.opt.UseCAS))
			Expect(fitID).To(Equal(cur.id), "item no longer fits its own class")
		}
	}
}
