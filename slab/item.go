// Package slab implements the fixed-class slab allocator, its chained hash
// index, and the item operations (get/insert/update/annex/delete/flush)
// that sit on top of them.
//
// Item headers are kept as ordinary, GC-managed Go structs rather than
// overlaid on the slab's raw byte array the way the C original does with
// pointer arithmetic (struct item embedded at a byte offset): Go gives no
// safe way to reinterpret a []byte region as a struct without `unsafe`,
// and this codebase avoids unsafe entirely. The invariant the spec cares
// about — that memory is partitioned by size class and a class's items
// never outgrow its S_c — is preserved by having each class's byte slots
// hold exactly the item's key+value payload, sized off the same profile
// used to classify requests; the header's own footprint is folded into
// class-fit arithmetic (see itemOverhead in class.go) so class boundaries
// land where they would with an inline header, even though the header
// itself lives beside the slab rather than inside it. Item headers are
// still pooled and reused exactly like slots: see slab.go's freeq.
package slab

import "bytes"

// Item is the unit of stored data: a class id, a slot inside one of that
// class's slabs, and the metadata the spec's Data Model calls for. The
// next-in-chain pointer used by HashIndex lives directly on the item, per
// spec.md §9's "Hash chain embedding" design note.
type Item struct {
	id   ClassID
	slab *slabBlock
	slot int

	isLinked   bool
	inFreeQ    bool
	isRAligned bool

	klen uint8
	vlen uint32

	dataflag uint32
	expireAt int64
	createAt int64
	cas      uint64

	nextInChain *Item
}

// ID returns the item's slab class.
func (it *Item) ID() ClassID { return it.id }

// Flags returns the opaque client flag word preserved verbatim.
func (it *Item) Flags() uint32 { return it.dataflag }

// ExpireAt returns the item's absolute expiry in clock.Now units, or 0 if
// it never expires by TTL.
func (it *Item) ExpireAt() int64 { return it.expireAt }

// CAS returns the item's current CAS stamp.
func (it *Item) CAS() uint64 { return it.cas }

// payload returns the item's slot bytes: the full class capacity, not
// just the used portion.
func (it *Item) payload() []byte {
	capacity := it.slab.class.payloadCap
	off := it.slot * capacity
	return it.slab.data[off : off+capacity]
}

// Key returns the item's key bytes, per its current alignment.
func (it *Item) Key() []byte {
	p := it.payload()
	if it.isRAligned {
		end := len(p) - int(it.vlen)
		return p[end-int(it.klen) : end]
	}
	return p[:it.klen]
}

// Value returns the item's value bytes, per its current alignment.
func (it *Item) Value() []byte {
	p := it.payload()
	if it.isRAligned {
		return p[len(p)-int(it.vlen):]
	}
	return p[it.klen : int(it.klen)+int(it.vlen)]
}

func (it *Item) keyEqual(key []byte) bool {
	return int(it.klen) == len(key) && bytes.Equal(it.Key(), key)
}

// setKV writes key immediately followed by val into the item's slot,
// left-aligned at the slot start or right-aligned against the slot end
// depending on raligned. Caller guarantees len(key)+len(val) fits the
// slot's payloadCap.
func (it *Item) setKV(key, val []byte, raligned bool) {
	p := it.payload()
	it.isRAligned = raligned
	it.klen = uint8(len(key))
	it.vlen = uint32(len(val))
	if raligned {
		off := len(p) - len(key) - len(val)
		copy(p[off:], key)
		copy(p[off+len(key):], val)
		return
	}
	copy(p, key)
	copy(p[len(key):], val)
}

// reset clears an item's fields before it is handed out by slab_get_item,
// mirroring _item_reset in the original: an item pulled from the free
// queue or fresh slab area carries no lingering key/value/expiry state.
func (it *Item) reset() {
	it.isLinked = false
	it.inFreeQ = false
	it.isRAligned = false
	it.klen = 0
	it.vlen = 0
	it.dataflag = 0
	it.expireAt = 0
	it.createAt = 0
	it.cas = 0
	it.nextInChain = nil
}

func (it *Item) expired(now, flushAt int64) bool {
	return (it.expireAt > 0 && it.expireAt < now) || (it.createAt <= flushAt)
}
