package slab

import "github.com/cespare/xxhash/v2"

// HashIndex is a chained hash table keyed by an item's key bytes. Slots are
// singly-linked chains threaded through the item's own nextInChain field
// (see item.go) rather than a separate chain-node allocation, so a lookup
// touches one array slot and then only item objects already needed.
//
// Capacity is fixed at construction and never resized: spec.md §4.2, "The
// hash table never resizes after setup."
type HashIndex struct {
	buckets []*Item
	mask    uint64
}

// NewHashIndex builds an index with 2^power buckets.
func NewHashIndex(power uint) *HashIndex {
	if power == 0 {
		power = 16
	}
	n := uint64(1) << power
	return &HashIndex{
		buckets: make([]*Item, n),
		mask:    n - 1,
	}
}

func hashKey(key []byte) uint64 {
	return xxhash.Sum64(key)
}

func (h *HashIndex) bucketFor(key []byte) int {
	return int(hashKey(key) & h.mask)
}

// Put prepends it to its bucket's chain. Does not check for an existing
// entry with the same key; the caller must have already unlinked any prior
// value for this key (spec.md §4.2).
func (h *HashIndex) Put(it *Item) {
	b := h.bucketFor(it.Key())
	it.nextInChain = h.buckets[b]
	h.buckets[b] = it
}

// Get walks the chain for key, returning the first entry whose key bytes
// compare equal, or nil.
func (h *HashIndex) Get(key []byte) *Item {
	for it := h.buckets[h.bucketFor(key)]; it != nil; it = it.nextInChain {
		if it.keyEqual(key) {
			return it
		}
	}
	return nil
}

// Delete removes the first entry matching key from its chain, reporting
// whether one was found. It does not itself recycle the item; callers
// unlink and then decide the item's fate (free queue, or repurposed by
// annex).
func (h *HashIndex) Delete(key []byte) bool {
	b := h.bucketFor(key)
	var prev *Item
	for it := h.buckets[b]; it != nil; it = it.nextInChain {
		if it.keyEqual(key) {
			h.unlinkFromChain(b, prev, it)
			return true
		}
		prev = it
	}
	return false
}

// remove unlinks a specific item known to be in the index (used by unlink
// paths that already hold the item, avoiding a second key comparison
// walk).
func (h *HashIndex) remove(it *Item) {
	b := h.bucketFor(it.Key())
	var prev *Item
	for cur := h.buckets[b]; cur != nil; cur = cur.nextInChain {
		if cur == it {
			h.unlinkFromChain(b, prev, cur)
			return
		}
		prev = cur
	}
}

func (h *HashIndex) unlinkFromChain(bucket int, prev, it *Item) {
	if prev == nil {
		h.buckets[bucket] = it.nextInChain
	} else {
		prev.nextInChain = it.nextInChain
	}
	it.nextInChain = nil
}
