package slab

import (
	"github.com/rcrowley/go-metrics"

	"github.com/skipor/twemcached/clock"
)

// Get looks up key, unlinking and reporting a miss if the stored item has
// lazily expired (spec.md §4.3.1); there is no background sweeper.
func (s *Storage) Get(key []byte) (*Item, bool) {
	it := s.index.Get(key)
	if it == nil {
		return nil, false
	}
	if it.expired(clock.Now(), s.flushAt) {
		s.unlink(it)
		return nil, false
	}
	return it, true
}

// Insert allocates a fresh item for key/val, links it into the hash
// index, and stamps CAS/create/expire times. The caller must have already
// unlinked any prior value for key (spec.md §4.3, item_insert).
func (s *Storage) Insert(key, val []byte, flags uint32, expireAt int64) (*Item, error) {
	id := s.ClassFor(len(key), len(val))
	if id == InvalidClassID {
		return nil, ErrOversized
	}
	it, err := s.GetItem(id)
	metrics.GetOrRegisterCounter("item.req", s.metrics).Inc(1)
	if err != nil {
		metrics.GetOrRegisterCounter("item.req_ex", s.metrics).Inc(1)
		return nil, err
	}
	it.reset()
	it.setKV(key, val, false)
	it.dataflag = flags
	it.createAt = clock.Now()
	it.expireAt = expireAt
	it.cas = s.nextCAS()
	s.link(it)
	return it, nil
}

// Update overwrites it's value in place. Precondition (spec.md §4.3):
// the new value must still fit it's current class; callers that outgrow
// the class must delete and re-Insert instead.
func (s *Storage) Update(it *Item, val []byte) error {
	if s.ClassFor(int(it.klen), len(val)) != it.id {
		return ErrWrongClass
	}
	key := append([]byte(nil), it.Key()...) // Key() aliases it.payload(); snapshot before overwrite.
	it.setKV(key, val, it.isRAligned)
	it.cas = s.nextCAS()
	return nil
}

// AnnexOp selects append or prepend for Annex.
type AnnexOp int

const (
	AnnexAppend AnnexOp = iota
	AnnexPrepend
)

// Annex implements item_annex: append or prepend extra to it's value,
// growing into a new class when the current one no longer fits, per
// spec.md §4.3's fast/slow path description.
func (s *Storage) Annex(it *Item, extra []byte, op AnnexOp) (*Item, error) {
	newVlen := int(it.vlen) + len(extra)
	if op == AnnexAppend && !it.isRAligned && s.ClassFor(int(it.klen), newVlen) == it.id {
		val := append(append([]byte(nil), it.Value()...), extra...)
		it.setKV(it.Key(), val, false)
		it.cas = s.nextCAS()
		return it, nil
	}
	if op == AnnexPrepend && it.isRAligned && s.ClassFor(int(it.klen), newVlen) == it.id {
		val := append(append([]byte(nil), extra...), it.Value()...)
		it.setKV(it.Key(), val, true)
		it.cas = s.nextCAS()
		return it, nil
	}

	// Slow path: allocate a new item of the class that fits the
	// concatenation, copy in, link, and unlink the old one.
	key := append([]byte(nil), it.Key()...)
	oldVal := append([]byte(nil), it.Value()...)
	var val []byte
	raligned := op == AnnexPrepend
	if op == AnnexAppend {
		val = append(oldVal, extra...)
	} else {
		val = append(append([]byte(nil), extra...), oldVal...)
	}
	id := s.ClassFor(len(key), len(val))
	if id == InvalidClassID {
		return nil, ErrOversized
	}
	nit, err := s.GetItem(id)
	if err != nil {
		return nil, err
	}
	nit.reset()
	nit.setKV(key, val, raligned)
	nit.dataflag = it.dataflag
	nit.createAt = it.createAt
	nit.expireAt = it.expireAt
	nit.cas = s.nextCAS()
	s.unlink(it)
	s.link(nit)
	return nit, nil
}

// Delete unlinks key's item if present, reporting whether one was found.
func (s *Storage) Delete(key []byte) bool {
	it, ok := s.Get(key)
	if !ok {
		return false
	}
	s.unlink(it)
	return true
}

// Flush sets the flush watermark to now: every item created at or before
// this instant becomes logically expired on its next access.
func (s *Storage) Flush() {
	s.flushAt = clock.Now()
}

func (s *Storage) link(it *Item) {
	it.isLinked = true
	s.index.Put(it)
	metrics.GetOrRegisterCounter("item.insert", s.metrics).Inc(1)
	gaugeAdd(metrics.GetOrRegisterGauge("item.curr", s.metrics), 1)
	gaugeAdd(metrics.GetOrRegisterGauge("item.keyval_byte", s.metrics), int64(it.klen)+int64(it.vlen))
	gaugeAdd(metrics.GetOrRegisterGauge("item.val_byte", s.metrics), int64(it.vlen))
}

func (s *Storage) unlink(it *Item) {
	if it.isLinked {
		s.index.remove(it)
		it.isLinked = false
		metrics.GetOrRegisterCounter("item.remove", s.metrics).Inc(1)
		gaugeAdd(metrics.GetOrRegisterGauge("item.curr", s.metrics), -1)
		gaugeAdd(metrics.GetOrRegisterGauge("item.keyval_byte", s.metrics), -(int64(it.klen) + int64(it.vlen)))
		gaugeAdd(metrics.GetOrRegisterGauge("item.val_byte", s.metrics), -int64(it.vlen))
	}
	s.PutItem(it)
}
