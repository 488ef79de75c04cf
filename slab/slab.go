package slab

import (
	"math/rand"

	"github.com/rcrowley/go-metrics"
)

// slabBlock is one fixed-size slab: a contiguous byte region carved into
// items_per_slab equal slots of its class's payloadCap, plus the
// slabList linkage used for EvictLRU.
type slabBlock struct {
	class *SlabClass
	data  []byte
	// items holds one *Item per carved slot (lazily grown as bump
	// allocation reaches it); a non-nil entry's Go object is reused
	// across the slot's whole lifetime rather than reallocated.
	items []*Item
	used  int // slots carved so far (bump pointer)
	utime int64

	prev, next *slabBlock // slabList links; nil when not in a class's list
}

// SlabClass owns every slab carved for one size class: its free queue
// (LIFO), the slab currently being carved ("partial"), and the class's
// full slab set for eviction.
type SlabClass struct {
	id ClassID
	// payloadCap is the usable key+value byte capacity of one slot in
	// this class — S_c minus the accounted header/CAS overhead.
	payloadCap int
	itemsPerSlab int

	freeq   []*Item // LIFO stack of released items, still carved and owned
	partial *slabBlock

	slabs []*slabBlock // every slab ever carved for this class
	order *slabList     // carve/reuse order, for EvictLRU
}

// Options configures a Storage at construction, mirroring slab_setup's
// parameter list (spec.md §4.1).
type Options struct {
	SlabSize    int // bytes per slab, e.g. 1<<20
	SlabMaxBytes int // total memory ceiling across all slabs
	Profile     ClassProfile
	UseCAS      bool
	UseFreeQ    bool
	Prealloc    bool
	EvictPolicy EvictPolicy
	HashPower   uint
}

// DefaultOptions mirrors the SLAB_* defaults in the original engine's
// slab.h: 1 MiB slabs, 64 MiB ceiling, growth-factor profile, freeq +
// CAS enabled, random eviction, 16-bit hash power.
func DefaultOptions() Options {
	return Options{
		SlabSize:     1 << 20,
		SlabMaxBytes: 64 << 20,
		Profile:      DefaultProfile(48, (1<<20)-32, 1.25),
		UseCAS:       true,
		UseFreeQ:     true,
		Prealloc:     true,
		EvictPolicy:  EvictRandom,
		HashPower:    16,
	}
}

// Storage is the top-level slab allocator plus hash index: the
// process-wide singleton spec.md §9 describes, minus the wire codecs.
type Storage struct {
	opt     Options
	classes []*SlabClass // index 0 unused, classes[id] for id in [1,lastID]
	index   *HashIndex

	flushAt    int64
	casCounter uint64
	curBytes   int

	metrics metrics.Registry
}

// NewStorage builds the class table and, if opt.Prealloc, carves one slab
// per class up front (subject to SlabMaxBytes).
func NewStorage(opt Options, reg metrics.Registry) *Storage {
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	s := &Storage{
		opt:     opt,
		index:   NewHashIndex(opt.HashPower),
		metrics: reg,
		flushAt: -1, // no flush yet: items created at time 0 are live
	}
	s.classes = make([]*SlabClass, opt.Profile.lastID()+1)
	casReserve := 0
	if opt.UseCAS {
		casReserve = CASSize
	}
	for id := ClassID(1); id <= opt.Profile.lastID(); id++ {
		payloadCap := opt.Profile.size(id) - itemOverhead - casReserve
		if payloadCap < 1 {
			payloadCap = 1
		}
		itemsPerSlab := opt.SlabSize / payloadCap
		if itemsPerSlab < 1 {
			itemsPerSlab = 1
		}
		s.classes[id] = &SlabClass{
			id:           id,
			payloadCap:   payloadCap,
			itemsPerSlab: itemsPerSlab,
			order:        newSlabList(),
		}
	}
	if opt.Prealloc {
		for id := ClassID(1); id <= opt.Profile.lastID(); id++ {
			if blk, err := s.carveSlab(s.classes[id]); err == nil {
				blk.class.order.moveToBack(blk)
			}
		}
	}
	s.regGauges()
	return s
}

// gaugeAdd adjusts g by delta; metrics.Gauge only exposes Value/Update.
func gaugeAdd(g metrics.Gauge, delta int64) {
	g.Update(g.Value() + delta)
}

func (s *Storage) regGauges() {
	metrics.GetOrRegisterGaugeFloat64("slab.memory", s.metrics)
	metrics.GetOrRegisterGauge("slab.curr", s.metrics)
	metrics.GetOrRegisterGauge("item.curr", s.metrics)
	metrics.GetOrRegisterCounter("slab.req", s.metrics)
	metrics.GetOrRegisterCounter("slab.req_ex", s.metrics)
	metrics.GetOrRegisterCounter("slab.evict", s.metrics)
	metrics.GetOrRegisterCounter("item.req", s.metrics)
	metrics.GetOrRegisterCounter("item.req_ex", s.metrics)
	metrics.GetOrRegisterCounter("item.insert", s.metrics)
	metrics.GetOrRegisterCounter("item.remove", s.metrics)
	metrics.GetOrRegisterGauge("item.keyval_byte", s.metrics)
	metrics.GetOrRegisterGauge("item.val_byte", s.metrics)
}

// ClassFor returns the class that would hold a klen/vlen item, or
// InvalidClassID if it's oversized for every class.
func (s *Storage) ClassFor(klen, vlen int) ClassID {
	return s.opt.Profile.classFor(itemFootprint(klen, vlen, s.opt.UseCAS))
}

// GetItem returns a slot of the given class, acquiring it in the order
// spec.md §4.1 mandates: free queue, then partial slab bump, then a fresh
// carve, then eviction per opt.EvictPolicy. Returns ErrNoMem if every
// option is exhausted.
func (s *Storage) GetItem(id ClassID) (*Item, error) {
	if id == InvalidClassID || int(id) >= len(s.classes) || s.classes[id] == nil {
		return nil, ErrOversized
	}
	c := s.classes[id]
	metrics.GetOrRegisterCounter("slab.req", s.metrics).Inc(1)

	if it := s.popFreeq(c); it != nil {
		return it, nil
	}
	if it := s.bumpPartial(c); it != nil {
		return it, nil
	}
	if blk, err := s.carveSlab(c); err == nil {
		blk.class.order.moveToBack(blk)
		if it := s.bumpPartial(c); it != nil {
			return it, nil
		}
	}
	if it := s.evictInto(c); it != nil {
		return it, nil
	}
	metrics.GetOrRegisterCounter("slab.req_ex", s.metrics).Inc(1)
	return nil, ErrNoMem
}

func (s *Storage) popFreeq(c *SlabClass) *Item {
	if !s.opt.UseFreeQ || len(c.freeq) == 0 {
		return nil
	}
	n := len(c.freeq) - 1
	it := c.freeq[n]
	c.freeq = c.freeq[:n]
	it.inFreeQ = false
	return it
}

func (s *Storage) bumpPartial(c *SlabClass) *Item {
	blk := c.partial
	if blk == nil || blk.used >= c.itemsPerSlab {
		return nil
	}
	slot := blk.used
	blk.used++
	it := blk.items[slot]
	if it == nil {
		it = &Item{id: c.id, slab: blk, slot: slot}
		blk.items[slot] = it
	}
	return it
}

// carveSlab allocates a fresh slab for class c, subject to SlabMaxBytes.
func (s *Storage) carveSlab(c *SlabClass) (*slabBlock, error) {
	need := c.payloadCap * c.itemsPerSlab
	if s.opt.SlabMaxBytes > 0 && s.curBytes+need > s.opt.SlabMaxBytes {
		return nil, ErrMaxBytesExceeded
	}
	blk := &slabBlock{
		class: c,
		data:  make([]byte, need),
		items: make([]*Item, c.itemsPerSlab),
	}
	c.slabs = append(c.slabs, blk)
	c.partial = blk
	s.curBytes += need
	metrics.GetOrRegisterGaugeFloat64("slab.memory", s.metrics).Update(float64(s.curBytes))
	metrics.GetOrRegisterGauge("slab.curr", s.metrics).Update(int64(s.totalSlabs()))
	return blk, nil
}

func (s *Storage) totalSlabs() int {
	n := 0
	for _, c := range s.classes {
		if c != nil {
			n += len(c.slabs)
		}
	}
	return n
}

// evictInto reclaims one slab for class c per opt.EvictPolicy, unlinking
// every item it held, and returns a freshly freed slot from it.
func (s *Storage) evictInto(c *SlabClass) *Item {
	if s.opt.EvictPolicy == EvictNone || len(c.slabs) == 0 {
		return nil
	}
	var victim *slabBlock
	switch s.opt.EvictPolicy {
	case EvictRandom:
		victim = c.slabs[rand.Intn(len(c.slabs))]
	case EvictLRU:
		victim = c.order.front()
	}
	if victim == nil {
		return nil
	}
	s.evictSlab(victim)
	c.order.moveToBack(victim)
	// Eviction-freed slots are handed back through the bump pointer, not
	// the free queue: that way they're reusable regardless of UseFreeQ.
	return s.bumpPartial(c)
}

// evictSlab unlinks every live item in blk from the hash index and
// rewinds its bump pointer to 0, so the slab looks freshly carved and
// its slots come back through bumpPartial.
func (s *Storage) evictSlab(blk *slabBlock) {
	for i := 0; i < blk.used; i++ {
		it := blk.items[i]
		if it == nil {
			continue
		}
		if it.isLinked {
			s.index.remove(it)
			metrics.GetOrRegisterCounter("item.remove", s.metrics).Inc(1)
			gaugeAdd(metrics.GetOrRegisterGauge("item.curr", s.metrics), -1)
		}
		it.reset()
	}
	metrics.GetOrRegisterCounter("slab.evict", s.metrics).Inc(1)
	blk.used = 0
	blk.class.partial = blk
}

// PutItem returns it to its class's free queue. When the free queue is
// disabled, the slot is simply dropped: its slab keeps it reachable
// only through a future eviction rewind, never through freeq.
func (s *Storage) PutItem(it *Item) {
	if !s.opt.UseFreeQ {
		return
	}
	c := s.classes[it.id]
	it.reset()
	it.inFreeQ = true
	c.freeq = append(c.freeq, it)
}

// nextCAS returns the next monotonic CAS stamp, or 0 if CAS is disabled.
func (s *Storage) nextCAS() uint64 {
	if !s.opt.UseCAS {
		return 0
	}
	s.casCounter++
	return s.casCounter
}
