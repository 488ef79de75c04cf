// Package buffer implements the linear read/write byte buffer the wire
// codecs parse from and compose into: a contiguous backing array with two
// cursors (rpos/wpos) that can double its capacity on demand, up to a
// configured cap. It has no notion of a connection or a socket; filling it
// and draining it are both the caller's job.
//
// Ported from ccommon's cc_dbuf.c (see original_source/deps/ccommon in the
// retrieval pack): dbuf_double, dbuf_fit and dbuf_shrink become methods here,
// with C's realloc-and-fix-up-pointers replaced by ordinary slice growth.
package buffer

import "github.com/pkg/errors"

// DefaultInitSize is the per-connection buffer size new Buffers default to
// absent an explicit config value (mirrors memcached's 16 KiB wire buffers).
const DefaultInitSize = 16 * 1024

// DefaultMaxPower caps doubling at initSize<<7, e.g. 16KiB -> 2MiB.
const DefaultMaxPower = 7

// ErrTooBig is returned when growing the buffer to the requested capacity
// would exceed its configured maximum size.
var ErrTooBig = errors.New("buffer: requested size exceeds max size")

// Buffer is a contiguous byte array with read and write cursors.
//
//	[0, rpos)      already-consumed bytes
//	[rpos, wpos)   unread, already-written bytes ("readable" region)
//	[wpos, cap)    free space available to Write
type Buffer struct {
	data     []byte
	rpos     int
	wpos     int
	initSize int
	maxSize  int
}

// New returns a Buffer with the given initial capacity, allowed to double
// up to initSize<<maxPower bytes.
func New(initSize int, maxPower uint8) *Buffer {
	if initSize <= 0 {
		initSize = DefaultInitSize
	}
	return &Buffer{
		data:     make([]byte, initSize),
		initSize: initSize,
		maxSize:  initSize << maxPower,
	}
}

// NewDefault returns a Buffer sized per DefaultInitSize/DefaultMaxPower.
func NewDefault() *Buffer {
	return New(DefaultInitSize, DefaultMaxPower)
}

// RPos and WPos expose the cursors as byte offsets into Bytes, so parsers
// can save/restore them verbatim across an UNFIN return.
func (b *Buffer) RPos() int { return b.rpos }
func (b *Buffer) WPos() int { return b.wpos }

// SetRPos and SetWPos restore cursors a parser saved earlier. The codecs
// save rpos at the start of each parse stage (header, then value block)
// and restore it on any non-OK result.
func (b *Buffer) SetRPos(p int) { b.rpos = p }
func (b *Buffer) SetWPos(p int) { b.wpos = p }

// Cap returns the buffer's current total capacity.
func (b *Buffer) Cap() int { return len(b.data) }

// RSize is the number of unread, already-written bytes.
func (b *Buffer) RSize() int { return b.wpos - b.rpos }

// WSize is the number of free bytes available before the buffer must grow.
func (b *Buffer) WSize() int { return len(b.data) - b.wpos }

// Bytes returns the full backing array. Valid unread data is
// Bytes()[RPos():WPos()]; callers must not retain slices across a call that
// may grow or Reclaim/Reset the buffer.
func (b *Buffer) Bytes() []byte { return b.data }

// Unread returns the unread region [rpos, wpos). Same aliasing caveat as
// Bytes.
func (b *Buffer) Unread() []byte { return b.data[b.rpos:b.wpos] }

// Advance moves rpos forward by n bytes; n must not exceed RSize.
func (b *Buffer) Advance(n int) { b.rpos += n }

// Fill appends p to the writable tail, growing the buffer (via Double) as
// needed. Returns ErrTooBig if that would exceed the configured max size.
func (b *Buffer) Fill(p []byte) (int, error) {
	for len(p) > b.WSize() {
		if err := b.Double(); err != nil {
			return 0, err
		}
	}
	n := copy(b.data[b.wpos:], p)
	b.wpos += n
	return n, nil
}

// ReserveForWrite ensures at least n bytes of writable tail space, doubling
// as needed, and returns the writable slice itself so a composer can write
// into it directly before advancing WPos. Mirrors the C compose path's
// "estimate once, grow once, then write without further checks" discipline
// (spec's Composer contract).
func (b *Buffer) ReserveForWrite(n int) ([]byte, error) {
	for n > b.WSize() {
		if err := b.Double(); err != nil {
			return nil, err
		}
	}
	return b.data[b.wpos : b.wpos+n], nil
}

// Double grows the backing array to twice its current size, capped at
// maxSize. Cursors are preserved.
func (b *Buffer) Double() error {
	nsize := len(b.data) * 2
	if nsize > b.maxSize {
		return ErrTooBig
	}
	return b.resize(nsize)
}

// Fit grows the buffer to the smallest power-of-two multiple of initSize
// that is at least cap bytes, if it isn't already that big.
func (b *Buffer) Fit(cap int) error {
	nsize := b.initSize
	for nsize < cap {
		nsize *= 2
	}
	if nsize > b.maxSize {
		return ErrTooBig
	}
	if nsize <= len(b.data) {
		return nil
	}
	return b.resize(nsize)
}

func (b *Buffer) resize(nsize int) error {
	ndata := make([]byte, nsize)
	copy(ndata, b.data)
	b.data = ndata
	return nil
}

// Shrink releases any growth and returns the buffer to its initial
// capacity. Unread data beyond the initial capacity is discarded; callers
// only shrink an idle, fully-drained buffer.
func (b *Buffer) Shrink() {
	b.data = make([]byte, b.initSize)
	b.rpos = 0
	b.wpos = 0
}

// Reclaim moves the unread region to the start of the backing array,
// resetting rpos to 0. This is not part of the original cc_dbuf (which is
// read into, parsed, and reset wholesale by its single-threaded owner) but
// is the natural Go idiom for a connection loop that keeps refilling the
// same buffer across many requests without growing it unboundedly.
func (b *Buffer) Reclaim() {
	if b.rpos == 0 {
		return
	}
	n := copy(b.data, b.data[b.rpos:b.wpos])
	b.rpos = 0
	b.wpos = n
}

// Reset discards all buffered content without resizing.
func (b *Buffer) Reset() {
	b.rpos = 0
	b.wpos = 0
}
