package recycle

import (
	"fmt"
	"io"
	"sync/atomic"
)

// Data is a value's bytes, assembled from pool chunks, that can have
// multiple concurrent readers (e.g. one writing it into a slab item, one
// composing it back onto a different connection for a concurrent GET).
// Recycle marks the caller's own reference done; the chunks return to the
// pool once every reader created before Recycle has also closed.
type Data struct {
	pool          *Pool
	recycleCalled int32 // Atomic.
	references    int32 // Atomic.
	chunks        [][]byte
}

func newData(p *Pool, chunks [][]byte) *Data {
	return &Data{
		pool:       p,
		references: 1,
		chunks:     chunks,
	}
}

func (d *Data) NewReader() *DataReader {
	if atomic.LoadInt32(&d.recycleCalled) == 1 {
		panic("read access after recycle call")
	}
	atomic.AddInt32(&d.references, 1)
	return &DataReader{data: d}
}

func (d *Data) Recycle() {
	if !atomic.CompareAndSwapInt32(&d.recycleCalled, 0, 1) {
		panic("second recycle call")
	}
	d.decReference()
}

func (d *Data) WriteTo(w io.Writer) (nn int64, err error) {
	r := d.NewReader()
	nn, err = r.WriteTo(w)
	r.Close()
	return
}

// Len returns the total byte length across every chunk.
func (d *Data) Len() int {
	n := 0
	for _, c := range d.chunks {
		n += len(c)
	}
	return n
}

// CopyTo copies Len() bytes into dst, which must be at least that long,
// and returns the number of bytes copied. Used by composers writing
// straight into a pre-sized buffer slice rather than through io.Writer.
func (d *Data) CopyTo(dst []byte) int {
	r := d.NewReader()
	defer r.Close()
	n, _ := io.ReadFull(r, dst[:d.Len()])
	return n
}

func (d *Data) decReference() {
	readersLeft := atomic.AddInt32(&d.references, -1)
	if readersLeft == 0 {
		if atomic.LoadInt32(&d.recycleCalled) != 1 {
			panic("no readers but recycle not called")
		}
		d.pool.recycleData(d)
		d.pool = nil
		d.chunks = nil
	}
}

func (d *Data) isRecycled() bool {
	return d.pool == nil
}

func (d *Data) GoString() string {
	return fmt.Sprintf("{recycleCalled:%v, refs:%v, chunks:%v}",
		d.recycleCalled == 1, d.references, d.chunks)

}
