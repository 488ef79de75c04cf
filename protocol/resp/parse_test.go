package resp

import (
	"bytes"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/skipor/twemcached/buffer"
	"github.com/skipor/twemcached/protocol"
	"github.com/skipor/twemcached/recycle"
)

var _ = Describe("Parse", func() {
	var (
		buf  *buffer.Buffer
		req  *protocol.Request
		pool *recycle.Pool
	)

	BeforeEach(func() {
		buf = buffer.New(64, 4)
		req = &protocol.Request{}
		pool = recycle.NewPool()
	})

	feed := func(s string) {
		_, err := buf.Fill([]byte(s))
		Expect(err).NotTo(HaveOccurred())
	}

	It("S1: round-trips a QUIT", func() {
		_, err := ComposeRequest(&protocol.Request{Verb: protocol.VerbQuit}, buf)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(buf.Unread())).To(Equal("*1\r\n$4\r\nquit\r\n"))

		status := Parse(req, buf, pool, Limits{})
		Expect(status).To(Equal(protocol.OK))
		Expect(req.Verb).To(Equal(protocol.VerbQuit))
		Expect(req.RState).To(Equal(protocol.Parsed))
	})

	It("S2: round-trips a GET with one key", func() {
		_, err := ComposeRequest(&protocol.Request{Verb: protocol.VerbGet, Keys: [][]byte{[]byte("foo")}}, buf)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(buf.Unread())).To(Equal("*2\r\n$3\r\nget\r\n$3\r\nfoo\r\n"))

		status := Parse(req, buf, pool, Limits{})
		Expect(status).To(Equal(protocol.OK))
		Expect(req.Keys).To(HaveLen(1))
		Expect(string(req.Keys[0])).To(Equal("foo"))
	})

	It("S4: round-trips an INCRBY with delta 909", func() {
		_, err := ComposeRequest(&protocol.Request{Verb: protocol.VerbIncr, Keys: [][]byte{[]byte("foo")}, Delta: 909}, buf)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(buf.Unread())).To(Equal("*3\r\n$6\r\nincrby\r\n$3\r\nfoo\r\n$3\r\n909\r\n"))

		status := Parse(req, buf, pool, Limits{})
		Expect(status).To(Equal(protocol.OK))
		Expect(req.Verb).To(Equal(protocol.VerbIncr))
		Expect(req.Delta).To(BeEquivalentTo(909))
	})

	It("S6: partial array resumes without consuming on UNFIN", func() {
		feed("*2\r\n$3\r\nget")
		status := Parse(req, buf, pool, Limits{})
		Expect(status).To(Equal(protocol.Unfinished))
		Expect(buf.RPos()).To(Equal(0))

		feed("\r\n$3\r\nfoo\r\n")
		status = Parse(req, buf, pool, Limits{})
		Expect(status).To(Equal(protocol.OK))
		Expect(string(req.Keys[0])).To(Equal("foo"))
	})

	It("round-trips a SET through compose then parse", func() {
		pool2 := recycle.NewPool()
		val, err := pool2.ReadData(bytes.NewReader([]byte("XYZ")), 3)
		Expect(err).NotTo(HaveOccurred())
		_, err = ComposeRequest(&protocol.Request{Verb: protocol.VerbSet, Keys: [][]byte{[]byte("foo")}, Value: val}, buf)
		Expect(err).NotTo(HaveOccurred())

		status := Parse(req, buf, pool, Limits{})
		Expect(status).To(Equal(protocol.OK))
		Expect(req.Verb).To(Equal(protocol.VerbSet))
		Expect(string(req.Keys[0])).To(Equal("foo"))
		got := make([]byte, req.Value.Len())
		req.Value.CopyTo(got)
		Expect(string(got)).To(Equal("XYZ"))
	})

	It("feeding one byte at a time yields the same result as one shot (incremental parse property)", func() {
		whole := "*3\r\n$3\r\nset\r\n$3\r\nfoo\r\n$3\r\nabc\r\n"
		for i := 0; i < len(whole); i++ {
			feed(string(whole[i]))
			status := Parse(req, buf, pool, Limits{})
			if i < len(whole)-1 {
				Expect(status).To(Equal(protocol.Unfinished), "byte %d of %d", i, len(whole))
			} else {
				Expect(status).To(Equal(protocol.OK))
			}
		}
		Expect(string(req.Keys[0])).To(Equal("foo"))
	})

	It("rejects more keys than MaxBatch as OTHER", func() {
		buf2 := buffer.New(4096, 6)
		elems := make([][]byte, 0, protocol.MaxBatch+1)
		for i := 0; i < protocol.MaxBatch+1; i++ {
			elems = append(elems, []byte("k"))
		}
		_, err := ComposeRequest(&protocol.Request{Verb: protocol.VerbMget, Keys: elems}, buf2)
		Expect(err).NotTo(HaveOccurred())
		req2 := &protocol.Request{}
		status := Parse(req2, buf2, pool, Limits{})
		Expect(status).To(Equal(protocol.Other))
	})
})
