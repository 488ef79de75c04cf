package resp

import (
	"bytes"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/skipor/twemcached/buffer"
	"github.com/skipor/twemcached/protocol"
	"github.com/skipor/twemcached/recycle"
)

var _ = Describe("Compose", func() {
	var buf *buffer.Buffer

	BeforeEach(func() {
		buf = buffer.New(64, 4)
	})

	unread := func() string { return string(buf.Unread()) }

	It("writes +OK for Stored", func() {
		_, err := Compose(&protocol.Response{Status: protocol.Stored}, buf)
		Expect(err).NotTo(HaveOccurred())
		Expect(unread()).To(Equal("+OK\r\n"))
	})

	It("writes an integer reply", func() {
		_, err := Compose(&protocol.Response{Status: protocol.IntReply, Int: 909}, buf)
		Expect(err).NotTo(HaveOccurred())
		Expect(unread()).To(Equal(":909\r\n"))
	})

	It("writes a nil bulk for NotFound", func() {
		_, err := Compose(&protocol.Response{Status: protocol.NotFound}, buf)
		Expect(err).NotTo(HaveOccurred())
		Expect(unread()).To(Equal("$-1\r\n"))
	})

	It("writes an error line", func() {
		_, err := Compose(&protocol.Response{Status: protocol.ServerError, Err: "out of memory"}, buf)
		Expect(err).NotTo(HaveOccurred())
		Expect(unread()).To(Equal("-out of memory\r\n"))
	})

	It("writes a single bulk for a one-value reply", func() {
		pool := recycle.NewPool()
		data, err := pool.ReadData(bytes.NewReader([]byte("XYZ")), 3)
		Expect(err).NotTo(HaveOccurred())
		_, err = Compose(&protocol.Response{
			Status: protocol.ValueReply,
			Values: []protocol.ResponseValue{{Value: data}},
		}, buf)
		Expect(err).NotTo(HaveOccurred())
		Expect(unread()).To(Equal("$3\r\nXYZ\r\n"))
	})

	It("writes an array of bulks for a multi-value reply", func() {
		pool := recycle.NewPool()
		d1, _ := pool.ReadData(bytes.NewReader([]byte("a")), 1)
		d2, _ := pool.ReadData(bytes.NewReader([]byte("bb")), 2)
		_, err := Compose(&protocol.Response{
			Status: protocol.ValueReply,
			Values: []protocol.ResponseValue{{Value: d1}, {Value: d2}},
		}, buf)
		Expect(err).NotTo(HaveOccurred())
		Expect(unread()).To(Equal("*2\r\n$1\r\na\r\n$2\r\nbb\r\n"))
	})

	It("parses its own composed simple string reply back", func() {
		_, err := Compose(&protocol.Response{Status: protocol.Stored}, buf)
		Expect(err).NotTo(HaveOccurred())
		pool := recycle.NewPool()
		got := &protocol.Response{}
		status := ParseResponse(got, buf, pool)
		Expect(status).To(Equal(protocol.OK))
		Expect(got.Status).To(Equal(protocol.Ok))
	})

	It("parses its own composed single-bulk reply back", func() {
		pool := recycle.NewPool()
		d1, _ := pool.ReadData(bytes.NewReader([]byte("a")), 1)
		_, err := Compose(&protocol.Response{
			Status: protocol.ValueReply,
			Values: []protocol.ResponseValue{{Value: d1}},
		}, buf)
		Expect(err).NotTo(HaveOccurred())

		got := &protocol.Response{}
		status := ParseResponse(got, buf, pool)
		Expect(status).To(Equal(protocol.OK))
		Expect(got.Status).To(Equal(protocol.ValueReply))
		Expect(got.Values).To(HaveLen(1))
		gotBytes := make([]byte, got.Values[0].Value.Len())
		got.Values[0].Value.CopyTo(gotBytes)
		Expect(string(gotBytes)).To(Equal("a"))
	})

	It("reports UNFIN on a partially arrived reply, without consuming", func() {
		_, err := buf.Fill([]byte(":12"))
		Expect(err).NotTo(HaveOccurred())
		pool := recycle.NewPool()
		got := &protocol.Response{}
		status := ParseResponse(got, buf, pool)
		Expect(status).To(Equal(protocol.Unfinished))
		Expect(buf.RPos()).To(Equal(0))
	})
})
