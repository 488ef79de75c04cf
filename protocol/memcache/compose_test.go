package memcache

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

	It("writes fixed status lines", func() {
		_, err := Compose(&protocol.Response{Status: protocol.Stored}, buf, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(unread()).To(Equal("STORED\r\n"))
	})

	It("writes a CLIENT_ERROR line with the message", func() {
		_, err := Compose(&protocol.Response{Status: protocol.ClientError, Err: "bad command line format"}, buf, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(unread()).To(Equal("CLIENT_ERROR bad command line format\r\n"))
	})

	It("writes VALUE lines then END, with CAS omitted for get", func() {
		pool := recycle.NewPool()
		data, err := pool.ReadData(bytes.NewReader([]byte("XYZ")), 3)
		Expect(err).NotTo(HaveOccurred())
		resp := &protocol.Response{
			Status: protocol.ValueReply,
			Values: []protocol.ResponseValue{{Key: []byte("foo"), Flags: 7, Value: data}},
		}
		_, err = Compose(resp, buf, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(unread()).To(Equal("VALUE foo 7 3\r\nXYZ\r\nEND\r\n"))
	})

	It("includes CAS for gets", func() {
		pool := recycle.NewPool()
		data, err := pool.ReadData(bytes.NewReader([]byte("Z")), 1)
		Expect(err).NotTo(HaveOccurred())
		resp := &protocol.Response{
			Status: protocol.ValueReply,
			Values: []protocol.ResponseValue{{Key: []byte("k"), Flags: 0, CAS: 42, Value: data}},
		}
		_, err = Compose(resp, buf, true)
		Expect(err).NotTo(HaveOccurred())
		Expect(unread()).To(Equal("VALUE k 0 1 42\r\nZ\r\nEND\r\n"))
	})
})
