package server

import (
	"io"
	"net"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	. "github.com/onsi/gomega/gbytes"
	"github.com/rcrowley/go-metrics"

	"github.com/skipor/twemcached/config"
	"github.com/skipor/twemcached/engine"
	"github.com/skipor/twemcached/log"
	"github.com/skipor/twemcached/slab"
)

var _ = Describe("conn", func() {
	var (
		client net.Conn
		s      *Server
		out    *Buffer
	)

	newServer := func(flavor config.Flavor) *Server {
		srv := &Server{
			Flavor:          flavor,
			Engine:          engine.New(slab.DefaultOptions(), metrics.NewRegistry()),
			Log:             log.NewLogger(log.DebugLevel, GinkgoWriter),
			BufInitSize:     64,
			DbufMaxPower:    10,
			RequestPoolsize: 16,
		}
		srv.init()
		return srv
	}

	start := func(flavor config.Flavor) {
		s = newServer(flavor)
		var server net.Conn
		client, server = net.Pipe()
		out = NewBuffer()
		go func() {
			defer GinkgoRecover()
			io.Copy(out, client)
		}()
		go func() {
			defer GinkgoRecover()
			s.newConn(server).serve()
		}()
	}

	AfterEach(func() {
		if client != nil {
			client.Close()
		}
	})

	Context("memcache flavor", func() {
		BeforeEach(func() { start(config.FlavorMemcache) })

		It("stores then retrieves a value", func() {
			io.WriteString(client, "set foo 7 0 3\r\nbar\r\n")
			Eventually(out).Should(Say("STORED\r\n"))

			io.WriteString(client, "get foo\r\n")
			Eventually(out).Should(Say("VALUE foo 7 3\r\nbar\r\nEND\r\n"))
		})

		It("reports NOT_FOUND for a missing key", func() {
			io.WriteString(client, "delete missing\r\n")
			Eventually(out).Should(Say("NOT_FOUND\r\n"))
		})

		It("closes the connection after quit", func() {
			io.WriteString(client, "quit\r\n")
			buf := make([]byte, 1)
			Eventually(func() error {
				_, err := client.Read(buf)
				return err
			}).Should(Equal(io.EOF))
		})

		It("sends a CLIENT_ERROR and drops the connection on malformed input", func() {
			io.WriteString(client, "bogus verb here\r\n")
			Eventually(out).Should(Say("CLIENT_ERROR"))
		})
	})

	Context("resp flavor", func() {
		BeforeEach(func() { start(config.FlavorResp) })

		It("stores then retrieves a value", func() {
			io.WriteString(client, "*3\r\n$3\r\nset\r\n$3\r\nfoo\r\n$3\r\nbar\r\n")
			Eventually(out).Should(Say(`\+OK\r\n`))

			io.WriteString(client, "*2\r\n$3\r\nget\r\n$3\r\nfoo\r\n")
			Eventually(out).Should(Say(`\$3\r\nbar\r\n`))
		})
	})
})
