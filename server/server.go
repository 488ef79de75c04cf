// Package server is the TCP accept loop and per-connection wiring: it
// picks a wire codec (memcache or resp) per spec.md §6.3's flavor option,
// hands each accepted connection an engine.Engine to execute against, and
// is otherwise a direct generalization of the teacher's top-level
// server.go/conn.go to the new codec-agnostic Request/Response shapes.
package server

import (
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/skipor/twemcached/clock"
	"github.com/skipor/twemcached/config"
	"github.com/skipor/twemcached/engine"
	"github.com/skipor/twemcached/log"
	"github.com/skipor/twemcached/protocol"
	"github.com/skipor/twemcached/protocol/memcache"
	"github.com/skipor/twemcached/protocol/resp"
	"github.com/skipor/twemcached/recycle"
)

const (
	DefaultBufInitSize  = 4 << 10
	DefaultDbufMaxPower = 16
)

// Server listens for connections and serves requests against a single
// shared Engine, one goroutine per accepted connection (the same shape
// as the teacher's server.go/cache.go pairing). Engine.Execute holds its
// own lock, so concurrent connections serialize on it rather than on
// anything in this package.
type Server struct {
	Addr   string
	Flavor config.Flavor

	Engine *engine.Engine
	Log    log.Logger

	BufInitSize     int
	DbufMaxPower    uint
	RequestPoolsize int
	BufSockPoolsize int

	ReqPool  *protocol.Pool[protocol.Request]
	DataPool *recycle.Pool

	codec       codec
	connCounter int64
}

// New builds a Server from a fully parsed Config and the Engine it should
// dispatch requests to.
func New(c *config.Config, e *engine.Engine) *Server {
	return &Server{
		Addr:            c.Addr,
		Flavor:          c.Flavor,
		Engine:          e,
		Log:             log.NewLogger(c.LogLevel, c.LogDestination),
		BufInitSize:     c.BufInitSize,
		DbufMaxPower:    c.DbufMaxPower,
		RequestPoolsize: c.RequestPoolsize,
		BufSockPoolsize: c.BufSockPoolsize,
	}
}

func (s *Server) ListenAndServe() error {
	if s.Addr == "" {
		s.Addr = ":11211"
	}
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

func (s *Server) Serve(l net.Listener) error {
	s.init()
	// Tick the coarse clock that item expiry and flush_all read.
	go func() {
		for range time.Tick(time.Second) {
			clock.Update()
		}
	}()
	var tempDelay time.Duration
	for {
		c, err := l.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); !(ok && ne.Temporary()) {
				return err
			}
			if tempDelay == 0 {
				tempDelay = 5 * time.Millisecond
			} else {
				tempDelay *= 2
			}
			if max := time.Second; tempDelay > max {
				tempDelay = max
			}
			s.Log.Errorf("server: accept error: %v; retrying in %v", err, tempDelay)
			time.Sleep(tempDelay)
			continue
		}
		tempDelay = 0
		go s.newConn(c).serve()
	}
}

func (s *Server) newConn(c net.Conn) *conn {
	id := atomic.AddInt64(&s.connCounter, 1)
	l := s.Log.WithFields(log.Fields{"conn": id})
	return newConn(c, l, s)
}

func (s *Server) init() {
	if s.Log == nil {
		s.Log = log.NewLogger(log.ErrorLevel, os.Stderr)
	}
	if s.BufInitSize == 0 {
		s.BufInitSize = DefaultBufInitSize
	}
	if s.DbufMaxPower == 0 {
		s.DbufMaxPower = DefaultDbufMaxPower
	}
	if s.RequestPoolsize == 0 {
		s.RequestPoolsize = 4096
	}
	if s.DataPool == nil {
		s.DataPool = recycle.NewPool()
	}
	if s.ReqPool == nil {
		s.ReqPool = protocol.NewRequestPool(s.RequestPoolsize)
	}
	switch s.Flavor {
	case config.FlavorResp:
		s.codec = respCodec{limits: resp.Limits{}}
	default:
		s.codec = memcacheCodec{limits: memcache.Limits{}}
	}
}
