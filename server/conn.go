package server

import (
	"io"
	"net"

	"github.com/facebookgo/stackerr"

	"github.com/skipor/twemcached/buffer"
	"github.com/skipor/twemcached/engine"
	"github.com/skipor/twemcached/internal/util"
	"github.com/skipor/twemcached/log"
	"github.com/skipor/twemcached/protocol"
	"github.com/skipor/twemcached/recycle"
)

// readChunkSize is how much a single conn.fill call tries to pull off the
// socket at once.
const readChunkSize = 4096

type conn struct {
	rwc      net.Conn
	log      log.Logger
	engine   *engine.Engine
	codec    codec
	dataPool *recycle.Pool
	reqPool  *protocol.Pool[protocol.Request]

	in  *buffer.Buffer
	out *buffer.Buffer
}

func newConn(rwc net.Conn, l log.Logger, s *Server) *conn {
	return &conn{
		rwc:      rwc,
		log:      l,
		engine:   s.Engine,
		codec:    s.codec,
		dataPool: s.DataPool,
		reqPool:  s.ReqPool,
		in:       buffer.New(s.BufInitSize, uint8(s.DbufMaxPower)),
		out:      buffer.New(s.BufInitSize, uint8(s.DbufMaxPower)),
	}
}

// serve processes requests off the connection in arrival order (spec.md
// §5, "Ordering") until the client disconnects, sends `quit`, or a
// malformed request forces the connection closed.
func (c *conn) serve() {
	defer c.close()
	for {
		req, err := c.reqPool.Get()
		if err != nil {
			c.log.Errorf("request pool exhausted: %v", err)
			c.sendServerError("out of memory")
			return
		}

		status, err := c.readRequest(req)
		if err != nil {
			c.reqPool.Put(req)
			if err != io.EOF {
				c.log.Errorf("read error: %v", util.Unwrap(err))
			}
			return
		}
		if status != protocol.OK {
			c.sendParseError(status)
			c.reqPool.Put(req)
			return
		}

		resp := c.engine.Execute(req)
		quit := req.Verb == protocol.VerbQuit
		noReply := req.NoReply
		withCAS := req.Verb == protocol.VerbGets

		c.reqPool.Put(req)
		c.in.Reclaim()

		if !noReply {
			if err := c.writeResponse(resp, withCAS); err != nil {
				c.log.Errorf("write error: %v", util.Unwrap(err))
				return
			}
		}
		if quit {
			return
		}
	}
}

// readRequest drives Parse until it returns something other than
// Unfinished, pulling more bytes off the socket in between (spec.md
// §4.4.1: "the caller retries after more bytes arrive").
func (c *conn) readRequest(req *protocol.Request) (protocol.Status, error) {
	for {
		status := c.codec.Parse(req, c.in, c.dataPool)
		if status != protocol.Unfinished {
			return status, nil
		}
		if err := c.fill(); err != nil {
			return status, err
		}
	}
}

func (c *conn) fill() error {
	dst, err := c.in.ReserveForWrite(readChunkSize)
	if err != nil {
		return err
	}
	n, err := c.rwc.Read(dst)
	if n > 0 {
		c.in.SetWPos(c.in.WPos() + n)
	}
	if err != nil {
		return err
	}
	return nil
}

func (c *conn) writeResponse(resp *protocol.Response, withCAS bool) error {
	c.out.Reset()
	if _, err := c.codec.Compose(resp, c.out, withCAS); err != nil {
		return stackerr.Wrap(err)
	}
	_, err := c.rwc.Write(c.out.Unread())
	c.out.Advance(c.out.RSize())
	return stackerr.Wrap(err)
}

func (c *conn) sendParseError(status protocol.Status) {
	msg := "bad command line format"
	if status == protocol.Other {
		msg = "too many keys in request"
	}
	c.writeResponse(&protocol.Response{Status: protocol.ClientError, Err: msg}, false)
}

func (c *conn) sendServerError(msg string) {
	c.writeResponse(&protocol.Response{Status: protocol.ServerError, Err: msg}, false)
}

func (c *conn) close() {
	if r := recover(); r != nil {
		c.log.Errorf("panic serving connection: %v", r)
	}
	c.rwc.Close()
}
