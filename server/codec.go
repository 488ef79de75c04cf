package server

import (
	"github.com/skipor/twemcached/buffer"
	"github.com/skipor/twemcached/protocol"
	"github.com/skipor/twemcached/protocol/memcache"
	"github.com/skipor/twemcached/protocol/resp"
	"github.com/skipor/twemcached/recycle"
)

// codec is the "same {parse, compose} capability set" both wire flavors
// expose per spec.md §9, "Polymorphism over protocol" -- implemented here
// as an interface rather than a tagged variant since Go's idiom for this
// shape is dispatch through method sets, not a switch on a type tag.
type codec interface {
	Parse(req *protocol.Request, buf *buffer.Buffer, pool *recycle.Pool) protocol.Status
	Compose(resp *protocol.Response, buf *buffer.Buffer, withCAS bool) (int, error)
}

type memcacheCodec struct {
	limits memcache.Limits
}

func (c memcacheCodec) Parse(req *protocol.Request, buf *buffer.Buffer, pool *recycle.Pool) protocol.Status {
	return memcache.Parse(req, buf, pool, c.limits)
}

func (c memcacheCodec) Compose(r *protocol.Response, buf *buffer.Buffer, withCAS bool) (int, error) {
	return memcache.Compose(r, buf, withCAS)
}

type respCodec struct {
	limits resp.Limits
}

func (c respCodec) Parse(req *protocol.Request, buf *buffer.Buffer, pool *recycle.Pool) protocol.Status {
	return resp.Parse(req, buf, pool, c.limits)
}

func (c respCodec) Compose(r *protocol.Response, buf *buffer.Buffer, _ bool) (int, error) {
	return resp.Compose(r, buf)
}
