package memcache

import (
	"strconv"

	"github.com/skipor/twemcached/buffer"
	"github.com/skipor/twemcached/protocol"
)

var (
	storedLine    = []byte("STORED\r\n")
	notStoredLine = []byte("NOT_STORED\r\n")
	existsLine    = []byte("EXISTS\r\n")
	notFoundLine  = []byte("NOT_FOUND\r\n")
	deletedLine   = []byte("DELETED\r\n")
	okLine        = []byte("OK\r\n")
	errorLine     = []byte("ERROR\r\n")
	endLine       = []byte("END\r\n")
	valuePrefix   = []byte("VALUE ")
	clientErrPfx  = []byte("CLIENT_ERROR ")
	serverErrPfx  = []byte("SERVER_ERROR ")
)

// Compose writes resp's wire form into buf, growing buf as needed
// (spec.md §4.4.4). withCAS controls whether VALUE lines carry a trailing
// CAS field, as `gets` responses do and `get` responses don't.
func Compose(resp *protocol.Response, buf *buffer.Buffer, withCAS bool) (int, error) {
	switch resp.Status {
	case protocol.Stored:
		return writeFixed(buf, storedLine)
	case protocol.NotStored:
		return writeFixed(buf, notStoredLine)
	case protocol.Exists:
		return writeFixed(buf, existsLine)
	case protocol.NotFound:
		return writeFixed(buf, notFoundLine)
	case protocol.Deleted:
		return writeFixed(buf, deletedLine)
	case protocol.Ok:
		return writeFixed(buf, okLine)
	case protocol.IntReply:
		line := strconv.FormatInt(resp.Int, 10) + "\r\n"
		return writeFixed(buf, []byte(line))
	case protocol.ClientError:
		return writeMessage(buf, clientErrPfx, resp.Err)
	case protocol.ServerError:
		return writeMessage(buf, serverErrPfx, resp.Err)
	case protocol.GenericError:
		return writeFixed(buf, errorLine)
	case protocol.ValueReply:
		return composeValues(resp, buf, withCAS)
	default:
		return writeFixed(buf, errorLine)
	}
}

func writeFixed(buf *buffer.Buffer, line []byte) (int, error) {
	dst, err := buf.ReserveForWrite(len(line))
	if err != nil {
		return 0, err
	}
	n := copy(dst, line)
	buf.SetWPos(buf.WPos() + n)
	return n, nil
}

func writeMessage(buf *buffer.Buffer, prefix []byte, msg string) (int, error) {
	total := len(prefix) + len(msg) + len(separator)
	dst, err := buf.ReserveForWrite(total)
	if err != nil {
		return 0, err
	}
	n := copy(dst, prefix)
	n += copy(dst[n:], msg)
	n += copy(dst[n:], separator)
	buf.SetWPos(buf.WPos() + n)
	return n, nil
}

// composeValues writes every VALUE line followed by END, growing buf once
// for an upper-bound estimate and writing without further checks
// (spec.md §4.4.4).
func composeValues(resp *protocol.Response, buf *buffer.Buffer, withCAS bool) (int, error) {
	estimate := len(endLine)
	for _, v := range resp.Values {
		estimate += estimateValueLine(v, withCAS)
	}
	dst, err := buf.ReserveForWrite(estimate)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, v := range resp.Values {
		n += writeValueLine(dst[n:], v, withCAS)
	}
	n += copy(dst[n:], endLine)
	buf.SetWPos(buf.WPos() + n)
	return n, nil
}

func estimateValueLine(v protocol.ResponseValue, withCAS bool) int {
	n := len(valuePrefix) + len(v.Key) + 1 + 10 /* flags */ + 1 + 10 /* bytes */ + len(separator)
	if withCAS {
		n += 1 + 20 // space + uint64 decimal
	}
	if v.Value != nil {
		n += v.Value.Len() + len(separator)
	}
	return n
}

func writeValueLine(dst []byte, v protocol.ResponseValue, withCAS bool) int {
	n := copy(dst, valuePrefix)
	n += copy(dst[n:], v.Key)
	dst[n] = ' '
	n++
	n += copy(dst[n:], strconv.FormatUint(uint64(v.Flags), 10))
	dst[n] = ' '
	n++
	vlen := 0
	if v.Value != nil {
		vlen = v.Value.Len()
	}
	n += copy(dst[n:], strconv.Itoa(vlen))
	if withCAS {
		dst[n] = ' '
		n++
		n += copy(dst[n:], strconv.FormatUint(v.CAS, 10))
	}
	n += copy(dst[n:], separator)
	if v.Value != nil {
		n += v.Value.CopyTo(dst[n:])
	}
	n += copy(dst[n:], separator)
	return n
}
