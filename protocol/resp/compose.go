package resp

import (
	"strconv"

	"github.com/skipor/twemcached/buffer"
	"github.com/skipor/twemcached/protocol"
)

var (
	nilBulk = []byte("$-1\r\n")
	okLine  = []byte("+OK\r\n")
)

// Compose writes resp's wire form per spec.md §6.2: simple strings for
// fixed acknowledgements, an integer for counter/delete replies, and a
// bulk (or array of bulks, for a multi-key get) for value replies.
func Compose(resp *protocol.Response, buf *buffer.Buffer) (int, error) {
	switch resp.Status {
	case protocol.Stored, protocol.Ok:
		return writeFixed(buf, okLine)
	case protocol.NotStored, protocol.Exists:
		return writeError(buf, "operation not performed")
	case protocol.Deleted:
		return writeInteger(buf, 1)
	case protocol.NotFound:
		return writeFixed(buf, nilBulk)
	case protocol.IntReply:
		return writeInteger(buf, resp.Int)
	case protocol.ClientError, protocol.ServerError, protocol.GenericError:
		return writeError(buf, resp.Err)
	case protocol.ValueReply:
		return composeValues(resp, buf)
	default:
		return writeError(buf, "unknown status")
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

func writeInteger(buf *buffer.Buffer, v int64) (int, error) {
	line := ":" + strconv.FormatInt(v, 10) + "\r\n"
	return writeFixed(buf, []byte(line))
}

func writeError(buf *buffer.Buffer, msg string) (int, error) {
	line := "-" + msg + "\r\n"
	return writeFixed(buf, []byte(line))
}

func composeValues(resp *protocol.Response, buf *buffer.Buffer) (int, error) {
	if len(resp.Values) == 0 {
		return writeFixed(buf, nilBulk)
	}
	estimate := 0
	if len(resp.Values) > 1 {
		estimate += 1 + maxUint64Digits + len(crlf)
	}
	for _, v := range resp.Values {
		estimate += 1 + maxUint64Digits + len(crlf)
		if v.Value != nil {
			estimate += v.Value.Len()
		}
		estimate += len(crlf)
	}
	dst, err := buf.ReserveForWrite(estimate)
	if err != nil {
		return 0, err
	}
	n := 0
	if len(resp.Values) > 1 {
		n += writeArrayLen(dst[n:], len(resp.Values))
	}
	for _, v := range resp.Values {
		vlen := 0
		if v.Value != nil {
			vlen = v.Value.Len()
		}
		dst[n] = '$'
		n++
		n += copy(dst[n:], strconv.Itoa(vlen))
		n += copy(dst[n:], crlf)
		if v.Value != nil {
			n += v.Value.CopyTo(dst[n:])
		}
		n += copy(dst[n:], crlf)
	}
	buf.SetWPos(buf.WPos() + n)
	return n, nil
}
