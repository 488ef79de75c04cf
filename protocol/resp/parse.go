package resp

import (
	"bytes"

	"github.com/skipor/twemcached/buffer"
	"github.com/skipor/twemcached/protocol"
	"github.com/skipor/twemcached/recycle"
)

// DefaultMaxValueSize bounds a SET's value bulk when Limits.MaxValueSize
// is left at zero.
const DefaultMaxValueSize = 1 << 20

// Limits bounds what Parse will accept; zero values fall back to the
// package defaults.
type Limits struct {
	MaxValueSize int
}

func (l Limits) maxValueSize() int {
	if l.MaxValueSize <= 0 {
		return DefaultMaxValueSize
	}
	return l.MaxValueSize
}

// Parse advances req through the Hdr/Val state machine described in
// spec.md §4.4.5, reading an inline RESP array off buf. It never blocks:
// on short input it returns protocol.Unfinished and restores buf to
// exactly where Parse found it for this stage, ready to be retried once
// more bytes arrive (spec.md §4.4.1).
func Parse(req *protocol.Request, buf *buffer.Buffer, pool *recycle.Pool, limits Limits) protocol.Status {
	if req.RState == protocol.Created {
		req.RState = protocol.Parsing
	}

	if req.PState == protocol.Hdr {
		start := buf.RPos()
		status := parseHeader(req, buf, limits)
		if status != protocol.OK {
			buf.SetRPos(start)
			return status
		}
		if !req.Verb.HasStorageBody() {
			req.RState = protocol.Parsed
			return protocol.OK
		}
		req.PState = protocol.Val
	}

	bodyStart := buf.RPos()
	status := parseValue(req, buf, pool, limits)
	if status != protocol.OK {
		buf.SetRPos(bodyStart)
		return status
	}
	req.RState = protocol.Parsed
	return protocol.OK
}

func parseHeader(req *protocol.Request, buf *buffer.Buffer, limits Limits) protocol.Status {
	n, status := readArrayLen(buf)
	if status != protocol.OK {
		return status
	}
	if n < 1 {
		return protocol.Invalid
	}

	verbTok, status := readBulk(buf)
	if status != protocol.OK {
		return status
	}
	verb, ok := verbFor(verbTok)
	if !ok {
		return protocol.Invalid
	}
	req.Verb = verb

	switch verb {
	case protocol.VerbQuit, protocol.VerbFlushAll:
		if n != 1 {
			return protocol.Invalid
		}
		return protocol.OK
	case protocol.VerbGet, protocol.VerbMget:
		return parseKeys(req, buf, n-1)
	case protocol.VerbDelete:
		if n != 2 {
			return protocol.Invalid
		}
		return parseSingleKey(req, buf)
	case protocol.VerbIncr, protocol.VerbDecr:
		if n != 3 {
			return protocol.Invalid
		}
		return parseArithmetic(req, buf)
	case protocol.VerbSet:
		if n != 3 {
			return protocol.Invalid
		}
		return parseSingleKey(req, buf)
	default:
		return protocol.Invalid
	}
}

func parseKeys(req *protocol.Request, buf *buffer.Buffer, count int) protocol.Status {
	if count < 1 {
		return protocol.Invalid
	}
	if count > protocol.MaxBatch {
		return protocol.Other
	}
	for i := 0; i < count; i++ {
		key, status := readBulk(buf)
		if status != protocol.OK {
			return status
		}
		req.Keys = append(req.Keys, key)
	}
	return protocol.OK
}

func parseSingleKey(req *protocol.Request, buf *buffer.Buffer) protocol.Status {
	key, status := readBulk(buf)
	if status != protocol.OK {
		return status
	}
	req.Keys = append(req.Keys, key)
	return protocol.OK
}

func parseArithmetic(req *protocol.Request, buf *buffer.Buffer) protocol.Status {
	status := parseSingleKey(req, buf)
	if status != protocol.OK {
		return status
	}
	deltaTok, status := readBulk(buf)
	if status != protocol.OK {
		return status
	}
	delta, ok := parseDecimalUint(deltaTok)
	if !ok {
		return protocol.Invalid
	}
	req.Delta = delta
	return protocol.OK
}

func parseValue(req *protocol.Request, buf *buffer.Buffer, pool *recycle.Pool, limits Limits) protocol.Status {
	data, status := readBulk(buf)
	if status != protocol.OK {
		return status
	}
	if len(data) > limits.maxValueSize() {
		return protocol.Invalid
	}
	val, err := pool.ReadData(bytes.NewReader(data), len(data))
	if err != nil {
		return protocol.Invalid
	}
	req.Value = val
	req.Bytes = len(data)
	return protocol.OK
}

// readArrayLen reads "*<uint>\r\n" and returns the declared element count.
// It commits (advances buf) only once the whole header line has arrived.
func readArrayLen(buf *buffer.Buffer) (int, protocol.Status) {
	unread := buf.Unread()
	if len(unread) == 0 {
		return 0, protocol.Unfinished
	}
	if unread[0] != '*' {
		return 0, protocol.Invalid
	}
	idx := bytes.Index(unread, crlf)
	if idx < 0 {
		return 0, protocol.Unfinished
	}
	n, ok := parseDecimalUint(unread[1:idx])
	if !ok || n > protocol.MaxBatch+2 {
		return 0, protocol.Invalid
	}
	buf.Advance(idx + len(crlf))
	return int(n), protocol.OK
}

// readBulk reads "$<uint>\r\n<bytes>\r\n" and returns the bytes, aliasing
// buf's own backing array. It commits only once the entire bulk --
// header, payload and trailing CRLF -- has arrived.
func readBulk(buf *buffer.Buffer) ([]byte, protocol.Status) {
	unread := buf.Unread()
	if len(unread) == 0 {
		return nil, protocol.Unfinished
	}
	if unread[0] != '$' {
		return nil, protocol.Invalid
	}
	idx := bytes.Index(unread, crlf)
	if idx < 0 {
		return nil, protocol.Unfinished
	}
	n, ok := parseDecimalUint(unread[1:idx])
	if !ok {
		return nil, protocol.Invalid
	}
	headerLen := idx + len(crlf)
	need := headerLen + int(n) + len(crlf)
	if len(unread) < need {
		return nil, protocol.Unfinished
	}
	data := unread[headerLen : headerLen+int(n)]
	if !bytes.Equal(unread[headerLen+int(n):need], crlf) {
		return nil, protocol.Invalid
	}
	buf.Advance(need)
	return data, protocol.OK
}

func parseDecimalUint(b []byte) (uint64, bool) {
	if len(b) == 0 || len(b) > maxUint64Digits {
		return 0, false
	}
	var n uint64
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, false
		}
		if n > (^uint64(0))/10 {
			return 0, false
		}
		n = n*10 + uint64(c-'0')
	}
	return n, true
}

func verbFor(tok []byte) (protocol.Verb, bool) {
	switch string(tok) {
	case "get":
		return protocol.VerbGet, true
	case "mget":
		return protocol.VerbMget, true
	case "set":
		return protocol.VerbSet, true
	case "incrby":
		return protocol.VerbIncr, true
	case "decrby":
		return protocol.VerbDecr, true
	case "delete":
		return protocol.VerbDelete, true
	case "flush":
		return protocol.VerbFlushAll, true
	case "quit":
		return protocol.VerbQuit, true
	default:
		return protocol.VerbUnknown, false
	}
}
