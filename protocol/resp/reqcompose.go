package resp

import (
	"strconv"

	"github.com/skipor/twemcached/buffer"
	"github.com/skipor/twemcached/protocol"
)

var verbToken = map[protocol.Verb]string{
	protocol.VerbGet:      "get",
	protocol.VerbMget:     "mget",
	protocol.VerbSet:      "set",
	protocol.VerbIncr:     "incrby",
	protocol.VerbDecr:     "decrby",
	protocol.VerbDelete:   "delete",
	protocol.VerbFlushAll: "flush",
	protocol.VerbQuit:     "quit",
}

// ComposeRequest writes req's wire form as an inline RESP array, the
// mirror image of Parse. It is used by clients of this flavor and by the
// round-trip property tests (spec.md §8, property 1).
func ComposeRequest(req *protocol.Request, buf *buffer.Buffer) (int, error) {
	tok, ok := verbToken[req.Verb]
	if !ok {
		return 0, ErrUnknownVerb
	}

	var elems [][]byte
	elems = append(elems, []byte(tok))

	switch req.Verb {
	case protocol.VerbQuit, protocol.VerbFlushAll:
		// no further elements
	case protocol.VerbGet, protocol.VerbMget, protocol.VerbDelete:
		elems = append(elems, req.Keys...)
	case protocol.VerbIncr, protocol.VerbDecr:
		if len(req.Keys) != 1 {
			return 0, ErrWrongArity
		}
		elems = append(elems, req.Keys[0], []byte(strconv.FormatUint(req.Delta, 10)))
	case protocol.VerbSet:
		if len(req.Keys) != 1 {
			return 0, ErrWrongArity
		}
		value := make([]byte, 0)
		if req.Value != nil {
			value = make([]byte, req.Value.Len())
			req.Value.CopyTo(value)
		}
		elems = append(elems, req.Keys[0], value)
	default:
		return 0, ErrUnknownVerb
	}

	estimate := 1 + maxUint64Digits + len(crlf)
	for _, e := range elems {
		estimate += 1 + maxUint64Digits + len(crlf) + len(e) + len(crlf)
	}
	dst, err := buf.ReserveForWrite(estimate)
	if err != nil {
		return 0, err
	}
	n := writeArrayLen(dst, len(elems))
	for _, e := range elems {
		n += writeBulk(dst[n:], e)
	}
	buf.SetWPos(buf.WPos() + n)
	return n, nil
}

func writeArrayLen(dst []byte, n int) int {
	dst[0] = '*'
	w := 1 + copy(dst[1:], strconv.Itoa(n))
	w += copy(dst[w:], crlf)
	return w
}

func writeBulk(dst []byte, data []byte) int {
	dst[0] = '$'
	w := 1 + copy(dst[1:], strconv.Itoa(len(data)))
	w += copy(dst[w:], crlf)
	w += copy(dst[w:], data)
	w += copy(dst[w:], crlf)
	return w
}
