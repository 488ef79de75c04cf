package memcache

import (
	"bytes"
	"strconv"

	"github.com/skipor/twemcached/buffer"
	"github.com/skipor/twemcached/protocol"
	"github.com/skipor/twemcached/recycle"
)

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

// Parse advances req through spec.md §4.4.5's state machine by consuming
// from buf. It never blocks: on short input it returns Unfinished and
// rewinds buf to the start of the stage it stopped in, ready to be retried
// once more bytes have arrived. A completed storage header stays consumed
// (req.PState is Val), so a retry resumes at the value block.
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
	status := parseBody(req, buf, pool)
	if status != protocol.OK {
		buf.SetRPos(bodyStart)
		return status
	}
	req.RState = protocol.Parsed
	return protocol.OK
}

func findLine(buf *buffer.Buffer) (line []byte, ok bool) {
	unread := buf.Unread()
	idx := bytes.Index(unread, separator)
	if idx < 0 {
		return nil, false
	}
	return unread[:idx], true
}

func parseHeader(req *protocol.Request, buf *buffer.Buffer, limits Limits) protocol.Status {
	line, ok := findLine(buf)
	if !ok {
		if buf.RSize() > MaxCommandSize {
			return protocol.Invalid
		}
		return protocol.Unfinished
	}
	buf.Advance(len(line) + len(separator))

	fields := bytes.Fields(line)
	if len(fields) == 0 {
		return protocol.Invalid
	}
	verb, ok := verbFor(fields[0])
	if !ok {
		return protocol.Invalid
	}
	req.Verb = verb
	args := fields[1:]

	switch verb {
	case protocol.VerbQuit:
		if len(args) != 0 {
			return protocol.Invalid
		}
		return protocol.OK
	case protocol.VerbGet, protocol.VerbGets, protocol.VerbMget:
		return parseKeys(req, args)
	case protocol.VerbDelete:
		return parseDelete(req, args)
	case protocol.VerbIncr, protocol.VerbDecr:
		return parseIncrDecr(req, args)
	case protocol.VerbFlushAll:
		return parseFlushAll(req, args)
	case protocol.VerbSet, protocol.VerbAdd, protocol.VerbReplace, protocol.VerbAppend, protocol.VerbPrepend:
		return parseStorageHeader(req, args, limits)
	case protocol.VerbCas:
		return parseCasHeader(req, args, limits)
	default:
		return protocol.Invalid
	}
}

func verbFor(tok []byte) (protocol.Verb, bool) {
	switch string(tok) {
	case "get":
		return protocol.VerbGet, true
	case "gets":
		return protocol.VerbGets, true
	case "mget":
		return protocol.VerbMget, true
	case "set":
		return protocol.VerbSet, true
	case "add":
		return protocol.VerbAdd, true
	case "replace":
		return protocol.VerbReplace, true
	case "append":
		return protocol.VerbAppend, true
	case "prepend":
		return protocol.VerbPrepend, true
	case "cas":
		return protocol.VerbCas, true
	case "incr":
		return protocol.VerbIncr, true
	case "decr":
		return protocol.VerbDecr, true
	case "delete":
		return protocol.VerbDelete, true
	case "flush_all":
		return protocol.VerbFlushAll, true
	case "quit":
		return protocol.VerbQuit, true
	default:
		return protocol.VerbUnknown, false
	}
}

func parseKeys(req *protocol.Request, args [][]byte) protocol.Status {
	if len(args) == 0 {
		return protocol.Invalid
	}
	if len(args) > protocol.MaxBatch {
		return protocol.Other
	}
	for _, k := range args {
		if err := checkKey(k); err != nil {
			return protocol.Invalid
		}
		req.Keys = append(req.Keys, k)
	}
	return protocol.OK
}

func parseDelete(req *protocol.Request, args [][]byte) protocol.Status {
	args, noreply := stripNoReply(args)
	if len(args) != 1 {
		return protocol.Invalid
	}
	if err := checkKey(args[0]); err != nil {
		return protocol.Invalid
	}
	req.Keys = append(req.Keys, args[0])
	req.NoReply = noreply
	return protocol.OK
}

func parseIncrDecr(req *protocol.Request, args [][]byte) protocol.Status {
	args, noreply := stripNoReply(args)
	if len(args) != 2 {
		return protocol.Invalid
	}
	if err := checkKey(args[0]); err != nil {
		return protocol.Invalid
	}
	delta, err := strconv.ParseUint(string(args[1]), 10, 64)
	if err != nil {
		return protocol.Invalid
	}
	req.Keys = append(req.Keys, args[0])
	req.Delta = delta
	req.NoReply = noreply
	return protocol.OK
}

func parseFlushAll(req *protocol.Request, args [][]byte) protocol.Status {
	args, noreply := stripNoReply(args)
	if len(args) > 1 {
		return protocol.Invalid
	}
	if len(args) == 1 {
		delay, err := strconv.ParseInt(string(args[0]), 10, 64)
		if err != nil {
			return protocol.Invalid
		}
		req.ExpireAt = delay // not acted on; delayed flush is unimplemented, see DESIGN.md
	}
	req.NoReply = noreply
	return protocol.OK
}

func parseStorageHeader(req *protocol.Request, args [][]byte, limits Limits) protocol.Status {
	args, noreply := stripNoReply(args)
	if len(args) != 4 {
		return protocol.Invalid
	}
	if err := checkKey(args[0]); err != nil {
		return protocol.Invalid
	}
	flags, err1 := strconv.ParseUint(string(args[1]), 10, 32)
	exptime, err2 := strconv.ParseInt(string(args[2]), 10, 64)
	bytesLen, err3 := strconv.ParseUint(string(args[3]), 10, 32)
	if err1 != nil || err2 != nil || err3 != nil {
		return protocol.Invalid
	}
	if int(bytesLen) > limits.maxValueSize() {
		return protocol.Invalid
	}
	req.Keys = append(req.Keys, args[0])
	req.Flags = uint32(flags)
	req.ExpireAt = exptime
	req.Bytes = int(bytesLen)
	req.NoReply = noreply
	return protocol.OK
}

func parseCasHeader(req *protocol.Request, args [][]byte, limits Limits) protocol.Status {
	args, noreply := stripNoReply(args)
	if len(args) != 5 {
		return protocol.Invalid
	}
	if err := checkKey(args[0]); err != nil {
		return protocol.Invalid
	}
	flags, err1 := strconv.ParseUint(string(args[1]), 10, 32)
	exptime, err2 := strconv.ParseInt(string(args[2]), 10, 64)
	bytesLen, err3 := strconv.ParseUint(string(args[3]), 10, 32)
	cas, err4 := strconv.ParseUint(string(args[4]), 10, 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return protocol.Invalid
	}
	if int(bytesLen) > limits.maxValueSize() {
		return protocol.Invalid
	}
	req.Keys = append(req.Keys, args[0])
	req.Flags = uint32(flags)
	req.ExpireAt = exptime
	req.Bytes = int(bytesLen)
	req.CAS = cas
	req.NoReply = noreply
	return protocol.OK
}

func stripNoReply(args [][]byte) ([][]byte, bool) {
	if n := len(args); n > 0 && string(args[n-1]) == noReplyToken {
		return args[:n-1], true
	}
	return args, false
}

// parseBody reads the raw value block a storage command declared: exactly
// req.Bytes octets followed by CRLF. The bytes are copied out of buf into
// a recycle.Data immediately, since buf is about to be reused for the
// connection's next request (spec.md §9, "Aliasing & item recycling").
func parseBody(req *protocol.Request, buf *buffer.Buffer, pool *recycle.Pool) protocol.Status {
	need := req.Bytes + len(separator)
	if buf.RSize() < need {
		return protocol.Unfinished
	}
	unread := buf.Unread()
	if !bytes.Equal(unread[req.Bytes:need], separator) {
		return protocol.Invalid
	}
	data, err := pool.ReadData(bytes.NewReader(unread[:req.Bytes]), req.Bytes)
	if err != nil {
		return protocol.Invalid
	}
	req.Value = data
	buf.Advance(need)
	return protocol.OK
}
