// Package protocol holds the wire-protocol-agnostic pieces shared by both
// codec flavors: the parse status enum, the Request/Response value
// objects parsers fill in and composers read from, and the fixed-capacity
// pools spec.md §5 calls for. protocol/memcache and protocol/resp each
// implement Parse/Compose against these types for their own grammar.
package protocol

// Status is the result of one parse or compose attempt. OK completes the
// request. On any other value the parser rewinds rpos to the start of the
// stage it stopped in: the start of the request while the header is being
// read, or the start of the value block once a storage command's header
// has been consumed (pstate Val). A value-block failure therefore leaves
// the header consumed; rpos is not rewound to the start of the request.
type Status int

const (
	// OK: message complete, rstate transitions to Parsed.
	OK Status = iota
	// Unfinished: need more bytes; caller must retry with the same
	// Request once more bytes have arrived.
	Unfinished
	// Empty: an expected token was absent at a permitted boundary, e.g.
	// terminating a variadic key list.
	Empty
	// Invalid: malformed input. The caller drops the connection or
	// surfaces CLIENT_ERROR.
	Invalid
	// Other: a semantic violation, e.g. too many keys.
	Other
)

func (s Status) String() string {
	switch s {
	case OK:
		return "OK"
	case Unfinished:
		return "UNFIN"
	case Empty:
		return "EMPTY"
	case Invalid:
		return "INVALID"
	case Other:
		return "OTHER"
	default:
		return "UNKNOWN"
	}
}

// ParseState tracks a Request through spec.md §4.4.5's state machine.
type ParseState int

const (
	// Created: a fresh, unused Request (or one just Reset).
	Created ParseState = iota
	// Parsing: a header has been consumed (or is in progress); a body
	// may still be pending (pstate Val).
	Parsing
	// Parsed: the full request is available for processing.
	Parsed
)

// BodyState distinguishes the two parse passes a storage command needs:
// header first, then (if it declares a body) exactly Bytes octets of raw
// value data.
type BodyState int

const (
	// Hdr: parsing the header line/array.
	Hdr BodyState = iota
	// Val: header parsed, now consuming a declared-length value block.
	Val
)
