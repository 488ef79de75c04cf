// Package memcache implements the memcached-flavored ASCII wire protocol
// (spec.md §4.4.3, §6.1): line-framed requests with an optional raw value
// block, and VALUE/status-line responses. Parse and Compose are both
// I/O-free, operating on a buffer.Buffer, and resumable across partial
// input per spec.md §4.4.1.
package memcache

import "github.com/pkg/errors"

const (
	// MaxKeySize is the longest key this flavor accepts, matching the
	// original memcached protocol's limit.
	MaxKeySize = 250
	// MaxCommandSize bounds a header line before CRLF is found; past
	// this, a line with no terminator yet is treated as INVALID rather
	// than held open forever.
	MaxCommandSize = 1 << 12
	// DefaultMaxValueSize bounds a storage command's declared bytes
	// count, independent of which slab class it would map to.
	DefaultMaxValueSize = 1 << 20

	noReplyToken = "noreply"
)

var separator = []byte("\r\n")

var (
	ErrTooLargeKey        = errors.New("memcache: key too long")
	ErrTooLargeCommand     = errors.New("memcache: command line too long")
	ErrTooLargeValue       = errors.New("memcache: declared value size too large")
	ErrEmptyCommand        = errors.New("memcache: empty command")
	ErrUnknownCommand      = errors.New("memcache: unknown command")
	ErrFieldsParseError    = errors.New("memcache: fields parse error")
	ErrMoreFieldsRequired  = errors.New("memcache: more fields required")
	ErrTooManyFields       = errors.New("memcache: too many fields")
	ErrInvalidOption       = errors.New("memcache: invalid option")
	ErrInvalidCharInKey    = errors.New("memcache: key contains invalid characters")
	ErrInvalidLineSeparator = errors.New("memcache: line must end with CRLF")
	ErrTooManyKeys          = errors.New("memcache: too many keys in one request")
)

func isInvalidKeyChar(b byte) bool {
	return b <= ' ' || b == 127
}

func checkKey(k []byte) error {
	if len(k) == 0 || len(k) > MaxKeySize {
		return ErrTooLargeKey
	}
	for _, b := range k {
		if isInvalidKeyChar(b) {
			return ErrInvalidCharInKey
		}
	}
	return nil
}
