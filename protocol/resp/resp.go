// Package resp implements the RESP-style wire flavor (spec.md §4.4.2, §6.2):
// requests are an inline array of bulk strings, responses use the five
// classic RESP prefixes (simple string, error, integer, bulk, array).
//
// Like the memcache package, Parse never blocks: on short input it returns
// protocol.Unfinished and rewinds to the start of the stage it stopped in
// (a completed header stays consumed), ready to be retried once more bytes
// arrive.
package resp

import (
	"github.com/pkg/errors"
)

const (
	// maxUint64Digits bounds how many decimal digits a numeric bulk may
	// carry before it is rejected outright, mirroring the original's
	// "UINT64_MAX / 10" overflow guard (original_source src/protocol/data/redis/parse.c).
	maxUint64Digits = 20
)

var (
	ErrUnknownVerb     = errors.New("resp: unknown verb")
	ErrMalformedArray  = errors.New("resp: malformed array header")
	ErrMalformedBulk   = errors.New("resp: malformed bulk header")
	ErrWrongArity      = errors.New("resp: wrong number of arguments")
	ErrIntegerOverflow = errors.New("resp: integer field overflows uint64")
	ErrNotDigits       = errors.New("resp: non-digit character in integer field")
)

var crlf = []byte("\r\n")
