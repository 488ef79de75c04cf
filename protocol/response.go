package protocol

import "github.com/skipor/twemcached/recycle"

// StatusLine is one of the fixed protocol reply lines spec.md §6.1 lists,
// or IntReply/ValueReply/ErrorReply for the variable-content forms.
type StatusLine int

const (
	NoStatus StatusLine = iota
	Stored
	NotStored
	Exists
	NotFound
	Deleted
	Ok
	IntReply
	ValueReply
	ClientError
	ServerError
	GenericError
)

// ResponseValue is one VALUE line's worth of data: a key plus the item
// bytes and metadata the composer writes back (flags, optional CAS).
type ResponseValue struct {
	Key   []byte
	Flags uint32
	CAS   uint64
	Value *recycle.Data
}

// Response is the typed carrier the engine fills in and a composer turns
// into bytes. Like Request, it is pool-managed (see pool.go).
type Response struct {
	Status StatusLine
	// Int carries IntReply's value (incr/decr results, RESP :<n>).
	Int int64
	// Err carries the human-readable message for ClientError/
	// ServerError/GenericError.
	Err string
	// Values carries every VALUE line for get/gets/mget responses, in
	// request order; nil/empty means no values (e.g. all keys missed).
	Values []ResponseValue
}

// Reset clears r for its next borrower, recycling any retained Data.
func (r *Response) Reset() {
	for _, v := range r.Values {
		if v.Value != nil {
			v.Value.Recycle()
		}
	}
	*r = Response{Values: r.Values[:0]}
}
