package protocol

// Verb identifies the parsed command, normalized across both wire
// flavors so the engine only branches on one enum. RESP's incrby/decrby
// map onto the same Incr/Decr verbs the memcached flavor's incr/decr use
// (spec.md §4.4.2: "mapped to internal INCR").
type Verb int

const (
	VerbUnknown Verb = iota
	VerbGet
	VerbGets
	VerbMget
	VerbSet
	VerbAdd
	VerbReplace
	VerbAppend
	VerbPrepend
	VerbCas
	VerbIncr
	VerbDecr
	VerbDelete
	VerbFlushAll
	VerbQuit
)

func (v Verb) String() string {
	switch v {
	case VerbGet:
		return "get"
	case VerbGets:
		return "gets"
	case VerbMget:
		return "mget"
	case VerbSet:
		return "set"
	case VerbAdd:
		return "add"
	case VerbReplace:
		return "replace"
	case VerbAppend:
		return "append"
	case VerbPrepend:
		return "prepend"
	case VerbCas:
		return "cas"
	case VerbIncr:
		return "incr"
	case VerbDecr:
		return "decr"
	case VerbDelete:
		return "delete"
	case VerbFlushAll:
		return "flush_all"
	case VerbQuit:
		return "quit"
	default:
		return "unknown"
	}
}

// HasStorageBody reports whether this verb carries a raw value block that
// the parser must read as a second, length-declared pass (pstate Val).
func (v Verb) HasStorageBody() bool {
	switch v {
	case VerbSet, VerbAdd, VerbReplace, VerbAppend, VerbPrepend, VerbCas:
		return true
	default:
		return false
	}
}

// MaxBatch bounds the number of keys a single get/mget may request,
// spec.md §4.4.2's "1..MAX_BATCH keys".
const MaxBatch = 32
