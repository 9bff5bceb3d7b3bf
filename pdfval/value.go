// Package pdfval defines the in-memory PDF value model (SPEC_FULL.md,
// section 3): the tagged union of PDF value kinds, the indirect-object
// Reference identifier, and the composite Object that couples a Reference to
// a Value and an optional Stream body.
//
// It plays the role the teacher's model/types.go plays (ObjNull, ObjBool,
// ObjInt, ObjDict, ObjIndirectRef, ...), but is narrowed to the core's
// scope: no Write/Clone-to-PDF-bytes methods (the spec explicitly excludes
// writers), and Dict is a genuinely order-preserving type instead of the
// teacher's bare `map[Name]Object` - see DESIGN.md, "dictionary key order".
package pdfval

import "fmt"

// Name is a PDF name atom, stored without its leading slash and with any
// #hh escapes already decoded.
type Name string

// Reference identifies an indirect object by (object number, generation).
// Ordering is lexicographic on the pair, as required by the free-list
// protocol (SPEC_FULL.md, section 3).
type Reference struct {
	Num uint32
	Gen uint16
}

// FreeListHead is the reference (0, 65535) reserved as the sentinel head of
// the free list.
var FreeListHead = Reference{Num: 0, Gen: 65535}

// TerminalGeneration is the generation number beyond which an object number
// is never reused.
const TerminalGeneration uint16 = 65535

func (r Reference) String() string { return fmt.Sprintf("%d %d R", r.Num, r.Gen) }

// Less implements the lexicographic ordering on (Num, Gen).
func (r Reference) Less(other Reference) bool {
	if r.Num != other.Num {
		return r.Num < other.Num
	}
	return r.Gen < other.Gen
}

// StringKind distinguishes the two PDF string syntaxes; both decode to raw
// bytes, but round-tripping and escaping differ.
type StringKind uint8

const (
	Literal StringKind = iota
	Hex
)

// Value is the tagged union of PDF value kinds. It is a closed set: Null,
// Bool, Int, Real, Name, String, Array, Dict, Ref and Raw are the only
// implementations, enforced by the unexported isValue method.
type Value interface {
	isValue()
}

type Null struct{}

func (Null) isValue() {}

type Bool bool

func (Bool) isValue() {}

type Int int64

func (Int) isValue() {}

type Real float64

func (Real) isValue() {}

func (Name) isValue() {}

// String is a PDF string object: decoded bytes plus which syntax produced
// them (needed only to round-trip; the bytes themselves are already
// unescaped / un-hexed).
type String struct {
	Bytes []byte
	Kind  StringKind
}

func (String) isValue() {}

// Array is an ordered sequence of values.
type Array []Value

func (Array) isValue() {}

// Ref is an indirect reference appearing as a value (e.g. a dictionary
// entry pointing at another object). It is distinct from Reference, which
// is the bare identifier type used as a store key.
type Ref Reference

func (Ref) isValue() {}

// Raw is an opaque byte span; it is only ever produced as the *content* of a
// content-stream object and is never interpreted by this core.
type Raw []byte

func (Raw) isValue() {}

// Object is a complete indirect object: its identity, its parsed value, and
// - for stream objects - the stream body. Dirty is set whenever the store
// mutates the object after initial load (SPEC_FULL.md, section 3).
type Object struct {
	ID     Reference
	Value  Value
	Stream *Stream
	Dirty  bool
}

// LoadState models the two-phase loading design note: a stream's header
// dictionary may be resolved while its body is still pending.
type LoadState uint8

const (
	HeaderOnly LoadState = iota
	Full
)
