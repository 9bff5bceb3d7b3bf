package pdfval

import "github.com/kpdf/xrefcore/errs"

// ByteRangeSource is the minimal capability a Stream needs from whatever
// backs it before its body has been read into memory - satisfied by
// device.Device. Kept as a narrow interface here (instead of importing the
// device package) so pdfval has no dependency on I/O machinery.
type ByteRangeSource interface {
	ReadRange(begin, end int64) ([]byte, error)
}

// Stream is a PDF stream: a dictionary header plus a body that is either a
// byte range into the source device (HeaderOnly) or an owned in-memory
// buffer (Full), per the "two-phase load" design note in SPEC_FULL.md,
// section 9. Length may be an indirect reference in Dict; resolving it is
// the caller's responsibility (the store resolves it on first read, see
// package store), not this type's.
type Stream struct {
	Dict Dict

	source     ByteRangeSource
	rangeBegin int64
	rangeEnd   int64

	owned []byte
	state LoadState
}

// NewDeviceStream constructs a stream whose body is a lazily-read byte range
// [begin, end) into src.
func NewDeviceStream(dict Dict, src ByteRangeSource, begin, end int64) *Stream {
	return &Stream{Dict: dict, source: src, rangeBegin: begin, rangeEnd: end, state: HeaderOnly}
}

// NewOwnedStream constructs a stream whose body is already materialized -
// used when a caller mutates or creates a stream from scratch.
func NewOwnedStream(dict Dict, body []byte) *Stream {
	return &Stream{Dict: dict, owned: body, state: Full}
}

// State reports whether the body has been read into memory yet.
func (s *Stream) State() LoadState { return s.state }

// RawBytes returns the stream's raw (still filtered/encrypted) content,
// reading it from the source device on first access and caching the result -
// the monotonic HeaderOnly -> Full transition from the design note.
func (s *Stream) RawBytes() ([]byte, error) {
	if s.state == Full {
		return s.owned, nil
	}
	if s.source == nil {
		return nil, errs.New(errs.InternalLogic, "stream has no backing source and no owned bytes")
	}
	b, err := s.source.ReadRange(s.rangeBegin, s.rangeEnd)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidObject, err)
	}
	s.owned = b
	s.source = nil
	s.state = Full
	return s.owned, nil
}

// SetBytes replaces the stream body with an owned buffer, detaching any
// device source. Used when the caller rewrites stream content.
func (s *Stream) SetBytes(body []byte) {
	s.owned = body
	s.source = nil
	s.state = Full
}

// Clone returns a deep copy. If the body has not been read yet, the clone
// keeps referencing the same lazy range (sharing the same immutable source
// is safe: reads are read-only).
func (s *Stream) Clone() *Stream {
	out := &Stream{Dict: s.Dict.Clone(), source: s.source, rangeBegin: s.rangeBegin, rangeEnd: s.rangeEnd, state: s.state}
	if s.owned != nil {
		out.owned = append([]byte(nil), s.owned...)
	}
	return out
}
