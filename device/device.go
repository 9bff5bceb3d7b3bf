// Package device implements the random-access byte source the rest of the
// core reads from (SPEC_FULL.md, component A). It generalizes the teacher's
// ad hoc `ctx.rs io.ReadSeeker` field and `ctx.readAt` helper (see
// reader/file/read.go in the teacher) into a small reusable type so that
// xref discovery, stream extraction and the tokenizer all share one seek/read
// discipline instead of re-deriving it.
package device

import (
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/log"
)

// Whence mirrors io.Seek* so callers don't need to import "io" just to seek.
type Whence = int

const (
	Begin   Whence = io.SeekStart
	Current Whence = io.SeekCurrent
	End     Whence = io.SeekEnd
)

// Device is a random-access byte source with an absolute position.
type Device struct {
	rs   io.ReadSeeker
	size int64
}

// New wraps rs, determining its size once up front (as the teacher's
// newContext does with `rs.Seek(0, io.SeekEnd)`).
func New(rs io.ReadSeeker) (*Device, error) {
	size, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("device: cannot determine size: %w", err)
	}
	return &Device{rs: rs, size: size}, nil
}

// Size returns the total byte length of the underlying source.
func (d *Device) Size() int64 { return d.size }

// Position returns the current absolute offset.
func (d *Device) Position() (int64, error) {
	return d.rs.Seek(0, io.SeekCurrent)
}

// Seek repositions the device and returns the resulting absolute offset.
func (d *Device) Seek(offset int64, whence Whence) (int64, error) {
	return d.rs.Seek(offset, whence)
}

// Read fills buf from the current position, advancing it.
func (d *Device) Read(buf []byte) (int, error) {
	return d.rs.Read(buf)
}

// Peek returns the next byte without advancing the position. It restores the
// original offset before returning, so it is safe but not especially cheap;
// callers on a hot path should prefer ReadAt with explicit bookkeeping.
func (d *Device) Peek() (byte, bool) {
	pos, err := d.Position()
	if err != nil {
		return 0, false
	}
	var b [1]byte
	n, err := d.rs.Read(b[:])
	_, _ = d.rs.Seek(pos, io.SeekStart)
	if n != 1 || err != nil {
		return 0, false
	}
	return b[0], true
}

// ReadAt allocates a buffer of the given size and fills it starting at
// offset, restoring nothing: callers own the resulting position. This is the
// direct generalization of the teacher's `ctx.readAt`.
func (d *Device) ReadAt(size int, offset int64) ([]byte, error) {
	if offset < 0 || offset > d.size {
		return nil, fmt.Errorf("device: offset %d out of range [0,%d]", offset, d.size)
	}
	if _, err := d.rs.Seek(offset, io.SeekStart); err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	n, err := io.ReadFull(d.rs, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	log.Read.Printf("device: read %d/%d bytes at offset %d\n", n, size, offset)
	return buf[:n], nil
}

// ReadAllFrom reads every remaining byte starting at offset, used by the
// xref walker to hand a tokenizer the whole tail of the file the way the
// teacher's buildXRefTableStartingAt does with `ctx.readAt(fileSize-offset, offset)`.
func (d *Device) ReadAllFrom(offset int64) ([]byte, error) {
	if offset < 0 || offset > d.size {
		return nil, fmt.Errorf("device: offset %d out of range [0,%d]", offset, d.size)
	}
	return d.ReadAt(int(d.size-offset), offset)
}

// ReadRange reads [begin, end) and implements pdfval.ByteRangeSource, letting
// a Stream lazily pull its body straight from the device.
func (d *Device) ReadRange(begin, end int64) ([]byte, error) {
	if end < begin {
		return nil, fmt.Errorf("device: invalid range [%d,%d)", begin, end)
	}
	return d.ReadAt(int(end-begin), begin)
}
