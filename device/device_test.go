package device

import (
	"bytes"
	"strings"
	"testing"
)

func newTestDevice(t *testing.T, content string) *Device {
	t.Helper()
	d, err := New(strings.NewReader(content))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

func TestNewDeterminesSize(t *testing.T) {
	d := newTestDevice(t, "0123456789")
	if d.Size() != 10 {
		t.Fatalf("Size() = %d, want 10", d.Size())
	}
}

func TestSeekAndPosition(t *testing.T) {
	d := newTestDevice(t, "0123456789")
	pos, err := d.Seek(4, Begin)
	if err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if pos != 4 {
		t.Fatalf("Seek returned %d, want 4", pos)
	}
	got, err := d.Position()
	if err != nil {
		t.Fatalf("Position: %v", err)
	}
	if got != 4 {
		t.Fatalf("Position() = %d, want 4", got)
	}
}

func TestReadAdvancesPosition(t *testing.T) {
	d := newTestDevice(t, "0123456789")
	buf := make([]byte, 3)
	n, err := d.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 3 || string(buf) != "012" {
		t.Fatalf("Read = %q (n=%d), want %q", buf, n, "012")
	}
	pos, _ := d.Position()
	if pos != 3 {
		t.Fatalf("Position() after Read = %d, want 3", pos)
	}
}

func TestPeekDoesNotAdvance(t *testing.T) {
	d := newTestDevice(t, "abc")
	b, ok := d.Peek()
	if !ok || b != 'a' {
		t.Fatalf("Peek() = %q, %v; want 'a', true", b, ok)
	}
	pos, _ := d.Position()
	if pos != 0 {
		t.Fatalf("Position() after Peek = %d, want 0", pos)
	}
	// Peek again to confirm it is idempotent.
	b, ok = d.Peek()
	if !ok || b != 'a' {
		t.Fatalf("second Peek() = %q, %v; want 'a', true", b, ok)
	}
}

func TestReadAtIsIndependentOfCurrentPosition(t *testing.T) {
	d := newTestDevice(t, "0123456789")
	if _, err := d.Seek(9, Begin); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	got, err := d.ReadAt(4, 2)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if string(got) != "2345" {
		t.Fatalf("ReadAt(4,2) = %q, want %q", got, "2345")
	}
}

func TestReadAtRejectsOutOfRangeOffset(t *testing.T) {
	d := newTestDevice(t, "0123456789")
	if _, err := d.ReadAt(1, 100); err == nil {
		t.Fatalf("expected an error for an out-of-range offset")
	}
	if _, err := d.ReadAt(1, -1); err == nil {
		t.Fatalf("expected an error for a negative offset")
	}
}

func TestReadAtTruncatesAtEOFWithoutError(t *testing.T) {
	d := newTestDevice(t, "0123456789")
	got, err := d.ReadAt(100, 5)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if string(got) != "56789" {
		t.Fatalf("ReadAt past EOF = %q, want %q", got, "56789")
	}
}

func TestReadAllFromReturnsTail(t *testing.T) {
	d := newTestDevice(t, "0123456789")
	got, err := d.ReadAllFrom(7)
	if err != nil {
		t.Fatalf("ReadAllFrom: %v", err)
	}
	if string(got) != "789" {
		t.Fatalf("ReadAllFrom(7) = %q, want %q", got, "789")
	}
}

func TestReadRangeMatchesByteRangeSource(t *testing.T) {
	d := newTestDevice(t, "0123456789")
	got, err := d.ReadRange(2, 6)
	if err != nil {
		t.Fatalf("ReadRange: %v", err)
	}
	if !bytes.Equal(got, []byte("2345")) {
		t.Fatalf("ReadRange(2,6) = %q, want %q", got, "2345")
	}
}

func TestReadRangeRejectsInvertedRange(t *testing.T) {
	d := newTestDevice(t, "0123456789")
	if _, err := d.ReadRange(6, 2); err == nil {
		t.Fatalf("expected an error for end < begin")
	}
}
