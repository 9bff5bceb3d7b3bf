package xref

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/kpdf/xrefcore/device"
	"github.com/kpdf/xrefcore/pdfval"
)

// buildClassicalXrefPDF assembles a minimal, well-formed PDF with a single
// in-use object and a classical xref section. It formats offsets as
// fixed-width zero-padded decimals so a first pass (with placeholder zero
// offsets) and the final buffer have identical byte layout, letting the
// offsets be computed from the placeholder buffer and then substituted in
// place.
func buildClassicalXrefPDF(t *testing.T) []byte {
	t.Helper()

	const objOffsetPlaceholder = "0000000000"
	const xrefOffsetPlaceholder = "0000000000"

	build := func(objOff, xrefOff string) string {
		var b strings.Builder
		b.WriteString("%PDF-1.4\n")
		objStart := b.Len()
		_ = objStart
		b.WriteString("1 0 obj\n<< /Type /Catalog >>\nendobj\n")
		xrefStart := b.Len()
		_ = xrefStart
		fmt.Fprintf(&b, "xref\n0 2\n0000000000 65535 f \n%s 00000 n \ntrailer\n<< /Size 2 /Root 1 0 R >>\nstartxref\n%s\n%%%%EOF\n", objOff, xrefOff)
		return b.String()
	}

	// Pass 1: placeholders of the correct width, to discover real offsets.
	pass1 := build(objOffsetPlaceholder, xrefOffsetPlaceholder)
	objOffset := strings.Index(pass1, "1 0 obj")
	xrefOffset := strings.Index(pass1, "xref\n0 2")

	objOff := fmt.Sprintf("%010d", objOffset)
	xrefOff := fmt.Sprintf("%010d", xrefOffset)
	if len(objOff) != len(objOffsetPlaceholder) || len(xrefOff) != len(xrefOffsetPlaceholder) {
		t.Fatalf("offsets outgrew the fixed-width placeholder, adjust the fixture")
	}

	final := build(objOff, xrefOff)
	return []byte(final)
}

func TestDiscoverClassicalXrefSection(t *testing.T) {
	data := buildClassicalXrefPDF(t)
	dev, err := device.New(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("device.New: %v", err)
	}

	result, err := Discover(dev, Options{})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	if result.HeaderVersion != "1.4" {
		t.Fatalf("HeaderVersion = %q, want %q", result.HeaderVersion, "1.4")
	}
	if result.HasXRefStream {
		t.Fatalf("HasXRefStream = true for a purely classical file")
	}
	if result.IncrementalUpdateCount != 0 {
		t.Fatalf("IncrementalUpdateCount = %d, want 0 (single revision)", result.IncrementalUpdateCount)
	}

	entry, ok := result.Table.Get(1)
	if !ok {
		t.Fatalf("object 1 missing from the parsed xref table")
	}
	if entry.Kind != InUse {
		t.Fatalf("object 1 Kind = %v, want InUse", entry.Kind)
	}

	free, ok := result.Table.Get(0)
	if !ok || free.Kind != Free {
		t.Fatalf("object 0 = %+v, %v; want a Free head entry", free, ok)
	}

	root, ok := result.Trailer.Get("Root")
	if !ok {
		t.Fatalf("trailer missing /Root")
	}
	ref, isRef := root.(pdfval.Ref)
	if !isRef {
		t.Fatalf("/Root did not parse to a reference: %#v", root)
	}
	if ref.Num != 1 || ref.Gen != 0 {
		t.Fatalf("/Root = %+v, want {Num:1 Gen:0}", ref)
	}
}

// buildSelfReferentialPrevPDF builds a single xref section whose trailer's
// /Prev points back at that very section's own offset, the minimal case of
// a cycle in the /Prev chain (the xref at offset 100 has /Prev 100 scenario).
func buildSelfReferentialPrevPDF(t *testing.T) []byte {
	t.Helper()
	const objOffsetPlaceholder = "0000000000"
	const xrefOffsetPlaceholder = "0000000000"

	build := func(objOff, xrefOff string) string {
		var b strings.Builder
		b.WriteString("%PDF-1.4\n")
		b.WriteString("1 0 obj\n<< /Type /Catalog >>\nendobj\n")
		fmt.Fprintf(&b, "xref\n0 2\n0000000000 65535 f \n%s 00000 n \ntrailer\n<< /Size 2 /Root 1 0 R /Prev %s >>\nstartxref\n%s\n%%%%EOF\n", objOff, xrefOff, xrefOff)
		return b.String()
	}

	pass1 := build(objOffsetPlaceholder, xrefOffsetPlaceholder)
	objOffset := strings.Index(pass1, "1 0 obj")
	xrefOffset := strings.Index(pass1, "xref\n0 2")

	objOff := fmt.Sprintf("%010d", objOffset)
	xrefOff := fmt.Sprintf("%010d", xrefOffset)
	return []byte(build(objOff, xrefOff))
}

func TestDiscoverSelfReferentialPrevIsACycleError(t *testing.T) {
	data := buildSelfReferentialPrevPDF(t)
	dev, err := device.New(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("device.New: %v", err)
	}

	_, err = Discover(dev, Options{})
	if err == nil {
		t.Fatalf("expected an error for a self-referential /Prev chain")
	}
	if !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("error = %v, want it to mention a cycle", err)
	}
}

func TestPreviousRevisionEOFFindsMinimumInUseOffset(t *testing.T) {
	data := buildClassicalXrefPDF(t)
	dev, err := device.New(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("device.New: %v", err)
	}

	xrefOffset := bytes.Index(data, []byte("xref\n0 2"))
	if xrefOffset == -1 {
		t.Fatalf("fixture is missing the xref keyword")
	}

	objOffset := bytes.Index(data, []byte("1 0 obj"))
	min, err := PreviousRevisionEOF(dev, int64(xrefOffset), Options{})
	if err != nil {
		t.Fatalf("PreviousRevisionEOF: %v", err)
	}
	if min != int64(objOffset) {
		t.Fatalf("PreviousRevisionEOF = %d, want %d (the only in-use object's offset)", min, objOffset)
	}
}
