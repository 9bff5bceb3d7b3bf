package xrefcore

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/kpdf/xrefcore/pdfval"
)

// buildFixture assembles a minimal, unencrypted, single-revision PDF: one
// in-use catalog object plus a classical xref section, using the same
// two-pass placeholder technique as the xref and store packages' own
// fixtures so the embedded offsets stay self-consistent.
func buildFixture(t *testing.T) []byte {
	t.Helper()
	const placeholder = "0000000000"

	build := func(objOff, xrefOff string) string {
		var b strings.Builder
		b.WriteString("%PDF-1.4\n")
		b.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
		b.WriteString("2 0 obj\n<< /Type /Pages /Kids [] /Count 0 >>\nendobj\n")
		fmt.Fprintf(&b, "xref\n0 3\n0000000000 65535 f \n%s 00000 n \n0000000000 00000 n \ntrailer\n<< /Size 3 /Root 1 0 R >>\nstartxref\n%s\n%%%%EOF\n", objOff, xrefOff)
		return b.String()
	}

	pass1 := build(placeholder, placeholder)
	objOffset := strings.Index(pass1, "1 0 obj")
	xrefOffset := strings.Index(pass1, "xref\n0 3")
	return []byte(build(fmt.Sprintf("%010d", objOffset), fmt.Sprintf("%010d", xrefOffset)))
}

// buildFixtureWithBrokenObject is buildFixture's two-object layout with
// object 2's xref entry pointing at an offset past EOF, so resolving it
// fails with errs.InvalidObject - the eager-load loop must surface that
// failure under Strict unless IgnoreBrokenObjects is set.
func buildFixtureWithBrokenObject(t *testing.T) []byte {
	t.Helper()
	const placeholder = "0000000000"
	const brokenOffset = "9999999999"

	build := func(objOff, xrefOff string) string {
		var b strings.Builder
		b.WriteString("%PDF-1.4\n")
		b.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
		b.WriteString("2 0 obj\n<< /Type /Pages /Kids [] /Count 0 >>\nendobj\n")
		fmt.Fprintf(&b, "xref\n0 3\n0000000000 65535 f \n%s 00000 n \n%s 00000 n \ntrailer\n<< /Size 3 /Root 1 0 R >>\nstartxref\n%s\n%%%%EOF\n", objOff, brokenOffset, xrefOff)
		return b.String()
	}

	pass1 := build(placeholder, placeholder)
	objOffset := strings.Index(pass1, "1 0 obj")
	xrefOffset := strings.Index(pass1, "xref\n0 3")
	return []byte(build(fmt.Sprintf("%010d", objOffset), fmt.Sprintf("%010d", xrefOffset)))
}

func TestParseLoadOnDemandFalseAbortsOnBrokenObjectUnlessIgnored(t *testing.T) {
	data := buildFixtureWithBrokenObject(t)

	opts := NewDefaultOptions()
	opts.LoadOnDemand = false
	if _, err := Parse(bytes.NewReader(data), opts); err == nil {
		t.Fatalf("expected Parse to abort on a broken object when IgnoreBrokenObjects is unset")
	}

	opts.IgnoreBrokenObjects = true
	doc, err := Parse(bytes.NewReader(data), opts)
	if err != nil {
		t.Fatalf("Parse with IgnoreBrokenObjects=true: %v", err)
	}
	if _, ok := doc.Get(pdfval.Reference{Num: 1, Gen: 0}); !ok {
		t.Fatalf("object 1 should still resolve despite object 2 being broken")
	}
	if _, ok := doc.Get(pdfval.Reference{Num: 2, Gen: 0}); ok {
		t.Fatalf("broken object 2 should not resolve even with IgnoreBrokenObjects=true")
	}
}

func TestParseUnencryptedDocument(t *testing.T) {
	data := buildFixture(t)
	doc, err := Parse(bytes.NewReader(data), NewDefaultOptions())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if doc.Version() != "1.4" {
		t.Fatalf("Version() = %q, want %q", doc.Version(), "1.4")
	}
	if doc.HasXRefStream() {
		t.Fatalf("HasXRefStream() = true for a classical-only file")
	}
	if doc.IncrementalUpdateCount() != 0 {
		t.Fatalf("IncrementalUpdateCount() = %d, want 0", doc.IncrementalUpdateCount())
	}

	root, ok := doc.Trailer().Get("Root")
	if !ok {
		t.Fatalf("trailer missing /Root")
	}
	ref, ok := root.(pdfval.Ref)
	if !ok {
		t.Fatalf("/Root = %#v, want a reference", root)
	}

	obj, ok := doc.Get(pdfval.Reference(ref))
	if !ok {
		t.Fatalf("Get(%v) = false, want true", ref)
	}
	d, ok := obj.Value.(pdfval.Dict)
	if !ok {
		t.Fatalf("catalog value is %T, want pdfval.Dict", obj.Value)
	}
	if typ, _ := d.Get("Type"); typ != pdfval.Name("Catalog") {
		t.Fatalf("/Type = %v, want /Catalog", typ)
	}
}

func TestParseRejectsEmptyInput(t *testing.T) {
	if _, err := Parse(bytes.NewReader(nil), NewDefaultOptions()); err == nil {
		t.Fatalf("expected an error for an empty input")
	}
}

func TestParseLoadOnDemandFalseResolvesEveryObject(t *testing.T) {
	data := buildFixture(t)
	opts := NewDefaultOptions()
	opts.LoadOnDemand = false
	doc, err := Parse(bytes.NewReader(data), opts)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, ok := doc.Get(pdfval.Reference{Num: 1, Gen: 0}); !ok {
		t.Fatalf("object 1 should already be resolved when LoadOnDemand is false")
	}
	if _, ok := doc.Get(pdfval.Reference{Num: 2, Gen: 0}); !ok {
		t.Fatalf("object 2 should already be resolved when LoadOnDemand is false")
	}
}
