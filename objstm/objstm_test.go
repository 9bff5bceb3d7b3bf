package objstm

import (
	"testing"

	"github.com/kpdf/xrefcore/pdfval"
)

func dictWith(n, first int) pdfval.Dict {
	d := pdfval.NewDict()
	d.Set("N", pdfval.Int(n))
	d.Set("First", pdfval.Int(first))
	return d
}

func TestDecodeTwoPackedObjects(t *testing.T) {
	prolog := "5 0 7 6 "
	body := "true /Name"
	stream := []byte(prolog + body)

	entries, err := Decode(dictWith(2, len(prolog)), stream, 0)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Decode returned %d entries, want 2", len(entries))
	}
	if entries[0].ObjNum != 5 || entries[0].Value != pdfval.Bool(true) {
		t.Fatalf("entries[0] = %+v, want ObjNum 5, Value true", entries[0])
	}
	if entries[1].ObjNum != 6 || entries[1].Value != pdfval.Name("Name") {
		t.Fatalf("entries[1] = %+v, want ObjNum 6, Value /Name", entries[1])
	}
}

func TestDecodeToleratesNulSeparatedProlog(t *testing.T) {
	prolog := "3\x000\x00"
	body := "42"
	stream := []byte(prolog + body)

	entries, err := Decode(dictWith(1, len(prolog)), stream, 0)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(entries) != 1 || entries[0].ObjNum != 3 || entries[0].Value != pdfval.Int(42) {
		t.Fatalf("entries = %+v, want one entry {3, 42}", entries)
	}
}

func TestDecodeRejectsMissingN(t *testing.T) {
	d := pdfval.NewDict()
	d.Set("First", pdfval.Int(0))
	if _, err := Decode(d, []byte{}, 0); err == nil {
		t.Fatalf("expected an error for a missing /N")
	}
}

func TestDecodeRejectsFirstOutOfBounds(t *testing.T) {
	if _, err := Decode(dictWith(1, 100), []byte("short"), 0); err == nil {
		t.Fatalf("expected an error when /First exceeds the stream length")
	}
}

func TestDecodeRejectsTruncatedProlog(t *testing.T) {
	prolog := "5 0 " // declares N=2 but only has one pair
	stream := []byte(prolog + "true false")
	if _, err := Decode(dictWith(2, len(prolog)), stream, 0); err == nil {
		t.Fatalf("expected an error for a prolog shorter than 2*N fields")
	}
}
