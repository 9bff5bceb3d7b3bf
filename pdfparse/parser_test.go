package pdfparse

import (
	"strings"
	"testing"

	"github.com/kpdf/xrefcore/pdfval"
)

func TestParseValueScalars(t *testing.T) {
	cases := []struct {
		in   string
		want pdfval.Value
	}{
		{"true", pdfval.Bool(true)},
		{"false", pdfval.Bool(false)},
		{"null", pdfval.Null{}},
		{"42", pdfval.Int(42)},
		{"3.25", pdfval.Real(3.25)},
		{"/Name", pdfval.Name("Name")},
	}
	for _, c := range cases {
		p := NewParser([]byte(c.in))
		got, err := p.ParseValue()
		if err != nil {
			t.Fatalf("ParseValue(%q): %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("ParseValue(%q) = %#v, want %#v", c.in, got, c.want)
		}
	}
}

func TestParseValueIntIntRIsAReference(t *testing.T) {
	p := NewParser([]byte("7 3 R"))
	got, err := p.ParseValue()
	if err != nil {
		t.Fatalf("ParseValue: %v", err)
	}
	ref, ok := got.(pdfval.Ref)
	if !ok {
		t.Fatalf("ParseValue = %#v, want pdfval.Ref", got)
	}
	if ref.Num != 7 || ref.Gen != 3 {
		t.Fatalf("ParseValue = %+v, want {7 3}", ref)
	}
}

func TestParseValueBareIntegerIsNotAReference(t *testing.T) {
	p := NewParser([]byte("7 3"))
	got, err := p.ParseValue()
	if err != nil {
		t.Fatalf("ParseValue: %v", err)
	}
	if got != pdfval.Int(7) {
		t.Fatalf("ParseValue = %#v, want Int(7)", got)
	}
}

func TestParseValueArrayOfMixedReferencesAndScalars(t *testing.T) {
	p := NewParser([]byte("[1 0 R /Two 3]"))
	got, err := p.ParseValue()
	if err != nil {
		t.Fatalf("ParseValue: %v", err)
	}
	arr, ok := got.(pdfval.Array)
	if !ok || len(arr) != 3 {
		t.Fatalf("ParseValue = %#v, want a 3-element array", got)
	}
	if arr[0] != (pdfval.Ref{Num: 1, Gen: 0}) {
		t.Fatalf("arr[0] = %#v, want Ref{1,0}", arr[0])
	}
	if arr[1] != pdfval.Name("Two") {
		t.Fatalf("arr[1] = %#v, want /Two", arr[1])
	}
	if arr[2] != pdfval.Int(3) {
		t.Fatalf("arr[2] = %#v, want Int(3)", arr[2])
	}
}

func TestParseValueDictDropsNullEntries(t *testing.T) {
	p := NewParser([]byte("<< /A 1 /B null /C 2 >>"))
	got, err := p.ParseValue()
	if err != nil {
		t.Fatalf("ParseValue: %v", err)
	}
	d, ok := got.(pdfval.Dict)
	if !ok {
		t.Fatalf("ParseValue = %#v, want pdfval.Dict", got)
	}
	if _, ok := d.Get("B"); ok {
		t.Fatalf("dict kept a /Null entry for /B")
	}
	if v, ok := d.Get("A"); !ok || v != pdfval.Int(1) {
		t.Fatalf("/A = %v, %v; want 1, true", v, ok)
	}
	if v, ok := d.Get("C"); !ok || v != pdfval.Int(2) {
		t.Fatalf("/C = %v, %v; want 2, true", v, ok)
	}
}

func TestParseValueNestedDict(t *testing.T) {
	p := NewParser([]byte("<< /Outer << /Inner 5 >> >>"))
	got, err := p.ParseValue()
	if err != nil {
		t.Fatalf("ParseValue: %v", err)
	}
	outer := got.(pdfval.Dict)
	innerVal, ok := outer.Get("Outer")
	if !ok {
		t.Fatalf("missing /Outer")
	}
	inner, ok := innerVal.(pdfval.Dict)
	if !ok {
		t.Fatalf("/Outer = %#v, want pdfval.Dict", innerVal)
	}
	if v, _ := inner.Get("Inner"); v != pdfval.Int(5) {
		t.Fatalf("/Inner = %v, want 5", v)
	}
}

func TestParseValueUnterminatedArrayIsAnError(t *testing.T) {
	p := NewParser([]byte("[1 2 3"))
	if _, err := p.ParseValue(); err == nil {
		t.Fatalf("expected an error for an unterminated array")
	}
}

func TestParseValueRecursionLimitIsEnforced(t *testing.T) {
	// 10 levels of nested single-element arrays, capped to a limit of 3.
	in := strings.Repeat("[", 10) + "1" + strings.Repeat("]", 10)
	p := NewParser([]byte(in))
	p.RecursionLimit = 3
	if _, err := p.ParseValue(); err == nil {
		t.Fatalf("expected a recursion-limit error")
	}
}

func TestParseObjectHeader(t *testing.T) {
	p := NewParser([]byte("12 0 obj"))
	h, err := p.ParseObjectHeader()
	if err != nil {
		t.Fatalf("ParseObjectHeader: %v", err)
	}
	if h.Num != 12 || h.Gen != 0 {
		t.Fatalf("ParseObjectHeader = %+v, want {12 0}", h)
	}
}

func TestParseObjectHeaderRejectsMissingObjKeyword(t *testing.T) {
	p := NewParser([]byte("12 0 notobj"))
	if _, err := p.ParseObjectHeader(); err == nil {
		t.Fatalf("expected an error when 'obj' keyword is missing")
	}
}

func TestParseIndirectObjectWithoutStream(t *testing.T) {
	p := NewParser([]byte("1 0 obj\n<< /Type /Catalog >>\nendobj"))
	obj, err := p.ParseIndirectObject(true, nil)
	if err != nil {
		t.Fatalf("ParseIndirectObject: %v", err)
	}
	if obj.Header.Num != 1 || obj.Header.Gen != 0 {
		t.Fatalf("Header = %+v, want {1 0}", obj.Header)
	}
	if obj.HasStream {
		t.Fatalf("HasStream = true, want false")
	}
	if !obj.EndObjOK {
		t.Fatalf("EndObjOK = false, want true")
	}
	d, ok := obj.Value.(pdfval.Dict)
	if !ok {
		t.Fatalf("Value = %#v, want pdfval.Dict", obj.Value)
	}
	if v, _ := d.Get("Type"); v != pdfval.Name("Catalog") {
		t.Fatalf("/Type = %v, want /Catalog", v)
	}
}

func TestParseIndirectObjectWithDirectLength(t *testing.T) {
	body := "hello"
	src := "3 0 obj\n<< /Length 5 >>\nstream\n" + body + "\nendstream\nendobj"
	p := NewParser([]byte(src))
	obj, err := p.ParseIndirectObject(true, nil)
	if err != nil {
		t.Fatalf("ParseIndirectObject: %v", err)
	}
	if !obj.HasStream {
		t.Fatalf("HasStream = false, want true")
	}
	got := src[obj.StreamBodyStart:obj.StreamBodyEnd]
	if got != body {
		t.Fatalf("stream body = %q, want %q", got, body)
	}
	if !obj.EndObjOK {
		t.Fatalf("EndObjOK = false, want true")
	}
}

func TestParseIndirectObjectWithIndirectLength(t *testing.T) {
	body := "hello world"
	src := "3 0 obj\n<< /Length 5 0 R >>\nstream\n" + body + "\nendstream\nendobj"
	p := NewParser([]byte(src))
	resolveLength := func(ref pdfval.Reference) (int, bool) {
		if ref.Num == 5 {
			return len(body), true
		}
		return 0, false
	}
	obj, err := p.ParseIndirectObject(true, resolveLength)
	if err != nil {
		t.Fatalf("ParseIndirectObject: %v", err)
	}
	got := src[obj.StreamBodyStart:obj.StreamBodyEnd]
	if got != body {
		t.Fatalf("stream body = %q, want %q", got, body)
	}
}

func TestParseIndirectObjectBlindScanWhenLengthWrong(t *testing.T) {
	body := "hello world"
	// /Length is wrong (too large, runs past EOF), forcing the blind
	// "endstream" scan fallback.
	src := "3 0 obj\n<< /Length 9999 >>\nstream\n" + body + "\nendstream\nendobj"
	p := NewParser([]byte(src))
	obj, err := p.ParseIndirectObject(true, nil)
	if err != nil {
		t.Fatalf("ParseIndirectObject: %v", err)
	}
	got := src[obj.StreamBodyStart:obj.StreamBodyEnd]
	if got != body {
		t.Fatalf("stream body = %q, want %q", got, body)
	}
}

func TestParseIndirectObjectStrictRejectsMissingEndobj(t *testing.T) {
	p := NewParser([]byte("1 0 obj\n<< /Type /Catalog >>\n"))
	if _, err := p.ParseIndirectObject(true, nil); err == nil {
		t.Fatalf("expected an error for a missing endobj in strict mode")
	}
}

func TestParseIndirectObjectLenientTreatsMissingEndobjAsWarning(t *testing.T) {
	p := NewParser([]byte("1 0 obj\n<< /Type /Catalog >>\n"))
	obj, err := p.ParseIndirectObject(false, nil)
	if err != nil {
		t.Fatalf("ParseIndirectObject: %v", err)
	}
	if obj.EndObjOK {
		t.Fatalf("EndObjOK = true, want false for a missing endobj marker")
	}
}

type stubDecryptor struct{}

func (stubDecryptor) DecryptString(ref pdfval.Reference, plain []byte) ([]byte, error) {
	out := make([]byte, len(plain))
	for i, b := range plain {
		out[i] = b ^ 0xFF
	}
	return out, nil
}

func (stubDecryptor) DecryptStream(ref pdfval.Reference, plain []byte) ([]byte, error) {
	return plain, nil
}

func TestParseValueAppliesDecryptorToStrings(t *testing.T) {
	p := NewParser([]byte("(ab)"))
	p.Decryptor = stubDecryptor{}
	p.CurrentRef = pdfval.Reference{Num: 4, Gen: 0}
	got, err := p.ParseValue()
	if err != nil {
		t.Fatalf("ParseValue: %v", err)
	}
	s, ok := got.(pdfval.String)
	if !ok {
		t.Fatalf("ParseValue = %#v, want pdfval.String", got)
	}
	want := []byte{'a' ^ 0xFF, 'b' ^ 0xFF}
	if string(s.Bytes) != string(want) {
		t.Fatalf("decrypted bytes = %x, want %x", s.Bytes, want)
	}
}
