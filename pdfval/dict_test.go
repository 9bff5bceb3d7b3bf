package pdfval

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDictGetTreatsNullAsAbsent(t *testing.T) {
	d := NewDict()
	d.Set("Foo", Int(1))
	d.Set("Bar", Null{})

	if _, ok := d.Get("Bar"); ok {
		t.Fatalf("Get(%q) should report absent for a null-valued entry", "Bar")
	}
	if _, ok := d.Get("Missing"); ok {
		t.Fatalf("Get on a missing key should report absent")
	}
	v, ok := d.Get("Foo")
	if !ok || v != Int(1) {
		t.Fatalf("Get(%q) = %v, %v; want 1, true", "Foo", v, ok)
	}
}

func TestDictPreservesInsertionOrder(t *testing.T) {
	d := NewDict()
	d.Set("C", Int(3))
	d.Set("A", Int(1))
	d.Set("B", Int(2))

	want := []Name{"C", "A", "B"}
	if diff := cmp.Diff(want, d.Keys()); diff != "" {
		t.Fatalf("Keys() mismatch (-want +got):\n%s", diff)
	}
}

func TestDictSetOverwritePreservesPosition(t *testing.T) {
	d := NewDict()
	d.Set("A", Int(1))
	d.Set("B", Int(2))
	d.Set("A", Int(99))

	if got := d.Keys(); len(got) != 2 || got[0] != "A" || got[1] != "B" {
		t.Fatalf("overwriting a key should not move it: Keys() = %v", got)
	}
	v, _ := d.Get("A")
	if v != Int(99) {
		t.Fatalf("Get(%q) = %v, want 99", "A", v)
	}
}

func TestDictDeleteReindexes(t *testing.T) {
	d := NewDict()
	d.Set("A", Int(1))
	d.Set("B", Int(2))
	d.Set("C", Int(3))

	d.Delete("B")
	if _, ok := d.Get("B"); ok {
		t.Fatalf("deleted key %q still present", "B")
	}
	v, ok := d.Get("C")
	if !ok || v != Int(3) {
		t.Fatalf("Get(%q) after deleting an earlier key = %v, %v; want 3, true", "C", v, ok)
	}
	if got := d.Keys(); len(got) != 2 {
		t.Fatalf("Keys() after Delete = %v, want 2 entries", got)
	}
}

func TestDictCloneIsDeep(t *testing.T) {
	inner := NewDict()
	inner.Set("X", Int(1))

	d := NewDict()
	d.Set("Nested", inner)
	d.Set("Arr", Array{Int(1), Int(2)})
	d.Set("Str", String{Bytes: []byte("hi")})

	clone := d.Clone()

	innerClone, _ := clone.Get("Nested")
	innerClone.(Dict).Set("X", Int(2))
	originalInner, _ := d.Get("Nested")
	if v, _ := originalInner.(Dict).Get("X"); v != Int(1) {
		t.Fatalf("mutating the clone's nested dict affected the original: %v", v)
	}

	arrClone, _ := clone.Get("Arr")
	arrClone.(Array)[0] = Int(99)
	originalArr, _ := d.Get("Arr")
	if originalArr.(Array)[0] != Int(1) {
		t.Fatalf("mutating the clone's array affected the original")
	}

	strClone, _ := clone.Get("Str")
	strClone.(String).Bytes[0] = 'X'
	originalStr, _ := d.Get("Str")
	if originalStr.(String).Bytes[0] != 'h' {
		t.Fatalf("mutating the clone's string bytes affected the original")
	}
}

func TestReferenceOrdering(t *testing.T) {
	a := Reference{Num: 1, Gen: 0}
	b := Reference{Num: 1, Gen: 1}
	c := Reference{Num: 2, Gen: 0}

	if !a.Less(b) {
		t.Fatalf("%v should be less than %v (same num, lower gen)", a, b)
	}
	if !b.Less(c) {
		t.Fatalf("%v should be less than %v (lower num wins over gen)", b, c)
	}
	if a.Less(a) {
		t.Fatalf("%v should not be less than itself", a)
	}
}
