package store

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/kpdf/xrefcore/device"
	"github.com/kpdf/xrefcore/filters"
	"github.com/kpdf/xrefcore/pdfval"
	"github.com/kpdf/xrefcore/xref"
)

// buildFixture assembles a minimal classical-xref PDF with one in-use
// catalog object, reusing the same placeholder/two-pass technique as
// xref's own fixture builder so the byte offsets stay self-consistent.
func buildFixture(t *testing.T) []byte {
	t.Helper()
	const placeholder = "0000000000"

	build := func(objOff, xrefOff string) string {
		var b strings.Builder
		b.WriteString("%PDF-1.4\n")
		b.WriteString("1 0 obj\n<< /Type /Catalog >>\nendobj\n")
		fmt.Fprintf(&b, "xref\n0 2\n0000000000 65535 f \n%s 00000 n \ntrailer\n<< /Size 2 /Root 1 0 R >>\nstartxref\n%s\n%%%%EOF\n", objOff, xrefOff)
		return b.String()
	}

	pass1 := build(placeholder, placeholder)
	objOffset := strings.Index(pass1, "1 0 obj")
	xrefOffset := strings.Index(pass1, "xref\n0 2")
	return []byte(build(fmt.Sprintf("%010d", objOffset), fmt.Sprintf("%010d", xrefOffset)))
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	data := buildFixture(t)
	dev, err := device.New(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("device.New: %v", err)
	}
	result, err := xref.Discover(dev, xref.Options{})
	if err != nil {
		t.Fatalf("xref.Discover: %v", err)
	}
	return New(dev, result.Table, filters.New(), nil, false, 0, 0)
}

func TestStoreGetResolvesInUseObject(t *testing.T) {
	s := newTestStore(t)
	obj, ok := s.Get(pdfval.Reference{Num: 1, Gen: 0})
	if !ok {
		t.Fatalf("Get(1,0) = false, want true")
	}
	d, ok := obj.Value.(pdfval.Dict)
	if !ok {
		t.Fatalf("object 1's value is %T, want pdfval.Dict", obj.Value)
	}
	typ, ok := d.Get("Type")
	if !ok || typ != pdfval.Name("Catalog") {
		t.Fatalf("/Type = %v, %v; want /Catalog, true", typ, ok)
	}
}

func TestStoreGetGenerationMismatchIsNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, ok := s.Get(pdfval.Reference{Num: 1, Gen: 7}); ok {
		t.Fatalf("Get with a mismatched generation should report not found")
	}
}

func TestStoreGetOutOfRangeIsNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, ok := s.Get(pdfval.Reference{Num: 999, Gen: 0}); ok {
		t.Fatalf("Get for an unknown object number should report not found")
	}
}

func TestStoreInsertNewDictAllocatesPastMaxObj(t *testing.T) {
	s := newTestStore(t)
	obj, err := s.InsertNewDict("Test", "")
	if err != nil {
		t.Fatalf("InsertNewDict: %v", err)
	}
	if obj.ID.Num != 2 {
		t.Fatalf("new object number = %d, want 2 (past the fixture's object 1)", obj.ID.Num)
	}
	if obj.ID.Gen != 0 {
		t.Fatalf("new object generation = %d, want 0 for a freshly appended number", obj.ID.Gen)
	}
	d := obj.Value.(pdfval.Dict)
	if v, _ := d.Get("Type"); v != pdfval.Name("Test") {
		t.Fatalf("/Type = %v, want /Test", v)
	}
}

func TestStoreRemoveAndReuseBumpsGeneration(t *testing.T) {
	s := newTestStore(t)
	obj, err := s.InsertNewDict("Test", "")
	if err != nil {
		t.Fatalf("InsertNewDict: %v", err)
	}
	ref := obj.ID

	removed, ok := s.Remove(ref, true)
	if !ok {
		t.Fatalf("Remove(%v) = false, want true", ref)
	}
	if removed.ID != ref {
		t.Fatalf("Remove returned object %v, want %v", removed.ID, ref)
	}
	if _, ok := s.Get(ref); ok {
		t.Fatalf("Get after Remove should report not found")
	}

	reused, err := s.InsertNewArray()
	if err != nil {
		t.Fatalf("InsertNewArray: %v", err)
	}
	if reused.ID.Num != ref.Num {
		t.Fatalf("reused object number = %d, want the freed number %d", reused.ID.Num, ref.Num)
	}
	if reused.ID.Gen != ref.Gen+1 {
		t.Fatalf("reused object generation = %d, want %d (freed generation + 1)", reused.ID.Gen, ref.Gen+1)
	}
}

func TestStoreCollectGarbageProtectsCompressedContainers(t *testing.T) {
	s := newTestStore(t)
	container, err := s.InsertNewDict("ObjStm", "")
	if err != nil {
		t.Fatalf("InsertNewDict: %v", err)
	}
	s.AddCompressedStream(container.ID.Num)

	orphan, err := s.InsertNewDict("Orphan", "")
	if err != nil {
		t.Fatalf("InsertNewDict: %v", err)
	}

	root := pdfval.NewDict()
	root.Set("Root", pdfval.Ref{Num: 1, Gen: 0})
	s.CollectGarbage(root)

	if _, ok := s.Get(orphan.ID); ok {
		t.Fatalf("unreachable object %v survived garbage collection", orphan.ID)
	}
	if _, ok := s.Get(container.ID); !ok {
		t.Fatalf("compressed-stream container %v was collected despite protection", container.ID)
	}
	if _, ok := s.Get(pdfval.Reference{Num: 1, Gen: 0}); !ok {
		t.Fatalf("reachable object 1 was incorrectly collected")
	}
}
