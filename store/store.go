// Package store implements the sparse indirect-object container
// (SPEC_FULL.md, component G): the keyed object table, the free-list
// allocator, garbage collection over the trailer's reachability graph, and
// an observer registry for stream-append notifications.
//
// It is grounded on the teacher's reader/file/xreftable.go
// (resolveObjectNumber's lazy-resolve-with-null-placeholder pattern) and
// object_streams.go (processObjectStream's per-container cache), generalized
// with the allocator/free-list/GC/observer machinery SPEC_FULL.md requires
// and the teacher, being read-only, never needed.
package store

import (
	"fmt"
	"sort"

	"github.com/pdfcpu/pdfcpu/pkg/log"

	"github.com/kpdf/xrefcore/device"
	"github.com/kpdf/xrefcore/errs"
	"github.com/kpdf/xrefcore/objstm"
	"github.com/kpdf/xrefcore/pdfparse"
	"github.com/kpdf/xrefcore/pdfval"
	"github.com/kpdf/xrefcore/xref"
)

// DefaultMaxObjectCount is the allocator's object-number ceiling, 2^31-1.
const DefaultMaxObjectCount uint32 = 1<<31 - 1

// FilterPipeline decodes a stream's raw bytes per its /Filter and
// /DecodeParms - the same contract xref.FilterPipeline uses, kept as a
// separate type so package store never needs to import package xref's
// discovery-time concerns beyond the Table it is handed.
type FilterPipeline interface {
	Decode(dict pdfval.Dict, raw []byte) ([]byte, error)
}

// EncryptSession is the per-document half of the encryption gate contract
// (SPEC_FULL.md, component H): it wraps one object reference into the
// Decryptor the variant parser needs for that object's strings and stream
// body. A nil EncryptSession means the document is unencrypted.
type EncryptSession interface {
	WrapObject(ref pdfval.Reference) pdfparse.Decryptor
}

// Observer receives stream-append notifications, letting a writer layer
// (out of this core's scope) hook into mutation without the store depending
// on it.
type Observer interface {
	BeginAppendStream(ref pdfval.Reference)
	EndAppendStream(ref pdfval.Reference)
}

// slot is the store's bookkeeping for one object number: either an entry
// inherited from xref discovery (not yet materialized into an Object) or a
// fully resolved/inserted one.
type slot struct {
	hasEntry bool
	entry    xref.Entry
	free     bool
	gen      uint16

	obj        *pdfval.Object
	resolving  bool
	resolveErr error
}

// Store is the indirect-object container.
type Store struct {
	dev     *device.Device
	filters FilterPipeline
	enc     EncryptSession

	strict         bool
	recursionLimit int
	maxObjectCount uint32

	objects map[uint32]*slot
	maxObj  uint32

	freeList    []pdfval.Reference
	unavailable map[uint32]bool

	compressedContainers map[uint32]bool
	objStreamCache       map[uint32][]objstm.Entry

	observers []Observer

	warnings []string
}

// New builds a store over an already-discovered xref table. Object content
// is resolved lazily on first Get/MustGet, exactly as the teacher's
// resolveObjectNumber does.
func New(dev *device.Device, table *xref.Table, filters FilterPipeline, enc EncryptSession, strict bool, recursionLimit int, maxObjectCount uint32) *Store {
	if maxObjectCount == 0 {
		maxObjectCount = DefaultMaxObjectCount
	}
	s := &Store{
		dev:                  dev,
		filters:              filters,
		enc:                  enc,
		strict:               strict,
		recursionLimit:       recursionLimit,
		maxObjectCount:       maxObjectCount,
		objects:              make(map[uint32]*slot),
		unavailable:          make(map[uint32]bool),
		compressedContainers: make(map[uint32]bool),
		objStreamCache:       make(map[uint32][]objstm.Entry),
	}

	for _, num := range table.Numbers() {
		e, _ := table.Get(num)
		sl := &slot{hasEntry: true, entry: e}
		switch e.Kind {
		case xref.Free:
			sl.free = true
		case xref.InUse:
			sl.gen = e.Generation
		case xref.Compressed:
			sl.gen = 0
		}
		s.objects[num] = sl
		if num > s.maxObj {
			s.maxObj = num
		}
		if table.IsUnavailable(num) {
			s.unavailable[num] = true
		}
		if table.IsCompressedStreamContainer(num) {
			s.compressedContainers[num] = true
		}
	}

	return s
}

func (s *Store) warn(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	s.warnings = append(s.warnings, msg)
	log.Parse.Println(msg)
}

// Warnings returns every lenient-mode downgrade recorded so far.
func (s *Store) Warnings() []string { return s.warnings }

// Attach registers an observer.
func (s *Store) Attach(o Observer) { s.observers = append(s.observers, o) }

// Detach unregisters an observer, a no-op if it was never attached.
func (s *Store) Detach(o Observer) {
	for i, existing := range s.observers {
		if existing == o {
			s.observers = append(s.observers[:i], s.observers[i+1:]...)
			return
		}
	}
}

func (s *Store) notifyBeginAppendStream(ref pdfval.Reference) {
	for _, o := range s.observers {
		o.BeginAppendStream(ref)
	}
}

func (s *Store) notifyEndAppendStream(ref pdfval.Reference) {
	for _, o := range s.observers {
		o.EndAppendStream(ref)
	}
}

// Get is the sparse lookup entry point (SPEC_FULL.md, 4.G): it resolves the
// object's content on first access and caches the result. A Reference whose
// generation doesn't match the object's current generation is treated as
// unresolved, per 7.3.10 of the ISO spec ("an indirect reference to an
// undefined object shall ... be treated as a reference to the null object").
func (s *Store) Get(ref pdfval.Reference) (*pdfval.Object, bool) {
	sl, ok := s.objects[ref.Num]
	if !ok || sl.free || sl.gen != ref.Gen {
		return nil, false
	}
	if sl.obj == nil {
		if err := s.resolve(ref.Num, sl); err != nil {
			sl.resolveErr = err
			return nil, false
		}
	}
	if sl.resolveErr != nil {
		return nil, false
	}
	return sl.obj, true
}

// MustGet is Get with a typed error instead of a bool.
func (s *Store) MustGet(ref pdfval.Reference) (*pdfval.Object, error) {
	obj, ok := s.Get(ref)
	if !ok {
		if sl, has := s.objects[ref.Num]; has && sl.resolveErr != nil {
			return nil, sl.resolveErr
		}
		return nil, errs.New(errs.ObjectNotFound, "object %s not found", ref)
	}
	return obj, nil
}

// resolveLengthRef is used as the pdfparse.ParseIndirectObject length
// resolver: resolving another object mid-parse, exactly as the teacher's
// `ctx.resolve(streamHeader["Length"])` does.
func (s *Store) resolveLengthRef(ref pdfval.Reference) (int, bool) {
	obj, ok := s.Get(ref)
	if !ok {
		return 0, false
	}
	i, ok := obj.Value.(pdfval.Int)
	if !ok {
		return 0, false
	}
	return int(i), true
}

func (s *Store) resolve(num uint32, sl *slot) error {
	if sl.resolving {
		return errs.New(errs.InternalLogic, "cyclic resolution of object %d", num)
	}
	sl.resolving = true
	defer func() { sl.resolving = false }()

	// Assign a null placeholder before recursing so a malicious or buggy
	// cycle (an object stream pointing back at itself, say) resolves to
	// null instead of looping forever - the same guard the teacher's
	// resolveObjectNumber uses.
	ref := pdfval.Reference{Num: num, Gen: sl.gen}
	sl.obj = &pdfval.Object{ID: ref, Value: pdfval.Null{}}

	switch sl.entry.Kind {
	case xref.Compressed:
		return s.resolveCompressed(num, sl)
	case xref.InUse:
		return s.resolveInUse(num, sl)
	default:
		return errs.New(errs.InternalLogic, "object %d has no resolvable xref entry", num)
	}
}

func (s *Store) resolveInUse(num uint32, sl *slot) error {
	if sl.entry.Offset >= uint64(s.dev.Size()) {
		return errs.New(errs.InvalidObject, "object %d: offset %d out of range", num, sl.entry.Offset)
	}
	buf, err := s.dev.ReadAllFrom(int64(sl.entry.Offset))
	if err != nil {
		return errs.Wrap(errs.InvalidObject, err)
	}

	p := pdfparse.NewParser(buf)
	p.RecursionLimit = s.recursionLimit
	ref := pdfval.Reference{Num: num, Gen: sl.gen}
	if s.enc != nil {
		p.Decryptor = s.enc.WrapObject(ref)
	}

	io, err := p.ParseIndirectObject(s.strict, s.resolveLengthRef)
	if err != nil {
		if !s.strict {
			s.warn("object %d broken, freed: %v", num, err)
			sl.free = true
			sl.obj = nil
			return errs.New(errs.ObjectNotFound, "object %d: %v", num, err)
		}
		return errs.WithFrame(err, "store.resolveInUse", "object %d at offset %d", num, sl.entry.Offset)
	}
	if io.Header.Num != num || io.Header.Gen != sl.gen {
		return errs.New(errs.InvalidObject, "object %d %d: xref points at mismatched header %d %d", num, sl.gen, io.Header.Num, io.Header.Gen)
	}

	obj := &pdfval.Object{ID: ref, Value: io.Value}
	if io.HasStream {
		dict, ok := io.Value.(pdfval.Dict)
		if !ok {
			return errs.New(errs.InvalidObject, "object %d: stream keyword after non-dictionary value", num)
		}
		obj.Stream = pdfval.NewDeviceStream(dict, &rangeSource{dev: s.dev, base: int64(sl.entry.Offset)}, int64(io.StreamBodyStart), int64(io.StreamBodyEnd))
	}

	sl.obj = obj
	return nil
}

// rangeSource translates buffer-relative [begin,end) spans recorded by
// pdfparse (which only ever sees the tail buffer read from one offset) into
// absolute device offsets.
type rangeSource struct {
	dev  *device.Device
	base int64
}

func (r *rangeSource) ReadRange(begin, end int64) ([]byte, error) {
	return r.dev.ReadRange(r.base+begin, r.base+end)
}

func (s *Store) resolveCompressed(num uint32, sl *slot) error {
	entries, err := s.decodeObjectStream(sl.entry.StreamObj)
	if err != nil {
		return errs.WithFrame(err, "store.resolveCompressed", "container %d for object %d", sl.entry.StreamObj, num)
	}
	for _, e := range entries {
		if e.ObjNum == num {
			sl.obj = &pdfval.Object{ID: pdfval.Reference{Num: num, Gen: 0}, Value: e.Value}
			return nil
		}
	}
	return errs.New(errs.ObjectNotFound, "object %d not present in object stream %d", num, sl.entry.StreamObj)
}

// decodeObjectStream resolves and decodes an object-stream container once,
// caching the packed entries exactly as the teacher's
// ctx.xrefTable.objectStreams cache does.
func (s *Store) decodeObjectStream(containerNum uint32) ([]objstm.Entry, error) {
	if cached, ok := s.objStreamCache[containerNum]; ok {
		return cached, nil
	}

	containerSlot, ok := s.objects[containerNum]
	if !ok || containerSlot.free {
		return nil, errs.New(errs.InvalidObject, "missing object stream container %d", containerNum)
	}
	if err := s.resolve(containerNum, containerSlot); err != nil {
		return nil, err
	}
	obj := containerSlot.obj
	if obj == nil || obj.Stream == nil {
		return nil, errs.New(errs.InvalidObject, "object %d is not a stream", containerNum)
	}

	raw, err := obj.Stream.RawBytes()
	if err != nil {
		return nil, err
	}
	decoded := raw
	if _, hasFilter := obj.Stream.Dict.Get("Filter"); hasFilter {
		if s.filters == nil {
			return nil, errs.New(errs.InvalidObject, "object stream %d is filtered but no FilterPipeline was configured", containerNum)
		}
		decoded, err = s.filters.Decode(obj.Stream.Dict, raw)
		if err != nil {
			return nil, errs.WithFrame(err, "store.decodeObjectStream", "container %d", containerNum)
		}
	}

	entries, err := objstm.Decode(obj.Stream.Dict, decoded, s.recursionLimit)
	if err != nil {
		return nil, err
	}
	s.objStreamCache[containerNum] = entries
	return entries, nil
}

// allocate implements the free-list/max-obj allocator protocol (SPEC_FULL.md,
// 4.G): pop the free list if non-empty, else advance past maxObj, skipping
// any number marked unavailable (a terminal generation was reached). A
// number popped off the free list carries the generation AddFree recorded
// for it (ref.Gen+1 at removal time, ISO 32000-1 7.5.4): reusing a number
// must bump its generation so stale references at the old generation stay
// stale, never resetting to 0 just because the slot is new.
func (s *Store) allocate() (uint32, uint16, error) {
	if len(s.freeList) > 0 {
		ref := s.freeList[0]
		s.freeList = s.freeList[1:]
		return ref.Num, ref.Gen, nil
	}
	for {
		s.maxObj++
		if s.maxObj > s.maxObjectCount {
			return 0, 0, errs.New(errs.ValueOutOfRange, "object number allocator exhausted cap %d", s.maxObjectCount)
		}
		if !s.unavailable[s.maxObj] {
			return s.maxObj, 0, nil
		}
	}
}

func (s *Store) newSlot(num uint32, gen uint16, val pdfval.Value) *pdfval.Object {
	obj := &pdfval.Object{ID: pdfval.Reference{Num: num, Gen: gen}, Value: val, Dirty: true}
	s.objects[num] = &slot{hasEntry: true, gen: gen, obj: obj}
	return obj
}

// InsertNewDict allocates a fresh reference and inserts an empty dictionary
// with /Type and, if non-empty, /Subtype already set.
func (s *Store) InsertNewDict(typ, subtype pdfval.Name) (*pdfval.Object, error) {
	num, gen, err := s.allocate()
	if err != nil {
		return nil, err
	}
	d := pdfval.NewDict()
	if typ != "" {
		d.Set("Type", typ)
	}
	if subtype != "" {
		d.Set("Subtype", subtype)
	}
	return s.newSlot(num, gen, d), nil
}

// InsertNewArray allocates a fresh reference and inserts an empty array.
func (s *Store) InsertNewArray() (*pdfval.Object, error) {
	num, gen, err := s.allocate()
	if err != nil {
		return nil, err
	}
	return s.newSlot(num, gen, pdfval.Array{}), nil
}

// InsertValue allocates a fresh reference and inserts v as-is.
func (s *Store) InsertValue(v pdfval.Value) (*pdfval.Object, error) {
	num, gen, err := s.allocate()
	if err != nil {
		return nil, err
	}
	return s.newSlot(num, gen, v), nil
}

// Push inserts obj under its own ID, replacing any existing object with the
// same reference, and advances maxObj if needed.
func (s *Store) Push(obj pdfval.Object) {
	obj.Dirty = true
	s.objects[obj.ID.Num] = &slot{hasEntry: true, gen: obj.ID.Gen, obj: &obj}
	if obj.ID.Num > s.maxObj {
		s.maxObj = obj.ID.Num
	}
}

// Remove deletes ref from the store. It is forbidden for a compressed-object-
// stream container. When markFree is set, (ref.Num, ref.Gen+1) is appended to
// the sorted free list unless the next generation is terminal, in which case
// the number is retired to the unavailable set instead.
func (s *Store) Remove(ref pdfval.Reference, markFree bool) (pdfval.Object, bool) {
	if s.compressedContainers[ref.Num] {
		panic(errs.New(errs.InternalLogic, "cannot remove object %d: it is an object-stream container", ref.Num).Error())
	}
	sl, ok := s.objects[ref.Num]
	if !ok || sl.free {
		return pdfval.Object{}, false
	}

	var removed pdfval.Object
	if sl.obj != nil {
		removed = *sl.obj
	} else {
		removed = pdfval.Object{ID: ref}
	}

	sl.free = true
	sl.obj = nil

	if markFree {
		nextGen := ref.Gen + 1
		if nextGen == pdfval.TerminalGeneration {
			s.unavailable[ref.Num] = true
		} else {
			sl.gen = nextGen
			s.AddFree(pdfval.Reference{Num: ref.Num, Gen: nextGen})
		}
	}
	return removed, true
}

// AddFree idempotently inserts ref into the sorted free list.
func (s *Store) AddFree(ref pdfval.Reference) {
	i := sort.Search(len(s.freeList), func(i int) bool { return !s.freeList[i].Less(ref) })
	if i < len(s.freeList) && s.freeList[i] == ref {
		s.warn("duplicate free-list entry for %s ignored", ref)
		return
	}
	s.freeList = append(s.freeList, pdfval.Reference{})
	copy(s.freeList[i+1:], s.freeList[i:])
	s.freeList[i] = ref
}

// AddCompressedStream marks objNum as an object-stream container, protecting
// it from garbage collection and Remove regardless of reachability.
func (s *Store) AddCompressedStream(objNum uint32) {
	s.compressedContainers[objNum] = true
}

// CollectGarbage frees every object unreachable from root, except compressed-
// object-stream containers (SPEC_FULL.md, 4.G).
func (s *Store) CollectGarbage(root pdfval.Dict) {
	reachable := make(map[uint32]bool)
	s.markReachableDict(root, reachable, 0)

	for num, sl := range s.objects {
		if sl.free || reachable[num] || s.compressedContainers[num] {
			continue
		}
		s.Remove(pdfval.Reference{Num: num, Gen: sl.gen}, true)
	}
}

func (s *Store) markReachableDict(d pdfval.Dict, seen map[uint32]bool, depth int) {
	if depth > s.limit() {
		return
	}
	d.Range(func(_ pdfval.Name, v pdfval.Value) bool {
		s.markReachableValue(v, seen, depth+1)
		return true
	})
}

func (s *Store) markReachableValue(v pdfval.Value, seen map[uint32]bool, depth int) {
	if depth > s.limit() {
		return
	}
	switch t := v.(type) {
	case pdfval.Ref:
		if seen[t.Num] {
			return
		}
		seen[t.Num] = true
		if obj, ok := s.Get(pdfval.Reference(t)); ok {
			s.markReachableValue(obj.Value, seen, depth+1)
			if obj.Stream != nil {
				s.markReachableDict(obj.Stream.Dict, seen, depth+1)
			}
		}
	case pdfval.Dict:
		s.markReachableDict(t, seen, depth)
	case pdfval.Array:
		for _, e := range t {
			s.markReachableValue(e, seen, depth+1)
		}
	}
}

func (s *Store) limit() int {
	if s.recursionLimit > 0 {
		return s.recursionLimit
	}
	return pdfparse.DefaultRecursionLimit
}

// BeginAppendStream/EndAppendStream notify observers around a stream append,
// used by a writer layer (out of this core's scope) to track where new
// stream bytes land in an output file.
func (s *Store) BeginAppendStream(ref pdfval.Reference) { s.notifyBeginAppendStream(ref) }
func (s *Store) EndAppendStream(ref pdfval.Reference)   { s.notifyEndAppendStream(ref) }
