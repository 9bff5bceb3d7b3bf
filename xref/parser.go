package xref

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/kpdf/xrefcore/device"
	"github.com/kpdf/xrefcore/errs"
	"github.com/kpdf/xrefcore/pdfparse"
	"github.com/kpdf/xrefcore/pdftoken"
	"github.com/kpdf/xrefcore/pdfval"
)

// FilterPipeline decodes a stream's raw bytes according to its /Filter and
// /DecodeParms entries. Cross-reference streams are nearly always Flate
// encoded, so discovery needs a real decoder; this core does not implement
// filter algorithms itself (SPEC_FULL.md Non-goals), so the caller of
// Discover supplies one - package filters provides the reference
// implementation.
type FilterPipeline interface {
	Decode(dict pdfval.Dict, raw []byte) ([]byte, error)
}

// Options configures xref discovery.
type Options struct {
	// Strict turns recoverable corruption into hard errors instead of
	// warnings (SPEC_FULL.md, section 7).
	Strict bool

	// RecursionLimit bounds nested array/dict depth while parsing trailer
	// and xref-stream dictionaries. Zero means pdfparse.DefaultRecursionLimit.
	RecursionLimit int

	// PreferXRefStmOnConflict decides the hybrid-file conflict rule: when a
	// hidden object appears in both a revision's classical xref section and
	// its /XRefStm, the PDF spec says both should agree, but some writers
	// disagree in practice. False (the default) keeps the classical
	// section authoritative once both have been read, by giving the
	// XRefStm first claim and letting ordinary newest-wins rules apply on
	// top. True makes the XRefStm's entries win outright.
	PreferXRefStmOnConflict bool

	// Filters decodes xref-stream bodies. Required for any file whose
	// cross-reference data lives in a stream rather than a classical
	// section; discovery fails with errs.InvalidXref if one is encountered
	// and Filters is nil.
	Filters FilterPipeline
}

// Result is everything Discover learns while walking a file's revision
// history.
type Result struct {
	Table         *Table
	Trailer       pdfval.Dict
	HeaderVersion string

	// IncrementalUpdateCount is the number of revisions found beyond the
	// first (i.e. the length of the /Prev chain actually walked).
	IncrementalUpdateCount int

	// HasXRefStream reports whether any revision - hybrid or pure - used a
	// cross-reference stream rather than a classical section.
	HasXRefStream bool

	Warnings []string
}

type fileLine struct {
	data   []byte
	offset int64
}

// parseCtx carries mutable discovery state, mirroring the teacher's
// reader/file/read.go *context, generalized to the Options knobs SPEC_FULL.md
// adds (Strict, PreferXRefStmOnConflict) and to operate over pdfval.Dict
// instead of a bespoke trailer struct.
type parseCtx struct {
	dev  *device.Device
	opts Options

	table         *Table
	trailer       pdfval.Dict
	trailerSeen   bool
	headerVersion string

	visitedOffsets  map[int64]bool
	subsectionCount int
	revisionCount   int
	hasXRefStream   bool
	warnings        []string
}

func (pc *parseCtx) warn(format string, args ...interface{}) {
	pc.warnings = append(pc.warnings, fmt.Sprintf(format, args...))
}

// Discover finds and walks a PDF's cross-reference chain, grounded on the
// teacher's buildXRefTableStartingAt (reader/file/read.go): locate
// "startxref", read either a classical xref section or an xref stream,
// follow /Prev (and hybrid /XRefStm) until exhausted, and fall back to a
// linear object scan if the chain itself is unreadable.
func Discover(dev *device.Device, opts Options) (*Result, error) {
	pc := &parseCtx{
		dev:            dev,
		opts:           opts,
		table:          NewTable(),
		visitedOffsets: make(map[int64]bool),
	}

	version, err := pc.findHeaderVersion()
	if err != nil {
		return nil, err
	}
	pc.headerVersion = version

	startOffset, findErr := pc.findStartXRefOffset()
	if findErr != nil {
		if opts.Strict {
			return nil, findErr
		}
		pc.warn("startxref not found: %v; falling back to linear scan", findErr)
		if err := pc.bypassXrefSection(); err != nil {
			return nil, err
		}
	} else if err := pc.buildFrom(startOffset); err != nil {
		return nil, err
	}

	if !pc.trailerSeen {
		return nil, errs.New(errs.InvalidTrailer, "no trailer found in file")
	}

	if err := pc.checkSizeOverflow(); err != nil {
		return nil, err
	}

	incremental := pc.revisionCount - 1
	if incremental < 0 {
		incremental = 0
	}

	return &Result{
		Table:                  pc.table,
		Trailer:                pc.trailer,
		HeaderVersion:          pc.headerVersion,
		IncrementalUpdateCount: incremental,
		HasXRefStream:          pc.hasXRefStream,
		Warnings:               pc.warnings,
	}, nil
}

// checkSizeOverflow implements the decided Open Question "what happens when
// the highest object number meets or exceeds the trailer's /Size": a warning
// in lenient mode, a hard error in Strict mode.
func (pc *parseCtx) checkSizeOverflow() error {
	sizeVal, ok := pc.trailer.Get("Size")
	if !ok {
		return nil
	}
	size, ok := sizeVal.(pdfval.Int)
	if !ok {
		return nil
	}
	var maxNum uint32
	for _, n := range pc.table.Numbers() {
		if n > maxNum {
			maxNum = n
		}
	}
	if int64(maxNum) >= int64(size) {
		msg := fmt.Sprintf("highest object number %d meets or exceeds trailer /Size %d", maxNum, int64(size))
		if pc.opts.Strict {
			return errs.New(errs.InvalidTrailer, "%s", msg)
		}
		pc.warn(msg)
	}
	return nil
}

// findHeaderVersion reads the "%PDF-1.N" banner, tolerating a few bytes of
// garbage before it (some generators prepend a BOM or stray whitespace),
// matching the teacher's headerVersion but scanning rather than requiring an
// exact prefix at offset 0.
func (pc *parseCtx) findHeaderVersion() (string, error) {
	n := int64(1024)
	if n > pc.dev.Size() {
		n = pc.dev.Size()
	}
	buf, err := pc.dev.ReadAt(int(n), 0)
	if err != nil {
		return "", errs.Wrap(errs.InvalidPdf, err)
	}
	const prefix = "%PDF-"
	idx := bytes.Index(buf, []byte(prefix))
	if idx == -1 || idx+len(prefix)+3 > len(buf) {
		if pc.opts.Strict {
			return "", errs.New(errs.InvalidPdf, "missing %%PDF- header")
		}
		return "", nil
	}
	return string(buf[idx+len(prefix) : idx+len(prefix)+3]), nil
}

// findStartXRefOffset scans backward from the end of the file for
// "startxref <offset> %%EOF", exactly as the teacher's offsetLastXRefSection
// does, in fixed-size chunks so a single malformed trailer doesn't force
// reading the whole file.
func (pc *parseCtx) findStartXRefOffset() (int64, error) {
	size := pc.dev.Size()
	bufSize := int64(512)
	if size < bufSize {
		bufSize = size
	}
	if bufSize == 0 {
		return 0, errs.New(errs.InvalidEofToken, "empty file")
	}

	var prevBuf []byte
	for i := int64(1); ; i++ {
		start := size - i*bufSize
		if start < 0 {
			start = 0
		}
		curBuf, err := pc.dev.ReadAt(int(size-start), start)
		if err != nil {
			return 0, errs.Wrap(errs.InvalidEofToken, err)
		}
		workBuf := append(append([]byte{}, curBuf...), prevBuf...)

		j := bytes.LastIndex(workBuf, []byte("startxref"))
		if j == -1 {
			if start == 0 {
				return 0, errs.New(errs.InvalidEofToken, "no startxref keyword found")
			}
			prevBuf = curBuf
			continue
		}

		rest := workBuf[j+len("startxref"):]
		eofIdx := bytes.Index(rest, []byte("%%EOF"))
		if eofIdx == -1 {
			return 0, errs.New(errs.InvalidEofToken, "no matching %%EOF for startxref")
		}

		numStr := string(bytes.TrimSpace(rest[:eofIdx]))
		offset, err := strconv.ParseInt(numStr, 10, 64)
		if err != nil {
			return 0, errs.New(errs.InvalidEofToken, "corrupt startxref offset %q", numStr)
		}
		// A startxref offset landing exactly at EOF is accepted here (the
		// build loop below reports the concrete failure once it actually
		// tries to read there); only a clearly out-of-range negative
		// offset is rejected up front.
		if offset < 0 {
			return 0, errs.New(errs.InvalidEofToken, "negative startxref offset %d", offset)
		}
		return offset, nil
	}
}

// buildFrom walks the /Prev chain starting at offset, reading each
// revision's classical xref section or xref stream.
func (pc *parseCtx) buildFrom(offset int64) error {
	for offset != 0 {
		if pc.visitedOffsets[offset] {
			return errs.New(errs.InvalidXref, "xref offset %d revisited; cycle in /Prev chain", offset)
		}
		pc.visitedOffsets[offset] = true

		if offset < 0 || offset >= pc.dev.Size() {
			pc.warn("xref offset %d out of range; falling back to linear scan", offset)
			return pc.bypassXrefSection()
		}

		buf, err := pc.dev.ReadAllFrom(offset)
		if err != nil {
			return errs.Wrap(errs.InvalidXref, err)
		}
		tk := pdftoken.NewTokenizer(buf)
		start, err := tk.PeekToken()
		if err != nil {
			return errs.Wrap(errs.InvalidXref, err)
		}

		var prev int64
		if start.IsOther("xref") {
			_, _ = tk.NextToken()
			prev, err = pc.parseXRefSection(tk)
		} else {
			pc.hasXRefStream = true
			prev, err = pc.parseXRefStreamAtOffset(offset, false)
		}
		if err != nil {
			if pc.opts.Strict {
				return err
			}
			pc.warn("xref revision at %d unreadable (%v); falling back to linear scan", offset, err)
			return pc.bypassXrefSection()
		}

		pc.revisionCount++
		offset = prev
	}

	pc.applyHPScannerFix()
	return nil
}

// applyHPScannerFix is the teacher's dedicated workaround (reader/file/read.go,
// "A friendly greeting to the devs of the HP Scanner & Printer software
// utility"): files with exactly one xref subsection sometimes start
// numbering at object 1 instead of the mandatory 0.
func (pc *parseCtx) applyHPScannerFix() {
	if pc.subsectionCount != 1 {
		return
	}
	if _, hasZero := pc.table.Get(0); hasZero {
		return
	}
	sizeVal, ok := pc.trailer.Get("Size")
	size, ok2 := sizeVal.(pdfval.Int)
	if !ok || !ok2 {
		return
	}
	for i := int64(1); i <= int64(size); i++ {
		if e, ok := pc.table.Get(uint32(i)); ok {
			pc.table.entries[uint32(i-1)] = &e
			delete(pc.table.entries, uint32(i))
		}
	}
}

// parseXRefSection reads one classical "xref ... trailer <<...>>" section.
func (pc *parseCtx) parseXRefSection(tk *pdftoken.Tokenizer) (int64, error) {
	for {
		if err := pc.parseXRefSubSection(tk); err != nil {
			return 0, err
		}
		pc.subsectionCount++

		next, err := tk.PeekToken()
		if err != nil {
			return 0, errs.Wrap(errs.InvalidXref, err)
		}
		if next.IsOther("trailer") {
			break
		}
		if next.Kind == pdftoken.EOF {
			return 0, errs.New(errs.InvalidXref, "xref section truncated before trailer")
		}
	}
	_, _ = tk.NextToken() // consume "trailer"
	return pc.processTrailerTokens(tk)
}

func (pc *parseCtx) parseXRefSubSection(tk *pdftoken.Tokenizer) error {
	startTok, err := tk.NextToken()
	if err != nil || startTok.Kind != pdftoken.Integer {
		return errs.New(errs.InvalidXref, "expected subsection start object number")
	}
	startNum, _ := startTok.Int()

	countTok, err := tk.NextToken()
	if err != nil || countTok.Kind != pdftoken.Integer {
		return errs.New(errs.InvalidXref, "expected subsection object count")
	}
	count, _ := countTok.Int()

	for i := 0; i < count; i++ {
		if err := pc.parseXRefEntry(tk, uint32(startNum+i)); err != nil {
			return err
		}
	}
	return nil
}

// parseXRefEntry reads one fixed 20-byte-style "offset generation f|n" record.
func (pc *parseCtx) parseXRefEntry(tk *pdftoken.Tokenizer, objNum uint32) error {
	offTok, err := tk.NextToken()
	if err != nil || offTok.Kind != pdftoken.Integer {
		return errs.New(errs.InvalidXref, "object %d: invalid offset field", objNum)
	}
	offset, err := strconv.ParseInt(offTok.Value, 10, 64)
	if err != nil {
		return errs.New(errs.InvalidXref, "object %d: invalid offset field", objNum)
	}

	genTok, err := tk.NextToken()
	if err != nil || genTok.Kind != pdftoken.Integer {
		return errs.New(errs.InvalidXref, "object %d: invalid generation field", objNum)
	}
	gen, _ := genTok.Int()

	kindTok, err := tk.NextToken()
	if err != nil || kindTok.Kind != pdftoken.Other || (kindTok.Value != "f" && kindTok.Value != "n") {
		return errs.New(errs.InvalidXref, "object %d: corrupt entry type", objNum)
	}

	if kindTok.Value == "f" {
		pc.table.setIfUnparsed(objNum, Entry{Kind: Free, NextFreeObj: uint32(offset), NextGenerati: uint16(gen)})
		return nil
	}
	if offset == 0 {
		// Skip in-use entries claiming offset 0, same as the teacher.
		return nil
	}
	pc.table.setIfUnparsed(objNum, Entry{Kind: InUse, Offset: uint64(offset), Generation: uint16(gen)})
	return nil
}

func (pc *parseCtx) processTrailerTokens(tk *pdftoken.Tokenizer) (int64, error) {
	p := pdfparse.NewFromTokenizer(tk)
	p.RecursionLimit = pc.opts.RecursionLimit
	v, err := p.ParseValue()
	if err != nil {
		return 0, errs.Wrap(errs.InvalidTrailer, err)
	}
	d, ok := v.(pdfval.Dict)
	if !ok {
		return 0, errs.New(errs.InvalidTrailer, "trailer is not a dictionary")
	}
	return pc.mergeTrailerAndFollow(d)
}

// mergeTrailerAndFollow records d's fields (first revision to mention a key
// wins, since revisions are walked newest-first), then, per 7.5.8.4, resolves
// any hybrid /XRefStm before reporting /Prev - 1.5-conformant readers process
// the hidden xref stream before continuing to any earlier revision.
func (pc *parseCtx) mergeTrailerAndFollow(d pdfval.Dict) (int64, error) {
	pc.mergeTrailerInfo(d)

	if xrefStmVal, ok := d.Get("XRefStm"); ok {
		if xi, ok := xrefStmVal.(pdfval.Int); ok {
			pc.hasXRefStream = true
			if _, err := pc.parseXRefStreamAtOffset(int64(xi), pc.opts.PreferXRefStmOnConflict); err != nil {
				if pc.opts.Strict {
					return 0, errs.WithFrame(err, "xref.mergeTrailerAndFollow", "hybrid XRefStm at %d", int64(xi))
				}
				pc.warn("hybrid XRefStm at %d failed: %v", int64(xi), err)
			}
		}
	}

	return offsetFromValue(d, "Prev"), nil
}

func (pc *parseCtx) mergeTrailerInfo(d pdfval.Dict) {
	if !pc.trailerSeen {
		pc.trailer = pdfval.NewDict()
		pc.trailerSeen = true
	}
	d.Range(func(k pdfval.Name, v pdfval.Value) bool {
		if _, exists := pc.trailer.Get(k); !exists {
			pc.trailer.Set(k, v)
		}
		return true
	})
}

// offsetFromValue accepts both a direct integer and the "N 0 R" form some
// generators emit for /Prev despite the spec requiring a direct object.
func offsetFromValue(d pdfval.Dict, key pdfval.Name) int64 {
	v, ok := d.Get(key)
	if !ok {
		return 0
	}
	switch t := v.(type) {
	case pdfval.Int:
		return int64(t)
	case pdfval.Ref:
		return int64(t.Num)
	default:
		return 0
	}
}

// parseXRefStreamAtOffset reads one "N G obj << ... >> stream ... endstream"
// cross-reference stream object, grounded on the teacher's parseXRefStream /
// xRefStreamDict / extractXRefTableEntriesFromXRefStream
// (reader/file/read.go). override selects forceSet over setIfUnparsed for the
// entries it contributes - used for the hybrid-conflict policy in Options.
func (pc *parseCtx) parseXRefStreamAtOffset(offset int64, override bool) (int64, error) {
	if offset < 0 || offset >= pc.dev.Size() {
		return 0, errs.New(errs.InvalidXref, "xref stream offset %d out of range", offset)
	}
	buf, err := pc.dev.ReadAllFrom(offset)
	if err != nil {
		return 0, errs.Wrap(errs.InvalidXref, err)
	}

	p := pdfparse.NewParser(buf)
	p.RecursionLimit = pc.opts.RecursionLimit
	header, err := p.ParseObjectHeader()
	if err != nil {
		return 0, errs.WithFrame(err, "xref.parseXRefStreamAtOffset", "at offset %d", offset)
	}
	p.CurrentRef = pdfval.Reference{Num: header.Num, Gen: header.Gen}

	val, err := p.ParseValue()
	if err != nil {
		return 0, errs.WithFrame(err, "xref.parseXRefStreamAtOffset", "object %d %d", header.Num, header.Gen)
	}
	dict, ok := val.(pdfval.Dict)
	if !ok {
		return 0, errs.New(errs.InvalidXref, "xref stream object %d is not a dictionary", header.Num)
	}

	if typeVal, ok := dict.Get("Type"); ok {
		if n, ok := typeVal.(pdfval.Name); !ok || n != "XRef" {
			if pc.opts.Strict {
				return 0, errs.New(errs.InvalidXref, "object %d: expected /Type /XRef", header.Num)
			}
		}
	}

	streamTok, err := p.Tokens().NextToken()
	if err != nil || !streamTok.IsOther("stream") {
		return 0, errs.New(errs.InvalidXref, "object %d: expected 'stream' keyword", header.Num)
	}

	length, err := directInt(dict, "Length")
	if err != nil {
		return 0, errs.WithFrame(err, "xref.parseXRefStreamAtOffset", "object %d", header.Num)
	}
	start, end, err := p.ScanStreamBody(&length)
	if err != nil {
		return 0, errs.WithFrame(err, "xref.parseXRefStreamAtOffset", "object %d stream body", header.Num)
	}
	raw := buf[start:end]

	var decoded []byte
	if _, hasFilter := dict.Get("Filter"); hasFilter {
		if pc.opts.Filters == nil {
			return 0, errs.New(errs.InvalidXref, "object %d: xref stream is filtered but no FilterPipeline was configured", header.Num)
		}
		decoded, err = pc.opts.Filters.Decode(dict, raw)
		if err != nil {
			return 0, errs.WithFrame(err, "xref.parseXRefStreamAtOffset", "object %d filter decode", header.Num)
		}
	} else {
		decoded = raw
	}

	w, err := parseWArray(dict)
	if err != nil {
		return 0, err
	}
	size, err := directInt(dict, "Size")
	if err != nil {
		return 0, err
	}
	index, err := parseIndexArray(dict, size)
	if err != nil {
		return 0, err
	}

	if err := pc.extractXRefStreamEntries(decoded, w, index, override); err != nil {
		return 0, err
	}

	// Cross-reference streams are not regular content objects and are
	// deliberately not added to the table: the teacher's comment on this
	// point ("since xRef streams are not regular objects, we do not save
	// them in the xref table, in particular it avoids issues with
	// decryption") still applies - they are never encrypted and never
	// looked up by the object store.

	pc.mergeTrailerInfo(dict)
	return offsetFromValue(dict, "Prev"), nil
}

func directInt(d pdfval.Dict, key pdfval.Name) (int, error) {
	v, ok := d.Get(key)
	if !ok {
		return 0, errs.New(errs.InvalidXref, "missing /%s", key)
	}
	i, ok := v.(pdfval.Int)
	if !ok {
		return 0, errs.New(errs.InvalidXref, "/%s must be a direct integer", key)
	}
	return int(i), nil
}

func parseWArray(d pdfval.Dict) ([3]int, error) {
	v, ok := d.Get("W")
	if !ok {
		return [3]int{}, errs.New(errs.InvalidXref, "xref stream missing /W")
	}
	arr, ok := v.(pdfval.Array)
	if !ok || len(arr) < 3 {
		return [3]int{}, errs.New(errs.InvalidXref, "/W must be an array of at least 3 integers")
	}
	var w [3]int
	for i := 0; i < 3; i++ {
		n, ok := arr[i].(pdfval.Int)
		if !ok || n < 0 {
			return [3]int{}, errs.New(errs.InvalidXref, "/W entries must be non-negative direct integers")
		}
		w[i] = int(n)
	}
	return w, nil
}

func parseIndexArray(d pdfval.Dict, size int) ([][2]int, error) {
	v, ok := d.Get("Index")
	if !ok {
		return [][2]int{{0, size}}, nil
	}
	arr, ok := v.(pdfval.Array)
	if !ok || len(arr)%2 != 0 {
		return nil, errs.New(errs.InvalidXref, "corrupted /Index entry")
	}
	out := make([][2]int, 0, len(arr)/2)
	for i := 0; i+1 < len(arr); i += 2 {
		startObj, ok1 := arr[i].(pdfval.Int)
		count, ok2 := arr[i+1].(pdfval.Int)
		if !ok1 || !ok2 {
			return nil, errs.New(errs.InvalidXref, "corrupted /Index entry")
		}
		out = append(out, [2]int{int(startObj), int(count)})
	}
	return out, nil
}

func bufToInt64(buf []byte) (i int64) {
	for _, b := range buf {
		i = (i << 8) | int64(b)
	}
	return i
}

// extractXRefStreamEntries decodes the packed (type, field2, field3) records
// described by w and index, one subsection at a time.
func (pc *parseCtx) extractXRefStreamEntries(decoded []byte, w [3]int, index [][2]int, override bool) error {
	entrySize := w[0] + w[1] + w[2]
	if entrySize == 0 {
		return errs.New(errs.InvalidXref, "xref stream /W sums to zero")
	}

	total := 0
	for _, sub := range index {
		total += sub[1]
	}
	need := total * entrySize
	if len(decoded) < need {
		return errs.New(errs.InvalidXref, "xref stream too short: need %d bytes, have %d", need, len(decoded))
	}
	decoded = decoded[:need]

	j := 0
	for _, sub := range index {
		first, count := sub[0], sub[1]
		for i := 0; i < count; i++ {
			objNum := uint32(first + i)
			off := j * entrySize
			j++

			// If the first field is absent (W[0] == 0), the type defaults to 1.
			typeField := 1
			if w[0] > 0 {
				typeField = int(bufToInt64(decoded[off : off+w[0]]))
			}
			f2 := bufToInt64(decoded[off+w[0] : off+w[0]+w[1]])
			f3 := bufToInt64(decoded[off+w[0]+w[1] : off+w[0]+w[1]+w[2]])

			var e Entry
			switch typeField {
			case 0:
				e = Entry{Kind: Free, NextFreeObj: uint32(f2), NextGenerati: uint16(f3)}
			case 1:
				e = Entry{Kind: InUse, Offset: uint64(f2), Generation: uint16(f3)}
			case 2:
				e = Entry{Kind: Compressed, StreamObj: uint32(f2), IndexInStream: uint32(f3)}
				pc.table.MarkCompressedStreamContainer(uint32(f2))
			default:
				continue
			}

			if override {
				pc.table.forceSet(objNum, e)
			} else {
				pc.table.setIfUnparsed(objNum, e)
			}
		}
	}
	return nil
}

// bypassXrefSection recovers from an unreadable xref chain by scanning the
// whole file line by line for "N G obj" declarations and a trailing
// "trailer" dictionary, exactly as the teacher's bypassXrefSection does. It
// assumes a single revision: true incremental updates with a broken xref
// chain are beyond what linear recovery can reconstruct.
func (pc *parseCtx) bypassXrefSection() error {
	pc.table.setIfUnparsed(0, Entry{Kind: Free, NextFreeObj: 0, NextGenerati: pdfval.TerminalGeneration})

	buf, err := pc.dev.ReadAllFrom(0)
	if err != nil {
		return errs.Wrap(errs.InvalidPdf, err)
	}

	withinObj, withinXref := false, false
	for _, ln := range splitLinesWithOffsets(buf) {
		tk := pdftoken.NewTokenizer(ln.data)
		first, _ := tk.PeekToken()

		switch {
		case withinObj:
			if first.IsOther("endobj") {
				withinObj = false
			}
		case withinXref:
			if first.IsOther("trailer") {
				_, _ = tk.NextToken()
				pos := ln.offset + int64(tk.CurrentPosition())
				rest, err := pc.dev.ReadAllFrom(pos)
				if err != nil {
					return errs.Wrap(errs.InvalidTrailer, err)
				}
				_, err = pc.processTrailerTokens(pdftoken.NewTokenizer(rest))
				return err
			}
		case first.IsOther("xref"):
			withinXref = true
		default:
			p := pdfparse.NewParser(ln.data)
			header, err := p.ParseObjectHeader()
			if err == nil {
				pc.table.setIfUnparsed(header.Num, Entry{Kind: InUse, Offset: uint64(ln.offset), Generation: header.Gen})
				withinObj = true
			}
		}
	}

	if !pc.trailerSeen {
		return errs.New(errs.InvalidTrailer, "linear scan recovery found no trailer")
	}
	return nil
}

// PreviousRevisionEOF reads only the single revision beginning at
// startOffset - its classical section or xref stream, plus any hybrid
// /XRefStm, but never following /Prev - and returns the lowest in-use object
// offset it records. That minimum is the revision's effective EOF boundary:
// everything at or after it belongs to this revision or a later one, so a
// caller walking the /Prev chain can carve out each revision's byte range by
// pairing this with the next revision's startOffset.
func PreviousRevisionEOF(dev *device.Device, startOffset int64, opts Options) (int64, error) {
	if startOffset < 0 || startOffset >= dev.Size() {
		return 0, errs.New(errs.InvalidXref, "xref offset %d out of range", startOffset)
	}

	pc := &parseCtx{
		dev:            dev,
		opts:           opts,
		table:          NewTable(),
		visitedOffsets: make(map[int64]bool),
	}

	buf, err := dev.ReadAllFrom(startOffset)
	if err != nil {
		return 0, errs.Wrap(errs.InvalidXref, err)
	}
	tk := pdftoken.NewTokenizer(buf)
	start, err := tk.PeekToken()
	if err != nil {
		return 0, errs.Wrap(errs.InvalidXref, err)
	}

	if start.IsOther("xref") {
		_, _ = tk.NextToken()
		if _, err := pc.parseXRefSection(tk); err != nil {
			return 0, err
		}
	} else if _, err := pc.parseXRefStreamAtOffset(startOffset, false); err != nil {
		return 0, err
	}

	min := int64(-1)
	for _, num := range pc.table.Numbers() {
		e, _ := pc.table.Get(num)
		if e.Kind != InUse {
			continue
		}
		if min == -1 || int64(e.Offset) < min {
			min = int64(e.Offset)
		}
	}
	if min == -1 {
		return 0, errs.New(errs.InvalidXref, "revision at %d has no in-use entries", startOffset)
	}
	return min, nil
}

func splitLinesWithOffsets(buf []byte) []fileLine {
	var out []fileLine
	i, n := 0, len(buf)
	for i < n {
		for i < n && (buf[i] == '\n' || buf[i] == '\r') {
			i++
		}
		if i >= n {
			break
		}
		start := i
		for i < n && buf[i] != '\n' && buf[i] != '\r' {
			i++
		}
		out = append(out, fileLine{data: buf[start:i], offset: int64(start)})
	}
	return out
}
