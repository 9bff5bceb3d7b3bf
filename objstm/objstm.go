// Package objstm decodes compressed object streams (SPEC_FULL.md, component
// F): PDF 1.5's mechanism for packing many small indirect objects into one
// filtered stream. It is grounded on the teacher's
// reader/file/object_streams.go, trimmed to the part that belongs at this
// layer - parsing the prologue and the packed object bodies - since filter
// decoding and xref bookkeeping live in packages filters and xref
// respectively.
package objstm

import (
	"bytes"
	"strconv"

	"github.com/kpdf/xrefcore/errs"
	"github.com/kpdf/xrefcore/pdfparse"
	"github.com/kpdf/xrefcore/pdfval"
)

// Entry is one object packed into a stream, as produced by Decode.
type Entry struct {
	ObjNum uint32
	Value  pdfval.Value
}

// Decode parses an already-filter-decoded object-stream body according to
// its container dictionary's /N and /First entries, grounded directly on
// processObjectStream's prolog/body split (reader/file/object_streams.go).
// recursionLimit is forwarded to the per-object parser; zero means
// pdfparse.DefaultRecursionLimit.
func Decode(dict pdfval.Dict, decoded []byte, recursionLimit int) ([]Entry, error) {
	if _, hasExtents := dict.Get("Extents"); hasExtents {
		return nil, errs.New(errs.InvalidObject, "object stream: /Extents is not supported")
	}

	n, err := directInt(dict, "N")
	if err != nil {
		return nil, err
	}
	first, err := directInt(dict, "First")
	if err != nil {
		return nil, err
	}
	if first < 0 || first > len(decoded) {
		return nil, errs.New(errs.InvalidObject, "object stream: /First %d out of bounds (stream is %d bytes)", first, len(decoded))
	}

	// N pairs of integers separated by white space: the object number of a
	// compressed object, then its byte offset within the decoded stream
	// relative to /First. Some generators use a NUL byte instead of
	// whitespace as the separator; tolerate it the way the teacher does.
	prolog := bytes.ReplaceAll(decoded[:first], []byte{0x00}, []byte{' '})
	fields := bytes.Fields(prolog)
	if len(fields) < 2*n {
		return nil, errs.New(errs.InvalidObject, "object stream: prolog has %d fields, expected %d", len(fields), 2*n)
	}

	objNums := make([]uint32, n)
	offsets := make([]int, n)
	for i := 0; i < n; i++ {
		num, err := strconv.Atoi(string(fields[2*i]))
		if err != nil || num < 0 {
			return nil, errs.New(errs.InvalidObject, "object stream: invalid object number in prolog at index %d", i)
		}
		off, err := strconv.Atoi(string(fields[2*i+1]))
		if err != nil || off < 0 {
			return nil, errs.New(errs.InvalidObject, "object stream: invalid offset in prolog at index %d", i)
		}
		objNums[i] = uint32(num)
		offsets[i] = off + first
		if offsets[i] > len(decoded) {
			return nil, errs.New(errs.InvalidObject, "object stream: offset %d out of bounds (stream is %d bytes)", offsets[i], len(decoded))
		}
	}

	entries := make([]Entry, n)
	for i := 0; i < n; i++ {
		start, end := offsets[i], len(decoded)
		if i+1 < n {
			end = offsets[i+1]
		}
		if end < start {
			return nil, errs.New(errs.InvalidObject, "object stream: offsets out of order at index %d", i)
		}

		p := pdfparse.NewParser(decoded[start:end])
		p.RecursionLimit = recursionLimit
		val, err := p.ParseValue()
		if err != nil {
			return nil, errs.WithFrame(err, "objstm.Decode", "packed object %d (index %d)", objNums[i], i)
		}
		entries[i] = Entry{ObjNum: objNums[i], Value: val}
	}

	return entries, nil
}

func directInt(d pdfval.Dict, key pdfval.Name) (int, error) {
	v, ok := d.Get(key)
	if !ok {
		return 0, errs.New(errs.InvalidObject, "object stream missing /%s", key)
	}
	i, ok := v.(pdfval.Int)
	if !ok {
		return 0, errs.New(errs.InvalidObject, "object stream /%s must be a direct integer", key)
	}
	return int(i), nil
}
