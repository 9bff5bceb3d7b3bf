// Package xrefcore is the library surface described by SPEC_FULL.md section
// 6: it wires the input device, xref discovery, the reference filter
// pipeline, the encryption gate and the indirect-object store together
// behind one Parse entry point.
//
// Grounded on the teacher's reader.ParsePDFFile/ParsePDFReader
// (reader/read.go): a thin options-driven front door over the lower layers,
// returning encryption information separately rather than folding it into
// the parsed document - generalized here into returning the EncryptSession
// itself, since this core (unlike the teacher) exposes object access
// directly instead of a fully resolved document model.
package xrefcore

import (
	"io"

	"github.com/kpdf/xrefcore/crypt"
	"github.com/kpdf/xrefcore/device"
	"github.com/kpdf/xrefcore/errs"
	"github.com/kpdf/xrefcore/filters"
	"github.com/kpdf/xrefcore/pdfparse"
	"github.com/kpdf/xrefcore/pdfval"
	"github.com/kpdf/xrefcore/store"
	"github.com/kpdf/xrefcore/xref"
)

// Options configures Parse, following the teacher's Configuration
// constructor idiom (reader/file.Configuration) generalized to the knobs
// SPEC_FULL.md section 6 names.
type Options struct {
	Strict                  bool
	LoadOnDemand            bool
	Password                []byte
	MaxObjectCount          uint32
	RecursionLimit          int
	PreferXRefStmOnConflict bool

	// IgnoreBrokenObjects frees a broken object's slot and lets parsing
	// continue instead of failing outright, the lenient-mode downgrade
	// named in SPEC_FULL.md section 7. It has no effect when Strict is set.
	IgnoreBrokenObjects bool
}

// NewDefaultOptions returns a lenient configuration with the spec-mandated
// recursion cap and allocator ceiling.
func NewDefaultOptions() Options {
	return Options{
		RecursionLimit: pdfparse.DefaultRecursionLimit,
		MaxObjectCount: store.DefaultMaxObjectCount,
	}
}

// ParsedDoc is the result of a successful Parse: the xref-discovery metadata
// plus a store ready to resolve any reachable indirect object.
type ParsedDoc struct {
	store                  *store.Store
	trailer                pdfval.Dict
	version                string
	incrementalUpdateCount int
	hasXRefStream          bool
	warnings               []string
}

func (d *ParsedDoc) Trailer() pdfval.Dict        { return d.trailer }
func (d *ParsedDoc) Version() string             { return d.version }
func (d *ParsedDoc) IncrementalUpdateCount() int  { return d.incrementalUpdateCount }
func (d *ParsedDoc) HasXRefStream() bool          { return d.hasXRefStream }
func (d *ParsedDoc) Warnings() []string           { return d.warnings }
func (d *ParsedDoc) Store() *store.Store          { return d.store }

// Get resolves ref, returning false if it is free, out of range, or its
// generation does not match the live slot.
func (d *ParsedDoc) Get(ref pdfval.Reference) (*pdfval.Object, bool) { return d.store.Get(ref) }

// MustGet is Get with a typed error in place of the bool.
func (d *ParsedDoc) MustGet(ref pdfval.Reference) (*pdfval.Object, error) { return d.store.MustGet(ref) }

// Parse reads a complete PDF file from source and builds a ParsedDoc,
// following the data flow in SPEC_FULL.md section 2: device -> xref
// discovery -> (encryption authentication) -> store, with compressed
// object-stream entries expanded lazily by the store itself.
func Parse(source io.ReadSeeker, opts Options) (*ParsedDoc, error) {
	if opts.RecursionLimit <= 0 {
		opts.RecursionLimit = pdfparse.DefaultRecursionLimit
	}
	if opts.MaxObjectCount == 0 {
		opts.MaxObjectCount = store.DefaultMaxObjectCount
	}

	dev, err := device.New(source)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidPdf, err)
	}

	pipeline := filters.New()
	result, err := xref.Discover(dev, xref.Options{
		Strict:                  opts.Strict,
		RecursionLimit:          opts.RecursionLimit,
		PreferXRefStmOnConflict: opts.PreferXRefStmOnConflict,
		Filters:                 pipeline,
	})
	if err != nil {
		return nil, err
	}

	var encSession *crypt.Session
	if encVal, ok := result.Trailer.Get("Encrypt"); ok {
		encSession, err = authenticate(dev, result.Table, encVal, result.Trailer, opts.Password)
		if err != nil {
			return nil, err
		}
	}

	var enc store.EncryptSession
	if encSession != nil {
		enc = encSession
	}

	st := store.New(dev, result.Table, pipeline, enc, opts.Strict, opts.RecursionLimit, opts.MaxObjectCount)

	if !opts.LoadOnDemand {
		for _, num := range result.Table.Numbers() {
			e, _ := result.Table.Get(num)
			var ref pdfval.Reference
			switch e.Kind {
			case xref.InUse:
				ref = pdfval.Reference{Num: num, Gen: e.Generation}
			case xref.Compressed:
				ref = pdfval.Reference{Num: num, Gen: 0}
			default:
				continue
			}
			if _, err := st.MustGet(ref); err != nil && !opts.IgnoreBrokenObjects {
				return nil, err
			}
		}
	}

	return &ParsedDoc{
		store:                  st,
		trailer:                result.Trailer,
		version:                result.HeaderVersion,
		incrementalUpdateCount: result.IncrementalUpdateCount,
		hasXRefStream:          result.HasXRefStream,
		warnings:               append(append([]string(nil), result.Warnings...), st.Warnings()...),
	}, nil
}

// authenticate resolves the trailer's /Encrypt entry directly against the
// device (the encryption dictionary itself is always parsed unencrypted,
// SPEC_FULL.md 4.H) and runs the encryption gate. A failed authentication is
// the one place Parse reports errs.InvalidPassword, letting a caller retry
// with a different password without redoing xref discovery.
func authenticate(dev *device.Device, table *xref.Table, encVal pdfval.Value, trailer pdfval.Dict, password []byte) (*crypt.Session, error) {
	encDictVal, err := resolveUnencrypted(dev, table, encVal)
	if err != nil {
		return nil, errs.WithFrame(err, "xrefcore.authenticate", "resolving /Encrypt")
	}

	id := trailerID(trailer)
	auth := crypt.NewAuthenticator()
	session, err := auth.FromObject(encDictVal, id)
	if err != nil {
		return nil, err
	}

	result, err := session.Authenticate(password)
	if err != nil {
		return nil, err
	}
	if result == crypt.Failed {
		return nil, errs.New(errs.InvalidPassword, "no supplied password unlocks the document")
	}
	return session, nil
}

// resolveUnencrypted reads a single indirect object straight from the
// device, bypassing the store entirely - needed for /Encrypt, which must be
// read before any EncryptSession exists to wrap anything with.
func resolveUnencrypted(dev *device.Device, table *xref.Table, v pdfval.Value) (pdfval.Value, error) {
	ref, ok := v.(pdfval.Ref)
	if !ok {
		return v, nil
	}
	entry, ok := table.Get(ref.Num)
	if !ok || entry.Kind != xref.InUse {
		return nil, errs.New(errs.InvalidEncryptionDict, "/Encrypt reference %s does not resolve to an in-use object", pdfval.Reference(ref))
	}

	buf, err := dev.ReadAllFrom(int64(entry.Offset))
	if err != nil {
		return nil, errs.Wrap(errs.InvalidEncryptionDict, err)
	}
	p := pdfparse.NewParser(buf)
	iobj, err := p.ParseIndirectObject(false, nil)
	if err != nil {
		return nil, err
	}
	return iobj.Value, nil
}

// trailerID extracts the two /ID string halves (ISO 32000-1, 14.4), used as
// the file identifier in the standard security handler's key derivation.
// Missing halves decode to empty strings, which matches the handler's own
// leniency for the (rare, non-conformant) encrypted file with no /ID.
func trailerID(trailer pdfval.Dict) [2]string {
	var out [2]string
	v, ok := trailer.Get("ID")
	if !ok {
		return out
	}
	arr, ok := v.(pdfval.Array)
	if !ok {
		return out
	}
	for i := 0; i < 2 && i < len(arr); i++ {
		if s, ok := arr[i].(pdfval.String); ok {
			out[i] = string(s.Bytes)
		}
	}
	return out
}
