// Package filters implements the reference stream-filter pipeline the core
// depends on only through an interface (SPEC_FULL.md, Non-goals: "filter
// algorithms" are an external collaborator). It is grounded on the teacher's
// reader/parser/filters package, adapted from an inline-image "find the EOD
// marker" Skipper into a "decode the whole already-length-bounded body"
// pipeline, since this core always knows a stream's exact byte span up
// front (SPEC_FULL.md, component A/C) and never has to hunt for an EOD
// marker the way an inline image does.
package filters

import (
	"github.com/kpdf/xrefcore/errs"
	"github.com/kpdf/xrefcore/pdfval"
)

// The filter names recognized in a /Filter entry, matching the teacher's
// reader/parser/filters.Filters constants (PDF spec 7.4).
const (
	ASCII85   pdfval.Name = "ASCII85Decode"
	ASCIIHex  pdfval.Name = "ASCIIHexDecode"
	RunLength pdfval.Name = "RunLengthDecode"
	LZW       pdfval.Name = "LZWDecode"
	Flate     pdfval.Name = "FlateDecode"
	DCT       pdfval.Name = "DCTDecode"
	CCITTFax  pdfval.Name = "CCITTFaxDecode"
)

// Pipeline is the reference filters.FilterPipeline / xref.FilterPipeline /
// store.FilterPipeline implementation: stateless, so a single zero value is
// reused across every stream in a document.
type Pipeline struct{}

// New returns a ready-to-use Pipeline.
func New() Pipeline { return Pipeline{} }

// Decode applies dict's /Filter chain (a single name or an array of names,
// each with a matching /DecodeParms entry) to raw, returning the fully
// decoded body. DCTDecode and JPXDecode legs are passed through unchanged:
// neither this core nor any SPEC_FULL.md component consumes decoded image
// samples, so decoding JPEG/JPEG2000 bodies has no caller (see DESIGN.md).
func (Pipeline) Decode(dict pdfval.Dict, raw []byte) ([]byte, error) {
	names, paramsList, err := filterChain(dict)
	if err != nil {
		return nil, err
	}

	data := raw
	for i, name := range names {
		data, err = decodeOne(name, paramsList[i], data)
		if err != nil {
			return nil, errs.WithFrame(err, "filters.Decode", "filter %s (leg %d)", name, i)
		}
	}
	return data, nil
}

func decodeOne(name pdfval.Name, params pdfval.Dict, data []byte) ([]byte, error) {
	switch name {
	case Flate:
		return decodeFlate(params, data)
	case LZW:
		return decodeLZW(params, data)
	case ASCII85:
		return decodeASCII85(data)
	case ASCIIHex:
		return decodeASCIIHex(data)
	case RunLength:
		return decodeRunLength(data)
	case CCITTFax:
		return decodeCCITT(params, data)
	case DCT, "JPXDecode":
		return data, nil
	default:
		return nil, errs.New(errs.InvalidObject, "unsupported filter %q", name)
	}
}

// filterChain normalizes /Filter + /DecodeParms into parallel slices,
// mirroring the single-name-or-array duality the PDF spec allows for both
// entries (7.4.1).
func filterChain(dict pdfval.Dict) ([]pdfval.Name, []pdfval.Dict, error) {
	filterVal, ok := dict.Get("Filter")
	if !ok {
		return nil, nil, nil
	}

	var names []pdfval.Name
	switch t := filterVal.(type) {
	case pdfval.Name:
		names = []pdfval.Name{t}
	case pdfval.Array:
		for _, v := range t {
			n, ok := v.(pdfval.Name)
			if !ok {
				return nil, nil, errs.New(errs.InvalidObject, "/Filter array entry is not a name")
			}
			names = append(names, n)
		}
	default:
		return nil, nil, errs.New(errs.InvalidObject, "/Filter must be a name or array of names")
	}

	params := make([]pdfval.Dict, len(names))
	if pv, ok := dict.Get("DecodeParms"); ok {
		switch t := pv.(type) {
		case pdfval.Dict:
			if len(names) > 0 {
				params[0] = t
			}
		case pdfval.Array:
			for i := 0; i < len(names) && i < len(t); i++ {
				if d, ok := t[i].(pdfval.Dict); ok {
					params[i] = d
				}
			}
		case pdfval.Null:
			// no parameters for any leg
		default:
			return nil, nil, errs.New(errs.InvalidObject, "/DecodeParms must be a dict, array, or null")
		}
	}

	return names, params, nil
}

func intParam(params pdfval.Dict, key pdfval.Name, def int) (int, error) {
	v, ok := params.Get(key)
	if !ok {
		return def, nil
	}
	i, ok := v.(pdfval.Int)
	if !ok {
		return 0, errs.New(errs.InvalidObject, "/%s must be an integer", key)
	}
	return int(i), nil
}

func boolParam(params pdfval.Dict, key pdfval.Name, def bool) (bool, error) {
	v, ok := params.Get(key)
	if !ok {
		return def, nil
	}
	b, ok := v.(pdfval.Bool)
	if !ok {
		return false, errs.New(errs.InvalidObject, "/%s must be a boolean", key)
	}
	return bool(b), nil
}
