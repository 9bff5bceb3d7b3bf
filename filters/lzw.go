package filters

import (
	"bytes"

	"github.com/hhrutter/lzw"

	"github.com/kpdf/xrefcore/errs"
	"github.com/kpdf/xrefcore/pdfval"
)

// decodeLZW uses the teacher's LZW dependency because the standard library's
// compress/lzw has no EarlyChange option, which PDF's variant requires
// (PDF spec 7.4.4.2).
func decodeLZW(params pdfval.Dict, data []byte) ([]byte, error) {
	earlyChange, err := boolParamFromInt(params, "EarlyChange", true)
	if err != nil {
		return nil, err
	}

	rc := lzw.NewReader(bytes.NewReader(data), earlyChange)
	defer rc.Close()

	p, err := predictorParamsFromDict(params)
	if err != nil {
		return nil, err
	}
	out, err := p.postProcess(rc)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidObject, err)
	}
	return out, nil
}

// boolParamFromInt reads a parameter PDF encodes as an integer (0/1) rather
// than a boolean, as /EarlyChange is (PDF spec Table 8).
func boolParamFromInt(params pdfval.Dict, key pdfval.Name, def bool) (bool, error) {
	v, ok := params.Get(key)
	if !ok {
		return def, nil
	}
	i, ok := v.(pdfval.Int)
	if !ok {
		return false, errs.New(errs.InvalidObject, "/%s must be an integer", key)
	}
	return i != 0, nil
}
