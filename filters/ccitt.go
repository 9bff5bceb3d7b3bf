package filters

import (
	"bytes"
	"io"

	"golang.org/x/image/ccitt"

	"github.com/kpdf/xrefcore/errs"
	"github.com/kpdf/xrefcore/pdfval"
)

// decodeCCITT maps PDF's CCITTFaxDecode parameters (spec Table 11) onto
// golang.org/x/image/ccitt's Group3/Group4 reader. Only the common K<0
// (pure Group 4) and K==0 (pure Group 3, 1-D) cases map cleanly onto the
// library's two modes; a K>0 (mixed 1-D/2-D Group 3) stream is rejected,
// noted in DESIGN.md as an accepted gap in the reference pipeline rather
// than the hard core it drives.
func decodeCCITT(params pdfval.Dict, data []byte) ([]byte, error) {
	k, err := intParam(params, "K", 0)
	if err != nil {
		return nil, err
	}
	columns, err := intParam(params, "Columns", 1728)
	if err != nil {
		return nil, err
	}
	rows, err := intParam(params, "Rows", 0)
	if err != nil {
		return nil, err
	}
	blackIs1, err := boolParam(params, "BlackIs1", false)
	if err != nil {
		return nil, err
	}
	byteAlign, err := boolParam(params, "EncodedByteAlign", false)
	if err != nil {
		return nil, err
	}

	var mode ccitt.Mode
	switch {
	case k < 0:
		mode = ccitt.Group4
	case k == 0:
		mode = ccitt.Group3
	default:
		return nil, errs.New(errs.InvalidObject, "CCITTFaxDecode: mixed 1-D/2-D Group 3 (K=%d) is not supported", k)
	}

	opts := &ccitt.Options{Invert: !blackIs1, Align: byteAlign}
	rc := ccitt.NewReader(bytes.NewReader(data), ccitt.MSB, mode, columns, rows, opts)
	defer rc.Close()

	out, err := io.ReadAll(rc)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidObject, err)
	}
	return out, nil
}
