package filters

import (
	"bytes"
	"compress/zlib"

	"github.com/kpdf/xrefcore/errs"
	"github.com/kpdf/xrefcore/pdfval"
)

func decodeFlate(params pdfval.Dict, data []byte) ([]byte, error) {
	rc, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, errs.Wrap(errs.InvalidObject, err)
	}
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

func predictorParamsFromDict(params pdfval.Dict) (predictorParams, error) {
	predictor, err := intParam(params, "Predictor", 1)
	if err != nil {
		return predictorParams{}, err
	}
	colors, err := intParam(params, "Colors", 1)
	if err != nil {
		return predictorParams{}, err
	}
	bpc, err := intParam(params, "BitsPerComponent", 8)
	if err != nil {
		return predictorParams{}, err
	}
	columns, err := intParam(params, "Columns", 1)
	if err != nil {
		return predictorParams{}, err
	}
	return readPredictorParams(map[string]int{
		"Predictor":        predictor,
		"Colors":           colors,
		"BitsPerComponent": bpc,
		"Columns":          columns,
	})
}
