package filters

import (
	"io"

	"github.com/kpdf/xrefcore/errs"
)

// predictorParams is the PNG/TIFF prediction postprocessing shared by
// FlateDecode and LZWDecode (PDF spec 7.4.4.4), ported from the teacher's
// flateDecodeParams/decodePostProcess/processRow/filterPaeth - the only part
// of the teacher's filter code this pipeline reuses verbatim, since the
// postprocessing math itself has nothing PDF-core-specific left to adapt.
type predictorParams struct {
	predictor int
	colors    int
	bpc       int
	columns   int
}

func readPredictorParams(d map[string]int) (predictorParams, error) {
	predictor := d["Predictor"]
	switch predictor {
	case 0, 1, 2, 10, 11, 12, 13, 14, 15:
	default:
		return predictorParams{}, errs.New(errs.InvalidObject, "unexpected /Predictor value %d", predictor)
	}

	colors, found := d["Colors"]
	if !found {
		colors = 1
	} else if colors <= 0 {
		return predictorParams{}, errs.New(errs.InvalidObject, "/Colors must be > 0")
	}

	bpc, found := d["BitsPerComponent"]
	if !found {
		bpc = 8
	} else {
		switch bpc {
		case 1, 2, 4, 8, 16:
		default:
			return predictorParams{}, errs.New(errs.InvalidObject, "unexpected /BitsPerComponent value %d", bpc)
		}
	}

	columns, found := d["Columns"]
	if !found {
		columns = 1
	}

	return predictorParams{predictor: predictor, colors: colors, bpc: bpc, columns: columns}, nil
}

func (p predictorParams) rowSize() int {
	return p.bpc * p.colors * p.columns / 8
}

func (p predictorParams) postProcess(r io.Reader) ([]byte, error) {
	if p.predictor == 0 || p.predictor == 1 {
		return io.ReadAll(r)
	}

	bytesPerPixel := (p.bpc*p.colors + 7) / 8
	rowSize := p.rowSize()
	if p.predictor != 2 {
		rowSize++ // PNG prediction prefixes each row with a filter-type byte.
	}

	cr := make([]byte, rowSize)
	pr := make([]byte, rowSize)
	var out []byte

	for {
		if _, err := io.ReadFull(r, cr); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}

		d, err := p.processRow(pr, cr, bytesPerPixel)
		if err != nil {
			return nil, err
		}
		out = append(out, d...)
		pr, cr = cr, pr
	}

	if p.rowSize() != 0 && len(out)%p.rowSize() != 0 {
		return nil, errs.New(errs.InvalidObject, "predictor postprocessing left %d bytes, not a multiple of row size %d", len(out), p.rowSize())
	}
	return out, nil
}

func (p predictorParams) processRow(pr, cr []byte, bytesPerPixel int) ([]byte, error) {
	if p.predictor == 2 {
		return applyHorizontalDiff(cr, p.colors), nil
	}

	cdat := cr[1:]
	pdat := pr[1:]
	filterType := int(cr[0])

	switch filterType {
	case 0:
		// none
	case 1:
		for i := bytesPerPixel; i < len(cdat); i++ {
			cdat[i] += cdat[i-bytesPerPixel]
		}
	case 2:
		for i, b := range pdat {
			cdat[i] += b
		}
	case 3:
		for i := 0; i < bytesPerPixel; i++ {
			cdat[i] += pdat[i] / 2
		}
		for i := bytesPerPixel; i < len(cdat); i++ {
			cdat[i] += uint8((int(cdat[i-bytesPerPixel]) + int(pdat[i])) / 2)
		}
	case 4:
		paethFilter(cdat, pdat, bytesPerPixel)
	default:
		return nil, errs.New(errs.InvalidObject, "unsupported PNG row filter type %d", filterType)
	}
	return cdat, nil
}

func applyHorizontalDiff(row []byte, colors int) []byte {
	for i := 1; i < len(row)/colors; i++ {
		for j := 0; j < colors; j++ {
			row[i*colors+j] += row[(i-1)*colors+j]
		}
	}
	return row
}

func paethFilter(cdat, pdat []byte, bytesPerPixel int) {
	var a, b, c, pa, pb, pc int32
	for i := 0; i < bytesPerPixel; i++ {
		a, c = 0, 0
		for j := i; j < len(cdat); j += bytesPerPixel {
			b = int32(pdat[j])
			rawPa := b - c
			rawPb := a - c
			pc = abs32(rawPa + rawPb)
			pa = abs32(rawPa)
			pb = abs32(rawPb)
			switch {
			case pa <= pb && pa <= pc:
			case pb <= pc:
				a = b
			default:
				a = c
			}
			a += int32(cdat[j])
			a &= 0xff
			cdat[j] = uint8(a)
			c = b
		}
	}
}

func abs32(x int32) int32 {
	if x < 0 {
		return -x
	}
	return x
}
