package filters

import (
	"github.com/kpdf/xrefcore/errs"
)

const eodRunLength = 0x80

// decodeRunLength implements PDF's RunLengthDecode (spec 7.4.5), adapted
// from the teacher's SkipperRunLength.decode into one that collects output
// bytes instead of discarding them.
func decodeRunLength(data []byte) ([]byte, error) {
	var out []byte
	i := 0
	for {
		if i >= len(data) {
			return nil, errs.New(errs.InvalidObject, "RunLengthDecode: missing EOD marker")
		}
		b := data[i]
		i++
		if b == eodRunLength {
			return out, nil
		}
		if b < 0x80 {
			count := int(b) + 1
			if i+count > len(data) {
				return nil, errs.New(errs.InvalidObject, "RunLengthDecode: literal run truncated")
			}
			out = append(out, data[i:i+count]...)
			i += count
			continue
		}
		count := 257 - int(b)
		if i >= len(data) {
			return nil, errs.New(errs.InvalidObject, "RunLengthDecode: repeat run truncated")
		}
		rep := data[i]
		i++
		for j := 0; j < count; j++ {
			out = append(out, rep)
		}
	}
}
