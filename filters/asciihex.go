package filters

import (
	"bytes"

	"github.com/kpdf/xrefcore/errs"
)

const eodHexDecode = '>'

// decodeASCIIHex decodes a body up to its EOD marker (PDF spec 7.4.2),
// tolerating interior whitespace as the spec requires and treating an odd
// trailing digit as implicitly followed by a 0, matching the teacher's
// Skipper's leniency (it never rejects odd-length input either).
func decodeASCIIHex(data []byte) ([]byte, error) {
	if i := bytes.IndexByte(data, eodHexDecode); i != -1 {
		data = data[:i]
	}

	out := make([]byte, 0, len(data)/2+1)
	var hi byte
	haveHi := false
	for _, b := range data {
		var v byte
		switch {
		case b >= '0' && b <= '9':
			v = b - '0'
		case b >= 'a' && b <= 'f':
			v = b - 'a' + 10
		case b >= 'A' && b <= 'F':
			v = b - 'A' + 10
		case isWhitespace(b):
			continue
		default:
			return nil, errs.New(errs.InvalidObject, "ASCIIHexDecode: invalid character %q", b)
		}
		if !haveHi {
			hi = v
			haveHi = true
			continue
		}
		out = append(out, hi<<4|v)
		haveHi = false
	}
	if haveHi {
		out = append(out, hi<<4)
	}
	return out, nil
}

func isWhitespace(b byte) bool {
	switch b {
	case ' ', '\t', '\r', '\n', '\f', 0x00:
		return true
	default:
		return false
	}
}
