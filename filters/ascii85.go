package filters

import (
	"bytes"
	"encoding/ascii85"
	"io"

	"github.com/kpdf/xrefcore/errs"
)

const eodASCII85 = "~>"

// decodeASCII85 decodes a body up to its EOD marker (PDF spec 7.4.3), using
// the standard library's encoding/ascii85 - the teacher only implements a
// Skipper (find the EOD without decoding, for inline images of unknown
// length); this core always knows the full body already, so it decodes
// directly instead of re-deriving ascii85's decode table.
func decodeASCII85(data []byte) ([]byte, error) {
	if i := bytes.Index(data, []byte(eodASCII85)); i != -1 {
		data = data[:i]
	}
	decoded := make([]byte, len(data))
	n, _, err := ascii85.Decode(decoded, data, true)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, errs.Wrap(errs.InvalidObject, err)
	}
	return decoded[:n], nil
}
