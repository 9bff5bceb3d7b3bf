// Package crypt is the reference implementation of the encryption gate
// (SPEC_FULL.md, component H): the standard security handler, revisions
// 2/3/4/6, RC4 and AES-128/256. The core depends only on the
// Authenticator/EncryptSession/Decryptor interfaces this package satisfies;
// nothing in xref, objstm, store, or pdfparse imports this package's
// concrete types.
//
// Grounded on the ScriptRock-pdf teacher's internal/decrypter package (the
// R2-4 key derivation and the R6 Algorithm 2.B hash) and on
// benoitkugler-pdf's model/encryption*.go and reader/file/encryption.go (the
// encryption-dictionary field layout and the per-object RC4/AES key mix),
// using only standard-library crypto primitives as both teachers do.
package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rc4"

	"github.com/kpdf/xrefcore/errs"
	"github.com/kpdf/xrefcore/pdfparse"
	"github.com/kpdf/xrefcore/pdfval"
)

// AuthResult reports which password class (if any) unlocked a session.
type AuthResult int

const (
	Failed AuthResult = iota
	User
	Owner
)

// passwordPad is the fixed 32-byte padding string used by Algorithm 3.2/3.3
// (ISO 32000-1, 7.6.3.3) whenever a supplied password is shorter than 32
// bytes.
var passwordPad = []byte{
	0x28, 0xBF, 0x4E, 0x5E, 0x4E, 0x75, 0x8A, 0x41, 0x64, 0x00, 0x4E, 0x56, 0xFF, 0xFA, 0x01, 0x08,
	0x2E, 0x2E, 0x00, 0xB6, 0xD0, 0x68, 0x3E, 0x80, 0x2F, 0x0C, 0xA9, 0xFE, 0x64, 0x53, 0x69, 0x7A,
}

// Authenticator is the entry point into the encryption gate: it parses a
// document's /Encrypt dictionary into a Session, without attempting
// authentication yet.
type Authenticator struct{}

// NewAuthenticator returns a ready-to-use Authenticator. It carries no
// state; every document gets its own Session from FromObject.
func NewAuthenticator() Authenticator { return Authenticator{} }

// dictEntry describes one standard-security-handler field, read directly
// (never through the object store: the encryption dictionary must parse
// unencrypted, SPEC_FULL.md 4.H).
type dict = pdfval.Dict

// FromObject parses encryptDict (the direct, already-resolved value of the
// trailer's /Encrypt entry) and id (the two /ID string halves) into a
// Session. It does not attempt a password yet; call Session.Authenticate for
// that.
func (Authenticator) FromObject(encryptDict pdfval.Value, id [2]string) (*Session, error) {
	d, ok := encryptDict.(pdfval.Dict)
	if !ok {
		return nil, errs.New(errs.InvalidEncryptionDict, "encryption dictionary is not a direct dictionary")
	}

	filter, _ := directName(d, "Filter")
	if filter != "" && filter != "Standard" {
		return nil, errs.New(errs.InvalidEncryptionDict, "unsupported security handler %q", filter)
	}

	v, _ := directInt(d, "V", 0)
	r, _ := directInt(d, "R", 0)
	if r < 2 || r == 5 || r > 6 {
		return nil, errs.New(errs.InvalidEncryptionDict, "unsupported standard security handler revision R=%d", r)
	}

	length, _ := directInt(d, "Length", 40)
	if length%8 != 0 || length < 40 || (length > 128 && length != 256) {
		return nil, errs.New(errs.InvalidEncryptionDict, "unsupported key length %d bits", length)
	}

	o, err := directStringBytes(d, "O")
	if err != nil {
		return nil, err
	}
	u, err := directStringBytes(d, "U")
	if err != nil {
		return nil, err
	}
	p, _ := directInt(d, "P", 0)

	s := &Session{
		v:      v,
		r:      r,
		length: length,
		o:      o,
		u:      u,
		p:      int32(p),
		id:     []byte(id[0]),
	}

	if r == 6 {
		s.ue, _ = directStringBytes(d, "UE")
		s.oe, _ = directStringBytes(d, "OE")
		s.perms, _ = directStringBytes(d, "Perms")
	}

	s.aes, err = standardHandlerUsesAES(v, d)
	if err != nil {
		return nil, err
	}

	return s, nil
}

// standardHandlerUsesAES decides RC4 vs AES from /V and, for V>=4, the
// crypt filter named by /StmF in /CF - ported from benoitkugler-pdf's
// supportedCFEntry and reader/file/encryption.go's setupEncryption.
func standardHandlerUsesAES(v int, d dict) (bool, error) {
	if v < 4 {
		return false, nil
	}
	stmF, _ := directName(d, "StmF")
	if stmF == "" || stmF == "Identity" {
		return false, nil
	}
	cf, ok := d.Get("CF")
	if !ok {
		return false, errs.New(errs.InvalidEncryptionDict, "/StmF %q has no matching /CF entry", stmF)
	}
	cfDict, ok := cf.(pdfval.Dict)
	if !ok {
		return false, errs.New(errs.InvalidEncryptionDict, "/CF must be a dictionary")
	}
	entryVal, ok := cfDict.Get(pdfval.Name(stmF))
	if !ok {
		return false, errs.New(errs.InvalidEncryptionDict, "/CF missing entry for /StmF %q", stmF)
	}
	entry, ok := entryVal.(pdfval.Dict)
	if !ok {
		return false, errs.New(errs.InvalidEncryptionDict, "/CF entry %q must be a dictionary", stmF)
	}
	cfm, _ := directName(entry, "CFM")
	switch cfm {
	case "", "V2":
		return false, nil
	case "AESV2", "AESV3":
		return true, nil
	default:
		return false, errs.New(errs.InvalidEncryptionDict, "unsupported /CFM %q", cfm)
	}
}

func directName(d dict, key pdfval.Name) (pdfval.Name, bool) {
	v, ok := d.Get(key)
	if !ok {
		return "", false
	}
	n, ok := v.(pdfval.Name)
	return n, ok
}

func directInt(d dict, key pdfval.Name, def int) (int, bool) {
	v, ok := d.Get(key)
	if !ok {
		return def, false
	}
	i, ok := v.(pdfval.Int)
	if !ok {
		return def, false
	}
	return int(i), true
}

func directStringBytes(d dict, key pdfval.Name) ([]byte, error) {
	v, ok := d.Get(key)
	if !ok {
		return nil, errs.New(errs.InvalidEncryptionDict, "missing /%s", key)
	}
	s, ok := v.(pdfval.String)
	if !ok {
		return nil, errs.New(errs.InvalidEncryptionDict, "/%s must be a string", key)
	}
	return s.Bytes, nil
}

// decryptKey derives the per-object RC4/AES key for revisions 2-4 (Algorithm
// 1, ISO 32000-1 7.6.2), appending the "sAlT" constant for the AES variant -
// ported verbatim from benoitkugler-pdf's encrypt.decryptKey.
func (s *Session) decryptKeyLegacy(ref pdfval.Reference) []byte {
	b := append(append([]byte{}, s.key...),
		byte(ref.Num), byte(ref.Num>>8), byte(ref.Num>>16),
		byte(ref.Gen), byte(ref.Gen>>8),
	)
	if s.aes {
		b = append(b, "sAlT"...)
	}
	sum := md5.Sum(b)

	l := len(s.key) + 5
	if l < 16 {
		return sum[:l]
	}
	return sum[:]
}

func decryptRC4(buf, key []byte) ([]byte, error) {
	c, err := rc4.NewCipher(key)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidEncryptionDict, err)
	}
	c.XORKeyStream(buf, buf)
	return buf, nil
}

func decryptAESCBC(b, key []byte) ([]byte, error) {
	if len(b) < aes.BlockSize {
		return nil, errs.New(errs.InvalidObject, "AES ciphertext shorter than one block")
	}
	if len(b)%aes.BlockSize != 0 {
		return nil, errs.New(errs.InvalidObject, "AES ciphertext is not a multiple of the block size")
	}

	cb, err := aes.NewCipher(key)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidEncryptionDict, err)
	}

	iv := make([]byte, aes.BlockSize)
	copy(iv, b[:aes.BlockSize])
	data := b[aes.BlockSize:]
	if len(data) == 0 {
		return data, nil
	}

	mode := cipher.NewCBCDecrypter(cb, iv)
	mode.CryptBlocks(data, data)

	// Strip PKCS#7-style padding - not every writer pads, so only trust a
	// plausible trailing length byte, as the teacher's decryptAESBytes does.
	if n := len(data); n > 0 && int(data[n-1]) <= aes.BlockSize {
		data = data[:n-int(data[n-1])]
	}
	return data, nil
}

// sessionDecryptor adapts a Session to pdfparse.Decryptor. ref is accepted
// on every call (matching pdfparse's per-string/per-stream interface) rather
// than stored at WrapObject time, since R5/R6 sessions use one document-wide
// key regardless of which object is being read.
type sessionDecryptor struct {
	session *Session
}

func (d sessionDecryptor) DecryptString(ref pdfval.Reference, plain []byte) ([]byte, error) {
	return d.session.decrypt(ref, plain)
}

func (d sessionDecryptor) DecryptStream(ref pdfval.Reference, plain []byte) ([]byte, error) {
	return d.session.decrypt(ref, plain)
}

var _ pdfparse.Decryptor = sessionDecryptor{}

func (s *Session) decrypt(ref pdfval.Reference, plain []byte) ([]byte, error) {
	if s.authResult == Failed {
		return nil, errs.New(errs.InvalidPassword, "document is not authenticated")
	}
	if len(plain) == 0 {
		return plain, nil
	}

	key := s.key
	if s.r < 5 {
		key = s.decryptKeyLegacy(ref)
	}

	if s.aes {
		return decryptAESCBC(plain, key)
	}
	return decryptRC4(append([]byte{}, plain...), key)
}

// WrapObject returns the Decryptor 4.C's parser uses for every string and
// stream body belonging to ref.
func (s *Session) WrapObject(ref pdfval.Reference) pdfparse.Decryptor {
	return sessionDecryptor{session: s}
}
