// Package pdftoken implements the lowest level of PDF processing: splitting
// a byte buffer into the eleven PDF token kinds (SPEC_FULL.md, component B).
// It is a direct, trimmed adaptation of the teacher's
// parser/tokenizer/token.go: the PostScript-only extensions (Procs,
// CharStrings, used for Type1 font programs) are dropped since they are
// outside this core's scope, leaving exactly the eleven kinds the PDF grammar
// itself needs.
package pdftoken

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/kpdf/xrefcore/errs"
)

// Kind is the classification of a Token.
type Kind uint8

const (
	EOF Kind = iota
	Float
	Integer
	String
	StringHex
	Name
	StartArray
	EndArray
	StartDic
	EndDic
	Other // bare keywords and operators: true, false, null, obj, R, stream, ...
)

func (k Kind) String() string {
	switch k {
	case EOF:
		return "EOF"
	case Float:
		return "Float"
	case Integer:
		return "Integer"
	case String:
		return "String"
	case StringHex:
		return "StringHex"
	case Name:
		return "Name"
	case StartArray:
		return "StartArray"
	case EndArray:
		return "EndArray"
	case StartDic:
		return "StartDic"
	case EndDic:
		return "EndDic"
	case Other:
		return "Other"
	default:
		return "<invalid token>"
	}
}

func isWhitespace(ch byte) bool {
	switch ch {
	case 0, 9, 10, 12, 13, 32:
		return true
	default:
		return false
	}
}

// isDelimiter reports whitespace and the PDF delimiter characters.
func isDelimiter(ch byte) bool {
	switch ch {
	case 40, 41, 60, 62, 91, 93, 123, 125, 47, 37: // ( ) < > [ ] { } / %
		return true
	default:
		return isWhitespace(ch)
	}
}

func isDigit(ch byte) bool { return ch >= '0' && ch <= '9' }

// Token is one lexical unit. Value is only meaningful for Float, Integer,
// String, StringHex, Name and Other; it borrows the tokenizer's internal
// buffer copy semantics are the caller's responsibility past the next call.
type Token struct {
	Kind  Kind
	Value string
}

func (t Token) Int() (int, error) {
	f, err := t.Float64()
	return int(f), err
}

func (t Token) Float64() (float64, error) {
	return strconv.ParseFloat(t.Value, 64)
}

func (t Token) IsNumber() bool { return t.Kind == Integer || t.Kind == Float }

func (t Token) IsOther(v string) bool { return t.Kind == Other && t.Value == v }

func (t Token) startsBinary() bool {
	return t.Kind == Other && (t.Value == "stream" || t.Value == "ID")
}

// Tokenizer produces tokens from an in-memory buffer (the xref walker and
// object parser both load the byte span they need into memory first via
// device.Device, exactly like the teacher's ctx.readAt + tok.NewTokenizer
// pairing). It keeps two tokens of lookahead because distinguishing
// `12 0 obj` (an object header) or `12 0 R` (a reference) from a bare
// integer requires peeking two tokens ahead.
type Tokenizer struct {
	data []byte

	pos int // read cursor used while scanning the next raw token

	currentPos int // end of the "current" (already returned) token
	nextPos    int // end of the n+1 token

	aToken Token
	aError error

	aaToken Token
	aaError error
}

// NewTokenizer wraps a byte buffer for tokenization.
func NewTokenizer(data []byte) *Tokenizer {
	tk := &Tokenizer{data: data}
	tk.initiateAt(0)
	return tk
}

func (tk *Tokenizer) initiateAt(pos int) {
	tk.currentPos = pos
	tk.pos = pos
	tk.aToken, tk.aError = tk.nextToken(Token{})
	tk.nextPos = tk.pos
	tk.aaToken, tk.aaError = tk.nextToken(tk.aToken)
}

// CurrentPosition returns the offset immediately after the last token
// returned by NextToken (or 0 if none has been consumed yet).
func (tk *Tokenizer) CurrentPosition() int { return tk.currentPos }

// SetPosition rewinds (or fast-forwards) the tokenizer, re-priming its
// two-token lookahead. Used by the variant parser's numeric/reference
// disambiguation and by its relaxed-dictionary retry.
func (tk *Tokenizer) SetPosition(pos int) { tk.initiateAt(pos) }

// PeekToken returns the next token without consuming it.
func (tk *Tokenizer) PeekToken() (Token, error) { return tk.aToken, tk.aError }

// PeekPeekToken returns the token after that, also without consuming it.
func (tk *Tokenizer) PeekPeekToken() (Token, error) { return tk.aaToken, tk.aaError }

// NextToken consumes and returns the next token. At EOF it returns a Kind
// EOF token with a nil error, not an error - callers test Kind.
func (tk *Tokenizer) NextToken() (Token, error) {
	t, err := tk.PeekToken()
	tk.aToken, tk.aError = tk.aaToken, tk.aaError
	tk.currentPos = tk.nextPos
	tk.nextPos = tk.pos

	if tk.aaToken.startsBinary() {
		// `stream` / inline-image `ID` introduce binary data the tokenizer
		// cannot itself delimit; stop here and let the object parser take
		// over with SkipBytes, exactly as the teacher's tokenizer does.
		tk.aaToken, tk.aaError = Token{Kind: EOF}, nil
	} else {
		tk.aaToken, tk.aaError = tk.nextToken(tk.aaToken)
	}
	return t, err
}

// HasEOLBeforeToken reports whether an end-of-line sequence appears between
// the current position and the next token - used by the relaxed dictionary
// parser to recognize a missing value terminated only by a newline.
func (tk *Tokenizer) HasEOLBeforeToken() bool {
	for i := tk.currentPos; i < tk.nextPos && i < len(tk.data); i++ {
		if tk.data[i] == '\n' || tk.data[i] == '\r' {
			return true
		}
		if !isWhitespace(tk.data[i]) {
			break
		}
	}
	return false
}

// SkipBytes consumes exactly n raw bytes from the current position (used to
// step over `stream\n...\nendstream` bodies and inline image data) and
// re-primes lookahead from the new position.
func (tk *Tokenizer) SkipBytes(n int) []byte {
	target := tk.currentPos + n
	if target > len(tk.data) {
		target = len(tk.data)
	}
	out := tk.data[tk.currentPos:target]
	tk.initiateAt(target)
	return out
}

// Bytes returns the remaining unconsumed buffer.
func (tk *Tokenizer) Bytes() []byte {
	if tk.currentPos >= len(tk.data) {
		return nil
	}
	return tk.data[tk.currentPos:]
}

// StreamPosition returns, relative to the start of the buffer, the offset
// immediately following the `stream` keyword's mandated EOL - the spot where
// a stream body actually begins.
func (tk *Tokenizer) StreamPosition() int {
	pos := tk.currentPos
	if pos < len(tk.data) && tk.data[pos] == '\r' {
		pos++
	}
	if pos < len(tk.data) && tk.data[pos] == '\n' {
		pos++
	}
	return pos
}

func isHexChar(c byte) (uint8, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return c, false
}

func (tk *Tokenizer) read() (byte, bool) {
	if tk.pos >= len(tk.data) {
		return 0, false
	}
	ch := tk.data[tk.pos]
	tk.pos++
	return ch, true
}

func (tk *Tokenizer) nextToken(previous Token) (Token, error) {
	ch, ok := tk.read()
	for ok && isWhitespace(ch) {
		ch, ok = tk.read()
	}
	if !ok {
		return Token{Kind: EOF}, nil
	}

	var outBuf []byte
	switch ch {
	case '[':
		return Token{Kind: StartArray}, nil
	case ']':
		return Token{Kind: EndArray}, nil
	case '/':
		for {
			ch, ok = tk.read()
			if !ok || isDelimiter(ch) {
				break
			}
			outBuf = append(outBuf, ch)
			if ch == '#' {
				h1, _ := tk.read()
				h2, _ := tk.read()
				if _, err := hex.DecodeString(string([]byte{h1, h2})); err != nil {
					return Token{}, errs.New(errs.InvalidName, "corrupted name escape #%c%c", h1, h2)
				}
				outBuf = append(outBuf, h1, h2)
			}
		}
		if ok {
			tk.pos--
		}
		return Token{Kind: Name, Value: string(outBuf)}, nil
	case '>':
		ch, ok = tk.read()
		if ch != '>' {
			return Token{}, errors.New("'>' not expected outside of '>>'")
		}
		return Token{Kind: EndDic}, nil
	case '<':
		v1, ok1 := tk.read()
		if v1 == '<' {
			return Token{Kind: StartDic}, nil
		}
		var v2 byte
		var ok2 bool
		for {
			for ok1 && isWhitespace(v1) {
				v1, ok1 = tk.read()
			}
			if v1 == '>' {
				break
			}
			v1, ok1 = isHexChar(v1)
			if !ok1 {
				return Token{}, fmt.Errorf("invalid hex char %q in hex string", v1)
			}
			v2, ok2 = tk.read()
			for ok2 && isWhitespace(v2) {
				v2, ok2 = tk.read()
			}
			if v2 == '>' {
				outBuf = append(outBuf, v1<<4)
				break
			}
			v2, ok2 = isHexChar(v2)
			if !ok2 {
				return Token{}, fmt.Errorf("invalid hex char %q in hex string", v2)
			}
			outBuf = append(outBuf, (v1<<4)+v2)
			v1, ok1 = tk.read()
		}
		return Token{Kind: StringHex, Value: string(outBuf)}, nil
	case '%':
		ch, ok = tk.read()
		for ok && ch != '\r' && ch != '\n' {
			ch, ok = tk.read()
		}
		return tk.nextToken(previous)
	case '(':
		nesting := 0
		for {
			ch, ok = tk.read()
			if !ok {
				break
			}
			if ch == '(' {
				nesting++
			} else if ch == ')' {
				nesting--
			} else if ch == '\\' {
				lineBreak := false
				ch, ok = tk.read()
				switch ch {
				case 'n':
					ch = '\n'
				case 'r':
					ch = '\r'
				case 't':
					ch = '\t'
				case 'b':
					ch = '\b'
				case 'f':
					ch = '\f'
				case '(', ')', '\\':
				case '\r':
					lineBreak = true
					ch, ok = tk.read()
					if ch != '\n' {
						tk.pos--
					}
				case '\n':
					lineBreak = true
				default:
					if ch < '0' || ch > '7' {
						break
					}
					octal := ch - '0'
					ch, ok = tk.read()
					if ch < '0' || ch > '7' {
						tk.pos--
						ch = octal
						break
					}
					octal = (octal << 3) + ch - '0'
					ch, ok = tk.read()
					if ch < '0' || ch > '7' {
						tk.pos--
						ch = octal
						break
					}
					octal = (octal << 3) + ch - '0'
					ch = octal & 0xff
				}
				if lineBreak {
					continue
				}
				if !ok {
					break
				}
			} else if ch == '\r' {
				ch, ok = tk.read()
				if !ok {
					break
				}
				if ch != '\n' {
					tk.pos--
				}
				ch = '\n'
			}
			if nesting == -1 {
				break
			}
			outBuf = append(outBuf, ch)
		}
		if !ok {
			return Token{}, errs.New(errs.UnexpectedEof, "unterminated literal string")
		}
		return Token{Kind: String, Value: string(outBuf)}, nil
	default:
		tk.pos--
		if token, ok := tk.readNumber(); ok {
			return token, nil
		}
		ch, _ = tk.read()
		outBuf = append(outBuf, ch)
		ch, ok = tk.read()
		for ok && !isDelimiter(ch) {
			outBuf = append(outBuf, ch)
			ch, ok = tk.read()
		}
		if ok {
			tk.pos--
		}
		return Token{Kind: Other, Value: string(outBuf)}, nil
	}
}

// readNumber accepts standard PDF numerics plus, leniently, the PostScript
// radix (`16#FF`) and exponent (`6.02E23`) extensions some generators emit;
// it returns false (without consuming) if the input is not a number at all.
func (tk *Tokenizer) readNumber() (Token, bool) {
	markedPos := tk.pos

	sb, radix := &strings.Builder{}, &strings.Builder{}
	c, ok := tk.read()
	hasDigit := false
	if c == '+' || c == '-' {
		sb.WriteByte(c)
		c, _ = tk.read()
	}

	for isDigit(c) {
		sb.WriteByte(c)
		c, ok = tk.read()
		hasDigit = true
	}

	if c == '.' {
		sb.WriteByte(c)
		c, _ = tk.read()
	} else if c == '#' {
		radix = sb
		sb = &strings.Builder{}
		c, _ = tk.read()
	} else if sb.Len() == 0 || !hasDigit {
		tk.pos = markedPos
		return Token{}, false
	} else if c == 'E' || c == 'e' {
		sb.WriteByte(c)
		c, ok = tk.read()
		if c == '-' {
			sb.WriteByte(c)
			c, ok = tk.read()
		}
	} else {
		if ok {
			tk.pos--
		}
		return Token{Value: sb.String(), Kind: Integer}, true
	}

	if isDigit(c) {
		sb.WriteByte(c)
		c, ok = tk.read()
	} else {
		tk.pos = markedPos
		return Token{}, false
	}

	for isDigit(c) {
		sb.WriteByte(c)
		c, ok = tk.read()
	}

	if ok {
		tk.pos--
	}
	if r := radix.String(); r != "" {
		intRadix, _ := strconv.Atoi(r)
		valInt, _ := strconv.ParseInt(sb.String(), intRadix, 64)
		return Token{Value: strconv.FormatInt(valInt, 10), Kind: Integer}, true
	}
	return Token{Value: sb.String(), Kind: Float}, true
}
