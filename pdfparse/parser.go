// Package pdfparse implements the recursive-descent variant parser
// (SPEC_FULL.md, component C): turning a token stream into the pdfval value
// model, including the numeric/indirect-reference disambiguation and the
// indirect-object ("N G obj ... endobj") reader used by both the xref
// walker and the object-stream decoder.
//
// It is grounded on the teacher's reader/parser/parser.go, adapted to
// produce pdfval.Value instead of model.Object and to make the recursion
// depth cap and string decryption hook explicit, both of which
// SPEC_FULL.md requires and the teacher leaves implicit or absent.
package pdfparse

import (
	"github.com/kpdf/xrefcore/errs"
	"github.com/kpdf/xrefcore/pdftoken"
	"github.com/kpdf/xrefcore/pdfval"
)

// DefaultRecursionLimit matches the teacher's convention of allowing deep
// but bounded nesting; SPEC_FULL.md fixes it at 500.
const DefaultRecursionLimit = 500

// Decryptor decrypts a single string or stream body for one object
// reference - the shape the encryption gate (component H) hands back to the
// parser, kept here as a minimal interface so pdfparse never depends on
// package crypt.
type Decryptor interface {
	DecryptString(ref pdfval.Reference, plain []byte) ([]byte, error)
	DecryptStream(ref pdfval.Reference, plain []byte) ([]byte, error)
}

// Parser turns tokens into pdfval values.
type Parser struct {
	tokens *pdftoken.Tokenizer

	// RecursionLimit bounds nested array/dict depth; zero means
	// DefaultRecursionLimit.
	RecursionLimit int

	// Decryptor, if non-nil, wraps every string literal encountered while
	// parsing. It is set per indirect-object read by the caller (xref /
	// object-stream code), never globally, since the encryption dictionary
	// and xref streams themselves must be parsed unencrypted.
	Decryptor Decryptor
	// CurrentRef is the reference of the object currently being parsed,
	// forwarded to Decryptor.
	CurrentRef pdfval.Reference

	depth int
}

// NewParser wraps a byte buffer for parsing.
func NewParser(data []byte) *Parser {
	return &Parser{tokens: pdftoken.NewTokenizer(data)}
}

// NewFromTokenizer reuses an existing tokenizer, e.g. one the xref walker
// has already advanced past an object header.
func NewFromTokenizer(tk *pdftoken.Tokenizer) *Parser {
	return &Parser{tokens: tk}
}

// Tokens exposes the underlying tokenizer for callers (xref section reader,
// object-stream decoder) that need to read raw tokens around a ParseValue
// call.
func (p *Parser) Tokens() *pdftoken.Tokenizer { return p.tokens }

func (p *Parser) limit() int {
	if p.RecursionLimit > 0 {
		return p.RecursionLimit
	}
	return DefaultRecursionLimit
}

// ParseValue reads one PDF value (SPEC_FULL.md, component C entry point
// ParseObject). Top-level callers should call this with depth 0; it enforces
// the recursion cap across the array/dict nesting it is responsible for.
func (p *Parser) ParseValue() (pdfval.Value, error) {
	return p.parseValue()
}

func (p *Parser) parseValue() (pdfval.Value, error) {
	tk, err := p.tokens.NextToken()
	if err != nil {
		return nil, errs.Wrap(errs.InvalidObject, err)
	}

	switch tk.Kind {
	case pdftoken.EOF:
		return nil, errs.New(errs.UnexpectedEof, "no value available")
	case pdftoken.Name:
		return pdfval.Name(tk.Value), nil
	case pdftoken.String:
		return p.decryptedString([]byte(tk.Value), pdfval.Literal)
	case pdftoken.StringHex:
		return p.decryptedString([]byte(tk.Value), pdfval.Hex)
	case pdftoken.StartArray:
		return p.parseArray()
	case pdftoken.StartDic:
		save := p.tokens.CurrentPosition()
		d, err := p.parseDict(false)
		if err != nil {
			p.tokens.SetPosition(save)
			d, err = p.parseDict(true)
		}
		if err != nil {
			return nil, err
		}
		return d, nil
	case pdftoken.Float:
		f, err := tk.Float64()
		if err != nil {
			return nil, errs.Wrap(errs.InvalidNumber, err)
		}
		return pdfval.Real(f), nil
	case pdftoken.Other:
		return p.parseOther(tk.Value)
	case pdftoken.Integer:
		return p.parseNumericOrRef(tk)
	default:
		return nil, errs.New(errs.InvalidDataType, "unexpected token kind %s", tk.Kind)
	}
}

func (p *Parser) decryptedString(raw []byte, kind pdfval.StringKind) (pdfval.Value, error) {
	if p.Decryptor != nil {
		dec, err := p.Decryptor.DecryptString(p.CurrentRef, raw)
		if err != nil {
			return nil, errs.Wrap(errs.InvalidObject, err)
		}
		raw = dec
	}
	return pdfval.String{Bytes: raw, Kind: kind}, nil
}

func (p *Parser) parseArray() (pdfval.Array, error) {
	p.depth++
	defer func() { p.depth-- }()
	if p.depth > p.limit() {
		return nil, errs.New(errs.RecursionLimit, "array nesting exceeds %d", p.limit())
	}

	arr := pdfval.Array{}
	for {
		tk, err := p.tokens.PeekToken()
		if err != nil {
			return nil, errs.Wrap(errs.InvalidObject, err)
		}
		switch tk.Kind {
		case pdftoken.EndArray:
			_, _ = p.tokens.NextToken()
			return arr, nil
		case pdftoken.EOF:
			return nil, errs.New(errs.InvalidObject, "unterminated array")
		default:
			v, err := p.parseValue()
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
	}
}

func (p *Parser) parseDict(relaxed bool) (pdfval.Dict, error) {
	p.depth++
	defer func() { p.depth-- }()
	if p.depth > p.limit() {
		return pdfval.Dict{}, errs.New(errs.RecursionLimit, "dict nesting exceeds %d", p.limit())
	}

	d := pdfval.NewDict()
	for {
		tk, err := p.tokens.PeekToken()
		if err != nil {
			return pdfval.Dict{}, errs.Wrap(errs.InvalidObject, err)
		}
		switch tk.Kind {
		case pdftoken.EndDic:
			_, _ = p.tokens.NextToken()
			return d, nil
		case pdftoken.EOF:
			return pdfval.Dict{}, errs.New(errs.InvalidObject, "unterminated dictionary")
		case pdftoken.Name:
			key := pdfval.Name(tk.Value)
			_, _ = p.tokens.NextToken()

			var v pdfval.Value
			// Hack for the well-known generator bug of an empty value
			// terminated only by a newline, ported from the teacher's
			// relaxed dict parser.
			if relaxed && p.tokens.HasEOLBeforeToken() {
				v = pdfval.String{Kind: pdfval.Literal}
			} else {
				v, err = p.parseValue()
				if err != nil {
					return pdfval.Dict{}, err
				}
			}
			if _, isNull := v.(pdfval.Null); !isNull {
				d.Set(key, v)
			}
		default:
			return pdfval.Dict{}, errs.New(errs.InvalidObject, "corrupt dictionary: expected name, got %s", tk.Kind)
		}
	}
}

func (p *Parser) parseOther(lit string) (pdfval.Value, error) {
	switch lit {
	case "null":
		return pdfval.Null{}, nil
	case "true":
		return pdfval.Bool(true), nil
	case "false":
		return pdfval.Bool(false), nil
	default:
		return nil, errs.New(errs.InvalidDataType, "unexpected keyword %q", lit)
	}
}

// parseNumericOrRef implements the "int int R" lookahead: a bare integer
// token is only a Reference if the next two tokens are an integer and the
// literal "R".
func (p *Parser) parseNumericOrRef(first pdftoken.Token) (pdfval.Value, error) {
	i, err := first.Int()
	if err != nil {
		return nil, errs.Wrap(errs.InvalidNumber, err)
	}

	second, err := p.tokens.PeekToken()
	if err != nil || second.Kind != pdftoken.Integer {
		return pdfval.Int(i), nil
	}

	third, err := p.tokens.PeekPeekToken()
	if err != nil || !third.IsOther("R") {
		return pdfval.Int(i), nil
	}

	gen, err := second.Int()
	if err != nil {
		return pdfval.Int(i), nil
	}
	_, _ = p.tokens.NextToken() // consume generation
	_, _ = p.tokens.NextToken() // consume "R"
	return pdfval.Ref{Num: uint32(i), Gen: uint16(gen)}, nil
}
