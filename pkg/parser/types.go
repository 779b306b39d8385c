package parser

import (
	"strconv"

	"github.com/raymyers/elfcc/pkg/ctypes"
	"github.com/raymyers/elfcc/pkg/diag"
	"github.com/raymyers/elfcc/pkg/lexer"
)

func (p *Parser) isTypeStart() bool {
	switch p.curToken.Type {
	case lexer.TokenInt_, lexer.TokenChar, lexer.TokenVoid, lexer.TokenStruct:
		return true
	}
	return false
}

// parseBaseType parses int, char, void or `struct Name`. A struct body
// following the name is laid out and added to the struct table.
func (p *Parser) parseBaseType() (ctypes.Type, error) {
	switch p.curToken.Type {
	case lexer.TokenInt_:
		p.nextToken()
		return ctypes.Int(), nil
	case lexer.TokenChar:
		p.nextToken()
		return ctypes.Char(), nil
	case lexer.TokenVoid:
		p.nextToken()
		return ctypes.Void(), nil
	case lexer.TokenStruct:
		p.nextToken()
		name, err := p.expect(lexer.TokenIdent)
		if err != nil {
			return nil, err
		}
		if p.curTokenIs(lexer.TokenLBrace) {
			if err := p.parseStructBody(name); err != nil {
				return nil, err
			}
		}
		return ctypes.Struct(name.Literal), nil
	}
	return nil, p.unexpected("type name")
}

func (p *Parser) parseStructBody(name lexer.Token) error {
	p.nextToken() // consume '{'
	var fields []ctypes.Field
	for !p.curTokenIs(lexer.TokenRBrace) {
		if !p.isTypeStart() {
			return p.unexpected("member declaration")
		}
		base, err := p.parseBaseType()
		if err != nil {
			return err
		}
		for {
			typ, member, err := p.parseDeclarator(base)
			if err != nil {
				return err
			}
			if st, ok := typ.(ctypes.Tstruct); ok && st.Name == name.Literal {
				return p.errorf(diag.Type, member.Pos, "struct %s contains itself", st.Name)
			}
			fields = append(fields, ctypes.Field{Name: member.Literal, Type: typ})
			if !p.accept(lexer.TokenComma) {
				break
			}
		}
		if _, err := p.expect(lexer.TokenSemicolon); err != nil {
			return err
		}
	}
	p.nextToken() // consume '}'
	if _, err := p.env.Layout.Define(name.Literal, fields); err != nil {
		return p.anchor(err, name.Pos)
	}
	return nil
}

// parseDeclarator parses `*... name [N]...` on top of base.
func (p *Parser) parseDeclarator(base ctypes.Type) (ctypes.Type, lexer.Token, error) {
	typ := p.parsePointers(base)
	name, err := p.expect(lexer.TokenIdent)
	if err != nil {
		return nil, name, err
	}
	typ, err = p.parseArrayDims(typ)
	return typ, name, err
}

func (p *Parser) parsePointers(typ ctypes.Type) ctypes.Type {
	for p.accept(lexer.TokenStar) {
		typ = ctypes.Pointer(typ)
	}
	return typ
}

// parseArrayDims parses trailing [N] suffixes. int a[2][3] is an array of
// two arrays of three ints, so the last dimension binds tightest.
func (p *Parser) parseArrayDims(elem ctypes.Type) (ctypes.Type, error) {
	type dim struct {
		n   int
		pos int
	}
	var dims []dim
	for p.curTokenIs(lexer.TokenLBracket) {
		p.nextToken()
		tok, err := p.expect(lexer.TokenInt)
		if err != nil {
			return nil, err
		}
		n, err := strconv.Atoi(tok.Literal)
		if err != nil {
			return nil, p.errorf(diag.Capacity, tok.Pos, "array length %s is too large", tok.Literal)
		}
		if _, err := p.expect(lexer.TokenRBracket); err != nil {
			return nil, err
		}
		dims = append(dims, dim{n: n, pos: tok.Pos})
	}
	typ := elem
	for i := len(dims) - 1; i >= 0; i-- {
		if ctypes.IsVoid(typ) {
			return nil, p.errorf(diag.Type, dims[i].pos, "array of void")
		}
		arr, err := p.env.Layout.Array(typ, dims[i].n)
		if err != nil {
			return nil, p.anchor(err, dims[i].pos)
		}
		typ = arr
	}
	return typ, nil
}

// parseTypeName parses an abstract type such as `int *` or `char[4]`, as
// written in sizeof and _Alignof.
func (p *Parser) parseTypeName() (ctypes.Type, error) {
	base, err := p.parseBaseType()
	if err != nil {
		return nil, err
	}
	return p.parseArrayDims(p.parsePointers(base))
}
