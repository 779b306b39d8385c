// Package parser implements a recursive descent parser that resolves names
// and assigns types while it builds the AST. Parsing stops at the first error.
package parser

import (
	"github.com/raymyers/elfcc/pkg/ast"
	"github.com/raymyers/elfcc/pkg/ctypes"
	"github.com/raymyers/elfcc/pkg/diag"
	"github.com/raymyers/elfcc/pkg/lexer"
)

// Parser parses one source file into an Env
type Parser struct {
	l         *lexer.Lexer
	filename  string
	input     string
	curToken  lexer.Token
	peekToken lexer.Token
	env       *Env
	ctx       *Context    // nil outside function bodies
	retType   ctypes.Type // return type of the function being parsed
}

// New creates a new Parser that adds the toplevel items of input to env.
func New(filename, input string, env *Env) *Parser {
	p := &Parser{
		l:        lexer.New(input),
		filename: filename,
		input:    input,
		env:      env,
	}
	// Read two tokens to initialize curToken and peekToken
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses a whole file with a fresh environment and returns the program.
func Parse(filename, input string, limits ctypes.Limits) (*ast.Program, error) {
	env := NewEnv(limits)
	if err := New(filename, input, env).ParseFile(); err != nil {
		return nil, err
	}
	return env.Program(), nil
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.l.NextToken()
}

func (p *Parser) errorf(kind diag.Kind, pos int, format string, args ...any) error {
	return diag.New(kind, p.filename, p.input, pos, format, args...)
}

// anchor attaches a position to an error coming from the type layer.
func (p *Parser) anchor(err error, pos int) error {
	return diag.At(err, p.filename, p.input, pos)
}

func (p *Parser) unexpected(what string) error {
	if p.curTokenIs(lexer.TokenIllegal) && p.curToken.Literal == "/*" {
		return p.errorf(diag.Syntax, p.curToken.Pos, "unterminated comment")
	}
	if p.curTokenIs(lexer.TokenIllegal) {
		return p.errorf(diag.Syntax, p.curToken.Pos, "invalid token %q", p.curToken.Literal)
	}
	return p.errorf(diag.Syntax, p.curToken.Pos, "expected %s, got %s", what, describe(p.curToken))
}

func describe(tok lexer.Token) string {
	switch tok.Type {
	case lexer.TokenIdent, lexer.TokenInt:
		return tok.Type.String() + " " + tok.Literal
	case lexer.TokenEOF:
		return "end of file"
	}
	return "'" + tok.Type.String() + "'"
}

func (p *Parser) curTokenIs(t lexer.TokenType) bool {
	return p.curToken.Type == t
}

func (p *Parser) peekTokenIs(t lexer.TokenType) bool {
	return p.peekToken.Type == t
}

// expect consumes a token of type t and returns it.
func (p *Parser) expect(t lexer.TokenType) (lexer.Token, error) {
	tok := p.curToken
	if tok.Type != t {
		return tok, p.unexpected("'" + t.String() + "'")
	}
	p.nextToken()
	return tok, nil
}

// accept consumes the current token if it has type t.
func (p *Parser) accept(t lexer.TokenType) bool {
	if p.curTokenIs(t) {
		p.nextToken()
		return true
	}
	return false
}

// ParseFile parses toplevel items until end of file.
func (p *Parser) ParseFile() error {
	for !p.curTokenIs(lexer.TokenEOF) {
		if err := p.parseToplevel(); err != nil {
			return err
		}
	}
	return nil
}

func (p *Parser) parseToplevel() error {
	if !p.isTypeStart() {
		return p.unexpected("declaration")
	}
	base, err := p.parseBaseType()
	if err != nil {
		return err
	}
	if p.accept(lexer.TokenSemicolon) {
		// struct S { ... };
		return nil
	}
	typ, name, err := p.parseDeclarator(base)
	if err != nil {
		return err
	}
	if p.curTokenIs(lexer.TokenLParen) {
		return p.parseFunction(typ, name)
	}
	for {
		if err := p.declareGlobal(typ, name); err != nil {
			return err
		}
		if !p.accept(lexer.TokenComma) {
			break
		}
		typ, name, err = p.parseDeclarator(base)
		if err != nil {
			return err
		}
	}
	_, err = p.expect(lexer.TokenSemicolon)
	return err
}

func (p *Parser) declareGlobal(typ ctypes.Type, name lexer.Token) error {
	if ctypes.IsVoid(typ) {
		return p.errorf(diag.Type, name.Pos, "variable %s declared void", name.Literal)
	}
	if _, err := p.env.Layout.Sizeof(typ); err != nil {
		return p.anchor(err, name.Pos)
	}
	if p.curTokenIs(lexer.TokenAssign) {
		return p.errorf(diag.Syntax, p.curToken.Pos, "global variable %s cannot have an initializer", name.Literal)
	}
	p.env.DeclareGlobal(ast.GlobalVar{Name: name.Literal, Type: typ, Position: name.Pos})
	return nil
}

// parseFunction parses the parameter list and then either a prototype or a
// body. The signature is declared before the body so functions can recurse.
func (p *Parser) parseFunction(ret ctypes.Type, name lexer.Token) error {
	if _, ok := ret.(ctypes.Tstruct); ok {
		return p.errorf(diag.Type, name.Pos, "function %s cannot return a struct by value", name.Literal)
	}
	if _, ok := ret.(ctypes.Tarray); ok {
		return p.errorf(diag.Type, name.Pos, "function %s cannot return an array", name.Literal)
	}
	p.nextToken() // consume '('

	ctx := newContext(p.env)
	var params []ast.Param
	if p.curTokenIs(lexer.TokenVoid) && p.peekTokenIs(lexer.TokenRParen) {
		p.nextToken()
	}
	for !p.curTokenIs(lexer.TokenRParen) {
		if len(params) > 0 {
			if _, err := p.expect(lexer.TokenComma); err != nil {
				return err
			}
		}
		if !p.isTypeStart() {
			return p.unexpected("parameter type")
		}
		base, err := p.parseBaseType()
		if err != nil {
			return err
		}
		typ, pname, err := p.parseDeclarator(base)
		if err != nil {
			return err
		}
		typ = ctypes.Decay(typ)
		switch typ.(type) {
		case ctypes.Tvoid:
			return p.errorf(diag.Type, pname.Pos, "parameter %s declared void", pname.Literal)
		case ctypes.Tstruct:
			return p.errorf(diag.Type, pname.Pos, "parameter %s: structs cannot be passed by value", pname.Literal)
		}
		id, ok := ctx.declare(pname.Literal, typ)
		if !ok {
			return p.errorf(diag.Redeclaration, pname.Pos, "redeclaration of parameter %s", pname.Literal)
		}
		params = append(params, ast.Param{Name: pname.Literal, Type: typ, ID: id})
	}
	p.nextToken() // consume ')'

	sig := ast.Signature{Name: name.Literal, Return: ret, Position: name.Pos}
	for _, param := range params {
		sig.Params = append(sig.Params, param.Type)
	}
	p.env.Declare(sig)

	if p.accept(lexer.TokenSemicolon) {
		return nil
	}
	if !p.curTokenIs(lexer.TokenLBrace) {
		return p.unexpected("'{' or ';'")
	}

	p.ctx, p.retType = ctx, ret
	defer func() { p.ctx, p.retType = nil, nil }()

	// The outermost block shares the parameters' scope.
	body, err := p.parseBlockItems()
	if err != nil {
		return err
	}
	p.env.Define(&ast.FunctionDefinition{
		Name:     name.Literal,
		Params:   params,
		Return:   ret,
		Position: name.Pos,
		Body:     body,
		Locals:   ctx.locals,
		File:     p.filename,
		Source:   p.input,
	})
	return nil
}

// ParseStatement parses a single statement as if it were the body of a
// function returning int. It is meant for tools and tests that look at one
// statement without a surrounding function.
func (p *Parser) ParseStatement() (ast.Stmt, error) {
	if p.ctx == nil {
		p.ctx, p.retType = newContext(p.env), ctypes.Int()
		defer func() { p.ctx, p.retType = nil, nil }()
	}
	items, err := p.parseBlockItem()
	if err != nil {
		return nil, err
	}
	if !p.curTokenIs(lexer.TokenEOF) {
		return nil, p.unexpected("end of input")
	}
	if len(items) == 1 {
		return items[0], nil
	}
	return &ast.Block{Items: items}, nil
}
