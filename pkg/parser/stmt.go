package parser

import (
	"github.com/raymyers/elfcc/pkg/ast"
	"github.com/raymyers/elfcc/pkg/ctypes"
	"github.com/raymyers/elfcc/pkg/diag"
	"github.com/raymyers/elfcc/pkg/lexer"
)

// parseBlockItems parses `{ items }` without opening a scope.
func (p *Parser) parseBlockItems() (*ast.Block, error) {
	if _, err := p.expect(lexer.TokenLBrace); err != nil {
		return nil, err
	}
	block := &ast.Block{}
	for !p.curTokenIs(lexer.TokenRBrace) {
		if p.curTokenIs(lexer.TokenEOF) {
			return nil, p.unexpected("'}'")
		}
		items, err := p.parseBlockItem()
		if err != nil {
			return nil, err
		}
		block.Items = append(block.Items, items...)
	}
	p.nextToken() // consume '}'
	return block, nil
}

// parseBlock parses a nested block in its own scope.
func (p *Parser) parseBlock() (*ast.Block, error) {
	p.ctx.pushScope()
	defer p.ctx.popScope()
	return p.parseBlockItems()
}

// parseBlockItem parses a declaration or a statement. A declaration yields
// one assignment per initialized declarator.
func (p *Parser) parseBlockItem() ([]ast.Stmt, error) {
	if p.isTypeStart() {
		return p.parseDeclaration()
	}
	stmt, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	return []ast.Stmt{stmt}, nil
}

func (p *Parser) parseDeclaration() ([]ast.Stmt, error) {
	base, err := p.parseBaseType()
	if err != nil {
		return nil, err
	}
	var stmts []ast.Stmt
	if p.accept(lexer.TokenSemicolon) {
		return nil, nil
	}
	for {
		typ, name, err := p.parseDeclarator(base)
		if err != nil {
			return nil, err
		}
		ident, err := p.declareLocal(typ, name)
		if err != nil {
			return nil, err
		}
		if p.curTokenIs(lexer.TokenAssign) {
			opPos := p.curToken.Pos
			p.nextToken()
			if !ctypes.IsScalar(typ) {
				return nil, p.errorf(diag.Type, opPos, "cannot initialize %s of type %s", name.Literal, typ)
			}
			init, err := p.parseAssign()
			if err != nil {
				return nil, err
			}
			assign, err := p.assign(ast.OpAssign, opPos, ident, init)
			if err != nil {
				return nil, err
			}
			stmts = append(stmts, ast.ExprStmt{Expr: assign})
		}
		if !p.accept(lexer.TokenComma) {
			break
		}
	}
	if _, err := p.expect(lexer.TokenSemicolon); err != nil {
		return nil, err
	}
	return stmts, nil
}

func (p *Parser) declareLocal(typ ctypes.Type, name lexer.Token) (ast.Identifier, error) {
	if ctypes.IsVoid(typ) {
		return ast.Identifier{}, p.errorf(diag.Type, name.Pos, "variable %s declared void", name.Literal)
	}
	if _, err := p.env.Layout.Sizeof(typ); err != nil {
		return ast.Identifier{}, p.anchor(err, name.Pos)
	}
	id, ok := p.ctx.declare(name.Literal, typ)
	if !ok {
		return ast.Identifier{}, p.errorf(diag.Redeclaration, name.Pos, "redeclaration of %s in the same scope", name.Literal)
	}
	p.ctx.locals = append(p.ctx.locals, ast.LocalDecl{Name: name.Literal, Type: typ, ID: id, Position: name.Pos})
	return ast.Identifier{
		Name:     name.Literal,
		Position: name.Pos,
		Sym:      ast.Symbol{Class: ast.Local, ID: id},
		Ty:       typ,
	}, nil
}

func (p *Parser) parseStatement() (ast.Stmt, error) {
	switch p.curToken.Type {
	case lexer.TokenLBrace:
		return p.parseBlock()
	case lexer.TokenSemicolon:
		p.nextToken()
		return &ast.Block{}, nil
	case lexer.TokenReturn:
		return p.parseReturnStatement()
	case lexer.TokenThrow:
		return p.parseThrowStatement()
	case lexer.TokenIf:
		return p.parseIfStatement()
	case lexer.TokenWhile:
		return p.parseWhileStatement()
	case lexer.TokenFor:
		return p.parseForStatement()
	}
	expr, err := p.parseExprStatementExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokenSemicolon); err != nil {
		return nil, err
	}
	return ast.ExprStmt{Expr: expr}, nil
}

// parseExprStatementExpr parses an expression whose value is discarded, so
// a void call is allowed.
func (p *Parser) parseExprStatementExpr() (ast.Expr, error) {
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if ctypes.IsVoid(expr.Type()) {
		return expr, nil
	}
	return p.rvalue(expr)
}

func (p *Parser) parseReturnStatement() (ast.Stmt, error) {
	pos := p.curToken.Pos
	p.nextToken() // consume 'return'

	if p.accept(lexer.TokenSemicolon) {
		if !ctypes.IsVoid(p.retType) {
			return nil, p.errorf(diag.Type, pos, "return without a value in a function returning %s", p.retType)
		}
		return ast.Return{Position: pos}, nil
	}
	if ctypes.IsVoid(p.retType) {
		return nil, p.errorf(diag.Type, p.curToken.Pos, "return with a value in a function returning void")
	}
	exprPos := p.curToken.Pos
	expr, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	if !assignable(p.retType, expr) {
		return nil, p.errorf(diag.Type, exprPos, "cannot return %s from a function returning %s", expr.Type(), p.retType)
	}
	if _, err := p.expect(lexer.TokenSemicolon); err != nil {
		return nil, err
	}
	return ast.Return{Expr: expr, Position: pos}, nil
}

func (p *Parser) parseThrowStatement() (ast.Stmt, error) {
	pos := p.curToken.Pos
	p.nextToken() // consume '__throw'
	exprPos := p.curToken.Pos
	expr, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	if !ctypes.IsInteger(expr.Type()) {
		return nil, p.errorf(diag.Type, exprPos, "exit status must be an integer, not %s", expr.Type())
	}
	if _, err := p.expect(lexer.TokenSemicolon); err != nil {
		return nil, err
	}
	return ast.Throw{Expr: expr, Position: pos}, nil
}

func (p *Parser) parseCondition() (ast.Expr, error) {
	if _, err := p.expect(lexer.TokenLParen); err != nil {
		return nil, err
	}
	cond, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokenRParen); err != nil {
		return nil, err
	}
	return cond, nil
}

func (p *Parser) parseIfStatement() (ast.Stmt, error) {
	p.nextToken() // consume 'if'
	cond, err := p.parseCondition()
	if err != nil {
		return nil, err
	}
	then, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	stmt := ast.If{Cond: cond, Then: then}
	if p.accept(lexer.TokenElse) {
		stmt.Else, err = p.parseStatement()
		if err != nil {
			return nil, err
		}
	}
	return stmt, nil
}

func (p *Parser) parseWhileStatement() (ast.Stmt, error) {
	p.nextToken() // consume 'while'
	cond, err := p.parseCondition()
	if err != nil {
		return nil, err
	}
	body, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	return ast.While{Cond: cond, Body: body}, nil
}

// parseForStatement desugars for (init; cond; update) body into
// { init; while (cond) { body; update; } }. A missing condition is 1.
func (p *Parser) parseForStatement() (ast.Stmt, error) {
	forPos := p.curToken.Pos
	p.nextToken() // consume 'for'
	if _, err := p.expect(lexer.TokenLParen); err != nil {
		return nil, err
	}

	p.ctx.pushScope()
	defer p.ctx.popScope()

	outer := &ast.Block{}
	switch {
	case p.isTypeStart():
		init, err := p.parseDeclaration()
		if err != nil {
			return nil, err
		}
		outer.Items = append(outer.Items, init...)
	case p.accept(lexer.TokenSemicolon):
	default:
		init, err := p.parseExprStatementExpr()
		if err != nil {
			return nil, err
		}
		outer.Items = append(outer.Items, ast.ExprStmt{Expr: init})
		if _, err := p.expect(lexer.TokenSemicolon); err != nil {
			return nil, err
		}
	}

	var cond ast.Expr = ast.Numeric{Value: 1, Position: forPos, Ty: ctypes.Int()}
	if !p.curTokenIs(lexer.TokenSemicolon) {
		var err error
		if cond, err = p.parseValue(); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(lexer.TokenSemicolon); err != nil {
		return nil, err
	}

	var update ast.Expr
	if !p.curTokenIs(lexer.TokenRParen) {
		var err error
		if update, err = p.parseExprStatementExpr(); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(lexer.TokenRParen); err != nil {
		return nil, err
	}

	body, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	loop := &ast.Block{Items: []ast.Stmt{body}}
	if update != nil {
		loop.Items = append(loop.Items, ast.ExprStmt{Expr: update})
	}
	outer.Items = append(outer.Items, ast.While{Cond: cond, Body: loop})
	return outer, nil
}
