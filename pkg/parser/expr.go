package parser

import (
	"strconv"

	"github.com/raymyers/elfcc/pkg/ast"
	"github.com/raymyers/elfcc/pkg/ctypes"
	"github.com/raymyers/elfcc/pkg/diag"
	"github.com/raymyers/elfcc/pkg/lexer"
)

// Precedence, lowest first:
//
//	assignment  = += -=   (right associative)
//	||
//	&&
//	== !=
//	< <= > >=
//	+ -
//	* / %
//	unary       + - ! * & ++ -- sizeof _Alignof
//	postfix     [] . -> ++ --
//	primary

func (p *Parser) parseExpr() (ast.Expr, error) {
	return p.parseAssign()
}

// parseValue parses an expression used for its value: arrays decay, and
// struct or void results are rejected.
func (p *Parser) parseValue() (ast.Expr, error) {
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return p.rvalue(e)
}

func (p *Parser) parseAssign() (ast.Expr, error) {
	lhs, err := p.parseLogicalOr()
	if err != nil {
		return nil, err
	}
	var op ast.BinaryOp
	switch p.curToken.Type {
	case lexer.TokenAssign:
		op = ast.OpAssign
	case lexer.TokenPlusAssign:
		op = ast.OpAddAssign
	case lexer.TokenMinusAssign:
		op = ast.OpSubAssign
	default:
		return lhs, nil
	}
	pos := p.curToken.Pos
	p.nextToken()
	rhs, err := p.parseAssign()
	if err != nil {
		return nil, err
	}
	return p.assign(op, pos, lhs, rhs)
}

// binaryLevel parses a left-associative level whose operators are listed
// in ops, with operands parsed by next.
func (p *Parser) binaryLevel(next func() (ast.Expr, error), ops map[lexer.TokenType]ast.BinaryOp) (ast.Expr, error) {
	left, err := next()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := ops[p.curToken.Type]
		if !ok {
			return left, nil
		}
		pos := p.curToken.Pos
		p.nextToken()
		right, err := next()
		if err != nil {
			return nil, err
		}
		if left, err = p.rvalue(left); err != nil {
			return nil, err
		}
		if right, err = p.rvalue(right); err != nil {
			return nil, err
		}
		if left, err = p.binary(op, pos, left, right); err != nil {
			return nil, err
		}
	}
}

var (
	logicalOrOps      = map[lexer.TokenType]ast.BinaryOp{lexer.TokenOr: ast.OpLogicalOr}
	logicalAndOps     = map[lexer.TokenType]ast.BinaryOp{lexer.TokenAnd: ast.OpLogicalAnd}
	equalityOps       = map[lexer.TokenType]ast.BinaryOp{lexer.TokenEq: ast.OpEq, lexer.TokenNe: ast.OpNe}
	additiveOps       = map[lexer.TokenType]ast.BinaryOp{lexer.TokenPlus: ast.OpAdd, lexer.TokenMinus: ast.OpSub}
	multiplicativeOps = map[lexer.TokenType]ast.BinaryOp{
		lexer.TokenStar:    ast.OpMul,
		lexer.TokenSlash:   ast.OpDiv,
		lexer.TokenPercent: ast.OpRem,
	}
)

func (p *Parser) parseLogicalOr() (ast.Expr, error) {
	return p.binaryLevel(p.parseLogicalAnd, logicalOrOps)
}

func (p *Parser) parseLogicalAnd() (ast.Expr, error) {
	return p.binaryLevel(p.parseEquality, logicalAndOps)
}

func (p *Parser) parseEquality() (ast.Expr, error) {
	return p.binaryLevel(p.parseRelational, equalityOps)
}

// parseRelational normalizes a > b to b < a and a >= b to b <= a.
func (p *Parser) parseRelational() (ast.Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		var op ast.BinaryOp
		swap := false
		switch p.curToken.Type {
		case lexer.TokenLt:
			op = ast.OpLt
		case lexer.TokenLe:
			op = ast.OpLe
		case lexer.TokenGt:
			op, swap = ast.OpLt, true
		case lexer.TokenGe:
			op, swap = ast.OpLe, true
		default:
			return left, nil
		}
		pos := p.curToken.Pos
		p.nextToken()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		if left, err = p.rvalue(left); err != nil {
			return nil, err
		}
		if right, err = p.rvalue(right); err != nil {
			return nil, err
		}
		if swap {
			left, right = right, left
		}
		if left, err = p.binary(op, pos, left, right); err != nil {
			return nil, err
		}
	}
}

func (p *Parser) parseAdditive() (ast.Expr, error) {
	return p.binaryLevel(p.parseMultiplicative, additiveOps)
}

func (p *Parser) parseMultiplicative() (ast.Expr, error) {
	return p.binaryLevel(p.parseUnary, multiplicativeOps)
}

func (p *Parser) parseUnary() (ast.Expr, error) {
	tok := p.curToken
	switch tok.Type {
	case lexer.TokenPlus, lexer.TokenMinus, lexer.TokenNot:
		p.nextToken()
		operand, err := p.parseUnaryValue()
		if err != nil {
			return nil, err
		}
		// +x is 0 + x, -x is 0 - x and !x is 0 == x.
		op := map[lexer.TokenType]ast.BinaryOp{
			lexer.TokenPlus:  ast.OpAdd,
			lexer.TokenMinus: ast.OpSub,
			lexer.TokenNot:   ast.OpEq,
		}[tok.Type]
		return p.binary(op, tok.Pos, intLit(0, tok.Pos), operand)
	case lexer.TokenStar:
		p.nextToken()
		operand, err := p.parseUnaryValue()
		if err != nil {
			return nil, err
		}
		return p.deref(tok.Pos, operand)
	case lexer.TokenAmpersand:
		p.nextToken()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if !isLvalue(operand) {
			return nil, p.errorf(diag.Type, tok.Pos, "cannot take the address of %s", ast.FormatExpr(operand))
		}
		return ast.UnaryExpr{Op: ast.OpAddr, Position: tok.Pos, Operand: operand, Ty: ctypes.Pointer(operand.Type())}, nil
	case lexer.TokenIncrement, lexer.TokenDecrement:
		p.nextToken()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		op := ast.OpAddAssign
		if tok.Type == lexer.TokenDecrement {
			op = ast.OpSubAssign
		}
		return p.assign(op, tok.Pos, operand, intLit(1, tok.Pos))
	case lexer.TokenSizeof, lexer.TokenAlignof:
		p.nextToken()
		return p.parseSizeof(tok)
	}
	return p.parsePostfix()
}

func (p *Parser) parseUnaryValue() (ast.Expr, error) {
	e, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	return p.rvalue(e)
}

// parseSizeof evaluates sizeof or _Alignof at parse time. The operand is a
// parenthesized type name or an unevaluated unary expression; arrays do not
// decay here.
func (p *Parser) parseSizeof(op lexer.Token) (ast.Expr, error) {
	var typ ctypes.Type
	if p.curTokenIs(lexer.TokenLParen) && isTypeKeyword(p.peekToken.Type) {
		p.nextToken() // consume '('
		t, err := p.parseTypeName()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TokenRParen); err != nil {
			return nil, err
		}
		typ = t
	} else {
		e, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		typ = e.Type()
	}
	var n int
	var err error
	if op.Type == lexer.TokenSizeof {
		n, err = p.env.Layout.Sizeof(typ)
	} else {
		n, err = p.env.Layout.Alignof(typ)
	}
	if err != nil {
		return nil, p.anchor(err, op.Pos)
	}
	return intLit(int32(n), op.Pos), nil
}

func isTypeKeyword(t lexer.TokenType) bool {
	switch t {
	case lexer.TokenInt_, lexer.TokenChar, lexer.TokenVoid, lexer.TokenStruct:
		return true
	}
	return false
}

func (p *Parser) parsePostfix() (ast.Expr, error) {
	e, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.curToken
		switch tok.Type {
		case lexer.TokenLBracket:
			// a[i] is *(a + i)
			p.nextToken()
			index, err := p.parseValue()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(lexer.TokenRBracket); err != nil {
				return nil, err
			}
			base, err := p.rvalue(e)
			if err != nil {
				return nil, err
			}
			sum, err := p.binary(ast.OpAdd, tok.Pos, base, index)
			if err != nil {
				return nil, err
			}
			if e, err = p.deref(tok.Pos, sum); err != nil {
				return nil, err
			}
		case lexer.TokenDot:
			p.nextToken()
			name, err := p.expect(lexer.TokenIdent)
			if err != nil {
				return nil, err
			}
			st, ok := e.Type().(ctypes.Tstruct)
			if !ok || !isLvalue(e) {
				return nil, p.errorf(diag.Type, tok.Pos, "left side of '.' has type %s, not a struct", e.Type())
			}
			addr := ast.UnaryExpr{Op: ast.OpAddr, Position: tok.Pos, Operand: e, Ty: ctypes.Pointer(st)}
			if e, err = p.member(tok.Pos, addr, st, name); err != nil {
				return nil, err
			}
		case lexer.TokenArrow:
			p.nextToken()
			name, err := p.expect(lexer.TokenIdent)
			if err != nil {
				return nil, err
			}
			ptr, err := p.rvalue(e)
			if err != nil {
				return nil, err
			}
			st, ok := ctypes.Deref(ptr.Type()).(ctypes.Tstruct)
			if !ok {
				return nil, p.errorf(diag.Type, tok.Pos, "left side of '->' has type %s, not a pointer to a struct", ptr.Type())
			}
			if e, err = p.member(tok.Pos, ptr, st, name); err != nil {
				return nil, err
			}
		case lexer.TokenIncrement, lexer.TokenDecrement:
			// x++ is (x += 1) - 1 and x-- is (x -= 1) + 1.
			p.nextToken()
			op, undo := ast.OpAddAssign, ast.OpSub
			if tok.Type == lexer.TokenDecrement {
				op, undo = ast.OpSubAssign, ast.OpAdd
			}
			updated, err := p.assign(op, tok.Pos, e, intLit(1, tok.Pos))
			if err != nil {
				return nil, err
			}
			if e, err = p.binary(undo, tok.Pos, updated, intLit(1, tok.Pos)); err != nil {
				return nil, err
			}
		default:
			return e, nil
		}
	}
}

// member builds *(ptr + offsetof(st, name)). The offset is in bytes, so the
// addition is typed as a pointer to the member without scaling.
func (p *Parser) member(pos int, ptr ast.Expr, st ctypes.Tstruct, name lexer.Token) (ast.Expr, error) {
	def, ok := p.env.Layout.Lookup(st.Name)
	if !ok {
		return nil, p.errorf(diag.NameResolution, pos, "struct %s is not defined", st.Name)
	}
	m, ok := def.Member(name.Literal)
	if !ok {
		return nil, p.errorf(diag.NameResolution, name.Pos, "struct %s has no member %s", st.Name, name.Literal)
	}
	mptr := ctypes.Pointer(m.Type)
	addr := ast.BinaryExpr{Op: ast.OpAdd, Position: pos, Left: ptr, Right: intLit(int32(m.Offset), pos), Ty: mptr}
	return ast.UnaryExpr{Op: ast.OpDeref, Position: pos, Operand: addr, Ty: m.Type}, nil
}

func (p *Parser) parsePrimary() (ast.Expr, error) {
	tok := p.curToken
	switch tok.Type {
	case lexer.TokenInt:
		p.nextToken()
		v, err := strconv.ParseInt(tok.Literal, 10, 32)
		if err != nil {
			return nil, p.errorf(diag.Capacity, tok.Pos, "integer literal %s does not fit in 32 bits", tok.Literal)
		}
		return intLit(int32(v), tok.Pos), nil
	case lexer.TokenCharLit:
		p.nextToken()
		return intLit(int32(tok.Literal[0]), tok.Pos), nil
	case lexer.TokenString:
		p.nextToken()
		s := tok.Literal
		// "a" "b" is "ab"
		for p.curTokenIs(lexer.TokenString) {
			s += p.curToken.Literal
			p.nextToken()
		}
		typ, err := p.env.Layout.Array(ctypes.Char(), len(s)+1)
		if err != nil {
			return nil, p.anchor(err, tok.Pos)
		}
		return ast.StrLit{Index: p.env.Intern(s), Value: s, Position: tok.Pos, Ty: typ}, nil
	case lexer.TokenIdent:
		if p.peekTokenIs(lexer.TokenLParen) {
			return p.parseCall()
		}
		p.nextToken()
		return p.resolve(tok)
	case lexer.TokenLParen:
		p.nextToken()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TokenRParen); err != nil {
			return nil, err
		}
		return e, nil
	}
	return nil, p.unexpected("expression")
}

// resolve looks a variable up innermost scope first, then among globals.
func (p *Parser) resolve(name lexer.Token) (ast.Expr, error) {
	if p.ctx != nil {
		if l, ok := p.ctx.lookup(name.Literal); ok {
			return ast.Identifier{
				Name:     name.Literal,
				Position: name.Pos,
				Sym:      ast.Symbol{Class: ast.Local, ID: l.id},
				Ty:       l.typ,
			}, nil
		}
	}
	if g, ok := p.env.Global(name.Literal); ok {
		return ast.Identifier{
			Name:     name.Literal,
			Position: name.Pos,
			Sym:      ast.Symbol{Class: ast.Global},
			Ty:       g.Type,
		}, nil
	}
	if _, ok := p.env.Signature(name.Literal); ok {
		return nil, p.errorf(diag.Type, name.Pos, "%s is a function; function pointers are not supported", name.Literal)
	}
	return nil, p.errorf(diag.NameResolution, name.Pos, "undeclared identifier %s", name.Literal)
}

// parseCall checks the callee exists and that every argument matches the
// declared parameter.
func (p *Parser) parseCall() (ast.Expr, error) {
	name := p.curToken
	p.nextToken() // consume name
	p.nextToken() // consume '('

	if p.ctx != nil {
		if _, ok := p.ctx.lookup(name.Literal); ok {
			return nil, p.errorf(diag.Type, name.Pos, "called object %s is not a function", name.Literal)
		}
	}
	sig, ok := p.env.Signature(name.Literal)
	if !ok {
		if _, isVar := p.env.Global(name.Literal); isVar {
			return nil, p.errorf(diag.Type, name.Pos, "called object %s is not a function", name.Literal)
		}
		return nil, p.errorf(diag.NameResolution, name.Pos, "undeclared function %s", name.Literal)
	}

	var args []ast.Expr
	var positions []int
	for !p.curTokenIs(lexer.TokenRParen) {
		if len(args) > 0 {
			if _, err := p.expect(lexer.TokenComma); err != nil {
				return nil, err
			}
		}
		positions = append(positions, p.curToken.Pos)
		arg, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	p.nextToken() // consume ')'

	if len(args) != len(sig.Params) {
		return nil, p.errorf(diag.Type, name.Pos, "function %s takes %d arguments, got %d", name.Literal, len(sig.Params), len(args))
	}
	for i, arg := range args {
		if !assignable(sig.Params[i], arg) {
			return nil, p.errorf(diag.Type, positions[i], "argument %d of %s: cannot pass %s as %s", i+1, name.Literal, arg.Type(), sig.Params[i])
		}
	}
	return ast.Call{Name: name.Literal, Position: name.Pos, Args: args, Ty: sig.Return}, nil
}

func (p *Parser) deref(pos int, operand ast.Expr) (ast.Expr, error) {
	elem := ctypes.Deref(operand.Type())
	if elem == nil {
		return nil, p.errorf(diag.Type, pos, "cannot dereference %s", operand.Type())
	}
	if ctypes.IsVoid(elem) {
		return nil, p.errorf(diag.Type, pos, "cannot dereference void *")
	}
	return ast.UnaryExpr{Op: ast.OpDeref, Position: pos, Operand: operand, Ty: elem}, nil
}

// assign builds =, += and -=. The left side must be an identifier or a
// dereference of scalar type.
func (p *Parser) assign(op ast.BinaryOp, pos int, lhs, rhs ast.Expr) (ast.Expr, error) {
	if !isLvalue(lhs) {
		return nil, p.errorf(diag.Type, pos, "left side of %s is not assignable", op)
	}
	lt := lhs.Type()
	if !ctypes.IsScalar(lt) {
		return nil, p.errorf(diag.Type, pos, "cannot assign to %s of type %s", ast.FormatExpr(lhs), lt)
	}
	rhs, err := p.rvalue(rhs)
	if err != nil {
		return nil, err
	}
	rt := rhs.Type()
	switch op {
	case ast.OpAssign:
		if !assignable(lt, rhs) {
			return nil, p.errorf(diag.Type, pos, "cannot assign %s to %s", rt, lt)
		}
	case ast.OpAddAssign, ast.OpSubAssign:
		switch {
		case ctypes.IsInteger(lt) && ctypes.IsInteger(rt):
		case ctypes.IsPointer(lt) && ctypes.IsInteger(rt):
			if rhs, err = p.scale(pos, lt, rhs); err != nil {
				return nil, err
			}
		default:
			return nil, p.errorf(diag.Type, pos, "invalid operands to %s (%s and %s)", op, lt, rt)
		}
	}
	return ast.BinaryExpr{Op: op, Position: pos, Left: lhs, Right: rhs, Ty: lt}, nil
}

// binary types an arithmetic, comparison or logical operator. Both operands
// are already rvalues.
func (p *Parser) binary(op ast.BinaryOp, pos int, l, r ast.Expr) (ast.Expr, error) {
	lt, rt := l.Type(), r.Type()
	ok := false
	switch op {
	case ast.OpAdd:
		return p.add(pos, l, r)
	case ast.OpSub:
		return p.sub(pos, l, r)
	case ast.OpMul, ast.OpDiv, ast.OpRem:
		ok = ctypes.IsInteger(lt) && ctypes.IsInteger(rt)
	case ast.OpLt, ast.OpLe, ast.OpEq, ast.OpNe:
		ok = comparable(l, r)
	case ast.OpLogicalAnd, ast.OpLogicalOr:
		ok = ctypes.IsScalar(lt) && ctypes.IsScalar(rt)
	}
	if !ok {
		return nil, p.errorf(diag.Type, pos, "invalid operands to %s (%s and %s)", op, lt, rt)
	}
	return ast.BinaryExpr{Op: op, Position: pos, Left: l, Right: r, Ty: ctypes.Int()}, nil
}

// add: int + int is int, pointer + int scales the int by the pointee size,
// and int + pointer commutes.
func (p *Parser) add(pos int, l, r ast.Expr) (ast.Expr, error) {
	lt, rt := l.Type(), r.Type()
	switch {
	case ctypes.IsInteger(lt) && ctypes.IsInteger(rt):
		return ast.BinaryExpr{Op: ast.OpAdd, Position: pos, Left: l, Right: r, Ty: ctypes.Int()}, nil
	case ctypes.IsInteger(lt) && ctypes.IsPointer(rt):
		l, r, lt = r, l, rt
		fallthrough
	case ctypes.IsPointer(lt) && ctypes.IsInteger(r.Type()):
		scaled, err := p.scale(pos, lt, r)
		if err != nil {
			return nil, err
		}
		return ast.BinaryExpr{Op: ast.OpAdd, Position: pos, Left: l, Right: scaled, Ty: lt}, nil
	}
	return nil, p.errorf(diag.Type, pos, "invalid operands to + (%s and %s)", lt, rt)
}

// sub: pointer - pointer of the same type is the byte difference divided
// by the element size.
func (p *Parser) sub(pos int, l, r ast.Expr) (ast.Expr, error) {
	lt, rt := l.Type(), r.Type()
	switch {
	case ctypes.IsInteger(lt) && ctypes.IsInteger(rt):
		return ast.BinaryExpr{Op: ast.OpSub, Position: pos, Left: l, Right: r, Ty: ctypes.Int()}, nil
	case ctypes.IsPointer(lt) && ctypes.IsInteger(rt):
		scaled, err := p.scale(pos, lt, r)
		if err != nil {
			return nil, err
		}
		return ast.BinaryExpr{Op: ast.OpSub, Position: pos, Left: l, Right: scaled, Ty: lt}, nil
	case ctypes.IsPointer(lt) && ctypes.Equal(lt, rt):
		size, err := p.env.Layout.Sizeof(ctypes.Deref(lt))
		if err != nil {
			return nil, p.anchor(err, pos)
		}
		diff := ast.BinaryExpr{Op: ast.OpSub, Position: pos, Left: l, Right: r, Ty: ctypes.Int()}
		if size == 1 {
			return diff, nil
		}
		return ast.BinaryExpr{Op: ast.OpDiv, Position: pos, Left: diff, Right: intLit(int32(size), pos), Ty: ctypes.Int()}, nil
	}
	return nil, p.errorf(diag.Type, pos, "invalid operands to - (%s and %s)", lt, rt)
}

// scale multiplies n by the size of ptr's pointee.
func (p *Parser) scale(pos int, ptr ctypes.Type, n ast.Expr) (ast.Expr, error) {
	size, err := p.env.Layout.Sizeof(ctypes.Deref(ptr))
	if err != nil {
		return nil, p.anchor(err, pos)
	}
	if size == 1 {
		return n, nil
	}
	return ast.BinaryExpr{Op: ast.OpMul, Position: pos, Left: intLit(int32(size), pos), Right: n, Ty: ctypes.Int()}, nil
}

// rvalue decays arrays and rejects values that do not fit in a register.
func (p *Parser) rvalue(e ast.Expr) (ast.Expr, error) {
	switch t := e.Type().(type) {
	case ctypes.Tarray:
		return ast.DecayedArr{Inner: e, Ty: ctypes.Pointer(t.Elem)}, nil
	case ctypes.Tstruct:
		return nil, p.errorf(diag.Type, e.Pos(), "%s value cannot be used here", t)
	case ctypes.Tvoid:
		return nil, p.errorf(diag.Type, e.Pos(), "void value cannot be used here")
	}
	return e, nil
}

func isLvalue(e ast.Expr) bool {
	switch e := e.(type) {
	case ast.Identifier:
		return true
	case ast.UnaryExpr:
		return e.Op == ast.OpDeref
	}
	return false
}

func isNullConstant(e ast.Expr) bool {
	n, ok := e.(ast.Numeric)
	return ok && n.Value == 0
}

func isVoidPointer(t ctypes.Type) bool {
	return ctypes.IsPointer(t) && ctypes.IsVoid(ctypes.Deref(t))
}

// assignable reports whether src can be stored into a dst without a cast.
// int and char convert freely; pointers must match unless one side is
// void * or src is the literal 0.
func assignable(dst ctypes.Type, src ast.Expr) bool {
	st := src.Type()
	switch {
	case ctypes.IsInteger(dst):
		return ctypes.IsInteger(st)
	case ctypes.IsPointer(dst):
		if isNullConstant(src) {
			return true
		}
		return ctypes.IsPointer(st) && (ctypes.Equal(dst, st) || isVoidPointer(dst) || isVoidPointer(st))
	}
	return false
}

func comparable(l, r ast.Expr) bool {
	lt, rt := l.Type(), r.Type()
	switch {
	case ctypes.IsInteger(lt) && ctypes.IsInteger(rt):
		return true
	case ctypes.IsPointer(lt) && ctypes.IsPointer(rt):
		return ctypes.Equal(lt, rt) || isVoidPointer(lt) || isVoidPointer(rt)
	case ctypes.IsPointer(lt):
		return isNullConstant(r)
	case ctypes.IsPointer(rt):
		return isNullConstant(l)
	}
	return false
}

func intLit(v int32, pos int) ast.Numeric {
	return ast.Numeric{Value: v, Position: pos, Ty: ctypes.Int()}
}
