package codegen

import (
	"fmt"

	"github.com/raymyers/elfcc/pkg/ast"
	"github.com/raymyers/elfcc/pkg/buf"
	"github.com/raymyers/elfcc/pkg/ctypes"
	"github.com/raymyers/elfcc/pkg/diag"
	"github.com/raymyers/elfcc/pkg/x86"
)

var compareConds = map[ast.BinaryOp]x86.Cond{
	ast.OpLt: x86.CondL,
	ast.OpLe: x86.CondLE,
	ast.OpEq: x86.CondE,
	ast.OpNe: x86.CondNE,
}

func (g *funcGen) push() buf.Buf {
	g.depth++
	return x86.Push(x86.RDI)
}

func (g *funcGen) pop(r x86.Reg) buf.Buf {
	g.depth--
	return x86.Pop(r)
}

// value evaluates e into rdi, sign-extended to 64 bits. An array-typed
// expression evaluates to its address.
func (g *funcGen) value(e ast.Expr) (buf.Buf, error) {
	if _, ok := e.Type().(ctypes.Tarray); ok {
		return g.addr(e)
	}
	switch e := e.(type) {
	case ast.Numeric:
		return x86.MovRDIImm(e.Value), nil

	case ast.Identifier:
		a, err := g.addr(e)
		if err != nil {
			return buf.Buf{}, err
		}
		return g.load(a, e)

	case ast.StrLit:
		return g.addr(e)

	case ast.DecayedArr:
		return g.addr(e.Inner)

	case ast.UnaryExpr:
		switch e.Op {
		case ast.OpAddr:
			return g.addr(e.Operand)
		case ast.OpDeref:
			ptr, err := g.value(e.Operand)
			if err != nil {
				return buf.Buf{}, err
			}
			return g.load(ptr, e)
		}

	case ast.BinaryExpr:
		return g.binary(e)

	case ast.Call:
		return g.call(e)
	}
	return buf.Buf{}, g.errorf(diag.Internal, e.Pos(), "cannot generate %s", ast.FormatExpr(e))
}

// addr evaluates the address of an lvalue into rdi.
func (g *funcGen) addr(e ast.Expr) (buf.Buf, error) {
	switch e := e.(type) {
	case ast.Identifier:
		if e.Sym.Class == ast.Local {
			off, err := g.frame.Slot(e.Sym.ID, e.Ty)
			if err != nil {
				return buf.Buf{}, g.anchor(err, e.Position)
			}
			return x86.LeaRDI(off), nil
		}
		a, ok := g.syms.Globals[e.Name]
		if !ok {
			return buf.Buf{}, g.errorf(diag.NameResolution, e.Position, "global %s has no storage", e.Name)
		}
		return x86.MovEDIImm(a), nil

	case ast.StrLit:
		if e.Index < 0 || e.Index >= len(g.syms.Strings) {
			return buf.Buf{}, g.errorf(diag.Internal, e.Position, "string literal %d is not in the pool", e.Index)
		}
		return x86.MovEDIImm(g.syms.Strings[e.Index]), nil

	case ast.UnaryExpr:
		if e.Op == ast.OpDeref {
			return g.value(e.Operand)
		}
	}
	return buf.Buf{}, g.errorf(diag.Internal, e.Pos(), "%s is not addressable", ast.FormatExpr(e))
}

// load follows the address in rdi, reading a value of e's type.
func (g *funcGen) load(address buf.Buf, e ast.Expr) (buf.Buf, error) {
	size, err := g.layout.Sizeof(e.Type())
	if err != nil {
		return buf.Buf{}, g.anchor(err, e.Pos())
	}
	ld, err := x86.LoadRDI(size)
	if err != nil {
		return buf.Buf{}, g.internal(e.Pos(), fmt.Errorf("load of %s: %w", e.Type(), err))
	}
	return address.Join(ld), nil
}

func (g *funcGen) binary(e ast.BinaryExpr) (buf.Buf, error) {
	switch e.Op {
	case ast.OpAssign, ast.OpAddAssign, ast.OpSubAssign:
		return g.assign(e)
	case ast.OpLogicalAnd, ast.OpLogicalOr:
		return g.logical(e)
	}

	left, err := g.value(e.Left)
	if err != nil {
		return buf.Buf{}, err
	}
	out := left.Join(g.push())
	right, err := g.value(e.Right)
	if err != nil {
		return buf.Buf{}, err
	}
	out = buf.Concat(out, right, g.push())

	switch e.Op {
	case ast.OpAdd, ast.OpSub, ast.OpMul:
		out = buf.Concat(out, g.pop(x86.RAX), g.pop(x86.RDI))
		switch e.Op {
		case ast.OpAdd:
			out = out.Join(x86.AddRDIRAX())
		case ast.OpSub:
			out = out.Join(x86.SubRDIRAX())
		default:
			out = out.Join(x86.IMulRDIRAX())
		}
	case ast.OpDiv, ast.OpRem:
		// idiv wants the dividend in rax and the divisor in rdi.
		out = buf.Concat(out, g.pop(x86.RDI), g.pop(x86.RAX), x86.Cqo(), x86.IDivRDI())
		if e.Op == ast.OpDiv {
			out = out.Join(x86.MovRR(x86.RDI, x86.RAX))
		} else {
			out = out.Join(x86.MovRR(x86.RDI, x86.RDX))
		}
	case ast.OpLt, ast.OpLe, ast.OpEq, ast.OpNe:
		out = buf.Concat(out, g.pop(x86.RDI), g.pop(x86.RAX),
			x86.CmpRAXRDI(), x86.SetAL(compareConds[e.Op]), x86.MovzxEDIAL())
		return out, nil
	default:
		return buf.Buf{}, g.errorf(diag.Internal, e.Position, "unexpected operator %s", e.Op)
	}
	return out.Join(g.wrap(e.Ty)), nil
}

// wrap truncates an int result back to 32 bits and re-extends it.
func (g *funcGen) wrap(t ctypes.Type) buf.Buf {
	switch t.(type) {
	case ctypes.Tint:
		return x86.SignExtendRDI(4)
	case ctypes.Tchar:
		return x86.SignExtendRDI(1)
	}
	return buf.Buf{}
}

// assign stores through the address of the left side:
//
//	addr(lhs); push rdi; value(rhs); pop rax; store [rax], rdi
//
// Compound assignment reloads the target from the saved address first.
func (g *funcGen) assign(e ast.BinaryExpr) (buf.Buf, error) {
	target, err := g.addr(e.Left)
	if err != nil {
		return buf.Buf{}, err
	}
	out := target.Join(g.push())
	rhs, err := g.value(e.Right)
	if err != nil {
		return buf.Buf{}, err
	}
	out = out.Join(rhs)

	size, err := g.layout.Sizeof(e.Ty)
	if err != nil {
		return buf.Buf{}, g.anchor(err, e.Position)
	}
	if e.Op != ast.OpAssign {
		ld, err := x86.LoadRDI(size)
		if err != nil {
			return buf.Buf{}, g.internal(e.Position, err)
		}
		out = buf.Concat(out, x86.MovRR(x86.RSI, x86.RDI), x86.LoadRDIFromStack(), ld)
		if e.Op == ast.OpAddAssign {
			out = out.Join(x86.AddRDIRSI())
		} else {
			out = out.Join(x86.SubRDIRSI())
		}
	}
	st, err := x86.StoreRDI(size)
	if err != nil {
		return buf.Buf{}, g.internal(e.Position, err)
	}
	return buf.Concat(out, g.pop(x86.RAX), st, g.wrap(e.Ty)), nil
}

// logical short-circuits && and ||, leaving 0 or 1 in rdi.
//
//	&&: l; test; je F; r; test; setne al; movzx edi, al; jmp E; F: xor edi, edi; E:
//	||: l; test; jne T; r; test; setne al; movzx edi, al; jmp E; T: mov edi, 1; E:
func (g *funcGen) logical(e ast.BinaryExpr) (buf.Buf, error) {
	left, err := g.condition(e.Left)
	if err != nil {
		return buf.Buf{}, err
	}
	right, err := g.condition(e.Right)
	if err != nil {
		return buf.Buf{}, err
	}
	right = buf.Concat(right, x86.SetAL(x86.CondNE), x86.MovzxEDIAL())

	cond, short := x86.CondE, x86.XorEDIEDI()
	if e.Op == ast.OpLogicalOr {
		cond, short = x86.CondNE, x86.MovEDIImm(1)
	}
	skipShort, err := g.jmp(short.Len(), e.Position)
	if err != nil {
		return buf.Buf{}, err
	}
	guard, err := g.jcc(cond, right.Len()+skipShort.Len(), e.Position)
	if err != nil {
		return buf.Buf{}, err
	}
	return buf.Concat(left, guard, right, skipShort, short), nil
}

// call evaluates the arguments right to left onto the stack, pops them into
// the argument registers and calls through rax. One word of padding keeps
// rsp 16-byte aligned at the call when an odd number of words is pushed.
func (g *funcGen) call(e ast.Call) (buf.Buf, error) {
	if len(e.Args) > g.limits.MaxRegisterArgs || len(e.Args) > len(x86.ArgRegs) {
		return buf.Buf{}, g.errorf(diag.Capacity, e.Position,
			"call to %s passes %d arguments; at most %d can be passed in registers",
			e.Name, len(e.Args), min(g.limits.MaxRegisterArgs, len(x86.ArgRegs)))
	}
	target, ok := g.syms.Functions[e.Name]
	if !ok {
		return buf.Buf{}, g.errorf(diag.NameResolution, e.Position, "function %s is declared but never defined", e.Name)
	}

	var out buf.Buf
	padded := g.depth%2 == 1
	if padded {
		out = out.Join(x86.SubRSP(8))
		g.depth++
	}
	for i := len(e.Args) - 1; i >= 0; i-- {
		arg, err := g.value(e.Args[i])
		if err != nil {
			return buf.Buf{}, err
		}
		out = buf.Concat(out, arg, g.push())
	}
	for i := range e.Args {
		out = out.Join(g.pop(x86.ArgRegs[i]))
	}
	out = buf.Concat(out, x86.MovEAXImm(target), x86.CallRAX())
	if padded {
		out = out.Join(x86.AddRSP(8))
		g.depth--
	}

	if ctypes.IsVoid(e.Ty) {
		return out, nil
	}
	size, err := g.layout.Sizeof(e.Ty)
	if err != nil {
		return buf.Buf{}, g.anchor(err, e.Position)
	}
	return out.Join(x86.MovRDIFromRAX(size)), nil
}
