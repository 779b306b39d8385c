// Package codegen lowers the typed AST straight to x86-64 machine code.
// Every expression is evaluated into rdi; intermediate values go on the
// hardware stack. Branches are assembled bottom-up so every displacement is
// known when the jump is emitted.
package codegen

import (
	"github.com/raymyers/elfcc/pkg/ast"
	"github.com/raymyers/elfcc/pkg/buf"
	"github.com/raymyers/elfcc/pkg/ctypes"
	"github.com/raymyers/elfcc/pkg/diag"
	"github.com/raymyers/elfcc/pkg/x86"
)

// Symbols holds the absolute address of everything a function can refer to.
type Symbols struct {
	Functions map[string]uint32
	Globals   map[string]uint32
	Strings   []uint32
}

// funcGen generates one function.
type funcGen struct {
	fn     *ast.FunctionDefinition
	layout *ctypes.Layout
	limits ctypes.Limits
	syms   *Symbols
	frame  *Frame
	depth  int // 8-byte words pushed below the fixed frame
}

// Function generates the code of fn: prologue, parameter stores, body and a
// fall-through epilogue that returns 0.
func Function(fn *ast.FunctionDefinition, layout *ctypes.Layout, limits ctypes.Limits, syms *Symbols) (buf.Buf, error) {
	g := &funcGen{
		fn:     fn,
		layout: layout,
		limits: limits,
		syms:   syms,
		frame:  newFrame(layout),
	}
	if len(fn.Params) > limits.MaxRegisterArgs || len(fn.Params) > len(x86.ArgRegs) {
		return buf.Buf{}, g.errorf(diag.Capacity, fn.Position,
			"function %s has %d parameters; at most %d can be passed in registers",
			fn.Name, len(fn.Params), min(limits.MaxRegisterArgs, len(x86.ArgRegs)))
	}

	var params buf.Buf
	for i, p := range fn.Params {
		off, err := g.frame.Slot(p.ID, p.Type)
		if err != nil {
			return buf.Buf{}, g.anchor(err, fn.Position)
		}
		size, err := layout.Sizeof(p.Type)
		if err != nil {
			return buf.Buf{}, g.anchor(err, fn.Position)
		}
		store, err := x86.StoreArg(x86.ArgRegs[i], off, size)
		if err != nil {
			return buf.Buf{}, g.internal(fn.Position, err)
		}
		params = params.Join(store)
	}

	body, err := g.block(fn.Body)
	if err != nil {
		return buf.Buf{}, err
	}
	epilogue := buf.Concat(x86.XorEAXEAX(), x86.Leave(), x86.Ret())

	// The frame size is only known once the body has claimed its slots.
	return buf.Concat(x86.Prologue(g.frame.Size()), params, body, epilogue), nil
}

func (g *funcGen) errorf(kind diag.Kind, pos int, format string, args ...any) error {
	return diag.New(kind, g.fn.File, g.fn.Source, pos, format, args...)
}

func (g *funcGen) anchor(err error, pos int) error {
	return diag.At(err, g.fn.File, g.fn.Source, pos)
}

func (g *funcGen) internal(pos int, err error) error {
	return g.errorf(diag.Internal, pos, "%v", err)
}

func (g *funcGen) stmt(s ast.Stmt) (buf.Buf, error) {
	switch s := s.(type) {
	case ast.ExprStmt:
		return g.value(s.Expr)

	case ast.Return:
		if s.Expr == nil {
			return buf.Concat(x86.XorEAXEAX(), x86.Leave(), x86.Ret()), nil
		}
		v, err := g.value(s.Expr)
		if err != nil {
			return buf.Buf{}, err
		}
		return buf.Concat(v, x86.MovRR(x86.RAX, x86.RDI), x86.Leave(), x86.Ret()), nil

	case ast.Throw:
		v, err := g.value(s.Expr)
		if err != nil {
			return buf.Buf{}, err
		}
		return buf.Concat(v, x86.MovEAXImm(sysExit), x86.Syscall()), nil

	case ast.If:
		return g.ifStmt(s)

	case ast.While:
		return g.whileStmt(s)

	case *ast.Block:
		return g.block(s)
	}
	return buf.Buf{}, g.errorf(diag.Internal, g.fn.Position, "unexpected statement %T", s)
}

// sysExit is the Linux exit system call number.
const sysExit = 60

func (g *funcGen) block(b *ast.Block) (buf.Buf, error) {
	var out buf.Buf
	if b == nil {
		return out, nil
	}
	for _, item := range b.Items {
		code, err := g.stmt(item)
		if err != nil {
			return buf.Buf{}, err
		}
		out = out.Join(code)
	}
	return out, nil
}

// condition evaluates cond and sets ZF when it is zero.
func (g *funcGen) condition(cond ast.Expr) (buf.Buf, error) {
	v, err := g.value(cond)
	if err != nil {
		return buf.Buf{}, err
	}
	return v.Join(x86.TestRDI()), nil
}

// if (c) A else B:
//
//	c; test rdi, rdi; je else
//	A; jmp end
//	else: B
//	end:
func (g *funcGen) ifStmt(s ast.If) (buf.Buf, error) {
	cond, err := g.condition(s.Cond)
	if err != nil {
		return buf.Buf{}, err
	}
	then, err := g.stmt(s.Then)
	if err != nil {
		return buf.Buf{}, err
	}
	if s.Else == nil {
		guard, err := g.jcc(x86.CondE, then.Len(), s.Cond.Pos())
		if err != nil {
			return buf.Buf{}, err
		}
		return buf.Concat(cond, guard, then), nil
	}
	els, err := g.stmt(s.Else)
	if err != nil {
		return buf.Buf{}, err
	}
	skipElse, err := g.jmp(els.Len(), s.Cond.Pos())
	if err != nil {
		return buf.Buf{}, err
	}
	guard, err := g.jcc(x86.CondE, then.Len()+skipElse.Len(), s.Cond.Pos())
	if err != nil {
		return buf.Buf{}, err
	}
	return buf.Concat(cond, guard, then, skipElse, els), nil
}

// while (c) B:
//
//	top: c; test rdi, rdi; je end
//	B; jmp top
//	end:
func (g *funcGen) whileStmt(s ast.While) (buf.Buf, error) {
	cond, err := g.condition(s.Cond)
	if err != nil {
		return buf.Buf{}, err
	}
	body, err := g.stmt(s.Body)
	if err != nil {
		return buf.Buf{}, err
	}
	exit, err := g.jcc(x86.CondE, body.Len()+x86.Rel8Len, s.Cond.Pos())
	if err != nil {
		return buf.Buf{}, err
	}
	back, err := g.jmp(-(cond.Len() + exit.Len() + body.Len() + x86.Rel8Len), s.Cond.Pos())
	if err != nil {
		return buf.Buf{}, err
	}
	return buf.Concat(cond, exit, body, back), nil
}

// rel8 checks a displacement against the branch budget.
func (g *funcGen) rel8(disp, pos int) (int8, error) {
	limit := min(g.limits.MaxBranchDisplacement, 127)
	if disp > limit || disp < -limit {
		return 0, g.errorf(diag.Capacity, pos, "jump of %d bytes exceeds the %d-byte branch limit", abs(disp), limit)
	}
	return int8(disp), nil
}

func (g *funcGen) jcc(c x86.Cond, disp, pos int) (buf.Buf, error) {
	d, err := g.rel8(disp, pos)
	if err != nil {
		return buf.Buf{}, err
	}
	return x86.Jcc8(c, d), nil
}

func (g *funcGen) jmp(disp, pos int) (buf.Buf, error) {
	d, err := g.rel8(disp, pos)
	if err != nil {
		return buf.Buf{}, err
	}
	return x86.Jmp8(d), nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
