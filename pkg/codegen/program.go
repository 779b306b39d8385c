package codegen

import (
	"github.com/raymyers/elfcc/pkg/ast"
	"github.com/raymyers/elfcc/pkg/buf"
	"github.com/raymyers/elfcc/pkg/ctypes"
	"github.com/raymyers/elfcc/pkg/diag"
)

// Routine is hand-written code placed ahead of the compiled functions. Emit
// may look up symbols, and must return the same number of bytes whatever the
// addresses are.
type Routine struct {
	Name string
	Emit func(syms *Symbols) (buf.Buf, error)
}

// Options configure program emission.
type Options struct {
	Limits ctypes.Limits
	Base   uint32 // absolute address of the first code byte

	// FileLimits replaces Limits for the functions of the named files.
	FileLimits map[string]ctypes.Limits
}

// Output is the generated code area.
type Output struct {
	// Text holds the routines, the compiled functions and the string data,
	// in that order.
	Text buf.Buf

	CodeSize int // bytes of machine code at the start of Text
	BSSSize  int // zero-initialized bytes reserved after Text for globals

	Offsets map[string]int // routine or function name -> offset in Text
	Order   []string       // names in emission order
	Symbols *Symbols       // the final addresses
}

type piece struct {
	name string
	code buf.Buf
}

// Emit generates prog with the routines in front of it.
//
// Emission takes two passes. Every address operand is a fixed-width imm32, so
// the size of each function does not depend on the addresses it refers to.
// The first pass runs with placeholder addresses to learn every offset; the
// second pass emits with the real ones. A function may therefore call any
// function defined anywhere in the program.
func Emit(prog *ast.Program, routines []Routine, opts Options) (*Output, error) {
	provisional := &Symbols{
		Functions: make(map[string]uint32),
		Globals:   make(map[string]uint32),
		Strings:   make([]uint32, len(prog.Strings)),
	}
	for _, r := range routines {
		provisional.Functions[r.Name] = 0
	}
	for _, f := range prog.Functions {
		provisional.Functions[f.Name] = 0
	}
	for _, gv := range prog.Globals {
		provisional.Globals[gv.Name] = 0
	}

	sized, err := emitPieces(prog, routines, opts, provisional)
	if err != nil {
		return nil, err
	}

	out := &Output{Offsets: make(map[string]int)}
	final := &Symbols{
		Functions: make(map[string]uint32),
		Globals:   make(map[string]uint32),
	}
	off := 0
	for _, p := range sized {
		out.Offsets[p.name] = off
		out.Order = append(out.Order, p.name)
		final.Functions[p.name] = opts.Base + uint32(off)
		off += p.code.Len()
	}
	out.CodeSize = off

	var data buf.Buf
	for _, s := range prog.Strings {
		final.Strings = append(final.Strings, opts.Base+uint32(off+data.Len()))
		data = data.Join(buf.New(append([]byte(s), 0)...))
	}

	bssStart := ctypes.AlignUp(off+data.Len(), 8)
	bss := 0
	for _, gv := range prog.Globals {
		size, err := prog.Layout.Sizeof(gv.Type)
		if err != nil {
			return nil, err
		}
		align, err := prog.Layout.Alignof(gv.Type)
		if err != nil {
			return nil, err
		}
		bss = ctypes.AlignUp(bss, align)
		final.Globals[gv.Name] = opts.Base + uint32(bssStart+bss)
		bss += size
	}
	// The gap between the string data and the first global is part of the bss.
	out.BSSSize = bssStart - (off + data.Len()) + bss

	emitted, err := emitPieces(prog, routines, opts, final)
	if err != nil {
		return nil, err
	}
	var text buf.Buf
	for i, p := range emitted {
		if p.code.Len() != sized[i].code.Len() {
			return nil, diag.Errorf(diag.Internal, "%s is %d bytes in the final pass but %d when sized",
				p.name, p.code.Len(), sized[i].code.Len())
		}
		text = text.Join(p.code)
	}
	out.Text = text.Join(data)
	out.Symbols = final
	return out, nil
}

func emitPieces(prog *ast.Program, routines []Routine, opts Options, syms *Symbols) ([]piece, error) {
	var pieces []piece
	for _, r := range routines {
		code, err := r.Emit(syms)
		if err != nil {
			return nil, err
		}
		pieces = append(pieces, piece{name: r.Name, code: code})
	}
	for _, f := range prog.Functions {
		layout, limits := prog.Layout, opts.Limits
		if l, ok := opts.FileLimits[f.File]; ok {
			layout, limits = prog.Layout.WithLimits(l), l
		}
		code, err := Function(f, layout, limits, syms)
		if err != nil {
			return nil, err
		}
		pieces = append(pieces, piece{name: f.Name, code: code})
	}
	return pieces, nil
}
