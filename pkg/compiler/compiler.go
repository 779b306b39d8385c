// Package compiler drives a compilation from C source text to an executable
// image: prelude and user file are parsed into one environment, the program
// is emitted behind the startup stub and builtins, and the code is spliced
// into an ELF file.
package compiler

import (
	"github.com/raymyers/elfcc/pkg/ast"
	"github.com/raymyers/elfcc/pkg/buf"
	"github.com/raymyers/elfcc/pkg/codegen"
	"github.com/raymyers/elfcc/pkg/config"
	"github.com/raymyers/elfcc/pkg/ctypes"
	"github.com/raymyers/elfcc/pkg/diag"
	"github.com/raymyers/elfcc/pkg/elfimage"
	"github.com/raymyers/elfcc/pkg/parser"
)

// Result is a compiled program.
type Result struct {
	Image   buf.Buf      // the complete executable
	Program *ast.Program // the typed program, prelude included
	Code    *codegen.Output
	Entry   uint64 // virtual address of the startup stub
}

// runtimeLimits govern the prelude whatever the configuration says.
var runtimeLimits = ctypes.DefaultLimits()

// Parse declares the builtins, then parses the prelude and the source file
// into one environment.
func Parse(filename, source string, cfg config.Config) (*ast.Program, error) {
	env := parser.NewEnv(runtimeLimits)
	for _, b := range builtins {
		env.Declare(b.sig)
	}
	if err := parser.New(preludeName, prelude, env).ParseFile(); err != nil {
		return nil, err
	}
	env.Layout.Limits = cfg.Limits
	if err := parser.New(filename, source, env).ParseFile(); err != nil {
		return nil, err
	}
	prog := env.Program()

	reserved := map[string]bool{startName: true}
	for _, b := range builtins {
		reserved[b.sig.Name] = true
	}
	for _, f := range prog.Functions {
		if reserved[f.Name] {
			return nil, diag.New(diag.Redeclaration, f.File, f.Source, f.Position,
				"%s is provided by the runtime and cannot be defined", f.Name)
		}
	}
	return prog, nil
}

// Compile turns one C source file into an executable image.
func Compile(filename, source string, cfg config.Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	prog, err := Parse(filename, source, cfg)
	if err != nil {
		return nil, err
	}
	if !defines(prog, "main") {
		return nil, diag.New(diag.NameResolution, filename, source, 0, "program has no main function")
	}

	layout := elfimage.Layout{Base: cfg.LoadBase}
	out, err := emit(prog, routines(), cfg)
	if err != nil {
		return nil, err
	}

	entry := out.Offsets[startName]
	return &Result{
		Image:   layout.Splice(out.Text, entry, out.BSSSize),
		Program: prog,
		Code:    out,
		Entry:   layout.CodeAddr() + uint64(entry),
	}, nil
}

// CompileFunctions emits only the functions of source, prelude included,
// without the startup stub or the file header. Code is placed as if it
// started at the configured code address.
func CompileFunctions(filename, source string, cfg config.Config) (*codegen.Output, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	prog, err := Parse(filename, source, cfg)
	if err != nil {
		return nil, err
	}
	var rs []codegen.Routine
	for _, r := range routines() {
		if r.Name != startName {
			rs = append(rs, r)
		}
	}
	return emit(prog, rs, cfg)
}

// emit places the routines and prog at the code address of cfg. Errors
// without a source position are returned as they are.
func emit(prog *ast.Program, rs []codegen.Routine, cfg config.Config) (*codegen.Output, error) {
	layout := elfimage.Layout{Base: cfg.LoadBase}
	return codegen.Emit(prog, rs, codegen.Options{
		Limits:     cfg.Limits,
		Base:       uint32(layout.CodeAddr()),
		FileLimits: map[string]ctypes.Limits{preludeName: runtimeLimits},
	})
}

func defines(prog *ast.Program, name string) bool {
	for _, f := range prog.Functions {
		if f.Name == name {
			return true
		}
	}
	return false
}
