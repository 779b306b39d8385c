package parser

import (
	"github.com/raymyers/elfcc/pkg/ast"
	"github.com/raymyers/elfcc/pkg/ctypes"
)

// Env is the compilation environment shared by every toplevel item: function
// signatures, global variables, struct layouts and the string pool. It only
// grows; a later toplevel item whose name collides with an earlier one
// replaces it.
type Env struct {
	Layout *ctypes.Layout

	signatures map[string]ast.Signature
	globals    map[string]ast.GlobalVar
	order      []string // global variables in declaration order
	functions  []*ast.FunctionDefinition
	strings    []string
	stringIDs  map[string]int
}

// NewEnv creates an empty environment governed by limits.
func NewEnv(limits ctypes.Limits) *Env {
	return &Env{
		Layout:     ctypes.NewLayout(limits),
		signatures: make(map[string]ast.Signature),
		globals:    make(map[string]ast.GlobalVar),
		stringIDs:  make(map[string]int),
	}
}

// Declare records a function signature.
func (e *Env) Declare(sig ast.Signature) {
	delete(e.globals, sig.Name)
	e.signatures[sig.Name] = sig
}

// Signature looks up a declared function.
func (e *Env) Signature(name string) (ast.Signature, bool) {
	sig, ok := e.signatures[name]
	return sig, ok
}

// DeclareGlobal records a global variable.
func (e *Env) DeclareGlobal(g ast.GlobalVar) {
	delete(e.signatures, g.Name)
	if _, ok := e.globals[g.Name]; !ok {
		e.order = append(e.order, g.Name)
	}
	e.globals[g.Name] = g
}

// Global looks up a global variable.
func (e *Env) Global(name string) (ast.GlobalVar, bool) {
	g, ok := e.globals[name]
	return g, ok
}

// Define adds a function body. Redefining a function replaces the earlier
// body in place.
func (e *Env) Define(f *ast.FunctionDefinition) {
	for i, old := range e.functions {
		if old.Name == f.Name {
			e.functions[i] = f
			return
		}
	}
	e.functions = append(e.functions, f)
}

// Intern adds s to the string pool and returns its index. Equal strings
// share one entry.
func (e *Env) Intern(s string) int {
	if id, ok := e.stringIDs[s]; ok {
		return id
	}
	id := len(e.strings)
	e.strings = append(e.strings, s)
	e.stringIDs[s] = id
	return id
}

// Program snapshots the environment as a translation unit for code generation.
func (e *Env) Program() *ast.Program {
	prog := &ast.Program{
		Signatures: make(map[string]ast.Signature, len(e.signatures)),
		Strings:    append([]string(nil), e.strings...),
		Layout:     e.Layout,
	}
	for name, sig := range e.signatures {
		prog.Signatures[name] = sig
	}
	for _, f := range e.functions {
		if _, ok := e.signatures[f.Name]; ok {
			prog.Functions = append(prog.Functions, f)
		}
	}
	for _, name := range e.order {
		if g, ok := e.globals[name]; ok {
			prog.Globals = append(prog.Globals, g)
		}
	}
	return prog
}

// local is a resolved local variable or parameter
type local struct {
	id  int
	typ ctypes.Type
}

// Context tracks the locals visible while one function is parsed. Scopes
// form a stack; lookup goes innermost first. The base scope holds the
// parameters and the outermost block of the body.
type Context struct {
	env    *Env
	scopes []map[string]local
	locals []ast.LocalDecl
	nextID int
}

func newContext(env *Env) *Context {
	return &Context{env: env, scopes: []map[string]local{{}}}
}

func (c *Context) pushScope() {
	c.scopes = append(c.scopes, map[string]local{})
}

func (c *Context) popScope() {
	if len(c.scopes) > 1 {
		c.scopes = c.scopes[:len(c.scopes)-1]
	}
}

// declare binds name in the innermost scope and returns its unique id. It
// reports false if the innermost scope already binds name.
func (c *Context) declare(name string, typ ctypes.Type) (int, bool) {
	scope := c.scopes[len(c.scopes)-1]
	if _, dup := scope[name]; dup {
		return 0, false
	}
	id := c.nextID
	c.nextID++
	scope[name] = local{id: id, typ: typ}
	return id, true
}

// lookup resolves name against the scope stack.
func (c *Context) lookup(name string) (local, bool) {
	for i := len(c.scopes) - 1; i >= 0; i-- {
		if l, ok := c.scopes[i][name]; ok {
			return l, true
		}
	}
	return local{}, false
}
