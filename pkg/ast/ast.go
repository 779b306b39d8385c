// Package ast defines the typed abstract syntax tree. Every expression node
// carries its resolved C type from the moment it is built.
package ast

import "github.com/raymyers/elfcc/pkg/ctypes"

// Node is the base interface for all AST nodes
type Node interface {
	implNode()
}

// Expr is the interface for all expression nodes
type Expr interface {
	Node
	implExpr()
	Type() ctypes.Type
	Pos() int
}

// Stmt is the interface for all statement nodes
type Stmt interface {
	Node
	implStmt()
}

// BinaryOp represents binary operators
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpRem
	OpLt
	OpLe
	OpEq
	OpNe
	OpLogicalAnd
	OpLogicalOr
	OpAssign
	OpAddAssign
	OpSubAssign
)

func (op BinaryOp) String() string {
	names := []string{"+", "-", "*", "/", "%", "<", "<=", "==", "!=", "&&", "||", "=", "+=", "-="}
	if int(op) < len(names) {
		return names[op]
	}
	return "?"
}

// UnaryOp represents unary operators
type UnaryOp int

const (
	OpDeref UnaryOp = iota // *
	OpAddr                 // &
)

func (op UnaryOp) String() string {
	names := []string{"*", "&"}
	if int(op) < len(names) {
		return names[op]
	}
	return "?"
}

// StorageClass says where an identifier lives
type StorageClass int

const (
	Local StorageClass = iota // a stack slot, parameters included
	Global                    // the data area
)

// Symbol is what an identifier resolved to. Local IDs are unique within a
// function even when names are shadowed.
type Symbol struct {
	Class StorageClass
	ID    int
}

// Numeric is an integer constant
type Numeric struct {
	Value    int32
	Position int
	Ty       ctypes.Type
}

// Identifier is a resolved variable reference
type Identifier struct {
	Name     string
	Position int
	Sym      Symbol
	Ty       ctypes.Type
}

// BinaryExpr applies Op to Left and Right; Position is the operator's.
type BinaryExpr struct {
	Op       BinaryOp
	Position int
	Left     Expr
	Right    Expr
	Ty       ctypes.Type
}

// UnaryExpr is a dereference or an address-of
type UnaryExpr struct {
	Op       UnaryOp
	Position int
	Operand  Expr
	Ty       ctypes.Type
}

// Call calls a named function
type Call struct {
	Name     string
	Position int
	Args     []Expr
	Ty       ctypes.Type
}

// DecayedArr is an array-typed expression used as a pointer to its first element.
type DecayedArr struct {
	Inner Expr
	Ty    ctypes.Type
}

// StrLit refers to an entry of the string pool
type StrLit struct {
	Index    int
	Value    string
	Position int
	Ty       ctypes.Type
}

func (e Numeric) Type() ctypes.Type    { return e.Ty }
func (e Identifier) Type() ctypes.Type { return e.Ty }
func (e BinaryExpr) Type() ctypes.Type { return e.Ty }
func (e UnaryExpr) Type() ctypes.Type  { return e.Ty }
func (e Call) Type() ctypes.Type       { return e.Ty }
func (e DecayedArr) Type() ctypes.Type { return e.Ty }
func (e StrLit) Type() ctypes.Type     { return e.Ty }

func (e Numeric) Pos() int    { return e.Position }
func (e Identifier) Pos() int { return e.Position }
func (e BinaryExpr) Pos() int { return e.Position }
func (e UnaryExpr) Pos() int  { return e.Position }
func (e Call) Pos() int       { return e.Position }
func (e DecayedArr) Pos() int { return e.Inner.Pos() }
func (e StrLit) Pos() int     { return e.Position }

// ExprStmt evaluates an expression for its side effects
type ExprStmt struct {
	Expr Expr
}

// Throw terminates the process with Expr as the exit status
type Throw struct {
	Expr     Expr
	Position int
}

// Return represents a return statement
type Return struct {
	Expr     Expr // nil for bare return
	Position int
}

// If represents a conditional
type If struct {
	Cond Expr
	Then Stmt
	Else Stmt // nil when absent
}

// While represents a loop. for loops are desugared into a While inside a Block.
type While struct {
	Cond Expr
	Body Stmt
}

// Block represents a compound statement
type Block struct {
	Items []Stmt
}

// Param is a function parameter
type Param struct {
	Name string
	Type ctypes.Type
	ID   int
}

// LocalDecl is a local variable of a function. Parameters are not included.
type LocalDecl struct {
	Name     string
	Type     ctypes.Type
	ID       int
	Position int
}

// FunctionDefinition is a function with a body
type FunctionDefinition struct {
	Name     string
	Params   []Param
	Return   ctypes.Type
	Position int
	Body     *Block
	Locals   []LocalDecl

	// File and Source locate Position for diagnostics raised after parsing.
	File   string
	Source string
}

// Signature is a declared function, with or without a body.
type Signature struct {
	Name     string
	Params   []ctypes.Type
	Return   ctypes.Type
	Position int
}

// GlobalVar is a zero-initialized variable in the data area
type GlobalVar struct {
	Name     string
	Type     ctypes.Type
	Position int
}

// Program is a parsed translation unit
type Program struct {
	Functions  []*FunctionDefinition
	Signatures map[string]Signature
	Globals    []GlobalVar
	Strings    []string
	Layout     *ctypes.Layout
}

// Marker methods for interface implementation
func (Numeric) implNode()    {}
func (Identifier) implNode() {}
func (BinaryExpr) implNode() {}
func (UnaryExpr) implNode()  {}
func (Call) implNode()       {}
func (DecayedArr) implNode() {}
func (StrLit) implNode()     {}

func (Numeric) implExpr()    {}
func (Identifier) implExpr() {}
func (BinaryExpr) implExpr() {}
func (UnaryExpr) implExpr()  {}
func (Call) implExpr()       {}
func (DecayedArr) implExpr() {}
func (StrLit) implExpr()     {}

func (ExprStmt) implNode() {}
func (Throw) implNode()    {}
func (Return) implNode()   {}
func (If) implNode()       {}
func (While) implNode()    {}
func (*Block) implNode()   {}

func (ExprStmt) implStmt() {}
func (Throw) implStmt()    {}
func (Return) implStmt()   {}
func (If) implStmt()       {}
func (While) implStmt()    {}
func (*Block) implStmt()   {}

func (*FunctionDefinition) implNode() {}
