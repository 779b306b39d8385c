package ast

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Printer outputs the typed AST as C-like text. Expressions are fully
// parenthesized and statements are annotated with the type of their value.
type Printer struct {
	w      io.Writer
	indent int
}

// NewPrinter creates a new AST printer
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, indent: 0}
}

// PrintProgram prints a complete program
func (p *Printer) PrintProgram(prog *Program) {
	if prog.Layout != nil {
		for _, d := range prog.Layout.Structs() {
			fmt.Fprintf(p.w, "struct %s { /* size %d, align %d */\n", d.Name, d.Size, d.Align)
			p.indent++
			for _, m := range d.Members {
				p.writeIndent()
				fmt.Fprintf(p.w, "%s %s; /* offset %d */\n", m.Type, m.Name, m.Offset)
			}
			p.indent--
			fmt.Fprintln(p.w, "};")
			fmt.Fprintln(p.w)
		}
	}
	for i, s := range prog.Strings {
		fmt.Fprintf(p.w, "/* string %d */ %s\n", i, strconv.Quote(s))
	}
	for _, g := range prog.Globals {
		fmt.Fprintf(p.w, "%s %s;\n", g.Type, g.Name)
	}
	if len(prog.Strings) > 0 || len(prog.Globals) > 0 {
		fmt.Fprintln(p.w)
	}
	for _, f := range prog.Functions {
		p.PrintFunction(f)
		fmt.Fprintln(p.w)
	}
}

// PrintFunction prints one function definition
func (p *Printer) PrintFunction(f *FunctionDefinition) {
	fmt.Fprintf(p.w, "%s %s(", f.Return, f.Name)
	for i, param := range f.Params {
		if i > 0 {
			fmt.Fprint(p.w, ", ")
		}
		fmt.Fprintf(p.w, "%s %s", param.Type, param.Name)
	}
	fmt.Fprintln(p.w, ")")
	fmt.Fprintln(p.w, "{")
	p.indent++
	for _, l := range f.Locals {
		p.writeIndent()
		fmt.Fprintf(p.w, "%s %s; /* #%d */\n", l.Type, l.Name, l.ID)
	}
	for _, stmt := range f.Body.Items {
		p.printStmt(stmt)
	}
	p.indent--
	fmt.Fprintln(p.w, "}")
}

func (p *Printer) writeIndent() {
	fmt.Fprint(p.w, strings.Repeat("  ", p.indent))
}

func (p *Printer) printBlock(b *Block) {
	fmt.Fprintln(p.w, "{")
	p.indent++
	for _, stmt := range b.Items {
		p.printStmt(stmt)
	}
	p.indent--
	p.writeIndent()
	fmt.Fprintln(p.w, "}")
}

func (p *Printer) printStmt(stmt Stmt) {
	p.writeIndent()
	switch s := stmt.(type) {
	case Return:
		fmt.Fprint(p.w, "return")
		if s.Expr != nil {
			fmt.Fprint(p.w, " ")
			p.printExpr(s.Expr)
		}
		fmt.Fprintln(p.w, ";")
	case Throw:
		fmt.Fprint(p.w, "__throw ")
		p.printExpr(s.Expr)
		fmt.Fprintln(p.w, ";")
	case ExprStmt:
		p.printExpr(s.Expr)
		fmt.Fprintf(p.w, "; /* %s */\n", s.Expr.Type())
	case If:
		fmt.Fprint(p.w, "if (")
		p.printExpr(s.Cond)
		fmt.Fprintln(p.w, ")")
		p.indent++
		p.printStmt(s.Then)
		p.indent--
		if s.Else != nil {
			p.writeIndent()
			fmt.Fprintln(p.w, "else")
			p.indent++
			p.printStmt(s.Else)
			p.indent--
		}
	case While:
		fmt.Fprint(p.w, "while (")
		p.printExpr(s.Cond)
		fmt.Fprintln(p.w, ")")
		p.indent++
		p.printStmt(s.Body)
		p.indent--
	case *Block:
		p.printBlock(s)
	default:
		fmt.Fprintf(p.w, "/* unknown stmt %T */;\n", stmt)
	}
}

func (p *Printer) printExpr(expr Expr) {
	switch e := expr.(type) {
	case Numeric:
		fmt.Fprintf(p.w, "%d", e.Value)
	case StrLit:
		fmt.Fprint(p.w, strconv.Quote(e.Value))
	case Identifier:
		fmt.Fprint(p.w, e.Name)
	case UnaryExpr:
		fmt.Fprint(p.w, e.Op.String())
		p.printExpr(e.Operand)
	case BinaryExpr:
		fmt.Fprint(p.w, "(")
		p.printExpr(e.Left)
		fmt.Fprintf(p.w, " %s ", e.Op)
		p.printExpr(e.Right)
		fmt.Fprint(p.w, ")")
	case DecayedArr:
		fmt.Fprint(p.w, "&")
		p.printExpr(e.Inner)
		fmt.Fprint(p.w, "[0]")
	case Call:
		fmt.Fprint(p.w, e.Name)
		fmt.Fprint(p.w, "(")
		for i, arg := range e.Args {
			if i > 0 {
				fmt.Fprint(p.w, ", ")
			}
			p.printExpr(arg)
		}
		fmt.Fprint(p.w, ")")
	default:
		fmt.Fprintf(p.w, "/* unknown expr %T */", expr)
	}
}

// FormatExpr renders a single expression, mainly for tests and diagnostics.
func FormatExpr(e Expr) string {
	var sb strings.Builder
	NewPrinter(&sb).printExpr(e)
	return sb.String()
}
