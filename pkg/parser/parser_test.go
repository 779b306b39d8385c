package parser

import (
	"errors"
	"os"
	"testing"

	"github.com/raymyers/elfcc/pkg/ast"
	"github.com/raymyers/elfcc/pkg/ctypes"
	"github.com/raymyers/elfcc/pkg/diag"
	"gopkg.in/yaml.v3"
)

// TestSpec represents a test case from parse.yaml
type TestSpec struct {
	Name  string  `yaml:"name"`
	Decls string  `yaml:"decls"`
	Input string  `yaml:"input"`
	AST   ASTSpec `yaml:"ast"`
}

// ASTSpec represents the expected AST structure
type ASTSpec struct {
	Kind    string    `yaml:"kind"`
	Name    string    `yaml:"name,omitempty"`
	Type    string    `yaml:"type,omitempty"`
	Op      string    `yaml:"op,omitempty"`
	Pos     *int      `yaml:"pos,omitempty"`
	Value   *int64    `yaml:"value,omitempty"`
	ID      *int      `yaml:"id,omitempty"`
	Index   *int      `yaml:"index,omitempty"`
	Left    *ASTSpec  `yaml:"left,omitempty"`
	Right   *ASTSpec  `yaml:"right,omitempty"`
	Operand *ASTSpec  `yaml:"operand,omitempty"`
	Inner   *ASTSpec  `yaml:"inner,omitempty"`
	Expr    *ASTSpec  `yaml:"expr,omitempty"`
	Args    []ASTSpec `yaml:"args,omitempty"`
	Items   []ASTSpec `yaml:"items,omitempty"`
	Cond    *ASTSpec  `yaml:"cond,omitempty"`
	Then    *ASTSpec  `yaml:"then,omitempty"`
	Else    *ASTSpec  `yaml:"else,omitempty"`
	Body    *ASTSpec  `yaml:"body,omitempty"`
}

// TestFile represents the parse.yaml file structure
type TestFile struct {
	Tests []TestSpec `yaml:"tests"`
}

func TestParseYAML(t *testing.T) {
	data, err := os.ReadFile("../../testdata/parse.yaml")
	if err != nil {
		t.Fatalf("failed to read parse.yaml: %v", err)
	}

	var testFile TestFile
	if err := yaml.Unmarshal(data, &testFile); err != nil {
		t.Fatalf("failed to parse parse.yaml: %v", err)
	}

	for _, tc := range testFile.Tests {
		t.Run(tc.Name, func(t *testing.T) {
			env := NewEnv(ctypes.DefaultLimits())
			if err := New("decls.c", tc.Decls, env).ParseFile(); err != nil {
				t.Fatalf("decls: %v", err)
			}
			stmt, err := New("input.c", tc.Input, env).ParseStatement()
			if err != nil {
				t.Fatalf("parse error: %v", err)
			}
			verifyAST(t, stmt, tc.AST)
		})
	}
}

func verifyAST(t *testing.T, node ast.Node, spec ASTSpec) {
	t.Helper()

	if e, ok := node.(ast.Expr); ok {
		if spec.Type != "" && e.Type().String() != spec.Type {
			t.Errorf("%s.Type: expected %q, got %q", spec.Kind, spec.Type, e.Type())
		}
		if spec.Pos != nil && e.Pos() != *spec.Pos {
			t.Errorf("%s.Pos: expected %d, got %d", spec.Kind, *spec.Pos, e.Pos())
		}
	}

	switch spec.Kind {
	case "ExprStmt":
		s, ok := node.(ast.ExprStmt)
		if !ok {
			t.Fatalf("expected ExprStmt, got %T", node)
		}
		verifyChild(t, s.Expr, spec.Expr)

	case "Return":
		s, ok := node.(ast.Return)
		if !ok {
			t.Fatalf("expected Return, got %T", node)
		}
		verifyChild(t, s.Expr, spec.Expr)

	case "Throw":
		s, ok := node.(ast.Throw)
		if !ok {
			t.Fatalf("expected Throw, got %T", node)
		}
		verifyChild(t, s.Expr, spec.Expr)

	case "If":
		s, ok := node.(ast.If)
		if !ok {
			t.Fatalf("expected If, got %T", node)
		}
		verifyChild(t, s.Cond, spec.Cond)
		verifyChild(t, s.Then, spec.Then)
		if spec.Else != nil {
			verifyChild(t, s.Else, spec.Else)
		}

	case "While":
		s, ok := node.(ast.While)
		if !ok {
			t.Fatalf("expected While, got %T", node)
		}
		verifyChild(t, s.Cond, spec.Cond)
		verifyChild(t, s.Body, spec.Body)

	case "Block":
		block, ok := node.(*ast.Block)
		if !ok {
			t.Fatalf("expected Block, got %T", node)
		}
		if len(spec.Items) != len(block.Items) {
			t.Fatalf("Block.Items: expected %d items, got %d", len(spec.Items), len(block.Items))
		}
		for i, itemSpec := range spec.Items {
			verifyAST(t, block.Items[i], itemSpec)
		}

	case "Numeric":
		n, ok := node.(ast.Numeric)
		if !ok {
			t.Fatalf("expected Numeric, got %T", node)
		}
		if spec.Value != nil && int64(n.Value) != *spec.Value {
			t.Errorf("Numeric.Value: expected %d, got %d", *spec.Value, n.Value)
		}

	case "Identifier":
		id, ok := node.(ast.Identifier)
		if !ok {
			t.Fatalf("expected Identifier, got %T", node)
		}
		if spec.Name != "" && id.Name != spec.Name {
			t.Errorf("Identifier.Name: expected %q, got %q", spec.Name, id.Name)
		}
		if spec.ID != nil && id.Sym.ID != *spec.ID {
			t.Errorf("Identifier %s: expected local #%d, got #%d", id.Name, *spec.ID, id.Sym.ID)
		}

	case "BinaryExpr":
		b, ok := node.(ast.BinaryExpr)
		if !ok {
			t.Fatalf("expected BinaryExpr, got %T", node)
		}
		if spec.Op != "" && b.Op.String() != spec.Op {
			t.Errorf("BinaryExpr.Op: expected %q, got %q", spec.Op, b.Op.String())
		}
		if spec.Left != nil {
			verifyAST(t, b.Left, *spec.Left)
		}
		if spec.Right != nil {
			verifyAST(t, b.Right, *spec.Right)
		}

	case "UnaryExpr":
		u, ok := node.(ast.UnaryExpr)
		if !ok {
			t.Fatalf("expected UnaryExpr, got %T", node)
		}
		if spec.Op != "" && u.Op.String() != spec.Op {
			t.Errorf("UnaryExpr.Op: expected %q, got %q", spec.Op, u.Op.String())
		}
		if spec.Operand != nil {
			verifyAST(t, u.Operand, *spec.Operand)
		}

	case "DecayedArr":
		d, ok := node.(ast.DecayedArr)
		if !ok {
			t.Fatalf("expected DecayedArr, got %T", node)
		}
		if spec.Inner != nil {
			verifyAST(t, d.Inner, *spec.Inner)
		}

	case "StrLit":
		s, ok := node.(ast.StrLit)
		if !ok {
			t.Fatalf("expected StrLit, got %T", node)
		}
		if spec.Index != nil && s.Index != *spec.Index {
			t.Errorf("StrLit.Index: expected %d, got %d", *spec.Index, s.Index)
		}

	case "Call":
		c, ok := node.(ast.Call)
		if !ok {
			t.Fatalf("expected Call, got %T", node)
		}
		if spec.Name != "" && c.Name != spec.Name {
			t.Errorf("Call.Name: expected %q, got %q", spec.Name, c.Name)
		}
		if spec.Args != nil {
			if len(spec.Args) != len(c.Args) {
				t.Fatalf("Call.Args: expected %d, got %d", len(spec.Args), len(c.Args))
			}
			for i, a := range spec.Args {
				verifyAST(t, c.Args[i], a)
			}
		}

	default:
		t.Fatalf("unknown AST kind: %s", spec.Kind)
	}
}

func verifyChild(t *testing.T, node ast.Node, spec *ASTSpec) {
	t.Helper()
	if spec == nil {
		return
	}
	if node == nil {
		t.Fatalf("expected %s, got nil", spec.Kind)
	}
	verifyAST(t, node, *spec)
}

var kindSentinels = map[string]error{
	"syntax":          diag.ErrSyntax,
	"name_resolution": diag.ErrNameResolution,
	"type":            diag.ErrType,
	"capacity":        diag.ErrCapacity,
	"redeclaration":   diag.ErrRedeclaration,
}

// ErrorSpec represents a case from parse_errors.yaml
type ErrorSpec struct {
	Name  string `yaml:"name"`
	Input string `yaml:"input"`
	Kind  string `yaml:"kind"`
	Pos   int    `yaml:"pos"`
}

func TestParseErrorsYAML(t *testing.T) {
	data, err := os.ReadFile("../../testdata/parse_errors.yaml")
	if err != nil {
		t.Fatalf("failed to read parse_errors.yaml: %v", err)
	}
	var file struct {
		Tests []ErrorSpec `yaml:"tests"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		t.Fatalf("failed to parse parse_errors.yaml: %v", err)
	}

	for _, tc := range file.Tests {
		t.Run(tc.Name, func(t *testing.T) {
			want, ok := kindSentinels[tc.Kind]
			if !ok {
				t.Fatalf("unknown error kind %q", tc.Kind)
			}
			_, err := Parse("test.c", tc.Input, ctypes.DefaultLimits())
			if err == nil {
				t.Fatal("expected an error, got none")
			}
			if !errors.Is(err, want) {
				t.Errorf("error = %v, want kind %s", err, tc.Kind)
			}
			d, ok := diag.As(err)
			if !ok {
				t.Fatalf("error %v is not a diagnostic", err)
			}
			if d.Pos != tc.Pos {
				t.Errorf("error position = %d, want %d (%v)", d.Pos, tc.Pos, err)
			}
			if d.Filename != "test.c" || d.Source != tc.Input {
				t.Errorf("diagnostic not anchored to the input: %+v", d)
			}
		})
	}
}

func TestValidPrograms(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty main", `int main() {}`},
		{"void parameter list", `int main(void) { return 0; }`},
		{"shadowing in nested scope", `int main() { int x; { int x; x = 1; } return x; }`},
		{"shadowing a parameter in a block", `int f(int a) { { char a; a = 1; } return a; }`},
		{"recursion", `int fib(int n) { if (n < 2) return n; return fib(n - 1) + fib(n - 2); }`},
		{"forward call through prototype", `int g(int x); int f() { return g(1); } int g(int x) { return x; }`},
		{"null pointer argument", `int f(int *p); int main() { return f(0); }`},
		{"void pointer argument", `int f(void *p); int main() { int x; return f(&x); }`},
		{"char and int interchange", `int f(char c); int main() { int x; x = 300; return f(x); }`},
		{"void function", `void f() { return; } int main() { f(); return 0; }`},
		{"struct with pointer to itself", `struct N { int v; struct N *next; }; int main() { struct N n; n.next = &n; return n.next->v; }`},
		{"array of structs", `struct P { int x; int y; }; struct P ps[3]; int main() { ps[1].y = 2; return ps[1].y; }`},
		{"two dimensional array", `int g[2][3]; int main() { g[1][2] = 4; return g[1][2]; }`},
		{"multiple declarators", `int a, *b; int main() { int c = 1, d = 2; b = &a; return c + d; }`},
		{"string literal", `int main() { char *s; s = "hi"; return s[1]; }`},
		{"pointer comparison", `int main() { int a[2]; int *p; p = a; return p < a + 2; }`},
		{"comments", "int main() { // line\n /* block */ return 0; }"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse("test.c", tt.input, ctypes.DefaultLimits()); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestProgramContents(t *testing.T) {
	prog, err := Parse("test.c", `
struct P { char c; int i; };
int x;
char *msg;
int helper(int a, char *b);
int main() { msg = "hi"; msg = "hi"; x = helper(1, "yo"); return x; }
int helper(int a, char *b) { int local; char other; return a; }
`, ctypes.DefaultLimits())
	if err != nil {
		t.Fatal(err)
	}

	if len(prog.Functions) != 2 || prog.Functions[0].Name != "main" || prog.Functions[1].Name != "helper" {
		t.Fatalf("functions = %v", prog.Functions)
	}
	if len(prog.Globals) != 2 || prog.Globals[0].Name != "x" || prog.Globals[1].Name != "msg" {
		t.Errorf("globals = %v", prog.Globals)
	}
	if len(prog.Strings) != 2 || prog.Strings[0] != "hi" || prog.Strings[1] != "yo" {
		t.Errorf("strings = %q, want deduplicated [hi yo]", prog.Strings)
	}
	sig, ok := prog.Signatures["helper"]
	if !ok || len(sig.Params) != 2 || !ctypes.Equal(sig.Params[1], ctypes.Pointer(ctypes.Char())) {
		t.Errorf("signature = %+v", sig)
	}

	helper := prog.Functions[1]
	if len(helper.Params) != 2 || helper.Params[0].ID != 0 || helper.Params[1].ID != 1 {
		t.Errorf("params = %+v", helper.Params)
	}
	if len(helper.Locals) != 2 || helper.Locals[0].ID != 2 || helper.Locals[1].ID != 3 {
		t.Errorf("locals = %+v", helper.Locals)
	}
	if d, ok := prog.Layout.Lookup("P"); !ok || d.Size != 8 {
		t.Errorf("struct P = %v", d)
	}
}

func TestLaterDeclarationReplacesEarlier(t *testing.T) {
	prog, err := Parse("test.c", `
int f;
int f() { return 1; }
int g() { return 1; }
int g() { return 2; }
`, ctypes.DefaultLimits())
	if err != nil {
		t.Fatal(err)
	}
	if len(prog.Globals) != 0 {
		t.Errorf("global f should be replaced by function f: %v", prog.Globals)
	}
	if len(prog.Functions) != 2 {
		t.Fatalf("functions = %d, want 2", len(prog.Functions))
	}
	ret := prog.Functions[1].Body.Items[0].(ast.Return)
	if n := ret.Expr.(ast.Numeric); n.Value != 2 {
		t.Errorf("g returns %d, want the later body", n.Value)
	}
}

func TestConfigurableLimits(t *testing.T) {
	src := `int big[100];`
	if _, err := Parse("test.c", src, ctypes.DefaultLimits()); !errors.Is(err, diag.ErrCapacity) {
		t.Errorf("default limits: error = %v, want capacity error", err)
	}
	limits := ctypes.DefaultLimits()
	limits.MaxTypeSize = 4096
	if _, err := Parse("test.c", src, limits); err != nil {
		t.Errorf("raised limits: %v", err)
	}
}
