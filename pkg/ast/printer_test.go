package ast

import (
	"bytes"
	"testing"

	"github.com/raymyers/elfcc/pkg/ctypes"
)

func TestFormatExpr(t *testing.T) {
	x := Identifier{Name: "x", Ty: ctypes.Int()}
	arr := Identifier{Name: "a", Ty: ctypes.Array(ctypes.Char(), 4)}
	tests := []struct {
		name string
		expr Expr
		want string
	}{
		{"numeric", Numeric{Value: -3, Ty: ctypes.Int()}, "-3"},
		{"binary", BinaryExpr{Op: OpSub, Left: Numeric{Value: 5}, Right: Numeric{Value: 3}}, "(5 - 3)"},
		{"nested", BinaryExpr{Op: OpAssign, Left: x, Right: BinaryExpr{Op: OpMul, Left: x, Right: x}}, "(x = (x * x))"},
		{"deref", UnaryExpr{Op: OpDeref, Operand: x}, "*x"},
		{"addr", UnaryExpr{Op: OpAddr, Operand: x}, "&x"},
		{"decay", DecayedArr{Inner: arr}, "&a[0]"},
		{"call", Call{Name: "f", Args: []Expr{x, Numeric{Value: 1}}}, "f(x, 1)"},
		{"string", StrLit{Value: "hi\n"}, `"hi\n"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatExpr(tt.expr); got != tt.want {
				t.Errorf("FormatExpr() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPrintProgram(t *testing.T) {
	layout := ctypes.NewLayout(ctypes.DefaultLimits())
	if _, err := layout.Define("P", []ctypes.Field{{Name: "a", Type: ctypes.Char()}, {Name: "b", Type: ctypes.Int()}}); err != nil {
		t.Fatal(err)
	}
	x := Identifier{Name: "x", Sym: Symbol{Class: Global}, Ty: ctypes.Int()}
	prog := &Program{
		Globals: []GlobalVar{{Name: "x", Type: ctypes.Int()}},
		Layout:  layout,
		Functions: []*FunctionDefinition{{
			Name:   "main",
			Return: ctypes.Int(),
			Locals: []LocalDecl{{Name: "i", Type: ctypes.Char(), ID: 0}},
			Body: &Block{Items: []Stmt{
				ExprStmt{Expr: BinaryExpr{Op: OpAssign, Left: x, Right: Numeric{Value: 5, Ty: ctypes.Int()}, Ty: ctypes.Int()}},
				If{
					Cond: x,
					Then: Return{Expr: x},
					Else: &Block{Items: []Stmt{Throw{Expr: Numeric{Value: 1}}}},
				},
			}},
		}},
	}

	var out bytes.Buffer
	NewPrinter(&out).PrintProgram(prog)
	want := `struct P { /* size 8, align 4 */
  char a; /* offset 0 */
  int b; /* offset 4 */
};

int x;

int main()
{
  char i; /* #0 */
  (x = 5); /* int */
  if (x)
    return x;
  else
    {
      __throw 1;
    }
}

`
	if out.String() != want {
		t.Errorf("PrintProgram() =\n%s\nwant\n%s", out.String(), want)
	}
}
