package codegen

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"github.com/raymyers/elfcc/pkg/ast"
	"github.com/raymyers/elfcc/pkg/buf"
	"github.com/raymyers/elfcc/pkg/ctypes"
	"github.com/raymyers/elfcc/pkg/diag"
	"github.com/raymyers/elfcc/pkg/parser"
	"github.com/raymyers/elfcc/pkg/x86"
)

func num(v int32) ast.Numeric {
	return ast.Numeric{Value: v, Ty: ctypes.Int()}
}

func newTestGen(limits ctypes.Limits) *funcGen {
	layout := ctypes.NewLayout(limits)
	return &funcGen{
		fn:     &ast.FunctionDefinition{Name: "test", File: "test.c"},
		layout: layout,
		limits: limits,
		syms:   &Symbols{Functions: map[string]uint32{}, Globals: map[string]uint32{}},
		frame:  newFrame(layout),
	}
}

func emitProgram(t *testing.T, src string, limits ctypes.Limits) (*Output, error) {
	t.Helper()
	prog, err := parser.Parse("test.c", src, limits)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return Emit(prog, nil, Options{Limits: limits, Base: 0x400078})
}

func hexOf(parts ...buf.Buf) string {
	return buf.Concat(parts...).String()
}

func TestFunctionBytes(t *testing.T) {
	out, err := emitProgram(t, "int main() { return 5 - 3; }", ctypes.DefaultLimits())
	if err != nil {
		t.Fatal(err)
	}
	want := hexOf(
		x86.Prologue(0),
		x86.MovRDIImm(5), x86.Push(x86.RDI),
		x86.MovRDIImm(3), x86.Push(x86.RDI),
		x86.Pop(x86.RAX), x86.Pop(x86.RDI), x86.SubRDIRAX(), x86.SignExtendRDI(4),
		x86.MovRR(x86.RAX, x86.RDI), x86.Leave(), x86.Ret(),
		x86.XorEAXEAX(), x86.Leave(), x86.Ret(),
	)
	if got := out.Text.String(); got != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}
}

func TestIfGuardOffsets(t *testing.T) {
	thenStmt := ast.ExprStmt{Expr: num(2)}
	elseStmt := ast.ExprStmt{Expr: num(3)}
	a, b := x86.MovRDIImm(2), x86.MovRDIImm(3)

	tests := []struct {
		name string
		stmt ast.If
		want string
	}{
		{
			name: "without else",
			stmt: ast.If{Cond: num(1), Then: thenStmt},
			want: hexOf(x86.MovRDIImm(1), x86.TestRDI(), x86.Jcc8(x86.CondE, int8(a.Len())), a),
		},
		{
			name: "with else",
			stmt: ast.If{Cond: num(1), Then: thenStmt, Else: elseStmt},
			want: hexOf(x86.MovRDIImm(1), x86.TestRDI(),
				x86.Jcc8(x86.CondE, int8(a.Len()+x86.Rel8Len)), a,
				x86.Jmp8(int8(b.Len())), b),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := newTestGen(ctypes.DefaultLimits()).stmt(tt.stmt)
			if err != nil {
				t.Fatal(err)
			}
			if got.String() != tt.want {
				t.Errorf("got  %s\nwant %s", got, tt.want)
			}
		})
	}
}

func TestWhileJumps(t *testing.T) {
	got, err := newTestGen(ctypes.DefaultLimits()).stmt(ast.While{Cond: num(1), Body: ast.ExprStmt{Expr: num(2)}})
	if err != nil {
		t.Fatal(err)
	}
	// cond(7) test(3) je(2) body(7) jmp(2): back over all 21 bytes.
	want := hexOf(x86.MovRDIImm(1), x86.TestRDI(), x86.Jcc8(x86.CondE, 9), x86.MovRDIImm(2), x86.Jmp8(-21))
	if got.String() != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}
}

func longBlock(n int) *ast.Block {
	b := &ast.Block{}
	for i := 0; i < n; i++ {
		b.Items = append(b.Items, ast.ExprStmt{Expr: num(int32(i))})
	}
	return b
}

func TestBranchCapacity(t *testing.T) {
	tests := []struct {
		name    string
		limit   int
		stmt    ast.Stmt
		wantErr bool
	}{
		{"if body fits", 127, ast.If{Cond: num(1), Then: longBlock(18)}, false},        // 126 bytes
		{"if body too long", 127, ast.If{Cond: num(1), Then: longBlock(19)}, true},     // 133 bytes
		{"else pushes guard over", 127, ast.If{Cond: num(1), Then: longBlock(18), Else: longBlock(1)}, true},
		{"loop back edge too long", 127, ast.While{Cond: num(1), Body: longBlock(17)}, true}, // 133 bytes back
		{"loop fits", 127, ast.While{Cond: num(1), Body: longBlock(16)}, false},
		{"lowered limit", 16, ast.If{Cond: num(1), Then: longBlock(3)}, true},
		{"raised limit is still rel8", 1000, ast.If{Cond: num(1), Then: longBlock(19)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limits := ctypes.DefaultLimits()
			limits.MaxBranchDisplacement = tt.limit
			_, err := newTestGen(limits).stmt(tt.stmt)
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, diag.ErrCapacity) {
				t.Fatalf("error = %v, want capacity error", err)
			}
			if !strings.Contains(err.Error(), "bytes exceeds") {
				t.Errorf("message should name the jump length: %v", err)
			}
		})
	}
}

func TestFrameSlots(t *testing.T) {
	layout := ctypes.NewLayout(ctypes.DefaultLimits())
	if _, err := layout.Define("P", []ctypes.Field{{Name: "a", Type: ctypes.Char()}, {Name: "b", Type: ctypes.Int()}}); err != nil {
		t.Fatal(err)
	}
	f := newFrame(layout)
	steps := []struct {
		id   int
		typ  ctypes.Type
		want int32
	}{
		{0, ctypes.Char(), -4},
		{1, ctypes.Int(), -8},
		{2, ctypes.Pointer(ctypes.Int()), -16},
		{0, ctypes.Char(), -4}, // reused
		{3, ctypes.Struct("P"), -24},
		{4, ctypes.Array(ctypes.Char(), 5), -29},
	}
	for _, s := range steps {
		got, err := f.Slot(s.id, s.typ)
		if err != nil {
			t.Fatal(err)
		}
		if got != s.want {
			t.Errorf("slot %d (%s) = %d, want %d", s.id, s.typ, got, s.want)
		}
	}
	if f.Size() != 32 {
		t.Errorf("frame size = %d, want 32", f.Size())
	}
	if len(f.slots) != 5 {
		t.Errorf("slots = %v", f.slots)
	}
}

func TestTooManyParameters(t *testing.T) {
	src := "int f(int a, int b, int c, int d, int e, int g, int h) { return a; }"
	if _, err := emitProgram(t, src, ctypes.DefaultLimits()); !errors.Is(err, diag.ErrCapacity) {
		t.Errorf("seven parameters: error = %v, want capacity error", err)
	}

	limits := ctypes.DefaultLimits()
	limits.MaxRegisterArgs = 2
	_, err := emitProgram(t, "int f(int a, int b, int c) { return a; }", limits)
	if !errors.Is(err, diag.ErrCapacity) {
		t.Fatalf("error = %v, want capacity error", err)
	}
	d, _ := diag.As(err)
	if d.Pos != 4 {
		t.Errorf("error position = %d, want 4", d.Pos)
	}
}

func TestParameterStores(t *testing.T) {
	out, err := emitProgram(t, "int f(char c, int *p) { return c; }", ctypes.DefaultLimits())
	if err != nil {
		t.Fatal(err)
	}
	c, _ := x86.StoreArg(x86.RDI, -4, 1)
	p, _ := x86.StoreArg(x86.RSI, -16, 8)
	want := hexOf(x86.Prologue(16), c, p)
	if got := out.Text.String(); !strings.HasPrefix(got, want) {
		t.Errorf("got  %s\nwant prefix %s", got, want)
	}
}

func TestPointerScaling(t *testing.T) {
	out, err := emitProgram(t, "int *p; int main() { p = p + 3; return 0; }", ctypes.DefaultLimits())
	if err != nil {
		t.Fatal(err)
	}
	// 4 * 3 is computed before the add.
	scale := hexOf(x86.MovRDIImm(4), x86.Push(x86.RDI), x86.MovRDIImm(3), x86.Push(x86.RDI),
		x86.Pop(x86.RAX), x86.Pop(x86.RDI), x86.IMulRDIRAX())
	if !strings.Contains(out.Text.String(), scale) {
		t.Errorf("no scaling multiply in %s", out.Text)
	}
}

func TestForwardCallResolves(t *testing.T) {
	out, err := emitProgram(t, "int later(); int main() { return later(); } int later() { return 7; }", ctypes.DefaultLimits())
	if err != nil {
		t.Fatal(err)
	}
	if out.Offsets["main"] != 0 || out.Offsets["later"] == 0 {
		t.Fatalf("offsets = %v", out.Offsets)
	}
	addr := out.Symbols.Functions["later"]
	if addr != 0x400078+uint32(out.Offsets["later"]) {
		t.Errorf("later at %#x, offset %d", addr, out.Offsets["later"])
	}
	load := x86.MovEAXImm(addr).Bytes()
	if !bytes.Contains(out.Text.Bytes(), append(load, x86.CallRAX().Bytes()...)) {
		t.Errorf("main does not call %#x: %s", addr, out.Text)
	}
}

func TestUndefinedFunction(t *testing.T) {
	_, err := emitProgram(t, "int f(); int main() { return f(); }", ctypes.DefaultLimits())
	if !errors.Is(err, diag.ErrNameResolution) {
		t.Errorf("error = %v, want name resolution error", err)
	}
}

func TestCallPadding(t *testing.T) {
	out, err := emitProgram(t, "int g() { return 1; } int main() { return 1 + g(); }", ctypes.DefaultLimits())
	if err != nil {
		t.Fatal(err)
	}
	// One word is pushed when g is called, so the call is padded.
	main := out.Text.Bytes()[out.Offsets["main"]:]
	pad := hexOf(x86.SubRSP(8), x86.MovEAXImm(out.Symbols.Functions["g"]), x86.CallRAX(), x86.AddRSP(8))
	if !strings.Contains(buf.New(main...).String(), pad) {
		t.Errorf("call is not padded: %s", buf.New(main...))
	}
}

func TestDataLayout(t *testing.T) {
	out, err := emitProgram(t, `char c; int n; int main() { char *s; s = "ab"; c = 1; n = 2; return 0; }`, ctypes.DefaultLimits())
	if err != nil {
		t.Fatal(err)
	}
	text := out.Text.Bytes()
	if !bytes.HasSuffix(text, []byte("ab\x00")) {
		t.Errorf("string data missing from the end of text")
	}
	if out.CodeSize != len(text)-3 {
		t.Errorf("code size = %d, text = %d", out.CodeSize, len(text))
	}
	base := uint32(0x400078)
	if out.Symbols.Strings[0] != base+uint32(out.CodeSize) {
		t.Errorf("string at %#x", out.Symbols.Strings[0])
	}
	bssStart := base + uint32(ctypes.AlignUp(len(text), 8))
	if out.Symbols.Globals["c"] != bssStart || out.Symbols.Globals["n"] != bssStart+4 {
		t.Errorf("globals at %#x, %#x (bss starts %#x)", out.Symbols.Globals["c"], out.Symbols.Globals["n"], bssStart)
	}
	if end := base + uint32(len(text)+out.BSSSize); end != bssStart+8 {
		t.Errorf("bss ends at %#x, want %#x", end, bssStart+8)
	}
	addr := make([]byte, 4)
	binary.LittleEndian.PutUint32(addr, out.Symbols.Globals["n"])
	if !bytes.Contains(text, append([]byte{0xbf}, addr...)) {
		t.Errorf("no mov edi, &n in code")
	}
}

func TestRoutinesComeFirst(t *testing.T) {
	prog, err := parser.Parse("test.c", "int main() { return 0; }", ctypes.DefaultLimits())
	if err != nil {
		t.Fatal(err)
	}
	var seen uint32
	stub := Routine{Name: "_start", Emit: func(syms *Symbols) (buf.Buf, error) {
		seen = syms.Functions["main"]
		return x86.MovEAXImm(syms.Functions["main"]), nil
	}}
	out, err := Emit(prog, []Routine{stub}, Options{Limits: ctypes.DefaultLimits(), Base: 0x1000})
	if err != nil {
		t.Fatal(err)
	}
	if out.Order[0] != "_start" || out.Offsets["main"] != 5 {
		t.Errorf("order = %v, offsets = %v", out.Order, out.Offsets)
	}
	if seen != 0x1005 {
		t.Errorf("stub saw main at %#x, want 0x1005", seen)
	}
}

func TestUnstableRoutineSize(t *testing.T) {
	prog, err := parser.Parse("test.c", "int main() { return 0; }", ctypes.DefaultLimits())
	if err != nil {
		t.Fatal(err)
	}
	grows := Routine{Name: "grows", Emit: func(syms *Symbols) (buf.Buf, error) {
		if syms.Functions["main"] == 0 {
			return buf.New(0x90), nil
		}
		return buf.New(0x90, 0x90), nil
	}}
	_, err = Emit(prog, []Routine{grows}, Options{Limits: ctypes.DefaultLimits(), Base: 0x1000})
	if !errors.Is(err, diag.ErrInternal) {
		t.Errorf("error = %v, want internal error", err)
	}
}

func TestFileLimits(t *testing.T) {
	prog, err := parser.Parse("lib.c", "int f(int c) { if (c) return 10; return 20; }", ctypes.DefaultLimits())
	if err != nil {
		t.Fatal(err)
	}
	tight := ctypes.DefaultLimits()
	tight.MaxBranchDisplacement = 4

	if _, err := Emit(prog, nil, Options{Limits: tight, Base: 0x400078}); !errors.Is(err, diag.ErrCapacity) {
		t.Fatalf("tight limits: error = %v, want capacity error", err)
	}
	out, err := Emit(prog, nil, Options{
		Limits:     tight,
		Base:       0x400078,
		FileLimits: map[string]ctypes.Limits{"lib.c": ctypes.DefaultLimits()},
	})
	if err != nil {
		t.Fatalf("per-file limits not applied: %v", err)
	}
	if _, ok := out.Offsets["f"]; !ok {
		t.Errorf("f missing from %v", out.Order)
	}
}
