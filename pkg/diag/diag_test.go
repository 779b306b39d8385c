package diag

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

func TestLineCol(t *testing.T) {
	src := "int main() {\n  return x;\n}\n"
	tests := []struct {
		pos      int
		wantLine int
		wantCol  int
	}{
		{0, 1, 1},
		{4, 1, 5},
		{13, 2, 1},
		{22, 2, 10},
		{1000, 4, 1},
		{-3, 1, 1},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.pos), func(t *testing.T) {
			e := New(Syntax, "t.c", src, tt.pos, "oops")
			line, col := e.LineCol()
			if line != tt.wantLine || col != tt.wantCol {
				t.Errorf("LineCol() = %d:%d, want %d:%d", line, col, tt.wantLine, tt.wantCol)
			}
		})
	}
}

func TestErrorString(t *testing.T) {
	e := New(NameResolution, "t.c", "int main() {\n  return x;\n}\n", 22, "undefined identifier %q", "x")
	want := `t.c:2:10: name resolution error: undefined identifier "x"`
	if got := e.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestRender(t *testing.T) {
	src := "int main() {\n  return x;\n}\n"
	brackets := func(a ...any) string { return "[" + fmt.Sprint(a...) + "]" }
	tests := []struct {
		name  string
		err   *Error
		style Styler
		want  string
	}{
		{"plain", New(Type, "t.c", src, 22, "bad"), Styler{},
			"t.c:2:10: type error: bad\n  return x;\n         ^\n"},
		{"styled", New(Type, "t.c", src, 22, "bad"), Styler{Kind: brackets, Caret: brackets},
			"t.c:2:10: [type error]: bad\n  return x;\n         [^]\n"},
		{"no position", Errorf(Internal, "sizes differ"), Styler{},
			"internal error: sizes differ\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			Render(&out, tt.err, tt.style)
			if out.String() != tt.want {
				t.Errorf("Render() =\n%s\nwant\n%s", out.String(), tt.want)
			}
		})
	}
}

func TestSentinels(t *testing.T) {
	tests := []struct {
		kind Kind
		want error
	}{
		{Syntax, ErrSyntax},
		{NameResolution, ErrNameResolution},
		{Type, ErrType},
		{Capacity, ErrCapacity},
		{Redeclaration, ErrRedeclaration},
		{Internal, ErrInternal},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			var err error = New(tt.kind, "t.c", "", 0, "x")
			wrapped := fmt.Errorf("compiling: %w", err)
			if !errors.Is(wrapped, tt.want) {
				t.Errorf("errors.Is(%v, %v) = false", wrapped, tt.want)
			}
			d, ok := As(wrapped)
			if !ok || d.Kind != tt.kind {
				t.Errorf("As() = %v, %v", d, ok)
			}
		})
	}
}

func TestAt(t *testing.T) {
	src := "int x;\nchar y;\n"
	loose := Errorf(Capacity, "too big")
	if got := loose.Error(); got != "capacity error: too big" {
		t.Errorf("Error() = %q", got)
	}

	anchored := At(loose, "t.c", src, 7)
	if anchored.Kind != Capacity || anchored.Pos != 7 || anchored.Filename != "t.c" {
		t.Errorf("At() = %+v", anchored)
	}
	if loose.Pos != -1 {
		t.Errorf("At() modified its input: %+v", loose)
	}

	if again := At(anchored, "other.c", src, 0); again != anchored {
		t.Errorf("At() re-anchored an anchored error: %+v", again)
	}

	plain := At(errors.New("boom"), "t.c", src, 1)
	if plain.Kind != Internal || plain.Msg != "boom" {
		t.Errorf("At(plain) = %+v", plain)
	}
}
