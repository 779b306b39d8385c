// Package diag defines the positioned diagnostics produced by the compiler.
// Every failure is reported as the first error found; there is no recovery.
package diag

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// Kind classifies a diagnostic
type Kind int

const (
	Syntax Kind = iota
	NameResolution
	Type
	Capacity
	Redeclaration
	Internal
)

// Sentinels for errors.Is; an *Error unwraps to the sentinel of its kind.
var (
	ErrSyntax         = errors.New("syntax error")
	ErrNameResolution = errors.New("name resolution error")
	ErrType           = errors.New("type error")
	ErrCapacity       = errors.New("capacity error")
	ErrRedeclaration  = errors.New("redeclaration error")
	ErrInternal       = errors.New("internal error")
)

var kindSentinels = []error{ErrSyntax, ErrNameResolution, ErrType, ErrCapacity, ErrRedeclaration, ErrInternal}

func (k Kind) String() string {
	if int(k) < len(kindSentinels) {
		return kindSentinels[k].Error()
	}
	return "error"
}

// Error is a diagnostic anchored at a byte offset of a source file
type Error struct {
	Kind     Kind
	Filename string
	Source   string
	Pos      int // zero-based byte offset into Source
	Msg      string
}

// New builds a diagnostic with a formatted message.
func New(kind Kind, filename, source string, pos int, format string, args ...any) *Error {
	return &Error{
		Kind:     kind,
		Filename: filename,
		Source:   source,
		Pos:      pos,
		Msg:      fmt.Sprintf(format, args...),
	}
}

// Errorf returns a diagnostic that has no position yet. Packages that know
// the kind of a failure but not where it happened return these; the caller
// anchors them with At.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Pos: -1, Msg: fmt.Sprintf(format, args...)}
}

// At anchors err at pos. An unanchored *Error takes the location, an already
// anchored one is returned unchanged, and any other error becomes Internal.
func At(err error, filename, source string, pos int) *Error {
	d, ok := As(err)
	if !ok {
		return New(Internal, filename, source, pos, "%v", err)
	}
	if d.Pos >= 0 {
		return d
	}
	return &Error{Kind: d.Kind, Filename: filename, Source: source, Pos: pos, Msg: d.Msg}
}

func (e *Error) Error() string {
	if e.Pos < 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	line, col := e.LineCol()
	return fmt.Sprintf("%s:%d:%d: %s: %s", e.Filename, line, col, e.Kind, e.Msg)
}

// Unwrap exposes the kind sentinel so errors.Is(err, diag.ErrCapacity) works.
func (e *Error) Unwrap() error {
	if int(e.Kind) < len(kindSentinels) {
		return kindSentinels[e.Kind]
	}
	return nil
}

// LineCol converts Pos to one-based line and column numbers.
func (e *Error) LineCol() (line, col int) {
	line, col = 1, 1
	pos := clamp(e.Pos, len(e.Source))
	for i := 0; i < pos; i++ {
		if e.Source[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return line, col
}

// SourceLine returns the text of the line containing Pos, without the newline.
func (e *Error) SourceLine() string {
	pos := clamp(e.Pos, len(e.Source))
	start := strings.LastIndexByte(e.Source[:pos], '\n') + 1
	end := strings.IndexByte(e.Source[pos:], '\n')
	if end < 0 {
		return e.Source[start:]
	}
	return e.Source[start : pos+end]
}

// Styler decorates parts of a rendered diagnostic. Nil functions leave the
// text plain.
type Styler struct {
	Kind  func(a ...any) string
	Caret func(a ...any) string
}

func (s Styler) kind(k Kind) string {
	if s.Kind == nil {
		return k.String()
	}
	return s.Kind(k.String())
}

func (s Styler) caret() string {
	if s.Caret == nil {
		return "^"
	}
	return s.Caret("^")
}

// Render writes the header, the offending line and a caret under Pos. A
// diagnostic without a position gets the header only.
func Render(w io.Writer, e *Error, s Styler) {
	if e.Pos < 0 {
		fmt.Fprintf(w, "%s: %s\n", s.kind(e.Kind), e.Msg)
		return
	}
	line, col := e.LineCol()
	fmt.Fprintf(w, "%s:%d:%d: %s: %s\n", e.Filename, line, col, s.kind(e.Kind), e.Msg)
	fmt.Fprintln(w, e.SourceLine())
	fmt.Fprintln(w, strings.Repeat(" ", col-1)+s.caret())
}

// As reports whether err is (or wraps) a diagnostic.
func As(err error) (*Error, bool) {
	var d *Error
	if errors.As(err, &d) {
		return d, true
	}
	return nil, false
}

func clamp(pos, n int) int {
	if pos < 0 {
		return 0
	}
	if pos > n {
		return n
	}
	return pos
}
