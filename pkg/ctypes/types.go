// Package ctypes defines the C type system: int, char, void, pointers,
// fixed-size arrays and named structs, with their sizes and alignments.
package ctypes

import (
	"fmt"
	"strings"

	"github.com/raymyers/elfcc/pkg/diag"
)

// Type is the interface for all C types
type Type interface {
	implType()
	String() string
}

// Tint is the 32-bit signed int
type Tint struct{}

// Tchar is the 8-bit signed char
type Tchar struct{}

// Tvoid is only legal as a return type or a pointee
type Tvoid struct{}

// Tpointer represents pointer types
type Tpointer struct {
	Elem Type
}

// Tarray represents fixed-size array types
type Tarray struct {
	Elem Type
	Len  int
}

// Tstruct names a struct; its layout lives in a Layout's struct table.
type Tstruct struct {
	Name string
}

func (Tint) implType()     {}
func (Tchar) implType()    {}
func (Tvoid) implType()    {}
func (Tpointer) implType() {}
func (Tarray) implType()   {}
func (Tstruct) implType()  {}

func (Tint) String() string  { return "int" }
func (Tchar) String() string { return "char" }
func (Tvoid) String() string { return "void" }

func (t Tpointer) String() string {
	return t.Elem.String() + " *"
}

func (t Tarray) String() string {
	return fmt.Sprintf("%s[%d]", t.Elem, t.Len)
}

func (t Tstruct) String() string {
	return "struct " + t.Name
}

// Int returns the int type
func Int() Type { return Tint{} }

// Char returns the char type
func Char() Type { return Tchar{} }

// Void returns the void type
func Void() Type { return Tvoid{} }

// Pointer returns a pointer to the given type
func Pointer(elem Type) Type {
	return Tpointer{Elem: elem}
}

// Array returns an array type. Use Layout.Array to enforce the length budget.
func Array(elem Type, n int) Type {
	return Tarray{Elem: elem, Len: n}
}

// Struct returns a reference to a named struct
func Struct(name string) Type {
	return Tstruct{Name: name}
}

// Equal checks if two types are equal
func Equal(a, b Type) bool {
	if a == nil || b == nil {
		return a == b
	}
	switch ta := a.(type) {
	case Tint:
		_, ok := b.(Tint)
		return ok
	case Tchar:
		_, ok := b.(Tchar)
		return ok
	case Tvoid:
		_, ok := b.(Tvoid)
		return ok
	case Tpointer:
		tb, ok := b.(Tpointer)
		return ok && Equal(ta.Elem, tb.Elem)
	case Tarray:
		tb, ok := b.(Tarray)
		return ok && ta.Len == tb.Len && Equal(ta.Elem, tb.Elem)
	case Tstruct:
		tb, ok := b.(Tstruct)
		return ok && ta.Name == tb.Name
	}
	return false
}

// Deref returns the type reached through one indirection, or nil when t
// cannot be dereferenced.
func Deref(t Type) Type {
	switch t := t.(type) {
	case Tpointer:
		return t.Elem
	case Tarray:
		return t.Elem
	}
	return nil
}

// Decay converts an array type to a pointer to its first element.
// Other types are returned unchanged.
func Decay(t Type) Type {
	if a, ok := t.(Tarray); ok {
		return Pointer(a.Elem)
	}
	return t
}

// IsInteger reports whether t is int or char.
func IsInteger(t Type) bool {
	switch t.(type) {
	case Tint, Tchar:
		return true
	}
	return false
}

// IsPointer reports whether t is a pointer.
func IsPointer(t Type) bool {
	_, ok := t.(Tpointer)
	return ok
}

// IsVoid reports whether t is void.
func IsVoid(t Type) bool {
	_, ok := t.(Tvoid)
	return ok
}

// IsScalar reports whether a value of type t fits the scratch register.
func IsScalar(t Type) bool {
	return IsInteger(t) || IsPointer(t)
}

// Member is one field of a struct, at a fixed byte offset.
type Member struct {
	Name   string
	Type   Type
	Offset int
}

// StructDef is the layout of a struct, fixed when its definition closes.
type StructDef struct {
	Name    string
	Size    int
	Align   int
	Members []Member
}

// Member looks up a field by name.
func (d *StructDef) Member(name string) (Member, bool) {
	for _, m := range d.Members {
		if m.Name == name {
			return m, true
		}
	}
	return Member{}, false
}

func (d *StructDef) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "struct %s { /* size %d, align %d */", d.Name, d.Size, d.Align)
	for _, m := range d.Members {
		fmt.Fprintf(&sb, " %s %s @%d;", m.Type, m.Name, m.Offset)
	}
	sb.WriteString(" }")
	return sb.String()
}

// Field is a struct member before layout.
type Field struct {
	Name string
	Type Type
}

// Layout computes sizes and alignments against a struct table and a set of
// capacity limits.
type Layout struct {
	Limits  Limits
	structs map[string]*StructDef
	order   []string
}

// NewLayout creates an empty struct table governed by limits.
func NewLayout(limits Limits) *Layout {
	return &Layout{Limits: limits, structs: make(map[string]*StructDef)}
}

// WithLimits returns a layout that shares the struct table of l but
// enforces limits.
func (l *Layout) WithLimits(limits Limits) *Layout {
	return &Layout{Limits: limits, structs: l.structs, order: l.order}
}

// Lookup returns the definition of a named struct.
func (l *Layout) Lookup(name string) (*StructDef, bool) {
	d, ok := l.structs[name]
	return d, ok
}

// Structs returns the struct definitions in definition order.
func (l *Layout) Structs() []*StructDef {
	out := make([]*StructDef, 0, len(l.order))
	for _, name := range l.order {
		out = append(out, l.structs[name])
	}
	return out
}

// Array builds an array type, rejecting lengths over the budget.
func (l *Layout) Array(elem Type, n int) (Type, error) {
	if n < 0 || n > l.Limits.MaxArrayLen {
		return nil, diag.Errorf(diag.Capacity, "array length %d exceeds limit %d", n, l.Limits.MaxArrayLen)
	}
	return Array(elem, n), nil
}

// Sizeof returns the size of t in bytes.
func (l *Layout) Sizeof(t Type) (int, error) {
	var size int
	switch t := t.(type) {
	case Tint:
		size = 4
	case Tchar, Tvoid:
		size = 1
	case Tpointer:
		size = 8
	case Tarray:
		elem, err := l.Sizeof(t.Elem)
		if err != nil {
			return 0, err
		}
		size = elem * t.Len
	case Tstruct:
		d, ok := l.structs[t.Name]
		if !ok {
			return 0, diag.Errorf(diag.NameResolution, "undefined struct %q", t.Name)
		}
		size = d.Size
	default:
		return 0, diag.Errorf(diag.Internal, "sizeof unknown type %v", t)
	}
	if size > l.Limits.MaxTypeSize {
		return 0, diag.Errorf(diag.Capacity, "size of %s (%d bytes) exceeds limit %d", t, size, l.Limits.MaxTypeSize)
	}
	return size, nil
}

// Alignof returns the alignment of t in bytes.
func (l *Layout) Alignof(t Type) (int, error) {
	switch t := t.(type) {
	case Tint:
		return 4, nil
	case Tchar, Tvoid:
		return 1, nil
	case Tpointer:
		return 8, nil
	case Tarray:
		return l.Alignof(t.Elem)
	case Tstruct:
		d, ok := l.structs[t.Name]
		if !ok {
			return 0, diag.Errorf(diag.NameResolution, "undefined struct %q", t.Name)
		}
		return d.Align, nil
	}
	return 0, diag.Errorf(diag.Internal, "alignof unknown type %v", t)
}

// Define lays out a struct and adds it to the table. Members are placed in
// declaration order, each at the next offset aligned to its own alignment.
func (l *Layout) Define(name string, fields []Field) (*StructDef, error) {
	d := &StructDef{Name: name, Align: 1}
	next := 0
	for _, f := range fields {
		if _, dup := d.Member(f.Name); dup {
			return nil, diag.Errorf(diag.Redeclaration, "duplicate member %q in struct %s", f.Name, name)
		}
		if IsVoid(f.Type) {
			return nil, diag.Errorf(diag.Type, "member %q has type void", f.Name)
		}
		size, err := l.Sizeof(f.Type)
		if err != nil {
			return nil, err
		}
		align, err := l.Alignof(f.Type)
		if err != nil {
			return nil, err
		}
		next = AlignUp(next, align)
		d.Members = append(d.Members, Member{Name: f.Name, Type: f.Type, Offset: next})
		next += size
		d.Align = max(d.Align, align)
		if next > l.Limits.MaxTypeSize {
			return nil, diag.Errorf(diag.Capacity, "struct %s is larger than %d bytes", name, l.Limits.MaxTypeSize)
		}
	}
	d.Size = AlignUp(next, d.Align)
	if d.Size > l.Limits.MaxTypeSize {
		return nil, diag.Errorf(diag.Capacity, "struct %s is larger than %d bytes", name, l.Limits.MaxTypeSize)
	}
	if _, ok := l.structs[name]; !ok {
		l.order = append(l.order, name)
	}
	l.structs[name] = d
	return d, nil
}

// AlignUp rounds n up to a multiple of align.
func AlignUp(n, align int) int {
	if align <= 1 {
		return n
	}
	return (n + align - 1) / align * align
}
