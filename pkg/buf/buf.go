// Package buf implements an append-only byte rope.
// Machine code is assembled from many one- to seven-byte fragments; joining two
// ropes is O(1) and the bytes are only linearized once, when the image is written.
package buf

import (
	"encoding/hex"
	"io"
)

// Buf is an immutable binary tree of byte runs.
// The zero value is an empty rope.
type Buf struct {
	leaf        []byte
	left, right *Buf
	n           int
}

// New returns a leaf holding a copy of b.
func New(b ...byte) Buf {
	if len(b) == 0 {
		return Buf{}
	}
	c := make([]byte, len(b))
	copy(c, b)
	return Buf{leaf: c, n: len(c)}
}

// Join returns the concatenation of a and b without copying either.
func Join(a, b Buf) Buf {
	if a.n == 0 {
		return b
	}
	if b.n == 0 {
		return a
	}
	return Buf{left: &a, right: &b, n: a.n + b.n}
}

// Concat joins any number of ropes left to right.
func Concat(parts ...Buf) Buf {
	var out Buf
	for _, p := range parts {
		out = Join(out, p)
	}
	return out
}

// Join appends other to b and returns the result.
func (b Buf) Join(other Buf) Buf {
	return Join(b, other)
}

// Append is shorthand for b.Join(New(bs...)).
func (b Buf) Append(bs ...byte) Buf {
	return Join(b, New(bs...))
}

// Len returns the number of bytes in the rope.
func (b Buf) Len() int {
	return b.n
}

// Bytes linearizes the rope.
func (b Buf) Bytes() []byte {
	out := make([]byte, 0, b.n)
	return b.appendTo(out)
}

// WriteTo streams the rope to w without linearizing it first.
func (b Buf) WriteTo(w io.Writer) (int64, error) {
	var total int64
	err := b.walk(func(p []byte) error {
		n, err := w.Write(p)
		total += int64(n)
		return err
	})
	return total, err
}

// String returns the rope as space-separated hex, mainly for test failures.
func (b Buf) String() string {
	bs := b.Bytes()
	if len(bs) == 0 {
		return ""
	}
	out := make([]byte, 0, len(bs)*3)
	for i, c := range bs {
		if i > 0 {
			out = append(out, ' ')
		}
		out = hex.AppendEncode(out, []byte{c})
	}
	return string(out)
}

func (b Buf) appendTo(out []byte) []byte {
	// Explicit stack: ropes built by left folds are deep on the left.
	stack := []*Buf{&b}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if top.left == nil {
			out = append(out, top.leaf...)
			continue
		}
		stack = append(stack, top.right, top.left)
	}
	return out
}

func (b Buf) walk(fn func([]byte) error) error {
	stack := []*Buf{&b}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if top.left == nil {
			if len(top.leaf) == 0 {
				continue
			}
			if err := fn(top.leaf); err != nil {
				return err
			}
			continue
		}
		stack = append(stack, top.right, top.left)
	}
	return nil
}
