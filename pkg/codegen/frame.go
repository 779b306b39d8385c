package codegen

import (
	"github.com/raymyers/elfcc/pkg/ctypes"
)

const (
	stackAlignment = 16 // SysV requires rsp % 16 == 0 at every call
	minSlotSize    = 4
)

// Frame layout (callee's view):
//
//	+---------------------------+  <- rsp before the call
//	| return address            |  rbp+8
//	| saved rbp                 |  rbp+0
//	+---------------------------+  <- rbp
//	| slot 0                    |  negative offsets from rbp, in the order
//	| slot 1                    |  slots were first referenced
//	| ...                       |
//	+---------------------------+  <- rsp after the prologue (16-byte aligned)
//
// Pushed temporaries and call padding live below rsp and are tracked by depth.

// Frame assigns stack slots to the locals of one function.
type Frame struct {
	layout *ctypes.Layout
	slots  map[int]int32 // local id -> offset from rbp
	used   int           // bytes below rbp taken by slots
}

func newFrame(layout *ctypes.Layout) *Frame {
	return &Frame{layout: layout, slots: make(map[int]int32)}
}

// Slot returns the rbp-relative offset of the local with the given id,
// allocating the next slot on first reference. Each slot is at least 4 bytes
// and aligned to its type.
func (f *Frame) Slot(id int, typ ctypes.Type) (int32, error) {
	if off, ok := f.slots[id]; ok {
		return off, nil
	}
	size, err := f.layout.Sizeof(typ)
	if err != nil {
		return 0, err
	}
	align, err := f.layout.Alignof(typ)
	if err != nil {
		return 0, err
	}
	f.used = ctypes.AlignUp(f.used+max(size, minSlotSize), align)
	off := int32(-f.used)
	f.slots[id] = off
	return off, nil
}

// Size is the number of bytes the prologue reserves, rounded up to keep rsp aligned.
func (f *Frame) Size() int32 {
	return int32(ctypes.AlignUp(f.used, stackAlignment))
}
