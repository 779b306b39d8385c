// Package x86 provides the x86-64 instruction encodings the code generator
// uses. Every function is a fixed, context-free lookup that returns the exact
// bytes of one instruction.
package x86

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/raymyers/elfcc/pkg/buf"
)

// Reg is a 64-bit general purpose register, numbered as in ModRM.
type Reg uint8

const (
	RAX Reg = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
)

var regNames = []string{"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi", "r8", "r9", "r10", "r11"}

func (r Reg) String() string {
	if int(r) < len(regNames) {
		return regNames[r]
	}
	return fmt.Sprintf("r%d", r)
}

// ArgRegs are the System V integer argument registers, in order.
var ArgRegs = []Reg{RDI, RSI, RDX, RCX, R8, R9}

// Cond is an x86 condition code, the low nibble of Jcc and SETcc.
type Cond byte

const (
	CondE  Cond = 0x4
	CondNE Cond = 0x5
	CondL  Cond = 0xc
	CondLE Cond = 0xe
)

func imm32(v uint32) []byte {
	return binary.LittleEndian.AppendUint32(nil, v)
}

func fitsInt8(n int32) bool {
	return n >= math.MinInt8 && n <= math.MaxInt8
}

// rex returns the REX prefix for the given W bit and extension bits, or
// nothing when no bit is set and force is false.
func rex(w bool, reg, rm Reg, force bool) []byte {
	b := byte(0x40)
	if w {
		b |= 0x08
	}
	if reg >= R8 {
		b |= 0x04
	}
	if rm >= R8 {
		b |= 0x01
	}
	if b == 0x40 && !force {
		return nil
	}
	return []byte{b}
}

// rbpDisp encodes a [rbp+off] memory operand with reg in the ModRM reg field.
func rbpDisp(reg Reg, off int32) []byte {
	r := byte(reg&7) << 3
	if fitsInt8(off) {
		return []byte{0x40 | r | 0x05, byte(int8(off))}
	}
	return append([]byte{0x80 | r | 0x05}, imm32(uint32(off))...)
}

// Push encodes push r.
func Push(r Reg) buf.Buf {
	if r >= R8 {
		return buf.New(0x41, 0x50+byte(r&7))
	}
	return buf.New(0x50 + byte(r))
}

// Pop encodes pop r.
func Pop(r Reg) buf.Buf {
	if r >= R8 {
		return buf.New(0x41, 0x58+byte(r&7))
	}
	return buf.New(0x58 + byte(r))
}

// Prologue encodes push rbp; mov rbp, rsp; sub rsp, frame.
func Prologue(frame int32) buf.Buf {
	return buf.Concat(Push(RBP), buf.New(0x48, 0x89, 0xe5), SubRSP(frame))
}

// SubRSP encodes sub rsp, n.
func SubRSP(n int32) buf.Buf {
	if fitsInt8(n) {
		return buf.New(0x48, 0x83, 0xec, byte(int8(n)))
	}
	return buf.New(append([]byte{0x48, 0x81, 0xec}, imm32(uint32(n))...)...)
}

// AddRSP encodes add rsp, n.
func AddRSP(n int32) buf.Buf {
	if fitsInt8(n) {
		return buf.New(0x48, 0x83, 0xc4, byte(int8(n)))
	}
	return buf.New(append([]byte{0x48, 0x81, 0xc4}, imm32(uint32(n))...)...)
}

// Leave encodes leave.
func Leave() buf.Buf { return buf.New(0xc9) }

// Ret encodes ret.
func Ret() buf.Buf { return buf.New(0xc3) }

// Syscall encodes syscall.
func Syscall() buf.Buf { return buf.New(0x0f, 0x05) }

// CallRAX encodes call rax.
func CallRAX() buf.Buf { return buf.New(0xff, 0xd0) }

// MovImm encodes mov r, imm32 with the immediate sign-extended to 64 bits.
func MovImm(r Reg, v int32) buf.Buf {
	b := append(rex(true, 0, r, false), 0xc7, 0xc0|byte(r&7))
	return buf.New(append(b, imm32(uint32(v))...)...)
}

// MovRDIImm encodes mov rdi, imm32.
func MovRDIImm(v int32) buf.Buf { return MovImm(RDI, v) }

// MovImm32 encodes mov r32, imm32, which zero-extends into the full register.
// Absolute addresses are loaded this way so the operand width never depends
// on the value.
func MovImm32(r Reg, v uint32) buf.Buf {
	b := append(rex(false, 0, r, false), 0xb8+byte(r&7))
	return buf.New(append(b, imm32(v)...)...)
}

// MovEDIImm encodes mov edi, imm32.
func MovEDIImm(v uint32) buf.Buf { return MovImm32(RDI, v) }

// MovEAXImm encodes mov eax, imm32.
func MovEAXImm(v uint32) buf.Buf { return MovImm32(RAX, v) }

// Xor32 encodes xor r32, r32, clearing the full register.
func Xor32(r Reg) buf.Buf {
	b := append(rex(false, r, r, false), 0x31, 0xc0|byte(r&7)<<3|byte(r&7))
	return buf.New(b...)
}

// XorEAXEAX encodes xor eax, eax.
func XorEAXEAX() buf.Buf { return Xor32(RAX) }

// XorEDIEDI encodes xor edi, edi.
func XorEDIEDI() buf.Buf { return Xor32(RDI) }

// StoreRAXDisp32 stores r32 at [rax+disp].
func StoreRAXDisp32(r Reg, disp int8) buf.Buf {
	b := append(rex(false, r, 0, false), 0x89, 0x40|byte(r&7)<<3, byte(disp))
	return buf.New(b...)
}

// MovRR encodes mov dst, src on 64-bit registers.
func MovRR(dst, src Reg) buf.Buf {
	b := rex(true, src, dst, false)
	return buf.New(append(b, 0x89, 0xc0|byte(src&7)<<3|byte(dst&7))...)
}

// Mov32 encodes mov dst, src on 32-bit registers.
func Mov32(dst, src Reg) buf.Buf {
	b := rex(false, src, dst, false)
	return buf.New(append(b, 0x89, 0xc0|byte(src&7)<<3|byte(dst&7))...)
}

// LeaRSIStack encodes lea rsi, [rsp+disp].
func LeaRSIStack(disp int8) buf.Buf { return buf.New(0x48, 0x8d, 0x74, 0x24, byte(disp)) }

// LeaRDI encodes lea rdi, [rbp+off].
func LeaRDI(off int32) buf.Buf {
	return buf.New(append([]byte{0x48, 0x8d}, rbpDisp(RDI, off)...)...)
}

// LoadRDI replaces rdi with the value it points at, sign-extended from size
// bytes to 64 bits.
func LoadRDI(size int) (buf.Buf, error) {
	switch size {
	case 1:
		return buf.New(0x48, 0x0f, 0xbe, 0x3f), nil // movsx rdi, byte [rdi]
	case 4:
		return buf.New(0x48, 0x63, 0x3f), nil // movsxd rdi, dword [rdi]
	case 8:
		return buf.New(0x48, 0x8b, 0x3f), nil // mov rdi, [rdi]
	}
	return buf.Buf{}, fmt.Errorf("no %d-byte load", size)
}

// StoreRDI stores the low size bytes of rdi at [rax].
func StoreRDI(size int) (buf.Buf, error) {
	switch size {
	case 1:
		return buf.New(0x40, 0x88, 0x38), nil
	case 4:
		return buf.New(0x89, 0x38), nil
	case 8:
		return buf.New(0x48, 0x89, 0x38), nil
	}
	return buf.Buf{}, fmt.Errorf("no %d-byte store", size)
}

// StoreArg stores the low size bytes of r at [rbp+off].
func StoreArg(r Reg, off int32, size int) (buf.Buf, error) {
	var b []byte
	switch size {
	case 1:
		// sil and dil need a REX prefix to be addressable
		b = append(rex(false, r, 0, r >= RSP), 0x88)
	case 4:
		b = append(rex(false, r, 0, false), 0x89)
	case 8:
		b = append(rex(true, r, 0, false), 0x89)
	default:
		return buf.Buf{}, fmt.Errorf("no %d-byte store", size)
	}
	return buf.New(append(b, rbpDisp(r, off)...)...), nil
}

// SignExtendRDI re-extends the low size bytes of rdi over the whole register.
func SignExtendRDI(size int) buf.Buf {
	switch size {
	case 1:
		return buf.New(0x48, 0x0f, 0xbe, 0xff) // movsx rdi, dil
	case 4:
		return buf.New(0x48, 0x63, 0xff) // movsxd rdi, edi
	}
	return buf.Buf{}
}

// MovRDIFromRAX moves a size-byte return value in rax into rdi, sign-extended.
func MovRDIFromRAX(size int) buf.Buf {
	switch size {
	case 1:
		return buf.New(0x48, 0x0f, 0xbe, 0xf8) // movsx rdi, al
	case 4:
		return buf.New(0x48, 0x63, 0xf8) // movsxd rdi, eax
	}
	return MovRR(RDI, RAX)
}

// AddRDIRAX encodes add rdi, rax.
func AddRDIRAX() buf.Buf { return buf.New(0x48, 0x01, 0xc7) }

// SubRDIRAX encodes sub rdi, rax.
func SubRDIRAX() buf.Buf { return buf.New(0x48, 0x29, 0xc7) }

// IMulRDIRAX encodes imul rdi, rax.
func IMulRDIRAX() buf.Buf { return buf.New(0x48, 0x0f, 0xaf, 0xf8) }

// AddRDIRSI encodes add rdi, rsi.
func AddRDIRSI() buf.Buf { return buf.New(0x48, 0x01, 0xf7) }

// SubRDIRSI encodes sub rdi, rsi.
func SubRDIRSI() buf.Buf { return buf.New(0x48, 0x29, 0xf7) }

// LoadRDIFromStack encodes mov rdi, [rsp].
func LoadRDIFromStack() buf.Buf { return buf.New(0x48, 0x8b, 0x3c, 0x24) }

// Cqo sign-extends rax into rdx:rax.
func Cqo() buf.Buf { return buf.New(0x48, 0x99) }

// IDivRDI divides rdx:rax by rdi: quotient in rax, remainder in rdx.
func IDivRDI() buf.Buf { return buf.New(0x48, 0xf7, 0xff) }

// CmpRAXRDI encodes cmp rax, rdi.
func CmpRAXRDI() buf.Buf { return buf.New(0x48, 0x39, 0xf8) }

// TestRDI encodes test rdi, rdi.
func TestRDI() buf.Buf { return buf.New(0x48, 0x85, 0xff) }

// SetAL encodes setcc al.
func SetAL(c Cond) buf.Buf { return buf.New(0x0f, 0x90|byte(c), 0xc0) }

// MovzxEDIAL encodes movzx edi, al.
func MovzxEDIAL() buf.Buf { return buf.New(0x0f, 0xb6, 0xf8) }

// Rel8Len is the length of every short jump.
const Rel8Len = 2

// Jcc8 encodes a short conditional jump.
func Jcc8(c Cond, disp int8) buf.Buf { return buf.New(0x70|byte(c), byte(disp)) }

// Jmp8 encodes a short unconditional jump.
func Jmp8(disp int8) buf.Buf { return buf.New(0xeb, byte(disp)) }
