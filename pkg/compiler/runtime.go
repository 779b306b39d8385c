package compiler

import (
	"github.com/raymyers/elfcc/pkg/ast"
	"github.com/raymyers/elfcc/pkg/buf"
	"github.com/raymyers/elfcc/pkg/codegen"
	"github.com/raymyers/elfcc/pkg/ctypes"
	"github.com/raymyers/elfcc/pkg/diag"
	"github.com/raymyers/elfcc/pkg/x86"
)

// Linux x86-64 system call numbers
const (
	sysWrite = 1
	sysMmap  = 9
	sysExit  = 60
)

const (
	stdout = 1

	protReadWrite  = 0x3  // PROT_READ | PROT_WRITE
	mapAnonPrivate = 0x22 // MAP_PRIVATE | MAP_ANONYMOUS
	alloc4Size     = 16
)

// startName is the routine at offset 0, which is the entry point.
const startName = "_start"

// preludeName is the file name diagnostics use for the prelude.
const preludeName = "<prelude>"

// prelude is library code compiled ahead of every program. atoi recurses
// instead of looping so that no jump in it is longer than 127 bytes.
const prelude = `int __atoi_from(char *s, int n) {
	if (*s < '0' || '9' < *s)
		return n;
	return __atoi_from(s + 1, n * 10 + (*s - '0'));
}

int atoi(char *s) {
	return __atoi_from(s, 0);
}
`

// builtin is a function implemented directly in machine code.
type builtin struct {
	sig  ast.Signature
	code func() buf.Buf
}

var builtins = []builtin{
	{
		sig:  ast.Signature{Name: "__builtin_three", Return: ctypes.Int()},
		code: builtinThree,
	},
	{
		sig:  ast.Signature{Name: "__builtin_putchar", Params: []ctypes.Type{ctypes.Int()}, Return: ctypes.Int()},
		code: builtinPutchar,
	},
	{
		sig: ast.Signature{
			Name:   "__builtin_alloc4",
			Params: []ctypes.Type{ctypes.Int(), ctypes.Int(), ctypes.Int(), ctypes.Int()},
			Return: ctypes.Pointer(ctypes.Int()),
		},
		code: builtinAlloc4,
	},
}

// builtinThree returns 3.
func builtinThree() buf.Buf {
	return buf.Concat(x86.MovEAXImm(3), x86.Ret())
}

// builtinPutchar writes the low byte of its argument to stdout and returns
// the argument. The byte is written from a stack copy of rdi.
func builtinPutchar() buf.Buf {
	return buf.Concat(
		x86.Push(x86.RDI),
		x86.MovEAXImm(sysWrite),
		x86.MovEDIImm(stdout),
		x86.MovRR(x86.RSI, x86.RSP),
		x86.MovImm32(x86.RDX, 1),
		x86.Syscall(),
		x86.Pop(x86.RDI),
		x86.Mov32(x86.RAX, x86.RDI),
		x86.Ret(),
	)
}

// builtinAlloc4 maps a fresh 16-byte block and stores its four arguments in
// it as ints:
//
//	p = mmap(0, 16, PROT_READ|PROT_WRITE, MAP_PRIVATE|MAP_ANONYMOUS, -1, 0)
//	p[0], p[1], p[2], p[3] = a, b, c, d
func builtinAlloc4() buf.Buf {
	return buf.Concat(
		x86.Push(x86.RDI), x86.Push(x86.RSI), x86.Push(x86.RDX), x86.Push(x86.RCX),
		x86.MovEAXImm(sysMmap),
		x86.XorEDIEDI(),
		x86.MovImm32(x86.RSI, alloc4Size),
		x86.MovImm32(x86.RDX, protReadWrite),
		x86.MovImm32(x86.R10, mapAnonPrivate),
		x86.MovImm(x86.R8, -1),
		x86.Xor32(x86.R9),
		x86.Syscall(),
		x86.Pop(x86.RCX), x86.StoreRAXDisp32(x86.RCX, 12),
		x86.Pop(x86.RDX), x86.StoreRAXDisp32(x86.RDX, 8),
		x86.Pop(x86.RSI), x86.StoreRAXDisp32(x86.RSI, 4),
		x86.Pop(x86.RDI), x86.StoreRAXDisp32(x86.RDI, 0),
		x86.Ret(),
	)
}

// startup passes argc and argv from the initial stack to main and exits with
// its return value.
//
//	mov rdi, [rsp]      ; argc
//	lea rsi, [rsp+8]    ; argv
//	mov eax, main
//	call rax
//	mov edi, eax
//	mov eax, 60
//	syscall
func startup(main uint32) buf.Buf {
	return buf.Concat(
		x86.LoadRDIFromStack(),
		x86.LeaRSIStack(8),
		x86.MovEAXImm(main),
		x86.CallRAX(),
		x86.Mov32(x86.RDI, x86.RAX),
		x86.MovEAXImm(sysExit),
		x86.Syscall(),
	)
}

// routines lists the hand-written code in emission order, startup first.
func routines() []codegen.Routine {
	rs := []codegen.Routine{{
		Name: startName,
		Emit: func(syms *codegen.Symbols) (buf.Buf, error) {
			main, ok := syms.Functions["main"]
			if !ok {
				return buf.Buf{}, diag.Errorf(diag.NameResolution, "program has no main function")
			}
			return startup(main), nil
		},
	}}
	for _, b := range builtins {
		code := b.code
		rs = append(rs, codegen.Routine{
			Name: b.sig.Name,
			Emit: func(*codegen.Symbols) (buf.Buf, error) { return code(), nil },
		})
	}
	return rs
}
