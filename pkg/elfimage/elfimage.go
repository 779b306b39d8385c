// Package elfimage wraps generated code in a minimal static ELF64 executable:
// one file header, one read-write-execute PT_LOAD segment, no sections.
package elfimage

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"

	"github.com/raymyers/elfcc/pkg/buf"
)

const (
	ehdrSize = 0x40
	phdrSize = 0x38

	// HeaderSize is the length of the template; code starts right after it.
	HeaderSize = ehdrSize + phdrSize

	// DefaultBase is the virtual address the file is mapped at.
	DefaultBase = 0x400000

	pageSize = 0x1000
)

// Layout places an image in memory.
type Layout struct {
	Base uint64
}

// CodeAddr is the absolute address of the first byte after the header.
func (l Layout) CodeAddr() uint64 {
	return l.Base + HeaderSize
}

// Validate checks that the base is page aligned and that the code area is
// addressable with 32-bit absolute operands.
func (l Layout) Validate() error {
	if l.Base%pageSize != 0 {
		return fmt.Errorf("load base %#x is not a multiple of %#x", l.Base, pageSize)
	}
	if l.Base == 0 || l.Base >= 1<<31 {
		return fmt.Errorf("load base %#x must be nonzero and below 2 GiB", l.Base)
	}
	return nil
}

// Header builds the template with the entry point, file size and memory
// size patched in.
func (l Layout) Header(entryOffset, fileSize, memSize int) []byte {
	ehdr := elf.Header64{
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(elf.EM_X86_64),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     l.CodeAddr() + uint64(entryOffset),
		Phoff:     ehdrSize,
		Ehsize:    ehdrSize,
		Phentsize: phdrSize,
		Phnum:     1,
	}
	copy(ehdr.Ident[:], elf.ELFMAG)
	ehdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	ehdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	ehdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	ehdr.Ident[elf.EI_OSABI] = byte(elf.ELFOSABI_NONE)

	phdr := elf.Prog64{
		Type:   uint32(elf.PT_LOAD),
		Flags:  uint32(elf.PF_R | elf.PF_W | elf.PF_X),
		Off:    0,
		Vaddr:  l.Base,
		Paddr:  l.Base,
		Filesz: uint64(fileSize),
		Memsz:  uint64(memSize),
		Align:  pageSize,
	}

	var b bytes.Buffer
	// Writes to a bytes.Buffer cannot fail.
	_ = binary.Write(&b, binary.LittleEndian, &ehdr)
	_ = binary.Write(&b, binary.LittleEndian, &phdr)
	return b.Bytes()
}

// Splice prepends the header to text. The segment covers the header and
// text in the file and bssSize more zeroed bytes in memory.
func (l Layout) Splice(text buf.Buf, entryOffset, bssSize int) buf.Buf {
	fileSize := HeaderSize + text.Len()
	return buf.Join(buf.New(l.Header(entryOffset, fileSize, fileSize+bssSize)...), text)
}
