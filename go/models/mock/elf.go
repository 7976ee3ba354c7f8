// Package mock builds deterministic collaborators for tests: executable images and clocks.
package mock

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"time"

	"github.com/lunixbochs/struc"
)

type Header32 struct {
	Ident     [16]byte
	Type      uint16
	Machine   uint16
	Version   uint32
	Entry     uint32
	Phoff     uint32
	Shoff     uint32
	Flags     uint32
	Ehsize    uint16
	Phentsize uint16
	Phnum     uint16
	Shentsize uint16
	Shnum     uint16
	Shstrndx  uint16
}

type Prog32 struct {
	Type   uint32
	Off    uint32
	Vaddr  uint32
	Paddr  uint32
	Filesz uint32
	Memsz  uint32
	Flags  uint32
	Align  uint32
}

const (
	headerSize = 52
	progSize   = 32
	sectSize   = 40
)

type Segment struct {
	Addr uint32
	Data []byte
	// zero means len(Data)
	MemSize uint32
	Flags   elf.ProgFlag
}

// Image describes an executable. The zero values of the header fields produce a valid
// 32-bit little endian ARM SYSV executable.
type Image struct {
	Entry    uint32
	Segments []Segment

	Class     elf.Class
	Data      elf.Data
	Machine   elf.Machine
	OSABI     elf.OSABI
	Type      elf.Type
	Phentsize uint16
	Shentsize uint16
}

// Program is the usual test image: one executable segment at addr holding code.
func Program(entry uint32, code []byte) []byte {
	return ELF(Image{
		Entry:    entry,
		Segments: []Segment{{Addr: entry, Data: code, Flags: elf.PF_R | elf.PF_X}},
	})
}

func ELF(img Image) []byte {
	hdr := &Header32{
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(elf.EM_ARM),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     img.Entry,
		Phoff:     headerSize,
		Ehsize:    headerSize,
		Phentsize: progSize,
		Phnum:     uint16(len(img.Segments)),
		Shentsize: sectSize,
	}
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS32)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	hdr.Ident[elf.EI_OSABI] = byte(elf.ELFOSABI_NONE)
	if img.Class != elf.ELFCLASSNONE {
		hdr.Ident[elf.EI_CLASS] = byte(img.Class)
	}
	if img.Data != elf.ELFDATANONE {
		hdr.Ident[elf.EI_DATA] = byte(img.Data)
	}
	if img.OSABI != elf.ELFOSABI_NONE {
		hdr.Ident[elf.EI_OSABI] = byte(img.OSABI)
	}
	if img.Machine != elf.EM_NONE {
		hdr.Machine = uint16(img.Machine)
	}
	if img.Type != elf.ET_NONE {
		hdr.Type = uint16(img.Type)
	}
	if img.Phentsize != 0 {
		hdr.Phentsize = img.Phentsize
	}
	if img.Shentsize != 0 {
		hdr.Shentsize = img.Shentsize
	}

	var buf bytes.Buffer
	opts := &struc.Options{Order: binary.LittleEndian}
	struc.PackWithOptions(&buf, hdr, opts)
	off := uint32(headerSize + progSize*len(img.Segments))
	for _, seg := range img.Segments {
		memsz := seg.MemSize
		if memsz == 0 {
			memsz = uint32(len(seg.Data))
		}
		struc.PackWithOptions(&buf, &Prog32{
			Type:   uint32(elf.PT_LOAD),
			Off:    off,
			Vaddr:  seg.Addr,
			Paddr:  seg.Addr,
			Filesz: uint32(len(seg.Data)),
			Memsz:  memsz,
			Flags:  uint32(seg.Flags),
			Align:  4,
		}, opts)
		off += uint32(len(seg.Data))
	}
	for _, seg := range img.Segments {
		buf.Write(seg.Data)
	}
	return buf.Bytes()
}

// Clock is a settable time source.
type Clock struct {
	T time.Time
}

func NewClock(unix int64) *Clock {
	return &Clock{T: time.Unix(unix, 0)}
}

func (c *Clock) Now() time.Time { return c.T }

func (c *Clock) Advance(d time.Duration) { c.T = c.T.Add(d) }
