package loader

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"io"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"

	"github.com/math-fehr/WindOS-sub000/go/models/cpu"
)

var machineMap = map[elf.Machine]string{
	elf.EM_386:     "x86",
	elf.EM_X86_64:  "x86_64",
	elf.EM_ARM:     "arm",
	elf.EM_AARCH64: "arm64",
	elf.EM_MIPS:    "mips",
	elf.EM_PPC:     "ppc",
}

var elfMagic = []byte{0x7f, 0x45, 0x4c, 0x46}

const (
	progEntSize = 32
	sectEntSize = 40
)

// raw header fields, checked before debug/elf sees the file
type elfHeader32 struct {
	Magic      [4]byte
	Class      uint8
	Data       uint8
	IdVersion  uint8
	OSABI      uint8
	ABIVersion uint8
	Pad        [7]byte
	Type       uint16
	Machine    uint16
	Version    uint32
	Entry      uint32
	Phoff      uint32
	Shoff      uint32
	Flags      uint32
	Ehsize     uint16
	Phentsize  uint16
	Phnum      uint16
	Shentsize  uint16
	Shnum      uint16
	Shstrndx   uint16
}

func MatchElf(r io.ReaderAt) bool {
	return bytes.Equal(getMagic(r), elfMagic)
}

func invalid(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalid, format, args...)
}

func checkHeader(p []byte, limit uint64) (*elfHeader32, error) {
	if !MatchElf(bytes.NewReader(p)) {
		return nil, errors.WithStack(ErrUnknownMagic)
	}
	var hdr elfHeader32
	if err := struc.UnpackWithOrder(bytes.NewReader(p), &hdr, binary.LittleEndian); err != nil {
		return nil, invalid("truncated header")
	}
	if elf.Class(hdr.Class) != elf.ELFCLASS32 {
		return nil, invalid("class %s", elf.Class(hdr.Class))
	}
	if elf.Data(hdr.Data) != elf.ELFDATA2LSB {
		return nil, invalid("byte order %s", elf.Data(hdr.Data))
	}
	if elf.OSABI(hdr.OSABI) != elf.ELFOSABI_NONE {
		return nil, invalid("os abi %s", elf.OSABI(hdr.OSABI))
	}
	if m := elf.Machine(hdr.Machine); m != elf.EM_ARM {
		if name, ok := machineMap[m]; ok {
			return nil, invalid("unsupported machine: %s", name)
		}
		return nil, invalid("unsupported machine: %s", m)
	}
	if elf.Type(hdr.Type) != elf.ET_EXEC {
		return nil, invalid("type %s", elf.Type(hdr.Type))
	}
	if hdr.Phentsize != progEntSize {
		return nil, invalid("program header size %d", hdr.Phentsize)
	}
	if hdr.Shentsize != sectEntSize {
		return nil, invalid("section header size %d", hdr.Shentsize)
	}
	if uint64(hdr.Entry) >= limit {
		return nil, invalid("entry point %#x outside [0, %#x)", hdr.Entry, limit)
	}
	return &hdr, nil
}

func progProt(flags elf.ProgFlag) int {
	prot := 0
	if flags&elf.PF_R != 0 {
		prot |= cpu.PROT_READ
	}
	if flags&elf.PF_W != 0 {
		prot |= cpu.PROT_WRITE
	}
	if flags&elf.PF_X != 0 {
		prot |= cpu.PROT_EXEC
	}
	return prot
}

// LoadElf validates a 32-bit little endian ARM SYSV executable whose entry point and loadable
// segments all lie in [0, limit).
func LoadElf(p []byte, limit uint64) (*Image, error) {
	hdr, err := checkHeader(p, limit)
	if err != nil {
		return nil, err
	}
	file, err := elf.NewFile(bytes.NewReader(p))
	if err != nil {
		return nil, errors.Wrap(ErrInvalid, err.Error())
	}
	img := &Image{Entry: uint64(hdr.Entry)}
	for _, prog := range file.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		if prog.Filesz > prog.Memsz {
			return nil, invalid("segment at %#x: file size %#x > memory size %#x", prog.Vaddr, prog.Filesz, prog.Memsz)
		}
		if prog.Vaddr+prog.Memsz > limit || prog.Vaddr+prog.Memsz < prog.Vaddr {
			return nil, invalid("segment %#x+%#x outside [0, %#x)", prog.Vaddr, prog.Memsz, limit)
		}
		data := make([]byte, prog.Memsz)
		if _, err := prog.ReadAt(data[:prog.Filesz], 0); err != nil && err != io.EOF {
			return nil, invalid("segment at %#x: %v", prog.Vaddr, err)
		}
		img.Segments = append(img.Segments, Segment{
			Addr:    prog.Vaddr,
			Data:    data,
			MemSize: prog.Memsz,
			Prot:    progProt(prog.Flags),
		})
	}
	return img, nil
}
