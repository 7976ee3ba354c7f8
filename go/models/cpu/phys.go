package cpu

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

type MemError struct {
	Addr uint64
	Size int
	Enum int
}

func (m *MemError) Error() string {
	reason := "memory error"
	switch m.Enum {
	case MEM_WRITE_UNMAPPED:
		reason = "unmapped write"
	case MEM_READ_UNMAPPED:
		reason = "unmapped read"
	case MEM_FETCH_UNMAPPED:
		reason = "unmapped fetch"
	case MEM_WRITE_PROT:
		reason = "protected write"
	case MEM_READ_PROT:
		reason = "protected read"
	case MEM_FETCH_PROT:
		reason = "protected exec"
	}
	return fmt.Sprintf("%s at %#x(%d)", reason, m.Addr, m.Size)
}

// PhysMem is the installed RAM of the machine, addressed physically from 0.
// Everything the kernel keeps about address spaces lives in here, so it can be
// inspected by physical address after a panic.
type PhysMem struct {
	data  []byte
	order binary.ByteOrder
}

func NewPhysMem(size uint64) *PhysMem {
	size = (size + PAGE_SIZE - 1) &^ (PAGE_SIZE - 1)
	return &PhysMem{data: make([]byte, size), order: binary.LittleEndian}
}

func (m *PhysMem) Size() uint64 {
	return uint64(len(m.data))
}

func (m *PhysMem) Frames() int {
	return len(m.data) / PAGE_SIZE
}

func (m *PhysMem) ByteOrder() binary.ByteOrder {
	return m.order
}

func (m *PhysMem) valid(addr uint64, size int) bool {
	end := addr + uint64(size)
	return end >= addr && end <= uint64(len(m.data))
}

func (m *PhysMem) Read(addr uint64, p []byte) error {
	if !m.valid(addr, len(p)) {
		return &MemError{Addr: addr, Size: len(p), Enum: MEM_READ_UNMAPPED}
	}
	copy(p, m.data[addr:])
	return nil
}

func (m *PhysMem) Write(addr uint64, p []byte) error {
	if !m.valid(addr, len(p)) {
		return &MemError{Addr: addr, Size: len(p), Enum: MEM_WRITE_UNMAPPED}
	}
	copy(m.data[addr:], p)
	return nil
}

func (m *PhysMem) MemRead(addr, size uint64) ([]byte, error) {
	p := make([]byte, size)
	if err := m.Read(addr, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Zero clears size bytes starting at addr.
func (m *PhysMem) Zero(addr, size uint64) error {
	if !m.valid(addr, int(size)) {
		return &MemError{Addr: addr, Size: int(size), Enum: MEM_WRITE_UNMAPPED}
	}
	clear(m.data[addr : addr+size])
	return nil
}

// Copy moves size bytes between two physical ranges. Ranges may not overlap.
func (m *PhysMem) Copy(dst, src, size uint64) error {
	if !m.valid(src, int(size)) {
		return &MemError{Addr: src, Size: int(size), Enum: MEM_READ_UNMAPPED}
	}
	if !m.valid(dst, int(size)) {
		return &MemError{Addr: dst, Size: int(size), Enum: MEM_WRITE_UNMAPPED}
	}
	copy(m.data[dst:dst+size], m.data[src:src+size])
	return nil
}

func (m *PhysMem) ReadWord(addr uint64) (uint32, error) {
	var buf [4]byte
	if err := m.Read(addr, buf[:]); err != nil {
		return 0, err
	}
	n, err := UnpackUint(m.order, 4, buf[:])
	return uint32(n), err
}

func (m *PhysMem) WriteWord(addr uint64, val uint32) error {
	var buf [4]byte
	if _, err := PackUint(m.order, 4, buf[:], uint64(val)); err != nil {
		return err
	}
	return m.Write(addr, buf[:])
}

func PackUint(order binary.ByteOrder, size int, buf []byte, n uint64) ([]byte, error) {
	if buf == nil {
		buf = make([]byte, size)
	} else if len(buf) < size {
		return nil, errors.Errorf("buffer too small (%d < %d)", len(buf), size)
	}
	switch size {
	case 4:
		order.PutUint32(buf[:size], uint32(n))
	case 2:
		order.PutUint16(buf[:size], uint16(n))
	case 1:
		buf[0] = byte(n)
	default:
		return nil, errors.Errorf("unsupported uint size: %d", size)
	}
	return buf[:size], nil
}

func UnpackUint(order binary.ByteOrder, size int, buf []byte) (uint64, error) {
	if len(buf) < size {
		return 0, errors.Errorf("buffer too small (%d < %d)", len(buf), size)
	}
	switch size {
	case 4:
		return uint64(order.Uint32(buf)), nil
	case 2:
		return uint64(order.Uint16(buf)), nil
	case 1:
		return uint64(buf[0]), nil
	default:
		return 0, errors.Errorf("unsupported uint size: %d", size)
	}
}
