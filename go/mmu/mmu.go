// Package mmu builds ARMv7 short-descriptor translation tables inside physical memory.
//
// Every address space owns a 2048 entry top-level table covering the low 2 GiB. The high half
// is described by a single kernel table mapping 0x80000000+p to p for all installed RAM.
package mmu

import (
	"fmt"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/math-fehr/WindOS-sub000/go/mem"
	"github.com/math-fehr/WindOS-sub000/go/models/cpu"
)

var (
	ErrAlreadyMapped = errors.New("virtual address already mapped")
	ErrUnmapped      = errors.New("virtual address not mapped")
	ErrDestroyed     = errors.New("address space destroyed")
)

const (
	userEntries   = cpu.KERNEL_SPLIT / cpu.SECTION_SIZE
	kernelEntries = 1 << 12
	l2Entries     = cpu.SECTION_SIZE / cpu.PAGE_SIZE

	userTableFrames   = userEntries * 4 / cpu.PAGE_SIZE
	kernelTableFrames = kernelEntries * 4 / cpu.PAGE_SIZE
)

// first level descriptor types
const (
	l1Fault   = 0x0
	l1Coarse  = 0x1
	l1Section = 0x2
	l1Mask    = 0x3
)

const (
	apKernel = 0x1
	apUserRO = 0x2
	apUserRW = 0x3

	bitB = 1 << 2
	bitC = 1 << 3
)

func accessBits(prot int) (ap uint32, xn bool) {
	switch {
	case prot&cpu.PROT_WRITE != 0:
		ap = apUserRW
	case prot&(cpu.PROT_READ|cpu.PROT_EXEC) != 0:
		ap = apUserRO
	default:
		ap = apKernel
	}
	return ap, prot&cpu.PROT_EXEC == 0
}

func sectionEntry(phys uint64, prot int) uint32 {
	ap, xn := accessBits(prot)
	e := uint32(phys)&0xfff00000 | ap<<10 | bitC | bitB | l1Section
	if xn {
		e |= 1 << 4
	}
	return e
}

func coarseEntry(table uint64) uint32 {
	return uint32(table)&0xfffffc00 | l1Coarse
}

func pageEntry(phys uint64, prot int) uint32 {
	ap, xn := accessBits(prot)
	e := uint32(phys)&0xfffff000 | ap<<4 | bitC | bitB | 0x2
	if xn {
		e |= 1
	}
	return e
}

// EntryProt decodes the protection of a section or small page descriptor.
func EntryProt(entry uint32, section bool) int {
	var ap uint32
	var xn bool
	if section {
		ap = entry >> 10 & 3
		xn = entry&(1<<4) != 0
	} else {
		ap = entry >> 4 & 3
		xn = entry&1 != 0
	}
	prot := cpu.PROT_NONE
	switch ap {
	case apUserRW:
		prot = cpu.PROT_READ | cpu.PROT_WRITE
	case apUserRO:
		prot = cpu.PROT_READ
	}
	if !xn && ap != apKernel {
		prot |= cpu.PROT_EXEC
	}
	return prot
}

// Manager owns the shared kernel table and creates per-process spaces.
type Manager struct {
	ram    *cpu.PhysMem
	frames *mem.Allocator
	log    *slog.Logger

	kernelTable mem.Run
}

func NewManager(ram *cpu.PhysMem, frames *mem.Allocator, log *slog.Logger) (*Manager, error) {
	if ram.Size() > cpu.KERNEL_SPLIT {
		return nil, errors.Errorf("mmu: %#x bytes of RAM do not fit above the split", ram.Size())
	}
	if log == nil {
		log = slog.Default()
	}
	run, err := frames.AllocAligned(kernelTableFrames, kernelTableFrames)
	if err != nil {
		return nil, errors.Wrap(err, "mmu: kernel table")
	}
	m := &Manager{ram: ram, frames: frames, log: log, kernelTable: run}
	base := m.KernelRoot()
	if err := ram.Zero(base, kernelTableFrames*cpu.PAGE_SIZE); err != nil {
		return nil, err
	}
	for phys := uint64(0); phys < ram.Size(); phys += cpu.SECTION_SIZE {
		idx := (cpu.KERNEL_SPLIT + phys) / cpu.SECTION_SIZE
		ram.WriteWord(base+idx*4, sectionEntry(phys, cpu.PROT_NONE))
	}
	log.Debug("kernel table ready", "root", fmt.Sprintf("%#x", base), "sections", (ram.Size()+cpu.SECTION_SIZE-1)/cpu.SECTION_SIZE)
	return m, nil
}

func (m *Manager) RAM() *cpu.PhysMem      { return m.ram }
func (m *Manager) Frames() *mem.Allocator { return m.frames }
func (m *Manager) KernelRoot() uint64     { return uint64(m.kernelTable.Base) * cpu.PAGE_SIZE }

// KernelTranslate walks the shared kernel table.
func (m *Manager) KernelTranslate(virt uint64) (uint64, error) {
	if virt < cpu.KERNEL_SPLIT {
		return 0, errors.Wrapf(ErrUnmapped, "%#x is below the split", virt)
	}
	entry, err := m.ram.ReadWord(m.KernelRoot() + virt/cpu.SECTION_SIZE*4)
	if err != nil {
		return 0, err
	}
	if entry&l1Mask != l1Section {
		return 0, errors.Wrapf(ErrUnmapped, "%#x", virt)
	}
	return uint64(entry&0xfff00000) | virt&(cpu.SECTION_SIZE-1), nil
}

// Create allocates a new, empty address space.
func (m *Manager) Create() (*Space, error) {
	run, err := m.frames.AllocAligned(userTableFrames, userTableFrames)
	if err != nil {
		return nil, errors.Wrap(err, "mmu: top-level table")
	}
	s := &Space{m: m, table: run, l2: make(map[uint64]mem.Run)}
	if err := m.ram.Zero(s.Root(), userTableFrames*cpu.PAGE_SIZE); err != nil {
		m.frames.Free([]mem.Run{run})
		return nil, err
	}
	return s, nil
}
