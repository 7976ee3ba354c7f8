package mmu

import (
	"bytes"
	"sort"

	"github.com/pkg/errors"

	"github.com/math-fehr/WindOS-sub000/go/mem"
	"github.com/math-fehr/WindOS-sub000/go/models/cpu"
)

const maxStrLen = 0x10000

// Space is the low half of one process address space.
type Space struct {
	m     *Manager
	table mem.Run
	// second level tables by section index
	l2        map[uint64]mem.Run
	regions   Regions
	destroyed bool
}

// Root is the physical address of the top-level table, as loaded into TTBR0.
func (s *Space) Root() uint64 {
	return uint64(s.table.Base) * cpu.PAGE_SIZE
}

func (s *Space) Manager() *Manager {
	return s.m
}

// Regions returns the owned regions sorted by virtual address.
func (s *Space) Regions() Regions {
	out := make(Regions, len(s.regions))
	copy(out, s.regions)
	return out
}

// Owned counts every physical frame held by the space, tables included.
func (s *Space) Owned() int {
	if s.destroyed {
		return 0
	}
	n := s.table.Count + len(s.l2)
	for _, r := range s.regions {
		n += r.Frames()
	}
	return n
}

func (s *Space) l1Addr(virt uint64) uint64 {
	return s.Root() + virt/cpu.SECTION_SIZE*4
}

func l2Addr(table, virt uint64) uint64 {
	return table + (virt/cpu.PAGE_SIZE)%l2Entries*4
}

func (s *Space) checkRange(virt, size uint64) error {
	if s.destroyed {
		return ErrDestroyed
	}
	if virt%cpu.PAGE_SIZE != 0 || size%cpu.PAGE_SIZE != 0 || size == 0 {
		return errors.Errorf("mmu: range %#x+%#x is not page aligned", virt, size)
	}
	if virt+size > cpu.KERNEL_SPLIT || virt+size < virt {
		return errors.Errorf("mmu: range %#x+%#x crosses the kernel split", virt, size)
	}
	return nil
}

// Walk returns the raw first and second level descriptors for virt. l2 is zero for sections
// and fault entries.
func (s *Space) Walk(virt uint64) (l1, l2 uint32, err error) {
	if s.destroyed {
		return 0, 0, ErrDestroyed
	}
	if virt >= cpu.KERNEL_SPLIT {
		l1, err = s.m.ram.ReadWord(s.m.KernelRoot() + virt/cpu.SECTION_SIZE*4)
		return l1, 0, err
	}
	if l1, err = s.m.ram.ReadWord(s.l1Addr(virt)); err != nil {
		return 0, 0, err
	}
	if l1&l1Mask == l1Coarse {
		l2, err = s.m.ram.ReadWord(l2Addr(uint64(l1&0xfffffc00), virt))
	}
	return l1, l2, err
}

// Lookup translates virt and reports the protection of the mapping.
func (s *Space) Lookup(virt uint64) (uint64, int, error) {
	l1, l2, err := s.Walk(virt)
	if err != nil {
		return 0, 0, err
	}
	switch l1 & l1Mask {
	case l1Section:
		return uint64(l1&0xfff00000) | virt&(cpu.SECTION_SIZE-1), EntryProt(l1, true), nil
	case l1Coarse:
		if l2&0x2 != 0 {
			return uint64(l2&0xfffff000) | virt&(cpu.PAGE_SIZE-1), EntryProt(l2, false), nil
		}
	}
	return 0, 0, errors.Wrapf(ErrUnmapped, "%#x", virt)
}

// Translate walks the tables for virt without modifying them.
func (s *Space) Translate(virt uint64) (uint64, error) {
	phys, _, err := s.Lookup(virt)
	return phys, err
}

// Map writes translations for virt..virt+size to phys..phys+size. Section descriptors are
// used when all three values are section aligned. Nothing is written if any target entry is
// already in use.
func (s *Space) Map(virt, phys, size uint64, prot int) error {
	if err := s.checkRange(virt, size); err != nil {
		return err
	}
	if phys%cpu.PAGE_SIZE != 0 || phys+size > s.m.ram.Size() {
		return errors.Errorf("mmu: physical range %#x+%#x outside RAM", phys, size)
	}
	ram := s.m.ram
	if virt%cpu.SECTION_SIZE == 0 && phys%cpu.SECTION_SIZE == 0 && size%cpu.SECTION_SIZE == 0 {
		for v := virt; v < virt+size; v += cpu.SECTION_SIZE {
			if e, _ := ram.ReadWord(s.l1Addr(v)); e&l1Mask != l1Fault {
				return errors.Wrapf(ErrAlreadyMapped, "section %#x", v)
			}
		}
		for off := uint64(0); off < size; off += cpu.SECTION_SIZE {
			ram.WriteWord(s.l1Addr(virt+off), sectionEntry(phys+off, prot))
		}
		return nil
	}
	for v := virt; v < virt+size; v += cpu.PAGE_SIZE {
		l1, l2, err := s.Walk(v)
		if err != nil {
			return err
		}
		if l1&l1Mask == l1Section || l1&l1Mask == l1Coarse && l2 != 0 {
			return errors.Wrapf(ErrAlreadyMapped, "page %#x", v)
		}
	}
	for off := uint64(0); off < size; off += cpu.PAGE_SIZE {
		table, err := s.table2(virt + off)
		if err != nil {
			if off > 0 {
				s.clear(virt, off)
			}
			return err
		}
		ram.WriteWord(l2Addr(table, virt+off), pageEntry(phys+off, prot))
	}
	return nil
}

// table2 returns the second level table covering virt, creating it on first use.
func (s *Space) table2(virt uint64) (uint64, error) {
	idx := virt / cpu.SECTION_SIZE
	if run, ok := s.l2[idx]; ok {
		return uint64(run.Base) * cpu.PAGE_SIZE, nil
	}
	runs, err := s.m.frames.Alloc(1)
	if err != nil {
		return 0, errors.Wrap(err, "mmu: second level table")
	}
	table := uint64(runs[0].Base) * cpu.PAGE_SIZE
	s.m.ram.Zero(table, cpu.PAGE_SIZE)
	s.m.ram.WriteWord(s.l1Addr(virt), coarseEntry(table))
	s.l2[idx] = runs[0]
	return table, nil
}

// clear removes translations for the range, skipping fault entries.
func (s *Space) clear(virt, size uint64) error {
	ram := s.m.ram
	end := virt + size
	for v := virt; v < end; {
		l1, _, err := s.Walk(v)
		if err != nil {
			return err
		}
		switch l1 & l1Mask {
		case l1Section:
			if v%cpu.SECTION_SIZE != 0 || end-v < cpu.SECTION_SIZE {
				return errors.Errorf("mmu: unmap of %#x splits a section", v)
			}
			ram.WriteWord(s.l1Addr(v), 0)
			v += cpu.SECTION_SIZE
		case l1Coarse:
			ram.WriteWord(l2Addr(uint64(l1&0xfffffc00), v), 0)
			v += cpu.PAGE_SIZE
		default:
			v = (v/cpu.SECTION_SIZE + 1) * cpu.SECTION_SIZE
		}
	}
	return nil
}

// Alloc allocates fresh zeroed frames for virt..virt+size and maps them as an owned region.
func (s *Space) Alloc(virt, size uint64, prot int, desc string) (*Region, error) {
	size = (size + cpu.PAGE_SIZE - 1) &^ (cpu.PAGE_SIZE - 1)
	if err := s.checkRange(virt, size); err != nil {
		return nil, err
	}
	runs, err := s.m.frames.Alloc(int(size / cpu.PAGE_SIZE))
	if err != nil {
		return nil, err
	}
	v := virt
	for _, run := range runs {
		phys := uint64(run.Base) * cpu.PAGE_SIZE
		length := uint64(run.Count) * cpu.PAGE_SIZE
		s.m.ram.Zero(phys, length)
		if err := s.Map(v, phys, length, prot); err != nil {
			if v > virt {
				s.clear(virt, v-virt)
			}
			s.m.frames.Free(runs)
			return nil, err
		}
		v += length
	}
	r := &Region{Addr: virt, Size: size, Prot: prot, Desc: desc, Runs: runs}
	s.regions = append(s.regions, r)
	sort.Sort(s.regions)
	return r, nil
}

// Unmap clears translations for virt..virt+size and releases owned regions inside it.
// Owned regions must lie entirely inside or outside the range.
func (s *Space) Unmap(virt, size uint64) error {
	if err := s.checkRange(virt, size); err != nil {
		return err
	}
	hit := s.regions.FindRange(virt, size)
	for _, r := range hit {
		if r.Addr < virt || r.Addr+r.Size > virt+size {
			return errors.Errorf("mmu: unmap %#x+%#x splits region %s", virt, size, r)
		}
	}
	if err := s.clear(virt, size); err != nil {
		return err
	}
	kept := s.regions[:0]
	for _, r := range s.regions {
		if r.Overlaps(virt, size) {
			s.m.frames.Free(r.Runs)
		} else {
			kept = append(kept, r)
		}
	}
	s.regions = kept
	return nil
}

// Destroy releases every frame the space owns. The space is unusable afterwards.
func (s *Space) Destroy() {
	if s.destroyed {
		return
	}
	for _, r := range s.regions {
		s.m.frames.Free(r.Runs)
	}
	idx := make([]uint64, 0, len(s.l2))
	for i := range s.l2 {
		idx = append(idx, i)
	}
	sort.Slice(idx, func(i, j int) bool { return idx[i] < idx[j] })
	for _, i := range idx {
		s.m.frames.Free([]mem.Run{s.l2[i]})
	}
	s.m.frames.Free([]mem.Run{s.table})
	s.regions = nil
	s.l2 = nil
	s.destroyed = true
}

// CopyFrom duplicates every owned region of parent into s, byte for byte.
func (s *Space) CopyFrom(parent *Space) error {
	ram := s.m.ram
	for _, pr := range parent.regions {
		if _, err := s.Alloc(pr.Addr, pr.Size, pr.Prot, pr.Desc); err != nil {
			return errors.Wrapf(err, "copy region %s", pr)
		}
		for off := uint64(0); off < pr.Size; off += cpu.PAGE_SIZE {
			src, err := parent.Translate(pr.Addr + off)
			if err != nil {
				return err
			}
			dst, err := s.Translate(pr.Addr + off)
			if err != nil {
				return err
			}
			if err := ram.Copy(dst, src, cpu.PAGE_SIZE); err != nil {
				return err
			}
		}
	}
	return nil
}

// Read copies user memory at virt into p, one page at a time.
func (s *Space) Read(virt uint64, p []byte) error {
	for len(p) > 0 {
		phys, err := s.Translate(virt)
		if err != nil {
			return &cpu.MemError{Addr: virt, Size: len(p), Enum: cpu.MEM_READ_UNMAPPED}
		}
		n := cpu.PAGE_SIZE - int(virt%cpu.PAGE_SIZE)
		if n > len(p) {
			n = len(p)
		}
		if err := s.m.ram.Read(phys, p[:n]); err != nil {
			return err
		}
		p = p[n:]
		virt += uint64(n)
	}
	return nil
}

func (s *Space) Write(virt uint64, p []byte) error {
	for len(p) > 0 {
		phys, err := s.Translate(virt)
		if err != nil {
			return &cpu.MemError{Addr: virt, Size: len(p), Enum: cpu.MEM_WRITE_UNMAPPED}
		}
		n := cpu.PAGE_SIZE - int(virt%cpu.PAGE_SIZE)
		if n > len(p) {
			n = len(p)
		}
		if err := s.m.ram.Write(phys, p[:n]); err != nil {
			return err
		}
		p = p[n:]
		virt += uint64(n)
	}
	return nil
}

func (s *Space) MemRead(addr, size uint64) ([]byte, error) {
	p := make([]byte, size)
	return p, s.Read(addr, p)
}

func (s *Space) MemReadInto(p []byte, addr uint64) error {
	return s.Read(addr, p)
}

func (s *Space) MemWrite(addr uint64, p []byte) error {
	return s.Write(addr, p)
}

// ReadStrAt reads a NUL terminated string.
func (s *Space) ReadStrAt(addr uint64) (string, error) {
	var out []byte
	for len(out) < maxStrLen {
		n := cpu.PAGE_SIZE - addr%cpu.PAGE_SIZE
		chunk, err := s.MemRead(addr, n)
		if err != nil {
			return "", err
		}
		if i := bytes.IndexByte(chunk, 0); i >= 0 {
			return string(append(out, chunk[:i]...)), nil
		}
		out = append(out, chunk...)
		addr += n
	}
	return "", errors.Errorf("string at %#x longer than %d bytes", addr, maxStrLen)
}
