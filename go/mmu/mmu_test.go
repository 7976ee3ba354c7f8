package mmu

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"

	"github.com/math-fehr/WindOS-sub000/go/mem"
	"github.com/math-fehr/WindOS-sub000/go/models/cpu"
)

const testRAM = 8 * cpu.SECTION_SIZE

func newManager(t *testing.T) *Manager {
	t.Helper()
	ram := cpu.NewPhysMem(testRAM)
	frames := mem.New(ram.Frames(), nil)
	// kernel image
	frames.Reserve(mem.Run{Base: 0, Count: 16})
	m, err := NewManager(ram, frames, nil)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestKernelTable(t *testing.T) {
	m := newManager(t)
	if m.KernelRoot()%(16*1024) != 0 {
		t.Fatalf("kernel table at %#x is not 16K aligned", m.KernelRoot())
	}
	for _, p := range []uint64{0, 0x1234, cpu.SECTION_SIZE + 8, testRAM - 4} {
		phys, err := m.KernelTranslate(cpu.KERNEL_SPLIT + p)
		if err != nil {
			t.Fatal(err)
		}
		if phys != p {
			t.Errorf("kernel translate %#x = %#x", cpu.KERNEL_SPLIT+p, phys)
		}
	}
	if _, err := m.KernelTranslate(cpu.KERNEL_SPLIT + testRAM); errors.Cause(err) != ErrUnmapped {
		t.Fatalf("translate past RAM: %v", err)
	}
}

func TestSectionAndPageEncoding(t *testing.T) {
	m := newManager(t)
	s, err := m.Create()
	if err != nil {
		t.Fatal(err)
	}
	if s.Root()%(8*1024) != 0 {
		t.Fatalf("space root at %#x is not 8K aligned", s.Root())
	}
	// aligned: one section descriptor
	if err := s.Map(0, 2*cpu.SECTION_SIZE, cpu.SECTION_SIZE, cpu.PROT_READ|cpu.PROT_EXEC); err != nil {
		t.Fatal(err)
	}
	l1, _, _ := s.Walk(0x1000)
	if l1&3 != 2 || l1&0xfff00000 != 2*cpu.SECTION_SIZE {
		t.Fatalf("bad section descriptor %#x", l1)
	}
	if ap := l1 >> 10 & 3; ap != 2 {
		t.Fatalf("section AP = %d, expecting user read-only", ap)
	}
	if l1&(1<<4) != 0 {
		t.Fatal("executable section has XN set")
	}

	// unaligned: coarse table with small pages
	if err := s.Map(0x300000, 0x5000, 0x2000, cpu.PROT_READ|cpu.PROT_WRITE); err != nil {
		t.Fatal(err)
	}
	l1, l2, _ := s.Walk(0x301000)
	if l1&3 != 1 {
		t.Fatalf("expecting coarse descriptor, got %#x", l1)
	}
	if l2&2 == 0 || l2&0xfffff000 != 0x6000 {
		t.Fatalf("bad page descriptor %#x", l2)
	}
	if ap := l2 >> 4 & 3; ap != 3 {
		t.Fatalf("page AP = %d, expecting user read-write", ap)
	}
	if l2&1 == 0 {
		t.Fatal("non-executable page is missing XN")
	}
	if _, prot, _ := s.Lookup(0x300000); prot != cpu.PROT_READ|cpu.PROT_WRITE {
		t.Fatalf("decoded prot %d", prot)
	}
}

func TestTranslate(t *testing.T) {
	m := newManager(t)
	s, _ := m.Create()
	s.Map(cpu.SECTION_SIZE, 3*cpu.SECTION_SIZE, cpu.SECTION_SIZE, cpu.PROT_ALL)
	s.Map(0x400000, 0x20000, 0x1000, cpu.PROT_ALL)

	tests := []struct {
		virt, phys uint64
		err        bool
	}{
		{cpu.SECTION_SIZE, 3 * cpu.SECTION_SIZE, false},
		{cpu.SECTION_SIZE + 0xabcd, 3*cpu.SECTION_SIZE + 0xabcd, false},
		{0x400123, 0x20123, false},
		{0x401000, 0, true},
		{0, 0, true},
		{cpu.KERNEL_SPLIT + 0x10, 0x10, false},
	}
	for _, test := range tests {
		phys, err := s.Translate(test.virt)
		if test.err {
			if errors.Cause(err) != ErrUnmapped {
				t.Errorf("translate(%#x) = %#x, %v; expecting ErrUnmapped", test.virt, phys, err)
			}
			continue
		}
		if err != nil || phys != test.phys {
			t.Errorf("translate(%#x) = %#x, %v; expecting %#x", test.virt, phys, err, test.phys)
		}
	}
}

func TestMapTwice(t *testing.T) {
	m := newManager(t)
	s, _ := m.Create()
	if err := s.Map(0, 2*cpu.SECTION_SIZE, cpu.SECTION_SIZE, cpu.PROT_ALL); err != nil {
		t.Fatal(err)
	}
	if err := s.Map(0x1000, 0x10000, 0x1000, cpu.PROT_ALL); errors.Cause(err) != ErrAlreadyMapped {
		t.Fatalf("page over section: %v", err)
	}
	if err := s.Map(0x200000, 0x10000, 0x3000, cpu.PROT_ALL); err != nil {
		t.Fatal(err)
	}
	// overlapping the last page: nothing may be written
	if err := s.Map(0x1fe000, 0x40000, 0x3000, cpu.PROT_ALL); errors.Cause(err) != ErrAlreadyMapped {
		t.Fatalf("overlapping pages: %v", err)
	}
	if _, err := s.Translate(0x1fe000); err == nil {
		t.Fatal("failed map left a translation behind")
	}
}

func TestAllocWithoutTableFrame(t *testing.T) {
	m := newManager(t)
	frames := m.Frames()
	s, _ := m.Create()
	free := frames.FreeFrames()
	// two data frames and one table: the page in the second section gets no table
	hog, err := frames.Alloc(free - 3)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Alloc(0x1ff000, 0x2000, cpu.PROT_READ|cpu.PROT_WRITE, "heap"); errors.Cause(err) != mem.ErrNoMemory {
		t.Fatalf("alloc = %v, expecting ErrNoMemory", err)
	}
	if _, err := s.Translate(0x1ff000); errors.Cause(err) != ErrUnmapped {
		t.Fatal("failed alloc left a translation to a released frame")
	}
	if len(s.Regions()) != 0 {
		t.Fatalf("regions: %v", s.Regions())
	}
	frames.Free(hog)
	s.Destroy()
	if frames.FreeFrames() != free+userTableFrames {
		t.Fatalf("%d frames leaked", free+userTableFrames-frames.FreeFrames())
	}
	if err := frames.Check(); err != nil {
		t.Fatal(err)
	}
}

func TestAllocReadWrite(t *testing.T) {
	m := newManager(t)
	s, _ := m.Create()
	if _, err := s.Alloc(0x10000, 0x3000, cpu.PROT_READ|cpu.PROT_WRITE, "heap"); err != nil {
		t.Fatal(err)
	}
	msg := []byte("hello across a page boundary\x00")
	addr := uint64(0x10ff0)
	if err := s.Write(addr, msg); err != nil {
		t.Fatal(err)
	}
	got, err := s.ReadStrAt(addr)
	if err != nil {
		t.Fatal(err)
	}
	if got != string(msg[:len(msg)-1]) {
		t.Fatalf("ReadStrAt = %q", got)
	}
	if err := s.Write(0x12ff8, make([]byte, 16)); err == nil {
		t.Fatal("write past the region succeeded")
	} else if _, ok := err.(*cpu.MemError); !ok {
		t.Fatalf("expecting *cpu.MemError, got %T", err)
	}
	if rs := s.Regions(); len(rs) != 1 || rs[0].Desc != "heap" || rs[0].Size != 0x3000 {
		t.Fatalf("regions: %v", rs)
	}
}

func TestUnmapAndDestroyReleaseFrames(t *testing.T) {
	m := newManager(t)
	frames := m.Frames()
	free := frames.FreeFrames()

	s, _ := m.Create()
	s.Alloc(0, cpu.SECTION_SIZE, cpu.PROT_ALL, "code")
	s.Alloc(0x100000, 0x1000, cpu.PROT_READ|cpu.PROT_WRITE, "brk")
	s.Alloc(0x101000, 0x1000, cpu.PROT_READ|cpu.PROT_WRITE, "brk")
	if used := free - frames.FreeFrames(); used != s.Owned() {
		t.Fatalf("space owns %d frames, allocator handed out %d", s.Owned(), used)
	}

	if err := s.Unmap(0x100000, 0x2000); err != nil {
		t.Fatal(err)
	}
	if len(s.Regions()) != 1 {
		t.Fatalf("regions after unmap: %v", s.Regions())
	}
	if _, err := s.Translate(0x101000); errors.Cause(err) != ErrUnmapped {
		t.Fatal("unmapped page still translates")
	}
	if err := s.Unmap(0x80000, 0x1000); err == nil {
		t.Fatal("unmap splitting a region succeeded")
	}

	s.Destroy()
	if frames.FreeFrames() != free {
		t.Fatalf("%d frames leaked", free-frames.FreeFrames())
	}
	if err := frames.Check(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Alloc(0, 0x1000, cpu.PROT_ALL, ""); errors.Cause(err) != ErrDestroyed {
		t.Fatalf("alloc on destroyed space: %v", err)
	}
}

func TestCopyFromIsolation(t *testing.T) {
	m := newManager(t)
	parent, _ := m.Create()
	parent.Alloc(0, cpu.SECTION_SIZE, cpu.PROT_ALL, "code")
	parent.Alloc(0x100000, 0x1000, cpu.PROT_READ|cpu.PROT_WRITE, "brk")
	parent.Write(0x100010, []byte("parent"))

	child, _ := m.Create()
	if err := child.CopyFrom(parent); err != nil {
		t.Fatal(err)
	}
	p, _ := parent.Translate(0x100010)
	c, _ := child.Translate(0x100010)
	if p == c {
		t.Fatal("child shares a frame with its parent")
	}
	buf := make([]byte, 6)
	child.Read(0x100010, buf)
	if string(buf) != "parent" {
		t.Fatalf("child sees %q", buf)
	}
	child.Write(0x100010, []byte("child!"))
	parent.Read(0x100010, buf)
	if !bytes.Equal(buf, []byte("parent")) {
		t.Fatalf("child write leaked into parent: %q", buf)
	}
	if len(child.Regions()) != len(parent.Regions()) {
		t.Fatalf("child has %d regions, parent %d", len(child.Regions()), len(parent.Regions()))
	}
}

func TestRegionsFind(t *testing.T) {
	rs := Regions{
		{Addr: 0x1000, Size: 0x1000},
		{Addr: 0x4000, Size: 0x2000},
		{Addr: 0x8000, Size: 0x1000},
	}
	if r := rs.Find(0x5fff); r != rs[1] {
		t.Fatalf("Find(0x5fff) = %v", r)
	}
	if r := rs.Find(0x3000); r != nil {
		t.Fatalf("Find(0x3000) = %v", r)
	}
	if got := rs.FindRange(0x1800, 0x3000); len(got) != 2 {
		t.Fatalf("FindRange = %v", got)
	}
}
