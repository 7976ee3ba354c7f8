package models

import (
	"testing"

	"github.com/pkg/errors"

	"github.com/math-fehr/WindOS-sub000/go/models/cpu"
)

type machine struct {
	ram  *cpu.PhysMem
	core *cpu.Core
}

func (m *machine) RAM() *cpu.PhysMem { return m.ram }
func (m *machine) Core() *cpu.Core   { return m.core }

func newMachine(size uint64) *machine {
	return &machine{ram: cpu.NewPhysMem(size), core: cpu.NewCore()}
}

func TestSnapshotRoundTrip(t *testing.T) {
	m := newMachine(0x4000)
	m.ram.WriteWord(0x1230, 0xcafebabe)
	m.ram.Write(0x3ff0, []byte("tail of memory"))
	for e := 0; e < cpu.NUM_REGS; e++ {
		m.core.RegWrite(e, uint64(e*3+1))
	}
	m.core.SetRoot(0x2000)
	m.core.MaskIRQ()

	snap, err := Save(m)
	if err != nil {
		t.Fatal(err)
	}
	n := newMachine(0x4000)
	if err := Load(n, snap); err != nil {
		t.Fatal(err)
	}
	if v, _ := n.ram.ReadWord(0x1230); v != 0xcafebabe {
		t.Fatalf("restored word %#x", v)
	}
	for e := 0; e < cpu.NUM_REGS; e++ {
		if v, _ := n.core.RegRead(e); v != uint64(e*3+1) {
			t.Errorf("reg %s = %d after load", cpu.RegNames[e], v)
		}
	}
	if n.core.Root() != 0x2000 || !n.core.IRQMasked() || n.core.Idle() {
		t.Fatal("core flags not restored")
	}
}

func TestSnapshotRejects(t *testing.T) {
	m := newMachine(0x2000)
	snap, _ := Save(m)
	if err := Load(newMachine(0x3000), snap); errors.Cause(err) != ErrBadSnapshot {
		t.Fatalf("size mismatch: %v", err)
	}
	corrupt := append([]byte(nil), snap...)
	corrupt[len(corrupt)-1] ^= 0xff
	if err := Load(newMachine(0x2000), corrupt); errors.Cause(err) != ErrBadSnapshot {
		t.Fatalf("corrupt body: %v", err)
	}
	if err := Load(newMachine(0x2000), []byte("junk")); errors.Cause(err) != ErrBadSnapshot {
		t.Fatalf("junk: %v", err)
	}
}
