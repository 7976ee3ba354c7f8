package cpu

import (
	"testing"
)

func BenchmarkRegsRead(b *testing.B) {
	regs := NewRegs()
	for i := 0; i < b.N; i++ {
		regs.RegRead(i % NUM_REGS)
	}
}

func BenchmarkRegsWrite(b *testing.B) {
	regs := NewRegs()
	for i := 0; i < b.N; i++ {
		regs.RegWrite(i%NUM_REGS, uint64(i))
	}
}

func TestRegs(t *testing.T) {
	regs := NewRegs()

	// save context to check zeroes later
	ctx, err := regs.ContextSave(nil)
	if err != nil {
		t.Fatal(err, "initial ContextSave() failed")
	}

	// set all regs to pos * 2
	for e := 0; e < NUM_REGS; e++ {
		if err := regs.RegWrite(e, uint64(e*2)); err != nil {
			t.Fatal(err, "initial RegWrite() failed")
		}
	}
	for e := 0; e < NUM_REGS; e++ {
		if val, err := regs.RegRead(e); err != nil {
			t.Fatal(err, "initial RegRead() failed")
		} else if val != uint64(e*2) {
			t.Fatalf("RegRead() returned %d, expecting %d", val, e*2)
		}
	}

	// restore context and check
	if err := regs.ContextRestore(ctx); err != nil {
		t.Fatal(err, "ContextRestore() failed")
	}
	for e := 0; e < NUM_REGS; e++ {
		if val, err := regs.RegRead(e); err != nil {
			t.Fatal(err, "RegRead() failed")
		} else if val != 0 {
			t.Fatalf("RegRead() returned %d, expecting 0", val)
		}
	}

	// test reusing context
	if err := regs.RegWrite(PC, 1); err != nil {
		t.Fatal(err, "RegWrite() failed")
	}
	if _, err := regs.ContextSave(ctx); err != nil {
		t.Fatal(err, "ContextSave() failed")
	}
	if err := regs.RegWrite(PC, 0); err != nil {
		t.Fatal(err, "RegWrite() failed")
	}
	if err := regs.ContextRestore(ctx); err != nil {
		t.Fatal(err, "ContextRestore() failed")
	}
	if val, err := regs.RegRead(PC); err != nil {
		t.Fatal(err, "RegRead() failed")
	} else if val != 1 {
		t.Fatalf("RegRead() returned %d, expecting 1", val)
	}
}

func TestRegsMask(t *testing.T) {
	regs := NewRegs()
	if err := regs.RegWrite(R0, 0x1ffffffff); err != nil {
		t.Fatal("RegWrite() failed")
	}
	if val, _ := regs.RegRead(R0); val != 0xffffffff {
		t.Fatalf("RegRead() returned %#x, expecting 0xffffffff", val)
	}
	if _, err := regs.RegRead(NUM_REGS); err == nil {
		t.Fatal("RegRead() accepted an invalid enum")
	}
}

func TestFrameSyscall(t *testing.T) {
	regs := NewRegs()
	regs.RegWrite(R7, 4)
	for i := 0; i < 6; i++ {
		regs.RegWrite(R0+i, uint64(i+10))
	}
	f := regs.Frame()
	num, args := f.Syscall()
	if num != 4 {
		t.Fatalf("syscall number %d, expecting 4", num)
	}
	for i, a := range args {
		if a != uint64(i+10) {
			t.Errorf("arg %d = %d, expecting %d", i, a, i+10)
		}
	}
	f.SetReg(CPSR, MODE_USR)
	regs.Load(f)
	if v, _ := regs.RegRead(CPSR); v != MODE_USR {
		t.Fatalf("cpsr %#x after Load", v)
	}
}
