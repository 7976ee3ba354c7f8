package cpu

import (
	"fmt"

	"github.com/pkg/errors"
)

// ARM register enums. The trap frame holds them in this order.
const (
	R0 = iota
	R1
	R2
	R3
	R4
	R5
	R6
	R7
	R8
	R9
	R10
	R11
	R12
	SP
	LR
	PC
	CPSR

	NUM_REGS
)

var RegNames = map[int]string{
	R0: "r0", R1: "r1", R2: "r2", R3: "r3", R4: "r4", R5: "r5", R6: "r6",
	R7: "r7", R8: "r8", R9: "r9", R10: "r10", R11: "r11", R12: "r12",
	SP: "sp", LR: "lr", PC: "pc", CPSR: "cpsr",
}

// Frame is the register snapshot captured at trap entry and restored on resume.
type Frame struct {
	R    [16]uint32
	CPSR uint32
}

func (f *Frame) Reg(enum int) uint32 {
	if enum == CPSR {
		return f.CPSR
	}
	return f.R[enum]
}

func (f *Frame) SetReg(enum int, val uint32) {
	if enum == CPSR {
		f.CPSR = val
	} else {
		f.R[enum] = val
	}
}

// Syscall returns the EABI syscall number and the six word arguments.
func (f *Frame) Syscall() (int, []uint64) {
	args := make([]uint64, 6)
	for i := range args {
		args[i] = uint64(f.R[R0+i])
	}
	return int(f.R[R7]), args
}

func (f *Frame) String() string {
	return fmt.Sprintf("pc=%#08x lr=%#08x sp=%#08x r0=%#x r7=%d cpsr=%#x",
		f.R[PC], f.R[LR], f.R[SP], f.R[R0], f.R[R7], f.CPSR)
}

// implements register and context methods for the live core
type Regs struct {
	vals [NUM_REGS]uint64
}

func NewRegs() *Regs {
	return &Regs{}
}

func (r *Regs) RegRead(enum int) (uint64, error) {
	if enum < 0 || enum >= NUM_REGS {
		return 0, errors.New("invalid register")
	}
	return r.vals[enum], nil
}

func (r *Regs) RegWrite(enum int, val uint64) error {
	if enum < 0 || enum >= NUM_REGS {
		return errors.New("invalid register")
	}
	r.vals[enum] = val & 0xffffffff
	return nil
}

// ContextSave copies the register file into a Frame. If reuse is a *Frame it is filled in place.
func (r *Regs) ContextSave(reuse interface{}) (interface{}, error) {
	var f *Frame
	if reuse != nil {
		var ok bool
		if f, ok = reuse.(*Frame); !ok {
			return nil, errors.New("incorrect context type")
		}
	} else {
		f = &Frame{}
	}
	for i := 0; i < NUM_REGS; i++ {
		f.SetReg(i, uint32(r.vals[i]))
	}
	return f, nil
}

func (r *Regs) ContextRestore(ctx interface{}) error {
	f, ok := ctx.(*Frame)
	if !ok {
		return errors.New("incorrect context type")
	}
	for i := 0; i < NUM_REGS; i++ {
		r.vals[i] = uint64(f.Reg(i))
	}
	return nil
}

func (r *Regs) Frame() Frame {
	var f Frame
	r.ContextSave(&f)
	return f
}

func (r *Regs) Load(f Frame) {
	r.ContextRestore(&f)
}
