package models

import (
	"fmt"
	"strings"

	"github.com/mgutz/ansi"

	"github.com/math-fehr/WindOS-sub000/go/models/cpu"
)

var (
	chSame = ansi.ColorCode("default:default")
	chNew  = ansi.ColorCode("default+bu:default")
)

type RegChange struct {
	Enum     int
	Name     string
	Old, New uint32
}

func (c RegChange) Changed() bool { return c.Old != c.New }

// format prints the register, underlining the hex digits that differ when color is set.
func (c RegChange) format(color bool) string {
	val := fmt.Sprintf("%08x", c.New)
	if !c.Changed() {
		return fmt.Sprintf("  %4s 0x%s", c.Name, val)
	}
	if !color {
		return fmt.Sprintf("+ %4s 0x%s", c.Name, val)
	}
	old := fmt.Sprintf("%08x", c.Old)
	var b strings.Builder
	fmt.Fprintf(&b, "  %s%4s%s 0x", chNew, c.Name, ansi.Reset)
	for i := range val {
		if val[i] != old[i] {
			b.WriteString(chNew + val[i:i+1] + ansi.Reset)
		} else {
			b.WriteString(chSame + val[i:i+1] + ansi.Reset)
		}
	}
	return b.String()
}

// RegDiff remembers the last frame it was shown.
type RegDiff struct {
	prev *cpu.Frame
}

// Diff compares f with the frame of the previous call. Nothing is reported changed on the
// first call.
func (d *RegDiff) Diff(f *cpu.Frame) []RegChange {
	out := make([]RegChange, cpu.NUM_REGS)
	for enum := range out {
		c := RegChange{Enum: enum, Name: cpu.RegNames[enum], New: f.Reg(enum)}
		c.Old = c.New
		if d.prev != nil {
			c.Old = d.prev.Reg(enum)
		}
		out[enum] = c
	}
	saved := *f
	d.prev = &saved
	return out
}

// FormatChanges lays registers out four to a line.
func FormatChanges(changes []RegChange, color bool) string {
	var b strings.Builder
	for i, c := range changes {
		b.WriteString(c.format(color))
		if i%4 == 3 || i == len(changes)-1 {
			b.WriteString("\n")
		} else {
			b.WriteString(" ")
		}
	}
	return b.String()
}
