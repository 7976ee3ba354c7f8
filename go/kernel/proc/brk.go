package proc

import (
	"github.com/pkg/errors"

	"github.com/math-fehr/WindOS-sub000/go/mmu"
	"github.com/math-fehr/WindOS-sub000/go/models/cpu"
)

// Brk moves the program break. Pages are mapped or unmapped one at a time so that every brk
// page is its own region. Like Linux, failure leaves the break where it was and the current
// break is returned either way.
func (m *Manager) Brk(h Handle, addr uint64) (uint64, error) {
	p, err := m.Get(h)
	if err != nil {
		return 0, err
	}
	limit := m.StackTop() - cpu.SECTION_SIZE
	if addr < BrkBase || addr > limit {
		return p.Brk, nil
	}
	want := int((addr - BrkBase + cpu.PAGE_SIZE - 1) / cpu.PAGE_SIZE)
	have := p.BrkPages
	for have < want {
		virt := BrkBase + uint64(have)*cpu.PAGE_SIZE
		if _, err := p.Space.Alloc(virt, cpu.PAGE_SIZE, cpu.PROT_READ|cpu.PROT_WRITE, "brk"); err != nil {
			// a mapped page above the break means the tables are corrupt
			if errors.Cause(err) == mmu.ErrAlreadyMapped {
				return p.Brk, err
			}
			m.log.Warn("brk growth failed", "pid", p.Pid, "brk", p.Brk, "want", addr, "err", err)
			for have > p.BrkPages {
				have--
				p.Space.Unmap(BrkBase+uint64(have)*cpu.PAGE_SIZE, cpu.PAGE_SIZE)
			}
			return p.Brk, nil
		}
		have++
	}
	for have > want {
		have--
		if err := p.Space.Unmap(BrkBase+uint64(have)*cpu.PAGE_SIZE, cpu.PAGE_SIZE); err != nil {
			return p.Brk, err
		}
	}
	p.BrkPages = want
	p.Brk = addr
	return p.Brk, nil
}
