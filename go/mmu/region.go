package mmu

import (
	"fmt"
	"strings"

	"github.com/math-fehr/WindOS-sub000/go/mem"
	"github.com/math-fehr/WindOS-sub000/go/models/cpu"
)

// Region is a virtual range of a Space backed by frames the Space owns.
type Region struct {
	Addr uint64
	Size uint64
	Prot int
	Desc string
	Runs []mem.Run
}

func (r *Region) String() string {
	prots := []int{cpu.PROT_READ, cpu.PROT_WRITE, cpu.PROT_EXEC}
	chars := []string{"r", "w", "x"}
	prot := ""
	for i := range prots {
		if r.Prot&prots[i] != 0 {
			prot += chars[i]
		} else {
			prot += "-"
		}
	}
	desc := fmt.Sprintf("0x%08x-0x%08x %s", r.Addr, r.Addr+r.Size, prot)
	if r.Desc != "" {
		desc += fmt.Sprintf(" [%s]", r.Desc)
	}
	return desc
}

func (r *Region) Contains(addr uint64) bool {
	return addr >= r.Addr && addr < r.Addr+r.Size
}

// start = max(s1, s2), end = min(e1, e2), ok = end > start
func (r *Region) Intersect(addr, size uint64) (uint64, uint64, bool) {
	start := r.Addr
	end := r.Addr + r.Size
	e2 := addr + size
	if end > e2 {
		end = e2
	}
	if start < addr {
		start = addr
	}
	return start, end - start, end > start
}

func (r *Region) Overlaps(addr, size uint64) bool {
	_, _, ok := r.Intersect(addr, size)
	return ok
}

func (r *Region) Frames() int {
	n := 0
	for _, run := range r.Runs {
		n += run.Count
	}
	return n
}

type Regions []*Region

func (p Regions) Len() int           { return len(p) }
func (p Regions) Swap(i, j int)      { p[i], p[j] = p[j], p[i] }
func (p Regions) Less(i, j int) bool { return p[i].Addr < p[j].Addr }

func (p Regions) String() string {
	s := make([]string, len(p))
	for i, v := range p {
		s[i] = v.String()
	}
	return strings.Join(s, "\n")
}

// binary search to find index of first region containing addr, if any, else -1
func (p Regions) bsearch(addr uint64) int {
	l := 0
	r := len(p) - 1
	for l <= r {
		mid := (l + r) / 2
		e := p[mid]
		if addr >= e.Addr {
			if addr < e.Addr+e.Size {
				return mid
			}
			l = mid + 1
		} else {
			r = mid - 1
		}
	}
	return -1
}

func (p Regions) Find(addr uint64) *Region {
	i := p.bsearch(addr)
	if i >= 0 {
		return p[i]
	}
	return nil
}

// FindRange returns the regions overlapping addr..addr+size.
func (p Regions) FindRange(addr, size uint64) Regions {
	var ret Regions
	for _, r := range p {
		if r.Overlaps(addr, size) {
			ret = append(ret, r)
		}
	}
	return ret
}
