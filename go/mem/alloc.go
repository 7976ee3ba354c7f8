// Package mem tracks free physical memory in frame-granular regions.
package mem

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/pkg/errors"
)

var ErrNoMemory = errors.New("out of physical frames")

// Run is a contiguous range of physical frames.
type Run struct {
	Base  int
	Count int
}

func (r Run) End() int { return r.Base + r.Count }

func (r Run) String() string {
	return fmt.Sprintf("[%d,%d)", r.Base, r.End())
}

// region is one node of the sorted free list.
type region struct {
	base, count int
	next        *region
}

// Allocator hands out physical frames first-fit from a free list kept sorted by base frame.
type Allocator struct {
	head   *region
	total  int
	used   int
	warned bool
	log    *slog.Logger
}

func New(total int, log *slog.Logger) *Allocator {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	a := &Allocator{total: total, log: log}
	if total > 0 {
		a.head = &region{base: 0, count: total}
	}
	return a
}

// Status returns the total and used frame counts.
func (a *Allocator) Status() (total, used int) {
	return a.total, a.used
}

// Free frames, computed from the list rather than the counters.
func (a *Allocator) FreeFrames() int {
	n := 0
	for r := a.head; r != nil; r = r.next {
		n += r.count
	}
	return n
}

// Regions returns a copy of the free list.
func (a *Allocator) Regions() []Run {
	var out []Run
	for r := a.head; r != nil; r = r.next {
		out = append(out, Run{r.base, r.count})
	}
	return out
}

func (a *Allocator) account(n int) {
	a.used += n
	if !a.warned && a.used*10 >= a.total*9 {
		a.warned = true
		a.log.Warn("physical memory above 90%", "used", a.used, "total", a.total)
	}
}

// Reserve removes a specific run from the free list (boot-time reservations).
func (a *Allocator) Reserve(run Run) error {
	var prev *region
	for r := a.head; r != nil; prev, r = r, r.next {
		if run.Base < r.base || run.End() > r.base+r.count {
			continue
		}
		a.carve(prev, r, run.Base, run.Count)
		a.account(run.Count)
		return nil
	}
	return errors.Errorf("reserve %s: frames not free", run)
}

// carve removes [base, base+n) from r, which must contain it.
func (a *Allocator) carve(prev, r *region, base, n int) {
	end := r.base + r.count
	switch {
	case base == r.base && n == r.count:
		if prev == nil {
			a.head = r.next
		} else {
			prev.next = r.next
		}
	case base == r.base:
		r.base += n
		r.count -= n
	case base+n == end:
		r.count -= n
	default:
		tail := &region{base: base + n, count: end - (base + n), next: r.next}
		r.count = base - r.base
		r.next = tail
	}
}

// Alloc returns n frames. If one free region is large enough the frames come from the lowest
// such region as a single run; otherwise they are gathered lowest address first from several
// regions. Nothing is committed when the request cannot be satisfied.
func (a *Allocator) Alloc(n int) ([]Run, error) {
	if n <= 0 {
		return nil, errors.Errorf("invalid frame count %d", n)
	}
	var prev *region
	for r := a.head; r != nil; prev, r = r, r.next {
		if r.count >= n {
			run := Run{r.base, n}
			a.carve(prev, r, r.base, n)
			a.account(n)
			return []Run{run}, nil
		}
	}
	if a.FreeFrames() < n {
		return nil, errors.Wrapf(ErrNoMemory, "alloc %d frames (%d free)", n, a.total-a.used)
	}
	var runs []Run
	need := n
	for need > 0 {
		r := a.head
		take := r.count
		if take > need {
			take = need
		}
		runs = append(runs, Run{r.base, take})
		a.carve(nil, r, r.base, take)
		need -= take
	}
	a.account(n)
	return runs, nil
}

// AllocAligned returns n contiguous frames whose base is a multiple of align.
func (a *Allocator) AllocAligned(n, align int) (Run, error) {
	if n <= 0 || align <= 0 {
		return Run{}, errors.Errorf("invalid aligned alloc %d/%d", n, align)
	}
	var prev *region
	for r := a.head; r != nil; prev, r = r, r.next {
		base := (r.base + align - 1) / align * align
		if base+n <= r.base+r.count {
			a.carve(prev, r, base, n)
			a.account(n)
			return Run{base, n}, nil
		}
	}
	return Run{}, errors.Wrapf(ErrNoMemory, "alloc %d frames aligned to %d", n, align)
}

// Free puts runs back at their ordered position in the free list. A run is merged into its
// predecessor when contiguous, otherwise into its successor when contiguous. Neighbours made
// contiguous by a merge are left as separate regions.
func (a *Allocator) Free(runs []Run) {
	for _, run := range runs {
		if run.Count <= 0 {
			continue
		}
		a.insert(run)
		a.used -= run.Count
	}
}

func (a *Allocator) insert(run Run) {
	var prev *region
	next := a.head
	for next != nil && next.base < run.Base {
		prev, next = next, next.next
	}
	if prev != nil && prev.base+prev.count > run.Base || next != nil && run.End() > next.base {
		panic(fmt.Sprintf("mem: double free of %s", run))
	}
	switch {
	case prev != nil && prev.base+prev.count == run.Base:
		prev.count += run.Count
	case next != nil && run.End() == next.base:
		next.base = run.Base
		next.count += run.Count
	default:
		node := &region{base: run.Base, count: run.Count, next: next}
		if prev == nil {
			a.head = node
		} else {
			prev.next = node
		}
	}
}

// Check verifies the free list is sorted, disjoint and consistent with the counters.
func (a *Allocator) Check() error {
	last := -1
	free := 0
	for r := a.head; r != nil; r = r.next {
		if r.count <= 0 {
			return errors.Errorf("empty region at frame %d", r.base)
		}
		if r.base < last {
			return errors.Errorf("region at frame %d overlaps or is out of order", r.base)
		}
		if r.base+r.count > a.total {
			return errors.Errorf("region [%d,%d) past end of memory", r.base, r.base+r.count)
		}
		last = r.base + r.count
		free += r.count
	}
	if free+a.used != a.total {
		return errors.Errorf("free %d + used %d != total %d", free, a.used, a.total)
	}
	return nil
}

func (a *Allocator) String() string {
	var s []string
	for _, r := range a.Regions() {
		s = append(s, r.String())
	}
	return fmt.Sprintf("%d/%d used, free %s", a.used, a.total, strings.Join(s, " "))
}
