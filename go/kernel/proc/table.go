package proc

import (
	"io"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/math-fehr/WindOS-sub000/go/mmu"
	"github.com/math-fehr/WindOS-sub000/go/models"
	"github.com/math-fehr/WindOS-sub000/go/models/cpu"
)

var (
	ErrNoProcess   = errors.New("no runnable process")
	ErrStaleHandle = errors.New("stale process handle")
	ErrRootExit    = errors.New("root process exited")
)

// Manager owns the process table and the scheduler state.
type Manager struct {
	mmu      *mmu.Manager
	maxFiles int
	log      *slog.Logger

	slots []Process

	// index sets over slots. active is walked by the round-robin cursor.
	active  []int
	waiting []int
	zombie  []int
	free    []int
	cursor  int

	nextPid int

	Invoker HandlerInvoker
}

func NewManager(m *mmu.Manager, maxProcs, maxFiles int, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	pm := &Manager{
		mmu:      m,
		maxFiles: maxFiles,
		log:      log,
		slots:    make([]Process, maxProcs),
		free:     make([]int, 0, maxProcs),
	}
	// popped from the end, so low slots are used first
	for i := maxProcs - 1; i >= 0; i-- {
		pm.free = append(pm.free, i)
	}
	pm.Invoker = &FrameInvoker{}
	return pm
}

func (m *Manager) MMU() *mmu.Manager { return m.mmu }

// StackTop is the initial stack pointer of every process: the top of installed memory, or the
// kernel split if more memory is installed.
func (m *Manager) StackTop() uint64 {
	top := m.mmu.RAM().Size() &^ (cpu.SECTION_SIZE - 1)
	if top > cpu.KERNEL_SPLIT {
		top = cpu.KERNEL_SPLIT
	}
	return top
}

// Get resolves a handle to its live process.
func (m *Manager) Get(h Handle) (*Process, error) {
	if h.Index < 0 || h.Index >= len(m.slots) {
		return nil, errors.Wrapf(ErrStaleHandle, "handle %s", h)
	}
	p := &m.slots[h.Index]
	if p.gen != h.Gen || p.Status == Free {
		return nil, errors.Wrapf(ErrStaleHandle, "handle %s", h)
	}
	return p, nil
}

func (m *Manager) handle(idx int) Handle {
	return Handle{Index: idx, Gen: m.slots[idx].gen}
}

// ByPid finds a live (non-free) process.
func (m *Manager) ByPid(pid int) (Handle, *Process, bool) {
	for i := range m.slots {
		p := &m.slots[i]
		if p.Status != Free && p.Pid == pid {
			return m.handle(i), p, true
		}
	}
	return NoHandle, nil, false
}

// Each calls fn for every live process in slot order.
func (m *Manager) Each(fn func(h Handle, p *Process)) {
	for i := range m.slots {
		if m.slots[i].Status != Free {
			fn(m.handle(i), &m.slots[i])
		}
	}
}

// Count returns the number of processes in each set.
func (m *Manager) Count() (active, waiting, zombie, free int) {
	return len(m.active), len(m.waiting), len(m.zombie), len(m.free)
}

// Active returns the active set in scheduling order.
func (m *Manager) Active() []Handle {
	out := make([]Handle, len(m.active))
	for i, idx := range m.active {
		out[i] = m.handle(idx)
	}
	return out
}

// Next advances the round-robin cursor and returns the process under it. Status is not
// checked: a BlockedOnSyscall process is returned like any other active one.
func (m *Manager) Next() (Handle, error) {
	if len(m.active) == 0 {
		return NoHandle, ErrNoProcess
	}
	m.cursor = (m.cursor + 1) % len(m.active)
	return m.handle(m.active[m.cursor]), nil
}

func (m *Manager) set(s Status) *[]int {
	switch s {
	case Active, BlockedOnSyscall:
		return &m.active
	case Waiting:
		return &m.waiting
	case Zombie:
		return &m.zombie
	}
	return &m.free
}

// remove deletes idx from a set by swapping the last member into its place.
func remove(set *[]int, idx int) {
	s := *set
	for i, v := range s {
		if v == idx {
			last := len(s) - 1
			s[i] = s[last]
			*set = s[:last]
			return
		}
	}
}

func (m *Manager) setStatus(idx int, s Status) {
	p := &m.slots[idx]
	from, to := m.set(p.Status), m.set(s)
	if from != to {
		remove(from, idx)
		*to = append(*to, idx)
	}
	p.Status = s
}

// alloc takes a free slot for a new process.
func (m *Manager) alloc() (int, error) {
	if len(m.free) == 0 {
		return -1, errors.Wrap(models.EAGAIN, "process table full")
	}
	return m.free[len(m.free)-1], nil
}

// release returns a slot to the free set, invalidating handles to it.
func (m *Manager) release(idx int) {
	m.setStatus(idx, Free)
	gen := m.slots[idx].gen + 1
	m.slots[idx] = Process{gen: gen}
}

// Check verifies every slot is in exactly the set matching its status.
func (m *Manager) Check() error {
	seen := make([]int, len(m.slots))
	sets := []struct {
		name  string
		set   []int
		match func(Status) bool
	}{
		{"active", m.active, func(s Status) bool { return s == Active || s == BlockedOnSyscall }},
		{"waiting", m.waiting, func(s Status) bool { return s == Waiting }},
		{"zombie", m.zombie, func(s Status) bool { return s == Zombie }},
		{"free", m.free, func(s Status) bool { return s == Free }},
	}
	for _, s := range sets {
		for _, idx := range s.set {
			if idx < 0 || idx >= len(m.slots) {
				return errors.Errorf("%s set holds bad slot %d", s.name, idx)
			}
			seen[idx]++
			if st := m.slots[idx].Status; !s.match(st) {
				return errors.Errorf("slot %d is %s but in the %s set", idx, st, s.name)
			}
		}
	}
	for idx, n := range seen {
		if n != 1 {
			return errors.Errorf("slot %d is in %d sets", idx, n)
		}
	}
	return nil
}
