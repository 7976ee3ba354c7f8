// Package proc holds the process table: an arena of PCB slots, the scheduler's index sets
// and the process lifecycle.
package proc

import (
	"fmt"

	"github.com/math-fehr/WindOS-sub000/go/mmu"
	"github.com/math-fehr/WindOS-sub000/go/models/cpu"
	"github.com/math-fehr/WindOS-sub000/go/vfs"
)

type Status int

const (
	Free Status = iota
	Active
	Waiting
	BlockedOnSyscall
	Zombie
)

var statusNames = map[Status]string{
	Free:             "free",
	Active:           "active",
	Waiting:          "waiting",
	BlockedOnSyscall: "blocked",
	Zombie:           "zombie",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Handle addresses a slot. The generation changes every time the slot is released, so a
// handle kept past the life of its process never reaches the next occupant.
type Handle struct {
	Index int
	Gen   uint32
}

var NoHandle = Handle{Index: -1}

func (h Handle) String() string {
	return fmt.Sprintf("%d.%d", h.Index, h.Gen)
}

// signals that can be raised and caught
const (
	SIGINT  = 2
	SIGKILL = 9
	SIGUSR1 = 10
	SIGUSR2 = 12
	SIGTERM = 15
)

var Signals = []int{SIGINT, SIGKILL, SIGUSR1, SIGUSR2, SIGTERM}

const NumSignals = 5

func sigSlot(sig int) int {
	for i, s := range Signals {
		if s == sig {
			return i
		}
	}
	return -1
}

type SigHandler struct {
	Handler uint32
	Ctx     uint32
}

// File is one descriptor table entry.
type File struct {
	Ref    *vfs.Ref
	Pos    int64
	Flags  int
	DirPos int
}

// Copy is a new descriptor entry on the same inode, starting at f's position.
func (f *File) Copy() *File {
	return &File{Ref: f.Ref.Get(), Pos: f.Pos, Flags: f.Flags, DirPos: f.DirPos}
}

// Process is a process control block.
type Process struct {
	Pid    int
	Ppid   int
	Name   string
	Status Status

	Frame cpu.Frame
	Space *mmu.Space

	// program break and the number of pages mapped above BrkBase for it
	Brk      uint64
	BrkPages int

	Files []*File
	Cwd   string

	// valid while Waiting
	WaitPid    int
	WaitStatus uint32

	Handlers [NumSignals]SigHandler
	// frames interrupted by signal handlers, innermost last
	SigFrames []cpu.Frame

	ExitStatus int

	gen uint32
}

func (p *Process) String() string {
	return fmt.Sprintf("%d %s [%s]", p.Pid, p.Name, p.Status)
}

// Handler returns the registered handler for sig.
func (p *Process) Handler(sig int) (SigHandler, bool) {
	slot := sigSlot(sig)
	if slot < 0 {
		return SigHandler{}, false
	}
	return p.Handlers[slot], p.Handlers[slot].Handler != 0
}
