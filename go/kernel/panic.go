package kernel

import (
	"fmt"

	"github.com/math-fehr/WindOS-sub000/go/models/cpu"
)

// Panic halts the kernel. Every later trap returns it, while memory, tables and the process
// table stay readable for inspection.
type Panic struct {
	Reason string
	Pid    int
	Frame  cpu.Frame
	Ticks  uint64
	Err    error
}

func (p *Panic) Error() string {
	s := fmt.Sprintf("kernel panic: %s (pid %d, tick %d)", p.Reason, p.Pid, p.Ticks)
	if p.Err != nil {
		s += ": " + p.Err.Error()
	}
	return s
}

func (p *Panic) Unwrap() error { return p.Err }

// fatal records the first panic and returns it.
func (k *Kernel) fatal(reason string, err error) *Panic {
	if k.halted != nil {
		return k.halted
	}
	pid := -1
	if p, perr := k.procs.Get(k.cur); perr == nil {
		pid = p.Pid
	}
	k.halted = &Panic{Reason: reason, Pid: pid, Frame: k.core.Frame(), Ticks: k.ticks, Err: err}
	k.log.Error("kernel panic", "reason", reason, "pid", pid, "frame", k.halted.Frame.String(), "err", err)
	return k.halted
}
