package kernel

import (
	"github.com/pkg/errors"

	"github.com/math-fehr/WindOS-sub000/go/kernel/proc"
	"github.com/math-fehr/WindOS-sub000/go/mmu"
	"github.com/math-fehr/WindOS-sub000/go/models"
	"github.com/math-fehr/WindOS-sub000/go/models/cpu"
	"github.com/math-fehr/WindOS-sub000/go/vfs"
)

// Outcome is the result of trying to resume a selected process.
type Outcome int

const (
	Runnable Outcome = iota
	StillBlocked
)

func (o Outcome) String() string {
	if o == Runnable {
		return "runnable"
	}
	return "still blocked"
}

// enter masks interrupts for the length of a trap. Traps never nest.
func (k *Kernel) enter() error {
	if k.halted != nil {
		return k.halted
	}
	if !k.trapMu.TryLock() {
		return k.fatal("nested trap", nil)
	}
	if k.core.IRQMasked() {
		k.trapMu.Unlock()
		return k.fatal("trap with interrupts masked", nil)
	}
	k.core.MaskIRQ()
	return nil
}

func (k *Kernel) leave() {
	k.core.UnmaskIRQ()
	k.trapMu.Unlock()
}

// Timer is the IRQ entry. The live registers belong to the interrupted process unless the core
// was idle.
func (k *Kernel) Timer() error {
	if err := k.enter(); err != nil {
		return err
	}
	defer k.leave()
	k.ticks++
	if k.core.Idle() {
		k.core.SetIdle(false)
	} else {
		k.save()
	}
	return k.schedule()
}

// Swi is the supervisor call entry: r7 holds the syscall number, r0-r5 the arguments.
func (k *Kernel) Swi() error {
	if err := k.enter(); err != nil {
		return err
	}
	defer k.leave()
	if k.core.Idle() {
		return k.fatal("syscall while idle", nil)
	}
	h := k.cur
	p, err := k.procs.Get(h)
	if err != nil {
		return k.fatal("syscall from a dead process", err)
	}
	p.Frame = k.core.Frame()
	resched, err := k.dispatch(h, p)
	if err != nil {
		return err
	}
	if resched {
		return k.schedule()
	}
	k.switchTo(h, p)
	return nil
}

// save stores the live registers into the current process.
func (k *Kernel) save() {
	p, err := k.procs.Get(k.cur)
	if err != nil || p.Status == proc.Zombie {
		return
	}
	p.Frame = k.core.Frame()
}

// switchTo installs a process's tables and registers on the core.
func (k *Kernel) switchTo(h proc.Handle, p *proc.Process) {
	k.cur = h
	k.core.SetRoot(uint32(p.Space.Root()))
	k.core.Load(p.Frame)
	k.Mem = p.Space
}

// schedule is the resume trampoline. Blocked processes get their syscall retried in-trap; it
// gives up after trying every active process once and idles the core until the next IRQ.
func (k *Kernel) schedule() error {
	tries := len(k.procs.Active())
	if tries == 0 {
		return k.fatal("no runnable process", proc.ErrNoProcess)
	}
	for i := 0; i < tries; i++ {
		h, err := k.procs.Next()
		if err != nil {
			return k.fatal("no runnable process", err)
		}
		outcome, err := k.resume(h)
		if err != nil {
			return err
		}
		if outcome == Runnable {
			return nil
		}
	}
	k.log.Debug("every process is blocked, idling", "tick", k.ticks)
	k.core.SetIdle(true)
	return nil
}

func (k *Kernel) resume(h proc.Handle) (Outcome, error) {
	p, err := k.procs.Get(h)
	if err != nil {
		return StillBlocked, k.fatal("scheduler picked a dead process", err)
	}
	k.switchTo(h, p)
	if p.Status != proc.BlockedOnSyscall {
		return Runnable, nil
	}
	if _, err := k.dispatch(h, p); err != nil {
		return StillBlocked, err
	}
	if p, err := k.procs.Get(h); err == nil && p.Status == proc.Active {
		k.switchTo(h, p)
		return Runnable, nil
	}
	return StillBlocked, nil
}

// dispatch runs the syscall recorded in p's saved frame and stores its result. It reports
// whether the caller gave up the core.
func (k *Kernel) dispatch(h proc.Handle, p *proc.Process) (bool, error) {
	num, args := p.Frame.Syscall()
	name := syscallLabel(num)
	depth := len(p.SigFrames)
	k.noReturn = false

	var ret uint64
	var err error
	sys, ok := k.Syscalls[name]
	if _, implemented := syscallNames[num]; !ok || !implemented {
		k.log.Warn("unimplemented syscall", "pid", p.Pid, "num", num, "name", name)
		ret = models.ENOSYS.Ret()
	} else {
		if k.config.TraceSys {
			k.trace.call(p.Pid, sys, args)
		}
		ret, err = sys.Call(args)
	}

	if err != nil {
		var pe *Panic
		switch {
		case errors.As(err, &pe):
			return false, pe
		case errors.Cause(err) == mmu.ErrAlreadyMapped:
			return false, k.fatal("translation table corrupt", err)
		case errors.Cause(err) == proc.ErrRootExit:
			return false, k.fatal("init exited", err)
		case errors.Cause(err) == vfs.ErrWouldBlock:
			if p.Status == proc.Active {
				k.procs.Block(h)
			}
			if k.config.TraceSys {
				k.trace.blocked(p.Pid, sys)
			}
			return true, nil
		}
		k.log.Debug("syscall failed", "pid", p.Pid, "name", name, "err", err)
	}
	if k.config.TraceSys && ok {
		k.trace.ret(p.Pid, sys, args, ret)
	}
	if p.Status == proc.BlockedOnSyscall {
		k.procs.Unblock(h)
	}

	alive := false
	if q, gerr := k.procs.Get(h); gerr == nil && q == p && p.Status != proc.Zombie {
		alive = true
	}
	if alive && !k.noReturn {
		if len(p.SigFrames) > depth {
			// a handler was pushed during the call: the result belongs to the interrupted frame
			p.SigFrames[depth].SetReg(cpu.R0, uint32(ret))
		} else {
			p.Frame.SetReg(cpu.R0, uint32(ret))
		}
	}
	switch {
	case !alive, p.Status != proc.Active:
		return true, nil
	case name == "exit", name == "execve", name == "sched_yield":
		return true, nil
	}
	return false, nil
}
