package proc

import (
	"github.com/math-fehr/WindOS-sub000/go/models"
	"github.com/math-fehr/WindOS-sub000/go/models/cpu"
)

// HandlerInvoker arranges for a process to run a signal handler.
type HandlerInvoker interface {
	Invoke(p *Process, sig int, h SigHandler) error
}

// FrameInvoker diverts the saved frame into the handler: pc = handler, r0 = sig, r1 = ctx.
// The interrupted frame is pushed for sigreturn. A process interrupted while blocked or
// waiting resumes with -EINTR as the result of that call.
type FrameInvoker struct{}

func (FrameInvoker) Invoke(p *Process, sig int, h SigHandler) error {
	saved := p.Frame
	p.SigFrames = append(p.SigFrames, saved)
	p.Frame.SetReg(cpu.PC, h.Handler)
	p.Frame.SetReg(cpu.R0, uint32(sig))
	p.Frame.SetReg(cpu.R1, h.Ctx)
	return nil
}

// Signal raises sig. pid > 0 targets one process; pid -1 targets every live process except
// the root, the caller included.
func (m *Manager) Signal(caller Handle, pid, sig int) error {
	if sigSlot(sig) < 0 {
		return models.EINVAL
	}
	var targets []int
	switch {
	case pid > 0:
		h, p, ok := m.ByPid(pid)
		if !ok {
			return models.ESRCH
		}
		if p.Status == Zombie {
			return nil
		}
		targets = append(targets, h.Index)
	case pid == -1:
		for i := range m.slots {
			p := &m.slots[i]
			if p.Status != Free && p.Status != Zombie && p.Pid != 0 {
				targets = append(targets, i)
			}
		}
		if len(targets) == 0 {
			return models.ESRCH
		}
	default:
		return models.EINVAL
	}
	for _, idx := range targets {
		if st := m.slots[idx].Status; st == Free || st == Zombie {
			continue
		}
		if err := m.deliver(m.handle(idx), sig); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) deliver(h Handle, sig int) error {
	p, err := m.Get(h)
	if err != nil {
		return err
	}
	if handler, ok := p.Handler(sig); ok && sig != SIGKILL {
		interrupted := p.Status == BlockedOnSyscall || p.Status == Waiting
		if err := m.Invoker.Invoke(p, sig, handler); err != nil {
			return err
		}
		if interrupted && len(p.SigFrames) > 0 {
			p.SigFrames[len(p.SigFrames)-1].SetReg(cpu.R0, uint32(models.EINTR.Ret()))
			p.WaitPid, p.WaitStatus = 0, 0
			m.setStatus(h.Index, Active)
		}
		m.log.Debug("signal handler", "pid", p.Pid, "sig", sig, "handler", handler.Handler)
		return nil
	}
	m.log.Debug("killed", "pid", p.Pid, "sig", sig)
	return m.Exit(h, models.KilledBy(sig))
}

// SetHandler registers handler for sig and returns the previous one. SIGKILL cannot be caught.
func (m *Manager) SetHandler(h Handle, sig int, handler, ctx uint32) (uint32, error) {
	p, err := m.Get(h)
	if err != nil {
		return 0, err
	}
	slot := sigSlot(sig)
	if slot < 0 || sig == SIGKILL {
		return 0, models.EINVAL
	}
	old := p.Handlers[slot].Handler
	p.Handlers[slot] = SigHandler{Handler: handler, Ctx: ctx}
	return old, nil
}

// Sigreturn resumes the frame interrupted by the innermost handler.
func (m *Manager) Sigreturn(h Handle) error {
	p, err := m.Get(h)
	if err != nil {
		return err
	}
	if len(p.SigFrames) == 0 {
		return models.EINVAL
	}
	last := len(p.SigFrames) - 1
	p.Frame = p.SigFrames[last]
	p.SigFrames = p.SigFrames[:last]
	return nil
}
