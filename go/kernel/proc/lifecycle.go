package proc

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/math-fehr/WindOS-sub000/go/models"
	"github.com/math-fehr/WindOS-sub000/go/models/cpu"
)

// wait selectors and options
const (
	WaitAny = -1
	WNOHANG = 1
)

// Load starts a new process from an executable image. The first process loaded is the root,
// pid 0, and is its own parent.
func (m *Manager) Load(exe []byte, argv, envp []string) (Handle, error) {
	idx, err := m.alloc()
	if err != nil {
		return NoHandle, err
	}
	im, err := m.build(exe, argv, envp)
	if err != nil {
		return NoHandle, err
	}
	p := &m.slots[idx]
	*p = Process{
		Pid:   m.nextPid,
		Ppid:  0,
		Name:  im.name,
		Frame: im.frame,
		Space: im.space,
		Brk:   BrkBase,
		Files: make([]*File, m.maxFiles),
		Cwd:   "/",
		gen:   p.gen,
	}
	m.nextPid++
	m.setStatus(idx, Active)
	m.log.Info("process loaded", "pid", p.Pid, "name", p.Name, "entry", p.Frame.Reg(cpu.PC))
	return m.handle(idx), nil
}

// Fork clones a process. The child gets a physical copy of every owned region, shares the
// parent's open files and sees 0 as the result of the call.
func (m *Manager) Fork(h Handle) (Handle, error) {
	parent, err := m.Get(h)
	if err != nil {
		return NoHandle, err
	}
	idx, err := m.alloc()
	if err != nil {
		return NoHandle, err
	}
	space, err := m.mmu.Create()
	if err != nil {
		return NoHandle, errors.Wrap(models.ENOMEM, err.Error())
	}
	if err := space.CopyFrom(parent.Space); err != nil {
		space.Destroy()
		return NoHandle, errors.Wrap(models.ENOMEM, err.Error())
	}
	child := &m.slots[idx]
	*child = Process{
		Pid:      m.nextPid,
		Ppid:     parent.Pid,
		Name:     parent.Name,
		Frame:    parent.Frame,
		Space:    space,
		Brk:      parent.Brk,
		BrkPages: parent.BrkPages,
		Files:    make([]*File, len(parent.Files)),
		Cwd:      parent.Cwd,
		Handlers: parent.Handlers,
		gen:      child.gen,
	}
	child.SigFrames = append([]cpu.Frame(nil), parent.SigFrames...)
	for fd, f := range parent.Files {
		if f != nil {
			child.Files[fd] = f.Copy()
		}
	}
	child.Frame.SetReg(cpu.R0, 0)
	m.nextPid++
	m.setStatus(idx, Active)
	m.log.Debug("fork", "parent", parent.Pid, "child", child.Pid, "frames", space.Owned())
	return m.handle(idx), nil
}

// Exec replaces the program of a process. Identity, open files and working directory are kept.
// The whole signal handler table is carried over to the new program.
func (m *Manager) Exec(h Handle, exe []byte, argv, envp []string) error {
	p, err := m.Get(h)
	if err != nil {
		return err
	}
	im, err := m.build(exe, argv, envp)
	if err != nil {
		return err
	}
	old := p.Space
	p.Space = im.space
	p.Frame = im.frame
	p.Name = im.name
	p.Brk = BrkBase
	p.BrkPages = 0
	p.SigFrames = nil
	old.Destroy()
	m.log.Debug("exec", "pid", p.Pid, "name", p.Name)
	return nil
}

// Exit terminates a process with an encoded status. If the parent is waiting for it the
// status is delivered at once and the slot freed; otherwise the process stays a zombie.
func (m *Manager) Exit(h Handle, status int) error {
	p, err := m.Get(h)
	if err != nil {
		return err
	}
	if p.Pid == 0 {
		return errors.Wrapf(ErrRootExit, "status %#x", status)
	}
	if p.Status == Zombie {
		return nil
	}
	for fd, f := range p.Files {
		if f != nil {
			f.Ref.Put()
			p.Files[fd] = nil
		}
	}
	if p.Space != nil {
		p.Space.Destroy()
		p.Space = nil
	}
	p.ExitStatus = status
	p.SigFrames = nil

	var orphans []int
	for i := range m.slots {
		c := &m.slots[i]
		if c.Status != Free && c.Pid != p.Pid && c.Ppid == p.Pid {
			c.Ppid = 0
			if c.Status == Zombie {
				orphans = append(orphans, i)
			}
		}
	}

	m.setStatus(h.Index, Zombie)
	m.log.Debug("exit", "pid", p.Pid, "status", models.StatusString(status))
	if _, parent, ok := m.ByPid(p.Ppid); ok {
		m.notify(parent, h.Index)
	}
	if _, root, ok := m.ByPid(0); ok {
		for _, idx := range orphans {
			if !m.notify(root, idx) {
				break
			}
		}
	}
	return nil
}

// notify hands the zombie in slot idx to parent if parent is waiting for it.
func (m *Manager) notify(parent *Process, idx int) bool {
	z := &m.slots[idx]
	if parent.Status != Waiting || parent.WaitPid != WaitAny && parent.WaitPid != z.Pid {
		return false
	}
	m.writeStatus(parent, parent.WaitStatus, z.ExitStatus)
	parent.Frame.SetReg(cpu.R0, uint32(z.Pid))
	parent.WaitPid, parent.WaitStatus = 0, 0
	m.setStatus(m.indexOf(parent), Active)
	m.release(idx)
	return true
}

func (m *Manager) indexOf(p *Process) int {
	for i := range m.slots {
		if &m.slots[i] == p {
			return i
		}
	}
	return -1
}

func (m *Manager) writeStatus(p *Process, addr uint32, status int) {
	if addr == 0 || p.Space == nil {
		return
	}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(status))
	if err := p.Space.Write(uint64(addr), buf[:]); err != nil {
		m.log.Warn("wait status not delivered", "pid", p.Pid, "addr", addr, "err", err)
	}
}

// Wait reaps a zombie child. pid is WaitAny or a specific child. With no zombie to reap the
// caller becomes Waiting, unless WNOHANG is set, and 0 is returned.
func (m *Manager) Wait(h Handle, pid int, statusAddr uint32, options int) (int, error) {
	p, err := m.Get(h)
	if err != nil {
		return 0, err
	}
	if pid == 0 || pid < WaitAny {
		return 0, models.EINVAL
	}
	found := false
	for i := range m.slots {
		c := &m.slots[i]
		if c.Status == Free || c == p || c.Ppid != p.Pid || pid != WaitAny && c.Pid != pid {
			continue
		}
		found = true
		if c.Status == Zombie {
			reaped := c.Pid
			m.writeStatus(p, statusAddr, c.ExitStatus)
			m.release(i)
			return reaped, nil
		}
	}
	if !found {
		return 0, models.ECHILD
	}
	if options&WNOHANG != 0 {
		return 0, nil
	}
	p.WaitPid = pid
	p.WaitStatus = statusAddr
	m.setStatus(h.Index, Waiting)
	return 0, nil
}

// Block parks a process inside its current syscall until a later trap retries it.
func (m *Manager) Block(h Handle) error {
	p, err := m.Get(h)
	if err != nil {
		return err
	}
	if p.Status != Active {
		return errors.Errorf("block of %s process %d", p.Status, p.Pid)
	}
	m.setStatus(h.Index, BlockedOnSyscall)
	return nil
}

func (m *Manager) Unblock(h Handle) error {
	p, err := m.Get(h)
	if err != nil {
		return err
	}
	if p.Status == BlockedOnSyscall {
		m.setStatus(h.Index, Active)
	}
	return nil
}
