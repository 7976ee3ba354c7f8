package kernel

import (
	"fmt"

	"github.com/pkg/errors"

	co "github.com/math-fehr/WindOS-sub000/go/kernel/common"
	"github.com/math-fehr/WindOS-sub000/go/kernel/proc"
	"github.com/math-fehr/WindOS-sub000/go/models"
	"github.com/math-fehr/WindOS-sub000/go/vfs"
)

// maximum argv/envp entries accepted by execve
const maxArgs = 256

func (k *Kernel) current() (*proc.Process, error) {
	return k.procs.Get(k.cur)
}

func (k *Kernel) SysExit(code int) error {
	k.noReturn = true
	return k.procs.Exit(k.cur, models.ExitCode(code))
}

func (k *Kernel) SysFork() (int, error) {
	h, err := k.procs.Fork(k.cur)
	if err != nil {
		return 0, err
	}
	child, err := k.procs.Get(h)
	if err != nil {
		return 0, err
	}
	return child.Pid, nil
}

// readPtrs reads a NULL terminated array of string pointers.
func (k *Kernel) readPtrs(addr co.Ptr) ([]string, error) {
	if addr == 0 {
		return nil, nil
	}
	var out []string
	buf := co.NewBuf(k, uint64(addr))
	word := make([]byte, 4)
	for i := 0; ; i++ {
		if i >= maxArgs {
			return nil, models.E2BIG
		}
		if err := buf.Offset(uint64(i) * 4).Read(word); err != nil {
			return nil, err
		}
		ptr := k.Order.Uint32(word)
		if ptr == 0 {
			return out, nil
		}
		s, err := k.ReadStr(uint64(ptr))
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
}

func (k *Kernel) SysExecve(path string, argv, envp co.Ptr) error {
	p, err := k.current()
	if err != nil {
		return err
	}
	args, err := k.readPtrs(argv)
	if err != nil {
		return err
	}
	envs, err := k.readPtrs(envp)
	if err != nil {
		return err
	}
	full := vfs.Join(p.Cwd, path)
	exe, err := k.readFile(full)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		args = []string{full}
	}
	if err := k.procs.Exec(k.cur, exe, args, envs); err != nil {
		return err
	}
	k.noReturn = true
	return nil
}

func (k *Kernel) SysWaitpid(pid int, status co.Ptr, options int) (int, error) {
	if status != 0 {
		if err := k.CheckPtr(uint64(status), 4); err != nil {
			return 0, err
		}
	}
	return k.procs.Wait(k.cur, pid, uint32(status), options)
}

func (k *Kernel) SysGetpid() (int, error) {
	p, err := k.current()
	if err != nil {
		return 0, err
	}
	return p.Pid, nil
}

func (k *Kernel) SysGetppid() (int, error) {
	p, err := k.current()
	if err != nil {
		return 0, err
	}
	return p.Ppid, nil
}

func (k *Kernel) SysKill(pid, sig int) error {
	return k.procs.Signal(k.cur, pid, sig)
}

// SysSignal registers a handler. The context word is passed back to the handler in r1.
func (k *Kernel) SysSignal(sig int, handler, ctx co.Ptr) (uint64, error) {
	old, err := k.procs.SetHandler(k.cur, sig, uint32(handler), uint32(ctx))
	return uint64(old), err
}

func (k *Kernel) SysSigreturn() error {
	if err := k.procs.Sigreturn(k.cur); err != nil {
		return err
	}
	k.noReturn = true
	return nil
}

func (k *Kernel) SysSchedYield() int {
	return 0
}

// SysBrk returns the new break, or the old one if it could not move.
func (k *Kernel) SysBrk(addr co.Ptr) (uint64, error) {
	return k.procs.Brk(k.cur, uint64(addr))
}

func (k *Kernel) SysTime(out co.Obuf) (int, error) {
	now := uint32(k.config.Clock.Now().Unix())
	if out.Addr != 0 {
		if err := out.Pack(now); err != nil {
			return 0, errors.Wrap(err, "time")
		}
	}
	return int(int32(now)), nil
}

func (k *Kernel) SysUname(out co.Obuf) error {
	uname := &models.Uname{
		Sysname:  "WindOS",
		Nodename: "windos",
		Release:  "0.1",
		Version:  fmt.Sprintf("#1 %d MiB", k.ram.Size()>>20),
		Machine:  "armv7l",
	}
	uname.Pad(65)
	return out.Pack(uname)
}
