package cmd

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/math-fehr/WindOS-sub000/go/kernel"
	"github.com/math-fehr/WindOS-sub000/go/kernel/proc"
	"github.com/math-fehr/WindOS-sub000/go/models"
	"github.com/math-fehr/WindOS-sub000/go/models/cpu"
)

func process(c *Context, pid string) (*proc.Process, error) {
	n, err := num(pid)
	if err != nil {
		return nil, err
	}
	_, p, ok := c.K.Table().ByPid(int(n))
	if !ok {
		return nil, errors.Errorf("no process %d", n)
	}
	if p.Space == nil {
		return nil, errors.Errorf("process %d has no address space", n)
	}
	return p, nil
}

var PsCmd = cmd(&Command{
	Name: "ps",
	Desc: "List processes.",
	Run: func(c *Context) {
		cur := c.K.Current()
		c.Printf("  %5s %5s %-8s %-10s %s\n", "PID", "PPID", "STATUS", "NAME", "PC")
		c.K.Table().Each(func(h proc.Handle, p *proc.Process) {
			mark := " "
			if h == cur {
				mark = "*"
			}
			c.Printf("%s %5d %5d %-8s %-10s 0x%08x\n", mark, p.Pid, p.Ppid, p.Status, p.Name, p.Frame.Reg(cpu.PC))
		})
		c.Printf("%s\n", c.K)
	},
})

var FrameCmd = cmd(&Command{
	Name: "frame",
	Desc: "Show a process's saved registers and signal frames: frame <pid>.",
	Run: func(c *Context, pid string) error {
		n, err := num(pid)
		if err != nil {
			return err
		}
		_, p, ok := c.K.Table().ByPid(int(n))
		if !ok {
			return errors.Errorf("no process %d", n)
		}
		c.Printf("%v\n  %v\n", p, &p.Frame)
		for i := len(p.SigFrames) - 1; i >= 0; i-- {
			c.Printf("  interrupted: %v\n", &p.SigFrames[i])
		}
		if p.Status == proc.Zombie {
			c.Printf("  exit: %s\n", models.StatusString(p.ExitStatus))
		}
		return nil
	},
})

var TickCmd = cmd(&Command{
	Name: "tick",
	Desc: "Raise timer interrupts: tick [count].",
	Run: func(c *Context, args ...string) error {
		count := uint64(1)
		if len(args) > 0 {
			var err error
			if count, err = num(args[0]); err != nil {
				return err
			}
		}
		for i := uint64(0); i < count; i++ {
			if err := c.K.Timer(); err != nil {
				return err
			}
		}
		if c.K.Core().Idle() {
			c.Printf("idle at tick %d\n", c.K.Ticks())
		} else if p, err := c.K.Table().Get(c.K.Current()); err == nil {
			c.Printf("tick %d: running %v\n", c.K.Ticks(), p)
		}
		return nil
	},
})

var SysCmd = cmd(&Command{
	Name: "sys",
	Desc: "Issue a syscall from the running process: sys <name|num> [args...].",
	Run: func(c *Context, name string, args ...string) error {
		nr, ok := kernel.SyscallNum(name)
		if !ok {
			n, err := num(name)
			if err != nil {
				return errors.Errorf("unknown syscall %q", name)
			}
			nr = int(n)
			name = kernel.SyscallName(nr)
		}
		if len(args) > 6 {
			return errors.New("at most 6 arguments")
		}
		vals, err := nums(args...)
		if err != nil {
			return err
		}
		core := c.K.Core()
		for i, v := range vals {
			core.RegWrite(cpu.R0+i, v)
		}
		core.RegWrite(cpu.R7, uint64(nr))
		if err := c.K.Swi(); err != nil {
			return err
		}
		r0, _ := core.RegRead(cpu.R0)
		if e, failed := models.RetErrno(r0); failed {
			c.Printf("%s = -1 %s\n", name, e)
		} else {
			c.Printf("%s = %d\n", name, int32(r0))
		}
		return nil
	},
})

var FeedCmd = cmd(&Command{
	Name: "feed",
	Desc: "Queue console input: feed <text> (\\n for newline).",
	Run: func(c *Context, text ...string) {
		s := strings.ReplaceAll(strings.Join(text, " "), `\n`, "\n")
		c.K.TTY().Feed([]byte(s))
		c.Printf("%d bytes pending\n", c.K.TTY().Pending())
	},
})

var PanicCmd = cmd(&Command{
	Name: "panic",
	Desc: "Show why the kernel halted.",
	Run: func(c *Context) {
		p := c.K.Halted()
		if p == nil {
			c.Printf("running\n")
			return
		}
		c.Printf("%v\n  pid %d at tick %d\n  %v\n", p, p.Pid, p.Ticks, &p.Frame)
	},
})
