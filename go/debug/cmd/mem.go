package cmd

import (
	"github.com/pkg/errors"

	"github.com/math-fehr/WindOS-sub000/go/models"
	"github.com/math-fehr/WindOS-sub000/go/models/cpu"
)

// longest dump printed by mem and vmem
const maxDump = 0x1000

func dump(c *Context, addr uint64, mem []byte) {
	for _, line := range models.HexDump(addr, mem) {
		c.Printf("  %s\n", line)
	}
}

var MemCmd = cmd(&Command{
	Name: "mem",
	Desc: "Dump physical memory: mem <addr> <size>.",
	Run: func(c *Context, addr, size string) error {
		n, err := nums(addr, size)
		if err != nil {
			return err
		}
		if n[1] > maxDump {
			n[1] = maxDump
		}
		mem, err := c.K.RAM().MemRead(n[0], n[1])
		if err != nil {
			return err
		}
		dump(c, n[0], mem)
		return nil
	},
})

var VmemCmd = cmd(&Command{
	Name: "vmem",
	Desc: "Dump a process's virtual memory: vmem <pid> <addr> <size>.",
	Run: func(c *Context, pid, addr, size string) error {
		p, err := process(c, pid)
		if err != nil {
			return err
		}
		n, err := nums(addr, size)
		if err != nil {
			return err
		}
		if n[1] > maxDump {
			n[1] = maxDump
		}
		mem := make([]byte, n[1])
		if err := p.Space.Read(n[0], mem); err != nil {
			return err
		}
		dump(c, n[0], mem)
		return nil
	},
})

var MapsCmd = cmd(&Command{
	Name: "maps",
	Desc: "Display a process's memory regions: maps <pid>.",
	Run: func(c *Context, pid string) error {
		p, err := process(c, pid)
		if err != nil {
			return err
		}
		for _, r := range p.Space.Regions() {
			c.Printf("  %v\n", r)
		}
		c.Printf("  brk 0x%08x, %d frames owned\n", p.Brk, p.Space.Owned())
		return nil
	},
})

var TranslateCmd = cmd(&Command{
	Name: "translate",
	Desc: "Walk a process's tables: translate <pid> <addr>.",
	Run: func(c *Context, pid, addr string) error {
		p, err := process(c, pid)
		if err != nil {
			return err
		}
		virt, err := num(addr)
		if err != nil {
			return err
		}
		l1, l2, _ := p.Space.Walk(virt)
		phys, err := p.Space.Translate(virt)
		if err != nil {
			c.Printf("0x%08x: l1=%#08x l2=%#08x unmapped\n", virt, l1, l2)
			return nil
		}
		c.Printf("0x%08x -> 0x%08x (l1=%#08x l2=%#08x)\n", virt, phys, l1, l2)
		if r := p.Space.Regions().Find(virt); r != nil {
			c.Printf("  in %s\n", r)
		}
		return nil
	},
})

var FramesCmd = cmd(&Command{
	Name: "frames",
	Desc: "Show the frame allocator's free list.",
	Run: func(c *Context) error {
		a := c.K.Frames()
		total, used := a.Status()
		c.Printf("%d/%d frames used (%d KiB free)\n", used, total, a.FreeFrames()*cpu.PAGE_SIZE/1024)
		for _, r := range a.Regions() {
			c.Printf("  %v\n", r)
		}
		if err := a.Check(); err != nil {
			return errors.Wrap(err, "free list")
		}
		return nil
	},
})
