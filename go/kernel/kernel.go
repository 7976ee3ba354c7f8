// Package kernel is the trap-driven core: it owns the simulated machine, the process table and
// the mounted filesystems, and it is entered only through Timer and Swi.
package kernel

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pkg/errors"

	"github.com/math-fehr/WindOS-sub000/go/kernel/common"
	"github.com/math-fehr/WindOS-sub000/go/kernel/proc"
	"github.com/math-fehr/WindOS-sub000/go/mem"
	"github.com/math-fehr/WindOS-sub000/go/mmu"
	"github.com/math-fehr/WindOS-sub000/go/models"
	"github.com/math-fehr/WindOS-sub000/go/models/cpu"
	"github.com/math-fehr/WindOS-sub000/go/vfs"
	"github.com/math-fehr/WindOS-sub000/go/vfs/devfs"
	"github.com/math-fehr/WindOS-sub000/go/vfs/procfs"
)

type Kernel struct {
	common.KernelBase

	config *models.Config
	log    *slog.Logger
	trace  *tracer

	ram    *cpu.PhysMem
	core   *cpu.Core
	frames *mem.Allocator
	mmu    *mmu.Manager
	procs  *proc.Manager

	ns  *vfs.Namespace
	dev *devfs.FS

	// serializes traps together with the core's IRQ mask
	trapMu sync.Mutex
	cur    proc.Handle
	ticks  uint64
	halted *Panic

	// set by handlers whose caller must not see a result in r0
	noReturn bool
}

// New builds the machine: RAM, frame allocator with the kernel image reserved, the shared
// kernel table and an empty process table.
func New(config *models.Config) (*Kernel, error) {
	config.Init()
	if config.MemSize%cpu.SECTION_SIZE != 0 || config.MemSize > cpu.KERNEL_SPLIT {
		return nil, errors.Errorf("memory size %#x must be a multiple of 1M below the split", config.MemSize)
	}
	if config.MemSize < config.KernelReserve+2*cpu.SECTION_SIZE {
		return nil, errors.Errorf("memory size %#x leaves no room for a process", config.MemSize)
	}
	log := config.Log.With("kernel", "windos")
	k := &Kernel{
		config: config,
		log:    log,
		ram:    cpu.NewPhysMem(config.MemSize),
		core:   cpu.NewCore(),
		cur:    proc.NoHandle,
	}
	k.frames = mem.New(k.ram.Frames(), log)
	reserve := int((config.KernelReserve + cpu.PAGE_SIZE - 1) / cpu.PAGE_SIZE)
	if reserve > 0 {
		if err := k.frames.Reserve(mem.Run{Base: 0, Count: reserve}); err != nil {
			return nil, errors.Wrap(err, "reserve kernel image")
		}
	}
	var err error
	if k.mmu, err = mmu.NewManager(k.ram, k.frames, log); err != nil {
		return nil, err
	}
	k.procs = proc.NewManager(k.mmu, config.MaxProcs, config.MaxFiles, log)
	k.dev = devfs.New(config.Output)
	k.trace = newTracer(config)

	k.Order = binary.LittleEndian
	k.Limit = k.ram.Size()
	k.Strsize = config.Strsize
	if config.StrictPointers {
		k.Strict = k.strictCheck
	}
	common.Init(k)
	return k, nil
}

// Boot mounts root with /dev and /proc on it and starts init as pid 0 with the console on
// descriptors 0, 1 and 2.
func (k *Kernel) Boot(root vfs.Inode, init string, argv []string) error {
	k.ns = vfs.NewNamespace(root)
	for _, dir := range []string{"dev", "proc"} {
		if _, err := vfs.Lookup(root, dir); err != nil {
			if _, err := vfs.Mkdir(root, dir, 0755); err != nil {
				return errors.Wrapf(err, "create /%s", dir)
			}
		}
	}
	if err := k.ns.Mount("/dev", k.dev); err != nil {
		return err
	}
	if err := k.ns.Mount("/proc", procfs.New(k)); err != nil {
		return err
	}
	for dev, drv := range k.dev.Devices() {
		k.ns.RegisterDevice(dev, drv)
	}

	exe, err := k.readFile(init)
	if err != nil {
		return errors.Wrapf(err, "read %s", init)
	}
	if len(argv) == 0 {
		argv = []string{init}
	}
	h, err := k.procs.Load(exe, argv, nil)
	if err != nil {
		return errors.Wrapf(err, "load %s", init)
	}
	p, _ := k.procs.Get(h)
	tty := vfs.NewRef(k.dev.TTY, "/dev/tty")
	for fd := 0; fd < 3; fd++ {
		if fd > 0 {
			tty.Get()
		}
		p.Files[fd] = &proc.File{Ref: tty, Flags: O_RDWR}
	}
	k.switchTo(h, p)
	k.log.Info("booted", "init", init, "pid", p.Pid, "ram", k.ram.Size(), "mounts", k.ns.Mounts())
	return nil
}

// readFile loads a whole regular file from the namespace.
func (k *Kernel) readFile(path string) ([]byte, error) {
	ino, err := k.ns.Resolve(path)
	if err != nil {
		return nil, err
	}
	st, err := ino.Stat()
	if err != nil {
		return nil, err
	}
	if st.Mode&vfs.S_IFMT != vfs.S_IFREG {
		return nil, models.EACCES
	}
	buf := make([]byte, st.Size)
	for off := 0; off < len(buf); {
		n, err := vfs.Read(ino, buf[off:], int64(off))
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return buf[:off], nil
		}
		off += n
	}
	return buf, nil
}

func (k *Kernel) strictCheck(addr, size uint64) error {
	p, err := k.procs.Get(k.cur)
	if err != nil || p.Space == nil {
		return models.EFAULT
	}
	for page := addr &^ (cpu.PAGE_SIZE - 1); page < addr+size; page += cpu.PAGE_SIZE {
		if _, err := p.Space.Translate(page); err != nil {
			return errors.Wrap(models.EFAULT, err.Error())
		}
	}
	return nil
}

func (k *Kernel) RAM() *cpu.PhysMem         { return k.ram }
func (k *Kernel) Core() *cpu.Core           { return k.core }
func (k *Kernel) Frames() *mem.Allocator    { return k.frames }
func (k *Kernel) MMU() *mmu.Manager         { return k.mmu }
func (k *Kernel) Table() *proc.Manager      { return k.procs }
func (k *Kernel) Namespace() *vfs.Namespace { return k.ns }
func (k *Kernel) TTY() *devfs.TTY           { return k.dev.TTY }
func (k *Kernel) Config() *models.Config    { return k.config }
func (k *Kernel) Current() proc.Handle      { return k.cur }
func (k *Kernel) Ticks() uint64             { return k.ticks }
func (k *Kernel) Halted() *Panic            { return k.halted }

// Procs lists live processes for procfs and the monitor.
func (k *Kernel) Procs() []procfs.ProcInfo {
	var out []procfs.ProcInfo
	k.procs.Each(func(h proc.Handle, p *proc.Process) {
		info := procfs.ProcInfo{Pid: p.Pid, Ppid: p.Ppid, Name: p.Name, Status: p.Status.String(), Brk: p.Brk}
		if p.Space != nil {
			for _, r := range p.Space.Regions() {
				info.Maps = append(info.Maps, r.String())
			}
		}
		out = append(out, info)
	})
	return out
}

func (k *Kernel) MemInfo() (total, used int) {
	return k.frames.Status()
}

func (k *Kernel) String() string {
	total, used := k.frames.Status()
	a, w, z, f := k.procs.Count()
	return fmt.Sprintf("ticks=%d frames=%d/%d procs active=%d waiting=%d zombie=%d free=%d",
		k.ticks, used, total, a, w, z, f)
}
