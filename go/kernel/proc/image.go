package proc

import (
	"path"

	"github.com/pkg/errors"

	"github.com/math-fehr/WindOS-sub000/go/loader"
	"github.com/math-fehr/WindOS-sub000/go/mmu"
	"github.com/math-fehr/WindOS-sub000/go/models"
	"github.com/math-fehr/WindOS-sub000/go/models/cpu"
)

const (
	// the code section starts at virtual 0 and the program break right above it
	CodeBase = 0
	BrkBase  = CodeBase + cpu.SECTION_SIZE

	maxArgBytes = 0x10000
)

// image is a freshly built address space ready to be given to a process.
type image struct {
	space *mmu.Space
	frame cpu.Frame
	name  string
}

// build validates an executable, lays it out in a new address space and prepares the
// initial frame with argc, argv and envp on the stack.
func (m *Manager) build(exe []byte, argv, envp []string) (*image, error) {
	img, err := loader.Load(exe, cpu.SECTION_SIZE)
	if err != nil {
		return nil, errors.Wrap(models.ENOEXEC, err.Error())
	}
	size := 0
	for _, s := range append(append([]string(nil), argv...), envp...) {
		size += len(s) + 1 + 4
	}
	if size > maxArgBytes {
		return nil, models.E2BIG
	}
	space, err := m.mmu.Create()
	if err != nil {
		return nil, errors.Wrap(models.ENOMEM, err.Error())
	}
	top := m.StackTop()
	if _, err := space.Alloc(CodeBase, cpu.SECTION_SIZE, cpu.PROT_ALL, "code"); err != nil {
		space.Destroy()
		return nil, errors.Wrap(models.ENOMEM, err.Error())
	}
	if _, err := space.Alloc(top-cpu.SECTION_SIZE, cpu.SECTION_SIZE, cpu.PROT_READ|cpu.PROT_WRITE, "stack"); err != nil {
		space.Destroy()
		return nil, errors.Wrap(models.ENOMEM, err.Error())
	}
	for _, seg := range img.Segments {
		if err := space.Write(seg.Addr, seg.Data); err != nil {
			space.Destroy()
			return nil, err
		}
	}
	im := &image{space: space, name: "init"}
	if len(argv) > 0 {
		im.name = path.Base(argv[0])
	}
	f := &im.frame
	f.SetReg(cpu.PC, uint32(img.Entry))
	f.SetReg(cpu.LR, uint32(img.Entry))
	f.SetReg(cpu.CPSR, cpu.MODE_USR)
	sp, argvAddr, envpAddr, err := pushArgs(space, top, argv, envp)
	if err != nil {
		space.Destroy()
		return nil, err
	}
	f.SetReg(cpu.SP, uint32(sp))
	f.SetReg(cpu.R0, uint32(len(argv)))
	f.SetReg(cpu.R1, uint32(argvAddr))
	f.SetReg(cpu.R2, uint32(envpAddr))
	return im, nil
}

// pushArgs copies argument strings to the top of the stack followed by the usual
// argc, argv[], NULL, envp[], NULL block. With no arguments the stack is left untouched.
func pushArgs(space *mmu.Space, top uint64, argv, envp []string) (sp, argvAddr, envpAddr uint64, err error) {
	sp = top
	if len(argv) == 0 && len(envp) == 0 {
		return sp, 0, 0, nil
	}
	pushStrs := func(strs []string) ([]uint32, error) {
		addrs := make([]uint32, len(strs))
		for i := len(strs) - 1; i >= 0; i-- {
			sp -= uint64(len(strs[i]) + 1)
			if err := space.Write(sp, append([]byte(strs[i]), 0)); err != nil {
				return nil, err
			}
			addrs[i] = uint32(sp)
		}
		return addrs, nil
	}
	envs, err := pushStrs(envp)
	if err != nil {
		return 0, 0, 0, err
	}
	args, err := pushStrs(argv)
	if err != nil {
		return 0, 0, 0, err
	}
	words := []uint32{uint32(len(argv))}
	words = append(words, args...)
	words = append(words, 0)
	words = append(words, envs...)
	words = append(words, 0)
	sp = (sp - uint64(len(words)*4)) &^ 7
	buf := make([]byte, len(words)*4)
	order := space.Manager().RAM().ByteOrder()
	for i, w := range words {
		order.PutUint32(buf[i*4:], w)
	}
	if err := space.Write(sp, buf); err != nil {
		return 0, 0, 0, err
	}
	argvAddr = sp + 4
	envpAddr = argvAddr + uint64(len(argv)+1)*4
	return sp, argvAddr, envpAddr, nil
}
