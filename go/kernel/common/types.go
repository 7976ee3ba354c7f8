package common

import (
	"bytes"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"

	"github.com/math-fehr/WindOS-sub000/go/models"
)

type (
	// Buf is a user pointer the kernel reads from, Obuf one it writes to.
	Buf struct {
		Addr uint64
		K    *KernelBase
	}
	Obuf struct{ Buf }
	Len  uint32
	Off  int32
	Fd   int32
	Ptr  uint32
)

// AT_FDCWD
const CwdFd Fd = -100

func NewBuf(k Kernel, addr uint64) Buf {
	return Buf{K: k.Base(), Addr: addr}
}

func (b Buf) Read(p []byte) error {
	if err := b.K.CheckPtr(b.Addr, uint64(len(p))); err != nil {
		return err
	}
	if err := b.K.Mem.MemReadInto(p, b.Addr); err != nil {
		return errors.Wrap(models.EFAULT, err.Error())
	}
	return nil
}

func (b Buf) Write(p []byte) error {
	if err := b.K.CheckPtr(b.Addr, uint64(len(p))); err != nil {
		return err
	}
	if err := b.K.Mem.MemWrite(b.Addr, p); err != nil {
		return errors.Wrap(models.EFAULT, err.Error())
	}
	return nil
}

// Pack writes struc-tagged records back to back into user memory.
func (b Buf) Pack(vals ...interface{}) error {
	var buf bytes.Buffer
	s := &models.StrucStream{Stream: &buf, Order: b.K.Order}
	if err := s.Pack(vals...); err != nil {
		return errors.Wrap(err, "struc.Pack() failed")
	}
	return b.Write(buf.Bytes())
}

func (b Buf) Unpack(i interface{}) error {
	n, err := b.Sizeof(i)
	if err != nil {
		return err
	}
	tmp := make([]byte, n)
	if err := b.Read(tmp); err != nil {
		return err
	}
	s := &models.StrucStream{Stream: bytes.NewBuffer(tmp), Order: b.K.Order}
	return errors.Wrap(s.Unpack(i), "struc.Unpack() failed")
}

func (b Buf) Sizeof(i interface{}) (int, error) {
	n, err := struc.Sizeof(i)
	return n, errors.Wrap(err, "struc.Sizeof() failed")
}

func (b Buf) Offset(n uint64) Buf {
	return Buf{Addr: b.Addr + n, K: b.K}
}
