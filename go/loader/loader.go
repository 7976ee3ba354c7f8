// Package loader validates and unpacks the executables the kernel can run.
package loader

import (
	"github.com/pkg/errors"
)

var (
	ErrUnknownMagic = errors.New("could not identify file magic")
	ErrInvalid      = errors.New("invalid executable")
)

// Segment is one loadable range. Data is zero padded to MemSize.
type Segment struct {
	Addr    uint64
	Data    []byte
	MemSize uint64
	Prot    int
}

func (s *Segment) End() uint64 {
	return s.Addr + s.MemSize
}

type Image struct {
	Entry    uint64
	Segments []Segment
}
