// Package storage provides the block devices filesystems are built on.
package storage

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
)

// Device is byte-addressed persistent storage.
type Device interface {
	Read(addr uint64, p []byte) error
	Write(addr uint64, p []byte) error
	Size() uint64
}

type RangeError struct {
	Addr uint64
	Len  int
	Size uint64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("access %#x+%#x past end of device (%#x bytes)", e.Addr, e.Len, e.Size)
}

func check(addr uint64, n int, size uint64) error {
	end := addr + uint64(n)
	if end < addr || end > size {
		return &RangeError{addr, n, size}
	}
	return nil
}

type MemDevice struct {
	data []byte
}

func NewMemDevice(size uint64) *MemDevice {
	return &MemDevice{data: make([]byte, size)}
}

func (m *MemDevice) Read(addr uint64, p []byte) error {
	if err := check(addr, len(p), m.Size()); err != nil {
		return err
	}
	copy(p, m.data[addr:])
	return nil
}

func (m *MemDevice) Write(addr uint64, p []byte) error {
	if err := check(addr, len(p), m.Size()); err != nil {
		return err
	}
	copy(m.data[addr:], p)
	return nil
}

func (m *MemDevice) Size() uint64 {
	return uint64(len(m.data))
}

// Bytes exposes the backing store.
func (m *MemDevice) Bytes() []byte {
	return m.data
}

// FileDevice is a disk image on the host.
type FileDevice struct {
	f    *os.File
	size uint64
}

// OpenFile opens an existing image. If size is nonzero the image is created or grown to it.
func OpenFile(path string, size uint64) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.WithStack(err)
	}
	cur := uint64(fi.Size())
	if size > cur {
		if err := f.Truncate(int64(size)); err != nil {
			f.Close()
			return nil, errors.WithStack(err)
		}
		cur = size
	}
	if cur == 0 {
		f.Close()
		return nil, errors.Errorf("%s: empty disk image", path)
	}
	return &FileDevice{f: f, size: cur}, nil
}

func (d *FileDevice) Read(addr uint64, p []byte) error {
	if err := check(addr, len(p), d.size); err != nil {
		return err
	}
	_, err := d.f.ReadAt(p, int64(addr))
	return errors.WithStack(err)
}

func (d *FileDevice) Write(addr uint64, p []byte) error {
	if err := check(addr, len(p), d.size); err != nil {
		return err
	}
	_, err := d.f.WriteAt(p, int64(addr))
	return errors.WithStack(err)
}

func (d *FileDevice) Size() uint64 {
	return d.size
}

func (d *FileDevice) Close() error {
	return d.f.Close()
}
