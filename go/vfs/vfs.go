// Package vfs defines the inode contract shared by every filesystem the kernel mounts.
//
// An Inode only has to report its metadata. Everything else is an optional capability: a
// filesystem implements the interfaces its nodes support and callers go through the helper
// functions, which report ENOTSUP for anything missing.
package vfs

import (
	"github.com/pkg/errors"

	"github.com/math-fehr/WindOS-sub000/go/models"
)

// ErrWouldBlock is returned by character sources with nothing to read yet.
var ErrWouldBlock = errors.New("operation would block")

// file type bits of Stat.Mode
const (
	S_IFMT   = 0o170000
	S_IFDIR  = 0o040000
	S_IFCHR  = 0o020000
	S_IFBLK  = 0o060000
	S_IFREG  = 0o100000
	S_IFIFO  = 0o010000
	S_IFLNK  = 0o120000
	S_IFSOCK = 0o140000
)

// directory entry types
const (
	DT_UNKNOWN = 0
	DT_CHR     = 2
	DT_DIR     = 4
	DT_BLK     = 6
	DT_REG     = 8
)

func Mkdev(major, minor uint32) uint32 {
	return major<<8 | minor
}

type Stat struct {
	Ino     uint64
	Mode    uint32
	Nlink   uint32
	Rdev    uint32
	Size    int64
	Blksize int64
	Blocks  int64
	Mtime   int64
}

func (s *Stat) IsDir() bool  { return s.Mode&S_IFMT == S_IFDIR }
func (s *Stat) IsChar() bool { return s.Mode&S_IFMT == S_IFCHR }

// DirType maps a mode to its directory entry type.
func DirType(mode uint32) uint8 {
	switch mode & S_IFMT {
	case S_IFDIR:
		return DT_DIR
	case S_IFCHR:
		return DT_CHR
	case S_IFBLK:
		return DT_BLK
	case S_IFREG:
		return DT_REG
	}
	return DT_UNKNOWN
}

type DirEntry struct {
	Name string
	Ino  uint64
	Type uint8
}

type Inode interface {
	Stat() (*Stat, error)
}

type Reader interface {
	Read(p []byte, pos int64) (int, error)
}

type Writer interface {
	Write(p []byte, pos int64) (int, error)
}

// Dir is a directory. ReadDir returns every entry, "." and ".." included.
type Dir interface {
	Lookup(name string) (Inode, error)
	ReadDir() ([]DirEntry, error)
}

type Maker interface {
	Create(name string, perm uint32) (Inode, error)
	Mkdir(name string, perm uint32) (Inode, error)
	Mknod(name string, mode, dev uint32) (Inode, error)
}

type Remover interface {
	Unlink(name string, dir bool) error
}

type Ioctler interface {
	Ioctl(req, arg uint32) (uint32, error)
}

type Resizer interface {
	Truncate(size int64) error
}

// Closer is notified when the last reference to a loaded inode goes away.
type Closer interface {
	Close() error
}

var errNotSup = models.ENOTSUP

func Read(ino Inode, p []byte, pos int64) (int, error) {
	if r, ok := ino.(Reader); ok {
		return r.Read(p, pos)
	}
	if st, err := ino.Stat(); err == nil && st.IsDir() {
		return 0, models.EISDIR
	}
	return 0, errNotSup
}

func Write(ino Inode, p []byte, pos int64) (int, error) {
	if w, ok := ino.(Writer); ok {
		return w.Write(p, pos)
	}
	if st, err := ino.Stat(); err == nil && st.IsDir() {
		return 0, models.EISDIR
	}
	return 0, errNotSup
}

func Lookup(ino Inode, name string) (Inode, error) {
	if d, ok := ino.(Dir); ok {
		return d.Lookup(name)
	}
	return nil, models.ENOTDIR
}

func ReadDir(ino Inode) ([]DirEntry, error) {
	if d, ok := ino.(Dir); ok {
		return d.ReadDir()
	}
	return nil, models.ENOTDIR
}

func Create(dir Inode, name string, perm uint32) (Inode, error) {
	if m, ok := dir.(Maker); ok {
		return m.Create(name, perm)
	}
	return nil, errNotSup
}

func Mkdir(dir Inode, name string, perm uint32) (Inode, error) {
	if m, ok := dir.(Maker); ok {
		return m.Mkdir(name, perm)
	}
	return nil, errNotSup
}

func Mknod(dir Inode, name string, mode, dev uint32) (Inode, error) {
	if m, ok := dir.(Maker); ok {
		return m.Mknod(name, mode, dev)
	}
	return nil, errNotSup
}

func Unlink(dir Inode, name string, isDir bool) error {
	if r, ok := dir.(Remover); ok {
		return r.Unlink(name, isDir)
	}
	return errNotSup
}

func Ioctl(ino Inode, req, arg uint32) (uint32, error) {
	if i, ok := ino.(Ioctler); ok {
		return i.Ioctl(req, arg)
	}
	return 0, models.ENOTTY
}

func Truncate(ino Inode, size int64) error {
	if r, ok := ino.(Resizer); ok {
		return r.Truncate(size)
	}
	return errNotSup
}
