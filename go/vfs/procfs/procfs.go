// Package procfs exposes the process table as a read-only filesystem.
package procfs

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/lunixbochs/fvbommel-util/sortorder"

	"github.com/math-fehr/WindOS-sub000/go/models"
	"github.com/math-fehr/WindOS-sub000/go/vfs"
)

type ProcInfo struct {
	Pid, Ppid int
	Name      string
	Status    string
	Brk       uint64
	Maps      []string
}

// Source is what procfs reads from, normally the kernel.
type Source interface {
	Procs() []ProcInfo
	MemInfo() (total, used int)
}

type FS struct {
	src Source
}

func New(src Source) *FS {
	return &FS{src: src}
}

func (fs *FS) Stat() (*vfs.Stat, error) {
	return &vfs.Stat{Ino: 1, Mode: vfs.S_IFDIR | 0555, Nlink: 2}, nil
}

func (fs *FS) find(pid int) (*ProcInfo, bool) {
	for _, p := range fs.src.Procs() {
		if p.Pid == pid {
			return &p, true
		}
	}
	return nil, false
}

func (fs *FS) Lookup(name string) (vfs.Inode, error) {
	switch name {
	case ".", "..":
		return fs, nil
	case "meminfo":
		return &file{ino: 2, gen: fs.meminfo}, nil
	}
	pid, err := strconv.Atoi(name)
	if err != nil {
		return nil, models.ENOENT
	}
	if _, ok := fs.find(pid); !ok {
		return nil, models.ENOENT
	}
	return &procDir{fs: fs, pid: pid}, nil
}

func (fs *FS) ReadDir() ([]vfs.DirEntry, error) {
	ents := []vfs.DirEntry{
		{Name: ".", Ino: 1, Type: vfs.DT_DIR},
		{Name: "..", Ino: 1, Type: vfs.DT_DIR},
	}
	var rest []vfs.DirEntry
	for _, p := range fs.src.Procs() {
		rest = append(rest, vfs.DirEntry{Name: strconv.Itoa(p.Pid), Ino: procIno(p.Pid, 0), Type: vfs.DT_DIR})
	}
	rest = append(rest, vfs.DirEntry{Name: "meminfo", Ino: 2, Type: vfs.DT_REG})
	sort.Slice(rest, func(i, j int) bool { return sortorder.NaturalLess(rest[i].Name, rest[j].Name) })
	return append(ents, rest...), nil
}

func (fs *FS) meminfo() (string, error) {
	total, used := fs.src.MemInfo()
	return fmt.Sprintf("FramesTotal: %d\nFramesUsed: %d\nFramesFree: %d\n", total, used, total-used), nil
}

func procIno(pid, n int) uint64 {
	return uint64(pid+1)<<4 | uint64(n)
}

type procDir struct {
	fs  *FS
	pid int
}

func (d *procDir) Stat() (*vfs.Stat, error) {
	return &vfs.Stat{Ino: procIno(d.pid, 0), Mode: vfs.S_IFDIR | 0555, Nlink: 2}, nil
}

var procFiles = []string{"maps", "status"}

func (d *procDir) Lookup(name string) (vfs.Inode, error) {
	switch name {
	case ".":
		return d, nil
	case "..":
		return d.fs, nil
	case "status":
		return &file{ino: procIno(d.pid, 1), gen: d.status}, nil
	case "maps":
		return &file{ino: procIno(d.pid, 2), gen: d.maps}, nil
	}
	return nil, models.ENOENT
}

func (d *procDir) ReadDir() ([]vfs.DirEntry, error) {
	ents := []vfs.DirEntry{
		{Name: ".", Ino: procIno(d.pid, 0), Type: vfs.DT_DIR},
		{Name: "..", Ino: 1, Type: vfs.DT_DIR},
	}
	for i, name := range procFiles {
		ents = append(ents, vfs.DirEntry{Name: name, Ino: procIno(d.pid, i+1), Type: vfs.DT_REG})
	}
	return ents, nil
}

func (d *procDir) info() (*ProcInfo, error) {
	p, ok := d.fs.find(d.pid)
	if !ok {
		return nil, models.ESRCH
	}
	return p, nil
}

func (d *procDir) status() (string, error) {
	p, err := d.info()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Name:\t%s\nState:\t%s\nPid:\t%d\nPPid:\t%d\nBrk:\t%#x\n", p.Name, p.Status, p.Pid, p.Ppid, p.Brk), nil
}

func (d *procDir) maps() (string, error) {
	p, err := d.info()
	if err != nil {
		return "", err
	}
	if len(p.Maps) == 0 {
		return "", nil
	}
	return strings.Join(p.Maps, "\n") + "\n", nil
}

// file is generated when read, so every read sees the current process table.
type file struct {
	ino uint64
	gen func() (string, error)
}

func (f *file) Stat() (*vfs.Stat, error) {
	s, err := f.gen()
	if err != nil {
		return nil, err
	}
	return &vfs.Stat{Ino: f.ino, Mode: vfs.S_IFREG | 0444, Nlink: 1, Size: int64(len(s))}, nil
}

func (f *file) Read(p []byte, pos int64) (int, error) {
	s, err := f.gen()
	if err != nil {
		return 0, err
	}
	if pos >= int64(len(s)) {
		return 0, nil
	}
	return copy(p, s[pos:]), nil
}
