// Package devfs provides the character devices: the console and the null and zero sources.
package devfs

import (
	"bytes"
	"io"
	"sort"

	"github.com/lunixbochs/fvbommel-util/sortorder"

	"github.com/math-fehr/WindOS-sub000/go/models"
	"github.com/math-fehr/WindOS-sub000/go/vfs"
)

// device numbers, as on Linux
var (
	NullDev = vfs.Mkdev(1, 3)
	ZeroDev = vfs.Mkdev(1, 5)
	TTYDev  = vfs.Mkdev(5, 0)
)

const (
	TCGETS     = 0x5401
	TIOCGWINSZ = 0x5413
)

type device struct {
	ino uint64
	dev uint32
}

func (d *device) Stat() (*vfs.Stat, error) {
	return &vfs.Stat{Ino: d.ino, Mode: vfs.S_IFCHR | 0666, Nlink: 1, Rdev: d.dev}, nil
}

// TTY is the console. Output goes straight to the host writer, input is queued by Feed.
type TTY struct {
	device
	in  bytes.Buffer
	out io.Writer
}

func (t *TTY) Read(p []byte, pos int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if t.in.Len() == 0 {
		return 0, vfs.ErrWouldBlock
	}
	return t.in.Read(p)
}

func (t *TTY) Write(p []byte, pos int64) (int, error) {
	return t.out.Write(p)
}

func (t *TTY) Ioctl(req, arg uint32) (uint32, error) {
	switch req {
	case TCGETS, TIOCGWINSZ:
		return 0, nil
	}
	return 0, models.EINVAL
}

// Feed queues input for readers.
func (t *TTY) Feed(p []byte) {
	t.in.Write(p)
}

func (t *TTY) Pending() int {
	return t.in.Len()
}

type Null struct{ device }

func (n *Null) Read(p []byte, pos int64) (int, error)  { return 0, nil }
func (n *Null) Write(p []byte, pos int64) (int, error) { return len(p), nil }

type Zero struct{ device }

func (z *Zero) Read(p []byte, pos int64) (int, error) {
	clear(p)
	return len(p), nil
}

func (z *Zero) Write(p []byte, pos int64) (int, error) { return len(p), nil }

// FS is the /dev directory.
type FS struct {
	TTY   *TTY
	Null  *Null
	Zero  *Zero
	nodes map[string]vfs.Inode
}

func New(console io.Writer) *FS {
	fs := &FS{
		TTY:  &TTY{device: device{2, TTYDev}, out: console},
		Null: &Null{device{3, NullDev}},
		Zero: &Zero{device{4, ZeroDev}},
	}
	fs.nodes = map[string]vfs.Inode{
		"tty":  fs.TTY,
		"null": fs.Null,
		"zero": fs.Zero,
	}
	return fs
}

// Devices maps device numbers to drivers, for vfs.Namespace.RegisterDevice.
func (fs *FS) Devices() map[uint32]vfs.Inode {
	return map[uint32]vfs.Inode{TTYDev: fs.TTY, NullDev: fs.Null, ZeroDev: fs.Zero}
}

func (fs *FS) Stat() (*vfs.Stat, error) {
	return &vfs.Stat{Ino: 1, Mode: vfs.S_IFDIR | 0755, Nlink: 2}, nil
}

func (fs *FS) Lookup(name string) (vfs.Inode, error) {
	switch name {
	case ".", "..":
		return fs, nil
	}
	if n, ok := fs.nodes[name]; ok {
		return n, nil
	}
	return nil, models.ENOENT
}

func (fs *FS) ReadDir() ([]vfs.DirEntry, error) {
	ents := []vfs.DirEntry{{Name: ".", Ino: 1, Type: vfs.DT_DIR}, {Name: "..", Ino: 1, Type: vfs.DT_DIR}}
	var names []string
	for name := range fs.nodes {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return sortorder.NaturalLess(names[i], names[j]) })
	for _, name := range names {
		st, _ := fs.nodes[name].Stat()
		ents = append(ents, vfs.DirEntry{Name: name, Ino: st.Ino, Type: vfs.DT_CHR})
	}
	return ents, nil
}
