package vfs

import (
	"path"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/math-fehr/WindOS-sub000/go/models"
)

const MaxPath = 4096

type mount struct {
	path string
	root Inode
}

// Namespace resolves absolute paths over a root filesystem and the filesystems mounted on it.
// Character device nodes are replaced by the driver registered for their device number.
type Namespace struct {
	mounts  []mount
	devices map[uint32]Inode
}

func NewNamespace(root Inode) *Namespace {
	return &Namespace{
		mounts:  []mount{{"/", root}},
		devices: make(map[uint32]Inode),
	}
}

// Mount attaches root at the directory p.
func (n *Namespace) Mount(p string, root Inode) error {
	p = path.Clean("/" + p)
	for _, m := range n.mounts {
		if m.path == p {
			return errors.Wrapf(models.EEXIST, "mount %s", p)
		}
	}
	if p != "/" {
		ino, err := n.Resolve(p)
		if err != nil {
			return errors.Wrapf(err, "mount %s", p)
		}
		if st, err := ino.Stat(); err != nil || !st.IsDir() {
			return errors.Wrapf(models.ENOTDIR, "mount %s", p)
		}
	}
	n.mounts = append(n.mounts, mount{p, root})
	return nil
}

// Mounts lists mount points in path order.
func (n *Namespace) Mounts() []string {
	out := make([]string, len(n.mounts))
	for i, m := range n.mounts {
		out[i] = m.path
	}
	sort.Strings(out)
	return out
}

// RegisterDevice makes dev resolve to driver wherever a device node for it is found.
func (n *Namespace) RegisterDevice(dev uint32, driver Inode) {
	n.devices[dev] = driver
}

func (n *Namespace) mounted(p string) Inode {
	for i := len(n.mounts) - 1; i >= 0; i-- {
		if n.mounts[i].path == p {
			return n.mounts[i].root
		}
	}
	return nil
}

func (n *Namespace) device(ino Inode) Inode {
	st, err := ino.Stat()
	if err != nil || !st.IsChar() {
		return ino
	}
	if drv, ok := n.devices[st.Rdev]; ok {
		return drv
	}
	return ino
}

// Join resolves p against cwd and cleans the result.
func Join(cwd, p string) string {
	if !strings.HasPrefix(p, "/") {
		p = cwd + "/" + p
	}
	return path.Clean("/" + p)
}

// Resolve looks up an absolute path.
func (n *Namespace) Resolve(p string) (Inode, error) {
	if len(p) > MaxPath {
		return nil, models.ENAMETOOLONG
	}
	p = path.Clean("/" + p)
	cur := n.mounted("/")
	if p == "/" {
		return cur, nil
	}
	walked := ""
	for _, name := range strings.Split(p[1:], "/") {
		walked += "/" + name
		if root := n.mounted(walked); root != nil {
			cur = root
			continue
		}
		next, err := Lookup(cur, name)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return n.device(cur), nil
}

// ResolveParent returns the directory holding the last element of p, and that element.
func (n *Namespace) ResolveParent(p string) (Inode, string, error) {
	p = path.Clean("/" + p)
	if p == "/" {
		return nil, "", models.EEXIST
	}
	dir, name := path.Split(p)
	parent, err := n.Resolve(dir)
	if err != nil {
		return nil, "", err
	}
	if st, err := parent.Stat(); err != nil || !st.IsDir() {
		return nil, "", models.ENOTDIR
	}
	return parent, name, nil
}
