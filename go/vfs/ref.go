package vfs

import "fmt"

// Ref is a loaded inode shared by every descriptor that opened or inherited it.
type Ref struct {
	Inode Inode
	Path  string
	refs  int
}

func NewRef(ino Inode, path string) *Ref {
	return &Ref{Inode: ino, Path: path, refs: 1}
}

// Get takes another reference.
func (r *Ref) Get() *Ref {
	r.refs++
	return r
}

// Put drops a reference, closing the inode with the last one.
func (r *Ref) Put() error {
	if r.refs <= 0 {
		panic(fmt.Sprintf("vfs: put of released ref %q", r.Path))
	}
	r.refs--
	if r.refs == 0 {
		if c, ok := r.Inode.(Closer); ok {
			return c.Close()
		}
	}
	return nil
}

func (r *Ref) Refs() int {
	return r.refs
}
