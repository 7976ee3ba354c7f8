package blockfs

import (
	"sort"

	"github.com/lunixbochs/fvbommel-util/sortorder"

	"github.com/math-fehr/WindOS-sub000/go/models"
	"github.com/math-fehr/WindOS-sub000/go/vfs"
)

// Dir is a directory: a file of fixed size records.
type Dir struct{ node }

type slot struct {
	index int
	ent   dirent
}

func (d *Dir) slots() ([]slot, error) {
	di, err := d.fs.readInode(d.ino)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, di.Size)
	if _, err := d.read(buf, 0); err != nil {
		return nil, err
	}
	out := make([]slot, 0, len(buf)/direntSize)
	for i := 0; i+direntSize <= len(buf); i += direntSize {
		var ent dirent
		if err := unpack(buf[i:i+direntSize], &ent); err != nil {
			return nil, err
		}
		out = append(out, slot{i / direntSize, ent})
	}
	return out, nil
}

func (d *Dir) find(name string) (*slot, error) {
	slots, err := d.slots()
	if err != nil {
		return nil, err
	}
	for i := range slots {
		if slots[i].ent.Ino != 0 && slots[i].ent.name() == name {
			return &slots[i], nil
		}
	}
	return nil, models.ENOENT
}

func (d *Dir) addEntry(name string, ino uint32, mode uint32) error {
	if len(name) == 0 {
		return models.ENOENT
	}
	if len(name) > MaxName {
		return models.ENAMETOOLONG
	}
	slots, err := d.slots()
	if err != nil {
		return err
	}
	index := len(slots)
	for _, s := range slots {
		if s.ent.Ino == 0 {
			index = s.index
			break
		}
	}
	ent := dirent{Ino: ino, Type: vfs.DirType(mode), NameLen: uint8(len(name))}
	copy(ent.Name[:], name)
	_, err = d.write(pack(&ent), int64(index*direntSize))
	return err
}

func (d *Dir) Lookup(name string) (vfs.Inode, error) {
	s, err := d.find(name)
	if err != nil {
		return nil, err
	}
	di, err := d.fs.readInode(s.ent.Ino)
	if err != nil {
		return nil, err
	}
	return d.fs.wrap(s.ent.Ino, di.Mode), nil
}

// ReadDir lists live entries, "." and ".." first, the rest in natural name order.
func (d *Dir) ReadDir() ([]vfs.DirEntry, error) {
	slots, err := d.slots()
	if err != nil {
		return nil, err
	}
	var dots, rest []vfs.DirEntry
	for _, s := range slots {
		if s.ent.Ino == 0 {
			continue
		}
		e := vfs.DirEntry{Name: s.ent.name(), Ino: uint64(s.ent.Ino), Type: s.ent.Type}
		if e.Name == "." || e.Name == ".." {
			dots = append(dots, e)
		} else {
			rest = append(rest, e)
		}
	}
	sort.Slice(rest, func(i, j int) bool { return sortorder.NaturalLess(rest[i].Name, rest[j].Name) })
	return append(dots, rest...), nil
}

func (d *Dir) newInode(name string, di *dinode) (uint32, error) {
	if _, err := d.find(name); err == nil {
		return 0, models.EEXIST
	} else if err != models.ENOENT {
		return 0, err
	}
	if len(name) > MaxName {
		return 0, models.ENAMETOOLONG
	}
	ino, err := d.fs.allocInode()
	if err != nil {
		return 0, err
	}
	di.Mtime = d.fs.now()
	if err := d.fs.writeInode(ino, di); err != nil {
		return 0, err
	}
	if err := d.addEntry(name, ino, di.Mode); err != nil {
		d.fs.freeInode(ino)
		return 0, err
	}
	return ino, nil
}

func (d *Dir) Create(name string, perm uint32) (vfs.Inode, error) {
	mode := vfs.S_IFREG | perm&0o7777
	ino, err := d.newInode(name, &dinode{Mode: mode, Nlink: 1})
	if err != nil {
		return nil, err
	}
	return &File{node{d.fs, ino}}, nil
}

func (d *Dir) Mkdir(name string, perm uint32) (vfs.Inode, error) {
	mode := vfs.S_IFDIR | perm&0o7777
	ino, err := d.newInode(name, &dinode{Mode: mode, Nlink: 2})
	if err != nil {
		return nil, err
	}
	child := &Dir{node{d.fs, ino}}
	if err := child.addEntry(".", ino, mode); err != nil {
		return nil, err
	}
	if err := child.addEntry("..", d.ino, vfs.S_IFDIR); err != nil {
		return nil, err
	}
	parent, err := d.fs.readInode(d.ino)
	if err != nil {
		return nil, err
	}
	parent.Nlink++
	return child, d.fs.writeInode(d.ino, parent)
}

func (d *Dir) Mknod(name string, mode, dev uint32) (vfs.Inode, error) {
	switch mode & vfs.S_IFMT {
	case vfs.S_IFREG, 0:
		return d.Create(name, mode)
	case vfs.S_IFCHR, vfs.S_IFBLK, vfs.S_IFIFO:
	default:
		return nil, models.EINVAL
	}
	ino, err := d.newInode(name, &dinode{Mode: mode, Nlink: 1, Rdev: dev})
	if err != nil {
		return nil, err
	}
	return &Node{node{d.fs, ino}}, nil
}

func (d *Dir) Unlink(name string, isDir bool) error {
	if name == "." || name == ".." {
		return models.EINVAL
	}
	s, err := d.find(name)
	if err != nil {
		return err
	}
	di, err := d.fs.readInode(s.ent.Ino)
	if err != nil {
		return err
	}
	targetDir := di.Mode&vfs.S_IFMT == vfs.S_IFDIR
	switch {
	case isDir && !targetDir:
		return models.ENOTDIR
	case !isDir && targetDir:
		return models.EISDIR
	}
	if targetDir {
		child := &Dir{node{d.fs, s.ent.Ino}}
		ents, err := child.ReadDir()
		if err != nil {
			return err
		}
		if len(ents) > 2 {
			return models.ENOTEMPTY
		}
		di.Nlink = 0
		parent, err := d.fs.readInode(d.ino)
		if err != nil {
			return err
		}
		parent.Nlink--
		if err := d.fs.writeInode(d.ino, parent); err != nil {
			return err
		}
	} else {
		di.Nlink--
	}
	if _, err := d.write(make([]byte, direntSize), int64(s.index*direntSize)); err != nil {
		return err
	}
	if di.Nlink > 0 {
		return d.fs.writeInode(s.ent.Ino, di)
	}
	if err := d.fs.release(di, 0); err != nil {
		return err
	}
	di.Size = 0
	di.Mode = 0
	if err := d.fs.writeInode(s.ent.Ino, di); err != nil {
		return err
	}
	return d.fs.freeInode(s.ent.Ino)
}
