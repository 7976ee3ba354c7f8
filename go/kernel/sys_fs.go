package kernel

import (
	"github.com/pkg/errors"

	co "github.com/math-fehr/WindOS-sub000/go/kernel/common"
	"github.com/math-fehr/WindOS-sub000/go/kernel/proc"
	"github.com/math-fehr/WindOS-sub000/go/models"
	"github.com/math-fehr/WindOS-sub000/go/vfs"
)

// open flags, ARM Linux values
const (
	O_RDONLY    = 0
	O_WRONLY    = 1
	O_RDWR      = 2
	O_ACCMODE   = 3
	O_CREAT     = 0o100
	O_EXCL      = 0o200
	O_TRUNC     = 0o1000
	O_APPEND    = 0o2000
	O_DIRECTORY = 0o40000
)

const (
	SEEK_SET = 0
	SEEK_CUR = 1
	SEEK_END = 2
)

const AT_REMOVEDIR = 0x200

// maximum bytes moved by a single read or write
const maxIO = 1 << 20

func (k *Kernel) file(fd co.Fd) (*proc.Process, *proc.File, error) {
	p, err := k.current()
	if err != nil {
		return nil, nil, err
	}
	f, err := p.Fd(int(fd))
	if err != nil {
		return nil, nil, err
	}
	return p, f, nil
}

// path resolves a path argument relative to dirfd, or to the working directory for AT_FDCWD.
func (k *Kernel) path(dirfd co.Fd, path string) (string, error) {
	p, err := k.current()
	if err != nil {
		return "", err
	}
	if path == "" {
		return "", models.ENOENT
	}
	if len(path) > vfs.MaxPath {
		return "", models.ENAMETOOLONG
	}
	base := p.Cwd
	if path[0] != '/' && dirfd != co.CwdFd {
		f, err := p.Fd(int(dirfd))
		if err != nil {
			return "", err
		}
		st, err := f.Ref.Inode.Stat()
		if err != nil {
			return "", err
		}
		if !st.IsDir() {
			return "", models.ENOTDIR
		}
		base = f.Ref.Path
	}
	return vfs.Join(base, path), nil
}

func (k *Kernel) SysRead(fd co.Fd, buf co.Obuf, size co.Len) (int, error) {
	_, f, err := k.file(fd)
	if err != nil {
		return 0, err
	}
	if f.Flags&O_ACCMODE == O_WRONLY {
		return 0, models.EBADF
	}
	if size > maxIO {
		size = maxIO
	}
	// checked up front so that a bad buffer does not consume input
	if err := k.CheckPtr(buf.Addr, uint64(size)); err != nil {
		return 0, err
	}
	tmp := make([]byte, size)
	n, err := vfs.Read(f.Ref.Inode, tmp, f.Pos)
	if err != nil {
		return 0, err
	}
	if err := buf.Write(tmp[:n]); err != nil {
		return 0, err
	}
	f.Pos += int64(n)
	return n, nil
}

func (k *Kernel) SysWrite(fd co.Fd, buf co.Buf, size co.Len) (int, error) {
	_, f, err := k.file(fd)
	if err != nil {
		return 0, err
	}
	if f.Flags&O_ACCMODE == O_RDONLY {
		return 0, models.EBADF
	}
	if size > maxIO {
		size = maxIO
	}
	tmp := make([]byte, size)
	if err := buf.Read(tmp); err != nil {
		return 0, err
	}
	if f.Flags&O_APPEND != 0 {
		if st, err := f.Ref.Inode.Stat(); err == nil {
			f.Pos = st.Size
		}
	}
	n, err := vfs.Write(f.Ref.Inode, tmp, f.Pos)
	if err != nil {
		return 0, err
	}
	f.Pos += int64(n)
	return n, nil
}

func (k *Kernel) SysOpen(path string, flags, mode int) (int, error) {
	return k.SysOpenat(co.CwdFd, path, flags, mode)
}

func (k *Kernel) SysOpenat(dirfd co.Fd, path string, flags, mode int) (int, error) {
	p, err := k.current()
	if err != nil {
		return 0, err
	}
	full, err := k.path(dirfd, path)
	if err != nil {
		return 0, err
	}
	ino, err := k.ns.Resolve(full)
	switch {
	case err == nil && flags&O_CREAT != 0 && flags&O_EXCL != 0:
		return 0, models.EEXIST
	case errors.Cause(err) == models.ENOENT && flags&O_CREAT != 0:
		parent, name, perr := k.ns.ResolveParent(full)
		if perr != nil {
			return 0, perr
		}
		if ino, err = vfs.Create(parent, name, uint32(mode)&0o7777); err != nil {
			return 0, err
		}
	case err != nil:
		return 0, err
	}
	st, err := ino.Stat()
	if err != nil {
		return 0, err
	}
	if st.IsDir() && flags&O_ACCMODE != O_RDONLY {
		return 0, models.EISDIR
	}
	if !st.IsDir() && flags&O_DIRECTORY != 0 {
		return 0, models.ENOTDIR
	}
	if flags&O_TRUNC != 0 && flags&O_ACCMODE != O_RDONLY && st.Mode&vfs.S_IFMT == vfs.S_IFREG {
		if err := vfs.Truncate(ino, 0); err != nil {
			return 0, err
		}
	}
	ref := vfs.NewRef(ino, full)
	fd, err := p.Install(&proc.File{Ref: ref, Flags: flags})
	if err != nil {
		ref.Put()
		return 0, err
	}
	return fd, nil
}

func (k *Kernel) SysClose(fd co.Fd) error {
	p, err := k.current()
	if err != nil {
		return err
	}
	return p.Close(int(fd))
}

func (k *Kernel) SysLseek(fd co.Fd, off co.Off, whence int) (int, error) {
	_, f, err := k.file(fd)
	if err != nil {
		return 0, err
	}
	st, err := f.Ref.Inode.Stat()
	if err != nil {
		return 0, err
	}
	switch {
	case st.IsChar():
		return 0, models.ESPIPE
	case st.IsDir():
		// only rewinding is meaningful for a directory cursor
		if off != 0 || whence != SEEK_SET {
			return 0, models.EINVAL
		}
		f.DirPos = 0
		return 0, nil
	}
	var pos int64
	switch whence {
	case SEEK_SET:
		pos = int64(off)
	case SEEK_CUR:
		pos = f.Pos + int64(off)
	case SEEK_END:
		pos = st.Size + int64(off)
	default:
		return 0, models.EINVAL
	}
	if pos < 0 || pos > 0x7fffffff {
		return 0, models.EINVAL
	}
	f.Pos = pos
	return int(pos), nil
}

func (k *Kernel) SysFstat(fd co.Fd, out co.Obuf) error {
	_, f, err := k.file(fd)
	if err != nil {
		return err
	}
	st, err := f.Ref.Inode.Stat()
	if err != nil {
		return err
	}
	return out.Pack(newLinuxStat(st))
}

// SysGetdents fills out with as many records as fit, continuing from the descriptor's cursor.
func (k *Kernel) SysGetdents(fd co.Fd, out co.Obuf, count co.Len) (int, error) {
	_, f, err := k.file(fd)
	if err != nil {
		return 0, err
	}
	ents, err := vfs.ReadDir(f.Ref.Inode)
	if err != nil {
		return 0, err
	}
	var recs []interface{}
	written := 0
	pos := f.DirPos
	for ; pos < len(ents); pos++ {
		rec := newLinuxDirent(ents[pos], pos+1)
		if written+int(rec.Reclen) > int(count) {
			break
		}
		recs = append(recs, rec)
		written += int(rec.Reclen)
	}
	if len(recs) == 0 {
		if pos < len(ents) {
			return 0, models.EINVAL
		}
		return 0, nil
	}
	if err := out.Pack(recs...); err != nil {
		return 0, err
	}
	f.DirPos = pos
	return written, nil
}

func (k *Kernel) parent(dirfd co.Fd, path string) (vfs.Inode, string, error) {
	full, err := k.path(dirfd, path)
	if err != nil {
		return nil, "", err
	}
	return k.ns.ResolveParent(full)
}

func (k *Kernel) SysMkdirat(dirfd co.Fd, path string, mode int) error {
	dir, name, err := k.parent(dirfd, path)
	if err != nil {
		return err
	}
	_, err = vfs.Mkdir(dir, name, uint32(mode)&0o7777)
	return err
}

func (k *Kernel) SysMknodat(dirfd co.Fd, path string, mode, dev int) error {
	dir, name, err := k.parent(dirfd, path)
	if err != nil {
		return err
	}
	switch uint32(mode) & vfs.S_IFMT {
	case 0, vfs.S_IFREG:
		_, err = vfs.Create(dir, name, uint32(mode)&0o7777)
	case vfs.S_IFCHR, vfs.S_IFBLK:
		_, err = vfs.Mknod(dir, name, uint32(mode), uint32(dev))
	default:
		err = models.EINVAL
	}
	return err
}

func (k *Kernel) SysUnlinkat(dirfd co.Fd, path string, flags int) error {
	dir, name, err := k.parent(dirfd, path)
	if err != nil {
		return err
	}
	return vfs.Unlink(dir, name, flags&AT_REMOVEDIR != 0)
}

// SysDup copies the descriptor entry. Both descriptors keep their own position.
func (k *Kernel) SysDup(fd co.Fd) (int, error) {
	p, f, err := k.file(fd)
	if err != nil {
		return 0, err
	}
	dup := f.Copy()
	nfd, err := p.Install(dup)
	if err != nil {
		dup.Ref.Put()
		return 0, err
	}
	return nfd, nil
}

func (k *Kernel) SysDup2(oldfd, newfd co.Fd) (int, error) {
	p, f, err := k.file(oldfd)
	if err != nil {
		return 0, err
	}
	if oldfd == newfd {
		return int(newfd), nil
	}
	dup := f.Copy()
	if err := p.InstallAt(int(newfd), dup); err != nil {
		dup.Ref.Put()
		return 0, err
	}
	return int(newfd), nil
}

func (k *Kernel) SysIoctl(fd co.Fd, req int, arg co.Ptr) (int, error) {
	_, f, err := k.file(fd)
	if err != nil {
		return 0, err
	}
	ret, err := vfs.Ioctl(f.Ref.Inode, uint32(req), uint32(arg))
	return int(ret), err
}

func (k *Kernel) SysChdir(path string) error {
	p, err := k.current()
	if err != nil {
		return err
	}
	full, err := k.path(co.CwdFd, path)
	if err != nil {
		return err
	}
	ino, err := k.ns.Resolve(full)
	if err != nil {
		return err
	}
	if st, err := ino.Stat(); err != nil || !st.IsDir() {
		return models.ENOTDIR
	}
	p.Cwd = full
	return nil
}

// SysGetcwd returns the length of the path including its NUL.
func (k *Kernel) SysGetcwd(buf co.Obuf, size co.Len) (int, error) {
	p, err := k.current()
	if err != nil {
		return 0, err
	}
	cwd := append([]byte(p.Cwd), 0)
	if len(cwd) > int(size) {
		return 0, models.ERANGE
	}
	if err := buf.Write(cwd); err != nil {
		return 0, err
	}
	return len(cwd), nil
}
