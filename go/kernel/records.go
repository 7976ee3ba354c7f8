package kernel

import (
	"github.com/math-fehr/WindOS-sub000/go/vfs"
)

// struct stat of 32-bit ARM Linux
type linuxStat struct {
	Dev       uint32
	Ino       uint32
	Mode      uint16
	Nlink     uint16
	Uid       uint16
	Gid       uint16
	Rdev      uint32
	Size      uint32
	Blksize   uint32
	Blocks    uint32
	Atime     uint32
	AtimeNsec uint32
	Mtime     uint32
	MtimeNsec uint32
	Ctime     uint32
	CtimeNsec uint32
	Unused    [2]uint32
}

func newLinuxStat(st *vfs.Stat) *linuxStat {
	return &linuxStat{
		Ino:     uint32(st.Ino),
		Mode:    uint16(st.Mode),
		Nlink:   uint16(st.Nlink),
		Rdev:    st.Rdev,
		Size:    uint32(st.Size),
		Blksize: uint32(st.Blksize),
		Blocks:  uint32(st.Blocks),
		Atime:   uint32(st.Mtime),
		Mtime:   uint32(st.Mtime),
		Ctime:   uint32(st.Mtime),
	}
}

// struct linux_dirent. Tail holds the name, its NUL, padding, and d_type in the last byte.
type linuxDirent struct {
	Ino    uint32
	Off    uint32
	Reclen uint16
	Tail   string
}

const direntHeader = 10

func newLinuxDirent(ent vfs.DirEntry, off int) *linuxDirent {
	reclen := (direntHeader + len(ent.Name) + 2 + 3) &^ 3
	tail := make([]byte, reclen-direntHeader)
	copy(tail, ent.Name)
	tail[len(tail)-1] = ent.Type
	return &linuxDirent{
		Ino:    uint32(ent.Ino),
		Off:    uint32(off),
		Reclen: uint16(reclen),
		Tail:   string(tail),
	}
}
