package blockfs

import (
	"github.com/math-fehr/WindOS-sub000/go/models"
	"github.com/math-fehr/WindOS-sub000/go/vfs"
)

type node struct {
	fs  *FS
	ino uint32
}

func (n *node) Stat() (*vfs.Stat, error) {
	di, err := n.fs.readInode(n.ino)
	if err != nil {
		return nil, err
	}
	blocks := int64(0)
	for i := 0; i*BlockSize < int(di.Size); i++ {
		if b, _ := n.fs.bmap(di, i, false); b != 0 {
			blocks += BlockSize / 512
		}
	}
	return &vfs.Stat{
		Ino:     uint64(n.ino),
		Mode:    di.Mode,
		Nlink:   uint32(di.Nlink),
		Rdev:    di.Rdev,
		Size:    int64(di.Size),
		Blksize: BlockSize,
		Blocks:  blocks,
		Mtime:   int64(di.Mtime),
	}, nil
}

// Ino is the on-disk inode number.
func (n *node) Ino() uint32 { return n.ino }

func (n *node) read(p []byte, pos int64) (int, error) {
	di, err := n.fs.readInode(n.ino)
	if err != nil {
		return 0, err
	}
	if pos < 0 {
		return 0, models.EINVAL
	}
	if pos >= int64(di.Size) {
		return 0, nil
	}
	if rest := int64(di.Size) - pos; int64(len(p)) > rest {
		p = p[:rest]
	}
	total := 0
	for len(p) > 0 {
		idx := int(pos / BlockSize)
		off := int(pos % BlockSize)
		chunk := BlockSize - off
		if chunk > len(p) {
			chunk = len(p)
		}
		b, err := n.fs.bmap(di, idx, false)
		if err != nil {
			return total, err
		}
		if b == 0 {
			clear(p[:chunk])
		} else {
			blk, err := n.fs.readBlock(b)
			if err != nil {
				return total, err
			}
			copy(p[:chunk], blk[off:])
		}
		total += chunk
		p = p[chunk:]
		pos += int64(chunk)
	}
	return total, nil
}

func (n *node) write(p []byte, pos int64) (int, error) {
	di, err := n.fs.readInode(n.ino)
	if err != nil {
		return 0, err
	}
	if pos < 0 {
		return 0, models.EINVAL
	}
	if pos+int64(len(p)) > MaxFileSize {
		return 0, models.EFBIG
	}
	total := 0
	for len(p) > 0 {
		idx := int(pos / BlockSize)
		off := int(pos % BlockSize)
		chunk := BlockSize - off
		if chunk > len(p) {
			chunk = len(p)
		}
		b, err := n.fs.bmap(di, idx, true)
		if err != nil {
			// keep what was written so far
			n.commit(di, pos)
			return total, err
		}
		blk, err := n.fs.readBlock(b)
		if err != nil {
			return total, err
		}
		copy(blk[off:], p[:chunk])
		if err := n.fs.writeBlock(b, blk); err != nil {
			return total, err
		}
		total += chunk
		p = p[chunk:]
		pos += int64(chunk)
	}
	return total, n.commit(di, pos)
}

func (n *node) commit(di *dinode, end int64) error {
	if end > int64(di.Size) {
		di.Size = uint32(end)
	}
	di.Mtime = n.fs.now()
	return n.fs.writeInode(n.ino, di)
}

func (n *node) truncate(size int64) error {
	if size < 0 {
		return models.EINVAL
	}
	if size > MaxFileSize {
		return models.EFBIG
	}
	di, err := n.fs.readInode(n.ino)
	if err != nil {
		return err
	}
	if size < int64(di.Size) {
		keep := int((size + BlockSize - 1) / BlockSize)
		if err := n.fs.release(di, keep); err != nil {
			return err
		}
		// clear the tail of the last kept block so a later extension reads zeroes
		if off := size % BlockSize; off != 0 {
			if b, _ := n.fs.bmap(di, keep-1, false); b != 0 {
				blk, err := n.fs.readBlock(b)
				if err != nil {
					return err
				}
				clear(blk[off:])
				n.fs.writeBlock(b, blk)
			}
		}
	}
	di.Size = uint32(size)
	di.Mtime = n.fs.now()
	return n.fs.writeInode(n.ino, di)
}

// File is a regular file.
type File struct{ node }

func (f *File) Read(p []byte, pos int64) (int, error)  { return f.read(p, pos) }
func (f *File) Write(p []byte, pos int64) (int, error) { return f.write(p, pos) }
func (f *File) Truncate(size int64) error              { return f.truncate(size) }

// Node is a special file such as a device node. It has no data of its own.
type Node struct{ node }

func (fs *FS) wrap(ino uint32, mode uint32) vfs.Inode {
	n := node{fs, ino}
	switch mode & vfs.S_IFMT {
	case vfs.S_IFDIR:
		return &Dir{n}
	case vfs.S_IFREG:
		return &File{n}
	}
	return &Node{n}
}
