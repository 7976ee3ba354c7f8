// Package blockfs is a small block-structured filesystem over a storage.Device.
//
// Layout, in 1 KiB blocks: superblock, block bitmap, inode bitmap, inode table, data. Inodes
// have ten direct block pointers and one single-indirect block. Directories are files of
// fixed size records.
package blockfs

import (
	"bytes"
	"encoding/binary"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"

	"github.com/math-fehr/WindOS-sub000/go/models"
	"github.com/math-fehr/WindOS-sub000/go/storage"
)

const (
	Magic     = 0x53464257
	BlockSize = 1024

	inodeSize    = 64
	inodesPerBlk = BlockSize / inodeSize
	direct       = 10
	ptrsPerBlk   = BlockSize / 4
	maxBlocks    = direct + ptrsPerBlk
	MaxFileSize  = maxBlocks * BlockSize

	direntSize = 64
	MaxName    = 58

	RootIno = 1
)

var ErrBadMagic = errors.New("blockfs: bad superblock magic")

var order = binary.LittleEndian

type superblock struct {
	Magic        uint32
	BlockSize    uint32
	Blocks       uint32
	Inodes       uint32
	BitmapStart  uint32
	BitmapBlocks uint32
	InodeBitmap  uint32
	InodeTable   uint32
	DataStart    uint32
	FreeBlocks   uint32
	FreeInodes   uint32
}

type dinode struct {
	Mode     uint32
	Nlink    uint16
	Pad      uint16
	Size     uint32
	Mtime    uint32
	Rdev     uint32
	Direct   [direct]uint32
	Indirect uint32
}

type dirent struct {
	Ino     uint32
	Type    uint8
	NameLen uint8
	Name    [MaxName]byte
}

func (d *dirent) name() string {
	return string(d.Name[:d.NameLen])
}

func pack(v interface{}) []byte {
	var buf bytes.Buffer
	struc.PackWithOrder(&buf, v, order)
	return buf.Bytes()
}

func unpack(p []byte, v interface{}) error {
	return struc.UnpackWithOrder(bytes.NewReader(p), v, order)
}

// FS is a mounted blockfs volume.
type FS struct {
	dev   storage.Device
	sb    superblock
	Clock models.Clock
}

func (fs *FS) readBlock(n uint32) ([]byte, error) {
	p := make([]byte, BlockSize)
	if err := fs.dev.Read(uint64(n)*BlockSize, p); err != nil {
		return nil, errors.Wrap(models.EIO, err.Error())
	}
	return p, nil
}

func (fs *FS) writeBlock(n uint32, p []byte) error {
	if err := fs.dev.Write(uint64(n)*BlockSize, p); err != nil {
		return errors.Wrap(models.EIO, err.Error())
	}
	return nil
}

func (fs *FS) syncSuper() error {
	p := make([]byte, BlockSize)
	copy(p, pack(&fs.sb))
	return fs.writeBlock(0, p)
}

// Format writes an empty filesystem with room for inodes files onto dev.
func Format(dev storage.Device, inodes int) (*FS, error) {
	blocks := dev.Size() / BlockSize
	if inodes <= 1 || inodes > BlockSize*8 {
		return nil, errors.Errorf("blockfs: bad inode count %d", inodes)
	}
	if blocks > 1<<31 {
		blocks = 1 << 31
	}
	sb := superblock{
		Magic:     Magic,
		BlockSize: BlockSize,
		Blocks:    uint32(blocks),
		Inodes:    uint32(inodes),
	}
	sb.BitmapStart = 1
	sb.BitmapBlocks = (sb.Blocks + BlockSize*8 - 1) / (BlockSize * 8)
	sb.InodeBitmap = sb.BitmapStart + sb.BitmapBlocks
	sb.InodeTable = sb.InodeBitmap + 1
	sb.DataStart = sb.InodeTable + (sb.Inodes+inodesPerBlk-1)/inodesPerBlk
	if sb.DataStart+8 > sb.Blocks {
		return nil, errors.Errorf("blockfs: device of %d bytes is too small", dev.Size())
	}
	sb.FreeBlocks = sb.Blocks - sb.DataStart
	// inode 0 is never used
	sb.FreeInodes = sb.Inodes - 1

	fs := &FS{dev: dev, sb: sb}
	zero := make([]byte, BlockSize)
	for b := uint32(1); b < sb.DataStart; b++ {
		if err := fs.writeBlock(b, zero); err != nil {
			return nil, err
		}
	}
	for b := uint32(0); b < sb.DataStart; b++ {
		if err := fs.setBit(sb.BitmapStart, b, true); err != nil {
			return nil, err
		}
	}
	if err := fs.setBit(sb.InodeBitmap, 0, true); err != nil {
		return nil, err
	}
	ino, err := fs.allocInode()
	if err != nil {
		return nil, err
	}
	if ino != RootIno {
		return nil, errors.Errorf("blockfs: root allocated as inode %d", ino)
	}
	root := &dinode{Mode: 0o040755, Nlink: 2}
	if err := fs.writeInode(RootIno, root); err != nil {
		return nil, err
	}
	d := &Dir{node{fs, RootIno}}
	if err := d.addEntry(".", RootIno, 0o040000); err != nil {
		return nil, err
	}
	if err := d.addEntry("..", RootIno, 0o040000); err != nil {
		return nil, err
	}
	return fs, fs.syncSuper()
}

// Open mounts an existing filesystem.
func Open(dev storage.Device) (*FS, error) {
	fs := &FS{dev: dev}
	p, err := fs.readBlock(0)
	if err != nil {
		return nil, err
	}
	if err := unpack(p, &fs.sb); err != nil {
		return nil, errors.WithStack(err)
	}
	if fs.sb.Magic != Magic || fs.sb.BlockSize != BlockSize {
		return nil, errors.WithStack(ErrBadMagic)
	}
	return fs, nil
}

func (fs *FS) Root() *Dir {
	return &Dir{node{fs, RootIno}}
}

// Usage reports free and total data blocks and inodes.
func (fs *FS) Usage() (freeBlocks, blocks, freeInodes, inodes int) {
	return int(fs.sb.FreeBlocks), int(fs.sb.Blocks - fs.sb.DataStart), int(fs.sb.FreeInodes), int(fs.sb.Inodes)
}

func (fs *FS) now() uint32 {
	if fs.Clock == nil {
		return 0
	}
	return uint32(fs.Clock.Now().Unix())
}

func (fs *FS) getBit(start, n uint32) (bool, error) {
	blk := start + n/(BlockSize*8)
	p, err := fs.readBlock(blk)
	if err != nil {
		return false, err
	}
	bit := n % (BlockSize * 8)
	return p[bit/8]&(1<<(bit%8)) != 0, nil
}

func (fs *FS) setBit(start, n uint32, set bool) error {
	blk := start + n/(BlockSize*8)
	p, err := fs.readBlock(blk)
	if err != nil {
		return err
	}
	bit := n % (BlockSize * 8)
	if set {
		p[bit/8] |= 1 << (bit % 8)
	} else {
		p[bit/8] &^= 1 << (bit % 8)
	}
	return fs.writeBlock(blk, p)
}

func (fs *FS) allocBlock() (uint32, error) {
	for b := fs.sb.DataStart; b < fs.sb.Blocks; b++ {
		used, err := fs.getBit(fs.sb.BitmapStart, b)
		if err != nil {
			return 0, err
		}
		if used {
			continue
		}
		if err := fs.setBit(fs.sb.BitmapStart, b, true); err != nil {
			return 0, err
		}
		if err := fs.writeBlock(b, make([]byte, BlockSize)); err != nil {
			return 0, err
		}
		fs.sb.FreeBlocks--
		return b, fs.syncSuper()
	}
	return 0, models.ENOSPC
}

func (fs *FS) freeBlock(b uint32) error {
	if b < fs.sb.DataStart || b >= fs.sb.Blocks {
		return errors.Errorf("blockfs: free of metadata block %d", b)
	}
	if err := fs.setBit(fs.sb.BitmapStart, b, false); err != nil {
		return err
	}
	fs.sb.FreeBlocks++
	return fs.syncSuper()
}

func (fs *FS) allocInode() (uint32, error) {
	for i := uint32(1); i < fs.sb.Inodes; i++ {
		used, err := fs.getBit(fs.sb.InodeBitmap, i)
		if err != nil {
			return 0, err
		}
		if used {
			continue
		}
		if err := fs.setBit(fs.sb.InodeBitmap, i, true); err != nil {
			return 0, err
		}
		fs.sb.FreeInodes--
		return i, fs.syncSuper()
	}
	return 0, models.ENOSPC
}

func (fs *FS) freeInode(ino uint32) error {
	if err := fs.setBit(fs.sb.InodeBitmap, ino, false); err != nil {
		return err
	}
	fs.sb.FreeInodes++
	return fs.syncSuper()
}

func (fs *FS) inodeAddr(ino uint32) uint64 {
	return uint64(fs.sb.InodeTable)*BlockSize + uint64(ino)*inodeSize
}

func (fs *FS) readInode(ino uint32) (*dinode, error) {
	if ino == 0 || ino >= fs.sb.Inodes {
		return nil, errors.Errorf("blockfs: bad inode %d", ino)
	}
	p := make([]byte, inodeSize)
	if err := fs.dev.Read(fs.inodeAddr(ino), p); err != nil {
		return nil, errors.Wrap(models.EIO, err.Error())
	}
	var di dinode
	if err := unpack(p, &di); err != nil {
		return nil, errors.WithStack(err)
	}
	return &di, nil
}

func (fs *FS) writeInode(ino uint32, di *dinode) error {
	if err := fs.dev.Write(fs.inodeAddr(ino), pack(di)); err != nil {
		return errors.Wrap(models.EIO, err.Error())
	}
	return nil
}

// bmap returns the device block holding block idx of the inode, 0 for a hole. With alloc set
// holes are filled.
func (fs *FS) bmap(di *dinode, idx int, alloc bool) (uint32, error) {
	if idx >= maxBlocks {
		return 0, models.EFBIG
	}
	if idx < direct {
		if di.Direct[idx] == 0 && alloc {
			b, err := fs.allocBlock()
			if err != nil {
				return 0, err
			}
			di.Direct[idx] = b
		}
		return di.Direct[idx], nil
	}
	if di.Indirect == 0 {
		if !alloc {
			return 0, nil
		}
		b, err := fs.allocBlock()
		if err != nil {
			return 0, err
		}
		di.Indirect = b
	}
	table, err := fs.readBlock(di.Indirect)
	if err != nil {
		return 0, err
	}
	off := (idx - direct) * 4
	b := order.Uint32(table[off:])
	if b == 0 && alloc {
		if b, err = fs.allocBlock(); err != nil {
			return 0, err
		}
		order.PutUint32(table[off:], b)
		if err := fs.writeBlock(di.Indirect, table); err != nil {
			return 0, err
		}
	}
	return b, nil
}

// release frees data blocks from block index keep onwards.
func (fs *FS) release(di *dinode, keep int) error {
	for i := keep; i < direct; i++ {
		if di.Direct[i] != 0 {
			if err := fs.freeBlock(di.Direct[i]); err != nil {
				return err
			}
			di.Direct[i] = 0
		}
	}
	if di.Indirect == 0 {
		return nil
	}
	table, err := fs.readBlock(di.Indirect)
	if err != nil {
		return err
	}
	start := keep - direct
	if start < 0 {
		start = 0
	}
	for i := start; i < ptrsPerBlk; i++ {
		if b := order.Uint32(table[i*4:]); b != 0 {
			if err := fs.freeBlock(b); err != nil {
				return err
			}
			order.PutUint32(table[i*4:], 0)
		}
	}
	if start == 0 {
		if err := fs.freeBlock(di.Indirect); err != nil {
			return err
		}
		di.Indirect = 0
		return nil
	}
	return fs.writeBlock(di.Indirect, table)
}
