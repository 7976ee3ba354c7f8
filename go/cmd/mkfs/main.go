package mkfs

import (
	"flag"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/math-fehr/WindOS-sub000/go/cmd"
	"github.com/math-fehr/WindOS-sub000/go/storage"
	"github.com/math-fehr/WindOS-sub000/go/vfs"
	"github.com/math-fehr/WindOS-sub000/go/vfs/blockfs"
)

func Main(args []string) {
	fs := flag.NewFlagSet("mkfs", flag.ExitOnError)
	size := fs.Int("size", 16, "image size in MiB")
	inodes := fs.Int("inodes", 256, "number of inodes")
	keep := fs.Bool("keep", false, "add to an existing filesystem instead of formatting")
	var add cmd.StrSlice
	fs.Var(&add, "add", "copy a host file into the image, as dst=src or src (repeatable)")
	var dirs cmd.StrSlice
	fs.Var(&dirs, "mkdir", "create an empty directory (repeatable)")
	fs.Usage = cmd.Usage(fs, args[0]+" [options] <disk.img>")
	cmd.ParseFlags(fs, "mkfs", args)
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}
	if err := mkfs(fs.Arg(0), uint64(*size)<<20, *inodes, *keep, add, dirs); err != nil {
		cmd.PrintError(err)
		os.Exit(1)
	}
}

func mkfs(path string, size uint64, inodes int, keep bool, add, dirs []string) error {
	if keep {
		size = 0
	}
	dev, err := storage.OpenFile(path, size)
	if err != nil {
		return err
	}
	defer dev.Close()
	var fs *blockfs.FS
	if keep {
		fs, err = blockfs.Open(dev)
	} else {
		fs, err = blockfs.Format(dev, inodes)
	}
	if err != nil {
		return errors.Wrap(err, path)
	}
	for _, dir := range dirs {
		if _, err := vfs.Mkdir(fs.Root(), dir, 0755); err != nil {
			return errors.Wrapf(err, "mkdir %s", dir)
		}
	}
	for _, pair := range add {
		if err := cmd.InstallHost(fs.Root(), pair); err != nil {
			return err
		}
	}
	freeBlocks, blocks, freeInodes, total := fs.Usage()
	fmt.Fprintf(os.Stderr, "%s: %d/%d blocks free, %d/%d inodes free\n", path, freeBlocks, blocks, freeInodes, total)
	return nil
}

func init() { cmd.Register("mkfs", "create or extend a disk image", Main) }
