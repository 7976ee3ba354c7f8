package ls

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
	fs := flag.NewFlagSet("ls", flag.ExitOnError)
	fs.Usage = cmd.Usage(fs, args[0]+" <disk.img> [path]")
	cmd.ParseFlags(fs, "ls", args)
	if fs.NArg() < 1 {
		fs.Usage()
		os.Exit(1)
	}
	path := "/"
	if fs.NArg() > 1 {
		path = fs.Arg(1)
	}
	if err := ls(fs.Arg(0), path); err != nil {
		cmd.PrintError(err)
		os.Exit(1)
	}
}

func ls(image, path string) error {
	dev, err := storage.OpenFile(image, 0)
	if err != nil {
		return err
	}
	defer dev.Close()
	fs, err := blockfs.Open(dev)
	if err != nil {
		return errors.Wrap(err, image)
	}
	dir, err := vfs.NewNamespace(fs.Root()).Resolve(path)
	if err != nil {
		return errors.Wrap(err, path)
	}
	ents, err := vfs.ReadDir(dir)
	if err != nil {
		return errors.Wrap(err, path)
	}
	for _, ent := range ents {
		ino, err := vfs.Lookup(dir, ent.Name)
		if err != nil {
			return err
		}
		st, err := ino.Stat()
		if err != nil {
			return err
		}
		fmt.Printf("%06o %3d %8d %s\n", st.Mode, st.Nlink, st.Size, ent.Name)
	}
	return nil
}

func init() { cmd.Register("ls", "list a directory of a disk image", Main) }
