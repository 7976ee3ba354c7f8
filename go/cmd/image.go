package cmd

import (
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/math-fehr/WindOS-sub000/go/models"
	"github.com/math-fehr/WindOS-sub000/go/vfs"
)

// Install writes data to path under root, creating missing directories on the way. An
// existing file is truncated first.
func Install(root vfs.Inode, path string, data []byte, perm uint32) error {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	dir := root
	for _, name := range parts[:len(parts)-1] {
		next, err := vfs.Lookup(dir, name)
		if errors.Cause(err) == models.ENOENT {
			next, err = vfs.Mkdir(dir, name, 0755)
		}
		if err != nil {
			return errors.Wrapf(err, "mkdir %s", name)
		}
		dir = next
	}
	name := parts[len(parts)-1]
	ino, err := vfs.Lookup(dir, name)
	switch {
	case err == nil:
		if err := vfs.Truncate(ino, 0); err != nil {
			return errors.Wrapf(err, "truncate %s", path)
		}
	case errors.Cause(err) == models.ENOENT:
		if ino, err = vfs.Create(dir, name, perm); err != nil {
			return errors.Wrapf(err, "create %s", path)
		}
	default:
		return err
	}
	for off := 0; off < len(data); {
		n, err := vfs.Write(ino, data[off:], int64(off))
		if err != nil {
			return errors.Wrapf(err, "write %s", path)
		}
		off += n
	}
	return nil
}

// InstallHost copies a host file given as "dst=src" (or just "src", installed under /bin).
func InstallHost(root vfs.Inode, pair string) error {
	dst, src, ok := strings.Cut(pair, "=")
	if !ok {
		src = pair
		dst = "/bin/" + src[strings.LastIndexByte(src, '/')+1:]
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return errors.WithStack(err)
	}
	return Install(root, dst, data, 0755)
}
