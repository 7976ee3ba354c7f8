package blockfs

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"

	"github.com/math-fehr/WindOS-sub000/go/models"
	"github.com/math-fehr/WindOS-sub000/go/models/mock"
	"github.com/math-fehr/WindOS-sub000/go/storage"
	"github.com/math-fehr/WindOS-sub000/go/vfs"
)

func newFS(t *testing.T) (*FS, *storage.MemDevice) {
	t.Helper()
	dev := storage.NewMemDevice(512 * BlockSize)
	fs, err := Format(dev, 64)
	if err != nil {
		t.Fatal(err)
	}
	fs.Clock = mock.NewClock(1000)
	return fs, dev
}

func names(t *testing.T, ino vfs.Inode) []string {
	t.Helper()
	ents, err := vfs.ReadDir(ino)
	if err != nil {
		t.Fatal(err)
	}
	var out []string
	for _, e := range ents {
		out = append(out, e.Name)
	}
	return out
}

func TestFormatAndReopen(t *testing.T) {
	fs, dev := newFS(t)
	f, err := fs.Root().Create("hello", 0644)
	if err != nil {
		t.Fatal(err)
	}
	vfs.Write(f, []byte("persisted"), 0)

	fs2, err := Open(dev)
	if err != nil {
		t.Fatal(err)
	}
	g, err := fs2.Root().Lookup("hello")
	if err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 32)
	n, _ := vfs.Read(g, buf, 0)
	if string(buf[:n]) != "persisted" {
		t.Fatalf("read %q after reopen", buf[:n])
	}
	if _, err := Open(storage.NewMemDevice(64 * BlockSize)); errors.Cause(err) != ErrBadMagic {
		t.Fatalf("unformatted device: %v", err)
	}
}

func TestFileReadWrite(t *testing.T) {
	fs, _ := newFS(t)
	f, _ := fs.Root().Create("big", 0644)
	// spans direct and indirect blocks
	data := bytes.Repeat([]byte("0123456789abcdef"), 1024)
	if n, err := vfs.Write(f, data, 0); err != nil || n != len(data) {
		t.Fatalf("write = %d, %v", n, err)
	}
	st, _ := f.Stat()
	if st.Size != int64(len(data)) || st.Mtime != 1000 {
		t.Fatalf("stat %+v", st)
	}
	got := make([]byte, len(data)+10)
	n, err := vfs.Read(f, got, 0)
	if err != nil || n != len(data) || !bytes.Equal(got[:n], data) {
		t.Fatalf("read = %d, %v", n, err)
	}
	// read at EOF
	if n, _ := vfs.Read(f, got, int64(len(data))); n != 0 {
		t.Fatalf("read at EOF = %d", n)
	}
	// write with a hole
	vfs.Write(f, []byte("x"), int64(len(data)+3000))
	hole := make([]byte, 3000)
	vfs.Read(f, hole, int64(len(data)))
	if !bytes.Equal(hole, make([]byte, 3000)) {
		t.Fatal("hole does not read as zeroes")
	}
}

func TestTruncateReleasesBlocks(t *testing.T) {
	fs, _ := newFS(t)
	free, _, _, _ := fs.Usage()
	f, _ := fs.Root().Create("f", 0644)
	vfs.Write(f, make([]byte, 20*BlockSize), 0)
	if err := vfs.Truncate(f, 10); err != nil {
		t.Fatal(err)
	}
	after, _, _, _ := fs.Usage()
	// only the first data block survives, the indirect table goes with the rest
	if free-after != 1 {
		t.Fatalf("%d blocks in use after truncate", free-after)
	}
	vfs.Truncate(f, 100)
	buf := make([]byte, 100)
	vfs.Read(f, buf, 0)
	if !bytes.Equal(buf[10:], make([]byte, 90)) {
		t.Fatal("extended file does not read zeroes")
	}
	if _, err := vfs.Write(f, []byte{1}, MaxFileSize); errors.Cause(err) != models.EFBIG {
		t.Fatalf("write past max size: %v", err)
	}
}

func TestDirectories(t *testing.T) {
	fs, _ := newFS(t)
	root := fs.Root()
	sub, err := root.Mkdir("sub", 0755)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := root.Mkdir("sub", 0755); err != models.EEXIST {
		t.Fatalf("duplicate mkdir: %v", err)
	}
	for _, name := range []string{"file10", "file2", "file1"} {
		if _, err := vfs.Create(sub, name, 0644); err != nil {
			t.Fatal(err)
		}
	}
	got := names(t, sub)
	want := []string{".", "..", "file1", "file2", "file10"}
	if len(got) != len(want) {
		t.Fatalf("entries %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entries %v, expecting %v", got, want)
		}
	}
	dotdot, _ := vfs.Lookup(sub, "..")
	st, _ := dotdot.Stat()
	if st.Ino != RootIno || st.Nlink != 3 {
		t.Fatalf("parent stat %+v", st)
	}

	if err := root.Unlink("sub", true); err != models.ENOTEMPTY {
		t.Fatalf("rmdir of non-empty dir: %v", err)
	}
	if err := vfs.Unlink(sub, "file1", true); err != models.ENOTDIR {
		t.Fatalf("rmdir of file: %v", err)
	}
	if err := root.Unlink("sub", false); err != models.EISDIR {
		t.Fatalf("unlink of dir: %v", err)
	}
	for _, name := range []string{"file10", "file2", "file1"} {
		if err := vfs.Unlink(sub, name, false); err != nil {
			t.Fatal(err)
		}
	}
	_, _, freeInodes, _ := fs.Usage()
	if err := root.Unlink("sub", true); err != nil {
		t.Fatal(err)
	}
	if _, _, after, _ := fs.Usage(); after != freeInodes+1 {
		t.Fatalf("inode not released: %d -> %d", freeInodes, after)
	}
	if _, err := root.Lookup("sub"); err != models.ENOENT {
		t.Fatalf("lookup after rmdir: %v", err)
	}
	// the freed slot is reused
	root.Create("again", 0644)
	if got := names(t, root); len(got) != 3 || got[2] != "again" {
		t.Fatalf("root entries %v", got)
	}
}

func TestDeviceNodes(t *testing.T) {
	fs, _ := newFS(t)
	n, err := fs.Root().Mknod("tty", vfs.S_IFCHR|0666, vfs.Mkdev(5, 0))
	if err != nil {
		t.Fatal(err)
	}
	st, _ := n.Stat()
	if !st.IsChar() || st.Rdev != vfs.Mkdev(5, 0) {
		t.Fatalf("device stat %+v", st)
	}
	if _, err := vfs.Read(n, make([]byte, 1), 0); err != models.ENOTSUP {
		t.Fatalf("read of bare device node: %v", err)
	}
	if _, err := fs.Root().Mknod("bad", vfs.S_IFDIR, 0); err != models.EINVAL {
		t.Fatalf("mknod of a directory: %v", err)
	}
}
