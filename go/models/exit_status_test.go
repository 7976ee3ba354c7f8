package models

import (
	"testing"

	"github.com/pkg/errors"

	"github.com/math-fehr/WindOS-sub000/go/models/cpu"
)

func TestExitStatus(t *testing.T) {
	if s := ExitCode(3); s != 0x300 {
		t.Fatalf("ExitCode(3) = %#x", s)
	}
	if s := ExitCode(0x1ff); s != 0xff00 {
		t.Fatalf("exit code not truncated: %#x", s)
	}
	if s := KilledBy(9); s != 9<<8|1 {
		t.Fatalf("KilledBy(9) = %#x", s)
	}
	if code, ok := Exited(ExitCode(42)); !ok || code != 42 {
		t.Fatalf("Exited = %d, %v", code, ok)
	}
	if sig, ok := Signaled(KilledBy(15)); !ok || sig != 15 {
		t.Fatalf("Signaled = %d, %v", sig, ok)
	}
	if _, ok := Signaled(ExitCode(1)); ok {
		t.Fatal("normal exit reported as signaled")
	}
}

func TestErrno(t *testing.T) {
	tests := []struct {
		err  error
		want Errno
	}{
		{nil, 0},
		{ENOENT, ENOENT},
		{errors.Wrap(EBADF, "close"), EBADF},
		{&cpu.MemError{Addr: 4, Size: 4, Enum: cpu.MEM_READ_UNMAPPED}, EFAULT},
		{errors.New("disk on fire"), EIO},
	}
	for _, test := range tests {
		if got := ErrnoOf(test.err); got != test.want {
			t.Errorf("ErrnoOf(%v) = %v, expecting %v", test.err, got, test.want)
		}
	}
	ret := EINVAL.Ret()
	if ret != 0xffffffea {
		t.Fatalf("EINVAL.Ret() = %#x", ret)
	}
	if e, ok := RetErrno(ret); !ok || e != EINVAL {
		t.Fatalf("RetErrno = %v, %v", e, ok)
	}
	if _, ok := RetErrno(1234); ok {
		t.Fatal("positive return decoded as errno")
	}
}
