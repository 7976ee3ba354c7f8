package models

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/math-fehr/WindOS-sub000/go/models/cpu"
)

// Errno is a Linux error number, returned to user space negated in r0.
type Errno int

const (
	EPERM        Errno = 1
	ENOENT       Errno = 2
	ESRCH        Errno = 3
	EINTR        Errno = 4
	EIO          Errno = 5
	E2BIG        Errno = 7
	ENOEXEC      Errno = 8
	EBADF        Errno = 9
	ECHILD       Errno = 10
	EAGAIN       Errno = 11
	ENOMEM       Errno = 12
	EACCES       Errno = 13
	EFAULT       Errno = 14
	EEXIST       Errno = 17
	ENOTDIR      Errno = 20
	EISDIR       Errno = 21
	EINVAL       Errno = 22
	EMFILE       Errno = 24
	ENOTTY       Errno = 25
	EFBIG        Errno = 27
	ENOSPC       Errno = 28
	ESPIPE       Errno = 29
	ERANGE       Errno = 34
	ENAMETOOLONG Errno = 36
	ENOSYS       Errno = 38
	ENOTEMPTY    Errno = 39
	ENOTSUP      Errno = 95
)

var errnoNames = map[Errno]string{
	EPERM:        "EPERM",
	ENOENT:       "ENOENT",
	ESRCH:        "ESRCH",
	EINTR:        "EINTR",
	EIO:          "EIO",
	E2BIG:        "E2BIG",
	ENOEXEC:      "ENOEXEC",
	EBADF:        "EBADF",
	ECHILD:       "ECHILD",
	EAGAIN:       "EAGAIN",
	ENOMEM:       "ENOMEM",
	EACCES:       "EACCES",
	EFAULT:       "EFAULT",
	EEXIST:       "EEXIST",
	ENOTDIR:      "ENOTDIR",
	EISDIR:       "EISDIR",
	EINVAL:       "EINVAL",
	EMFILE:       "EMFILE",
	ENOTTY:       "ENOTTY",
	EFBIG:        "EFBIG",
	ENOSPC:       "ENOSPC",
	ESPIPE:       "ESPIPE",
	ERANGE:       "ERANGE",
	ENAMETOOLONG: "ENAMETOOLONG",
	ENOSYS:       "ENOSYS",
	ENOTEMPTY:    "ENOTEMPTY",
	ENOTSUP:      "ENOTSUP",
}

func (e Errno) Error() string {
	if name, ok := errnoNames[e]; ok {
		return name
	}
	return fmt.Sprintf("errno %d", int(e))
}

// Ret is the syscall return value carrying e.
func (e Errno) Ret() uint64 {
	return uint64(uint32(-int32(e)))
}

// ErrnoOf maps err to the errno user space should see.
func ErrnoOf(err error) Errno {
	switch e := errors.Cause(err).(type) {
	case nil:
		return 0
	case Errno:
		return e
	case *cpu.MemError:
		return EFAULT
	}
	return EIO
}

// RetErrno decodes a syscall return value, reporting whether it is an error.
func RetErrno(ret uint64) (Errno, bool) {
	v := int32(uint32(ret))
	if v < 0 && v > -4096 {
		return Errno(-v), true
	}
	return 0, false
}
