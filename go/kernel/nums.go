package kernel

import (
	"fmt"

	sysnum "github.com/lunixbochs/ghostrace/ghost/sys/num"
)

// ARM EABI syscall numbers the kernel implements
var syscallNames = map[int]string{
	1:   "exit",
	2:   "fork",
	3:   "read",
	4:   "write",
	5:   "open",
	6:   "close",
	7:   "waitpid",
	11:  "execve",
	12:  "chdir",
	13:  "time",
	19:  "lseek",
	20:  "getpid",
	37:  "kill",
	41:  "dup",
	45:  "brk",
	48:  "signal",
	54:  "ioctl",
	63:  "dup2",
	64:  "getppid",
	108: "fstat",
	119: "sigreturn",
	122: "uname",
	141: "getdents",
	158: "sched_yield",
	183: "getcwd",
	322: "openat",
	323: "mkdirat",
	324: "mknodat",
	328: "unlinkat",
}

// SyscallNum finds the number of an implemented syscall.
func SyscallNum(name string) (int, bool) {
	for num, n := range syscallNames {
		if n == name {
			return num, true
		}
	}
	return 0, false
}

// syscallLabel names num for diagnostics, even when it is not implemented.
func syscallLabel(num int) string {
	if name, ok := syscallNames[num]; ok {
		return name
	}
	if name, ok := sysnum.Linux_arm[num]; ok {
		return name
	}
	return fmt.Sprintf("syscall_%d", num)
}

// SyscallName is the diagnostic name of num.
func SyscallName(num int) string { return syscallLabel(num) }
