package models

import "fmt"

// wait status words, as stored by waitpid
const (
	statusKilled = 1
)

// ExitCode encodes a normal exit.
func ExitCode(code int) int {
	return (code & 0xff) << 8
}

// KilledBy encodes termination by a signal.
func KilledBy(sig int) int {
	return sig<<8 | statusKilled
}

// Exited reports whether status is a normal exit, and its code.
func Exited(status int) (int, bool) {
	return status >> 8 & 0xff, status&0xff == 0
}

// Signaled reports whether status is a signal termination, and the signal.
func Signaled(status int) (int, bool) {
	return status >> 8 & 0xff, status&0xff == statusKilled
}

func StatusString(status int) string {
	if sig, ok := Signaled(status); ok {
		return fmt.Sprintf("killed by signal %d", sig)
	}
	code, _ := Exited(status)
	return fmt.Sprintf("exit %d", code)
}
