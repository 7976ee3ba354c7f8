package common

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/math-fehr/WindOS-sub000/go/models"
)

func (s Syscall) memRepr(addr, size uint64) string {
	k := s.Kernel
	if size > uint64(k.Strsize)*4 {
		size = uint64(k.Strsize) * 4
	}
	if k.CheckPtr(addr, size) != nil {
		return fmt.Sprintf("0x%x", addr)
	}
	mem := make([]byte, size)
	if err := k.Mem.MemReadInto(mem, addr); err != nil {
		return fmt.Sprintf("0x%x", addr)
	}
	return models.Repr(mem, k.Strsize)
}

func (s Syscall) traceArg(args ...interface{}) string {
	hex := func(a interface{}) string {
		tmp := fmt.Sprintf("0x%x", a)
		if strings.HasPrefix(tmp, "0x-") {
			tmp = "-0x" + tmp[3:]
		}
		return tmp
	}

	switch arg := args[0].(type) {
	case Obuf:
		return hex(arg.Addr)
	case Buf:
		if len(args) > 1 {
			if length, ok := args[1].(Len); ok {
				return s.memRepr(arg.Addr, uint64(length))
			}
		}
		return hex(arg.Addr)
	case Off:
		return hex(arg)
	case Ptr:
		return hex(arg)
	case Fd:
		if arg == CwdFd {
			return "AT_FDCWD"
		}
		return fmt.Sprintf("%d", int32(arg))
	case string:
		return models.Repr([]byte(arg), s.Kernel.Strsize)
	case uint64:
		return hex(arg)
	default:
		return fmt.Sprintf("%v", arg)
	}
}

func (s Syscall) traceArgs(regs []uint64) string {
	if len(regs) < len(s.In) {
		return "?"
	}
	inRef, err := s.Kernel.Argjoy.Convert(s.In, false, regs[:len(s.In)])
	if err != nil {
		return err.Error()
	}
	in := make([]interface{}, len(inRef))
	for i, val := range inRef {
		in[i] = val.Interface()
	}
	ret := make([]string, len(in))
	for i := range in {
		ret[i] = s.traceArg(in[i:]...)
	}
	return strings.Join(ret, ", ")
}

func (s Syscall) Trace(regs []uint64) string {
	return fmt.Sprintf("%s(%s)", s.Name, s.traceArgs(regs))
}

// TraceRet formats the result word, and the bytes written to an output buffer if any.
func (s Syscall) TraceRet(args []uint64, ret uint64) string {
	if errno, ok := models.RetErrno(ret); ok {
		return fmt.Sprintf(" = -1 %s", errno)
	}
	var out []string
	for i, typ := range s.In {
		if typ == reflect.TypeOf(Obuf{}) && len(args) > i+1 {
			length := uint32(ret)
			if uint64(length) <= args[i+1] {
				out = append(out, s.memRepr(args[i], uint64(length)))
			}
		}
	}
	out = append(out, fmt.Sprintf("%d", int32(ret)))
	return " = " + strings.Join(out, ", ")
}
