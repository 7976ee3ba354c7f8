// Package common turns the exported methods of a kernel type into a syscall table.
//
// Method names are converted to snake case (Sched_yield -> sched_yield, Getppid -> getppid) and
// raw register words are coerced into the typed parameters with argjoy.
package common

import (
	"encoding/binary"
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/lunixbochs/argjoy"

	"github.com/math-fehr/WindOS-sub000/go/models"
)

type KernelBase struct {
	Syscalls map[string]Syscall
	Argjoy   argjoy.Argjoy

	// memory of the process being served
	Mem   models.UserMem
	Order binary.ByteOrder
	// user pointers must end at or below Limit
	Limit uint64
	// optional stricter pointer check, run after the bounds check
	Strict  func(addr, size uint64) error
	Strsize int
}

func (k *KernelBase) Base() *KernelBase {
	return k
}

type Kernel interface {
	Base() *KernelBase
}

// CheckPtr validates a user range before the kernel touches it.
func (k *KernelBase) CheckPtr(addr, size uint64) error {
	end := addr + size
	if addr == 0 || end < addr || end > k.Limit {
		return models.EFAULT
	}
	if k.Strict != nil {
		return k.Strict(addr, size)
	}
	return nil
}

func (k *KernelBase) ReadStr(addr uint64) (string, error) {
	if err := k.CheckPtr(addr, 1); err != nil {
		return "", err
	}
	var out []byte
	buf := make([]byte, 1)
	for i := 0; i < maxStr; i++ {
		if err := k.Mem.MemReadInto(buf, addr+uint64(i)); err != nil {
			return "", models.EFAULT
		}
		if buf[0] == 0 {
			return string(out), nil
		}
		out = append(out, buf[0])
	}
	return "", models.ENAMETOOLONG
}

const maxStr = 4096

func camelToSnakeCase(name string) string {
	var words []string
	last := 0
	for i, c := range name {
		if unicode.IsUpper(c) {
			if i > 0 {
				words = append(words, name[last:i])
			}
			last = i
		}
	}
	words = append(words, name[last:])
	return strings.ToLower(strings.Join(words, "_"))
}

// syscall methods are exported methods whose name starts with Sys
const prefix = "Sys"

// Init builds the syscall table of kf from its Sys* methods.
func Init(kf Kernel) {
	k := kf.Base()
	k.Syscalls = make(map[string]Syscall)
	instance := reflect.ValueOf(kf)
	typ := instance.Type()
	for i := 0; i < typ.NumMethod(); i++ {
		method := typ.Method(i)
		name := method.Name
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		name = strings.TrimPrefix(name, prefix)
		if r, size := utf8.DecodeRuneInString(name); size <= 0 || !unicode.IsUpper(r) {
			continue
		}
		name = camelToSnakeCase(name)
		in := make([]reflect.Type, method.Type.NumIn()-1)
		for j := 1; j < method.Type.NumIn(); j++ {
			in[j-1] = method.Type.In(j)
		}
		out := make([]reflect.Type, method.Type.NumOut())
		for j := 0; j < method.Type.NumOut(); j++ {
			out[j] = method.Type.Out(j)
		}
		k.Syscalls[name] = Syscall{
			Name:     name,
			Kernel:   k,
			Instance: instance,
			Method:   method,
			In:       in,
			Out:      out,
		}
	}
	k.Argjoy.Register(k.commonArgCodec)
	k.Argjoy.Register(argjoy.IntToInt)
}

func Lookup(kf Kernel, name string) *Syscall {
	k := kf.Base()
	if k.Syscalls == nil {
		Init(kf)
	}
	if sys, ok := k.Syscalls[name]; ok {
		return &sys
	}
	return nil
}
