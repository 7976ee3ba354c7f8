package common

import (
	"reflect"

	"github.com/pkg/errors"

	"github.com/math-fehr/WindOS-sub000/go/models"
)

type Syscall struct {
	Name     string
	Kernel   *KernelBase
	Instance reflect.Value
	Method   reflect.Method
	In       []reflect.Type
	Out      []reflect.Type
}

var (
	uint64Type = reflect.TypeOf(uint64(0))
	errorType  = reflect.TypeOf((*error)(nil)).Elem()
)

// Call runs a handler with raw register words. A non-nil error is also encoded as -errno in
// the returned word, so the result can always be written to r0.
func (sys Syscall) Call(args []uint64) (uint64, error) {
	if len(args) < len(sys.In) {
		return models.EINVAL.Ret(), errors.Errorf("%s: wanted %d arguments, got %d", sys.Name, len(sys.In), len(args))
	}
	converted, err := sys.Kernel.Argjoy.Convert(sys.In, false, args[:len(sys.In)])
	if err != nil {
		// only string arguments can fail to convert
		errno := models.ErrnoOf(err)
		if errno == models.EIO {
			errno = models.EFAULT
		}
		return errno.Ret(), errors.Wrapf(err, "calling %T.%s()", sys.Instance.Interface(), sys.Method.Name)
	}
	in := make([]reflect.Value, len(converted)+1)
	in[0] = sys.Instance
	copy(in[1:], converted)
	out := sys.Method.Func.Call(in)

	if n := len(out); n > 0 && out[n-1].Type() == errorType {
		if e, ok := out[n-1].Interface().(error); ok && e != nil {
			return models.ErrnoOf(e).Ret(), e
		}
		out = out[:n-1]
	}
	if len(out) > 0 && out[0].Type().ConvertibleTo(uint64Type) {
		return out[0].Convert(uint64Type).Uint(), nil
	}
	return 0, nil
}
