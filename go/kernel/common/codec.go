package common

import (
	"github.com/lunixbochs/argjoy"
)

// registers are 32 bits wide: signed parameters are sign extended from bit 31
func (k *KernelBase) commonArgCodec(arg interface{}, vals []interface{}) error {
	if reg, ok := vals[0].(uint64); ok {
		switch v := arg.(type) {
		case *Buf:
			*v = NewBuf(k, reg)
		case *Obuf:
			*v = Obuf{NewBuf(k, reg)}
		case *Len:
			*v = Len(uint32(reg))
		case *Off:
			*v = Off(int32(reg))
		case *Fd:
			*v = Fd(int32(reg))
		case *Ptr:
			*v = Ptr(uint32(reg))
		case *int:
			*v = int(int32(reg))
		case *string:
			s, err := k.ReadStr(reg)
			if err != nil {
				return err
			}
			*v = s
		default:
			return argjoy.NoMatch
		}
		return nil
	}
	return argjoy.NoMatch
}
