package models

import (
	"encoding/hex"
	"fmt"
	"strings"
)

func Repr(p []byte, strsize int) string {
	tmp := make([]string, len(p))
	for i, b := range p {
		if b >= 0x20 && b <= 0x7e {
			tmp[i] = string(b)
		} else {
			tmp[i] = fmt.Sprintf("\\x%02x", b)
		}
	}
	out := strings.Join(tmp, "")
	if strsize > 0 && len(out) > strsize {
		for i := len(tmp) - 1; len(out) > strsize-3; i-- {
			out = strings.Join(tmp[:i], "")
		}
		return "\"" + out + "\"..."
	}
	return "\"" + out + "\""
}

// HexDump formats mem as 32-bit words with an ASCII column.
func HexDump(base uint64, mem []byte) []string {
	var clean = func(p []byte) string {
		o := make([]byte, len(p))
		for i, c := range p {
			if c >= 0x20 && c <= 0x7e {
				o[i] = c
			} else {
				o[i] = '.'
			}
		}
		return string(o)
	}
	const bsz = 4
	const blockCount = 4
	const lineSize = blockCount * bsz
	var out []string
	blocks := make([]string, blockCount)
	for i := 0; i < len(mem); i += lineSize {
		memLine := mem[i:]
		if len(memLine) > lineSize {
			memLine = memLine[:lineSize]
		}
		for j := 0; j < blockCount; j++ {
			start, end := j*bsz, (j+1)*bsz
			switch {
			case start >= len(memLine):
				blocks[j] = strings.Repeat(" ", bsz*2)
			case end > len(memLine):
				blocks[j] = hex.EncodeToString(memLine[start:]) + strings.Repeat("  ", end-len(memLine))
			default:
				blocks[j] = hex.EncodeToString(memLine[start:end])
			}
		}
		out = append(out, fmt.Sprintf("0x%08x: %s [%s]", base+uint64(i), strings.Join(blocks, " "), clean(memLine)))
	}
	return out
}
