package loader

import (
	"bytes"

	"github.com/pkg/errors"
)

// Load identifies and validates an executable image. Only 32-bit ARM ELF executables are
// accepted, and every segment must end below limit.
func Load(p []byte, limit uint64) (*Image, error) {
	if !MatchElf(bytes.NewReader(p)) {
		return nil, errors.Wrapf(ErrUnknownMagic, "magic %q", getMagic(bytes.NewReader(p)))
	}
	return LoadElf(p, limit)
}
