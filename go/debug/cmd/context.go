package cmd

import (
	"fmt"
	"io"

	"github.com/math-fehr/WindOS-sub000/go/kernel"
)

type Context struct {
	io.Writer
	K *kernel.Kernel
}

func (c *Context) Printf(format string, a ...interface{}) (n int, err error) {
	return fmt.Fprintf(c, format, a...)
}
