package kernel

import (
	"fmt"
	"io"
	"os"

	"github.com/lunixbochs/vtclean"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/mgutz/ansi"

	"github.com/math-fehr/WindOS-sub000/go/kernel/common"
	"github.com/math-fehr/WindOS-sub000/go/models"
)

var (
	pidColor  = ansi.ColorFunc("cyan")
	nameColor = ansi.ColorFunc("yellow+b")
	errColor  = ansi.ColorFunc("red")
)

// tracer prints strace-style lines. Colors are kept only when writing to a terminal.
type tracer struct {
	out   io.Writer
	color bool
}

func newTracer(config *models.Config) *tracer {
	t := &tracer{out: config.Output}
	if f, ok := config.Output.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		t.out = colorable.NewColorable(f)
		t.color = config.Color
	}
	return t
}

func (t *tracer) print(line string) {
	if !t.color {
		line = vtclean.Clean(line, false)
	}
	fmt.Fprintln(t.out, line)
}

func (t *tracer) call(pid int, sys common.Syscall, args []uint64) {
	t.print(fmt.Sprintf("%s %s", pidColor(fmt.Sprintf("[%d]", pid)), nameColor(sys.Trace(args))))
}

func (t *tracer) ret(pid int, sys common.Syscall, args []uint64, ret uint64) {
	s := sys.TraceRet(args, ret)
	if _, failed := models.RetErrno(ret); failed {
		s = errColor(s)
	}
	t.print(fmt.Sprintf("%s   %s%s", pidColor(fmt.Sprintf("[%d]", pid)), sys.Name, s))
}

func (t *tracer) blocked(pid int, sys common.Syscall) {
	t.print(fmt.Sprintf("%s   %s <blocked>", pidColor(fmt.Sprintf("[%d]", pid)), sys.Name))
}
