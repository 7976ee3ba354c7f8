// Package cmd holds the windos command line: a subcommand launcher and the flag handling
// shared by the subcommands.
package cmd

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-shellwords"
	"github.com/pkg/errors"
	"github.com/shibukawa/configdir"

	"github.com/math-fehr/WindOS-sub000/go/models"
)

// StrSlice is a repeatable string flag.
type StrSlice []string

func (s *StrSlice) String() string {
	return fmt.Sprintf("%v", *s)
}

func (s *StrSlice) Set(value string) error {
	*s = append(*s, value)
	return nil
}

// DefaultFlags reads extra arguments for a subcommand from the "<name>.flags" file in the
// windos config folders. They are parsed like a shell command line and go before the real ones.
func DefaultFlags(name string) ([]string, error) {
	var out []string
	for _, folder := range configdir.New("windos", "cli").QueryFolders(configdir.All) {
		data, err := folder.ReadFile(name + ".flags")
		if err != nil {
			continue
		}
		args, err := shellwords.Parse(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, errors.Wrapf(err, "%s/%s.flags", folder.Path, name)
		}
		out = append(out, args...)
	}
	return out, nil
}

// ParseFlags parses argv[1:] with the config folder defaults in front. Flag errors exit.
func ParseFlags(fs *flag.FlagSet, name string, argv []string) {
	defaults, err := DefaultFlags(name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: ignoring default flags: %v\n", err)
	}
	fs.Parse(append(defaults, argv[1:]...))
}

// Usage prints the usage line followed by the flag table.
func Usage(fs *flag.FlagSet, usage string) func() {
	return func() {
		fmt.Fprintf(os.Stderr, "Usage: %s\n\nOptions:\n", usage)
		var flags []*flag.Flag
		fs.VisitAll(func(f *flag.Flag) { flags = append(flags, f) })
		models.PrintFlags(os.Stderr, flags)
	}
}

// NewLogger logs to w at Warn, or Debug when verbose.
func NewLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// PrintError prints an error, and a stacktrace if available.
func PrintError(err error) {
	fmt.Fprintf(os.Stderr, "%s\n", strings.Repeat("-", 40))
	fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	var st stackTracer
	if !errors.As(err, &st) {
		return
	}
	// parse full path and method name for each stack frame
	var frames [][]string
	for _, f := range st.StackTrace() {
		fullpath := ""
		fileline := fmt.Sprintf("%s:%d", f, f)
		method := fmt.Sprintf("%n", f)

		frame := fmt.Sprintf("%+s", f)
		tmp := strings.SplitN(frame, "\n", 3)
		if len(tmp) == 2 {
			pathsplit := strings.Split(tmp[0], "/")
			method = pathsplit[len(pathsplit)-1]
			fullpath = strings.TrimSpace(tmp[1])
		}
		frames = append(frames, []string{fullpath, fileline, method})
		if method == "main.main" {
			break
		}
	}
	widths := make([]int, 2)
	for _, f := range frames {
		for i := range widths {
			if len(f[i]) > widths[i] {
				widths[i] = len(f[i])
			}
		}
	}
	for _, f := range frames {
		for i := range widths {
			if widths[i] > 0 {
				pad := strings.Repeat(" ", widths[i]-len(f[i]))
				fmt.Fprintf(os.Stderr, "%s%s | ", f[i], pad)
			}
		}
		fmt.Fprintf(os.Stderr, "%s()\n", f[2])
	}
}
