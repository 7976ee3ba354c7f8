package boot

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/math-fehr/WindOS-sub000/go/cmd"
	"github.com/math-fehr/WindOS-sub000/go/debug"
	"github.com/math-fehr/WindOS-sub000/go/kernel"
	"github.com/math-fehr/WindOS-sub000/go/models"
	"github.com/math-fehr/WindOS-sub000/go/storage"
	"github.com/math-fehr/WindOS-sub000/go/vfs/blockfs"
)

type options struct {
	mem, procs, files int
	ticks             int
	listen            int
	host              cmd.StrSlice
	init, input       string
	script, savepost  string
	outfile           string
	monitor, verbose  bool
	strace, strict    bool
	color             bool
	strsize           int
}

func Main(args []string) {
	fs := flag.NewFlagSet("boot", flag.ExitOnError)
	var o options
	fs.IntVar(&o.mem, "mem", 64, "installed RAM in MiB")
	fs.IntVar(&o.procs, "procs", 64, "process table slots")
	fs.IntVar(&o.files, "files", 32, "descriptors per process")
	fs.StringVar(&o.init, "init", "/bin/init", "path of the first program inside the root filesystem")
	fs.Var(&o.host, "host", "copy a host file into a RAM root filesystem, as dst=src or src (repeatable)")
	fs.StringVar(&o.input, "input", "", "console input queued before the first tick (\\n for newline)")
	fs.IntVar(&o.ticks, "ticks", 0, "timer interrupts to raise after boot")
	fs.BoolVar(&o.monitor, "monitor", false, "open the interactive monitor after the ticks")
	fs.IntVar(&o.listen, "listen", -1, "serve the monitor on localhost:<port>")
	fs.StringVar(&o.script, "script", "", "run monitor commands from <file>")
	fs.StringVar(&o.savepost, "savepost", "", "save a machine snapshot to <file> before exiting")
	fs.BoolVar(&o.strace, "strace", false, "trace syscalls")
	fs.IntVar(&o.strsize, "strsize", 30, "limit -strace'd strings to length")
	fs.BoolVar(&o.color, "color", true, "color -strace output on terminals")
	fs.BoolVar(&o.strict, "strict", false, "check user pointers against the caller's tables")
	fs.StringVar(&o.outfile, "o", "", "redirect console and trace output to file (default stdout)")
	fs.BoolVar(&o.verbose, "v", false, "verbose kernel log")
	fs.Usage = cmd.Usage(fs, args[0]+" [options] [disk.img]")
	cmd.ParseFlags(fs, "boot", args)

	if err := run(&o, fs.Args()); err != nil {
		cmd.PrintError(err)
		os.Exit(1)
	}
}

func run(o *options, args []string) error {
	var root *blockfs.FS
	var err error
	switch {
	case len(args) > 0:
		dev, err := storage.OpenFile(args[0], 0)
		if err != nil {
			return err
		}
		defer dev.Close()
		if root, err = blockfs.Open(dev); err != nil {
			return errors.Wrap(err, args[0])
		}
	case len(o.host) > 0:
		if root, err = blockfs.Format(storage.NewMemDevice(16<<20), 256); err != nil {
			return err
		}
	default:
		return errors.New("need a disk image or at least one -host file")
	}
	for _, pair := range o.host {
		if err := cmd.InstallHost(root.Root(), pair); err != nil {
			return err
		}
	}

	out := os.Stdout
	if o.outfile != "" {
		if out, err = os.OpenFile(o.outfile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err != nil {
			return errors.WithStack(err)
		}
		defer out.Close()
	}
	config := &models.Config{
		MemSize:        uint64(o.mem) << 20,
		MaxProcs:       o.procs,
		MaxFiles:       o.files,
		StrictPointers: o.strict,
		TraceSys:       o.strace,
		Strsize:        o.strsize,
		Verbose:        o.verbose,
		Color:          o.color,
		Output:         out,
		Log:            cmd.NewLogger(os.Stderr, o.verbose),
	}
	k, err := kernel.New(config)
	if err != nil {
		return err
	}
	root.Clock = config.Clock
	if err := k.Boot(root.Root(), o.init, nil); err != nil {
		return err
	}
	if o.input != "" {
		k.TTY().Feed([]byte(strings.ReplaceAll(o.input, `\n`, "\n")))
	}
	for i := 0; i < o.ticks; i++ {
		if err := k.Timer(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			break
		}
	}
	if o.script != "" {
		data, err := os.ReadFile(o.script)
		if err != nil {
			return errors.WithStack(err)
		}
		debug.Script(k, os.Stderr, string(data))
	}
	if o.listen > 0 {
		conn, err := debug.Accept("localhost", strconv.Itoa(o.listen))
		if err != nil {
			return errors.Wrapf(err, "accept on port %d", o.listen)
		}
		debug.Serve(k, conn)
	}
	if o.monitor {
		m, err := debug.NewMonitor(k)
		if err != nil {
			return err
		}
		m.Run()
	}
	if o.savepost != "" {
		snap, err := models.Save(k)
		if err != nil {
			return err
		}
		if err := os.WriteFile(o.savepost, snap, 0644); err != nil {
			return errors.WithStack(err)
		}
	}
	if p := k.Halted(); p != nil {
		return p
	}
	return nil
}

func init() { cmd.Register("boot", "boot the kernel on a disk image or host files", Main) }
