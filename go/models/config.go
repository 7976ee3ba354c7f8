package models

import (
	"io"
	"log/slog"
	"os"
	"time"
)

// Clock is the wall time source behind the time syscall.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type Config struct {
	// installed RAM in bytes
	MemSize uint64
	// bytes at the bottom of RAM holding the kernel image, never handed out
	KernelReserve uint64
	MaxProcs      int
	MaxFiles      int

	// check user pointers page by page against the caller's tables
	StrictPointers bool
	TraceSys       bool
	Strsize        int
	Verbose        bool
	Color          bool

	Clock  Clock
	Log    *slog.Logger
	Output io.Writer
}

// Init fills unset fields with defaults and returns c.
func (c *Config) Init() *Config {
	if c.MemSize == 0 {
		c.MemSize = 64 << 20
	}
	if c.KernelReserve == 0 {
		c.KernelReserve = 1 << 20
	}
	if c.MaxProcs == 0 {
		c.MaxProcs = 64
	}
	if c.MaxFiles == 0 {
		c.MaxFiles = 32
	}
	if c.Strsize == 0 {
		c.Strsize = 30
	}
	if c.Clock == nil {
		c.Clock = systemClock{}
	}
	if c.Output == nil {
		c.Output = os.Stderr
	}
	if c.Log == nil {
		level := slog.LevelInfo
		if c.Verbose {
			level = slog.LevelDebug
		}
		c.Log = slog.New(slog.NewTextHandler(c.Output, &slog.HandlerOptions{Level: level}))
	}
	return c
}
