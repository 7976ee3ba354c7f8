// Package debug hosts the kernel monitor: a command prompt over a halted or running machine.
package debug

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/shibukawa/configdir"

	"github.com/math-fehr/WindOS-sub000/go/debug/cmd"
	"github.com/math-fehr/WindOS-sub000/go/kernel"
)

// Monitor reads commands from a terminal with line editing and history.
type Monitor struct {
	k  *kernel.Kernel
	rl *readline.Instance
}

func NewMonitor(k *kernel.Kernel) (*Monitor, error) {
	configDirs := configdir.New("windos", "monitor")
	cacheDir := configDirs.QueryCacheFolder()
	historyPath := ""
	if err := cacheDir.MkdirAll(); err == nil {
		historyPath = filepath.Join(cacheDir.Path, "history")
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "(windos) ",
		InterruptPrompt: "\n",
		HistoryFile:     historyPath,
	})
	if err != nil {
		return nil, err
	}
	return &Monitor{k: k, rl: rl}, nil
}

// rcLines returns the commands of every monitorrc found in the config folders.
func rcLines() []string {
	var lines []string
	for _, folder := range configdir.New("windos", "monitor").QueryFolders(configdir.All) {
		if data, err := folder.ReadFile("monitorrc"); err == nil {
			lines = append(lines, strings.Split(string(data), "\n")...)
		}
	}
	return lines
}

// Run executes the monitorrc files, then prompts until EOF or "quit".
func (m *Monitor) Run() {
	defer m.rl.Close()
	c := &cmd.Context{Writer: m.rl.Stderr(), K: m.k}
	for _, line := range rcLines() {
		cmd.Run(c, line)
	}
	for {
		ln := m.rl.Line()
		if ln.CanContinue() {
			continue
		} else if ln.CanBreak() {
			break
		}
		if strings.TrimSpace(ln.Line) == "quit" {
			break
		}
		cmd.Run(c, ln.Line)
		m.setPrompt()
	}
}

func (m *Monitor) setPrompt() {
	if m.k.Halted() != nil {
		m.rl.SetPrompt("(windos panic) ")
		return
	}
	m.rl.SetPrompt(fmt.Sprintf("(windos %d) ", m.k.Ticks()))
}

// Script runs newline separated commands against k, writing their output to w.
func Script(k *kernel.Kernel, w io.Writer, script string) {
	c := &cmd.Context{Writer: w, K: k}
	for _, line := range strings.Split(script, "\n") {
		cmd.Run(c, line)
	}
}
