package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/fjl/lineftp/config"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"
)

// setupLogging installs the root log handler. The returned function flushes
// and closes the log file, if any.
func setupLogging(cfg config.LogConfig) (func(), error) {
	lvl, err := log.LvlFromString(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q", cfg.Level)
	}

	var (
		output   io.Writer = os.Stderr
		usecolor           = (isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())) && os.Getenv("TERM") != "dumb"
	)
	if usecolor {
		output = colorable.NewColorableStderr()
	}
	handler := log.StreamHandler(output, log.TerminalFormat(usecolor))

	closeFn := func() {}
	if cfg.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: 3,
		}
		handler = log.MultiHandler(handler, log.StreamHandler(rotating, log.LogfmtFormat()))
		closeFn = func() { rotating.Close() }
	}
	log.Root().SetHandler(log.LvlFilterHandler(lvl, handler))
	return closeFn, nil
}

// dumpMetrics writes the values of all registered metrics to w.
func dumpMetrics(w io.Writer) {
	var lines []string
	metrics.DefaultRegistry.Each(func(name string, m interface{}) {
		switch m := m.(type) {
		case metrics.Counter:
			lines = append(lines, fmt.Sprintf("%-28s %d", name, m.Count()))
		case metrics.Timer:
			lines = append(lines, fmt.Sprintf("%-28s count=%d mean=%v", name, m.Count(), time.Duration(m.Mean())))
		}
	})
	sort.Strings(lines)
	for _, l := range lines {
		fmt.Fprintln(w, l)
	}
}
