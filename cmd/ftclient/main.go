// Command ftclient requests a directory listing or a file from a transfer server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/fjl/lineftp/client"
	"github.com/fjl/lineftp/config"
	"github.com/fjl/lineftp/prompt"
	"github.com/fjl/lineftp/protocol"
	"github.com/urfave/cli/v2"
)

// How long to wait for the session to wind down after an interrupt.
const stopGracePeriod = 2 * time.Second

var (
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "YAML configuration file",
	}
	saveDirFlag = &cli.StringFlag{
		Name:  "save-dir",
		Usage: "directory for received files",
	}
	listenHostFlag = &cli.StringFlag{
		Name:  "listen-host",
		Usage: "address of the data listener (default: all interfaces)",
	}
	dialTimeoutFlag = &cli.DurationFlag{
		Name:  "dial-timeout",
		Usage: "control connection dial timeout",
	}
	sentinelPrefixFlag = &cli.StringFlag{
		Name:  "sentinel-prefix",
		Usage: `prefix of protocol sentinel lines, e.g. '\' for servers sending \done`,
	}
	verbosityFlag = &cli.StringFlag{
		Name:  "verbosity",
		Usage: "log level (trace, debug, info, warn, error, crit)",
	}
	logFileFlag = &cli.StringFlag{
		Name:  "log.file",
		Usage: "also write logs to this file",
	}
	metricsFlag = &cli.BoolFlag{
		Name:  "metrics",
		Usage: "collect metrics and print them on exit",
	}
)

func main() {
	app := &cli.App{
		Name:      "ftclient",
		Usage:     "request a directory listing or a file from a transfer server",
		ArgsUsage: "<host> <control-port> <-l|-la|-ll|-lr|-g> [file] <data-port>",
		Flags: []cli.Flag{
			configFlag,
			saveDirFlag,
			listenHostFlag,
			dialTimeoutFlag,
			sentinelPrefixFlag,
			verbosityFlag,
			logFileFlag,
			metricsFlag,
		},
		Action:          run,
		HideHelpCommand: true,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	closeLog, err := setupLogging(cfg.Log)
	if err != nil {
		return err
	}
	defer closeLog()

	input, closeInput := prompt.Stdio()
	defer closeInput()

	args := &argParser{in: input, out: os.Stdout}
	req, err := args.parse(ctx.Args().Slice())
	if err != nil {
		return argsError(err)
	}

	code := runSession(req, client.Config{
		Dialect:     protocol.DialectFor(cfg.SentinelPrefix),
		DialTimeout: cfg.DialTimeout,
		ListenHost:  cfg.ListenHost,
		SaveDir:     cfg.SaveDir,
		Input:       input,
		Output:      &listingHeader{w: os.Stdout, req: req},
	})
	if metrics.Enabled {
		dumpMetrics(os.Stderr)
	}
	if code != 0 {
		return cli.Exit("", code)
	}
	return nil
}

// argsError turns an argument parsing failure into the exit status. Aborting a
// prompt counts as an interrupt.
func argsError(err error) error {
	if errors.Is(err, prompt.ErrAborted) {
		return cli.Exit("", 130)
	}
	return cli.Exit(fmt.Sprintf("Invalid arguments: %v", err), 1)
}

// loadConfig reads the config file, if any, and applies flags on top.
func loadConfig(ctx *cli.Context) (config.Config, error) {
	cfg := config.Defaults
	if file := ctx.String(configFlag.Name); file != "" {
		var err error
		if cfg, err = config.Load(file); err != nil {
			return cfg, err
		}
	}
	if ctx.IsSet(saveDirFlag.Name) {
		cfg.SaveDir = ctx.String(saveDirFlag.Name)
	}
	if ctx.IsSet(listenHostFlag.Name) {
		cfg.ListenHost = ctx.String(listenHostFlag.Name)
	}
	if ctx.IsSet(dialTimeoutFlag.Name) {
		cfg.DialTimeout = ctx.Duration(dialTimeoutFlag.Name)
	}
	if ctx.IsSet(sentinelPrefixFlag.Name) {
		cfg.SentinelPrefix = ctx.String(sentinelPrefixFlag.Name)
	}
	if ctx.IsSet(verbosityFlag.Name) {
		cfg.Log.Level = ctx.String(verbosityFlag.Name)
	}
	if ctx.IsSet(logFileFlag.Name) {
		cfg.Log.File = ctx.String(logFileFlag.Name)
	}
	return cfg, cfg.Validate()
}

type sessionResult struct {
	res *client.Result
	err error
}

// runSession runs the request and reports the outcome on stdout. It returns
// the process exit code.
func runSession(req protocol.Request, cfg client.Config) int {
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := client.New(req, cfg)
	done := make(chan sessionResult, 1)
	go func() {
		res, err := c.Run(ctx)
		done <- sessionResult{res, err}
	}()

	select {
	case r := <-done:
		code := report(os.Stdout, req, r.res, r.err)
		if !client.IsConnectError(r.err) {
			fmt.Printf("FTP control connection with %s closed.\n\n", req.ControlAddr())
		}
		return code

	case sig := <-sigc:
		log.Debug("Received signal, stopping", "signal", sig)
		c.Stop(true)
		cancel()
		select {
		case <-done:
		case <-time.After(stopGracePeriod):
			log.Warn("Session did not stop in time")
		}
		// Erase the ^C echoed by the terminal.
		fmt.Print("\033[1000D\033[K")
		fmt.Printf("FTP control connection with %s closed.\n\n", req.ControlAddr())
		return 130
	}
}

func report(w io.Writer, req protocol.Request, res *client.Result, err error) int {
	switch {
	case client.IsConnectError(err):
		fmt.Fprintf(w, "Error initiating contact with FTP server: %v\n", err)
		return 1
	case errors.Is(err, client.ErrInterrupted):
		fmt.Fprintln(w, "Transfer interrupted.")
		return 130
	case err != nil:
		fmt.Fprintf(w, "Error receiving data from FTP server: %v\n", err)
		return 1
	}

	switch res.Outcome {
	case client.OutcomeListed:
		if res.Lines == 0 {
			fmt.Fprintf(w, "Receiving directory structure from %s:%d\n\n", req.Host, req.DataPort)
		}
		fmt.Fprintln(w)
	case client.OutcomeSaved:
		if client.BaseName(req.Filename) == client.BaseName(res.SavedAs) {
			fmt.Fprintf(w, "Received %q from %s:%d\n", req.Filename, req.Host, req.DataPort)
		} else {
			fmt.Fprintf(w, "Received %q as %q from %s:%d\n", req.Filename, res.SavedAs, req.Host, req.DataPort)
		}
		fmt.Fprintln(w, "File transfer complete.")
	case client.OutcomeCancelled:
		fmt.Fprintln(w, "File transfer cancelled.")
	case client.OutcomeFailed:
		return 1
	case client.OutcomeRejected:
		fmt.Fprintln(w, res.Message)
		return 1
	}
	return 0
}

// listingHeader prints a header line before the first line of a listing.
type listingHeader struct {
	w       io.Writer
	req     protocol.Request
	started bool
}

func (h *listingHeader) Write(b []byte) (int, error) {
	if !h.started && h.req.Kind.IsList() {
		h.started = true
		fmt.Fprintf(h.w, "Receiving directory structure from %s:%d\n\n", h.req.Host, h.req.DataPort)
	}
	return h.w.Write(b)
}
