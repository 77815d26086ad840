package client

import (
	"bufio"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/fjl/lineftp/prompt"
	"github.com/fjl/lineftp/protocol"
)

// consumeFileResponse handles the data connection of a get request.
//
// The first line decides the outcome. If it is the bad sentinel, the remaining
// lines are the server's error message. Otherwise it is the first line of file
// content, unless the dialect marks success with a leading good sentinel. A file whose first line is literally the bad
// sentinel can't be received.
func (c *Client) consumeFileResponse(lr *protocol.LineReader, requested string) (*Result, error) {
	d := c.cfg.Dialect
	first, err := lr.ReadLine()
	if err == io.EOF {
		return nil, &ProtocolError{Msg: "data connection closed before response"}
	} else if err != nil {
		return nil, c.dataError("file", err)
	}

	if first == d.Bad() {
		n, err := lr.ReadUntil(d.Done(), c.surface)
		linesCounter.Inc(int64(n))
		if err != nil {
			return nil, c.dataError("error", err)
		}
		return &Result{Outcome: OutcomeFailed, Lines: n}, nil
	}

	resolver := &Resolver{Dir: c.cfg.SaveDir, Input: c.cfg.Input, Out: c.cfg.Output}
	decision, err := resolver.Resolve(requested)
	if errors.Is(err, prompt.ErrAborted) {
		c.Stop(true)
		return nil, ErrInterrupted
	} else if err != nil {
		return nil, &IOError{Op: "resolve save name", Err: err}
	}
	c.log.Debug("Save target resolved", "action", decision.Action, "name", decision.Name)

	if decision.Action == Cancel {
		if err := c.send(d.Cancel()); err != nil {
			return nil, &IOError{Op: "send cancel", Err: err}
		}
		cancelledCounter.Inc(1)
		return &Result{Outcome: OutcomeCancelled}, nil
	}
	return c.receiveFile(lr, first, filepath.Join(c.cfg.SaveDir, decision.Name))
}

// receiveFile writes the file content to path. The partial file is kept if the
// transfer fails.
func (c *Client) receiveFile(lr *protocol.LineReader, first, path string) (res *Result, err error) {
	d := c.cfg.Dialect
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, &IOError{Op: "create file", Err: err}
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			res, err = nil, &IOError{Op: "close file", Err: cerr}
		}
	}()

	if err := c.send(d.Ready()); err != nil {
		return nil, &IOError{Op: "send ready", Err: err}
	}
	c.log.Debug("Receiving file", "path", path)

	var (
		w       = bufio.NewWriter(f)
		written int64
		lines   int
	)
	write := func(line string) error {
		n, err := w.WriteString(line + "\n")
		written += int64(n)
		if err != nil {
			return &IOError{Op: "write file", Err: err}
		}
		return nil
	}
	defer func() {
		bytesCounter.Inc(written)
		linesCounter.Inc(int64(lines))
	}()

	switch {
	case first == d.Done():
		// Empty file, the response is already complete.
	case d.LeadingGood && first == d.Good():
		lines, err = lr.ReadUntil(d.Done(), write)
	default:
		if err = write(first); err == nil {
			lines, err = lr.ReadUntil(d.Done(), write)
			lines++
		}
	}
	if ferr := w.Flush(); ferr != nil && err == nil {
		err = &IOError{Op: "write file", Err: ferr}
	}
	if err != nil {
		return nil, c.dataError("file", err)
	}
	return &Result{Outcome: OutcomeSaved, SavedAs: path, Lines: lines, Bytes: written}, nil
}
