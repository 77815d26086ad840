package client

import (
	"errors"
	"io"

	"github.com/fjl/lineftp/protocol"
)

// consumeListing shows every line of a listing response until the done sentinel.
func (c *Client) consumeListing(lr *protocol.LineReader) (*Result, error) {
	c.log.Debug("Receiving listing", "kind", c.req.Kind)
	n, err := lr.ReadUntil(c.cfg.Dialect.Done(), c.surface)
	linesCounter.Inc(int64(n))
	if err != nil {
		return nil, c.dataError("listing", err)
	}
	return &Result{Outcome: OutcomeListed, Lines: n}, nil
}

// surface passes a server line on to the caller.
func (c *Client) surface(line string) error {
	c.log.Trace("Received line", "line", line)
	if _, err := io.WriteString(c.cfg.Output, line+"\n"); err != nil {
		return &IOError{Op: "write output", Err: err}
	}
	return nil
}

// dataError classifies a failure that happened while reading a response.
func (c *Client) dataError(what string, err error) error {
	var ioErr *IOError
	switch {
	case errors.As(err, &ioErr):
		return ioErr
	case errors.Is(err, protocol.ErrMissingSentinel):
		return &ProtocolError{Msg: what + " response incomplete", Err: err}
	default:
		return &IOError{Op: "read " + what, Err: err}
	}
}
