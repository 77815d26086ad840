package client

import (
	"context"
	"io"
	"net"

	"github.com/fjl/lineftp/protocol"
)

// connect establishes the control connection.
func (c *Client) connect(ctx context.Context) error {
	addr := c.req.ControlAddr()
	dialer := net.Dialer{Timeout: c.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return &ConnectError{Addr: addr, Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		// Stopped while dialing.
		conn.Close()
		return ErrInterrupted
	}
	c.control = conn
	c.ctrl = protocol.NewLineReader(conn)
	c.log.Debug("Control connection established", "local", conn.LocalAddr())
	return nil
}

// makeRequest sends the request line and reads the acknowledgement. The reply
// line is returned verbatim when the request is not accepted.
func (c *Client) makeRequest() (accepted bool, reply string, err error) {
	line := c.req.Encode()
	if err := c.send(line); err != nil {
		return false, "", &IOError{Op: "send request", Err: err}
	}
	c.log.Debug("Request sent", "request", line)

	reply, err = c.ctrl.ReadLine()
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	if err != nil {
		return false, "", &IOError{Op: "read acknowledgement", Err: err}
	}
	return reply == c.cfg.Dialect.Good(), reply, nil
}

// send writes a line to the control connection.
func (c *Client) send(line string) error {
	c.mu.Lock()
	conn := c.control
	c.mu.Unlock()
	if conn == nil {
		return net.ErrClosed
	}
	return c.writeLine(conn, line)
}

func (c *Client) writeLine(conn net.Conn, line string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return protocol.WriteLine(conn, line)
}
