package client

import (
	"context"
	"net"
	"strconv"
)

// openAndAccept starts the data listener, tells the server about it and waits
// for the server to connect. The ready signal must not be sent before the
// listener is bound.
func (c *Client) openAndAccept(ctx context.Context) (net.Conn, error) {
	addr := net.JoinHostPort(c.cfg.ListenHost, strconv.Itoa(c.req.DataPort))
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, &IOError{Op: "listen", Err: err}
	}
	if !c.setListener(ln) {
		ln.Close()
		return nil, ErrInterrupted
	}
	c.log.Debug("Data listener started", "addr", ln.Addr())

	if err := c.send(c.cfg.Dialect.Ready()); err != nil {
		return nil, &IOError{Op: "send ready", Err: err}
	}

	conn, err := ln.Accept()
	if err != nil {
		return nil, &IOError{Op: "accept", Err: err}
	}
	if !c.setData(conn) {
		conn.Close()
		return nil, ErrInterrupted
	}
	c.log.Debug("Data connection accepted", "remote", conn.RemoteAddr())
	return conn, nil
}

func (c *Client) setListener(ln net.Listener) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.listener = ln
	return true
}

func (c *Client) setData(conn net.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.data = conn
	return true
}
