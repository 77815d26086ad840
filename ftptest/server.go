// Package ftptest provides an in-process server for testing transfer clients.
//
// The server accepts control connections on a loopback port and hands each of
// them to a Handler, which scripts the server side of the exchange.
package ftptest

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/fjl/lineftp/protocol"
)

// Handler serves one client session.
type Handler func(ex *Exchange) error

// Server is a loopback server running a Handler for every control connection.
type Server struct {
	Dialect protocol.Dialect

	ln      net.Listener
	handler Handler
	wg      sync.WaitGroup

	mu     sync.Mutex
	errs   []error
	events []string
}

// NewServer starts a server on 127.0.0.1.
func NewServer(dialect protocol.Dialect, h Handler) (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	s := &Server{Dialect: dialect, ln: ln, handler: h}
	s.wg.Add(1)
	go s.acceptLoop()
	return s, nil
}

// Port returns the control port.
func (s *Server) Port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

// Close stops accepting and waits for running handlers.
func (s *Server) Close() error {
	err := s.ln.Close()
	s.wg.Wait()
	return err
}

// Err returns the errors returned by handlers.
func (s *Server) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Join(s.errs...)
}

// Events returns the protocol events observed by the server, in order.
func (s *Server) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

func (s *Server) record(format string, args ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, fmt.Sprintf(format, args...))
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if errors.Is(err, net.ErrClosed) {
			return
		} else if err != nil {
			log.Warn("Test server accept failed", "err", err)
			return
		}
		s.wg.Add(1)
		go s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	defer s.wg.Done()
	ex := &Exchange{
		Dialect:     s.Dialect,
		ControlPort: s.Port(),
		srv:         s,
		control:     conn,
		ctrl:        protocol.NewLineReader(conn),
	}
	defer ex.close()

	if err := s.handler(ex); err != nil {
		log.Debug("Test server handler failed", "err", err)
		s.mu.Lock()
		s.errs = append(s.errs, err)
		s.mu.Unlock()
	}
}

// Exchange is the server side of one session.
type Exchange struct {
	Dialect     protocol.Dialect
	ControlPort int

	srv     *Server
	control net.Conn
	ctrl    *protocol.LineReader
	data    net.Conn
}

// ReadRequest reads and parses the request line. The raw line is returned even
// when it does not parse.
func (ex *Exchange) ReadRequest() (protocol.Request, string, error) {
	line, err := ex.ReadControl()
	if err != nil {
		return protocol.Request{}, "", err
	}
	req, err := protocol.ParseRequest(line, ex.ControlPort)
	return req, line, err
}

// ReadControl reads a line from the control connection.
func (ex *Exchange) ReadControl() (string, error) {
	line, err := ex.ctrl.ReadLine()
	if err != nil {
		ex.srv.record("control-error")
		return "", err
	}
	ex.srv.record("control: %s", line)
	return line, nil
}

// Reply writes a line to the control connection.
func (ex *Exchange) Reply(line string) error {
	ex.srv.record("reply: %s", line)
	return protocol.WriteLine(ex.control, line)
}

// Accept acknowledges the request.
func (ex *Exchange) Accept() error {
	return ex.Reply(ex.Dialect.Good())
}

// AwaitReady reads a control line and fails unless it is the ready sentinel.
func (ex *Exchange) AwaitReady() error {
	line, err := ex.ReadControl()
	if err != nil {
		return err
	}
	if line != ex.Dialect.Ready() {
		return fmt.Errorf("expected %q, got %q", ex.Dialect.Ready(), line)
	}
	return nil
}

// DialData connects to the client's data listener. There is no retry: the
// client must have bound the port before it signalled ready.
func (ex *Exchange) DialData(port int) error {
	host, _, _ := net.SplitHostPort(ex.control.RemoteAddr().String())
	conn, err := net.Dial("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		ex.srv.record("dial-error")
		return err
	}
	ex.srv.record("dial")
	ex.data = conn
	return nil
}

// Send writes lines to the data connection.
func (ex *Exchange) Send(lines ...string) error {
	if ex.data == nil {
		return errors.New("data connection not open")
	}
	for _, l := range lines {
		if err := protocol.WriteLine(ex.data, l); err != nil {
			return err
		}
	}
	return nil
}

// SendDone ends the response.
func (ex *Exchange) SendDone() error {
	return ex.Send(ex.Dialect.Done())
}

// CloseData closes the data connection.
func (ex *Exchange) CloseData() error {
	if ex.data == nil {
		return nil
	}
	err := ex.data.Close()
	ex.data = nil
	return err
}

// WaitClosed blocks until the client closes the control connection and
// returns any lines received before that.
func (ex *Exchange) WaitClosed() []string {
	var lines []string
	for {
		line, err := ex.ctrl.ReadLine()
		if err != nil {
			return lines
		}
		ex.srv.record("control: %s", line)
		lines = append(lines, line)
	}
}

func (ex *Exchange) close() {
	ex.CloseData()
	ex.control.Close()
}

// FreePort returns a currently unused loopback TCP port.
func FreePort(t testing.TB) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal("can't find free port:", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}
