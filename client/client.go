// Package client implements the client side of the two-connection transfer
// protocol: one request per session, answered on a data connection that the
// server opens to a listener run by the client.
package client

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/mclock"
	"github.com/ethereum/go-ethereum/log"
	"github.com/fjl/lineftp/prompt"
	"github.com/fjl/lineftp/protocol"
	"github.com/google/uuid"
)

const defaultDialTimeout = 10 * time.Second

// Config holds the settings of a client session.
type Config struct {
	Dialect     protocol.Dialect
	DialTimeout time.Duration // defaults to 10s
	ListenHost  string        // data listener host, empty means all interfaces
	SaveDir     string        // received files are saved here, defaults to "."

	Input  prompt.Source // answers collision prompts
	Output io.Writer     // receives listing lines, server error lines and prompt text

	Clock mclock.Clock
	Log   log.Logger
}

func (cfg Config) withDefaults() Config {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.SaveDir == "" {
		cfg.SaveDir = "."
	}
	if cfg.Output == nil {
		cfg.Output = io.Discard
	}
	if cfg.Clock == nil {
		cfg.Clock = mclock.System{}
	}
	if cfg.Log == nil {
		cfg.Log = log.Root()
	}
	return cfg
}

// Outcome is the terminal state of a session that did not fail.
type Outcome int

const (
	OutcomeListed    Outcome = iota + 1 // listing received
	OutcomeSaved                        // file received and saved
	OutcomeCancelled                    // user cancelled saving on name collision
	OutcomeFailed                       // server reported an error for the requested file
	OutcomeRejected                     // server rejected the request
)

func (o Outcome) String() string {
	switch o {
	case OutcomeListed:
		return "listed"
	case OutcomeSaved:
		return "saved"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeFailed:
		return "failed"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Result describes a completed session.
type Result struct {
	Outcome Outcome
	Message string // server rejection line, for OutcomeRejected
	Lines   int    // lines shown (listing, failure) or written (file)
	SavedAs string // path of the received file
	Bytes   int64  // bytes written to SavedAs
	Elapsed time.Duration
}

// Client runs a single request.
type Client struct {
	cfg Config
	req protocol.Request
	log log.Logger

	writeMu sync.Mutex // serializes control connection writes

	mu          sync.Mutex
	control     net.Conn
	ctrl        *protocol.LineReader
	listener    net.Listener
	data        net.Conn
	closed      bool
	interrupted bool
}

// New creates a client for req. The request must be valid, see Request.Validate.
func New(req protocol.Request, cfg Config) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		cfg: cfg,
		req: req,
		log: cfg.Log.New("session", uuid.NewString(), "server", req.ControlAddr()),
	}
}

// Run performs the request. Cancelling ctx has the same effect as Stop(true).
//
// A returned error is one of *ConnectError, *ProtocolError, *IOError or
// ErrInterrupted. Rejections and user cancellation are reported as a Result.
func (c *Client) Run(ctx context.Context) (*Result, error) {
	sessionCounter.Inc(1)
	start := c.cfg.Clock.Now()

	if err := c.connect(ctx); err != nil {
		failedCounter.Inc(1)
		return nil, err
	}
	defer c.Stop(false)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			c.log.Debug("Session context cancelled")
			c.Stop(true)
		case <-done:
		}
	}()

	res, err := c.exchange(ctx)
	if err != nil {
		failedCounter.Inc(1)
		if c.wasInterrupted() {
			return nil, ErrInterrupted
		}
		c.log.Debug("Session failed", "err", err)
		return nil, err
	}
	res.Elapsed = time.Duration(c.cfg.Clock.Now().Sub(start))
	sessionTimer.Update(res.Elapsed)
	c.log.Info("Session finished", "outcome", res.Outcome, "lines", res.Lines, "elapsed", res.Elapsed)
	return res, nil
}

// exchange runs the protocol on an established control connection.
func (c *Client) exchange(ctx context.Context) (*Result, error) {
	accepted, ack, err := c.makeRequest()
	if err != nil {
		return nil, err
	}
	if !accepted {
		rejectedCounter.Inc(1)
		c.log.Debug("Request rejected", "reply", ack)
		return &Result{Outcome: OutcomeRejected, Message: ack}, nil
	}

	data, err := c.openAndAccept(ctx)
	if err != nil {
		return nil, err
	}
	defer c.closeData()

	lr := protocol.NewLineReader(data)
	if c.req.Kind == protocol.Get {
		return c.consumeFileResponse(lr, c.req.Filename)
	}
	return c.consumeListing(lr)
}

// Stop ends the session and closes the control connection. When isSignal is
// true, the server is first asked to cancel the transfer. Stop can be called
// from any goroutine, any number of times. Errors are not reported: they only
// mean that the connection was never opened.
func (c *Client) Stop(isSignal bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if isSignal {
		c.interrupted = true
	}
	control, ln, data := c.control, c.listener, c.data
	c.mu.Unlock()

	if control == nil {
		return
	}
	if isSignal {
		if err := c.writeLine(control, c.cfg.Dialect.Cancel()); err != nil {
			c.log.Debug("Could not send cancel", "err", err)
		} else {
			cancelledCounter.Inc(1)
		}
	}
	if data != nil {
		data.Close()
	}
	if ln != nil {
		ln.Close()
	}
	if err := control.Close(); err != nil {
		c.log.Debug("Control connection close failed", "err", err)
		return
	}
	c.log.Debug("Control connection closed")
}

func (c *Client) wasInterrupted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interrupted
}

// closeData closes the data connection and listener.
func (c *Client) closeData() {
	c.mu.Lock()
	data, ln := c.data, c.listener
	c.data, c.listener = nil, nil
	c.mu.Unlock()

	if data != nil {
		data.Close()
	}
	if ln != nil {
		ln.Close()
	}
	c.log.Trace("Data connection closed")
}
