package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"testing/fstest"
	"time"

	"github.com/ethereum/go-ethereum/common/mclock"
	"github.com/fjl/lineftp/ftptest"
	"github.com/fjl/lineftp/prompt"
	"github.com/fjl/lineftp/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type testEnv struct {
	srv *ftptest.Server
	cfg Config
	out *bytes.Buffer
}

func newTestEnv(t *testing.T, dialect protocol.Dialect, h ftptest.Handler) *testEnv {
	srv, err := ftptest.NewServer(dialect, h)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	out := new(bytes.Buffer)
	cfg := Config{
		Dialect:    dialect,
		ListenHost: "127.0.0.1",
		SaveDir:    t.TempDir(),
		Output:     out,
	}
	return &testEnv{srv: srv, cfg: cfg, out: out}
}

func (env *testEnv) request(t *testing.T, kind protocol.Kind, filename string) protocol.Request {
	return protocol.Request{
		Kind:        kind,
		Filename:    filename,
		DataPort:    ftptest.FreePort(t),
		Host:        "127.0.0.1",
		ControlPort: env.srv.Port(),
	}
}

// run executes req and waits for the server handler to finish.
func (env *testEnv) run(t *testing.T, req protocol.Request) (*Result, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := New(req, env.cfg).Run(ctx)
	env.srv.Close()
	return res, err
}

// startResponse runs the server side up to the opened data connection.
func startResponse(ex *ftptest.Exchange) (protocol.Request, error) {
	req, line, err := ex.ReadRequest()
	if err != nil {
		return req, fmt.Errorf("bad request %q: %v", line, err)
	}
	if err := ex.Accept(); err != nil {
		return req, err
	}
	if err := ex.AwaitReady(); err != nil {
		return req, err
	}
	return req, ex.DialData(req.DataPort)
}

func count(list []string, item string) (n int) {
	for _, s := range list {
		if s == item {
			n++
		}
	}
	return n
}

func TestListing(t *testing.T) {
	env := newTestEnv(t, protocol.Plain, func(ex *ftptest.Exchange) error {
		if _, err := startResponse(ex); err != nil {
			return err
		}
		if err := ex.Send("a.txt", "", "dir"); err != nil {
			return err
		}
		return ex.SendDone()
	})
	req := env.request(t, protocol.ListAll, "")

	res, err := env.run(t, req)
	require.NoError(t, err)
	require.NoError(t, env.srv.Err())
	assert.Equal(t, OutcomeListed, res.Outcome)
	assert.Equal(t, 3, res.Lines)
	assert.Equal(t, "a.txt\n\ndir\n", env.out.String())

	// The server dials without retrying right after reading ready, so a
	// successful dial means the listener was bound before ready was sent.
	want := []string{
		"control: -la " + strconv.Itoa(req.DataPort),
		"reply: good",
		"control: ready",
		"dial",
	}
	assert.Equal(t, want, env.srv.Events())
}

func TestListingMissingDone(t *testing.T) {
	env := newTestEnv(t, protocol.Plain, func(ex *ftptest.Exchange) error {
		if _, err := startResponse(ex); err != nil {
			return err
		}
		if err := ex.Send("a", "b"); err != nil {
			return err
		}
		return ex.CloseData()
	})

	res, err := env.run(t, env.request(t, protocol.ListShallow, ""))
	assert.Nil(t, res)
	assert.True(t, IsProtocolError(err), "wrong error: %v", err)
	assert.ErrorIs(t, err, protocol.ErrMissingSentinel)
	assert.Equal(t, "a\nb\n", env.out.String())
}

func TestRejected(t *testing.T) {
	var afterReject []string
	env := newTestEnv(t, protocol.Plain, func(ex *ftptest.Exchange) error {
		if _, err := ex.ReadControl(); err != nil {
			return err
		}
		if err := ex.Reply("Error: Too many FTP request arguments were provided."); err != nil {
			return err
		}
		afterReject = ex.WaitClosed()
		return nil
	})

	res, err := env.run(t, env.request(t, protocol.ListRecursive, ""))
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Equal(t, "Error: Too many FTP request arguments were provided.", res.Message)
	assert.Empty(t, afterReject, "client sent lines after rejection")
	assert.NotContains(t, env.srv.Events(), "dial")
}

func TestAcknowledgementMissing(t *testing.T) {
	env := newTestEnv(t, protocol.Plain, func(ex *ftptest.Exchange) error {
		_, err := ex.ReadControl()
		return err
	})

	_, err := env.run(t, env.request(t, protocol.ListShallow, ""))
	assert.True(t, IsIOError(err), "wrong error: %v", err)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestGetServerError(t *testing.T) {
	var afterDone []string
	env := newTestEnv(t, protocol.Plain, func(ex *ftptest.Exchange) error {
		if _, err := startResponse(ex); err != nil {
			return err
		}
		if err := ex.Send("bad", "err1", "done"); err != nil {
			return err
		}
		afterDone = ex.WaitClosed()
		return nil
	})

	res, err := env.run(t, env.request(t, protocol.Get, "missing.txt"))
	require.NoError(t, err)
	require.NoError(t, env.srv.Err())
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, "err1\n", env.out.String())
	assert.Empty(t, afterDone, "no cancel or ready expected")
	assert.NoFileExists(t, filepath.Join(env.cfg.SaveDir, "missing.txt"))
}

func TestGetFirstLineIsContent(t *testing.T) {
	env := newTestEnv(t, protocol.Plain, func(ex *ftptest.Exchange) error {
		if _, err := startResponse(ex); err != nil {
			return err
		}
		if err := ex.Send("hello"); err != nil {
			return err
		}
		if err := ex.AwaitReady(); err != nil {
			return err
		}
		if err := ex.Send("world"); err != nil {
			return err
		}
		return ex.SendDone()
	})

	res, err := env.run(t, env.request(t, protocol.Get, "remote/dir/hello.txt"))
	require.NoError(t, err)
	require.NoError(t, env.srv.Err())

	path := filepath.Join(env.cfg.SaveDir, "hello.txt")
	assert.Equal(t, OutcomeSaved, res.Outcome)
	assert.Equal(t, path, res.SavedAs)
	assert.Equal(t, 2, res.Lines)
	assert.EqualValues(t, len("hello\nworld\n"), res.Bytes)
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello\nworld\n", string(content))
}

func TestGetPlainGoodLineIsContent(t *testing.T) {
	env := newTestEnv(t, protocol.Plain, func(ex *ftptest.Exchange) error {
		if _, err := startResponse(ex); err != nil {
			return err
		}
		if err := ex.Send("good"); err != nil {
			return err
		}
		if err := ex.AwaitReady(); err != nil {
			return err
		}
		if err := ex.Send("news"); err != nil {
			return err
		}
		return ex.SendDone()
	})

	res, err := env.run(t, env.request(t, protocol.Get, "bulletin.txt"))
	require.NoError(t, err)
	require.NoError(t, env.srv.Err())
	assert.Equal(t, OutcomeSaved, res.Outcome)
	assert.Equal(t, 2, res.Lines)
	content, err := os.ReadFile(res.SavedAs)
	require.NoError(t, err)
	assert.Equal(t, "good\nnews\n", string(content))
}

func TestGetLeadingGoodMarker(t *testing.T) {
	env := newTestEnv(t, protocol.Backslash, func(ex *ftptest.Exchange) error {
		if _, err := startResponse(ex); err != nil {
			return err
		}
		if err := ex.Send(`\good`); err != nil {
			return err
		}
		if err := ex.AwaitReady(); err != nil {
			return err
		}
		if err := ex.Send("good", "news"); err != nil {
			return err
		}
		return ex.SendDone()
	})

	res, err := env.run(t, env.request(t, protocol.Get, "bulletin.txt"))
	require.NoError(t, err)
	require.NoError(t, env.srv.Err())
	assert.Equal(t, 2, res.Lines)
	content, err := os.ReadFile(res.SavedAs)
	require.NoError(t, err)
	assert.Equal(t, "good\nnews\n", string(content))
}

func TestGetServeFSEmptyFile(t *testing.T) {
	fsys := fstest.MapFS{"empty.txt": {Data: nil}}
	for _, dialect := range []protocol.Dialect{protocol.Plain, protocol.Backslash} {
		t.Run(fmt.Sprintf("prefix=%q", dialect.Prefix), func(t *testing.T) {
			env := newTestEnv(t, dialect, ftptest.ServeFS(fsys))

			res, err := env.run(t, env.request(t, protocol.Get, "empty.txt"))
			require.NoError(t, err)
			require.NoError(t, env.srv.Err())
			assert.Equal(t, OutcomeSaved, res.Outcome)
			assert.Zero(t, res.Lines)

			content, err := os.ReadFile(filepath.Join(env.cfg.SaveDir, "empty.txt"))
			require.NoError(t, err)
			assert.Empty(t, content)
		})
	}
}

func TestGetCollisionCancel(t *testing.T) {
	var afterCancel []string
	env := newTestEnv(t, protocol.Plain, func(ex *ftptest.Exchange) error {
		if _, err := startResponse(ex); err != nil {
			return err
		}
		if err := ex.Send("hello"); err != nil {
			return err
		}
		line, err := ex.ReadControl()
		if err != nil {
			return err
		}
		if line != "cancel" {
			return fmt.Errorf("expected cancel, got %q", line)
		}
		afterCancel = ex.WaitClosed()
		return nil
	})
	input := prompt.NewScripted("3")
	env.cfg.Input = input
	path := filepath.Join(env.cfg.SaveDir, "report.txt")
	require.NoError(t, os.WriteFile(path, []byte("keep me\n"), 0644))

	res, err := env.run(t, env.request(t, protocol.Get, "report.txt"))
	require.NoError(t, err)
	require.NoError(t, env.srv.Err())
	assert.Equal(t, OutcomeCancelled, res.Outcome)
	assert.Empty(t, afterCancel)
	assert.Equal(t, 1, count(env.srv.Events(), "control: ready"), "ready sent after cancel decision")

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "keep me\n", string(content))
}

func TestGetServeFS(t *testing.T) {
	fsys := fstest.MapFS{
		"notes/report.txt": {Data: []byte("line one\n\nline three\n")},
	}
	for _, dialect := range []protocol.Dialect{protocol.Plain, protocol.Backslash} {
		t.Run(fmt.Sprintf("prefix=%q", dialect.Prefix), func(t *testing.T) {
			env := newTestEnv(t, dialect, ftptest.ServeFS(fsys))

			res, err := env.run(t, env.request(t, protocol.Get, "notes/report.txt"))
			require.NoError(t, err)
			require.NoError(t, env.srv.Err())
			assert.Equal(t, OutcomeSaved, res.Outcome)
			assert.Equal(t, 3, res.Lines)

			content, err := os.ReadFile(filepath.Join(env.cfg.SaveDir, "report.txt"))
			require.NoError(t, err)
			assert.Equal(t, "line one\n\nline three\n", string(content))
		})
	}
}

func TestGetServeFSRename(t *testing.T) {
	fsys := fstest.MapFS{"report.txt": {Data: []byte("new\n")}}
	env := newTestEnv(t, protocol.Backslash, ftptest.ServeFS(fsys))
	env.cfg.Input = prompt.NewScripted("2", "", "report2.txt")
	existing := filepath.Join(env.cfg.SaveDir, "report.txt")
	require.NoError(t, os.WriteFile(existing, []byte("old\n"), 0644))

	res, err := env.run(t, env.request(t, protocol.Get, "report.txt"))
	require.NoError(t, err)
	require.NoError(t, env.srv.Err())
	assert.Equal(t, filepath.Join(env.cfg.SaveDir, "report2.txt"), res.SavedAs)

	content, err := os.ReadFile(res.SavedAs)
	require.NoError(t, err)
	assert.Equal(t, "new\n", string(content))
	content, err = os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "old\n", string(content))
}

func TestGetServeFSNotFound(t *testing.T) {
	env := newTestEnv(t, protocol.Plain, ftptest.ServeFS(fstest.MapFS{}))

	res, err := env.run(t, env.request(t, protocol.Get, "nope.txt"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, "Response: Error - \"nope.txt\" not found\n", env.out.String())
}

func TestGetEmptyResponse(t *testing.T) {
	env := newTestEnv(t, protocol.Plain, func(ex *ftptest.Exchange) error {
		if _, err := startResponse(ex); err != nil {
			return err
		}
		if err := ex.SendDone(); err != nil {
			return err
		}
		return ex.AwaitReady()
	})

	res, err := env.run(t, env.request(t, protocol.Get, "empty.txt"))
	require.NoError(t, err)
	require.NoError(t, env.srv.Err())
	assert.Equal(t, OutcomeSaved, res.Outcome)
	assert.EqualValues(t, 0, res.Bytes)
	info, err := os.Stat(res.SavedAs)
	require.NoError(t, err)
	assert.EqualValues(t, 0, info.Size())
}

func TestGetCreateFails(t *testing.T) {
	env := newTestEnv(t, protocol.Plain, func(ex *ftptest.Exchange) error {
		if _, err := startResponse(ex); err != nil {
			return err
		}
		if err := ex.Send("hello"); err != nil {
			return err
		}
		ex.WaitClosed()
		return nil
	})
	env.cfg.SaveDir = filepath.Join(t.TempDir(), "does-not-exist")

	_, err := env.run(t, env.request(t, protocol.Get, "hello.txt"))
	assert.True(t, IsIOError(err), "wrong error: %v", err)
	assert.Equal(t, 1, count(env.srv.Events(), "control: ready"))
}

func TestGetIncompleteFileKept(t *testing.T) {
	env := newTestEnv(t, protocol.Plain, func(ex *ftptest.Exchange) error {
		if _, err := startResponse(ex); err != nil {
			return err
		}
		if err := ex.Send("good"); err != nil {
			return err
		}
		if err := ex.AwaitReady(); err != nil {
			return err
		}
		if err := ex.Send("partial"); err != nil {
			return err
		}
		return ex.CloseData()
	})

	_, err := env.run(t, env.request(t, protocol.Get, "big.txt"))
	assert.True(t, IsProtocolError(err), "wrong error: %v", err)
	content, err := os.ReadFile(filepath.Join(env.cfg.SaveDir, "big.txt"))
	require.NoError(t, err)
	assert.Equal(t, "partial\n", string(content))
}

func TestInterrupt(t *testing.T) {
	var (
		dialed      = make(chan struct{})
		cancelLine  string
		errNoCancel = errors.New("handler: no cancel")
	)
	env := newTestEnv(t, protocol.Plain, func(ex *ftptest.Exchange) error {
		_, err := startResponse(ex)
		close(dialed)
		if err != nil {
			return err
		}
		if err := ex.Send("first"); err != nil {
			return err
		}
		line, err := ex.ReadControl()
		if err != nil {
			return errNoCancel
		}
		cancelLine = line
		return nil
	})
	req := env.request(t, protocol.ListRecursive, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var (
		g      errgroup.Group
		c      = New(req, env.cfg)
		runErr error
	)
	g.Go(func() error {
		_, runErr = c.Run(ctx)
		return nil
	})
	<-dialed
	cancel()
	g.Wait()
	env.srv.Close()

	assert.ErrorIs(t, runErr, ErrInterrupted)
	assert.NoError(t, env.srv.Err())
	assert.Equal(t, "cancel", cancelLine)
	c.Stop(true) // no-op after the session ended
}

func TestStopBeforeRun(t *testing.T) {
	env := newTestEnv(t, protocol.Plain, func(ex *ftptest.Exchange) error {
		ex.WaitClosed()
		return nil
	})
	c := New(env.request(t, protocol.ListShallow, ""), env.cfg)
	c.Stop(false)
	c.Stop(true)

	_, err := c.Run(context.Background())
	assert.ErrorIs(t, err, ErrInterrupted)
}

func TestConnectError(t *testing.T) {
	req := protocol.Request{
		Kind:        protocol.ListShallow,
		DataPort:    ftptest.FreePort(t),
		Host:        "127.0.0.1",
		ControlPort: ftptest.FreePort(t),
	}
	_, err := New(req, Config{DialTimeout: time.Second}).Run(context.Background())
	assert.True(t, IsConnectError(err), "wrong error: %v", err)
}

func TestElapsed(t *testing.T) {
	clock := new(mclock.Simulated)
	env := newTestEnv(t, protocol.Plain, func(ex *ftptest.Exchange) error {
		if _, err := startResponse(ex); err != nil {
			return err
		}
		clock.Run(3 * time.Second)
		return ex.SendDone()
	})
	env.cfg.Clock = clock

	res, err := env.run(t, env.request(t, protocol.ListShallow, ""))
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, res.Elapsed)
	assert.Equal(t, 0, res.Lines)
}
