package ftptest

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/fjl/lineftp/protocol"
)

// ServeFS answers requests from the given file system, the way the reference
// server does. Successful get responses start with the good sentinel when the
// dialect uses it, and with the first line of the file otherwise.
func ServeFS(fsys fs.FS) Handler {
	return func(ex *Exchange) error {
		return serveFS(fsys, ex)
	}
}

func serveFS(fsys fs.FS, ex *Exchange) error {
	req, _, err := ex.ReadRequest()
	if err != nil {
		var reqErr *protocol.RequestError
		if errors.As(err, &reqErr) {
			return ex.Reply(reqErr.Error())
		}
		return err
	}
	if err := ex.Accept(); err != nil {
		return err
	}
	if err := ex.AwaitReady(); err != nil {
		return err
	}
	if err := ex.DialData(req.DataPort); err != nil {
		return err
	}
	defer ex.CloseData()

	if req.Kind == protocol.Get {
		return sendFile(fsys, ex, req.Filename)
	}
	items, err := listItems(fsys, req.Kind)
	if err != nil {
		return err
	}
	if err := ex.Send(items...); err != nil {
		return err
	}
	return ex.SendDone()
}

func sendFile(fsys fs.FS, ex *Exchange, filename string) error {
	name := path.Clean(strings.TrimPrefix(filename, "./"))
	content, err := fs.ReadFile(fsys, name)
	if err != nil || !fs.ValidPath(name) {
		if err := ex.Send(ex.Dialect.Bad(), fmt.Sprintf("Response: Error - %q not found", filename)); err != nil {
			return err
		}
		return ex.SendDone()
	}

	lines := fileLines(string(content))
	var first string
	switch {
	case ex.Dialect.LeadingGood:
		first = ex.Dialect.Good()
	case len(lines) == 0:
		first = ex.Dialect.Done()
	default:
		first, lines = lines[0], lines[1:]
	}
	if err := ex.Send(first); err != nil {
		return err
	}
	// Wait for the client to be ready, or to cancel.
	line, err := ex.ReadControl()
	if err != nil {
		return err
	}
	if first == ex.Dialect.Done() {
		return nil
	}
	if line != ex.Dialect.Cancel() {
		if err := ex.Send(lines...); err != nil {
			return err
		}
	}
	return ex.SendDone()
}

// fileLines splits content into lines. A trailing line feed does not start a
// new line.
func fileLines(content string) []string {
	if content == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(content, "\n"), "\n")
}

func listItems(fsys fs.FS, kind protocol.Kind) ([]string, error) {
	if kind == protocol.ListRecursive {
		var items []string
		err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
			if err != nil || p == "." {
				return err
			}
			items = append(items, "./"+p)
			return nil
		})
		return items, err
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}
	var items []string
	for _, e := range entries {
		hidden := strings.HasPrefix(e.Name(), ".")
		switch kind {
		case protocol.ListShallow:
			if !hidden {
				items = append(items, e.Name())
			}
		case protocol.ListAll:
			items = append(items, e.Name())
		case protocol.ListWithSize:
			info, err := e.Info()
			if err != nil {
				return nil, err
			}
			items = append(items, fmt.Sprintf("%-40s%d", e.Name(), info.Size()))
		}
	}
	return items, nil
}
