package protocol

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// ErrMissingSentinel is returned by ReadUntil when the stream ends before the
// terminating sentinel line was seen.
var ErrMissingSentinel = errors.New("stream ended before end-of-response sentinel")

// LineReader reads newline-terminated lines from a stream.
type LineReader struct {
	r *bufio.Reader
}

// NewLineReader creates a reader on r.
func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{r: bufio.NewReader(r)}
}

// ReadLine returns the next line without its "\n" or "\r\n" terminator.
// A final line that lacks a terminator is returned as is. io.EOF is returned
// only when no data remains.
func (lr *LineReader) ReadLine() (string, error) {
	line, err := lr.r.ReadString('\n')
	if err == io.EOF && line != "" {
		err = nil
	}
	if err != nil {
		return "", err
	}
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return line, nil
}

// ReadUntil calls fn for every line until a line equal to sentinel is read.
// The sentinel itself is consumed. It returns the number of lines passed to fn.
func (lr *LineReader) ReadUntil(sentinel string, fn func(line string) error) (int, error) {
	var n int
	for {
		line, err := lr.ReadLine()
		if err == io.EOF {
			return n, ErrMissingSentinel
		} else if err != nil {
			return n, err
		}
		if line == sentinel {
			return n, nil
		}
		if err := fn(line); err != nil {
			return n, err
		}
		n++
	}
}

// WriteLine writes s followed by a line feed in a single call to w.
func WriteLine(w io.Writer, s string) error {
	_, err := io.WriteString(w, s+"\n")
	return err
}
