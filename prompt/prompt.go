// Package prompt provides line-oriented user input sources.
package prompt

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

// ErrAborted is returned when the user interrupts a prompt.
var ErrAborted = errors.New("prompt aborted")

// Source produces one line of user input per call. Implementations return
// io.EOF when no more input will arrive.
type Source interface {
	Prompt(prompt string) (string, error)
}

// Scripted is a Source that replays fixed answers.
// It is safe for concurrent use.
type Scripted struct {
	mu      sync.Mutex
	answers []string
	prompts []string
}

// NewScripted creates a source returning answers in order.
func NewScripted(answers ...string) *Scripted {
	return &Scripted{answers: answers}
}

func (s *Scripted) Prompt(p string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prompts = append(s.prompts, p)
	if len(s.answers) == 0 {
		return "", io.EOF
	}
	a := s.answers[0]
	s.answers = s.answers[1:]
	return a, nil
}

// Prompts returns the prompts shown so far.
func (s *Scripted) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}

// Remaining returns the number of unused answers.
func (s *Scripted) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.answers)
}

// Reader is a Source reading from a stream. Prompts are written to out.
type Reader struct {
	in  *bufio.Reader
	out io.Writer
}

// NewReader creates a source on in. out may be nil.
func NewReader(in io.Reader, out io.Writer) *Reader {
	if out == nil {
		out = io.Discard
	}
	return &Reader{in: bufio.NewReader(in), out: out}
}

func (r *Reader) Prompt(p string) (string, error) {
	if p != "" {
		io.WriteString(r.out, p)
	}
	line, err := r.in.ReadString('\n')
	if err == io.EOF && line != "" {
		err = nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Stdio returns a terminal source when standard input and output are
// terminals, and a plain reader on os.Stdin otherwise. The returned function
// releases the terminal.
func Stdio() (Source, func()) {
	if isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stdout.Fd()) {
		t := NewTerminal()
		return t, func() { t.Close() }
	}
	return NewReader(os.Stdin, os.Stdout), func() {}
}
