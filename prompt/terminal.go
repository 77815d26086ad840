package prompt

import (
	"sync"

	"github.com/peterh/liner"
)

// Terminal is an interactive Source backed by liner. The terminal is only put
// into raw mode while a prompt is active. Ctrl-C aborts the prompt with
// ErrAborted.
type Terminal struct {
	mu    sync.Mutex
	state *liner.State
}

// NewTerminal creates a terminal source.
func NewTerminal() *Terminal {
	return &Terminal{}
}

func (t *Terminal) Prompt(p string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == nil {
		t.state = liner.NewLiner()
		t.state.SetCtrlCAborts(true)
	}
	line, err := t.state.Prompt(p)
	if err == liner.ErrPromptAborted {
		return "", ErrAborted
	}
	return line, err
}

// Close restores the terminal.
func (t *Terminal) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == nil {
		return nil
	}
	err := t.state.Close()
	t.state = nil
	return err
}
