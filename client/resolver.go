package client

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fjl/lineftp/prompt"
	"github.com/fjl/lineftp/protocol"
)

// Action is what to do with a received file.
type Action int

const (
	Overwrite Action = iota
	Rename
	Cancel
)

func (a Action) String() string {
	switch a {
	case Overwrite:
		return "overwrite"
	case Rename:
		return "rename"
	case Cancel:
		return "cancel"
	default:
		return "Action(" + strconv.Itoa(int(a)) + ")"
	}
}

// Decision is the outcome of Resolve. Name is relative to the save directory
// and empty for Cancel.
type Decision struct {
	Action Action
	Name   string
}

// Resolver chooses the local name of a received file. When a file of the same
// name exists, the user is asked to overwrite it, choose another name or cancel.
type Resolver struct {
	Dir   string        // save directory, "." if empty
	Input prompt.Source // answers; only consulted on collision
	Out   io.Writer     // collision notice, may be nil
}

// Prompts shown by the resolver.
const (
	choicePrompt  = "Enter a number [1 - 3]: "
	retryPrompt   = "Please select a valid option [1 - 3]: "
	newNamePrompt = "Please enter a valid file name: "
)

// BaseName reduces a requested file name to its final path component.
func BaseName(name string) string {
	return filepath.Base(filepath.FromSlash(name))
}

// Resolve decides where to save the file requested as name. It blocks until
// the user has answered.
func (r *Resolver) Resolve(name string) (Decision, error) {
	name = BaseName(name)
	dir := r.Dir
	if dir == "" {
		dir = "."
	}
	if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
		return Decision{Action: Overwrite, Name: name}, nil
	}
	if r.Input == nil {
		return Decision{}, errNoInput
	}

	if r.Out != nil {
		fmt.Fprintf(r.Out, "The file %q already exists in the directory.\n\n"+
			"What would you like to do?\n"+
			"1) Overwrite the existing file.\n"+
			"2) Change the name of the received file.\n"+
			"3) Cancel saving the received file.\n\n", name)
	}
	choice, err := r.readChoice()
	if err != nil {
		return Decision{}, err
	}
	switch choice {
	case 1:
		return Decision{Action: Overwrite, Name: name}, nil
	case 2:
		newName, err := r.readName()
		if err != nil {
			return Decision{}, err
		}
		return Decision{Action: Rename, Name: newName}, nil
	default:
		return Decision{Action: Cancel}, nil
	}
}

// readChoice prompts until a number in [1, 3] is entered.
func (r *Resolver) readChoice() (int, error) {
	p := choicePrompt
	for {
		input, err := r.Input.Prompt(p)
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(strings.TrimSpace(input))
		if err == nil && n >= 1 && n <= 3 {
			return n, nil
		}
		p = retryPrompt
	}
}

// readName prompts until the answer contains an alphanumeric character.
func (r *Resolver) readName() (string, error) {
	for {
		input, err := r.Input.Prompt(newNamePrompt)
		if err != nil {
			return "", err
		}
		if protocol.HasValue(input) {
			return strings.TrimSpace(input), nil
		}
	}
}
