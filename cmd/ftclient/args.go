package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fjl/lineftp/prompt"
	"github.com/fjl/lineftp/protocol"
)

// argParser turns command line arguments into a request. Invalid or missing
// values are asked for interactively until they are valid.
type argParser struct {
	in  prompt.Source
	out io.Writer
}

// parse accepts
//
//	<host> <control-port> <command> <data-port>
//	<host> <control-port> <command> <file> <data-port>
//
// With any other number of arguments, every value is prompted for.
func (p *argParser) parse(args []string) (req protocol.Request, err error) {
	switch len(args) {
	case 4, 5:
		if req.Host, err = p.value(args[0], "Enter a valid host name"); err != nil {
			return req, err
		}
		if req.ControlPort, err = p.controlPort(args[1]); err != nil {
			return req, err
		}
		if req.Kind, err = p.command(args[2]); err != nil {
			return req, err
		}
		var file string
		if len(args) == 5 {
			file = args[3]
		}
		if req.Kind == protocol.Get {
			if req.Filename, err = p.filename(file); err != nil {
				return req, err
			}
		} else if file != "" {
			fmt.Fprintf(p.out, "Ignoring file name %q, %s does not take one.\n", file, req.Kind.Command())
		}
		if req.DataPort, err = p.dataPort(args[len(args)-1], req.ControlPort); err != nil {
			return req, err
		}
		return req, req.Validate()

	default:
		fmt.Fprintln(p.out, "Invalid number of arguments.")
		if req.Host, err = p.value("", "Enter a valid host name"); err != nil {
			return req, err
		}
		if req.ControlPort, err = p.controlPort(""); err != nil {
			return req, err
		}
		if req.Kind, err = p.command(""); err != nil {
			return req, err
		}
		if req.Kind == protocol.Get {
			if req.Filename, err = p.filename(""); err != nil {
				return req, err
			}
		}
		if req.DataPort, err = p.dataPort("", req.ControlPort); err != nil {
			return req, err
		}
		fmt.Fprintln(p.out)
		return req, req.Validate()
	}
}

// value prompts until input has an alphanumeric character.
func (p *argParser) value(input, label string) (string, error) {
	for !protocol.HasValue(input) {
		var err error
		if input, err = p.in.Prompt(label + ": "); err != nil {
			return "", err
		}
	}
	return strings.TrimSpace(input), nil
}

func (p *argParser) filename(input string) (string, error) {
	for {
		name, err := p.value(input, "Enter a valid file name")
		if err != nil {
			return "", err
		}
		if !strings.ContainsAny(name, " \t") {
			return name, nil
		}
		input = ""
	}
}

func (p *argParser) controlPort(input string) (int, error) {
	label := fmt.Sprintf("Enter a valid FTP control port (%d - %d): ", protocol.MinPort, protocol.MaxPort)
	for {
		port, err := strconv.Atoi(strings.TrimSpace(input))
		if err == nil && protocol.CheckPort(port) == nil {
			return port, nil
		}
		if input, err = p.in.Prompt(label); err != nil {
			return 0, err
		}
	}
}

func (p *argParser) dataPort(input string, controlPort int) (int, error) {
	label := fmt.Sprintf("Enter a valid FTP data port [%d - %d]: ", protocol.MinPort, protocol.MaxPort)
	for {
		port, err := strconv.Atoi(strings.TrimSpace(input))
		if err == nil && port == controlPort {
			fmt.Fprintln(p.out, "That port is already being used as the control port.")
		} else if err == nil && protocol.CheckPort(port) == nil {
			return port, nil
		}
		if input, err = p.in.Prompt(label); err != nil {
			return 0, err
		}
	}
}

func (p *argParser) command(input string) (protocol.Kind, error) {
	var cmds []string
	for _, k := range protocol.Kinds() {
		cmds = append(cmds, k.Command())
	}
	last := len(cmds) - 1
	label := fmt.Sprintf("Enter a valid FTP command [%s, or %s]: ", strings.Join(cmds[:last], ", "), cmds[last])
	for {
		if kind, ok := protocol.KindFromCommand(strings.TrimSpace(input)); ok {
			return kind, nil
		}
		var err error
		if input, err = p.in.Prompt(label); err != nil {
			return 0, err
		}
	}
}
