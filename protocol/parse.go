package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// RequestError is returned by ParseRequest. Its message is what the server sends
// back on the control connection in place of the accept sentinel.
type RequestError struct {
	Reason string
}

func (e *RequestError) Error() string {
	return "Error: " + e.Reason
}

func requestErrorf(format string, args ...interface{}) *RequestError {
	return &RequestError{Reason: fmt.Sprintf(format, args...)}
}

// ParseRequest decodes a request line received on a control connection whose
// local port is controlPort. The returned request has no Host or ControlPort set.
func ParseRequest(line string, controlPort int) (Request, error) {
	var req Request
	if !HasValue(line) {
		return req, requestErrorf("The FTP request does not appear to have any valid arguments.")
	}
	parts := strings.Fields(line)
	switch {
	case len(parts) < 2:
		return req, requestErrorf("Too few FTP request arguments were provided.")
	case len(parts) > 3:
		return req, requestErrorf("Too many FTP request arguments were provided.")
	}

	kind, ok := KindFromCommand(parts[0])
	if !ok {
		return req, requestErrorf("An invalid command was provided. Please use %s.", commandList())
	}
	if (kind == Get) != (len(parts) == 3) {
		return req, requestErrorf("Command mismatch: %d arguments were provided with a command of %s.", len(parts), parts[0])
	}
	req.Kind = kind

	port, err := strconv.Atoi(parts[len(parts)-1])
	switch {
	case err != nil:
		return req, requestErrorf("Non-numeric data port argument. Please provide a numeric port in the range: %d..%d", MinPort, MaxPort)
	case CheckPort(port) != nil:
		return req, requestErrorf("Invalid data port argument. Please provide a numeric port in the range: %d..%d", MinPort, MaxPort)
	case port == controlPort:
		return req, requestErrorf("Invalid data port argument. The data port should not be the same as the command port.")
	}
	req.DataPort = port

	if kind == Get {
		if !HasValue(parts[1]) {
			return req, requestErrorf("No file name was provided. Please provide one")
		}
		req.Filename = parts[1]
	}
	return req, nil
}

func commandList() string {
	var b strings.Builder
	kinds := Kinds()
	for i, k := range kinds {
		switch {
		case i == len(kinds)-1:
			b.WriteString(", or ")
		case i > 0:
			b.WriteString(", ")
		}
		b.WriteString(strconv.Quote(k.Command()))
	}
	return b.String()
}
