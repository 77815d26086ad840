// Package protocol implements the request encoding and line framing of the
// two-connection transfer protocol.
//
// A client sends one request line on the control connection and reads a single
// acknowledgement line. The response is delivered on a separate data connection,
// which the server opens to a listener on the client side.
package protocol

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Port range accepted for control and data ports.
const (
	MinPort = 1024
	MaxPort = 65535
)

// Kind is the type of a request.
type Kind uint8

const (
	ListShallow Kind = iota + 1
	ListAll
	ListWithSize
	ListRecursive
	Get
)

// commands is the serialization table of request kinds.
var commands = [...]string{
	ListShallow:   "-l",
	ListAll:       "-la",
	ListWithSize:  "-ll",
	ListRecursive: "-lr",
	Get:           "-g",
}

var kindNames = [...]string{
	ListShallow:   "list",
	ListAll:       "list-all",
	ListWithSize:  "list-size",
	ListRecursive: "list-recursive",
	Get:           "get",
}

// Kinds returns all valid request kinds in wire table order.
func Kinds() []Kind {
	return []Kind{ListShallow, ListAll, ListWithSize, ListRecursive, Get}
}

// KindFromCommand returns the kind belonging to a command token.
func KindFromCommand(cmd string) (Kind, bool) {
	for _, k := range Kinds() {
		if commands[k] == cmd {
			return k, true
		}
	}
	return 0, false
}

// Valid reports whether k is one of the defined kinds.
func (k Kind) Valid() bool {
	return k >= ListShallow && k <= Get
}

// IsList reports whether k requests a directory listing.
func (k Kind) IsList() bool {
	return k >= ListShallow && k <= ListRecursive
}

// Command returns the wire token of k. It panics for an undefined kind.
func (k Kind) Command() string {
	if !k.Valid() {
		panic(fmt.Sprintf("protocol: invalid request kind %d", k))
	}
	return commands[k]
}

func (k Kind) String() string {
	if !k.Valid() {
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
	return kindNames[k]
}

// Request is a single client request.
type Request struct {
	Kind        Kind
	Filename    string // set iff Kind == Get
	DataPort    int
	Host        string
	ControlPort int
}

// Encode returns the request line, without the line terminator.
func (r *Request) Encode() string {
	switch {
	case r.Kind == Get:
		return r.Kind.Command() + " " + r.Filename + " " + strconv.Itoa(r.DataPort)
	case r.Kind.IsList():
		return r.Kind.Command() + " " + strconv.Itoa(r.DataPort)
	default:
		panic(fmt.Sprintf("protocol: can't encode request of kind %v", r.Kind))
	}
}

// ControlAddr is the dial address of the server's control endpoint.
func (r *Request) ControlAddr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.ControlPort))
}

// Validation errors.
var (
	ErrNoHost             = errors.New("host name has no alphanumeric characters")
	ErrInvalidKind        = errors.New("invalid request kind")
	ErrPortRange          = fmt.Errorf("port out of range [%d, %d]", MinPort, MaxPort)
	ErrDataPortIsControl  = errors.New("data port is the same as the control port")
	ErrFilenameRequired   = errors.New("file name is required for get requests")
	ErrUnexpectedFilename = errors.New("file name is only allowed for get requests")
	ErrFilenameSpace      = errors.New("file name contains whitespace")
)

// Validate checks the request the way the server would, plus the host.
func (r *Request) Validate() error {
	if !HasValue(r.Host) {
		return ErrNoHost
	}
	if err := CheckPort(r.ControlPort); err != nil {
		return fmt.Errorf("control %w", err)
	}
	if err := CheckPort(r.DataPort); err != nil {
		return fmt.Errorf("data %w", err)
	}
	if r.DataPort == r.ControlPort {
		return ErrDataPortIsControl
	}
	switch {
	case !r.Kind.Valid():
		return ErrInvalidKind
	case r.Kind == Get && !HasValue(r.Filename):
		return ErrFilenameRequired
	case r.Kind == Get && strings.ContainsAny(r.Filename, " \t\r\n"):
		return ErrFilenameSpace
	case r.Kind != Get && r.Filename != "":
		return ErrUnexpectedFilename
	}
	return nil
}

// CheckPort returns ErrPortRange if p is not a usable port.
func CheckPort(p int) error {
	if p < MinPort || p > MaxPort {
		return ErrPortRange
	}
	return nil
}

// HasValue reports whether s contains a word character ([0-9A-Za-z_]).
func HasValue(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '_' || ('0' <= c && c <= '9') || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') {
			return true
		}
	}
	return false
}
