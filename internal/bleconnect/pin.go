package bleconnect

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// PinSource supplies the numeric passkey used to answer BlueZ's
// pairing agent callbacks. Two implementations exist: one for
// --pin <value> supplied on the command line, one for interactive
// entry with echo suppressed.
type PinSource interface {
	PIN() (string, error)
}

// StaticPinSource wraps a PIN given directly on the command line.
type StaticPinSource struct {
	pin string
}

func NewStaticPinSource(pin string) *StaticPinSource {
	return &StaticPinSource{pin: pin}
}

func (s *StaticPinSource) PIN() (string, error) {
	return s.pin, nil
}

// InteractivePinSource prompts on the given writer and reads from the
// given file descriptor with echo disabled via golang.org/x/term.
// term.IsTerminal gates term.ReadPassword so a non-interactive stdin
// fails fast instead of hanging.
type InteractivePinSource struct {
	in  *os.File
	out io.Writer
}

func NewInteractivePinSource(in *os.File, out io.Writer) *InteractivePinSource {
	return &InteractivePinSource{in: in, out: out}
}

func (s *InteractivePinSource) PIN() (string, error) {
	fd := int(s.in.Fd())
	if !term.IsTerminal(fd) {
		return "", &PairingError{Msg: "no --pin given and stdin is not a terminal; cannot prompt interactively"}
	}
	fmt.Fprint(s.out, "Enter pairing PIN: ")
	pin, err := term.ReadPassword(fd)
	fmt.Fprintln(s.out)
	if err != nil {
		return "", &PairingError{Msg: "failed to read PIN from terminal", Err: err}
	}
	if len(pin) == 0 {
		return "", &PairingError{Msg: "PIN must not be empty"}
	}
	return string(pin), nil
}
