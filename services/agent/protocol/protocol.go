// Package protocol reassembles the serial command stream into lines and
// recognises the agent's commands.
//
// Input is newline-delimited ASCII; each line is trimmed before matching and
// matching is case-sensitive:
//
//	Restart Device                    | restartDevice
//	Interval Configuration : <secs>   | SET_INTERVAL:<secs>
//
// Parsing never fails: malformed input becomes a KindInvalid Command whose
// Reason selects the reply.
package protocol

import (
	"bytes"
	"strconv"
	"strings"

	"sensoragent-go/services/config"
)

// Assembler accumulates raw bytes and yields complete lines. Not safe for
// concurrent use; the goroutine that reads the port owns it.
type Assembler struct {
	buf []byte
}

// Feed appends chunk and returns every line completed by it, without the
// newline. Bytes after the last newline stay buffered.
func (a *Assembler) Feed(chunk []byte) []string {
	a.buf = append(a.buf, chunk...)
	i := bytes.LastIndexByte(a.buf, '\n')
	if i < 0 {
		return nil
	}
	lines := strings.Split(string(a.buf[:i]), "\n")
	rest := copy(a.buf, a.buf[i+1:])
	a.buf = a.buf[:rest]
	return lines
}

// Pending returns the buffered partial line.
func (a *Assembler) Pending() string { return string(a.buf) }

// Reset drops the partial line.
func (a *Assembler) Reset() { a.buf = a.buf[:0] }

type Kind uint8

const (
	KindEmpty Kind = iota
	KindRestart
	KindSetInterval
	KindInvalid // recognised command with a bad argument; Reply explains
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindRestart:
		return "restart"
	case KindSetInterval:
		return "set-interval"
	case KindInvalid:
		return "invalid"
	case KindUnknown:
		return "unknown"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Reason says why a recognised command was rejected.
type Reason uint8

const (
	ReasonNone     Reason = iota
	ReasonFormat          // separator missing or misplaced
	ReasonNumber          // value is not a decimal integer the agent can hold
	ReasonInterval        // value is not positive
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonFormat:
		return "format"
	case ReasonNumber:
		return "number"
	case ReasonInterval:
		return "interval"
	}
	return "reason(" + strconv.Itoa(int(r)) + ")"
}

// Command is one parsed line.
type Command struct {
	Kind     Kind
	Line     string // trimmed input
	Interval int    // seconds, for KindSetInterval
	Reason   Reason // for KindInvalid
}

// Command keywords.
const (
	CmdRestart        = "Restart Device"
	CmdRestartAlt     = "restartDevice"
	CmdIntervalPrefix = "Interval Configuration :"
	CmdIntervalAlt    = "SET_INTERVAL:"
	cmdIntervalWord   = "Interval Configuration"
)

// Parse recognises one line.
func Parse(line string) Command {
	line = strings.TrimSpace(line)
	c := Command{Line: line}

	switch {
	case line == "":
		c.Kind = KindEmpty
	case line == CmdRestart || line == CmdRestartAlt:
		c.Kind = KindRestart
	case strings.HasPrefix(line, CmdIntervalPrefix), strings.HasPrefix(line, CmdIntervalAlt):
		parseInterval(&c)
	case strings.HasPrefix(line, cmdIntervalWord):
		// "Interval Configuration" with the separator missing or misplaced.
		c.Kind, c.Reason = KindInvalid, ReasonFormat
	default:
		c.Kind = KindUnknown
	}
	return c
}

// parseInterval reads the value of either interval form. The long form
// takes the field between the first and second colon, so anything after a
// second colon is ignored; the short form takes everything after its
// colon.
func parseInterval(c *Command) {
	var arg string
	if strings.HasPrefix(c.Line, CmdIntervalAlt) {
		arg = c.Line[len(CmdIntervalAlt):]
	} else {
		arg = strings.SplitN(c.Line, ":", 3)[1]
	}
	n, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	switch {
	case err != nil, n > config.MaxIntervalS:
		c.Kind, c.Reason = KindInvalid, ReasonNumber
	case n <= 0:
		c.Kind, c.Reason = KindInvalid, ReasonInterval
	default:
		c.Kind, c.Interval = KindSetInterval, int(n)
	}
}
