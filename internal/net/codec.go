package net

import (
	"bufio"
	"errors"
	"io"

	"github.com/duskmud/server/internal/mud"
)

// MaxLineLen caps one inbound line. Anything longer is a protocol error
// and disconnects the client.
const MaxLineLen = 4096

// Telnet protocol bytes. The server negotiates nothing; inbound option
// traffic from telnet clients is stripped so it never reaches commands.
const (
	telnetSE   = 240
	telnetSB   = 250
	telnetWill = 251
	telnetDont = 254
	telnetIAC  = 255
)

// LineReader reads \n-terminated UTF-8 lines, tolerating \r\n and stray
// \r, and discarding Telnet IAC sequences.
type LineReader struct {
	r *bufio.Reader
}

func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{r: bufio.NewReaderSize(r, MaxLineLen)}
}

// ReadLine returns the next line without its terminator. A final
// unterminated line before EOF is returned once; the next call reports
// io.EOF.
func (lr *LineReader) ReadLine() (string, error) {
	var buf []byte
	for {
		b, err := lr.r.ReadByte()
		if err != nil {
			if len(buf) > 0 && errors.Is(err, io.EOF) {
				return string(buf), nil
			}
			return "", err
		}
		switch {
		case b == '\n':
			return string(buf), nil
		case b == '\r':
			// swallowed; \r\n and bare \r both terminate on the \n side
		case b == telnetIAC:
			if err := lr.skipTelnet(); err != nil {
				return "", err
			}
		default:
			buf = append(buf, b)
			if len(buf) > MaxLineLen {
				return "", mud.E(mud.Input, "line_too_long", "line exceeds %d bytes", MaxLineLen)
			}
		}
	}
}

// skipTelnet consumes the rest of an IAC sequence: a lone command byte,
// a 3-byte option negotiation, or a subnegotiation up to IAC SE. An
// escaped IAC (IAC IAC) would be a literal 0xFF data byte, which cannot
// appear in UTF-8 text, so it is dropped too.
func (lr *LineReader) skipTelnet() error {
	cmd, err := lr.r.ReadByte()
	if err != nil {
		return err
	}
	switch {
	case cmd >= telnetWill && cmd <= telnetDont:
		_, err := lr.r.ReadByte()
		return err
	case cmd == telnetSB:
		for {
			b, err := lr.r.ReadByte()
			if err != nil {
				return err
			}
			if b != telnetIAC {
				continue
			}
			next, err := lr.r.ReadByte()
			if err != nil {
				return err
			}
			if next == telnetSE {
				return nil
			}
		}
	default:
		return nil
	}
}

// WriteLine writes one message line with its \n terminator.
func WriteLine(w io.Writer, line string) error {
	if _, err := io.WriteString(w, line); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}
