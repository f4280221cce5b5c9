package s7

import (
	"fmt"
	"io"
	"net"
	"time"
)

const defaultS7Port = 102

// rawConn is the pluggable byte-stream primitive the dispatcher drives.
// Callers supply a Dialer (WithDialer) that returns one, such as a
// net.Conn, and tests substitute a fake.
type rawConn interface {
	Write(p []byte) (int, error)
	Read(p []byte) (int, error)
	SetDeadline(t time.Time) error
	Close() error
}

// Dialer opens a rawConn to an S7 PLC. The default dialTCP uses net.Dial;
// tests substitute a fake that never touches a real socket.
type Dialer func(address string, timeout time.Duration) (rawConn, error)

// dialTCP is the default Dialer, appending the standard S7 port (102) when
// address has none.
func dialTCP(address string, timeout time.Duration) (rawConn, error) {
	if _, _, err := net.SplitHostPort(address); err != nil {
		address = fmt.Sprintf("%s:%d", address, defaultS7Port)
	}
	conn, err := net.DialTimeout("tcp", address, timeout)
	if err != nil {
		return nil, &TransportError{Cause: err}
	}
	return conn, nil
}

// conn wraps a rawConn with the TPKT framing and a single-writer
// discipline: all writes serialize through the dispatcher's sendMu. Reads
// are driven exclusively by the dispatcher's single receive-loop goroutine,
// so no read-side locking is needed here.
type conn struct {
	raw     rawConn
	decoder FrameDecoder
	pending [][]byte
	readBuf []byte
}

func newConn(raw rawConn) *conn {
	return &conn{raw: raw, readBuf: make([]byte, 4096)}
}

// sendFrame writes one already-TPKT-framed buffer. Send calls are
// serialised by the dispatcher's sendMu, not here, so that framing and
// transmission for one request are never interleaved with another's.
func (c *conn) sendFrame(framed []byte) error {
	if _, err := c.raw.Write(framed); err != nil {
		return &TransportError{Cause: err}
	}
	return nil
}

// readFrame blocks until one complete TPKT frame's payload (COTP header
// still attached) is available, reading from the underlying stream as
// needed.
func (c *conn) readFrame() ([]byte, error) {
	for len(c.pending) == 0 {
		n, err := c.raw.Read(c.readBuf)
		if err != nil {
			if err == io.EOF {
				return nil, &TransportError{Cause: io.EOF}
			}
			return nil, &TransportError{Cause: err}
		}
		frames, err := c.decoder.Feed(c.readBuf[:n])
		if err != nil {
			return nil, &TransportError{Cause: err}
		}
		c.pending = append(c.pending, frames...)
	}

	frame := c.pending[0]
	c.pending = c.pending[1:]
	return frame, nil
}

func (c *conn) setDeadline(t time.Time) error {
	return c.raw.SetDeadline(t)
}

func (c *conn) close() error {
	return c.raw.Close()
}
