package s7

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"
)

// fakeRawConn is an in-memory rawConn: writes accumulate in Written,
// reads are served from a list of chunks.
type fakeRawConn struct {
	Written []byte
	chunks  [][]byte
	closed  bool
}

func (f *fakeRawConn) Write(p []byte) (int, error) {
	f.Written = append(f.Written, p...)
	return len(p), nil
}

func (f *fakeRawConn) Read(p []byte) (int, error) {
	if len(f.chunks) == 0 {
		return 0, io.EOF
	}
	chunk := f.chunks[0]
	f.chunks = f.chunks[1:]
	n := copy(p, chunk)
	return n, nil
}

func (f *fakeRawConn) SetDeadline(t time.Time) error { return nil }

func (f *fakeRawConn) Close() error {
	f.closed = true
	return nil
}

func TestConnSendFrame(t *testing.T) {
	raw := &fakeRawConn{}
	c := newConn(raw)
	framed := encodeCOTPData([]byte{1, 2, 3})
	if err := c.sendFrame(framed); err != nil {
		t.Fatalf("sendFrame error: %v", err)
	}
	if !bytes.Equal(raw.Written, framed) {
		t.Fatalf("written = %x, want %x", raw.Written, framed)
	}
}

func TestConnReadFrameAcrossMultipleReads(t *testing.T) {
	pdu := []byte{0x32, 0x01, 0x00}
	framed := encodeCOTPData(pdu)
	raw := &fakeRawConn{chunks: [][]byte{framed[:3], framed[3:]}}
	c := newConn(raw)

	frame, err := c.readFrame()
	if err != nil {
		t.Fatalf("readFrame error: %v", err)
	}
	got, err := decodeCOTPData(frame)
	if err != nil {
		t.Fatalf("decodeCOTPData error: %v", err)
	}
	if !bytes.Equal(got, pdu) {
		t.Fatalf("decoded = %x, want %x", got, pdu)
	}
}

func TestConnReadFrameQueuesMultipleFrames(t *testing.T) {
	pduA := []byte{0xAA}
	pduB := []byte{0xBB}
	whole := append(append([]byte{}, encodeCOTPData(pduA)...), encodeCOTPData(pduB)...)
	raw := &fakeRawConn{chunks: [][]byte{whole}}
	c := newConn(raw)

	f1, err := c.readFrame()
	if err != nil {
		t.Fatalf("readFrame 1 error: %v", err)
	}
	f2, err := c.readFrame()
	if err != nil {
		t.Fatalf("readFrame 2 error: %v", err)
	}
	got1, _ := decodeCOTPData(f1)
	got2, _ := decodeCOTPData(f2)
	if !bytes.Equal(got1, pduA) || !bytes.Equal(got2, pduB) {
		t.Fatalf("decoded = %x, %x, want %x, %x", got1, got2, pduA, pduB)
	}
}

func TestConnReadFrameEOF(t *testing.T) {
	raw := &fakeRawConn{}
	c := newConn(raw)
	_, err := c.readFrame()
	if err == nil {
		t.Fatalf("readFrame succeeded on empty stream, want error")
	}
	te, ok := err.(*TransportError)
	if !ok {
		t.Fatalf("error type = %T, want *TransportError", err)
	}
	if !errors.Is(te.Cause, io.EOF) {
		t.Fatalf("cause = %v, want io.EOF", te.Cause)
	}
}

func TestConnClose(t *testing.T) {
	raw := &fakeRawConn{}
	c := newConn(raw)
	if err := c.close(); err != nil {
		t.Fatalf("close error: %v", err)
	}
	if !raw.closed {
		t.Fatalf("underlying conn was not closed")
	}
}
