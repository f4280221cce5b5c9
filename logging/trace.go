// Package logging provides protocol-level trace logging for the S7 client.
//
// Unlike general application logging, trace logging is meant to be switched
// on only when troubleshooting wire-level issues: connection attempts, raw
// frame hex dumps, disconnects, and state transitions. It is built on
// logrus so callers can route it anywhere a normal logrus.Logger can go
// (stderr, a file, a log aggregator) instead of a package-global sink.
package logging

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// Tracer narrates protocol-level events at Debug/Trace severity.
// A nil *Tracer is valid and discards everything, so callers that don't
// want tracing can simply leave the field zero.
type Tracer struct {
	log *logrus.Entry
}

// NewTracer wraps a logrus logger for use as a protocol tracer.
// component is attached to every entry as a "component" field (e.g. "s7").
func NewTracer(log *logrus.Logger, component string) *Tracer {
	if log == nil {
		return nil
	}
	return &Tracer{log: log.WithField("component", component)}
}

// Connect logs a connection attempt.
func (t *Tracer) Connect(address string) {
	if t == nil {
		return
	}
	t.log.WithField("address", address).Debug("connecting")
}

// ConnectSuccess logs a successful connection.
func (t *Tracer) ConnectSuccess(address string, fields logrus.Fields) {
	if t == nil {
		return
	}
	t.log.WithField("address", address).WithFields(fields).Debug("connected")
}

// ConnectError logs a failed connection attempt.
func (t *Tracer) ConnectError(address string, err error) {
	if t == nil {
		return
	}
	t.log.WithField("address", address).WithError(err).Debug("connect failed")
}

// Disconnect logs a disconnection with its cause.
func (t *Tracer) Disconnect(address, reason string) {
	if t == nil {
		return
	}
	t.log.WithField("address", address).WithField("reason", reason).Debug("disconnected")
}

// State logs a connection-state-machine transition.
func (t *Tracer) State(from, to string) {
	if t == nil {
		return
	}
	t.log.WithField("from", from).WithField("to", to).Debug("state transition")
}

// Frame logs a transmitted or received frame's hex dump at Trace level.
// direction is "TX" or "RX".
func (t *Tracer) Frame(direction string, pduRef uint16, data []byte) {
	if t == nil {
		return
	}
	t.log.WithFields(logrus.Fields{
		"direction": direction,
		"pdu_ref":   pduRef,
		"bytes":     len(data),
	}).Tracef("%s frame:\n%s", direction, HexDump(data))
}

// Errorf logs a formatted error-level message.
func (t *Tracer) Errorf(context, format string, args ...interface{}) {
	if t == nil {
		return
	}
	t.log.WithField("context", context).Errorf(format, args...)
}

// HexDump renders data as offset/hex/ASCII columns, 16 bytes per row:
//
//	0000: 65 00 04 00 00 00 00 00  00 00 00 00 00 00 00 00  e...............
func HexDump(data []byte) string {
	if len(data) == 0 {
		return "    (empty)"
	}

	var sb strings.Builder
	for offset := 0; offset < len(data); offset += 16 {
		sb.WriteString(fmt.Sprintf("    %04X: ", offset))

		for i := 0; i < 8; i++ {
			if offset+i < len(data) {
				sb.WriteString(fmt.Sprintf("%02X ", data[offset+i]))
			} else {
				sb.WriteString("   ")
			}
		}
		sb.WriteString(" ")

		for i := 8; i < 16; i++ {
			if offset+i < len(data) {
				sb.WriteString(fmt.Sprintf("%02X ", data[offset+i]))
			} else {
				sb.WriteString("   ")
			}
		}
		sb.WriteString(" ")

		for i := 0; i < 16; i++ {
			if offset+i < len(data) {
				b := data[offset+i]
				if b >= 32 && b < 127 {
					sb.WriteByte(b)
				} else {
					sb.WriteByte('.')
				}
			}
		}
		sb.WriteString("\n")
	}

	return strings.TrimSuffix(sb.String(), "\n")
}
