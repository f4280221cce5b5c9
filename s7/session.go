package s7

import "fmt"

// ConnectionState is the lifecycle state of a Client's link to the PLC.
// Transitions are forward-only except that any state can fall back to
// Closed.
type ConnectionState int

const (
	Closed ConnectionState = iota
	PendingOpenRfc1006
	TransportOpened
	PendingOpenPlc
	Opened
)

func (cs ConnectionState) String() string {
	switch cs {
	case Closed:
		return "Closed"
	case PendingOpenRfc1006:
		return "PendingOpenRfc1006"
	case TransportOpened:
		return "TransportOpened"
	case PendingOpenPlc:
		return "PendingOpenPlc"
	case Opened:
		return "Opened"
	default:
		return fmt.Sprintf("ConnectionState(%d)", int(cs))
	}
}

// forwardOrder gives each state's position in the forward lifecycle, used
// to validate transitions.
var forwardOrder = map[ConnectionState]int{
	Closed:             0,
	PendingOpenRfc1006: 1,
	TransportOpened:    2,
	PendingOpenPlc:     3,
	Opened:             4,
}

// InvalidTransitionError reports an attempted connection-state transition
// that is neither the next forward step nor a fall back to Closed.
type InvalidTransitionError struct {
	From ConnectionState
	To   ConnectionState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid connection state transition: %s -> %s", e.From, e.To)
}

// validateTransition enforces the Closed -> PendingOpenRfc1006 ->
// TransportOpened -> PendingOpenPlc -> Opened chain, with a fall back to
// Closed permitted from any state.
func validateTransition(from, to ConnectionState) error {
	if to == Closed {
		return nil
	}
	if forwardOrder[to] == forwardOrder[from]+1 {
		return nil
	}
	return &InvalidTransitionError{From: from, To: to}
}

// SessionContext holds the negotiated parameters of an open PLC session,
// derived from the CommSetup handshake. ReadItemMaxLength and
// WriteItemMaxLength are the largest single-item payload the dispatcher
// may place in one PDU, derived from PDUSize per the header overhead the
// Read/Write job datagrams carry (18 and 28 bytes respectively).
type SessionContext struct {
	TimeoutMs          int
	PDUSize            uint16
	MaxAmQCalling      uint16
	MaxAmQCalled       uint16
	ReadItemMaxLength  int
	WriteItemMaxLength int
}

// NewSessionContext derives the per-connection limits from a negotiated PDU
// size and the calling/called job counts advertised during CommSetup.
func NewSessionContext(timeoutMs int, pduSize, maxAmQCalling, maxAmQCalled uint16) SessionContext {
	return SessionContext{
		TimeoutMs:          timeoutMs,
		PDUSize:            pduSize,
		MaxAmQCalling:      maxAmQCalling,
		MaxAmQCalled:       maxAmQCalled,
		ReadItemMaxLength:  int(pduSize) - 18,
		WriteItemMaxLength: int(pduSize) - 28,
	}
}
