package s7

import "fmt"

// NotConnectedError is returned when an operation is invoked while the
// connection state is not Opened, or the connection drops mid-call.
type NotConnectedError struct {
	State ConnectionState
}

func (e *NotConnectedError) Error() string {
	return fmt.Sprintf("s7: not connected (state=%s)", e.State)
}

// TimeoutError is returned when a per-call or open deadline expires. PduRef
// is zero when the timeout occurred before a reference was assigned (e.g.
// waiting for a semaphore permit).
type TimeoutError struct {
	PduRef uint16
}

func (e *TimeoutError) Error() string {
	if e.PduRef == 0 {
		return "s7: timeout"
	}
	return fmt.Sprintf("s7: timeout (pdu_ref=%d)", e.PduRef)
}

// CouldNotAddPackageError reports a planner invariant breach: a single
// minimal item does not fit one empty package, which indicates a
// misconfigured PDUSize.
type CouldNotAddPackageError struct {
	ItemSizeBytes int
	MaxLength     int
}

func (e *CouldNotAddPackageError) Error() string {
	return fmt.Sprintf("s7: item of %d bytes does not fit an empty package (max %d bytes); check pdu_size", e.ItemSizeBytes, e.MaxLength)
}

// ProtocolContentError reports a per-item non-OK return code from the PLC
// in a Read/Write acknowledgement.
type ProtocolContentError struct {
	ReturnCode byte
	ItemIndex  int
}

func (e *ProtocolContentError) Error() string {
	return fmt.Sprintf("s7: item %d returned code 0x%02X", e.ItemIndex, e.ReturnCode)
}

// ProtocolError reports a header-level error class/code carried by an Ack
// PDU.
type ProtocolError struct {
	Class byte
	Code  byte
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("s7: protocol error (class=0x%02X, code=0x%02X)", e.Class, e.Code)
}

// ToMuchDataPerCallError is returned when an outbound encoding would exceed
// the negotiated PDUSize; the caller should reduce the batch.
type ToMuchDataPerCallError struct {
	Limit     int
	Attempted int
}

func (e *ToMuchDataPerCallError) Error() string {
	return fmt.Sprintf("s7: call encodes to %d bytes, limit is %d", e.Attempted, e.Limit)
}

// TransportError wraps a lower-layer transport failure (dial, read, write,
// close).
type TransportError struct {
	Cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("s7: transport error: %v", e.Cause)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}
