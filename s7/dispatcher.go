package s7

import (
	"sync"
	"time"

	"s7link/logging"
)

// dispatcher owns one conn and multiplexes concurrent Read/Write/UserData
// calls over it by PDU reference. A single receive-loop goroutine is the
// only reader of the transport; every other goroutine reaches the wire
// only by handing an already-encoded PDU to send, then waiting on a
// completion that the receive loop resolves.
//
// The primitives here are a mutex-guarded map of pending calls, a buffered
// channel as a counting semaphore for the peer's advertised parallel-job
// limit, and one-shot completions (refid.go) per call.
type dispatcher struct {
	c            *conn
	tracer       *logging.Tracer
	session      SessionContext
	localPDUSize uint16

	sendMu sync.Mutex
	refGen refIDGenerator

	mu        sync.Mutex
	state     ConnectionState
	pending   map[uint16]*pendingCall
	permits   chan struct{}
	reconnect reconnector

	alarmMu  sync.Mutex
	alarmSub func(AlarmIndication)

	stopOnce sync.Once
	stopCh   chan struct{}
	loopDone chan struct{}
}

// pendingCall is one in-flight request awaiting its AckData.
type pendingCall struct {
	completion *completion
	decode     func(data []byte) (interface{}, error)
}

// reconnector redials and re-negotiates CommSetup over a fresh transport,
// producing a conn ready to replace the dispatcher's current one.
type reconnector func() (*conn, SessionContext, error)

const (
	reconnectBackoffMin = 500 * time.Millisecond
	reconnectBackoffMax = 10 * time.Second
)

func newDispatcher(c *conn, tracer *logging.Tracer, localPDUSize uint16) *dispatcher {
	return &dispatcher{
		c:            c,
		tracer:       tracer,
		localPDUSize: localPDUSize,
		state:        Closed,
		pending:      make(map[uint16]*pendingCall),
		stopCh:       make(chan struct{}),
	}
}

// conn returns the current transport connection. Reconnecting swaps it out
// from under the receive loop, so every access goes through this accessor
// rather than reading the field directly.
func (d *dispatcher) conn() *conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.c
}

func (d *dispatcher) setConn(c *conn) {
	d.mu.Lock()
	d.c = c
	d.mu.Unlock()
}

// enableReconnect installs the redial/renegotiate hook the receive loop
// uses after a transport read failure. A nil fn (the default) leaves a
// dropped transport fatal, resolving every pending call and exiting.
func (d *dispatcher) enableReconnect(fn reconnector) {
	d.mu.Lock()
	d.reconnect = fn
	d.mu.Unlock()
}

func (d *dispatcher) sessionPDUSize() uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.session.PDUSize
}

// setState validates and applies a connection-state transition, tracing it.
func (d *dispatcher) setState(to ConnectionState) error {
	d.mu.Lock()
	from := d.state
	if err := validateTransition(from, to); err != nil {
		d.mu.Unlock()
		return err
	}
	d.state = to
	d.mu.Unlock()
	d.tracer.State(from.String(), to.String())
	return nil
}

func (d *dispatcher) getState() ConnectionState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// arm transitions to Opened and sizes the job semaphore from the peer's
// advertised MaxAmQCalling, starting the receive loop. Opened always lands
// with a semaphore of exactly that many permits.
func (d *dispatcher) arm(session SessionContext) error {
	if err := d.setState(Opened); err != nil {
		return err
	}
	permits := int(session.MaxAmQCalling)
	if permits < 1 {
		permits = 1
	}
	d.mu.Lock()
	d.session = session
	d.permits = make(chan struct{}, permits)
	for i := 0; i < permits; i++ {
		d.permits <- struct{}{}
	}
	d.mu.Unlock()

	d.loopDone = make(chan struct{})
	go d.receiveLoop()
	return nil
}

// call performs one generic request/response round trip: acquire a permit,
// allocate a reference, register a pending call, send, await completion or
// timeout, and always release the permit.
func (d *dispatcher) call(encode func(pduRef uint16) []byte, decode func(data []byte) (interface{}, error), timeout time.Duration) (interface{}, error) {
	if d.getState() != Opened {
		return nil, &NotConnectedError{State: d.getState()}
	}

	select {
	case <-d.permits:
	case <-time.After(timeout):
		return nil, &TimeoutError{}
	case <-d.stopCh:
		return nil, &NotConnectedError{State: Closed}
	}
	defer func() { d.permits <- struct{}{} }()

	ref := d.refGen.next()
	comp := newCompletion()
	d.mu.Lock()
	d.pending[ref] = &pendingCall{completion: comp, decode: decode}
	d.mu.Unlock()

	cleanup := func() {
		d.mu.Lock()
		delete(d.pending, ref)
		d.mu.Unlock()
	}

	pdu := encode(ref)
	if limit := int(d.sessionPDUSize()); limit > 0 && len(pdu) > limit {
		cleanup()
		return nil, &ToMuchDataPerCallError{Limit: limit, Attempted: len(pdu)}
	}

	framed := encodeCOTPData(pdu)
	d.tracer.Frame("TX", ref, framed)

	conn := d.conn()
	d.sendMu.Lock()
	err := conn.sendFrame(framed)
	d.sendMu.Unlock()
	if err != nil {
		cleanup()
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	value, err := comp.wait(timer.C)
	cleanup()
	if err != nil {
		if te, ok := err.(*TimeoutError); ok {
			te.PduRef = ref
		}
		return nil, err
	}
	return value, nil
}

// receiveLoop is the sole reader of the transport. It decodes each frame's
// header to recover the PDU reference, routes AckData/Ack frames to the
// matching pendingCall, and fans unsolicited alarm indications (PDU
// reference zero) out to the registered subscriber, if any.
func (d *dispatcher) receiveLoop() {
	defer close(d.loopDone)
	for {
		conn := d.conn()
		framePayload, err := conn.readFrame()
		if err != nil {
			select {
			case <-d.stopCh:
				// close() shut the transport down under us.
				d.failAllPending(&NotConnectedError{State: Closed})
				return
			default:
			}
			if d.tryReconnect(err) {
				continue
			}
			_ = d.setState(Closed)
			d.failAllPending(&NotConnectedError{State: Closed})
			return
		}
		pdu, err := decodeCOTPData(framePayload)
		if err != nil {
			continue
		}
		h, headerLen, err := decodeHeader(pdu)
		if err != nil {
			continue
		}
		d.tracer.Frame("RX", h.PduReference, pdu)

		if h.PduType == pduTypeJob && len(pdu) > headerLen && pdu[headerLen] == funcCommSetup {
			d.handlePeerCommSetup(pdu, h.PduReference)
			continue
		}

		if h.PduReference == 0 {
			d.dispatchAlarmIndication(pdu)
			continue
		}

		d.mu.Lock()
		pc, ok := d.pending[h.PduReference]
		d.mu.Unlock()
		if !ok {
			continue // late or unexpected reply; drop it
		}

		if h.ErrorClass != 0 || h.ErrorCode != 0 {
			pc.completion.resolve(nil, &ProtocolError{Class: h.ErrorClass, Code: h.ErrorCode})
			continue
		}
		value, derr := pc.decode(pdu)
		pc.completion.resolve(value, derr)
	}
}

// handlePeerCommSetup answers a CommSetup Job the peer initiated instead of
// us: the PLC can open (or re-open) the negotiation on its own, and a
// conforming responder replies with CommSetupAck, adopts the peer's
// MaxAmQCalling, resizes the job-credit semaphore, and jumps straight to
// Opened without waiting on anything else.
func (d *dispatcher) handlePeerCommSetup(pdu []byte, pduRef uint16) {
	job, err := decodeCommSetupJob(pdu)
	if err != nil {
		return
	}

	pduSize := job.PDUSize
	if pduSize == 0 || pduSize > d.localPDUSize {
		pduSize = d.localPDUSize
	}

	ack := encodeCommSetupAckReply(pduRef, job.MaxAmQCalling, clientMaxAmQCalled, pduSize)
	framed := encodeCOTPData(ack)
	d.tracer.Frame("TX", pduRef, framed)

	conn := d.conn()
	d.sendMu.Lock()
	sendErr := conn.sendFrame(framed)
	d.sendMu.Unlock()
	if sendErr != nil {
		d.tracer.Errorf("commsetup", "failed to acknowledge peer-initiated CommSetup: %v", sendErr)
		return
	}

	d.forceOpened(NewSessionContext(d.sessionTimeoutMs(), pduSize, job.MaxAmQCalling, clientMaxAmQCalled))
}

// forceOpened jumps directly to Opened, bypassing the normal forward-only
// chain, so a peer-initiated CommSetup wins immediately. Its only caller is
// the receive loop, which arm starts, so it acts on a session that is
// already Opened (a renegotiation); a peer CommSetup that arrives during
// Connect's own handshake, before arm, is not handled here.
func (d *dispatcher) forceOpened(session SessionContext) {
	permits := int(session.MaxAmQCalling)
	if permits < 1 {
		permits = 1
	}
	d.mu.Lock()
	from := d.state
	d.state = Opened
	d.session = session
	d.permits = make(chan struct{}, permits)
	for i := 0; i < permits; i++ {
		d.permits <- struct{}{}
	}
	d.mu.Unlock()
	d.tracer.State(from.String(), Opened.String())
}

func (d *dispatcher) sessionTimeoutMs() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.session.TimeoutMs
}

// tryReconnect runs when the receive loop's transport read fails. If a
// reconnector is configured it fails every pending call outright (none can
// survive the drop), then redials and re-negotiates, backing off between
// attempts, until it succeeds or close() interrupts it. It reports whether
// the receive loop now has a fresh transport to keep reading from.
func (d *dispatcher) tryReconnect(cause error) bool {
	d.mu.Lock()
	reconnect := d.reconnect
	d.mu.Unlock()
	if reconnect == nil {
		return false
	}

	d.failAllPending(&NotConnectedError{State: Closed})
	d.tracer.Errorf("reconnect", "transport lost, reconnecting: %v", cause)

	backoff := reconnectBackoffMin
	for {
		select {
		case <-d.stopCh:
			return false
		default:
		}

		newConn, session, err := reconnect()
		if err == nil {
			d.setConn(newConn)
			permits := int(session.MaxAmQCalling)
			if permits < 1 {
				permits = 1
			}
			d.mu.Lock()
			d.session = session
			d.permits = make(chan struct{}, permits)
			for i := 0; i < permits; i++ {
				d.permits <- struct{}{}
			}
			d.mu.Unlock()
			d.tracer.State("transport-lost", "reconnected")
			return true
		}

		d.tracer.Errorf("reconnect", "attempt failed: %v", err)
		select {
		case <-time.After(backoff):
		case <-d.stopCh:
			return false
		}
		if backoff < reconnectBackoffMax {
			backoff *= 2
		}
	}
}

// dispatchAlarmIndication fans an unsolicited alarm frame to the
// subscriber, if one is registered. The frame's fields are not decoded:
// the subscriber receives an empty AlarmIndication.
func (d *dispatcher) dispatchAlarmIndication(pdu []byte) {
	d.alarmMu.Lock()
	sub := d.alarmSub
	d.alarmMu.Unlock()
	if sub == nil {
		return
	}
	sub(AlarmIndication{})
}

// subscribeAlarms registers the single alarm callback slot. A nil fn
// clears it.
func (d *dispatcher) subscribeAlarms(fn func(AlarmIndication)) {
	d.alarmMu.Lock()
	d.alarmSub = fn
	d.alarmMu.Unlock()
}

// failAllPending resolves every currently pending call with cause; used
// both when the receive loop's read fails and during close.
func (d *dispatcher) failAllPending(cause error) {
	d.mu.Lock()
	pending := d.pending
	d.pending = make(map[uint16]*pendingCall)
	d.mu.Unlock()

	for _, pc := range pending {
		pc.completion.resolve(nil, cause)
	}
}

// close tears the dispatcher down: it stops the receive loop, resolves
// every pending completion with NotConnectedError so none is left
// unresolved, clears the alarm subscription and falls the state machine
// back to Closed.
func (d *dispatcher) close() error {
	d.stopOnce.Do(func() { close(d.stopCh) })

	d.alarmMu.Lock()
	hadSubscription := d.alarmSub != nil
	d.alarmMu.Unlock()
	if hadSubscription {
		ref := d.refGen.next()
		framed := encodeCOTPData(encodeDisableAlarmUpdatesRequest(ref))
		conn := d.conn()
		d.sendMu.Lock()
		_ = conn.sendFrame(framed) // best-effort; errors on the way out are not actionable
		d.sendMu.Unlock()
	}

	err := d.conn().close()

	if d.loopDone != nil {
		<-d.loopDone
	}
	d.failAllPending(&NotConnectedError{State: Closed})
	d.subscribeAlarms(nil)

	d.mu.Lock()
	d.state = Closed
	d.mu.Unlock()

	return err
}
