package s7

import (
	"fmt"
	"sync"
	"time"

	"s7link/logging"
)

// clientMaxAmQCalled is the inbound parallel-job credit this client grants
// the PLC; s7link never receives unsolicited requests other than alarm
// indications, so it is a small fixed value rather than an option.
const clientMaxAmQCalled = 8

// Client is a connection to one S7 PLC: tag-string Read/Write, block-info
// and alarm queries, all multiplexed over a single dispatcher.
type Client struct {
	opts   ClientOptions
	tracer *logging.Tracer

	d       *dispatcher
	session SessionContext

	registeredMu sync.Mutex
	registered   map[string]ReadItem
}

// NewClient validates opts (merged with functional Option overrides) and
// returns a Client in the Closed state; Connect performs the handshake.
func NewClient(address string, options ...Option) (*Client, error) {
	opts := defaultClientOptions()
	opts.Address = address
	for _, o := range options {
		o(&opts)
	}
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("s7: invalid client options: %w", err)
	}

	var tracer *logging.Tracer
	if t, ok := opts.Tracer.(*logging.Tracer); ok {
		tracer = t
	}

	return &Client{opts: opts, tracer: tracer, registered: make(map[string]ReadItem)}, nil
}

// Register caches the parse of each tag string so repeated reads of the
// same tag skip re-parsing. It is a client-side cache, not a wire-level
// operation against the PLC.
func (c *Client) Register(tags []string) error {
	c.registeredMu.Lock()
	defer c.registeredMu.Unlock()
	for _, tag := range tags {
		item, err := ParseTag(tag)
		if err != nil {
			return err
		}
		c.registered[tag] = item
	}
	return nil
}

// Unregister drops cached parses for the given tags.
func (c *Client) Unregister(tags []string) {
	c.registeredMu.Lock()
	defer c.registeredMu.Unlock()
	for _, tag := range tags {
		delete(c.registered, tag)
	}
}

// ReadRegistered reads every currently registered tag in one batch,
// reusing their cached ReadItem parses.
func (c *Client) ReadRegistered() (map[string]*TagValue, error) {
	c.registeredMu.Lock()
	tags := make([]string, 0, len(c.registered))
	items := make([]ReadItem, 0, len(c.registered))
	for tag, item := range c.registered {
		tags = append(tags, tag)
		items = append(items, item)
	}
	c.registeredMu.Unlock()

	values, err := c.Read(items)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*TagValue, len(tags))
	for i, tag := range tags {
		out[tag] = values[i]
	}
	return out, nil
}

// ReadClock reads the PLC's real-time clock.
func (c *Client) ReadClock() (time.Time, error) {
	if c.d == nil {
		return time.Time{}, &NotConnectedError{State: Closed}
	}
	value, err := c.d.call(
		encodeReadClockRequest,
		func(data []byte) (interface{}, error) { return decodeReadClockResponse(data) },
		c.timeout(),
	)
	if err != nil {
		return time.Time{}, err
	}
	return value.(time.Time), nil
}

// ReadPendingAlarms sends one pending-alarm UserData request and returns
// nil, nil on success: the alarm records in the reply are not decoded, and
// no further pages are requested.
func (c *Client) ReadPendingAlarms() ([]PendingAlarm, error) {
	if c.d == nil {
		return nil, &NotConnectedError{State: Closed}
	}
	_, err := c.d.call(
		func(ref uint16) []byte { return encodeReadSZLRequest(ref, 0x0000, 0x0000) },
		func(data []byte) (interface{}, error) {
			payload, _, _, derr := decodeReadSZLResponse(data)
			if derr != nil {
				return nil, derr
			}
			return payload, nil
		},
		c.timeout(),
	)
	if err != nil {
		return nil, err
	}
	return nil, nil
}

// Connect drives the connection state machine from Closed to Opened:
// RFC1006/COTP handshake, then S7 CommSetup.
func (c *Client) Connect() error {
	c.tracer.Connect(c.opts.Address)

	timeout := time.Duration(c.opts.ConnectTimeoutMs) * time.Millisecond
	raw, err := c.opts.Dialer(c.opts.Address, timeout)
	if err != nil {
		c.tracer.ConnectError(c.opts.Address, err)
		return err
	}

	conn := newConn(raw)
	d := newDispatcher(conn, c.tracer, c.opts.PDUSize)
	c.d = d

	if err := d.setState(PendingOpenRfc1006); err != nil {
		raw.Close()
		return err
	}

	if err := conn.setDeadline(time.Now().Add(timeout)); err != nil {
		raw.Close()
		return &TransportError{Cause: err}
	}

	srcTSAP := [2]byte{0x01, 0x00}
	dstTSAP := remoteTSAP(c.opts.ConnectionType, c.opts.Rack, c.opts.Slot)
	cr := buildCOTPConnectionRequest(srcTSAP, dstTSAP, tpduSizeCode(int(c.opts.PDUSize)))
	if err := conn.sendFrame(cr); err != nil {
		raw.Close()
		c.tracer.ConnectError(c.opts.Address, err)
		return err
	}

	ccFrame, err := conn.readFrame()
	if err != nil {
		raw.Close()
		c.tracer.ConnectError(c.opts.Address, err)
		return err
	}
	if err := parseCOTPConnectionConfirm(ccFrame); err != nil {
		raw.Close()
		c.tracer.ConnectError(c.opts.Address, err)
		return &ProtocolContentError{ReturnCode: 0, ItemIndex: -1}
	}

	if err := d.setState(TransportOpened); err != nil {
		raw.Close()
		return err
	}

	if err := d.setState(PendingOpenPlc); err != nil {
		raw.Close()
		return err
	}

	setupPDU := encodeCommSetupRequest(1, c.opts.MaxParallelJobs, clientMaxAmQCalled, c.opts.PDUSize)
	if err := conn.sendFrame(encodeCOTPData(setupPDU)); err != nil {
		raw.Close()
		c.tracer.ConnectError(c.opts.Address, err)
		return err
	}
	ackFrame, err := conn.readFrame()
	if err != nil {
		raw.Close()
		c.tracer.ConnectError(c.opts.Address, err)
		return err
	}
	ackPDU, err := decodeCOTPData(ackFrame)
	if err != nil {
		raw.Close()
		return err
	}
	ack, err := decodeCommSetupAck(ackPDU)
	if err != nil {
		raw.Close()
		return err
	}
	if err := conn.setDeadline(time.Time{}); err != nil {
		raw.Close()
		return &TransportError{Cause: err}
	}

	session := NewSessionContext(c.opts.ReceiveTimeoutMs, ack.PDUSize, ack.MaxAmQCalling, ack.MaxAmQCalled)
	c.session = session

	if err := d.arm(session); err != nil {
		raw.Close()
		return err
	}

	if c.opts.Reconnect {
		d.enableReconnect(c.reconnectTransport)
	}

	c.tracer.ConnectSuccess(c.opts.Address, nil)
	return nil
}

// reconnectTransport redials and redoes the RFC1006/COTP and CommSetup
// handshake over a fresh socket, for the dispatcher to adopt after a
// transport drop. Unlike Connect, it runs synchronously with no
// dispatcher-state tracing of its own: the dispatcher stays Opened
// throughout a reconnect rather than cycling back through the forward
// chain.
func (c *Client) reconnectTransport() (*conn, SessionContext, error) {
	timeout := time.Duration(c.opts.ConnectTimeoutMs) * time.Millisecond
	raw, err := c.opts.Dialer(c.opts.Address, timeout)
	if err != nil {
		return nil, SessionContext{}, err
	}

	conn := newConn(raw)
	if err := conn.setDeadline(time.Now().Add(timeout)); err != nil {
		raw.Close()
		return nil, SessionContext{}, &TransportError{Cause: err}
	}

	srcTSAP := [2]byte{0x01, 0x00}
	dstTSAP := remoteTSAP(c.opts.ConnectionType, c.opts.Rack, c.opts.Slot)
	cr := buildCOTPConnectionRequest(srcTSAP, dstTSAP, tpduSizeCode(int(c.opts.PDUSize)))
	if err := conn.sendFrame(cr); err != nil {
		raw.Close()
		return nil, SessionContext{}, err
	}

	ccFrame, err := conn.readFrame()
	if err != nil {
		raw.Close()
		return nil, SessionContext{}, err
	}
	if err := parseCOTPConnectionConfirm(ccFrame); err != nil {
		raw.Close()
		return nil, SessionContext{}, &ProtocolContentError{ReturnCode: 0, ItemIndex: -1}
	}

	setupPDU := encodeCommSetupRequest(1, c.opts.MaxParallelJobs, clientMaxAmQCalled, c.opts.PDUSize)
	if err := conn.sendFrame(encodeCOTPData(setupPDU)); err != nil {
		raw.Close()
		return nil, SessionContext{}, err
	}
	ackFrame, err := conn.readFrame()
	if err != nil {
		raw.Close()
		return nil, SessionContext{}, err
	}
	ackPDU, err := decodeCOTPData(ackFrame)
	if err != nil {
		raw.Close()
		return nil, SessionContext{}, err
	}
	ack, err := decodeCommSetupAck(ackPDU)
	if err != nil {
		raw.Close()
		return nil, SessionContext{}, err
	}
	if err := conn.setDeadline(time.Time{}); err != nil {
		raw.Close()
		return nil, SessionContext{}, &TransportError{Cause: err}
	}

	session := NewSessionContext(c.opts.ReceiveTimeoutMs, ack.PDUSize, ack.MaxAmQCalling, ack.MaxAmQCalled)
	return conn, session, nil
}

// Close tears down the connection, resolving any in-flight calls with
// NotConnectedError.
func (c *Client) Close() error {
	if c.d == nil {
		return nil
	}
	c.tracer.Disconnect(c.opts.Address, "client close")
	return c.d.close()
}

func (c *Client) timeout() time.Duration {
	return time.Duration(c.opts.ReceiveTimeoutMs) * time.Millisecond
}

// ReadTag reads one tag-string address and returns it decoded into a
// TagValue. It is a single-item convenience wrapper over Read.
func (c *Client) ReadTag(tag string) (*TagValue, error) {
	item, err := ParseTag(tag)
	if err != nil {
		return nil, err
	}
	values, err := c.Read([]ReadItem{item})
	if err != nil {
		return nil, err
	}
	return values[0], nil
}

// Read executes a batch of logical read items, packing and splitting them
// per the negotiated PDU size and reassembling partial results. One
// TagValue is returned per input item, in order; a partial failure in one
// item does not fail the others.
func (c *Client) Read(items []ReadItem) ([]*TagValue, error) {
	if c.d == nil {
		return nil, &NotConnectedError{State: Closed}
	}
	packages, err := PlanReads(items, c.session)
	if err != nil {
		return nil, err
	}

	var allParts []ReadPart
	allResults := make([]readResult, 0)
	for _, pkg := range packages {
		pkgItems := make([]ReadItem, len(pkg.Parts))
		for i, p := range pkg.Parts {
			pkgItems[i] = p.Item
		}
		value, err := c.d.call(
			func(ref uint16) []byte { return encodeReadRequest(ref, pkgItems) },
			func(data []byte) (interface{}, error) { return decodeReadResponse(data, len(pkgItems)) },
			c.timeout(),
		)
		if err != nil {
			return nil, err
		}
		allParts = append(allParts, pkg.Parts...)
		allResults = append(allResults, value.([]readResult)...)
	}

	sizes := make([]int, len(items))
	for i, it := range items {
		sizes[i] = it.SizeBytes()
	}
	buffers, errs := ReassembleReads(allParts, allResults, sizes)

	out := make([]*TagValue, len(items))
	for i, it := range items {
		tv := &TagValue{VarType: it.VarType, Count: it.NumberOfItems, Err: errs[i], BitOffset: -1}
		if it.VarType == VarBit {
			tv.BitOffset = it.Offset % 8
		}
		tv.Bytes = buffers[i]
		out[i] = tv
	}
	return out, nil
}

// WriteTag writes data to a single tag-string address. It is a convenience
// wrapper over Write.
func (c *Client) WriteTag(tag string, data []byte) error {
	item, err := ParseWriteTag(tag, data)
	if err != nil {
		return err
	}
	return c.Write([]WriteItem{item})
}

// Write executes a batch of logical write items, packing per the
// negotiated PDU size. Returns the first per-item error, if any; a failing
// item does not roll back items already acknowledged in an earlier
// package.
func (c *Client) Write(items []WriteItem) error {
	if c.d == nil {
		return &NotConnectedError{State: Closed}
	}
	packages, err := PlanWrites(items, c.session)
	if err != nil {
		return err
	}

	for _, pkg := range packages {
		pkgItems := make([]WriteItem, len(pkg.Parts))
		for i, p := range pkg.Parts {
			pkgItems[i] = p.Item
		}
		value, err := c.d.call(
			func(ref uint16) []byte { return encodeWriteRequest(ref, pkgItems) },
			func(data []byte) (interface{}, error) {
				errs, derr := decodeWriteResponse(data, len(pkgItems))
				if derr != nil {
					return nil, derr
				}
				return errs, nil
			},
			c.timeout(),
		)
		if err != nil {
			return err
		}
		for _, e := range value.([]error) {
			if e != nil {
				return e
			}
		}
	}
	return nil
}

// ReadBlockInfo queries size and checksum metadata for one program block
// via an SZL request.
func (c *Client) ReadBlockInfo(blockNumber uint16) (*PlcBlockInfo, error) {
	if c.d == nil {
		return nil, &NotConnectedError{State: Closed}
	}
	value, err := c.d.call(
		func(ref uint16) []byte { return encodeReadSZLRequest(ref, szlBlockInfoID, blockNumber) },
		func(data []byte) (interface{}, error) {
			payload, _, _, derr := decodeReadSZLResponse(data)
			if derr != nil {
				return nil, derr
			}
			return payload, nil
		},
		c.timeout(),
	)
	if err != nil {
		return nil, err
	}
	return decodeBlockInfoPayload(blockNumber, value.([]byte)), nil
}

// ReadCPUInfo queries the module identification SZL: module type, serial
// number and AS name.
func (c *Client) ReadCPUInfo() (*CPUInfo, error) {
	if c.d == nil {
		return nil, &NotConnectedError{State: Closed}
	}
	value, err := c.d.call(
		func(ref uint16) []byte { return encodeReadSZLRequest(ref, szlCPUInfoID, 0x0000) },
		func(data []byte) (interface{}, error) {
			payload, _, _, derr := decodeReadSZLResponse(data)
			if derr != nil {
				return nil, derr
			}
			return payload, nil
		},
		c.timeout(),
	)
	if err != nil {
		return nil, err
	}
	return decodeCPUInfoPayload(value.([]byte)), nil
}

// SubscribeAlarms registers fn as the callback for unsolicited alarm
// indications. Only one subscription is held at a time; a later call
// replaces the former.
func (c *Client) SubscribeAlarms(fn func(AlarmIndication)) error {
	if c.d == nil {
		return &NotConnectedError{State: Closed}
	}
	c.d.subscribeAlarms(fn)
	return nil
}

// UnsubscribeAlarms clears the alarm callback.
func (c *Client) UnsubscribeAlarms() error {
	if c.d == nil {
		return &NotConnectedError{State: Closed}
	}
	c.d.subscribeAlarms(nil)
	return nil
}
