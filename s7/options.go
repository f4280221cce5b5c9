package s7

import (
	"time"

	"github.com/go-playground/validator/v10"
)

var optionsValidate = validator.New()

// ClientOptions configures a Client's connection and session parameters.
// Struct tags are validated with go-playground/validator on NewClient,
// following the same validate-struct-tags idiom used elsewhere in the
// stack for declarative input validation.
type ClientOptions struct {
	Address          string         `validate:"required,hostname_port|hostname|ip"`
	ConnectionType   ConnectionType `validate:"oneof=1 2 3"`
	Rack             int            `validate:"gte=0,lte=7"`
	Slot             int            `validate:"gte=0,lte=31"`
	PDUSize          uint16         `validate:"gte=240,lte=960"`
	MaxParallelJobs  uint16         `validate:"gte=1,lte=64"`
	ReceiveTimeoutMs int            `validate:"gte=1"`
	ConnectTimeoutMs int            `validate:"gte=1"`
	Reconnect        bool           `validate:"-"`
	Dialer           Dialer         `validate:"-"`
	Tracer           tracerOption   `validate:"-"`
}

// tracerOption avoids importing logging's concrete type into the validated
// surface; Option sets it through WithTracer.
type tracerOption interface{}

// defaultClientOptions returns the option set before any Option is applied.
func defaultClientOptions() ClientOptions {
	return ClientOptions{
		ConnectionType:   ConnectionTypeOP,
		Rack:             0,
		Slot:             2,
		PDUSize:          480,
		MaxParallelJobs:  8,
		ReceiveTimeoutMs: 5000,
		ConnectTimeoutMs: 5000,
		Dialer:           dialTCP,
	}
}

// Option mutates a ClientOptions during NewClient, following the
// functional-options pattern.
type Option func(*ClientOptions)

// WithRackSlot sets the target CPU's rack and slot.
func WithRackSlot(rack, slot int) Option {
	return func(o *ClientOptions) {
		o.Rack = rack
		o.Slot = slot
	}
}

// WithConnectionType sets the COTP connection type (PG/OP/Basic).
func WithConnectionType(t ConnectionType) Option {
	return func(o *ClientOptions) { o.ConnectionType = t }
}

// WithPDUSize requests a PDU size to negotiate during CommSetup.
func WithPDUSize(size uint16) Option {
	return func(o *ClientOptions) { o.PDUSize = size }
}

// WithMaxParallelJobs requests a parallel-job credit to negotiate during
// CommSetup; the dispatcher's semaphore is sized from whatever the peer
// actually grants in its CommSetup acknowledgement, not this request.
func WithMaxParallelJobs(n uint16) Option {
	return func(o *ClientOptions) { o.MaxParallelJobs = n }
}

// WithReceiveTimeout sets the per-call response timeout.
func WithReceiveTimeout(d time.Duration) Option {
	return func(o *ClientOptions) { o.ReceiveTimeoutMs = int(d / time.Millisecond) }
}

// WithConnectTimeout sets the dial/handshake timeout.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *ClientOptions) { o.ConnectTimeoutMs = int(d / time.Millisecond) }
}

// WithReconnect enables automatic redial and CommSetup renegotiation when
// the transport drops mid-session. Disabled by default: a dropped
// connection fails every in-flight call and leaves the Client Closed.
func WithReconnect(enabled bool) Option {
	return func(o *ClientOptions) { o.Reconnect = enabled }
}

// WithDialer overrides the transport dialer, mainly for tests.
func WithDialer(d Dialer) Option {
	return func(o *ClientOptions) { o.Dialer = d }
}

// WithTracer attaches a protocol tracer to the client.
func WithTracer(t tracerOption) Option {
	return func(o *ClientOptions) { o.Tracer = t }
}

// validate runs struct-tag validation over the fully-assembled options.
func (o ClientOptions) validate() error {
	return optionsValidate.Struct(o)
}
