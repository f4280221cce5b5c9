package s7

import (
	"sync/atomic"
	"time"
)

// refIDGenerator hands out monotone 16-bit PDU references for outgoing
// requests. It is a 32-bit atomic counter that wraps back into (0, 0xFFFF];
// zero is reserved for unsolicited alarm indications and is never handed
// to a caller. Wrap is resolved with a compare-and-swap loop rather than a
// lock.
type refIDGenerator struct {
	counter uint32
}

// next returns the next PDU reference, skipping zero.
func (g *refIDGenerator) next() uint16 {
	for {
		old := atomic.LoadUint32(&g.counter)
		n := old + 1
		if n > 0xFFFF {
			n = 1
		}
		if atomic.CompareAndSwapUint32(&g.counter, old, n) {
			return uint16(n)
		}
	}
}

// completion is a one-shot awaitable result for a single in-flight request.
// resolve may be called at most once; further calls are no-ops. wait
// blocks until resolve or the supplied abort channel fires.
type completion struct {
	ch   chan completionResult
	done uint32
}

type completionResult struct {
	value interface{}
	err   error
}

func newCompletion() *completion {
	return &completion{ch: make(chan completionResult, 1)}
}

// resolve delivers the result to the single waiter. Safe to call from the
// receive loop even if no one ever calls wait (e.g. the call already timed
// out and was removed from the in-flight map).
func (c *completion) resolve(value interface{}, err error) {
	if !atomic.CompareAndSwapUint32(&c.done, 0, 1) {
		return
	}
	c.ch <- completionResult{value: value, err: err}
}

// wait blocks for the completion to resolve or for abort to fire,
// whichever happens first. abort is a timer's C channel.
func (c *completion) wait(abort <-chan time.Time) (interface{}, error) {
	select {
	case r := <-c.ch:
		return r.value, r.err
	case <-abort:
		return nil, &TimeoutError{}
	}
}
