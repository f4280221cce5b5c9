package s7

import (
	"sync"
	"testing"
	"time"
)

func TestRefIDGeneratorNeverZero(t *testing.T) {
	g := &refIDGenerator{}
	for i := 0; i < 10; i++ {
		if id := g.next(); id == 0 {
			t.Fatalf("next() returned 0 at iteration %d", i)
		}
	}
}

func TestRefIDGeneratorWraps(t *testing.T) {
	g := &refIDGenerator{counter: 0xFFFF}
	if id := g.next(); id != 1 {
		t.Fatalf("next() after wrap = %d, want 1", id)
	}
}

func TestRefIDGeneratorConcurrentUnique(t *testing.T) {
	g := &refIDGenerator{}
	const n = 2000
	ids := make([]uint16, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = g.next()
		}(i)
	}
	wg.Wait()

	seen := make(map[uint16]int, n)
	for _, id := range ids {
		if id == 0 {
			t.Fatalf("next() returned 0 in concurrent run")
		}
		seen[id]++
	}
	// With a 16-bit space and only 2000 draws, collisions would only occur
	// after a wrap, so every draw must yield a distinct id.
	if len(seen) != n {
		t.Fatalf("got %d distinct ids from %d draws, want all distinct", len(seen), n)
	}
}

func TestCompletionResolveThenWait(t *testing.T) {
	c := newCompletion()
	c.resolve("hello", nil)
	v, err := c.wait(nil)
	if err != nil {
		t.Fatalf("wait() error = %v", err)
	}
	if v != "hello" {
		t.Fatalf("wait() value = %v, want hello", v)
	}
}

func TestCompletionResolveIsOnceOnly(t *testing.T) {
	c := newCompletion()
	c.resolve("first", nil)
	c.resolve("second", nil) // must be a no-op, not a panic or blocking send
	v, _ := c.wait(nil)
	if v != "first" {
		t.Fatalf("wait() value = %v, want first", v)
	}
}

func TestCompletionAbort(t *testing.T) {
	c := newCompletion()
	abort := make(chan time.Time)
	close(abort)
	_, err := c.wait(abort)
	if err == nil {
		t.Fatalf("wait() with closed abort channel succeeded, want TimeoutError")
	}
	if _, ok := err.(*TimeoutError); !ok {
		t.Fatalf("wait() error type = %T, want *TimeoutError", err)
	}
}
