// Package lamport implements the logical clock shared by every process in
// the messaging federation.
//
// Each process owns exactly one Clock. The counter advances by one on every
// send (Next) and jumps to max(local, remote)+1 on every receive (Observe),
// giving the partial causal order described by Lamport. Inside the
// application server the clock is bumped from both the request loop and the
// replica listener, so all operations are mutex-guarded.
package lamport

import "sync"

// Clock is a mutex-guarded Lamport counter. The zero value is ready to use.
type Clock struct {
	mu    sync.Mutex
	value uint64
}

// Next advances the clock by one and returns the new value. It must be
// called once per emitted frame, immediately before stamping it.
func (c *Clock) Next() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value++
	return c.value
}

// Observe merges a clock value received from a remote process, setting the
// local counter to max(local, remote)+1, and returns the new value.
func (c *Clock) Observe(remote uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if remote > c.value {
		c.value = remote
	}
	c.value++
	return c.value
}

// Now returns the current value without advancing it.
func (c *Clock) Now() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}
