// Package response turns the async command pipeline into a bounded
// synchronous wait for the HTTP layer: register a commandId once the bus has
// accepted the command, then block on the returned channel until the reply
// listener completes it or the wait times out. Grounded on
// original_source/.../core/ResponseRegistry.java.
package response

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Result is delivered on a pending wait's channel exactly once.
type Result struct {
	Payload string
	Err     error
}

type entry struct {
	ch   chan Result
	done bool
}

// Registry is mutex-guarded rather than a sync.Map: Complete/Fail need to
// check-and-remove atomically (send only if not already sent), which
// sync.Map's API can't express without a second round trip.
type Registry struct {
	mu      sync.Mutex
	pending map[uuid.UUID]*entry
}

func New() *Registry {
	return &Registry{pending: make(map[uuid.UUID]*entry)}
}

// Register opens a wait slot for commandID and arranges for it to
// self-expire after ttl, so a reply that never arrives can't leak memory.
func (r *Registry) Register(commandID uuid.UUID, ttl time.Duration) <-chan Result {
	e := &entry{ch: make(chan Result, 1)}

	r.mu.Lock()
	r.pending[commandID] = e
	r.mu.Unlock()

	time.AfterFunc(ttl, func() {
		r.deliver(commandID, Result{Err: errTimeout})
	})

	return e.ch
}

// Complete delivers a successful reply payload, if the wait is still open.
func (r *Registry) Complete(commandID uuid.UUID, payload string) {
	r.deliver(commandID, Result{Payload: payload})
}

// Fail delivers a failure reply, if the wait is still open.
func (r *Registry) Fail(commandID uuid.UUID, errMsg string) {
	r.deliver(commandID, Result{Err: &replyError{errMsg}})
}

func (r *Registry) deliver(commandID uuid.UUID, result Result) {
	r.mu.Lock()
	e, ok := r.pending[commandID]
	if ok {
		delete(r.pending, commandID)
	}
	r.mu.Unlock()

	if !ok || e.done {
		return
	}
	e.done = true
	e.ch <- result
}

type replyError struct{ msg string }

func (e *replyError) Error() string { return e.msg }

var errTimeout = &replyError{"synchronous wait timed out"}

// IsTimeout reports whether err is the timeout sentinel Register's
// self-expiry delivers.
func IsTimeout(err error) bool {
	return err == errTimeout
}
