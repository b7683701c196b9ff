// Package executor runs a handler against one accepted command exactly once
// per inbox entry, branching the outcome into success, a permanent failure
// parked to the DLQ, or a retryable failure that rolls the transaction back
// for redelivery. Grounded on original_source/.../core/Executor.java.
package executor

import (
	"time"

	"github.com/google/uuid"
)

// Envelope is the inbound unit of work handed to the executor by a queue
// consumer: everything a handler invocation and its failure/reply/event
// bookkeeping needs, decoupled from whatever transport carried it in.
type Envelope struct {
	MessageID     uuid.UUID
	Type          string
	Name          string
	CommandID     uuid.UUID
	CorrelationID uuid.UUID
	CausationID   uuid.UUID
	OccurredAt    time.Time
	Key           string
	Headers       map[string]string
	Payload       string
}

// Kind closes the failure taxonomy a handler may signal. It replaces the
// three-deep Java exception hierarchy (PermanentException,
// RetryableBusinessException, TransientException) with a single tagged
// struct, since Go has no subtyping to branch on.
type Kind int

const (
	// Permanent means retrying can never succeed: the command is wrong, not
	// the infrastructure. The executor parks it to the DLQ and reports
	// failure without rolling back — the failure itself is the durable
	// outcome.
	Permanent Kind = iota
	// RetryableBusiness means a business precondition wasn't met but may be
	// later (e.g. insufficient funds this moment). The executor rolls back
	// and bumps retries for redelivery.
	RetryableBusiness
	// Transient means an infrastructure hiccup (timeout, connection reset).
	// Same handling as RetryableBusiness from the executor's point of view.
	Transient
)

func (k Kind) String() string {
	switch k {
	case Permanent:
		return "Permanent"
	case RetryableBusiness:
		return "RetryableBusiness"
	case Transient:
		return "Transient"
	default:
		return "Unknown"
	}
}

// Failure is the error type every Handler returns on failure. Plain errors
// returned by a handler are treated as Transient, matching the original's
// default of retrying anything not explicitly classified permanent.
type Failure struct {
	Kind    Kind
	Message string
}

func (f *Failure) Error() string { return f.Message }

func NewPermanent(msg string) *Failure          { return &Failure{Kind: Permanent, Message: msg} }
func NewRetryableBusiness(msg string) *Failure   { return &Failure{Kind: RetryableBusiness, Message: msg} }
func NewTransient(msg string) *Failure          { return &Failure{Kind: Transient, Message: msg} }

// AsFailure extracts a *Failure from err, defaulting any other non-nil error
// to Transient.
func AsFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	if f, ok := err.(*Failure); ok {
		return f
	}
	return &Failure{Kind: Transient, Message: err.Error()}
}
