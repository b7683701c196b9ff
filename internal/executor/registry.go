package executor

import (
	"context"
	"fmt"
)

// Handler invokes one named command's business logic against its payload
// and returns the JSON result to echo back as the reply/event payload.
type Handler func(ctx context.Context, payload string) (string, error)

// Registry maps a command name to the Handler that executes it, mirroring
// Executor.HandlerRegistry but as a concrete lookup table instead of a
// single-dispatch interface, since Go favors composition over an
// implements-everything interface per handler.
type Registry struct {
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(name string, h Handler) {
	r.handlers[name] = h
}

func (r *Registry) Invoke(ctx context.Context, name, payload string) (string, error) {
	h, ok := r.handlers[name]
	if !ok {
		return "", NewPermanent(fmt.Sprintf("unknown command %q", name))
	}
	return h(ctx, payload)
}
