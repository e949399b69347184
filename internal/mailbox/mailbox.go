// Package mailbox implements the process-wide actor directory: named
// registration, point-to-point send with backpressure, and broadcast with
// per-recipient receiver rewriting. Grounded on
// original_source/apps/bms-iot-app/src/actors/messages/actor_queue_registry.py.
package mailbox

import (
	"context"
	"fmt"
	"sync"

	"github.com/openbms-io/bms-edge-agent/internal/message"
	"github.com/openbms-io/bms-edge-agent/internal/telemetry"
)

// Mailbox is a bounded FIFO queue owned by one actor.
type Mailbox struct {
	name string
	ch   chan message.Envelope
}

// Recv blocks until a message is available or ctx is done.
func (m *Mailbox) Recv(ctx context.Context) (message.Envelope, error) {
	select {
	case env := <-m.ch:
		return env, nil
	case <-ctx.Done():
		return message.Envelope{}, ctx.Err()
	}
}

// TryRecv returns immediately with ok=false if no message is queued.
func (m *Mailbox) TryRecv() (env message.Envelope, ok bool) {
	select {
	case env = <-m.ch:
		return env, true
	default:
		return message.Envelope{}, false
	}
}

// Depth reports the number of buffered messages, for telemetry.
func (m *Mailbox) Depth() int { return len(m.ch) }

// Registry is a process-wide directory from actor name to Mailbox.
type Registry struct {
	mu       sync.RWMutex
	boxes    map[string]*Mailbox
	capacity int
	metrics  *telemetry.Metrics
}

// NewRegistry builds an empty registry. Every mailbox registered through it
// gets the same buffered capacity.
func NewRegistry(capacity int, metrics *telemetry.Metrics) *Registry {
	return &Registry{
		boxes:    make(map[string]*Mailbox),
		capacity: capacity,
		metrics:  metrics,
	}
}

// UnknownRecipientError is returned by Send/Broadcast when the target actor
// is not registered.
type UnknownRecipientError struct{ Name string }

func (e UnknownRecipientError) Error() string {
	return fmt.Sprintf("mailbox: unknown recipient %q", e.Name)
}

// AlreadyRegisteredError is returned by Register for a duplicate name.
type AlreadyRegisteredError struct{ Name string }

func (e AlreadyRegisteredError) Error() string {
	return fmt.Sprintf("mailbox: actor %q already registered", e.Name)
}

// Register creates and returns a new mailbox for name. Fails if name is
// already bound.
func (r *Registry) Register(name string) (*Mailbox, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.boxes[name]; exists {
		return nil, AlreadyRegisteredError{Name: name}
	}
	mb := &Mailbox{name: name, ch: make(chan message.Envelope, r.capacity)}
	r.boxes[name] = mb
	return mb, nil
}

// Send delivers one envelope to "to". Blocks on a full mailbox until space
// is available or ctx is cancelled — no silent drop (spec.md §4.1).
func (r *Registry) Send(ctx context.Context, from, to string, typ message.Type, payload any) error {
	r.mu.RLock()
	mb, ok := r.boxes[to]
	r.mu.RUnlock()
	if !ok {
		return UnknownRecipientError{Name: to}
	}

	env := message.Envelope{Sender: from, Receiver: to, Type: typ, Payload: payload}
	select {
	case mb.ch <- env:
		if r.metrics != nil {
			r.metrics.SetMailboxDepth(to, mb.Depth())
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Broadcast delivers a logical copy of the message to every registered
// mailbox except from and any name in exclude. Each copy's Receiver field
// is rewritten to the recipient's own name.
func (r *Registry) Broadcast(ctx context.Context, from string, typ message.Type, payload any, exclude ...string) error {
	excluded := make(map[string]struct{}, len(exclude)+1)
	excluded[from] = struct{}{}
	for _, e := range exclude {
		excluded[e] = struct{}{}
	}

	r.mu.RLock()
	recipients := make([]*Mailbox, 0, len(r.boxes))
	for name, mb := range r.boxes {
		if _, skip := excluded[name]; skip {
			continue
		}
		recipients = append(recipients, mb)
	}
	r.mu.RUnlock()

	for _, mb := range recipients {
		env := message.Envelope{Sender: from, Receiver: mb.name, Type: typ, Payload: payload}
		select {
		case mb.ch <- env:
			if r.metrics != nil {
				r.metrics.SetMailboxDepth(mb.name, mb.Depth())
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// IsReady reports whether the registry has at least one registered actor.
// Implements telemetry.ReadinessChecker.
func (r *Registry) IsReady() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.boxes) > 0
}
