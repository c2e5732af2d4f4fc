package component

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/c360/frontgate/errors"
)

// HandlerFunc responds to a single inbound message. It receives the raw JSON
// payload and returns the raw JSON response body. Handlers must be pure with
// respect to the request: all shared state lives behind the components that
// own it.
type HandlerFunc func(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)

// HandlerRegistry maps message-type identifiers to handler functions.
// It replaces class-based handler hierarchies with a flat lookup table.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewHandlerRegistry creates an empty handler registry
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		handlers: make(map[string]HandlerFunc),
	}
}

// Register binds a handler function to an identifier.
// Duplicate registration is an error.
func (r *HandlerRegistry) Register(name string, fn HandlerFunc) error {
	if name == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig,
			"HandlerRegistry", "Register", "handler name validation")
	}
	if fn == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig,
			"HandlerRegistry", "Register", "handler function validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[name]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("handler '%s' is already registered", name),
			"HandlerRegistry", "Register", "duplicate handler check")
	}

	r.handlers[name] = fn
	return nil
}

// Lookup returns the handler bound to name, if any.
func (r *HandlerRegistry) Lookup(name string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.handlers[name]
	return fn, ok
}

// List returns the identifiers of all registered handlers.
func (r *HandlerRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}

// Event is an outbound envelope produced by behaviours and delivered to
// connected clients verbatim.
type Event struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// BehaviourState is the per-behaviour cursor threaded through the scheduler.
// Offset and Carry track file-reading progress; Clients holds per-session
// cursor state keyed by session identifier. The state is owned exclusively
// by the behaviour's scheduled goroutine.
type BehaviourState struct {
	Offset  int64
	Carry   []byte
	Clients map[string]int64
}

// NewBehaviourState creates an empty cursor state
func NewBehaviourState() *BehaviourState {
	return &BehaviourState{Clients: make(map[string]int64)}
}

// Behaviour is a scheduled, recurring background task. Tick must be
// idempotent with respect to the cursor state it receives: a tick that
// observes no new input returns zero events and leaves the state unchanged.
type Behaviour interface {
	// Name returns the behaviour identifier from the manifest
	Name() string

	// Tick performs one scheduled invocation, mutating state in place and
	// returning the events to deliver to connected clients.
	Tick(ctx context.Context, state *BehaviourState) ([]Event, error)
}

// BehaviourFactory creates a behaviour instance from its manifest args.
type BehaviourFactory func(args map[string]string) (Behaviour, error)

// BehaviourRegistry maps behaviour identifiers to factories.
type BehaviourRegistry struct {
	mu        sync.RWMutex
	factories map[string]BehaviourFactory
}

// NewBehaviourRegistry creates an empty behaviour registry
func NewBehaviourRegistry() *BehaviourRegistry {
	return &BehaviourRegistry{
		factories: make(map[string]BehaviourFactory),
	}
}

// Register binds a behaviour factory to an identifier.
// Duplicate registration is an error.
func (r *BehaviourRegistry) Register(name string, factory BehaviourFactory) error {
	if name == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig,
			"BehaviourRegistry", "Register", "behaviour name validation")
	}
	if factory == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig,
			"BehaviourRegistry", "Register", "behaviour factory validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("behaviour '%s' is already registered", name),
			"BehaviourRegistry", "Register", "duplicate behaviour check")
	}

	r.factories[name] = factory
	return nil
}

// Create instantiates the behaviour registered under name with args.
func (r *BehaviourRegistry) Create(name string, args map[string]string) (Behaviour, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("behaviour '%s' is not registered", name),
			"BehaviourRegistry", "Create", "factory lookup")
	}

	return factory(args)
}

// List returns the identifiers of all registered behaviour factories.
func (r *BehaviourRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}
