/*
Package codec maps message types to stable wire names and encodes them as JSON.

The wire name travels in the HeaderMessageType header so a receiver can decode the
payload back into the registered Go type. A Registry also defines which messages an
endpoint can carry: a message is known only if its type was registered.
*/
package codec

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/goccy/go-json"

	cbus "github.com/next-trace/scg-endpoint-bus/contract/bus"
	berr "github.com/next-trace/scg-endpoint-bus/contract/errors"
)

// HeaderMessageType carries the registered wire name of the payload.
const HeaderMessageType = "x-message-type"

// Registry is a concurrency-safe set of message types keyed by wire name.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]func() any
	byType  map[reflect.Type]string
	ordered []string
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]func() any),
		byType: make(map[reflect.Type]string),
	}
}

// Register adds message type T under name. Both T and *T encode under that name;
// decoding always yields *T, so pointer-receiver roles (requests, responses) work.
func Register[T any](r *Registry, name string) error {
	if name == "" {
		return fmt.Errorf("register %s: empty name: %w", reflect.TypeFor[T](), berr.ErrInvalidConfig)
	}

	if len(cbus.RolesOf(new(T))) == 0 {
		return fmt.Errorf("register %s: plays no message role: %w", reflect.TypeFor[T](), berr.ErrInvalidConfig)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("register %s: %w", name, berr.ErrHandlerExists)
	}

	t := reflect.TypeFor[T]()
	if _, exists := r.byType[t]; exists {
		return fmt.Errorf("register %s as %s: %w", t, name, berr.ErrHandlerExists)
	}

	r.byName[name] = func() any { return new(T) }
	r.byType[t] = name
	r.byType[reflect.PointerTo(t)] = name
	r.ordered = append(r.ordered, name)

	return nil
}

// MustRegister is Register that panics on error. Intended for package init.
func MustRegister[T any](r *Registry, name string) {
	if err := Register[T](r, name); err != nil {
		panic(err)
	}
}

// Name returns the wire name of msg's type.
func (r *Registry) Name(msg any) (string, bool) {
	if msg == nil {
		return "", false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	name, ok := r.byType[reflect.TypeOf(msg)]

	return name, ok
}

// Knows reports whether msg's type is registered.
func (r *Registry) Knows(msg any) bool {
	_, ok := r.Name(msg)
	return ok
}

// Names lists registered wire names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.ordered...)
}

// Encode serialises msg and returns the headers identifying its type.
func (r *Registry) Encode(msg any) ([]byte, map[string]string, error) {
	name, ok := r.Name(msg)
	if !ok {
		return nil, nil, fmt.Errorf("encode %T: %w", msg, berr.ErrUnknownMessageType)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return nil, nil, fmt.Errorf("encode %s: %w", name, errors.Join(berr.ErrSerializationFailed, err))
	}

	return body, map[string]string{HeaderMessageType: name}, nil
}

// Decode rebuilds a message from data using the type named in headers.
func (r *Registry) Decode(data []byte, headers map[string]string) (any, error) {
	name := headers[HeaderMessageType]

	r.mu.RLock()
	factory, ok := r.byName[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("decode %q: %w", name, berr.ErrUnknownMessageType)
	}

	v := factory()
	if err := json.Unmarshal(data, v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, errors.Join(berr.ErrSerializationFailed, err))
	}

	return v, nil
}
