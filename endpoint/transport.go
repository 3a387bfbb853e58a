/*
Package endpoint implements bus endpoints and clients on top of a byte-level Transport.

Broker adapters (NATS, RabbitMQ, Kafka, Redis, in-memory) only move frames between topics;
this package owns encoding, role filtering, correlation and error wrapping, so every adapter
behaves the same way towards the bus.
*/
package endpoint

import (
	"context"
	"fmt"

	berr "github.com/next-trace/scg-endpoint-bus/contract/errors"
	"github.com/next-trace/scg-endpoint-bus/stream"
)

// Header keys set on outbound frames in addition to codec.HeaderMessageType.
const (
	HeaderRequestID   = "x-request-id"
	HeaderRequesterID = "x-requester-id"
)

// FrameHandler receives one inbound frame.
type FrameHandler func(data []byte, headers map[string]string)

// Transport moves opaque frames between named topics.
// Implementations must be safe for concurrent use.
type Transport interface {
	// Publish sends one frame to topic. It returns once the broker accepted it.
	Publish(ctx context.Context, topic string, data []byte, headers map[string]string) error
	// Subscribe delivers frames published to topic until the subscription is closed.
	Subscribe(topic string, fn FrameHandler) (stream.Subscription, error)
	// Close releases the transport's connections.
	Close() error
}

// Topics names the four per-service topics.
type Topics struct {
	Commands  string `yaml:"commands"`
	Events    string `yaml:"events"`
	Requests  string `yaml:"requests"`
	Responses string `yaml:"responses"`
}

// DefaultTopics derives topic names from a service prefix, e.g. "orders.commands".
func DefaultTopics(service string) Topics {
	return Topics{
		Commands:  service + ".commands",
		Events:    service + ".events",
		Requests:  service + ".requests",
		Responses: service + ".responses",
	}
}

// WithDefaults fills empty topic names from DefaultTopics(service).
func (t Topics) WithDefaults(service string) Topics {
	d := DefaultTopics(service)

	if t.Commands == "" {
		t.Commands = d.Commands
	}

	if t.Events == "" {
		t.Events = d.Events
	}

	if t.Requests == "" {
		t.Requests = d.Requests
	}

	if t.Responses == "" {
		t.Responses = d.Responses
	}

	return t
}

// Validate rejects empty topic names.
func (t Topics) Validate() error {
	for role, name := range map[string]string{
		"commands":  t.Commands,
		"events":    t.Events,
		"requests":  t.Requests,
		"responses": t.Responses,
	} {
		if name == "" {
			return fmt.Errorf("topics: %s topic required: %w", role, berr.ErrInvalidConfig)
		}
	}

	return nil
}
