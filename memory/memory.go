// Package memory wires a complete bus over one in-process broker.
package memory

import (
	"fmt"
	"log/slog"

	"github.com/next-trace/scg-endpoint-bus/adapters/inmemory"
	"github.com/next-trace/scg-endpoint-bus/codec"
	cbus "github.com/next-trace/scg-endpoint-bus/contract/bus"
	"github.com/next-trace/scg-endpoint-bus/correlation"
	"github.com/next-trace/scg-endpoint-bus/endpoint"
	"github.com/next-trace/scg-endpoint-bus/servicebus"
)

// New constructs a service bus for service backed by the in-memory broker: one endpoint
// on the service's default topics and a client counterpart on the same topics, so anything
// the client sends comes back in through the bus. The cleanup closes the bus.
func New(service string, reg *codec.Registry, logger *slog.Logger) (*servicebus.Bus, *inmemory.Broker, func(), error) {
	broker := inmemory.New()
	topics := endpoint.DefaultTopics(service)

	ep, err := endpoint.New(broker, endpoint.Options{
		Name:   service + "-memory",
		Topics: topics,
		Codec:  reg,
		Logger: logger,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("memory bus: %w", err)
	}

	client, err := endpoint.NewClient(broker, endpoint.Options{
		Name:   service + "-client",
		Topics: topics,
		Codec:  reg,
		Logger: logger,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("memory bus: %w", err)
	}

	sb, err := servicebus.New(servicebus.Config{
		Endpoints:   []cbus.Endpoint{ep},
		Correlation: correlation.Provider{},
		Client:      client,
		Logger:      logger,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("memory bus: %w", err)
	}

	cleanup := func() { _ = sb.Close() }

	return sb, broker, cleanup, nil
}
