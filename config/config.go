// Package config loads the YAML description of a service's endpoints and builds them.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	berr "github.com/next-trace/scg-endpoint-bus/contract/errors"
	"github.com/next-trace/scg-endpoint-bus/endpoint"
)

// TransportKind selects the broker behind an endpoint.
type TransportKind string

const (
	TransportMemory   TransportKind = "memory"
	TransportNATS     TransportKind = "nats"
	TransportRabbitMQ TransportKind = "rabbitmq"
	TransportKafka    TransportKind = "kafka"
	TransportRedis    TransportKind = "redis"
)

// Config is the root document.
type Config struct {
	// Service prefixes default topic names, e.g. "orders" gives "orders.commands".
	Service   string           `yaml:"service"`
	Endpoints []EndpointConfig `yaml:"endpoints"`
	// Client optionally describes the caller-side connection backing Send, GetResponses and Events.
	Client *EndpointConfig `yaml:"client"`
}

// EndpointConfig describes one endpoint and its transport. Only the fields of the
// selected transport are read.
type EndpointConfig struct {
	Name      string          `yaml:"name"`
	Transport TransportKind   `yaml:"transport"`
	Topics    endpoint.Topics `yaml:"topics"`

	// nats, rabbitmq
	URL string `yaml:"url"`
	// nats queue group, rabbitmq queue prefix
	Queue string `yaml:"queue"`
	// rabbitmq
	Exchange string `yaml:"exchange"`
	// kafka
	Brokers []string `yaml:"brokers"`
	Group   string   `yaml:"group"`
	// redis
	Addr     string `yaml:"addr"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	TLS      bool   `yaml:"tls"`

	ConnTimeout time.Duration `yaml:"connTimeout"`
}

// Load reads and validates the config file at path.
func Load(path string) (Config, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

// Parse decodes, normalises and validates a config document.
func Parse(r io.Reader) (Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.normalise()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c *Config) normalise() {
	c.Service = strings.TrimSpace(c.Service)

	for i := range c.Endpoints {
		c.Endpoints[i].normalise(c.Service)
	}

	if c.Client != nil {
		c.Client.normalise(c.Service)
	}
}

func (e *EndpointConfig) normalise(service string) {
	e.Name = strings.TrimSpace(e.Name)
	e.Transport = TransportKind(strings.ToLower(strings.TrimSpace(string(e.Transport))))
	e.URL = strings.TrimSpace(e.URL)
	e.Addr = strings.TrimSpace(e.Addr)

	if service != "" {
		e.Topics = e.Topics.WithDefaults(service)
	}
}

// Validate checks the document without connecting to anything.
func (c Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Endpoints))

	for i, ep := range c.Endpoints {
		if err := ep.Validate(); err != nil {
			return fmt.Errorf("config: endpoints[%d]: %w", i, err)
		}

		if _, dup := seen[ep.Name]; dup {
			return fmt.Errorf("config: endpoint %q defined twice: %w", ep.Name, berr.ErrInvalidConfig)
		}

		seen[ep.Name] = struct{}{}
	}

	if c.Client != nil {
		if err := c.Client.Validate(); err != nil {
			return fmt.Errorf("config: client: %w", err)
		}
	}

	return nil
}

// Validate checks a single endpoint entry.
func (e EndpointConfig) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("name required: %w", berr.ErrInvalidConfig)
	}

	if err := e.Topics.Validate(); err != nil {
		return fmt.Errorf("%s: %w", e.Name, err)
	}

	switch e.Transport {
	case TransportMemory:
		return nil
	case TransportNATS, TransportRabbitMQ:
		if e.URL == "" {
			return fmt.Errorf("%s: %s url required: %w", e.Name, e.Transport, berr.ErrInvalidConfig)
		}
	case TransportKafka:
		if len(e.Brokers) == 0 {
			return fmt.Errorf("%s: kafka brokers required: %w", e.Name, berr.ErrInvalidConfig)
		}
	case TransportRedis:
		if e.Addr == "" {
			return fmt.Errorf("%s: redis addr required: %w", e.Name, berr.ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%s: unknown transport %q: %w", e.Name, e.Transport, berr.ErrInvalidConfig)
	}

	return nil
}
