package redis

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	berr "github.com/next-trace/scg-endpoint-bus/contract/errors"
)

// Concrete go-redis backed Client and constructor.

type Config struct {
	Addr          string
	Username      string
	Password      string
	DB            int
	TLS           bool
	TLSServerName string
	PingTimeout   time.Duration
}

type redisClient struct{ rdb *goredis.Client }

func (c redisClient) Publish(ctx context.Context, channel string, payload []byte) error {
	return c.rdb.Publish(ctx, channel, payload).Err()
}

func (c redisClient) Subscribe(ctx context.Context, channel string, fn func([]byte)) (func() error, error) {
	ps := c.rdb.Subscribe(ctx, channel)

	// wait for the subscription confirmation so no publish after Subscribe returns is missed
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	msgs := ps.Channel()

	go func() {
		for m := range msgs {
			fn([]byte(m.Payload))
		}
	}()

	return ps.Close, nil
}

func (c redisClient) Close() error { return c.rdb.Close() }

// NewWithRedis connects to Redis, verifies the connection and returns a Transport and a cleanup.
func NewWithRedis(cfg Config) (*Transport, func(), error) {
	if cfg.Addr == "" {
		return nil, nil, fmt.Errorf("redis: addr required: %w", berr.ErrInvalidConfig)
	}

	opts := &goredis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	}

	if cfg.TLS {
		opts.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			ServerName: cfg.TLSServerName,
		}
	}

	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	rdb := goredis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", errors.Join(berr.ErrSubscribeFailed, err))
	}

	tr := New(redisClient{rdb: rdb})
	cleanup := func() { _ = tr.Close() }

	return tr, cleanup, nil
}
