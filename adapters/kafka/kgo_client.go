package kafka

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	berr "github.com/next-trace/scg-endpoint-bus/contract/errors"
)

// Concrete franz-go based constructor and client wrapper.

type Config struct {
	Brokers  []string
	TLS      *tls.Config
	Acks     kgo.Acks
	ClientID string
	// Group joins a consumer group; empty consumes directly so every subscriber sees every record.
	Group string
	// Topics consumed from the start. Subscribe adds more on demand.
	Topics      []string
	Compression []kgo.CompressionCodec
}

type kgoClient struct{ cl *kgo.Client }

func (c kgoClient) Write(ctx context.Context, topic string, key, value []byte, headers map[string]string) error {
	rec := &kgo.Record{Topic: topic, Key: key, Value: value}
	if len(headers) > 0 {
		rec.Headers = make([]kgo.RecordHeader, 0, len(headers))
		for k, v := range headers {
			rec.Headers = append(rec.Headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
		}
	}

	return c.cl.ProduceSync(ctx, rec).FirstErr()
}

func (c kgoClient) AddTopics(topics ...string) { c.cl.AddConsumeTopics(topics...) }

func (c kgoClient) Poll(ctx context.Context) ([]Record, error) {
	fetches := c.cl.PollFetches(ctx)
	if fetches.IsClientClosed() {
		return nil, kgo.ErrClientClosed
	}

	var errs []error

	fetches.EachError(func(topic string, partition int32, err error) {
		if !errors.Is(err, context.Canceled) {
			errs = append(errs, fmt.Errorf("fetch %s/%d: %w", topic, partition, err))
		}
	})

	var out []Record

	fetches.EachRecord(func(r *kgo.Record) {
		headers := make(map[string]string, len(r.Headers))
		for _, h := range r.Headers {
			headers[h.Key] = string(h.Value)
		}

		out = append(out, Record{Topic: r.Topic, Key: r.Key, Value: r.Value, Headers: headers})
	})

	return out, errors.Join(errs...)
}

// NewWithKgo builds a franz-go client based Transport. The returned cleanup should be called to close the client.
func NewWithKgo(cfg Config) (*Transport, func(), error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil, fmt.Errorf("kafka: brokers required: %w", berr.ErrInvalidConfig)
	}

	opts := []kgo.Opt{kgo.SeedBrokers(cfg.Brokers...), kgo.ConsumeTopics(cfg.Topics...)}
	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
	}

	if cfg.Group != "" {
		opts = append(opts, kgo.ConsumerGroup(cfg.Group))
	}

	if cfg.TLS != nil {
		opts = append(opts, kgo.DialTLSConfig(cfg.TLS))
	}

	if len(cfg.Compression) > 0 {
		opts = append(opts, kgo.ProducerBatchCompression(cfg.Compression...))
	}

	if cfg.Acks != (kgo.Acks{}) {
		opts = append(opts, kgo.RequiredAcks(cfg.Acks))
	}

	cl, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka client init: %w", errors.Join(berr.ErrInvalidConfig, err))
	}

	kc := kgoClient{cl: cl}
	tr := New(kc, kc)
	tr.Closer = cl.Close
	cleanup := func() { _ = tr.Close() }

	return tr, cleanup, nil
}
