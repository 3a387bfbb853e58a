package endpoint

import (
	"context"

	cbus "github.com/next-trace/scg-endpoint-bus/contract/bus"
	berr "github.com/next-trace/scg-endpoint-bus/contract/errors"
	"github.com/next-trace/scg-endpoint-bus/correlation"
	"github.com/next-trace/scg-endpoint-bus/stream"
)

// Client is the caller side of a transport: it sends commands and requests
// and receives events and responses.
type Client struct {
	w         *wire
	topics    Topics
	requester string
}

var _ cbus.Client = (*Client)(nil)

// NewClient creates a Client over t.
func NewClient(t Transport, opts Options) (*Client, error) {
	w, err := opts.wire(t)
	if err != nil {
		return nil, err
	}

	requester := opts.Requester
	if requester == "" {
		requester = correlation.NewRequesterID(opts.Name)
	}

	return &Client{w: w, topics: opts.Topics, requester: requester}, nil
}

// Requester returns the id stamped on requests sent by this client.
func (c *Client) Requester() string { return c.requester }

func (c *Client) Events() stream.Stream[cbus.Event] {
	return inbound[cbus.Event](c.w, c.topics.Events, cbus.RoleEvent)
}

func (c *Client) Send(ctx context.Context, cmd cbus.Command) error {
	return c.w.send(ctx, &sendArgs{
		topic: c.topics.Commands,
		msg:   cmd,
		wrap:  berr.ErrSendFailed,
		label: "send",
	})
}

// GetResponses stamps req with correlation ids now; on each subscription it starts
// listening for matching responses and then sends req.
func (c *Client) GetResponses(ctx context.Context, req cbus.Request) stream.Stream[cbus.Response] {
	correlation.Stamp(req, c.requester)

	responses := stream.Filter(
		inbound[cbus.Response](c.w, c.topics.Responses, cbus.RoleResponse),
		func(resp cbus.Response) bool { return correlation.Matches(req, resp) },
	)

	return stream.Func[cbus.Response](func(sink stream.Sink[cbus.Response]) (stream.Subscription, error) {
		sub, err := responses.Subscribe(sink)
		if err != nil {
			return nil, err
		}

		err = c.w.send(ctx, &sendArgs{
			topic:   c.topics.Requests,
			msg:     req,
			headers: correlationHeaders(req),
			wrap:    berr.ErrSendFailed,
			label:   "request",
		})
		if err != nil {
			_ = sub.Close()
			return nil, err
		}

		return sub, nil
	})
}

func (c *Client) Close() error { return c.w.transport.Close() }
