package errors

import (
	"fmt"
	"strings"
)

// EndpointError is a failure captured from a single endpoint during a fan-out call.
type EndpointError struct {
	Endpoint string
	Err      error
}

func (e *EndpointError) Error() string { return fmt.Sprintf("endpoint %s: %v", e.Endpoint, e.Err) }

func (e *EndpointError) Unwrap() error { return e.Err }

// CompoundError aggregates every per-endpoint failure of one fan-out call.
//
// Failures are ordered by endpoint registration order. Code is the sentinel describing
// the operation (ErrPublishFailed, ErrReplyFailed) so callers can match with errors.Is.
type CompoundError struct {
	Code      error
	Op        string
	Message   any // the event, or the request for replies
	Response  any // set for replies only
	Attempted []string
	Failures  []*EndpointError
}

func (e *CompoundError) Error() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "%s %T: %d of %d endpoints failed", e.Op, e.Message, len(e.Failures), len(e.Attempted))

	if e.Response != nil {
		fmt.Fprintf(&sb, " (response %T)", e.Response)
	}

	for _, f := range e.Failures {
		sb.WriteString("; ")
		sb.WriteString(f.Error())
	}

	return sb.String()
}

// Unwrap exposes the operation code followed by every captured failure.
func (e *CompoundError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures)+1)
	if e.Code != nil {
		errs = append(errs, e.Code)
	}

	for _, f := range e.Failures {
		errs = append(errs, f)
	}

	return errs
}

// Endpoints returns the names of the endpoints that failed.
func (e *CompoundError) Endpoints() []string {
	names := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		names = append(names, f.Endpoint)
	}

	return names
}

// StreamError is an inbound stream failure raised by an endpoint.
// It never reaches the role streams; the bus routes it to its exceptions channel.
type StreamError struct {
	Endpoint string
	Role     string
	Err      error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("endpoint %s %s stream: %v", e.Endpoint, e.Role, e.Err)
}

func (e *StreamError) Unwrap() []error { return []error{ErrEndpointStream, e.Err} }
