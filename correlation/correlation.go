// Package correlation provides the default request/response correlation strategy.
package correlation

import (
	"github.com/google/uuid"

	cbus "github.com/next-trace/scg-endpoint-bus/contract/bus"
)

// Provider copies the request id and requester id of a request onto its response.
type Provider struct{}

var _ cbus.CorrelationProvider = Provider{}

func (Provider) SetCorrelationIDs(req cbus.Request, resp cbus.Response) {
	resp.SetRequestID(req.RequestID())
	resp.SetRequesterID(req.RequesterID())
}

// Stamp fills a request's missing identifiers: a random request id and the given requester.
// Existing values are kept.
func Stamp(req cbus.Request, requester string) {
	if req.RequestID() == "" {
		req.SetRequestID(uuid.NewString())
	}

	if req.RequesterID() == "" {
		req.SetRequesterID(requester)
	}
}

// Matches reports whether resp answers req.
func Matches(req cbus.Request, resp cbus.Response) bool {
	return resp.RequestID() == req.RequestID() && resp.RequesterID() == req.RequesterID()
}

// NewRequesterID returns a random requester id for a client instance.
func NewRequesterID(prefix string) string {
	if prefix == "" {
		return uuid.NewString()
	}

	return prefix + "-" + uuid.NewString()
}
