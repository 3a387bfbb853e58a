package bus

// CorrelationProvider copies the identifiers endpoints need to route resp back to
// whoever sent req. It mutates resp in place and must be stateless.
type CorrelationProvider interface {
	SetCorrelationIDs(req Request, resp Response)
}

// CorrelationFunc adapts a function to CorrelationProvider.
type CorrelationFunc func(req Request, resp Response)

func (f CorrelationFunc) SetCorrelationIDs(req Request, resp Response) { f(req, resp) }
