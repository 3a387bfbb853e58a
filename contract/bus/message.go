package bus

// Message is any value carried by the bus. Routing relies on role membership
// (the interfaces below), never on concrete type identity.
type Message interface{}

// Command is a directed instruction. It is fire-and-forget from the bus's perspective.
type Command interface {
	IsCommand()
}

// Event is a broadcast notification. No response is expected.
type Event interface {
	IsEvent()
}

// Correlated is implemented by requests and responses. The identifiers link a response
// back to the request (RequestID) and to the party that issued it (RequesterID).
type Correlated interface {
	RequestID() string
	RequesterID() string
	SetRequestID(id string)
	SetRequesterID(id string)
}

// Request expects a correlated Response.
type Request interface {
	Correlated
	IsRequest()
}

// Response answers a Request. Its correlation identifiers are set by the
// CorrelationProvider before it reaches any endpoint.
type Response interface {
	Correlated
	IsResponse()
}

// CommandMarker can be embedded to make a struct a Command.
type CommandMarker struct{}

func (CommandMarker) IsCommand() {}

// EventMarker can be embedded to make a struct an Event.
type EventMarker struct{}

func (EventMarker) IsEvent() {}

// Correlation holds request/response correlation identifiers.
// Embed it by value; the setters need a pointer receiver, so use *T as the message.
type Correlation struct {
	ReqID     string `json:"request_id,omitempty"`
	Requester string `json:"requester_id,omitempty"`
}

func (c *Correlation) RequestID() string        { return c.ReqID }
func (c *Correlation) RequesterID() string      { return c.Requester }
func (c *Correlation) SetRequestID(id string)   { c.ReqID = id }
func (c *Correlation) SetRequesterID(id string) { c.Requester = id }

// RequestMeta can be embedded to make a struct a Request.
type RequestMeta struct {
	Correlation
}

func (*RequestMeta) IsRequest() {}

// ResponseMeta can be embedded to make a struct a Response.
type ResponseMeta struct {
	Correlation
}

func (*ResponseMeta) IsResponse() {}
