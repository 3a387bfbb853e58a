/*
Package servicebus provides the bus facade that unifies several endpoints into one logical bus.

Inbound commands and requests from every endpoint are merged into one shared stream per role;
the upstream endpoint subscriptions exist only while at least one consumer is attached.
Outbound events and replies are fanned out to every endpoint whose CanHandle accepts the
message. Each endpoint is attempted, and all failures come back as one *errors.CompoundError.
*/
package servicebus
