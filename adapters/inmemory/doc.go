/*
Package inmemory provides an in-process broker implementing endpoint.Transport.
It records every published frame, which makes it the transport of choice for tests and examples.
*/
package inmemory
