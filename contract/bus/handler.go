package bus

import "context"

// CommandHandler handles commands of type C.
// Implementations must be safe for concurrent use by multiple goroutines.
type CommandHandler[C Command] interface {
	Handle(ctx context.Context, c C) error
}

// EventHandler handles events of type E. Several handlers may observe the same event.
type EventHandler[E Event] interface {
	Handle(ctx context.Context, e E) error
}

// RequestHandler answers requests of type Q with a response of type R.
// Implementations must be safe for concurrent use by multiple goroutines.
type RequestHandler[Q Request, R Response] interface {
	Handle(ctx context.Context, q Q) (R, error)
}
