package bus

import "context"

// HeaderPropagator injects cross-process context (usually tracing) into outbound
// message headers. Implementations must be safe for concurrent use.
type HeaderPropagator interface {
	Inject(ctx context.Context, headers map[string]string)
}
