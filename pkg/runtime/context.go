package runtime

import (
	"unsafe"
)

// TracingDomain is one class of buffered-tracing records a profiling
// context may request.
type TracingDomain uint32

const (
	TracingDomainKernelDispatch TracingDomain = iota
	TracingDomainMemoryCopy
	TracingDomainAPI
)

// BufferedTracer holds the buffered-tracing domains a context requested.
type BufferedTracer struct {
	domains map[TracingDomain]struct{}
}

// NewBufferedTracer builds a tracer request for the given domains.
func NewBufferedTracer(domains ...TracingDomain) *BufferedTracer {
	t := &BufferedTracer{domains: make(map[TracingDomain]struct{}, len(domains))}
	for _, d := range domains {
		t.domains[d] = struct{}{}
	}

	return t
}

// Domain reports whether the context requested tracing for d.
func (t *BufferedTracer) Domain(d TracingDomain) bool {
	if t == nil {
		return false
	}
	_, ok := t.domains[d]

	return ok
}

// Context is one registered profiling context. It is consumed read-only:
// the queue controller inspects the requested services to decide whether
// queue interception must be installed at all.
type Context struct {
	CounterCollection bool
	BufferedTracer    *BufferedTracer
}

// ContextStructSize is the size of Context this package was compiled
// against. Adding a field to Context changes it; the queue controller
// checks it against the size it expects so that a new service request
// cannot be silently ignored by the interception decision.
const ContextStructSize = unsafe.Sizeof(Context{})
