// Package status defines the error-kind vocabulary visible from the core
// (§7) and the per-request completion latch (§4.6/C6): a pending-operation
// counter, a mutex, a condition variable, and a latched worst error code.
package status

import "sync"

// Code is an error kind the core surfaces to callers.
type Code int

const (
	// Success: all operations completed.
	Success Code = iota
	// BackendError: at least one backend task returned non-success;
	// the request latches the first one observed.
	BackendError
	// IncompleteData: a read region wasn't fully covered by stored
	// fragments and no fill value was defined.
	IncompleteData
	// InvalidArgument: mismatched dims/type, misaligned sizes where
	// required, or negative extents where not permitted.
	InvalidArgument
	// OutOfMemory: a staging allocation failed.
	OutOfMemory
	// Internal: an invariant was violated.
	Internal
)

func (c Code) String() string {
	switch c {
	case Success:
		return "Success"
	case BackendError:
		return "BackendError"
	case IncompleteData:
		return "IncompleteData"
	case InvalidArgument:
		return "InvalidArgument"
	case OutOfMemory:
		return "OutOfMemory"
	case Internal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// Error adapts a Code to the error interface so it can be returned
// directly from public API functions.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code.String()
	}
	return e.Code.String() + ": " + e.Message
}

// New builds an *Error for code with an explanatory message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Request is a per-call coordination record shared between the caller
// thread and every worker task spawned for that call: a pending count, a
// mutex, a condition variable, and the worst (first-observed) error code.
//
// Correct usage requires every increment of pending to happen-before the
// caller's Wait() — the enqueuing code must call Add() before pushing the
// task onto a worker pool, never after.
type Request struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending uint32
	code    Code
}

// NewRequest returns a Request with pending == 0 and code == Success.
func NewRequest() *Request {
	r := &Request{}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Add increments the pending count by n. Must be called before the
// corresponding tasks are enqueued.
func (r *Request) Add(n int) {
	r.mu.Lock()
	r.pending += uint32(n)
	r.mu.Unlock()
}

// Done is called by a worker when one task completes. code is the result
// of that task; if it's not Success and the request's latched code is
// still Success, code becomes the latched code. When pending reaches
// zero, Wait()ers are signalled.
func (r *Request) Done(code Code) {
	r.mu.Lock()
	if code != Success && r.code == Success {
		r.code = code
	}
	if r.pending == 0 {
		// Defensive: a Done() without a matching Add() is an invariant
		// violation, not a silent no-op.
		r.code = Internal
		r.mu.Unlock()
		r.cond.Broadcast()
		return
	}
	r.pending--
	done := r.pending == 0
	r.mu.Unlock()
	if done {
		r.cond.Broadcast()
	}
}

// Wait blocks until pending reaches zero, then returns the latched code.
func (r *Request) Wait() Code {
	r.mu.Lock()
	for r.pending > 0 {
		r.cond.Wait()
	}
	code := r.code
	r.mu.Unlock()
	return code
}

// Pending returns the current pending count, for tests and diagnostics.
func (r *Request) Pending() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending
}
