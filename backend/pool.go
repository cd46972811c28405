package backend

import (
	"context"

	"github.com/esdm-project/esdm-go/fragment"
	"github.com/esdm-project/esdm-go/status"
)

// Op names the I/O direction a Task performs.
type Op int

const (
	OpCommit Op = iota
	OpRetrieve
)

// Task is one unit of backend I/O dispatched through a Pool: an operation
// on a fragment, the request-level completion latch it reports into, and
// an optional callback invoked after the backend call returns (used by the
// scheduler to e.g. update the catalogue or fill in read buffers).
type Task struct {
	Op       Op
	Fragment *fragment.Fragment
	Req      *status.Request
	Callback func(*fragment.Fragment, error)
}

// Pool is a per-backend bounded worker pool (§4.6/C6). threads is sized by
// ThreadCount; a threads of zero means no goroutines are started and every
// Enqueue runs its task synchronously on the caller's goroutine, which is
// the right behavior for small single-node deployments and for tests.
type Pool struct {
	backend Backend
	threads int
	tasks   chan Task
	done    chan struct{}
}

// NewPool starts a worker pool of the given size for backend. threads <= 0
// selects inline (synchronous) execution.
func NewPool(b Backend, threads int) *Pool {
	p := &Pool{backend: b, threads: threads}
	if threads <= 0 {
		return p
	}
	p.tasks = make(chan Task, threads*2)
	p.done = make(chan struct{})
	for i := 0; i < threads; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	for t := range p.tasks {
		p.run(t)
	}
}

func (p *Pool) run(t Task) {
	var err error
	switch t.Op {
	case OpCommit:
		err = p.backend.Commit(context.Background(), t.Fragment)
	case OpRetrieve:
		err = p.backend.Retrieve(context.Background(), t.Fragment)
	}
	if t.Callback != nil {
		t.Callback(t.Fragment, err)
	}
	if t.Req != nil {
		code := status.Success
		if err != nil {
			code = status.BackendError
		}
		t.Req.Done(code)
	}
}

// Enqueue submits t for execution. The caller must have already called
// t.Req.Add(1) (if Req is set) before calling Enqueue, so that a Wait()
// racing with a fast-completing task can never observe pending == 0
// prematurely.
func (p *Pool) Enqueue(t Task) {
	if p.threads <= 0 {
		p.run(t)
		return
	}
	p.tasks <- t
}

// Close stops accepting new tasks. Tasks already queued are still run by
// the workers, but Close returns without waiting for them. Close is a
// no-op for an inline (threads <= 0) pool.
func (p *Pool) Close() {
	if p.threads <= 0 {
		return
	}
	close(p.tasks)
}
