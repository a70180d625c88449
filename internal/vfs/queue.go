package vfs

import (
	"context"
	"sync"
)

// The operation queue serializes all VFS operations: exactly one executes at
// a time, in submission order, so the index tree is only ever mutated by the
// currently running operation. Coalescing rules are applied at submission,
// before an entry is enqueued:
//
//   - a pending save to the same path is cancelled by a newer save or delete
//     (last writer wins, the old waiters resolve as a no-op success)
//   - a get behind a pending save short-circuits to the pending data
//   - a get behind a pending delete is a programming error
//   - an existence check behind a pending save/delete answers true/false
//   - gets for the same path collapse into one execution, fanning out

type opKind int

const (
	opGet opKind = iota
	opSave
	opDelete
	opExists
	opOther
)

type opResult struct {
	value any
	err   error
}

type task struct {
	kind    opKind
	path    string
	data    string // pending save payload, served to short-circuited gets
	ctx     context.Context
	run     func(ctx context.Context) (any, error)
	waiters []chan opResult
}

type opQueue struct {
	mu      sync.Mutex
	pending []*task
	wake    chan struct{}
	done    chan struct{}
}

func newOpQueue() *opQueue {
	q := &opQueue{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go q.loop()
	return q
}

func (q *opQueue) close() {
	close(q.done)
}

// loop drains the queue head-first, one operation in flight at a time.
func (q *opQueue) loop() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.mu.Unlock()
			select {
			case <-q.wake:
				continue
			case <-q.done:
				return
			}
		}
		t := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		value, err := t.run(t.ctx)
		for _, w := range t.waiters {
			w <- opResult{value: value, err: err}
		}
	}
}

// submit applies the coalescing rules and either resolves immediately or
// enqueues the task and waits for the worker.
func (q *opQueue) submit(ctx context.Context, t *task) (any, error) {
	t.ctx = ctx
	ch := make(chan opResult, 1)

	q.mu.Lock()
	enqueue := true
	switch t.kind {
	case opSave, opDelete:
		// Cancel an older pending save to the same path; its callers see a
		// successful no-op.
		for i, pending := range q.pending {
			if pending.kind == opSave && pending.path == t.path {
				resolve(pending.waiters, opResult{})
				q.pending = append(q.pending[:i], q.pending[i+1:]...)
				break
			}
		}

	case opGet:
		for i := len(q.pending) - 1; i >= 0; i-- {
			pending := q.pending[i]
			if pending.path != t.path {
				continue
			}
			switch pending.kind {
			case opSave:
				data := pending.data
				q.mu.Unlock()
				return data, nil
			case opDelete:
				q.mu.Unlock()
				return nil, pathErr(ErrQueueInvariant, t.path)
			case opGet:
				pending.waiters = append(pending.waiters, ch)
				enqueue = false
			default:
				continue
			}
			break
		}

	case opExists:
		for i := len(q.pending) - 1; i >= 0; i-- {
			pending := q.pending[i]
			if pending.path != t.path {
				continue
			}
			if pending.kind == opSave {
				q.mu.Unlock()
				return true, nil
			}
			if pending.kind == opDelete {
				q.mu.Unlock()
				return false, nil
			}
		}
	}
	if enqueue {
		t.waiters = append(t.waiters, ch)
		q.pending = append(q.pending, t)
	}
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}

	select {
	case r := <-ch:
		return r.value, r.err
	case <-ctx.Done():
		// The operation may still execute; the caller just stops waiting.
		return nil, ctx.Err()
	}
}

func resolve(waiters []chan opResult, r opResult) {
	for _, w := range waiters {
		w <- r
	}
}
