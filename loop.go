package literal

import (
	"context"
)

type task struct {
	fn   func() error
	done chan error
}

// Loop runs every task touching a Document on one goroutine, flushing
// mutation records after each task.
type Loop struct {
	doc   *Document
	tasks chan task
}

func NewLoop(doc *Document) *Loop {
	return &Loop{
		doc:   doc,
		tasks: make(chan task, 64),
	}
}

// Run processes tasks until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-l.tasks:
			err := t.fn()
			l.doc.Flush()
			if t.done != nil {
				t.done <- err
			}
		}
	}
}

// Post enqueues fn without waiting for it.
func (l *Loop) Post(ctx context.Context, fn func()) error {
	return l.enqueue(ctx, task{fn: func() error { fn(); return nil }})
}

// Do enqueues fn and waits until it ran and its mutation records were
// delivered.
func (l *Loop) Do(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	if err := l.enqueue(ctx, task{fn: fn, done: done}); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func (l *Loop) enqueue(ctx context.Context, t task) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case l.tasks <- t:
		return nil
	}
}
