// Package gitsync serializes mutations of the shared targets repository: a
// named FIFO critical section plus the shelled git operations that must run
// inside it.
package gitsync

import (
	"context"
	"sync"
)

// LockGit is the critical-section name guarding all repository-mutating
// command sequences.
const LockGit = "git"

// Lock provides named mutual exclusion with strict FIFO granting. Waiters
// are unbounded; cancellation aborts only the wait, never a held section.
// The zero value is ready to use.
type Lock struct {
	mu     sync.Mutex
	queues map[string][]chan struct{}
}

// Acquire joins the queue for name and blocks until granted. The returned
// release function must be called exactly once; callers should defer it so a
// failing section still releases.
func (l *Lock) Acquire(ctx context.Context, name string) (func(), error) {
	grant := make(chan struct{})

	l.mu.Lock()
	if l.queues == nil {
		l.queues = map[string][]chan struct{}{}
	}
	q := l.queues[name]
	l.queues[name] = append(q, grant)
	if len(q) == 0 {
		close(grant)
	}
	l.mu.Unlock()

	select {
	case <-grant:
		var once sync.Once
		return func() { once.Do(func() { l.release(name) }) }, nil
	case <-ctx.Done():
		l.abandon(name, grant)
		return nil, ctx.Err()
	}
}

// With runs fn inside the named section.
func (l *Lock) With(ctx context.Context, name string, fn func() error) error {
	release, err := l.Acquire(ctx, name)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

func (l *Lock) release(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	q := l.queues[name][1:]
	if len(q) == 0 {
		delete(l.queues, name)
		return
	}
	l.queues[name] = q
	close(q[0])
}

// abandon removes a cancelled waiter. Granting happens under the mutex, so
// if the grant raced the cancellation the section is released instead.
func (l *Lock) abandon(name string, grant chan struct{}) {
	l.mu.Lock()
	q := l.queues[name]
	for i, ch := range q {
		if ch != grant {
			continue
		}
		if i == 0 {
			// Already granted; pass the section on.
			l.mu.Unlock()
			l.release(name)
			return
		}
		l.queues[name] = append(q[:i:i], q[i+1:]...)
		break
	}
	l.mu.Unlock()
}
