package core

// job_lock.go serializes jobs of the same import type.
//
// Each import type owns a one-slot semaphore. A job waits up to maxWait for
// the slot before failing with ErrImportBusy. Jobs of different types never
// block each other.
//
// WaitForDrain blocks until every held lock is released and is used for
// graceful shutdown.

import (
	"context"
	"sync"
	"time"
)

// DefaultLockWait is how long a job waits for its type's lock.
const DefaultLockWait = 30 * time.Second

// JobLocker grants exclusive access per import type. The returned unlock
// func must be called exactly once.
type JobLocker interface {
	Lock(ctx context.Context, t ImportType) (unlock func(), err error)
}

// LocalLocker is an in-process JobLocker.
type LocalLocker struct {
	maxWait time.Duration

	mu     sync.Mutex
	slots  map[ImportType]chan struct{}
	active int
}

// NewLocalLocker creates a locker that waits at most maxWait for a slot.
func NewLocalLocker(maxWait time.Duration) *LocalLocker {
	if maxWait <= 0 {
		maxWait = DefaultLockWait
	}
	return &LocalLocker{
		maxWait: maxWait,
		slots:   make(map[ImportType]chan struct{}),
	}
}

func (l *LocalLocker) slot(t ImportType) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[t]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[t] = ch
	}
	return ch
}

// Lock acquires the slot for t.
// Returns ErrImportBusy if maxWait expires, ctx.Err() if ctx ends first.
func (l *LocalLocker) Lock(ctx context.Context, t ImportType) (func(), error) {
	ch := l.slot(t)

	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	select {
	case ch <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()

		var once sync.Once
		return func() {
			once.Do(func() {
				l.mu.Lock()
				l.active--
				l.mu.Unlock()
				<-ch
			})
		}, nil

	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrImportBusy
	}
}

// ActiveCount returns the number of held locks.
func (l *LocalLocker) ActiveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// Held reports whether t's lock is currently taken.
func (l *LocalLocker) Held(t ImportType) bool {
	return len(l.slot(t)) > 0
}

// WaitForDrain blocks until no lock is held or ctx is cancelled.
func (l *LocalLocker) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
