package core

import (
	"context"
	"sync"
)

// rwLock is a reader/writer lock with writer preference: once a writer is
// waiting, newly arriving readers queue behind it, preventing writer
// starvation under read-heavy traffic (spec §5). sync.RWMutex gives no
// such preference, so this is built from scratch rather than adopted from
// the standard library or any example in the pack.
//
// Waiters within the same class (reader vs writer) are served strictly in
// the order they called RLock/Lock: each class is an explicit FIFO queue
// of tickets, and a release only ever wakes the ticket(s) at the head of a
// queue. A plain sync.Cond cannot give this guarantee — every waiter
// parked on the same Cond races to reacquire the Cond's mutex after a
// Broadcast, and Go's sync.Mutex makes no promise about who wins that
// race — so acquisition order would drift from call order under
// contention. Ticket queues remove the race: only the head of a queue is
// ever granted, never contested.
type rwLock struct {
	mu            sync.Mutex
	activeReaders int
	writerActive  bool
	readerQueue   []*ticket
	writerQueue   []*ticket
}

// ticket is one waiter's place in a class queue. grantLocked closes ch to
// hand the ticket its turn; the holder never receives more than once.
type ticket struct {
	ch chan struct{}
}

func newTicket() *ticket {
	return &ticket{ch: make(chan struct{})}
}

func newRWLock() *rwLock {
	return &rwLock{}
}

// RLock blocks until a read lock is acquired, or ctx is cancelled. On
// cancellation the caller leaves the wait without disturbing other
// waiters (spec §5's cancellation requirement) and without taking its
// turn out of order.
func (l *rwLock) RLock(ctx context.Context) error {
	l.mu.Lock()
	t := newTicket()
	l.readerQueue = append(l.readerQueue, t)
	l.grantLocked()
	l.mu.Unlock()

	select {
	case <-t.ch:
		return nil
	case <-ctx.Done():
		return l.cancelWait(ctx, &l.readerQueue, t, l.RUnlock)
	}
}

func (l *rwLock) RUnlock() {
	l.mu.Lock()
	l.activeReaders--
	l.grantLocked()
	l.mu.Unlock()
}

// Lock blocks until the write lock is acquired, or ctx is cancelled.
func (l *rwLock) Lock(ctx context.Context) error {
	l.mu.Lock()
	t := newTicket()
	l.writerQueue = append(l.writerQueue, t)
	l.grantLocked()
	l.mu.Unlock()

	select {
	case <-t.ch:
		return nil
	case <-ctx.Done():
		return l.cancelWait(ctx, &l.writerQueue, t, l.Unlock)
	}
}

func (l *rwLock) Unlock() {
	l.mu.Lock()
	l.writerActive = false
	l.grantLocked()
	l.mu.Unlock()
}

// cancelWait handles a ctx cancellation raised while t was queued on
// queue. Because granting a ticket and closing its channel both happen
// under l.mu, re-checking t.ch under l.mu is race-free: either t was
// already granted (in which case the acquisition must be released so the
// lock isn't leaked held-but-unwanted), or it is still queued and is
// removed in place so later tickets in the same class are unaffected.
func (l *rwLock) cancelWait(ctx context.Context, queue *[]*ticket, t *ticket, release func()) error {
	l.mu.Lock()
	select {
	case <-t.ch:
		l.mu.Unlock()
		release()
		return ctx.Err()
	default:
		removeTicket(queue, t)
		// A cancelled writer may have been the only thing blocking
		// queued readers (grantLocked refuses reader admission
		// whenever writerQueue is non-empty); re-run admission so
		// they aren't stranded with no future release to wake them.
		l.grantLocked()
		l.mu.Unlock()
		return ctx.Err()
	}
}

func removeTicket(queue *[]*ticket, t *ticket) {
	for i, qt := range *queue {
		if qt == t {
			*queue = append((*queue)[:i], (*queue)[i+1:]...)
			return
		}
	}
}

// grantLocked admits as many queued waiters as current state allows,
// always from the head of a class queue, and must be called with l.mu
// held. Writer preference: a waiting writer blocks any reader admission
// until it has run. Multiple queued readers are admitted together in one
// call once no writer is active or waiting, since they can hold the lock
// concurrently — but always in their queued order relative to each other
// and to any writer ahead of them.
func (l *rwLock) grantLocked() {
	if len(l.writerQueue) > 0 {
		if !l.writerActive && l.activeReaders == 0 {
			t := l.writerQueue[0]
			l.writerQueue = l.writerQueue[1:]
			l.writerActive = true
			close(t.ch)
		}
		return
	}
	for len(l.readerQueue) > 0 && !l.writerActive {
		t := l.readerQueue[0]
		l.readerQueue = l.readerQueue[1:]
		l.activeReaders++
		close(t.ch)
	}
}
