package server

import (
	"net"
	"sync"
)

// connQueue hands accepted connections from the acceptor to the workers.
// With capacity 0 it never blocks the acceptor; otherwise Push waits for
// room. After Close, Push refuses new connections while Pop keeps handing
// out the ones already queued until the queue is empty.
type connQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	items    []net.Conn
	capacity int
	closed   bool
}

func newConnQueue(capacity int) *connQueue {
	q := &connQueue{capacity: capacity}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Push enqueues conn. It returns false once the queue is closed, in which
// case the caller still owns conn.
func (q *connQueue) Push(conn net.Conn) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.capacity > 0 && len(q.items) >= q.capacity && !q.closed {
		q.notFull.Wait()
	}
	if q.closed {
		return false
	}

	q.items = append(q.items, conn)
	q.notEmpty.Signal()
	return true
}

// Pop waits for a connection. It returns false when the queue is closed
// and drained.
func (q *connQueue) Pop() (net.Conn, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}

	conn := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	q.notFull.Signal()
	return conn, true
}

func (q *connQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}

func (q *connQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
