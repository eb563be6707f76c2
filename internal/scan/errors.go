package scan

import "sync"

// errorQueue is an unbounded FIFO of failure messages drained into a
// channel by one pump goroutine. push never blocks; pushes after close are
// dropped.
type errorQueue struct {
	mu     sync.Mutex
	items  []string
	closed bool

	wake chan struct{}
	done chan struct{}
	out  chan string
}

func newErrorQueue() *errorQueue {
	q := &errorQueue{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
		out:  make(chan string),
	}
	go q.pump()
	return q
}

func (q *errorQueue) push(msg string) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, msg)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

func (q *errorQueue) pump() {
	defer close(q.out)
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			closed := q.closed
			q.mu.Unlock()
			if closed {
				return
			}
			select {
			case <-q.wake:
			case <-q.done:
			}
			continue
		}
		msg := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()

		select {
		case q.out <- msg:
		case <-q.done:
			return
		}
	}
}

// close stops accepting messages. Undelivered messages are discarded.
func (q *errorQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.items = nil
	close(q.done)
}
