package duplex

import (
	"sync"
	"time"
)

// playbackQueue is an unbounded FIFO between the receive loop and the
// playback consumer. Pushes never block and never drop.
type playbackQueue struct {
	mu     sync.Mutex
	items  [][]byte
	closed bool
	notify chan struct{}
}

func newPlaybackQueue() *playbackQueue {
	return &playbackQueue{notify: make(chan struct{}, 1)}
}

// push appends pcm and reports false if the queue is already closed.
func (q *playbackQueue) push(pcm []byte) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, pcm)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// close marks the end of input. Items already queued are still delivered.
func (q *playbackQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// pop waits up to wait for an item. done is true once the queue is closed and
// drained; timedOut is true when nothing arrived within wait.
func (q *playbackQueue) pop(wait time.Duration) (item []byte, done, timedOut bool) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item = q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			q.mu.Unlock()
			return item, false, false
		}
		if q.closed {
			q.mu.Unlock()
			return nil, true, false
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-timer.C:
			return nil, false, true
		}
	}
}

func (q *playbackQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
