package network

import "sync"

// queue is a bounded FIFO of packets with a single consumer. Wait fires
// when the queue becomes non-empty.
type queue struct {
	lock        sync.Mutex
	buffer      []*packet
	read, write int
	size, len   int
	out         chan bool
}

func newQueue(size int) *queue {
	return &queue{
		buffer: make([]*packet, size),
		size:   size,
		out:    make(chan bool, 1),
	}
}

func (q *queue) notify() {
	select {
	case q.out <- true:
	default:
	}
}

// Push returns false if the queue is full.
func (q *queue) Push(pkt *packet) bool {
	q.lock.Lock()
	defer q.lock.Unlock()

	if q.len == q.size {
		return false
	}
	q.buffer[q.write] = pkt
	q.len += 1
	q.write = (q.write + 1) % q.size
	if q.len == 1 {
		q.notify()
	}
	return true
}

func (q *queue) Pop() *packet {
	q.lock.Lock()
	defer q.lock.Unlock()

	if q.len < 1 {
		return nil
	}
	pkt := q.buffer[q.read]
	q.buffer[q.read] = nil
	q.len -= 1
	q.read = (q.read + 1) % q.size
	return pkt
}

func (q *queue) Wait() <-chan bool {
	return q.out
}

func (q *queue) Available() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.size - q.len
}
