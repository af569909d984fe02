package actor

import (
	"sync"

	"github.com/harun/agentflow/pkg/flowerr"
)

// mailbox is an unbounded FIFO with a single consumer.
type mailbox struct {
	mu     sync.Mutex
	queue  []Message
	closed bool
	notify chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{notify: make(chan struct{}, 1)}
}

// push appends msg and returns the queue depth after the append.
func (m *mailbox) push(msg Message) (int, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, flowerr.ErrInboxClosed
	}
	m.queue = append(m.queue, msg)
	depth := len(m.queue)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
	return depth, nil
}

// pop blocks until a message is available and returns it with the remaining depth.
func (m *mailbox) pop() (Message, int) {
	for {
		m.mu.Lock()
		if len(m.queue) > 0 {
			msg := m.queue[0]
			m.queue[0] = nil
			m.queue = m.queue[1:]
			depth := len(m.queue)
			m.mu.Unlock()
			return msg, depth
		}
		m.mu.Unlock()
		<-m.notify
	}
}

// close rejects further pushes and returns whatever was still queued.
func (m *mailbox) close() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	pending := m.queue
	m.queue = nil
	return pending
}

func (m *mailbox) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
