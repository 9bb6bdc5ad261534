package runner

import "sync"

// mailbox is an unbounded completion queue. put never blocks, so workers
// cannot stall on a slow consumer.
type mailbox struct {
	mu     sync.Mutex
	items  []Completion
	closed bool
	signal chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{signal: make(chan struct{}, 1)}
}

func (m *mailbox) put(c Completion) {
	m.mu.Lock()
	m.items = append(m.items, c)
	m.mu.Unlock()
	m.wake()
}

func (m *mailbox) close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.wake()
}

func (m *mailbox) wake() {
	select {
	case m.signal <- struct{}{}:
	default:
	}
}

func (m *mailbox) take() ([]Completion, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.items
	m.items = nil
	return items, m.closed
}

func (m *mailbox) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// forward moves completions to out in arrival order and closes out once the
// mailbox is closed and empty.
func (m *mailbox) forward(out chan<- Completion, delivered func()) {
	for {
		items, closed := m.take()
		for _, c := range items {
			out <- c
			delivered()
		}
		if len(items) > 0 {
			continue
		}
		if closed {
			close(out)
			return
		}
		<-m.signal
	}
}
