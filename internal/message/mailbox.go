package message

import "sync"

// Mailbox is an unbounded, FIFO, multi-producer/single-consumer queue of
// Messages (spec §5: "channels are multi-producer/single-consumer with
// FIFO order per (producer, consumer) pair"; spec §4.1: node actors own
// "two unbounded message channels").
//
// The teacher's core/message.Queue wrapped a fixed-capacity buffered
// channel and dropped sends when full ("Queue full" on Enqueue). That is
// wrong for this spec: a node's inbound queue must never reject a send
// (the fabric has nowhere else to put a message), so Mailbox instead keeps
// an unbounded internal slice guarded by a mutex, with a condition
// variable to wake a blocking Receive.
type Mailbox struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []Message
	closed bool
}

// NewMailbox creates an empty, open mailbox.
func NewMailbox() *Mailbox {
	m := &Mailbox{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Send enqueues msg. Never blocks, and never drops while the mailbox is
// open; a message sent after Close is discarded.
func (m *Mailbox) Send(msg Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.buf = append(m.buf, msg)
	m.cond.Signal()
}

// TryReceive returns the oldest queued message without blocking. The
// second return value is false if the mailbox is empty.
func (m *Mailbox) TryReceive() (Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.buf) == 0 {
		return nil, false
	}
	msg := m.buf[0]
	m.buf = m.buf[1:]
	return msg, true
}

// Receive blocks until a message is available or the mailbox is closed.
// The second return value is false only when the mailbox was closed with
// nothing left to deliver.
func (m *Mailbox) Receive() (Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for len(m.buf) == 0 && !m.closed {
		m.cond.Wait()
	}
	if len(m.buf) == 0 {
		return nil, false
	}
	msg := m.buf[0]
	m.buf = m.buf[1:]
	return msg, true
}

// Len reports the number of queued, undelivered messages.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buf)
}

// Close marks the mailbox closed; blocked receivers wake and observe
// ok=false once drained.
func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cond.Broadcast()
}
