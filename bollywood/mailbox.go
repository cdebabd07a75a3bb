package bollywood

import "sync"

// Mailbox is a bounded, strictly FIFO sequence of Messages owned by
// exactly one actor. It generalizes the teacher's map-of-named-channels
// Mailbox/Address pair (bollywood/mailbox.go, bollywood/address.go) into
// the single bounded queue spec.md §3/§4.1 describes: one ordered
// sequence per actor rather than one channel per addressee name.
//
// System-kind messages are allowed one slot past cap, so the kernel
// actor and system control messages (such as interrupts) are never
// rejected purely by backpressure — this mirrors spec.md §4.1's
// "System messages bypass the cap by one slot to preserve kernel
// liveness."
type Mailbox struct {
	mu       sync.Mutex
	cap      int
	messages []*Message
}

// NewMailbox constructs a mailbox with the given capacity.
func NewMailbox(cap int) *Mailbox {
	return &Mailbox{cap: cap, messages: make([]*Message, 0, cap)}
}

// Len returns the current queue depth.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

// Cap returns the configured bound.
func (m *Mailbox) Cap() int { return m.cap }

// enqueue appends msg to the tail, enforcing the capacity bound (with
// the one-slot System overflow). Returns false if the mailbox is full
// and the message was rejected.
func (m *Mailbox) enqueue(msg *Message) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	limit := m.cap
	if msg.Kind == System {
		limit = m.cap + 1
	}
	if len(m.messages) >= limit {
		return false
	}
	m.messages = append(m.messages, msg)
	return true
}

// dequeue pops the head message, or returns (nil, false) if empty.
func (m *Mailbox) dequeue() (*Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.messages) == 0 {
		return nil, false
	}
	msg := m.messages[0]
	m.messages = m.messages[1:]
	return msg, true
}

// takeReply scans for a SyncReply matching requestID and, if present,
// removes it out of order while preserving the relative order of every
// other queued message. This is what lets SyncSend wait for one specific
// reply without disturbing FIFO delivery of unrelated messages queued
// ahead of it — see SPEC_FULL.md §D.1.
func (m *Mailbox) takeReply(requestID uint64) (*Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, msg := range m.messages {
		if msg.Kind == SyncReply && msg.ID == requestID {
			m.messages = append(m.messages[:i], m.messages[i+1:]...)
			return msg, true
		}
	}
	return nil, false
}

// drain empties the mailbox, returning every remaining message so the
// caller (actor termination) can release their payloads.
func (m *Mailbox) drain() []*Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.messages
	m.messages = nil
	return out
}
