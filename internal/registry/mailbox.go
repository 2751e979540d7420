package registry

import "sync"

// Mailbox is a per-user monitor: a FIFO queue of pending wire.Status
// values plus a disconnect latch, guarded by one mutex/condvar pair. The
// connection driver's writer task is the sole consumer (PopAll), the
// registry and dispatcher are the producers (Push), and DisconnectUser is
// the sole caller of ReleaseOnDisconnect.
type Mailbox struct {
	mu           sync.Mutex
	cond         *sync.Cond
	queue        []Status
	disconnected bool
}

// Status is the subset of wire.Status a mailbox needs: something that can
// be encoded onto the wire. Declared locally to avoid registry importing
// wire just to name a type it only ever passes through.
type Status interface {
	Encode() []byte
	StatusCode() int
}

// NewMailbox returns an empty, connected mailbox.
func NewMailbox() *Mailbox {
	m := &Mailbox{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Push appends s to the queue and wakes a blocked PopAll.
func (m *Mailbox) Push(s Status) {
	m.mu.Lock()
	m.queue = append(m.queue, s)
	m.mu.Unlock()
	m.cond.Signal()
}

// PopAll blocks until at least one status is queued or the mailbox has
// been released, then drains and returns everything queued. ok is false
// only when the queue was empty and the mailbox has been released — the
// disconnect sentinel. Items pushed before release are always delivered
// first; release only starves a pop that finds nothing waiting.
func (m *Mailbox) PopAll() (items []Status, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for len(m.queue) == 0 && !m.disconnected {
		m.cond.Wait()
	}
	if len(m.queue) == 0 {
		return nil, false
	}
	items, m.queue = m.queue, nil
	return items, true
}

// ReleaseOnDisconnect latches the mailbox closed and wakes any blocked
// PopAll. Safe to call more than once.
func (m *Mailbox) ReleaseOnDisconnect() {
	m.mu.Lock()
	m.disconnected = true
	m.mu.Unlock()
	m.cond.Broadcast()
}
