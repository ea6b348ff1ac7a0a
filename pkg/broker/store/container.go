// Package store implements the per-entity message container backing
// queues, subscriptions, and their dead-letter sub-queues.
package store

import (
	"container/heap"
	"sort"
	"time"

	"github.com/oladejiayo/localzure/pkg/broker/message"
)

// Container holds the four message views of a single entity: scheduled,
// active, locked, and dead-lettered. It is not safe for concurrent use;
// the owning entity's mutex guards it together with the lock set.
type Container struct {
	sessionful bool

	scheduled scheduledHeap
	active    []*message.Message
	sessions  map[string][]*message.Message
	locked    map[string]*lockedEntry
	dlq       []*message.Message

	seq   int64
	bytes int64

	dup *dupWindow
}

type lockedEntry struct {
	msg    *message.Message
	expiry time.Time
}

// New returns an empty container. When sessionful, active messages are
// bucketed per session-id with a per-session FIFO.
func New(sessionful bool) *Container {
	return &Container{
		sessionful: sessionful,
		sessions:   map[string][]*message.Message{},
		locked:     map[string]*lockedEntry{},
	}
}

// NextSequence assigns the next value of the entity's strictly increasing
// sequence counter.
func (c *Container) NextSequence() int64 {
	c.seq++
	return c.seq
}

// Enqueue places a message in the scheduled or active view depending on
// its scheduled-enqueue-time. The caller has already assigned the sequence
// number and enqueued-time.
func (c *Container) Enqueue(m *message.Message, now time.Time) {
	c.bytes += m.Size()
	if m.ScheduledEnqueueTime.After(now) {
		m.State = message.StateScheduled
		heap.Push(&c.scheduled, m)
		return
	}
	c.activate(m)
}

func (c *Container) activate(m *message.Message) {
	m.State = message.StateActive
	if c.sessionful && m.SessionID != "" {
		c.sessions[m.SessionID] = append(c.sessions[m.SessionID], m)
		return
	}
	c.active = append(c.active, m)
}

// PromoteScheduled moves every message whose scheduled time has arrived
// into the active view, in sequence order, and returns how many moved.
func (c *Container) PromoteScheduled(now time.Time) int {
	var due []*message.Message
	for c.scheduled.Len() > 0 && !c.scheduled[0].ScheduledEnqueueTime.After(now) {
		due = append(due, heap.Pop(&c.scheduled).(*message.Message))
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].SequenceNumber < due[j].SequenceNumber
	})
	for _, m := range due {
		c.activate(m)
	}
	return len(due)
}

// NextScheduled returns the earliest scheduled-enqueue-time, or zero when
// nothing is scheduled. The broker uses it to arm its promotion timer.
func (c *Container) NextScheduled() time.Time {
	if c.scheduled.Len() == 0 {
		return time.Time{}
	}
	return c.scheduled[0].ScheduledEnqueueTime
}

// PopActive removes and returns up to n messages from the entity FIFO.
func (c *Container) PopActive(n int) []*message.Message {
	if n > len(c.active) {
		n = len(c.active)
	}
	out := c.active[:n:n]
	c.active = c.active[n:]
	return out
}

// PopSession removes and returns up to n messages from the session FIFO,
// in sequence order.
func (c *Container) PopSession(sessionID string, n int) []*message.Message {
	buf := c.sessions[sessionID]
	if n > len(buf) {
		n = len(buf)
	}
	out := buf[:n:n]
	rest := buf[n:]
	if len(rest) == 0 {
		delete(c.sessions, sessionID)
	} else {
		c.sessions[sessionID] = rest
	}
	return out
}

// Requeue returns a message to its entity or session FIFO, placed by
// sequence number so it lands ahead of everything sent after it.
func (c *Container) Requeue(m *message.Message) {
	m.State = message.StateActive
	m.LockToken = ""
	m.LockedUntil = time.Time{}
	m.LockedBy = ""
	if c.sessionful && m.SessionID != "" {
		c.sessions[m.SessionID] = insertBySequence(c.sessions[m.SessionID], m)
		return
	}
	c.active = insertBySequence(c.active, m)
}

func insertBySequence(buf []*message.Message, m *message.Message) []*message.Message {
	i := sort.Search(len(buf), func(i int) bool {
		return buf[i].SequenceNumber > m.SequenceNumber
	})
	buf = append(buf, nil)
	copy(buf[i+1:], buf[i:])
	buf[i] = m
	return buf
}

// Lock records a locked message under its token.
func (c *Container) Lock(m *message.Message, token string, until time.Time) {
	m.State = message.StateLocked
	m.LockToken = token
	m.LockedUntil = until
	c.locked[token] = &lockedEntry{msg: m, expiry: until}
}

// Locked returns the message held under token, or nil when the token is
// unknown.
func (c *Container) Locked(token string) *message.Message {
	e, ok := c.locked[token]
	if !ok {
		return nil
	}
	return e.msg
}

// ReleaseLocked removes the token's entry and returns its message. The
// caller decides what happens next (complete, requeue, dead-letter).
func (c *Container) ReleaseLocked(token string) *message.Message {
	e, ok := c.locked[token]
	if !ok {
		return nil
	}
	delete(c.locked, token)
	return e.msg
}

// Remove drops a message from the container's accounting after a
// complete or a TTL removal.
func (c *Container) Remove(m *message.Message) {
	c.bytes -= m.Size()
	if c.bytes < 0 {
		c.bytes = 0
	}
}

// DeadLetter appends a message to the dead-letter view with the given
// reason. DLQ ordering is insertion time.
func (c *Container) DeadLetter(m *message.Message, reason, description string, now time.Time) {
	m.State = message.StateDeadLettered
	m.LockToken = ""
	m.LockedUntil = time.Time{}
	m.DeadLetterReason = reason
	m.DeadLetterDescription = description
	m.DeadLetteredAt = now
	c.bytes += m.Size()
	c.dlq = append(c.dlq, m)
}

// RequeueDeadLettered returns an abandoned dead-letter message to the head
// of the DLQ FIFO.
func (c *Container) RequeueDeadLettered(m *message.Message) {
	m.State = message.StateDeadLettered
	m.LockToken = ""
	m.LockedUntil = time.Time{}
	m.LockedBy = ""
	c.bytes += m.Size()
	c.dlq = append([]*message.Message{m}, c.dlq...)
}

// PopDeadLettered removes and returns up to n messages from the DLQ FIFO.
func (c *Container) PopDeadLettered(n int) []*message.Message {
	if n > len(c.dlq) {
		n = len(c.dlq)
	}
	out := c.dlq[:n:n]
	c.dlq = c.dlq[n:]
	for _, m := range out {
		c.bytes -= m.Size()
	}
	if c.bytes < 0 {
		c.bytes = 0
	}
	return out
}

// Peek returns up to n active messages with sequence number >= from,
// without changing any state. Session buckets are included.
func (c *Container) Peek(from int64, n int) []*message.Message {
	var out []*message.Message
	collect := func(buf []*message.Message) {
		for _, m := range buf {
			if m.SequenceNumber >= from {
				out = append(out, m)
			}
		}
	}
	collect(c.active)
	for _, buf := range c.sessions {
		collect(buf)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SequenceNumber < out[j].SequenceNumber
	})
	if n < len(out) {
		out = out[:n]
	}
	return out
}

// PeekDeadLettered returns up to n dead-lettered messages with sequence
// number >= from, in DLQ insertion order, without changing any state.
func (c *Container) PeekDeadLettered(from int64, n int) []*message.Message {
	var out []*message.Message
	for _, m := range c.dlq {
		if m.SequenceNumber >= from {
			out = append(out, m)
		}
		if len(out) == n {
			break
		}
	}
	return out
}

// Sessions returns every session-id with pending active messages, ordered
// by the oldest pending sequence number so accept-next is deterministic.
func (c *Container) Sessions() []string {
	ids := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return c.sessions[ids[i]][0].SequenceNumber < c.sessions[ids[j]][0].SequenceNumber
	})
	return ids
}

// SessionPending reports whether the session has active messages waiting.
func (c *Container) SessionPending(sessionID string) bool {
	return len(c.sessions[sessionID]) > 0
}

// ExpiredLocks returns the tokens whose lock expiry has passed.
func (c *Container) ExpiredLocks(now time.Time) []string {
	var tokens []string
	for token, e := range c.locked {
		if !now.Before(e.expiry) {
			tokens = append(tokens, token)
		}
	}
	return tokens
}

// ExpireTTL removes every active message whose time-to-live (falling back
// to defaultTTL when the message carries none) has elapsed and returns
// them for dead-lettering or disposal by the caller.
func (c *Container) ExpireTTL(now time.Time, defaultTTL time.Duration) []*message.Message {
	expired := func(m *message.Message) bool {
		ttl := m.TTL
		if ttl <= 0 {
			ttl = defaultTTL
		}
		if ttl <= 0 || m.EnqueuedTime.IsZero() {
			return false
		}
		return !now.Before(m.EnqueuedTime.Add(ttl))
	}

	var out []*message.Message
	keep := c.active[:0]
	for _, m := range c.active {
		if expired(m) {
			out = append(out, m)
		} else {
			keep = append(keep, m)
		}
	}
	c.active = keep

	for id, buf := range c.sessions {
		kept := buf[:0]
		for _, m := range buf {
			if expired(m) {
				out = append(out, m)
			} else {
				kept = append(kept, m)
			}
		}
		if len(kept) == 0 {
			delete(c.sessions, id)
		} else {
			c.sessions[id] = kept
		}
	}
	return out
}

// Counts returns the runtime counters exposed on entity descriptions.
func (c *Container) Counts() (active, scheduled, deadLettered int, sizeBytes int64) {
	active = len(c.active)
	for _, buf := range c.sessions {
		active += len(buf)
	}
	return active, c.scheduled.Len(), len(c.dlq), c.bytes
}

// LockedCount returns the number of messages currently under lock.
func (c *Container) LockedCount() int {
	return len(c.locked)
}

type scheduledHeap []*message.Message

func (h scheduledHeap) Len() int { return len(h) }
func (h scheduledHeap) Less(i, j int) bool {
	if h[i].ScheduledEnqueueTime.Equal(h[j].ScheduledEnqueueTime) {
		return h[i].SequenceNumber < h[j].SequenceNumber
	}
	return h[i].ScheduledEnqueueTime.Before(h[j].ScheduledEnqueueTime)
}
func (h scheduledHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *scheduledHeap) Push(x any) { *h = append(*h, x.(*message.Message)) }

func (h *scheduledHeap) Pop() any {
	old := *h
	n := len(old)
	m := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return m
}
