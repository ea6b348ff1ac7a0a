// Package lock tracks message and session locks with background expiry.
package lock

import (
	"container/heap"
	"crypto/subtle"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oladejiayo/localzure/pkg/broker/sberr"
)

// Lock-duration bounds enforced at acquisition. Out-of-range requests are
// clamped rather than rejected so entity defaults always yield a usable
// lock.
const (
	MinLockDuration = time.Second
	MaxLockDuration = 5 * time.Minute
)

// ExpiryFunc is invoked when a message lock expires. The entity key is
// the one given at acquisition.
type ExpiryFunc func(entity, token string)

// SessionExpiryFunc is invoked when a session lock expires.
type SessionExpiryFunc func(entity, sessionID string)

type kind int

const (
	kindMessage kind = iota
	kindSession
)

type entry struct {
	kind    kind
	entity  string
	key     string // lock token for messages, session-id for sessions
	until   time.Time
	gen     uint64
	token   string // session lock token
	owner   string
	expired bool
}

// Manager owns the two lock tables and the expiry timer. A single
// background goroutine fires expiry callbacks outside the manager mutex.
type Manager struct {
	mu sync.Mutex

	messages map[string]*entry // keyed entity + "\x00" + token
	sessions map[string]*entry // keyed entity + "\x00" + session-id
	queue    expiryHeap
	gen      uint64

	timer  *time.Timer
	wake   chan struct{}
	done   chan struct{}
	closed bool

	onMessage ExpiryFunc
	onSession SessionExpiryFunc

	now func() time.Time
}

// NewManager builds a manager and starts its expiry goroutine. Either
// callback may be nil.
func NewManager(onMessage ExpiryFunc, onSession SessionExpiryFunc) *Manager {
	m := &Manager{
		messages:  map[string]*entry{},
		sessions:  map[string]*entry{},
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		onMessage: onMessage,
		onSession: onSession,
		now:       time.Now,
	}
	go m.run()
	return m
}

// Close stops the expiry goroutine. Held locks are not released.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()
	close(m.done)
}

// ClampDuration normalizes a requested lock duration into the allowed
// range.
func ClampDuration(d time.Duration) time.Duration {
	if d < MinLockDuration {
		return MinLockDuration
	}
	if d > MaxLockDuration {
		return MaxLockDuration
	}
	return d
}

// TokensEqual compares two lock tokens in constant time.
func TokensEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func lockKey(entity, key string) string { return entity + "\x00" + key }

// AcquireMessage issues a new UUID-v4 lock token for a message on the
// given entity.
func (m *Manager) AcquireMessage(entity string, d time.Duration) (token string, until time.Time) {
	d = ClampDuration(d)
	token = uuid.NewString()
	until = m.now().Add(d)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	e := &entry{kind: kindMessage, entity: entity, key: token, until: until, gen: m.gen}
	m.messages[lockKey(entity, token)] = e
	m.push(e)
	return token, until
}

// RenewMessage resets the lock expiry without touching delivery counts.
func (m *Manager) RenewMessage(entity, token string, d time.Duration) (time.Time, error) {
	d = ClampDuration(d)

	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.messages[lockKey(entity, token)]
	if !ok || e.expired {
		return time.Time{}, sberr.NewMessageLockLost()
	}
	m.gen++
	e.gen = m.gen
	e.until = m.now().Add(d)
	m.push(e)
	return e.until, nil
}

// ReleaseMessage drops a message lock after complete, abandon, or
// dead-letter. It reports whether the token was live.
func (m *Manager) ReleaseMessage(entity, token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := lockKey(entity, token)
	e, ok := m.messages[key]
	if !ok || e.expired {
		return false
	}
	e.expired = true
	delete(m.messages, key)
	return true
}

// AcquireSession locks a session for one consumer. Contended sessions
// fail with SessionAlreadyLocked.
func (m *Manager) AcquireSession(entity, sessionID, owner string, d time.Duration) (string, time.Time, error) {
	d = ClampDuration(d)

	m.mu.Lock()
	defer m.mu.Unlock()
	key := lockKey(entity, sessionID)
	if e, ok := m.sessions[key]; ok && !e.expired {
		return "", time.Time{}, sberr.NewSessionAlreadyLocked(sessionID)
	}
	m.gen++
	e := &entry{
		kind:   kindSession,
		entity: entity,
		key:    sessionID,
		until:  m.now().Add(d),
		gen:    m.gen,
		token:  uuid.NewString(),
		owner:  owner,
	}
	m.sessions[key] = e
	m.push(e)
	return e.token, e.until, nil
}

// RenewSession resets a session lock's expiry after validating the token.
func (m *Manager) RenewSession(entity, sessionID, token string, d time.Duration) (time.Time, error) {
	d = ClampDuration(d)

	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[lockKey(entity, sessionID)]
	if !ok || e.expired || !TokensEqual(e.token, token) {
		return time.Time{}, sberr.NewSessionLockLost(sessionID)
	}
	m.gen++
	e.gen = m.gen
	e.until = m.now().Add(d)
	m.push(e)
	return e.until, nil
}

// ValidateSession checks that the caller still holds the session lock.
func (m *Manager) ValidateSession(entity, sessionID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[lockKey(entity, sessionID)]
	if !ok || e.expired || !TokensEqual(e.token, token) {
		return sberr.NewSessionLockLost(sessionID)
	}
	return nil
}

// SessionLocked reports whether the session currently has a live lock.
func (m *Manager) SessionLocked(entity, sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[lockKey(entity, sessionID)]
	return ok && !e.expired
}

// ReleaseSession drops a session lock after validating the token.
func (m *Manager) ReleaseSession(entity, sessionID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := lockKey(entity, sessionID)
	e, ok := m.sessions[key]
	if !ok || e.expired || !TokensEqual(e.token, token) {
		return sberr.NewSessionLockLost(sessionID)
	}
	e.expired = true
	delete(m.sessions, key)
	return nil
}

// push queues the entry's latest expiry and nudges the timer goroutine.
// Callers hold the mutex.
func (m *Manager) push(e *entry) {
	heap.Push(&m.queue, queued{at: e.until, gen: e.gen, entry: e})
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Manager) run() {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	for {
		m.mu.Lock()
		fired := m.collectExpired()
		next := m.nextExpiry()
		m.mu.Unlock()

		for _, e := range fired {
			switch e.kind {
			case kindMessage:
				if m.onMessage != nil {
					m.onMessage(e.entity, e.key)
				}
			case kindSession:
				if m.onSession != nil {
					m.onSession(e.entity, e.key)
				}
			}
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		if next.IsZero() {
			timer.Reset(time.Hour)
		} else {
			d := time.Until(next)
			if d < 0 {
				d = 0
			}
			timer.Reset(d)
		}

		select {
		case <-m.done:
			return
		case <-m.wake:
		case <-timer.C:
		}
	}
}

// collectExpired pops due heap entries, skipping stale generations, and
// marks the live ones expired. Callers hold the mutex.
func (m *Manager) collectExpired() []*entry {
	now := m.now()
	var fired []*entry
	for m.queue.Len() > 0 {
		top := m.queue[0]
		if top.gen != top.entry.gen || top.entry.expired {
			heap.Pop(&m.queue)
			continue
		}
		if top.at.After(now) {
			break
		}
		heap.Pop(&m.queue)
		top.entry.expired = true
		switch top.entry.kind {
		case kindMessage:
			delete(m.messages, lockKey(top.entry.entity, top.entry.key))
		case kindSession:
			delete(m.sessions, lockKey(top.entry.entity, top.entry.key))
		}
		fired = append(fired, top.entry)
	}
	return fired
}

func (m *Manager) nextExpiry() time.Time {
	for m.queue.Len() > 0 {
		top := m.queue[0]
		if top.gen != top.entry.gen || top.entry.expired {
			heap.Pop(&m.queue)
			continue
		}
		return top.at
	}
	return time.Time{}
}

type queued struct {
	at    time.Time
	gen   uint64
	entry *entry
}

type expiryHeap []queued

func (h expiryHeap) Len() int           { return len(h) }
func (h expiryHeap) Less(i, j int) bool { return h[i].at.Before(h[j].at) }
func (h expiryHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *expiryHeap) Push(x any)        { *h = append(*h, x.(queued)) }
func (h *expiryHeap) Pop() any {
	old := *h
	n := len(old)
	q := old[n-1]
	*h = old[:n-1]
	return q
}
