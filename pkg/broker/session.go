package broker

import (
	"context"
	"time"

	"github.com/oladejiayo/localzure/internal/logger"
	"github.com/oladejiayo/localzure/pkg/broker/message"
	"github.com/oladejiayo/localzure/pkg/broker/resilience"
	"github.com/oladejiayo/localzure/pkg/broker/sberr"
)

// Session is a held session lock. All session-scoped calls present the
// lock token; losing it (expiry or release) invalidates the session.
type Session struct {
	Entity      Ref
	ID          string
	LockToken   string
	LockedUntil time.Time
}

// AcceptNextSession locks the session whose pending messages have the
// oldest sequence number among sessions nobody holds. With no candidate
// it fails with SessionNotFound.
func (b *Broker) AcceptNextSession(ctx context.Context, ref Ref, owner string) (*Session, error) {
	var s *Session
	err := resilience.WithTimeout(ctx, resilience.OpSession, func(ctx context.Context) error {
		var aerr error
		s, aerr = b.acceptNextSession(ctx, ref, owner)
		return aerr
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (b *Broker) acceptNextSession(ctx context.Context, ref Ref, owner string) (*Session, error) {
	t, err := b.resolve(ref)
	if err != nil {
		return nil, err
	}
	if !t.requiresSession {
		return nil, sberr.NewInvalidOperation("accept session", "entity is not session-enabled")
	}
	now := b.now()

	t.lock.Lock()
	defer t.lock.Unlock()
	b.catchUp(t, now)

	for _, id := range t.box.Sessions() {
		if b.locks.SessionLocked(t.key, id) {
			continue
		}
		token, until, err := b.locks.AcquireSession(t.key, id, owner, t.lockDuration)
		if err != nil {
			continue
		}
		logger.DebugCtx(ctx, "session accepted",
			logger.KeyEntity, t.key, logger.KeySessionID, id)
		return &Session{Entity: ref, ID: id, LockToken: token, LockedUntil: until}, nil
	}
	return nil, sberr.NewSessionNotFound("")
}

// AcceptSession locks one named session. Contention fails with
// SessionAlreadyLocked; a session with no messages and no stored state
// does not exist.
func (b *Broker) AcceptSession(ctx context.Context, ref Ref, sessionID, owner string) (*Session, error) {
	var s *Session
	err := resilience.WithTimeout(ctx, resilience.OpSession, func(ctx context.Context) error {
		var aerr error
		s, aerr = b.acceptSession(ctx, ref, sessionID, owner)
		return aerr
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (b *Broker) acceptSession(ctx context.Context, ref Ref, sessionID, owner string) (*Session, error) {
	t, err := b.resolve(ref)
	if err != nil {
		return nil, err
	}
	if !t.requiresSession {
		return nil, sberr.NewInvalidOperation("accept session", "entity is not session-enabled")
	}
	now := b.now()

	t.lock.Lock()
	defer t.lock.Unlock()
	b.catchUp(t, now)

	if !t.box.SessionPending(sessionID) && !b.hasSessionState(t.key, sessionID) {
		return nil, sberr.NewSessionNotFound(sessionID)
	}
	token, until, err := b.locks.AcquireSession(t.key, sessionID, owner, t.lockDuration)
	if err != nil {
		return nil, err
	}
	logger.DebugCtx(ctx, "session accepted",
		logger.KeyEntity, t.key, logger.KeySessionID, sessionID)
	return &Session{Entity: ref, ID: sessionID, LockToken: token, LockedUntil: until}, nil
}

// ReceiveSession fetches up to n messages belonging to the locked
// session, in strict sequence order.
func (b *Broker) ReceiveSession(ctx context.Context, s *Session, mode ReceiveMode, n int) ([]*message.Message, error) {
	var out []*message.Message
	err := b.execute(ctx, resilience.OpSession, s.Entity.Key(), func(ctx context.Context) error {
		var rerr error
		out, rerr = b.receiveSession(ctx, s, mode, n)
		return rerr
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Broker) receiveSession(ctx context.Context, s *Session, mode ReceiveMode, n int) ([]*message.Message, error) {
	t, err := b.resolve(s.Entity)
	if err != nil {
		return nil, err
	}
	if err := b.locks.ValidateSession(t.key, s.ID, s.LockToken); err != nil {
		return nil, err
	}
	if err := b.limiter.Allow(kindOf(s.Entity), t.key, 1); err != nil {
		b.metrics.RecordRateLimited(t.key)
		return nil, err
	}
	n = clampBatch(n)
	now := b.now()

	t.lock.Lock()
	defer t.lock.Unlock()
	b.catchUp(t, now)

	popped := t.box.PopSession(s.ID, n)
	out := b.deliver(t, popped, mode, false)
	b.metrics.RecordReceive(t.key, mode.String(), len(out))
	return out, nil
}

// RenewSessionLock extends the session lock and returns the new expiry.
func (b *Broker) RenewSessionLock(ctx context.Context, s *Session) (time.Time, error) {
	var until time.Time
	err := resilience.WithTimeout(ctx, resilience.OpSession, func(ctx context.Context) error {
		var rerr error
		until, rerr = b.renewSessionLock(ctx, s)
		return rerr
	})
	if err != nil {
		return time.Time{}, err
	}
	return until, nil
}

func (b *Broker) renewSessionLock(ctx context.Context, s *Session) (time.Time, error) {
	t, err := b.resolve(s.Entity)
	if err != nil {
		return time.Time{}, err
	}
	until, err := b.locks.RenewSession(t.key, s.ID, s.LockToken, t.lockDuration)
	if err != nil {
		return time.Time{}, err
	}
	s.LockedUntil = until
	return until, nil
}

// ReleaseSession gives the session back. Unsettled locked messages keep
// their own message locks and re-activate when those expire.
func (b *Broker) ReleaseSession(ctx context.Context, s *Session) error {
	return resilience.WithTimeout(ctx, resilience.OpSession, func(ctx context.Context) error {
		t, err := b.resolve(s.Entity)
		if err != nil {
			return err
		}
		return b.locks.ReleaseSession(t.key, s.ID, s.LockToken)
	})
}

// SessionState returns the opaque state blob stored for the session.
func (b *Broker) SessionState(ctx context.Context, s *Session) ([]byte, error) {
	var state []byte
	err := resilience.WithTimeout(ctx, resilience.OpSession, func(ctx context.Context) error {
		t, err := b.resolve(s.Entity)
		if err != nil {
			return err
		}
		if err := b.locks.ValidateSession(t.key, s.ID, s.LockToken); err != nil {
			return err
		}
		b.stateMu.Lock()
		defer b.stateMu.Unlock()
		state = b.sessionState[t.key+"\x00"+s.ID]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

// SetSessionState stores the opaque state blob for the session. A nil
// blob clears it.
func (b *Broker) SetSessionState(ctx context.Context, s *Session, state []byte) error {
	return resilience.WithTimeout(ctx, resilience.OpSession, func(ctx context.Context) error {
		t, err := b.resolve(s.Entity)
		if err != nil {
			return err
		}
		if err := b.locks.ValidateSession(t.key, s.ID, s.LockToken); err != nil {
			return err
		}
		b.stateMu.Lock()
		defer b.stateMu.Unlock()
		key := t.key + "\x00" + s.ID
		if state == nil {
			delete(b.sessionState, key)
			return nil
		}
		b.sessionState[key] = append([]byte(nil), state...)
		return nil
	})
}

func (b *Broker) hasSessionState(entityKey, sessionID string) bool {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	_, ok := b.sessionState[entityKey+"\x00"+sessionID]
	return ok
}
