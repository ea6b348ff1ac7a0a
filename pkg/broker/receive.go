package broker

import (
	"context"
	"time"

	"github.com/oladejiayo/localzure/internal/logger"
	"github.com/oladejiayo/localzure/pkg/broker/message"
	"github.com/oladejiayo/localzure/pkg/broker/ratelimit"
	"github.com/oladejiayo/localzure/pkg/broker/resilience"
	"github.com/oladejiayo/localzure/pkg/broker/sberr"
)

// ReceiveMode selects the delivery contract.
type ReceiveMode int

const (
	// PeekLock reserves each message under a lock token; the consumer
	// settles it with Complete, Abandon, or DeadLetter before the lock
	// expires.
	PeekLock ReceiveMode = iota
	// ReceiveAndDelete removes each message atomically at fetch.
	ReceiveAndDelete
)

func (m ReceiveMode) String() string {
	if m == ReceiveAndDelete {
		return "ReceiveAndDelete"
	}
	return "PeekLock"
}

// Receive fetches up to n messages from a queue, a subscription, or a
// dead-letter sub-queue. It never blocks; an empty entity yields an empty
// slice. Session-enabled entities reject plain receive.
func (b *Broker) Receive(ctx context.Context, ref Ref, mode ReceiveMode, n int) ([]*message.Message, error) {
	var out []*message.Message
	err := b.execute(ctx, resilience.OpReceive, ref.Key(), func(ctx context.Context) error {
		var rerr error
		out, rerr = b.receive(ctx, ref, mode, n)
		return rerr
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Broker) receive(ctx context.Context, ref Ref, mode ReceiveMode, n int) ([]*message.Message, error) {
	if err := b.limiter.Allow(kindOf(ref), ref.Key(), 1); err != nil {
		b.metrics.RecordRateLimited(ref.Key())
		return nil, err
	}
	t, err := b.resolve(ref)
	if err != nil {
		return nil, err
	}
	n = clampBatch(n)
	now := b.now()

	t.lock.Lock()
	defer t.lock.Unlock()
	b.catchUp(t, now)

	if t.requiresSession {
		return nil, sberr.NewInvalidOperation("receive", "entity requires sessions; accept a session lock first")
	}

	var popped []*message.Message
	if ref.DLQ {
		popped = t.box.PopDeadLettered(n)
	} else {
		popped = t.box.PopActive(n)
	}

	out := b.deliver(t, popped, mode, ref.DLQ)
	b.metrics.RecordReceive(t.key, mode.String(), len(out))
	logger.DebugCtx(ctx, "messages received",
		logger.KeyEntity, t.key, "mode", mode.String(), "count", len(out))
	return out, nil
}

// deliver applies the receive mode to freshly popped messages. Callers
// hold the entity lock. PopDeadLettered already released the popped
// bytes, so fromDLQ deliveries must not release them again.
func (b *Broker) deliver(t *target, popped []*message.Message, mode ReceiveMode, fromDLQ bool) []*message.Message {
	out := make([]*message.Message, 0, len(popped))
	for _, m := range popped {
		if mode == ReceiveAndDelete {
			m.LockToken = ""
			if !fromDLQ {
				t.box.Remove(m)
			}
			out = append(out, m)
			continue
		}
		m.DeliveryCount++
		token, until := b.locks.AcquireMessage(t.key, t.lockDuration)
		t.box.Lock(m, token, until)
		out = append(out, m)
	}
	return out
}

func kindOf(ref Ref) ratelimit.Kind {
	if ref.IsQueue() {
		return ratelimit.KindQueue
	}
	return ratelimit.KindSubscription
}

// Complete settles a locked message, removing it permanently.
func (b *Broker) Complete(ctx context.Context, ref Ref, messageID, token string) error {
	return resilience.WithTimeout(ctx, resilience.OpLock, func(ctx context.Context) error {
		return b.complete(ctx, ref, messageID, token)
	})
}

func (b *Broker) complete(ctx context.Context, ref Ref, messageID, token string) error {
	t, err := b.resolve(ref)
	if err != nil {
		return err
	}
	t.lock.Lock()
	defer t.lock.Unlock()
	b.catchUp(t, b.now())

	m := t.box.Locked(token)
	if err := validateToken(m, token); err != nil {
		return err
	}
	if messageID != "" && m.ID != messageID {
		return sberr.NewMessageLockLost()
	}

	b.locks.ReleaseMessage(t.key, token)
	t.box.ReleaseLocked(token)
	if !ref.DLQ {
		t.box.Remove(m)
	}
	b.metrics.RecordSettlement(t.key, "complete")
	logger.DebugCtx(ctx, "message completed",
		logger.KeyEntity, t.key, logger.KeyMessageID, m.ID)
	return nil
}

// Abandon releases a locked message back to the head of its FIFO. When
// the delivery count has already reached the entity maximum, the message
// is dead-lettered instead.
func (b *Broker) Abandon(ctx context.Context, ref Ref, messageID, token string) error {
	return resilience.WithTimeout(ctx, resilience.OpLock, func(ctx context.Context) error {
		return b.abandon(ctx, ref, messageID, token)
	})
}

func (b *Broker) abandon(ctx context.Context, ref Ref, messageID, token string) error {
	t, err := b.resolve(ref)
	if err != nil {
		return err
	}
	now := b.now()
	t.lock.Lock()
	defer t.lock.Unlock()
	b.catchUp(t, now)

	m := t.box.Locked(token)
	if err := validateToken(m, token); err != nil {
		return err
	}
	if messageID != "" && m.ID != messageID {
		return sberr.NewMessageLockLost()
	}

	b.locks.ReleaseMessage(t.key, token)
	t.box.ReleaseLocked(token)

	switch {
	case ref.DLQ:
		t.box.RequeueDeadLettered(m)
	case m.DeliveryCount >= t.maxDelivery:
		t.main.Remove(m)
		t.dlq.DeadLetter(m, message.ReasonMaxDeliveryCountExceeded, "delivery count exceeded the entity maximum", now)
		b.metrics.RecordDeadLetter(t.key, message.ReasonMaxDeliveryCountExceeded)
	default:
		t.box.Requeue(m)
	}
	b.metrics.RecordSettlement(t.key, "abandon")
	logger.DebugCtx(ctx, "message abandoned",
		logger.KeyEntity, t.key,
		logger.KeyMessageID, m.ID,
		logger.KeyDeliveryCnt, m.DeliveryCount)
	return nil
}

// DeadLetter moves a locked message to the entity's dead-letter
// sub-queue. The reason defaults to ProcessingError.
func (b *Broker) DeadLetter(ctx context.Context, ref Ref, messageID, token, reason, description string) error {
	return resilience.WithTimeout(ctx, resilience.OpLock, func(ctx context.Context) error {
		return b.deadLetter(ctx, ref, messageID, token, reason, description)
	})
}

func (b *Broker) deadLetter(ctx context.Context, ref Ref, messageID, token, reason, description string) error {
	t, err := b.resolve(ref)
	if err != nil {
		return err
	}
	if ref.DLQ {
		return sberr.NewInvalidOperation("dead-letter", "message is already dead-lettered")
	}
	now := b.now()
	t.lock.Lock()
	defer t.lock.Unlock()
	b.catchUp(t, now)

	m := t.box.Locked(token)
	if err := validateToken(m, token); err != nil {
		return err
	}
	if messageID != "" && m.ID != messageID {
		return sberr.NewMessageLockLost()
	}
	if reason == "" {
		reason = message.ReasonProcessingError
	}

	b.locks.ReleaseMessage(t.key, token)
	t.box.ReleaseLocked(token)
	t.main.Remove(m)
	t.dlq.DeadLetter(m, reason, description, now)

	b.metrics.RecordSettlement(t.key, "deadletter")
	b.metrics.RecordDeadLetter(t.key, reason)
	logger.DebugCtx(ctx, "message dead-lettered",
		logger.KeyEntity, t.key,
		logger.KeyMessageID, m.ID,
		logger.KeyReason, reason)
	return nil
}

// RenewLock extends a message lock by the entity lock duration and
// returns the new expiry. Delivery count is unchanged.
func (b *Broker) RenewLock(ctx context.Context, ref Ref, messageID, token string) (time.Time, error) {
	var until time.Time
	err := resilience.WithTimeout(ctx, resilience.OpLock, func(ctx context.Context) error {
		var rerr error
		until, rerr = b.renewLock(ctx, ref, messageID, token)
		return rerr
	})
	if err != nil {
		return time.Time{}, err
	}
	return until, nil
}

func (b *Broker) renewLock(ctx context.Context, ref Ref, messageID, token string) (time.Time, error) {
	t, err := b.resolve(ref)
	if err != nil {
		return time.Time{}, err
	}
	t.lock.Lock()
	defer t.lock.Unlock()
	b.catchUp(t, b.now())

	m := t.box.Locked(token)
	if terr := validateToken(m, token); terr != nil {
		return time.Time{}, terr
	}
	if messageID != "" && m.ID != messageID {
		return time.Time{}, sberr.NewMessageLockLost()
	}

	until, err := b.locks.RenewMessage(t.key, token, t.lockDuration)
	if err != nil {
		return time.Time{}, err
	}
	t.box.Lock(m, token, until)
	b.metrics.RecordSettlement(t.key, "renew")
	return until, nil
}

// Peek returns up to n messages starting at fromSequence without locking
// or removing anything. Delivery counts do not change.
func (b *Broker) Peek(ctx context.Context, ref Ref, fromSequence int64, n int) ([]*message.Message, error) {
	var out []*message.Message
	err := resilience.WithTimeout(ctx, resilience.OpReceive, func(ctx context.Context) error {
		var perr error
		out, perr = b.peek(ctx, ref, fromSequence, n)
		return perr
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Broker) peek(ctx context.Context, ref Ref, fromSequence int64, n int) ([]*message.Message, error) {
	t, err := b.resolve(ref)
	if err != nil {
		return nil, err
	}
	n = clampBatch(n)
	t.lock.Lock()
	defer t.lock.Unlock()
	b.catchUp(t, b.now())

	if ref.DLQ {
		return t.box.PeekDeadLettered(fromSequence, n), nil
	}
	return t.box.Peek(fromSequence, n), nil
}
