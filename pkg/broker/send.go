package broker

import (
	"context"

	"github.com/google/uuid"

	"github.com/oladejiayo/localzure/internal/logger"
	"github.com/oladejiayo/localzure/pkg/broker/message"
	"github.com/oladejiayo/localzure/pkg/broker/ratelimit"
	"github.com/oladejiayo/localzure/pkg/broker/resilience"
	"github.com/oladejiayo/localzure/pkg/broker/sberr"
)

// Send enqueues a message on a queue. Scheduled-enqueue-time in the
// future parks the message until due; a duplicate id inside the detection
// window is silently acknowledged.
func (b *Broker) Send(ctx context.Context, queueName string, m *message.Message) error {
	return b.execute(ctx, resilience.OpSend, "queue:"+queueName, func(ctx context.Context) error {
		return b.send(ctx, queueName, m)
	})
}

func (b *Broker) send(ctx context.Context, queueName string, m *message.Message) error {
	if err := b.limiter.Allow(ratelimit.KindQueue, "queue:"+queueName, 1); err != nil {
		b.metrics.RecordRateLimited("queue:" + queueName)
		return err
	}
	q, err := b.registry.GetQueue(queueName)
	if err != nil {
		return err
	}
	now := b.now()

	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if size := m.Size(); size > MaxMessageSize {
		return sberr.NewMessageSizeExceeded(size, MaxMessageSize)
	}
	q.Lock()
	defer q.Unlock()

	if q.Props.RequiresSession && m.SessionID == "" {
		return sberr.NewInvalidOperation("send", "entity requires a session_id on every message")
	}

	_, _, _, size := q.Store.Counts()
	if size+m.Size() > q.Props.MaxSizeBytes {
		return sberr.NewQuotaExceeded("entity_size_bytes", int(size), int(q.Props.MaxSizeBytes))
	}
	if q.Props.RequiresDuplicateDetection && q.Store.IsDuplicate(m.ID, now) {
		logger.DebugCtx(ctx, "duplicate message suppressed",
			logger.KeyEntity, queueName, logger.KeyMessageID, m.ID)
		return nil
	}

	m.SequenceNumber = q.Store.NextSequence()
	m.EnqueuedTime = now
	q.Store.Enqueue(m, now)

	b.metrics.RecordSend("queue:"+queueName, m.Size())
	logger.DebugCtx(ctx, "message enqueued",
		logger.KeyEntity, queueName,
		logger.KeyMessageID, m.ID,
		logger.KeySequence, m.SequenceNumber)
	return nil
}
