package broker

import (
	"context"

	"github.com/google/uuid"

	"github.com/oladejiayo/localzure/internal/logger"
	"github.com/oladejiayo/localzure/pkg/broker/entity"
	"github.com/oladejiayo/localzure/pkg/broker/message"
	"github.com/oladejiayo/localzure/pkg/broker/ratelimit"
	"github.com/oladejiayo/localzure/pkg/broker/resilience"
	"github.com/oladejiayo/localzure/pkg/broker/sberr"
)

// Publish fans a message out to every matching subscription of a topic.
// The subscription list is snapshotted up front; subscriptions created
// during fan-out do not observe the publication. Each matched
// subscription receives an independent copy inheriting the topic's
// sequence number.
func (b *Broker) Publish(ctx context.Context, topicName string, m *message.Message) error {
	return b.execute(ctx, resilience.OpSend, "topic:"+topicName, func(ctx context.Context) error {
		return b.publish(ctx, topicName, m)
	})
}

func (b *Broker) publish(ctx context.Context, topicName string, m *message.Message) error {
	if err := b.limiter.Allow(ratelimit.KindTopic, "topic:"+topicName, 1); err != nil {
		b.metrics.RecordRateLimited("topic:" + topicName)
		return err
	}
	t, err := b.registry.GetTopic(topicName)
	if err != nil {
		return err
	}
	subs, err := b.registry.Subscriptions(topicName)
	if err != nil {
		return err
	}
	now := b.now()
	start := now

	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if size := m.Size(); size > MaxMessageSize {
		return sberr.NewMessageSizeExceeded(size, MaxMessageSize)
	}

	t.Lock()
	if t.Props.RequiresDuplicateDetection && t.IsDuplicate(m.ID, now) {
		t.Unlock()
		logger.DebugCtx(ctx, "duplicate publication suppressed",
			logger.KeyEntity, topicName, logger.KeyMessageID, m.ID)
		return nil
	}
	m.SequenceNumber = t.NextSequence()
	m.EnqueuedTime = now
	t.Unlock()

	matched := 0
	system := m.SystemProperties()
	for _, sub := range subs {
		sub.Lock()
		props := sub.Props
		sub.Unlock()

		ok, ferr := b.subscriptionMatches(sub, system, m.UserProperties)
		if !ok {
			if ferr != nil && props.DeadLetterOnFilterError {
				cp := m.Clone()
				sub.Lock()
				sub.DLQ.DeadLetter(cp, message.ReasonFilterEvaluationError, ferr.Error(), now)
				sub.Unlock()
				b.metrics.RecordDeadLetter(SubscriptionRef(topicName, sub.Name).Key(), message.ReasonFilterEvaluationError)
			}
			continue
		}

		cp := m.Clone()
		if props.RequiresSession && cp.SessionID == "" {
			sub.Lock()
			sub.DLQ.DeadLetter(cp, message.ReasonProcessingError, "message without session_id on a session-enabled subscription", now)
			sub.Unlock()
			continue
		}
		sub.Lock()
		sub.Store.Enqueue(cp, now)
		sub.Unlock()
		matched++
	}

	b.metrics.RecordFanout(topicName, matched, b.now().Sub(start))
	logger.DebugCtx(ctx, "message published",
		logger.KeyEntity, topicName,
		logger.KeyMessageID, m.ID,
		logger.KeySequence, m.SequenceNumber,
		"matched_subscriptions", matched)
	return nil
}

// subscriptionMatches evaluates the rule set in declaration order; the
// subscription matches when any rule does. A rule that fails to
// evaluate counts as no-match and the remaining rules still run; the
// first failure is reported alongside the verdict so the caller can
// apply the filter-error dead-letter policy when nothing matched.
func (b *Broker) subscriptionMatches(sub *entity.Subscription, system, user map[string]any) (bool, error) {
	sub.Lock()
	rules := sub.Rules()
	sub.Unlock()

	var firstErr error
	for _, rule := range rules {
		ok, err := rule.Matches(system, user)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok {
			return true, nil
		}
	}
	return false, firstErr
}
