package broker

import (
	"context"
	"strings"

	"github.com/oladejiayo/localzure/internal/logger"
	"github.com/oladejiayo/localzure/pkg/broker/entity"
	"github.com/oladejiayo/localzure/pkg/broker/resilience"
	"github.com/oladejiayo/localzure/pkg/broker/sberr"
)

// MaxListTop bounds the page size of list operations.
const MaxListTop = 1000

// ClampTop normalizes a requested page size into [0, MaxListTop]. A
// negative value means "no preference" and gets the maximum.
func ClampTop(top int) int {
	if top < 0 {
		return MaxListTop
	}
	if top > MaxListTop {
		return MaxListTop
	}
	return top
}

// CreateOrUpdateQueue is the idempotent admin PUT. Created reports
// whether the queue was created (true) or updated in place (false).
func (b *Broker) CreateOrUpdateQueue(ctx context.Context, name string, props entity.QueueProperties) (*entity.Queue, bool, error) {
	var (
		q       *entity.Queue
		created bool
	)
	err := resilience.WithTimeout(ctx, resilience.OpAdmin, func(ctx context.Context) error {
		var perr error
		q, created, perr = b.registry.PutQueue(name, props, b.now())
		return perr
	})
	if err != nil {
		return nil, false, err
	}
	verb := "updated"
	if created {
		verb = "created"
	}
	logger.InfoCtx(ctx, "queue "+verb, logger.KeyEntity, name, logger.KeyEntityType, "queue")
	return q, created, nil
}

// GetQueue resolves a queue for the admin façade.
func (b *Broker) GetQueue(ctx context.Context, name string) (*entity.Queue, error) {
	return b.registry.GetQueue(name)
}

// ListQueues pages through queues in insertion order.
func (b *Broker) ListQueues(ctx context.Context, skip, top int) []*entity.Queue {
	return b.registry.ListQueues(skip, ClampTop(top))
}

// DeleteQueue removes a queue, its messages, and its dead-letter
// sub-queue, and clears its rate bucket and session state.
func (b *Broker) DeleteQueue(ctx context.Context, name string) error {
	return resilience.WithTimeout(ctx, resilience.OpAdmin, func(ctx context.Context) error {
		if err := b.registry.DeleteQueue(name); err != nil {
			return err
		}
		ref := QueueRef(name)
		b.limiter.Remove(ref.Key())
		b.clearSessionState(ref.Key())
		logger.InfoCtx(ctx, "queue deleted", logger.KeyEntity, name, logger.KeyEntityType, "queue")
		return nil
	})
}

// CreateOrUpdateTopic is the idempotent admin PUT for topics.
func (b *Broker) CreateOrUpdateTopic(ctx context.Context, name string, props entity.TopicProperties) (*entity.Topic, bool, error) {
	var (
		t       *entity.Topic
		created bool
	)
	err := resilience.WithTimeout(ctx, resilience.OpAdmin, func(ctx context.Context) error {
		var perr error
		t, created, perr = b.registry.PutTopic(name, props, b.now())
		return perr
	})
	if err != nil {
		return nil, false, err
	}
	verb := "updated"
	if created {
		verb = "created"
	}
	logger.InfoCtx(ctx, "topic "+verb, logger.KeyEntity, name, logger.KeyEntityType, "topic")
	return t, created, nil
}

// GetTopic resolves a topic for the admin façade.
func (b *Broker) GetTopic(ctx context.Context, name string) (*entity.Topic, error) {
	return b.registry.GetTopic(name)
}

// ListTopics pages through topics in insertion order.
func (b *Broker) ListTopics(ctx context.Context, skip, top int) []*entity.Topic {
	return b.registry.ListTopics(skip, ClampTop(top))
}

// DeleteTopic removes a topic and cascades to its subscriptions, their
// rules, and their messages.
func (b *Broker) DeleteTopic(ctx context.Context, name string) error {
	return resilience.WithTimeout(ctx, resilience.OpAdmin, func(ctx context.Context) error {
		subs, err := b.registry.Subscriptions(name)
		if err != nil {
			return err
		}
		if err := b.registry.DeleteTopic(name); err != nil {
			return err
		}
		b.limiter.Remove("topic:" + name)
		for _, s := range subs {
			key := SubscriptionRef(name, s.Name).Key()
			b.limiter.Remove(key)
			b.clearSessionState(key)
		}
		logger.InfoCtx(ctx, "topic deleted", logger.KeyEntity, name, logger.KeyEntityType, "topic")
		return nil
	})
}

// CreateOrUpdateSubscription is the idempotent admin PUT for
// subscriptions. Creation installs the $Default TRUE rule.
func (b *Broker) CreateOrUpdateSubscription(ctx context.Context, topic, name string, props entity.SubscriptionProperties) (*entity.Subscription, bool, error) {
	var (
		s       *entity.Subscription
		created bool
	)
	err := resilience.WithTimeout(ctx, resilience.OpAdmin, func(ctx context.Context) error {
		var perr error
		s, created, perr = b.registry.PutSubscription(topic, name, props, b.now())
		return perr
	})
	if err != nil {
		return nil, false, err
	}
	verb := "updated"
	if created {
		verb = "created"
	}
	logger.InfoCtx(ctx, "subscription "+verb,
		logger.KeyEntity, topic+"/"+name, logger.KeyEntityType, "subscription")
	return s, created, nil
}

// GetSubscription resolves a subscription for the admin façade.
func (b *Broker) GetSubscription(ctx context.Context, topic, name string) (*entity.Subscription, error) {
	return b.registry.GetSubscription(topic, name)
}

// ListSubscriptions pages through a topic's subscriptions in insertion
// order.
func (b *Broker) ListSubscriptions(ctx context.Context, topic string, skip, top int) ([]*entity.Subscription, error) {
	return b.registry.ListSubscriptions(topic, skip, ClampTop(top))
}

// DeleteSubscription removes a subscription, its rules, and its
// messages.
func (b *Broker) DeleteSubscription(ctx context.Context, topic, name string) error {
	return resilience.WithTimeout(ctx, resilience.OpAdmin, func(ctx context.Context) error {
		if err := b.registry.DeleteSubscription(topic, name); err != nil {
			return err
		}
		key := SubscriptionRef(topic, name).Key()
		b.limiter.Remove(key)
		b.clearSessionState(key)
		logger.InfoCtx(ctx, "subscription deleted",
			logger.KeyEntity, topic+"/"+name, logger.KeyEntityType, "subscription")
		return nil
	})
}

// CreateOrUpdateRule installs a named rule on a subscription.
func (b *Broker) CreateOrUpdateRule(ctx context.Context, topic, sub string, rule *entity.Rule) (bool, error) {
	var created bool
	err := resilience.WithTimeout(ctx, resilience.OpAdmin, func(ctx context.Context) error {
		var perr error
		created, perr = b.registry.PutRule(topic, sub, rule, b.now())
		return perr
	})
	if err != nil {
		return false, err
	}
	logger.InfoCtx(ctx, "rule installed",
		logger.KeyEntity, topic+"/"+sub, logger.KeyEntityType, "rule", "rule", rule.Name)
	return created, nil
}

// GetRule resolves a rule for the admin façade.
func (b *Broker) GetRule(ctx context.Context, topic, sub, name string) (*entity.Rule, error) {
	return b.registry.GetRule(topic, sub, name)
}

// ListRules pages through a subscription's rules in declaration order.
func (b *Broker) ListRules(ctx context.Context, topic, sub string, skip, top int) ([]*entity.Rule, error) {
	return b.registry.ListRules(topic, sub, skip, ClampTop(top))
}

// DeleteRule removes a rule. Removing the last rule leaves the
// subscription matching nothing.
func (b *Broker) DeleteRule(ctx context.Context, topic, sub, name string) error {
	return resilience.WithTimeout(ctx, resilience.OpAdmin, func(ctx context.Context) error {
		return b.registry.DeleteRule(topic, sub, name)
	})
}

// ValidateListRange rejects out-of-range skip/top before clamping.
func ValidateListRange(skip, top int) error {
	if skip < 0 {
		return sberr.NewInvalidOperation("list", "skip must be non-negative")
	}
	if top < 0 || top > MaxListTop {
		return sberr.NewInvalidOperation("list", "top must be between 0 and 1000")
	}
	return nil
}

func (b *Broker) clearSessionState(entityKey string) {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	prefix := entityKey + "\x00"
	for k := range b.sessionState {
		if strings.HasPrefix(k, prefix) {
			delete(b.sessionState, k)
		}
	}
}
