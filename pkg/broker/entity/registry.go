package entity

import (
	"sync"
	"time"

	"github.com/oladejiayo/localzure/pkg/broker/sberr"
)

// Namespace quotas.
const (
	MaxQueues                = 100
	MaxTopics                = 100
	MaxSubscriptionsPerTopic = 2000
	MaxRulesPerSubscription  = 100
)

// Registry is the namespace-wide entity store. Its mutex guards the
// entity maps and their insertion order; per-entity message state is
// guarded by each entity's own mutex.
type Registry struct {
	mu sync.RWMutex

	queues     map[string]*Queue
	queueOrder []string

	topics     map[string]*Topic
	topicOrder []string
}

// NewRegistry returns an empty namespace.
func NewRegistry() *Registry {
	return &Registry{
		queues: map[string]*Queue{},
		topics: map[string]*Topic{},
	}
}

// PutQueue creates or updates a queue. Created reports which happened.
// requires_session is immutable once the queue exists.
func (r *Registry) PutQueue(name string, props QueueProperties, now time.Time) (*Queue, bool, error) {
	if err := ValidateEntityName(name); err != nil {
		return nil, false, err
	}
	props.ApplyDefaults()

	r.mu.Lock()
	defer r.mu.Unlock()

	if q, ok := r.queues[name]; ok {
		// Props are read under the entity mutex by message operations,
		// so updates take it too.
		q.Lock()
		defer q.Unlock()
		if q.Props.RequiresSession != props.RequiresSession {
			return nil, false, sberr.NewInvalidOperation("update queue", "requires_session cannot be changed after creation")
		}
		q.Props = props
		q.UpdatedAt = now
		return q, false, nil
	}

	if len(r.queues) >= MaxQueues {
		return nil, false, sberr.NewQuotaExceeded("queues", len(r.queues), MaxQueues)
	}
	q := newQueue(name, props, now)
	r.queues[name] = q
	r.queueOrder = append(r.queueOrder, name)
	return q, true, nil
}

// GetQueue resolves a queue by name.
func (r *Registry) GetQueue(name string) (*Queue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.queues[name]
	if !ok {
		return nil, sberr.NewEntityNotFound("queue", name)
	}
	return q, nil
}

// ListQueues enumerates queues in insertion order with skip/top
// pagination.
func (r *Registry) ListQueues(skip, top int) []*Queue {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := paginate(r.queueOrder, skip, top)
	out := make([]*Queue, 0, len(names))
	for _, n := range names {
		out = append(out, r.queues[n])
	}
	return out
}

// DeleteQueue removes a queue and everything it holds.
func (r *Registry) DeleteQueue(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.queues[name]; !ok {
		return sberr.NewEntityNotFound("queue", name)
	}
	delete(r.queues, name)
	r.queueOrder = removeName(r.queueOrder, name)
	return nil
}

// PutTopic creates or updates a topic.
func (r *Registry) PutTopic(name string, props TopicProperties, now time.Time) (*Topic, bool, error) {
	if err := ValidateEntityName(name); err != nil {
		return nil, false, err
	}
	props.ApplyDefaults()

	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.topics[name]; ok {
		t.Lock()
		t.Props = props
		t.UpdatedAt = now
		t.Unlock()
		return t, false, nil
	}
	if len(r.topics) >= MaxTopics {
		return nil, false, sberr.NewQuotaExceeded("topics", len(r.topics), MaxTopics)
	}
	t := newTopic(name, props, now)
	r.topics[name] = t
	r.topicOrder = append(r.topicOrder, name)
	return t, true, nil
}

// GetTopic resolves a topic by name.
func (r *Registry) GetTopic(name string) (*Topic, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.topics[name]
	if !ok {
		return nil, sberr.NewEntityNotFound("topic", name)
	}
	return t, nil
}

// ListTopics enumerates topics in insertion order.
func (r *Registry) ListTopics(skip, top int) []*Topic {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := paginate(r.topicOrder, skip, top)
	out := make([]*Topic, 0, len(names))
	for _, n := range names {
		out = append(out, r.topics[n])
	}
	return out
}

// DeleteTopic removes a topic, cascading to its subscriptions, their
// rules, and their messages.
func (r *Registry) DeleteTopic(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.topics[name]
	if !ok {
		return sberr.NewEntityNotFound("topic", name)
	}
	t.subs = map[string]*Subscription{}
	t.subOrder = nil
	delete(r.topics, name)
	r.topicOrder = removeName(r.topicOrder, name)
	return nil
}

// PutSubscription creates or updates a subscription under a topic. At
// creation the subscription gets the $Default TRUE rule.
// requires_session is immutable once the subscription exists.
func (r *Registry) PutSubscription(topicName, name string, props SubscriptionProperties, now time.Time) (*Subscription, bool, error) {
	if err := ValidateSubscriptionName(name); err != nil {
		return nil, false, err
	}
	props.ApplyDefaults()

	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.topics[topicName]
	if !ok {
		return nil, false, sberr.NewEntityNotFound("topic", topicName)
	}
	if s, ok := t.subs[name]; ok {
		s.Lock()
		defer s.Unlock()
		if s.Props.RequiresSession != props.RequiresSession {
			return nil, false, sberr.NewInvalidOperation("update subscription", "requires_session cannot be changed after creation")
		}
		s.Props = props
		s.UpdatedAt = now
		return s, false, nil
	}
	if len(t.subs) >= MaxSubscriptionsPerTopic {
		return nil, false, sberr.NewQuotaExceeded("subscriptions", len(t.subs), MaxSubscriptionsPerTopic)
	}
	s := newSubscription(topicName, name, props, now)
	t.subs[name] = s
	t.subOrder = append(t.subOrder, name)
	return s, true, nil
}

// GetSubscription resolves a subscription by (topic, name).
func (r *Registry) GetSubscription(topicName, name string) (*Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.topics[topicName]
	if !ok {
		return nil, sberr.NewEntityNotFound("topic", topicName)
	}
	s, ok := t.subs[name]
	if !ok {
		return nil, sberr.NewEntityNotFound("subscription", topicName+"/"+name)
	}
	return s, nil
}

// ListSubscriptions enumerates a topic's subscriptions in insertion
// order.
func (r *Registry) ListSubscriptions(topicName string, skip, top int) ([]*Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.topics[topicName]
	if !ok {
		return nil, sberr.NewEntityNotFound("topic", topicName)
	}
	names := paginate(t.subOrder, skip, top)
	out := make([]*Subscription, 0, len(names))
	for _, n := range names {
		out = append(out, t.subs[n])
	}
	return out, nil
}

// Subscriptions snapshots the full subscription list of a topic in
// declaration order. The dispatcher uses it so in-flight fan-out never
// observes later mutation.
func (r *Registry) Subscriptions(topicName string) ([]*Subscription, error) {
	return r.ListSubscriptions(topicName, 0, MaxSubscriptionsPerTopic)
}

// DeleteSubscription removes a subscription, its rules, and its messages.
func (r *Registry) DeleteSubscription(topicName, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.topics[topicName]
	if !ok {
		return sberr.NewEntityNotFound("topic", topicName)
	}
	if _, ok := t.subs[name]; !ok {
		return sberr.NewEntityNotFound("subscription", topicName+"/"+name)
	}
	delete(t.subs, name)
	t.subOrder = removeName(t.subOrder, name)
	return nil
}

// PutRule creates or replaces a named rule on a subscription.
func (r *Registry) PutRule(topicName, subName string, rule *Rule, now time.Time) (bool, error) {
	if err := validateRuleName(rule.Name); err != nil {
		return false, err
	}
	s, err := r.GetSubscription(topicName, subName)
	if err != nil {
		return false, err
	}

	s.Lock()
	defer s.Unlock()
	if _, exists := s.rules[rule.Name]; !exists && len(s.rules) >= MaxRulesPerSubscription {
		return false, sberr.NewQuotaExceeded("rules", len(s.rules), MaxRulesPerSubscription)
	}
	return s.putRule(rule, now), nil
}

// GetRule resolves a rule by name.
func (r *Registry) GetRule(topicName, subName, name string) (*Rule, error) {
	s, err := r.GetSubscription(topicName, subName)
	if err != nil {
		return nil, err
	}
	s.Lock()
	defer s.Unlock()
	rule, ok := s.rules[name]
	if !ok {
		return nil, sberr.NewEntityNotFound("rule", name)
	}
	return rule, nil
}

// ListRules enumerates a subscription's rules in declaration order.
func (r *Registry) ListRules(topicName, subName string, skip, top int) ([]*Rule, error) {
	s, err := r.GetSubscription(topicName, subName)
	if err != nil {
		return nil, err
	}
	s.Lock()
	defer s.Unlock()
	names := paginate(s.ruleOrder, skip, top)
	out := make([]*Rule, 0, len(names))
	for _, n := range names {
		out = append(out, s.rules[n])
	}
	return out, nil
}

// DeleteRule removes a rule. Deleting the last rule is allowed and leaves
// a subscription that matches no message.
func (r *Registry) DeleteRule(topicName, subName, name string) error {
	s, err := r.GetSubscription(topicName, subName)
	if err != nil {
		return err
	}
	s.Lock()
	defer s.Unlock()
	if !s.deleteRule(name) {
		return sberr.NewEntityNotFound("rule", name)
	}
	return nil
}

func paginate(names []string, skip, top int) []string {
	if skip < 0 {
		skip = 0
	}
	if skip >= len(names) {
		return nil
	}
	names = names[skip:]
	if top >= 0 && top < len(names) {
		names = names[:top]
	}
	return names
}

func removeName(names []string, name string) []string {
	for i, n := range names {
		if n == name {
			return append(names[:i], names[i+1:]...)
		}
	}
	return names
}
