// Package entity owns the namespace registry: queues, topics,
// subscriptions, and rules, with validation, quotas, and cascade delete.
package entity

import (
	"sync"
	"time"

	"github.com/oladejiayo/localzure/pkg/broker/store"
)

// Queue is a point-to-point entity. Its mutex guards the message store,
// the dead-letter sub-queue, and the lock set; single-entity operations
// serialize on it.
type Queue struct {
	mu sync.Mutex

	Name      string
	Props     QueueProperties
	Store     *store.Container
	DLQ       *store.Container
	CreatedAt time.Time
	UpdatedAt time.Time
}

func newQueue(name string, props QueueProperties, now time.Time) *Queue {
	q := &Queue{
		Name:      name,
		Props:     props,
		Store:     store.New(props.RequiresSession),
		DLQ:       store.New(false),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if props.RequiresDuplicateDetection {
		q.Store.EnableDuplicateDetection(props.DuplicateDetectionWindow)
	}
	return q
}

func (q *Queue) Lock()   { q.mu.Lock() }
func (q *Queue) Unlock() { q.mu.Unlock() }

// Counters returns the live runtime counters. Callers hold the entity
// lock.
func (q *Queue) Counters() RuntimeCounters {
	active, scheduled, _, size := q.Store.Counts()
	_, _, dead, dlqSize := q.DLQ.Counts()
	return RuntimeCounters{
		ActiveMessageCount:     active + q.Store.LockedCount(),
		ScheduledMessageCount:  scheduled,
		DeadLetterMessageCount: dead + q.DLQ.LockedCount(),
		SizeInBytes:            size + dlqSize,
	}
}

// Topic is a fan-out entity. It holds no messages past dispatch; the
// subscription list is guarded by the registry mutex, and the topic mutex
// serializes publications for sequence assignment.
type Topic struct {
	mu sync.Mutex

	Name      string
	Props     TopicProperties
	CreatedAt time.Time
	UpdatedAt time.Time

	seq *store.Container // sequence counter and duplicate-detection window

	subs     map[string]*Subscription
	subOrder []string
}

func newTopic(name string, props TopicProperties, now time.Time) *Topic {
	t := &Topic{
		Name:      name,
		Props:     props,
		CreatedAt: now,
		UpdatedAt: now,
		seq:       store.New(false),
		subs:      map[string]*Subscription{},
	}
	if props.RequiresDuplicateDetection {
		t.seq.EnableDuplicateDetection(props.DuplicateDetectionWindow)
	}
	return t
}

func (t *Topic) Lock()   { t.mu.Lock() }
func (t *Topic) Unlock() { t.mu.Unlock() }

// NextSequence assigns the topic's next sequence number. Subscription
// copies inherit it. Callers hold the topic lock.
func (t *Topic) NextSequence() int64 { return t.seq.NextSequence() }

// IsDuplicate runs the topic's duplicate-detection window. Callers hold
// the topic lock.
func (t *Topic) IsDuplicate(id string, now time.Time) bool {
	return t.seq.IsDuplicate(id, now)
}

// Subscription is a per-topic consumer endpoint with its own message
// store, DLQ, and ordered rule set. The mutex covers all three.
type Subscription struct {
	mu sync.Mutex

	TopicName string
	Name      string
	Props     SubscriptionProperties
	Store     *store.Container
	DLQ       *store.Container
	CreatedAt time.Time
	UpdatedAt time.Time

	rules     map[string]*Rule
	ruleOrder []string
}

func newSubscription(topicName, name string, props SubscriptionProperties, now time.Time) *Subscription {
	s := &Subscription{
		TopicName: topicName,
		Name:      name,
		Props:     props,
		Store:     store.New(props.RequiresSession),
		DLQ:       store.New(false),
		CreatedAt: now,
		UpdatedAt: now,
		rules:     map[string]*Rule{},
	}
	s.putRule(NewTrueRule(DefaultRuleName), now)
	return s
}

func (s *Subscription) Lock()   { s.mu.Lock() }
func (s *Subscription) Unlock() { s.mu.Unlock() }

func (s *Subscription) putRule(r *Rule, now time.Time) bool {
	_, exists := s.rules[r.Name]
	if !exists {
		s.ruleOrder = append(s.ruleOrder, r.Name)
	}
	r.CreatedAt = now
	s.rules[r.Name] = r
	return !exists
}

func (s *Subscription) deleteRule(name string) bool {
	if _, ok := s.rules[name]; !ok {
		return false
	}
	delete(s.rules, name)
	for i, n := range s.ruleOrder {
		if n == name {
			s.ruleOrder = append(s.ruleOrder[:i], s.ruleOrder[i+1:]...)
			break
		}
	}
	return true
}

// Rules returns the rule set in declaration order. Callers hold the
// subscription lock; the returned slice is a snapshot.
func (s *Subscription) Rules() []*Rule {
	out := make([]*Rule, 0, len(s.ruleOrder))
	for _, name := range s.ruleOrder {
		out = append(out, s.rules[name])
	}
	return out
}

// Counters returns the live runtime counters. Callers hold the
// subscription lock.
func (s *Subscription) Counters() RuntimeCounters {
	active, scheduled, _, size := s.Store.Counts()
	_, _, dead, dlqSize := s.DLQ.Counts()
	return RuntimeCounters{
		ActiveMessageCount:     active + s.Store.LockedCount(),
		ScheduledMessageCount:  scheduled,
		DeadLetterMessageCount: dead + s.DLQ.LockedCount(),
		SizeInBytes:            size + dlqSize,
	}
}
