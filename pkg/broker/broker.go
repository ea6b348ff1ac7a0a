// Package broker is the in-memory engine behind the emulator: entity
// admin, send and receive with lock settlement, topic fan-out, sessions,
// and the background timers that drive scheduled delivery and expiry.
package broker

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/oladejiayo/localzure/internal/logger"
	"github.com/oladejiayo/localzure/pkg/broker/entity"
	"github.com/oladejiayo/localzure/pkg/broker/lock"
	"github.com/oladejiayo/localzure/pkg/broker/message"
	"github.com/oladejiayo/localzure/pkg/broker/ratelimit"
	"github.com/oladejiayo/localzure/pkg/broker/resilience"
	"github.com/oladejiayo/localzure/pkg/broker/sberr"
	"github.com/oladejiayo/localzure/pkg/broker/store"
)

// MaxMessageSize is the hard per-message byte limit.
const MaxMessageSize = 256 * 1024

// MaxBatchSize caps how many messages a single receive may return.
const MaxBatchSize = 100

const defaultSweepInterval = 250 * time.Millisecond

// Ref addresses a message entity: a queue, a subscription, or the
// dead-letter sub-queue of either.
type Ref struct {
	Topic string // empty for queues
	Name  string // queue name, or subscription name under Topic
	DLQ   bool
}

// QueueRef addresses a queue.
func QueueRef(name string) Ref { return Ref{Name: name} }

// SubscriptionRef addresses a subscription under a topic.
func SubscriptionRef(topic, sub string) Ref { return Ref{Topic: topic, Name: sub} }

// AsDLQ returns the ref of the entity's dead-letter sub-queue.
func (r Ref) AsDLQ() Ref { r.DLQ = true; return r }

// IsQueue reports whether the ref addresses a queue (or its DLQ).
func (r Ref) IsQueue() bool { return r.Topic == "" }

// Key is the stable identifier used for lock tables, rate buckets, and
// log fields. Entity names cannot contain ':', so the format is
// unambiguous.
func (r Ref) Key() string {
	var b strings.Builder
	if r.IsQueue() {
		b.WriteString("queue:")
		b.WriteString(r.Name)
	} else {
		b.WriteString("sub:")
		b.WriteString(r.Topic)
		b.WriteString(":")
		b.WriteString(r.Name)
	}
	if r.DLQ {
		b.WriteString(":dlq")
	}
	return b.String()
}

func parseKey(key string) (Ref, bool) {
	parts := strings.Split(key, ":")
	switch {
	case len(parts) >= 2 && parts[0] == "queue":
		r := Ref{Name: parts[1]}
		r.DLQ = len(parts) == 3 && parts[2] == "dlq"
		return r, true
	case len(parts) >= 3 && parts[0] == "sub":
		r := Ref{Topic: parts[1], Name: parts[2]}
		r.DLQ = len(parts) == 4 && parts[3] == "dlq"
		return r, true
	}
	return Ref{}, false
}

// Broker is the engine. One instance per emulated namespace.
type Broker struct {
	registry *entity.Registry
	locks    *lock.Manager
	limiter  *ratelimit.Limiter
	breakers *resilience.Registry
	metrics  Metrics
	now      func() time.Time

	stateMu      sync.Mutex
	sessionState map[string][]byte

	sweepEvery time.Duration
	done       chan struct{}
	wg         sync.WaitGroup
}

// Option tunes a Broker at construction.
type Option func(*Broker)

// WithMetrics attaches a metrics sink.
func WithMetrics(m Metrics) Option {
	return func(b *Broker) {
		if m != nil {
			b.metrics = m
		}
	}
}

// WithClock overrides the time source. Tests use it to drive TTL and
// scheduling deterministically.
func WithClock(now func() time.Time) Option {
	return func(b *Broker) { b.now = now }
}

// WithSweepInterval overrides the background sweep cadence.
func WithSweepInterval(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.sweepEvery = d
		}
	}
}

// New builds a broker and starts its background timers.
func New(opts ...Option) *Broker {
	b := &Broker{
		registry:     entity.NewRegistry(),
		limiter:      ratelimit.New(),
		breakers:     resilience.NewRegistry(resilience.DefaultBreakerConfig()),
		metrics:      noopMetrics{},
		now:          time.Now,
		sessionState: map[string][]byte{},
		sweepEvery:   defaultSweepInterval,
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.locks = lock.NewManager(b.onMessageLockExpiry, b.onSessionLockExpiry)

	b.wg.Add(1)
	go b.sweep()
	return b
}

// Close stops the timers. In-memory state is discarded with the process.
func (b *Broker) Close() {
	close(b.done)
	b.locks.Close()
	b.wg.Wait()
}

// Registry exposes the entity namespace for the admin façade.
func (b *Broker) Registry() *entity.Registry { return b.registry }

// Limiter exposes the rate limiter for per-entity overrides.
func (b *Broker) Limiter() *ratelimit.Limiter { return b.limiter }

// Breakers exposes the shared circuit-breaker registry.
func (b *Broker) Breakers() *resilience.Registry { return b.breakers }

// target is a resolved Ref: the container operations act on plus the
// policy knobs of the owning entity.
type target struct {
	ref  Ref
	key  string
	kind ratelimit.Kind

	lock   sync.Locker
	main   *store.Container // the entity's main store
	box    *store.Container // the container ops act on (main or DLQ)
	dlq    *store.Container // dead-letter destination for box (nil when box is the DLQ)
	topic  *entity.Topic
	sub    *entity.Subscription

	lockDuration       time.Duration
	maxDelivery        int
	defaultTTL         time.Duration
	deadLetterOnExpire bool
	requiresSession    bool
	maxSizeBytes       int64
}

// resolve snapshots the target's properties under the entity mutex;
// PutQueue and PutSubscription mutate Props under the same mutex.
func (b *Broker) resolve(ref Ref) (*target, error) {
	if ref.IsQueue() {
		q, err := b.registry.GetQueue(ref.Name)
		if err != nil {
			return nil, err
		}
		q.Lock()
		props := q.Props
		q.Unlock()
		t := &target{
			ref:                ref,
			key:                ref.Key(),
			kind:               ratelimit.KindQueue,
			lock:               q,
			main:               q.Store,
			box:                q.Store,
			dlq:                q.DLQ,
			lockDuration:       props.LockDuration,
			maxDelivery:        props.MaxDeliveryCount,
			defaultTTL:         props.DefaultMessageTTL,
			deadLetterOnExpire: props.DeadLetterOnExpire,
			requiresSession:    props.RequiresSession,
			maxSizeBytes:       props.MaxSizeBytes,
		}
		if ref.DLQ {
			t.box = q.DLQ
			t.dlq = nil
			t.requiresSession = false
		}
		return t, nil
	}

	s, err := b.registry.GetSubscription(ref.Topic, ref.Name)
	if err != nil {
		return nil, err
	}
	s.Lock()
	props := s.Props
	s.Unlock()
	t := &target{
		ref:                ref,
		key:                ref.Key(),
		kind:               ratelimit.KindSubscription,
		lock:               s,
		main:               s.Store,
		box:                s.Store,
		dlq:                s.DLQ,
		sub:                s,
		lockDuration:       props.LockDuration,
		maxDelivery:        props.MaxDeliveryCount,
		defaultTTL:         props.DefaultMessageTTL,
		deadLetterOnExpire: props.DeadLetterOnExpire,
		requiresSession:    props.RequiresSession,
	}
	if ref.DLQ {
		t.box = s.DLQ
		t.dlq = nil
		t.requiresSession = false
	}
	return t, nil
}

// catchUp runs the time-driven transitions synchronously before an
// operation touches the container, so results are exact even between
// sweeps. Callers hold the entity lock.
func (b *Broker) catchUp(t *target, now time.Time) {
	t.main.PromoteScheduled(now)

	for _, m := range t.main.ExpireTTL(now, t.defaultTTL) {
		t.main.Remove(m)
		if t.deadLetterOnExpire && t.dlq != nil {
			t.dlq.DeadLetter(m, message.ReasonTTLExpired, "message expired before delivery", now)
			b.metrics.RecordDeadLetter(t.key, message.ReasonTTLExpired)
		}
	}

	for _, token := range t.box.ExpiredLocks(now) {
		b.locks.ReleaseMessage(t.key, token)
		b.expireLock(t, token, now)
	}
	if t.box != t.main {
		parentRef := Ref{Topic: t.ref.Topic, Name: t.ref.Name}
		parent := &target{
			ref: parentRef, key: parentRef.Key(),
			main: t.main, box: t.main, dlq: t.box,
			maxDelivery: t.maxDelivery,
		}
		for _, token := range t.main.ExpiredLocks(now) {
			b.locks.ReleaseMessage(parent.key, token)
			b.expireLock(parent, token, now)
		}
	}
}

// expireLock re-activates a message whose lock lapsed. Delivery count is
// not incremented again; the max-delivery rule is re-applied. Callers
// hold the entity lock.
func (b *Broker) expireLock(t *target, token string, now time.Time) {
	m := t.box.ReleaseLocked(token)
	if m == nil {
		return
	}
	b.metrics.RecordLockExpired(t.key)

	if t.ref.DLQ || t.dlq == nil {
		t.box.RequeueDeadLettered(m)
		return
	}
	if m.DeliveryCount >= t.maxDelivery {
		t.main.Remove(m)
		t.dlq.DeadLetter(m, message.ReasonMaxDeliveryCountExceeded, "delivery count exceeded the entity maximum", now)
		b.metrics.RecordDeadLetter(t.key, message.ReasonMaxDeliveryCountExceeded)
		logger.Debug("message dead-lettered on lock expiry",
			logger.KeyEntity, t.key, logger.KeyMessageID, m.ID, logger.KeyDeliveryCnt, m.DeliveryCount)
		return
	}
	t.box.Requeue(m)
}

// onMessageLockExpiry is the lock-manager callback. It re-resolves the
// entity; a lock surviving its entity (deleted meanwhile) is a no-op.
func (b *Broker) onMessageLockExpiry(entityKey, token string) {
	ref, ok := parseKey(entityKey)
	if !ok {
		return
	}
	t, err := b.resolve(ref)
	if err != nil {
		return
	}
	t.lock.Lock()
	defer t.lock.Unlock()
	b.expireLock(t, token, b.now())
}

// onSessionLockExpiry releases nothing beyond the lock itself: pending
// session messages simply become acceptable by the next consumer.
func (b *Broker) onSessionLockExpiry(entityKey, sessionID string) {
	logger.Debug("session lock expired", logger.KeyEntity, entityKey, logger.KeySessionID, sessionID)
}

// sweep periodically drives scheduled promotion and TTL expiry across
// all entities so transitions happen even on idle connections.
func (b *Broker) sweep() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
		}
		now := b.now()
		for _, q := range b.registry.ListQueues(0, -1) {
			t, err := b.resolve(QueueRef(q.Name))
			if err != nil {
				continue
			}
			t.lock.Lock()
			b.catchUp(t, now)
			t.lock.Unlock()
		}
		for _, topic := range b.registry.ListTopics(0, -1) {
			subs, err := b.registry.Subscriptions(topic.Name)
			if err != nil {
				continue
			}
			for _, s := range subs {
				t, err := b.resolve(SubscriptionRef(topic.Name, s.Name))
				if err != nil {
					continue
				}
				t.lock.Lock()
				b.catchUp(t, now)
				t.lock.Unlock()
			}
		}
	}
}

func clampBatch(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxBatchSize {
		return MaxBatchSize
	}
	return n
}

// execute runs fn under the operation-class deadline, routed through the
// entity's named breaker. Overruns surface as OperationTimeout; a
// breaker tripped by accumulated transient faults rejects the call with
// CircuitBreakerOpen before fn runs.
func (b *Broker) execute(ctx context.Context, kind resilience.OpKind, breakerName string, fn func(ctx context.Context) error) error {
	return b.breakers.Get(breakerName).Execute(func() error {
		return resilience.WithTimeout(ctx, kind, fn)
	})
}

// validateToken confirms the presented token matches the held one in
// constant time; any mismatch, unknown, or expired token is uniformly
// MessageLockLost.
func validateToken(m *message.Message, token string) error {
	if m == nil || !lock.TokensEqual(m.LockToken, token) {
		return sberr.NewMessageLockLost()
	}
	return nil
}
