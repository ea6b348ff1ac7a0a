// Package ratelimit applies per-entity token buckets to broker
// operations.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/oladejiayo/localzure/pkg/broker/sberr"
)

var now = time.Now

// Kind selects the default rate class for an entity.
type Kind int

const (
	KindQueue Kind = iota
	KindTopic
	KindSubscription
)

// Default sustained rates in tokens per second. Burst capacity is twice
// the rate.
const (
	DefaultQueueRate        = 100
	DefaultTopicRate        = 1000
	DefaultSubscriptionRate = 100
)

func defaultRate(kind Kind) float64 {
	switch kind {
	case KindTopic:
		return DefaultTopicRate
	case KindSubscription:
		return DefaultSubscriptionRate
	default:
		return DefaultQueueRate
	}
}

// Limiter holds one token bucket per entity, created lazily on first
// check.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	custom  map[string]float64
	classes map[Kind]float64
}

// New returns a limiter with the default rate classes.
func New() *Limiter {
	return &Limiter{
		buckets: map[string]*rate.Limiter{},
		custom:  map[string]float64{},
		classes: map[Kind]float64{},
	}
}

// SetClassRate overrides the sustained rate for a whole entity kind.
// Per-entity overrides set with SetRate still win. Existing buckets keep
// their old rate; call this before traffic starts.
func (l *Limiter) SetClassRate(kind Kind, perSecond float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if perSecond > 0 {
		l.classes[kind] = perSecond
	}
}

// SetRate overrides the sustained rate for one entity. An existing bucket
// is replaced so the new rate applies immediately.
func (l *Limiter) SetRate(entity string, perSecond float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.custom[entity] = perSecond
	delete(l.buckets, entity)
}

// Remove drops an entity's bucket and override after entity deletion.
func (l *Limiter) Remove(entity string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, entity)
	delete(l.custom, entity)
}

func (l *Limiter) bucket(kind Kind, entity string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[entity]; ok {
		return b
	}
	r := defaultRate(kind)
	if class, ok := l.classes[kind]; ok {
		r = class
	}
	if custom, ok := l.custom[entity]; ok {
		r = custom
	}
	b := rate.NewLimiter(rate.Limit(r), int(r*2))
	l.buckets[entity] = b
	return b
}

// Allow consumes n tokens from the entity's bucket, failing with a
// QuotaExceeded carrying retry_after_seconds when the bucket cannot
// satisfy the request right now.
func (l *Limiter) Allow(kind Kind, entity string, n int) error {
	b := l.bucket(kind, entity)
	res := b.ReserveN(now(), n)
	if !res.OK() {
		return sberr.NewRateLimited(entity, float64(n)/float64(b.Limit()))
	}
	if delay := res.Delay(); delay > 0 {
		res.Cancel()
		return sberr.NewRateLimited(entity, delay.Seconds())
	}
	return nil
}

// Wait blocks until n tokens are available or the context ends. Used on
// internal paths where suspending is cheaper than surfacing an error.
func (l *Limiter) Wait(ctx context.Context, kind Kind, entity string, n int) error {
	if err := l.bucket(kind, entity).WaitN(ctx, n); err != nil {
		return sberr.NewRateLimited(entity, 0)
	}
	return nil
}
