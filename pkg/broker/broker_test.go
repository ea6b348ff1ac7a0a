package broker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/oladejiayo/localzure/pkg/broker/entity"
	"github.com/oladejiayo/localzure/pkg/broker/message"
	"github.com/oladejiayo/localzure/pkg/broker/sberr"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{t: time.Now()} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestBroker(t *testing.T, clock *fakeClock) *Broker {
	t.Helper()
	opts := []Option{WithSweepInterval(time.Hour)}
	if clock != nil {
		opts = append(opts, WithClock(clock.Now))
	}
	b := New(opts...)
	t.Cleanup(b.Close)
	return b
}

func mustQueue(t *testing.T, b *Broker, name string, props entity.QueueProperties) {
	t.Helper()
	if _, _, err := b.CreateOrUpdateQueue(context.Background(), name, props); err != nil {
		t.Fatalf("CreateOrUpdateQueue(%q) failed: %v", name, err)
	}
}

func TestSendReceiveComplete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := newTestBroker(t, nil)
	mustQueue(t, b, "orders", entity.QueueProperties{})

	m := message.New([]byte("A"))
	m.Label = "L"
	if err := b.Send(ctx, "orders", m); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if m.SequenceNumber != 1 {
		t.Fatalf("SequenceNumber = %d, want 1", m.SequenceNumber)
	}

	got, err := b.Receive(ctx, QueueRef("orders"), PeekLock, 1)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("received %d messages, want 1", len(got))
	}
	r := got[0]
	if string(r.Body) != "A" || r.DeliveryCount != 1 || r.LockToken == "" {
		t.Fatalf("received %+v", r)
	}

	if err := b.Complete(ctx, QueueRef("orders"), r.ID, r.LockToken); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	got, err = b.Receive(ctx, QueueRef("orders"), PeekLock, 1)
	if err != nil {
		t.Fatalf("second Receive failed: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("queue should be empty, got %d messages", len(got))
	}

	// Settling again with the old token is uniformly MessageLockLost.
	if err := b.Complete(ctx, QueueRef("orders"), r.ID, r.LockToken); sberr.CodeOf(err) != sberr.CodeMessageLockLost {
		t.Fatalf("double complete: %v, want MessageLockLost", err)
	}
}

func TestReceiveAndDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := newTestBroker(t, nil)
	mustQueue(t, b, "orders", entity.QueueProperties{})

	b.Send(ctx, "orders", message.New([]byte("A")))

	got, err := b.Receive(ctx, QueueRef("orders"), ReceiveAndDelete, 1)
	if err != nil || len(got) != 1 {
		t.Fatalf("Receive: %v (%d messages)", err, len(got))
	}
	if got[0].LockToken != "" {
		t.Fatal("ReceiveAndDelete must not issue a lock token")
	}
	if got[0].DeliveryCount != 0 {
		t.Fatal("ReceiveAndDelete must not increment the delivery count")
	}

	got, _ = b.Receive(ctx, QueueRef("orders"), PeekLock, 1)
	if len(got) != 0 {
		t.Fatal("message should be gone after ReceiveAndDelete")
	}
}

func TestAbandonToDeadLetter(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := newTestBroker(t, nil)
	mustQueue(t, b, "orders", entity.QueueProperties{MaxDeliveryCount: 3})

	b.Send(ctx, "orders", message.New([]byte("poison")))

	for want := 1; want <= 3; want++ {
		got, err := b.Receive(ctx, QueueRef("orders"), PeekLock, 1)
		if err != nil || len(got) != 1 {
			t.Fatalf("attempt %d: %v (%d messages)", want, err, len(got))
		}
		if got[0].DeliveryCount != want {
			t.Fatalf("attempt %d: DeliveryCount = %d", want, got[0].DeliveryCount)
		}
		if err := b.Abandon(ctx, QueueRef("orders"), got[0].ID, got[0].LockToken); err != nil {
			t.Fatalf("abandon %d failed: %v", want, err)
		}
	}

	if got, _ := b.Receive(ctx, QueueRef("orders"), PeekLock, 1); len(got) != 0 {
		t.Fatal("main queue should be empty after max-delivery dead-lettering")
	}

	dead, err := b.Receive(ctx, QueueRef("orders").AsDLQ(), PeekLock, 1)
	if err != nil || len(dead) != 1 {
		t.Fatalf("DLQ receive: %v (%d messages)", err, len(dead))
	}
	if dead[0].DeadLetterReason != message.ReasonMaxDeliveryCountExceeded {
		t.Fatalf("DeadLetterReason = %q", dead[0].DeadLetterReason)
	}
}

func TestAbandonRequeuesAtHead(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := newTestBroker(t, nil)
	mustQueue(t, b, "orders", entity.QueueProperties{})

	first := message.New([]byte("first"))
	b.Send(ctx, "orders", first)
	b.Send(ctx, "orders", message.New([]byte("second")))

	got, _ := b.Receive(ctx, QueueRef("orders"), PeekLock, 1)
	b.Abandon(ctx, QueueRef("orders"), got[0].ID, got[0].LockToken)

	got, _ = b.Receive(ctx, QueueRef("orders"), PeekLock, 2)
	if len(got) != 2 || got[0].ID != first.ID {
		t.Fatalf("abandoned message must return to the FIFO head, got %d messages", len(got))
	}
}

func TestScheduledDelivery(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	b := newTestBroker(t, clock)
	mustQueue(t, b, "orders", entity.QueueProperties{})

	m := message.New([]byte("later"))
	m.ScheduledEnqueueTime = clock.Now().Add(time.Hour)
	b.Send(ctx, "orders", m)

	if got, _ := b.Receive(ctx, QueueRef("orders"), PeekLock, 1); len(got) != 0 {
		t.Fatal("scheduled message must not be visible yet")
	}

	clock.Advance(2 * time.Hour)
	got, _ := b.Receive(ctx, QueueRef("orders"), PeekLock, 1)
	if len(got) != 1 {
		t.Fatal("scheduled message should be delivered after its due time")
	}
}

func TestLockExpiryRedelivers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	b := newTestBroker(t, clock)
	mustQueue(t, b, "orders", entity.QueueProperties{LockDuration: time.Minute})

	b.Send(ctx, "orders", message.New([]byte("A")))
	got, _ := b.Receive(ctx, QueueRef("orders"), PeekLock, 1)
	if len(got) != 1 || got[0].DeliveryCount != 1 {
		t.Fatalf("first receive: %v", got)
	}

	clock.Advance(2 * time.Minute)

	got, _ = b.Receive(ctx, QueueRef("orders"), PeekLock, 1)
	if len(got) != 1 {
		t.Fatal("message should re-activate after lock expiry")
	}
	if got[0].DeliveryCount != 2 {
		t.Fatalf("DeliveryCount = %d, want 2 (expiry itself does not increment)", got[0].DeliveryCount)
	}
}

func TestTTLExpiryToDeadLetter(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	b := newTestBroker(t, clock)
	mustQueue(t, b, "expiring", entity.QueueProperties{
		DefaultMessageTTL:  time.Minute,
		DeadLetterOnExpire: true,
	})
	mustQueue(t, b, "dropping", entity.QueueProperties{
		DefaultMessageTTL: time.Minute,
	})

	b.Send(ctx, "expiring", message.New([]byte("A")))
	b.Send(ctx, "dropping", message.New([]byte("B")))

	clock.Advance(2 * time.Minute)

	if got, _ := b.Receive(ctx, QueueRef("expiring"), PeekLock, 1); len(got) != 0 {
		t.Fatal("expired message must not be delivered")
	}
	dead, _ := b.Receive(ctx, QueueRef("expiring").AsDLQ(), PeekLock, 1)
	if len(dead) != 1 || dead[0].DeadLetterReason != message.ReasonTTLExpired {
		t.Fatalf("DLQ: %v", dead)
	}

	if got, _ := b.Receive(ctx, QueueRef("dropping").AsDLQ(), PeekLock, 1); len(got) != 0 {
		t.Fatal("without dead-letter-on-expire the message is removed outright")
	}
}

func TestExplicitDeadLetterAndDLQSettlement(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := newTestBroker(t, nil)
	mustQueue(t, b, "orders", entity.QueueProperties{})

	b.Send(ctx, "orders", message.New([]byte("bad")))
	got, _ := b.Receive(ctx, QueueRef("orders"), PeekLock, 1)

	if err := b.DeadLetter(ctx, QueueRef("orders"), got[0].ID, got[0].LockToken, "", "unparseable"); err != nil {
		t.Fatalf("DeadLetter failed: %v", err)
	}

	dead, _ := b.Receive(ctx, QueueRef("orders").AsDLQ(), PeekLock, 1)
	if len(dead) != 1 {
		t.Fatal("expected the message in the DLQ")
	}
	if dead[0].DeadLetterReason != message.ReasonProcessingError {
		t.Fatalf("reason = %q, want the ProcessingError default", dead[0].DeadLetterReason)
	}

	// Abandoning a DLQ message returns it to the DLQ head.
	if err := b.Abandon(ctx, QueueRef("orders").AsDLQ(), dead[0].ID, dead[0].LockToken); err != nil {
		t.Fatalf("DLQ abandon failed: %v", err)
	}
	dead, _ = b.Receive(ctx, QueueRef("orders").AsDLQ(), PeekLock, 1)
	if len(dead) != 1 {
		t.Fatal("abandoned DLQ message should be receivable again")
	}

	// Completing a DLQ message removes it for good.
	if err := b.Complete(ctx, QueueRef("orders").AsDLQ(), dead[0].ID, dead[0].LockToken); err != nil {
		t.Fatalf("DLQ complete failed: %v", err)
	}
	if dead, _ = b.Receive(ctx, QueueRef("orders").AsDLQ(), PeekLock, 1); len(dead) != 0 {
		t.Fatal("DLQ should be empty")
	}
}

func TestConcurrentPropertyUpdatesAndTraffic(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := newTestBroker(t, nil)
	mustQueue(t, b, "orders", entity.QueueProperties{})

	// Property updates race with message traffic; the entity mutex
	// orders them, which the race detector verifies.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			b.CreateOrUpdateQueue(ctx, "orders", entity.QueueProperties{MaxDeliveryCount: i%9 + 1})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			b.Send(ctx, "orders", message.New([]byte("m")))
			b.Receive(ctx, QueueRef("orders"), ReceiveAndDelete, 1)
		}
	}()
	wg.Wait()

	q, err := b.GetQueue(ctx, "orders")
	if err != nil {
		t.Fatalf("GetQueue failed: %v", err)
	}
	q.Lock()
	defer q.Unlock()
	if q.Props.MaxDeliveryCount < 1 || q.Props.MaxDeliveryCount > 9 {
		t.Fatalf("MaxDeliveryCount = %d, want the last written value", q.Props.MaxDeliveryCount)
	}
}

func TestDLQReceiveAndDeleteByteAccounting(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := newTestBroker(t, nil)
	mustQueue(t, b, "orders", entity.QueueProperties{})

	small := message.New([]byte("x"))
	large := message.New([]byte("a-much-larger-payload"))
	b.Send(ctx, "orders", small)
	b.Send(ctx, "orders", large)

	got, _ := b.Receive(ctx, QueueRef("orders"), PeekLock, 2)
	for _, m := range got {
		if err := b.DeadLetter(ctx, QueueRef("orders"), m.ID, m.LockToken, "", ""); err != nil {
			t.Fatalf("DeadLetter failed: %v", err)
		}
	}

	// ReceiveAndDelete of the small message must release only its own
	// bytes; the large one stays fully accounted.
	dead, err := b.Receive(ctx, QueueRef("orders").AsDLQ(), ReceiveAndDelete, 1)
	if err != nil || len(dead) != 1 || string(dead[0].Body) != "x" {
		t.Fatalf("DLQ receive: %v (%d messages)", err, len(dead))
	}

	q, err := b.GetQueue(ctx, "orders")
	if err != nil {
		t.Fatalf("GetQueue failed: %v", err)
	}
	q.Lock()
	counters := q.Counters()
	q.Unlock()
	if counters.SizeInBytes != large.Size() {
		t.Fatalf("SizeInBytes = %d, want %d (the remaining DLQ message)",
			counters.SizeInBytes, large.Size())
	}
}

func TestRenewLockExtendsExpiry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := newTestBroker(t, nil)
	mustQueue(t, b, "orders", entity.QueueProperties{LockDuration: 2 * time.Second})

	b.Send(ctx, "orders", message.New([]byte("A")))
	got, _ := b.Receive(ctx, QueueRef("orders"), PeekLock, 1)

	until, err := b.RenewLock(ctx, QueueRef("orders"), got[0].ID, got[0].LockToken)
	if err != nil {
		t.Fatalf("RenewLock failed: %v", err)
	}
	if !until.After(got[0].LockedUntil) && !until.Equal(got[0].LockedUntil) {
		t.Fatalf("renewed expiry %v not past original %v", until, got[0].LockedUntil)
	}
	if got[0].DeliveryCount != 1 {
		t.Fatal("renewal must not change the delivery count")
	}

	if _, err := b.RenewLock(ctx, QueueRef("orders"), got[0].ID, "bogus-token"); sberr.CodeOf(err) != sberr.CodeMessageLockLost {
		t.Fatalf("bogus token: %v, want MessageLockLost", err)
	}
}

func TestPeekDoesNotLockOrCount(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := newTestBroker(t, nil)
	mustQueue(t, b, "orders", entity.QueueProperties{})

	b.Send(ctx, "orders", message.New([]byte("A")))
	b.Send(ctx, "orders", message.New([]byte("B")))

	peeked, err := b.Peek(ctx, QueueRef("orders"), 0, 10)
	if err != nil || len(peeked) != 2 {
		t.Fatalf("Peek: %v (%d messages)", err, len(peeked))
	}
	if peeked[0].DeliveryCount != 0 {
		t.Fatal("peek must not increment delivery counts")
	}

	got, _ := b.Receive(ctx, QueueRef("orders"), PeekLock, 10)
	if len(got) != 2 {
		t.Fatal("peeked messages must remain receivable")
	}
}

func TestFanOutWithFilters(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := newTestBroker(t, nil)

	if _, _, err := b.CreateOrUpdateTopic(ctx, "events", entity.TopicProperties{}); err != nil {
		t.Fatalf("CreateOrUpdateTopic failed: %v", err)
	}
	for _, sub := range []string{"high", "us", "all"} {
		if _, _, err := b.CreateOrUpdateSubscription(ctx, "events", sub, entity.SubscriptionProperties{}); err != nil {
			t.Fatalf("subscription %q failed: %v", sub, err)
		}
	}
	highRule, err := entity.NewSQLRule("match", "priority eq 'high'")
	if err != nil {
		t.Fatalf("NewSQLRule failed: %v", err)
	}
	b.CreateOrUpdateRule(ctx, "events", "high", highRule)
	b.DeleteRule(ctx, "events", "high", entity.DefaultRuleName)

	usRule, err := entity.NewSQLRule("match", "region eq 'us'")
	if err != nil {
		t.Fatalf("NewSQLRule failed: %v", err)
	}
	b.CreateOrUpdateRule(ctx, "events", "us", usRule)
	b.DeleteRule(ctx, "events", "us", entity.DefaultRuleName)

	cases := []map[string]any{
		{"priority": "high", "region": "us"},
		{"priority": "low", "region": "us"},
		{"priority": "high", "region": "eu"},
		{"priority": "low", "region": "eu"},
	}
	for _, props := range cases {
		m := message.New([]byte("evt"))
		m.UserProperties = props
		if err := b.Publish(ctx, "events", m); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}

	counts := map[string]int{}
	for _, sub := range []string{"high", "us", "all"} {
		got, err := b.Receive(ctx, SubscriptionRef("events", sub), ReceiveAndDelete, 10)
		if err != nil {
			t.Fatalf("receive from %q failed: %v", sub, err)
		}
		counts[sub] = len(got)
	}
	if counts["high"] != 2 || counts["us"] != 2 || counts["all"] != 4 {
		t.Fatalf("fan-out counts = %v, want high=2 us=2 all=4", counts)
	}
}

func TestFanOutSequenceNumbersInherited(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := newTestBroker(t, nil)
	b.CreateOrUpdateTopic(ctx, "events", entity.TopicProperties{})
	b.CreateOrUpdateSubscription(ctx, "events", "all", entity.SubscriptionProperties{})

	for i := 0; i < 3; i++ {
		b.Publish(ctx, "events", message.New([]byte("evt")))
	}
	got, _ := b.Receive(ctx, SubscriptionRef("events", "all"), ReceiveAndDelete, 10)
	if len(got) != 3 {
		t.Fatalf("received %d, want 3", len(got))
	}
	for i, m := range got {
		if m.SequenceNumber != int64(i+1) {
			t.Fatalf("message %d has sequence %d, want the topic's %d", i, m.SequenceNumber, i+1)
		}
	}
}

func TestFilterErrorDeadLetters(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := newTestBroker(t, nil)
	b.CreateOrUpdateTopic(ctx, "events", entity.TopicProperties{})
	b.CreateOrUpdateSubscription(ctx, "events", "strict", entity.SubscriptionProperties{DeadLetterOnFilterError: true})
	b.CreateOrUpdateSubscription(ctx, "events", "lenient", entity.SubscriptionProperties{})

	// Ordering a string against a number fails at evaluation time.
	for _, sub := range []string{"strict", "lenient"} {
		rule, err := entity.NewSQLRule("cmp", "priority gt 5")
		if err != nil {
			t.Fatalf("NewSQLRule failed: %v", err)
		}
		b.CreateOrUpdateRule(ctx, "events", sub, rule)
		b.DeleteRule(ctx, "events", sub, entity.DefaultRuleName)
	}

	m := message.New([]byte("evt"))
	m.UserProperties = map[string]any{"priority": "not-a-number"}
	if err := b.Publish(ctx, "events", m); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	dead, _ := b.Receive(ctx, SubscriptionRef("events", "strict").AsDLQ(), PeekLock, 10)
	if len(dead) != 1 || dead[0].DeadLetterReason != message.ReasonFilterEvaluationError {
		t.Fatalf("strict DLQ: %v", dead)
	}

	if got, _ := b.Receive(ctx, SubscriptionRef("events", "lenient"), PeekLock, 10); len(got) != 0 {
		t.Fatal("lenient subscription treats the rule error as no-match")
	}
	if dead, _ := b.Receive(ctx, SubscriptionRef("events", "lenient").AsDLQ(), PeekLock, 10); len(dead) != 0 {
		t.Fatal("lenient subscription must not dead-letter on filter errors")
	}
}

func TestRuleErrorDoesNotMaskLaterRules(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := newTestBroker(t, nil)
	b.CreateOrUpdateTopic(ctx, "events", entity.TopicProperties{})
	b.CreateOrUpdateSubscription(ctx, "events", "mixed", entity.SubscriptionProperties{})
	b.CreateOrUpdateSubscription(ctx, "events", "strict", entity.SubscriptionProperties{DeadLetterOnFilterError: true})

	// First rule errors on a string property, second is TRUE. The error
	// counts as no-match and the TRUE rule still delivers the copy.
	for _, sub := range []string{"mixed", "strict"} {
		b.DeleteRule(ctx, "events", sub, entity.DefaultRuleName)
		rule, err := entity.NewSQLRule("cmp", "priority gt 5")
		if err != nil {
			t.Fatalf("NewSQLRule failed: %v", err)
		}
		b.CreateOrUpdateRule(ctx, "events", sub, rule)
		b.CreateOrUpdateRule(ctx, "events", sub, entity.NewTrueRule("all"))
	}

	m := message.New([]byte("evt"))
	m.UserProperties = map[string]any{"priority": "high"}
	if err := b.Publish(ctx, "events", m); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	for _, sub := range []string{"mixed", "strict"} {
		got, err := b.Receive(ctx, SubscriptionRef("events", sub), PeekLock, 10)
		if err != nil {
			t.Fatalf("Receive(%s) failed: %v", sub, err)
		}
		if len(got) != 1 {
			t.Fatalf("%s: got %d messages, want 1 via the TRUE rule", sub, len(got))
		}
	}

	// The filter-error policy only applies when no rule matched.
	if dead, _ := b.Receive(ctx, SubscriptionRef("events", "strict").AsDLQ(), PeekLock, 10); len(dead) != 0 {
		t.Fatal("matched subscription must not dead-letter the rule error")
	}
}

func TestSessionFIFO(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := newTestBroker(t, nil)
	b.CreateOrUpdateTopic(ctx, "events", entity.TopicProperties{})
	b.CreateOrUpdateSubscription(ctx, "events", "s", entity.SubscriptionProperties{RequiresSession: true})

	for _, body := range []string{"A1", "A2", "A3"} {
		m := message.New([]byte(body))
		m.SessionID = "SA"
		if err := b.Publish(ctx, "events", m); err != nil {
			t.Fatalf("publish %s failed: %v", body, err)
		}
	}
	bm := message.New([]byte("B1"))
	bm.SessionID = "SB"
	b.Publish(ctx, "events", bm)

	ref := SubscriptionRef("events", "s")

	// Plain receive is rejected on session-enabled entities.
	if _, err := b.Receive(ctx, ref, PeekLock, 1); sberr.CodeOf(err) != sberr.CodeInvalidOperation {
		t.Fatalf("plain receive: %v, want InvalidOperation", err)
	}

	sess, err := b.AcceptNextSession(ctx, ref, "consumer-1")
	if err != nil {
		t.Fatalf("AcceptNextSession failed: %v", err)
	}
	if sess.ID != "SA" {
		t.Fatalf("accepted session %q, want SA (oldest pending)", sess.ID)
	}

	got, err := b.ReceiveSession(ctx, sess, PeekLock, 10)
	if err != nil {
		t.Fatalf("ReceiveSession failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("received %d, want 3", len(got))
	}
	for i, want := range []string{"A1", "A2", "A3"} {
		if string(got[i].Body) != want {
			t.Fatalf("message %d = %q, want %q", i, got[i].Body, want)
		}
	}

	// SB is untouched and acceptable by another consumer.
	sess2, err := b.AcceptNextSession(ctx, ref, "consumer-2")
	if err != nil || sess2.ID != "SB" {
		t.Fatalf("second accept: %v (session %v)", err, sess2)
	}
}

func TestAcceptSessionContention(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := newTestBroker(t, nil)
	mustQueue(t, b, "sessions", entity.QueueProperties{RequiresSession: true})

	m := message.New(nil)
	m.SessionID = "SA"
	b.Send(ctx, "sessions", m)

	ref := QueueRef("sessions")
	s1, err := b.AcceptSession(ctx, ref, "SA", "c1")
	if err != nil {
		t.Fatalf("AcceptSession failed: %v", err)
	}
	if _, err := b.AcceptSession(ctx, ref, "SA", "c2"); sberr.CodeOf(err) != sberr.CodeSessionAlreadyLocked {
		t.Fatalf("contended accept: %v, want SessionAlreadyLocked", err)
	}
	if _, err := b.AcceptSession(ctx, ref, "nope", "c2"); sberr.CodeOf(err) != sberr.CodeSessionNotFound {
		t.Fatalf("unknown session: %v, want SessionNotFound", err)
	}

	if err := b.ReleaseSession(ctx, s1); err != nil {
		t.Fatalf("ReleaseSession failed: %v", err)
	}
	if _, err := b.AcceptSession(ctx, ref, "SA", "c2"); err != nil {
		t.Fatalf("accept after release failed: %v", err)
	}
}

func TestSessionStateRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := newTestBroker(t, nil)
	mustQueue(t, b, "sessions", entity.QueueProperties{RequiresSession: true})

	m := message.New(nil)
	m.SessionID = "SA"
	b.Send(ctx, "sessions", m)

	sess, err := b.AcceptSession(ctx, QueueRef("sessions"), "SA", "c1")
	if err != nil {
		t.Fatalf("AcceptSession failed: %v", err)
	}
	if err := b.SetSessionState(ctx, sess, []byte(`{"cursor":7}`)); err != nil {
		t.Fatalf("SetSessionState failed: %v", err)
	}
	state, err := b.SessionState(ctx, sess)
	if err != nil || string(state) != `{"cursor":7}` {
		t.Fatalf("SessionState = %q, %v", state, err)
	}

	forged := &Session{Entity: sess.Entity, ID: sess.ID, LockToken: "forged"}
	if _, err := b.SessionState(ctx, forged); sberr.CodeOf(err) != sberr.CodeSessionLockLost {
		t.Fatalf("forged token: %v, want SessionLockLost", err)
	}
}

func TestRequiresSessionEnforcedOnSend(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := newTestBroker(t, nil)
	mustQueue(t, b, "sessions", entity.QueueProperties{RequiresSession: true})

	err := b.Send(ctx, "sessions", message.New([]byte("no session")))
	if sberr.CodeOf(err) != sberr.CodeInvalidOperation {
		t.Fatalf("sessionless send: %v, want InvalidOperation", err)
	}
}

func TestDuplicateDetection(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := newTestBroker(t, nil)
	mustQueue(t, b, "dedup", entity.QueueProperties{RequiresDuplicateDetection: true})

	m1 := message.New([]byte("A"))
	m1.ID = "fixed-id"
	if err := b.Send(ctx, "dedup", m1); err != nil {
		t.Fatalf("first send failed: %v", err)
	}

	m2 := message.New([]byte("B"))
	m2.ID = "fixed-id"
	if err := b.Send(ctx, "dedup", m2); err != nil {
		t.Fatalf("duplicate send must be silently acknowledged: %v", err)
	}

	got, _ := b.Receive(ctx, QueueRef("dedup"), ReceiveAndDelete, 10)
	if len(got) != 1 || string(got[0].Body) != "A" {
		t.Fatalf("got %d messages, want only the first", len(got))
	}
}

func TestMessageSizeLimit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := newTestBroker(t, nil)
	mustQueue(t, b, "orders", entity.QueueProperties{})

	big := message.New(make([]byte, MaxMessageSize+1))
	if err := b.Send(ctx, "orders", big); sberr.CodeOf(err) != sberr.CodeMessageSizeExceeded {
		t.Fatalf("oversized send: %v, want MessageSizeExceeded", err)
	}
}

func TestEntitySizeQuota(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := newTestBroker(t, nil)
	mustQueue(t, b, "small", entity.QueueProperties{MaxSizeBytes: 16})

	if err := b.Send(ctx, "small", message.New([]byte("0123456789"))); err != nil {
		t.Fatalf("first send failed: %v", err)
	}
	err := b.Send(ctx, "small", message.New([]byte("0123456789")))
	if sberr.CodeOf(err) != sberr.CodeQuotaExceeded {
		t.Fatalf("over-quota send: %v, want QuotaExceeded", err)
	}
}

func TestSendRoutesThroughBreaker(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := newTestBroker(t, nil)
	mustQueue(t, b, "orders", entity.QueueProperties{})

	// Trip the queue's breaker with transient faults; sends are then
	// rejected until the breaker resets.
	br := b.Breakers().Get("queue:orders")
	for i := 0; i < 5; i++ {
		br.Execute(func() error { return sberr.NewConnectionError("backend down") })
	}
	err := b.Send(ctx, "orders", message.New([]byte("A")))
	if sberr.CodeOf(err) != sberr.CodeCircuitBreakerOpen {
		t.Fatalf("send through open breaker: %v, want CircuitBreakerOpen", err)
	}

	b.Breakers().Reset("queue:orders")
	if err := b.Send(ctx, "orders", message.New([]byte("A"))); err != nil {
		t.Fatalf("send after reset failed: %v", err)
	}
}

func TestCascadeDeleteTopic(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := newTestBroker(t, nil)
	b.CreateOrUpdateTopic(ctx, "events", entity.TopicProperties{})
	b.CreateOrUpdateSubscription(ctx, "events", "all", entity.SubscriptionProperties{})
	b.Publish(ctx, "events", message.New([]byte("evt")))

	if err := b.DeleteTopic(ctx, "events"); err != nil {
		t.Fatalf("DeleteTopic failed: %v", err)
	}
	if _, err := b.GetSubscription(ctx, "events", "all"); sberr.CodeOf(err) != sberr.CodeEntityNotFound {
		t.Fatalf("subscription after cascade: %v, want EntityNotFound", err)
	}
	if _, err := b.Receive(ctx, SubscriptionRef("events", "all"), PeekLock, 1); sberr.CodeOf(err) != sberr.CodeEntityNotFound {
		t.Fatalf("receive after cascade: %v, want EntityNotFound", err)
	}
}

func TestNewSubscriptionMissesInFlightPublication(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := newTestBroker(t, nil)
	b.CreateOrUpdateTopic(ctx, "events", entity.TopicProperties{})
	b.CreateOrUpdateSubscription(ctx, "events", "early", entity.SubscriptionProperties{})

	b.Publish(ctx, "events", message.New([]byte("evt")))
	b.CreateOrUpdateSubscription(ctx, "events", "late", entity.SubscriptionProperties{})

	if got, _ := b.Receive(ctx, SubscriptionRef("events", "late"), PeekLock, 10); len(got) != 0 {
		t.Fatal("a subscription created after publish must not see the message")
	}
	if got, _ := b.Receive(ctx, SubscriptionRef("events", "early"), PeekLock, 10); len(got) != 1 {
		t.Fatal("the pre-existing subscription should have the message")
	}
}
