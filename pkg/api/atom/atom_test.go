package atom

import (
	"encoding/xml"
	"strings"
	"testing"
	"time"

	"github.com/oladejiayo/localzure/pkg/broker/entity"
)

func TestEntryRoundTrip_Queue(t *testing.T) {
	t.Parallel()

	props := entity.QueueProperties{
		LockDuration:               90 * time.Second,
		MaxSizeBytes:               1 << 20,
		RequiresSession:            true,
		DefaultMessageTTL:          time.Hour,
		DeadLetterOnExpire:         true,
		RequiresDuplicateDetection: true,
		DuplicateDetectionWindow:   10 * time.Minute,
		MaxDeliveryCount:           5,
	}
	counters := entity.RuntimeCounters{
		ActiveMessageCount:     7,
		ScheduledMessageCount:  2,
		DeadLetterMessageCount: 1,
		SizeInBytes:            4096,
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	entry := NewEntry("https://localhost/orders", "orders", now, now,
		Content{Queue: FromQueue(props, counters, now, now)})

	data, err := xml.Marshal(entry)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	if !strings.Contains(string(data), "<QueueDescription") {
		t.Fatalf("expected QueueDescription element, got: %s", data)
	}
	if !strings.Contains(string(data), NamespaceServiceBus) {
		t.Errorf("expected servicebus namespace in output")
	}
	if !strings.Contains(string(data), "<LockDuration>PT1M30S</LockDuration>") {
		t.Errorf("expected ISO-8601 lock duration, got: %s", data)
	}

	var decoded Entry
	if err := xml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Content.Queue == nil {
		t.Fatal("expected queue description after round trip")
	}

	got, err := decoded.Content.Queue.Properties()
	if err != nil {
		t.Fatalf("properties: %v", err)
	}
	if got != props {
		t.Errorf("properties round trip mismatch:\n got %+v\nwant %+v", got, props)
	}
	if decoded.Content.Queue.ActiveMessageCount != 7 {
		t.Errorf("expected active count 7, got %d", decoded.Content.Queue.ActiveMessageCount)
	}
}

func TestEntryRoundTrip_Subscription(t *testing.T) {
	t.Parallel()

	props := entity.SubscriptionProperties{
		LockDuration:            30 * time.Second,
		DefaultMessageTTL:       2 * time.Hour,
		DeadLetterOnFilterError: true,
		MaxDeliveryCount:        3,
	}
	now := time.Now().UTC()

	entry := NewEntry("https://localhost/topics/t/subscriptions/s", "s", now, now,
		Content{Subscription: FromSubscription(props, entity.RuntimeCounters{}, now, now)})

	data, err := xml.Marshal(entry)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Entry
	if err := xml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Content.Subscription == nil {
		t.Fatal("expected subscription description after round trip")
	}
	got, err := decoded.Content.Subscription.Properties()
	if err != nil {
		t.Fatalf("properties: %v", err)
	}
	if got != props {
		t.Errorf("properties round trip mismatch:\n got %+v\nwant %+v", got, props)
	}
}

func TestRuleDescription_SQLFilter(t *testing.T) {
	t.Parallel()

	rule, err := entity.NewSQLRule("high", "priority gt 5")
	if err != nil {
		t.Fatalf("new rule: %v", err)
	}
	rule.CreatedAt = time.Now()

	data, err := xml.Marshal(FromRule(rule))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `i:type="SqlFilter"`) {
		t.Errorf("expected i:type SqlFilter attribute, got: %s", data)
	}
	if !strings.Contains(string(data), `i:type="EmptyRuleAction"`) {
		t.Errorf("expected empty rule action, got: %s", data)
	}

	var decoded RuleDescription
	if err := xml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	back, err := decoded.Rule("high")
	if err != nil {
		t.Fatalf("to rule: %v", err)
	}
	if back.Kind != entity.FilterSQL || back.Expression != "priority gt 5" {
		t.Errorf("unexpected rule after round trip: %+v", back)
	}
}

func TestRuleDescription_CorrelationFilter(t *testing.T) {
	t.Parallel()

	xmlBody := `<RuleDescription xmlns="` + NamespaceServiceBus + `">
  <Filter i:type="CorrelationFilter" xmlns:i="` + NamespaceXSI + `">
    <CorrelationId>order-1</CorrelationId>
    <Label>urgent</Label>
    <Properties>
      <KeyValueOfstringanyType><Key>region</Key><Value>eu</Value></KeyValueOfstringanyType>
    </Properties>
  </Filter>
  <Action i:type="SqlRuleAction" xmlns:i="` + NamespaceXSI + `">
    <SqlExpression>SET processed = true</SqlExpression>
  </Action>
  <Name>corr</Name>
</RuleDescription>`

	var decoded RuleDescription
	if err := xml.Unmarshal([]byte(xmlBody), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	rule, err := decoded.Rule("corr")
	if err != nil {
		t.Fatalf("to rule: %v", err)
	}
	if rule.Kind != entity.FilterCorrelation {
		t.Fatalf("expected correlation rule, got %v", rule.Kind)
	}
	if rule.Correlation.CorrelationID != "order-1" || rule.Correlation.Label != "urgent" {
		t.Errorf("unexpected correlation fields: %+v", rule.Correlation)
	}
	if rule.Correlation.Properties["region"] != "eu" {
		t.Errorf("expected region property, got %+v", rule.Correlation.Properties)
	}
	if rule.Action != "SET processed = true" {
		t.Errorf("unexpected action: %q", rule.Action)
	}
}

func TestRuleDescription_MissingFilterMeansTrue(t *testing.T) {
	t.Parallel()

	var d RuleDescription
	rule, err := d.Rule("$Default")
	if err != nil {
		t.Fatalf("to rule: %v", err)
	}
	if rule.Kind != entity.FilterTrue {
		t.Errorf("expected true filter, got %v", rule.Kind)
	}
}

func TestFeedWrapsEntries(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	entries := []Entry{
		NewEntry("https://localhost/a", "a", now, now, Content{Queue: FromQueue(entity.QueueProperties{}, entity.RuntimeCounters{}, now, now)}),
		NewEntry("https://localhost/b", "b", now, now, Content{Queue: FromQueue(entity.QueueProperties{}, entity.RuntimeCounters{}, now, now)}),
	}
	feed := NewFeed("https://localhost/$Resources/Queues", "Queues", now, entries)

	data, err := xml.Marshal(feed)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Feed
	if err := xml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(decoded.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(decoded.Entries))
	}
	if decoded.Entries[1].Title != "b" {
		t.Errorf("expected entry title b, got %q", decoded.Entries[1].Title)
	}
}
