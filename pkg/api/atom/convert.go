package atom

import (
	"fmt"
	"time"

	"github.com/oladejiayo/localzure/pkg/broker/entity"
	"github.com/oladejiayo/localzure/pkg/broker/filter"
)

// FromQueue renders a queue's properties and runtime counters as a wire
// description.
func FromQueue(props entity.QueueProperties, counters entity.RuntimeCounters, created, updated time.Time) *QueueDescription {
	c, u := created.UTC(), updated.UTC()
	return &QueueDescription{
		Xmlns:                               NamespaceServiceBus,
		LockDuration:                        FormatDuration(props.LockDuration),
		MaxSizeInBytes:                      props.MaxSizeBytes,
		RequiresDuplicateDetection:          props.RequiresDuplicateDetection,
		RequiresSession:                     props.RequiresSession,
		DefaultMessageTimeToLive:            FormatDuration(props.DefaultMessageTTL),
		DeadLetteringOnMessageExpiration:    props.DeadLetterOnExpire,
		DuplicateDetectionHistoryTimeWindow: FormatDuration(props.DuplicateDetectionWindow),
		MaxDeliveryCount:                    props.MaxDeliveryCount,
		EnableBatchedOperations:             props.EnableBatching,
		MessageCount:                        int64(counters.ActiveMessageCount + counters.ScheduledMessageCount + counters.DeadLetterMessageCount),
		ActiveMessageCount:                  counters.ActiveMessageCount,
		ScheduledMessageCount:               counters.ScheduledMessageCount,
		DeadLetterMessageCount:              counters.DeadLetterMessageCount,
		SizeInBytes:                         counters.SizeInBytes,
		CreatedAt:                           &c,
		UpdatedAt:                           &u,
	}
}

// Properties converts a wire description into queue properties. Unset
// durations stay zero so entity defaults apply.
func (d *QueueDescription) Properties() (entity.QueueProperties, error) {
	var p entity.QueueProperties
	var err error
	if p.LockDuration, err = optionalDuration(d.LockDuration); err != nil {
		return p, fmt.Errorf("LockDuration: %w", err)
	}
	if p.DefaultMessageTTL, err = optionalDuration(d.DefaultMessageTimeToLive); err != nil {
		return p, fmt.Errorf("DefaultMessageTimeToLive: %w", err)
	}
	if p.DuplicateDetectionWindow, err = optionalDuration(d.DuplicateDetectionHistoryTimeWindow); err != nil {
		return p, fmt.Errorf("DuplicateDetectionHistoryTimeWindow: %w", err)
	}
	p.MaxSizeBytes = d.MaxSizeInBytes
	p.RequiresDuplicateDetection = d.RequiresDuplicateDetection
	p.RequiresSession = d.RequiresSession
	p.DeadLetterOnExpire = d.DeadLetteringOnMessageExpiration
	p.MaxDeliveryCount = d.MaxDeliveryCount
	p.EnableBatching = d.EnableBatchedOperations
	return p, nil
}

// FromTopic renders a topic's properties as a wire description.
func FromTopic(props entity.TopicProperties, subCount int, created, updated time.Time) *TopicDescription {
	c, u := created.UTC(), updated.UTC()
	return &TopicDescription{
		Xmlns:                               NamespaceServiceBus,
		MaxSizeInBytes:                      props.MaxSizeBytes,
		RequiresDuplicateDetection:          props.RequiresDuplicateDetection,
		DefaultMessageTimeToLive:            FormatDuration(props.DefaultMessageTTL),
		DuplicateDetectionHistoryTimeWindow: FormatDuration(props.DuplicateDetectionWindow),
		EnableBatchedOperations:             props.EnableBatching,
		SubscriptionCount:                   subCount,
		CreatedAt:                           &c,
		UpdatedAt:                           &u,
	}
}

// Properties converts a wire description into topic properties.
func (d *TopicDescription) Properties() (entity.TopicProperties, error) {
	var p entity.TopicProperties
	var err error
	if p.DefaultMessageTTL, err = optionalDuration(d.DefaultMessageTimeToLive); err != nil {
		return p, fmt.Errorf("DefaultMessageTimeToLive: %w", err)
	}
	if p.DuplicateDetectionWindow, err = optionalDuration(d.DuplicateDetectionHistoryTimeWindow); err != nil {
		return p, fmt.Errorf("DuplicateDetectionHistoryTimeWindow: %w", err)
	}
	p.MaxSizeBytes = d.MaxSizeInBytes
	p.RequiresDuplicateDetection = d.RequiresDuplicateDetection
	p.EnableBatching = d.EnableBatchedOperations
	return p, nil
}

// FromSubscription renders a subscription's properties and counters as
// a wire description.
func FromSubscription(props entity.SubscriptionProperties, counters entity.RuntimeCounters, created, updated time.Time) *SubscriptionDescription {
	c, u := created.UTC(), updated.UTC()
	return &SubscriptionDescription{
		Xmlns:                            NamespaceServiceBus,
		LockDuration:                     FormatDuration(props.LockDuration),
		RequiresSession:                  props.RequiresSession,
		DefaultMessageTimeToLive:         FormatDuration(props.DefaultMessageTTL),
		DeadLetteringOnMessageExpiration: props.DeadLetterOnExpire,
		DeadLetteringOnFilterEvaluationExceptions: props.DeadLetterOnFilterError,
		MaxDeliveryCount:       props.MaxDeliveryCount,
		MessageCount:           int64(counters.ActiveMessageCount + counters.ScheduledMessageCount + counters.DeadLetterMessageCount),
		ActiveMessageCount:     counters.ActiveMessageCount,
		ScheduledMessageCount:  counters.ScheduledMessageCount,
		DeadLetterMessageCount: counters.DeadLetterMessageCount,
		CreatedAt:              &c,
		UpdatedAt:              &u,
	}
}

// Properties converts a wire description into subscription properties.
func (d *SubscriptionDescription) Properties() (entity.SubscriptionProperties, error) {
	var p entity.SubscriptionProperties
	var err error
	if p.LockDuration, err = optionalDuration(d.LockDuration); err != nil {
		return p, fmt.Errorf("LockDuration: %w", err)
	}
	if p.DefaultMessageTTL, err = optionalDuration(d.DefaultMessageTimeToLive); err != nil {
		return p, fmt.Errorf("DefaultMessageTimeToLive: %w", err)
	}
	p.RequiresSession = d.RequiresSession
	p.DeadLetterOnExpire = d.DeadLetteringOnMessageExpiration
	p.DeadLetterOnFilterError = d.DeadLetteringOnFilterEvaluationExceptions
	p.MaxDeliveryCount = d.MaxDeliveryCount
	return p, nil
}

// FromRule renders a rule as a wire description.
func FromRule(r *entity.Rule) *RuleDescription {
	c := r.CreatedAt.UTC()
	d := &RuleDescription{
		Xmlns:     NamespaceServiceBus,
		Name:      r.Name,
		CreatedAt: &c,
	}

	switch r.Kind {
	case entity.FilterSQL:
		d.Filter = &RuleFilter{Type: FilterTypeSQL, SQLExpression: r.Expression}
	case entity.FilterCorrelation:
		f := &RuleFilter{
			Type:          FilterTypeCorrelation,
			CorrelationID: r.Correlation.CorrelationID,
			MessageID:     r.Correlation.MessageID,
			To:            r.Correlation.To,
			ReplyTo:       r.Correlation.ReplyTo,
			Label:         r.Correlation.Label,
			SessionID:     r.Correlation.SessionID,
		}
		if len(r.Correlation.Properties) > 0 {
			f.Properties = make(map[string]string, len(r.Correlation.Properties))
			for k, v := range r.Correlation.Properties {
				f.Properties[k] = fmt.Sprintf("%v", v)
			}
		}
		d.Filter = f
	default:
		d.Filter = &RuleFilter{Type: FilterTypeTrue}
	}

	d.Action = &RuleAction{SQLExpression: r.Action}
	return d
}

// Rule converts a wire description into a rule named name. A missing
// filter means TrueFilter. SQL expressions are compiled here so a bad
// expression fails the admin call.
func (d *RuleDescription) Rule(name string) (*entity.Rule, error) {
	var r *entity.Rule
	var err error

	f := d.Filter
	switch {
	case f == nil || f.Type == FilterTypeTrue:
		r = entity.NewTrueRule(name)
	case f.Type == FilterTypeSQL:
		r, err = entity.NewSQLRule(name, f.SQLExpression)
	case f.Type == FilterTypeCorrelation:
		cf := &filter.CorrelationFilter{
			CorrelationID: f.CorrelationID,
			MessageID:     f.MessageID,
			To:            f.To,
			ReplyTo:       f.ReplyTo,
			Label:         f.Label,
			SessionID:     f.SessionID,
		}
		if len(f.Properties) > 0 {
			cf.Properties = make(map[string]any, len(f.Properties))
			for k, v := range f.Properties {
				cf.Properties[k] = v
			}
		}
		r, err = entity.NewCorrelationRule(name, cf)
	default:
		return nil, fmt.Errorf("unknown filter type %q", f.Type)
	}
	if err != nil {
		return nil, err
	}

	if d.Action != nil {
		r.Action = d.Action.SQLExpression
	}
	return r, nil
}

func optionalDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return ParseDuration(s)
}
