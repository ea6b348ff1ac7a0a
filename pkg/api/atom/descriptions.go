package atom

import (
	"encoding/xml"
	"fmt"
	"sort"
	"time"
)

// QueueDescription is the admin wire form of a queue: settable
// properties plus runtime counters.
type QueueDescription struct {
	XMLName xml.Name `xml:"QueueDescription"`
	Xmlns   string   `xml:"xmlns,attr,omitempty"`

	LockDuration                        string `xml:"LockDuration,omitempty"`
	MaxSizeInBytes                      int64  `xml:"MaxSizeInBytes,omitempty"`
	RequiresDuplicateDetection          bool   `xml:"RequiresDuplicateDetection"`
	RequiresSession                     bool   `xml:"RequiresSession"`
	DefaultMessageTimeToLive            string `xml:"DefaultMessageTimeToLive,omitempty"`
	DeadLetteringOnMessageExpiration    bool   `xml:"DeadLetteringOnMessageExpiration"`
	DuplicateDetectionHistoryTimeWindow string `xml:"DuplicateDetectionHistoryTimeWindow,omitempty"`
	MaxDeliveryCount                    int    `xml:"MaxDeliveryCount,omitempty"`
	EnableBatchedOperations             bool   `xml:"EnableBatchedOperations"`

	MessageCount           int64      `xml:"MessageCount,omitempty"`
	ActiveMessageCount     int        `xml:"ActiveMessageCount,omitempty"`
	ScheduledMessageCount  int        `xml:"ScheduledMessageCount,omitempty"`
	DeadLetterMessageCount int        `xml:"DeadLetterMessageCount,omitempty"`
	SizeInBytes            int64      `xml:"SizeInBytes,omitempty"`
	CreatedAt              *time.Time `xml:"CreatedAt,omitempty"`
	UpdatedAt              *time.Time `xml:"UpdatedAt,omitempty"`
}

// TopicDescription is the admin wire form of a topic.
type TopicDescription struct {
	XMLName xml.Name `xml:"TopicDescription"`
	Xmlns   string   `xml:"xmlns,attr,omitempty"`

	MaxSizeInBytes                      int64  `xml:"MaxSizeInBytes,omitempty"`
	RequiresDuplicateDetection          bool   `xml:"RequiresDuplicateDetection"`
	DefaultMessageTimeToLive            string `xml:"DefaultMessageTimeToLive,omitempty"`
	DuplicateDetectionHistoryTimeWindow string `xml:"DuplicateDetectionHistoryTimeWindow,omitempty"`
	EnableBatchedOperations             bool   `xml:"EnableBatchedOperations"`

	SubscriptionCount int        `xml:"SubscriptionCount,omitempty"`
	SizeInBytes       int64      `xml:"SizeInBytes,omitempty"`
	CreatedAt         *time.Time `xml:"CreatedAt,omitempty"`
	UpdatedAt         *time.Time `xml:"UpdatedAt,omitempty"`
}

// SubscriptionDescription is the admin wire form of a subscription.
type SubscriptionDescription struct {
	XMLName xml.Name `xml:"SubscriptionDescription"`
	Xmlns   string   `xml:"xmlns,attr,omitempty"`

	LockDuration                              string `xml:"LockDuration,omitempty"`
	RequiresSession                           bool   `xml:"RequiresSession"`
	DefaultMessageTimeToLive                  string `xml:"DefaultMessageTimeToLive,omitempty"`
	DeadLetteringOnMessageExpiration          bool   `xml:"DeadLetteringOnMessageExpiration"`
	DeadLetteringOnFilterEvaluationExceptions bool   `xml:"DeadLetteringOnFilterEvaluationExceptions"`
	MaxDeliveryCount                          int    `xml:"MaxDeliveryCount,omitempty"`

	MessageCount           int64      `xml:"MessageCount,omitempty"`
	ActiveMessageCount     int        `xml:"ActiveMessageCount,omitempty"`
	ScheduledMessageCount  int        `xml:"ScheduledMessageCount,omitempty"`
	DeadLetterMessageCount int        `xml:"DeadLetterMessageCount,omitempty"`
	CreatedAt              *time.Time `xml:"CreatedAt,omitempty"`
	UpdatedAt              *time.Time `xml:"UpdatedAt,omitempty"`
}

// RuleDescription is the admin wire form of a subscription rule.
type RuleDescription struct {
	XMLName xml.Name `xml:"RuleDescription"`
	Xmlns   string   `xml:"xmlns,attr,omitempty"`

	Filter    *RuleFilter `xml:"Filter,omitempty"`
	Action    *RuleAction `xml:"Action,omitempty"`
	Name      string      `xml:"Name,omitempty"`
	CreatedAt *time.Time  `xml:"CreatedAt,omitempty"`
}

// Rule filter i:type discriminators.
const (
	FilterTypeSQL         = "SqlFilter"
	FilterTypeCorrelation = "CorrelationFilter"
	FilterTypeTrue        = "TrueFilter"
)

// RuleFilter is the polymorphic <Filter> element. Type selects the
// variant carried in the i:type attribute.
type RuleFilter struct {
	Type string

	// SqlFilter / TrueFilter
	SQLExpression string

	// CorrelationFilter
	CorrelationID string
	MessageID     string
	To            string
	ReplyTo       string
	Label         string
	SessionID     string
	ContentType   string
	Properties    map[string]string
}

// RuleAction is the polymorphic <Action> element. An empty SQLExpression
// serializes as EmptyRuleAction.
type RuleAction struct {
	SQLExpression string
}

type keyValue struct {
	Key   string `xml:"Key"`
	Value string `xml:"Value"`
}

// MarshalXML writes the filter with its i:type discriminator.
func (f *RuleFilter) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	start.Attr = append(start.Attr,
		xml.Attr{Name: xml.Name{Local: "i:type"}, Value: f.Type},
		xml.Attr{Name: xml.Name{Local: "xmlns:i"}, Value: NamespaceXSI},
	)
	if err := e.EncodeToken(start); err != nil {
		return err
	}

	encodeString := func(name, value string) error {
		if value == "" {
			return nil
		}
		return e.EncodeElement(value, xml.StartElement{Name: xml.Name{Local: name}})
	}

	switch f.Type {
	case FilterTypeSQL:
		if err := encodeString("SqlExpression", f.SQLExpression); err != nil {
			return err
		}
	case FilterTypeCorrelation:
		for _, field := range []struct{ name, value string }{
			{"CorrelationId", f.CorrelationID},
			{"MessageId", f.MessageID},
			{"To", f.To},
			{"ReplyTo", f.ReplyTo},
			{"Label", f.Label},
			{"SessionId", f.SessionID},
			{"ContentType", f.ContentType},
		} {
			if err := encodeString(field.name, field.value); err != nil {
				return err
			}
		}
		if len(f.Properties) > 0 {
			props := xml.StartElement{Name: xml.Name{Local: "Properties"}}
			if err := e.EncodeToken(props); err != nil {
				return err
			}
			for _, k := range sortedKeys(f.Properties) {
				kv := keyValue{Key: k, Value: f.Properties[k]}
				if err := e.EncodeElement(kv, xml.StartElement{Name: xml.Name{Local: "KeyValueOfstringanyType"}}); err != nil {
					return err
				}
			}
			if err := e.EncodeToken(props.End()); err != nil {
				return err
			}
		}
	case FilterTypeTrue:
		// No child elements
	default:
		return fmt.Errorf("unknown filter type %q", f.Type)
	}

	return e.EncodeToken(start.End())
}

// UnmarshalXML reads the filter variant selected by the i:type
// attribute. Attribute prefixes are matched by local name.
func (f *RuleFilter) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for _, attr := range start.Attr {
		if attr.Name.Local == "type" {
			f.Type = attr.Value
		}
	}
	if f.Type == "" {
		return fmt.Errorf("filter element missing i:type attribute")
	}

	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "SqlExpression":
				err = d.DecodeElement(&f.SQLExpression, &t)
			case "CorrelationId":
				err = d.DecodeElement(&f.CorrelationID, &t)
			case "MessageId":
				err = d.DecodeElement(&f.MessageID, &t)
			case "To":
				err = d.DecodeElement(&f.To, &t)
			case "ReplyTo":
				err = d.DecodeElement(&f.ReplyTo, &t)
			case "Label":
				err = d.DecodeElement(&f.Label, &t)
			case "SessionId":
				err = d.DecodeElement(&f.SessionID, &t)
			case "ContentType":
				err = d.DecodeElement(&f.ContentType, &t)
			case "Properties":
				err = f.decodeProperties(d, t)
			default:
				err = d.Skip()
			}
			if err != nil {
				return err
			}
		case xml.EndElement:
			return nil
		}
	}
}

func (f *RuleFilter) decodeProperties(d *xml.Decoder, start xml.StartElement) error {
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			var kv keyValue
			if err := d.DecodeElement(&kv, &t); err != nil {
				return err
			}
			if f.Properties == nil {
				f.Properties = make(map[string]string)
			}
			f.Properties[kv.Key] = kv.Value
		case xml.EndElement:
			return nil
		}
	}
}

// MarshalXML writes the action as SqlRuleAction or EmptyRuleAction.
func (a *RuleAction) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	actionType := "EmptyRuleAction"
	if a.SQLExpression != "" {
		actionType = "SqlRuleAction"
	}
	start.Attr = append(start.Attr,
		xml.Attr{Name: xml.Name{Local: "i:type"}, Value: actionType},
		xml.Attr{Name: xml.Name{Local: "xmlns:i"}, Value: NamespaceXSI},
	)
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	if a.SQLExpression != "" {
		if err := e.EncodeElement(a.SQLExpression, xml.StartElement{Name: xml.Name{Local: "SqlExpression"}}); err != nil {
			return err
		}
	}
	return e.EncodeToken(start.End())
}

// UnmarshalXML reads either action variant; only SqlRuleAction carries
// content.
func (a *RuleAction) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "SqlExpression" {
				if err := d.DecodeElement(&a.SQLExpression, &t); err != nil {
					return err
				}
			} else if err := d.Skip(); err != nil {
				return err
			}
		case xml.EndElement:
			return nil
		}
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
