// Package atom implements the Atom/XML envelopes of the admin surface:
// entity descriptions wrapped in Atom entries and feeds, the ISO-8601
// duration codec, and the rule filter variants.
package atom

import (
	"encoding/xml"
	"time"
)

// Wire namespaces.
const (
	NamespaceAtom       = "http://www.w3.org/2005/Atom"
	NamespaceServiceBus = "http://schemas.microsoft.com/netservices/2010/10/servicebus/connect"
	NamespaceXSI        = "http://www.w3.org/2001/XMLSchema-instance"
)

// ContentType is the media type of admin requests and responses.
const ContentType = "application/atom+xml;type=entry;charset=utf-8"

// Entry is an Atom entry wrapping a single entity description.
type Entry struct {
	XMLName   xml.Name   `xml:"entry"`
	Xmlns     string     `xml:"xmlns,attr,omitempty"`
	ID        string     `xml:"id,omitempty"`
	Title     string     `xml:"title,omitempty"`
	Published *time.Time `xml:"published,omitempty"`
	Updated   *time.Time `xml:"updated,omitempty"`
	Author    *Author    `xml:"author,omitempty"`
	Content   Content    `xml:"content"`
}

// Feed is an Atom feed wrapping a page of entity descriptions.
type Feed struct {
	XMLName xml.Name  `xml:"feed"`
	Xmlns   string    `xml:"xmlns,attr,omitempty"`
	Title   string    `xml:"title,omitempty"`
	ID      string    `xml:"id,omitempty"`
	Updated time.Time `xml:"updated"`
	Entries []Entry   `xml:"entry"`
}

// Author carries the namespace name in list responses.
type Author struct {
	Name string `xml:"name"`
}

// Content wraps exactly one entity description. The non-nil pointer
// selects the description element on marshal; on unmarshal the element
// name selects the pointer.
type Content struct {
	Type         string                   `xml:"type,attr"`
	Queue        *QueueDescription        `xml:"QueueDescription,omitempty"`
	Topic        *TopicDescription        `xml:"TopicDescription,omitempty"`
	Subscription *SubscriptionDescription `xml:"SubscriptionDescription,omitempty"`
	Rule         *RuleDescription         `xml:"RuleDescription,omitempty"`
}

// NewEntry wraps a description in an Atom entry with the standard
// attributes populated.
func NewEntry(id, title string, created, updated time.Time, content Content) Entry {
	if content.Type == "" {
		content.Type = "application/xml"
	}
	created = created.UTC()
	updated = updated.UTC()
	return Entry{
		Xmlns:     NamespaceAtom,
		ID:        id,
		Title:     title,
		Published: &created,
		Updated:   &updated,
		Content:   content,
	}
}

// NewFeed wraps entries in an Atom feed. Entries inherit the feed's
// xmlns, so theirs is cleared.
func NewFeed(id, title string, now time.Time, entries []Entry) Feed {
	for i := range entries {
		entries[i].Xmlns = ""
	}
	return Feed{
		Xmlns:   NamespaceAtom,
		Title:   title,
		ID:      id,
		Updated: now.UTC(),
		Entries: entries,
	}
}
