package handlers

import (
	"encoding/xml"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/oladejiayo/localzure/pkg/api/atom"
	"github.com/oladejiayo/localzure/pkg/broker"
	"github.com/oladejiayo/localzure/pkg/broker/entity"
	"github.com/oladejiayo/localzure/pkg/broker/sberr"
)

// AdminHandler serves entity CRUD over Atom/XML.
type AdminHandler struct {
	broker  *broker.Broker
	baseURL string
}

// NewAdminHandler creates the admin CRUD handler. baseURL is used for
// the id links in Atom entries, e.g. "https://localhost:5672/sbemulator".
func NewAdminHandler(b *broker.Broker, baseURL string) *AdminHandler {
	return &AdminHandler{broker: b, baseURL: baseURL}
}

// decodeEntry reads an Atom entry request body.
func decodeEntry(r *http.Request) (*atom.Entry, error) {
	var entry atom.Entry
	if err := xml.NewDecoder(r.Body).Decode(&entry); err != nil {
		return nil, sberr.NewInvalidOperation("decode request", "invalid Atom/XML body")
	}
	return &entry, nil
}

func createdStatus(created bool) int {
	if created {
		return http.StatusCreated
	}
	return http.StatusOK
}

// PutQueue handles PUT /{queue}. Idempotent create-or-update.
func (h *AdminHandler) PutQueue(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "queue")

	entry, err := decodeEntry(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var props entity.QueueProperties
	if entry.Content.Queue != nil {
		if props, err = entry.Content.Queue.Properties(); err != nil {
			writeError(w, r, sberr.NewInvalidOperation("create queue", err.Error()))
			return
		}
	}

	q, created, err := h.broker.CreateOrUpdateQueue(r.Context(), name, props)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeAtom(w, createdStatus(created), h.queueEntry(q))
}

// GetQueue handles GET /{queue}.
func (h *AdminHandler) GetQueue(w http.ResponseWriter, r *http.Request) {
	q, err := h.broker.GetQueue(r.Context(), chi.URLParam(r, "queue"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeAtom(w, http.StatusOK, h.queueEntry(q))
}

// DeleteQueue handles DELETE /{queue}.
func (h *AdminHandler) DeleteQueue(w http.ResponseWriter, r *http.Request) {
	if err := h.broker.DeleteQueue(r.Context(), chi.URLParam(r, "queue")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// ListQueues handles GET /$Resources/Queues.
func (h *AdminHandler) ListQueues(w http.ResponseWriter, r *http.Request) {
	skip, top, err := listRange(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	queues := h.broker.ListQueues(r.Context(), skip, top)
	entries := make([]atom.Entry, len(queues))
	for i, q := range queues {
		entries[i] = h.queueEntry(q)
	}
	feed := atom.NewFeed(h.baseURL+"/$Resources/Queues", "Queues", time.Now(), entries)
	writeAtom(w, http.StatusOK, feed)
}

func (h *AdminHandler) queueEntry(q *entity.Queue) atom.Entry {
	q.Lock()
	desc := atom.FromQueue(q.Props, q.Counters(), q.CreatedAt, q.UpdatedAt)
	created, updated := q.CreatedAt, q.UpdatedAt
	q.Unlock()
	return atom.NewEntry(h.baseURL+"/"+q.Name, q.Name, created, updated,
		atom.Content{Queue: desc})
}

// PutTopic handles PUT /topics/{topic}.
func (h *AdminHandler) PutTopic(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "topic")

	entry, err := decodeEntry(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var props entity.TopicProperties
	if entry.Content.Topic != nil {
		if props, err = entry.Content.Topic.Properties(); err != nil {
			writeError(w, r, sberr.NewInvalidOperation("create topic", err.Error()))
			return
		}
	}

	t, created, err := h.broker.CreateOrUpdateTopic(r.Context(), name, props)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeAtom(w, createdStatus(created), h.topicEntry(t))
}

// GetTopic handles GET /topics/{topic}.
func (h *AdminHandler) GetTopic(w http.ResponseWriter, r *http.Request) {
	t, err := h.broker.GetTopic(r.Context(), chi.URLParam(r, "topic"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeAtom(w, http.StatusOK, h.topicEntry(t))
}

// DeleteTopic handles DELETE /topics/{topic}. Cascades to
// subscriptions and their rules.
func (h *AdminHandler) DeleteTopic(w http.ResponseWriter, r *http.Request) {
	if err := h.broker.DeleteTopic(r.Context(), chi.URLParam(r, "topic")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// ListTopics handles GET /$Resources/Topics.
func (h *AdminHandler) ListTopics(w http.ResponseWriter, r *http.Request) {
	skip, top, err := listRange(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	topics := h.broker.ListTopics(r.Context(), skip, top)
	entries := make([]atom.Entry, len(topics))
	for i, t := range topics {
		entries[i] = h.topicEntry(t)
	}
	feed := atom.NewFeed(h.baseURL+"/$Resources/Topics", "Topics", time.Now(), entries)
	writeAtom(w, http.StatusOK, feed)
}

func (h *AdminHandler) topicEntry(t *entity.Topic) atom.Entry {
	subs, _ := h.broker.Registry().Subscriptions(t.Name)
	desc := atom.FromTopic(t.Props, len(subs), t.CreatedAt, t.UpdatedAt)
	return atom.NewEntry(h.baseURL+"/topics/"+t.Name, t.Name, t.CreatedAt, t.UpdatedAt,
		atom.Content{Topic: desc})
}

// PutSubscription handles PUT /topics/{topic}/subscriptions/{sub}.
func (h *AdminHandler) PutSubscription(w http.ResponseWriter, r *http.Request) {
	topic := chi.URLParam(r, "topic")
	name := chi.URLParam(r, "sub")

	entry, err := decodeEntry(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var props entity.SubscriptionProperties
	if entry.Content.Subscription != nil {
		if props, err = entry.Content.Subscription.Properties(); err != nil {
			writeError(w, r, sberr.NewInvalidOperation("create subscription", err.Error()))
			return
		}
	}

	s, created, err := h.broker.CreateOrUpdateSubscription(r.Context(), topic, name, props)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeAtom(w, createdStatus(created), h.subscriptionEntry(s))
}

// GetSubscription handles GET /topics/{topic}/subscriptions/{sub}.
func (h *AdminHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	s, err := h.broker.GetSubscription(r.Context(),
		chi.URLParam(r, "topic"), chi.URLParam(r, "sub"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeAtom(w, http.StatusOK, h.subscriptionEntry(s))
}

// DeleteSubscription handles DELETE /topics/{topic}/subscriptions/{sub}.
func (h *AdminHandler) DeleteSubscription(w http.ResponseWriter, r *http.Request) {
	err := h.broker.DeleteSubscription(r.Context(),
		chi.URLParam(r, "topic"), chi.URLParam(r, "sub"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// ListSubscriptions handles GET /topics/{topic}/subscriptions.
func (h *AdminHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	topic := chi.URLParam(r, "topic")
	skip, top, err := listRange(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	subs, err := h.broker.ListSubscriptions(r.Context(), topic, skip, top)
	if err != nil {
		writeError(w, r, err)
		return
	}
	entries := make([]atom.Entry, len(subs))
	for i, s := range subs {
		entries[i] = h.subscriptionEntry(s)
	}
	feed := atom.NewFeed(h.baseURL+"/topics/"+topic+"/subscriptions",
		"Subscriptions", time.Now(), entries)
	writeAtom(w, http.StatusOK, feed)
}

func (h *AdminHandler) subscriptionEntry(s *entity.Subscription) atom.Entry {
	s.Lock()
	desc := atom.FromSubscription(s.Props, s.Counters(), s.CreatedAt, s.UpdatedAt)
	created, updated := s.CreatedAt, s.UpdatedAt
	s.Unlock()
	id := h.baseURL + "/topics/" + s.TopicName + "/subscriptions/" + s.Name
	return atom.NewEntry(id, s.Name, created, updated,
		atom.Content{Subscription: desc})
}

// PutRule handles PUT /topics/{topic}/subscriptions/{sub}/rules/{rule}.
func (h *AdminHandler) PutRule(w http.ResponseWriter, r *http.Request) {
	topic := chi.URLParam(r, "topic")
	sub := chi.URLParam(r, "sub")
	name := chi.URLParam(r, "rule")

	entry, err := decodeEntry(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var desc atom.RuleDescription
	if entry.Content.Rule != nil {
		desc = *entry.Content.Rule
	}
	rule, err := desc.Rule(name)
	if err != nil {
		writeError(w, r, err)
		return
	}

	created, err := h.broker.CreateOrUpdateRule(r.Context(), topic, sub, rule)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeAtom(w, createdStatus(created), h.ruleEntry(topic, sub, rule))
}

// GetRule handles GET /topics/{topic}/subscriptions/{sub}/rules/{rule}.
func (h *AdminHandler) GetRule(w http.ResponseWriter, r *http.Request) {
	topic := chi.URLParam(r, "topic")
	sub := chi.URLParam(r, "sub")

	rule, err := h.broker.GetRule(r.Context(), topic, sub, chi.URLParam(r, "rule"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeAtom(w, http.StatusOK, h.ruleEntry(topic, sub, rule))
}

// DeleteRule handles DELETE /topics/{topic}/subscriptions/{sub}/rules/{rule}.
func (h *AdminHandler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	err := h.broker.DeleteRule(r.Context(),
		chi.URLParam(r, "topic"), chi.URLParam(r, "sub"), chi.URLParam(r, "rule"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// ListRules handles GET /topics/{topic}/subscriptions/{sub}/rules.
func (h *AdminHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	topic := chi.URLParam(r, "topic")
	sub := chi.URLParam(r, "sub")
	skip, top, err := listRange(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	rules, err := h.broker.ListRules(r.Context(), topic, sub, skip, top)
	if err != nil {
		writeError(w, r, err)
		return
	}
	entries := make([]atom.Entry, len(rules))
	for i, rule := range rules {
		entries[i] = h.ruleEntry(topic, sub, rule)
	}
	id := h.baseURL + "/topics/" + topic + "/subscriptions/" + sub + "/rules"
	feed := atom.NewFeed(id, "Rules", time.Now(), entries)
	writeAtom(w, http.StatusOK, feed)
}

func (h *AdminHandler) ruleEntry(topic, sub string, rule *entity.Rule) atom.Entry {
	id := h.baseURL + "/topics/" + topic + "/subscriptions/" + sub + "/rules/" + rule.Name
	return atom.NewEntry(id, rule.Name, rule.CreatedAt, rule.CreatedAt,
		atom.Content{Rule: atom.FromRule(rule)})
}
