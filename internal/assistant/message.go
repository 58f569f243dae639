package assistant

import (
	"slices"
	"strings"
	"time"
)

// Author identifies who wrote a message.
type Author string

const (
	AuthorUser  Author = "user"
	AuthorAgent Author = "agent"
)

// DeliveryState tracks a user message through the widget.
type DeliveryState string

const (
	DeliveryPending   DeliveryState = "pending"
	DeliverySent      DeliveryState = "sent"
	DeliveryDelivered DeliveryState = "delivered"
	DeliverySeen      DeliveryState = "seen"
)

var deliveryRank = map[DeliveryState]int{
	DeliveryPending:   1,
	DeliverySent:      2,
	DeliveryDelivered: 3,
	DeliverySeen:      4,
}

// Advance returns the later of d and to; delivery never regresses.
func (d DeliveryState) Advance(to DeliveryState) DeliveryState {
	if deliveryRank[to] > deliveryRank[d] {
		return to
	}
	return d
}

// Message is one conversational turn as stored in the session log.
type Message struct {
	ID               string        `json:"id"`
	Author           Author        `json:"author"`
	Text             string        `json:"text"`
	AttachmentRef    string        `json:"attachmentRef,omitempty"`
	CreatedAt        time.Time     `json:"createdAt"`
	DeliveryState    DeliveryState `json:"deliveryState,omitempty"`
	SuggestedReplies []string      `json:"suggestedReplies,omitempty"`
}

func (m Message) clone() Message {
	m.SuggestedReplies = slices.Clone(m.SuggestedReplies)
	return m
}

// Attachment references an uploaded file. Upload handling lives elsewhere.
type Attachment struct {
	Ref string
}

func (a *Attachment) ref() string {
	if a == nil {
		return ""
	}
	return strings.TrimSpace(a.Ref)
}

func cloneMessages(in []Message) []Message {
	if in == nil {
		return nil
	}
	out := make([]Message, len(in))
	for i, m := range in {
		out[i] = m.clone()
	}
	return out
}

// WidgetState is the visibility of the chat widget.
type WidgetState string

const (
	WidgetClosed    WidgetState = "closed"
	WidgetOpen      WidgetState = "open"
	WidgetMinimized WidgetState = "minimized"
)

// Presence is what the widget header shows for the agent.
type Presence string

const (
	PresenceOnline Presence = "online"
	PresenceTyping Presence = "typing"
)

// Snapshot is a read-only copy of a session for display.
type Snapshot struct {
	Owner         string      `json:"owner"`
	Messages      []Message   `json:"messages"`
	IsAgentTyping bool        `json:"isAgentTyping"`
	Widget        WidgetState `json:"widget"`
	Presence      Presence    `json:"presence"`
	Unread        int         `json:"unread"`
	QuickReplies  []string    `json:"quickReplies,omitempty"`
}

// quickReplies returns the suggestions of the last message when it is from the agent.
func quickReplies(messages []Message) []string {
	if len(messages) == 0 {
		return nil
	}
	last := messages[len(messages)-1]
	if last.Author != AuthorAgent {
		return nil
	}
	return slices.Clone(last.SuggestedReplies)
}
