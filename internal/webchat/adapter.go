package webchat

import (
	"time"

	"github.com/wolfman30/club-portal-assistant/internal/assistant"
)

// MessageView is the wire form of one chat message.
type MessageView struct {
	ID               string   `json:"id"`
	Author           string   `json:"author"`
	Text             string   `json:"text"`
	AttachmentRef    string   `json:"attachment_ref,omitempty"`
	Timestamp        string   `json:"timestamp"`
	DeliveryState    string   `json:"delivery_state,omitempty"`
	SuggestedReplies []string `json:"suggested_replies,omitempty"`
}

func viewMessage(m assistant.Message) MessageView {
	return MessageView{
		ID:               m.ID,
		Author:           string(m.Author),
		Text:             m.Text,
		AttachmentRef:    m.AttachmentRef,
		Timestamp:        m.CreatedAt.Format(time.RFC3339Nano),
		DeliveryState:    string(m.DeliveryState),
		SuggestedReplies: m.SuggestedReplies,
	}
}

func viewMessages(msgs []assistant.Message) []MessageView {
	out := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, viewMessage(m))
	}
	return out
}

// historyFrame renders a full snapshot, sent once when a widget connects.
func historyFrame(snap assistant.Snapshot) OutboundFrame {
	typing := snap.IsAgentTyping
	unread := snap.Unread
	return OutboundFrame{
		Type:         FrameHistory,
		Messages:     viewMessages(snap.Messages),
		QuickReplies: snap.QuickReplies,
		Typing:       &typing,
		Widget:       string(snap.Widget),
		Presence:     string(snap.Presence),
		Unread:       &unread,
	}
}

// frameFromEvent bridges a manager event onto the widget protocol.
func frameFromEvent(evt assistant.Event) (OutboundFrame, bool) {
	switch evt.Type {
	case assistant.EventMessage:
		if evt.Message == nil {
			return OutboundFrame{}, false
		}
		view := viewMessage(*evt.Message)
		return OutboundFrame{Type: FrameMessage, Message: &view, QuickReplies: evt.QuickReplies}, true
	case assistant.EventDelivery:
		return OutboundFrame{Type: FrameDelivery, MessageID: evt.MessageID, DeliveryState: string(evt.Delivery)}, true
	case assistant.EventTyping:
		typing := evt.Typing
		presence := assistant.PresenceOnline
		if typing {
			presence = assistant.PresenceTyping
		}
		return OutboundFrame{Type: FrameTyping, Typing: &typing, Presence: string(presence)}, true
	case assistant.EventWidget:
		unread := evt.Unread
		return OutboundFrame{Type: FrameState, Widget: string(evt.Widget), Unread: &unread}, true
	case assistant.EventReset:
		return OutboundFrame{Type: FrameReset, Messages: viewMessages(evt.Messages), QuickReplies: evt.QuickReplies}, true
	default:
		return OutboundFrame{}, false
	}
}
