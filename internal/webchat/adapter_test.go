package webchat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/club-portal-assistant/internal/assistant"
)

func TestFrameFromEvent(t *testing.T) {
	msg := assistant.Message{
		ID:               "m1",
		Author:           assistant.AuthorAgent,
		Text:             "Hello!",
		CreatedAt:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		SuggestedReplies: []string{"What events are coming up?"},
	}

	frame, ok := frameFromEvent(assistant.Event{Type: assistant.EventMessage, Message: &msg, QuickReplies: msg.SuggestedReplies})
	require.True(t, ok)
	assert.Equal(t, FrameMessage, frame.Type)
	require.NotNil(t, frame.Message)
	assert.Equal(t, "agent", frame.Message.Author)
	assert.Equal(t, "2026-03-01T12:00:00Z", frame.Message.Timestamp)
	assert.Equal(t, msg.SuggestedReplies, frame.QuickReplies)

	frame, ok = frameFromEvent(assistant.Event{Type: assistant.EventDelivery, MessageID: "m2", Delivery: assistant.DeliverySeen})
	require.True(t, ok)
	assert.Equal(t, FrameDelivery, frame.Type)
	assert.Equal(t, "m2", frame.MessageID)
	assert.Equal(t, "seen", frame.DeliveryState)

	frame, ok = frameFromEvent(assistant.Event{Type: assistant.EventTyping, Typing: true})
	require.True(t, ok)
	require.NotNil(t, frame.Typing)
	assert.True(t, *frame.Typing)
	assert.Equal(t, "typing", frame.Presence)

	frame, ok = frameFromEvent(assistant.Event{Type: assistant.EventWidget, Widget: assistant.WidgetMinimized, Unread: 2})
	require.True(t, ok)
	assert.Equal(t, FrameState, frame.Type)
	assert.Equal(t, "minimized", frame.Widget)
	assert.Equal(t, 2, *frame.Unread)

	frame, ok = frameFromEvent(assistant.Event{Type: assistant.EventReset, Messages: []assistant.Message{msg}})
	require.True(t, ok)
	assert.Equal(t, FrameReset, frame.Type)
	assert.Len(t, frame.Messages, 1)

	_, ok = frameFromEvent(assistant.Event{Type: assistant.EventMessage})
	assert.False(t, ok)
	_, ok = frameFromEvent(assistant.Event{Type: "unknown"})
	assert.False(t, ok)
}

func TestHistoryFrame(t *testing.T) {
	frame := historyFrame(assistant.Snapshot{
		Messages:      []assistant.Message{{ID: "m1", Author: assistant.AuthorAgent, Text: "hi"}},
		IsAgentTyping: true,
		Widget:        assistant.WidgetOpen,
		Presence:      assistant.PresenceTyping,
		Unread:        0,
	})
	assert.Equal(t, FrameHistory, frame.Type)
	assert.Len(t, frame.Messages, 1)
	assert.True(t, *frame.Typing)
	assert.Equal(t, "open", frame.Widget)
	assert.Equal(t, 0, *frame.Unread)
}
