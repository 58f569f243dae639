package assistant

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/club-portal-assistant/internal/observability/metrics"
	"github.com/wolfman30/club-portal-assistant/pkg/logging"
)

var (
	// ErrEmptyMessage rejects a send with neither text nor attachment.
	ErrEmptyMessage = errors.New("assistant: message has no text or attachment")
	// ErrTurnInProgress rejects a send while the agent is still replying.
	ErrTurnInProgress = errors.New("assistant: agent is still replying")
	// ErrSessionClosed is returned after the manager was unmounted.
	ErrSessionClosed = errors.New("assistant: session is closed")
)

// EventType names a change pushed to subscribers.
type EventType string

const (
	EventMessage  EventType = "message"
	EventDelivery EventType = "delivery"
	EventTyping   EventType = "typing"
	EventWidget   EventType = "state"
	EventReset    EventType = "reset"
)

// Event describes one change to a session.
type Event struct {
	Type         EventType
	Message      *Message
	MessageID    string
	Delivery     DeliveryState
	Typing       bool
	Widget       WidgetState
	Unread       int
	Messages     []Message
	QuickReplies []string
}

const subscriberBuffer = 64

// ManagerOptions configures a session manager.
type ManagerOptions struct {
	Owner    string
	Provider ReplyProvider
	Store    Store
	Delay    DelayPolicy
	// SentDelay is the cosmetic pending->sent delay; zero marks messages sent immediately.
	SentDelay      time.Duration
	ConversationID string
	Welcome        *Reply
	Logger         *logging.Logger
	Metrics        *metrics.AssistantMetrics
	Now            func() time.Time
	NewID          func() string
}

// Manager owns one identity's conversation: the message log, the typing flag,
// the widget state and the single outstanding agent turn.
type Manager struct {
	owner          string
	conversationID string
	provider       ReplyProvider
	store          Store
	scheduler      *Scheduler
	sentDelay      time.Duration
	welcome        Reply
	logger         *logging.Logger
	metrics        *metrics.AssistantMetrics
	now            func() time.Time
	newID          func() string
	afterFunc      afterFunc

	mu         sync.Mutex
	messages   []Message
	typing     bool
	composing  bool
	widget     WidgetState
	unread     int
	closed     bool
	epoch      uint64
	cancelTurn context.CancelFunc
	idle       chan struct{}
	subs       map[uint64]chan Event
	nextSub    uint64
}

func newIDV7() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Mount creates the manager for opts.Owner, restoring its persisted log or
// seeding a fresh session with a welcome message.
func Mount(ctx context.Context, opts ManagerOptions) (*Manager, error) {
	if opts.Provider == nil {
		return nil, errors.New("assistant: reply provider is required")
	}
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	if opts.Owner == "" {
		opts.Owner = AnonymousIdentity
	}
	if opts.Delay == (DelayPolicy{}) {
		opts.Delay = DefaultDelayPolicy
	}
	if opts.ConversationID == "" {
		opts.ConversationID = "webchat:" + opts.Owner
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = newIDV7
	}
	welcome := Reply{Text: WelcomeText, FollowUps: WelcomeSuggestions}
	if opts.Welcome != nil {
		welcome = *opts.Welcome
	}

	idle := make(chan struct{})
	close(idle)
	m := &Manager{
		owner:          opts.Owner,
		conversationID: opts.ConversationID,
		provider:       opts.Provider,
		store:          opts.Store,
		scheduler:      NewScheduler(opts.Delay),
		sentDelay:      opts.SentDelay,
		welcome:        welcome,
		logger:         opts.Logger.WithOwner(opts.Owner),
		metrics:        opts.Metrics,
		now:            opts.Now,
		newID:          opts.NewID,
		afterFunc:      realAfterFunc,
		widget:         WidgetClosed,
		idle:           idle,
		subs:           make(map[uint64]chan Event),
	}

	restored, err := m.store.Load(ctx, m.owner)
	if err != nil {
		m.logger.Warn("assistant: session load failed, starting fresh", "error", err)
		m.metrics.ObserveStoreError("load")
		restored = nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if restored != nil {
		m.messages = restored
		m.logger.Debug("assistant: session restored", "messages", len(restored))
		return m, nil
	}
	m.messages = []Message{m.welcomeLocked()}
	m.persistLocked(ctx)
	m.logger.Debug("assistant: session created")
	return m, nil
}

// Owner returns the identity this manager belongs to.
func (m *Manager) Owner() string { return m.owner }

// Snapshot returns a copy of the session for display.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Snapshot {
	presence := PresenceOnline
	if m.typing {
		presence = PresenceTyping
	}
	return Snapshot{
		Owner:         m.owner,
		Messages:      cloneMessages(m.messages),
		IsAgentTyping: m.typing,
		Widget:        m.widget,
		Presence:      presence,
		Unread:        m.unread,
		QuickReplies:  quickReplies(m.messages),
	}
}

// SendUserMessage appends the user's message and starts the agent turn.
// Empty sends and sends during an outstanding turn are rejected without any
// change to the session.
func (m *Manager) SendUserMessage(ctx context.Context, text string, attachment *Attachment) (Message, error) {
	text = strings.TrimSpace(text)
	ref := attachment.ref()
	if text == "" && ref == "" {
		m.metrics.ObserveRejected("empty")
		return Message{}, ErrEmptyMessage
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Message{}, ErrSessionClosed
	}
	if m.composing {
		m.metrics.ObserveRejected("busy")
		return Message{}, ErrTurnInProgress
	}

	var events []Event
	for i := range m.messages {
		msg := &m.messages[i]
		if msg.Author == AuthorUser && msg.DeliveryState == DeliveryDelivered {
			msg.DeliveryState = msg.DeliveryState.Advance(DeliverySeen)
			events = append(events, Event{Type: EventDelivery, MessageID: msg.ID, Delivery: msg.DeliveryState})
		}
	}
	if last := &m.messages[len(m.messages)-1]; last.Author == AuthorAgent {
		last.SuggestedReplies = nil
	}

	user := Message{
		ID:            m.newID(),
		Author:        AuthorUser,
		Text:          text,
		AttachmentRef: ref,
		CreatedAt:     m.nextTimestampLocked(),
		DeliveryState: DeliveryPending,
	}
	if m.sentDelay <= 0 {
		user.DeliveryState = DeliverySent
	}
	m.messages = append(m.messages, user)
	m.composing = true
	m.typing = true
	m.epoch++
	epoch := m.epoch
	m.idle = make(chan struct{})

	turnCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.cancelTurn = cancel

	m.persistLocked(ctx)
	appended := user.clone()
	events = append(events,
		Event{Type: EventMessage, Message: &appended},
		Event{Type: EventTyping, Typing: true},
	)
	m.emitLocked(events...)

	if m.sentDelay > 0 {
		id := user.ID
		m.afterFunc(m.sentDelay, func() { m.advanceDelivery(id, DeliverySent) })
	}
	go m.compose(turnCtx, epoch, user)
	return user.clone(), nil
}

// SelectSuggestedReply submits a quick-reply chip as if it had been typed.
func (m *Manager) SelectSuggestedReply(ctx context.Context, text string) (Message, error) {
	return m.SendUserMessage(ctx, text, nil)
}

// compose asks the provider for the reply and hands it to the scheduler.
func (m *Manager) compose(ctx context.Context, epoch uint64, user Message) {
	start := time.Now()
	reply, err := m.provider.Reply(ctx, ReplyRequest{
		Text:           user.Text,
		AttachmentRef:  user.AttachmentRef,
		UserID:         UserIDFromOwner(m.owner),
		ConversationID: m.conversationID,
	})
	if err == nil && strings.TrimSpace(reply.Text) == "" {
		err = errors.New("assistant: provider returned an empty reply")
	}
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.logger.Warn("assistant: reply provider failed",
			"provider", m.provider.Name(),
			"error", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		m.metrics.ObserveRemoteFailure()
		reply = Reply{Text: ConnectionTroubleText}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.epoch != epoch {
		return
	}
	task, err := m.scheduler.ScheduleReply(reply.Text, func() { m.deliver(epoch, user.ID, reply) })
	if err != nil {
		m.logger.Error("assistant: could not schedule reply", "error", err)
		m.deliverLocked(user.ID, reply)
		return
	}
	m.metrics.ObserveReplyDelay(m.provider.Name(), task.Delay().Seconds())
}

func (m *Manager) deliver(epoch uint64, userID string, reply Reply) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.epoch != epoch {
		return
	}
	m.deliverLocked(userID, reply)
}

func (m *Manager) deliverLocked(userID string, reply Reply) {
	agent := Message{
		ID:               m.newID(),
		Author:           AuthorAgent,
		Text:             reply.Text,
		CreatedAt:        m.nextTimestampLocked(),
		SuggestedReplies: slices.Clone(reply.FollowUps),
	}
	m.messages = append(m.messages, agent)

	var events []Event
	if i := m.indexLocked(userID); i >= 0 {
		msg := &m.messages[i]
		if next := msg.DeliveryState.Advance(DeliveryDelivered); next != msg.DeliveryState {
			msg.DeliveryState = next
			events = append(events, Event{Type: EventDelivery, MessageID: msg.ID, Delivery: next})
		}
	}
	m.finishTurnLocked()
	if m.widget != WidgetOpen {
		m.unread++
	}

	m.persistLocked(context.Background())
	appended := agent.clone()
	events = append(events,
		Event{Type: EventMessage, Message: &appended, QuickReplies: slices.Clone(agent.SuggestedReplies)},
		Event{Type: EventTyping, Typing: false},
	)
	if m.widget != WidgetOpen {
		events = append(events, Event{Type: EventWidget, Widget: m.widget, Unread: m.unread})
	}
	m.emitLocked(events...)
	m.metrics.ObserveTurn(m.provider.Name(), string(reply.Category))
	m.logger.Debug("assistant: turn settled", "category", reply.Category, "messages", len(m.messages))
}

func (m *Manager) finishTurnLocked() {
	m.typing = false
	m.composing = false
	if m.cancelTurn != nil {
		m.cancelTurn()
		m.cancelTurn = nil
	}
	select {
	case <-m.idle:
	default:
		close(m.idle)
	}
}

// abortTurnLocked invalidates any outstanding turn so late callbacks are dropped.
func (m *Manager) abortTurnLocked() bool {
	wasTyping := m.typing
	m.epoch++
	m.scheduler.CancelPending()
	m.finishTurnLocked()
	return wasTyping
}

func (m *Manager) advanceDelivery(id string, to DeliveryState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	i := m.indexLocked(id)
	if i < 0 {
		return
	}
	msg := &m.messages[i]
	next := msg.DeliveryState.Advance(to)
	if next == msg.DeliveryState {
		return
	}
	msg.DeliveryState = next
	m.persistLocked(context.Background())
	m.emitLocked(Event{Type: EventDelivery, MessageID: id, Delivery: next})
}

// ClearConversation replaces the log with a single fresh welcome message,
// cancelling any reply still being composed.
func (m *Manager) ClearConversation(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrSessionClosed
	}
	wasTyping := m.abortTurnLocked()
	m.messages = []Message{m.welcomeLocked()}
	m.persistLocked(ctx)

	if wasTyping {
		m.emitLocked(Event{Type: EventTyping, Typing: false})
	}
	m.emitLocked(Event{
		Type:         EventReset,
		Messages:     cloneMessages(m.messages),
		QuickReplies: quickReplies(m.messages),
	})
	return nil
}

// Open shows the widget and clears the unread counter.
func (m *Manager) Open() { m.setWidget(WidgetOpen) }

// Minimize collapses the widget to its launcher.
func (m *Manager) Minimize() { m.setWidget(WidgetMinimized) }

// Close hides the widget. The session stays mounted.
func (m *Manager) Close() { m.setWidget(WidgetClosed) }

func (m *Manager) setWidget(state WidgetState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if state == WidgetOpen {
		m.unread = 0
	}
	m.widget = state
	m.emitLocked(Event{Type: EventWidget, Widget: m.widget, Unread: m.unread})
}

// WaitIdle blocks until no agent turn is outstanding or ctx is done.
func (m *Manager) WaitIdle(ctx context.Context) error {
	m.mu.Lock()
	idle := m.idle
	m.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Busy reports whether an agent turn is outstanding.
func (m *Manager) Busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.composing
}

// Subscribe streams session events until the returned cancel func is called
// or the manager is unmounted. Slow subscribers drop events.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan Event, subscriberBuffer)
	if m.closed {
		close(ch)
		return ch, func() {}
	}
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if sub, ok := m.subs[id]; ok {
				delete(m.subs, id)
				close(sub)
			}
		})
	}
}

// Unmount tears the session down. Any scheduled reply is cancelled and will
// never be applied; subsequent operations return ErrSessionClosed.
func (m *Manager) Unmount() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.abortTurnLocked()
	m.closed = true
	for id, ch := range m.subs {
		delete(m.subs, id)
		close(ch)
	}
}

func (m *Manager) emitLocked(events ...Event) {
	for _, evt := range events {
		for _, ch := range m.subs {
			select {
			case ch <- evt:
			default:
				m.logger.Warn("assistant: dropping event for slow subscriber", "event", evt.Type)
			}
		}
	}
}

// persistLocked saves the log. Failures are logged and swallowed.
func (m *Manager) persistLocked(ctx context.Context) {
	if err := m.store.Save(ctx, m.owner, m.messages); err != nil {
		m.logger.Error("assistant: session save failed", "error", err)
		m.metrics.ObserveStoreError("save")
	}
}

func (m *Manager) welcomeLocked() Message {
	return Message{
		ID:               m.newID(),
		Author:           AuthorAgent,
		Text:             m.welcome.Text,
		CreatedAt:        m.nextTimestampLocked(),
		SuggestedReplies: slices.Clone(m.welcome.FollowUps),
	}
}

// nextTimestampLocked keeps createdAt strictly increasing even when the clock
// does not advance between two appends.
func (m *Manager) nextTimestampLocked() time.Time {
	now := m.now().UTC()
	if n := len(m.messages); n > 0 {
		if last := m.messages[n-1].CreatedAt; !now.After(last) {
			now = last.Add(time.Millisecond)
		}
	}
	return now
}

func (m *Manager) indexLocked(id string) int {
	for i := len(m.messages) - 1; i >= 0; i-- {
		if m.messages[i].ID == id {
			return i
		}
	}
	return -1
}
