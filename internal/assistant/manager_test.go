package assistant

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var fastDelay = DelayPolicy{Min: time.Millisecond, Max: 2 * time.Millisecond}

type blockingProvider struct {
	release chan struct{}
	reply   Reply
	calls   atomic.Int32
}

func newBlockingProvider(text string) *blockingProvider {
	return &blockingProvider{release: make(chan struct{}), reply: Reply{Text: text, Category: CategoryFallback}}
}

func (p *blockingProvider) Name() string { return "blocking" }

func (p *blockingProvider) Reply(ctx context.Context, _ ReplyRequest) (Reply, error) {
	p.calls.Add(1)
	select {
	case <-p.release:
		return p.reply, nil
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}
}

type failingProvider struct {
	mu  sync.Mutex
	req ReplyRequest
}

func (p *failingProvider) Name() string { return "remote" }

func (p *failingProvider) Reply(_ context.Context, req ReplyRequest) (Reply, error) {
	p.mu.Lock()
	p.req = req
	p.mu.Unlock()
	return Reply{}, errors.New("dial tcp: connection refused")
}

type failingStore struct {
	saves atomic.Int32
}

func (s *failingStore) Load(context.Context, string) ([]Message, error) {
	return nil, errors.New("store unavailable")
}

func (s *failingStore) Save(context.Context, string, []Message) error {
	s.saves.Add(1)
	return errors.New("store unavailable")
}

type countingStore struct {
	*MemoryStore
	saves atomic.Int32
}

func (s *countingStore) Save(ctx context.Context, owner string, messages []Message) error {
	s.saves.Add(1)
	return s.MemoryStore.Save(ctx, owner, messages)
}

func newTestManager(t *testing.T, opts ManagerOptions) *Manager {
	t.Helper()
	if opts.Provider == nil {
		opts.Provider = NewRuleProvider(nil, FixedRand(0))
	}
	if opts.Delay == (DelayPolicy{}) {
		opts.Delay = fastDelay
	}
	if opts.Owner == "" {
		opts.Owner = "user:42"
	}
	m, err := Mount(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(m.Unmount)
	return m
}

func waitIdle(t *testing.T, m *Manager) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.WaitIdle(ctx))
}

func TestMountSeedsWelcome(t *testing.T) {
	store := NewMemoryStore()
	m := newTestManager(t, ManagerOptions{Store: store})

	snap := m.Snapshot()
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, AuthorAgent, snap.Messages[0].Author)
	assert.Equal(t, WelcomeText, snap.Messages[0].Text)
	assert.Equal(t, WelcomeSuggestions, snap.QuickReplies)
	assert.False(t, snap.IsAgentTyping)
	assert.Equal(t, WidgetClosed, snap.Widget)
	assert.Equal(t, PresenceOnline, snap.Presence)

	persisted, err := store.Load(context.Background(), "user:42")
	require.NoError(t, err)
	assert.Equal(t, snap.Messages, persisted)
}

func TestMountRestoresPersistedSession(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), "user:42", sampleLog()))

	m := newTestManager(t, ManagerOptions{Store: store})
	assert.Equal(t, sampleLog(), m.Snapshot().Messages)
}

func TestMountMalformedSessionStartsFresh(t *testing.T) {
	store := NewMemoryStore()
	store.SetRaw("user:42", []byte(`[{"id":"x"}]`))

	m := newTestManager(t, ManagerOptions{Store: store})
	snap := m.Snapshot()
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, WelcomeText, snap.Messages[0].Text)
}

func TestConversationGrowsByTwoPerTurn(t *testing.T) {
	m := newTestManager(t, ManagerOptions{})
	prompts := []string{"How do I start freelancing?", "what events are coming up", "thanks!"}
	for _, p := range prompts {
		_, err := m.SendUserMessage(context.Background(), p, nil)
		require.NoError(t, err)
		waitIdle(t, m)
	}

	msgs := m.Snapshot().Messages
	require.Len(t, msgs, 2*len(prompts)+1)
	for i, msg := range msgs {
		if i%2 == 0 {
			assert.Equal(t, AuthorAgent, msg.Author, "message %d", i)
		} else {
			assert.Equal(t, AuthorUser, msg.Author, "message %d", i)
			assert.Equal(t, prompts[i/2], msg.Text)
		}
		if i > 0 {
			assert.True(t, msg.CreatedAt.After(msgs[i-1].CreatedAt), "message %d out of order", i)
		}
	}
	assert.Equal(t, DeliverySeen, msgs[1].DeliveryState)
	assert.Equal(t, DeliverySeen, msgs[3].DeliveryState)
	assert.Equal(t, DeliveryDelivered, msgs[5].DeliveryState)
}

func TestSendEmptyIsNoop(t *testing.T) {
	store := NewMemoryStore()
	m := newTestManager(t, ManagerOptions{Store: store})
	before, _ := store.Raw("user:42")

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := m.SendUserMessage(context.Background(), text, nil)
		assert.ErrorIs(t, err, ErrEmptyMessage)
	}
	_, err := m.SendUserMessage(context.Background(), " ", &Attachment{Ref: " "})
	assert.ErrorIs(t, err, ErrEmptyMessage)

	snap := m.Snapshot()
	assert.Len(t, snap.Messages, 1)
	assert.False(t, snap.IsAgentTyping)
	after, _ := store.Raw("user:42")
	assert.Equal(t, before, after)
}

func TestSendAttachmentOnly(t *testing.T) {
	m := newTestManager(t, ManagerOptions{})
	msg, err := m.SendUserMessage(context.Background(), "", &Attachment{Ref: "upload-7"})
	require.NoError(t, err)
	assert.Equal(t, "upload-7", msg.AttachmentRef)
	waitIdle(t, m)

	msgs := m.Snapshot().Messages
	require.Len(t, msgs, 3)
	assert.Contains(t, DefaultBank().Entry(CategoryFallback).Templates, msgs[2].Text)
}

func TestSendWhileAgentTypingIsRejected(t *testing.T) {
	provider := newBlockingProvider("one moment")
	m := newTestManager(t, ManagerOptions{Provider: provider})

	_, err := m.SendUserMessage(context.Background(), "first", nil)
	require.NoError(t, err)
	assert.True(t, m.Snapshot().IsAgentTyping)
	assert.Equal(t, PresenceTyping, m.Snapshot().Presence)

	_, err = m.SendUserMessage(context.Background(), "second", nil)
	assert.ErrorIs(t, err, ErrTurnInProgress)
	assert.Len(t, m.Snapshot().Messages, 2)

	close(provider.release)
	waitIdle(t, m)
	snap := m.Snapshot()
	assert.Len(t, snap.Messages, 3)
	assert.False(t, snap.IsAgentTyping)
	assert.Equal(t, int32(1), provider.calls.Load())
}

func TestFreelancingReplyCarriesSuggestions(t *testing.T) {
	m := newTestManager(t, ManagerOptions{})
	_, err := m.SelectSuggestedReply(context.Background(), "How do I start freelancing?")
	require.NoError(t, err)
	waitIdle(t, m)

	snap := m.Snapshot()
	reply := snap.Messages[len(snap.Messages)-1]
	entry := DefaultBank().Entry(CategoryFreelancing)
	assert.Contains(t, entry.Templates, reply.Text)
	assert.Equal(t, entry.FollowUps, reply.SuggestedReplies)
	assert.Equal(t, entry.FollowUps, snap.QuickReplies)
	// the welcome chips are gone once the user has answered them
	assert.Empty(t, snap.Messages[0].SuggestedReplies)

	_, err = m.SendUserMessage(context.Background(), entry.FollowUps[0], nil)
	require.NoError(t, err)
	snap = m.Snapshot()
	assert.Empty(t, snap.Messages[2].SuggestedReplies)
	assert.Empty(t, snap.QuickReplies)
	waitIdle(t, m)
}

func TestProviderFailureShowsConnectionTrouble(t *testing.T) {
	provider := &failingProvider{}
	m := newTestManager(t, ManagerOptions{Provider: provider, Owner: AnonymousIdentity})

	_, err := m.SendUserMessage(context.Background(), "is anyone there?", nil)
	require.NoError(t, err)
	waitIdle(t, m)

	msgs := m.Snapshot().Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, DeliveryDelivered, msgs[1].DeliveryState)
	assert.Equal(t, ConnectionTroubleText, msgs[2].Text)
	assert.Empty(t, msgs[2].SuggestedReplies)

	provider.mu.Lock()
	defer provider.mu.Unlock()
	assert.Equal(t, "is anyone there?", provider.req.Text)
	assert.Equal(t, "", provider.req.UserID)
	assert.Equal(t, "webchat:anonymous", provider.req.ConversationID)
}

func TestClearConversation(t *testing.T) {
	store := NewMemoryStore()
	m := newTestManager(t, ManagerOptions{Store: store})
	for _, p := range []string{"hello", "bye"} {
		_, err := m.SendUserMessage(context.Background(), p, nil)
		require.NoError(t, err)
		waitIdle(t, m)
	}
	first := m.Snapshot().Messages[0].ID

	require.NoError(t, m.ClearConversation(context.Background()))
	require.NoError(t, m.ClearConversation(context.Background()))

	snap := m.Snapshot()
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, WelcomeText, snap.Messages[0].Text)
	assert.NotEqual(t, first, snap.Messages[0].ID)
	assert.Equal(t, WelcomeSuggestions, snap.QuickReplies)

	persisted, err := store.Load(context.Background(), "user:42")
	require.NoError(t, err)
	assert.Equal(t, snap.Messages, persisted)
}

func TestClearCancelsScheduledReply(t *testing.T) {
	clock := &fakeClock{}
	m := newTestManager(t, ManagerOptions{})
	m.scheduler.afterFunc = clock.afterFunc

	_, err := m.SendUserMessage(context.Background(), "hello", nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return clock.count() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, m.ClearConversation(context.Background()))
	clock.fireAll()

	snap := m.Snapshot()
	assert.Len(t, snap.Messages, 1)
	assert.False(t, snap.IsAgentTyping)

	// the session accepts new turns after a clear
	_, err = m.SendUserMessage(context.Background(), "hello again", nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return clock.count() == 1 }, time.Second, time.Millisecond)
	clock.fireAll()
	assert.Len(t, m.Snapshot().Messages, 3)
}

func TestUnmountDropsScheduledReply(t *testing.T) {
	clock := &fakeClock{}
	store := NewMemoryStore()
	m := newTestManager(t, ManagerOptions{Store: store})
	m.scheduler.afterFunc = clock.afterFunc

	_, err := m.SendUserMessage(context.Background(), "hello", nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return clock.count() == 1 }, time.Second, time.Millisecond)

	m.Unmount()
	clock.fireAll()

	snap := m.Snapshot()
	assert.Len(t, snap.Messages, 2)
	assert.False(t, snap.IsAgentTyping)
	persisted, err := store.Load(context.Background(), "user:42")
	require.NoError(t, err)
	assert.Len(t, persisted, 2)

	_, err = m.SendUserMessage(context.Background(), "still there?", nil)
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.ErrorIs(t, m.ClearConversation(context.Background()), ErrSessionClosed)
	waitIdle(t, m)
}

func TestUnmountCancelsProviderCall(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	provider := newBlockingProvider("late")
	m := newTestManager(t, ManagerOptions{Provider: provider})

	_, err := m.SendUserMessage(context.Background(), "hello", nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return provider.calls.Load() == 1 }, time.Second, time.Millisecond)

	m.Unmount()
	waitIdle(t, m)
	assert.Len(t, m.Snapshot().Messages, 2)
}

func TestSentDelayAdvancesPendingMessage(t *testing.T) {
	sent := &fakeClock{}
	provider := newBlockingProvider("ok")
	m := newTestManager(t, ManagerOptions{Provider: provider, SentDelay: 300 * time.Millisecond})
	m.afterFunc = sent.afterFunc

	msg, err := m.SendUserMessage(context.Background(), "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, DeliveryPending, msg.DeliveryState)
	require.Equal(t, 1, sent.count())
	assert.Equal(t, 300*time.Millisecond, sent.timers[0].d)

	sent.fireAll()
	assert.Equal(t, DeliverySent, m.Snapshot().Messages[1].DeliveryState)

	close(provider.release)
	waitIdle(t, m)
	assert.Equal(t, DeliveryDelivered, m.Snapshot().Messages[1].DeliveryState)
}

func TestSentAfterDeliveredNeverRegresses(t *testing.T) {
	sent := &fakeClock{}
	m := newTestManager(t, ManagerOptions{SentDelay: time.Second})
	m.afterFunc = sent.afterFunc

	_, err := m.SendUserMessage(context.Background(), "hello", nil)
	require.NoError(t, err)
	waitIdle(t, m)
	sent.fireAll()
	assert.Equal(t, DeliveryDelivered, m.Snapshot().Messages[1].DeliveryState)
}

func TestTimestampsIncreaseWithFrozenClock(t *testing.T) {
	frozen := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	m := newTestManager(t, ManagerOptions{Now: func() time.Time { return frozen }})

	_, err := m.SendUserMessage(context.Background(), "hello", nil)
	require.NoError(t, err)
	waitIdle(t, m)

	msgs := m.Snapshot().Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, frozen, msgs[0].CreatedAt)
	assert.Equal(t, frozen.Add(time.Millisecond), msgs[1].CreatedAt)
	assert.Equal(t, frozen.Add(2*time.Millisecond), msgs[2].CreatedAt)
}

func TestStoreFailuresDoNotBreakTheTurn(t *testing.T) {
	store := &failingStore{}
	m := newTestManager(t, ManagerOptions{Store: store})
	require.Len(t, m.Snapshot().Messages, 1)

	_, err := m.SendUserMessage(context.Background(), "hello", nil)
	require.NoError(t, err)
	waitIdle(t, m)
	assert.Len(t, m.Snapshot().Messages, 3)
	assert.GreaterOrEqual(t, store.saves.Load(), int32(3))
}

func TestWidgetUnreadCounter(t *testing.T) {
	m := newTestManager(t, ManagerOptions{})

	_, err := m.SendUserMessage(context.Background(), "hello", nil)
	require.NoError(t, err)
	waitIdle(t, m)
	assert.Equal(t, 1, m.Snapshot().Unread)

	m.Open()
	snap := m.Snapshot()
	assert.Equal(t, WidgetOpen, snap.Widget)
	assert.Equal(t, 0, snap.Unread)

	_, err = m.SendUserMessage(context.Background(), "thanks", nil)
	require.NoError(t, err)
	waitIdle(t, m)
	assert.Equal(t, 0, m.Snapshot().Unread)

	m.Minimize()
	_, err = m.SendUserMessage(context.Background(), "bye", nil)
	require.NoError(t, err)
	waitIdle(t, m)
	snap = m.Snapshot()
	assert.Equal(t, WidgetMinimized, snap.Widget)
	assert.Equal(t, 1, snap.Unread)

	m.Close()
	assert.Equal(t, WidgetClosed, m.Snapshot().Widget)
	assert.Len(t, m.Snapshot().Messages, 7)
}

func TestSubscribeReceivesTurnEvents(t *testing.T) {
	m := newTestManager(t, ManagerOptions{})
	events, cancel := m.Subscribe()
	defer cancel()

	_, err := m.SendUserMessage(context.Background(), "How do I start freelancing?", nil)
	require.NoError(t, err)
	waitIdle(t, m)

	var got []EventType
	timeout := time.After(time.Second)
	for len(got) < 6 {
		select {
		case evt := <-events:
			got = append(got, evt.Type)
			if evt.Type == EventMessage && evt.Message.Author == AuthorAgent {
				assert.NotEmpty(t, evt.QuickReplies)
			}
		case <-timeout:
			t.Fatalf("missing events, got %v", got)
		}
	}
	assert.Equal(t, []EventType{
		EventMessage, EventTyping,
		EventDelivery, EventMessage, EventTyping, EventWidget,
	}, got)
}

func TestSubscribeClosedOnUnmount(t *testing.T) {
	m := newTestManager(t, ManagerOptions{})
	events, cancel := m.Subscribe()
	m.Unmount()

	_, open := <-events
	assert.False(t, open)
	cancel()

	late, _ := m.Subscribe()
	_, open = <-late
	assert.False(t, open)
}

func TestClearEmitsReset(t *testing.T) {
	m := newTestManager(t, ManagerOptions{})
	events, cancel := m.Subscribe()
	defer cancel()

	require.NoError(t, m.ClearConversation(context.Background()))
	select {
	case evt := <-events:
		assert.Equal(t, EventReset, evt.Type)
		assert.Len(t, evt.Messages, 1)
		assert.Equal(t, WelcomeSuggestions, evt.QuickReplies)
	case <-time.After(time.Second):
		t.Fatal("no reset event")
	}
}

func TestReadOnlyOperationsDoNotSave(t *testing.T) {
	store := &countingStore{MemoryStore: NewMemoryStore()}
	m := newTestManager(t, ManagerOptions{Store: store})
	_, err := m.SendUserMessage(context.Background(), "hello", nil)
	require.NoError(t, err)
	waitIdle(t, m)

	saves := store.saves.Load()
	require.Positive(t, saves)

	m.Snapshot()
	m.Open()
	m.Minimize()
	m.Close()
	m.Busy()
	waitIdle(t, m)
	assert.Equal(t, saves, store.saves.Load())

	m.Unmount()
	restored := newTestManager(t, ManagerOptions{Store: store})
	assert.Len(t, restored.Snapshot().Messages, 3)
	restored.Open()
	assert.Equal(t, saves, store.saves.Load())
}
