package chatstream

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrewdmason/undercurrent-sub000/internal/domain"
	"github.com/andrewdmason/undercurrent-sub000/internal/domain/models/chat"
)

// fakeStore is an in-memory Store. GetMessages blocks on gates[chatID]
// when one is set and signals loading[chatID] when it starts.
type fakeStore struct {
	mu       sync.Mutex
	chats    []chat.Chat
	messages map[string][]chat.Message
	gates    map[string]chan struct{}
	loading  map[string]chan struct{}
	created  int
	models   map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		messages: map[string][]chat.Message{},
		gates:    map[string]chan struct{}{},
		loading:  map[string]chan struct{}{},
		models:   map[string]string{},
	}
}

func (f *fakeStore) CreateChat(ctx context.Context, ownerID, model string) (*chat.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	c := chat.Chat{ID: fmt.Sprintf("chat-%d", f.created), OwnerID: ownerID, Model: model, CreatedAt: time.Now()}
	f.chats = append([]chat.Chat{c}, f.chats...)
	return &c, nil
}

func (f *fakeStore) ListChats(ctx context.Context, ownerID string) ([]chat.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []chat.Chat{}
	for _, c := range f.chats {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) GetMessages(ctx context.Context, chatID string) ([]chat.Message, error) {
	f.mu.Lock()
	gate := f.gates[chatID]
	started := f.loading[chatID]
	f.mu.Unlock()

	if started != nil {
		close(started)
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chat.Message(nil), f.messages[chatID]...), nil
}

func (f *fakeStore) UpdateChatModel(ctx context.Context, chatID, model string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.chats {
		if f.chats[i].ID == chatID {
			f.chats[i].Model = model
			f.models[chatID] = model
			return nil
		}
	}
	return fmt.Errorf("chat %s: %w", chatID, domain.ErrNotFound)
}

func (f *fakeStore) DeleteChat(ctx context.Context, chatID string) error {
	return nil
}

func (f *fakeStore) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created
}

// welcomeTransport streams a welcome for init turns and an echo otherwise,
// writing the assistant reply into the store like the server would.
func welcomeTransport(store *fakeStore) *fakeTransport {
	return &fakeTransport{open: func(ctx context.Context, req chat.TurnRequest) (io.ReadCloser, error) {
		reply := "Welcome!"
		if !req.IsInit {
			reply = "echo: " + req.Text()
		}
		store.mu.Lock()
		if !req.IsInit {
			store.messages[req.ChatID] = append(store.messages[req.ChatID], chat.Message{ID: "u", ChatID: req.ChatID, Role: chat.RoleUser, Content: req.Text()})
		}
		tokens := chat.EstimateTokens(reply)
		store.messages[req.ChatID] = append(store.messages[req.ChatID], chat.Message{ID: "a", ChatID: req.ChatID, Role: chat.RoleAssistant, Content: reply, TokenCount: &tokens})
		store.mu.Unlock()

		f, err := chat.FormatFrame(chat.NewTextEvent(reply))
		if err != nil {
			return nil, err
		}
		d, _ := chat.FormatFrame(chat.NewDoneEvent())
		return io.NopCloser(strings.NewReader(f + d)), nil
	}}
}

func newTestConversation(t *testing.T, store *fakeStore, transport Transport) *Conversation {
	t.Helper()
	s := newTestSession(t, transport, store, Hooks{}, nil)
	c, err := NewConversation(ConversationConfig{
		Store:   store,
		Session: s,
		OwnerID: "owner-1",
		Model:   "m1",
		Logger:  testLogger(),
	})
	require.NoError(t, err)
	return c
}

func TestConversation_OpenCreatesChatAndWelcomes(t *testing.T) {
	store := newFakeStore()
	transport := welcomeTransport(store)
	c := newTestConversation(t, store, transport)

	require.NoError(t, c.Open(context.Background()))

	require.NotNil(t, c.Chat())
	assert.Equal(t, "chat-1", c.Chat().ID)
	assert.Equal(t, "m1", c.Chat().Model)

	reqs := transport.requests()
	require.Len(t, reqs, 1)
	assert.True(t, reqs[0].IsInit)
	assert.Equal(t, "chat-1", reqs[0].ChatID)

	messages := c.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "Welcome!", messages[0].Content)
	assert.Equal(t, chat.EstimateTokens("Welcome!"), c.TotalTokens())
}

func TestConversation_DoubleOpenSendsOneInit(t *testing.T) {
	store := newFakeStore()
	transport := welcomeTransport(store)
	c := newTestConversation(t, store, transport)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- c.Open(context.Background())
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 1, store.createdCount())
	assert.Len(t, transport.requests(), 1)
	assert.Len(t, c.Messages(), 1)
}

func TestConversation_OpenReusesNewestChat(t *testing.T) {
	store := newFakeStore()
	store.chats = []chat.Chat{
		{ID: "newest", OwnerID: "owner-1", Model: "m-newest"},
		{ID: "older", OwnerID: "owner-1", Model: "m-older"},
	}
	store.messages["newest"] = []chat.Message{{ID: "x", ChatID: "newest", Role: chat.RoleAssistant, Content: "Welcome back"}}

	transport := welcomeTransport(store)
	c := newTestConversation(t, store, transport)

	require.NoError(t, c.Open(context.Background()))
	assert.Equal(t, "newest", c.Chat().ID)
	assert.Equal(t, "m-newest", c.Model())
	assert.Empty(t, transport.requests(), "non-empty chat gets no init turn")
	assert.Zero(t, store.createdCount())
}

func TestConversation_SendBeforeOpen(t *testing.T) {
	store := newFakeStore()
	c := newTestConversation(t, store, welcomeTransport(store))

	_, err := c.Send(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrNoChat)
	assert.ErrorIs(t, c.SwitchModel(context.Background(), "m2"), ErrNoChat)
}

func TestConversation_SendAndSwitchModel(t *testing.T) {
	store := newFakeStore()
	transport := welcomeTransport(store)
	c := newTestConversation(t, store, transport)
	ctx := context.Background()

	require.NoError(t, c.Open(ctx))
	require.NoError(t, c.SwitchModel(ctx, "m2"))
	assert.Equal(t, "m2", c.Model())
	assert.Equal(t, "m2", store.models["chat-1"])

	result, err := c.Send(ctx, "ping")
	require.NoError(t, err)
	assert.Equal(t, "echo: ping", result.Text)

	reqs := transport.requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "m2", reqs[1].Model)
	assert.Len(t, c.Messages(), 3)

	assert.ErrorIs(t, c.SwitchModel(ctx, ""), domain.ErrValidation)
}

func TestConversation_ClearStartsNewChatAndWelcomesAgain(t *testing.T) {
	store := newFakeStore()
	transport := welcomeTransport(store)
	c := newTestConversation(t, store, transport)
	ctx := context.Background()

	require.NoError(t, c.Open(ctx))
	_, err := c.Send(ctx, "ping")
	require.NoError(t, err)

	require.NoError(t, c.Clear(ctx))

	assert.Equal(t, "chat-2", c.Chat().ID)
	reqs := transport.requests()
	require.Len(t, reqs, 3)
	assert.True(t, reqs[2].IsInit)
	assert.Equal(t, "chat-2", reqs[2].ChatID)

	messages := c.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "chat-2", messages[0].ChatID)
}

func TestConversation_StaleLoadIsIgnored(t *testing.T) {
	store := newFakeStore()
	store.chats = []chat.Chat{{ID: "old", OwnerID: "owner-1", Model: "m1"}}
	store.messages["old"] = []chat.Message{{ID: "o1", ChatID: "old", Role: chat.RoleUser, Content: "from the old chat"}}
	gate := make(chan struct{})
	started := make(chan struct{})
	store.gates["old"] = gate
	store.loading["old"] = started

	transport := welcomeTransport(store)
	c := newTestConversation(t, store, transport)

	var seenMu sync.Mutex
	var seen []string
	c.session.Messages().OnChange(func(messages []chat.Message) {
		seenMu.Lock()
		defer seenMu.Unlock()
		for _, m := range messages {
			seen = append(seen, m.ID)
		}
	})

	ctx := context.Background()
	openDone := make(chan error, 1)
	go func() { openDone <- c.Open(ctx) }()
	<-started

	clearDone := make(chan error, 1)
	go func() { clearDone <- c.Clear(ctx) }()
	require.Eventually(t, func() bool { return c.session.Guard().IsCurrent("chat-1") }, time.Second, time.Millisecond)

	close(gate)
	require.NoError(t, <-openDone)
	require.NoError(t, <-clearDone)

	seenMu.Lock()
	assert.NotContains(t, seen, "o1")
	seenMu.Unlock()
	assert.Equal(t, "chat-1", c.Chat().ID)
	assert.Equal(t, "chat-1", c.session.Messages().ChatID())

	reqs := transport.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "chat-1", reqs[0].ChatID)
}
