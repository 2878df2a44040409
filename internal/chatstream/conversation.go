package chatstream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/andrewdmason/undercurrent-sub000/internal/config"
	"github.com/andrewdmason/undercurrent-sub000/internal/domain"
	"github.com/andrewdmason/undercurrent-sub000/internal/domain/models/chat"
)

// ErrNoChat is returned when a conversation is used before Open.
var ErrNoChat = errors.New("conversation has no chat, call Open first")

// ConversationConfig wires a Conversation.
type ConversationConfig struct {
	Store           Store
	Session         *Session
	OwnerID         string
	Model           string // used for chats this conversation creates
	ScriptQuestions []chat.ScriptQuestion
	Logger          *slog.Logger
}

// Conversation is the host side of one chat panel. It lazily picks or
// creates the chat, owns its message list and sends the welcome turn for
// empty chats exactly once.
//
// Open may be called more than once concurrently (a host constructed twice);
// both calls share one chat and only one init turn reaches the server.
type Conversation struct {
	store           Store
	session         *Session
	ownerID         string
	scriptQuestions []chat.ScriptQuestion
	logger          *slog.Logger

	mu    sync.Mutex
	chat  *chat.Chat
	model string

	// loadMu keeps one load at a time so a late empty load cannot
	// overwrite the list a finished init turn just reconciled.
	loadMu sync.Mutex
}

// NewConversation creates a conversation with no chat yet.
func NewConversation(cfg ConversationConfig) (*Conversation, error) {
	if cfg.Store == nil || cfg.Session == nil || cfg.Logger == nil {
		return nil, errors.New("conversation: store, session and logger are required")
	}
	if cfg.OwnerID == "" {
		return nil, errors.New("conversation: owner id is required")
	}
	model := cfg.Model
	if model == "" {
		model = config.DefaultModel
	}
	return &Conversation{
		store:           cfg.Store,
		session:         cfg.Session,
		ownerID:         cfg.OwnerID,
		scriptQuestions: cfg.ScriptQuestions,
		logger:          cfg.Logger,
		model:           model,
	}, nil
}

// Open picks the owner's most recent chat, or creates one, loads its
// messages and sends the init turn if the chat is empty.
func (c *Conversation) Open(ctx context.Context) error {
	current, err := c.ensureChat(ctx)
	if err != nil {
		return err
	}
	return c.load(ctx, current)
}

// InFlight returns what the streaming turn has produced so far. It reports
// false when no turn is streaming.
func (c *Conversation) InFlight() (TransientSnapshot, bool) {
	return c.session.Transient()
}

// Send submits a user message on the open chat.
func (c *Conversation) Send(ctx context.Context, text string) (*TurnResult, error) {
	current, model := c.current()
	if current == nil {
		return nil, ErrNoChat
	}

	result, err := c.session.SubmitTurn(ctx, TurnInput{
		ChatID: current.ID,
		Text:   text,
		Model:  model,
	})
	return result, err
}

// Clear replaces the chat with a brand-new one and welcomes the user again.
// The previous chat is kept in storage.
func (c *Conversation) Clear(ctx context.Context) error {
	if c.session.State() != StateIdle {
		return domain.ErrTurnInFlight
	}

	c.mu.Lock()
	created, err := c.store.CreateChat(ctx, c.ownerID, c.model)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("create chat: %w", err)
	}
	c.chat = created
	c.mu.Unlock()

	c.session.Guard().Reset(created.ID)
	c.session.Messages().Activate(created.ID)
	c.logger.Info("chat cleared", "chat_id", created.ID)

	return c.load(ctx, created)
}

// SwitchModel changes the model of the open chat.
func (c *Conversation) SwitchModel(ctx context.Context, model string) error {
	if err := validation.Validate(model,
		validation.Required,
		validation.Length(1, config.MaxModelLength),
	); err != nil {
		return fmt.Errorf("%w: model %v", domain.ErrValidation, err)
	}

	current, _ := c.current()
	if current == nil {
		return ErrNoChat
	}

	if err := c.store.UpdateChatModel(ctx, current.ID, model); err != nil {
		return fmt.Errorf("update chat model: %w", err)
	}

	c.mu.Lock()
	c.model = model
	if c.chat != nil && c.chat.ID == current.ID {
		c.chat.Model = model
	}
	c.mu.Unlock()

	c.logger.Info("model switched", "chat_id", current.ID, "model", model)
	return nil
}

// Chat returns a copy of the open chat, nil before Open.
func (c *Conversation) Chat() *chat.Chat {
	current, _ := c.current()
	return current
}

// Model returns the model used for the next turn.
func (c *Conversation) Model() string {
	_, model := c.current()
	return model
}

// Messages returns the visible messages of the open chat.
func (c *Conversation) Messages() []chat.Message {
	return c.session.Messages().Snapshot()
}

// TotalTokens is the running token total of the visible messages.
func (c *Conversation) TotalTokens() int {
	return c.session.Messages().TotalTokens()
}

func (c *Conversation) current() (*chat.Chat, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chat == nil {
		return nil, c.model
	}
	cp := *c.chat
	return &cp, c.model
}

// ensureChat returns the chat of this conversation, picking or creating it
// on first use. Concurrent callers wait for the first one.
func (c *Conversation) ensureChat(ctx context.Context) (*chat.Chat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.chat != nil {
		cp := *c.chat
		return &cp, nil
	}

	chats, err := c.store.ListChats(ctx, c.ownerID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}

	if len(chats) > 0 {
		c.chat = &chats[0]
		c.model = chats[0].Model
		c.logger.Debug("reusing chat", "chat_id", c.chat.ID)
	} else {
		created, err := c.store.CreateChat(ctx, c.ownerID, c.model)
		if err != nil {
			return nil, fmt.Errorf("create chat: %w", err)
		}
		c.chat = created
		c.logger.Info("chat created", "chat_id", created.ID, "model", created.Model)
	}

	c.session.Messages().Activate(c.chat.ID)
	cp := *c.chat
	return &cp, nil
}

// load fetches the chat's messages, dropping the result if the host moved to
// another chat in the meantime, and welcomes the user on an empty chat.
func (c *Conversation) load(ctx context.Context, target *chat.Chat) error {
	c.loadMu.Lock()
	defer c.loadMu.Unlock()

	guard := c.session.Guard()
	if !guard.IsCurrent(target.ID) && c.isReplaced(target.ID) {
		c.logger.Debug("chat replaced before load started", "chat_id", target.ID)
		return nil
	}
	guard.Target(target.ID)

	messages, err := c.store.GetMessages(ctx, target.ID)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}

	if !guard.IsCurrent(target.ID) {
		c.logger.Debug("ignoring stale message load", "chat_id", target.ID)
		return nil
	}
	c.session.Messages().Replace(target.ID, messages)

	if len(messages) > 0 {
		return nil
	}

	_, model := c.current()
	_, err = c.session.SubmitTurn(ctx, TurnInput{
		ChatID:          target.ID,
		Init:            true,
		Model:           model,
		ScriptQuestions: c.scriptQuestions,
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrInitAlreadySent),
		errors.Is(err, domain.ErrTurnInFlight),
		errors.Is(err, ErrChatNotEmpty):
		c.logger.Debug("init turn skipped", "chat_id", target.ID, "reason", err)
		return nil
	default:
		return fmt.Errorf("init turn: %w", err)
	}
}

// isReplaced reports whether the conversation moved on from chatID.
func (c *Conversation) isReplaced(chatID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chat != nil && c.chat.ID != chatID
}
