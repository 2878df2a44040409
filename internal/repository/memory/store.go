// Package memory keeps chats and messages in process memory.
// Used when no DATABASE_URL is configured and in service tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/andrewdmason/undercurrent-sub000/internal/domain"
	chatModels "github.com/andrewdmason/undercurrent-sub000/internal/domain/models/chat"
	"github.com/andrewdmason/undercurrent-sub000/internal/domain/repositories"
	chatRepo "github.com/andrewdmason/undercurrent-sub000/internal/domain/repositories/chat"
)

// Store holds every chat and message. It implements both repository
// interfaces and a TransactionManager that serializes ExecTx calls.
type Store struct {
	mu       sync.RWMutex
	chats    map[string]*chatModels.Chat
	messages map[string][]chatModels.Message // by chat ID, in insertion order

	txMu sync.Mutex
	now  func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		chats:    make(map[string]*chatModels.Chat),
		messages: make(map[string][]chatModels.Message),
		now:      time.Now,
	}
}

var (
	_ chatRepo.ChatRepository        = (*Store)(nil)
	_ chatRepo.MessageRepository     = (*Store)(nil)
	_ repositories.TransactionManager = (*Store)(nil)
)

// ExecTx runs fn while holding the store-wide transaction lock.
// There is no rollback: fn's writes stay applied even if it fails.
// A nested call joins the outer one instead of locking again.
func (s *Store) ExecTx(ctx context.Context, fn repositories.TxFn) error {
	if repositories.InTx(ctx) {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(repositories.MarkTx(ctx))
}

func (s *Store) CreateChat(ctx context.Context, chat *chatModels.Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	chat.ID = uuid.NewString()
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = now
	}
	if chat.UpdatedAt.IsZero() {
		chat.UpdatedAt = now
	}

	stored := *chat
	s.chats[chat.ID] = &stored
	return nil
}

func (s *Store) GetChat(ctx context.Context, chatID string) (*chatModels.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.chats[chatID]
	if !ok {
		return nil, fmt.Errorf("chat %s: %w", chatID, domain.ErrNotFound)
	}
	out := *c
	return &out, nil
}

func (s *Store) ListChats(ctx context.Context, ownerID string) ([]chatModels.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chats := []chatModels.Chat{}
	for _, c := range s.chats {
		if c.OwnerID == ownerID {
			chats = append(chats, *c)
		}
	}

	sort.SliceStable(chats, func(i, j int) bool {
		if chats[i].UpdatedAt.Equal(chats[j].UpdatedAt) {
			return chats[i].CreatedAt.After(chats[j].CreatedAt)
		}
		return chats[i].UpdatedAt.After(chats[j].UpdatedAt)
	})
	return chats, nil
}

func (s *Store) UpdateChatModel(ctx context.Context, chatID, model string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chats[chatID]
	if !ok {
		return fmt.Errorf("chat %s: %w", chatID, domain.ErrNotFound)
	}
	c.Model = model
	c.UpdatedAt = s.now()
	return nil
}

func (s *Store) AddTokens(ctx context.Context, chatID string, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chats[chatID]
	if !ok {
		return fmt.Errorf("chat %s: %w", chatID, domain.ErrNotFound)
	}
	c.TotalTokens += n
	c.UpdatedAt = s.now()
	return nil
}

func (s *Store) DeleteChat(ctx context.Context, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chats[chatID]; !ok {
		return fmt.Errorf("chat %s: %w", chatID, domain.ErrNotFound)
	}
	delete(s.chats, chatID)
	delete(s.messages, chatID)
	return nil
}

func (s *Store) CreateMessage(ctx context.Context, msg *chatModels.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chats[msg.ChatID]; !ok {
		return fmt.Errorf("chat %s: %w", msg.ChatID, domain.ErrNotFound)
	}

	msg.ID = uuid.NewString()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	s.messages[msg.ChatID] = append(s.messages[msg.ChatID], *msg)
	return nil
}

func (s *Store) ListMessages(ctx context.Context, chatID string) ([]chatModels.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.chats[chatID]; !ok {
		return nil, fmt.Errorf("chat %s: %w", chatID, domain.ErrNotFound)
	}
	out := make([]chatModels.Message, len(s.messages[chatID]))
	copy(out, s.messages[chatID])
	return out, nil
}

func (s *Store) CountMessages(ctx context.Context, chatID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages[chatID]), nil
}
