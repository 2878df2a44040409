package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/andrewdmason/undercurrent-sub000/internal/config"
	"github.com/andrewdmason/undercurrent-sub000/internal/domain"
	models "github.com/andrewdmason/undercurrent-sub000/internal/domain/models/chat"
	"github.com/andrewdmason/undercurrent-sub000/internal/domain/repositories"
	chatRepo "github.com/andrewdmason/undercurrent-sub000/internal/domain/repositories/chat"
	chatSvc "github.com/andrewdmason/undercurrent-sub000/internal/domain/services/chat"
)

// Service implements the ChatService interface.
type Service struct {
	chatRepo     chatRepo.ChatRepository
	messageRepo  chatRepo.MessageRepository
	txManager    repositories.TransactionManager
	defaultModel string
	logger       *slog.Logger
}

// NewService creates a new chat service.
func NewService(
	chatRepo chatRepo.ChatRepository,
	messageRepo chatRepo.MessageRepository,
	txManager repositories.TransactionManager,
	defaultModel string,
	logger *slog.Logger,
) *Service {
	if defaultModel == "" {
		defaultModel = config.DefaultModel
	}
	return &Service{
		chatRepo:     chatRepo,
		messageRepo:  messageRepo,
		txManager:    txManager,
		defaultModel: defaultModel,
		logger:       logger,
	}
}

var _ chatSvc.ChatService = (*Service)(nil)

// DefaultModel returns the model given to chats created without one.
func (s *Service) DefaultModel() string {
	return s.defaultModel
}

// CreateChat creates an empty chat.
func (s *Service) CreateChat(ctx context.Context, req *chatSvc.CreateChatRequest) (*models.Chat, error) {
	req.OwnerID = strings.TrimSpace(req.OwnerID)
	req.Model = strings.TrimSpace(req.Model)
	if err := validation.ValidateStruct(req,
		validation.Field(&req.OwnerID, validation.Required),
		validation.Field(&req.Model, validation.Length(0, config.MaxModelLength)),
	); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	model := req.Model
	if model == "" {
		model = s.defaultModel
	}

	now := time.Now()
	c := &models.Chat{
		OwnerID:   req.OwnerID,
		Model:     model,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.chatRepo.CreateChat(ctx, c); err != nil {
		return nil, err
	}

	s.logger.Info("chat created",
		"chat_id", c.ID,
		"owner_id", c.OwnerID,
		"model", c.Model,
	)
	return c, nil
}

// GetChat retrieves a chat of the owner.
func (s *Service) GetChat(ctx context.Context, chatID, ownerID string) (*models.Chat, error) {
	c, err := s.chatRepo.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if c.OwnerID != ownerID {
		return nil, fmt.Errorf("chat %s: %w", chatID, domain.ErrNotFound)
	}
	return c, nil
}

// ListChats retrieves all chats of an owner.
func (s *Service) ListChats(ctx context.Context, ownerID string) ([]models.Chat, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, fmt.Errorf("%w: owner_id is required", domain.ErrValidation)
	}
	return s.chatRepo.ListChats(ctx, ownerID)
}

// GetMessages returns the messages of a chat of the owner.
func (s *Service) GetMessages(ctx context.Context, chatID, ownerID string) ([]models.Message, error) {
	if _, err := s.GetChat(ctx, chatID, ownerID); err != nil {
		return nil, err
	}
	return s.messageRepo.ListMessages(ctx, chatID)
}

// UpdateChatModel switches the model of a chat.
func (s *Service) UpdateChatModel(ctx context.Context, chatID, ownerID string, req *chatSvc.UpdateChatRequest) (*models.Chat, error) {
	req.Model = strings.TrimSpace(req.Model)
	if err := validation.ValidateStruct(req,
		validation.Field(&req.Model, validation.Required, validation.Length(1, config.MaxModelLength)),
	); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	c, err := s.GetChat(ctx, chatID, ownerID)
	if err != nil {
		return nil, err
	}
	if err := s.chatRepo.UpdateChatModel(ctx, chatID, req.Model); err != nil {
		return nil, err
	}
	c.Model = req.Model

	s.logger.Info("chat model updated",
		"chat_id", chatID,
		"model", req.Model,
	)
	return c, nil
}

// DeleteChat deletes a chat of the owner.
func (s *Service) DeleteChat(ctx context.Context, chatID, ownerID string) error {
	if _, err := s.GetChat(ctx, chatID, ownerID); err != nil {
		return err
	}
	if err := s.chatRepo.DeleteChat(ctx, chatID); err != nil {
		return err
	}

	s.logger.Info("chat deleted",
		"chat_id", chatID,
		"owner_id", ownerID,
	)
	return nil
}

// AddUserMessage persists the user message of a text turn and counts its tokens.
func (s *Service) AddUserMessage(ctx context.Context, chatID, ownerID, content string) (*models.Message, error) {
	if err := validation.Validate(content,
		validation.Required,
		validation.RuneLength(1, config.MaxMessageLength),
	); err != nil {
		return nil, fmt.Errorf("%w: message %v", domain.ErrValidation, err)
	}
	if _, err := s.GetChat(ctx, chatID, ownerID); err != nil {
		return nil, err
	}

	tokens := models.EstimateTokens(content)
	msg := &models.Message{
		ChatID:     chatID,
		Role:       models.RoleUser,
		Content:    content,
		TokenCount: &tokens,
		CreatedAt:  time.Now(),
	}

	err := s.txManager.ExecTx(ctx, func(ctx context.Context) error {
		if err := s.messageRepo.CreateMessage(ctx, msg); err != nil {
			return err
		}
		return s.chatRepo.AddTokens(ctx, chatID, tokens)
	})
	if err != nil {
		return nil, fmt.Errorf("add user message: %w", err)
	}

	s.logger.Debug("user message stored", "chat_id", chatID, "message_id", msg.ID)
	return msg, nil
}

// AppendExchange persists the assistant side of a turn in one transaction.
// Messages without a token count get an estimate.
func (s *Service) AppendExchange(ctx context.Context, chatID string, messages []models.Message) error {
	if len(messages) == 0 {
		return nil
	}

	total := 0
	err := s.txManager.ExecTx(ctx, func(ctx context.Context) error {
		base := time.Now()
		for i := range messages {
			msg := &messages[i]
			msg.ChatID = chatID
			if msg.TokenCount == nil {
				tokens := models.EstimateTokens(msg.Content)
				msg.TokenCount = &tokens
			}
			if msg.CreatedAt.IsZero() {
				// Distinct timestamps keep the insertion order on reload
				msg.CreatedAt = base.Add(time.Duration(i) * time.Microsecond)
			}
			if err := s.messageRepo.CreateMessage(ctx, msg); err != nil {
				return err
			}
			total += *msg.TokenCount
		}
		return s.chatRepo.AddTokens(ctx, chatID, total)
	})
	if err != nil {
		return fmt.Errorf("append exchange: %w", err)
	}

	s.logger.Info("exchange stored",
		"chat_id", chatID,
		"messages", len(messages),
		"tokens", total,
	)
	return nil
}
