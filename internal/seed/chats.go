package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/andrewdmason/undercurrent-sub000/internal/domain/models/chat"
	chatSvc "github.com/andrewdmason/undercurrent-sub000/internal/domain/services/chat"
)

// ChatService is the part of the chat service the seeder needs.
type ChatService interface {
	CreateChat(ctx context.Context, req *chatSvc.CreateChatRequest) (*chat.Chat, error)
	AddUserMessage(ctx context.Context, chatID, ownerID, content string) (*chat.Message, error)
	AppendExchange(ctx context.Context, chatID string, messages []chat.Message) error
}

// ChatSeeder creates demo chats through the service layer.
type ChatSeeder struct {
	service ChatService
	logger  *slog.Logger
}

// NewChatSeeder creates a new chat seeder.
func NewChatSeeder(service ChatService, logger *slog.Logger) *ChatSeeder {
	return &ChatSeeder{
		service: service,
		logger:  logger,
	}
}

// turn is one scripted exchange: the user line (empty for the welcome)
// followed by the assistant side.
type turn struct {
	user      string
	assistant []chat.Message
}

// SeedDemoChat creates a chat that shows a welcome, a plain exchange and a
// script update with its tool result.
func (s *ChatSeeder) SeedDemoChat(ctx context.Context, ownerID, model string) (*chat.Chat, error) {
	c, err := s.service.CreateChat(ctx, &chatSvc.CreateChatRequest{OwnerID: ownerID, Model: model})
	if err != nil {
		return nil, fmt.Errorf("create demo chat: %w", err)
	}

	turns, err := demoTurns()
	if err != nil {
		return nil, err
	}

	for i, t := range turns {
		if t.user != "" {
			if _, err := s.service.AddUserMessage(ctx, c.ID, ownerID, t.user); err != nil {
				return nil, fmt.Errorf("seed turn %d: %w", i+1, err)
			}
		}
		if err := s.service.AppendExchange(ctx, c.ID, t.assistant); err != nil {
			return nil, fmt.Errorf("seed turn %d: %w", i+1, err)
		}
	}

	s.logger.Info("demo chat seeded",
		"chat_id", c.ID,
		"owner_id", ownerID,
		"turns", len(turns),
	)
	return c, nil
}

func demoTurns() ([]turn, error) {
	script := "INT. KITCHEN - NIGHT\n\nA kettle starts to whistle. MAYA (30s) ignores it, eyes on her laptop."
	args, err := json.Marshal(map[string]string{"script": script})
	if err != nil {
		return nil, err
	}

	return []turn{
		{
			assistant: []chat.Message{{
				Role:    chat.RoleAssistant,
				Content: "Welcome to Undercurrent! Tell me about your video idea and I will help you shape the script.",
			}},
		},
		{
			user: "I want a short about someone who forgets the kettle because of a late-night idea.",
			assistant: []chat.Message{{
				Role:    chat.RoleAssistant,
				Content: "Love it. A single location keeps it tight. Should the idea be the hook or the twist?",
			}},
		},
		{
			user: "The hook. Please update the script with an opening scene.",
			assistant: []chat.Message{
				{
					Role:      chat.RoleAssistant,
					Content:   "Here is an opening that starts on the idea.",
					ToolCalls: []chat.ToolCallDescriptor{{Name: "update_script", Arguments: args}},
				},
				{Role: chat.RoleTool, Content: `{"success":true,"message":"Script updated"}`},
				{Role: chat.RoleAssistant, Content: "The kettle becomes the ticking clock. Want me to draft the ending next?"},
			},
		},
	}, nil
}
