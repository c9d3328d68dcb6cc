package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cinescope/internal/config"
	"cinescope/internal/database"
	"cinescope/internal/llm"
	"cinescope/internal/models"
	"cinescope/internal/tools"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// maxToolRounds bounds how many tool-call round trips one message may
// trigger before the model is forced to answer with what it has.
const maxToolRounds = 5

// LLMClient is the surface the chat service needs from the LLM. Satisfied
// by *llm.Client and by fakes in tests.
type LLMClient interface {
	Enabled() bool
	CompleteWithTools(ctx context.Context, system string, messages []llm.Message, tools []llm.Tool) (*llm.Response, error)
}

// ChatService runs LLM conversations grounded in the rated collection
// through tool calls.
type ChatService struct {
	db       *gorm.DB
	config   *config.Config
	logger   *zap.Logger
	llm      LLMClient
	registry *tools.Registry
}

// NewChatService creates a chat service.
func NewChatService(db *gorm.DB, cfg *config.Config, logger *zap.Logger, client LLMClient, registry *tools.Registry) *ChatService {
	return &ChatService{db: db, config: cfg, logger: logger, llm: client, registry: registry}
}

// ChatReply is the outcome of one user message.
type ChatReply struct {
	ConversationID string   `json:"conversation_id"`
	Response       string   `json:"response"`
	ToolsUsed      []string `json:"tools_used,omitempty"`
}

// SendMessage appends a user message to a conversation and returns the
// assistant's reply. An empty conversationID starts a new conversation.
// Only the user message and the final assistant text are persisted; tool
// round trips stay in memory.
func (s *ChatService) SendMessage(ctx context.Context, conversationID, content string) (*ChatReply, error) {
	if !s.llm.Enabled() {
		return nil, llm.ErrDisabled
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("message must not be empty")
	}

	conversation, err := s.ensureConversation(conversationID, content)
	if err != nil {
		return nil, err
	}

	history, err := s.loadHistory(conversation.ConversationID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	userMsg := models.ChatMessage{
		ConversationID: conversation.ConversationID,
		Role:           "user",
		Content:        content,
		Timestamp:      now,
	}
	if err := s.db.Create(&userMsg).Error; err != nil {
		return nil, err
	}

	messages := append(history, llm.TextMessage("user", content))
	system, err := s.systemPrompt()
	if err != nil {
		return nil, err
	}

	var toolsUsed []string
	var finalText string
	for round := 0; ; round++ {
		llmTools := s.registry.LLMTools()
		final := round >= maxToolRounds
		if final {
			// force a text answer once the round budget is spent
			llmTools = nil
		}

		resp, err := s.llm.CompleteWithTools(ctx, system, messages, llmTools)
		if err != nil {
			return nil, err
		}

		uses := resp.ToolUses()
		if final || resp.StopReason != "tool_use" || len(uses) == 0 {
			finalText = resp.Text()
			break
		}

		messages = append(messages, llm.Message{Role: "assistant", Content: resp.Content})

		results := make([]llm.ContentBlock, 0, len(uses))
		for _, use := range uses {
			toolsUsed = append(toolsUsed, use.Name)
			s.logger.Debug("Executing chat tool call",
				zap.String("tool", use.Name),
				zap.String("conversation_id", conversation.ConversationID))
			results = append(results, llm.ContentBlock{
				Type:      "tool_result",
				ToolUseID: use.ID,
				Content:   string(s.registry.Call(use.Name, use.Input)),
			})
		}
		messages = append(messages, llm.Message{Role: "user", Content: results})
	}

	if finalText == "" {
		finalText = "I couldn't put together an answer for that. Try rephrasing the question."
	}

	assistantMsg := models.ChatMessage{
		ConversationID: conversation.ConversationID,
		Role:           "assistant",
		Content:        finalText,
		Timestamp:      time.Now().UTC(),
	}
	if err := s.db.Create(&assistantMsg).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(conversation).Update("updated_at", time.Now().UTC()).Error; err != nil {
		return nil, err
	}

	return &ChatReply{
		ConversationID: conversation.ConversationID,
		Response:       finalText,
		ToolsUsed:      toolsUsed,
	}, nil
}

// History returns a conversation with its ordered transcript.
func (s *ChatService) History(conversationID string) (*models.ChatConversation, error) {
	var conversation models.ChatConversation
	err := s.db.Preload("Messages", func(db *gorm.DB) *gorm.DB {
		return db.Order("timestamp ASC, id ASC")
	}).Where("conversation_id = ?", conversationID).First(&conversation).Error
	if err == gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("conversation not found: %s", conversationID)
	}
	if err != nil {
		return nil, err
	}
	return &conversation, nil
}

// ListConversations returns all conversations, most recently active first.
func (s *ChatService) ListConversations() ([]models.ChatConversation, error) {
	var conversations []models.ChatConversation
	err := s.db.Order("updated_at DESC").Find(&conversations).Error
	return conversations, err
}

// ClearHistory deletes every conversation and its messages.
func (s *ChatService) ClearHistory() error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, table := range []interface{}{&models.ChatMessage{}, &models.ChatConversation{}} {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(table).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *ChatService) ensureConversation(conversationID, firstMessage string) (*models.ChatConversation, error) {
	if conversationID != "" {
		var existing models.ChatConversation
		err := s.db.Where("conversation_id = ?", conversationID).First(&existing).Error
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("conversation not found: %s", conversationID)
		}
		if err != nil {
			return nil, err
		}
		return &existing, nil
	}

	title := firstMessage
	if runes := []rune(title); len(runes) > 60 {
		title = string(runes[:60])
	}
	conversation := models.ChatConversation{
		ConversationID: uuid.New().String(),
		Title:          &title,
	}
	if err := s.db.Create(&conversation).Error; err != nil {
		return nil, err
	}
	return &conversation, nil
}

func (s *ChatService) loadHistory(conversationID string) ([]llm.Message, error) {
	var stored []models.ChatMessage
	err := s.db.Where("conversation_id = ?", conversationID).
		Order("timestamp ASC, id ASC").Find(&stored).Error
	if err != nil {
		return nil, err
	}

	messages := make([]llm.Message, 0, len(stored))
	for _, msg := range stored {
		messages = append(messages, llm.TextMessage(msg.Role, msg.Content))
	}
	return messages, nil
}

func (s *ChatService) systemPrompt() (string, error) {
	total, err := database.CountRatings(s.db)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"You are a movie expert assistant with access to the user's personal movie ratings database "+
			"containing %d rated movies. Use the available tools to look up real data before answering; "+
			"never invent ratings or titles. Keep answers conversational and grounded in what the tools return.",
		total), nil
}
