package services

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"

	"cinescope/internal/llm"
	"cinescope/internal/models"
	"cinescope/internal/tools"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeLLM replays scripted responses and records what it was asked.
type fakeLLM struct {
	enabled   bool
	responses []*llm.Response
	calls     int
	lastTools []llm.Tool
	messages  [][]llm.Message
}

func (f *fakeLLM) Enabled() bool { return f.enabled }

func (f *fakeLLM) CompleteWithTools(_ context.Context, _ string, messages []llm.Message, tools []llm.Tool) (*llm.Response, error) {
	f.lastTools = tools
	f.messages = append(f.messages, messages)
	resp := f.responses[f.calls]
	if f.calls < len(f.responses)-1 {
		f.calls++
	}
	return resp, nil
}

func textResponse(text string) *llm.Response {
	return &llm.Response{
		Role:       "assistant",
		StopReason: "end_turn",
		Content:    []llm.ContentBlock{{Type: "text", Text: text}},
	}
}

func toolUseResponse(id, name, input string) *llm.Response {
	return &llm.Response{
		Role:       "assistant",
		StopReason: "tool_use",
		Content: []llm.ContentBlock{
			{Type: "tool_use", ID: id, Name: name, Input: json.RawMessage(input)},
		},
	}
}

func newChat(t *testing.T, fake *fakeLLM) (*ChatService, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	registry := tools.NewRegistry(db, nopLogger())
	svc := NewChatService(db, testConfig(), nopLogger(), fake, registry)
	return svc, db
}

func TestSendMessageDisabledWithoutKey(t *testing.T) {
	svc, _ := newChat(t, &fakeLLM{enabled: false})
	_, err := svc.SendMessage(context.Background(), "", "hello")
	assert.ErrorIs(t, err, llm.ErrDisabled)
}

func TestSendMessageRejectsEmpty(t *testing.T) {
	svc, _ := newChat(t, &fakeLLM{enabled: true, responses: []*llm.Response{textResponse("hi")}})
	_, err := svc.SendMessage(context.Background(), "", "   ")
	assert.Error(t, err)
}

func TestSendMessagePlainReply(t *testing.T) {
	fake := &fakeLLM{enabled: true, responses: []*llm.Response{textResponse("You rated 0 movies so far.")}}
	svc, db := newChat(t, fake)

	reply, err := svc.SendMessage(context.Background(), "", "How many movies have I rated?")
	require.NoError(t, err)
	assert.NotEmpty(t, reply.ConversationID)
	assert.Equal(t, "You rated 0 movies so far.", reply.Response)
	assert.Empty(t, reply.ToolsUsed)

	// exactly the user message and the final assistant text persist
	var stored []models.ChatMessage
	require.NoError(t, db.Order("timestamp ASC, id ASC").Find(&stored).Error)
	require.Len(t, stored, 2)
	assert.Equal(t, "user", stored[0].Role)
	assert.Equal(t, "How many movies have I rated?", stored[0].Content)
	assert.Equal(t, "assistant", stored[1].Role)
}

func TestConversationTitleTruncatesOnRuneBoundary(t *testing.T) {
	fake := &fakeLLM{enabled: true, responses: []*llm.Response{textResponse("ok")}}
	svc, db := newChat(t, fake)

	message := strings.Repeat("日", 70)
	reply, err := svc.SendMessage(context.Background(), "", message)
	require.NoError(t, err)

	var conversation models.ChatConversation
	require.NoError(t, db.Where("conversation_id = ?", reply.ConversationID).First(&conversation).Error)
	require.NotNil(t, conversation.Title)
	assert.True(t, utf8.ValidString(*conversation.Title))
	assert.Equal(t, 60, utf8.RuneCountInString(*conversation.Title))
}

func TestSendMessageRunsToolCalls(t *testing.T) {
	fake := &fakeLLM{
		enabled: true,
		responses: []*llm.Response{
			toolUseResponse("toolu_1", "get_movie_stats", `{}`),
			textResponse("Your collection holds one movie."),
		},
	}
	svc, db := newChat(t, fake)
	seedRated(t, db, "tt0000001", "Alpha", 1994, 9, []string{"Drama"}, nil)

	reply, err := svc.SendMessage(context.Background(), "", "Tell me about my collection")
	require.NoError(t, err)
	assert.Equal(t, "Your collection holds one movie.", reply.Response)
	assert.Equal(t, []string{"get_movie_stats"}, reply.ToolsUsed)

	// second round carried the tool result back to the model
	require.Len(t, fake.messages, 2)
	lastRound := fake.messages[1]
	last := lastRound[len(lastRound)-1]
	assert.Equal(t, "user", last.Role)
	require.Len(t, last.Content, 1)
	assert.Equal(t, "tool_result", last.Content[0].Type)
	assert.Equal(t, "toolu_1", last.Content[0].ToolUseID)
	assert.Contains(t, last.Content[0].Content, "total_movies")

	// tool round trips are never persisted
	var stored []models.ChatMessage
	require.NoError(t, db.Find(&stored).Error)
	assert.Len(t, stored, 2)
}

func TestSendMessageBoundsToolRounds(t *testing.T) {
	// a model that always wants another tool call
	fake := &fakeLLM{
		enabled: true,
		responses: []*llm.Response{
			toolUseResponse("toolu_x", "get_movie_stats", `{}`),
		},
	}
	svc, _ := newChat(t, fake)

	// the final round runs without tools and terminates even though the
	// fake keeps asking for another tool call
	reply, err := svc.SendMessage(context.Background(), "", "loop forever")
	require.NoError(t, err)
	assert.Equal(t, maxToolRounds+1, len(fake.messages))
	assert.Nil(t, fake.lastTools, "tools must be withheld after the round budget")
	assert.NotEmpty(t, reply.Response, "a fallback notice stands in when no text accumulated")
}

func TestConversationHistoryReplays(t *testing.T) {
	fake := &fakeLLM{enabled: true, responses: []*llm.Response{textResponse("first"), textResponse("second")}}
	svc, _ := newChat(t, fake)

	reply, err := svc.SendMessage(context.Background(), "", "question one")
	require.NoError(t, err)

	fake.calls = 1
	_, err = svc.SendMessage(context.Background(), reply.ConversationID, "question two")
	require.NoError(t, err)

	// second turn replayed the first exchange before the new question
	lastRound := fake.messages[len(fake.messages)-1]
	require.Len(t, lastRound, 3)
	assert.Equal(t, "question one", lastRound[0].Content[0].Text)
	assert.Equal(t, "first", lastRound[1].Content[0].Text)
	assert.Equal(t, "question two", lastRound[2].Content[0].Text)

	history, err := svc.History(reply.ConversationID)
	require.NoError(t, err)
	assert.Len(t, history.Messages, 4)
	require.NotNil(t, history.Title)
	assert.Equal(t, "question one", *history.Title)
}

func TestSendMessageUnknownConversation(t *testing.T) {
	svc, _ := newChat(t, &fakeLLM{enabled: true, responses: []*llm.Response{textResponse("x")}})
	_, err := svc.SendMessage(context.Background(), "missing-id", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
