// Package assistant runs the conversational tool-calling loop: one user
// message in, a bounded sequence of model and tool rounds, a final reply plus
// any proposals drafted along the way out.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"example.com/dompy/backend/internal/assistant/llm"
	"example.com/dompy/backend/internal/assistant/tools"
	"example.com/dompy/backend/internal/models"
	"example.com/dompy/backend/internal/repository"
)

// ErrToolLoopExceeded means the model kept requesting tools past the round
// cap and the turn was aborted. Proposals created in earlier rounds survive.
var ErrToolLoopExceeded = errors.New("tool loop exceeded round limit")

const (
	defaultMaxToolRounds = 6
	defaultHistoryLimit  = 50
	titleLimit           = 50
)

// ConversationStore persists conversations and their ordered messages.
type ConversationStore interface {
	Create(ctx context.Context, userID uuid.UUID, title *string) (models.Conversation, error)
	Get(ctx context.Context, userID, conversationID uuid.UUID) (models.Conversation, error)
	List(ctx context.Context, userID uuid.UUID, skip, limit int) ([]repository.ConversationSummary, int, error)
	Touch(ctx context.Context, conversationID uuid.UUID, title *string) error
	Delete(ctx context.Context, userID, conversationID uuid.UUID) error
	AppendMessage(ctx context.Context, msg models.ConversationMessage) (models.ConversationMessage, error)
	ListMessages(ctx context.Context, conversationID uuid.UUID) ([]models.ConversationMessage, error)
}

// ProposalStore persists proposals with compare-and-swap status transitions.
type ProposalStore interface {
	Create(ctx context.Context, conversationID, messageID uuid.UUID, kind models.ProposalKind, payload json.RawMessage) (models.Proposal, error)
	Get(ctx context.Context, userID, proposalID uuid.UUID) (models.Proposal, error)
	ListByConversation(ctx context.Context, userID, conversationID uuid.UUID) ([]models.Proposal, error)
	ListByMessage(ctx context.Context, messageID uuid.UUID) ([]models.Proposal, error)
	Revise(ctx context.Context, userID, proposalID uuid.UUID, payload json.RawMessage) (models.Proposal, error)
	Discard(ctx context.Context, userID, proposalID uuid.UUID) (models.Proposal, error)
	Claim(ctx context.Context, userID, proposalID uuid.UUID, revision json.RawMessage) (models.Proposal, error)
	Finalize(ctx context.Context, userID, proposalID uuid.UUID, resultID string) (models.Proposal, error)
	Release(ctx context.Context, userID, proposalID uuid.UUID) error
}

type Service struct {
	client        llm.Client
	registry      *tools.Registry
	reader        tools.Reader
	conversations ConversationStore
	proposals     ProposalStore
	maxToolRounds int
	historyLimit  int
	logger        *slog.Logger
}

func NewService(
	client llm.Client,
	registry *tools.Registry,
	reader tools.Reader,
	conversations ConversationStore,
	proposals ProposalStore,
	maxToolRounds int,
	historyLimit int,
	logger *slog.Logger,
) *Service {
	if maxToolRounds <= 0 {
		maxToolRounds = defaultMaxToolRounds
	}
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}

	return &Service{
		client:        client,
		registry:      registry,
		reader:        reader,
		conversations: conversations,
		proposals:     proposals,
		maxToolRounds: maxToolRounds,
		historyLimit:  historyLimit,
		logger:        logger,
	}
}

// TurnResult is what one successful turn returns to the caller.
type TurnResult struct {
	ConversationID     uuid.UUID         `json:"conversation_id"`
	AssistantMessageID uuid.UUID         `json:"message_id"`
	Content            string            `json:"content"`
	ToolCalls          []llm.ToolCall    `json:"tool_calls"`
	Proposals          []models.Proposal `json:"proposals"`
}

// ProcessMessage runs one full turn: persist the user message, loop between
// the model and the tool executor until the model answers without tool calls
// or the round cap is hit, persisting every round's messages and proposals as
// they happen so drafts survive a failed turn.
func (s *Service) ProcessMessage(ctx context.Context, userID uuid.UUID, conversationID *uuid.UUID, message string, imageURL *string) (TurnResult, error) {
	conversation, err := s.resolveConversation(ctx, userID, conversationID)
	if err != nil {
		return TurnResult{}, err
	}

	userMsg := models.ConversationMessage{
		ConversationID: conversation.ID,
		Role:           models.MessageRoleUser,
		Content:        message,
		ImageURL:       imageURL,
	}
	if _, err := s.conversations.AppendMessage(ctx, userMsg); err != nil {
		return TurnResult{}, fmt.Errorf("append user message: %w", err)
	}

	history, err := s.conversations.ListMessages(ctx, conversation.ID)
	if err != nil {
		return TurnResult{}, err
	}

	chat, err := s.buildChat(ctx, userID, history)
	if err != nil {
		return TurnResult{}, err
	}

	definitions := s.registry.Definitions()

	var executedCalls []llm.ToolCall
	var created []models.Proposal

	for round := 0; round < s.maxToolRounds; round++ {
		resp, err := s.client.Chat(ctx, chat, definitions)
		if err != nil {
			return TurnResult{}, fmt.Errorf("model call failed: %w", err)
		}

		if len(resp.ToolCalls) == 0 {
			return s.finishTurn(ctx, conversation, message, resp.Content, executedCalls, created)
		}

		encodedCalls, err := json.Marshal(resp.ToolCalls)
		if err != nil {
			return TurnResult{}, err
		}
		roundMsg, err := s.conversations.AppendMessage(ctx, models.ConversationMessage{
			ConversationID: conversation.ID,
			Role:           models.MessageRoleAssistant,
			Content:        resp.Content,
			ToolCalls:      encodedCalls,
		})
		if err != nil {
			return TurnResult{}, fmt.Errorf("append assistant message: %w", err)
		}

		chat = append(chat, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		// Tool calls run in the exact order the model emitted them and their
		// results are appended in that same order, so the next round sees a
		// deterministic transcript.
		for _, call := range resp.ToolCalls {
			executedCalls = append(executedCalls, call)

			content, proposals := s.runToolCall(ctx, userID, conversation.ID, roundMsg.ID, call)
			created = append(created, proposals...)

			name := call.Name
			if _, err := s.conversations.AppendMessage(ctx, models.ConversationMessage{
				ConversationID: conversation.ID,
				Role:           models.MessageRoleTool,
				Content:        content,
				ToolCallID:     &call.ID,
				ToolName:       &name,
			}); err != nil {
				return TurnResult{}, fmt.Errorf("append tool message: %w", err)
			}

			chat = append(chat, llm.Message{
				Role:       llm.RoleTool,
				Content:    content,
				ToolCallID: call.ID,
				Name:       call.Name,
			})
		}
	}

	return TurnResult{}, ErrToolLoopExceeded
}

// runToolCall executes one model-requested tool call and returns the tool
// message content plus any proposals it drafted. Tool failures become error
// payloads fed back to the model; only store failures would abort the turn,
// and those are reported through the content as well since the model can
// still make progress without them.
func (s *Service) runToolCall(ctx context.Context, userID, conversationID, messageID uuid.UUID, call llm.ToolCall) (string, []models.Proposal) {
	tool, ok := s.registry.Get(call.Name)
	if !ok || tool.Internal {
		return toolErrorContent(fmt.Sprintf("unknown tool: %s", call.Name)), nil
	}

	result, err := s.registry.Execute(ctx, userID, call.Name, call.Arguments)
	if err != nil {
		s.logger.Warn("tool call failed", "tool", call.Name, "error", err)
		return toolErrorContent(err.Error()), nil
	}

	var created []models.Proposal
	for _, draft := range result.Drafts {
		proposal, err := s.proposals.Create(ctx, conversationID, messageID, draft.Kind, draft.Payload)
		if err != nil {
			s.logger.Error("store proposal", "kind", draft.Kind, "error", err)
			return toolErrorContent("failed to store proposal"), created
		}
		created = append(created, proposal)
	}

	return toolResultContent(result.Data, created), created
}

func (s *Service) finishTurn(ctx context.Context, conversation models.Conversation, userMessage, content string, calls []llm.ToolCall, created []models.Proposal) (TurnResult, error) {
	finalMsg, err := s.conversations.AppendMessage(ctx, models.ConversationMessage{
		ConversationID: conversation.ID,
		Role:           models.MessageRoleAssistant,
		Content:        content,
	})
	if err != nil {
		return TurnResult{}, fmt.Errorf("append assistant message: %w", err)
	}

	title := generateTitle(userMessage)
	if err := s.conversations.Touch(ctx, conversation.ID, &title); err != nil {
		s.logger.Warn("touch conversation", "error", err)
	}

	if calls == nil {
		calls = []llm.ToolCall{}
	}
	if created == nil {
		created = []models.Proposal{}
	}

	return TurnResult{
		ConversationID:     conversation.ID,
		AssistantMessageID: finalMsg.ID,
		Content:            content,
		ToolCalls:          calls,
		Proposals:          created,
	}, nil
}

func (s *Service) resolveConversation(ctx context.Context, userID uuid.UUID, conversationID *uuid.UUID) (models.Conversation, error) {
	if conversationID != nil {
		conversation, err := s.conversations.Get(ctx, userID, *conversationID)
		if err == nil {
			return conversation, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return models.Conversation{}, err
		}
	}
	return s.conversations.Create(ctx, userID, nil)
}

// buildChat assembles the model transcript: system context first, then the
// trailing historyLimit messages in stored order.
func (s *Service) buildChat(ctx context.Context, userID uuid.UUID, history []models.ConversationMessage) ([]llm.Message, error) {
	prompt, err := s.systemPrompt(ctx, userID)
	if err != nil {
		return nil, err
	}

	if len(history) > s.historyLimit {
		history = history[len(history)-s.historyLimit:]
	}

	chat := make([]llm.Message, 0, len(history)+1)
	chat = append(chat, llm.Message{Role: llm.RoleSystem, Content: prompt})

	for _, msg := range history {
		entry := llm.Message{Role: llm.Role(msg.Role), Content: msg.Content}

		if msg.ImageURL != nil {
			entry.ImageURL = *msg.ImageURL
		}
		if len(msg.ToolCalls) > 0 {
			if err := json.Unmarshal(msg.ToolCalls, &entry.ToolCalls); err != nil {
				return nil, fmt.Errorf("decode stored tool calls: %w", err)
			}
		}
		if msg.ToolCallID != nil {
			entry.ToolCallID = *msg.ToolCallID
		}
		if msg.ToolName != nil {
			entry.Name = *msg.ToolName
		}

		chat = append(chat, entry)
	}

	return chat, nil
}

func generateTitle(message string) string {
	title := strings.TrimSpace(message)
	if runes := []rune(title); len(runes) > titleLimit {
		title = string(runes[:titleLimit]) + "..."
	}
	return title
}

func toolErrorContent(msg string) string {
	encoded, _ := json.Marshal(map[string]any{"error": msg})
	return string(encoded)
}

// toolResultContent renders what the model sees after a tool ran. Proposals
// are summarized by id, kind and payload rather than raw ledger rows.
func toolResultContent(data any, proposals []models.Proposal) string {
	body := map[string]any{"result": data}

	if len(proposals) > 0 {
		summaries := make([]map[string]any, 0, len(proposals))
		for _, p := range proposals {
			summaries = append(summaries, map[string]any{
				"id":      p.ID,
				"kind":    p.Kind,
				"status":  p.Status,
				"payload": p.OriginalPayload,
			})
		}
		body["proposals"] = summaries
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return toolErrorContent("unencodable tool result")
	}
	return string(encoded)
}
