package assistant

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"example.com/dompy/backend/internal/models"
	"example.com/dompy/backend/internal/repository"
)

// ConversationDetail is one conversation with its full transcript and
// proposals, for the detail view.
type ConversationDetail struct {
	Conversation models.Conversation          `json:"conversation"`
	Messages     []models.ConversationMessage `json:"messages"`
	Proposals    []models.Proposal            `json:"proposals"`
}

// ListConversations returns the user's conversations, most recent first.
func (s *Service) ListConversations(ctx context.Context, userID uuid.UUID, skip, limit int) ([]repository.ConversationSummary, int, error) {
	return s.conversations.List(ctx, userID, skip, limit)
}

// GetConversation returns a conversation with its messages and proposals.
func (s *Service) GetConversation(ctx context.Context, userID, conversationID uuid.UUID) (ConversationDetail, error) {
	conversation, err := s.conversations.Get(ctx, userID, conversationID)
	if err != nil {
		return ConversationDetail{}, err
	}

	messages, err := s.conversations.ListMessages(ctx, conversationID)
	if err != nil {
		return ConversationDetail{}, err
	}

	proposals, err := s.proposals.ListByConversation(ctx, userID, conversationID)
	if err != nil {
		return ConversationDetail{}, err
	}

	return ConversationDetail{Conversation: conversation, Messages: messages, Proposals: proposals}, nil
}

// DeleteConversation removes a conversation with its messages and proposals.
func (s *Service) DeleteConversation(ctx context.Context, userID, conversationID uuid.UUID) error {
	return s.conversations.Delete(ctx, userID, conversationID)
}

// GetProposal returns one proposal, owner-scoped.
func (s *Service) GetProposal(ctx context.Context, userID, proposalID uuid.UUID) (models.Proposal, error) {
	return s.proposals.Get(ctx, userID, proposalID)
}

// ReviseProposal stores a user edit of a pending or revised proposal. The
// payload is validated against the proposal kind's schema before anything is
// written.
func (s *Service) ReviseProposal(ctx context.Context, userID, proposalID uuid.UUID, payload json.RawMessage) (models.Proposal, error) {
	proposal, err := s.proposals.Get(ctx, userID, proposalID)
	if err != nil {
		return models.Proposal{}, err
	}

	if err := s.registry.ValidatePayload(proposal.Kind, payload); err != nil {
		return models.Proposal{}, fmt.Errorf("%w: %v", repository.ErrInvalid, err)
	}

	return s.proposals.Revise(ctx, userID, proposalID, payload)
}

// DiscardProposal resolves a pending or revised proposal without applying it.
func (s *Service) DiscardProposal(ctx context.Context, userID, proposalID uuid.UUID) (models.Proposal, error) {
	return s.proposals.Discard(ctx, userID, proposalID)
}
