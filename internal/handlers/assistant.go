package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"example.com/dompy/backend/internal/assistant"
	"example.com/dompy/backend/internal/auth"
	"example.com/dompy/backend/internal/repository"
)

type AssistantHandler struct {
	Service *assistant.Service
}

func NewAssistantHandler(service *assistant.Service) *AssistantHandler {
	return &AssistantHandler{Service: service}
}

type MessageRequest struct {
	ConversationID *uuid.UUID `json:"conversation_id"`
	Message        string     `json:"message" validate:"required,max=4000"`
	ImageURL       *string    `json:"image_url" validate:"omitempty,url"`
}

type ApplyRequest struct {
	ProposalIDs []uuid.UUID                   `json:"proposal_ids" validate:"required,min=1"`
	Revisions   map[uuid.UUID]json.RawMessage `json:"revisions"`
}

type ApplyResponse struct {
	Results []assistant.ApplyResult `json:"results"`
}

type UpdateProposalRequest struct {
	RevisedPayload json.RawMessage `json:"revised_payload"`
	Status         *string         `json:"status" validate:"omitempty,oneof=discarded"`
}

type ConversationListResponse struct {
	Conversations []ConversationSummary `json:"conversations"`
	Total         int                   `json:"total"`
}

type ConversationSummary struct {
	ID           uuid.UUID `json:"id"`
	Title        *string   `json:"title,omitempty"`
	MessageCount int       `json:"message_count"`
	UpdatedAt    string    `json:"updated_at"`
}

// Message runs one assistant turn for the current user.
func (h *AssistantHandler) Message(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var req MessageRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(c, "validation failed")
	}

	result, err := h.Service.ProcessMessage(c.Request().Context(), userID, req.ConversationID, req.Message, req.ImageURL)
	if err != nil {
		if errors.Is(err, assistant.ErrToolLoopExceeded) {
			return c.JSON(http.StatusBadGateway, map[string]string{"error": "assistant could not finish, please try again"})
		}
		return serverError(c)
	}

	return c.JSON(http.StatusOK, result)
}

// Apply confirms and applies a batch of proposals.
func (h *AssistantHandler) Apply(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var req ApplyRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(c, "validation failed")
	}

	results := h.Service.ApplyProposals(c.Request().Context(), userID, req.ProposalIDs, req.Revisions)

	return c.JSON(http.StatusOK, ApplyResponse{Results: results})
}

// GetProposal returns one proposal.
func (h *AssistantHandler) GetProposal(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	proposalID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid proposal id")
	}

	proposal, err := h.Service.GetProposal(c.Request().Context(), userID, proposalID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound(c, "proposal not found")
		}
		return serverError(c)
	}

	return c.JSON(http.StatusOK, proposal)
}

// UpdateProposal revises or discards a pending proposal.
func (h *AssistantHandler) UpdateProposal(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	proposalID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid proposal id")
	}

	var req UpdateProposalRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(c, "validation failed")
	}

	if len(req.RevisedPayload) == 0 && req.Status == nil {
		return badRequest(c, "nothing to update")
	}

	if len(req.RevisedPayload) > 0 {
		proposal, err := h.Service.ReviseProposal(c.Request().Context(), userID, proposalID, req.RevisedPayload)
		if err != nil {
			return proposalUpdateError(c, err)
		}
		if req.Status == nil {
			return c.JSON(http.StatusOK, proposal)
		}
	}

	proposal, err := h.Service.DiscardProposal(c.Request().Context(), userID, proposalID)
	if err != nil {
		return proposalUpdateError(c, err)
	}

	return c.JSON(http.StatusOK, proposal)
}

// ListConversations returns the user's conversations, newest activity first.
func (h *AssistantHandler) ListConversations(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	skip := queryInt(c, "skip", 0)
	limit := queryInt(c, "limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}

	summaries, total, err := h.Service.ListConversations(c.Request().Context(), userID, skip, limit)
	if err != nil {
		return serverError(c)
	}

	items := make([]ConversationSummary, 0, len(summaries))
	for _, s := range summaries {
		items = append(items, ConversationSummary{
			ID:           s.Conversation.ID,
			Title:        s.Conversation.Title,
			MessageCount: s.MessageCount,
			UpdatedAt:    s.Conversation.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}

	return c.JSON(http.StatusOK, ConversationListResponse{Conversations: items, Total: total})
}

// GetConversation returns a conversation with messages and proposals.
func (h *AssistantHandler) GetConversation(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid conversation id")
	}

	detail, err := h.Service.GetConversation(c.Request().Context(), userID, conversationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound(c, "conversation not found")
		}
		return serverError(c)
	}

	return c.JSON(http.StatusOK, detail)
}

// DeleteConversation removes a conversation with all its data.
func (h *AssistantHandler) DeleteConversation(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid conversation id")
	}

	if err := h.Service.DeleteConversation(c.Request().Context(), userID, conversationID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound(c, "conversation not found")
		}
		return serverError(c)
	}

	return c.NoContent(http.StatusNoContent)
}

func proposalUpdateError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return notFound(c, "proposal not found")
	case errors.Is(err, repository.ErrInvalidState):
		return conflict(c, "proposal already resolved")
	case errors.Is(err, repository.ErrInvalid):
		return badRequest(c, err.Error())
	}
	return serverError(c)
}

func queryInt(c echo.Context, name string, fallback int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
