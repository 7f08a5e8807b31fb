package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/dompy/backend/internal/models"
)

type ConversationRepository struct {
	db *pgxpool.Pool
}

// ConversationSummary is a conversation row with its message count, for list
// views.
type ConversationSummary struct {
	Conversation models.Conversation
	MessageCount int
}

// NewConversationRepository creates the conversation repository.
func NewConversationRepository(db *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// Create starts a new conversation for the user.
func (r *ConversationRepository) Create(ctx context.Context, userID uuid.UUID, title *string) (models.Conversation, error) {
	var conversation models.Conversation

	err := r.db.QueryRow(ctx,
		`INSERT INTO conversations (user_id, title)
		 VALUES ($1, $2)
		 RETURNING id, user_id, title, created_at, updated_at`,
		userID, title,
	).Scan(&conversation.ID, &conversation.UserID, &conversation.Title, &conversation.CreatedAt, &conversation.UpdatedAt)
	if err != nil {
		return conversation, err
	}

	return conversation, nil
}

// Get returns the user's conversation by id.
func (r *ConversationRepository) Get(ctx context.Context, userID, conversationID uuid.UUID) (models.Conversation, error) {
	var conversation models.Conversation

	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, title, created_at, updated_at
		 FROM conversations
		 WHERE id = $1 AND user_id = $2`,
		conversationID, userID,
	).Scan(&conversation.ID, &conversation.UserID, &conversation.Title, &conversation.CreatedAt, &conversation.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return conversation, ErrNotFound
		}
		return conversation, err
	}

	return conversation, nil
}

// List returns the user's conversations, most recently active first.
func (r *ConversationRepository) List(ctx context.Context, userID uuid.UUID, skip, limit int) ([]ConversationSummary, int, error) {
	var total int
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM conversations WHERE user_id = $1`,
		userID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Query(ctx,
		`SELECT c.id, c.user_id, c.title, c.created_at, c.updated_at,
		        (SELECT COUNT(*) FROM conversation_messages m WHERE m.conversation_id = c.id)
		 FROM conversations c
		 WHERE c.user_id = $1
		 ORDER BY c.updated_at DESC
		 OFFSET $2 LIMIT $3`,
		userID, skip, limit,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	conversations := make([]ConversationSummary, 0)
	for rows.Next() {
		var item ConversationSummary

		err := rows.Scan(&item.Conversation.ID, &item.Conversation.UserID, &item.Conversation.Title,
			&item.Conversation.CreatedAt, &item.Conversation.UpdatedAt, &item.MessageCount)
		if err != nil {
			return nil, 0, err
		}

		conversations = append(conversations, item)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return conversations, total, nil
}

// Touch bumps the conversation's updated_at and sets the title if it is
// still unset.
func (r *ConversationRepository) Touch(ctx context.Context, conversationID uuid.UUID, title *string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE conversations
		 SET updated_at = NOW(), title = COALESCE(title, $2)
		 WHERE id = $1`,
		conversationID, title,
	)
	return err
}

// Delete removes the user's conversation; messages and proposals cascade.
func (r *ConversationRepository) Delete(ctx context.Context, userID, conversationID uuid.UUID) error {
	cmd, err := r.db.Exec(ctx,
		`DELETE FROM conversations
		 WHERE id = $1 AND user_id = $2`,
		conversationID, userID,
	)
	if err != nil {
		return err
	}

	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// AppendMessage appends a message at the end of the conversation. The
// conversation row is locked for the insert so concurrent turns take
// positions one at a time instead of racing on MAX(position).
func (r *ConversationRepository) AppendMessage(ctx context.Context, msg models.ConversationMessage) (models.ConversationMessage, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return msg, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var conversationID uuid.UUID
	err = tx.QueryRow(ctx,
		`SELECT id FROM conversations WHERE id = $1 FOR UPDATE`,
		msg.ConversationID,
	).Scan(&conversationID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return msg, ErrNotFound
		}
		return msg, err
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO conversation_messages
		 (conversation_id, role, content, image_url, tool_calls, tool_call_id, tool_name, position)
		 SELECT $1, $2, $3, $4, NULLIF($5, '')::jsonb, $6, $7,
		        COALESCE((SELECT MAX(position) FROM conversation_messages WHERE conversation_id = $1), 0) + 1
		 RETURNING id, position, created_at`,
		msg.ConversationID, msg.Role, msg.Content, msg.ImageURL, string(msg.ToolCalls), msg.ToolCallID, msg.ToolName,
	).Scan(&msg.ID, &msg.Position, &msg.CreatedAt)
	if err != nil {
		return msg, err
	}

	if err := tx.Commit(ctx); err != nil {
		return msg, err
	}

	return msg, nil
}

// ListMessages returns the conversation's messages in replay order.
func (r *ConversationRepository) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]models.ConversationMessage, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, conversation_id, role, content, image_url, tool_calls, tool_call_id, tool_name, position, created_at
		 FROM conversation_messages
		 WHERE conversation_id = $1
		 ORDER BY position`,
		conversationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]models.ConversationMessage, 0)
	for rows.Next() {
		var msg models.ConversationMessage

		err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &msg.ImageURL,
			&msg.ToolCalls, &msg.ToolCallID, &msg.ToolName, &msg.Position, &msg.CreatedAt)
		if err != nil {
			return nil, err
		}

		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return messages, nil
}
