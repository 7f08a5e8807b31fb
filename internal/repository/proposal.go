package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/dompy/backend/internal/models"
)

type ProposalRepository struct {
	db *pgxpool.Pool
}

// NewProposalRepository creates the proposal repository.
func NewProposalRepository(db *pgxpool.Pool) *ProposalRepository {
	return &ProposalRepository{db: db}
}

const proposalColumns = `p.id, p.conversation_id, p.message_id, p.kind, p.status,
	p.original_payload, p.revised_payload, p.applied_at, p.result_id, p.created_at, p.updated_at`

// Create inserts a pending proposal attached to an assistant message.
func (r *ProposalRepository) Create(ctx context.Context, conversationID, messageID uuid.UUID, kind models.ProposalKind, payload json.RawMessage) (models.Proposal, error) {
	var proposal models.Proposal

	err := r.db.QueryRow(ctx,
		`INSERT INTO proposals (conversation_id, message_id, kind, status, original_payload)
		 VALUES ($1, $2, $3, 'pending', $4)
		 RETURNING id, conversation_id, message_id, kind, status,
		           original_payload, revised_payload, applied_at, result_id, created_at, updated_at`,
		conversationID, messageID, kind, payload,
	).Scan(
		&proposal.ID, &proposal.ConversationID, &proposal.MessageID, &proposal.Kind, &proposal.Status,
		&proposal.OriginalPayload, &proposal.RevisedPayload, &proposal.AppliedAt, &proposal.ResultID,
		&proposal.CreatedAt, &proposal.UpdatedAt,
	)
	if err != nil {
		return proposal, err
	}

	return proposal, nil
}

// Get returns a proposal by id, scoped to the owner of its conversation.
func (r *ProposalRepository) Get(ctx context.Context, userID, proposalID uuid.UUID) (models.Proposal, error) {
	var proposal models.Proposal

	err := r.db.QueryRow(ctx,
		`SELECT `+proposalColumns+`
		 FROM proposals p
		 JOIN conversations c ON c.id = p.conversation_id
		 WHERE p.id = $1 AND c.user_id = $2`,
		proposalID, userID,
	).Scan(
		&proposal.ID, &proposal.ConversationID, &proposal.MessageID, &proposal.Kind, &proposal.Status,
		&proposal.OriginalPayload, &proposal.RevisedPayload, &proposal.AppliedAt, &proposal.ResultID,
		&proposal.CreatedAt, &proposal.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return proposal, ErrNotFound
		}
		return proposal, err
	}

	return proposal, nil
}

// ListByConversation returns the conversation's proposals in creation order.
func (r *ProposalRepository) ListByConversation(ctx context.Context, userID, conversationID uuid.UUID) ([]models.Proposal, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+proposalColumns+`
		 FROM proposals p
		 JOIN conversations c ON c.id = p.conversation_id
		 WHERE p.conversation_id = $1 AND c.user_id = $2
		 ORDER BY p.created_at`,
		conversationID, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanProposals(rows)
}

// ListByMessage returns the proposals attached to one assistant message.
func (r *ProposalRepository) ListByMessage(ctx context.Context, messageID uuid.UUID) ([]models.Proposal, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+proposalColumns+`
		 FROM proposals p
		 WHERE p.message_id = $1
		 ORDER BY p.created_at`,
		messageID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanProposals(rows)
}

// Revise replaces a proposal's effective payload and marks it revised. Only
// pending and revised proposals can be revised; anything else maps to
// ErrInvalidState so resolved proposals stay immutable.
func (r *ProposalRepository) Revise(ctx context.Context, userID, proposalID uuid.UUID, payload json.RawMessage) (models.Proposal, error) {
	return r.updateUnresolved(ctx, userID, proposalID,
		`UPDATE proposals p
		 SET status = 'revised', revised_payload = $3, updated_at = NOW()
		 FROM conversations c
		 WHERE p.id = $1 AND c.id = p.conversation_id AND c.user_id = $2
		   AND p.status IN ('pending', 'revised')
		 RETURNING `+proposalColumns,
		payload,
	)
}

// Discard resolves a proposal without applying it.
func (r *ProposalRepository) Discard(ctx context.Context, userID, proposalID uuid.UUID) (models.Proposal, error) {
	return r.updateUnresolved(ctx, userID, proposalID,
		`UPDATE proposals p
		 SET status = 'discarded', updated_at = NOW()
		 FROM conversations c
		 WHERE p.id = $1 AND c.id = p.conversation_id AND c.user_id = $2
		   AND p.status IN ('pending', 'revised')
		 RETURNING `+proposalColumns,
	)
}

// Claim moves a proposal to confirmed before its ledger write runs, locking
// out every other confirm attempt. The status guard makes concurrent confirms
// of the same proposal settle on exactly one claimant; the claim carries no
// result id yet, Finalize records it and Release undoes a claim whose ledger
// write failed. A confirm-time revision becomes the effective payload here so
// the claimant applies exactly what it claimed.
func (r *ProposalRepository) Claim(ctx context.Context, userID, proposalID uuid.UUID, revision json.RawMessage) (models.Proposal, error) {
	return r.updateUnresolved(ctx, userID, proposalID,
		`UPDATE proposals p
		 SET status = 'confirmed', revised_payload = COALESCE($3, p.revised_payload),
		     updated_at = NOW()
		 FROM conversations c
		 WHERE p.id = $1 AND c.id = p.conversation_id AND c.user_id = $2
		   AND p.status IN ('pending', 'revised')
		 RETURNING `+proposalColumns,
		revision,
	)
}

// Finalize records the apply result on a claimed proposal.
func (r *ProposalRepository) Finalize(ctx context.Context, userID, proposalID uuid.UUID, resultID string) (models.Proposal, error) {
	return r.updateUnresolved(ctx, userID, proposalID,
		`UPDATE proposals p
		 SET applied_at = NOW(), result_id = $3, updated_at = NOW()
		 FROM conversations c
		 WHERE p.id = $1 AND c.id = p.conversation_id AND c.user_id = $2
		   AND p.status = 'confirmed' AND p.result_id IS NULL
		 RETURNING `+proposalColumns,
		resultID,
	)
}

// Release returns a claimed proposal to its editable status after a failed
// ledger write. Only claims without a recorded result can be released.
func (r *ProposalRepository) Release(ctx context.Context, userID, proposalID uuid.UUID) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE proposals p
		 SET status = CASE WHEN p.revised_payload IS NULL THEN 'pending' ELSE 'revised' END,
		     updated_at = NOW()
		 FROM conversations c
		 WHERE p.id = $1 AND c.id = p.conversation_id AND c.user_id = $2
		   AND p.status = 'confirmed' AND p.result_id IS NULL`,
		proposalID, userID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

func (r *ProposalRepository) updateUnresolved(ctx context.Context, userID, proposalID uuid.UUID, query string, args ...any) (models.Proposal, error) {
	var proposal models.Proposal

	queryArgs := append([]any{proposalID, userID}, args...)

	err := r.db.QueryRow(ctx, query, queryArgs...).Scan(
		&proposal.ID, &proposal.ConversationID, &proposal.MessageID, &proposal.Kind, &proposal.Status,
		&proposal.OriginalPayload, &proposal.RevisedPayload, &proposal.AppliedAt, &proposal.ResultID,
		&proposal.CreatedAt, &proposal.UpdatedAt,
	)
	if err == nil {
		return proposal, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return proposal, err
	}

	// Zero rows means either the proposal does not exist for this user or it
	// is already resolved; tell the two apart for the caller.
	if _, getErr := r.Get(ctx, userID, proposalID); getErr != nil {
		return proposal, getErr
	}
	return proposal, ErrInvalidState
}

func scanProposals(rows pgx.Rows) ([]models.Proposal, error) {
	proposals := make([]models.Proposal, 0)
	for rows.Next() {
		var proposal models.Proposal

		err := rows.Scan(
			&proposal.ID, &proposal.ConversationID, &proposal.MessageID, &proposal.Kind, &proposal.Status,
			&proposal.OriginalPayload, &proposal.RevisedPayload, &proposal.AppliedAt, &proposal.ResultID,
			&proposal.CreatedAt, &proposal.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}

		proposals = append(proposals, proposal)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return proposals, nil
}
