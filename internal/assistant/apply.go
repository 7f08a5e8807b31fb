package assistant

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"example.com/dompy/backend/internal/assistant/tools"
	"example.com/dompy/backend/internal/models"
	"example.com/dompy/backend/internal/repository"
)

// ApplyResult is the per-proposal outcome of one apply batch entry.
type ApplyResult struct {
	ProposalID uuid.UUID `json:"proposal_id"`
	Success    bool      `json:"success"`
	ResultID   string    `json:"result_id,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// ApplyProposals confirms and applies a batch of proposals. Each proposal is
// handled independently: one failing never rolls back its siblings. A
// confirm-time revision wins over a stored revised payload for that call and
// is persisted as the final revision.
func (s *Service) ApplyProposals(ctx context.Context, userID uuid.UUID, proposalIDs []uuid.UUID, revisions map[uuid.UUID]json.RawMessage) []ApplyResult {
	results := make([]ApplyResult, 0, len(proposalIDs))

	for _, id := range proposalIDs {
		results = append(results, s.applyOne(ctx, userID, id, revisions[id]))
	}

	return results
}

func (s *Service) applyOne(ctx context.Context, userID, proposalID uuid.UUID, revision json.RawMessage) ApplyResult {
	result := ApplyResult{ProposalID: proposalID}

	proposal, err := s.proposals.Get(ctx, userID, proposalID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			result.Error = "proposal not found"
		} else {
			result.Error = err.Error()
		}
		return result
	}

	if proposal.Resolved() {
		result.Error = resolvedError(proposal.Status)
		if proposal.ResultID != nil {
			result.ResultID = *proposal.ResultID
		}
		return result
	}

	if len(revision) > 0 {
		if err := s.registry.ValidatePayload(proposal.Kind, revision); err != nil {
			result.Error = err.Error()
			return result
		}
	}

	toolName, err := tools.ApplyToolName(proposal.Kind)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	// Claim the proposal before the ledger write so concurrent confirms
	// settle on one claimant before any mutation happens. A failed write
	// releases the claim, leaving the proposal editable for retry.
	claimed, err := s.proposals.Claim(ctx, userID, proposalID, revision)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidState) {
			result.Error = resolvedError(models.ProposalStatusConfirmed)
			return result
		}
		result.Error = err.Error()
		return result
	}

	execResult, err := s.registry.Execute(ctx, userID, toolName, claimed.EffectivePayload())
	if err != nil {
		s.logger.Warn("apply failed", "proposal", proposalID, "kind", proposal.Kind, "error", err)
		if releaseErr := s.proposals.Release(ctx, userID, proposalID); releaseErr != nil {
			s.logger.Error("release claimed proposal", "proposal", proposalID, "error", releaseErr)
		}
		result.Error = err.Error()
		return result
	}

	confirmed, err := s.proposals.Finalize(ctx, userID, proposalID, execResult.ResultID)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.Success = true
	if confirmed.ResultID != nil {
		result.ResultID = *confirmed.ResultID
	}
	return result
}

func resolvedError(status models.ProposalStatus) string {
	if status == models.ProposalStatusDiscarded {
		return "proposal was discarded"
	}
	return "proposal already resolved"
}
