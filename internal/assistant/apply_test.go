package assistant

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"

	"example.com/dompy/backend/internal/assistant/tools"
	"example.com/dompy/backend/internal/models"
	"example.com/dompy/backend/internal/repository"
)

func seedTransactionProposal(t *testing.T, env *testEnv, amount int64) models.Proposal {
	t.Helper()

	payload := tools.TransactionPayload{
		Date:       "2026-08-29",
		Type:       models.TransactionTypeExpense,
		Amount:     amount,
		CategoryID: env.reader.categories[0].ID,
		AccountID:  env.reader.accounts[0].ID,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	proposal, err := env.proposals.Create(context.Background(), uuid.New(), uuid.New(), models.ProposalKindTransaction, raw)
	if err != nil {
		t.Fatalf("seed proposal: %v", err)
	}
	return proposal
}

// TestApplyProposalsConfirms applies one pending proposal: the ledger write
// happens and the proposal ends up confirmed with a result id.
func TestApplyProposalsConfirms(t *testing.T) {
	env := newTestEnv(&fakeChatClient{}, 0)
	proposal := seedTransactionProposal(t, env, 35_000)

	results := env.service.ApplyProposals(context.Background(), env.userID, []uuid.UUID{proposal.ID}, nil)

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if !results[0].Success {
		t.Fatalf("expected success, got error %q", results[0].Error)
	}
	if results[0].ResultID == "" {
		t.Fatal("expected a result id")
	}

	stored := env.proposals.proposals[proposal.ID]
	if stored.Status != models.ProposalStatusConfirmed {
		t.Fatalf("expected confirmed, got %s", stored.Status)
	}
	if stored.AppliedAt == nil || stored.ResultID == nil {
		t.Fatal("expected applied_at and result_id set")
	}
	if len(env.writer.transactions) != 1 || env.writer.transactions[0].Amount != 35_000 {
		t.Fatalf("unexpected ledger writes %v", env.writer.transactions)
	}
}

// TestApplyProposalsConfirmTimeRevision checks that a revision passed at
// confirm time is what the ledger sees and what gets persisted.
func TestApplyProposalsConfirmTimeRevision(t *testing.T) {
	env := newTestEnv(&fakeChatClient{}, 0)
	proposal := seedTransactionProposal(t, env, 50_000)

	revised := tools.TransactionPayload{
		Date:       "2026-08-29",
		Type:       models.TransactionTypeExpense,
		Amount:     75_000,
		CategoryID: env.reader.categories[0].ID,
		AccountID:  env.reader.accounts[0].ID,
	}
	raw, err := json.Marshal(revised)
	if err != nil {
		t.Fatalf("marshal revision: %v", err)
	}

	results := env.service.ApplyProposals(context.Background(), env.userID, []uuid.UUID{proposal.ID}, map[uuid.UUID]json.RawMessage{proposal.ID: raw})
	if !results[0].Success {
		t.Fatalf("expected success, got %q", results[0].Error)
	}

	if env.writer.transactions[0].Amount != 75_000 {
		t.Fatalf("expected revised amount 75000 written, got %d", env.writer.transactions[0].Amount)
	}

	stored := env.proposals.proposals[proposal.ID]
	if string(stored.RevisedPayload) != string(raw) {
		t.Fatal("expected the revision persisted on the proposal")
	}
}

// TestApplyProposalsInvalidRevision checks that a structurally invalid
// revision fails without touching the ledger or the proposal status.
func TestApplyProposalsInvalidRevision(t *testing.T) {
	env := newTestEnv(&fakeChatClient{}, 0)
	proposal := seedTransactionProposal(t, env, 50_000)

	bad := json.RawMessage(`{"date":"2026-08-29","type":"expense","amount":-5}`)
	results := env.service.ApplyProposals(context.Background(), env.userID, []uuid.UUID{proposal.ID}, map[uuid.UUID]json.RawMessage{proposal.ID: bad})

	if results[0].Success {
		t.Fatal("expected failure for invalid revision")
	}
	if env.writer.calls != 0 {
		t.Fatalf("ledger must stay untouched, saw %d writes", env.writer.calls)
	}
	if env.proposals.proposals[proposal.ID].Status != models.ProposalStatusPending {
		t.Fatal("proposal must stay pending after a rejected revision")
	}
}

// TestApplyProposalsBatchIndependence applies two proposals where the second
// ledger write fails: the first stays confirmed, the second stays editable.
func TestApplyProposalsBatchIndependence(t *testing.T) {
	env := newTestEnv(&fakeChatClient{}, 0)
	first := seedTransactionProposal(t, env, 10_000)
	second := seedTransactionProposal(t, env, 20_000)
	env.writer.failOn = 2

	results := env.service.ApplyProposals(context.Background(), env.userID, []uuid.UUID{first.ID, second.ID}, nil)

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !results[0].Success {
		t.Fatalf("expected first to succeed, got %q", results[0].Error)
	}
	if results[1].Success {
		t.Fatal("expected second to fail")
	}

	if env.proposals.proposals[first.ID].Status != models.ProposalStatusConfirmed {
		t.Fatal("first proposal must stay confirmed")
	}
	if env.proposals.proposals[second.ID].Status != models.ProposalStatusPending {
		t.Fatal("failed proposal must stay pending for retry")
	}
}

// TestApplyProposalsAlreadyResolved re-applies a confirmed proposal: no second
// ledger write, the original result id is reported back.
func TestApplyProposalsAlreadyResolved(t *testing.T) {
	env := newTestEnv(&fakeChatClient{}, 0)
	proposal := seedTransactionProposal(t, env, 35_000)

	first := env.service.ApplyProposals(context.Background(), env.userID, []uuid.UUID{proposal.ID}, nil)
	if !first[0].Success {
		t.Fatalf("setup apply failed: %q", first[0].Error)
	}

	second := env.service.ApplyProposals(context.Background(), env.userID, []uuid.UUID{proposal.ID}, nil)
	if second[0].Success {
		t.Fatal("expected failure for an already confirmed proposal")
	}
	if second[0].Error != "proposal already resolved" {
		t.Fatalf("unexpected error %q", second[0].Error)
	}
	if second[0].ResultID != first[0].ResultID {
		t.Fatalf("expected the original result id %q, got %q", first[0].ResultID, second[0].ResultID)
	}
	if env.writer.calls != 1 {
		t.Fatalf("expected exactly one ledger write, got %d", env.writer.calls)
	}
}

// TestApplyProposalsDiscarded checks the discarded terminal state message.
func TestApplyProposalsDiscarded(t *testing.T) {
	env := newTestEnv(&fakeChatClient{}, 0)
	proposal := seedTransactionProposal(t, env, 35_000)

	if _, err := env.proposals.Discard(context.Background(), env.userID, proposal.ID); err != nil {
		t.Fatalf("discard: %v", err)
	}

	results := env.service.ApplyProposals(context.Background(), env.userID, []uuid.UUID{proposal.ID}, nil)
	if results[0].Success || results[0].Error != "proposal was discarded" {
		t.Fatalf("unexpected result %+v", results[0])
	}
	if env.writer.calls != 0 {
		t.Fatal("discarded proposal must never reach the ledger")
	}
}

// TestApplyProposalsNotFound checks the per-item not-found outcome.
func TestApplyProposalsNotFound(t *testing.T) {
	env := newTestEnv(&fakeChatClient{}, 0)

	results := env.service.ApplyProposals(context.Background(), env.userID, []uuid.UUID{uuid.New()}, nil)
	if results[0].Success || results[0].Error != "proposal not found" {
		t.Fatalf("unexpected result %+v", results[0])
	}
}

// TestApplyProposalsLosesConfirmRace simulates a concurrent confirm winning
// between the status check and the claim: the loser fails without any ledger
// write of its own.
func TestApplyProposalsLosesConfirmRace(t *testing.T) {
	env := newTestEnv(&fakeChatClient{}, 0)
	proposal := seedTransactionProposal(t, env, 35_000)
	env.proposals.claimErr = repository.ErrInvalidState

	results := env.service.ApplyProposals(context.Background(), env.userID, []uuid.UUID{proposal.ID}, nil)
	if results[0].Success {
		t.Fatal("expected the losing request to fail")
	}
	if results[0].Error != "proposal already resolved" {
		t.Fatalf("unexpected error %q", results[0].Error)
	}
	if env.writer.calls != 0 {
		t.Fatalf("losing confirm must not write the ledger, saw %d writes", env.writer.calls)
	}
}

// staleProposals serves a snapshot from Get so a second confirm request can
// pass the status check after the first one already claimed the proposal.
type staleProposals struct {
	*memProposals
	snapshot models.Proposal
}

func (s *staleProposals) Get(_ context.Context, _, _ uuid.UUID) (models.Proposal, error) {
	return s.snapshot, nil
}

// TestApplyProposalsSingleWriteUnderRace runs two confirms that both observe
// the proposal as pending: exactly one ledger write happens, the loser stops
// at the claim.
func TestApplyProposalsSingleWriteUnderRace(t *testing.T) {
	env := newTestEnv(&fakeChatClient{}, 0)
	proposal := seedTransactionProposal(t, env, 35_000)

	stale := &staleProposals{memProposals: env.proposals, snapshot: proposal}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	racer := NewService(env.client, env.registry, env.reader, env.conversations, stale, 0, 0, logger)

	first := env.service.ApplyProposals(context.Background(), env.userID, []uuid.UUID{proposal.ID}, nil)
	if !first[0].Success {
		t.Fatalf("expected winner to succeed, got %q", first[0].Error)
	}

	second := racer.ApplyProposals(context.Background(), env.userID, []uuid.UUID{proposal.ID}, nil)
	if second[0].Success {
		t.Fatal("expected the racing request to fail")
	}
	if second[0].Error != "proposal already resolved" {
		t.Fatalf("unexpected error %q", second[0].Error)
	}
	if env.writer.calls != 1 {
		t.Fatalf("expected exactly one ledger write, got %d", env.writer.calls)
	}
}

// TestApplyProposalsStoredRevision confirms a proposal that was revised
// beforehand: the stored revision is what the ledger receives.
func TestApplyProposalsStoredRevision(t *testing.T) {
	env := newTestEnv(&fakeChatClient{}, 0)
	proposal := seedTransactionProposal(t, env, 50_000)

	revised := tools.TransactionPayload{
		Date:       "2026-08-29",
		Type:       models.TransactionTypeExpense,
		Amount:     60_000,
		CategoryID: env.reader.categories[0].ID,
		AccountID:  env.reader.accounts[0].ID,
	}
	raw, err := json.Marshal(revised)
	if err != nil {
		t.Fatalf("marshal revision: %v", err)
	}
	if _, err := env.service.ReviseProposal(context.Background(), env.userID, proposal.ID, raw); err != nil {
		t.Fatalf("revise: %v", err)
	}

	results := env.service.ApplyProposals(context.Background(), env.userID, []uuid.UUID{proposal.ID}, nil)
	if !results[0].Success {
		t.Fatalf("expected success, got %q", results[0].Error)
	}
	if env.writer.transactions[0].Amount != 60_000 {
		t.Fatalf("expected stored revision amount 60000 written, got %d", env.writer.transactions[0].Amount)
	}
}

// TestReviseProposalValidates checks the standalone revise path: schema
// violations are rejected as ErrInvalid, valid edits flip the status.
func TestReviseProposalValidates(t *testing.T) {
	env := newTestEnv(&fakeChatClient{}, 0)
	proposal := seedTransactionProposal(t, env, 50_000)

	if _, err := env.service.ReviseProposal(context.Background(), env.userID, proposal.ID, json.RawMessage(`{"amount":-1}`)); err == nil {
		t.Fatal("expected invalid revision to be rejected")
	}

	revised := tools.TransactionPayload{
		Date:       "2026-08-30",
		Type:       models.TransactionTypeExpense,
		Amount:     60_000,
		CategoryID: env.reader.categories[0].ID,
		AccountID:  env.reader.accounts[0].ID,
	}
	raw, err := json.Marshal(revised)
	if err != nil {
		t.Fatalf("marshal revision: %v", err)
	}

	updated, err := env.service.ReviseProposal(context.Background(), env.userID, proposal.ID, raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != models.ProposalStatusRevised {
		t.Fatalf("expected revised status, got %s", updated.Status)
	}
}

// TestReviseConfirmedProposal checks that a resolved proposal rejects edits.
func TestReviseConfirmedProposal(t *testing.T) {
	env := newTestEnv(&fakeChatClient{}, 0)
	proposal := seedTransactionProposal(t, env, 50_000)

	if _, err := env.proposals.Claim(context.Background(), env.userID, proposal.ID, nil); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := env.proposals.Finalize(context.Background(), env.userID, proposal.ID, "txn-1"); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	payload := env.proposals.proposals[proposal.ID].OriginalPayload
	_, err := env.service.ReviseProposal(context.Background(), env.userID, proposal.ID, payload)
	if err == nil {
		t.Fatal("expected revise of a confirmed proposal to fail")
	}
}
