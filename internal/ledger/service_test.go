package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"example.com/dompy/backend/internal/models"
	"example.com/dompy/backend/internal/repository"
)

// TestCreateTransactionValidation checks the input guards that never reach
// the database.
func TestCreateTransactionValidation(t *testing.T) {
	s := NewService(nil, nil, nil, nil)
	ctx := context.Background()
	userID := uuid.New()

	_, err := s.CreateTransaction(ctx, userID, NewTransaction{Type: models.TransactionTypeExpense, Amount: 0})
	if !errors.Is(err, repository.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for zero amount, got %v", err)
	}

	_, err = s.CreateTransaction(ctx, userID, NewTransaction{Type: "loan", Amount: 100})
	if !errors.Is(err, repository.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for unknown type, got %v", err)
	}
}

// TestCreateTransferValidation checks amount and account guards.
func TestCreateTransferValidation(t *testing.T) {
	s := NewService(nil, nil, nil, nil)
	ctx := context.Background()
	userID := uuid.New()
	account := uuid.New()

	_, err := s.CreateTransfer(ctx, userID, Transfer{Amount: 0, FromAccountID: account, ToAccountID: uuid.New()})
	if !errors.Is(err, repository.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for zero amount, got %v", err)
	}

	_, err = s.CreateTransfer(ctx, userID, Transfer{Amount: 100, FromAccountID: account, ToAccountID: account})
	if !errors.Is(err, repository.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for identical accounts, got %v", err)
	}
}

// TestCashflowSummaryInvertedRange checks that a backwards date range fails
// before any query runs.
func TestCashflowSummaryInvertedRange(t *testing.T) {
	s := NewService(nil, nil, nil, nil)

	from := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	_, err := s.CashflowSummary(context.Background(), uuid.New(), from, to)
	if !errors.Is(err, repository.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

// TestApplyBudgetAllocationsNegativeLimit checks that a negative limit stops
// the batch.
func TestApplyBudgetAllocationsNegativeLimit(t *testing.T) {
	s := NewService(nil, nil, nil, nil)

	_, err := s.ApplyBudgetAllocations(context.Background(), uuid.New(), time.Now(), []BudgetAllocation{
		{CategoryID: uuid.New(), LimitAmount: -1},
	})
	if !errors.Is(err, repository.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

// TestApplyCategoryChangeValidation checks the per-operation field guards.
func TestApplyCategoryChangeValidation(t *testing.T) {
	s := NewService(nil, nil, nil, nil)
	ctx := context.Background()
	userID := uuid.New()

	cases := []CategoryChange{
		{Op: CategoryOpCreate},
		{Op: CategoryOpRename, NewName: "Makanan"},
		{Op: CategoryOpMerge, CategoryID: ptr(uuid.New())},
		{Op: CategoryOpDelete},
		{Op: CategoryOp("archive")},
	}

	for _, change := range cases {
		if _, err := s.ApplyCategoryChange(ctx, userID, change); !errors.Is(err, repository.ErrInvalid) {
			t.Fatalf("expected ErrInvalid for %+v, got %v", change, err)
		}
	}
}

// TestMonthStart checks truncation to the first of the month in UTC.
func TestMonthStart(t *testing.T) {
	in := time.Date(2026, 8, 29, 15, 4, 5, 0, time.UTC)
	want := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	if got := monthStart(in); !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if monthStart(time.Time{}).Day() != 1 {
		t.Fatal("zero time must default to the current month start")
	}
}

func ptr[T any](v T) *T { return &v }
