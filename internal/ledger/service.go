// Package ledger exposes the finance domain operations the rest of the
// application works through: account, category, transaction and budget reads
// plus the mutations the assistant's confirmed proposals apply.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"example.com/dompy/backend/internal/models"
	"example.com/dompy/backend/internal/repository"
)

// NewTransaction is the input for recording a single income or expense.
type NewTransaction struct {
	Date        time.Time
	Type        models.TransactionType
	Amount      int64
	CategoryID  uuid.UUID
	AccountID   uuid.UUID
	Description string
	Tags        []string
}

// Transfer moves an amount between two of the user's accounts.
type Transfer struct {
	Date          time.Time
	Amount        int64
	FromAccountID uuid.UUID
	ToAccountID   uuid.UUID
	Description   string
}

// TransferResult carries both created legs of a transfer.
type TransferResult struct {
	Group  uuid.UUID
	OutLeg models.Transaction
	InLeg  models.Transaction
}

// BudgetAllocation sets one category's limit for a month.
type BudgetAllocation struct {
	CategoryID  uuid.UUID
	LimitAmount int64
}

type CategoryOp string

const (
	CategoryOpCreate CategoryOp = "create"
	CategoryOpRename CategoryOp = "rename"
	CategoryOpMerge  CategoryOp = "merge"
	CategoryOpDelete CategoryOp = "delete"
)

// CategoryChange is one category mutation. Which fields matter depends on Op:
// create needs Name and Type, rename needs CategoryID and NewName, merge needs
// CategoryID (source) and TargetID, delete needs CategoryID.
type CategoryChange struct {
	Op         CategoryOp
	Name       string
	Type       models.CategoryType
	CategoryID *uuid.UUID
	TargetID   *uuid.UUID
	NewName    string
}

// BudgetLine is one category's budget against its actual spend.
type BudgetLine struct {
	CategoryID   uuid.UUID `json:"category_id"`
	CategoryName string    `json:"category_name"`
	LimitAmount  int64     `json:"limit_amount"`
	SpentAmount  int64     `json:"spent_amount"`
	Remaining    int64     `json:"remaining"`
}

// BudgetOverview is a month's budgets with totals.
type BudgetOverview struct {
	Month      time.Time    `json:"month"`
	Lines      []BudgetLine `json:"lines"`
	TotalLimit int64        `json:"total_limit"`
	TotalSpent int64        `json:"total_spent"`
}

// CashflowSummary aggregates income against expense over a period.
type CashflowSummary struct {
	DateFrom   time.Time                   `json:"date_from"`
	DateTo     time.Time                   `json:"date_to"`
	Income     int64                       `json:"income"`
	Expense    int64                       `json:"expense"`
	Net        int64                       `json:"net"`
	ByCategory []repository.CategoryAmount `json:"by_category"`
}

type Service struct {
	accounts     *repository.AccountRepository
	categories   *repository.CategoryRepository
	transactions *repository.TransactionRepository
	budgets      *repository.BudgetRepository
}

func NewService(
	accounts *repository.AccountRepository,
	categories *repository.CategoryRepository,
	transactions *repository.TransactionRepository,
	budgets *repository.BudgetRepository,
) *Service {
	return &Service{
		accounts:     accounts,
		categories:   categories,
		transactions: transactions,
		budgets:      budgets,
	}
}

// ListAccounts returns the user's accounts with current balances.
func (s *Service) ListAccounts(ctx context.Context, userID uuid.UUID) ([]models.Account, error) {
	return s.accounts.ListByUser(ctx, userID)
}

// ListCategories returns the user's categories, optionally filtered by type.
func (s *Service) ListCategories(ctx context.Context, userID uuid.UUID, categoryType *models.CategoryType) ([]models.Category, error) {
	return s.categories.ListByUser(ctx, userID, categoryType, false)
}

// ListTransactions returns the user's transactions matching the filter.
func (s *Service) ListTransactions(ctx context.Context, userID uuid.UUID, filter repository.TransactionFilter) ([]repository.TransactionWithNames, error) {
	return s.transactions.List(ctx, userID, filter)
}

// BudgetOverview returns the month's budgets joined with actual spend.
func (s *Service) BudgetOverview(ctx context.Context, userID uuid.UUID, month time.Time) (BudgetOverview, error) {
	month = monthStart(month)

	rows, err := s.budgets.ListWithSpent(ctx, userID, month)
	if err != nil {
		return BudgetOverview{}, err
	}

	overview := BudgetOverview{Month: month, Lines: make([]BudgetLine, 0, len(rows))}
	for _, row := range rows {
		line := BudgetLine{
			CategoryID:   row.Budget.CategoryID,
			CategoryName: row.CategoryName,
			LimitAmount:  row.Budget.LimitAmount,
			SpentAmount:  row.SpentAmount,
			Remaining:    row.Budget.LimitAmount - row.SpentAmount,
		}
		overview.Lines = append(overview.Lines, line)
		overview.TotalLimit += line.LimitAmount
		overview.TotalSpent += line.SpentAmount
	}

	return overview, nil
}

// CashflowSummary aggregates income, expense and per-category totals between
// two dates, inclusive.
func (s *Service) CashflowSummary(ctx context.Context, userID uuid.UUID, dateFrom, dateTo time.Time) (CashflowSummary, error) {
	if dateTo.Before(dateFrom) {
		return CashflowSummary{}, fmt.Errorf("%w: date range is inverted", repository.ErrInvalid)
	}

	totals, err := s.transactions.Cashflow(ctx, userID, dateFrom, dateTo)
	if err != nil {
		return CashflowSummary{}, err
	}

	byCategory, err := s.transactions.CashflowByCategory(ctx, userID, dateFrom, dateTo)
	if err != nil {
		return CashflowSummary{}, err
	}

	return CashflowSummary{
		DateFrom:   dateFrom,
		DateTo:     dateTo,
		Income:     totals.Income,
		Expense:    totals.Expense,
		Net:        totals.Income - totals.Expense,
		ByCategory: byCategory,
	}, nil
}

// CreateTransaction records a transaction and adjusts the account balance.
func (s *Service) CreateTransaction(ctx context.Context, userID uuid.UUID, in NewTransaction) (models.Transaction, error) {
	if in.Amount <= 0 {
		return models.Transaction{}, fmt.Errorf("%w: amount must be positive", repository.ErrInvalid)
	}
	if in.Type != models.TransactionTypeIncome && in.Type != models.TransactionTypeExpense {
		return models.Transaction{}, fmt.Errorf("%w: unknown transaction type %q", repository.ErrInvalid, in.Type)
	}
	if in.Date.IsZero() {
		in.Date = time.Now()
	}

	return s.transactions.Create(ctx, userID, in.Date, in.Type, in.Amount, in.CategoryID, in.AccountID, in.Description, in.Tags, nil)
}

// CreateTransfer records both legs of a transfer atomically.
func (s *Service) CreateTransfer(ctx context.Context, userID uuid.UUID, in Transfer) (TransferResult, error) {
	if in.Amount <= 0 {
		return TransferResult{}, fmt.Errorf("%w: amount must be positive", repository.ErrInvalid)
	}
	if in.FromAccountID == in.ToAccountID {
		return TransferResult{}, fmt.Errorf("%w: transfer needs two distinct accounts", repository.ErrInvalid)
	}
	if in.Date.IsZero() {
		in.Date = time.Now()
	}

	outLeg, inLeg, err := s.transactions.CreateTransferPair(ctx, userID, in.Date, in.Amount, in.FromAccountID, in.ToAccountID, in.Description)
	if err != nil {
		return TransferResult{}, err
	}

	return TransferResult{Group: *outLeg.TransferGroup, OutLeg: outLeg, InLeg: inLeg}, nil
}

// ApplyBudgetAllocations upserts the month's limits for every allocation in
// the plan. Allocations are applied in order; the first failure stops the
// batch and is returned with the budgets already written.
func (s *Service) ApplyBudgetAllocations(ctx context.Context, userID uuid.UUID, month time.Time, allocations []BudgetAllocation) ([]models.Budget, error) {
	month = monthStart(month)

	budgets := make([]models.Budget, 0, len(allocations))
	for _, alloc := range allocations {
		if alloc.LimitAmount < 0 {
			return budgets, fmt.Errorf("%w: limit must not be negative", repository.ErrInvalid)
		}

		budget, err := s.budgets.Upsert(ctx, userID, alloc.CategoryID, month, alloc.LimitAmount)
		if err != nil {
			return budgets, err
		}
		budgets = append(budgets, budget)
	}

	return budgets, nil
}

// ApplyCategoryChange performs one category mutation and returns the id of
// the category it affected (the target for a merge).
func (s *Service) ApplyCategoryChange(ctx context.Context, userID uuid.UUID, change CategoryChange) (uuid.UUID, error) {
	switch change.Op {
	case CategoryOpCreate:
		if change.Name == "" {
			return uuid.Nil, fmt.Errorf("%w: category name is required", repository.ErrInvalid)
		}
		category, err := s.categories.Create(ctx, userID, change.Name, change.Type, "", "")
		if err != nil {
			return uuid.Nil, err
		}
		return category.ID, nil

	case CategoryOpRename:
		if change.CategoryID == nil || change.NewName == "" {
			return uuid.Nil, fmt.Errorf("%w: rename needs a category and a new name", repository.ErrInvalid)
		}
		category, err := s.categories.Rename(ctx, userID, *change.CategoryID, change.NewName)
		if err != nil {
			return uuid.Nil, err
		}
		return category.ID, nil

	case CategoryOpMerge:
		if change.CategoryID == nil || change.TargetID == nil {
			return uuid.Nil, fmt.Errorf("%w: merge needs a source and a target category", repository.ErrInvalid)
		}
		if err := s.categories.Merge(ctx, userID, *change.CategoryID, *change.TargetID); err != nil {
			return uuid.Nil, err
		}
		return *change.TargetID, nil

	case CategoryOpDelete:
		if change.CategoryID == nil {
			return uuid.Nil, fmt.Errorf("%w: delete needs a category", repository.ErrInvalid)
		}
		if err := s.categories.Delete(ctx, userID, *change.CategoryID); err != nil {
			return uuid.Nil, err
		}
		return *change.CategoryID, nil
	}

	return uuid.Nil, fmt.Errorf("%w: unknown category operation %q", repository.ErrInvalid, change.Op)
}

func monthStart(t time.Time) time.Time {
	if t.IsZero() {
		t = time.Now()
	}
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
