package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"example.com/dompy/backend/internal/assistant/llm"
	"example.com/dompy/backend/internal/ledger"
	"example.com/dompy/backend/internal/models"
	"example.com/dompy/backend/internal/repository"
)

// Reader is the ledger surface available to read and propose tools.
type Reader interface {
	ListAccounts(ctx context.Context, userID uuid.UUID) ([]models.Account, error)
	ListCategories(ctx context.Context, userID uuid.UUID, categoryType *models.CategoryType) ([]models.Category, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, filter repository.TransactionFilter) ([]repository.TransactionWithNames, error)
	BudgetOverview(ctx context.Context, userID uuid.UUID, month time.Time) (ledger.BudgetOverview, error)
	CashflowSummary(ctx context.Context, userID uuid.UUID, dateFrom, dateTo time.Time) (ledger.CashflowSummary, error)
}

// Writer is the mutation surface. Only the internal apply tools hold it.
type Writer interface {
	CreateTransaction(ctx context.Context, userID uuid.UUID, in ledger.NewTransaction) (models.Transaction, error)
	CreateTransfer(ctx context.Context, userID uuid.UUID, in ledger.Transfer) (ledger.TransferResult, error)
	ApplyBudgetAllocations(ctx context.Context, userID uuid.UUID, month time.Time, allocations []ledger.BudgetAllocation) ([]models.Budget, error)
	ApplyCategoryChange(ctx context.Context, userID uuid.UUID, change ledger.CategoryChange) (uuid.UUID, error)
}

// Tool is one registered tool. Internal tools are hidden from the model and
// reachable only through the apply flow.
type Tool struct {
	Definition llm.ToolDefinition
	Kind       Kind
	Internal   bool

	run func(ctx context.Context, userID uuid.UUID, args json.RawMessage) (Result, error)
}

type Registry struct {
	reader   Reader
	writer   Writer
	validate *validator.Validate

	tools map[string]*Tool
	order []string
}

// NewRegistry builds the full tool set over the given ledger surfaces.
func NewRegistry(reader Reader, writer Writer, validate *validator.Validate) *Registry {
	r := &Registry{
		reader:   reader,
		writer:   writer,
		validate: validate,
		tools:    make(map[string]*Tool),
	}

	r.add(r.getAccountsTool())
	r.add(r.getCategoriesTool())
	r.add(r.getTransactionsTool())
	r.add(r.getBudgetOverviewTool())
	r.add(r.getCashflowSummaryTool())

	r.add(r.proposeTransactionTool())
	r.add(r.proposeTransferTool())
	r.add(r.proposeBudgetPlanTool())
	r.add(r.proposeCategoryChangesTool())

	r.add(r.applyTransactionTool())
	r.add(r.applyTransferTool())
	r.add(r.applyBudgetPlanTool())
	r.add(r.applyCategoryChangesTool())

	return r
}

func (r *Registry) add(t *Tool) {
	r.tools[t.Definition.Name] = t
	r.order = append(r.order, t.Definition.Name)
}

// Get returns a registered tool by name.
func (r *Registry) Get(name string) (*Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Definitions returns the model-visible tool definitions in registration
// order. Internal apply tools are excluded.
func (r *Registry) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		if t.Internal {
			continue
		}
		defs = append(defs, t.Definition)
	}
	return defs
}

// Execute runs a tool by name. Unknown names map to ErrUnknownTool, bad
// arguments to InvalidArgumentsError and handler failures to ExecutionError,
// so the caller can report them back to the model instead of failing the
// turn.
func (r *Registry) Execute(ctx context.Context, userID uuid.UUID, name string, args json.RawMessage) (Result, error) {
	t, ok := r.tools[name]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	result, err := t.run(ctx, userID, args)
	if err != nil {
		var invalid *InvalidArgumentsError
		if errors.As(err, &invalid) {
			return Result{}, err
		}
		return Result{}, &ExecutionError{Tool: name, Err: err}
	}
	return result, nil
}

// decodeArgs unmarshals and validates tool arguments into v.
func (r *Registry) decodeArgs(tool string, raw json.RawMessage, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &InvalidArgumentsError{Tool: tool, Err: err}
	}
	if err := r.validate.Struct(v); err != nil {
		return &InvalidArgumentsError{Tool: tool, Err: err}
	}
	return nil
}

func invalidArgs(tool string, err error) error {
	return &InvalidArgumentsError{Tool: tool, Err: err}
}
