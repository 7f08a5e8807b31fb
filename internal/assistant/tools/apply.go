package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai/jsonschema"

	"example.com/dompy/backend/internal/assistant/llm"
	"example.com/dompy/backend/internal/ledger"
)

// Apply tools execute confirmed proposal payloads against the ledger. They
// are internal: never exposed to the model, only run by the apply flow.

func internalSchema() jsonschema.Definition {
	return jsonschema.Definition{Type: jsonschema.Object, Properties: map[string]jsonschema.Definition{}}
}

func (r *Registry) applyTransactionTool() *Tool {
	return &Tool{
		Definition: llm.ToolDefinition{
			Name:        "apply_transaction",
			Description: "INTERNAL: apply a confirmed transaction proposal.",
			Parameters:  internalSchema(),
		},
		Kind:     KindWrite,
		Internal: true,
		run: func(ctx context.Context, userID uuid.UUID, raw json.RawMessage) (Result, error) {
			var payload TransactionPayload
			if err := r.decodeArgs("apply_transaction", raw, &payload); err != nil {
				return Result{}, err
			}

			date, err := parseDate(payload.Date)
			if err != nil {
				return Result{}, invalidArgs("apply_transaction", err)
			}

			txn, err := r.writer.CreateTransaction(ctx, userID, ledger.NewTransaction{
				Date:        date,
				Type:        payload.Type,
				Amount:      payload.Amount,
				CategoryID:  payload.CategoryID,
				AccountID:   payload.AccountID,
				Description: payload.Description,
				Tags:        payload.Tags,
			})
			if err != nil {
				return Result{}, err
			}

			return Result{
				ResultID: txn.ID.String(),
				Data:     map[string]any{"transaction_id": txn.ID},
			}, nil
		},
	}
}

func (r *Registry) applyTransferTool() *Tool {
	return &Tool{
		Definition: llm.ToolDefinition{
			Name:        "apply_transfer",
			Description: "INTERNAL: apply a confirmed transfer proposal.",
			Parameters:  internalSchema(),
		},
		Kind:     KindWrite,
		Internal: true,
		run: func(ctx context.Context, userID uuid.UUID, raw json.RawMessage) (Result, error) {
			var payload TransferPayload
			if err := r.decodeArgs("apply_transfer", raw, &payload); err != nil {
				return Result{}, err
			}

			date, err := parseDate(payload.Date)
			if err != nil {
				return Result{}, invalidArgs("apply_transfer", err)
			}

			result, err := r.writer.CreateTransfer(ctx, userID, ledger.Transfer{
				Date:          date,
				Amount:        payload.Amount,
				FromAccountID: payload.FromAccountID,
				ToAccountID:   payload.ToAccountID,
				Description:   payload.Description,
			})
			if err != nil {
				return Result{}, err
			}

			return Result{
				ResultID: result.Group.String(),
				Data: map[string]any{
					"transfer_group":     result.Group,
					"out_transaction_id": result.OutLeg.ID,
					"in_transaction_id":  result.InLeg.ID,
				},
			}, nil
		},
	}
}

func (r *Registry) applyBudgetPlanTool() *Tool {
	return &Tool{
		Definition: llm.ToolDefinition{
			Name:        "apply_budget_plan",
			Description: "INTERNAL: apply a confirmed budget plan proposal.",
			Parameters:  internalSchema(),
		},
		Kind:     KindWrite,
		Internal: true,
		run: func(ctx context.Context, userID uuid.UUID, raw json.RawMessage) (Result, error) {
			var payload BudgetPlanPayload
			if err := r.decodeArgs("apply_budget_plan", raw, &payload); err != nil {
				return Result{}, err
			}

			month, err := parseMonth(payload.Month)
			if err != nil {
				return Result{}, invalidArgs("apply_budget_plan", err)
			}

			allocations := make([]ledger.BudgetAllocation, 0, len(payload.Allocations))
			for _, a := range payload.Allocations {
				allocations = append(allocations, ledger.BudgetAllocation{CategoryID: a.CategoryID, LimitAmount: a.Amount})
			}

			budgets, err := r.writer.ApplyBudgetAllocations(ctx, userID, month, allocations)
			if err != nil {
				return Result{}, fmt.Errorf("applied %d of %d allocations: %w", len(budgets), len(allocations), err)
			}

			return Result{
				ResultID: payload.Month,
				Data: map[string]any{
					"month":           payload.Month,
					"budgets_applied": len(budgets),
				},
			}, nil
		},
	}
}

func (r *Registry) applyCategoryChangesTool() *Tool {
	return &Tool{
		Definition: llm.ToolDefinition{
			Name:        "apply_category_changes",
			Description: "INTERNAL: apply a confirmed category change proposal.",
			Parameters:  internalSchema(),
		},
		Kind:     KindWrite,
		Internal: true,
		run: func(ctx context.Context, userID uuid.UUID, raw json.RawMessage) (Result, error) {
			var payload CategoryChangePayload
			if err := r.decodeArgs("apply_category_changes", raw, &payload); err != nil {
				return Result{}, err
			}

			change := ledger.CategoryChange{
				Op:         ledger.CategoryOp(payload.Action),
				Name:       payload.Name,
				Type:       payload.Type,
				CategoryID: payload.CategoryID,
				TargetID:   payload.TargetID,
				NewName:    payload.NewName,
			}

			id, err := r.writer.ApplyCategoryChange(ctx, userID, change)
			if err != nil {
				return Result{}, err
			}

			return Result{
				ResultID: id.String(),
				Data:     map[string]any{"action": payload.Action, "category_id": id},
			}, nil
		},
	}
}
