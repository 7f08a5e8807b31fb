package tools

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"example.com/dompy/backend/internal/models"
)

// Proposal payloads. These are what gets stored on a proposal, shown to the
// user for review, optionally revised, and finally decoded by the matching
// apply tool. The *Name fields are display hints only; apply resolves by id.

type TransactionPayload struct {
	Date         string                 `json:"date" validate:"required"`
	Type         models.TransactionType `json:"type" validate:"required,oneof=income expense"`
	Amount       int64                  `json:"amount" validate:"required,gt=0"`
	CategoryID   uuid.UUID              `json:"category_id" validate:"required"`
	CategoryName string                 `json:"category_name,omitempty"`
	AccountID    uuid.UUID              `json:"account_id" validate:"required"`
	AccountName  string                 `json:"account_name,omitempty"`
	Description  string                 `json:"description"`
	Tags         []string               `json:"tags,omitempty"`
}

type TransferPayload struct {
	Date            string    `json:"date" validate:"required"`
	Amount          int64     `json:"amount" validate:"required,gt=0"`
	FromAccountID   uuid.UUID `json:"from_account_id" validate:"required"`
	FromAccountName string    `json:"from_account_name,omitempty"`
	ToAccountID     uuid.UUID `json:"to_account_id" validate:"required"`
	ToAccountName   string    `json:"to_account_name,omitempty"`
	Description     string    `json:"description"`
}

type MandatoryPayment struct {
	Name   string `json:"name"`
	Amount int64  `json:"amount" validate:"gte=0"`
}

type BudgetAllocationPayload struct {
	CategoryID   uuid.UUID `json:"category_id" validate:"required"`
	CategoryName string    `json:"category_name,omitempty"`
	Amount       int64     `json:"amount" validate:"gte=0"`
	HasExisting  bool      `json:"has_existing,omitempty"`
}

type BudgetPlanPayload struct {
	Month             string                    `json:"month" validate:"required"`
	Income            int64                     `json:"income" validate:"gte=0"`
	TargetSavings     int64                     `json:"target_savings" validate:"gte=0"`
	MandatoryPayments []MandatoryPayment        `json:"mandatory_payments,omitempty" validate:"dive"`
	Available         int64                     `json:"available"`
	Allocations       []BudgetAllocationPayload `json:"allocations" validate:"required,min=1,dive"`
}

type CategoryChangePayload struct {
	Action      string              `json:"action" validate:"required,oneof=create rename delete merge"`
	Name        string              `json:"name,omitempty"`
	Type        models.CategoryType `json:"type,omitempty" validate:"omitempty,oneof=income expense"`
	CategoryID  *uuid.UUID          `json:"category_id,omitempty"`
	CurrentName string              `json:"current_name,omitempty"`
	NewName     string              `json:"new_name,omitempty"`
	TargetID    *uuid.UUID          `json:"target_id,omitempty"`
	TargetName  string              `json:"target_name,omitempty"`
}

// ApplyToolName maps a proposal kind to the internal tool that applies it.
func ApplyToolName(kind models.ProposalKind) (string, error) {
	switch kind {
	case models.ProposalKindTransaction:
		return "apply_transaction", nil
	case models.ProposalKindTransfer:
		return "apply_transfer", nil
	case models.ProposalKindBudgetPlan:
		return "apply_budget_plan", nil
	case models.ProposalKindCategoryChange:
		return "apply_category_changes", nil
	}
	return "", fmt.Errorf("no apply tool for proposal kind %q", kind)
}

// ValidatePayload checks that raw decodes into the payload schema of the
// given proposal kind. Used to validate user revisions structurally before
// they are stored.
func (r *Registry) ValidatePayload(kind models.ProposalKind, raw json.RawMessage) error {
	tool, err := ApplyToolName(kind)
	if err != nil {
		return err
	}

	switch kind {
	case models.ProposalKindTransaction:
		var p TransactionPayload
		return r.decodeArgs(tool, raw, &p)
	case models.ProposalKindTransfer:
		var p TransferPayload
		return r.decodeArgs(tool, raw, &p)
	case models.ProposalKindBudgetPlan:
		var p BudgetPlanPayload
		return r.decodeArgs(tool, raw, &p)
	case models.ProposalKindCategoryChange:
		var p CategoryChangePayload
		return r.decodeArgs(tool, raw, &p)
	}
	return fmt.Errorf("unknown proposal kind %q", kind)
}

const dateLayout = "2006-01-02"

const monthLayout = "2006-01"

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return t, nil
}

func parseMonth(s string) (time.Time, error) {
	t, err := time.Parse(monthLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid month %q, want YYYY-MM", s)
	}
	return t, nil
}
