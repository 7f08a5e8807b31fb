package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai/jsonschema"

	"example.com/dompy/backend/internal/assistant/llm"
	"example.com/dompy/backend/internal/models"
)

// Propose tools draft ledger mutations as proposals. They read the ledger to
// resolve hints but never write to it; the mutation happens only when the
// user confirms and the matching apply tool runs.

func (r *Registry) proposeTransactionTool() *Tool {
	type args struct {
		SourceText      string  `json:"source_text" validate:"required"`
		Amount          float64 `json:"amount" validate:"omitempty,gt=0"`
		TransactionType string  `json:"transaction_type" validate:"omitempty,oneof=income expense"`
		CategoryHint    string  `json:"category_hint"`
		AccountHint     string  `json:"account_hint"`
		Description     string  `json:"description"`
		Date            string  `json:"date"`
	}

	return &Tool{
		Definition: llm.ToolDefinition{
			Name: "propose_transaction",
			Description: "Draft a transaction from the user's message for them to confirm. " +
				"Use this whenever the user wants to record an income or expense. " +
				"Extract amount, date, category, account and description from the text.",
			Parameters: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"source_text":      {Type: jsonschema.String, Description: "The user's original message describing the transaction."},
					"amount":           {Type: jsonschema.Number, Description: "Amount in rupiah if you can extract it."},
					"transaction_type": {Type: jsonschema.String, Enum: []string{"income", "expense"}, Description: "Defaults to expense."},
					"category_hint":    {Type: jsonschema.String, Description: "Category name or keyword from the message."},
					"account_hint":     {Type: jsonschema.String, Description: "Account name or keyword from the message."},
					"description":      {Type: jsonschema.String},
					"date":             {Type: jsonschema.String, Description: "Transaction date, YYYY-MM-DD. Defaults to today."},
				},
				Required: []string{"source_text"},
			},
		},
		Kind: KindWrite,
		run: func(ctx context.Context, userID uuid.UUID, raw json.RawMessage) (Result, error) {
			var in args
			if err := r.decodeArgs("propose_transaction", raw, &in); err != nil {
				return Result{}, err
			}

			amount := int64(math.Round(in.Amount))
			if amount <= 0 {
				var ok bool
				if amount, ok = ParseAmount(in.SourceText); !ok {
					return Result{}, fmt.Errorf("could not determine the amount, ask the user")
				}
			}

			txType := models.TransactionTypeExpense
			if in.TransactionType == "income" {
				txType = models.TransactionTypeIncome
			}

			date := in.Date
			if date == "" {
				date = time.Now().Format(dateLayout)
			} else if _, err := parseDate(date); err != nil {
				return Result{}, invalidArgs("propose_transaction", err)
			}

			categoryType := models.CategoryType(txType)
			categories, err := r.reader.ListCategories(ctx, userID, &categoryType)
			if err != nil {
				return Result{}, err
			}
			if len(categories) == 0 {
				return Result{}, fmt.Errorf("no %s categories exist yet", txType)
			}
			category := pickCategory(in.CategoryHint, categories)

			accounts, err := r.reader.ListAccounts(ctx, userID)
			if err != nil {
				return Result{}, err
			}
			if len(accounts) == 0 {
				return Result{}, fmt.Errorf("no accounts exist yet")
			}
			account := pickAccount(in.AccountHint, accounts)

			description := in.Description
			if description == "" {
				description = truncate(in.SourceText, 200)
			}

			payload := TransactionPayload{
				Date:         date,
				Type:         txType,
				Amount:       amount,
				CategoryID:   category.ID,
				CategoryName: category.Name,
				AccountID:    account.ID,
				AccountName:  account.Name,
				Description:  description,
				Tags:         []string{},
			}

			return draftResult(models.ProposalKindTransaction, payload, map[string]any{
				"message": "Transaction proposal created",
			})
		},
	}
}

func (r *Registry) proposeTransferTool() *Tool {
	type args struct {
		SourceText      string  `json:"source_text" validate:"required"`
		Amount          float64 `json:"amount" validate:"omitempty,gt=0"`
		FromAccountHint string  `json:"from_account_hint"`
		ToAccountHint   string  `json:"to_account_hint"`
		Description     string  `json:"description"`
		Date            string  `json:"date"`
	}

	return &Tool{
		Definition: llm.ToolDefinition{
			Name: "propose_transfer",
			Description: "Draft a transfer between two of the user's accounts for them to confirm. " +
				"Use this when the user moves money between their own accounts, like topping up an e-wallet.",
			Parameters: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"source_text":       {Type: jsonschema.String, Description: "The user's original message describing the transfer."},
					"amount":            {Type: jsonschema.Number, Description: "Amount in rupiah if you can extract it."},
					"from_account_hint": {Type: jsonschema.String, Description: "Source account name or keyword."},
					"to_account_hint":   {Type: jsonschema.String, Description: "Destination account name or keyword."},
					"description":       {Type: jsonschema.String},
					"date":              {Type: jsonschema.String, Description: "Transfer date, YYYY-MM-DD. Defaults to today."},
				},
				Required: []string{"source_text"},
			},
		},
		Kind: KindWrite,
		run: func(ctx context.Context, userID uuid.UUID, raw json.RawMessage) (Result, error) {
			var in args
			if err := r.decodeArgs("propose_transfer", raw, &in); err != nil {
				return Result{}, err
			}

			amount := int64(math.Round(in.Amount))
			if amount <= 0 {
				var ok bool
				if amount, ok = ParseAmount(in.SourceText); !ok {
					return Result{}, fmt.Errorf("could not determine the amount, ask the user")
				}
			}

			date := in.Date
			if date == "" {
				date = time.Now().Format(dateLayout)
			} else if _, err := parseDate(date); err != nil {
				return Result{}, invalidArgs("propose_transfer", err)
			}

			accounts, err := r.reader.ListAccounts(ctx, userID)
			if err != nil {
				return Result{}, err
			}
			if len(accounts) < 2 {
				return Result{}, fmt.Errorf("a transfer needs at least two accounts")
			}

			names := make([]string, len(accounts))
			for i, a := range accounts {
				names[i] = a.Name
			}

			fromIdx := matchName(in.FromAccountHint, names)
			if fromIdx < 0 {
				return Result{}, fmt.Errorf("could not match source account %q, ask the user", in.FromAccountHint)
			}
			toIdx := matchName(in.ToAccountHint, names)
			if toIdx < 0 {
				return Result{}, fmt.Errorf("could not match destination account %q, ask the user", in.ToAccountHint)
			}
			if fromIdx == toIdx {
				return Result{}, fmt.Errorf("source and destination accounts are the same")
			}

			from, to := accounts[fromIdx], accounts[toIdx]

			description := in.Description
			if description == "" {
				description = fmt.Sprintf("Transfer %s to %s", from.Name, to.Name)
			}

			payload := TransferPayload{
				Date:            date,
				Amount:          amount,
				FromAccountID:   from.ID,
				FromAccountName: from.Name,
				ToAccountID:     to.ID,
				ToAccountName:   to.Name,
				Description:     description,
			}

			return draftResult(models.ProposalKindTransfer, payload, map[string]any{
				"message": "Transfer proposal created",
			})
		},
	}
}

func (r *Registry) proposeBudgetPlanTool() *Tool {
	type payment struct {
		Name   string  `json:"name"`
		Amount float64 `json:"amount" validate:"gte=0"`
	}
	type args struct {
		Income            float64   `json:"income" validate:"required,gt=0"`
		TargetSavings     float64   `json:"target_savings" validate:"gte=0"`
		MandatoryPayments []payment `json:"mandatory_payments" validate:"dive"`
		Preferences       string    `json:"preferences"`
		Month             string    `json:"month"`
	}

	return &Tool{
		Definition: llm.ToolDefinition{
			Name: "propose_budget_plan",
			Description: "Draft a monthly budget plan from the user's income and goals for them to confirm. " +
				"Use this when the user wants to set up or adjust their budget.",
			Parameters: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"income":         {Type: jsonschema.Number, Description: "Monthly income in rupiah."},
					"target_savings": {Type: jsonschema.Number, Description: "Desired monthly savings in rupiah."},
					"mandatory_payments": {
						Type:        jsonschema.Array,
						Description: "Fixed payments like rent, loans, insurance.",
						Items: &jsonschema.Definition{
							Type: jsonschema.Object,
							Properties: map[string]jsonschema.Definition{
								"name":   {Type: jsonschema.String},
								"amount": {Type: jsonschema.Number},
							},
						},
					},
					"preferences": {Type: jsonschema.String, Description: "User preferences or constraints."},
					"month":       {Type: jsonschema.String, Description: "Target month, YYYY-MM. Defaults to the current month."},
				},
				Required: []string{"income"},
			},
		},
		Kind: KindWrite,
		run: func(ctx context.Context, userID uuid.UUID, raw json.RawMessage) (Result, error) {
			var in args
			if err := r.decodeArgs("propose_budget_plan", raw, &in); err != nil {
				return Result{}, err
			}

			monthStr := in.Month
			if monthStr == "" {
				monthStr = time.Now().Format(monthLayout)
			}
			month, err := parseMonth(monthStr)
			if err != nil {
				return Result{}, invalidArgs("propose_budget_plan", err)
			}

			income := int64(math.Round(in.Income))
			savings := int64(math.Round(in.TargetSavings))

			payments := make([]MandatoryPayment, 0, len(in.MandatoryPayments))
			var mandatoryTotal int64
			for _, p := range in.MandatoryPayments {
				amount := int64(math.Round(p.Amount))
				mandatoryTotal += amount
				payments = append(payments, MandatoryPayment{Name: p.Name, Amount: amount})
			}

			available := income - savings - mandatoryTotal
			if available <= 0 {
				return Result{}, fmt.Errorf("nothing left to budget after savings (%d) and mandatory payments (%d)", savings, mandatoryTotal)
			}

			expense := models.CategoryTypeExpense
			categories, err := r.reader.ListCategories(ctx, userID, &expense)
			if err != nil {
				return Result{}, err
			}
			if len(categories) == 0 {
				return Result{}, fmt.Errorf("no expense categories exist yet, create categories first")
			}

			overview, err := r.reader.BudgetOverview(ctx, userID, month)
			if err != nil {
				return Result{}, err
			}
			existing := make(map[uuid.UUID]int64, len(overview.Lines))
			for _, line := range overview.Lines {
				existing[line.CategoryID] = line.LimitAmount
			}

			perCategory := available / int64(len(categories))

			allocations := make([]BudgetAllocationPayload, 0, len(categories))
			for _, c := range categories {
				alloc := BudgetAllocationPayload{CategoryID: c.ID, CategoryName: c.Name, Amount: perCategory}
				if limit, ok := existing[c.ID]; ok {
					alloc.Amount = limit
					alloc.HasExisting = true
				}
				allocations = append(allocations, alloc)
			}
			sort.SliceStable(allocations, func(i, j int) bool {
				return allocations[i].Amount > allocations[j].Amount
			})

			payload := BudgetPlanPayload{
				Month:             monthStr,
				Income:            income,
				TargetSavings:     savings,
				MandatoryPayments: payments,
				Available:         available,
				Allocations:       allocations,
			}

			return draftResult(models.ProposalKindBudgetPlan, payload, map[string]any{
				"message": "Budget plan proposal created",
				"summary": map[string]any{
					"income":     income,
					"savings":    savings,
					"mandatory":  mandatoryTotal,
					"available":  available,
					"categories": len(allocations),
				},
			})
		},
	}
}

func (r *Registry) proposeCategoryChangesTool() *Tool {
	type change struct {
		Action       string `json:"action" validate:"required,oneof=create rename delete merge"`
		CategoryID   string `json:"category_id" validate:"omitempty,uuid"`
		CategoryName string `json:"category_name"`
		NewName      string `json:"new_name"`
		Type         string `json:"type" validate:"omitempty,oneof=income expense"`
		MergeIntoID  string `json:"merge_into_id" validate:"omitempty,uuid"`
	}
	type args struct {
		Changes []change `json:"changes" validate:"required,min=1,dive"`
	}

	return &Tool{
		Definition: llm.ToolDefinition{
			Name: "propose_category_changes",
			Description: "Draft category changes for the user to confirm. " +
				"Use this when the user wants to create, rename, delete or merge categories.",
			Parameters: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"changes": {
						Type: jsonschema.Array,
						Items: &jsonschema.Definition{
							Type: jsonschema.Object,
							Properties: map[string]jsonschema.Definition{
								"action":        {Type: jsonschema.String, Enum: []string{"create", "rename", "delete", "merge"}},
								"category_id":   {Type: jsonschema.String, Description: "Category to modify, for rename, delete and merge."},
								"category_name": {Type: jsonschema.String, Description: "New category name, for create."},
								"new_name":      {Type: jsonschema.String, Description: "New name, for rename."},
								"type":          {Type: jsonschema.String, Enum: []string{"income", "expense"}, Description: "Category type, for create."},
								"merge_into_id": {Type: jsonschema.String, Description: "Target category, for merge."},
							},
							Required: []string{"action"},
						},
					},
				},
				Required: []string{"changes"},
			},
		},
		Kind: KindWrite,
		run: func(ctx context.Context, userID uuid.UUID, raw json.RawMessage) (Result, error) {
			var in args
			if err := r.decodeArgs("propose_category_changes", raw, &in); err != nil {
				return Result{}, err
			}

			categories, err := r.reader.ListCategories(ctx, userID, nil)
			if err != nil {
				return Result{}, err
			}
			byID := make(map[uuid.UUID]models.Category, len(categories))
			byName := make(map[string]models.Category, len(categories))
			for _, c := range categories {
				byID[c.ID] = c
				byName[strings.ToLower(c.Name)] = c
			}

			var drafts []ProposalDraft
			var warnings []string

			for _, ch := range in.Changes {
				payload, problem := buildCategoryChange(ch.Action, ch.CategoryID, ch.CategoryName, ch.NewName, ch.Type, ch.MergeIntoID, byID, byName)
				if problem != "" {
					warnings = append(warnings, problem)
					continue
				}

				encoded, err := json.Marshal(payload)
				if err != nil {
					return Result{}, err
				}
				drafts = append(drafts, ProposalDraft{Kind: models.ProposalKindCategoryChange, Payload: encoded})
			}

			if len(drafts) == 0 {
				return Result{}, fmt.Errorf("no valid changes: %s", strings.Join(warnings, "; "))
			}

			data := map[string]any{
				"message": fmt.Sprintf("Created %d category change proposal(s)", len(drafts)),
			}
			if len(warnings) > 0 {
				data["warnings"] = warnings
			}

			return Result{Data: data, Drafts: drafts}, nil
		},
	}
}

func buildCategoryChange(action, categoryID, categoryName, newName, categoryType, mergeIntoID string, byID map[uuid.UUID]models.Category, byName map[string]models.Category) (CategoryChangePayload, string) {
	switch action {
	case "create":
		if categoryName == "" {
			return CategoryChangePayload{}, "create needs category_name"
		}
		if _, exists := byName[strings.ToLower(categoryName)]; exists {
			return CategoryChangePayload{}, fmt.Sprintf("category %q already exists", categoryName)
		}
		t := models.CategoryTypeExpense
		if categoryType == "income" {
			t = models.CategoryTypeIncome
		}
		return CategoryChangePayload{Action: "create", Name: categoryName, Type: t}, ""

	case "rename":
		cat, problem := lookupCategory(categoryID, byID, "rename")
		if problem != "" {
			return CategoryChangePayload{}, problem
		}
		if newName == "" {
			return CategoryChangePayload{}, "rename needs new_name"
		}
		return CategoryChangePayload{Action: "rename", CategoryID: &cat.ID, CurrentName: cat.Name, NewName: newName}, ""

	case "delete":
		cat, problem := lookupCategory(categoryID, byID, "delete")
		if problem != "" {
			return CategoryChangePayload{}, problem
		}
		return CategoryChangePayload{Action: "delete", CategoryID: &cat.ID, CurrentName: cat.Name}, ""

	case "merge":
		source, problem := lookupCategory(categoryID, byID, "merge")
		if problem != "" {
			return CategoryChangePayload{}, problem
		}
		target, problem := lookupCategory(mergeIntoID, byID, "merge")
		if problem != "" {
			return CategoryChangePayload{}, problem
		}
		if source.Type != target.Type {
			return CategoryChangePayload{}, fmt.Sprintf("cannot merge %s category into %s category", source.Type, target.Type)
		}
		return CategoryChangePayload{Action: "merge", CategoryID: &source.ID, CurrentName: source.Name, TargetID: &target.ID, TargetName: target.Name}, ""
	}

	return CategoryChangePayload{}, fmt.Sprintf("unknown action %q", action)
}

func lookupCategory(id string, byID map[uuid.UUID]models.Category, action string) (models.Category, string) {
	if id == "" {
		return models.Category{}, action + " needs category_id"
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return models.Category{}, fmt.Sprintf("invalid category id %q", id)
	}
	cat, ok := byID[parsed]
	if !ok {
		return models.Category{}, fmt.Sprintf("category %s not found", id)
	}
	return cat, ""
}

func pickCategory(hint string, categories []models.Category) models.Category {
	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = c.Name
	}
	if idx := matchName(hint, names); idx >= 0 {
		return categories[idx]
	}
	return categories[0]
}

func pickAccount(hint string, accounts []models.Account) models.Account {
	names := make([]string, len(accounts))
	for i, a := range accounts {
		names[i] = a.Name
	}
	if idx := matchName(hint, names); idx >= 0 {
		return accounts[idx]
	}
	return accounts[0]
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

func draftResult(kind models.ProposalKind, payload any, data map[string]any) (Result, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return Result{}, err
	}
	return Result{Data: data, Drafts: []ProposalDraft{{Kind: kind, Payload: encoded}}}, nil
}
