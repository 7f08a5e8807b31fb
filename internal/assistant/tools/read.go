package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai/jsonschema"

	"example.com/dompy/backend/internal/assistant/llm"
	"example.com/dompy/backend/internal/models"
	"example.com/dompy/backend/internal/repository"
)

// Read tools execute immediately and feed their result back to the model.

type accountView struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Type     string    `json:"type"`
	Balance  int64     `json:"balance"`
	Currency string    `json:"currency"`
}

func (r *Registry) getAccountsTool() *Tool {
	return &Tool{
		Definition: llm.ToolDefinition{
			Name:        "get_accounts",
			Description: "List the user's accounts with their current balances.",
			Parameters: jsonschema.Definition{
				Type:       jsonschema.Object,
				Properties: map[string]jsonschema.Definition{},
			},
		},
		Kind: KindRead,
		run: func(ctx context.Context, userID uuid.UUID, _ json.RawMessage) (Result, error) {
			accounts, err := r.reader.ListAccounts(ctx, userID)
			if err != nil {
				return Result{}, err
			}

			views := make([]accountView, 0, len(accounts))
			for _, a := range accounts {
				views = append(views, accountView{
					ID: a.ID, Name: a.Name, Type: string(a.Type), Balance: a.Balance, Currency: a.Currency,
				})
			}
			return Result{Data: views}, nil
		},
	}
}

type categoryView struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Type string    `json:"type"`
}

func (r *Registry) getCategoriesTool() *Tool {
	type args struct {
		Type string `json:"type" validate:"omitempty,oneof=income expense"`
	}

	return &Tool{
		Definition: llm.ToolDefinition{
			Name:        "get_categories",
			Description: "List the user's categories, optionally filtered by type.",
			Parameters: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"type": {
						Type:        jsonschema.String,
						Enum:        []string{"income", "expense"},
						Description: "Filter by category type.",
					},
				},
			},
		},
		Kind: KindRead,
		run: func(ctx context.Context, userID uuid.UUID, raw json.RawMessage) (Result, error) {
			var in args
			if err := r.decodeArgs("get_categories", raw, &in); err != nil {
				return Result{}, err
			}

			var categoryType *models.CategoryType
			if in.Type != "" {
				t := models.CategoryType(in.Type)
				categoryType = &t
			}

			categories, err := r.reader.ListCategories(ctx, userID, categoryType)
			if err != nil {
				return Result{}, err
			}

			views := make([]categoryView, 0, len(categories))
			for _, c := range categories {
				views = append(views, categoryView{ID: c.ID, Name: c.Name, Type: string(c.Type)})
			}
			return Result{Data: views}, nil
		},
	}
}

type transactionView struct {
	ID          uuid.UUID `json:"id"`
	Date        string    `json:"date"`
	Type        string    `json:"type"`
	Amount      int64     `json:"amount"`
	Category    string    `json:"category"`
	Account     string    `json:"account"`
	Description string    `json:"description"`
}

func (r *Registry) getTransactionsTool() *Tool {
	type args struct {
		DateFrom   string `json:"date_from"`
		DateTo     string `json:"date_to"`
		CategoryID string `json:"category_id" validate:"omitempty,uuid"`
		AccountID  string `json:"account_id" validate:"omitempty,uuid"`
		Type       string `json:"type" validate:"omitempty,oneof=income expense"`
		Search     string `json:"search"`
		Limit      int    `json:"limit" validate:"omitempty,gte=1,lte=100"`
	}

	return &Tool{
		Definition: llm.ToolDefinition{
			Name:        "get_transactions",
			Description: "List the user's transactions, newest first. All filters are optional.",
			Parameters: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"date_from":   {Type: jsonschema.String, Description: "Start date, YYYY-MM-DD."},
					"date_to":     {Type: jsonschema.String, Description: "End date, YYYY-MM-DD."},
					"category_id": {Type: jsonschema.String, Description: "Filter by category id."},
					"account_id":  {Type: jsonschema.String, Description: "Filter by account id."},
					"type":        {Type: jsonschema.String, Enum: []string{"income", "expense"}},
					"search":      {Type: jsonschema.String, Description: "Match against descriptions."},
					"limit":       {Type: jsonschema.Integer, Description: "Max rows, up to 100."},
				},
			},
		},
		Kind: KindRead,
		run: func(ctx context.Context, userID uuid.UUID, raw json.RawMessage) (Result, error) {
			var in args
			if err := r.decodeArgs("get_transactions", raw, &in); err != nil {
				return Result{}, err
			}

			filter := repository.TransactionFilter{Search: in.Search, Limit: in.Limit}

			var err error
			if filter.DateFrom, err = optionalDate(in.DateFrom); err != nil {
				return Result{}, invalidArgs("get_transactions", err)
			}
			if filter.DateTo, err = optionalDate(in.DateTo); err != nil {
				return Result{}, invalidArgs("get_transactions", err)
			}
			if in.CategoryID != "" {
				id, err := uuid.Parse(in.CategoryID)
				if err != nil {
					return Result{}, invalidArgs("get_transactions", err)
				}
				filter.CategoryID = &id
			}
			if in.AccountID != "" {
				id, err := uuid.Parse(in.AccountID)
				if err != nil {
					return Result{}, invalidArgs("get_transactions", err)
				}
				filter.AccountID = &id
			}
			if in.Type != "" {
				t := models.TransactionType(in.Type)
				filter.Type = &t
			}

			transactions, err := r.reader.ListTransactions(ctx, userID, filter)
			if err != nil {
				return Result{}, err
			}

			views := make([]transactionView, 0, len(transactions))
			for _, t := range transactions {
				views = append(views, transactionView{
					ID:          t.Transaction.ID,
					Date:        t.Transaction.Date.Format(dateLayout),
					Type:        string(t.Transaction.Type),
					Amount:      t.Transaction.Amount,
					Category:    t.CategoryName,
					Account:     t.AccountName,
					Description: t.Transaction.Description,
				})
			}
			return Result{Data: views}, nil
		},
	}
}

func (r *Registry) getBudgetOverviewTool() *Tool {
	type args struct {
		Month string `json:"month"`
	}

	return &Tool{
		Definition: llm.ToolDefinition{
			Name:        "get_budget_overview",
			Description: "Get the month's budgets with spent and remaining amounts per category.",
			Parameters: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"month": {Type: jsonschema.String, Description: "Target month, YYYY-MM. Defaults to the current month."},
				},
			},
		},
		Kind: KindRead,
		run: func(ctx context.Context, userID uuid.UUID, raw json.RawMessage) (Result, error) {
			var in args
			if err := r.decodeArgs("get_budget_overview", raw, &in); err != nil {
				return Result{}, err
			}

			month := time.Now()
			if in.Month != "" {
				var err error
				if month, err = parseMonth(in.Month); err != nil {
					return Result{}, invalidArgs("get_budget_overview", err)
				}
			}

			overview, err := r.reader.BudgetOverview(ctx, userID, month)
			if err != nil {
				return Result{}, err
			}
			return Result{Data: overview}, nil
		},
	}
}

func (r *Registry) getCashflowSummaryTool() *Tool {
	type args struct {
		DateFrom string `json:"date_from" validate:"required"`
		DateTo   string `json:"date_to" validate:"required"`
	}

	return &Tool{
		Definition: llm.ToolDefinition{
			Name:        "get_cashflow_summary",
			Description: "Summarize income, expense and net cashflow between two dates, with a per-category breakdown.",
			Parameters: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"date_from": {Type: jsonschema.String, Description: "Start date, YYYY-MM-DD."},
					"date_to":   {Type: jsonschema.String, Description: "End date, YYYY-MM-DD."},
				},
				Required: []string{"date_from", "date_to"},
			},
		},
		Kind: KindRead,
		run: func(ctx context.Context, userID uuid.UUID, raw json.RawMessage) (Result, error) {
			var in args
			if err := r.decodeArgs("get_cashflow_summary", raw, &in); err != nil {
				return Result{}, err
			}

			dateFrom, err := parseDate(in.DateFrom)
			if err != nil {
				return Result{}, invalidArgs("get_cashflow_summary", err)
			}
			dateTo, err := parseDate(in.DateTo)
			if err != nil {
				return Result{}, invalidArgs("get_cashflow_summary", err)
			}

			summary, err := r.reader.CashflowSummary(ctx, userID, dateFrom, dateTo)
			if err != nil {
				return Result{}, err
			}
			return Result{Data: summary}, nil
		},
	}
}

func optionalDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := parseDate(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
