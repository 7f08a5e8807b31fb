package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"example.com/dompy/backend/internal/models"
)

// systemPrompt builds the per-turn system context: role, tool usage rules,
// today's date and the user's accounts and categories so the model can
// resolve names without extra read rounds.
func (s *Service) systemPrompt(ctx context.Context, userID uuid.UUID) (string, error) {
	accounts, err := s.reader.ListAccounts(ctx, userID)
	if err != nil {
		return "", err
	}
	categories, err := s.reader.ListCategories(ctx, userID, nil)
	if err != nil {
		return "", err
	}

	accountList := "No accounts yet"
	if len(accounts) > 0 {
		parts := make([]string, 0, len(accounts))
		for _, a := range accounts {
			parts = append(parts, fmt.Sprintf("%s (%s)", a.Name, a.Type))
		}
		accountList = strings.Join(parts, ", ")
	}

	var expense, income []string
	for _, c := range categories {
		if c.Type == models.CategoryTypeExpense {
			expense = append(expense, c.Name)
		} else {
			income = append(income, c.Name)
		}
	}
	expenseList := "No categories yet"
	if len(expense) > 0 {
		expenseList = strings.Join(expense, ", ")
	}
	incomeList := "No categories yet"
	if len(income) > 0 {
		incomeList = strings.Join(income, ", ")
	}

	return fmt.Sprintf(`You are Dompy, a helpful personal finance assistant for Indonesian users. You help users manage their transactions, budgets, and accounts.

## Your Capabilities

You have access to tools that let you:
- Read financial data: transactions, budgets, accounts, summaries
- Propose changes: new transactions, transfers, budget plans, category modifications

## Tool Usage Rules

1. Read tools (get_transactions, get_budget_overview, get_cashflow_summary, get_accounts, get_categories):
   - Use freely to answer questions about the user's finances
   - These execute automatically

2. Propose tools (propose_transaction, propose_transfer, propose_budget_plan, propose_category_changes):
   - Use when the user wants to add or change data
   - These create proposals that the user must confirm
   - Never assume confirmation, always wait for the user

3. NEVER mention "apply_" tools, they are internal system tools.

## Conversation Style

- Be concise and helpful
- Respond in the user's language (detect from their message)
- When proposing changes, explain briefly what you're creating
- If unsure about something (amount, category, date), ask
- Format currency as Indonesian Rupiah using "Rp" prefix with dots for thousands (e.g., Rp 50.000)

## Context

Today's date: %s
User's accounts: %s
Expense categories: %s
Income categories: %s`,
		time.Now().Format("2006-01-02"), accountList, expenseList, incomeList), nil
}
