package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/dompy/backend/internal/models"
)

type BudgetRepository struct {
	db *pgxpool.Pool
}

// BudgetWithSpent carries a budget row together with the amount actually
// spent in its month.
type BudgetWithSpent struct {
	Budget       models.Budget
	CategoryName string
	SpentAmount  int64
}

// NewBudgetRepository creates the budget repository.
func NewBudgetRepository(db *pgxpool.Pool) *BudgetRepository {
	return &BudgetRepository{db: db}
}

// Upsert creates or updates the budget limit for a category and month.
func (r *BudgetRepository) Upsert(ctx context.Context, userID, categoryID uuid.UUID, month time.Time, limitAmount int64) (models.Budget, error) {
	var budget models.Budget

	var ok bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM categories WHERE id = $1 AND user_id = $2)`,
		categoryID, userID,
	).Scan(&ok)
	if err != nil {
		return budget, err
	}
	if !ok {
		return budget, ErrNotFound
	}

	err = r.db.QueryRow(ctx,
		`INSERT INTO budgets (user_id, category_id, month, limit_amount)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, category_id, month)
		 DO UPDATE SET limit_amount = EXCLUDED.limit_amount, updated_at = NOW()
		 RETURNING id, user_id, category_id, month, limit_amount, created_at, updated_at`,
		userID, categoryID, month, limitAmount,
	).Scan(&budget.ID, &budget.UserID, &budget.CategoryID, &budget.Month, &budget.LimitAmount, &budget.CreatedAt, &budget.UpdatedAt)
	if err != nil {
		return budget, err
	}

	return budget, nil
}

// ListWithSpent returns the user's budgets for a month together with the
// spend accrued against each category in that month.
func (r *BudgetRepository) ListWithSpent(ctx context.Context, userID uuid.UUID, month time.Time) ([]BudgetWithSpent, error) {
	monthEnd := month.AddDate(0, 1, 0)

	rows, err := r.db.Query(ctx,
		`SELECT b.id, b.user_id, b.category_id, b.month, b.limit_amount, b.created_at, b.updated_at,
		        c.name,
		        COALESCE((
			SELECT SUM(t.amount) FROM transactions t
			WHERE t.user_id = b.user_id AND t.category_id = b.category_id
			  AND t.type = 'expense' AND t.date >= b.month AND t.date < $3
		        ), 0)
		 FROM budgets b
		 JOIN categories c ON c.id = b.category_id
		 WHERE b.user_id = $1 AND b.month = $2
		 ORDER BY c.name`,
		userID, month, monthEnd,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	budgets := make([]BudgetWithSpent, 0)
	for rows.Next() {
		var item BudgetWithSpent

		err := rows.Scan(
			&item.Budget.ID, &item.Budget.UserID, &item.Budget.CategoryID, &item.Budget.Month,
			&item.Budget.LimitAmount, &item.Budget.CreatedAt, &item.Budget.UpdatedAt,
			&item.CategoryName, &item.SpentAmount,
		)
		if err != nil {
			return nil, err
		}

		budgets = append(budgets, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return budgets, nil
}
