package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/dompy/backend/internal/models"
)

type TransactionRepository struct {
	db *pgxpool.Pool
}

// TransactionFilter narrows a transaction listing. Nil fields are ignored.
type TransactionFilter struct {
	DateFrom   *time.Time
	DateTo     *time.Time
	CategoryID *uuid.UUID
	AccountID  *uuid.UUID
	Type       *models.TransactionType
	Search     string
	Limit      int
}

// TransactionWithNames carries a transaction together with its category and
// account display names.
type TransactionWithNames struct {
	Transaction  models.Transaction
	CategoryName string
	AccountName  string
}

// CashflowTotals aggregates income and expense over a period.
type CashflowTotals struct {
	Income  int64
	Expense int64
}

// CategoryAmount is one row of a per-category cashflow breakdown.
type CategoryAmount struct {
	CategoryID   uuid.UUID
	CategoryName string
	Type         models.CategoryType
	Amount       int64
}

const maxTransactionLimit = 100

// NewTransactionRepository creates the transaction repository.
func NewTransactionRepository(db *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create inserts a transaction and adjusts the account balance in the same
// database transaction. The referenced category and account must belong to
// the user; a dangling reference maps to ErrNotFound.
func (r *TransactionRepository) Create(ctx context.Context, userID uuid.UUID, date time.Time, txType models.TransactionType, amount int64, categoryID, accountID uuid.UUID, description string, tags []string, transferGroup *uuid.UUID) (models.Transaction, error) {
	var txn models.Transaction

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return txn, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txn, err = insertTransaction(ctx, tx, userID, date, txType, amount, categoryID, accountID, description, tags, transferGroup)
	if err != nil {
		return txn, err
	}

	if err := tx.Commit(ctx); err != nil {
		return txn, err
	}

	return txn, nil
}

// CreateTransferPair inserts both legs of a transfer atomically: an expense
// leg on the source account and an income leg on the destination, linked by a
// shared transfer group id. The legs use the user's system transfer
// categories, created on first use.
func (r *TransactionRepository) CreateTransferPair(ctx context.Context, userID uuid.UUID, date time.Time, amount int64, fromAccountID, toAccountID uuid.UUID, description string) (models.Transaction, models.Transaction, error) {
	var outLeg, inLeg models.Transaction

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return outLeg, inLeg, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	outCategory, err := ensureSystemCategory(ctx, tx, userID, "Transfer Out", models.CategoryTypeExpense)
	if err != nil {
		return outLeg, inLeg, err
	}
	inCategory, err := ensureSystemCategory(ctx, tx, userID, "Transfer In", models.CategoryTypeIncome)
	if err != nil {
		return outLeg, inLeg, err
	}

	group := uuid.New()

	outLeg, err = insertTransaction(ctx, tx, userID, date, models.TransactionTypeExpense, amount, outCategory, fromAccountID, description, nil, &group)
	if err != nil {
		return outLeg, inLeg, err
	}

	inLeg, err = insertTransaction(ctx, tx, userID, date, models.TransactionTypeIncome, amount, inCategory, toAccountID, description, nil, &group)
	if err != nil {
		return outLeg, inLeg, err
	}

	if err := tx.Commit(ctx); err != nil {
		return outLeg, inLeg, err
	}

	return outLeg, inLeg, nil
}

// List returns the user's transactions matching the filter, newest first.
func (r *TransactionRepository) List(ctx context.Context, userID uuid.UUID, filter TransactionFilter) ([]TransactionWithNames, error) {
	limit := filter.Limit
	if limit <= 0 || limit > maxTransactionLimit {
		limit = maxTransactionLimit
	}

	rows, err := r.db.Query(ctx,
		`SELECT t.id, t.user_id, t.date, t.type, t.amount, t.category_id, t.account_id,
		        t.description, t.tags, t.transfer_group, t.created_at, t.updated_at,
		        c.name, a.name
		 FROM transactions t
		 JOIN categories c ON c.id = t.category_id
		 JOIN accounts a ON a.id = t.account_id
		 WHERE t.user_id = $1
		   AND ($2::date IS NULL OR t.date >= $2)
		   AND ($3::date IS NULL OR t.date <= $3)
		   AND ($4::uuid IS NULL OR t.category_id = $4)
		   AND ($5::uuid IS NULL OR t.account_id = $5)
		   AND ($6::text IS NULL OR t.type = $6)
		   AND ($7 = '' OR t.description ILIKE '%' || $7 || '%')
		 ORDER BY t.date DESC, t.created_at DESC
		 LIMIT $8`,
		userID, filter.DateFrom, filter.DateTo, filter.CategoryID, filter.AccountID, filter.Type, filter.Search, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := make([]TransactionWithNames, 0)
	for rows.Next() {
		var item TransactionWithNames

		err := rows.Scan(
			&item.Transaction.ID, &item.Transaction.UserID, &item.Transaction.Date, &item.Transaction.Type,
			&item.Transaction.Amount, &item.Transaction.CategoryID, &item.Transaction.AccountID,
			&item.Transaction.Description, &item.Transaction.Tags, &item.Transaction.TransferGroup,
			&item.Transaction.CreatedAt, &item.Transaction.UpdatedAt,
			&item.CategoryName, &item.AccountName,
		)
		if err != nil {
			return nil, err
		}

		transactions = append(transactions, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return transactions, nil
}

// Delete removes a transaction and reverts its balance effect.
func (r *TransactionRepository) Delete(ctx context.Context, userID, transactionID uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var txType models.TransactionType
	var amount int64
	var accountID uuid.UUID

	err = tx.QueryRow(ctx,
		`DELETE FROM transactions
		 WHERE id = $1 AND user_id = $2
		 RETURNING type, amount, account_id`,
		transactionID, userID,
	).Scan(&txType, &amount, &accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	if err := adjustBalance(ctx, tx, userID, accountID, -balanceDelta(txType, amount)); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Cashflow aggregates income and expense totals between two dates, system
// transfer categories excluded.
func (r *TransactionRepository) Cashflow(ctx context.Context, userID uuid.UUID, dateFrom, dateTo time.Time) (CashflowTotals, error) {
	var totals CashflowTotals

	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(CASE WHEN t.type = 'income' THEN t.amount ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN t.type = 'expense' THEN t.amount ELSE 0 END), 0)
		 FROM transactions t
		 JOIN categories c ON c.id = t.category_id
		 WHERE t.user_id = $1 AND t.date >= $2 AND t.date <= $3 AND NOT c.is_system`,
		userID, dateFrom, dateTo,
	).Scan(&totals.Income, &totals.Expense)
	if err != nil {
		return totals, err
	}

	return totals, nil
}

// CashflowByCategory breaks cashflow down per category between two dates.
func (r *TransactionRepository) CashflowByCategory(ctx context.Context, userID uuid.UUID, dateFrom, dateTo time.Time) ([]CategoryAmount, error) {
	rows, err := r.db.Query(ctx,
		`SELECT c.id, c.name, c.type, COALESCE(SUM(t.amount), 0)
		 FROM transactions t
		 JOIN categories c ON c.id = t.category_id
		 WHERE t.user_id = $1 AND t.date >= $2 AND t.date <= $3 AND NOT c.is_system
		 GROUP BY c.id, c.name, c.type
		 ORDER BY SUM(t.amount) DESC`,
		userID, dateFrom, dateTo,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	amounts := make([]CategoryAmount, 0)
	for rows.Next() {
		var item CategoryAmount

		err := rows.Scan(&item.CategoryID, &item.CategoryName, &item.Type, &item.Amount)
		if err != nil {
			return nil, err
		}

		amounts = append(amounts, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return amounts, nil
}

func insertTransaction(ctx context.Context, tx pgx.Tx, userID uuid.UUID, date time.Time, txType models.TransactionType, amount int64, categoryID, accountID uuid.UUID, description string, tags []string, transferGroup *uuid.UUID) (models.Transaction, error) {
	var txn models.Transaction

	var ok bool
	err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM categories WHERE id = $1 AND user_id = $3)
		    AND EXISTS (SELECT 1 FROM accounts WHERE id = $2 AND user_id = $3)`,
		categoryID, accountID, userID,
	).Scan(&ok)
	if err != nil {
		return txn, err
	}
	if !ok {
		return txn, ErrNotFound
	}

	if tags == nil {
		tags = []string{}
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO transactions (user_id, date, type, amount, category_id, account_id, description, tags, transfer_group)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, user_id, date, type, amount, category_id, account_id, description, tags, transfer_group, created_at, updated_at`,
		userID, date, txType, amount, categoryID, accountID, description, tags, transferGroup,
	).Scan(&txn.ID, &txn.UserID, &txn.Date, &txn.Type, &txn.Amount, &txn.CategoryID, &txn.AccountID, &txn.Description, &txn.Tags, &txn.TransferGroup, &txn.CreatedAt, &txn.UpdatedAt)
	if err != nil {
		return txn, err
	}

	if err := adjustBalance(ctx, tx, userID, accountID, balanceDelta(txType, amount)); err != nil {
		return txn, err
	}

	return txn, nil
}

func adjustBalance(ctx context.Context, tx pgx.Tx, userID, accountID uuid.UUID, delta int64) error {
	cmd, err := tx.Exec(ctx,
		`UPDATE accounts
		 SET balance = balance + $3, updated_at = NOW()
		 WHERE id = $1 AND user_id = $2`,
		accountID, userID, delta,
	)
	if err != nil {
		return err
	}

	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func balanceDelta(txType models.TransactionType, amount int64) int64 {
	if txType == models.TransactionTypeExpense {
		return -amount
	}
	return amount
}

func ensureSystemCategory(ctx context.Context, tx pgx.Tx, userID uuid.UUID, name string, categoryType models.CategoryType) (uuid.UUID, error) {
	var id uuid.UUID

	err := tx.QueryRow(ctx,
		`SELECT id FROM categories
		 WHERE user_id = $1 AND name = $2 AND type = $3 AND is_system`,
		userID, name, categoryType,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return id, err
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO categories (user_id, name, type, color, icon, is_system)
		 VALUES ($1, $2, $3, '', '', TRUE)
		 RETURNING id`,
		userID, name, categoryType,
	).Scan(&id)
	return id, err
}
