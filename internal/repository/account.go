package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/dompy/backend/internal/models"
)

type AccountRepository struct {
	db *pgxpool.Pool
}

// NewAccountRepository creates the account repository.
func NewAccountRepository(db *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create inserts an account for the user.
func (r *AccountRepository) Create(ctx context.Context, userID uuid.UUID, name string, accountType models.AccountType, balance int64, currency string) (models.Account, error) {
	var account models.Account

	err := r.db.QueryRow(ctx,
		`INSERT INTO accounts (user_id, name, type, balance, currency)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, user_id, name, type, balance, currency, created_at, updated_at`,
		userID, name, accountType, balance, currency,
	).Scan(&account.ID, &account.UserID, &account.Name, &account.Type, &account.Balance, &account.Currency, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return account, err
	}

	return account, nil
}

// GetByID returns the user's account by id.
func (r *AccountRepository) GetByID(ctx context.Context, userID, accountID uuid.UUID) (models.Account, error) {
	var account models.Account

	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, name, type, balance, currency, created_at, updated_at
		 FROM accounts
		 WHERE id = $1 AND user_id = $2`,
		accountID, userID,
	).Scan(&account.ID, &account.UserID, &account.Name, &account.Type, &account.Balance, &account.Currency, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return account, ErrNotFound
		}
		return account, err
	}

	return account, nil
}

// ListByUser returns the user's accounts ordered by creation time.
func (r *AccountRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Account, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, name, type, balance, currency, created_at, updated_at
		 FROM accounts
		 WHERE user_id = $1
		 ORDER BY created_at`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make([]models.Account, 0)
	for rows.Next() {
		var account models.Account

		err := rows.Scan(&account.ID, &account.UserID, &account.Name, &account.Type, &account.Balance, &account.Currency, &account.CreatedAt, &account.UpdatedAt)
		if err != nil {
			return nil, err
		}

		accounts = append(accounts, account)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return accounts, nil
}

// Delete removes the user's account.
func (r *AccountRepository) Delete(ctx context.Context, userID, accountID uuid.UUID) error {
	cmd, err := r.db.Exec(ctx,
		`DELETE FROM accounts
		 WHERE id = $1 AND user_id = $2`,
		accountID, userID,
	)
	if err != nil {
		return err
	}

	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}
