package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/dompy/backend/internal/models"
)

type CategoryRepository struct {
	db *pgxpool.Pool
}

// NewCategoryRepository creates the category repository.
func NewCategoryRepository(db *pgxpool.Pool) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// Create inserts a category. Duplicate (user, name, type) maps to ErrConflict.
func (r *CategoryRepository) Create(ctx context.Context, userID uuid.UUID, name string, categoryType models.CategoryType, color, icon string) (models.Category, error) {
	var category models.Category

	err := r.db.QueryRow(ctx,
		`INSERT INTO categories (user_id, name, type, color, icon)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, user_id, name, type, color, icon, is_system, created_at`,
		userID, name, categoryType, color, icon,
	).Scan(&category.ID, &category.UserID, &category.Name, &category.Type, &category.Color, &category.Icon, &category.IsSystem, &category.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return category, ErrConflict
		}
		return category, err
	}

	return category, nil
}

// GetByID returns the user's category by id.
func (r *CategoryRepository) GetByID(ctx context.Context, userID, categoryID uuid.UUID) (models.Category, error) {
	var category models.Category

	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, name, type, color, icon, is_system, created_at
		 FROM categories
		 WHERE id = $1 AND user_id = $2`,
		categoryID, userID,
	).Scan(&category.ID, &category.UserID, &category.Name, &category.Type, &category.Color, &category.Icon, &category.IsSystem, &category.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return category, ErrNotFound
		}
		return category, err
	}

	return category, nil
}

// ListByUser returns the user's categories, optionally filtered by type.
// System categories (transfer legs) are excluded unless includeSystem is set.
func (r *CategoryRepository) ListByUser(ctx context.Context, userID uuid.UUID, categoryType *models.CategoryType, includeSystem bool) ([]models.Category, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, name, type, color, icon, is_system, created_at
		 FROM categories
		 WHERE user_id = $1
		   AND ($2::text IS NULL OR type = $2)
		   AND ($3 OR NOT is_system)
		 ORDER BY type, name`,
		userID, categoryType, includeSystem,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]models.Category, 0)
	for rows.Next() {
		var category models.Category

		err := rows.Scan(&category.ID, &category.UserID, &category.Name, &category.Type, &category.Color, &category.Icon, &category.IsSystem, &category.CreatedAt)
		if err != nil {
			return nil, err
		}

		categories = append(categories, category)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return categories, nil
}

// Rename updates a category name.
func (r *CategoryRepository) Rename(ctx context.Context, userID, categoryID uuid.UUID, newName string) (models.Category, error) {
	var category models.Category

	err := r.db.QueryRow(ctx,
		`UPDATE categories
		 SET name = $3
		 WHERE id = $1 AND user_id = $2 AND NOT is_system
		 RETURNING id, user_id, name, type, color, icon, is_system, created_at`,
		categoryID, userID, newName,
	).Scan(&category.ID, &category.UserID, &category.Name, &category.Type, &category.Color, &category.Icon, &category.IsSystem, &category.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return category, ErrNotFound
		}
		return category, err
	}

	return category, nil
}

// Delete removes a non-system category. Categories still referenced by
// transactions map to ErrConflict via the FK restriction.
func (r *CategoryRepository) Delete(ctx context.Context, userID, categoryID uuid.UUID) error {
	cmd, err := r.db.Exec(ctx,
		`DELETE FROM categories
		 WHERE id = $1 AND user_id = $2 AND NOT is_system`,
		categoryID, userID,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrConflict
		}
		return err
	}

	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// Merge reassigns all transactions and budgets from the source category to
// the target and deletes the source, atomically.
func (r *CategoryRepository) Merge(ctx context.Context, userID, sourceID, targetID uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var sameType bool
	err = tx.QueryRow(ctx,
		`SELECT s.type = t.type
		 FROM categories s, categories t
		 WHERE s.id = $1 AND s.user_id = $3 AND NOT s.is_system
		   AND t.id = $2 AND t.user_id = $3 AND NOT t.is_system`,
		sourceID, targetID, userID,
	).Scan(&sameType)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if !sameType {
		return ErrInvalid
	}

	_, err = tx.Exec(ctx,
		`UPDATE transactions
		 SET category_id = $2
		 WHERE category_id = $1 AND user_id = $3`,
		sourceID, targetID, userID,
	)
	if err != nil {
		return err
	}

	// A budget may already exist for the target in the same month; keep the
	// target's row and drop the source's.
	_, err = tx.Exec(ctx,
		`DELETE FROM budgets b
		 WHERE b.category_id = $1 AND b.user_id = $3
		   AND EXISTS (
			SELECT 1 FROM budgets t
			WHERE t.category_id = $2 AND t.user_id = $3 AND t.month = b.month
		 )`,
		sourceID, targetID, userID,
	)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`UPDATE budgets
		 SET category_id = $2
		 WHERE category_id = $1 AND user_id = $3`,
		sourceID, targetID, userID,
	)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`DELETE FROM categories
		 WHERE id = $1 AND user_id = $2`,
		sourceID, userID,
	)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}
