// Package categories manages user-defined category labels. "Uncategorized"
// always exists implicitly and is never stored.
package categories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/PortNumber53/tubeshelf/backend/internal/logging"
	"github.com/PortNumber53/tubeshelf/backend/internal/models"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

var (
	ErrEmptyName    = errors.New("category name is required")
	ErrExists       = errors.New("category already exists")
	ErrProtected    = errors.New("category cannot be deleted")
	ErrLastCategory = errors.New("cannot delete the last category")
	ErrNotFound     = errors.New("category not found")
)

const uniqueViolation = "23505"

// Invalidator drops cached video lists after videos are reassigned.
type Invalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

type Repository struct {
	db    *sql.DB
	lists Invalidator
	log   zerolog.Logger
}

// NewRepository wires the store. lists may be nil.
func NewRepository(db *sql.DB, lists Invalidator) *Repository {
	return &Repository{db: db, lists: lists, log: logging.Component("categories")}
}

// List returns "Uncategorized" followed by the user's categories in
// alphabetical order.
func (r *Repository) List(ctx context.Context, userID string) ([]string, error) {
	out := []string{models.Uncategorized}
	if strings.TrimSpace(userID) == "" {
		return out, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT name FROM public.categories
		WHERE user_id = $1
		ORDER BY name ASC
	`, userID)
	if err != nil {
		return out, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return []string{models.Uncategorized}, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, name)
	}
	if err := rows.Err(); err != nil {
		return []string{models.Uncategorized}, fmt.Errorf("iterate categories: %w", err)
	}
	return out, nil
}

// Add stores a trimmed, non-empty name. Duplicates are detected by the
// (user_id, name) unique constraint.
func (r *Repository) Add(ctx context.Context, userID, name string) (models.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Category{}, ErrEmptyName
	}
	if strings.EqualFold(name, models.Uncategorized) {
		return models.Category{}, ErrExists
	}

	var c models.Category
	var desc sql.NullString
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO public.categories (name, user_id)
		VALUES ($1, $2)
		RETURNING id, name, user_id, description, created_at
	`, name, userID).Scan(&c.ID, &c.Name, &c.UserID, &desc, &c.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return models.Category{}, ErrExists
		}
		return models.Category{}, fmt.Errorf("add category: %w", err)
	}
	if desc.Valid {
		c.Description = &desc.String
	}
	return c, nil
}

// Delete removes a user category and moves its videos to "Uncategorized" in
// the same transaction. It returns the number of reassigned videos.
func (r *Repository) Delete(ctx context.Context, userID, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if strings.EqualFold(name, models.Uncategorized) {
		return 0, ErrProtected
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin category delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT name FROM public.categories
		WHERE user_id = $1
		FOR UPDATE
	`, userID)
	if err != nil {
		return 0, fmt.Errorf("lock categories: %w", err)
	}
	count, found := 0, false
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan category: %w", err)
		}
		count++
		if n == name {
			found = true
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate categories: %w", err)
	}
	if !found {
		return 0, ErrNotFound
	}
	if count <= 1 {
		return 0, ErrLastCategory
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM public.categories WHERE user_id = $1 AND name = $2`, userID, name); err != nil {
		return 0, fmt.Errorf("delete category: %w", err)
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE public.videos SET category = $3
		WHERE user_id = $1 AND category = $2
	`, userID, name, models.Uncategorized)
	if err != nil {
		return 0, fmt.Errorf("reassign videos: %w", err)
	}
	moved, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit category delete: %w", err)
	}

	if moved > 0 && r.lists != nil {
		if err := r.lists.Invalidate(ctx, userID); err != nil {
			r.log.Warn().Err(err).Str("userId", userID).Msg("list cache invalidate failed")
		}
	}
	return moved, nil
}
