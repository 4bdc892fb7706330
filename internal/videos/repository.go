// Package videos stores the user's saved video references.
package videos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/PortNumber53/tubeshelf/backend/internal/logging"
	"github.com/PortNumber53/tubeshelf/backend/internal/models"
	"github.com/PortNumber53/tubeshelf/backend/internal/quota"
	"github.com/rs/zerolog"
)

var (
	ErrNotFound = errors.New("video not found")
	ErrInvalid  = errors.New("invalid video")
)

// ListCache holds per-user video lists. Implementations must treat a miss
// and a failure the same way: the repository falls back to the database.
type ListCache interface {
	Get(ctx context.Context, userID string) ([]models.Video, bool, error)
	Set(ctx context.Context, userID string, list []models.Video) error
	Invalidate(ctx context.Context, userID string) error
}

// Repository is scoped by the caller's user id on every operation.
type Repository struct {
	db    *sql.DB
	gate  *quota.Gate
	lists ListCache
	log   zerolog.Logger
}

// NewRepository wires the store. lists may be nil.
func NewRepository(db *sql.DB, gate *quota.Gate, lists ListCache) *Repository {
	return &Repository{db: db, gate: gate, lists: lists, log: logging.Component("videos")}
}

const videoColumns = `id, user_id, title, description, video_url, thumbnail_url, category,
		upload_date, is_favorite, last_played_position`

// List returns the user's videos, newest first.
func (r *Repository) List(ctx context.Context, userID string) ([]models.Video, error) {
	if strings.TrimSpace(userID) == "" {
		return []models.Video{}, nil
	}
	if r.lists != nil {
		if cached, ok, err := r.lists.Get(ctx, userID); err != nil {
			r.log.Warn().Err(err).Str("userId", userID).Msg("list cache read failed")
		} else if ok {
			return cached, nil
		}
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+videoColumns+`
		FROM public.videos
		WHERE user_id = $1
		ORDER BY upload_date DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	out, err := scanVideos(rows)
	if err != nil {
		return nil, err
	}

	if r.lists != nil {
		if err := r.lists.Set(ctx, userID, out); err != nil {
			r.log.Warn().Err(err).Str("userId", userID).Msg("list cache write failed")
		}
	}
	return out, nil
}

// GetByID returns the video only when userID owns it.
func (r *Repository) GetByID(ctx context.Context, userID, id string) (models.Video, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+videoColumns+`
		FROM public.videos
		WHERE id = $1 AND user_id = $2
	`, id, userID)
	v, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Video{}, ErrNotFound
	}
	if err != nil {
		return models.Video{}, fmt.Errorf("get video %s: %w", id, err)
	}
	return v, nil
}

// Latest returns the most recently saved video.
func (r *Repository) Latest(ctx context.Context, userID string) (models.Video, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+videoColumns+`
		FROM public.videos
		WHERE user_id = $1
		ORDER BY upload_date DESC
		LIMIT 1
	`, userID)
	v, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Video{}, ErrNotFound
	}
	if err != nil {
		return models.Video{}, fmt.Errorf("latest video: %w", err)
	}
	return v, nil
}

// Insert saves v through the quota gate. When the gate rejects, the returned
// outcome says so and nothing is written.
func (r *Repository) Insert(ctx context.Context, userID string, v models.Video) (models.Video, quota.Outcome, error) {
	return r.InsertWithNewCategory(ctx, userID, v, "")
}

// InsertWithNewCategory is Insert that also creates newCategory for the user
// and files the video under it. The category is written in the gate's
// transaction, so a rejected upload leaves no category behind.
func (r *Repository) InsertWithNewCategory(ctx context.Context, userID string, v models.Video, newCategory string) (models.Video, quota.Outcome, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(v.Title) == "" || strings.TrimSpace(v.VideoURL) == "" {
		return models.Video{}, quota.Outcome{}, ErrInvalid
	}
	newCategory = strings.TrimSpace(newCategory)
	if strings.EqualFold(newCategory, models.Uncategorized) {
		newCategory = ""
		v.Category = models.Uncategorized
	}
	if newCategory != "" {
		v.Category = newCategory
	}
	if strings.TrimSpace(v.Category) == "" {
		v.Category = models.Uncategorized
	}

	var saved models.Video
	out, err := r.gate.Admit(ctx, userID, func(ctx context.Context, tx *sql.Tx) error {
		if newCategory != "" {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO public.categories (name, user_id)
				VALUES ($1, $2)
				ON CONFLICT (user_id, name) DO NOTHING
			`, newCategory, userID); err != nil {
				return fmt.Errorf("create category %q: %w", newCategory, err)
			}
		}
		row := tx.QueryRowContext(ctx, `
			INSERT INTO public.videos (user_id, title, description, video_url, thumbnail_url, category)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING `+videoColumns, userID, v.Title, v.Description, v.VideoURL, v.ThumbnailURL, v.Category)
		var err error
		saved, err = scanVideo(row)
		if err != nil {
			return fmt.Errorf("insert video: %w", err)
		}
		return nil
	})
	if err != nil || !out.Permitted() {
		return models.Video{}, out, err
	}
	r.invalidate(ctx, userID)
	return saved, out, nil
}

// Update replaces every mutable field of the video identified by (v.ID, userID).
func (r *Repository) Update(ctx context.Context, userID string, v models.Video) (models.Video, error) {
	if strings.TrimSpace(v.Title) == "" || strings.TrimSpace(v.VideoURL) == "" || v.LastPlayedPosition < 0 {
		return models.Video{}, ErrInvalid
	}
	if strings.TrimSpace(v.Category) == "" {
		v.Category = models.Uncategorized
	}
	row := r.db.QueryRowContext(ctx, `
		UPDATE public.videos
		SET title = $3, description = $4, video_url = $5, thumbnail_url = $6,
		    category = $7, is_favorite = $8, last_played_position = $9
		WHERE id = $1 AND user_id = $2
		RETURNING `+videoColumns,
		v.ID, userID, v.Title, v.Description, v.VideoURL, v.ThumbnailURL, v.Category, v.IsFavorite, v.LastPlayedPosition)
	saved, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Video{}, ErrNotFound
	}
	if err != nil {
		return models.Video{}, fmt.Errorf("update video %s: %w", v.ID, err)
	}
	r.invalidate(ctx, userID)
	return saved, nil
}

func (r *Repository) Delete(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM public.videos WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete video %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete video %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	r.invalidate(ctx, userID)
	return nil
}

// Search matches query case-insensitively against title, description and
// category.
func (r *Repository) Search(ctx context.Context, userID, query string) ([]models.Video, error) {
	if strings.TrimSpace(userID) == "" {
		return []models.Video{}, nil
	}
	pattern := "%" + escapeLike(query) + "%"
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+videoColumns+`
		FROM public.videos
		WHERE user_id = $1
		  AND (title ILIKE $2 OR COALESCE(description, '') ILIKE $2 OR category ILIKE $2)
		ORDER BY upload_date DESC
	`, userID, pattern)
	if err != nil {
		return nil, fmt.Errorf("search videos: %w", err)
	}
	return scanVideos(rows)
}

// Invalidate drops the cached list for userID.
func (r *Repository) Invalidate(ctx context.Context, userID string) error {
	if r.lists == nil {
		return nil
	}
	return r.lists.Invalidate(ctx, userID)
}

func (r *Repository) invalidate(ctx context.Context, userID string) {
	if err := r.Invalidate(ctx, userID); err != nil {
		r.log.Warn().Err(err).Str("userId", userID).Msg("list cache invalidate failed")
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanVideo(s scanner) (models.Video, error) {
	var v models.Video
	var desc, thumb sql.NullString
	err := s.Scan(&v.ID, &v.UserID, &v.Title, &desc, &v.VideoURL, &thumb, &v.Category,
		&v.UploadDate, &v.IsFavorite, &v.LastPlayedPosition)
	if err != nil {
		return v, err
	}
	if desc.Valid {
		v.Description = &desc.String
	}
	if thumb.Valid {
		v.ThumbnailURL = &thumb.String
	}
	return v, nil
}

func scanVideos(rows *sql.Rows) ([]models.Video, error) {
	defer rows.Close()
	out := []models.Video{}
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate videos: %w", err)
	}
	return out, nil
}
