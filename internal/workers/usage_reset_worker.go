package workers

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/PortNumber53/tubeshelf/backend/internal/logging"
	"github.com/PortNumber53/tubeshelf/backend/internal/metrics"
	"github.com/lib/pq"
)

// UsageResetWorker zeroes monthly upload usage for profiles whose reset date
// has passed and moves the reset date to the next monthly anniversary after
// now, however many months were missed.
type UsageResetWorker struct {
	DB       *sql.DB
	Interval time.Duration // How often to look for due profiles (default: 1h)
	Now      func() time.Time
}

// Start runs the reset loop until ctx is cancelled.
func (w *UsageResetWorker) Start(ctx context.Context) {
	if w.Interval <= 0 {
		w.Interval = time.Hour
	}
	log := logging.Component("usage-reset")

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	log.Info().Dur("interval", w.Interval).Msg("started")
	w.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce resets every due profile and returns how many were reset.
func (w *UsageResetWorker) RunOnce(ctx context.Context) int64 {
	log := logging.Component("usage-reset")
	n, err := w.reset(ctx)
	if err != nil {
		log.Error().Err(err).Msg("reset failed")
		return 0
	}
	if n > 0 {
		metrics.UsageResetsTotal.Add(float64(n))
		log.Info().Int64("profiles", n).Msg("monthly usage reset")
	}
	return n
}

func (w *UsageResetWorker) reset(ctx context.Context) (int64, error) {
	now := time.Now().UTC()
	if w.Now != nil {
		now = w.Now().UTC()
	}

	tx, err := w.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin reset tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, uploads_reset_date
		FROM public.profiles
		WHERE uploads_reset_date IS NULL OR uploads_reset_date <= $1
		FOR UPDATE SKIP LOCKED
	`, now)
	if err != nil {
		return 0, fmt.Errorf("select due profiles: %w", err)
	}
	var ids, next []string
	for rows.Next() {
		var id string
		var prev sql.NullTime
		if err := rows.Scan(&id, &prev); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan due profile: %w", err)
		}
		var p *time.Time
		if prev.Valid {
			p = &prev.Time
		}
		ids = append(ids, id)
		next = append(next, NextResetDate(p, now).Format(time.RFC3339Nano))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate due profiles: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE public.profiles AS p
		SET uploads_used = 0,
		    uploads_reset_date = d.next_reset,
		    updated_at = NOW()
		FROM unnest($1::text[], $2::timestamptz[]) AS d(id, next_reset)
		WHERE p.id = d.id
	`, pq.Array(ids), pq.Array(next))
	if err != nil {
		return 0, fmt.Errorf("reset usage: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit reset tx: %w", err)
	}
	return n, nil
}

// NextResetDate returns the first monthly anniversary of prev that falls
// after now. Without a previous date the cycle starts at now. Days past the
// end of a shorter month clamp to its last day.
func NextResetDate(prev *time.Time, now time.Time) time.Time {
	if prev == nil {
		return addMonths(now, 1)
	}
	months := (now.Year()-prev.Year())*12 + int(now.Month()) - int(prev.Month())
	if months < 1 {
		months = 1
	}
	next := addMonths(*prev, months)
	for !next.After(now) {
		months++
		next = addMonths(*prev, months)
	}
	return next
}

func addMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := first.AddDate(0, 1, -1).Day(); d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}
