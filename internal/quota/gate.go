// Package quota enforces monthly upload limits.
//
// The check, the insert and the usage increment run in one transaction that
// holds the profile row lock, so concurrent uploads for the same user are
// serialized and can never push uploads_used past monthly_upload_limit.
package quota

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/PortNumber53/tubeshelf/backend/internal/logging"
	"github.com/PortNumber53/tubeshelf/backend/internal/metrics"
	"github.com/PortNumber53/tubeshelf/backend/internal/models"
	"github.com/rs/zerolog"
)

var ErrNoProfile = errors.New("no profile for user")

type Kind string

const (
	Permitted    Kind = "permitted"
	LimitReached Kind = "limit_reached"
)

// Outcome is the gate's decision. A LimitReached outcome is a rejection,
// not an error.
type Outcome struct {
	Kind        Kind            `json:"kind"`
	PlanType    models.PlanType `json:"planType"`
	UploadsUsed int             `json:"uploadsUsed"`
	Limit       int             `json:"monthlyUploadLimit"`
}

func (o Outcome) Permitted() bool { return o.Kind == Permitted }

// Check decides without side effects.
func Check(p models.Profile) Outcome {
	o := Outcome{Kind: Permitted, PlanType: p.PlanType, UploadsUsed: p.UploadsUsed, Limit: p.MonthlyUploadLimit}
	if p.UploadsUsed >= p.MonthlyUploadLimit {
		o.Kind = LimitReached
	}
	return o
}

// InsertFunc performs the gated write inside the gate's transaction.
type InsertFunc func(ctx context.Context, tx *sql.Tx) error

type Gate struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewGate(db *sql.DB) *Gate {
	return &Gate{db: db, log: logging.Component("quota")}
}

// Admit locks the user's profile, rejects when the quota is exhausted, and
// otherwise runs insert once and increments uploads_used by one. Nothing is
// written unless every step succeeds.
func (g *Gate) Admit(ctx context.Context, userID string, insert InsertFunc) (Outcome, error) {
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return Outcome{}, fmt.Errorf("begin upload tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var p models.Profile
	var plan string
	err = tx.QueryRowContext(ctx, `
		SELECT id, plan_type, uploads_used, monthly_upload_limit
		FROM public.profiles
		WHERE id = $1
		FOR UPDATE
	`, userID).Scan(&p.ID, &plan, &p.UploadsUsed, &p.MonthlyUploadLimit)
	if errors.Is(err, sql.ErrNoRows) {
		return Outcome{}, ErrNoProfile
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("lock profile %s: %w", userID, err)
	}
	p.PlanType = models.PlanType(plan)

	out := Check(p)
	if !out.Permitted() {
		metrics.UploadOutcomesTotal.WithLabelValues(string(LimitReached), plan).Inc()
		g.log.Info().Str("userId", userID).Str("plan", plan).
			Int("used", p.UploadsUsed).Int("limit", p.MonthlyUploadLimit).Msg("upload rejected: limit reached")
		return out, nil
	}

	if err := insert(ctx, tx); err != nil {
		return Outcome{}, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE public.profiles
		SET uploads_used = uploads_used + 1, updated_at = NOW()
		WHERE id = $1
	`, userID); err != nil {
		return Outcome{}, fmt.Errorf("increment uploads for %s: %w", userID, err)
	}

	if err := tx.Commit(); err != nil {
		return Outcome{}, fmt.Errorf("commit upload tx: %w", err)
	}

	out.UploadsUsed++
	metrics.UploadOutcomesTotal.WithLabelValues(string(Permitted), plan).Inc()
	return out, nil
}
