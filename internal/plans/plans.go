// Package plans reads the plan tier catalog: upload limits and the Stripe
// price bound to each paid tier.
package plans

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/PortNumber53/tubeshelf/backend/internal/models"
)

var ErrUnknownTier = errors.New("unknown plan tier")

type Catalog struct {
	db *sql.DB
}

func NewCatalog(db *sql.DB) *Catalog {
	return &Catalog{db: db}
}

// List returns all tiers, cheapest first.
func (c *Catalog) List(ctx context.Context) ([]models.PlanTier, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, name, monthly_upload_limit, price_cents, currency, stripe_price_id
		FROM public.plan_tiers
		ORDER BY price_cents ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query plan tiers: %w", err)
	}
	defer rows.Close()

	var out []models.PlanTier
	for rows.Next() {
		t, err := scanTier(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate plan tiers: %w", err)
	}
	return out, nil
}

func (c *Catalog) Get(ctx context.Context, id models.PlanType) (models.PlanTier, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, name, monthly_upload_limit, price_cents, currency, stripe_price_id
		FROM public.plan_tiers
		WHERE id = $1
	`, string(id))
	t, err := scanTier(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PlanTier{}, ErrUnknownTier
	}
	return t, err
}

// TierForPrice maps a Stripe price id back to its tier.
func (c *Catalog) TierForPrice(ctx context.Context, priceID string) (models.PlanTier, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, name, monthly_upload_limit, price_cents, currency, stripe_price_id
		FROM public.plan_tiers
		WHERE stripe_price_id = $1
	`, priceID)
	t, err := scanTier(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PlanTier{}, ErrUnknownTier
	}
	return t, err
}

// SetPrice binds a Stripe price id to a paid tier.
func (c *Catalog) SetPrice(ctx context.Context, id models.PlanType, priceID string) error {
	res, err := c.db.ExecContext(ctx, `
		UPDATE public.plan_tiers SET stripe_price_id = NULLIF($2, ''), updated_at = NOW()
		WHERE id = $1
	`, string(id), priceID)
	if err != nil {
		return fmt.Errorf("update plan tier %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUnknownTier
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTier(s scanner) (models.PlanTier, error) {
	var t models.PlanTier
	var id string
	var price sql.NullString
	if err := s.Scan(&id, &t.Name, &t.MonthlyUploadLimit, &t.PriceCents, &t.Currency, &price); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return t, err
		}
		return t, fmt.Errorf("scan plan tier: %w", err)
	}
	t.ID = models.PlanType(id)
	if price.Valid && price.String != "" {
		t.StripePriceID = &price.String
	}
	return t, nil
}

// DefaultTiers mirrors the rows seeded by migration 000002.
var DefaultTiers = []models.PlanTier{
	{ID: models.PlanFree, Name: "Free", MonthlyUploadLimit: 10, PriceCents: 0, Currency: "eur"},
	{ID: models.PlanBasic, Name: "Basic", MonthlyUploadLimit: 50, PriceCents: 500, Currency: "eur"},
	{ID: models.PlanPremium, Name: "Premium", MonthlyUploadLimit: models.UnlimitedUploads, PriceCents: 700, Currency: "eur"},
}

// EnsureDefaults inserts any missing default tier and returns how many were
// added. Existing rows are left alone.
func (c *Catalog) EnsureDefaults(ctx context.Context) (int64, error) {
	var added int64
	for _, t := range DefaultTiers {
		res, err := c.db.ExecContext(ctx, `
			INSERT INTO public.plan_tiers (id, name, monthly_upload_limit, price_cents, currency)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO NOTHING
		`, string(t.ID), t.Name, t.MonthlyUploadLimit, t.PriceCents, t.Currency)
		if err != nil {
			return added, fmt.Errorf("insert plan tier %s: %w", t.ID, err)
		}
		n, _ := res.RowsAffected()
		added += n
	}
	return added, nil
}
