package profiles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/PortNumber53/tubeshelf/backend/internal/models"
)

var ErrNotFound = errors.New("profile not found")

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const profileColumns = `id, plan_type, uploads_used, monthly_upload_limit, uploads_reset_date,
		trial_status, trial_end_date, subscription_status, subscription_end_date,
		stripe_customer_id, created_at, updated_at`

func (s *Store) Get(ctx context.Context, userID string) (models.Profile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM public.profiles WHERE id = $1`, userID)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Profile{}, ErrNotFound
	}
	if err != nil {
		return models.Profile{}, fmt.Errorf("get profile %s: %w", userID, err)
	}
	return p, nil
}

// Create inserts a fresh free profile; used inside the sign-up transaction.
func Create(ctx context.Context, ex Execer, userID string, limit int, resetAt time.Time) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO public.profiles (id, plan_type, uploads_used, monthly_upload_limit, uploads_reset_date)
		VALUES ($1, 'free', 0, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`, userID, limit, resetAt)
	if err != nil {
		return fmt.Errorf("create profile %s: %w", userID, err)
	}
	return nil
}

// SetPlan changes the tier and its monthly limit.
func (s *Store) SetPlan(ctx context.Context, userID string, plan models.PlanType, limit int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE public.profiles
		SET plan_type = $2, monthly_upload_limit = $3, updated_at = NOW()
		WHERE id = $1
	`, userID, string(plan), limit)
	if err != nil {
		return fmt.Errorf("set plan for %s: %w", userID, err)
	}
	return requireRow(res)
}

// ActivateTrial records a completed checkout: tier, limit, trial window.
func (s *Store) ActivateTrial(ctx context.Context, userID string, plan models.PlanType, limit int, trialEnd *time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE public.profiles
		SET plan_type = $2, monthly_upload_limit = $3, trial_status = 'active',
		    trial_end_date = $4, subscription_status = 'active', updated_at = NOW()
		WHERE id = $1
	`, userID, string(plan), limit, trialEnd)
	if err != nil {
		return fmt.Errorf("activate trial for %s: %w", userID, err)
	}
	return requireRow(res)
}

// UpdateSubscription writes the provider-resolved subscription state.
func (s *Store) UpdateSubscription(ctx context.Context, userID string, plan models.PlanType, limit int, status string, endDate *time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE public.profiles
		SET plan_type = $2, monthly_upload_limit = $3, subscription_status = $4,
		    subscription_end_date = $5, updated_at = NOW()
		WHERE id = $1
	`, userID, string(plan), limit, status, endDate)
	if err != nil {
		return fmt.Errorf("update subscription for %s: %w", userID, err)
	}
	return requireRow(res)
}

func (s *Store) SetStripeCustomer(ctx context.Context, userID, customerID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE public.profiles SET stripe_customer_id = $2, updated_at = NOW() WHERE id = $1
	`, userID, customerID)
	if err != nil {
		return fmt.Errorf("set stripe customer for %s: %w", userID, err)
	}
	return nil
}

// UserForCustomer resolves the profile owning a Stripe customer.
func (s *Store) UserForCustomer(ctx context.Context, customerID string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM public.profiles WHERE stripe_customer_id = $1`, customerID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup customer %s: %w", customerID, err)
	}
	return id, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(s scanner) (models.Profile, error) {
	var p models.Profile
	var plan string
	var resetDate, trialEnd, subEnd sql.NullTime
	var trialStatus, subStatus, customer sql.NullString
	err := s.Scan(&p.ID, &plan, &p.UploadsUsed, &p.MonthlyUploadLimit, &resetDate,
		&trialStatus, &trialEnd, &subStatus, &subEnd, &customer, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return p, err
	}
	p.PlanType = models.PlanType(plan)
	p.UploadsResetDate = nullTimePtr(resetDate)
	p.TrialEndDate = nullTimePtr(trialEnd)
	p.SubscriptionEndDate = nullTimePtr(subEnd)
	p.TrialStatus = nullStringPtr(trialStatus)
	p.SubscriptionStatus = nullStringPtr(subStatus)
	p.StripeCustomerID = nullStringPtr(customer)
	return p, nil
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func nullTimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	return &nt.Time
}
