package models

import (
	"strings"
	"time"
)

type PlanType string

const (
	PlanFree    PlanType = "free"
	PlanBasic   PlanType = "basic"
	PlanPremium PlanType = "premium"
)

// UnlimitedUploads is the monthly limit stored for tiers without a cap.
const UnlimitedUploads = 2147483647

// Uncategorized is the implicit category every user has.
const Uncategorized = "Uncategorized"

func ParsePlanType(s string) (PlanType, bool) {
	switch p := PlanType(strings.ToLower(strings.TrimSpace(s))); p {
	case PlanFree, PlanBasic, PlanPremium:
		return p, true
	}
	return "", false
}

func (p PlanType) Paid() bool {
	return p == PlanBasic || p == PlanPremium
}

type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"emailVerified"`
	CreatedAt     time.Time `json:"createdAt"`
}

type Session struct {
	ContextID     string    `json:"contextId"`
	UserID        string    `json:"userId"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"emailVerified"`
	AccessToken   string    `json:"accessToken"`
	Expiry        time.Time `json:"expiry"`
}

func (s *Session) Expired(now time.Time) bool {
	return s == nil || !now.Before(s.Expiry)
}

type Profile struct {
	ID                  string     `json:"id"`
	PlanType            PlanType   `json:"planType"`
	UploadsUsed         int        `json:"uploadsUsed"`
	MonthlyUploadLimit  int        `json:"monthlyUploadLimit"`
	UploadsResetDate    *time.Time `json:"uploadsResetDate,omitempty"`
	TrialStatus         *string    `json:"trialStatus,omitempty"`
	TrialEndDate        *time.Time `json:"trialEndDate,omitempty"`
	SubscriptionStatus  *string    `json:"subscriptionStatus,omitempty"`
	SubscriptionEndDate *time.Time `json:"subscriptionEndDate,omitempty"`
	StripeCustomerID    *string    `json:"-"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

func (p Profile) Unlimited() bool {
	return p.MonthlyUploadLimit >= UnlimitedUploads
}

// RemainingUploads returns -1 for unlimited plans.
func (p Profile) RemainingUploads() int {
	if p.Unlimited() {
		return -1
	}
	if r := p.MonthlyUploadLimit - p.UploadsUsed; r > 0 {
		return r
	}
	return 0
}

type Video struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"userId"`
	Title              string    `json:"title"`
	Description        *string   `json:"description,omitempty"`
	VideoURL           string    `json:"videoUrl"`
	ThumbnailURL       *string   `json:"thumbnailUrl,omitempty"`
	Category           string    `json:"category"`
	UploadDate         time.Time `json:"uploadDate"`
	IsFavorite         bool      `json:"isFavorite"`
	LastPlayedPosition int       `json:"lastPlayedPosition"`
}

type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	UserID      string    `json:"userId"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Comment struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Author    string    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
	VideoID   string    `json:"videoId"`
}

type PlanTier struct {
	ID                 PlanType `json:"id"`
	Name               string   `json:"name"`
	MonthlyUploadLimit int      `json:"monthlyUploadLimit"`
	PriceCents         int      `json:"priceCents"`
	Currency           string   `json:"currency"`
	StripePriceID      *string  `json:"stripePriceId,omitempty"`
}

// ChangeType is a row-level change published by the database.
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
	ChangeAny    ChangeType = "*"
)

// VideoChange is a change to one video row.
type VideoChange struct {
	Type  ChangeType `json:"type"`
	Video Video      `json:"video"`
}
