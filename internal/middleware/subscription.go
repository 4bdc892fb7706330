package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/PortNumber53/tubeshelf/backend/internal/models"
	"github.com/PortNumber53/tubeshelf/backend/internal/quota"
)

// PlanLimits describes the upload allowance reported with a limit response.
type PlanLimits struct {
	MonthlyUploads int `json:"monthly_uploads"` // -1 = unlimited
	UploadsUsed    int `json:"uploads_used"`
}

// ProfileReader loads the caller's profile.
type ProfileReader interface {
	Get(ctx context.Context, userID string) (models.Profile, error)
}

// UploadLimitEnforcer rejects uploads from users already at their monthly
// limit before the request body is read. The quota gate stays authoritative;
// this only answers early.
type UploadLimitEnforcer struct {
	Profiles ProfileReader
}

func NewUploadLimitEnforcer(profiles ProfileReader) *UploadLimitEnforcer {
	return &UploadLimitEnforcer{Profiles: profiles}
}

func (e *UploadLimitEnforcer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := SessionFrom(r.Context())
		if sess == nil || r.Method != http.MethodPost {
			next.ServeHTTP(w, r)
			return
		}
		p, err := e.Profiles.Get(r.Context(), sess.UserID)
		if err != nil {
			// Let the gate decide.
			next.ServeHTTP(w, r)
			return
		}
		if out := quota.Check(p); !out.Permitted() {
			RespondLimitExceeded(w, out)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// LimitMessage is the user-facing upgrade prompt for a plan at its limit.
func LimitMessage(plan models.PlanType) string {
	switch plan {
	case models.PlanFree:
		return "You've reached your monthly upload limit on the Free plan. Upgrade to Basic or Premium to upload more videos."
	case models.PlanBasic:
		return "You've reached your monthly upload limit on the Basic plan. Upgrade to Premium for unlimited uploads."
	}
	return "You've reached your monthly upload limit."
}

// RespondLimitExceeded writes the 402 answer for a rejected upload.
func RespondLimitExceeded(w http.ResponseWriter, out quota.Outcome) {
	limits := PlanLimits{MonthlyUploads: out.Limit, UploadsUsed: out.UploadsUsed}
	if out.Limit >= models.UnlimitedUploads {
		limits.MonthlyUploads = -1
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)

	response := map[string]interface{}{
		"error":       "upload_limit_reached",
		"message":     LimitMessage(out.PlanType),
		"plan":        out.PlanType,
		"limits":      limits,
		"upgrade_url": "/pricing",
	}
	_ = json.NewEncoder(w).Encode(response)
}
