package handlers

import (
	"errors"
	"net/http"

	"github.com/PortNumber53/tubeshelf/backend/internal/models"
	"github.com/PortNumber53/tubeshelf/backend/internal/profiles"
)

type profileResponse struct {
	Profile          *models.Profile `json:"profile"`
	RemainingUploads int             `json:"remainingUploads"`
	Unlimited        bool            `json:"unlimited"`
}

// GetProfile answers a null profile when it cannot be read.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)
	p, err := h.Profiles.Get(r.Context(), sess.UserID)
	if err != nil {
		if !errors.Is(err, profiles.ErrNotFound) {
			h.log.Error().Err(err).Str("userId", sess.UserID).Msg("get profile failed")
		}
		writeJSON(w, http.StatusOK, profileResponse{})
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{Profile: &p, RemainingUploads: p.RemainingUploads(), Unlimited: p.Unlimited()})
}
