package handlers

import (
	"bytes"
	"errors"
	"net/http"
	"strings"

	"github.com/PortNumber53/tubeshelf/backend/internal/middleware"
	"github.com/PortNumber53/tubeshelf/backend/internal/models"
	"github.com/PortNumber53/tubeshelf/backend/internal/videos"
)

type uploadRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	VideoURL    string  `json:"videoUrl"`
	Category    string  `json:"category"`
	// NewCategory is created when missing and overrides Category.
	NewCategory string `json:"newCategory,omitempty"`
}

// ListVideos answers [] on failure. Query params: q (search), category,
// favorites=true.
func (h *Handler) ListVideos(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)
	q := strings.TrimSpace(r.URL.Query().Get("q"))

	var list []models.Video
	var err error
	if q != "" {
		list, err = h.Videos.Search(r.Context(), sess.UserID, q)
	} else {
		list, err = h.Videos.List(r.Context(), sess.UserID)
	}
	if err != nil {
		h.log.Error().Err(err).Str("userId", sess.UserID).Msg("list videos failed")
		writeJSON(w, http.StatusOK, []models.Video{})
		return
	}

	category := strings.TrimSpace(r.URL.Query().Get("category"))
	favorites := r.URL.Query().Get("favorites") == "true"
	out := make([]models.Video, 0, len(list))
	for _, v := range list {
		if category != "" && !strings.EqualFold(category, "all") && v.Category != category {
			continue
		}
		if favorites && !v.IsFavorite {
			continue
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, out)
}

// LatestVideo answers null when the user has no videos.
func (h *Handler) LatestVideo(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)
	v, err := h.Videos.Latest(r.Context(), sess.UserID)
	if err != nil {
		if !errors.Is(err, videos.ErrNotFound) {
			h.log.Error().Err(err).Str("userId", sess.UserID).Msg("latest video failed")
		}
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) GetVideo(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)
	id := pathVar(r, "id")
	v, err := h.Videos.GetByID(r.Context(), sess.UserID, id)
	if errors.Is(err, videos.ErrNotFound) {
		writeAPIError(w, http.StatusNotFound, "not_found", "Video not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("videoId", id).Msg("get video failed")
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) CreateVideo(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)
	var req uploadRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	req.VideoURL = strings.TrimSpace(req.VideoURL)
	if req.Title == "" || req.VideoURL == "" {
		writeAPIError(w, http.StatusBadRequest, "missing_fields", "Please provide both title and video URL")
		return
	}
	if !videos.IsYouTubeURL(req.VideoURL) {
		writeAPIError(w, http.StatusBadRequest, "invalid_url", "Please provide a valid YouTube URL")
		return
	}

	v := models.Video{
		Title:       req.Title,
		Description: req.Description,
		VideoURL:    req.VideoURL,
		Category:    strings.TrimSpace(req.Category),
	}
	if thumb := videos.ThumbnailFor(req.VideoURL); thumb != "" {
		v.ThumbnailURL = &thumb
	}

	saved, out, err := h.Videos.InsertWithNewCategory(r.Context(), sess.UserID, v, req.NewCategory)
	if err != nil {
		h.log.Error().Err(err).Str("userId", sess.UserID).Msg("upload failed")
		writeFailure(w)
		return
	}
	if !out.Permitted() {
		middleware.RespondLimitExceeded(w, out)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

// UpdateVideo overlays the request body on the stored video and saves the
// result as a full replace.
func (h *Handler) UpdateVideo(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)
	id := pathVar(r, "id")
	v, ok := h.loadOwned(w, r, sess.UserID, id)
	if !ok {
		return
	}
	if err := decodeJSON(r, &v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	v.ID, v.UserID = id, sess.UserID
	h.saveVideo(w, r, v)
}

func (h *Handler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)
	v, ok := h.loadOwned(w, r, sess.UserID, pathVar(r, "id"))
	if !ok {
		return
	}
	v.IsFavorite = !v.IsFavorite
	h.saveVideo(w, r, v)
}

func (h *Handler) SavePosition(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)
	var body struct {
		Position int `json:"position"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if body.Position < 0 {
		writeAPIError(w, http.StatusBadRequest, "invalid_position", "Position must not be negative")
		return
	}
	v, ok := h.loadOwned(w, r, sess.UserID, pathVar(r, "id"))
	if !ok {
		return
	}
	v.LastPlayedPosition = body.Position
	h.saveVideo(w, r, v)
}

func (h *Handler) DeleteVideo(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)
	id := pathVar(r, "id")
	err := h.Videos.Delete(r.Context(), sess.UserID, id)
	if errors.Is(err, videos.ErrNotFound) {
		writeAPIError(w, http.StatusNotFound, "not_found", "Video not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("videoId", id).Msg("delete video failed")
		writeFailure(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// VideoPoster redirects to the video's thumbnail, or renders a placeholder
// poster from its title.
func (h *Handler) VideoPoster(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)
	v, ok := h.loadOwned(w, r, sess.UserID, pathVar(r, "id"))
	if !ok {
		return
	}
	if v.ThumbnailURL != nil && *v.ThumbnailURL != "" {
		http.Redirect(w, r, *v.ThumbnailURL, http.StatusFound)
		return
	}
	var buf bytes.Buffer
	if err := videos.RenderPoster(&buf, v.Title); err != nil {
		h.log.Error().Err(err).Str("videoId", v.ID).Msg("render poster failed")
		writeFailure(w)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) loadOwned(w http.ResponseWriter, r *http.Request, userID, id string) (models.Video, bool) {
	v, err := h.Videos.GetByID(r.Context(), userID, id)
	if errors.Is(err, videos.ErrNotFound) {
		writeAPIError(w, http.StatusNotFound, "not_found", "Video not found")
		return models.Video{}, false
	}
	if err != nil {
		h.log.Error().Err(err).Str("videoId", id).Msg("load video failed")
		writeFailure(w)
		return models.Video{}, false
	}
	return v, true
}

func (h *Handler) saveVideo(w http.ResponseWriter, r *http.Request, v models.Video) {
	saved, err := h.Videos.Update(r.Context(), v.UserID, v)
	switch {
	case errors.Is(err, videos.ErrInvalid):
		writeAPIError(w, http.StatusBadRequest, "invalid_video", "Title and video URL are required")
	case errors.Is(err, videos.ErrNotFound):
		writeAPIError(w, http.StatusNotFound, "not_found", "Video not found")
	case err != nil:
		h.log.Error().Err(err).Str("videoId", v.ID).Msg("update video failed")
		writeFailure(w)
	default:
		writeJSON(w, http.StatusOK, saved)
	}
}
