package handlers

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/PortNumber53/tubeshelf/backend/internal/categories"
)

// ListCategories always includes "Uncategorized", even on failure.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)
	names, err := h.Categories.List(r.Context(), sess.UserID)
	if err != nil {
		h.log.Error().Err(err).Str("userId", sess.UserID).Msg("list categories failed")
	}
	writeJSON(w, http.StatusOK, names)
}

func (h *Handler) AddCategory(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)
	var body struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	c, err := h.Categories.Add(r.Context(), sess.UserID, body.Name)
	switch {
	case errors.Is(err, categories.ErrEmptyName):
		writeAPIError(w, http.StatusBadRequest, "empty_name", "Category name is required")
	case errors.Is(err, categories.ErrExists):
		writeAPIError(w, http.StatusConflict, "category_exists", "Category already exists")
	case err != nil:
		h.log.Error().Err(err).Str("userId", sess.UserID).Msg("add category failed")
		writeFailure(w)
	default:
		writeJSON(w, http.StatusCreated, c)
	}
}

func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)
	name, err := url.PathUnescape(pathVar(r, "name"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid category name")
		return
	}
	moved, err := h.Categories.Delete(r.Context(), sess.UserID, name)
	switch {
	case errors.Is(err, categories.ErrProtected):
		writeAPIError(w, http.StatusBadRequest, "protected_category", "Uncategorized cannot be deleted")
	case errors.Is(err, categories.ErrLastCategory):
		writeAPIError(w, http.StatusConflict, "last_category", "Cannot delete the last category")
	case errors.Is(err, categories.ErrNotFound):
		writeAPIError(w, http.StatusNotFound, "not_found", "Category not found")
	case err != nil:
		h.log.Error().Err(err).Str("userId", sess.UserID).Msg("delete category failed")
		writeFailure(w)
	default:
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "reassigned": moved})
	}
}
