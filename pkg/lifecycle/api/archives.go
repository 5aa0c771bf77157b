package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/content-lifecycle/pkg/lifecycle"
)

// ChangesResponse is one page of the change log
type ChangesResponse struct {
	Changes   []*lifecycle.Change `json:"changes"`
	NextToken string              `json:"next_token"`
}

// TokenResponse carries the latest change token
type TokenResponse struct {
	Token string `json:"token"`
}

// LatestChangeToken returns the newest change token, empty for a fresh repository
func (h *Handler) LatestChangeToken(w http.ResponseWriter, r *http.Request) {
	token, err := h.service.LatestChangeToken(r.Context(), repositoryID(r))
	if err != nil {
		writeError(w, r, "Failed to read latest change token", err)
		return
	}
	render.JSON(w, r, TokenResponse{Token: token})
}

// GetChange returns the change event with the given token
func (h *Handler) GetChange(w http.ResponseWriter, r *http.Request) {
	change, err := h.service.GetChange(r.Context(), repositoryID(r), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, r, "Failed to get change", err)
		return
	}
	render.JSON(w, r, change)
}

// LatestChanges pages through the change log after the "since" token
func (h *Handler) LatestChanges(w http.ResponseWriter, r *http.Request) {
	maxItems, err := queryInt(r, "max", 0)
	if err != nil {
		http.Error(w, "Invalid max parameter", http.StatusBadRequest)
		return
	}

	changes, next, err := h.service.LatestChanges(r.Context(), repositoryID(r), r.URL.Query().Get("since"), maxItems)
	if err != nil {
		writeError(w, r, "Failed to list changes", err)
		return
	}
	if changes == nil {
		changes = []*lifecycle.Change{}
	}
	render.JSON(w, r, ChangesResponse{Changes: changes, NextToken: next})
}

// ListArchives pages through archives ordered by creation time.
// With original_id it returns the archive of that deleted object, if any.
func (h *Handler) ListArchives(w http.ResponseWriter, r *http.Request) {
	if originalID := r.URL.Query().Get("original_id"); originalID != "" {
		h.findArchive(w, r, originalID)
		return
	}

	skip, err := queryInt(r, "skip", 0)
	if err != nil {
		http.Error(w, "Invalid skip parameter", http.StatusBadRequest)
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		http.Error(w, "Invalid limit parameter", http.StatusBadRequest)
		return
	}

	archives, err := h.service.ListArchives(r.Context(), repositoryID(r), skip, limit, r.URL.Query().Get("order") == "desc")
	if err != nil {
		writeError(w, r, "Failed to list archives", err)
		return
	}
	if archives == nil {
		archives = []*lifecycle.Archive{}
	}
	render.JSON(w, r, archives)
}

func (h *Handler) findArchive(w http.ResponseWriter, r *http.Request, originalID string) {
	archive, err := h.service.GetArchiveByOriginalID(r.Context(), repositoryID(r), originalID)
	if errors.Is(err, lifecycle.ErrArchiveNotFound) {
		render.JSON(w, r, []*lifecycle.Archive{})
		return
	}
	if err != nil {
		writeError(w, r, "Failed to find archive", err)
		return
	}
	render.JSON(w, r, []*lifecycle.Archive{archive})
}

// GetArchive returns one archive
func (h *Handler) GetArchive(w http.ResponseWriter, r *http.Request) {
	archive, err := h.service.GetArchive(r.Context(), repositoryID(r), chi.URLParam(r, "archiveID"))
	if err != nil {
		writeError(w, r, "Failed to get archive", err)
		return
	}
	render.JSON(w, r, archive)
}

// RestoreArchive brings an archived object back to its folder
func (h *Handler) RestoreArchive(w http.ResponseWriter, r *http.Request) {
	archiveID := chi.URLParam(r, "archiveID")
	restored, err := h.service.RestoreArchive(r.Context(), repositoryID(r), archiveID)
	if err != nil {
		writeError(w, r, "Failed to restore archive", err)
		return
	}

	slog.Info("Archive restored", "archive_id", archiveID, "content_id", restored.ID)
	render.JSON(w, r, restored)
}

// DestroyArchive permanently removes an archive and its stream
func (h *Handler) DestroyArchive(w http.ResponseWriter, r *http.Request) {
	archiveID := chi.URLParam(r, "archiveID")
	if err := h.service.DestroyArchive(r.Context(), repositoryID(r), archiveID); err != nil {
		writeError(w, r, "Failed to destroy archive", err)
		return
	}

	slog.Info("Archive destroyed", "archive_id", archiveID)
	w.WriteHeader(http.StatusNoContent)
}
