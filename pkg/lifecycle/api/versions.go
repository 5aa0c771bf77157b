package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/content-lifecycle/pkg/lifecycle"
)

// CheckInRequest is the JSON request body for checking in without a new stream.
// A multipart form with the same fields and a "file" part replaces the stream.
type CheckInRequest struct {
	Major       bool    `json:"major"`
	Comment     string  `json:"comment"`
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// CheckOut creates a private working copy of a document
func (h *Handler) CheckOut(w http.ResponseWriter, r *http.Request) {
	pwc, err := h.service.CheckOut(r.Context(), repositoryID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, "Failed to check out document", err)
		return
	}

	slog.Info("Document checked out", "content_id", chi.URLParam(r, "id"), "pwc_id", pwc.ID)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, pwc)
}

// CancelCheckOut discards a private working copy
func (h *Handler) CancelCheckOut(w http.ResponseWriter, r *http.Request) {
	if err := h.service.CancelCheckOut(r.Context(), repositoryID(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, "Failed to cancel check out", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CheckIn promotes a private working copy to a new version
func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	req := lifecycle.CheckInRequest{
		RepositoryID: repositoryID(r),
		PWCID:        chi.URLParam(r, "id"),
	}

	if isMultipart(r) {
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			http.Error(w, "Invalid multipart form: "+err.Error(), http.StatusBadRequest)
			return
		}
		stream, closer, err := streamFromForm(r)
		if err != nil {
			http.Error(w, "Invalid file part: "+err.Error(), http.StatusBadRequest)
			return
		}
		if closer != nil {
			defer closer.Close()
		}
		req.Major, _ = strconv.ParseBool(r.FormValue("major"))
		req.Comment = r.FormValue("comment")
		if r.MultipartForm != nil {
			if v, ok := r.MultipartForm.Value["name"]; ok && len(v) > 0 {
				req.Name = &v[0]
			}
			if v, ok := r.MultipartForm.Value["description"]; ok && len(v) > 0 {
				req.Description = &v[0]
			}
		}
		req.ContentStream = stream
	} else {
		var body CheckInRequest
		if !decodeJSON(w, r, &body) {
			return
		}
		req.Major = body.Major
		req.Comment = body.Comment
		req.Name = body.Name
		req.Description = body.Description
	}

	doc, err := h.service.CheckIn(r.Context(), req)
	if err != nil {
		writeError(w, r, "Failed to check in document", err)
		return
	}

	slog.Info("Document checked in", "content_id", doc.ID, "version_label", doc.Document.VersionLabel)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, doc)
}

// GetAllVersions lists the versions of a series
func (h *Handler) GetAllVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.service.GetAllVersions(r.Context(), repositoryID(r), chi.URLParam(r, "seriesID"), queryBool(r, "include_pwc"))
	if err != nil {
		writeError(w, r, "Failed to list versions", err)
		return
	}
	render.JSON(w, r, versions)
}

// GetLatestVersion returns the latest (or latest major) version of a series
func (h *Handler) GetLatestVersion(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.GetLatestVersion(r.Context(), repositoryID(r), chi.URLParam(r, "seriesID"), queryBool(r, "major"))
	if err != nil {
		writeError(w, r, "Failed to get latest version", err)
		return
	}
	render.JSON(w, r, doc)
}

// GetCheckedOutDocuments lists private working copies, optionally below one folder
func (h *Handler) GetCheckedOutDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.service.GetCheckedOutDocuments(r.Context(), repositoryID(r), r.URL.Query().Get("folder_id"))
	if err != nil {
		writeError(w, r, "Failed to list checked out documents", err)
		return
	}
	render.JSON(w, r, docs)
}
