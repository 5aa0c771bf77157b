package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/content-lifecycle/pkg/lifecycle"
)

// CreateFolderRequest is the request body for creating a folder
type CreateFolderRequest struct {
	ParentID            string   `json:"parent_id"`
	Name                string   `json:"name"`
	ObjectType          string   `json:"object_type"`
	Description         string   `json:"description"`
	SecondaryTypeIDs    []string `json:"secondary_type_ids"`
	AllowedChildTypeIDs []string `json:"allowed_child_type_ids"`
}

// CreateDocumentRequest is the JSON request body for creating a document without a stream.
// Documents with a stream are created from a multipart form carrying the same fields and a "file" part.
type CreateDocumentRequest struct {
	ParentID         string   `json:"parent_id"`
	Name             string   `json:"name"`
	ObjectType       string   `json:"object_type"`
	Description      string   `json:"description"`
	SecondaryTypeIDs []string `json:"secondary_type_ids"`
	VersioningState  string   `json:"versioning_state"`
	IsImmutable      bool     `json:"is_immutable"`
}

// CreateRelationshipRequest is the request body for creating a relationship
type CreateRelationshipRequest struct {
	Name        string `json:"name"`
	ObjectType  string `json:"object_type"`
	Description string `json:"description"`
	SourceID    string `json:"source_id"`
	TargetID    string `json:"target_id"`
}

// CreatePolicyRequest is the request body for creating a policy
type CreatePolicyRequest struct {
	Name        string `json:"name"`
	ObjectType  string `json:"object_type"`
	Description string `json:"description"`
	PolicyText  string `json:"policy_text"`
}

// CreateItemRequest is the request body for creating an item
type CreateItemRequest struct {
	FolderID    string `json:"folder_id"`
	Name        string `json:"name"`
	ObjectType  string `json:"object_type"`
	Description string `json:"description"`
}

// UpdatePropertiesRequest is the request body for updating properties
type UpdatePropertiesRequest struct {
	Name             *string  `json:"name"`
	Description      *string  `json:"description"`
	SecondaryTypeIDs []string `json:"secondary_type_ids"`
}

// MoveRequest is the request body for moving an object
type MoveRequest struct {
	TargetFolderID string `json:"target_folder_id"`
}

// CopyRequest is the request body for copying a document
type CopyRequest struct {
	TargetFolderID  string `json:"target_folder_id"`
	Name            string `json:"name"`
	VersioningState string `json:"versioning_state"`
}

// DownloadURLResponse carries a direct download URL
type DownloadURLResponse struct {
	URL string `json:"url"`
}

// PathResponse is the response body for a content with its resolved path
type PathResponse struct {
	*lifecycle.Content
	Path string `json:"path"`
}

// DeleteTreeResponse is the response body of a tree delete
type DeleteTreeResponse struct {
	FailureIDs []string `json:"failure_ids"`
}

// EnsureRootFolder creates the repository root folder when missing
func (h *Handler) EnsureRootFolder(w http.ResponseWriter, r *http.Request) {
	root, err := h.service.EnsureRootFolder(r.Context(), repositoryID(r))
	if err != nil {
		writeError(w, r, "Failed to ensure root folder", err)
		return
	}
	render.JSON(w, r, root)
}

// CreateFolder creates a new folder
func (h *Handler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	var req CreateFolderRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	folder, err := h.service.CreateFolder(r.Context(), lifecycle.CreateFolderRequest{
		RepositoryID:        repositoryID(r),
		ParentID:            req.ParentID,
		Name:                req.Name,
		ObjectType:          req.ObjectType,
		Description:         req.Description,
		SecondaryTypeIDs:    req.SecondaryTypeIDs,
		AllowedChildTypeIDs: req.AllowedChildTypeIDs,
	})
	if err != nil {
		writeError(w, r, "Failed to create folder", err)
		return
	}

	slog.Info("Folder created", "content_id", folder.ID, "name", folder.Name)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, folder)
}

// CreateDocument creates a new document from JSON or from a multipart upload
func (h *Handler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	req := lifecycle.CreateDocumentRequest{RepositoryID: repositoryID(r)}

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
		immutable, _ := strconv.ParseBool(r.FormValue("is_immutable"))
		req.ParentID = r.FormValue("parent_id")
		req.Name = r.FormValue("name")
		req.ObjectType = r.FormValue("object_type")
		req.Description = r.FormValue("description")
		req.VersioningState = lifecycle.VersioningState(r.FormValue("versioning_state"))
		req.IsImmutable = immutable
		req.ContentStream = stream
		if req.Name == "" && stream != nil {
			req.Name = stream.FileName
		}
	} else {
		var body CreateDocumentRequest
		if !decodeJSON(w, r, &body) {
			return
		}
		req.ParentID = body.ParentID
		req.Name = body.Name
		req.ObjectType = body.ObjectType
		req.Description = body.Description
		req.SecondaryTypeIDs = body.SecondaryTypeIDs
		req.VersioningState = lifecycle.VersioningState(body.VersioningState)
		req.IsImmutable = body.IsImmutable
	}

	doc, err := h.service.CreateDocument(r.Context(), req)
	if err != nil {
		writeError(w, r, "Failed to create document", err)
		return
	}

	slog.Info("Document created", "content_id", doc.ID, "name", doc.Name)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, doc)
}

// CreateRelationship creates a new relationship
func (h *Handler) CreateRelationship(w http.ResponseWriter, r *http.Request) {
	var req CreateRelationshipRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rel, err := h.service.CreateRelationship(r.Context(), lifecycle.CreateRelationshipRequest{
		RepositoryID: repositoryID(r),
		Name:         req.Name,
		ObjectType:   req.ObjectType,
		Description:  req.Description,
		SourceID:     req.SourceID,
		TargetID:     req.TargetID,
	})
	if err != nil {
		writeError(w, r, "Failed to create relationship", err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, rel)
}

// CreatePolicy creates a new policy
func (h *Handler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	var req CreatePolicyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	policy, err := h.service.CreatePolicy(r.Context(), lifecycle.CreatePolicyRequest{
		RepositoryID: repositoryID(r),
		Name:         req.Name,
		ObjectType:   req.ObjectType,
		Description:  req.Description,
		PolicyText:   req.PolicyText,
	})
	if err != nil {
		writeError(w, r, "Failed to create policy", err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, policy)
}

// CreateItem creates a new item
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req CreateItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	item, err := h.service.CreateItem(r.Context(), lifecycle.CreateItemRequest{
		RepositoryID: repositoryID(r),
		FolderID:     req.FolderID,
		Name:         req.Name,
		ObjectType:   req.ObjectType,
		Description:  req.Description,
	})
	if err != nil {
		writeError(w, r, "Failed to create item", err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, item)
}

// GetContent returns a content with its path
func (h *Handler) GetContent(w http.ResponseWriter, r *http.Request) {
	content, err := h.service.GetContent(r.Context(), repositoryID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, "Failed to get content", err)
		return
	}
	h.renderWithPath(w, r, content)
}

// GetContentByPath resolves the "path" query parameter
func (h *Handler) GetContentByPath(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	content, err := h.service.GetContentByPath(r.Context(), repositoryID(r), path)
	if err != nil {
		writeError(w, r, "Failed to resolve path", err)
		return
	}
	render.JSON(w, r, PathResponse{Content: content, Path: path})
}

func (h *Handler) renderWithPath(w http.ResponseWriter, r *http.Request, content *lifecycle.Content) {
	resp := PathResponse{Content: content}
	if content.IsFolder() || content.IsDocument() {
		path, err := h.service.CalculatePath(r.Context(), repositoryID(r), content)
		if err != nil {
			writeError(w, r, "Failed to calculate path", err)
			return
		}
		resp.Path = path
	}
	render.JSON(w, r, resp)
}

// GetChildren lists the children of a folder
func (h *Handler) GetChildren(w http.ResponseWriter, r *http.Request) {
	children, err := h.service.GetChildren(r.Context(), repositoryID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, "Failed to list children", err)
		return
	}
	render.JSON(w, r, children)
}

// GetParent returns the parent folder of an object
func (h *Handler) GetParent(w http.ResponseWriter, r *http.Request) {
	parent, err := h.service.GetParent(r.Context(), repositoryID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, "Failed to get parent", err)
		return
	}
	render.JSON(w, r, parent)
}

// UpdateProperties changes the name, description or secondary types of an object
func (h *Handler) UpdateProperties(w http.ResponseWriter, r *http.Request) {
	var req UpdatePropertiesRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	content, err := h.service.UpdateProperties(r.Context(), lifecycle.UpdatePropertiesRequest{
		RepositoryID:     repositoryID(r),
		ObjectID:         chi.URLParam(r, "id"),
		Name:             req.Name,
		Description:      req.Description,
		SecondaryTypeIDs: req.SecondaryTypeIDs,
	})
	if err != nil {
		writeError(w, r, "Failed to update properties", err)
		return
	}
	render.JSON(w, r, content)
}

// Move files an object into another folder
func (h *Handler) Move(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	content, err := h.service.Move(r.Context(), lifecycle.MoveRequest{
		RepositoryID:   repositoryID(r),
		ObjectID:       chi.URLParam(r, "id"),
		TargetFolderID: req.TargetFolderID,
	})
	if err != nil {
		writeError(w, r, "Failed to move content", err)
		return
	}
	slog.Info("Content moved", "content_id", content.ID, "parent_id", content.ParentID)
	render.JSON(w, r, content)
}

// Copy creates a new document from an existing one
func (h *Handler) Copy(w http.ResponseWriter, r *http.Request) {
	var req CopyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	doc, err := h.service.CreateDocumentFromSource(r.Context(), lifecycle.CopyDocumentRequest{
		RepositoryID:    repositoryID(r),
		SourceID:        chi.URLParam(r, "id"),
		TargetFolderID:  req.TargetFolderID,
		Name:            req.Name,
		VersioningState: lifecycle.VersioningState(req.VersioningState),
	})
	if err != nil {
		writeError(w, r, "Failed to copy document", err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, doc)
}

// Delete archives and removes an object.
// For documents, all_versions=false removes only the addressed version.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	repoID := repositoryID(r)
	id := chi.URLParam(r, "id")

	var err error
	if raw := r.URL.Query().Get("all_versions"); raw != "" {
		all, perr := strconv.ParseBool(raw)
		if perr != nil {
			http.Error(w, "Invalid all_versions parameter", http.StatusBadRequest)
			return
		}
		err = h.service.DeleteDocument(ctx, repoID, id, all)
	} else {
		err = h.service.Delete(ctx, repoID, id)
	}
	if err != nil {
		writeError(w, r, "Failed to delete content", err)
		return
	}

	slog.Info("Content deleted", "content_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// DeleteTree deletes a folder and everything below it
func (h *Handler) DeleteTree(w http.ResponseWriter, r *http.Request) {
	failures, err := h.service.DeleteTree(r.Context(), lifecycle.DeleteTreeRequest{
		RepositoryID:      repositoryID(r),
		FolderID:          chi.URLParam(r, "id"),
		ContinueOnFailure: queryBool(r, "continue_on_failure"),
	})
	if err != nil {
		writeError(w, r, "Failed to delete tree", err)
		return
	}
	if failures == nil {
		failures = []string{}
	}
	render.JSON(w, r, DeleteTreeResponse{FailureIDs: failures})
}

// GetContentStream streams the bytes of a document
func (h *Handler) GetContentStream(w http.ResponseWriter, r *http.Request) {
	// redirect=true sends the client to the storage backend when it can
	// issue a direct URL and streams through the server otherwise
	if queryBool(r, "redirect") {
		u, err := h.service.GetContentStreamURL(r.Context(), repositoryID(r), chi.URLParam(r, "id"))
		if err == nil {
			http.Redirect(w, r, u, http.StatusFound)
			return
		}
		if !errors.Is(err, lifecycle.ErrDownloadURLNotSupported) {
			writeError(w, r, "Failed to get content stream", err)
			return
		}
	}

	att, body, err := h.service.GetContentStream(r.Context(), repositoryID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, "Failed to get content stream", err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", att.MimeType)
	if att.Length > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(att.Length, 10))
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", att.Name))
	if _, err := io.Copy(w, body); err != nil {
		slog.Error("Failed to stream content", "content_id", chi.URLParam(r, "id"), "error", err)
	}
}

// GetContentStreamURL returns a direct download URL for a document stream
func (h *Handler) GetContentStreamURL(w http.ResponseWriter, r *http.Request) {
	u, err := h.service.GetContentStreamURL(r.Context(), repositoryID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, "Failed to get content stream URL", err)
		return
	}
	render.JSON(w, r, DownloadURLResponse{URL: u})
}

// SetContentStream replaces the stream of a private working copy.
// The body is either a multipart form with a "file" part or the raw bytes.
func (h *Handler) SetContentStream(w http.ResponseWriter, r *http.Request) {
	var stream *lifecycle.ContentStream
	if isMultipart(r) {
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			http.Error(w, "Invalid multipart form: "+err.Error(), http.StatusBadRequest)
			return
		}
		s, closer, err := streamFromForm(r)
		if err != nil {
			http.Error(w, "Invalid file part: "+err.Error(), http.StatusBadRequest)
			return
		}
		if closer != nil {
			defer closer.Close()
		}
		stream = s
	} else {
		mimeType := r.Header.Get("Content-Type")
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		stream = &lifecycle.ContentStream{
			FileName: r.URL.Query().Get("filename"),
			MimeType: mimeType,
			Length:   max(r.ContentLength, 0),
			Reader:   r.Body,
		}
	}
	if stream == nil {
		http.Error(w, "Missing file part", http.StatusBadRequest)
		return
	}

	pwc, err := h.service.SetContentStream(r.Context(), repositoryID(r), chi.URLParam(r, "id"), stream)
	if err != nil {
		writeError(w, r, "Failed to set content stream", err)
		return
	}
	render.JSON(w, r, pwc)
}
