package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/content-lifecycle/pkg/lifecycle"
)

// maxMultipartMemory bounds the part of an upload held in memory before spilling to disk.
const maxMultipartMemory = 32 << 20

// Handler serves the lifecycle service over HTTP
type Handler struct {
	service lifecycle.Service
}

// NewHandler creates a new lifecycle handler
func NewHandler(service lifecycle.Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the routes for one repository, mounted under /{repositoryID}
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/{repositoryID}", func(r chi.Router) {
		r.Post("/root", h.EnsureRootFolder)
		r.Get("/path", h.GetContentByPath)

		// Object creation
		r.Post("/folders", h.CreateFolder)
		r.Post("/documents", h.CreateDocument)
		r.Post("/relationships", h.CreateRelationship)
		r.Post("/policies", h.CreatePolicy)
		r.Post("/items", h.CreateItem)

		// Objects
		r.Get("/objects/{id}", h.GetContent)
		r.Patch("/objects/{id}", h.UpdateProperties)
		r.Delete("/objects/{id}", h.Delete)
		r.Get("/objects/{id}/children", h.GetChildren)
		r.Get("/objects/{id}/parent", h.GetParent)
		r.Post("/objects/{id}/move", h.Move)
		r.Post("/objects/{id}/copy", h.Copy)
		r.Delete("/objects/{id}/tree", h.DeleteTree)
		r.Get("/objects/{id}/content", h.GetContentStream)
		r.Get("/objects/{id}/content/url", h.GetContentStreamURL)
		r.Put("/objects/{id}/content", h.SetContentStream)

		// Versioning
		r.Post("/objects/{id}/checkout", h.CheckOut)
		r.Post("/objects/{id}/cancel-checkout", h.CancelCheckOut)
		r.Post("/objects/{id}/checkin", h.CheckIn)
		r.Get("/checkedout", h.GetCheckedOutDocuments)
		r.Get("/versions/{seriesID}", h.GetAllVersions)
		r.Get("/versions/{seriesID}/latest", h.GetLatestVersion)

		// Security
		r.Get("/objects/{id}/acl", h.GetACL)
		r.Put("/objects/{id}/acl", h.ApplyACL)
		r.Put("/policies/{policyID}/objects/{id}", h.ApplyPolicy)
		r.Delete("/policies/{policyID}/objects/{id}", h.RemovePolicy)

		// Change log
		r.Get("/changes", h.LatestChanges)
		r.Get("/changes/latest-token", h.LatestChangeToken)
		r.Get("/changes/{token}", h.GetChange)

		// Archives
		r.Get("/archives", h.ListArchives)
		r.Get("/archives/{archiveID}", h.GetArchive)
		r.Post("/archives/{archiveID}/restore", h.RestoreArchive)
		r.Delete("/archives/{archiveID}", h.DestroyArchive)
	})

	return r
}

// ErrorResponse is the response body for a failed request
type ErrorResponse struct {
	Error      string   `json:"error"`
	FailureIDs []string `json:"failure_ids,omitempty"`
}

// statusFor maps service errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, lifecycle.ErrInvalidArgument),
		errors.Is(err, lifecycle.ErrTreeTooLarge),
		errors.Is(err, lifecycle.ErrNotCheckedOut):
		return http.StatusBadRequest
	case errors.Is(err, lifecycle.ErrContentNotFound),
		errors.Is(err, lifecycle.ErrParentNotFound),
		errors.Is(err, lifecycle.ErrVersionSeriesNotFound),
		errors.Is(err, lifecycle.ErrAttachmentNotFound),
		errors.Is(err, lifecycle.ErrChangeNotFound),
		errors.Is(err, lifecycle.ErrArchiveNotFound),
		errors.Is(err, lifecycle.ErrBlobNotFound):
		return http.StatusNotFound
	case errors.Is(err, lifecycle.ErrNameConflict),
		errors.Is(err, lifecycle.ErrAlreadyCheckedOut),
		errors.Is(err, lifecycle.ErrConstraint),
		errors.Is(err, lifecycle.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, lifecycle.ErrParentNoLongerExists):
		return http.StatusGone
	case errors.Is(err, lifecycle.ErrLockNotAcquired):
		return http.StatusServiceUnavailable
	case errors.Is(err, lifecycle.ErrDownloadURLNotSupported):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs err and writes it as a JSON error body
func writeError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error(msg, "path", r.URL.Path, "error", err)
	} else {
		slog.Debug(msg, "path", r.URL.Path, "error", err)
	}

	resp := ErrorResponse{Error: err.Error()}
	var treeErr *lifecycle.DeleteTreeError
	if errors.As(err, &treeErr) {
		resp.FailureIDs = treeErr.FailureIDs
	}
	render.Status(r, status)
	render.JSON(w, r, resp)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func repositoryID(r *http.Request) string {
	return chi.URLParam(r, "repositoryID")
}

func queryBool(r *http.Request, key string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return v
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// isMultipart reports whether the request carries a multipart form
func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/")
}

// streamFromForm returns the "file" part of a parsed multipart form, or nil when absent.
// The returned closer must be closed once the service call returns.
func streamFromForm(r *http.Request) (*lifecycle.ContentStream, io.Closer, error) {
	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return &lifecycle.ContentStream{
		FileName: header.Filename,
		MimeType: partMimeType(header),
		Length:   header.Size,
		Reader:   file,
	}, file, nil
}

func partMimeType(header *multipart.FileHeader) string {
	if ct := header.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
