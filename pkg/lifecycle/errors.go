package lifecycle

import (
	"errors"
	"fmt"
	"strings"
)

// Error types
var (
	// ErrInvalidArgument indicates malformed input or an operation not allowed in the current state
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrContentNotFound indicates a content was not found
	ErrContentNotFound = errors.New("content not found")

	// ErrParentNotFound indicates the parent folder of an operation was not found
	ErrParentNotFound = errors.New("parent folder not found")

	// ErrVersionSeriesNotFound indicates a version series was not found
	ErrVersionSeriesNotFound = errors.New("version series not found")

	// ErrAttachmentNotFound indicates an attachment was not found
	ErrAttachmentNotFound = errors.New("attachment not found")

	// ErrChangeNotFound indicates a change event was not found
	ErrChangeNotFound = errors.New("change not found")

	// ErrArchiveNotFound indicates an archive was not found
	ErrArchiveNotFound = errors.New("archive not found")

	// ErrNotCheckedOut indicates a check-in or cancel on a series without a PWC
	ErrNotCheckedOut = errors.New("document is not checked out")

	// ErrAlreadyCheckedOut indicates a checkout on a series that already has a PWC
	ErrAlreadyCheckedOut = errors.New("document is already checked out")

	// ErrNameConflict indicates a sibling with the same name exists
	ErrNameConflict = errors.New("content with the same name already exists")

	// ErrParentNoLongerExists indicates the restore destination was deleted
	ErrParentNoLongerExists = errors.New("restore destination no longer exists")

	// ErrCorruptChangeToken indicates the latest stored change token is not numeric
	ErrCorruptChangeToken = errors.New("stored change token is not numeric")

	// ErrStoreCorruption indicates a dangling reference found mid-computation
	ErrStoreCorruption = errors.New("store corruption")

	// ErrTreeTooLarge indicates a tree walk exceeded the configured bounds
	ErrTreeTooLarge = errors.New("tree exceeds configured depth or size")

	// ErrConstraint indicates a type constraint was violated
	ErrConstraint = errors.New("constraint violation")

	// ErrAlreadyExists indicates a row with the same id or change token is already stored
	ErrAlreadyExists = errors.New("already exists")

	// ErrBlobNotFound indicates an attachment blob is missing from its storage backend
	ErrBlobNotFound = errors.New("blob not found")

	// ErrDownloadURLNotSupported indicates a storage backend cannot hand out direct download URLs
	ErrDownloadURLNotSupported = errors.New("direct download URLs not supported")

	// ErrLockNotAcquired indicates a change log or version series lock could not be taken
	ErrLockNotAcquired = errors.New("lock not acquired")
)

// ContentError represents an error related to content operations
type ContentError struct {
	ContentID string
	Op        string
	Err       error
}

func (e *ContentError) Error() string {
	return fmt.Sprintf("content operation %s failed for content %s: %v", e.Op, e.ContentID, e.Err)
}

func (e *ContentError) Unwrap() error {
	return e.Err
}

// ArchiveError represents an error related to archive operations
type ArchiveError struct {
	ArchiveID string
	Op        string
	Err       error
}

func (e *ArchiveError) Error() string {
	return fmt.Sprintf("archive operation %s failed for archive %s: %v", e.Op, e.ArchiveID, e.Err)
}

func (e *ArchiveError) Unwrap() error {
	return e.Err
}

// StorageError represents an error related to attachment blob storage
type StorageError struct {
	Backend string
	Key     string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s on backend %s: %v", e.Op, e.Key, e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// DeleteTreeError is returned when a tree deletion aborts on the first failure.
type DeleteTreeError struct {
	FolderID   string
	FailureIDs []string
	Err        error
}

func (e *DeleteTreeError) Error() string {
	return fmt.Sprintf("delete tree %s aborted (failed: %s): %v", e.FolderID, strings.Join(e.FailureIDs, ","), e.Err)
}

func (e *DeleteTreeError) Unwrap() error {
	return e.Err
}

// storeCorruption is the panic value raised when an ancestor walk hits a dangling parent.
type storeCorruption struct {
	ObjectID string
	ParentID string
}

func (p storeCorruption) Error() string {
	return fmt.Sprintf("%v: parent %s of %s cannot be resolved", ErrStoreCorruption, p.ParentID, p.ObjectID)
}

func (p storeCorruption) Unwrap() error { return ErrStoreCorruption }
