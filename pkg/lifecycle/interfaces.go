package lifecycle

import (
	"context"
	"io"
	"time"
)

// Repository defines the persistence collaborator. Every method is scoped
// to one repository id. Getters return copies; callers save changes back
// explicitly.
type Repository interface {
	// Content operations
	CreateContent(ctx context.Context, repositoryID string, content *Content) error
	GetContent(ctx context.Context, repositoryID, id string) (*Content, error)
	UpdateContent(ctx context.Context, repositoryID string, content *Content) error
	DeleteContent(ctx context.Context, repositoryID, id string) error

	// GetChildren returns the latest-version index of a folder: every
	// non-document child plus the latest version of each document series.
	GetChildren(ctx context.Context, repositoryID, folderID string) ([]*Content, error)
	GetChildByName(ctx context.Context, repositoryID, folderID, name string) (*Content, error)
	GetAppliedPolicies(ctx context.Context, repositoryID, objectID string) ([]*Content, error)

	// Version operations
	CreateVersionSeries(ctx context.Context, repositoryID string, vs *VersionSeries) error
	GetVersionSeries(ctx context.Context, repositoryID, id string) (*VersionSeries, error)
	UpdateVersionSeries(ctx context.Context, repositoryID string, vs *VersionSeries) error
	DeleteVersionSeries(ctx context.Context, repositoryID, id string) error
	// GetAllVersions returns every live version of a series, PWC included, oldest first.
	GetAllVersions(ctx context.Context, repositoryID, versionSeriesID string) ([]*Content, error)
	GetLatestVersion(ctx context.Context, repositoryID, versionSeriesID string) (*Content, error)
	GetLatestMajorVersion(ctx context.Context, repositoryID, versionSeriesID string) (*Content, error)
	// GetCheckedOutDocuments lists PWCs filed in folderID, or all PWCs when folderID is empty.
	GetCheckedOutDocuments(ctx context.Context, repositoryID, folderID string) ([]*Content, error)

	// Attachment operations
	CreateAttachment(ctx context.Context, repositoryID string, attachment *Attachment) error
	GetAttachment(ctx context.Context, repositoryID, id string) (*Attachment, error)
	DeleteAttachment(ctx context.Context, repositoryID, id string) error

	// Change log operations
	CreateChange(ctx context.Context, repositoryID string, change *Change) error
	// GetLatestChange returns the most recently written change or ErrChangeNotFound.
	GetLatestChange(ctx context.Context, repositoryID string) (*Change, error)
	GetChange(ctx context.Context, repositoryID, token string) (*Change, error)
	// GetChangesSince returns changes written after sinceToken in write order.
	// An empty sinceToken starts at the beginning of the log.
	GetChangesSince(ctx context.Context, repositoryID, sinceToken string, limit int) ([]*Change, error)

	// Archive operations
	CreateArchive(ctx context.Context, repositoryID string, archive *Archive) error
	GetArchive(ctx context.Context, repositoryID, id string) (*Archive, error)
	GetArchiveByOriginalID(ctx context.Context, repositoryID, originalID string) (*Archive, error)
	ListArchives(ctx context.Context, repositoryID string, skip, limit int, desc bool) ([]*Archive, error)
	GetArchivesOfVersionSeries(ctx context.Context, repositoryID, versionSeriesID string) ([]*Archive, error)
	// GetChildArchives returns archives whose ParentID is the original id of a folder archive.
	GetChildArchives(ctx context.Context, repositoryID, parentOriginalID string) ([]*Archive, error)
	GetAttachmentArchive(ctx context.Context, repositoryID, attachmentID string) (*Archive, error)
	DeleteArchive(ctx context.Context, repositoryID, id string) error
}

// BlobStore defines the interface for attachment storage backends
type BlobStore interface {
	// Upload uploads content directly
	Upload(ctx context.Context, objectKey string, reader io.Reader) error

	// UploadWithParams uploads content with additional parameters
	UploadWithParams(ctx context.Context, reader io.Reader, params UploadParams) error

	// Download downloads content directly
	Download(ctx context.Context, objectKey string) (io.ReadCloser, error)

	// Delete deletes content
	Delete(ctx context.Context, objectKey string) error

	// GetObjectMeta retrieves metadata for an object
	GetObjectMeta(ctx context.Context, objectKey string) (*ObjectMeta, error)

	// GetDownloadURL returns a URL the client can fetch the object from
	// directly, or ErrDownloadURLNotSupported
	GetDownloadURL(ctx context.Context, objectKey string, downloadFilename string) (string, error)
}

// TypeManager resolves type definitions.
type TypeManager interface {
	GetTypeDefinition(ctx context.Context, repositoryID, typeID string) (*TypeDefinition, error)
}

// PrincipalResolver maps the stored system principals to the ids a repository exposes.
type PrincipalResolver interface {
	Anonymous(repositoryID string) string
	Anyone(repositoryID string) string
}

// Indexer is the search index refresh hook. It is called after every
// committed mutation; its errors are logged and never fail the mutation.
type Indexer interface {
	Refresh(ctx context.Context, repositoryID string) error
}

// Locker serializes change-token assignment per repository.
type Locker interface {
	// Lock blocks until key is held or ctx is done. The returned func releases it.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// ObjectMeta contains metadata about an object in storage
type ObjectMeta struct {
	Key         string
	Size        int64
	ContentType string
	UpdatedAt   time.Time
	ETag        string
	Metadata    map[string]string
}

// UploadParams contains parameters for uploading an object
type UploadParams struct {
	ObjectKey string
	MimeType  string
}
