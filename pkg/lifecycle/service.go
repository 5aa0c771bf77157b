package lifecycle

import (
	"context"
	"io"
)

// Service defines the content lifecycle operations of a repository.
//
// Every mutation writes exactly one change event and then triggers the
// index refresh hook. Deletes are archived and can be restored.
type Service interface {
	// Repository bootstrap
	EnsureRootFolder(ctx context.Context, repositoryID string) (*Content, error)

	// Read operations
	GetContent(ctx context.Context, repositoryID, id string) (*Content, error)
	GetChildren(ctx context.Context, repositoryID, folderID string) ([]*Content, error)
	GetContentByPath(ctx context.Context, repositoryID, path string) (*Content, error)
	GetParent(ctx context.Context, repositoryID, id string) (*Content, error)
	CalculatePath(ctx context.Context, repositoryID string, content *Content) (string, error)

	// Create operations
	CreateDocument(ctx context.Context, req CreateDocumentRequest) (*Content, error)
	CreateDocumentFromSource(ctx context.Context, req CopyDocumentRequest) (*Content, error)
	CreateFolder(ctx context.Context, req CreateFolderRequest) (*Content, error)
	CreateRelationship(ctx context.Context, req CreateRelationshipRequest) (*Content, error)
	CreatePolicy(ctx context.Context, req CreatePolicyRequest) (*Content, error)
	CreateItem(ctx context.Context, req CreateItemRequest) (*Content, error)

	// Update operations
	UpdateProperties(ctx context.Context, req UpdatePropertiesRequest) (*Content, error)
	Move(ctx context.Context, req MoveRequest) (*Content, error)
	SetContentStream(ctx context.Context, repositoryID, pwcID string, stream *ContentStream) (*Content, error)
	GetContentStreamURL(ctx context.Context, repositoryID, documentID string) (string, error)
	GetContentStream(ctx context.Context, repositoryID, documentID string) (*Attachment, io.ReadCloser, error)

	// Versioning operations
	CheckOut(ctx context.Context, repositoryID, documentID string) (*Content, error)
	CancelCheckOut(ctx context.Context, repositoryID, pwcID string) error
	CheckIn(ctx context.Context, req CheckInRequest) (*Content, error)
	GetAllVersions(ctx context.Context, repositoryID, versionSeriesID string, includePWC bool) ([]*Content, error)
	GetLatestVersion(ctx context.Context, repositoryID, versionSeriesID string, major bool) (*Content, error)
	GetVersionSeries(ctx context.Context, repositoryID, versionSeriesID string) (*VersionSeries, error)
	GetCheckedOutDocuments(ctx context.Context, repositoryID, folderID string) ([]*Content, error)

	// Security operations
	ApplyPolicy(ctx context.Context, repositoryID, policyID, objectID string) error
	RemovePolicy(ctx context.Context, repositoryID, policyID, objectID string) error
	ApplyACL(ctx context.Context, req ApplyACLRequest) (*ACL, error)
	GetEffectiveACL(ctx context.Context, repositoryID, objectID string) (*ACL, error)

	// Delete operations
	Delete(ctx context.Context, repositoryID, id string) error
	DeleteDocument(ctx context.Context, repositoryID, id string, allVersions bool) error
	DeleteTree(ctx context.Context, req DeleteTreeRequest) ([]string, error)

	// Change log operations
	LatestChangeToken(ctx context.Context, repositoryID string) (string, error)
	GetChange(ctx context.Context, repositoryID, token string) (*Change, error)
	LatestChanges(ctx context.Context, repositoryID, sinceToken string, maxItems int) ([]*Change, string, error)

	// Archive operations
	ListArchives(ctx context.Context, repositoryID string, skip, limit int, desc bool) ([]*Archive, error)
	GetArchive(ctx context.Context, repositoryID, archiveID string) (*Archive, error)
	GetArchiveByOriginalID(ctx context.Context, repositoryID, originalID string) (*Archive, error)
	RestoreArchive(ctx context.Context, repositoryID, archiveID string) (*Content, error)
	DestroyArchive(ctx context.Context, repositoryID, archiveID string) error
}
