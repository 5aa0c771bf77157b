package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/content-lifecycle/pkg/lifecycle/objectkey"
)

// DefaultRootFolderID is used for repositories registered without an explicit root id.
const DefaultRootFolderID = "root"

// RepositoryInfo describes one repository served by the engine.
type RepositoryInfo struct {
	ID           string
	RootFolderID string
}

// Settings holds behaviour switches of the engine.
type Settings struct {
	// BuildUniqueName renames colliding names with a "(N)" suffix. When
	// false a collision is rejected with ErrNameConflict.
	BuildUniqueName bool
	// InheritPermissionAtTopLevel makes objects directly under the root inherit its ACL.
	InheritPermissionAtTopLevel bool
	// MaxTreeDepth bounds ancestor walks and tree deletion depth.
	MaxTreeDepth int
	// MaxTreeNodes bounds the number of objects a single tree deletion visits.
	MaxTreeNodes int
}

// DefaultSettings returns the settings used when none are given.
func DefaultSettings() Settings {
	return Settings{
		BuildUniqueName: true,
		MaxTreeDepth:    256,
		MaxTreeNodes:    100000,
	}
}

// service implements the Service interface
type service struct {
	repository   Repository
	blobStores   map[string]BlobStore
	defaultStore string
	keys         objectkey.Generator
	typeManager  TypeManager
	principals   PrincipalResolver
	indexer      Indexer
	locker       Locker
	logger       *slog.Logger
	repositories map[string]RepositoryInfo
	config       Settings
	now          func() time.Time
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithBlobStore adds an attachment storage backend. The first backend
// added becomes the default for new attachments.
func WithBlobStore(name string, store BlobStore) Option {
	return func(s *service) {
		if s.blobStores == nil {
			s.blobStores = make(map[string]BlobStore)
		}
		s.blobStores[name] = store
		if s.defaultStore == "" {
			s.defaultStore = name
		}
	}
}

// WithDefaultBlobStore selects the backend used for new attachments
func WithDefaultBlobStore(name string) Option {
	return func(s *service) {
		s.defaultStore = name
	}
}

// WithTypeManager sets the type definition source
func WithTypeManager(tm TypeManager) Option {
	return func(s *service) {
		s.typeManager = tm
	}
}

// WithPrincipalResolver sets how system principals are rewritten
func WithPrincipalResolver(p PrincipalResolver) Option {
	return func(s *service) {
		s.principals = p
	}
}

// WithIndexer sets the index refresh hook
func WithIndexer(indexer Indexer) Option {
	return func(s *service) {
		s.indexer = indexer
	}
}

// WithLocker sets the lock used to serialize change token assignment
func WithLocker(locker Locker) Option {
	return func(s *service) {
		s.locker = locker
	}
}

// WithLogger sets the logger for the service
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithRepositoryInfo registers a repository and its root folder id
func WithRepositoryInfo(info RepositoryInfo) Option {
	return func(s *service) {
		if s.repositories == nil {
			s.repositories = make(map[string]RepositoryInfo)
		}
		s.repositories[info.ID] = info
	}
}

// WithSettings replaces the default settings
func WithSettings(settings Settings) Option {
	return func(s *service) {
		s.config = settings
	}
}

// WithObjectKeyGenerator sets the layout of attachment blobs inside a backend
func WithObjectKeyGenerator(gen objectkey.Generator) Option {
	return func(s *service) {
		s.keys = gen
	}
}

// WithClock overrides the time source. Mostly useful in tests.
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		blobStores:   make(map[string]BlobStore),
		repositories: make(map[string]RepositoryInfo),
		config:       DefaultSettings(),
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.defaultStore != "" {
		if _, ok := s.blobStores[s.defaultStore]; !ok {
			return nil, fmt.Errorf("default blob store %q is not registered", s.defaultStore)
		}
	}
	if s.keys == nil {
		s.keys = objectkey.NewFlatGenerator()
	}
	if s.typeManager == nil {
		s.typeManager = NewStaticTypeManager()
	}
	if s.principals == nil {
		s.principals = NewStaticPrincipals("", "")
	}
	if s.indexer == nil {
		s.indexer = NewNoopIndexer()
	}
	if s.locker == nil {
		s.locker = NewLocalLocker()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.config.MaxTreeDepth <= 0 {
		s.config.MaxTreeDepth = DefaultSettings().MaxTreeDepth
	}
	if s.config.MaxTreeNodes <= 0 {
		s.config.MaxTreeNodes = DefaultSettings().MaxTreeNodes
	}

	return s, nil
}

func (s *service) rootFolderID(repositoryID string) string {
	if info, ok := s.repositories[repositoryID]; ok && info.RootFolderID != "" {
		return info.RootFolderID
	}
	return DefaultRootFolderID
}

func (s *service) isRoot(repositoryID string, c *Content) bool {
	return c.ID == s.rootFolderID(repositoryID)
}

// Repository bootstrap

func (s *service) EnsureRootFolder(ctx context.Context, repositoryID string) (*Content, error) {
	if repositoryID == "" {
		return nil, fmt.Errorf("%w: repository id is required", ErrInvalidArgument)
	}
	rootID := s.rootFolderID(repositoryID)
	root, err := s.repository.GetContent(ctx, repositoryID, rootID)
	if err == nil {
		return root, nil
	}
	if !errors.Is(err, ErrContentNotFound) {
		return nil, &ContentError{ContentID: rootID, Op: "ensure_root", Err: err}
	}

	now := s.now()
	root = &Content{
		ID:           rootID,
		ObjectType:   string(BaseTypeFolder),
		BaseType:     BaseTypeFolder,
		ACLInherited: false,
		Creator:      PrincipalSystem,
		Created:      now,
		Modifier:     PrincipalSystem,
		Modified:     now,
		Folder:       &FolderInfo{AllowedChildTypeIDs: defaultAllowedChildTypes()},
	}
	if err := s.repository.CreateContent(ctx, repositoryID, root); err != nil {
		return nil, &ContentError{ContentID: rootID, Op: "ensure_root", Err: err}
	}
	s.logger.Info("created root folder", "repository_id", repositoryID, "object_id", rootID)
	return root, nil
}

// Read operations

func (s *service) GetContent(ctx context.Context, repositoryID, id string) (*Content, error) {
	return s.repository.GetContent(ctx, repositoryID, id)
}

func (s *service) GetChildren(ctx context.Context, repositoryID, folderID string) ([]*Content, error) {
	if _, err := s.getFolder(ctx, repositoryID, folderID); err != nil {
		return nil, err
	}
	return s.repository.GetChildren(ctx, repositoryID, folderID)
}

func (s *service) GetContentByPath(ctx context.Context, repositoryID, path string) (*Content, error) {
	if !strings.HasPrefix(path, "/") {
		return nil, fmt.Errorf("%w: path must be absolute: %q", ErrInvalidArgument, path)
	}
	current, err := s.repository.GetContent(ctx, repositoryID, s.rootFolderID(repositoryID))
	if err != nil {
		return nil, err
	}
	for _, segment := range strings.Split(path, "/") {
		if segment == "" {
			continue
		}
		if !current.IsFolder() {
			return nil, fmt.Errorf("%w: %s", ErrContentNotFound, path)
		}
		current, err = s.repository.GetChildByName(ctx, repositoryID, current.ID, segment)
		if err != nil {
			return nil, err
		}
	}
	return current, nil
}

func (s *service) GetParent(ctx context.Context, repositoryID, id string) (*Content, error) {
	content, err := s.repository.GetContent(ctx, repositoryID, id)
	if err != nil {
		return nil, err
	}
	if content.ParentID == "" {
		return nil, fmt.Errorf("%w: %s has no parent", ErrInvalidArgument, id)
	}
	return s.repository.GetContent(ctx, repositoryID, content.ParentID)
}

// CalculatePath joins the names of content and its ancestors. The root is "/".
func (s *service) CalculatePath(ctx context.Context, repositoryID string, content *Content) (string, error) {
	if s.isRoot(repositoryID, content) {
		return "/", nil
	}
	if content.ParentID == "" {
		return "", fmt.Errorf("%w: %s is not filed", ErrInvalidArgument, content.ID)
	}
	names := []string{content.Name}
	parentID := content.ParentID
	for depth := 0; ; depth++ {
		if depth > s.config.MaxTreeDepth {
			return "", fmt.Errorf("%w: path of %s", ErrTreeTooLarge, content.ID)
		}
		parent, err := s.repository.GetContent(ctx, repositoryID, parentID)
		if errors.Is(err, ErrContentNotFound) {
			return "", storeCorruption{ObjectID: content.ID, ParentID: parentID}
		}
		if err != nil {
			return "", err
		}
		if s.isRoot(repositoryID, parent) {
			break
		}
		names = append(names, parent.Name)
		parentID = parent.ParentID
	}
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return "/" + strings.Join(names, "/"), nil
}

// Create operations

func (s *service) CreateDocument(ctx context.Context, req CreateDocumentRequest) (*Content, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	repositoryID := req.RepositoryID
	td, err := s.typeDefinition(ctx, repositoryID, req.ObjectType, BaseTypeDocument)
	if err != nil {
		return nil, err
	}
	switch {
	case td.ContentStreamAllowed == ContentStreamRequired && req.ContentStream == nil:
		return nil, fmt.Errorf("%w: type %s requires a content stream", ErrConstraint, td.ID)
	case td.ContentStreamAllowed == ContentStreamNotAllowed && req.ContentStream != nil:
		return nil, fmt.Errorf("%w: type %s does not allow a content stream", ErrConstraint, td.ID)
	}
	parent, err := s.getFolder(ctx, repositoryID, req.ParentID)
	if err != nil {
		return nil, err
	}
	if err := checkAllowedChild(parent, td); err != nil {
		return nil, err
	}
	name, err := s.uniqueName(ctx, repositoryID, req.Name, parent.ID, "")
	if err != nil {
		return nil, err
	}

	state := req.VersioningState
	if state == "" {
		state = VersioningMajor
	}

	doc := s.newContent(ctx, repositoryID, td, name, parent.ID)
	doc.Description = req.Description
	doc.SecondaryTypeIDs = cloneStrings(req.SecondaryTypeIDs)
	doc.Document = &DocumentInfo{IsImmutable: req.IsImmutable}
	applyInitialVersion(doc.Document, state)

	if req.ContentStream != nil {
		att, err := s.createAttachment(ctx, repositoryID, req.ContentStream)
		if err != nil {
			return nil, err
		}
		doc.Document.AttachmentID = att.ID
	}

	vs, err := s.createVersionSeries(ctx, repositoryID, doc)
	if err != nil {
		return nil, err
	}
	doc.Document.VersionSeriesID = vs.ID

	if err := s.repository.CreateContent(ctx, repositoryID, doc); err != nil {
		return nil, &ContentError{ContentID: doc.ID, Op: "create_document", Err: err}
	}

	if state == VersioningCheckedOut {
		if err := s.markCheckedOut(ctx, repositoryID, vs, doc); err != nil {
			return nil, err
		}
	}

	if _, err := s.recordChange(ctx, repositoryID, doc, ChangeCreated); err != nil {
		return nil, err
	}
	s.refreshIndex(ctx, repositoryID)

	s.logger.Info("created document", "repository_id", repositoryID, "object_id", doc.ID, "name", doc.Name, "version_label", doc.Document.VersionLabel)
	return doc, nil
}

func (s *service) CreateDocumentFromSource(ctx context.Context, req CopyDocumentRequest) (*Content, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	repositoryID := req.RepositoryID
	source, err := s.repository.GetContent(ctx, repositoryID, req.SourceID)
	if err != nil {
		return nil, err
	}
	if !source.IsDocument() {
		return nil, fmt.Errorf("%w: %s is not a document", ErrInvalidArgument, source.ID)
	}
	td, err := s.typeDefinition(ctx, repositoryID, source.ObjectType, BaseTypeDocument)
	if err != nil {
		return nil, err
	}
	parent, err := s.getFolder(ctx, repositoryID, req.TargetFolderID)
	if err != nil {
		return nil, err
	}
	if err := checkAllowedChild(parent, td); err != nil {
		return nil, err
	}
	candidate := req.Name
	if candidate == "" {
		candidate = source.Name
	}
	name, err := s.uniqueName(ctx, repositoryID, candidate, parent.ID, "")
	if err != nil {
		return nil, err
	}

	state := req.VersioningState
	if state == "" {
		state = VersioningMajor
	}

	doc := s.newContent(ctx, repositoryID, td, name, parent.ID)
	doc.Description = source.Description
	doc.SecondaryTypeIDs = cloneStrings(source.SecondaryTypeIDs)
	doc.Document = &DocumentInfo{IsImmutable: source.Document.IsImmutable}
	applyInitialVersion(doc.Document, state)

	if source.Document.AttachmentID != "" {
		attID, err := s.copyAttachment(ctx, repositoryID, source.Document.AttachmentID)
		if err != nil {
			return nil, err
		}
		doc.Document.AttachmentID = attID
	}

	vs, err := s.createVersionSeries(ctx, repositoryID, doc)
	if err != nil {
		return nil, err
	}
	doc.Document.VersionSeriesID = vs.ID

	if err := s.repository.CreateContent(ctx, repositoryID, doc); err != nil {
		return nil, &ContentError{ContentID: doc.ID, Op: "copy_document", Err: err}
	}
	if state == VersioningCheckedOut {
		if err := s.markCheckedOut(ctx, repositoryID, vs, doc); err != nil {
			return nil, err
		}
	}

	if _, err := s.recordChange(ctx, repositoryID, doc, ChangeCreated); err != nil {
		return nil, err
	}
	s.refreshIndex(ctx, repositoryID)
	return doc, nil
}

func (s *service) CreateFolder(ctx context.Context, req CreateFolderRequest) (*Content, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	repositoryID := req.RepositoryID
	td, err := s.typeDefinition(ctx, repositoryID, req.ObjectType, BaseTypeFolder)
	if err != nil {
		return nil, err
	}
	parent, err := s.getFolder(ctx, repositoryID, req.ParentID)
	if err != nil {
		return nil, err
	}
	if err := checkAllowedChild(parent, td); err != nil {
		return nil, err
	}
	name, err := s.uniqueName(ctx, repositoryID, req.Name, parent.ID, "")
	if err != nil {
		return nil, err
	}

	allowed := cloneStrings(req.AllowedChildTypeIDs)
	if len(allowed) == 0 {
		allowed = defaultAllowedChildTypes()
	}

	folder := s.newContent(ctx, repositoryID, td, name, parent.ID)
	folder.Description = req.Description
	folder.SecondaryTypeIDs = cloneStrings(req.SecondaryTypeIDs)
	folder.Folder = &FolderInfo{AllowedChildTypeIDs: allowed}

	if err := s.repository.CreateContent(ctx, repositoryID, folder); err != nil {
		return nil, &ContentError{ContentID: folder.ID, Op: "create_folder", Err: err}
	}
	if _, err := s.recordChange(ctx, repositoryID, folder, ChangeCreated); err != nil {
		return nil, err
	}
	s.refreshIndex(ctx, repositoryID)

	s.logger.Info("created folder", "repository_id", repositoryID, "object_id", folder.ID, "name", folder.Name)
	return folder, nil
}

func (s *service) CreateRelationship(ctx context.Context, req CreateRelationshipRequest) (*Content, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	repositoryID := req.RepositoryID
	td, err := s.typeDefinition(ctx, repositoryID, req.ObjectType, BaseTypeRelationship)
	if err != nil {
		return nil, err
	}
	for _, id := range []string{req.SourceID, req.TargetID} {
		if _, err := s.repository.GetContent(ctx, repositoryID, id); err != nil {
			return nil, fmt.Errorf("relationship endpoint %s: %w", id, err)
		}
	}

	rel := s.newContent(ctx, repositoryID, td, req.Name, "")
	rel.Description = req.Description
	rel.Relationship = &RelationshipInfo{SourceID: req.SourceID, TargetID: req.TargetID}

	if err := s.repository.CreateContent(ctx, repositoryID, rel); err != nil {
		return nil, &ContentError{ContentID: rel.ID, Op: "create_relationship", Err: err}
	}
	if _, err := s.recordChange(ctx, repositoryID, rel, ChangeCreated); err != nil {
		return nil, err
	}
	s.refreshIndex(ctx, repositoryID)
	return rel, nil
}

func (s *service) CreatePolicy(ctx context.Context, req CreatePolicyRequest) (*Content, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	repositoryID := req.RepositoryID
	td, err := s.typeDefinition(ctx, repositoryID, req.ObjectType, BaseTypePolicy)
	if err != nil {
		return nil, err
	}

	policy := s.newContent(ctx, repositoryID, td, req.Name, "")
	policy.Description = req.Description
	policy.Policy = &PolicyInfo{PolicyText: req.PolicyText, AppliedIDs: []string{}}

	if err := s.repository.CreateContent(ctx, repositoryID, policy); err != nil {
		return nil, &ContentError{ContentID: policy.ID, Op: "create_policy", Err: err}
	}
	if _, err := s.recordChange(ctx, repositoryID, policy, ChangeCreated); err != nil {
		return nil, err
	}
	s.refreshIndex(ctx, repositoryID)
	return policy, nil
}

func (s *service) CreateItem(ctx context.Context, req CreateItemRequest) (*Content, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	repositoryID := req.RepositoryID
	td, err := s.typeDefinition(ctx, repositoryID, req.ObjectType, BaseTypeItem)
	if err != nil {
		return nil, err
	}

	name := req.Name
	parentID := ""
	if td.Fileable {
		if req.FolderID == "" {
			return nil, fmt.Errorf("%w: item type %s is fileable and needs a folder", ErrInvalidArgument, td.ID)
		}
		parent, err := s.getFolder(ctx, repositoryID, req.FolderID)
		if err != nil {
			return nil, err
		}
		if err := checkAllowedChild(parent, td); err != nil {
			return nil, err
		}
		if name, err = s.uniqueName(ctx, repositoryID, req.Name, parent.ID, ""); err != nil {
			return nil, err
		}
		parentID = parent.ID
	}

	item := s.newContent(ctx, repositoryID, td, name, parentID)
	item.Description = req.Description
	item.Item = &ItemInfo{}

	if err := s.repository.CreateContent(ctx, repositoryID, item); err != nil {
		return nil, &ContentError{ContentID: item.ID, Op: "create_item", Err: err}
	}
	if _, err := s.recordChange(ctx, repositoryID, item, ChangeCreated); err != nil {
		return nil, err
	}
	s.refreshIndex(ctx, repositoryID)
	return item, nil
}

// Update operations

func (s *service) UpdateProperties(ctx context.Context, req UpdatePropertiesRequest) (*Content, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	repositoryID := req.RepositoryID
	content, err := s.repository.GetContent(ctx, repositoryID, req.ObjectID)
	if err != nil {
		return nil, err
	}
	if content.IsDocument() && content.Document.IsImmutable {
		return nil, fmt.Errorf("%w: document %s is immutable", ErrConstraint, content.ID)
	}
	td, err := s.typeDefinition(ctx, repositoryID, content.ObjectType, content.BaseType)
	if err != nil {
		return nil, err
	}

	if req.Name != nil && *req.Name != content.Name {
		if err := checkUpdatable(td, content, PropertyName); err != nil {
			return nil, err
		}
		name, err := s.uniqueName(ctx, repositoryID, *req.Name, content.ParentID, content.ID)
		if err != nil {
			return nil, err
		}
		content.Name = name
	}
	if req.Description != nil {
		if err := checkUpdatable(td, content, PropertyDescription); err != nil {
			return nil, err
		}
		content.Description = *req.Description
	}
	if req.SecondaryTypeIDs != nil {
		if err := checkUpdatable(td, content, PropertySecondaryObjectTypeIDs); err != nil {
			return nil, err
		}
		content.SecondaryTypeIDs = cloneStrings(req.SecondaryTypeIDs)
	}

	s.touch(ctx, content)
	if err := s.repository.UpdateContent(ctx, repositoryID, content); err != nil {
		return nil, &ContentError{ContentID: content.ID, Op: "update_properties", Err: err}
	}
	if _, err := s.recordChange(ctx, repositoryID, content, ChangeUpdated); err != nil {
		return nil, err
	}
	s.refreshIndex(ctx, repositoryID)
	return content, nil
}

// Move files content under another folder. Documents move with their whole
// version series so older versions never outlive their folder.
func (s *service) Move(ctx context.Context, req MoveRequest) (*Content, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	repositoryID := req.RepositoryID
	content, err := s.repository.GetContent(ctx, repositoryID, req.ObjectID)
	if err != nil {
		return nil, err
	}
	if s.isRoot(repositoryID, content) || content.ParentID == "" {
		return nil, fmt.Errorf("%w: %s cannot be moved", ErrInvalidArgument, content.ID)
	}
	target, err := s.getFolder(ctx, repositoryID, req.TargetFolderID)
	if err != nil {
		return nil, err
	}
	if target.ID == content.ParentID {
		return content, nil
	}
	td, err := s.typeDefinition(ctx, repositoryID, content.ObjectType, content.BaseType)
	if err != nil {
		return nil, err
	}
	if err := checkAllowedChild(target, td); err != nil {
		return nil, err
	}
	if content.IsFolder() {
		if err := s.checkNotDescendant(ctx, repositoryID, content.ID, target); err != nil {
			return nil, err
		}
	}
	name, err := s.uniqueName(ctx, repositoryID, content.Name, target.ID, content.ID)
	if err != nil {
		return nil, err
	}

	if content.IsDocument() {
		versions, err := s.repository.GetAllVersions(ctx, repositoryID, content.Document.VersionSeriesID)
		if err != nil {
			return nil, err
		}
		for _, v := range versions {
			if v.ID == content.ID {
				continue
			}
			v.ParentID = target.ID
			if v.Name == content.Name {
				v.Name = name
			}
			if err := s.repository.UpdateContent(ctx, repositoryID, v); err != nil {
				return nil, &ContentError{ContentID: v.ID, Op: "move", Err: err}
			}
		}
	}

	content.ParentID = target.ID
	content.Name = name
	s.touch(ctx, content)
	if err := s.repository.UpdateContent(ctx, repositoryID, content); err != nil {
		return nil, &ContentError{ContentID: content.ID, Op: "move", Err: err}
	}
	if _, err := s.recordChange(ctx, repositoryID, content, ChangeUpdated); err != nil {
		return nil, err
	}
	s.refreshIndex(ctx, repositoryID)

	s.logger.Info("moved content", "repository_id", repositoryID, "object_id", content.ID, "target_folder_id", target.ID)
	return content, nil
}

// SetContentStream replaces the stream of a private working copy.
func (s *service) SetContentStream(ctx context.Context, repositoryID, pwcID string, stream *ContentStream) (*Content, error) {
	if stream == nil || stream.Reader == nil {
		return nil, fmt.Errorf("%w: content stream is required", ErrInvalidArgument)
	}
	pwc, err := s.repository.GetContent(ctx, repositoryID, pwcID)
	if err != nil {
		return nil, err
	}
	if !pwc.IsDocument() || !pwc.Document.IsPrivateWorkingCopy {
		return nil, fmt.Errorf("%w: %s is not a private working copy", ErrInvalidArgument, pwcID)
	}
	td, err := s.typeDefinition(ctx, repositoryID, pwc.ObjectType, BaseTypeDocument)
	if err != nil {
		return nil, err
	}
	if td.ContentStreamAllowed == ContentStreamNotAllowed {
		return nil, fmt.Errorf("%w: type %s does not allow a content stream", ErrConstraint, td.ID)
	}

	att, err := s.createAttachment(ctx, repositoryID, stream)
	if err != nil {
		return nil, err
	}
	previous := pwc.Document.AttachmentID
	pwc.Document.AttachmentID = att.ID
	s.touch(ctx, pwc)
	if err := s.repository.UpdateContent(ctx, repositoryID, pwc); err != nil {
		return nil, &ContentError{ContentID: pwc.ID, Op: "set_content_stream", Err: err}
	}
	if previous != "" {
		s.purgeAttachment(ctx, repositoryID, previous)
	}
	if _, err := s.recordChange(ctx, repositoryID, pwc, ChangeUpdated); err != nil {
		return nil, err
	}
	s.refreshIndex(ctx, repositoryID)
	return pwc, nil
}

// documentAttachment loads the attachment of a live document and the
// backend holding its blob.
func (s *service) documentAttachment(ctx context.Context, repositoryID, documentID, op string) (*Attachment, BlobStore, error) {
	doc, err := s.repository.GetContent(ctx, repositoryID, documentID)
	if err != nil {
		return nil, nil, err
	}
	if !doc.IsDocument() || doc.Document.AttachmentID == "" {
		return nil, nil, &ContentError{ContentID: documentID, Op: op, Err: ErrAttachmentNotFound}
	}
	att, err := s.repository.GetAttachment(ctx, repositoryID, doc.Document.AttachmentID)
	if err != nil {
		return nil, nil, &ContentError{ContentID: documentID, Op: op, Err: err}
	}
	store, err := s.getBlobStore(att.StorageBackend)
	if err != nil {
		return nil, nil, err
	}
	return att, store, nil
}

// GetContentStreamURL returns a direct download URL for the stream of a
// document when its storage backend can issue one.
func (s *service) GetContentStreamURL(ctx context.Context, repositoryID, documentID string) (string, error) {
	att, store, err := s.documentAttachment(ctx, repositoryID, documentID, "get_content_stream_url")
	if err != nil {
		return "", err
	}
	u, err := store.GetDownloadURL(ctx, att.ObjectKey, att.Name)
	if err != nil {
		return "", &StorageError{Backend: att.StorageBackend, Key: att.ObjectKey, Op: "download_url", Err: err}
	}
	return u, nil
}

func (s *service) GetContentStream(ctx context.Context, repositoryID, documentID string) (*Attachment, io.ReadCloser, error) {
	att, store, err := s.documentAttachment(ctx, repositoryID, documentID, "get_content_stream")
	if err != nil {
		return nil, nil, err
	}
	reader, err := store.Download(ctx, att.ObjectKey)
	if err != nil {
		return nil, nil, &StorageError{Backend: att.StorageBackend, Key: att.ObjectKey, Op: "download", Err: err}
	}
	return att, reader, nil
}

// Security operations

func (s *service) ApplyPolicy(ctx context.Context, repositoryID, policyID, objectID string) error {
	return s.changePolicy(ctx, repositoryID, policyID, objectID, true)
}

func (s *service) RemovePolicy(ctx context.Context, repositoryID, policyID, objectID string) error {
	return s.changePolicy(ctx, repositoryID, policyID, objectID, false)
}

func (s *service) changePolicy(ctx context.Context, repositoryID, policyID, objectID string, apply bool) error {
	policy, err := s.repository.GetContent(ctx, repositoryID, policyID)
	if err != nil {
		return err
	}
	if policy.Policy == nil {
		return fmt.Errorf("%w: %s is not a policy", ErrInvalidArgument, policyID)
	}
	object, err := s.repository.GetContent(ctx, repositoryID, objectID)
	if err != nil {
		return err
	}

	applied := make([]string, 0, len(policy.Policy.AppliedIDs)+1)
	found := false
	for _, id := range policy.Policy.AppliedIDs {
		if id == objectID {
			found = true
			if !apply {
				continue
			}
		}
		applied = append(applied, id)
	}
	switch {
	case apply && found:
		return nil
	case !apply && !found:
		return fmt.Errorf("%w: policy %s is not applied to %s", ErrInvalidArgument, policyID, objectID)
	case apply:
		applied = append(applied, objectID)
	}

	policy.Policy.AppliedIDs = applied
	s.touch(ctx, policy)
	if err := s.repository.UpdateContent(ctx, repositoryID, policy); err != nil {
		return &ContentError{ContentID: policyID, Op: "change_policy", Err: err}
	}

	s.touch(ctx, object)
	if err := s.repository.UpdateContent(ctx, repositoryID, object); err != nil {
		return &ContentError{ContentID: objectID, Op: "change_policy", Err: err}
	}
	if _, err := s.recordChange(ctx, repositoryID, object, ChangeSecurity); err != nil {
		return err
	}
	s.refreshIndex(ctx, repositoryID)
	return nil
}

// Helpers

// newContent fills the common header of a content about to be created.
func (s *service) newContent(ctx context.Context, repositoryID string, td *TypeDefinition, name, parentID string) *Content {
	now := s.now()
	user := PrincipalFrom(ctx)
	c := &Content{
		ID:         uuid.NewString(),
		Name:       name,
		ParentID:   parentID,
		ObjectType: td.ID,
		BaseType:   td.BaseType,
		Creator:    user,
		Created:    now,
		Modifier:   user,
		Modified:   now,
	}
	c.ACLInherited = s.aclInheritedWithDefault(repositoryID, c, nil)
	c.ACL = s.aclOnCreated(repositoryID, parentID, user)
	return c
}

func (s *service) touch(ctx context.Context, c *Content) {
	c.Modifier = PrincipalFrom(ctx)
	c.Modified = s.now()
}

func (s *service) getFolder(ctx context.Context, repositoryID, id string) (*Content, error) {
	folder, err := s.repository.GetContent(ctx, repositoryID, id)
	if errors.Is(err, ErrContentNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrParentNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if !folder.IsFolder() {
		return nil, fmt.Errorf("%w: %s is not a folder", ErrInvalidArgument, id)
	}
	return folder, nil
}

// typeDefinition resolves typeID, defaulting to the base type, and checks
// it belongs to base.
func (s *service) typeDefinition(ctx context.Context, repositoryID, typeID string, base BaseType) (*TypeDefinition, error) {
	if typeID == "" {
		typeID = string(base)
	}
	td, err := s.typeManager.GetTypeDefinition(ctx, repositoryID, typeID)
	if err != nil {
		return nil, err
	}
	if td.BaseType != base {
		return nil, fmt.Errorf("%w: type %s is not a %s type", ErrConstraint, typeID, base)
	}
	return td, nil
}

// checkNotDescendant rejects moving folderID below itself.
func (s *service) checkNotDescendant(ctx context.Context, repositoryID, folderID string, target *Content) error {
	current := target
	for depth := 0; ; depth++ {
		if current.ID == folderID {
			return fmt.Errorf("%w: cannot move %s below itself", ErrInvalidArgument, folderID)
		}
		if current.ParentID == "" {
			return nil
		}
		if depth > s.config.MaxTreeDepth {
			return fmt.Errorf("%w: ancestors of %s", ErrTreeTooLarge, target.ID)
		}
		parent, err := s.repository.GetContent(ctx, repositoryID, current.ParentID)
		if err != nil {
			return err
		}
		current = parent
	}
}

func (s *service) refreshIndex(ctx context.Context, repositoryID string) {
	if err := s.indexer.Refresh(ctx, repositoryID); err != nil {
		s.logger.Warn("index refresh failed", "repository_id", repositoryID, "error", err)
	}
}

func (s *service) getBlobStore(name string) (BlobStore, error) {
	store, ok := s.blobStores[name]
	if !ok {
		return nil, fmt.Errorf("%w: blob store %q is not registered", ErrInvalidArgument, name)
	}
	return store, nil
}

func (s *service) createAttachment(ctx context.Context, repositoryID string, stream *ContentStream) (*Attachment, error) {
	if stream.Reader == nil {
		return nil, fmt.Errorf("%w: content stream has no reader", ErrInvalidArgument)
	}
	if s.defaultStore == "" {
		return nil, fmt.Errorf("%w: no blob store configured", ErrInvalidArgument)
	}
	store := s.blobStores[s.defaultStore]
	att := &Attachment{
		ID:             uuid.NewString(),
		Name:           stream.FileName,
		Length:         stream.Length,
		MimeType:       stream.MimeType,
		StorageBackend: s.defaultStore,
		Creator:        PrincipalFrom(ctx),
		Created:        s.now(),
	}
	att.ObjectKey = s.keys.GenerateKey(repositoryID, att.ID, att.Name)

	if err := store.UploadWithParams(ctx, stream.Reader, UploadParams{ObjectKey: att.ObjectKey, MimeType: att.MimeType}); err != nil {
		return nil, &StorageError{Backend: s.defaultStore, Key: att.ObjectKey, Op: "upload", Err: err}
	}
	if att.Length == 0 {
		if meta, err := store.GetObjectMeta(ctx, att.ObjectKey); err == nil {
			att.Length = meta.Size
		}
	}
	if err := s.repository.CreateAttachment(ctx, repositoryID, att); err != nil {
		return nil, fmt.Errorf("create attachment: %w", err)
	}
	return att, nil
}

// copyAttachment duplicates the blob and the row of an attachment.
func (s *service) copyAttachment(ctx context.Context, repositoryID, attachmentID string) (string, error) {
	src, err := s.repository.GetAttachment(ctx, repositoryID, attachmentID)
	if err != nil {
		return "", fmt.Errorf("copy attachment %s: %w", attachmentID, err)
	}
	store, err := s.getBlobStore(src.StorageBackend)
	if err != nil {
		return "", err
	}
	reader, err := store.Download(ctx, src.ObjectKey)
	if err != nil {
		return "", &StorageError{Backend: src.StorageBackend, Key: src.ObjectKey, Op: "download", Err: err}
	}
	defer reader.Close()

	dst := &Attachment{
		ID:             uuid.NewString(),
		Name:           src.Name,
		Length:         src.Length,
		MimeType:       src.MimeType,
		StorageBackend: src.StorageBackend,
		Creator:        PrincipalFrom(ctx),
		Created:        s.now(),
	}
	dst.ObjectKey = s.keys.GenerateKey(repositoryID, dst.ID, dst.Name)
	if err := store.UploadWithParams(ctx, reader, UploadParams{ObjectKey: dst.ObjectKey, MimeType: dst.MimeType}); err != nil {
		return "", &StorageError{Backend: dst.StorageBackend, Key: dst.ObjectKey, Op: "upload", Err: err}
	}
	if err := s.repository.CreateAttachment(ctx, repositoryID, dst); err != nil {
		return "", fmt.Errorf("create attachment: %w", err)
	}
	return dst.ID, nil
}

// purgeAttachment removes an attachment row and its blob without archiving.
// Failures are logged; the owning object is already detached from it.
func (s *service) purgeAttachment(ctx context.Context, repositoryID, attachmentID string) {
	att, err := s.repository.GetAttachment(ctx, repositoryID, attachmentID)
	if err != nil {
		s.logger.Warn("attachment to purge not found", "repository_id", repositoryID, "attachment_id", attachmentID, "error", err)
		return
	}
	if err := s.repository.DeleteAttachment(ctx, repositoryID, attachmentID); err != nil {
		s.logger.Warn("failed to delete attachment", "repository_id", repositoryID, "attachment_id", attachmentID, "error", err)
		return
	}
	s.deleteBlob(ctx, att)
}

func (s *service) deleteBlob(ctx context.Context, att *Attachment) {
	store, err := s.getBlobStore(att.StorageBackend)
	if err == nil {
		err = store.Delete(ctx, att.ObjectKey)
	}
	if err != nil {
		s.logger.Warn("failed to delete blob", "backend", att.StorageBackend, "object_key", att.ObjectKey, "error", err)
	}
}

func defaultAllowedChildTypes() []string {
	return []string{string(BaseTypeFolder), string(BaseTypeDocument), string(BaseTypeItem)}
}

// checkAllowedChild reports whether folder accepts objects of td.
func checkAllowedChild(folder *Content, td *TypeDefinition) error {
	allowed := folder.Folder.AllowedChildTypeIDs
	if len(allowed) == 0 {
		return nil
	}
	for _, id := range allowed {
		if id == td.ID || id == string(td.BaseType) {
			return nil
		}
	}
	return fmt.Errorf("%w: folder %s does not allow children of type %s", ErrConstraint, folder.ID, td.ID)
}

// checkUpdatable enforces the updatability of property on content.
// Properties the type does not define are left unchecked.
func checkUpdatable(td *TypeDefinition, content *Content, property string) error {
	pd, ok := td.PropertyDefinitions[property]
	if !ok {
		return nil
	}
	switch pd.Updatability {
	case UpdatabilityReadWrite:
		return nil
	case UpdatabilityWhenCheckedOut:
		if content.IsDocument() && content.Document.IsPrivateWorkingCopy {
			return nil
		}
	}
	return fmt.Errorf("%w: property %s of %s is not updatable", ErrConstraint, property, content.ID)
}
