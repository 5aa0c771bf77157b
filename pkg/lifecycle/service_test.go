package lifecycle_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/content-lifecycle/pkg/lifecycle"
	"github.com/tendant/content-lifecycle/pkg/lifecycle/objectkey"
	"github.com/tendant/content-lifecycle/pkg/lifecycle/repo/memory"
	"github.com/tendant/content-lifecycle/pkg/lifecycle/storage/fs"
	memorystorage "github.com/tendant/content-lifecycle/pkg/lifecycle/storage/memory"
)

func TestServiceCreation(t *testing.T) {
	tests := []struct {
		name        string
		options     []lifecycle.Option
		expectError bool
	}{
		{
			name:        "no options should fail",
			options:     []lifecycle.Option{},
			expectError: true,
		},
		{
			name: "with repository should succeed",
			options: []lifecycle.Option{
				lifecycle.WithRepository(memory.New()),
			},
		},
		{
			name: "with repository and blob store should succeed",
			options: []lifecycle.Option{
				lifecycle.WithRepository(memory.New()),
				lifecycle.WithBlobStore("memory", memorystorage.New()),
			},
		},
		{
			name: "unknown default blob store should fail",
			options: []lifecycle.Option{
				lifecycle.WithRepository(memory.New()),
				lifecycle.WithBlobStore("memory", memorystorage.New()),
				lifecycle.WithDefaultBlobStore("s3"),
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := lifecycle.New(tt.options...)
			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, svc)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, svc)
			}
		})
	}
}

func TestEnsureRootFolder(t *testing.T) {
	f := setupFixture(t)

	root, err := f.svc.EnsureRootFolder(f.ctx, repoID)
	require.NoError(t, err)
	assert.Equal(t, rootID, root.ID)
	assert.True(t, root.IsFolder())
	assert.False(t, root.ACLInherited)
	assert.Equal(t, lifecycle.PrincipalSystem, root.Creator)

	path, err := f.svc.CalculatePath(f.ctx, repoID, root)
	require.NoError(t, err)
	assert.Equal(t, "/", path)

	// bootstrapping is not a change
	assert.Empty(t, f.latestToken(t))

	_, err = f.svc.EnsureRootFolder(f.ctx, "")
	assert.ErrorIs(t, err, lifecycle.ErrInvalidArgument)
}

func TestCreateFolderAndDocument(t *testing.T) {
	f := setupFixture(t)

	folder := f.folder(t, rootID, "docs")
	assert.Equal(t, rootID, folder.ParentID)
	assert.Equal(t, "alice", folder.Creator)
	assert.NotEmpty(t, folder.ChangeToken)

	doc := f.document(t, folder.ID, "a.txt", "hello")
	assert.Equal(t, lifecycle.BaseTypeDocument, doc.BaseType)
	assert.Equal(t, lifecycle.InitialMajorLabel, doc.Document.VersionLabel)
	assert.True(t, doc.Document.IsLatestVersion)
	assert.True(t, doc.Document.IsMajorVersion)
	assert.True(t, doc.Document.IsLatestMajorVersion)
	assert.False(t, doc.Document.IsPrivateWorkingCopy)
	assert.NotEmpty(t, doc.Document.VersionSeriesID)
	assert.NotEmpty(t, doc.Document.AttachmentID)

	t.Run("ContentStream", func(t *testing.T) {
		att, reader, err := f.svc.GetContentStream(f.ctx, repoID, doc.ID)
		require.NoError(t, err)
		reader.Close()
		assert.Equal(t, "a.txt", att.Name)
		assert.Equal(t, "text/plain", att.MimeType)
		assert.Equal(t, int64(len("hello")), att.Length)
		assert.Equal(t, "A/"+repoID+"/"+att.ID, att.ObjectKey)
		assert.Equal(t, "hello", f.body(t, doc.ID))
	})

	t.Run("Navigation", func(t *testing.T) {
		children, err := f.svc.GetChildren(f.ctx, repoID, folder.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"a.txt"}, names(children))

		path, err := f.svc.CalculatePath(f.ctx, repoID, doc)
		require.NoError(t, err)
		assert.Equal(t, "/docs/a.txt", path)

		found, err := f.svc.GetContentByPath(f.ctx, repoID, "/docs/a.txt")
		require.NoError(t, err)
		assert.Equal(t, doc.ID, found.ID)

		parent, err := f.svc.GetParent(f.ctx, repoID, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, folder.ID, parent.ID)

		_, err = f.svc.GetContentByPath(f.ctx, repoID, "/docs/missing.txt")
		assert.ErrorIs(t, err, lifecycle.ErrContentNotFound)
		_, err = f.svc.GetContentByPath(f.ctx, repoID, "/docs/a.txt/deeper")
		assert.ErrorIs(t, err, lifecycle.ErrContentNotFound)
		_, err = f.svc.GetContentByPath(f.ctx, repoID, "docs")
		assert.ErrorIs(t, err, lifecycle.ErrInvalidArgument)
	})

	t.Run("InvalidRequests", func(t *testing.T) {
		_, err := f.svc.CreateDocument(f.ctx, lifecycle.CreateDocumentRequest{RepositoryID: repoID, ParentID: folder.ID})
		assert.ErrorIs(t, err, lifecycle.ErrInvalidArgument)

		_, err = f.svc.CreateDocument(f.ctx, lifecycle.CreateDocumentRequest{RepositoryID: repoID, ParentID: folder.ID, Name: "a/b.txt"})
		assert.ErrorIs(t, err, lifecycle.ErrInvalidArgument)

		_, err = f.svc.CreateDocument(f.ctx, lifecycle.CreateDocumentRequest{RepositoryID: repoID, ParentID: "missing", Name: "x.txt"})
		assert.ErrorIs(t, err, lifecycle.ErrParentNotFound)

		_, err = f.svc.CreateFolder(f.ctx, lifecycle.CreateFolderRequest{RepositoryID: repoID, ParentID: doc.ID, Name: "inside"})
		assert.ErrorIs(t, err, lifecycle.ErrInvalidArgument)

		_, err = f.svc.CreateFolder(f.ctx, lifecycle.CreateFolderRequest{RepositoryID: repoID, ParentID: folder.ID, Name: "x", ObjectType: "cmis:document"})
		assert.ErrorIs(t, err, lifecycle.ErrConstraint)
	})
}

func TestCreateDocumentVersioningStates(t *testing.T) {
	f := setupFixture(t)
	folder := f.folder(t, rootID, "docs")

	minor, err := f.svc.CreateDocument(f.ctx, lifecycle.CreateDocumentRequest{
		RepositoryID:    repoID,
		ParentID:        folder.ID,
		Name:            "draft.txt",
		VersioningState: lifecycle.VersioningMinor,
	})
	require.NoError(t, err)
	assert.Equal(t, lifecycle.InitialMinorLabel, minor.Document.VersionLabel)
	assert.True(t, minor.Document.IsLatestVersion)
	assert.False(t, minor.Document.IsMajorVersion)
	assert.False(t, minor.Document.IsLatestMajorVersion)

	checkedOut, err := f.svc.CreateDocument(f.ctx, lifecycle.CreateDocumentRequest{
		RepositoryID:    repoID,
		ParentID:        folder.ID,
		Name:            "wip.txt",
		VersioningState: lifecycle.VersioningCheckedOut,
	})
	require.NoError(t, err)
	assert.True(t, checkedOut.Document.IsPrivateWorkingCopy)
	assert.Empty(t, checkedOut.Document.VersionLabel)
	assert.False(t, checkedOut.Document.IsLatestVersion)

	vs, err := f.svc.GetVersionSeries(f.ctx, repoID, checkedOut.Document.VersionSeriesID)
	require.NoError(t, err)
	assert.True(t, vs.CheckedOut)
	assert.Equal(t, checkedOut.ID, vs.CheckedOutID)
	assert.Equal(t, "alice", vs.CheckedOutBy)

	pwcs, err := f.svc.GetCheckedOutDocuments(f.ctx, repoID, folder.ID)
	require.NoError(t, err)
	require.Len(t, pwcs, 1)
	assert.Equal(t, checkedOut.ID, pwcs[0].ID)

	// working copies are not children
	children, err := f.svc.GetChildren(f.ctx, repoID, folder.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"draft.txt"}, names(children))

	_, err = f.svc.CreateDocument(f.ctx, lifecycle.CreateDocumentRequest{
		RepositoryID:    repoID,
		ParentID:        folder.ID,
		Name:            "bad.txt",
		VersioningState: "sideways",
	})
	assert.ErrorIs(t, err, lifecycle.ErrInvalidArgument)
}

func TestUpdateProperties(t *testing.T) {
	f := setupFixture(t)
	folder := f.folder(t, rootID, "docs")
	f.document(t, folder.ID, "a.txt", "a")
	b := f.document(t, folder.ID, "b.txt", "b")

	updated, err := f.svc.UpdateProperties(f.ctx, lifecycle.UpdatePropertiesRequest{
		RepositoryID: repoID,
		ObjectID:     b.ID,
		Name:         ptr("a.txt"),
		Description:  ptr("second"),
	})
	require.NoError(t, err)
	assert.Equal(t, "a(1).txt", updated.Name)
	assert.Equal(t, "second", updated.Description)

	changes := f.changes(t)
	last := changes[len(changes)-1]
	assert.Equal(t, lifecycle.ChangeUpdated, last.ChangeType)
	assert.Equal(t, b.ID, last.ObjectID)
	assert.Equal(t, "a(1).txt", last.Name)

	// renaming to its own name keeps it
	same, err := f.svc.UpdateProperties(f.ctx, lifecycle.UpdatePropertiesRequest{
		RepositoryID: repoID,
		ObjectID:     b.ID,
		Name:         ptr("a(1).txt"),
	})
	require.NoError(t, err)
	assert.Equal(t, "a(1).txt", same.Name)

	immutable, err := f.svc.CreateDocument(f.ctx, lifecycle.CreateDocumentRequest{
		RepositoryID: repoID,
		ParentID:     folder.ID,
		Name:         "frozen.txt",
		IsImmutable:  true,
	})
	require.NoError(t, err)
	_, err = f.svc.UpdateProperties(f.ctx, lifecycle.UpdatePropertiesRequest{
		RepositoryID: repoID,
		ObjectID:     immutable.ID,
		Description:  ptr("thaw"),
	})
	assert.ErrorIs(t, err, lifecycle.ErrConstraint)
}

func TestMove(t *testing.T) {
	f := setupFixture(t)
	src := f.folder(t, rootID, "src")
	dst := f.folder(t, rootID, "dst")
	nested := f.folder(t, src.ID, "nested")

	doc := f.document(t, src.ID, "a.txt", "v1")
	v2 := f.checkIn(t, f.checkOut(t, doc.ID).ID, false, "v2")
	f.document(t, dst.ID, "a.txt", "other")

	before := len(f.changes(t))
	moved, err := f.svc.Move(f.ctx, lifecycle.MoveRequest{RepositoryID: repoID, ObjectID: v2.ID, TargetFolderID: dst.ID})
	require.NoError(t, err)
	assert.Equal(t, dst.ID, moved.ParentID)
	assert.Equal(t, "a(1).txt", moved.Name)

	changes := f.changes(t)
	require.Len(t, changes, before+1)
	assert.Equal(t, lifecycle.ChangeUpdated, changes[before].ChangeType)
	assert.Equal(t, v2.ID, changes[before].ObjectID)

	// older versions follow the latest one
	older, err := f.svc.GetContent(f.ctx, repoID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, dst.ID, older.ParentID)

	path, err := f.svc.CalculatePath(f.ctx, repoID, moved)
	require.NoError(t, err)
	assert.Equal(t, "/dst/a(1).txt", path)

	_, err = f.svc.Move(f.ctx, lifecycle.MoveRequest{RepositoryID: repoID, ObjectID: src.ID, TargetFolderID: nested.ID})
	assert.ErrorIs(t, err, lifecycle.ErrInvalidArgument)

	_, err = f.svc.Move(f.ctx, lifecycle.MoveRequest{RepositoryID: repoID, ObjectID: rootID, TargetFolderID: dst.ID})
	assert.ErrorIs(t, err, lifecycle.ErrInvalidArgument)
}

func TestCreateDocumentFromSource(t *testing.T) {
	f := setupFixture(t)
	src := f.folder(t, rootID, "src")
	dst := f.folder(t, rootID, "dst")
	doc := f.document(t, src.ID, "a.txt", "payload")

	cp, err := f.svc.CreateDocumentFromSource(f.ctx, lifecycle.CopyDocumentRequest{
		RepositoryID:   repoID,
		SourceID:       doc.ID,
		TargetFolderID: dst.ID,
	})
	require.NoError(t, err)
	assert.NotEqual(t, doc.ID, cp.ID)
	assert.NotEqual(t, doc.Document.VersionSeriesID, cp.Document.VersionSeriesID)
	assert.NotEqual(t, doc.Document.AttachmentID, cp.Document.AttachmentID)
	assert.Equal(t, "a.txt", cp.Name)
	assert.Equal(t, lifecycle.InitialMajorLabel, cp.Document.VersionLabel)
	assert.Equal(t, "payload", f.body(t, cp.ID))

	again, err := f.svc.CreateDocumentFromSource(f.ctx, lifecycle.CopyDocumentRequest{
		RepositoryID:   repoID,
		SourceID:       doc.ID,
		TargetFolderID: dst.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "a(1).txt", again.Name)
	assert.Len(t, f.store.Keys(), 3)
}

func TestUnfiledObjectsAndPolicies(t *testing.T) {
	f := setupFixture(t)
	folder := f.folder(t, rootID, "docs")
	a := f.document(t, folder.ID, "a.txt", "a")
	b := f.document(t, folder.ID, "b.txt", "b")

	rel, err := f.svc.CreateRelationship(f.ctx, lifecycle.CreateRelationshipRequest{
		RepositoryID: repoID,
		Name:         "references",
		SourceID:     a.ID,
		TargetID:     b.ID,
	})
	require.NoError(t, err)
	assert.Empty(t, rel.ParentID)
	assert.Equal(t, a.ID, rel.Relationship.SourceID)

	_, err = f.svc.CreateRelationship(f.ctx, lifecycle.CreateRelationshipRequest{
		RepositoryID: repoID,
		Name:         "dangling",
		SourceID:     a.ID,
		TargetID:     "missing",
	})
	assert.ErrorIs(t, err, lifecycle.ErrContentNotFound)

	item, err := f.svc.CreateItem(f.ctx, lifecycle.CreateItemRequest{RepositoryID: repoID, FolderID: folder.ID, Name: "card"})
	require.NoError(t, err)
	assert.Equal(t, folder.ID, item.ParentID)

	_, err = f.svc.CreateItem(f.ctx, lifecycle.CreateItemRequest{RepositoryID: repoID, Name: "loose"})
	assert.ErrorIs(t, err, lifecycle.ErrInvalidArgument)

	policy, err := f.svc.CreatePolicy(f.ctx, lifecycle.CreatePolicyRequest{RepositoryID: repoID, Name: "retention", PolicyText: "keep 7y"})
	require.NoError(t, err)
	assert.Empty(t, policy.ParentID)

	require.NoError(t, f.svc.ApplyPolicy(f.ctx, repoID, policy.ID, a.ID))
	changes := f.changes(t)
	last := changes[len(changes)-1]
	assert.Equal(t, lifecycle.ChangeSecurity, last.ChangeType)
	assert.Equal(t, a.ID, last.ObjectID)
	assert.Equal(t, []string{policy.ID}, last.PolicyIDs)

	// applying twice is a no-op
	require.NoError(t, f.svc.ApplyPolicy(f.ctx, repoID, policy.ID, a.ID))
	assert.Len(t, f.changes(t), len(changes))

	require.NoError(t, f.svc.RemovePolicy(f.ctx, repoID, policy.ID, a.ID))
	changes = f.changes(t)
	assert.Empty(t, changes[len(changes)-1].PolicyIDs)

	err = f.svc.RemovePolicy(f.ctx, repoID, policy.ID, a.ID)
	assert.ErrorIs(t, err, lifecycle.ErrInvalidArgument)
	err = f.svc.ApplyPolicy(f.ctx, repoID, a.ID, b.ID)
	assert.ErrorIs(t, err, lifecycle.ErrInvalidArgument)
}

func TestTypeConstraints(t *testing.T) {
	tm := lifecycle.NewStaticTypeManager(&lifecycle.TypeDefinition{
		ID:                   "invoice",
		BaseType:             lifecycle.BaseTypeDocument,
		Fileable:             true,
		ContentStreamAllowed: lifecycle.ContentStreamRequired,
		PropertyDefinitions: map[string]lifecycle.PropertyDefinition{
			lifecycle.PropertyName: {ID: lifecycle.PropertyName, Updatability: lifecycle.UpdatabilityReadOnly},
		},
	})
	f := setupFixture(t, lifecycle.WithTypeManager(tm))
	folder := f.folder(t, rootID, "invoices")

	_, err := f.svc.CreateDocument(f.ctx, lifecycle.CreateDocumentRequest{
		RepositoryID: repoID,
		ParentID:     folder.ID,
		Name:         "empty.pdf",
		ObjectType:   "invoice",
	})
	assert.ErrorIs(t, err, lifecycle.ErrConstraint)

	inv, err := f.svc.CreateDocument(f.ctx, lifecycle.CreateDocumentRequest{
		RepositoryID:  repoID,
		ParentID:      folder.ID,
		Name:          "2026-001.pdf",
		ObjectType:    "invoice",
		ContentStream: textStream("2026-001.pdf", "total: 42"),
	})
	require.NoError(t, err)
	assert.Equal(t, "invoice", inv.ObjectType)

	_, err = f.svc.UpdateProperties(f.ctx, lifecycle.UpdatePropertiesRequest{
		RepositoryID: repoID,
		ObjectID:     inv.ID,
		Name:         ptr("renamed.pdf"),
	})
	assert.ErrorIs(t, err, lifecycle.ErrConstraint)

	_, err = f.svc.CreateDocument(f.ctx, lifecycle.CreateDocumentRequest{
		RepositoryID: repoID,
		ParentID:     folder.ID,
		Name:         "x",
		ObjectType:   "unknown",
	})
	assert.ErrorIs(t, err, lifecycle.ErrInvalidArgument)

	restricted, err := f.svc.CreateFolder(f.ctx, lifecycle.CreateFolderRequest{
		RepositoryID:        repoID,
		ParentID:            rootID,
		Name:                "folders-only",
		AllowedChildTypeIDs: []string{string(lifecycle.BaseTypeFolder)},
	})
	require.NoError(t, err)
	_, err = f.svc.CreateDocument(f.ctx, lifecycle.CreateDocumentRequest{RepositoryID: repoID, ParentID: restricted.ID, Name: "no.txt"})
	assert.ErrorIs(t, err, lifecycle.ErrConstraint)
}

func TestShardedObjectKeys(t *testing.T) {
	f := setupFixture(t, lifecycle.WithObjectKeyGenerator(objectkey.NewShardedGenerator()))
	doc := f.document(t, rootID, "notes.txt", "hello")

	att, reader, err := f.svc.GetContentStream(f.ctx, repoID, doc.ID)
	require.NoError(t, err)
	reader.Close()
	assert.True(t, strings.HasPrefix(att.ObjectKey, "repositories/"+repoID+"/attachments/"), att.ObjectKey)
	assert.True(t, strings.HasSuffix(att.ObjectKey, "_notes.txt"), att.ObjectKey)
	assert.Equal(t, []string{att.ObjectKey}, f.store.Keys())

	pwc := f.checkOut(t, doc.ID)
	pwcAtt, reader, err := f.svc.GetContentStream(f.ctx, repoID, pwc.ID)
	require.NoError(t, err)
	reader.Close()
	assert.NotEqual(t, att.ObjectKey, pwcAtt.ObjectKey)
	assert.Equal(t, "hello", f.body(t, pwc.ID))
}

func TestContentStreamURL(t *testing.T) {
	t.Run("BackendWithoutURLs", func(t *testing.T) {
		f := setupFixture(t)
		doc := f.document(t, rootID, "a.txt", "hello")

		_, err := f.svc.GetContentStreamURL(f.ctx, repoID, doc.ID)
		assert.ErrorIs(t, err, lifecycle.ErrDownloadURLNotSupported)
	})

	t.Run("FilesystemWithPrefix", func(t *testing.T) {
		files, err := fs.New(fs.Config{BaseDir: t.TempDir(), URLPrefix: "http://files.local"})
		require.NoError(t, err)
		f := setupFixture(t, lifecycle.WithBlobStore("fs", files), lifecycle.WithDefaultBlobStore("fs"))
		doc := f.document(t, rootID, "a.txt", "hello")

		u, err := f.svc.GetContentStreamURL(f.ctx, repoID, doc.ID)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(u, "http://files.local/download/A/"+repoID+"/"), u)
		assert.True(t, strings.HasSuffix(u, "?filename=a.txt"), u)
	})

	t.Run("FolderHasNoStream", func(t *testing.T) {
		f := setupFixture(t)
		folder := f.folder(t, rootID, "docs")

		_, err := f.svc.GetContentStreamURL(f.ctx, repoID, folder.ID)
		assert.ErrorIs(t, err, lifecycle.ErrAttachmentNotFound)
	})
}
