package lifecycle_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/content-lifecycle/pkg/lifecycle"
	"github.com/tendant/content-lifecycle/pkg/lifecycle/repo/memory"
	memorystorage "github.com/tendant/content-lifecycle/pkg/lifecycle/storage/memory"
)

func (f *fixture) archives(t *testing.T) []*lifecycle.Archive {
	t.Helper()
	archives, err := f.svc.ListArchives(f.ctx, repoID, 0, 0, false)
	require.NoError(t, err)
	return archives
}

func (f *fixture) archiveOf(t *testing.T, originalID string) *lifecycle.Archive {
	t.Helper()
	archive, err := f.repo.GetArchiveByOriginalID(f.ctx, repoID, originalID)
	require.NoError(t, err)
	return archive
}

func TestDeleteAndRestoreDocument(t *testing.T) {
	f := setupFixture(t)
	folder := f.folder(t, rootID, "docs")
	doc := f.document(t, folder.ID, "a.txt", "hello")

	require.NoError(t, f.svc.Delete(f.ctx, repoID, doc.ID))
	_, err := f.svc.GetContent(f.ctx, repoID, doc.ID)
	assert.ErrorIs(t, err, lifecycle.ErrContentNotFound)

	changes := f.changes(t)
	last := changes[len(changes)-1]
	assert.Equal(t, lifecycle.ChangeDeleted, last.ChangeType)
	assert.Equal(t, doc.ID, last.ObjectID)

	archives := f.archives(t)
	require.Len(t, archives, 1)
	archive := archives[0]
	assert.Equal(t, doc.ID, archive.OriginalID)
	assert.Equal(t, string(lifecycle.BaseTypeDocument), archive.Type)
	assert.Equal(t, folder.ID, archive.ParentID)
	assert.Equal(t, doc.Document.AttachmentID, archive.AttachmentID)
	assert.False(t, archive.DeletedWithParent)
	// the blob is kept until the archive is destroyed
	assert.Len(t, f.store.Keys(), 1)

	// the snapshot carries the token of the DELETED change
	assert.Equal(t, last.Token, archive.Snapshot.ChangeToken)

	got, err := f.svc.GetArchive(f.ctx, repoID, archive.ID)
	require.NoError(t, err)
	assert.Equal(t, "a.txt", got.Name)

	byOriginal, err := f.svc.GetArchiveByOriginalID(f.ctx, repoID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, archive.ID, byOriginal.ID)
	_, err = f.svc.GetArchiveByOriginalID(f.ctx, repoID, folder.ID)
	assert.ErrorIs(t, err, lifecycle.ErrArchiveNotFound)
	_, err = f.svc.GetArchiveByOriginalID(f.ctx, repoID, "")
	assert.ErrorIs(t, err, lifecycle.ErrInvalidArgument)

	restored, err := f.svc.RestoreArchive(f.ctx, repoID, archive.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, restored.ID)
	assert.Equal(t, "a.txt", restored.Name)
	assert.True(t, restored.Document.IsLatestVersion)
	assert.Equal(t, "hello", f.body(t, doc.ID))
	assert.Empty(t, f.archives(t))

	changes = f.changes(t)
	last = changes[len(changes)-1]
	assert.Equal(t, lifecycle.ChangeCreated, last.ChangeType)
	assert.Equal(t, doc.ID, last.ObjectID)
}

func TestDeleteAndRestoreVersionSeries(t *testing.T) {
	f := setupFixture(t)
	folder := f.folder(t, rootID, "docs")
	v1 := f.document(t, folder.ID, "a.txt", "one")
	v2 := f.checkIn(t, f.checkOut(t, v1.ID).ID, true, "two")
	seriesID := v1.Document.VersionSeriesID

	// deleting any version of a document removes the whole series
	require.NoError(t, f.svc.Delete(f.ctx, repoID, v1.ID))
	_, err := f.svc.GetContent(f.ctx, repoID, v2.ID)
	assert.ErrorIs(t, err, lifecycle.ErrContentNotFound)
	assert.Len(t, f.archives(t), 2)

	restored, err := f.svc.RestoreArchive(f.ctx, repoID, f.archiveOf(t, v1.ID).ID)
	require.NoError(t, err)
	assert.Equal(t, v1.ID, restored.ID)

	versions, err := f.svc.GetAllVersions(f.ctx, repoID, seriesID, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"1.0", "2.0"}, labels(versions))
	assert.False(t, versions[0].Document.IsLatestVersion)
	assert.True(t, versions[1].Document.IsLatestVersion)
	assert.True(t, versions[1].Document.IsLatestMajorVersion)
	assert.Equal(t, "two", f.body(t, v2.ID))
	assert.Empty(t, f.archives(t))
}

func TestDeleteSingleVersion(t *testing.T) {
	f := setupFixture(t)
	folder := f.folder(t, rootID, "docs")
	v1 := f.document(t, folder.ID, "a.txt", "one")
	v2 := f.checkIn(t, f.checkOut(t, v1.ID).ID, false, "two")

	require.NoError(t, f.svc.DeleteDocument(f.ctx, repoID, v2.ID, false))

	latest, err := f.svc.GetLatestVersion(f.ctx, repoID, v1.Document.VersionSeriesID, false)
	require.NoError(t, err)
	assert.Equal(t, v1.ID, latest.ID)

	children, err := f.svc.GetChildren(f.ctx, repoID, folder.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, v1.ID, children[0].ID)

	// restoring the version puts it back on top of the series
	_, err = f.svc.RestoreArchive(f.ctx, repoID, f.archiveOf(t, v2.ID).ID)
	require.NoError(t, err)
	latest, err = f.svc.GetLatestVersion(f.ctx, repoID, v1.Document.VersionSeriesID, false)
	require.NoError(t, err)
	assert.Equal(t, v2.ID, latest.ID)

	err = f.svc.DeleteDocument(f.ctx, repoID, folder.ID, false)
	assert.ErrorIs(t, err, lifecycle.ErrInvalidArgument)
}

func TestDeleteCheckedOutDocument(t *testing.T) {
	f := setupFixture(t)
	doc := f.document(t, rootID, "a.txt", "a")
	pwc := f.checkOut(t, doc.ID)

	require.NoError(t, f.svc.Delete(f.ctx, repoID, doc.ID))
	_, err := f.svc.GetContent(f.ctx, repoID, pwc.ID)
	assert.ErrorIs(t, err, lifecycle.ErrContentNotFound)

	pwcs, err := f.svc.GetCheckedOutDocuments(f.ctx, repoID, "")
	require.NoError(t, err)
	assert.Empty(t, pwcs)
	// only the checked-in version is archived
	require.Len(t, f.archives(t), 1)
}

func TestDeleteConstraints(t *testing.T) {
	f := setupFixture(t)
	folder := f.folder(t, rootID, "docs")
	f.document(t, folder.ID, "a.txt", "a")

	err := f.svc.Delete(f.ctx, repoID, folder.ID)
	assert.ErrorIs(t, err, lifecycle.ErrConstraint)

	err = f.svc.Delete(f.ctx, repoID, rootID)
	assert.ErrorIs(t, err, lifecycle.ErrInvalidArgument)

	err = f.svc.Delete(f.ctx, repoID, "missing")
	assert.ErrorIs(t, err, lifecycle.ErrContentNotFound)
}

func TestRestoreResolvesNameCollision(t *testing.T) {
	f := setupFixture(t)
	folder := f.folder(t, rootID, "docs")
	doc := f.document(t, folder.ID, "a.txt", "old")

	require.NoError(t, f.svc.Delete(f.ctx, repoID, doc.ID))
	f.document(t, folder.ID, "a.txt", "new")

	restored, err := f.svc.RestoreArchive(f.ctx, repoID, f.archiveOf(t, doc.ID).ID)
	require.NoError(t, err)
	assert.Equal(t, "a(1).txt", restored.Name)
	assert.Equal(t, "old", f.body(t, restored.ID))
}

func TestRestoreRefusedWhenParentIsGone(t *testing.T) {
	f := setupFixture(t)
	folder := f.folder(t, rootID, "docs")
	doc := f.document(t, folder.ID, "a.txt", "a")

	require.NoError(t, f.svc.Delete(f.ctx, repoID, doc.ID))
	require.NoError(t, f.svc.Delete(f.ctx, repoID, folder.ID))
	token := f.latestToken(t)
	archive := f.archiveOf(t, doc.ID)

	_, err := f.svc.RestoreArchive(f.ctx, repoID, archive.ID)
	assert.ErrorIs(t, err, lifecycle.ErrParentNoLongerExists)
	var archiveErr *lifecycle.ArchiveError
	require.ErrorAs(t, err, &archiveErr)
	assert.Equal(t, archive.ID, archiveErr.ArchiveID)

	// nothing changed
	_, err = f.svc.GetContent(f.ctx, repoID, doc.ID)
	assert.ErrorIs(t, err, lifecycle.ErrContentNotFound)
	assert.Len(t, f.archives(t), 2)
	assert.Equal(t, token, f.latestToken(t))

	// restoring the folder first makes the document restorable again
	_, err = f.svc.RestoreArchive(f.ctx, repoID, f.archiveOf(t, folder.ID).ID)
	require.NoError(t, err)
	restored, err := f.svc.RestoreArchive(f.ctx, repoID, archive.ID)
	require.NoError(t, err)
	assert.Equal(t, folder.ID, restored.ParentID)
}

func TestDestroyArchive(t *testing.T) {
	f := setupFixture(t)
	folder := f.folder(t, rootID, "docs")
	v1 := f.document(t, folder.ID, "a.txt", "one")
	f.checkIn(t, f.checkOut(t, v1.ID).ID, false, "two")
	require.Len(t, f.store.Keys(), 2)

	require.NoError(t, f.svc.Delete(f.ctx, repoID, v1.ID))
	assert.Len(t, f.store.Keys(), 2)

	require.NoError(t, f.svc.DestroyArchive(f.ctx, repoID, f.archiveOf(t, v1.ID).ID))
	assert.Empty(t, f.archives(t))
	assert.Empty(t, f.store.Keys())

	_, err := f.svc.GetVersionSeries(f.ctx, repoID, v1.Document.VersionSeriesID)
	assert.ErrorIs(t, err, lifecycle.ErrVersionSeriesNotFound)

	err = f.svc.DestroyArchive(f.ctx, repoID, "missing")
	assert.ErrorIs(t, err, lifecycle.ErrArchiveNotFound)
}

func TestListArchivesPaging(t *testing.T) {
	f := setupFixture(t)
	var ids []string
	for _, name := range []string{"a", "b", "c"} {
		folder := f.folder(t, rootID, name)
		require.NoError(t, f.svc.Delete(f.ctx, repoID, folder.ID))
		ids = append(ids, folder.ID)
	}

	originals := func(archives []*lifecycle.Archive) []string {
		out := make([]string, len(archives))
		for i, a := range archives {
			out[i] = a.OriginalID
		}
		return out
	}

	page, err := f.svc.ListArchives(f.ctx, repoID, 0, 2, false)
	require.NoError(t, err)
	assert.Equal(t, ids[:2], originals(page))

	page, err = f.svc.ListArchives(f.ctx, repoID, 2, 2, false)
	require.NoError(t, err)
	assert.Equal(t, ids[2:], originals(page))

	page, err = f.svc.ListArchives(f.ctx, repoID, 0, 1, true)
	require.NoError(t, err)
	assert.Equal(t, []string{ids[2]}, originals(page))

	page, err = f.svc.ListArchives(f.ctx, repoID, 10, 0, false)
	require.NoError(t, err)
	assert.Empty(t, page)
}

// failingRepository fails deletion of one content id.
type failingRepository struct {
	*memory.Repository
	failID string
}

var errInjected = errors.New("injected failure")

func (r *failingRepository) DeleteContent(ctx context.Context, repositoryID, id string) error {
	if id == r.failID {
		return errInjected
	}
	return r.Repository.DeleteContent(ctx, repositoryID, id)
}

type tree struct {
	folder, sub           *lifecycle.Content
	a, b, c, checkedOutID string
}

func buildTree(t *testing.T, f *fixture) tree {
	t.Helper()
	folder := f.folder(t, rootID, "project")
	sub := f.folder(t, folder.ID, "sub")
	a := f.document(t, folder.ID, "a.txt", "a")
	b := f.document(t, folder.ID, "b.txt", "b")
	c := f.document(t, sub.ID, "c.txt", "c")
	wip, err := f.svc.CreateDocument(f.ctx, lifecycle.CreateDocumentRequest{
		RepositoryID:    repoID,
		ParentID:        sub.ID,
		Name:            "wip.txt",
		VersioningState: lifecycle.VersioningCheckedOut,
	})
	require.NoError(t, err)
	return tree{folder: folder, sub: sub, a: a.ID, b: b.ID, c: c.ID, checkedOutID: wip.ID}
}

func TestDeleteTreeAndRestore(t *testing.T) {
	f := setupFixture(t)
	tr := buildTree(t, f)

	failures, err := f.svc.DeleteTree(f.ctx, lifecycle.DeleteTreeRequest{RepositoryID: repoID, FolderID: tr.folder.ID})
	require.NoError(t, err)
	assert.Empty(t, failures)

	for _, id := range []string{tr.folder.ID, tr.sub.ID, tr.a, tr.b, tr.c, tr.checkedOutID} {
		_, err := f.svc.GetContent(f.ctx, repoID, id)
		assert.ErrorIs(t, err, lifecycle.ErrContentNotFound, id)
	}
	pwcs, err := f.svc.GetCheckedOutDocuments(f.ctx, repoID, "")
	require.NoError(t, err)
	assert.Empty(t, pwcs)

	archives := f.archives(t)
	assert.Len(t, archives, 5)
	for _, a := range archives {
		if a.OriginalID == tr.folder.ID {
			assert.False(t, a.DeletedWithParent)
		} else {
			assert.True(t, a.DeletedWithParent, a.Name)
		}
	}

	restored, err := f.svc.RestoreArchive(f.ctx, repoID, f.archiveOf(t, tr.folder.ID).ID)
	require.NoError(t, err)
	assert.Equal(t, tr.folder.ID, restored.ID)

	doc, err := f.svc.GetContentByPath(f.ctx, repoID, "/project/sub/c.txt")
	require.NoError(t, err)
	assert.Equal(t, tr.c, doc.ID)
	assert.Equal(t, "c", f.body(t, tr.c))
	assert.Empty(t, f.archives(t))
}

func TestDeleteTreeContinueOnFailure(t *testing.T) {
	repo := memory.New()
	failing := &failingRepository{Repository: repo}
	f := setupFixtureWithRepo(t, failing, repo, memorystorage.New())
	tr := buildTree(t, f)
	failing.failID = tr.b

	failures, err := f.svc.DeleteTree(f.ctx, lifecycle.DeleteTreeRequest{
		RepositoryID:      repoID,
		FolderID:          tr.folder.ID,
		ContinueOnFailure: true,
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{tr.b, tr.folder.ID}, failures)

	// the failed document and its folder survive; everything else is gone
	for _, id := range []string{tr.folder.ID, tr.b} {
		_, err := f.svc.GetContent(f.ctx, repoID, id)
		assert.NoError(t, err, id)
	}
	for _, id := range []string{tr.a, tr.sub.ID, tr.c} {
		_, err := f.svc.GetContent(f.ctx, repoID, id)
		assert.ErrorIs(t, err, lifecycle.ErrContentNotFound, id)
	}

	// the failed delete left no archive or DELETED change behind
	_, err = f.svc.GetArchiveByOriginalID(f.ctx, repoID, tr.b)
	assert.ErrorIs(t, err, lifecycle.ErrArchiveNotFound)
	assert.Equal(t, "b", f.body(t, tr.b))
	for _, c := range f.changes(t) {
		if c.ObjectID == tr.b {
			assert.Equal(t, lifecycle.ChangeCreated, c.ChangeType)
		}
	}
}

func TestDeleteChangeFailureKeepsDocument(t *testing.T) {
	repo := memory.New()
	failing := &failingChangeRepository{Repository: repo}
	f := setupFixtureWithRepo(t, failing, repo, memorystorage.New())
	doc := f.document(t, rootID, "a.txt", "hello")
	failing.objectID = doc.ID
	token := f.latestToken(t)

	err := f.svc.Delete(f.ctx, repoID, doc.ID)
	require.ErrorIs(t, err, errInjected)

	live, err := f.svc.GetContent(f.ctx, repoID, doc.ID)
	require.NoError(t, err)
	assert.True(t, live.Document.IsLatestVersion)
	assert.Equal(t, "hello", f.body(t, doc.ID))
	assert.Empty(t, f.archives(t))
	assert.Equal(t, token, f.latestToken(t))

	// the delete goes through once the change log accepts the row
	failing.objectID = ""
	require.NoError(t, f.svc.Delete(f.ctx, repoID, doc.ID))
	assert.Len(t, f.archives(t), 1)
}

func TestDeleteTreeAbortsOnFirstFailure(t *testing.T) {
	repo := memory.New()
	failing := &failingRepository{Repository: repo}
	f := setupFixtureWithRepo(t, failing, repo, memorystorage.New())
	tr := buildTree(t, f)
	failing.failID = tr.b

	failures, err := f.svc.DeleteTree(f.ctx, lifecycle.DeleteTreeRequest{RepositoryID: repoID, FolderID: tr.folder.ID})
	require.Error(t, err)
	assert.ErrorIs(t, err, errInjected)

	var treeErr *lifecycle.DeleteTreeError
	require.ErrorAs(t, err, &treeErr)
	assert.Equal(t, tr.folder.ID, treeErr.FolderID)
	assert.Equal(t, []string{tr.b}, treeErr.FailureIDs)
	assert.Equal(t, []string{tr.b}, failures)

	for _, id := range []string{tr.folder.ID, tr.sub.ID, tr.b, tr.c} {
		_, err := f.svc.GetContent(f.ctx, repoID, id)
		assert.NoError(t, err, id)
	}
}

func TestDeleteTreeBounds(t *testing.T) {
	t.Run("Depth", func(t *testing.T) {
		settings := lifecycle.DefaultSettings()
		settings.MaxTreeDepth = 1
		f := setupFixture(t, lifecycle.WithSettings(settings))
		top := f.folder(t, rootID, "top")
		mid := f.folder(t, top.ID, "mid")
		f.folder(t, mid.ID, "bottom")

		_, err := f.svc.DeleteTree(f.ctx, lifecycle.DeleteTreeRequest{RepositoryID: repoID, FolderID: top.ID})
		assert.ErrorIs(t, err, lifecycle.ErrTreeTooLarge)
		_, err = f.svc.GetContent(f.ctx, repoID, mid.ID)
		assert.NoError(t, err)
	})

	t.Run("Nodes", func(t *testing.T) {
		settings := lifecycle.DefaultSettings()
		settings.MaxTreeNodes = 3
		f := setupFixture(t, lifecycle.WithSettings(settings))
		top := f.folder(t, rootID, "top")
		for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
			f.document(t, top.ID, name, name)
		}

		_, err := f.svc.DeleteTree(f.ctx, lifecycle.DeleteTreeRequest{RepositoryID: repoID, FolderID: top.ID})
		assert.ErrorIs(t, err, lifecycle.ErrTreeTooLarge)
		assert.Empty(t, f.archives(t))
	})

	t.Run("Root", func(t *testing.T) {
		f := setupFixture(t)
		_, err := f.svc.DeleteTree(f.ctx, lifecycle.DeleteTreeRequest{RepositoryID: repoID, FolderID: rootID})
		assert.ErrorIs(t, err, lifecycle.ErrInvalidArgument)
	})
}
