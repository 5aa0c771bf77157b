package lifecycle_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tendant/content-lifecycle/pkg/lifecycle"
	"github.com/tendant/content-lifecycle/pkg/lifecycle/repo/memory"
	memorystorage "github.com/tendant/content-lifecycle/pkg/lifecycle/storage/memory"
)

const (
	repoID = "bedroom"
	rootID = "root"
)

type fixture struct {
	svc   lifecycle.Service
	repo  *memory.Repository
	store *memorystorage.Backend
	ctx   context.Context
}

func setupFixture(t *testing.T, options ...lifecycle.Option) *fixture {
	t.Helper()
	repo := memory.New()
	store := memorystorage.New()
	return setupFixtureWithRepo(t, repo, repo, store, options...)
}

// setupFixtureWithRepo lets a test wrap the memory repository while still
// reaching the underlying store directly.
func setupFixtureWithRepo(t *testing.T, wrapped lifecycle.Repository, repo *memory.Repository, store *memorystorage.Backend, options ...lifecycle.Option) *fixture {
	t.Helper()
	base := []lifecycle.Option{
		lifecycle.WithRepository(wrapped),
		lifecycle.WithBlobStore("memory", store),
		lifecycle.WithRepositoryInfo(lifecycle.RepositoryInfo{ID: repoID, RootFolderID: rootID}),
		lifecycle.WithPrincipalResolver(lifecycle.NewStaticPrincipals("anonymous", "GROUP_EVERYONE")),
	}
	svc, err := lifecycle.New(append(base, options...)...)
	require.NoError(t, err)

	ctx := lifecycle.WithPrincipal(context.Background(), "alice")
	_, err = svc.EnsureRootFolder(ctx, repoID)
	require.NoError(t, err)

	return &fixture{svc: svc, repo: repo, store: store, ctx: ctx}
}

func (f *fixture) folder(t *testing.T, parentID, name string) *lifecycle.Content {
	t.Helper()
	folder, err := f.svc.CreateFolder(f.ctx, lifecycle.CreateFolderRequest{
		RepositoryID: repoID,
		ParentID:     parentID,
		Name:         name,
	})
	require.NoError(t, err)
	return folder
}

func (f *fixture) document(t *testing.T, parentID, name, body string) *lifecycle.Content {
	t.Helper()
	doc, err := f.svc.CreateDocument(f.ctx, lifecycle.CreateDocumentRequest{
		RepositoryID:  repoID,
		ParentID:      parentID,
		Name:          name,
		ContentStream: textStream(name, body),
	})
	require.NoError(t, err)
	return doc
}

func (f *fixture) checkOut(t *testing.T, documentID string) *lifecycle.Content {
	t.Helper()
	pwc, err := f.svc.CheckOut(f.ctx, repoID, documentID)
	require.NoError(t, err)
	return pwc
}

func (f *fixture) checkIn(t *testing.T, pwcID string, major bool, body string) *lifecycle.Content {
	t.Helper()
	req := lifecycle.CheckInRequest{RepositoryID: repoID, PWCID: pwcID, Major: major}
	if body != "" {
		req.ContentStream = textStream("body.txt", body)
	}
	doc, err := f.svc.CheckIn(f.ctx, req)
	require.NoError(t, err)
	return doc
}

func (f *fixture) body(t *testing.T, documentID string) string {
	t.Helper()
	_, reader, err := f.svc.GetContentStream(f.ctx, repoID, documentID)
	require.NoError(t, err)
	defer reader.Close()
	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	return string(data)
}

func (f *fixture) changes(t *testing.T) []*lifecycle.Change {
	t.Helper()
	changes, _, err := f.svc.LatestChanges(f.ctx, repoID, "", 1000)
	require.NoError(t, err)
	return changes
}

func (f *fixture) latestToken(t *testing.T) string {
	t.Helper()
	token, err := f.svc.LatestChangeToken(f.ctx, repoID)
	require.NoError(t, err)
	return token
}

func textStream(name, body string) *lifecycle.ContentStream {
	return &lifecycle.ContentStream{
		FileName: name,
		MimeType: "text/plain",
		Reader:   strings.NewReader(body),
	}
}

func names(contents []*lifecycle.Content) []string {
	out := make([]string, len(contents))
	for i, c := range contents {
		out[i] = c.Name
	}
	return out
}

func ptr[T any](v T) *T { return &v }
