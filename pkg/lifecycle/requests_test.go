package lifecycle_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tendant/content-lifecycle/pkg/lifecycle"
)

type validatable interface {
	Validate() error
}

func TestRequestValidation(t *testing.T) {
	tests := []struct {
		name    string
		req     validatable
		wantErr bool
	}{
		{name: "document ok", req: &lifecycle.CreateDocumentRequest{RepositoryID: repoID, ParentID: rootID, Name: "a.txt"}},
		{name: "document without repository", req: &lifecycle.CreateDocumentRequest{ParentID: rootID, Name: "a.txt"}, wantErr: true},
		{name: "document name too long", req: &lifecycle.CreateDocumentRequest{RepositoryID: repoID, ParentID: rootID, Name: strings.Repeat("x", lifecycle.MaxNameLength+1)}, wantErr: true},
		{name: "copy without target", req: &lifecycle.CopyDocumentRequest{RepositoryID: repoID, SourceID: "doc"}, wantErr: true},
		{name: "copy with empty name keeps source name", req: &lifecycle.CopyDocumentRequest{RepositoryID: repoID, SourceID: "doc", TargetFolderID: rootID}},
		{name: "folder with slash", req: &lifecycle.CreateFolderRequest{RepositoryID: repoID, ParentID: rootID, Name: "a/b"}, wantErr: true},
		{name: "relationship without source", req: &lifecycle.CreateRelationshipRequest{RepositoryID: repoID, Name: "r", TargetID: "t"}, wantErr: true},
		{name: "policy ok", req: &lifecycle.CreatePolicyRequest{RepositoryID: repoID, Name: "p"}},
		{name: "item without name", req: &lifecycle.CreateItemRequest{RepositoryID: repoID}, wantErr: true},
		{name: "update nothing", req: &lifecycle.UpdatePropertiesRequest{RepositoryID: repoID, ObjectID: "x"}},
		{name: "update empty name", req: &lifecycle.UpdatePropertiesRequest{RepositoryID: repoID, ObjectID: "x", Name: ptr("")}, wantErr: true},
		{name: "move without target", req: &lifecycle.MoveRequest{RepositoryID: repoID, ObjectID: "x"}, wantErr: true},
		{name: "check in ok", req: &lifecycle.CheckInRequest{RepositoryID: repoID, PWCID: "pwc"}},
		{name: "acl without principal", req: &lifecycle.ApplyACLRequest{RepositoryID: repoID, ObjectID: "x", Aces: []lifecycle.Ace{{}}}, wantErr: true},
		{name: "delete tree ok", req: &lifecycle.DeleteTreeRequest{RepositoryID: repoID, FolderID: "f"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, lifecycle.ErrInvalidArgument)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
