package lifecycle

import (
	"errors"
	"fmt"
	"io"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// MaxNameLength bounds content names.
const MaxNameLength = 255

// ContentStream carries the bytes of a document version.
type ContentStream struct {
	FileName string
	MimeType string
	Length   int64 // optional; read back from the blob store when zero
	Reader   io.Reader
}

// CreateDocumentRequest contains parameters for creating a document
type CreateDocumentRequest struct {
	RepositoryID     string
	ParentID         string
	Name             string
	ObjectType       string // defaults to cmis:document
	Description      string
	SecondaryTypeIDs []string
	VersioningState  VersioningState // defaults to major
	IsImmutable      bool
	ContentStream    *ContentStream
}

// CopyDocumentRequest contains parameters for copying a document into a folder
type CopyDocumentRequest struct {
	RepositoryID    string
	SourceID        string
	TargetFolderID  string
	Name            string // optional override
	VersioningState VersioningState
}

// CreateFolderRequest contains parameters for creating a folder
type CreateFolderRequest struct {
	RepositoryID        string
	ParentID            string
	Name                string
	ObjectType          string // defaults to cmis:folder
	Description         string
	SecondaryTypeIDs    []string
	AllowedChildTypeIDs []string
}

// CreateRelationshipRequest contains parameters for creating a relationship
type CreateRelationshipRequest struct {
	RepositoryID string
	Name         string
	ObjectType   string // defaults to cmis:relationship
	Description  string
	SourceID     string
	TargetID     string
}

// CreatePolicyRequest contains parameters for creating a policy
type CreatePolicyRequest struct {
	RepositoryID string
	Name         string
	ObjectType   string // defaults to cmis:policy
	Description  string
	PolicyText   string
}

// CreateItemRequest contains parameters for creating an item.
// FolderID is only used when the item type is fileable.
type CreateItemRequest struct {
	RepositoryID string
	FolderID     string
	Name         string
	ObjectType   string // defaults to cmis:item
	Description  string
}

// UpdatePropertiesRequest contains the properties to change. Nil fields are left untouched.
type UpdatePropertiesRequest struct {
	RepositoryID     string
	ObjectID         string
	Name             *string
	Description      *string
	SecondaryTypeIDs []string
}

// MoveRequest moves a fileable object to another folder
type MoveRequest struct {
	RepositoryID   string
	ObjectID       string
	TargetFolderID string
}

// CheckInRequest promotes a private working copy to a new version
type CheckInRequest struct {
	RepositoryID  string
	PWCID         string
	Major         bool
	Comment       string
	Name          *string
	Description   *string
	ContentStream *ContentStream // nil keeps the PWC stream
}

// ApplyACLRequest replaces the local ACEs of an object
type ApplyACLRequest struct {
	RepositoryID string
	ObjectID     string
	Aces         []Ace
	ACLInherited *bool
}

// DeleteTreeRequest deletes a folder and everything below it.
// Documents in the tree always lose all their versions.
type DeleteTreeRequest struct {
	RepositoryID      string
	FolderID          string
	ContinueOnFailure bool
}

var validVersioningStates = []interface{}{VersioningMajor, VersioningMinor, VersioningCheckedOut}

var noSlash = validation.By(func(value interface{}) error {
	s, _ := value.(string)
	if strings.Contains(s, "/") {
		return errors.New("must not contain '/'")
	}
	return nil
})

func nameRules() []validation.Rule {
	return []validation.Rule{validation.Required, validation.Length(1, MaxNameLength), noSlash}
}

func invalid(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
}

// Validate checks the request fields
func (r *CreateDocumentRequest) Validate() error {
	return invalid(validation.ValidateStruct(r,
		validation.Field(&r.RepositoryID, validation.Required),
		validation.Field(&r.ParentID, validation.Required),
		validation.Field(&r.Name, nameRules()...),
		validation.Field(&r.VersioningState, validation.In(validVersioningStates...)),
	))
}

// Validate checks the request fields
func (r *CopyDocumentRequest) Validate() error {
	return invalid(validation.ValidateStruct(r,
		validation.Field(&r.RepositoryID, validation.Required),
		validation.Field(&r.SourceID, validation.Required),
		validation.Field(&r.TargetFolderID, validation.Required),
		validation.Field(&r.Name, validation.Length(0, MaxNameLength), noSlash),
		validation.Field(&r.VersioningState, validation.In(validVersioningStates...)),
	))
}

// Validate checks the request fields
func (r *CreateFolderRequest) Validate() error {
	return invalid(validation.ValidateStruct(r,
		validation.Field(&r.RepositoryID, validation.Required),
		validation.Field(&r.ParentID, validation.Required),
		validation.Field(&r.Name, nameRules()...),
	))
}

// Validate checks the request fields
func (r *CreateRelationshipRequest) Validate() error {
	return invalid(validation.ValidateStruct(r,
		validation.Field(&r.RepositoryID, validation.Required),
		validation.Field(&r.Name, nameRules()...),
		validation.Field(&r.SourceID, validation.Required),
		validation.Field(&r.TargetID, validation.Required),
	))
}

// Validate checks the request fields
func (r *CreatePolicyRequest) Validate() error {
	return invalid(validation.ValidateStruct(r,
		validation.Field(&r.RepositoryID, validation.Required),
		validation.Field(&r.Name, nameRules()...),
	))
}

// Validate checks the request fields
func (r *CreateItemRequest) Validate() error {
	return invalid(validation.ValidateStruct(r,
		validation.Field(&r.RepositoryID, validation.Required),
		validation.Field(&r.Name, nameRules()...),
	))
}

// Validate checks the request fields
func (r *UpdatePropertiesRequest) Validate() error {
	return invalid(validation.ValidateStruct(r,
		validation.Field(&r.RepositoryID, validation.Required),
		validation.Field(&r.ObjectID, validation.Required),
		validation.Field(&r.Name, validation.NilOrNotEmpty, validation.Length(1, MaxNameLength), noSlash),
	))
}

// Validate checks the request fields
func (r *MoveRequest) Validate() error {
	return invalid(validation.ValidateStruct(r,
		validation.Field(&r.RepositoryID, validation.Required),
		validation.Field(&r.ObjectID, validation.Required),
		validation.Field(&r.TargetFolderID, validation.Required),
	))
}

// Validate checks the request fields
func (r *CheckInRequest) Validate() error {
	return invalid(validation.ValidateStruct(r,
		validation.Field(&r.RepositoryID, validation.Required),
		validation.Field(&r.PWCID, validation.Required),
		validation.Field(&r.Name, validation.NilOrNotEmpty, validation.Length(1, MaxNameLength), noSlash),
	))
}

// Validate checks the request fields
func (r *ApplyACLRequest) Validate() error {
	return invalid(validation.ValidateStruct(r,
		validation.Field(&r.RepositoryID, validation.Required),
		validation.Field(&r.ObjectID, validation.Required),
		validation.Field(&r.Aces, validation.Each(validation.By(func(value interface{}) error {
			ace, _ := value.(Ace)
			if ace.PrincipalID == "" {
				return errors.New("principal id is required")
			}
			return nil
		}))),
	))
}

// Validate checks the request fields
func (r *DeleteTreeRequest) Validate() error {
	return invalid(validation.ValidateStruct(r,
		validation.Field(&r.RepositoryID, validation.Required),
		validation.Field(&r.FolderID, validation.Required),
	))
}
