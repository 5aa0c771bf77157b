package lifecycle

import (
	"fmt"
	"time"
)

// BaseType is the CMIS base type of a content object.
type BaseType string

// Base type constants (typed).
const (
	BaseTypeDocument     BaseType = "cmis:document"
	BaseTypeFolder       BaseType = "cmis:folder"
	BaseTypeRelationship BaseType = "cmis:relationship"
	BaseTypePolicy       BaseType = "cmis:policy"
	BaseTypeItem         BaseType = "cmis:item"
)

// ArchiveTypeAttachment marks an archive row that holds an attachment rather than content.
const ArchiveTypeAttachment = "attachment"

// ChangeType classifies a change log entry.
type ChangeType string

// Change type constants (typed).
const (
	ChangeCreated  ChangeType = "CREATED"
	ChangeUpdated  ChangeType = "UPDATED"
	ChangeDeleted  ChangeType = "DELETED"
	ChangeSecurity ChangeType = "SECURITY"
)

// VersioningState selects how a new or checked-in document is versioned.
type VersioningState string

// Versioning state constants (typed).
const (
	VersioningMajor      VersioningState = "major"
	VersioningMinor      VersioningState = "minor"
	VersioningCheckedOut VersioningState = "checkedout"
)

// Well-known permission and principal names.
const (
	PermissionAll   = "cmis:all"
	PermissionRead  = "cmis:read"
	PermissionWrite = "cmis:write"

	PrincipalAnonymous = "anonymous"
	PrincipalAnyone    = "anyone"
	PrincipalSystem    = "system"
)

// Content is the common header shared by every content object.
//
// Variant data is a closed sum: exactly one of Document, Folder,
// Relationship, Policy or Item is set, and it must agree with BaseType.
type Content struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	ParentID         string    `json:"parent_id,omitempty"`
	ObjectType       string    `json:"object_type"`
	BaseType         BaseType  `json:"base_type"`
	Description      string    `json:"description,omitempty"`
	SecondaryTypeIDs []string  `json:"secondary_type_ids,omitempty"`
	ACLInherited     bool      `json:"acl_inherited"`
	ACL              ACL       `json:"acl"`
	Creator          string    `json:"creator"`
	Created          time.Time `json:"created"`
	Modifier         string    `json:"modifier"`
	Modified         time.Time `json:"modified"`
	ChangeToken      string    `json:"change_token,omitempty"`

	Document     *DocumentInfo     `json:"document,omitempty"`
	Folder       *FolderInfo       `json:"folder,omitempty"`
	Relationship *RelationshipInfo `json:"relationship,omitempty"`
	Policy       *PolicyInfo       `json:"policy,omitempty"`
	Item         *ItemInfo         `json:"item,omitempty"`
}

// DocumentInfo holds the document-specific part of a Content.
type DocumentInfo struct {
	VersionSeriesID      string `json:"version_series_id"`
	VersionLabel         string `json:"version_label,omitempty"`
	IsLatestVersion      bool   `json:"is_latest_version"`
	IsMajorVersion       bool   `json:"is_major_version"`
	IsLatestMajorVersion bool   `json:"is_latest_major_version"`
	IsPrivateWorkingCopy bool   `json:"is_private_working_copy"`
	IsImmutable          bool   `json:"is_immutable,omitempty"`
	AttachmentID         string `json:"attachment_id,omitempty"`
	CheckinComment       string `json:"checkin_comment,omitempty"`
}

// FolderInfo holds the folder-specific part of a Content.
type FolderInfo struct {
	AllowedChildTypeIDs []string `json:"allowed_child_type_ids"`
}

// RelationshipInfo holds the relationship-specific part of a Content.
type RelationshipInfo struct {
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
}

// PolicyInfo holds the policy-specific part of a Content.
type PolicyInfo struct {
	PolicyText string   `json:"policy_text,omitempty"`
	AppliedIDs []string `json:"applied_ids,omitempty"`
}

// ItemInfo holds the item-specific part of a Content.
type ItemInfo struct{}

// IsDocument reports whether c is a document.
func (c *Content) IsDocument() bool { return c.BaseType == BaseTypeDocument }

// IsFolder reports whether c is a folder.
func (c *Content) IsFolder() bool { return c.BaseType == BaseTypeFolder }

// Validate checks that the variant payload agrees with BaseType.
func (c *Content) Validate() error {
	set := 0
	for _, present := range []bool{c.Document != nil, c.Folder != nil, c.Relationship != nil, c.Policy != nil, c.Item != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("%w: content %s must carry exactly one variant, has %d", ErrInvalidArgument, c.ID, set)
	}
	var ok bool
	switch c.BaseType {
	case BaseTypeDocument:
		ok = c.Document != nil
	case BaseTypeFolder:
		ok = c.Folder != nil
	case BaseTypeRelationship:
		ok = c.Relationship != nil
	case BaseTypePolicy:
		ok = c.Policy != nil
	case BaseTypeItem:
		ok = c.Item != nil
	default:
		return fmt.Errorf("%w: unknown base type %q", ErrInvalidArgument, c.BaseType)
	}
	if !ok {
		return fmt.Errorf("%w: variant does not match base type %s", ErrInvalidArgument, c.BaseType)
	}
	return nil
}

// Clone returns a deep copy of c. Stores hand out clones so callers never
// alias persisted state.
func (c *Content) Clone() *Content {
	if c == nil {
		return nil
	}
	cp := *c
	cp.SecondaryTypeIDs = cloneStrings(c.SecondaryTypeIDs)
	cp.ACL = c.ACL.Clone()
	if c.Document != nil {
		d := *c.Document
		cp.Document = &d
	}
	if c.Folder != nil {
		cp.Folder = &FolderInfo{AllowedChildTypeIDs: cloneStrings(c.Folder.AllowedChildTypeIDs)}
	}
	if c.Relationship != nil {
		r := *c.Relationship
		cp.Relationship = &r
	}
	if c.Policy != nil {
		cp.Policy = &PolicyInfo{PolicyText: c.Policy.PolicyText, AppliedIDs: cloneStrings(c.Policy.AppliedIDs)}
	}
	if c.Item != nil {
		cp.Item = &ItemInfo{}
	}
	return &cp
}

// VersionSeries groups all versions of one logical document.
type VersionSeries struct {
	ID           string    `json:"id"`
	CheckedOut   bool      `json:"checked_out"`
	CheckedOutID string    `json:"checked_out_id,omitempty"`
	CheckedOutBy string    `json:"checked_out_by,omitempty"`
	Creator      string    `json:"creator"`
	Created      time.Time `json:"created"`
	Modifier     string    `json:"modifier"`
	Modified     time.Time `json:"modified"`
}

// Ace is an access-control entry.
type Ace struct {
	PrincipalID string   `json:"principal_id"`
	Permissions []string `json:"permissions"`
	Direct      bool     `json:"direct"`
}

// ACL is the access-control list of a content. InheritedAces is computed
// and never persisted.
type ACL struct {
	LocalAces     []Ace `json:"local_aces,omitempty"`
	InheritedAces []Ace `json:"-"`
}

// AllAces returns local and inherited entries together.
func (a ACL) AllAces() []Ace {
	all := make([]Ace, 0, len(a.LocalAces)+len(a.InheritedAces))
	all = append(all, a.LocalAces...)
	return append(all, a.InheritedAces...)
}

// Clone returns a deep copy of the ACL.
func (a ACL) Clone() ACL {
	return ACL{LocalAces: cloneAces(a.LocalAces), InheritedAces: cloneAces(a.InheritedAces)}
}

// Change is one entry of the append-only change log.
type Change struct {
	ID              string     `json:"id"`
	ObjectID        string     `json:"object_id"`
	ChangeType      ChangeType `json:"change_type"`
	Token           string     `json:"token"`
	Time            time.Time  `json:"time"`
	Name            string     `json:"name"`
	BaseType        BaseType   `json:"base_type"`
	ObjectType      string     `json:"object_type"`
	ParentID        string     `json:"parent_id,omitempty"`
	PolicyIDs       []string   `json:"policy_ids,omitempty"`
	VersionSeriesID string     `json:"version_series_id,omitempty"`
	VersionLabel    string     `json:"version_label,omitempty"`
	Creator         string     `json:"creator"`
	Created         time.Time  `json:"created"`
}

// Clone returns a deep copy of c.
func (c *Change) Clone() *Change {
	if c == nil {
		return nil
	}
	cp := *c
	cp.PolicyIDs = cloneStrings(c.PolicyIDs)
	return &cp
}

// Archive is a recoverable record of a deleted object.
type Archive struct {
	ID                string    `json:"id"`
	OriginalID        string    `json:"original_id"`
	Name              string    `json:"name"`
	Type              string    `json:"type"`
	ParentID          string    `json:"parent_id,omitempty"`
	DeletedWithParent bool      `json:"deleted_with_parent"`
	AttachmentID      string    `json:"attachment_id,omitempty"`
	VersionSeriesID   string    `json:"version_series_id,omitempty"`
	IsLatestVersion   bool      `json:"is_latest_version"`
	Creator           string    `json:"creator"`
	Created           time.Time `json:"created"`

	// Snapshot is the archived row, used to rebuild it on restore.
	Snapshot *Content `json:"snapshot,omitempty"`
	// AttachmentSnapshot is set on attachment archives.
	AttachmentSnapshot *Attachment `json:"attachment_snapshot,omitempty"`
}

// IsFolder reports whether the archive holds a folder.
func (a *Archive) IsFolder() bool { return a.Type == string(BaseTypeFolder) }

// IsDocument reports whether the archive holds a document version.
func (a *Archive) IsDocument() bool { return a.Type == string(BaseTypeDocument) }

// IsAttachment reports whether the archive holds an attachment.
func (a *Archive) IsAttachment() bool { return a.Type == ArchiveTypeAttachment }

// Clone returns a deep copy of a.
func (a *Archive) Clone() *Archive {
	if a == nil {
		return nil
	}
	cp := *a
	cp.Snapshot = a.Snapshot.Clone()
	if a.AttachmentSnapshot != nil {
		att := *a.AttachmentSnapshot
		cp.AttachmentSnapshot = &att
	}
	return &cp
}

// Attachment describes the content stream of one document version.
type Attachment struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Length         int64     `json:"length"`
	MimeType       string    `json:"mime_type"`
	ObjectKey      string    `json:"object_key"`
	StorageBackend string    `json:"storage_backend"`
	Creator        string    `json:"creator"`
	Created        time.Time `json:"created"`
}

// TypeDefinition is the subset of a type schema the lifecycle engine needs.
type TypeDefinition struct {
	ID                   string
	BaseType             BaseType
	Fileable             bool
	ContentStreamAllowed ContentStreamAllowed
	PropertyDefinitions  map[string]PropertyDefinition
}

// ContentStreamAllowed says whether documents of a type carry a stream.
type ContentStreamAllowed string

// Content stream constants (typed).
const (
	ContentStreamNotAllowed ContentStreamAllowed = "notallowed"
	ContentStreamAllowedOpt ContentStreamAllowed = "allowed"
	ContentStreamRequired   ContentStreamAllowed = "required"
)

// Updatability says when a property may be changed.
type Updatability string

// Updatability constants (typed).
const (
	UpdatabilityReadOnly       Updatability = "readonly"
	UpdatabilityReadWrite      Updatability = "readwrite"
	UpdatabilityWhenCheckedOut Updatability = "whencheckedout"
)

// PropertyDefinition describes one property of a type.
type PropertyDefinition struct {
	ID           string
	Updatability Updatability
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneAces(in []Ace) []Ace {
	if in == nil {
		return nil
	}
	out := make([]Ace, len(in))
	for i, a := range in {
		out[i] = Ace{PrincipalID: a.PrincipalID, Permissions: cloneStrings(a.Permissions), Direct: a.Direct}
	}
	return out
}
