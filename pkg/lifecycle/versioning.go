package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Initial labels of a new version series.
const (
	InitialMajorLabel = "1.0"
	InitialMinorLabel = "0.1"
)

// parseVersionLabel accepts "{major}" and "{major}.{minor}".
func parseVersionLabel(label string) (major, minor int, err error) {
	head, tail, hasMinor := strings.Cut(label, ".")
	if major, err = strconv.Atoi(head); err != nil || major < 0 {
		return 0, 0, fmt.Errorf("%w: malformed version label %q", ErrInvalidArgument, label)
	}
	if hasMinor {
		if minor, err = strconv.Atoi(tail); err != nil || minor < 0 {
			return 0, 0, fmt.Errorf("%w: malformed version label %q", ErrInvalidArgument, label)
		}
	}
	return major, minor, nil
}

// IncreasedVersionLabel returns the label that follows label. A major
// increment yields "{major+1}.0", a minor one "{major}.{minor+1}".
// An empty label starts a new series.
func IncreasedVersionLabel(label string, majorIncrement bool) (string, error) {
	if label == "" {
		if majorIncrement {
			return InitialMajorLabel, nil
		}
		return InitialMinorLabel, nil
	}
	major, minor, err := parseVersionLabel(label)
	if err != nil {
		return "", err
	}
	if majorIncrement {
		return fmt.Sprintf("%d.0", major+1), nil
	}
	return fmt.Sprintf("%d.%d", major, minor+1), nil
}

// applyInitialVersion sets the flags of the first document of a series.
func applyInitialVersion(d *DocumentInfo, state VersioningState) {
	switch state {
	case VersioningCheckedOut:
		d.VersionLabel = ""
		d.IsLatestVersion = false
		d.IsMajorVersion = false
		d.IsLatestMajorVersion = false
		d.IsPrivateWorkingCopy = true
	case VersioningMinor:
		d.VersionLabel = InitialMinorLabel
		d.IsLatestVersion = true
		d.IsMajorVersion = false
		d.IsLatestMajorVersion = false
		d.IsPrivateWorkingCopy = false
	default:
		d.VersionLabel = InitialMajorLabel
		d.IsLatestVersion = true
		d.IsMajorVersion = true
		d.IsLatestMajorVersion = true
		d.IsPrivateWorkingCopy = false
	}
}

// sortVersions orders a series oldest first by label. Unlabelled
// documents (working copies) sort last.
func sortVersions(docs []*Content) {
	key := func(c *Content) (int, int, bool) {
		major, minor, err := parseVersionLabel(c.Document.VersionLabel)
		return major, minor, err == nil
	}
	sort.SliceStable(docs, func(i, j int) bool {
		mi, ni, oki := key(docs[i])
		mj, nj, okj := key(docs[j])
		if oki != okj {
			return oki
		}
		if mi != mj {
			return mi < mj
		}
		return ni < nj
	})
}

func (s *service) createVersionSeries(ctx context.Context, repositoryID string, doc *Content) (*VersionSeries, error) {
	vs := &VersionSeries{
		ID:       uuid.NewString(),
		Creator:  doc.Creator,
		Created:  doc.Created,
		Modifier: doc.Modifier,
		Modified: doc.Modified,
	}
	if err := s.repository.CreateVersionSeries(ctx, repositoryID, vs); err != nil {
		return nil, fmt.Errorf("create version series: %w", err)
	}
	return vs, nil
}

// markCheckedOut records pwc as the working copy of vs.
func (s *service) markCheckedOut(ctx context.Context, repositoryID string, vs *VersionSeries, pwc *Content) error {
	vs.CheckedOut = true
	vs.CheckedOutID = pwc.ID
	vs.CheckedOutBy = pwc.Creator
	vs.Modifier = pwc.Modifier
	vs.Modified = pwc.Modified
	if err := s.repository.UpdateVersionSeries(ctx, repositoryID, vs); err != nil {
		return fmt.Errorf("update version series %s: %w", vs.ID, err)
	}
	return nil
}

func seriesLockKey(repositoryID, versionSeriesID string) string {
	return "lifecycle:series:" + repositoryID + ":" + versionSeriesID
}

// lockSeries serializes checkout state changes of one version series.
func (s *service) lockSeries(ctx context.Context, repositoryID, versionSeriesID string) (func(), error) {
	unlock, err := s.locker.Lock(ctx, seriesLockKey(repositoryID, versionSeriesID))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLockNotAcquired, err)
	}
	return unlock, nil
}

// latestVersion returns the latest version of a series or nil if every
// version is gone or the only document is a working copy.
func (s *service) latestVersion(ctx context.Context, repositoryID, versionSeriesID string) (*Content, error) {
	latest, err := s.repository.GetLatestVersion(ctx, repositoryID, versionSeriesID)
	if errors.Is(err, ErrContentNotFound) {
		return nil, nil
	}
	return latest, err
}

func (s *service) CheckOut(ctx context.Context, repositoryID, documentID string) (*Content, error) {
	doc, err := s.repository.GetContent(ctx, repositoryID, documentID)
	if err != nil {
		return nil, err
	}
	if !doc.IsDocument() {
		return nil, fmt.Errorf("%w: %s is not a document", ErrInvalidArgument, documentID)
	}
	if doc.Document.IsImmutable {
		return nil, fmt.Errorf("%w: document %s is immutable", ErrConstraint, documentID)
	}
	unlock, err := s.lockSeries(ctx, repositoryID, doc.Document.VersionSeriesID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	vs, err := s.repository.GetVersionSeries(ctx, repositoryID, doc.Document.VersionSeriesID)
	if err != nil {
		return nil, err
	}
	if vs.CheckedOut {
		return nil, &ContentError{ContentID: documentID, Op: "check_out", Err: ErrAlreadyCheckedOut}
	}
	latest, err := s.latestVersion(ctx, repositoryID, vs.ID)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		latest = doc
	}

	now := s.now()
	user := PrincipalFrom(ctx)
	pwc := &Content{
		ID:               uuid.NewString(),
		Name:             latest.Name,
		ParentID:         latest.ParentID,
		ObjectType:       latest.ObjectType,
		BaseType:         BaseTypeDocument,
		Description:      latest.Description,
		SecondaryTypeIDs: cloneStrings(latest.SecondaryTypeIDs),
		ACLInherited:     latest.ACLInherited,
		ACL:              ACL{LocalAces: cloneAces(latest.ACL.LocalAces)},
		Creator:          user,
		Created:          now,
		Modifier:         user,
		Modified:         now,
		Document:         &DocumentInfo{VersionSeriesID: vs.ID},
	}
	applyInitialVersion(pwc.Document, VersioningCheckedOut)

	if latest.Document.AttachmentID != "" {
		attID, err := s.copyAttachment(ctx, repositoryID, latest.Document.AttachmentID)
		if err != nil {
			return nil, err
		}
		pwc.Document.AttachmentID = attID
	}

	if err := s.repository.CreateContent(ctx, repositoryID, pwc); err != nil {
		if pwc.Document.AttachmentID != "" {
			s.purgeAttachment(ctx, repositoryID, pwc.Document.AttachmentID)
		}
		return nil, &ContentError{ContentID: pwc.ID, Op: "check_out", Err: err}
	}
	if err := s.markCheckedOut(ctx, repositoryID, vs, pwc); err != nil {
		s.dropVersion(ctx, repositoryID, pwc, pwc.Document.AttachmentID != "")
		return nil, err
	}
	if _, err := s.recordChange(ctx, repositoryID, pwc, ChangeCreated); err != nil {
		return nil, err
	}
	s.refreshIndex(ctx, repositoryID)

	s.logger.Info("checked out document", "repository_id", repositoryID, "object_id", latest.ID, "pwc_id", pwc.ID)
	return pwc, nil
}

func (s *service) CancelCheckOut(ctx context.Context, repositoryID, pwcID string) error {
	pwc, vs, unlock, err := s.checkedOutPWC(ctx, repositoryID, pwcID)
	if err != nil {
		return err
	}
	defer unlock()

	// the DELETED change is written while the row still exists
	if _, err := s.recordChange(ctx, repositoryID, pwc, ChangeDeleted); err != nil {
		return err
	}
	if err := s.retirePWC(ctx, repositoryID, pwc, vs, true); err != nil {
		return err
	}
	s.refreshIndex(ctx, repositoryID)
	return nil
}

// checkedOutPWC loads a working copy and its series under the series lock,
// checking they agree. The caller releases the lock with unlock.
func (s *service) checkedOutPWC(ctx context.Context, repositoryID, pwcID string) (*Content, *VersionSeries, func(), error) {
	pwc, err := s.repository.GetContent(ctx, repositoryID, pwcID)
	if err != nil {
		return nil, nil, nil, err
	}
	if !pwc.IsDocument() || !pwc.Document.IsPrivateWorkingCopy {
		return nil, nil, nil, &ContentError{ContentID: pwcID, Op: "working_copy", Err: ErrNotCheckedOut}
	}
	unlock, err := s.lockSeries(ctx, repositoryID, pwc.Document.VersionSeriesID)
	if err != nil {
		return nil, nil, nil, err
	}

	vs, err := s.repository.GetVersionSeries(ctx, repositoryID, pwc.Document.VersionSeriesID)
	if err != nil {
		unlock()
		return nil, nil, nil, err
	}
	if !vs.CheckedOut || vs.CheckedOutID != pwc.ID {
		unlock()
		return nil, nil, nil, &ContentError{ContentID: pwcID, Op: "working_copy", Err: ErrNotCheckedOut}
	}
	// the working copy may have been retired while waiting for the lock
	if pwc, err = s.repository.GetContent(ctx, repositoryID, pwcID); err != nil {
		unlock()
		return nil, nil, nil, err
	}
	return pwc, vs, unlock, nil
}

// retirePWC deletes a working copy without archiving it and clears the
// checkout fields of its series. The attachment is purged unless it was
// handed over to a checked-in version.
func (s *service) retirePWC(ctx context.Context, repositoryID string, pwc *Content, vs *VersionSeries, purgeAttachment bool) error {
	if err := s.repository.DeleteContent(ctx, repositoryID, pwc.ID); err != nil {
		return &ContentError{ContentID: pwc.ID, Op: "cancel_check_out", Err: err}
	}
	if purgeAttachment && pwc.Document.AttachmentID != "" {
		s.purgeAttachment(ctx, repositoryID, pwc.Document.AttachmentID)
	}

	vs.CheckedOut = false
	vs.CheckedOutID = ""
	vs.CheckedOutBy = ""
	vs.Modifier = PrincipalFrom(ctx)
	vs.Modified = s.now()
	if err := s.repository.UpdateVersionSeries(ctx, repositoryID, vs); err != nil {
		return fmt.Errorf("update version series %s: %w", vs.ID, err)
	}
	return nil
}

// CheckIn promotes a working copy to a new version. The new version gets a
// fresh id; the working copy row is retired.
func (s *service) CheckIn(ctx context.Context, req CheckInRequest) (*Content, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	repositoryID := req.RepositoryID
	pwc, vs, unlock, err := s.checkedOutPWC(ctx, repositoryID, req.PWCID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	former, err := s.latestVersion(ctx, repositoryID, vs.ID)
	if err != nil {
		return nil, err
	}

	formerLabel := ""
	excludeID := pwc.ID
	if former != nil {
		formerLabel = former.Document.VersionLabel
		excludeID = former.ID
	}
	label, err := IncreasedVersionLabel(formerLabel, req.Major)
	if err != nil {
		return nil, err
	}

	name := pwc.Name
	if req.Name != nil {
		name = *req.Name
	}
	if pwc.ParentID != "" && (former == nil || name != former.Name) {
		if name, err = s.uniqueName(ctx, repositoryID, name, pwc.ParentID, excludeID); err != nil {
			return nil, err
		}
	}

	now := s.now()
	user := PrincipalFrom(ctx)
	checkedIn := pwc.Clone()
	checkedIn.ID = uuid.NewString()
	checkedIn.Name = name
	checkedIn.Creator = user
	checkedIn.Created = now
	checkedIn.Modifier = user
	checkedIn.Modified = now
	checkedIn.ChangeToken = ""
	checkedIn.ACL.InheritedAces = nil
	if req.Description != nil {
		checkedIn.Description = *req.Description
	}
	checkedIn.Document.VersionLabel = label
	checkedIn.Document.IsPrivateWorkingCopy = false
	checkedIn.Document.IsLatestVersion = true
	checkedIn.Document.IsMajorVersion = req.Major
	checkedIn.Document.IsLatestMajorVersion = req.Major
	checkedIn.Document.CheckinComment = req.Comment

	purgePWCAttachment := false
	if req.ContentStream != nil {
		att, err := s.createAttachment(ctx, repositoryID, req.ContentStream)
		if err != nil {
			return nil, err
		}
		checkedIn.Document.AttachmentID = att.ID
		purgePWCAttachment = true
	}

	// the new version is written before the former ones lose their flags so
	// the series never lacks a latest version
	if err := s.repository.CreateContent(ctx, repositoryID, checkedIn); err != nil {
		if purgePWCAttachment {
			s.purgeAttachment(ctx, repositoryID, checkedIn.Document.AttachmentID)
		}
		return nil, &ContentError{ContentID: checkedIn.ID, Op: "check_in", Err: err}
	}
	if err := s.demoteFormerVersions(ctx, repositoryID, vs.ID, checkedIn.ID, req.Major); err != nil {
		s.dropVersion(ctx, repositoryID, checkedIn, purgePWCAttachment)
		return nil, err
	}
	// the DELETED change of the working copy is written while its row exists
	if _, err := s.recordChange(ctx, repositoryID, pwc, ChangeDeleted); err != nil {
		s.dropVersion(ctx, repositoryID, checkedIn, purgePWCAttachment)
		return nil, err
	}
	if err := s.retirePWC(ctx, repositoryID, pwc, vs, purgePWCAttachment); err != nil {
		return nil, err
	}
	if _, err := s.recordChange(ctx, repositoryID, checkedIn, ChangeCreated); err != nil {
		return nil, err
	}
	s.refreshIndex(ctx, repositoryID)

	s.logger.Info("checked in document", "repository_id", repositoryID, "object_id", checkedIn.ID, "version_label", label, "major", req.Major)
	return checkedIn, nil
}

// demoteFormerVersions clears the latest flags a new check-in takes over.
// On a major check-in every latest-major flag in the series is cleared too,
// since the previous latest major version may be older than the latest one.
func (s *service) demoteFormerVersions(ctx context.Context, repositoryID, versionSeriesID, newID string, major bool) error {
	versions, err := s.repository.GetAllVersions(ctx, repositoryID, versionSeriesID)
	if err != nil {
		return err
	}
	for _, v := range versions {
		if v.ID == newID || v.Document.IsPrivateWorkingCopy {
			continue
		}
		changed := false
		if v.Document.IsLatestVersion {
			v.Document.IsLatestVersion = false
			changed = true
		}
		if major && v.Document.IsLatestMajorVersion {
			v.Document.IsLatestMajorVersion = false
			changed = true
		}
		if !changed {
			continue
		}
		if err := s.repository.UpdateContent(ctx, repositoryID, v); err != nil {
			return &ContentError{ContentID: v.ID, Op: "check_in", Err: err}
		}
	}
	return nil
}

// dropVersion removes a document written by a versioning step that did
// not complete and re-derives the latest flags of its series.
func (s *service) dropVersion(ctx context.Context, repositoryID string, doc *Content, purgeAttachment bool) {
	if err := s.repository.DeleteContent(ctx, repositoryID, doc.ID); err != nil {
		s.logger.Error("cannot drop incomplete version", "repository_id", repositoryID, "object_id", doc.ID, "error", err)
		return
	}
	if purgeAttachment && doc.Document.AttachmentID != "" {
		s.purgeAttachment(ctx, repositoryID, doc.Document.AttachmentID)
	}
	if err := s.recomputeLatest(ctx, repositoryID, doc.Document.VersionSeriesID); err != nil {
		s.logger.Error("cannot restore latest version flags", "repository_id", repositoryID, "version_series_id", doc.Document.VersionSeriesID, "error", err)
	}
}

// recomputeLatest re-derives the latest flags of a series from its labels.
// Used after versions are removed or restored.
func (s *service) recomputeLatest(ctx context.Context, repositoryID, versionSeriesID string) error {
	all, err := s.repository.GetAllVersions(ctx, repositoryID, versionSeriesID)
	if err != nil {
		return err
	}
	versions := make([]*Content, 0, len(all))
	for _, v := range all {
		if !v.Document.IsPrivateWorkingCopy {
			versions = append(versions, v)
		}
	}
	if len(versions) == 0 {
		return nil
	}
	sortVersions(versions)

	latest := versions[len(versions)-1]
	var latestMajor *Content
	for i := len(versions) - 1; i >= 0; i-- {
		if versions[i].Document.IsMajorVersion {
			latestMajor = versions[i]
			break
		}
	}
	for _, v := range versions {
		wantLatest := v == latest
		wantLatestMajor := v == latestMajor
		if v.Document.IsLatestVersion == wantLatest && v.Document.IsLatestMajorVersion == wantLatestMajor {
			continue
		}
		v.Document.IsLatestVersion = wantLatest
		v.Document.IsLatestMajorVersion = wantLatestMajor
		if err := s.repository.UpdateContent(ctx, repositoryID, v); err != nil {
			return &ContentError{ContentID: v.ID, Op: "update_latest_version", Err: err}
		}
	}
	return nil
}

func (s *service) GetAllVersions(ctx context.Context, repositoryID, versionSeriesID string, includePWC bool) ([]*Content, error) {
	if _, err := s.repository.GetVersionSeries(ctx, repositoryID, versionSeriesID); err != nil {
		return nil, err
	}
	all, err := s.repository.GetAllVersions(ctx, repositoryID, versionSeriesID)
	if err != nil {
		return nil, err
	}
	versions := all[:0]
	for _, v := range all {
		if v.Document.IsPrivateWorkingCopy && !includePWC {
			continue
		}
		versions = append(versions, v)
	}
	sortVersions(versions)
	return versions, nil
}

// GetLatestVersion returns the latest version of a series, or its latest
// major version when major is set.
func (s *service) GetLatestVersion(ctx context.Context, repositoryID, versionSeriesID string, major bool) (*Content, error) {
	if major {
		return s.repository.GetLatestMajorVersion(ctx, repositoryID, versionSeriesID)
	}
	return s.repository.GetLatestVersion(ctx, repositoryID, versionSeriesID)
}

func (s *service) GetVersionSeries(ctx context.Context, repositoryID, versionSeriesID string) (*VersionSeries, error) {
	return s.repository.GetVersionSeries(ctx, repositoryID, versionSeriesID)
}

func (s *service) GetCheckedOutDocuments(ctx context.Context, repositoryID, folderID string) ([]*Content, error) {
	if folderID != "" {
		if _, err := s.getFolder(ctx, repositoryID, folderID); err != nil {
			return nil, err
		}
	}
	return s.repository.GetCheckedOutDocuments(ctx, repositoryID, folderID)
}
