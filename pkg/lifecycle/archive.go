package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// DefaultArchivePageSize caps ListArchives when the caller gives no limit.
const DefaultArchivePageSize = 100

func (s *service) newArchive(ctx context.Context, c *Content, deletedWithParent bool) *Archive {
	a := &Archive{
		ID:                uuid.NewString(),
		OriginalID:        c.ID,
		Name:              c.Name,
		Type:              string(c.BaseType),
		ParentID:          c.ParentID,
		DeletedWithParent: deletedWithParent,
		Creator:           PrincipalFrom(ctx),
		Created:           s.now(),
		Snapshot:          c.Clone(),
	}
	a.Snapshot.ACL.InheritedAces = nil
	if c.Document != nil {
		a.AttachmentID = c.Document.AttachmentID
		a.VersionSeriesID = c.Document.VersionSeriesID
		a.IsLatestVersion = c.Document.IsLatestVersion
	}
	return a
}

// archiveAndDelete archives the object and its attachment, removes the
// live row and writes the DELETED change last. The token is reserved up
// front so the archive snapshot carries it; a failed step undoes the
// steps before it.
func (s *service) archiveAndDelete(ctx context.Context, repositoryID string, c *Content, deletedWithParent bool) error {
	policyIDs, err := s.appliedPolicyIDs(ctx, repositoryID, c.ID)
	if err != nil {
		return err
	}
	token, release, err := s.reserveChangeToken(ctx, repositoryID)
	switch {
	case errors.Is(err, ErrCorruptChangeToken):
		s.logger.Error("change not recorded", "repository_id", repositoryID, "object_id", c.ID, "change_type", ChangeDeleted)
	case err != nil:
		return err
	default:
		defer release()
	}

	previousToken := c.ChangeToken
	if token != "" {
		c.ChangeToken = token
	}
	archive := s.newArchive(ctx, c, deletedWithParent)
	c.ChangeToken = previousToken

	if err := s.repository.CreateArchive(ctx, repositoryID, archive); err != nil {
		return &ContentError{ContentID: c.ID, Op: "archive", Err: err}
	}
	if archive.AttachmentID != "" {
		if err := s.archiveAttachment(ctx, repositoryID, archive.AttachmentID); err != nil {
			s.undoArchive(ctx, repositoryID, archive, false)
			return err
		}
	}
	if err := s.repository.DeleteContent(ctx, repositoryID, c.ID); err != nil {
		s.undoArchive(ctx, repositoryID, archive, true)
		return &ContentError{ContentID: c.ID, Op: "delete", Err: err}
	}
	if token == "" {
		return nil
	}

	if err := s.repository.CreateChange(ctx, repositoryID, newChange(c, ChangeDeleted, token, policyIDs)); err != nil {
		if rerr := s.repository.CreateContent(ctx, repositoryID, c); rerr != nil {
			s.logger.Error("cannot put back deleted object", "repository_id", repositoryID, "object_id", c.ID, "error", rerr)
		} else {
			s.undoArchive(ctx, repositoryID, archive, true)
		}
		return &ContentError{ContentID: c.ID, Op: "record_change", Err: err}
	}
	c.ChangeToken = token
	return nil
}

// undoArchive drops an archive written by a delete that did not complete
// and, when withAttachment is set, moves its attachment back to the live set.
func (s *service) undoArchive(ctx context.Context, repositoryID string, archive *Archive, withAttachment bool) {
	if withAttachment && archive.AttachmentID != "" {
		if err := s.restoreAttachment(ctx, repositoryID, archive.AttachmentID); err != nil {
			s.logger.Error("cannot restore attachment", "repository_id", repositoryID, "attachment_id", archive.AttachmentID, "error", err)
		}
	}
	if err := s.repository.DeleteArchive(ctx, repositoryID, archive.ID); err != nil {
		s.logger.Error("cannot drop archive", "repository_id", repositoryID, "archive_id", archive.ID, "error", err)
	}
}

// archiveAttachment moves an attachment row into the archive. The blob is
// kept until the archive is destroyed.
func (s *service) archiveAttachment(ctx context.Context, repositoryID, attachmentID string) error {
	att, err := s.repository.GetAttachment(ctx, repositoryID, attachmentID)
	if errors.Is(err, ErrAttachmentNotFound) {
		s.logger.Warn("attachment already gone", "repository_id", repositoryID, "attachment_id", attachmentID)
		return nil
	}
	if err != nil {
		return err
	}
	a := &Archive{
		ID:                 uuid.NewString(),
		OriginalID:         att.ID,
		Name:               att.Name,
		Type:               ArchiveTypeAttachment,
		DeletedWithParent:  true,
		Creator:            PrincipalFrom(ctx),
		Created:            s.now(),
		AttachmentSnapshot: att,
	}
	if err := s.repository.CreateArchive(ctx, repositoryID, a); err != nil {
		return &ArchiveError{ArchiveID: a.ID, Op: "archive_attachment", Err: err}
	}
	return s.repository.DeleteAttachment(ctx, repositoryID, att.ID)
}

func (s *service) Delete(ctx context.Context, repositoryID, id string) error {
	content, err := s.repository.GetContent(ctx, repositoryID, id)
	if err != nil {
		return err
	}
	if s.isRoot(repositoryID, content) {
		return fmt.Errorf("%w: the root folder cannot be deleted", ErrInvalidArgument)
	}

	switch {
	case content.IsDocument():
		err = s.deleteDocument(ctx, repositoryID, content, true, false)
	case content.IsFolder():
		if err = s.checkEmpty(ctx, repositoryID, content.ID); err == nil {
			err = s.archiveAndDelete(ctx, repositoryID, content, false)
		}
	default:
		err = s.archiveAndDelete(ctx, repositoryID, content, false)
	}
	if err != nil {
		return err
	}
	s.refreshIndex(ctx, repositoryID)
	return nil
}

func (s *service) checkEmpty(ctx context.Context, repositoryID, folderID string) error {
	children, err := s.repository.GetChildren(ctx, repositoryID, folderID)
	if err != nil {
		return err
	}
	pwcs, err := s.repository.GetCheckedOutDocuments(ctx, repositoryID, folderID)
	if err != nil {
		return err
	}
	if len(children) > 0 || len(pwcs) > 0 {
		return fmt.Errorf("%w: folder %s is not empty", ErrConstraint, folderID)
	}
	return nil
}

func (s *service) DeleteDocument(ctx context.Context, repositoryID, id string, allVersions bool) error {
	doc, err := s.repository.GetContent(ctx, repositoryID, id)
	if err != nil {
		return err
	}
	if !doc.IsDocument() {
		return fmt.Errorf("%w: %s is not a document", ErrInvalidArgument, id)
	}
	if err := s.deleteDocument(ctx, repositoryID, doc, allVersions, false); err != nil {
		return err
	}
	s.refreshIndex(ctx, repositoryID)
	return nil
}

// deleteDocument archives one version of a document or its whole series.
// Deleting a working copy cancels the checkout instead.
func (s *service) deleteDocument(ctx context.Context, repositoryID string, doc *Content, allVersions, deletedWithParent bool) error {
	if doc.Document.IsPrivateWorkingCopy {
		return s.CancelCheckOut(ctx, repositoryID, doc.ID)
	}
	versionSeriesID := doc.Document.VersionSeriesID

	versions := []*Content{doc}
	if allVersions {
		vs, err := s.repository.GetVersionSeries(ctx, repositoryID, versionSeriesID)
		if err != nil {
			return err
		}
		if vs.CheckedOut {
			if err := s.CancelCheckOut(ctx, repositoryID, vs.CheckedOutID); err != nil {
				return err
			}
		}
		all, err := s.repository.GetAllVersions(ctx, repositoryID, versionSeriesID)
		if err != nil {
			return err
		}
		versions = all
	}

	for _, v := range versions {
		if v.Document.IsPrivateWorkingCopy {
			continue
		}
		if err := s.archiveAndDelete(ctx, repositoryID, v, deletedWithParent); err != nil {
			return err
		}
	}

	if !allVersions {
		if err := s.recomputeLatest(ctx, repositoryID, versionSeriesID); err != nil {
			return err
		}
	}
	s.logger.Info("deleted document", "repository_id", repositoryID, "object_id", doc.ID, "all_versions", allVersions, "versions", len(versions))
	return nil
}

type treeFrame struct {
	folder            *Content
	parent            *treeFrame
	deletedWithParent bool
	expanded          bool
	tainted           bool
}

func (f *treeFrame) taint() {
	for p := f; p != nil; p = p.parent {
		p.tainted = true
	}
}

// DeleteTree archives a folder and everything below it. Documents lose all
// their versions. Failed ids are collected; without ContinueOnFailure the
// first failure aborts with a *DeleteTreeError. A folder whose subtree kept
// a failed child is not deleted and is reported as failed itself.
func (s *service) DeleteTree(ctx context.Context, req DeleteTreeRequest) ([]string, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	repositoryID := req.RepositoryID
	folder, err := s.getFolder(ctx, repositoryID, req.FolderID)
	if err != nil {
		return nil, err
	}
	if s.isRoot(repositoryID, folder) {
		return nil, fmt.Errorf("%w: the root folder cannot be deleted", ErrInvalidArgument)
	}
	if err := s.checkTreeBounds(ctx, repositoryID, folder.ID); err != nil {
		return nil, err
	}
	defer s.refreshIndex(ctx, repositoryID)

	var failures []string
	fail := func(id string, owner *treeFrame, err error) error {
		failures = append(failures, id)
		s.logger.Warn("delete tree member failed", "repository_id", repositoryID, "folder_id", req.FolderID, "object_id", id, "error", err)
		if !req.ContinueOnFailure {
			return &DeleteTreeError{FolderID: req.FolderID, FailureIDs: failures, Err: err}
		}
		owner.taint()
		return nil
	}

	stack := []*treeFrame{{folder: folder}}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return failures, err
		}
		f := stack[len(stack)-1]

		if !f.expanded {
			f.expanded = true
			children, err := s.repository.GetChildren(ctx, repositoryID, f.folder.ID)
			if err == nil {
				var pwcs []*Content
				if pwcs, err = s.repository.GetCheckedOutDocuments(ctx, repositoryID, f.folder.ID); err == nil {
					if abort := s.deleteTreeMembers(ctx, repositoryID, f, children, pwcs, &stack, fail); abort != nil {
						return failures, abort
					}
					continue
				}
			}
			stack = stack[:len(stack)-1]
			if abort := fail(f.folder.ID, f, err); abort != nil {
				return failures, abort
			}
			continue
		}

		stack = stack[:len(stack)-1]
		if f.tainted {
			failures = append(failures, f.folder.ID)
			if f.parent != nil {
				f.parent.taint()
			}
			continue
		}
		if err := s.archiveAndDelete(ctx, repositoryID, f.folder, f.deletedWithParent); err != nil {
			owner := f.parent
			if owner == nil {
				owner = f
			}
			if abort := fail(f.folder.ID, owner, err); abort != nil {
				return failures, abort
			}
		}
	}

	s.logger.Info("deleted tree", "repository_id", repositoryID, "folder_id", req.FolderID, "failures", len(failures))
	return failures, nil
}

// deleteTreeMembers deletes the non-folder children of f and pushes its
// subfolders. It returns a non-nil error only when the walk must abort.
func (s *service) deleteTreeMembers(ctx context.Context, repositoryID string, f *treeFrame, children, pwcs []*Content, stack *[]*treeFrame, fail func(string, *treeFrame, error) error) error {
	for _, child := range children {
		var err error
		switch {
		case child.IsFolder():
			*stack = append(*stack, &treeFrame{folder: child, parent: f, deletedWithParent: true})
			continue
		case child.IsDocument():
			err = s.deleteDocument(ctx, repositoryID, child, true, true)
		default:
			err = s.archiveAndDelete(ctx, repositoryID, child, true)
		}
		if err != nil {
			if abort := fail(child.ID, f, err); abort != nil {
				return abort
			}
		}
	}
	// working copies whose series had no visible version
	for _, pwc := range pwcs {
		if _, err := s.repository.GetContent(ctx, repositoryID, pwc.ID); errors.Is(err, ErrContentNotFound) {
			continue
		}
		if err := s.CancelCheckOut(ctx, repositoryID, pwc.ID); err != nil {
			if abort := fail(pwc.ID, f, err); abort != nil {
				return abort
			}
		}
	}
	return nil
}

// checkTreeBounds walks the subtree read-only and rejects it when it is
// deeper or larger than configured, before anything is deleted.
func (s *service) checkTreeBounds(ctx context.Context, repositoryID, folderID string) error {
	type node struct {
		id    string
		depth int
	}
	stack := []node{{id: folderID}}
	visited := 0
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n.depth > s.config.MaxTreeDepth {
			return fmt.Errorf("%w: deeper than %d below %s", ErrTreeTooLarge, s.config.MaxTreeDepth, folderID)
		}
		children, err := s.repository.GetChildren(ctx, repositoryID, n.id)
		if err != nil {
			return err
		}
		visited += len(children) + 1
		if visited > s.config.MaxTreeNodes {
			return fmt.Errorf("%w: more than %d objects below %s", ErrTreeTooLarge, s.config.MaxTreeNodes, folderID)
		}
		for _, c := range children {
			if c.IsFolder() {
				stack = append(stack, node{id: c.ID, depth: n.depth + 1})
			}
		}
	}
	return nil
}

// Archive operations

func (s *service) ListArchives(ctx context.Context, repositoryID string, skip, limit int, desc bool) ([]*Archive, error) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = DefaultArchivePageSize
	}
	return s.repository.ListArchives(ctx, repositoryID, skip, limit, desc)
}

func (s *service) GetArchive(ctx context.Context, repositoryID, archiveID string) (*Archive, error) {
	return s.repository.GetArchive(ctx, repositoryID, archiveID)
}

// GetArchiveByOriginalID finds the archive of a deleted object by the id it
// had while live.
func (s *service) GetArchiveByOriginalID(ctx context.Context, repositoryID, originalID string) (*Archive, error) {
	if originalID == "" {
		return nil, fmt.Errorf("%w: original id is required", ErrInvalidArgument)
	}
	return s.repository.GetArchiveByOriginalID(ctx, repositoryID, originalID)
}

// RestoreArchive brings an archived object back. A folder brings back the
// descendants that were deleted with it; a document brings back every
// archived version of its series. Nothing is changed when the destination
// folder no longer exists.
func (s *service) RestoreArchive(ctx context.Context, repositoryID, archiveID string) (*Content, error) {
	archive, err := s.repository.GetArchive(ctx, repositoryID, archiveID)
	if err != nil {
		return nil, err
	}
	if archive.IsAttachment() {
		return nil, &ArchiveError{ArchiveID: archiveID, Op: "restore", Err: fmt.Errorf("%w: an attachment cannot be restored alone", ErrInvalidArgument)}
	}
	if archive.Snapshot == nil {
		return nil, &ArchiveError{ArchiveID: archiveID, Op: "restore", Err: fmt.Errorf("%w: archive has no snapshot", ErrStoreCorruption)}
	}

	parentID, err := s.restoreParent(ctx, repositoryID, archive)
	if err != nil {
		return nil, err
	}
	name, err := s.restoreName(ctx, repositoryID, archive, parentID)
	if err != nil {
		return nil, err
	}

	if archive.IsDocument() {
		err = s.restoreDocument(ctx, repositoryID, archive, parentID, name)
	} else {
		err = s.restoreTree(ctx, repositoryID, archive, name)
	}
	if err != nil {
		return nil, err
	}
	s.refreshIndex(ctx, repositoryID)

	s.logger.Info("restored archive", "repository_id", repositoryID, "archive_id", archiveID, "object_id", archive.OriginalID)
	return s.repository.GetContent(ctx, repositoryID, archive.OriginalID)
}

// restoreParent resolves where an archive goes back to. Documents follow
// the live versions of their series when some remain.
func (s *service) restoreParent(ctx context.Context, repositoryID string, archive *Archive) (string, error) {
	parentID := archive.ParentID
	if archive.IsDocument() {
		live, err := s.latestVersion(ctx, repositoryID, archive.VersionSeriesID)
		if err != nil {
			return "", err
		}
		if live != nil {
			parentID = live.ParentID
		}
	}
	if parentID == "" {
		return "", nil
	}
	parent, err := s.repository.GetContent(ctx, repositoryID, parentID)
	if errors.Is(err, ErrContentNotFound) || (err == nil && !parent.IsFolder()) {
		s.logger.Warn("restore destination is gone", "repository_id", repositoryID, "archive_id", archive.ID, "parent_id", parentID)
		return "", &ArchiveError{ArchiveID: archive.ID, Op: "restore", Err: ErrParentNoLongerExists}
	}
	if err != nil {
		return "", err
	}
	return parentID, nil
}

// restoreName resolves the archived name against the live siblings of the
// destination. Documents of the same series are not treated as siblings.
func (s *service) restoreName(ctx context.Context, repositoryID string, archive *Archive, parentID string) (string, error) {
	if parentID == "" {
		return archive.Name, nil
	}
	children, err := s.repository.GetChildren(ctx, repositoryID, parentID)
	if err != nil {
		return "", err
	}
	siblings := children[:0]
	for _, c := range children {
		if archive.IsDocument() && c.Document != nil && c.Document.VersionSeriesID == archive.VersionSeriesID {
			continue
		}
		siblings = append(siblings, c)
	}
	if s.config.BuildUniqueName {
		return ResolveUniqueName(archive.Name, siblings, ""), nil
	}
	for _, sib := range siblings {
		if sib.Name == archive.Name {
			return "", &ArchiveError{ArchiveID: archive.ID, Op: "restore", Err: ErrNameConflict}
		}
	}
	return archive.Name, nil
}

// restoreContent recreates one archived object and drops its archive row.
func (s *service) restoreContent(ctx context.Context, repositoryID string, archive *Archive, name string) (*Content, error) {
	c := archive.Snapshot.Clone()
	if name != "" {
		c.Name = name
	}
	if err := s.repository.CreateContent(ctx, repositoryID, c); err != nil {
		return nil, &ArchiveError{ArchiveID: archive.ID, Op: "restore", Err: err}
	}
	if err := s.repository.DeleteArchive(ctx, repositoryID, archive.ID); err != nil {
		return nil, &ArchiveError{ArchiveID: archive.ID, Op: "restore", Err: err}
	}
	if _, err := s.recordChange(ctx, repositoryID, c, ChangeCreated); err != nil {
		return nil, err
	}
	return c, nil
}

// restoreDocument restores every archived version of a series with its
// attachment, then re-derives the latest flags.
func (s *service) restoreDocument(ctx context.Context, repositoryID string, archive *Archive, parentID, name string) error {
	versionSeriesID := archive.VersionSeriesID
	if _, err := s.repository.GetVersionSeries(ctx, repositoryID, versionSeriesID); errors.Is(err, ErrVersionSeriesNotFound) {
		vs := &VersionSeries{
			ID:       versionSeriesID,
			Creator:  archive.Snapshot.Creator,
			Created:  archive.Snapshot.Created,
			Modifier: PrincipalFrom(ctx),
			Modified: s.now(),
		}
		if err := s.repository.CreateVersionSeries(ctx, repositoryID, vs); err != nil {
			return fmt.Errorf("recreate version series %s: %w", versionSeriesID, err)
		}
	} else if err != nil {
		return err
	}

	versions, err := s.repository.GetArchivesOfVersionSeries(ctx, repositoryID, versionSeriesID)
	if err != nil {
		return err
	}
	for _, v := range versions {
		if !v.IsDocument() || v.Snapshot == nil {
			continue
		}
		if v.AttachmentID != "" {
			if err := s.restoreAttachment(ctx, repositoryID, v.AttachmentID); err != nil {
				return err
			}
		}
		v.Snapshot.ParentID = parentID
		versionName := ""
		if v.Snapshot.Name == archive.Name {
			versionName = name
		}
		if _, err := s.restoreContent(ctx, repositoryID, v, versionName); err != nil {
			return err
		}
	}
	return s.recomputeLatest(ctx, repositoryID, versionSeriesID)
}

func (s *service) restoreAttachment(ctx context.Context, repositoryID, attachmentID string) error {
	a, err := s.repository.GetAttachmentArchive(ctx, repositoryID, attachmentID)
	if errors.Is(err, ErrArchiveNotFound) {
		s.logger.Warn("attachment archive missing", "repository_id", repositoryID, "attachment_id", attachmentID)
		return nil
	}
	if err != nil {
		return err
	}
	if a.AttachmentSnapshot == nil {
		return &ArchiveError{ArchiveID: a.ID, Op: "restore_attachment", Err: ErrStoreCorruption}
	}
	if err := s.repository.CreateAttachment(ctx, repositoryID, a.AttachmentSnapshot); err != nil {
		return &ArchiveError{ArchiveID: a.ID, Op: "restore_attachment", Err: err}
	}
	return s.repository.DeleteArchive(ctx, repositoryID, a.ID)
}

// restoreTree restores a non-document archive and, for folders, every
// descendant archived together with it.
func (s *service) restoreTree(ctx context.Context, repositoryID string, root *Archive, name string) error {
	stack := []*Archive{root}
	restored := 0
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		a := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		// series siblings may already have been restored with an earlier version
		current, err := s.repository.GetArchive(ctx, repositoryID, a.ID)
		if errors.Is(err, ErrArchiveNotFound) {
			continue
		}
		if err != nil {
			return err
		}

		restored++
		if restored > s.config.MaxTreeNodes {
			return fmt.Errorf("%w: more than %d archives below %s", ErrTreeTooLarge, s.config.MaxTreeNodes, root.ID)
		}

		if current.IsDocument() {
			if err := s.restoreDocument(ctx, repositoryID, current, current.ParentID, ""); err != nil {
				return err
			}
			continue
		}

		rename := ""
		if current.ID == root.ID {
			rename = name
		}
		if _, err := s.restoreContent(ctx, repositoryID, current, rename); err != nil {
			return err
		}
		if !current.IsFolder() {
			continue
		}
		children, err := s.repository.GetChildArchives(ctx, repositoryID, current.OriginalID)
		if err != nil {
			return err
		}
		for _, child := range children {
			if child.DeletedWithParent && !child.IsAttachment() {
				stack = append(stack, child)
			}
		}
	}
	return nil
}

// DestroyArchive permanently purges an archive. Folder archives take every
// archived descendant with them; document archives take every archived
// version of the series together with their attachment blobs.
func (s *service) DestroyArchive(ctx context.Context, repositoryID, archiveID string) error {
	root, err := s.repository.GetArchive(ctx, repositoryID, archiveID)
	if err != nil {
		return err
	}
	if root.IsAttachment() {
		return &ArchiveError{ArchiveID: archiveID, Op: "destroy", Err: fmt.Errorf("%w: attachments are destroyed with their document", ErrInvalidArgument)}
	}

	stack := []*Archive{root}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		a := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if _, err := s.repository.GetArchive(ctx, repositoryID, a.ID); errors.Is(err, ErrArchiveNotFound) {
			continue
		} else if err != nil {
			return err
		}

		if a.IsDocument() {
			if err := s.destroyDocumentArchives(ctx, repositoryID, a.VersionSeriesID); err != nil {
				return err
			}
			continue
		}
		if a.IsFolder() {
			children, err := s.repository.GetChildArchives(ctx, repositoryID, a.OriginalID)
			if err != nil {
				return err
			}
			for _, child := range children {
				if !child.IsAttachment() {
					stack = append(stack, child)
				}
			}
		}
		if err := s.repository.DeleteArchive(ctx, repositoryID, a.ID); err != nil {
			return &ArchiveError{ArchiveID: a.ID, Op: "destroy", Err: err}
		}
	}

	s.logger.Info("destroyed archive", "repository_id", repositoryID, "archive_id", archiveID, "object_id", root.OriginalID)
	return nil
}

func (s *service) destroyDocumentArchives(ctx context.Context, repositoryID, versionSeriesID string) error {
	versions, err := s.repository.GetArchivesOfVersionSeries(ctx, repositoryID, versionSeriesID)
	if err != nil {
		return err
	}
	for _, v := range versions {
		if v.AttachmentID != "" {
			att, err := s.repository.GetAttachmentArchive(ctx, repositoryID, v.AttachmentID)
			switch {
			case errors.Is(err, ErrArchiveNotFound):
			case err != nil:
				return err
			default:
				if att.AttachmentSnapshot != nil {
					s.deleteBlob(ctx, att.AttachmentSnapshot)
				}
				if err := s.repository.DeleteArchive(ctx, repositoryID, att.ID); err != nil {
					return &ArchiveError{ArchiveID: att.ID, Op: "destroy", Err: err}
				}
			}
		}
		if err := s.repository.DeleteArchive(ctx, repositoryID, v.ID); err != nil {
			return &ArchiveError{ArchiveID: v.ID, Op: "destroy", Err: err}
		}
	}

	live, err := s.repository.GetAllVersions(ctx, repositoryID, versionSeriesID)
	if err != nil {
		return err
	}
	if len(live) == 0 {
		if err := s.repository.DeleteVersionSeries(ctx, repositoryID, versionSeriesID); err != nil && !errors.Is(err, ErrVersionSeriesNotFound) {
			return err
		}
	}
	return nil
}
