package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/tendant/content-lifecycle/pkg/lifecycle"
)

// store holds the rows of one repository id
type store struct {
	contents    map[string]*lifecycle.Content
	series      map[string]*lifecycle.VersionSeries
	attachments map[string]*lifecycle.Attachment
	archives    map[string]*lifecycle.Archive
	changes     []*lifecycle.Change // write order
	tokens      map[string]int      // token -> index in changes
	order       map[string]uint64   // insertion sequence of contents and archives
}

func newStore() *store {
	return &store{
		contents:    make(map[string]*lifecycle.Content),
		series:      make(map[string]*lifecycle.VersionSeries),
		attachments: make(map[string]*lifecycle.Attachment),
		archives:    make(map[string]*lifecycle.Archive),
		tokens:      make(map[string]int),
		order:       make(map[string]uint64),
	}
}

// Repository implements lifecycle.Repository using in-memory storage
type Repository struct {
	mu     sync.RWMutex
	stores map[string]*store
	seq    uint64
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{stores: make(map[string]*store)}
}

// read returns the store of repositoryID or an empty one. Callers hold mu.
func (r *Repository) read(repositoryID string) *store {
	if s, ok := r.stores[repositoryID]; ok {
		return s
	}
	return newStore()
}

// write returns the store of repositoryID, creating it. Callers hold mu for writing.
func (r *Repository) write(repositoryID string) *store {
	s, ok := r.stores[repositoryID]
	if !ok {
		s = newStore()
		r.stores[repositoryID] = s
	}
	return s
}

func (r *Repository) next() uint64 {
	r.seq++
	return r.seq
}

// Content operations

func (r *Repository) CreateContent(ctx context.Context, repositoryID string, content *lifecycle.Content) error {
	if err := content.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.write(repositoryID)
	if _, exists := s.contents[content.ID]; exists {
		return fmt.Errorf("%w: content %s", lifecycle.ErrAlreadyExists, content.ID)
	}
	s.contents[content.ID] = content.Clone()
	s.order[content.ID] = r.next()
	return nil
}

func (r *Repository) GetContent(ctx context.Context, repositoryID, id string) (*lifecycle.Content, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	content, exists := r.read(repositoryID).contents[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", lifecycle.ErrContentNotFound, id)
	}
	return content.Clone(), nil
}

func (r *Repository) UpdateContent(ctx context.Context, repositoryID string, content *lifecycle.Content) error {
	if err := content.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.write(repositoryID)
	if _, exists := s.contents[content.ID]; !exists {
		return fmt.Errorf("%w: %s", lifecycle.ErrContentNotFound, content.ID)
	}
	c := content.Clone()
	c.ACL.InheritedAces = nil
	s.contents[content.ID] = c
	return nil
}

func (r *Repository) DeleteContent(ctx context.Context, repositoryID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.write(repositoryID)
	if _, exists := s.contents[id]; !exists {
		return fmt.Errorf("%w: %s", lifecycle.ErrContentNotFound, id)
	}
	delete(s.contents, id)
	delete(s.order, id)
	return nil
}

// sorted copies the matching contents ordered by name, then insertion.
func (s *store) sorted(match func(*lifecycle.Content) bool, byName bool) []*lifecycle.Content {
	var result []*lifecycle.Content
	for _, c := range s.contents {
		if match(c) {
			result = append(result, c.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if byName && result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		if !byName && !result[i].Created.Equal(result[j].Created) {
			return result[i].Created.Before(result[j].Created)
		}
		return s.order[result[i].ID] < s.order[result[j].ID]
	})
	return result
}

func inLatestIndex(c *lifecycle.Content) bool {
	if c.Document == nil {
		return true
	}
	return c.Document.IsLatestVersion && !c.Document.IsPrivateWorkingCopy
}

func (r *Repository) GetChildren(ctx context.Context, repositoryID, folderID string) ([]*lifecycle.Content, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.read(repositoryID).sorted(func(c *lifecycle.Content) bool {
		return c.ParentID == folderID && inLatestIndex(c)
	}, true), nil
}

func (r *Repository) GetChildByName(ctx context.Context, repositoryID, folderID, name string) (*lifecycle.Content, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.read(repositoryID).contents {
		if c.ParentID == folderID && c.Name == name && inLatestIndex(c) {
			return c.Clone(), nil
		}
	}
	return nil, fmt.Errorf("%w: %s in folder %s", lifecycle.ErrContentNotFound, name, folderID)
}

func (r *Repository) GetAppliedPolicies(ctx context.Context, repositoryID, objectID string) ([]*lifecycle.Content, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.read(repositoryID).sorted(func(c *lifecycle.Content) bool {
		if c.Policy == nil {
			return false
		}
		for _, id := range c.Policy.AppliedIDs {
			if id == objectID {
				return true
			}
		}
		return false
	}, false), nil
}

// Version operations

func (r *Repository) CreateVersionSeries(ctx context.Context, repositoryID string, vs *lifecycle.VersionSeries) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.write(repositoryID)
	if _, exists := s.series[vs.ID]; exists {
		return fmt.Errorf("%w: version series %s", lifecycle.ErrAlreadyExists, vs.ID)
	}
	cp := *vs
	s.series[vs.ID] = &cp
	return nil
}

func (r *Repository) GetVersionSeries(ctx context.Context, repositoryID, id string) (*lifecycle.VersionSeries, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	vs, exists := r.read(repositoryID).series[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", lifecycle.ErrVersionSeriesNotFound, id)
	}
	cp := *vs
	return &cp, nil
}

func (r *Repository) UpdateVersionSeries(ctx context.Context, repositoryID string, vs *lifecycle.VersionSeries) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.write(repositoryID)
	if _, exists := s.series[vs.ID]; !exists {
		return fmt.Errorf("%w: %s", lifecycle.ErrVersionSeriesNotFound, vs.ID)
	}
	cp := *vs
	s.series[vs.ID] = &cp
	return nil
}

func (r *Repository) DeleteVersionSeries(ctx context.Context, repositoryID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.write(repositoryID)
	if _, exists := s.series[id]; !exists {
		return fmt.Errorf("%w: %s", lifecycle.ErrVersionSeriesNotFound, id)
	}
	delete(s.series, id)
	return nil
}

func (r *Repository) versions(repositoryID, versionSeriesID string, match func(*lifecycle.DocumentInfo) bool) []*lifecycle.Content {
	return r.read(repositoryID).sorted(func(c *lifecycle.Content) bool {
		return c.Document != nil && c.Document.VersionSeriesID == versionSeriesID && match(c.Document)
	}, false)
}

func (r *Repository) GetAllVersions(ctx context.Context, repositoryID, versionSeriesID string) ([]*lifecycle.Content, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.versions(repositoryID, versionSeriesID, func(*lifecycle.DocumentInfo) bool { return true }), nil
}

func (r *Repository) GetLatestVersion(ctx context.Context, repositoryID, versionSeriesID string) (*lifecycle.Content, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	found := r.versions(repositoryID, versionSeriesID, func(d *lifecycle.DocumentInfo) bool {
		return d.IsLatestVersion && !d.IsPrivateWorkingCopy
	})
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: latest version of %s", lifecycle.ErrContentNotFound, versionSeriesID)
	}
	return found[len(found)-1], nil
}

func (r *Repository) GetLatestMajorVersion(ctx context.Context, repositoryID, versionSeriesID string) (*lifecycle.Content, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	found := r.versions(repositoryID, versionSeriesID, func(d *lifecycle.DocumentInfo) bool {
		return d.IsLatestMajorVersion && !d.IsPrivateWorkingCopy
	})
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: latest major version of %s", lifecycle.ErrContentNotFound, versionSeriesID)
	}
	return found[len(found)-1], nil
}

func (r *Repository) GetCheckedOutDocuments(ctx context.Context, repositoryID, folderID string) ([]*lifecycle.Content, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.read(repositoryID).sorted(func(c *lifecycle.Content) bool {
		return c.Document != nil && c.Document.IsPrivateWorkingCopy && (folderID == "" || c.ParentID == folderID)
	}, true), nil
}

// Attachment operations

func (r *Repository) CreateAttachment(ctx context.Context, repositoryID string, attachment *lifecycle.Attachment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.write(repositoryID)
	if _, exists := s.attachments[attachment.ID]; exists {
		return fmt.Errorf("%w: attachment %s", lifecycle.ErrAlreadyExists, attachment.ID)
	}
	cp := *attachment
	s.attachments[attachment.ID] = &cp
	return nil
}

func (r *Repository) GetAttachment(ctx context.Context, repositoryID, id string) (*lifecycle.Attachment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	att, exists := r.read(repositoryID).attachments[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", lifecycle.ErrAttachmentNotFound, id)
	}
	cp := *att
	return &cp, nil
}

func (r *Repository) DeleteAttachment(ctx context.Context, repositoryID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.write(repositoryID)
	if _, exists := s.attachments[id]; !exists {
		return fmt.Errorf("%w: %s", lifecycle.ErrAttachmentNotFound, id)
	}
	delete(s.attachments, id)
	return nil
}

// Change log operations

func (r *Repository) CreateChange(ctx context.Context, repositoryID string, change *lifecycle.Change) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.write(repositoryID)
	if _, exists := s.tokens[change.Token]; exists {
		return fmt.Errorf("%w: change token %s", lifecycle.ErrAlreadyExists, change.Token)
	}
	s.tokens[change.Token] = len(s.changes)
	s.changes = append(s.changes, change.Clone())
	return nil
}

func (r *Repository) GetLatestChange(ctx context.Context, repositoryID string) (*lifecycle.Change, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := r.read(repositoryID)
	if len(s.changes) == 0 {
		return nil, lifecycle.ErrChangeNotFound
	}
	return s.changes[len(s.changes)-1].Clone(), nil
}

func (r *Repository) GetChange(ctx context.Context, repositoryID, token string) (*lifecycle.Change, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := r.read(repositoryID)
	i, exists := s.tokens[token]
	if !exists {
		return nil, fmt.Errorf("%w: token %s", lifecycle.ErrChangeNotFound, token)
	}
	return s.changes[i].Clone(), nil
}

func (r *Repository) GetChangesSince(ctx context.Context, repositoryID, sinceToken string, limit int) ([]*lifecycle.Change, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var since uint64
	if sinceToken != "" {
		n, err := strconv.ParseUint(sinceToken, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: change token %q", lifecycle.ErrInvalidArgument, sinceToken)
		}
		since = n
	}

	var result []*lifecycle.Change
	for _, c := range r.read(repositoryID).changes {
		n, err := strconv.ParseUint(c.Token, 10, 64)
		if err != nil || n <= since {
			continue
		}
		result = append(result, c.Clone())
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

// Archive operations

func (r *Repository) CreateArchive(ctx context.Context, repositoryID string, archive *lifecycle.Archive) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.write(repositoryID)
	if _, exists := s.archives[archive.ID]; exists {
		return fmt.Errorf("%w: archive %s", lifecycle.ErrAlreadyExists, archive.ID)
	}
	s.archives[archive.ID] = archive.Clone()
	s.order[archive.ID] = r.next()
	return nil
}

func (r *Repository) GetArchive(ctx context.Context, repositoryID, id string) (*lifecycle.Archive, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, exists := r.read(repositoryID).archives[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", lifecycle.ErrArchiveNotFound, id)
	}
	return a.Clone(), nil
}

// archivesWhere copies matching archives, oldest first.
func (s *store) archivesWhere(match func(*lifecycle.Archive) bool) []*lifecycle.Archive {
	var result []*lifecycle.Archive
	for _, a := range s.archives {
		if match(a) {
			result = append(result, a.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Created.Equal(result[j].Created) {
			return result[i].Created.Before(result[j].Created)
		}
		return s.order[result[i].ID] < s.order[result[j].ID]
	})
	return result
}

func (r *Repository) GetArchiveByOriginalID(ctx context.Context, repositoryID, originalID string) (*lifecycle.Archive, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	found := r.read(repositoryID).archivesWhere(func(a *lifecycle.Archive) bool {
		return a.OriginalID == originalID && !a.IsAttachment()
	})
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: original %s", lifecycle.ErrArchiveNotFound, originalID)
	}
	return found[len(found)-1], nil
}

func (r *Repository) ListArchives(ctx context.Context, repositoryID string, skip, limit int, desc bool) ([]*lifecycle.Archive, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := r.read(repositoryID).archivesWhere(func(a *lifecycle.Archive) bool { return !a.IsAttachment() })
	if desc {
		for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
			all[i], all[j] = all[j], all[i]
		}
	}
	if skip >= len(all) {
		return []*lifecycle.Archive{}, nil
	}
	all = all[skip:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (r *Repository) GetArchivesOfVersionSeries(ctx context.Context, repositoryID, versionSeriesID string) ([]*lifecycle.Archive, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.read(repositoryID).archivesWhere(func(a *lifecycle.Archive) bool {
		return a.IsDocument() && a.VersionSeriesID == versionSeriesID
	}), nil
}

func (r *Repository) GetChildArchives(ctx context.Context, repositoryID, parentOriginalID string) ([]*lifecycle.Archive, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.read(repositoryID).archivesWhere(func(a *lifecycle.Archive) bool {
		return a.ParentID == parentOriginalID && !a.IsAttachment()
	}), nil
}

func (r *Repository) GetAttachmentArchive(ctx context.Context, repositoryID, attachmentID string) (*lifecycle.Archive, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	found := r.read(repositoryID).archivesWhere(func(a *lifecycle.Archive) bool {
		return a.IsAttachment() && a.OriginalID == attachmentID
	})
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: attachment %s", lifecycle.ErrArchiveNotFound, attachmentID)
	}
	return found[0], nil
}

func (r *Repository) DeleteArchive(ctx context.Context, repositoryID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.write(repositoryID)
	if _, exists := s.archives[id]; !exists {
		return fmt.Errorf("%w: %s", lifecycle.ErrArchiveNotFound, id)
	}
	delete(s.archives, id)
	delete(s.order, id)
	return nil
}

var _ lifecycle.Repository = (*Repository)(nil)
