package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// FirstChangeToken is the token of the first change of a repository.
const FirstChangeToken = "1"

// DefaultMaxChanges caps LatestChanges when the caller gives no limit.
const DefaultMaxChanges = 100

// NextChangeToken derives the token that follows latest. A nil latest
// starts the log.
func NextChangeToken(latest *Change) (string, error) {
	if latest == nil {
		return FirstChangeToken, nil
	}
	n, err := strconv.ParseUint(latest.Token, 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrCorruptChangeToken, latest.Token)
	}
	return strconv.FormatUint(n+1, 10), nil
}

func changeLockKey(repositoryID string) string {
	return "lifecycle:changelog:" + repositoryID
}

// reserveChangeToken takes the repository's change log lock and derives
// the next token. The caller writes the change row and then calls release.
// A corrupt latest token returns ErrCorruptChangeToken with the lock
// already released.
func (s *service) reserveChangeToken(ctx context.Context, repositoryID string) (token string, release func(), err error) {
	unlock, err := s.locker.Lock(ctx, changeLockKey(repositoryID))
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrLockNotAcquired, err)
	}

	latest, err := s.repository.GetLatestChange(ctx, repositoryID)
	if errors.Is(err, ErrChangeNotFound) {
		latest, err = nil, nil
	}
	if err != nil {
		unlock()
		return "", nil, fmt.Errorf("read latest change: %w", err)
	}
	token, err = NextChangeToken(latest)
	if err != nil {
		unlock()
		s.logger.Error("cannot derive change token", "repository_id", repositoryID, "latest_change_id", latest.ID, "error", err)
		return "", nil, err
	}
	return token, unlock, nil
}

// recordChange appends a change for content and stamps content with the
// new token. A corrupt change log loses this change row only: the error is
// logged and the mutation that is already saved stands.
func (s *service) recordChange(ctx context.Context, repositoryID string, content *Content, changeType ChangeType) (string, error) {
	policyIDs, err := s.appliedPolicyIDs(ctx, repositoryID, content.ID)
	if err != nil {
		return "", err
	}

	token, release, err := s.reserveChangeToken(ctx, repositoryID)
	if errors.Is(err, ErrCorruptChangeToken) {
		s.logger.Error("change not recorded", "repository_id", repositoryID, "object_id", content.ID, "change_type", changeType)
		return "", nil
	}
	if err != nil {
		return "", err
	}
	defer release()

	change := newChange(content, changeType, token, policyIDs)
	if err := s.repository.CreateChange(ctx, repositoryID, change); err != nil {
		return "", &ContentError{ContentID: content.ID, Op: "record_change", Err: err}
	}

	content.ChangeToken = token
	if err := s.repository.UpdateContent(ctx, repositoryID, content); err != nil {
		return "", &ContentError{ContentID: content.ID, Op: "record_change", Err: err}
	}

	s.logger.Debug("recorded change", "repository_id", repositoryID, "object_id", content.ID, "change_type", changeType, "change_token", token)
	return token, nil
}

// newChange snapshots content into a change row. Creations and deletions
// carry the object's creation time, updates its modification time.
func newChange(content *Content, changeType ChangeType, token string, policyIDs []string) *Change {
	c := &Change{
		ID:         uuid.NewString(),
		ObjectID:   content.ID,
		ChangeType: changeType,
		Token:      token,
		Name:       content.Name,
		BaseType:   content.BaseType,
		ObjectType: content.ObjectType,
		ParentID:   content.ParentID,
		PolicyIDs:  policyIDs,
		Creator:    content.Modifier,
		Created:    content.Modified,
	}
	switch changeType {
	case ChangeCreated, ChangeDeleted:
		c.Time = content.Created
	default:
		c.Time = content.Modified
	}
	if content.Document != nil {
		c.VersionSeriesID = content.Document.VersionSeriesID
		c.VersionLabel = content.Document.VersionLabel
	}
	return c
}

func (s *service) appliedPolicyIDs(ctx context.Context, repositoryID, objectID string) ([]string, error) {
	policies, err := s.repository.GetAppliedPolicies(ctx, repositoryID, objectID)
	if err != nil {
		return nil, fmt.Errorf("applied policies of %s: %w", objectID, err)
	}
	if len(policies) == 0 {
		return nil, nil
	}
	ids := make([]string, len(policies))
	for i, p := range policies {
		ids[i] = p.ID
	}
	return ids, nil
}

// LatestChangeToken returns the token of the most recent change, or an
// empty string when the log is empty.
func (s *service) LatestChangeToken(ctx context.Context, repositoryID string) (string, error) {
	latest, err := s.repository.GetLatestChange(ctx, repositoryID)
	if errors.Is(err, ErrChangeNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return latest.Token, nil
}

func (s *service) GetChange(ctx context.Context, repositoryID, token string) (*Change, error) {
	return s.repository.GetChange(ctx, repositoryID, token)
}

// LatestChanges returns up to maxItems changes written after sinceToken and
// the token to resume from. A non-numeric sinceToken reads from the start.
func (s *service) LatestChanges(ctx context.Context, repositoryID, sinceToken string, maxItems int) ([]*Change, string, error) {
	if _, err := strconv.ParseUint(sinceToken, 10, 64); err != nil {
		sinceToken = ""
	}
	if maxItems <= 0 {
		maxItems = DefaultMaxChanges
	}
	changes, err := s.repository.GetChangesSince(ctx, repositoryID, sinceToken, maxItems)
	if err != nil {
		return nil, "", err
	}
	next := sinceToken
	if len(changes) > 0 {
		next = changes[len(changes)-1].Token
	}
	return changes, next, nil
}
