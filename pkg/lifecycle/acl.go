package lifecycle

import (
	"context"
	"errors"
	"fmt"
)

// MergeAces overlays target on source. Every target entry is kept and
// marked direct; a source entry survives only when target has no entry
// for its principal, and is then marked inherited. Permissions of one
// principal are replaced, never unioned.
func MergeAces(target, source []Ace) []Ace {
	merged := make([]Ace, 0, len(target)+len(source))
	seen := make(map[string]struct{}, len(target))
	for _, ace := range target {
		seen[ace.PrincipalID] = struct{}{}
		merged = append(merged, Ace{PrincipalID: ace.PrincipalID, Permissions: cloneStrings(ace.Permissions), Direct: true})
	}
	for _, ace := range source {
		if _, ok := seen[ace.PrincipalID]; ok {
			continue
		}
		merged = append(merged, Ace{PrincipalID: ace.PrincipalID, Permissions: cloneStrings(ace.Permissions), Direct: false})
	}
	return merged
}

func markDirect(aces []Ace) []Ace {
	out := cloneAces(aces)
	for i := range out {
		out[i].Direct = true
	}
	return out
}

// effectiveACL computes the ACL of content including inherited entries.
//
// Ancestors are collected upward until the root, an unfiled object or an
// object that does not inherit; the merge then runs root-to-leaf one level
// at a time. A parent id that does not resolve means the store is corrupt
// and panics with a value wrapping ErrStoreCorruption.
func (s *service) effectiveACL(ctx context.Context, repositoryID string, content *Content) (*ACL, error) {
	chain := []*Content{content}
	current := content
	for current.ACLInherited && current.ParentID != "" && !s.isRoot(repositoryID, current) {
		if len(chain) > s.config.MaxTreeDepth {
			return nil, fmt.Errorf("%w: ancestors of %s", ErrTreeTooLarge, content.ID)
		}
		parent, err := s.repository.GetContent(ctx, repositoryID, current.ParentID)
		if errors.Is(err, ErrContentNotFound) {
			panic(storeCorruption{ObjectID: current.ID, ParentID: current.ParentID})
		}
		if err != nil {
			return nil, fmt.Errorf("load ancestor %s: %w", current.ParentID, err)
		}
		chain = append(chain, parent)
		current = parent
	}

	aces := markDirect(chain[len(chain)-1].ACL.LocalAces)
	for i := len(chain) - 2; i >= 0; i-- {
		aces = MergeAces(chain[i].ACL.LocalAces, aces)
	}
	aces = s.convertSystemPrincipals(repositoryID, aces)

	acl := &ACL{}
	for _, ace := range aces {
		if ace.Direct {
			acl.LocalAces = append(acl.LocalAces, ace)
		} else {
			acl.InheritedAces = append(acl.InheritedAces, ace)
		}
	}
	return acl, nil
}

// convertSystemPrincipals rewrites the stored anonymous and anyone ids to
// the ids the repository exposes.
func (s *service) convertSystemPrincipals(repositoryID string, aces []Ace) []Ace {
	for i := range aces {
		switch aces[i].PrincipalID {
		case PrincipalAnonymous:
			aces[i].PrincipalID = s.principals.Anonymous(repositoryID)
		case PrincipalAnyone:
			aces[i].PrincipalID = s.principals.Anyone(repositoryID)
		}
	}
	return aces
}

// aclInheritedWithDefault decides whether c inherits its parent's ACL.
// The root and unfiled objects never inherit. Objects directly under the
// root inherit only when configured to.
func (s *service) aclInheritedWithDefault(repositoryID string, c *Content, requested *bool) bool {
	if s.isRoot(repositoryID, c) || c.ParentID == "" {
		return false
	}
	if requested != nil {
		return *requested
	}
	if c.ParentID == s.rootFolderID(repositoryID) {
		return s.config.InheritPermissionAtTopLevel
	}
	return true
}

// aclOnCreated returns the local ACL of a new object. Top-level and unfiled
// objects grant their creator full control since they may inherit nothing.
func (s *service) aclOnCreated(repositoryID, parentID, creator string) ACL {
	if parentID != "" && parentID != s.rootFolderID(repositoryID) {
		return ACL{}
	}
	return ACL{LocalAces: []Ace{{PrincipalID: creator, Permissions: []string{PermissionAll}, Direct: true}}}
}

// normalizeAces folds duplicate principals into one direct entry.
func normalizeAces(aces []Ace) []Ace {
	out := make([]Ace, 0, len(aces))
	index := make(map[string]int, len(aces))
	for _, ace := range aces {
		i, ok := index[ace.PrincipalID]
		if !ok {
			index[ace.PrincipalID] = len(out)
			out = append(out, Ace{PrincipalID: ace.PrincipalID, Direct: true})
			i = len(out) - 1
		}
		for _, p := range ace.Permissions {
			if !containsString(out[i].Permissions, p) {
				out[i].Permissions = append(out[i].Permissions, p)
			}
		}
	}
	return out
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func (s *service) ApplyACL(ctx context.Context, req ApplyACLRequest) (*ACL, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	repositoryID := req.RepositoryID
	content, err := s.repository.GetContent(ctx, repositoryID, req.ObjectID)
	if err != nil {
		return nil, err
	}
	if req.ACLInherited != nil && *req.ACLInherited && (s.isRoot(repositoryID, content) || content.ParentID == "") {
		return nil, fmt.Errorf("%w: %s has no parent to inherit from", ErrInvalidArgument, content.ID)
	}

	content.ACL = ACL{LocalAces: normalizeAces(req.Aces)}
	if req.ACLInherited != nil {
		content.ACLInherited = *req.ACLInherited
	}
	s.touch(ctx, content)
	if err := s.repository.UpdateContent(ctx, repositoryID, content); err != nil {
		return nil, &ContentError{ContentID: content.ID, Op: "apply_acl", Err: err}
	}
	if _, err := s.recordChange(ctx, repositoryID, content, ChangeSecurity); err != nil {
		return nil, err
	}
	s.refreshIndex(ctx, repositoryID)

	return s.effectiveACL(ctx, repositoryID, content)
}

func (s *service) GetEffectiveACL(ctx context.Context, repositoryID, objectID string) (*ACL, error) {
	content, err := s.repository.GetContent(ctx, repositoryID, objectID)
	if err != nil {
		return nil, err
	}
	return s.effectiveACL(ctx, repositoryID, content)
}
