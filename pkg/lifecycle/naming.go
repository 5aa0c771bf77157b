package lifecycle

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

var numberedSuffix = regexp.MustCompile(`\(\d+\)$`)

// splitFileName splits name at its last dot. The extension keeps the dot.
func splitFileName(name string) (body, ext string) {
	i := strings.LastIndex(name, ".")
	if i < 0 {
		return name, ""
	}
	return name[:i], name[i:]
}

// stripNumberedSuffix removes a trailing "(N)" from a name body.
func stripNumberedSuffix(body string) string {
	return numberedSuffix.ReplaceAllString(body, "")
}

// namesConflict reports whether a and b only differ by a "(N)" suffix.
func namesConflict(a, b string) bool {
	ab, ae := splitFileName(a)
	bb, be := splitFileName(b)
	return ae == be && stripNumberedSuffix(ab) == stripNumberedSuffix(bb)
}

// ResolveUniqueName picks a name for candidate that does not collide with
// siblings. A sibling whose ID equals excludeID is ignored.
//
// Probing stops after len(conflicts)+1 attempts, so one of them is always free.
func ResolveUniqueName(candidate string, siblings []*Content, excludeID string) string {
	conflicts := make(map[string]struct{})
	for _, s := range siblings {
		if excludeID != "" && s.ID == excludeID {
			continue
		}
		if namesConflict(candidate, s.Name) {
			conflicts[s.Name] = struct{}{}
		}
	}
	if len(conflicts) == 0 {
		return candidate
	}

	body, ext := splitFileName(candidate)
	body = stripNumberedSuffix(body)
	for i := 1; i <= len(conflicts)+1; i++ {
		numbered := fmt.Sprintf("%s(%d)%s", body, i, ext)
		if _, taken := conflicts[numbered]; !taken {
			return numbered
		}
	}
	// unreachable: len(conflicts)+1 suffixes cannot all be taken
	return candidate
}

// uniqueName resolves candidate against the live children of folderID.
// When unique-name building is disabled it only rejects exact duplicates.
func (s *service) uniqueName(ctx context.Context, repositoryID, candidate, folderID, excludeID string) (string, error) {
	if folderID == "" {
		return candidate, nil
	}
	siblings, err := s.repository.GetChildren(ctx, repositoryID, folderID)
	if err != nil {
		return "", fmt.Errorf("list children of %s: %w", folderID, err)
	}

	if s.config.BuildUniqueName {
		return ResolveUniqueName(candidate, siblings, excludeID), nil
	}

	for _, sib := range siblings {
		if sib.ID == excludeID {
			continue
		}
		if sib.Name == candidate {
			return "", &ContentError{ContentID: sib.ID, Op: "name_check", Err: ErrNameConflict}
		}
	}
	return candidate, nil
}
