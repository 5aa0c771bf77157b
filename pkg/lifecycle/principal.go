package lifecycle

import "context"

type principalKey struct{}

// WithPrincipal returns a context carrying the acting user id.
func WithPrincipal(ctx context.Context, principalID string) context.Context {
	return context.WithValue(ctx, principalKey{}, principalID)
}

// PrincipalFrom returns the acting user of ctx, or PrincipalSystem.
func PrincipalFrom(ctx context.Context) string {
	if id, ok := ctx.Value(principalKey{}).(string); ok && id != "" {
		return id
	}
	return PrincipalSystem
}

// StaticPrincipals maps the system principals to fixed ids for every repository.
type StaticPrincipals struct {
	AnonymousID string
	AnyoneID    string
}

// NewStaticPrincipals creates a resolver. Empty ids keep the stored names.
func NewStaticPrincipals(anonymousID, anyoneID string) *StaticPrincipals {
	if anonymousID == "" {
		anonymousID = PrincipalAnonymous
	}
	if anyoneID == "" {
		anyoneID = PrincipalAnyone
	}
	return &StaticPrincipals{AnonymousID: anonymousID, AnyoneID: anyoneID}
}

// Anonymous implements PrincipalResolver.
func (p *StaticPrincipals) Anonymous(repositoryID string) string { return p.AnonymousID }

// Anyone implements PrincipalResolver.
func (p *StaticPrincipals) Anyone(repositoryID string) string { return p.AnyoneID }
