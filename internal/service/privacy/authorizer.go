package privacy

import (
	"context"
	"strings"
)

// GrantAuthorizer authorizes pseudonym reversal against a static
// allow-list of grants, each bound to one purpose. With no grants
// configured every reversal is denied.
type GrantAuthorizer struct {
	grants map[string]map[string]bool
}

// NewGrantAuthorizer parses "purpose:grant" entries. Malformed entries
// are skipped rather than widening access.
func NewGrantAuthorizer(entries []string) *GrantAuthorizer {
	a := &GrantAuthorizer{grants: make(map[string]map[string]bool)}
	for _, entry := range entries {
		purpose, grant, ok := strings.Cut(entry, ":")
		if !ok || purpose == "" || grant == "" {
			continue
		}
		if a.grants[purpose] == nil {
			a.grants[purpose] = make(map[string]bool)
		}
		a.grants[purpose][grant] = true
	}
	return a
}

func (a *GrantAuthorizer) AuthorizeReversal(ctx context.Context, auth Authorization) bool {
	if auth.ActorID == "" || auth.Grant == "" {
		return false
	}
	return a.grants[auth.Purpose][auth.Grant]
}
