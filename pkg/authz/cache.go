package authz

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/foliohq/folio/pkg/workspace"
)

// VersionStore reads the per-organization permissions version counter.
// The counter is bumped on every permission, ownership, or deletion
// mutation, so cache keys built from it go stale the moment anything
// relevant changes.
type VersionStore interface {
	PermissionsVersion(ctx context.Context, orgID int64) (int64, error)
}

// DecisionCache is a bounded LRU of resolved decisions. Entries are
// keyed by caller, resource, and the organization's permissions
// version, so no explicit invalidation is needed: a mutation bumps the
// version and every older entry simply stops being looked up.
type DecisionCache struct {
	entries  *lru.Cache[string, Decision]
	versions VersionStore
}

// NewDecisionCache creates a decision cache with the given capacity
func NewDecisionCache(size int, versions VersionStore) (*DecisionCache, error) {
	entries, err := lru.New[string, Decision](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create decision cache: %w", err)
	}
	return &DecisionCache{entries: entries, versions: versions}, nil
}

// Version returns the organization's current permissions version
func (c *DecisionCache) Version(ctx context.Context, orgID int64) (int64, error) {
	return c.versions.PermissionsVersion(ctx, orgID)
}

// Get looks up a cached decision for the given caller and resource at
// a specific permissions version.
func (c *DecisionCache) Get(id Identity, resourceType workspace.ResourceType, resourceID, version int64) (Decision, bool) {
	return c.entries.Get(cacheKey(id, resourceType, resourceID, version))
}

// Put stores a resolved decision
func (c *DecisionCache) Put(id Identity, resourceType workspace.ResourceType, resourceID, version int64, decision Decision) {
	c.entries.Add(cacheKey(id, resourceType, resourceID, version), decision)
}

// Len returns the number of cached decisions
func (c *DecisionCache) Len() int {
	return c.entries.Len()
}

func cacheKey(id Identity, resourceType workspace.ResourceType, resourceID, version int64) string {
	// Super-admin status changes the orphan outcome, so it is part of
	// the key.
	return fmt.Sprintf("%d:%d:%t:%s:%d:%d", id.OrganizationID, id.UserID, id.SuperAdmin, resourceType, resourceID, version)
}
