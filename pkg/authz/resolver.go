package authz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/foliohq/folio/pkg/observability"
	"github.com/foliohq/folio/pkg/workspace"
)

// ErrUnavailable marks a resolution that failed because a backing
// store could not be reached. It is never a security decision: callers
// must treat it as deny while logging it as an infrastructure problem.
var ErrUnavailable = errors.New("resolution unavailable")

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}

// Identity carries the caller's authenticated context, built by the
// auth layer upstream of the resolver.
type Identity struct {
	UserID         int64 `json:"userId"`
	OrganizationID int64 `json:"organizationId"`
	SuperAdmin     bool  `json:"superAdmin"`
}

// TeamMembershipIndex resolves a user's team memberships within an
// organization.
type TeamMembershipIndex interface {
	TeamIDs(ctx context.Context, userID, orgID int64) (map[int64]struct{}, error)
}

// GrantDenyStore reads the explicit permission rules attached to a
// resource.
type GrantDenyStore interface {
	RulesFor(ctx context.Context, resourceType workspace.ResourceType, resourceID int64) ([]PermissionRule, error)
}

// ResourceStore reads folder and file rows and walks the folder tree.
type ResourceStore interface {
	GetResource(ctx context.Context, resourceType workspace.ResourceType, resourceID int64) (*workspace.Resource, error)
	Ancestors(ctx context.Context, res *workspace.Resource, maxDepth int) ([]*workspace.Resource, error)
}

// ResolverConfig tunes the resolver's safety bounds.
type ResolverConfig struct {
	// MaxAncestorDepth caps the folder tree walk. Exhausting the cap
	// is treated as "no further ancestors", never an error.
	MaxAncestorDepth int
	// ResolveTimeout bounds a single resolution; zero disables it.
	ResolveTimeout time.Duration
}

// Resolver computes the effective role a user holds on a resource.
// It is stateless and safe for concurrent use.
type Resolver struct {
	resources ResourceStore
	rules     GrantDenyStore
	members   TeamMembershipIndex
	logger    *observability.Logger
	metrics   *observability.Metrics
	cache     *DecisionCache
	maxDepth  int
	timeout   time.Duration
}

// NewResolver creates a resolver over the given stores
func NewResolver(resources ResourceStore, rules GrantDenyStore, members TeamMembershipIndex, logger *observability.Logger, cfg ResolverConfig) *Resolver {
	maxDepth := cfg.MaxAncestorDepth
	if maxDepth <= 0 {
		maxDepth = 100
	}
	return &Resolver{
		resources: resources,
		rules:     rules,
		members:   members,
		logger:    logger,
		maxDepth:  maxDepth,
		timeout:   cfg.ResolveTimeout,
	}
}

// WithMetrics attaches resolution metrics
func (r *Resolver) WithMetrics(m *observability.Metrics) *Resolver {
	r.metrics = m
	return r
}

// WithCache attaches a decision cache
func (r *Resolver) WithCache(c *DecisionCache) *Resolver {
	r.cache = c
	return r
}

// EffectiveRole resolves the caller's access to a single resource. It
// fetches the caller's team memberships and delegates to
// ResolveWithTeams; batch callers should fetch memberships once and
// call ResolveWithTeams directly.
func (r *Resolver) EffectiveRole(ctx context.Context, id Identity, resourceType workspace.ResourceType, resourceID int64) (Decision, error) {
	teamIDs, err := r.members.TeamIDs(ctx, id.UserID, id.OrganizationID)
	if err != nil {
		return Deny(ReasonNoGrant), unavailable("fetch team memberships", err)
	}
	return r.ResolveWithTeams(ctx, id, teamIDs, resourceType, resourceID)
}

// ResolveWithTeams resolves access using a pre-fetched team membership
// set. The precedence is fixed: deletion and orphan checks on the
// resource, then deny, ownership, grants and the inheritance flag on
// the resource itself, then the same sequence per ancestor nearest
// first, stopping at the first binding outcome.
func (r *Resolver) ResolveWithTeams(ctx context.Context, id Identity, teamIDs map[int64]struct{}, resourceType workspace.ResourceType, resourceID int64) (Decision, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	decision, err := r.resolve(ctx, id, teamIDs, resourceType, resourceID)
	r.observe(resourceType, decision, err, time.Since(start))
	return decision, err
}

func (r *Resolver) resolve(ctx context.Context, id Identity, teamIDs map[int64]struct{}, resourceType workspace.ResourceType, resourceID int64) (Decision, error) {
	var version int64 = -1
	if r.cache != nil {
		v, err := r.cache.Version(ctx, id.OrganizationID)
		if err == nil {
			version = v
			if decision, ok := r.cache.Get(id, resourceType, resourceID, version); ok {
				if r.metrics != nil {
					r.metrics.CacheHitsTotal.WithLabelValues("decision").Inc()
				}
				return decision, nil
			}
			if r.metrics != nil {
				r.metrics.CacheMissesTotal.WithLabelValues("decision").Inc()
			}
		} else {
			r.logger.WithError(err).Warn("Decision cache version lookup failed, resolving uncached")
		}
	}

	res, err := r.resources.GetResource(ctx, resourceType, resourceID)
	if err != nil {
		return Deny(ReasonNoGrant), unavailable("fetch resource", err)
	}

	decision, err := r.decide(ctx, id, teamIDs, res)
	if err != nil {
		return decision, err
	}

	if r.cache != nil && version >= 0 {
		r.cache.Put(id, resourceType, resourceID, version, decision)
	}
	return decision, nil
}

func (r *Resolver) decide(ctx context.Context, id Identity, teamIDs map[int64]struct{}, res *workspace.Resource) (Decision, error) {
	// Missing and deleted resources are indistinguishable from "no
	// access" so existence never leaks through differential responses.
	if res == nil {
		return Deny(ReasonResourceNotFound), nil
	}
	if res.IsDeleted() {
		return Deny(ReasonResourceDeleted), nil
	}
	if res.OrganizationID != id.OrganizationID {
		return Deny(ReasonResourceNotFound), nil
	}

	// Orphan status is terminal. It is never inherited and no grant
	// overrides it; only a super-admin gets in, so orphans can be
	// triaged and reassigned.
	if res.IsOrphaned() {
		if id.SuperAdmin {
			return Allow(RoleAdmin, ReasonSuperAdmin), nil
		}
		return Deny(ReasonOrphaned), nil
	}

	decision, terminal, err := r.evaluateLevel(ctx, id.UserID, teamIDs, res, false)
	if err != nil {
		return Deny(ReasonNoGrant), err
	}
	if terminal {
		return decision, nil
	}

	if !res.InheritPermissions {
		return Deny(ReasonInheritanceStopped), nil
	}

	ancestors, err := r.resources.Ancestors(ctx, res, r.maxDepth)
	if err != nil {
		return Deny(ReasonNoGrant), unavailable("walk ancestors", err)
	}
	if r.metrics != nil {
		r.metrics.AncestorWalkDepth.Observe(float64(len(ancestors)))
	}

	for _, ancestor := range ancestors {
		decision, terminal, err := r.evaluateLevel(ctx, id.UserID, teamIDs, ancestor, true)
		if err != nil {
			return Deny(ReasonNoGrant), err
		}
		if terminal {
			return decision, nil
		}
		if !ancestor.InheritPermissions {
			return Deny(ReasonInheritanceStopped), nil
		}
	}

	return Deny(ReasonNoGrant), nil
}

// evaluateLevel applies the per-level checks to one resource: explicit
// deny first, then team ownership, then the maximum role across all
// matching grant rows. Returns terminal=false when nothing at this
// level binds the caller.
func (r *Resolver) evaluateLevel(ctx context.Context, userID int64, teamIDs map[int64]struct{}, res *workspace.Resource, inherited bool) (Decision, bool, error) {
	rules, err := r.rules.RulesFor(ctx, res.Type, res.ID)
	if err != nil {
		return Deny(ReasonNoGrant), false, unavailable("fetch permission rules", err)
	}

	var (
		denied   bool
		maxGrant Role
		hasGrant bool
	)
	for _, rule := range rules {
		if !r.ruleApplies(rule, userID, teamIDs) {
			continue
		}
		switch rule.Type {
		case RuleDeny:
			denied = true
		case RuleGrant:
			if !rule.Role.Valid() {
				r.logger.WithFields(map[string]interface{}{
					"rule_id": rule.ID,
					"role":    string(rule.Role),
				}).Warn("Skipping permission rule with unknown role")
				continue
			}
			if !hasGrant || rule.Role.Level() > maxGrant.Level() {
				maxGrant = rule.Role
			}
			hasGrant = true
		default:
			r.logger.WithFields(map[string]interface{}{
				"rule_id": rule.ID,
				"type":    string(rule.Type),
			}).Warn("Skipping permission rule with unknown type")
		}
	}

	// Deny is checked before ownership and grants so it always wins
	// at its own level.
	if denied {
		return Deny(ReasonDenied), true, nil
	}

	if res.OwnedBy(teamIDs) {
		reason := ReasonOwner
		if inherited {
			reason = ReasonInheritedOwner
		}
		return Allow(RoleAdmin, reason), true, nil
	}

	if hasGrant {
		reason := ReasonDirectGrant
		if inherited {
			reason = ReasonInherited
		}
		return Allow(maxGrant, reason), true, nil
	}

	return Decision{}, false, nil
}

func (r *Resolver) ruleApplies(rule PermissionRule, userID int64, teamIDs map[int64]struct{}) bool {
	switch rule.GranteeType {
	case GranteeUser:
		return rule.GranteeID == userID
	case GranteeTeam:
		_, ok := teamIDs[rule.GranteeID]
		return ok
	default:
		r.logger.WithFields(map[string]interface{}{
			"rule_id":      rule.ID,
			"grantee_type": string(rule.GranteeType),
		}).Warn("Skipping permission rule with unknown grantee type")
		return false
	}
}

func (r *Resolver) observe(resourceType workspace.ResourceType, decision Decision, err error, elapsed time.Duration) {
	if r.metrics == nil {
		return
	}
	outcome := "deny"
	switch {
	case err != nil:
		outcome = "error"
		r.metrics.ResolutionErrors.WithLabelValues(string(resourceType)).Inc()
	case decision.Allowed:
		outcome = "allow"
	}
	r.metrics.ResolutionsTotal.WithLabelValues(string(resourceType), outcome).Inc()
	r.metrics.ResolutionDuration.WithLabelValues(string(resourceType)).Observe(elapsed.Seconds())
}

// CanView reports whether the caller resolves to any role on the resource
func (r *Resolver) CanView(ctx context.Context, id Identity, resourceType workspace.ResourceType, resourceID int64) (bool, error) {
	decision, err := r.EffectiveRole(ctx, id, resourceType, resourceID)
	if err != nil {
		return false, err
	}
	return decision.Allowed, nil
}

// CanEdit reports whether the caller resolves to editor or admin
func (r *Resolver) CanEdit(ctx context.Context, id Identity, resourceType workspace.ResourceType, resourceID int64) (bool, error) {
	decision, err := r.EffectiveRole(ctx, id, resourceType, resourceID)
	if err != nil {
		return false, err
	}
	return decision.Allowed && decision.Role.AtLeast(RoleEditor), nil
}

// CanAdmin reports whether the caller resolves to admin
func (r *Resolver) CanAdmin(ctx context.Context, id Identity, resourceType workspace.ResourceType, resourceID int64) (bool, error) {
	decision, err := r.EffectiveRole(ctx, id, resourceType, resourceID)
	if err != nil {
		return false, err
	}
	return decision.Allowed && decision.Role == RoleAdmin, nil
}
