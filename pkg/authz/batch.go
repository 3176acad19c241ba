package authz

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/foliohq/folio/pkg/workspace"
)

// ResourceRef identifies one resource in a batch request.
type ResourceRef struct {
	Type workspace.ResourceType `json:"resourceType"`
	ID   int64                  `json:"resourceId"`
}

// BatchResult pairs a requested resource with its resolved decision.
// Unavailable marks items whose resolution hit a store failure; their
// decision is deny, but callers should log them as infrastructure
// errors rather than access denials.
type BatchResult struct {
	Ref         ResourceRef `json:"resource"`
	Decision    Decision    `json:"decision"`
	Unavailable bool        `json:"unavailable,omitempty"`
}

// ResolveBatch resolves the caller's access to many resources at once,
// sharing a single team-membership fetch across all of them. Intended
// for list views, where filtering N items performs N resolutions.
// Results keep the input order. Individual store failures fail closed
// per item; the returned error is non-nil only when the shared
// membership fetch itself fails.
func (r *Resolver) ResolveBatch(ctx context.Context, id Identity, refs []ResourceRef, concurrency int) ([]BatchResult, error) {
	if concurrency <= 0 {
		concurrency = 1
	}

	teamIDs, err := r.members.TeamIDs(ctx, id.UserID, id.OrganizationID)
	if err != nil {
		return nil, unavailable("fetch team memberships", err)
	}

	if r.metrics != nil {
		r.metrics.BatchResolutionSize.Observe(float64(len(refs)))
	}

	results := make([]BatchResult, len(refs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, ref := range refs {
		i, ref := i, ref
		g.Go(func() error {
			decision, err := r.ResolveWithTeams(ctx, id, teamIDs, ref.Type, ref.ID)
			if err != nil {
				r.logger.WithError(err).WithFields(map[string]interface{}{
					"resource_type": string(ref.Type),
					"resource_id":   ref.ID,
				}).Warn("Batch resolution item unavailable, failing closed")
				results[i] = BatchResult{Ref: ref, Decision: Deny(ReasonNoGrant), Unavailable: true}
				return nil
			}
			results[i] = BatchResult{Ref: ref, Decision: decision}
			return nil
		})
	}

	// Workers never return errors; Wait only propagates context
	// cancellation.
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

// FilterViewable returns the subset of refs the caller can view, in
// input order.
func (r *Resolver) FilterViewable(ctx context.Context, id Identity, refs []ResourceRef, concurrency int) ([]ResourceRef, error) {
	results, err := r.ResolveBatch(ctx, id, refs, concurrency)
	if err != nil {
		return nil, err
	}

	viewable := make([]ResourceRef, 0, len(refs))
	for _, result := range results {
		if result.Decision.Allowed {
			viewable = append(viewable, result.Ref)
		}
	}
	return viewable, nil
}
