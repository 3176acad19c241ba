package links

import (
	"context"
	"fmt"

	"github.com/foliohq/folio/pkg/authz"
	"github.com/foliohq/folio/pkg/observability"
	"github.com/foliohq/folio/pkg/workspace"
)

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", authz.ErrUnavailable, op, err)
}

// LinkStore reads public links by token.
type LinkStore interface {
	GetByToken(ctx context.Context, token string) (*PublicLink, error)
}

// Validator checks tokens against requested resources. It never
// consults grants, denies, or ownership; a valid link yields viewer
// access and nothing more.
type Validator struct {
	links     LinkStore
	resources authz.ResourceStore
	logger    *observability.Logger
	metrics   *observability.Metrics
	maxDepth  int
}

// NewValidator creates a link validator
func NewValidator(links LinkStore, resources authz.ResourceStore, logger *observability.Logger, maxDepth int) *Validator {
	if maxDepth <= 0 {
		maxDepth = 100
	}
	return &Validator{
		links:     links,
		resources: resources,
		logger:    logger,
		maxDepth:  maxDepth,
	}
}

// WithMetrics attaches validation metrics
func (v *Validator) WithMetrics(m *observability.Metrics) *Validator {
	v.metrics = m
	return v
}

// Validate checks whether the token grants access to the requested
// resource. Unknown and disabled tokens deny. A folder link covers the
// folder itself and every resource nested under it; a file link covers
// only that file.
func (v *Validator) Validate(ctx context.Context, token string, resourceType workspace.ResourceType, resourceID int64) (Validation, error) {
	result, err := v.validate(ctx, token, resourceType, resourceID)
	v.observe(result, err)
	return result, err
}

func (v *Validator) validate(ctx context.Context, token string, resourceType workspace.ResourceType, resourceID int64) (Validation, error) {
	link, err := v.links.GetByToken(ctx, token)
	if err != nil {
		return denied(ReasonUnknownToken), unavailable("fetch public link", err)
	}
	if link == nil {
		return denied(ReasonUnknownToken), nil
	}
	if link.Disabled() {
		return denied(ReasonLinkDisabled), nil
	}

	res, err := v.resources.GetResource(ctx, resourceType, resourceID)
	if err != nil {
		return denied(ReasonResourceNotFound), unavailable("fetch resource", err)
	}
	if res == nil || res.IsDeleted() {
		return denied(ReasonResourceNotFound), nil
	}

	// Exact target match, folder or file.
	if link.ResourceType == resourceType && link.ResourceID == resourceID {
		return granted(), nil
	}

	// Only folder links extend beyond their own target.
	if link.ResourceType != workspace.ResourceTypeFolder {
		return denied(ReasonOutsideLink), nil
	}

	ancestors, err := v.resources.Ancestors(ctx, res, v.maxDepth)
	if err != nil {
		return denied(ReasonOutsideLink), unavailable("walk ancestors", err)
	}
	for _, ancestor := range ancestors {
		if ancestor.ID == link.ResourceID {
			return granted(), nil
		}
	}

	return denied(ReasonOutsideLink), nil
}

func (v *Validator) observe(result Validation, err error) {
	if v.metrics == nil {
		return
	}
	outcome := "deny"
	switch {
	case err != nil:
		outcome = "error"
	case result.HasAccess:
		outcome = "allow"
	}
	v.metrics.LinkValidationsTotal.WithLabelValues(outcome).Inc()
}
