package api

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/foliohq/folio/pkg/authz"
)

// Policy maps actions to the minimum role required to perform them.
// The resolver never answers "is this action allowed"; that mapping
// lives here, at the call site.
type Policy struct {
	actions map[string]authz.Role
}

// Action names understood by the check endpoint.
const (
	ActionView   = "view"
	ActionRename = "rename"
	ActionMove   = "move"
	ActionEdit   = "edit"
	ActionDelete = "delete"
	ActionGrant  = "grant_access"
	ActionRevoke = "revoke_access"
	ActionShare  = "share"
)

// DefaultPolicy returns the built-in action table
func DefaultPolicy() *Policy {
	return &Policy{actions: map[string]authz.Role{
		ActionView:   authz.RoleViewer,
		ActionRename: authz.RoleEditor,
		ActionMove:   authz.RoleEditor,
		ActionEdit:   authz.RoleEditor,
		ActionDelete: authz.RoleEditor,
		ActionGrant:  authz.RoleAdmin,
		ActionRevoke: authz.RoleAdmin,
		ActionShare:  authz.RoleAdmin,
	}}
}

type policyFile struct {
	Actions map[string]string `yaml:"actions"`
}

// LoadPolicy reads an action table from a YAML file. Entries override
// the defaults; unknown role names are an error.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}

	policy := DefaultPolicy()
	for action, roleName := range file.Actions {
		role, err := authz.ParseRole(roleName)
		if err != nil {
			return nil, fmt.Errorf("policy action %q: %w", action, err)
		}
		policy.actions[action] = role
	}

	return policy, nil
}

// MinRole returns the minimum role required for an action
func (p *Policy) MinRole(action string) (authz.Role, bool) {
	role, ok := p.actions[action]
	return role, ok
}

// Allows reports whether a resolved decision permits an action
func (p *Policy) Allows(decision authz.Decision, action string) bool {
	minRole, ok := p.MinRole(action)
	if !ok {
		return false
	}
	return decision.Allowed && decision.Role.AtLeast(minRole)
}
