package api

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/foliohq/folio/pkg/authz"
)

func TestDefaultPolicy(t *testing.T) {
	policy := DefaultPolicy()

	tests := []struct {
		action string
		want   authz.Role
	}{
		{ActionView, authz.RoleViewer},
		{ActionRename, authz.RoleEditor},
		{ActionMove, authz.RoleEditor},
		{ActionEdit, authz.RoleEditor},
		{ActionDelete, authz.RoleEditor},
		{ActionGrant, authz.RoleAdmin},
		{ActionRevoke, authz.RoleAdmin},
		{ActionShare, authz.RoleAdmin},
	}
	for _, tc := range tests {
		role, known := policy.MinRole(tc.action)
		if !known {
			t.Errorf("Expected %s to be a known action", tc.action)
			continue
		}
		if role != tc.want {
			t.Errorf("Expected %s to require %s, got %s", tc.action, tc.want, role)
		}
	}

	if _, known := policy.MinRole("launch"); known {
		t.Error("Expected unknown action to be unknown")
	}
}

func TestPolicy_Allows(t *testing.T) {
	policy := DefaultPolicy()

	editor := authz.Allow(authz.RoleEditor, authz.ReasonDirectGrant)
	if !policy.Allows(editor, ActionView) {
		t.Error("Expected editor to view")
	}
	if !policy.Allows(editor, ActionEdit) {
		t.Error("Expected editor to edit")
	}
	if policy.Allows(editor, ActionGrant) {
		t.Error("Expected editor not to grant access")
	}

	denied := authz.Deny(authz.ReasonNoGrant)
	if policy.Allows(denied, ActionView) {
		t.Error("Expected denied decision to fail every action")
	}

	if policy.Allows(editor, "launch") {
		t.Error("Expected unknown action to be denied")
	}
}

func TestLoadPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	content := []byte("actions:\n  view: editor\n  publish: admin\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("Failed to write policy file: %v", err)
	}

	policy, err := LoadPolicy(path)
	if err != nil {
		t.Fatalf("LoadPolicy failed: %v", err)
	}

	// Overridden action.
	role, known := policy.MinRole(ActionView)
	if !known || role != authz.RoleEditor {
		t.Errorf("Expected view to require editor, got %s (known=%v)", role, known)
	}

	// New action.
	role, known = policy.MinRole("publish")
	if !known || role != authz.RoleAdmin {
		t.Errorf("Expected publish to require admin, got %s (known=%v)", role, known)
	}

	// Defaults survive for untouched actions.
	role, known = policy.MinRole(ActionGrant)
	if !known || role != authz.RoleAdmin {
		t.Errorf("Expected grant_access to keep its default, got %s (known=%v)", role, known)
	}
}

func TestLoadPolicy_UnknownRole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte("actions:\n  view: owner\n"), 0o644); err != nil {
		t.Fatalf("Failed to write policy file: %v", err)
	}

	if _, err := LoadPolicy(path); err == nil {
		t.Fatal("Expected an error for an unknown role")
	}
}

func TestLoadPolicy_MissingFile(t *testing.T) {
	if _, err := LoadPolicy(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("Expected an error for a missing file")
	}
}
