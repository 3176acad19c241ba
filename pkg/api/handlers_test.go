package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	_ "github.com/mattn/go-sqlite3"

	"github.com/foliohq/folio/pkg/audit"
	"github.com/foliohq/folio/pkg/authz"
	"github.com/foliohq/folio/pkg/contextkeys"
	"github.com/foliohq/folio/pkg/links"
	"github.com/foliohq/folio/pkg/observability"
	"github.com/foliohq/folio/pkg/workspace"
)

// apiHarness wires real stores over an in-memory database so handler
// tests exercise the full resolution path.
type apiHarness struct {
	db        *sql.DB
	router    *mux.Router
	workspace *workspace.Store
	links     *links.Store
}

func setupAPI(t *testing.T) *apiHarness {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE organizations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			slug TEXT NOT NULL UNIQUE,
			permissions_version INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE teams (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			organization_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE team_memberships (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			team_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			added_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(team_id, user_id)
		);

		CREATE TABLE folders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			organization_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			owner_team_id INTEGER,
			parent_folder_id INTEGER,
			inherit_permissions INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			deleted_at TIMESTAMP
		);

		CREATE TABLE files (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			organization_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			owner_team_id INTEGER,
			folder_id INTEGER,
			inherit_permissions INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			deleted_at TIMESTAMP
		);

		CREATE TABLE resource_permissions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			resource_type TEXT NOT NULL,
			resource_id INTEGER NOT NULL,
			grantee_type TEXT NOT NULL,
			grantee_id INTEGER NOT NULL,
			permission_type TEXT NOT NULL,
			role TEXT NOT NULL,
			created_by INTEGER,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(resource_type, resource_id, grantee_type, grantee_id)
		);

		CREATE TABLE public_links (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			token TEXT NOT NULL UNIQUE,
			resource_type TEXT NOT NULL,
			resource_id INTEGER NOT NULL,
			organization_id INTEGER NOT NULL,
			created_by INTEGER NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			disabled_at TIMESTAMP
		);
	`)
	if err != nil {
		t.Fatalf("Failed to create test tables: %v", err)
	}

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)

	workspaceStore := workspace.NewStore(db)
	permissionStore := authz.NewStore(db, audit.NopLogger{}, logger)
	linkStore := links.NewStore(db, audit.NopLogger{})

	resolver := authz.NewResolver(workspaceStore, permissionStore, workspaceStore, logger, authz.ResolverConfig{})
	validator := links.NewValidator(linkStore, workspaceStore, logger, 0)

	router := mux.NewRouter()
	NewAuthzHandlers(resolver, DefaultPolicy(), logger, 4).RegisterRoutes(router)
	NewPermissionHandlers(resolver, permissionStore, workspaceStore, audit.NopLogger{}, logger).RegisterRoutes(router)
	NewWorkspaceHandlers(resolver, workspaceStore, audit.NopLogger{}, logger).RegisterRoutes(router)
	linkHandlers := NewLinkHandlers(resolver, linkStore, validator, logger)
	linkHandlers.RegisterRoutes(router)
	linkHandlers.RegisterPublicRoutes(router)

	return &apiHarness{
		db:        db,
		router:    router,
		workspace: workspaceStore,
		links:     linkStore,
	}
}

func (h *apiHarness) do(t *testing.T, identity *authz.Identity, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if identity != nil {
		req = req.WithContext(contextkeys.WithIdentity(req.Context(), *identity))
	}

	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func (h *apiHarness) seedOrg(t *testing.T, name string) int64 {
	t.Helper()
	result, err := h.db.Exec("INSERT INTO organizations (name, slug) VALUES (?, ?)", name, name)
	if err != nil {
		t.Fatalf("Failed to insert organization: %v", err)
	}
	id, _ := result.LastInsertId()
	return id
}

func (h *apiHarness) seedTeam(t *testing.T, orgID int64, userIDs ...int64) int64 {
	t.Helper()
	result, err := h.db.Exec("INSERT INTO teams (organization_id, name) VALUES (?, ?)", orgID, "team")
	if err != nil {
		t.Fatalf("Failed to insert team: %v", err)
	}
	teamID, _ := result.LastInsertId()
	for _, userID := range userIDs {
		if _, err := h.db.Exec("INSERT INTO team_memberships (team_id, user_id) VALUES (?, ?)", teamID, userID); err != nil {
			t.Fatalf("Failed to insert team membership: %v", err)
		}
	}
	return teamID
}

func (h *apiHarness) seedFolder(t *testing.T, orgID int64, ownerTeamID, parentID *int64, inherit bool) int64 {
	t.Helper()
	result, err := h.db.Exec(
		"INSERT INTO folders (organization_id, name, owner_team_id, parent_folder_id, inherit_permissions) VALUES (?, ?, ?, ?, ?)",
		orgID, "folder", ownerTeamID, parentID, inherit,
	)
	if err != nil {
		t.Fatalf("Failed to insert folder: %v", err)
	}
	id, _ := result.LastInsertId()
	return id
}

func (h *apiHarness) seedFile(t *testing.T, orgID int64, ownerTeamID, folderID *int64, inherit bool) int64 {
	t.Helper()
	result, err := h.db.Exec(
		"INSERT INTO files (organization_id, name, owner_team_id, folder_id, inherit_permissions) VALUES (?, ?, ?, ?, ?)",
		orgID, "file", ownerTeamID, folderID, inherit,
	)
	if err != nil {
		t.Fatalf("Failed to insert file: %v", err)
	}
	id, _ := result.LastInsertId()
	return id
}

func (h *apiHarness) seedGrant(t *testing.T, resourceType workspace.ResourceType, resourceID int64, granteeType authz.GranteeType, granteeID int64, ruleType authz.RuleType, role authz.Role) {
	t.Helper()
	_, err := h.db.Exec(
		"INSERT INTO resource_permissions (resource_type, resource_id, grantee_type, grantee_id, permission_type, role) VALUES (?, ?, ?, ?, ?, ?)",
		string(resourceType), resourceID, string(granteeType), granteeID, string(ruleType), string(role),
	)
	if err != nil {
		t.Fatalf("Failed to insert permission rule: %v", err)
	}
}

func (h *apiHarness) permissionsVersion(t *testing.T, orgID int64) int64 {
	t.Helper()
	version, err := h.workspace.PermissionsVersion(context.Background(), orgID)
	if err != nil {
		t.Fatalf("Failed to read permissions version: %v", err)
	}
	return version
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dest); err != nil {
		t.Fatalf("Failed to decode response body %q: %v", rec.Body.String(), err)
	}
}

func requireStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("Expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}
