package workspace

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	// Create minimal tables for testing
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
	`)

	if err != nil {
		t.Fatalf("Failed to create test tables: %v", err)
	}

	return db
}

func insertOrg(t *testing.T, db *sql.DB, name string) int64 {
	result, err := db.Exec("INSERT INTO organizations (name, slug) VALUES (?, ?)", name, name)
	if err != nil {
		t.Fatalf("Failed to insert organization: %v", err)
	}
	id, _ := result.LastInsertId()
	return id
}

func insertTeam(t *testing.T, db *sql.DB, orgID int64, name string) int64 {
	result, err := db.Exec("INSERT INTO teams (organization_id, name) VALUES (?, ?)", orgID, name)
	if err != nil {
		t.Fatalf("Failed to insert team: %v", err)
	}
	id, _ := result.LastInsertId()
	return id
}

func insertFolder(t *testing.T, db *sql.DB, orgID int64, name string, ownerTeamID, parentID *int64, inherit bool) int64 {
	result, err := db.Exec(
		"INSERT INTO folders (organization_id, name, owner_team_id, parent_folder_id, inherit_permissions) VALUES (?, ?, ?, ?, ?)",
		orgID, name, ownerTeamID, parentID, inherit,
	)
	if err != nil {
		t.Fatalf("Failed to insert folder: %v", err)
	}
	id, _ := result.LastInsertId()
	return id
}

func insertFile(t *testing.T, db *sql.DB, orgID int64, name string, ownerTeamID, folderID *int64, inherit bool) int64 {
	result, err := db.Exec(
		"INSERT INTO files (organization_id, name, owner_team_id, folder_id, inherit_permissions) VALUES (?, ?, ?, ?, ?)",
		orgID, name, ownerTeamID, folderID, inherit,
	)
	if err != nil {
		t.Fatalf("Failed to insert file: %v", err)
	}
	id, _ := result.LastInsertId()
	return id
}

func TestStore_GetResource(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewStore(db)

	orgID := insertOrg(t, db, "acme")
	teamID := insertTeam(t, db, orgID, "docs")
	folderID := insertFolder(t, db, orgID, "root", &teamID, nil, true)
	fileID := insertFile(t, db, orgID, "readme", nil, &folderID, false)

	folder, err := store.GetResource(ctx, ResourceTypeFolder, folderID)
	if err != nil {
		t.Fatalf("Failed to get folder: %v", err)
	}
	if folder == nil {
		t.Fatal("Expected folder, got nil")
	}
	if folder.Type != ResourceTypeFolder || folder.ID != folderID {
		t.Errorf("Unexpected folder identity: %+v", folder)
	}
	if folder.OwnerTeamID == nil || *folder.OwnerTeamID != teamID {
		t.Errorf("Expected owner team %d, got %v", teamID, folder.OwnerTeamID)
	}
	if folder.ParentFolderID != nil {
		t.Errorf("Expected no parent, got %v", folder.ParentFolderID)
	}
	if !folder.InheritPermissions {
		t.Error("Expected inheritance enabled")
	}

	file, err := store.GetResource(ctx, ResourceTypeFile, fileID)
	if err != nil {
		t.Fatalf("Failed to get file: %v", err)
	}
	if file == nil {
		t.Fatal("Expected file, got nil")
	}
	if file.OwnerTeamID != nil {
		t.Errorf("Expected orphaned file, got owner %v", file.OwnerTeamID)
	}
	if !file.IsOrphaned() {
		t.Error("Expected IsOrphaned for file without owner team")
	}
	if file.ParentFolderID == nil || *file.ParentFolderID != folderID {
		t.Errorf("Expected parent folder %d, got %v", folderID, file.ParentFolderID)
	}
	if file.InheritPermissions {
		t.Error("Expected inheritance disabled")
	}
}

func TestStore_GetResource_NotFound(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := NewStore(db)

	res, err := store.GetResource(context.Background(), ResourceTypeFolder, 9999)
	if err != nil {
		t.Fatalf("Expected no error for missing resource, got %v", err)
	}
	if res != nil {
		t.Errorf("Expected nil resource, got %+v", res)
	}
}

func TestStore_GetResource_UnknownType(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := NewStore(db)

	_, err := store.GetResource(context.Background(), ResourceType("document"), 1)
	if err == nil {
		t.Fatal("Expected error for unknown resource type")
	}
}

func TestStore_Ancestors(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewStore(db)

	orgID := insertOrg(t, db, "acme")
	teamID := insertTeam(t, db, orgID, "docs")

	// root <- mid <- leaf <- file
	rootID := insertFolder(t, db, orgID, "root", &teamID, nil, true)
	midID := insertFolder(t, db, orgID, "mid", &teamID, &rootID, true)
	leafID := insertFolder(t, db, orgID, "leaf", &teamID, &midID, true)
	fileID := insertFile(t, db, orgID, "doc", &teamID, &leafID, true)

	file, err := store.GetResource(ctx, ResourceTypeFile, fileID)
	if err != nil {
		t.Fatalf("Failed to get file: %v", err)
	}

	ancestors, err := store.Ancestors(ctx, file, 100)
	if err != nil {
		t.Fatalf("Failed to walk ancestors: %v", err)
	}

	if len(ancestors) != 3 {
		t.Fatalf("Expected 3 ancestors, got %d", len(ancestors))
	}

	// Nearest first
	expected := []int64{leafID, midID, rootID}
	for i, want := range expected {
		if ancestors[i].ID != want {
			t.Errorf("Ancestor %d: expected folder %d, got %d", i, want, ancestors[i].ID)
		}
	}
}

func TestStore_Ancestors_DepthCap(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewStore(db)

	orgID := insertOrg(t, db, "acme")
	teamID := insertTeam(t, db, orgID, "docs")

	rootID := insertFolder(t, db, orgID, "root", &teamID, nil, true)
	parent := rootID
	var leafID int64
	for i := 0; i < 5; i++ {
		leafID = insertFolder(t, db, orgID, "nested", &teamID, &parent, true)
		parent = leafID
	}

	leaf, err := store.GetResource(ctx, ResourceTypeFolder, leafID)
	if err != nil {
		t.Fatalf("Failed to get folder: %v", err)
	}

	ancestors, err := store.Ancestors(ctx, leaf, 2)
	if err != nil {
		t.Fatalf("Failed to walk ancestors: %v", err)
	}
	if len(ancestors) != 2 {
		t.Errorf("Expected walk capped at 2 ancestors, got %d", len(ancestors))
	}
}

func TestStore_Ancestors_Cycle(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewStore(db)

	orgID := insertOrg(t, db, "acme")
	teamID := insertTeam(t, db, orgID, "docs")

	aID := insertFolder(t, db, orgID, "a", &teamID, nil, true)
	bID := insertFolder(t, db, orgID, "b", &teamID, &aID, true)

	// Corrupt the chain into a cycle: a -> b -> a
	if _, err := db.Exec("UPDATE folders SET parent_folder_id = ? WHERE id = ?", bID, aID); err != nil {
		t.Fatalf("Failed to create cycle: %v", err)
	}

	folderB, err := store.GetResource(ctx, ResourceTypeFolder, bID)
	if err != nil {
		t.Fatalf("Failed to get folder: %v", err)
	}

	ancestors, err := store.Ancestors(ctx, folderB, 100)
	if err != nil {
		t.Fatalf("Expected cycle to terminate the walk, got error: %v", err)
	}
	if len(ancestors) != 1 {
		t.Errorf("Expected walk to stop after revisiting, got %d ancestors", len(ancestors))
	}
}

func TestStore_Ancestors_DanglingParent(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewStore(db)

	orgID := insertOrg(t, db, "acme")
	missing := int64(4242)
	folderID := insertFolder(t, db, orgID, "stray", nil, &missing, true)

	folder, err := store.GetResource(ctx, ResourceTypeFolder, folderID)
	if err != nil {
		t.Fatalf("Failed to get folder: %v", err)
	}

	ancestors, err := store.Ancestors(ctx, folder, 100)
	if err != nil {
		t.Fatalf("Expected dangling parent to end walk, got error: %v", err)
	}
	if len(ancestors) != 0 {
		t.Errorf("Expected no ancestors, got %d", len(ancestors))
	}
}

func TestStore_IsDescendantOf(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewStore(db)

	orgID := insertOrg(t, db, "acme")
	rootID := insertFolder(t, db, orgID, "root", nil, nil, true)
	subID := insertFolder(t, db, orgID, "sub", nil, &rootID, true)
	fileID := insertFile(t, db, orgID, "doc", nil, &subID, true)
	otherID := insertFolder(t, db, orgID, "other", nil, nil, true)

	file, err := store.GetResource(ctx, ResourceTypeFile, fileID)
	if err != nil {
		t.Fatalf("Failed to get file: %v", err)
	}

	ok, err := store.IsDescendantOf(ctx, file, rootID, 100)
	if err != nil {
		t.Fatalf("Failed to check descendant: %v", err)
	}
	if !ok {
		t.Error("Expected file to be a descendant of root")
	}

	ok, err = store.IsDescendantOf(ctx, file, otherID, 100)
	if err != nil {
		t.Fatalf("Failed to check descendant: %v", err)
	}
	if ok {
		t.Error("Expected file not to be a descendant of unrelated folder")
	}

	root, err := store.GetResource(ctx, ResourceTypeFolder, rootID)
	if err != nil {
		t.Fatalf("Failed to get folder: %v", err)
	}
	ok, err = store.IsDescendantOf(ctx, root, rootID, 100)
	if err != nil {
		t.Fatalf("Failed to check descendant: %v", err)
	}
	if !ok {
		t.Error("Expected folder to be a descendant of itself")
	}
}

func TestStore_TeamIDs(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewStore(db)

	orgID := insertOrg(t, db, "acme")
	otherOrgID := insertOrg(t, db, "globex")

	docsID := insertTeam(t, db, orgID, "docs")
	engID := insertTeam(t, db, orgID, "eng")
	foreignID := insertTeam(t, db, otherOrgID, "ops")

	userID := int64(42)
	for _, teamID := range []int64{docsID, foreignID} {
		if _, err := db.Exec("INSERT INTO team_memberships (team_id, user_id) VALUES (?, ?)", teamID, userID); err != nil {
			t.Fatalf("Failed to insert membership: %v", err)
		}
	}

	teamIDs, err := store.TeamIDs(ctx, userID, orgID)
	if err != nil {
		t.Fatalf("Failed to get team ids: %v", err)
	}

	if len(teamIDs) != 1 {
		t.Fatalf("Expected 1 team in org, got %d", len(teamIDs))
	}
	if _, ok := teamIDs[docsID]; !ok {
		t.Errorf("Expected membership in team %d", docsID)
	}
	if _, ok := teamIDs[engID]; ok {
		t.Error("Did not expect membership in eng team")
	}
	if _, ok := teamIDs[foreignID]; ok {
		t.Error("Memberships must not leak across organizations")
	}
}

func TestStore_CreateFolder(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewStore(db)

	orgID := insertOrg(t, db, "acme")
	teamID := insertTeam(t, db, orgID, "docs")

	folder := &Folder{
		OrganizationID:     orgID,
		Name:               "reports",
		OwnerTeamID:        &teamID,
		InheritPermissions: true,
	}
	if err := store.CreateFolder(ctx, folder); err != nil {
		t.Fatalf("Failed to create folder: %v", err)
	}
	if folder.ID == 0 {
		t.Fatal("Expected folder ID to be assigned")
	}

	res, err := store.GetResource(ctx, ResourceTypeFolder, folder.ID)
	if err != nil {
		t.Fatalf("Failed to fetch created folder: %v", err)
	}
	if res == nil {
		t.Fatal("Expected created folder to be found")
	}
	want := folder.AsResource()
	if res.OrganizationID != want.OrganizationID || *res.OwnerTeamID != *want.OwnerTeamID || res.InheritPermissions != want.InheritPermissions {
		t.Errorf("Stored resource %+v does not match created folder %+v", res, want)
	}
}

func TestStore_CreateFile(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewStore(db)

	orgID := insertOrg(t, db, "acme")
	teamID := insertTeam(t, db, orgID, "docs")
	parentID := insertFolder(t, db, orgID, "reports", &teamID, nil, true)

	file := &File{
		OrganizationID:     orgID,
		Name:               "q3.doc",
		FolderID:           &parentID,
		InheritPermissions: true,
	}
	if err := store.CreateFile(ctx, file); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}
	if file.ID == 0 {
		t.Fatal("Expected file ID to be assigned")
	}

	res, err := store.GetResource(ctx, ResourceTypeFile, file.ID)
	if err != nil {
		t.Fatalf("Failed to fetch created file: %v", err)
	}
	if res == nil {
		t.Fatal("Expected created file to be found")
	}
	want := file.AsResource()
	if res.OrganizationID != want.OrganizationID || *res.ParentFolderID != *want.ParentFolderID {
		t.Errorf("Stored resource %+v does not match created file %+v", res, want)
	}
	if res.OwnerTeamID != nil {
		t.Error("Expected file without owner team to be stored orphaned")
	}
}

func TestStore_SoftDeleteResource(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewStore(db)

	orgID := insertOrg(t, db, "acme")
	fileID := insertFile(t, db, orgID, "doc", nil, nil, true)

	before, err := store.PermissionsVersion(ctx, orgID)
	if err != nil {
		t.Fatalf("Failed to get permissions version: %v", err)
	}

	if err := store.SoftDeleteResource(ctx, ResourceTypeFile, fileID, orgID); err != nil {
		t.Fatalf("Failed to soft delete: %v", err)
	}

	file, err := store.GetResource(ctx, ResourceTypeFile, fileID)
	if err != nil {
		t.Fatalf("Failed to get file: %v", err)
	}
	if file == nil {
		t.Fatal("Soft delete must keep the row")
	}
	if !file.IsDeleted() {
		t.Error("Expected file to report deleted")
	}

	after, err := store.PermissionsVersion(ctx, orgID)
	if err != nil {
		t.Fatalf("Failed to get permissions version: %v", err)
	}
	if after != before+1 {
		t.Errorf("Expected permissions version bump from %d, got %d", before, after)
	}

	if err := store.SoftDeleteResource(ctx, ResourceTypeFile, fileID, orgID); err == nil {
		t.Error("Expected error deleting an already-deleted resource")
	}
}

func TestStore_ReassignOwner(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewStore(db)

	orgID := insertOrg(t, db, "acme")
	teamID := insertTeam(t, db, orgID, "docs")
	folderID := insertFolder(t, db, orgID, "orphaned", nil, nil, true)

	before, err := store.PermissionsVersion(ctx, orgID)
	if err != nil {
		t.Fatalf("Failed to get permissions version: %v", err)
	}

	if err := store.ReassignOwner(ctx, ResourceTypeFolder, folderID, teamID, orgID); err != nil {
		t.Fatalf("Failed to reassign owner: %v", err)
	}

	folder, err := store.GetResource(ctx, ResourceTypeFolder, folderID)
	if err != nil {
		t.Fatalf("Failed to get folder: %v", err)
	}
	if folder.OwnerTeamID == nil || *folder.OwnerTeamID != teamID {
		t.Errorf("Expected owner team %d, got %v", teamID, folder.OwnerTeamID)
	}

	after, err := store.PermissionsVersion(ctx, orgID)
	if err != nil {
		t.Fatalf("Failed to get permissions version: %v", err)
	}
	if after != before+1 {
		t.Errorf("Expected permissions version bump from %d, got %d", before, after)
	}
}

func TestStore_ReassignOwner_NotFound(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := NewStore(db)
	orgID := insertOrg(t, db, "acme")
	teamID := insertTeam(t, db, orgID, "docs")

	err := store.ReassignOwner(context.Background(), ResourceTypeFile, 9999, teamID, orgID)
	if err == nil {
		t.Fatal("Expected error for missing resource")
	}
}
