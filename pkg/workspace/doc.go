// Package workspace holds the multi-tenant data model for the document
// workspace: organizations, teams, folders, and files, plus the
// PostgreSQL store the permission resolver reads from.
//
// Folders and files are the two resource kinds the permission engine
// operates on. Each resource belongs to an organization, is optionally
// owned by a team (a resource without an owner team is orphaned), may
// have a parent folder, and carries an inherit-permissions flag that
// controls whether ancestor permissions propagate down to it.
package workspace
