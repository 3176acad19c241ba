// Package authz resolves the effective role a user holds on a folder
// or file within an organization.
//
// Access is decided by a fixed precedence: soft deletion, orphan
// checks, explicit denies, team ownership, direct grants, and finally
// an inherited walk up the folder tree. Denies always beat grants at
// the same level, the nearest ancestor wins across levels, and any
// ambiguity or store failure resolves toward no access.
package authz
