// Package links implements token-based public access to folders and
// files. A public link is a separate access path from the permission
// model: it always resolves to viewer, never allows AI features, and
// never consults grants, denies, or ownership. A link to a folder
// extends to everything nested under it.
package links
