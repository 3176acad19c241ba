// Package api exposes permission resolution, permission management,
// and public link access over HTTP. The resolver answers "what role
// does this caller hold"; handlers map actions to minimum roles via
// the policy table and enforce the result.
package api
