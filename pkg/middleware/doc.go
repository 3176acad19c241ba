// Package middleware provides HTTP middleware for identity propagation
// and request rate limiting. Authentication itself happens upstream; a
// trusted gateway injects the caller's identity headers and this
// package turns them into request context.
package middleware
