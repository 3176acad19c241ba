// Package audit records permission and link mutations to an append
// only log. Mutations that must be atomic with their audit record use
// LogTx to join the caller's transaction.
package audit
