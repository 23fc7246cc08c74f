package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and remote-store clients
// return these (optionally wrapped) so services can translate them into
// domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: record does not exist in store
// - ErrConflict: uniqueness constraint hit (record already exists)
// - ErrUnavailable: remote store unreachable or call timed out
// - ErrSchemaMismatch: remote collection is missing an optional column
// - ErrPermissionDenied: remote store rejected the credential; distinct from
//   ErrNotFound so a wrong-privilege key is never mistaken for "not configured"
// - ErrDecryptFailed: sealed secret material could not be opened
// - ErrInvalidState: record in wrong state for requested operation
//
// For validation errors (bad input, missing fields), use pkg/domain-errors.
var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrUnavailable      = errors.New("unavailable")
	ErrSchemaMismatch   = errors.New("schema mismatch")
	ErrPermissionDenied = errors.New("permission denied")
	ErrDecryptFailed    = errors.New("decrypt failed")
	ErrInvalidState     = errors.New("invalid state")
)
