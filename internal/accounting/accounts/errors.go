package accounts

import "errors"

var (
	// ErrNotFound is returned by repositories when no account matches.
	ErrNotFound = errors.New("accounts: account not found")
	// ErrDuplicateCode indicates the (tenant, code) unique index rejected a write.
	ErrDuplicateCode = errors.New("accounts: duplicate code")
	// ErrDepthExceeded indicates a reparent would push a descendant past the
	// maximum hierarchy depth.
	ErrDepthExceeded = errors.New("accounts: hierarchy depth exceeded")
)
