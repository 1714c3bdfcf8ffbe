package store

import "errors"

// Errors returned by container operations.
var (
	ErrNotFound       = errors.New("store: object not found")
	ErrClosed         = errors.New("store: file closed")
	ErrReadOnly       = errors.New("store: file opened read-only")
	ErrBadMagic       = errors.New("store: not a container file")
	ErrChecksum       = errors.New("store: checksum mismatch")
	ErrTruncated      = errors.New("store: container truncated")
	ErrEncrypted      = errors.New("store: file is encrypted and no cipher was provided")
	ErrTypeMismatch   = errors.New("store: attribute or dataset has a different type")
	ErrNotCoordinator = errors.New("store: independent operation on a collective handle from a non-coordinator rank")
)
