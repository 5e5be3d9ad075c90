// Package repository defines the credential and token stores and the error
// types that are reused across them. These sentinel values allow higher
// layers to distinguish between "nothing matched" and "would break a unique
// constraint" without knowing which database is underneath.
package repository

import "errors"

// ErrNotFound is returned when a lookup matches no row (including tokens
// that exist but are revoked or expired).
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert conflicts with an existing
// primary key or unique column.  For event-driven creates this is a
// recoverable condition: the row the event asks for already exists.
var ErrDuplicate = errors.New("duplicate")
