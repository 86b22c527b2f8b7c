package storage

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrAlreadyLinked is returned when a receipt or banking transaction is
// already part of another link.
var ErrAlreadyLinked = errors.New("storage: already linked")
