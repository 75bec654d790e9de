package store

import "errors"

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrEmailTaken is returned when a write would violate the users
// email uniqueness constraint.
var ErrEmailTaken = errors.New("email already taken")
