package session

import "errors"

// ErrNotFound is returned when an operation requires a live context and none
// exists for the user. Callers recover by creating a context first.
var ErrNotFound = errors.New("no active context found")

// ErrAlreadyExists is returned by Create when the user already has a live,
// non-expired context. Callers recover by switching to Get or Update.
var ErrAlreadyExists = errors.New("context already exists")
