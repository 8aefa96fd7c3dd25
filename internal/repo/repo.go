package repo

import "errors"

// Sentinel errors shared by all repositories. Wrapped with context by each
// method; callers test with errors.Is.
var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)
