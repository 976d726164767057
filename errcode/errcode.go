package errcode

import "github.com/go-faster/errors"

// Errors shared across the data access layer and the repositories. They are
// sentinel values so that callers can branch with errors.Is.
var (
	ErrNilGormDB       = errors.New("nil gorm db")
	ErrNilEntity       = errors.New("nil entity")
	ErrProfileNotFound = errors.New("user profile not found")
	ErrSessionNotFound = errors.New("mining session not found")
	ErrTaskNotFound    = errors.New("social task not found")
	ErrEmptyUserID     = errors.New("empty user id")
	ErrRemoteEmpty     = errors.New("remote returned an empty payload")
)
