package scheduler

import "errors"

var (
	// ErrLockHeld is returned when another replica holds the job lock
	ErrLockHeld = errors.New("job lock held by another instance")

	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid scheduler configuration")

	// ErrIntegrityViolation is returned by the integrity sweep when at least
	// one snapshot failed verification
	ErrIntegrityViolation = errors.New("integrity sweep found invalid snapshots")
)
