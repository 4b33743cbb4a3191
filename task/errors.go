package task

import "errors"

var (
	// ErrNotFound is returned when no task exists for (userID, todoID).
	ErrNotFound = errors.New("task: not found")

	// ErrInvalidRequest is returned for malformed create or update input.
	ErrInvalidRequest = errors.New("task: invalid request")
)
