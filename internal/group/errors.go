package group

import "errors"

var (
	// ErrNotFound means the referenced group does not exist.
	ErrNotFound = errors.New("group not found")
	// ErrQuestionNotFound means the referenced question index does not exist.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrForbidden means the caller is not the group's host.
	ErrForbidden = errors.New("caller is not the host")
	// ErrInvalidState means the operation is not legal in the group's
	// current lifecycle state.
	ErrInvalidState = errors.New("invalid group state")
	// ErrGroupNotOpen means a player tried to join or answer while the group
	// is not accepting play.
	ErrGroupNotOpen = errors.New("group not open")
	// ErrValidation wraps malformed join or question input.
	ErrValidation = errors.New("validation failed")
	// ErrPlanLimit means the free plan's question cap was reached.
	ErrPlanLimit = errors.New("free plan question limit reached")
)
