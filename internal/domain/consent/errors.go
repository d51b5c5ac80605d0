package consent

import "errors"

var (
	// ErrNotFound indicates an unknown consent id.
	ErrNotFound = errors.New("consent record not found")

	// ErrConflict indicates a duplicate active/pending grant for a
	// (patient, professional) pair.
	ErrConflict = errors.New("an active or pending consent already exists for this pair")

	// ErrForbidden indicates the actor is not permitted to perform the
	// requested transition (e.g. a professional revoking a consent).
	ErrForbidden = errors.New("actor is not permitted to perform this operation")

	// ErrInvalidTransition indicates a state-machine violation, such as
	// granting an already-active record or restoring outside the window.
	ErrInvalidTransition = errors.New("transition not permitted in current state")
)
