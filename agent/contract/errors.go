package contract

import "errors"

var (
	ErrModelInvoke     = errors.New("model invoke failed")
	ErrSchemaViolation = errors.New("model response violates schema")
	ErrPromptMissing   = errors.New("required prompt is missing")
	ErrValidation      = errors.New("validation failed")

	ErrCapabilityNotFound = errors.New("capability not found")
	ErrCapabilityTimeout  = errors.New("capability deadline exceeded")
	ErrCapabilityCanceled = errors.New("capability call canceled")
	ErrCapabilityUpstream = errors.New("capability upstream failure")
	ErrCapabilityInternal = errors.New("capability internal failure")

	ErrPlannerTimeout = errors.New("planner timed out")

	// ErrTransient marks a failure the caller should answer by retrying the whole turn.
	ErrTransient = errors.New("transient failure, retry the turn")
)
