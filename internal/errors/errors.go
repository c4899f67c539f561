package errors

import (
	"errors"
)

// Sentinels for the decision pipeline. Collaborator errors are wrapped with
// one of these so callers can branch with errors.Is.
var (
	ErrCollision          = errors.New("idempotency collision")
	ErrNotClaimable       = errors.New("job not claimable")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = errors.New("not found")
	ErrTransient          = errors.New("transient error")
	ErrInvalidModelOutput = errors.New("invalid model output")
	ErrDispatch           = errors.New("dispatch failed")
	ErrInternal           = errors.New("internal error")
)

type category struct {
	sentinel error
	name     string
}

// categories is ordered: the first match wins when an error wraps several.
var categories = []category{
	{ErrCollision, "collision"},
	{ErrNotClaimable, "not_claimable"},
	{ErrPermissionDenied, "permission_denied"},
	{ErrInvalidInput, "invalid_input"},
	{ErrNotFound, "not_found"},
	{ErrTransient, "transient"},
	{ErrInvalidModelOutput, "invalid_model_output"},
	{ErrDispatch, "dispatch_failed"},
	{ErrInternal, "internal"},
}

// categoryOf returns the snake_case name of the first sentinel err wraps.
func categoryOf(err error) (string, bool) {
	for _, c := range categories {
		if errors.Is(err, c.sentinel) {
			return c.name, true
		}
	}
	return "", false
}
