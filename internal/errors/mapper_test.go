package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultErrorMapper_Category(t *testing.T) {
	m := NewDefaultErrorMapper()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "deadline", err: context.DeadlineExceeded, want: "transient"},
		{name: "canceled", err: context.Canceled, want: "canceled"},
		{name: "rate limit text", err: errors.New("429 Too Many Requests"), want: "transient"},
		{name: "wrapped collision", err: fmt.Errorf("create job: %w", ErrCollision), want: "collision"},
		{name: "malformed json", err: errors.New("malformed JSON in verdict"), want: "invalid_model_output"},
		{name: "sql no rows", err: errors.New("sql: no rows in result set"), want: "not_found"},
		{name: "unknown", err: errors.New("boom"), want: "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Category(tt.err))
		})
	}
}

func TestDefaultErrorMapper_IsRetryable(t *testing.T) {
	m := NewDefaultErrorMapper()

	assert.True(t, m.IsRetryable(errors.New("connection reset by peer")))
	assert.True(t, m.IsRetryable(context.DeadlineExceeded))
	assert.False(t, m.IsRetryable(context.Canceled))
	assert.False(t, m.IsRetryable(InvalidInput("empty draft")))
	assert.False(t, m.IsRetryable(nil))
}

func TestDefaultErrorMapper_HTTPStatus(t *testing.T) {
	m := NewDefaultErrorMapper()

	assert.Equal(t, http.StatusNotFound, m.HTTPStatus(NotFound("job 1")))
	assert.Equal(t, http.StatusBadRequest, m.HTTPStatus(InvalidInput("bad body")))
	assert.Equal(t, http.StatusConflict, m.HTTPStatus(ErrCollision))
	assert.Equal(t, http.StatusServiceUnavailable, m.HTTPStatus(Transient("redis down")))
	assert.Equal(t, http.StatusInternalServerError, m.HTTPStatus(errors.New("boom")))
}
