package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeNotFound, http.StatusNotFound},
		{CodeUnauthenticated, http.StatusUnauthorized},
		{CodeInvalidCredentials, http.StatusUnauthorized},
		{CodeTokenExpired, http.StatusUnauthorized},
		{CodeForbidden, http.StatusForbidden},
		{CodeValidation, http.StatusBadRequest},
		{CodeUnavailable, http.StatusServiceUnavailable},
		{CodeRateLimited, http.StatusTooManyRequests},
		{CodeInternal, http.StatusInternalServerError},
		{Code("SOMETHING_ELSE"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.HTTPStatus())
		})
	}
}

func TestError_IsMatchesByCode(t *testing.T) {
	err := NotFoundf("match %s not found", "m1")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrUnavailable))
	assert.Equal(t, "match m1 not found", err.Error())

	wrapped := fmt.Errorf("load: %w", err)
	assert.True(t, errors.Is(wrapped, ErrNotFound))

	var domainErr *Error
	assert.True(t, errors.As(wrapped, &domainErr))
	assert.Equal(t, http.StatusNotFound, domainErr.HTTPStatus())
}

func TestError_Cause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Unavailable(cause, "failed to write")

	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "failed to write: connection refused", err.Error())
}

func TestError_WithCauseCopies(t *testing.T) {
	base := ValidationWithDetails("invalid input", map[string]string{"email": "required"})
	cause := errors.New("boom")
	wrapped := base.WithCause(cause)

	assert.Nil(t, base.Unwrap())
	assert.Same(t, cause, wrapped.Unwrap())
	assert.Equal(t, map[string]string{"email": "required"}, wrapped.Details)
	assert.Equal(t, CodeValidation, wrapped.Code)
}

func TestError_GetStatus(t *testing.T) {
	assert.Equal(t, http.StatusTooManyRequests, ErrRateLimited.GetStatus())
	assert.Equal(t, http.StatusUnauthorized, InvalidCredentials("bad token").GetStatus())
}
