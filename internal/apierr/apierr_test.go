package apierr

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind_HTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindUnauthenticated, http.StatusUnauthorized},
		{KindPermissionDenied, http.StatusForbidden},
		{KindNotFound, http.StatusNotFound},
		{KindInvalidArgument, http.StatusBadRequest},
		{KindUnavailable, http.StatusServiceUnavailable},
		{KindInternal, http.StatusInternalServerError},
		{Kind("bogus"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.HTTPStatus())
		})
	}
}

func TestAs_RecognizesAPIError(t *testing.T) {
	err := PermissionDenied("missing permissions: write")

	status, code, message := As(err)

	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "PERMISSION_DENIED", code)
	assert.Equal(t, "missing permissions: write", message)
}

func TestAs_WrappedAPIError(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindUnavailable, "dial connection", cause)

	status, code, message := As(err)

	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "UNAVAILABLE", code)
	assert.Equal(t, "dial connection", message)
	assert.ErrorIs(t, err, cause)
}

func TestAs_DefaultsUnknownErrorsToInternal(t *testing.T) {
	status, code, message := As(errors.New("boom"))

	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "INTERNAL", code)
	assert.Equal(t, "internal error", message, "unrecognized errors must never leak their message")
}
