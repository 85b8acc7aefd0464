package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestResponseWriter_TracksStatusAndSize(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := wrapResponseWriter(rec)

	rw.WriteHeader(http.StatusCreated)
	n, err := rw.Write([]byte("hello"))

	assert.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, http.StatusCreated, rw.status)
	assert.Equal(t, 5, rw.size)
}

func TestResponseWriter_WriteWithoutExplicitHeaderDefaultsTo200(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := wrapResponseWriter(rec)

	_, _ = rw.Write([]byte("ok"))

	assert.Equal(t, http.StatusOK, rw.status)
}

func TestResponseWriter_WriteHeaderIsIdempotent(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := wrapResponseWriter(rec)

	rw.WriteHeader(http.StatusCreated)
	rw.WriteHeader(http.StatusInternalServerError)

	assert.Equal(t, http.StatusCreated, rw.status, "the first WriteHeader call wins, matching net/http semantics")
}

func TestLogger_PassesRequestThroughUnmodified(t *testing.T) {
	mw := Logger(zerolog.Nop())
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("body"))
	}))

	r := httptest.NewRequest(http.MethodGet, "/v1/connections", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "body", w.Body.String())
}
