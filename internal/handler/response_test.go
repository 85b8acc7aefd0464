package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pgconsole/gateway/internal/apierr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteSuccess_WrapsDataInEnvelope(t *testing.T) {
	w := httptest.NewRecorder()

	WriteSuccess(w, map[string]string{"id": "c1"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, map[string]any{"id": "c1"}, body["data"])
}

func TestWriteSuccessStatus_UsesGivenStatus(t *testing.T) {
	w := httptest.NewRecorder()

	WriteSuccessStatus(w, http.StatusCreated, nil)

	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestWriteAPIError_MapsKindToEnvelope(t *testing.T) {
	w := httptest.NewRecorder()

	WriteAPIError(w, apierr.NotFound("connection not found"))

	assert.Equal(t, http.StatusNotFound, w.Code)

	var body errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "NOT_FOUND", body.Error.Code)
	assert.Equal(t, "connection not found", body.Error.Message)
}

func TestWriteAPIError_UnknownErrorBecomesInternal(t *testing.T) {
	w := httptest.NewRecorder()

	WriteAPIError(w, assertPlainError("boom"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var body errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "INTERNAL", body.Error.Code)
	assert.Equal(t, "internal error", body.Error.Message)
}

type assertPlainError string

func (e assertPlainError) Error() string { return string(e) }
