package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-intake/pkg/apperrors"
)

func TestErrorResponse(t *testing.T) {
	w := httptest.NewRecorder()
	require.NoError(t, ErrorResponse(w, http.StatusBadRequest, "bad_request", "invalid input"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "bad_request", body["error"])
	assert.Equal(t, "invalid input", body["message"])
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	require.NoError(t, WriteJSON(w, http.StatusCreated, map[string]int{"count": 5}))
	assert.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	assert.Error(t, WriteJSON(w, http.StatusOK, make(chan int)))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperrors.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: empty", apperrors.ErrInvalidArgument), http.StatusBadRequest},
		{apperrors.ErrInvalidTransition, http.StatusConflict},
		{apperrors.ErrStaleApproval, http.StatusConflict},
		{apperrors.NewSessionError(apperrors.ErrUnsupportedSourceType, "s", "f", nil), http.StatusUnsupportedMediaType},
		{apperrors.NewSessionError(apperrors.ErrExtraction, "s", "f", nil), http.StatusUnprocessableEntity},
		{apperrors.NewSessionError(apperrors.ErrRoundLimitExceeded, "s", "f", nil), http.StatusUnprocessableEntity},
		{apperrors.NewSessionError(apperrors.ErrCommit, "s", "f", nil), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), tt.err.Error())
	}
}

func TestWriteServiceError_CarriesFingerprintAndRetryable(t *testing.T) {
	w := httptest.NewRecorder()
	err := apperrors.NewSessionError(apperrors.ErrCommit, "sess-1", "fp-9", errors.New("sink down"))
	require.NoError(t, WriteServiceError(w, err, map[string]string{"status": "failed"}))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	var body SessionErrorBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "commit_error", body.Error)
	assert.Equal(t, "fp-9", body.Fingerprint)
	assert.True(t, body.Retryable)
	assert.NotNil(t, body.Data)
}
