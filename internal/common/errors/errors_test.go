package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardError_IsMatchesOnCode(t *testing.T) {
	err := fmt.Errorf("submit: %w", NewDuplicateIdentityError("a@b.com"))

	assert.True(t, stderrors.Is(err, ErrDuplicateIdentity))
	assert.False(t, stderrors.Is(err, ErrProvisioning))
}

func TestStandardError_UnwrapsCause(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := NewUploadError("users/1/photo-a.png", cause)

	assert.True(t, stderrors.Is(err, cause))
	assert.True(t, stderrors.Is(err, ErrUpload))
	assert.Contains(t, err.Error(), "users/1/photo-a.png")
}

func TestAsStandardError(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", NewMissingReferenceError())
	se := AsStandardError(wrapped)
	assert.Equal(t, ErrCodeMissingReference, se.Code)

	plain := AsStandardError(stderrors.New("boom"))
	assert.Equal(t, ErrCodeInternal, plain.Code)
	assert.Equal(t, "boom", plain.Details)
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeValidation, http.StatusBadRequest},
		{ErrCodeAgreementRequired, http.StatusBadRequest},
		{ErrCodeMissingReference, http.StatusBadRequest},
		{ErrCodeInvalidCredentials, http.StatusUnauthorized},
		{ErrCodeAccountSuspended, http.StatusForbidden},
		{ErrCodeAccessDenied, http.StatusForbidden},
		{ErrCodeNotFound, http.StatusNotFound},
		{ErrCodeDuplicateIdentity, http.StatusConflict},
		{ErrCodeOrderNotCancellable, http.StatusConflict},
		{ErrCodeUpload, http.StatusBadGateway},
		{ErrCodePersistence, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.code))
		})
	}
}

func TestConvertToBPMNError(t *testing.T) {
	bpmn := ConvertToBPMNError(NewNotFoundError("user", "u-1"))
	assert.Equal(t, "STOCKIST_NOT_FOUND", bpmn.Code)
	assert.Equal(t, 0, bpmn.Retries)
	assert.Equal(t, string(ErrCodeNotFound), bpmn.ErrorVariables["originalErrorCode"])

	retryable := ConvertToBPMNError(NewPersistenceError("users", stderrors.New("timeout")))
	assert.Equal(t, 3, retryable.Retries)
	assert.True(t, retryable.Retryable)

	vars := retryable.ToErrorVariables()
	require.Contains(t, vars, "errorCode")
	assert.Equal(t, "PERSISTENCE_ERROR", vars["errorCode"])
}

func TestGetErrorCategory(t *testing.T) {
	assert.Equal(t, "AUTH", GetErrorCategory(ErrCodeInvalidCredentials))
	assert.Equal(t, "AUTH", GetErrorCategory(ErrCodeKeycloakAPI))
	assert.Equal(t, "DATABASE", GetErrorCategory(ErrCodePersistence))
	assert.Equal(t, "SEARCH", GetErrorCategory(ErrCodeSearchQueryFailed))
	assert.Equal(t, "STORAGE", GetErrorCategory(ErrCodeUpload))
	assert.Equal(t, "VALIDATION", GetErrorCategory(ErrCodeAgreementRequired))
	assert.Equal(t, "ORDER", GetErrorCategory(ErrCodeOrderNotCancellable))
	assert.Equal(t, "OTHER", GetErrorCategory(ErrCodeInternal))
}
