package errors

import (
	stderrors "errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageUnavailable_KeepsCause(t *testing.T) {
	cause := stderrors.New("dial tcp 10.0.0.5:5432: connection refused")

	appErr := StorageUnavailable(cause)

	assert.Equal(t, "STORAGE_UNAVAILABLE", appErr.Code)
	assert.Equal(t, http.StatusServiceUnavailable, appErr.StatusCode)
	assert.True(t, stderrors.Is(appErr, ErrStorageUnavailable))
	assert.Contains(t, appErr.Error(), "connection refused")
}

func TestStorageUnavailable_NilCause(t *testing.T) {
	appErr := StorageUnavailable(nil)

	assert.True(t, stderrors.Is(appErr, ErrStorageUnavailable))
	assert.Equal(t, http.StatusServiceUnavailable, appErr.StatusCode)
}

func TestAppError_Unwrap(t *testing.T) {
	appErr := NotFound("medicine")

	require.NotNil(t, appErr.Unwrap())
	assert.True(t, stderrors.Is(appErr, ErrNotFound))
}
