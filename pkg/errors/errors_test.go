package errors

import (
	stdErrors "errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorStringIncludesInternal(t *testing.T) {
	err := Wrap(stdErrors.New("boom"), "failed")
	assert.Equal(t, "failed: boom", err.Error())
}

func TestWithInternalCopies(t *testing.T) {
	base := New("TEST", "test", 400)
	with := base.WithInternal(stdErrors.New("oops"))

	require.NotSame(t, base, with)
	assert.Nil(t, base.Internal)
	assert.NotNil(t, with.Internal)
}

func TestWithMessageCopies(t *testing.T) {
	with := ErrProtectedUser.WithMessage("Administrator cannot be renamed")

	require.NotSame(t, ErrProtectedUser, with)
	assert.NotEqual(t, ErrProtectedUser.Message, with.Message)
	assert.Equal(t, ErrProtectedUser.StatusCode, with.StatusCode)
}

func TestFromError(t *testing.T) {
	assert.Same(t, ErrNotFound, FromError(ErrNotFound))

	out := FromError(stdErrors.New("raw"))
	assert.Equal(t, ErrInternalServer.Code, out.Code)
	assert.NotNil(t, out.Internal)

	assert.Nil(t, FromError(nil))
}

func TestNewBadRequest(t *testing.T) {
	err := NewBadRequest("invalid payload")
	assert.Equal(t, ErrBadRequest.Code, err.Code)
	assert.Equal(t, "invalid payload", err.Message)
	assert.Equal(t, ErrBadRequest.StatusCode, err.StatusCode)
}

func TestNewConflict(t *testing.T) {
	err := NewConflict("email already registered")
	assert.Equal(t, http.StatusConflict, err.StatusCode)
	assert.Equal(t, "email already registered", err.Message)
}

func TestAccountErrorStatusCodes(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, ErrUserDisabled.StatusCode)
	assert.Equal(t, http.StatusBadRequest, ErrProtectedUser.StatusCode)
	assert.Equal(t, http.StatusUnauthorized, ErrInvalidCredentials.StatusCode)
	assert.Equal(t, http.StatusForbidden, ErrForbidden.StatusCode)
	assert.Equal(t, http.StatusGone, ErrInvalidResetKey.StatusCode)
	assert.Equal(t, http.StatusGone, ErrResetKeyExpired.StatusCode)
}
