package errors_test

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "noesis-backend/pkg/errors"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(apperrors.NewNotFound("x")))
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(apperrors.NewConflict("x")))
	assert.Equal(t, apperrors.KindUnavailable, apperrors.KindOf(apperrors.NewUnavailable("x", nil)))
	assert.Equal(t, apperrors.KindCircuitOpen, apperrors.KindOf(apperrors.NewCircuitOpen("x")))
	assert.Equal(t, apperrors.KindValidationFailed, apperrors.KindOf(apperrors.NewValidationFailed("x")))
	assert.Equal(t, apperrors.KindInternal, apperrors.KindOf(stderrors.New("untyped")))
}

func TestWrap_PreservesKind(t *testing.T) {
	inner := apperrors.NewNotFound("concept missing")

	wrapped := apperrors.Wrap(inner, "loading parents")

	assert.True(t, apperrors.IsNotFound(wrapped))
	assert.Contains(t, wrapped.Error(), "loading parents")
	assert.Contains(t, wrapped.Error(), "concept missing")
}

func TestWrap_UntypedBecomesInternal(t *testing.T) {
	wrapped := apperrors.Wrap(stderrors.New("disk error"), "writing log")

	assert.Equal(t, apperrors.KindInternal, apperrors.KindOf(wrapped))
	assert.True(t, stderrors.Is(wrapped, wrapped))
}

func TestWrap_NilIsNil(t *testing.T) {
	assert.Nil(t, apperrors.Wrap(nil, "anything"))
}

func TestCompensationFailed_RootCauseIsReachable(t *testing.T) {
	rootCause := apperrors.NewConflict("duplicate thesis")

	err := apperrors.NewCompensationFailed("plan left residual state", rootCause)

	require.True(t, apperrors.IsCompensationFailed(err))

	var appErr *apperrors.AppError
	require.True(t, stderrors.As(err, &appErr))
	assert.Equal(t, rootCause, appErr.Unwrap())

	// The kind of the wrapper wins, but the cause is still in the chain.
	var inner *apperrors.AppError
	require.True(t, stderrors.As(appErr.Unwrap(), &inner))
	assert.Equal(t, apperrors.KindConflict, inner.Kind)
}

func TestAppError_ErrorFormatting(t *testing.T) {
	plain := apperrors.NewNotFound("concept x not found")
	assert.Equal(t, "NOT_FOUND: concept x not found", plain.Error())

	nested := apperrors.NewUnavailable("store call failed", stderrors.New("connection refused"))
	assert.Contains(t, nested.Error(), "UNAVAILABLE")
	assert.Contains(t, nested.Error(), "connection refused")
}
