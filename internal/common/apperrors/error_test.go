package apperrors

import (
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestError(t *testing.T) {
	t.Run("TestError", func(t *testing.T) {
		ErrBaseErr := New("base error")
		assert.Equal(t, "base error", ErrBaseErr.Error())
		assert.Equal(t, "msg", ErrBaseErr.New("msg").Error())
		assert.ErrorIs(t, ErrBaseErr, ErrBaseErr)

		ErrFirstLevel := ErrBaseErr.New("first level")
		assert.Equal(t, "first level", ErrFirstLevel.Error())
		assert.ErrorIs(t, ErrFirstLevel, ErrBaseErr)

		ErrAnotherErr := New("another error")
		ErrWrappedErr := ErrFirstLevel.Err(ErrAnotherErr)
		assert.Equal(t, "first level", ErrWrappedErr.Error())
		assert.ErrorIs(t, ErrWrappedErr, ErrBaseErr)
		assert.ErrorIs(t, ErrWrappedErr, ErrAnotherErr)

		err := errors.New("error")
		ErrWrappedErr = ErrFirstLevel.Err(err)
		assert.Equal(t, "first level", ErrWrappedErr.Error())
		assert.ErrorIs(t, ErrWrappedErr, ErrBaseErr)
		assert.ErrorIs(t, ErrWrappedErr, err)

		ErrWrappedErr = ErrFirstLevel.MsgErr("msg", err)
		assert.Equal(t, "msg", ErrWrappedErr.Error())
		assert.ErrorIs(t, ErrWrappedErr, ErrBaseErr)
		assert.ErrorIs(t, ErrWrappedErr, err)
	})
}

func TestDerivationDoesNotMutateSentinel(t *testing.T) {
	ErrSentinel := New("sentinel").SetStatusCode(http.StatusConflict)

	derived := ErrSentinel.Msg("format exists").Err(errors.New("cause"))
	assert.Equal(t, "sentinel", ErrSentinel.Error())
	assert.Empty(t, ErrSentinel.Unwrap())
	assert.Equal(t, "format exists", derived.Error())
	assert.Equal(t, http.StatusConflict, derived.StatusCode())
	assert.ErrorIs(t, derived, ErrSentinel)

	prefixed := ErrSentinel.Prefix("create").Suffix("retry")
	assert.Equal(t, "create: sentinel: retry", prefixed.Error())
	assert.Equal(t, "create: sentinel: retry", prefixed.Error())

	expanded := ErrSentinel.MsgErr("outer", errors.New("inner")).SetExpandError(true)
	assert.Equal(t, "outer: inner", expanded.ErrorAll())
}
