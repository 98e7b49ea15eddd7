package errx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, KindValidation, KindOf(Validation("bad")))

	wrapped := fmt.Errorf("issue code: %w", Storage(errors.New("down")))
	assert.Equal(t, KindStorage, KindOf(wrapped))
	assert.True(t, IsKind(wrapped, KindStorage))
	assert.False(t, IsKind(wrapped, KindValidation))
}

func TestIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("verify: %w", VerificationRejected())
	assert.True(t, errors.Is(err, VerificationRejected()))
	assert.False(t, errors.Is(err, RateLimited()))
}

func TestWrapRedis(t *testing.T) {
	require.NoError(t, WrapRedis(nil))

	notFound := WrapRedis(redis.Nil)
	var appErr *AppError
	require.True(t, errors.As(notFound, &appErr))
	assert.Equal(t, http.StatusNotFound, appErr.Status)
	assert.Equal(t, KindNotFound, appErr.Kind)
	assert.True(t, errors.Is(notFound, redis.Nil))

	down := WrapRedis(errors.New("connection refused"))
	require.True(t, errors.As(down, &appErr))
	assert.Equal(t, KindStorage, appErr.Kind)
	assert.Equal(t, RedisErrorMessage, appErr.Message)
}

func TestWrapStorage(t *testing.T) {
	require.NoError(t, WrapStorage(nil))
	assert.Equal(t, KindStorage, KindOf(WrapStorage(errors.New("disk full"))))

	original := Validation("kept")
	assert.Same(t, original, WrapStorage(original))

	assert.True(t, errors.Is(WrapStorage(context.Canceled), context.Canceled))
}

func TestValidationCarriesFields(t *testing.T) {
	err := Validation("invalid submission", FieldError{Field: "phone", Message: "must be E.164"})
	assert.Equal(t, http.StatusUnprocessableEntity, err.Status)
	require.Len(t, err.Fields, 1)
	assert.Equal(t, "phone", err.Fields[0].Field)
	assert.Equal(t, "invalid submission", err.Error())
}

func TestConflict(t *testing.T) {
	err := fmt.Errorf("create watch: %w", Conflict("id in use"))
	var appErr *AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, http.StatusConflict, appErr.Status)
	assert.Equal(t, KindConflict, appErr.Kind)
	assert.Same(t, appErr, WrapStorage(appErr))
}
