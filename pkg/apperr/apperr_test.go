package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestStore(t *testing.T) {
	assert.NoError(t, Store("op", nil))

	err := Store("insert message", errors.New("connection refused"))
	var se *StoreError
	assert.True(t, errors.As(err, &se))
	assert.Equal(t, "insert message", se.Op)
	assert.False(t, se.Timeout())

	err = Store("list", fmt.Errorf("query: %w", context.DeadlineExceeded))
	assert.True(t, errors.As(err, &se))
	assert.True(t, se.Timeout())

	err = Store("get item", gorm.ErrRecordNotFound)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, IsStore(err))
}

func TestStore_KeepsKinds(t *testing.T) {
	auth := Unauthenticated()
	assert.Same(t, auth, Store("send", auth))

	inv := Invalid("body", "must not be empty")
	assert.True(t, IsValidation(Store("send", inv)))
	assert.Equal(t, "body: must not be empty", inv.Error())
}

func TestAuthErrorMessages(t *testing.T) {
	assert.Equal(t, "login required", Unauthenticated().Error())
	assert.Equal(t, "not authorized: not your listing", Forbidden("not your listing").Error())
	assert.True(t, IsAuth(fmt.Errorf("wrapped: %w", Forbidden(""))))
}
