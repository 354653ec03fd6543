package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCoreErrorMatchesByCode(t *testing.T) {
	err := fmt.Errorf("join: %w", badRequest("room id is required"))

	assert.True(t, errors.Is(err, ErrBadRequest))
	assert.False(t, errors.Is(err, ErrRoomNotFound))
}

func TestAsCoreError(t *testing.T) {
	assert.Nil(t, AsCoreError(nil))
	assert.Same(t, ErrNotAMember, AsCoreError(ErrNotAMember))

	cause := errors.New("disk full")
	ce := AsCoreError(cause)
	assert.Equal(t, ErrCodeStorageFailure, ce.Code)
	assert.Equal(t, ErrStorageFailure.Message, ce.Message)
	assert.True(t, errors.Is(ce, cause))
}
