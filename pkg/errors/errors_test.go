package errors

import (
	"database/sql"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromErrorWrapsUnknown(t *testing.T) {
	appErr := FromError(sql.ErrConnDone)
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
	assert.True(t, errors.Is(appErr, sql.ErrConnDone))
}

func TestCloneKeepsCode(t *testing.T) {
	clone := Clone(ErrValidation, "duration must be positive")
	assert.Equal(t, ErrValidation.Code, clone.Code)
	assert.Equal(t, "duration must be positive", clone.Message)
	assert.Equal(t, "validation failed", ErrValidation.Message)
}

func TestInternalMessage(t *testing.T) {
	err := Internal(sql.ErrTxDone, "failed to commit")
	assert.Equal(t, "failed to commit: sql: transaction has already been committed or rolled back", err.Error())
	assert.Same(t, err, FromError(err))
}
