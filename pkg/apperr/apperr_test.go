package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	assert.NoError(t, Classify(nil))

	plain := errors.New("syntax error")
	assert.Same(t, plain, Classify(plain))

	timeout := fmt.Errorf("query: %w", context.DeadlineExceeded)
	err := Classify(timeout)
	assert.ErrorIs(t, err, ErrTransient)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, timeout.Error(), err.Error())
	assert.Same(t, err, Classify(err))
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "project p1: not found", Message(NotFound("project", "p1")))
	assert.Equal(t, "title is required: invalid", Message(Invalid("title is required")))
	assert.Equal(t, "service temporarily unavailable", Message(Classify(context.DeadlineExceeded)))
	assert.Equal(t, "internal server error", Message(errors.New("boom")))
}
