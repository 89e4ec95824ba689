package util

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProbeErrorMessage(t *testing.T) {
	err := WrapErrorWithTarget(CodeSocket, "send failed", "10.0.0.1", errors.New("no route"))
	assert.Equal(t, "[SOCKET] send failed (target: 10.0.0.1): no route", err.Error())
	assert.Equal(t, "[PERMISSION] raw socket", NewError(CodePermission, "raw socket").Error())
}

func TestProbeErrorIs(t *testing.T) {
	cause := errors.New("disk I/O error")
	err := fmt.Errorf("hosts_checker: %w", WrapError(CodeDatabaseConnection, "failed to record checks", cause))

	assert.ErrorIs(t, err, ErrDatabase)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrTask)

	code, ok := CodeOf(err)
	assert.True(t, ok)
	assert.Equal(t, CodeDatabaseConnection, code)

	_, ok = CodeOf(cause)
	assert.False(t, ok)
}
