package ormerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "plain error", err: errors.New("boom"), want: ""},
		{name: "sentinel", err: ErrInvalidSave, want: "InvalidSave"},
		{name: "wrapped", err: fmt.Errorf("%w: id already set", ErrInvalidSave), want: "InvalidSave"},
		{name: "path", err: fmt.Errorf("%w: no id", ErrInvalidPath), want: "record/invalid-path"},
		{name: "push key", err: ErrNotPushKey, want: "invalid-operation/not-pushkey"},
		{name: "not on db", err: ErrNotOnDB, want: "invalid-operation/not-on-db"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Code(tt.err))
		})
	}
}

func TestWriteFailedPreservesCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("%w: %w", ErrWriteFailed, cause)

	assert.True(t, IsWriteFailed(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "multi-path/write-error", Code(err))
}

func TestIsHelpers(t *testing.T) {
	assert.True(t, IsNotFound(fmt.Errorf("%w: x", ErrNotFound)))
	assert.True(t, IsNotAllowed(ErrNotAllowed))
	assert.True(t, IsNoDatabase(ErrNoDatabase))
	assert.True(t, IsInvalidPath(ErrInvalidPath))
	assert.False(t, IsNotFound(ErrForbidden))
}
