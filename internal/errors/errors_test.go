package errors

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByType(t *testing.T) {
	err := fmt.Errorf("committing: %w", StaleHead("urn:b", "urn:r1", "urn:r2"))

	assert.True(t, Is(err, ErrStaleHead))
	assert.False(t, Is(err, ErrDuplicateName))
	assert.True(t, IsRetryable(err))
	assert.Equal(t, http.StatusConflict, Code(err))
}

func TestRetryableSplit(t *testing.T) {
	tests := []struct {
		err       error
		retryable bool
	}{
		{StaleHead("b", "x", "y"), true},
		{IOTimeout("write graph", context.DeadlineExceeded), true},
		{DuplicateName("branch", "moduleC"), false},
		{MergeConflict("conflict", nil), false},
		{IO("read graph", fmt.Errorf("disk gone")), false},
		{fmt.Errorf("plain"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.retryable, IsRetryable(tt.err), tt.err.Error())
	}
}

func TestWrapKeepsCause(t *testing.T) {
	err := IOTimeout("write graph", context.DeadlineExceeded)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "write graph timed out")
	assert.Equal(t, http.StatusGatewayTimeout, Code(err))
	assert.Equal(t, http.StatusInternalServerError, Code(fmt.Errorf("untyped")))
}

func TestFromContext(t *testing.T) {
	assert.NoError(t, FromContext(context.Background(), "op"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, Is(FromContext(ctx, "op"), ErrIO))

	ctx, cancel = context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	err := FromContext(ctx, "op")
	assert.True(t, Is(err, ErrIOTimeout))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
