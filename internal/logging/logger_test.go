package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	l, err := NewLogger("debug", "production")
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(-1))

	dev, err := NewLogger("warn", "development")
	require.NoError(t, err)
	assert.False(t, dev.Core().Enabled(0))
	assert.True(t, dev.Core().Enabled(1))

	quiet, err := NewLogger(LevelNone, "production")
	require.NoError(t, err)
	assert.False(t, quiet.Core().Enabled(2))

	_, err = NewLogger("loud", "production")
	assert.Error(t, err)
}

func TestRequestID(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "req-1")
	assert.Equal(t, "req-1", RequestID(ctx))
	assert.Equal(t, "", RequestID(context.Background()))
	assert.NotNil(t, Nop().WithRequestID(ctx))
}
