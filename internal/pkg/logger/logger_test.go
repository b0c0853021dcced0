package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitAndLevel(t *testing.T) {
	err := Init(InitOptions{Level: "debug", Format: "console", Output: OutputOptions{ToStdout: true}})
	require.NoError(t, err)
	assert.NotNil(t, L())

	require.NoError(t, SetLevel("warn"))
	require.Error(t, SetLevel("not-a-level"))
}

func TestContextRoundTrip(t *testing.T) {
	require.NoError(t, Init(InitOptions{Output: OutputOptions{ToStdout: true}}))
	base := With()
	ctx := IntoContext(context.Background(), base)
	got := FromContext(ctx)
	assert.Same(t, base, got)

	assert.NotNil(t, FromContext(context.Background()))
}
