package errcode

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCode_Wrapped(t *testing.T) {
	base := errors.New("boom")
	err := fmt.Errorf("outer: %w", Wrap(BadTrace, "read trace", base))

	assert.Equal(t, BadTrace, Code(err))
	assert.True(t, Is(err, BadTrace))
	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "read trace: boom")
}

func TestCode_Uncoded(t *testing.T) {
	assert.Equal(t, Unknown, Code(errors.New("plain")))
	assert.False(t, Is(nil, BadInput))
}

func TestWrap_Nil(t *testing.T) {
	require.NoError(t, Wrap(BadInput, "op", nil))
}

func TestBadInputf(t *testing.T) {
	err := BadInputf("missing required option --%s", "run-id")
	assert.Equal(t, BadInput, Code(err))
	assert.Equal(t, "missing required option --run-id", err.Error())
}
