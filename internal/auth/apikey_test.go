package auth

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAPIKey(t *testing.T) {
	first, err := NewAPIKey()
	require.NoError(t, err)
	second, err := NewAPIKey()
	require.NoError(t, err)

	assert.Len(t, first, 64)
	assert.NotEqual(t, first, second)

	_, err = hex.DecodeString(first)
	assert.NoError(t, err)
}
