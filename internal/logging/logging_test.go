package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	log, zl, err := New("debug")
	require.NoError(t, err)
	defer zl.Sync()
	assert.True(t, log.V(1).Enabled())

	log, zl, err = New("INFO")
	require.NoError(t, err)
	defer zl.Sync()
	assert.False(t, log.V(1).Enabled())
	assert.True(t, log.Enabled())

	_, _, err = New("loud")
	assert.Error(t, err)
}
