package util

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeJoin(t *testing.T) {
	p, err := SafeJoin("/data/in", "../../etc/batch-1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/data/in", "batch-1"), p)

	for _, bad := range []string{"", "..", "/", " "} {
		_, err := SafeJoin("/data/in", bad)
		assert.Error(t, err, bad)
	}
}
