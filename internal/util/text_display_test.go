package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisplaySnippet(t *testing.T) {
	assert.Equal(t, "Hello world again", DisplaySnippet("Hello\x00   world \n\t again", 100))
	assert.Equal(t, "abcd...", DisplaySnippet("abcdefghij", 4))
	assert.Equal(t, "Quarterly revenue...", DisplaySnippet("Quarterly revenue grew", 20))
}
