package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeTextRemovesNulAndControls(t *testing.T) {
	assert.Equal(t, "abcd\n\txy", SanitizeText("ab\x00cd\x01\x02\n\txy"))
}

func TestSanitizeTextExpandsLigatures(t *testing.T) {
	assert.Equal(t, "efficient flow", SanitizeText("e\ufb03cient \ufb02ow"))
	assert.Equal(t, "hyphenation", SanitizeText("hyphen\u00adation\u200b"))
	assert.Equal(t, "10 kg", SanitizeText("10\u00a0kg"))
}
