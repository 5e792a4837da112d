package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeywordScannerMatchesCaseInsensitive(t *testing.T) {
	scanner := NewKeywordScanner([]string{" Spoiler ", "", "leak"})

	matched, ok := scanner.Scan("Huge SPOILER ahead")
	assert.True(t, ok)
	assert.Equal(t, "spoiler", matched)

	matched, ok = scanner.Scan("nothing to see")
	assert.False(t, ok)
	assert.Empty(t, matched)
}

func TestKeywordScannerEmptyInputs(t *testing.T) {
	scanner := NewKeywordScanner(nil)
	_, ok := scanner.Scan("anything goes")
	assert.False(t, ok)

	scanner = NewKeywordScanner([]string{"leak"})
	_, ok = scanner.Scan("")
	assert.False(t, ok)
}
