package util

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersion(t *testing.T) {
	t.Parallel()
	assert.Regexp(t, regexp.MustCompile(`^\d+\.\d+\.\d+`), Version())
}

func TestRequestID(t *testing.T) {
	t.Parallel()
	seen := make(map[string]bool)
	for range 100 {
		id := RequestID()
		assert.Len(t, id, 26)
		assert.Regexp(t, regexp.MustCompile(`^[0-9a-hjkmnp-tv-z]+$`), id)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestFindPort(t *testing.T) {
	t.Parallel()
	a, b := FindPort(), FindPort()
	assert.NotEqual(t, a, b)
	assert.Positive(t, a)
}
